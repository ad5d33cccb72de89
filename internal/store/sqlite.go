package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/digest-cli/internal/model"
)

// sqliteTimeLayout is fixed width so stored timestamps compare as text.
const sqliteTimeLayout = "2006-01-02T15:04:05.000000000Z"

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS users (
	email          TEXT PRIMARY KEY,
	topics         TEXT NOT NULL DEFAULT '[]',
	otp            TEXT NOT NULL DEFAULT '',
	otp_created_at TEXT,
	is_verified    INTEGER NOT NULL DEFAULT 0,
	last_sent_at   TEXT,
	claimed_until  TEXT,
	created_at     TEXT NOT NULL,
	updated_at     TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS articles (
	id            TEXT PRIMARY KEY,
	title         TEXT NOT NULL DEFAULT '',
	link          TEXT NOT NULL DEFAULT '',
	summary       TEXT NOT NULL DEFAULT '',
	full_text     TEXT NOT NULL DEFAULT '',
	source_name   TEXT NOT NULL DEFAULT '',
	topic         TEXT NOT NULL DEFAULT '',
	published     TEXT,
	processed_at  TEXT NOT NULL,
	is_summarized INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_users_verified ON users(is_verified);
CREATE INDEX IF NOT EXISTS idx_articles_topic_summarized ON articles(topic, is_summarized);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) UpsertUser(ctx context.Context, email string, topics []string, otp string, now time.Time) error {
	topicsJSON, err := json.Marshal(topics)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal topics")
	}
	ts := formatTime(now)

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO users (email, topics, otp, otp_created_at, is_verified, created_at, updated_at)
		 VALUES (?, ?, ?, ?, 0, ?, ?)
		 ON CONFLICT(email) DO UPDATE SET
			topics = excluded.topics,
			otp = excluded.otp,
			otp_created_at = excluded.otp_created_at,
			is_verified = 0,
			updated_at = excluded.updated_at`,
		email, string(topicsJSON), otp, ts, ts, ts,
	)
	return eris.Wrapf(err, "sqlite: upsert user %s", email)
}

func (s *SQLiteStore) GetUser(ctx context.Context, email string) (*model.User, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT email, topics, otp, otp_created_at, is_verified, last_sent_at FROM users WHERE email = ?`,
		email,
	)
	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "user %s", email)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get user %s", email)
	}
	return u, nil
}

func (s *SQLiteStore) MarkVerified(ctx context.Context, email string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE users SET is_verified = 1, updated_at = ? WHERE email = ?`,
		formatTime(time.Now()), email,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: mark verified %s", email)
	}
	return checkRowsAffected(res, "user", email)
}

func (s *SQLiteStore) ListVerifiedUsers(ctx context.Context) ([]model.User, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT email, topics, otp, otp_created_at, is_verified, last_sent_at
		 FROM users WHERE is_verified = 1 ORDER BY email`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list verified users")
	}
	defer rows.Close()

	var users []model.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan user")
		}
		users = append(users, *u)
	}
	return users, eris.Wrap(rows.Err(), "sqlite: list verified users iterate")
}

func (s *SQLiteStore) UpdateLastSent(ctx context.Context, email string, at time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE users SET last_sent_at = ?, updated_at = ? WHERE email = ?`,
		formatTime(at), formatTime(at), email,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update last sent %s", email)
	}
	return checkRowsAffected(res, "user", email)
}

func (s *SQLiteStore) ClaimDelivery(ctx context.Context, email string, now time.Time, window, lease time.Duration) (bool, error) {
	nowTS := formatTime(now)
	res, err := s.db.ExecContext(ctx,
		`UPDATE users SET claimed_until = ?, updated_at = ?
		 WHERE email = ? AND is_verified = 1
		   AND (last_sent_at IS NULL OR last_sent_at <= ?)
		   AND (claimed_until IS NULL OR claimed_until <= ?)`,
		formatTime(now.Add(lease)), nowTS, email, formatTime(now.Add(-window)), nowTS,
	)
	if err != nil {
		return false, eris.Wrapf(err, "sqlite: claim delivery %s", email)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, eris.Wrap(err, "sqlite: rows affected")
	}
	return n == 1, nil
}

func (s *SQLiteStore) CompleteDelivery(ctx context.Context, email string, now time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE users SET last_sent_at = ?, claimed_until = NULL, updated_at = ? WHERE email = ?`,
		formatTime(now), formatTime(now), email,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: complete delivery %s", email)
	}
	return checkRowsAffected(res, "user", email)
}

func (s *SQLiteStore) ReleaseDelivery(ctx context.Context, email string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE users SET claimed_until = NULL WHERE email = ?`,
		email,
	)
	return eris.Wrapf(err, "sqlite: release delivery %s", email)
}

func (s *SQLiteStore) InsertArticle(ctx context.Context, a model.Article) (bool, error) {
	processed := a.ProcessedAt
	if processed.IsZero() {
		processed = time.Now()
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO articles
		 (id, title, link, summary, full_text, source_name, topic, published, processed_at, is_summarized)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.Title, a.Link, a.Summary, a.FullText, a.SourceName, a.Topic,
		nullTime(a.Published), formatTime(processed), a.IsSummarized,
	)
	if err != nil {
		return false, eris.Wrapf(err, "sqlite: insert article %s", a.ID)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, eris.Wrap(err, "sqlite: rows affected")
	}
	return n == 1, nil
}

func (s *SQLiteStore) ArticleExists(ctx context.Context, id string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM articles WHERE id = ?`, id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, eris.Wrapf(err, "sqlite: article exists %s", id)
	}
	return true, nil
}

func (s *SQLiteStore) ListUnsummarized(ctx context.Context, topic string, limit int) ([]model.Article, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, title, link, summary, full_text, source_name, topic, published, processed_at, is_summarized
		 FROM articles WHERE topic = ? AND is_summarized = 0
		 ORDER BY processed_at, id LIMIT ?`,
		topic, limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list unsummarized")
	}
	defer rows.Close()

	var out []model.Article
	for rows.Next() {
		a, err := scanArticle(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list unsummarized iterate")
}

func (s *SQLiteStore) MarkArticlesSummarized(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	_, err := s.db.ExecContext(ctx,
		`UPDATE articles SET is_summarized = 1 WHERE id IN (`+placeholders+`)`,
		args...,
	)
	return eris.Wrap(err, "sqlite: mark articles summarized")
}

// helpers

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Wrapf(ErrNotFound, "%s %s", entity, id)
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanUser(row scannable) (*model.User, error) {
	var u model.User
	var topicsJSON string
	var otpCreated, lastSent sql.NullString

	if err := row.Scan(&u.Email, &topicsJSON, &u.OTP, &otpCreated, &u.IsVerified, &lastSent); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(topicsJSON), &u.Topics); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal topics")
	}
	var err error
	if otpCreated.Valid {
		if u.OTPCreatedAt, err = parseTime(otpCreated.String); err != nil {
			return nil, err
		}
	}
	if u.LastSentAt, err = parseNullTime(lastSent); err != nil {
		return nil, err
	}
	return &u, nil
}

func scanArticle(row scannable) (*model.Article, error) {
	var a model.Article
	var published sql.NullString
	var processed string

	err := row.Scan(&a.ID, &a.Title, &a.Link, &a.Summary, &a.FullText, &a.SourceName, &a.Topic,
		&published, &processed, &a.IsSummarized)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan article")
	}
	if a.Published, err = parseNullTime(published); err != nil {
		return nil, err
	}
	if a.ProcessedAt, err = parseTime(processed); err != nil {
		return nil, err
	}
	return &a, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(sqliteTimeLayout)
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(sqliteTimeLayout, s)
	if err != nil {
		return time.Time{}, eris.Wrapf(err, "sqlite: parse time %q", s)
	}
	return t.UTC(), nil
}

func parseNullTime(ns sql.NullString) (*time.Time, error) {
	if !ns.Valid || ns.String == "" {
		return nil, nil
	}
	t, err := parseTime(ns.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
