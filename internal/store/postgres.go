package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/digest-cli/internal/db"
	"github.com/sells-group/digest-cli/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

var articleColumns = []string{
	"id", "title", "link", "summary", "full_text", "source_name", "topic", "published", "processed_at", "is_summarized",
}

// preparedStatements are prepared on each new connection.
var preparedStatements = map[string]string{
	"get_user":       `SELECT email, topics, otp, otp_created_at, is_verified, last_sent_at FROM users WHERE email = $1`,
	"insert_article": db.InsertIgnoreSQL("articles", articleColumns, []string{"id"}),
	"article_exists": `SELECT 1 FROM articles WHERE id = $1`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(1)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS users (
	email          TEXT PRIMARY KEY,
	topics         JSONB NOT NULL DEFAULT '[]'::jsonb,
	otp            TEXT NOT NULL DEFAULT '',
	otp_created_at TIMESTAMPTZ,
	is_verified    BOOLEAN NOT NULL DEFAULT false,
	last_sent_at   TIMESTAMPTZ,
	claimed_until  TIMESTAMPTZ,
	created_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at     TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS articles (
	id            TEXT PRIMARY KEY,
	title         TEXT NOT NULL DEFAULT '',
	link          TEXT NOT NULL DEFAULT '',
	summary       TEXT NOT NULL DEFAULT '',
	full_text     TEXT NOT NULL DEFAULT '',
	source_name   TEXT NOT NULL DEFAULT '',
	topic         TEXT NOT NULL DEFAULT '',
	published     TIMESTAMPTZ,
	processed_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	is_summarized BOOLEAN NOT NULL DEFAULT false
);

CREATE INDEX IF NOT EXISTS idx_users_verified ON users(is_verified) WHERE is_verified;
CREATE INDEX IF NOT EXISTS idx_articles_topic_summarized ON articles(topic, is_summarized);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) UpsertUser(ctx context.Context, email string, topics []string, otp string, now time.Time) error {
	topicsJSON, err := json.Marshal(topics)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal topics")
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO users (email, topics, otp, otp_created_at, is_verified, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, false, $4, $4)
		 ON CONFLICT (email) DO UPDATE SET
			topics = EXCLUDED.topics,
			otp = EXCLUDED.otp,
			otp_created_at = EXCLUDED.otp_created_at,
			is_verified = false,
			updated_at = EXCLUDED.updated_at`,
		email, topicsJSON, otp, now.UTC(),
	)
	return eris.Wrapf(err, "postgres: upsert user %s", email)
}

func (s *PostgresStore) GetUser(ctx context.Context, email string) (*model.User, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT email, topics, otp, otp_created_at, is_verified, last_sent_at FROM users WHERE email = $1`,
		email,
	)
	u, err := scanPgUser(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "user %s", email)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get user %s", email)
	}
	return u, nil
}

func (s *PostgresStore) MarkVerified(ctx context.Context, email string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE users SET is_verified = true, updated_at = now() WHERE email = $1`,
		email,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: mark verified %s", email)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "user %s", email)
	}
	return nil
}

func (s *PostgresStore) ListVerifiedUsers(ctx context.Context) ([]model.User, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT email, topics, otp, otp_created_at, is_verified, last_sent_at
		 FROM users WHERE is_verified ORDER BY email`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list verified users")
	}
	defer rows.Close()

	var users []model.User
	for rows.Next() {
		u, err := scanPgUser(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan user")
		}
		users = append(users, *u)
	}
	return users, eris.Wrap(rows.Err(), "postgres: list verified users iterate")
}

func (s *PostgresStore) UpdateLastSent(ctx context.Context, email string, at time.Time) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE users SET last_sent_at = $1, updated_at = now() WHERE email = $2`,
		at.UTC(), email,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update last sent %s", email)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "user %s", email)
	}
	return nil
}

func (s *PostgresStore) ClaimDelivery(ctx context.Context, email string, now time.Time, window, lease time.Duration) (bool, error) {
	now = now.UTC()
	tag, err := s.pool.Exec(ctx,
		`UPDATE users SET claimed_until = $1, updated_at = $2
		 WHERE email = $3 AND is_verified
		   AND (last_sent_at IS NULL OR last_sent_at <= $4)
		   AND (claimed_until IS NULL OR claimed_until <= $2)`,
		now.Add(lease), now, email, now.Add(-window),
	)
	if err != nil {
		return false, eris.Wrapf(err, "postgres: claim delivery %s", email)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *PostgresStore) CompleteDelivery(ctx context.Context, email string, now time.Time) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE users SET last_sent_at = $1, claimed_until = NULL, updated_at = $1 WHERE email = $2`,
		now.UTC(), email,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: complete delivery %s", email)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "user %s", email)
	}
	return nil
}

func (s *PostgresStore) ReleaseDelivery(ctx context.Context, email string) error {
	_, err := s.pool.Exec(ctx, `UPDATE users SET claimed_until = NULL WHERE email = $1`, email)
	return eris.Wrapf(err, "postgres: release delivery %s", email)
}

func (s *PostgresStore) InsertArticle(ctx context.Context, a model.Article) (bool, error) {
	processed := a.ProcessedAt
	if processed.IsZero() {
		processed = time.Now()
	}
	tag, err := s.pool.Exec(ctx, db.InsertIgnoreSQL("articles", articleColumns, []string{"id"}),
		a.ID, a.Title, a.Link, a.Summary, a.FullText, a.SourceName, a.Topic,
		a.Published, processed.UTC(), a.IsSummarized,
	)
	if err != nil {
		return false, eris.Wrapf(err, "postgres: insert article %s", a.ID)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *PostgresStore) ArticleExists(ctx context.Context, id string) (bool, error) {
	var one int
	err := s.pool.QueryRow(ctx, `SELECT 1 FROM articles WHERE id = $1`, id).Scan(&one)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, eris.Wrapf(err, "postgres: article exists %s", id)
	}
	return true, nil
}

func (s *PostgresStore) ListUnsummarized(ctx context.Context, topic string, limit int) ([]model.Article, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, title, link, summary, full_text, source_name, topic, published, processed_at, is_summarized
		 FROM articles WHERE topic = $1 AND NOT is_summarized
		 ORDER BY processed_at, id LIMIT $2`,
		topic, limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list unsummarized")
	}
	defer rows.Close()

	var out []model.Article
	for rows.Next() {
		var a model.Article
		if err := rows.Scan(&a.ID, &a.Title, &a.Link, &a.Summary, &a.FullText, &a.SourceName, &a.Topic,
			&a.Published, &a.ProcessedAt, &a.IsSummarized); err != nil {
			return nil, eris.Wrap(err, "postgres: scan article")
		}
		a.ProcessedAt = a.ProcessedAt.UTC()
		out = append(out, a)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list unsummarized iterate")
}

func (s *PostgresStore) MarkArticlesSummarized(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := s.pool.Exec(ctx, `UPDATE articles SET is_summarized = true WHERE id = ANY($1)`, ids)
	return eris.Wrap(err, "postgres: mark articles summarized")
}

func scanPgUser(row pgx.Row) (*model.User, error) {
	var u model.User
	var topicsJSON []byte
	var otpCreated *time.Time

	if err := row.Scan(&u.Email, &topicsJSON, &u.OTP, &otpCreated, &u.IsVerified, &u.LastSentAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(topicsJSON, &u.Topics); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal topics")
	}
	if otpCreated != nil {
		u.OTPCreatedAt = otpCreated.UTC()
	}
	if u.LastSentAt != nil {
		t := u.LastSentAt.UTC()
		u.LastSentAt = &t
	}
	return &u, nil
}
