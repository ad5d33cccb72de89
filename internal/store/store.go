// Package store persists subscribers and cached articles.
package store

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/digest-cli/internal/model"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = eris.New("store: not found")

// Store defines the persistence interface for subscribers and articles.
// All times are UTC.
type Store interface {
	// Subscribers

	// UpsertUser creates or overwrites a subscription with a fresh OTP and
	// clears verification. last_sent_at is preserved.
	UpsertUser(ctx context.Context, email string, topics []string, otp string, now time.Time) error
	GetUser(ctx context.Context, email string) (*model.User, error)
	MarkVerified(ctx context.Context, email string) error
	ListVerifiedUsers(ctx context.Context) ([]model.User, error)
	UpdateLastSent(ctx context.Context, email string, at time.Time) error

	// Delivery claims

	// ClaimDelivery takes a send lease for a verified user whose last send is
	// at least window ago and who holds no live lease. It reports whether the
	// lease was taken; the check and the write are one statement.
	ClaimDelivery(ctx context.Context, email string, now time.Time, window, lease time.Duration) (bool, error)
	// CompleteDelivery stamps last_sent_at and clears the lease.
	CompleteDelivery(ctx context.Context, email string, now time.Time) error
	// ReleaseDelivery clears the lease without touching last_sent_at.
	ReleaseDelivery(ctx context.Context, email string) error

	// Articles

	// InsertArticle inserts a if its ID is new and reports whether it did.
	InsertArticle(ctx context.Context, a model.Article) (bool, error)
	ArticleExists(ctx context.Context, id string) (bool, error)
	ListUnsummarized(ctx context.Context, topic string, limit int) ([]model.Article, error)
	MarkArticlesSummarized(ctx context.Context, ids []string) error

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
