// Package subscription implements the subscriber lifecycle: submission with
// a one-time code, verification, and state lookup.
package subscription

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/digest-cli/internal/model"
	"github.com/sells-group/digest-cli/internal/store"
)

// Verification failures. Verify wraps them in a model.Failure of kind
// auth_failure.
var (
	ErrNotFound = eris.New("subscription: no subscription for email")
	ErrMismatch = eris.New("subscription: code does not match")
	ErrExpired  = eris.New("subscription: code expired")
)

// DefaultOTPTTL is how long a pending code stays valid.
const DefaultOTPTTL = 10 * time.Minute

const (
	otpMin   = 100000
	otpRange = 900000
)

// Store is the subset of store.Store the machine needs.
type Store interface {
	UpsertUser(ctx context.Context, email string, topics []string, otp string, now time.Time) error
	GetUser(ctx context.Context, email string) (*model.User, error)
	MarkVerified(ctx context.Context, email string) error
}

// Machine moves subscribers through Unregistered, PendingVerification and
// Verified.
type Machine struct {
	store Store
	ttl   time.Duration
	now   func() time.Time
	otp   func() (string, error)
}

// NewMachine creates a Machine. ttl <= 0 disables code expiry.
func NewMachine(st Store, ttl time.Duration) *Machine {
	return &Machine{store: st, ttl: ttl, now: time.Now, otp: GenerateOTP}
}

// GenerateOTP returns a uniformly random six-digit code from crypto/rand.
func GenerateOTP() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(otpRange))
	if err != nil {
		return "", eris.Wrap(err, "subscription: generate otp")
	}
	return fmt.Sprintf("%06d", n.Int64()+otpMin), nil
}

// Submit stores topics for email with a fresh code and returns the code.
// Any previous code stops working and the subscriber is pending again.
func (m *Machine) Submit(ctx context.Context, email string, topics []string) (string, error) {
	code, err := m.otp()
	if err != nil {
		return "", err
	}
	if err := m.store.UpsertUser(ctx, email, topics, code, m.now().UTC()); err != nil {
		return "", eris.Wrap(err, "subscription: submit")
	}
	zap.L().Info("subscription: submitted",
		zap.String("email", email),
		zap.Int("topics", len(topics)),
	)
	return code, nil
}

// Verify checks code against the stored one. A verified subscriber
// presenting its current code again succeeds regardless of age.
func (m *Machine) Verify(ctx context.Context, email, code string) error {
	u, err := m.store.GetUser(ctx, email)
	if errors.Is(err, store.ErrNotFound) {
		return model.NewFailure(model.KindAuth, email, ErrNotFound)
	}
	if err != nil {
		return eris.Wrap(err, "subscription: verify")
	}

	if subtle.ConstantTimeCompare([]byte(u.OTP), []byte(code)) != 1 {
		return model.NewFailure(model.KindAuth, email, ErrMismatch)
	}
	if u.IsVerified {
		return nil
	}
	if m.ttl > 0 && m.now().UTC().Sub(u.OTPCreatedAt) > m.ttl {
		return model.NewFailure(model.KindAuth, email, ErrExpired)
	}

	if err := m.store.MarkVerified(ctx, email); err != nil {
		return eris.Wrap(err, "subscription: mark verified")
	}
	zap.L().Info("subscription: verified", zap.String("email", email))
	return nil
}

// State reports where email is in the lifecycle.
func (m *Machine) State(ctx context.Context, email string) (model.SubscriptionState, error) {
	u, err := m.store.GetUser(ctx, email)
	if errors.Is(err, store.ErrNotFound) {
		return model.StateUnregistered, nil
	}
	if err != nil {
		return "", eris.Wrap(err, "subscription: state")
	}
	return u.State(), nil
}
