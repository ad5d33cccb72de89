package model

import "time"

// SubscriptionState is the lifecycle position of a subscriber.
type SubscriptionState string

const (
	StateUnregistered        SubscriptionState = "unregistered"
	StatePendingVerification SubscriptionState = "pending_verification"
	StateVerified            SubscriptionState = "verified"
)

// User is a digest subscriber keyed by email.
type User struct {
	Email        string     `json:"email"`
	Topics       []string   `json:"topics"`
	OTP          string     `json:"-"`
	OTPCreatedAt time.Time  `json:"otp_created_at"`
	IsVerified   bool       `json:"is_verified"`
	LastSentAt   *time.Time `json:"last_sent_at,omitempty"`
}

// State derives the subscription state from the stored flags. A nil user is
// unregistered.
func (u *User) State() SubscriptionState {
	switch {
	case u == nil:
		return StateUnregistered
	case u.IsVerified:
		return StateVerified
	default:
		return StatePendingVerification
	}
}
