package delivery

import "time"

// DefaultWindow is the minimum spacing between two digests to one user.
const DefaultWindow = 24 * time.Hour

// Eligible reports whether a user last sent at lastSent may receive a digest
// at now. A user never sent to is always eligible. Times compare in UTC.
func Eligible(lastSent *time.Time, now time.Time, window time.Duration) bool {
	if lastSent == nil {
		return true
	}
	return now.UTC().Sub(lastSent.UTC()) >= window
}
