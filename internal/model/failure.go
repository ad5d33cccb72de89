package model

import (
	"errors"
	"fmt"
)

// FailureKind classifies an error by how it propagates.
type FailureKind string

const (
	// KindValidation is a rejected topic or malformed request; shown to the submitter.
	KindValidation FailureKind = "validation_failure"
	// KindTransientFetch is a search or scrape failure; absorbed as an empty result.
	KindTransientFetch FailureKind = "transient_fetch_failure"
	// KindSynthesis is an LLM failure; absorbed as an error-marker summary.
	KindSynthesis FailureKind = "synthesis_failure"
	// KindDelivery is a mail dispatch failure; surfaced, no state mutation.
	KindDelivery FailureKind = "delivery_failure"
	// KindAuth is an OTP verification failure.
	KindAuth FailureKind = "auth_failure"
	// KindConfig aborts the whole run.
	KindConfig FailureKind = "config_failure"
	// KindUnknown is returned by KindOf for errors outside the taxonomy.
	KindUnknown FailureKind = "unknown"
)

// Failure is an error tagged with its FailureKind.
type Failure struct {
	Kind   FailureKind
	Detail string
	Err    error
}

// NewFailure builds a Failure wrapping err (which may be nil).
func NewFailure(kind FailureKind, detail string, err error) *Failure {
	return &Failure{Kind: kind, Detail: detail, Err: err}
}

func (f *Failure) Error() string {
	switch {
	case f.Err != nil && f.Detail != "":
		return fmt.Sprintf("%s: %s: %v", f.Kind, f.Detail, f.Err)
	case f.Err != nil:
		return fmt.Sprintf("%s: %v", f.Kind, f.Err)
	default:
		return fmt.Sprintf("%s: %s", f.Kind, f.Detail)
	}
}

func (f *Failure) Unwrap() error {
	return f.Err
}

// KindOf returns the FailureKind of the first Failure in err's chain.
func KindOf(err error) FailureKind {
	if err == nil {
		return ""
	}
	var f *Failure
	if errors.As(err, &f) {
		return f.Kind
	}
	return KindUnknown
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind FailureKind) bool {
	return KindOf(err) == kind
}
