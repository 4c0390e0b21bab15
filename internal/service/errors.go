package service

import (
	"errors"
	"fmt"
)

// ErrorKind tags an access-control outcome. Validation kinds are expected,
// user-facing results; infrastructure kinds are logged server-side and
// surfaced as a generic retry message.
type ErrorKind string

const (
	// Beta code validation
	KindInvalidCode       ErrorKind = "INVALID_CODE"
	KindCodeDisabled      ErrorKind = "CODE_DISABLED"
	KindCodeExpired       ErrorKind = "CODE_EXPIRED"
	KindUsageLimitReached ErrorKind = "USAGE_LIMIT_REACHED"
	KindAlreadyRedeemed   ErrorKind = "ALREADY_REDEEMED"
	KindBetaFull          ErrorKind = "BETA_FULL"

	// Wave allocation
	KindWaveClosed     ErrorKind = "WAVE_CLOSED"
	KindDuplicateEmail ErrorKind = "DUPLICATE_EMAIL"

	// Rate limiting
	KindRateLimitExceeded ErrorKind = "RATE_LIMIT_EXCEEDED"

	// Infrastructure
	KindStoreUnavailable ErrorKind = "STORE_UNAVAILABLE"
	KindContention       ErrorKind = "CONTENTION"
)

// AccessError carries a kind plus a specific, actionable message for the
// caller.
type AccessError struct {
	Kind    ErrorKind
	Message string
}

func (e *AccessError) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func kindError(kind ErrorKind, message string) *AccessError {
	return &AccessError{Kind: kind, Message: message}
}

// Expected reports whether the error is a normal validation outcome rather
// than a server-side failure.
func (e *AccessError) Expected() bool {
	switch e.Kind {
	case KindStoreUnavailable, KindContention:
		return false
	default:
		return true
	}
}

// AsAccessError unwraps err into an AccessError, if it is one.
func AsAccessError(err error) (*AccessError, bool) {
	var accessErr *AccessError
	if errors.As(err, &accessErr) {
		return accessErr, true
	}
	return nil, false
}
