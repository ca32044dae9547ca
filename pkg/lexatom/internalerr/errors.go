package internalerr

import "errors"

// Sentinel errors for common cases
var (
	ErrNotFound      = errors.New("not found")
	ErrInvalidInput  = errors.New("invalid input")
	ErrAlreadyExists = errors.New("already exists")
	ErrInvalidConfig = errors.New("invalid configuration")
)

// Errors raised by the symbolic core. ErrMalformedTerm, ErrUnknownAtomReference
// and ErrProtocolViolation are hard failures and are never retried.
var (
	ErrMalformedTerm        = errors.New("malformed term")
	ErrUnknownAtomReference = errors.New("unknown atom reference")
	ErrProtocolViolation    = errors.New("reasoner protocol violation")
	ErrReasoningFailure     = errors.New("goal did not hold")
	ErrReasoningError       = errors.New("reasoner reported an error")
	ErrRetryCeilingReached  = errors.New("retry ceiling reached")
)
