package engine

import (
	"context"
	"errors"
	"net"
	"strings"
)

// Common errors raised by nodes and collaborators.
var (
	// ErrInvalidInput is returned when a collaborator rejects the request payload.
	ErrInvalidInput = errors.New("invalid input")

	// ErrMalformedResponse is returned when a collaborator's response cannot be parsed.
	ErrMalformedResponse = errors.New("malformed response")

	// ErrUnauthorized is returned on authentication or authorization failures.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrNotFound is returned when a requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrRateLimited is returned when a collaborator rejects the call for rate limiting.
	ErrRateLimited = errors.New("rate limited")

	// ErrUnavailable is returned when a collaborator is temporarily unreachable.
	ErrUnavailable = errors.New("service unavailable")
)

// Class is the retry classification of a node error.
type Class int

const (
	// Permanent errors are not retried.
	Permanent Class = iota
	// Transient errors are retried with backoff.
	Transient
)

// transientSignals are message fragments that mark an untyped error as
// transient. Matching is case-insensitive.
var transientSignals = []string{
	"timeout",
	"timed out",
	"rate limit",
	"429",
	"502",
	"503",
	"connection",
	"temporar",
	"unavailable",
}

// Classify decides whether an error is worth retrying. Typed permanent errors
// win over transient message signals, so a wrapped ErrInvalidInput stays
// permanent even if its message mentions a timeout. Unrecognized errors are
// permanent: retrying an unknown failure usually just burns the budget.
func Classify(err error) Class {
	if err == nil {
		return Permanent
	}

	if errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, ErrMalformedResponse) ||
		errors.Is(err, ErrUnauthorized) ||
		errors.Is(err, ErrNotFound) {
		return Permanent
	}

	if errors.Is(err, ErrRateLimited) || errors.Is(err, ErrUnavailable) {
		return Transient
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return Transient
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return Transient
	}

	msg := strings.ToLower(err.Error())
	for _, signal := range transientSignals {
		if strings.Contains(msg, signal) {
			return Transient
		}
	}
	return Permanent
}

// IsTransient reports whether err classifies as retryable.
func IsTransient(err error) bool {
	return Classify(err) == Transient
}
