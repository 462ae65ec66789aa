// Package apperrors defines the typed error taxonomy shared by the sync
// engine, the vector repository, and the retrieval chain.
package apperrors

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind is a machine-readable error category.
type Kind string

const (
	// KindMalformedMessage marks a single message that cannot be normalized.
	// It is counted and skipped, never fatal for a sync run.
	KindMalformedMessage Kind = "malformed_message"

	// KindTransientProvider marks a retryable provider failure (rate limit,
	// 5xx, timeout). The retry policy backs off on these.
	KindTransientProvider Kind = "transient_provider_error"

	// KindRepositoryUnavailable marks a vector repository outage. The current
	// batch aborts and the checkpoint stays put.
	KindRepositoryUnavailable Kind = "repository_unavailable"

	// KindSyncAlreadyRunning rejects a second sync for a mailbox that already
	// has an active run. No side effects.
	KindSyncAlreadyRunning Kind = "sync_already_running"

	// KindHistoryExpired marks a sync cursor the provider no longer accepts.
	// The engine falls back to a full mailbox walk.
	KindHistoryExpired Kind = "history_expired"

	// KindCitationOutOfBounds marks a model citation outside the retrieved
	// candidate set. Filtered silently, kept as a kind for counters.
	KindCitationOutOfBounds Kind = "citation_out_of_bounds"

	// KindNotFound marks a missing entity (checkpoint, session, message).
	KindNotFound Kind = "not_found"

	// KindInvalidRequest marks bad caller input.
	KindInvalidRequest Kind = "invalid_request"
)

// Error is a categorized error with an optional wrapped cause.
type Error struct {
	Kind    Kind   `json:"code"`
	Message string `json:"message"`
	Err     error  `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the wrapped cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches errors of the same kind, so sentinel-style checks work:
// errors.Is(err, apperrors.SyncAlreadyRunning("")).
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return e.Kind == t.Kind
}

// HTTPStatus maps the kind to a response status for handlers.
func (e *Error) HTTPStatus() int {
	switch e.Kind {
	case KindInvalidRequest, KindMalformedMessage:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindSyncAlreadyRunning:
		return http.StatusConflict
	case KindTransientProvider:
		return http.StatusBadGateway
	case KindRepositoryUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// MalformedMessage builds a malformed-message error for one message id.
func MalformedMessage(messageID, reason string) *Error {
	return &Error{
		Kind:    KindMalformedMessage,
		Message: fmt.Sprintf("malformed message %s: %s", messageID, reason),
	}
}

// TransientProvider wraps a retryable provider failure.
func TransientProvider(op string, err error) *Error {
	return &Error{
		Kind:    KindTransientProvider,
		Message: fmt.Sprintf("transient provider error during %s", op),
		Err:     err,
	}
}

// RepositoryUnavailable wraps a vector repository outage.
func RepositoryUnavailable(err error) *Error {
	return &Error{
		Kind:    KindRepositoryUnavailable,
		Message: "vector repository unavailable",
		Err:     err,
	}
}

// SyncAlreadyRunning rejects a concurrent sync for the mailbox.
func SyncAlreadyRunning(mailboxID string) *Error {
	return &Error{
		Kind:    KindSyncAlreadyRunning,
		Message: fmt.Sprintf("sync already running for mailbox %s", mailboxID),
	}
}

// HistoryExpired marks an incremental cursor rejected by the provider.
func HistoryExpired(cursor string) *Error {
	return &Error{
		Kind:    KindHistoryExpired,
		Message: fmt.Sprintf("history cursor %s expired, full rescan required", cursor),
	}
}

// CitationOutOfBounds marks a citation outside the candidate set.
func CitationOutOfBounds(messageID string) *Error {
	return &Error{
		Kind:    KindCitationOutOfBounds,
		Message: fmt.Sprintf("citation %s not in retrieved candidates", messageID),
	}
}

// NotFound builds a missing-entity error.
func NotFound(what string) *Error {
	return &Error{
		Kind:    KindNotFound,
		Message: fmt.Sprintf("%s not found", what),
	}
}

// InvalidRequest builds a bad-input error.
func InvalidRequest(message string) *Error {
	return &Error{
		Kind:    KindInvalidRequest,
		Message: message,
	}
}

// IsKind reports whether err (or anything it wraps) carries the given kind.
func IsKind(err error, kind Kind) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Kind == kind
}

// KindOf returns the kind carried by err, or "" when err is untyped.
func KindOf(err error) Kind {
	var e *Error
	if !errors.As(err, &e) {
		return ""
	}
	return e.Kind
}
