package persistence

import (
	"errors"
	"fmt"
)

// Reason is the closed set of failures a repository operation reports.
type Reason int

const (
	// EntityAlreadyExists: store attempted on an entity the context already tracks.
	EntityAlreadyExists Reason = iota + 1
	// EntityNotPersisted: update or delete attempted on an untracked entity.
	EntityNotPersisted
	// CommitError: the underlying commit failed.
	CommitError
)

var reasonCodes = map[Reason]string{
	EntityAlreadyExists: "ENTITY_ALREADY_EXISTS",
	EntityNotPersisted:  "ENTITY_NOT_PERSISTED",
	CommitError:         "COMMIT_ERROR",
}

var reasonMessages = map[Reason]string{
	EntityAlreadyExists: "the entity is already persisted and cannot be inserted again",
	EntityNotPersisted:  "the entity is not persisted, so it cannot be updated nor deleted",
	CommitError:         "there was an error on the commit operation",
}

// Code returns the stable machine-readable code, usable as a message lookup key.
func (r Reason) Code() string {
	if c, ok := reasonCodes[r]; ok {
		return c
	}
	return fmt.Sprintf("REASON_%d", int(r))
}

// Message returns the fixed human-readable message of the reason.
func (r Reason) Message() string {
	if m, ok := reasonMessages[r]; ok {
		return m
	}
	return "unknown persistence failure"
}

func (r Reason) String() string { return r.Code() }

// Error is returned by repository operations that fail with a Reason.
// Err holds the storage cause of a CommitError and is nil otherwise.
type Error struct {
	Reason Reason
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("persistence: %s: %v", e.Reason.Message(), e.Err)
	}
	return "persistence: " + e.Reason.Message()
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error with the same Reason, so errors.Is(err, ErrCommit)
// holds regardless of the cause.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Reason == e.Reason
}

var (
	ErrEntityAlreadyExists = &Error{Reason: EntityAlreadyExists}
	ErrEntityNotPersisted  = &Error{Reason: EntityNotPersisted}
	ErrCommit              = &Error{Reason: CommitError}
)

// ReasonOf extracts the Reason carried by err, if any.
func ReasonOf(err error) (Reason, bool) {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Reason, true
	}
	return 0, false
}

// Misuse of the transaction lifecycle or of a closed repository. These are
// programmer errors and never carry a Reason.
var (
	ErrTransactionActive       = errors.New("persistence: transaction already active")
	ErrNoTransaction           = errors.New("persistence: no active transaction")
	ErrAutoCommitInTransaction = errors.New("persistence: auto-commit cannot change inside an active transaction")
	ErrClosed                  = errors.New("persistence: repository is closed")
)
