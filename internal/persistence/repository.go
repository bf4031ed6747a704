// Package persistence contains the technology-agnostic repository contracts
// and the transactional repository bound to a persistence Context.
package persistence

import "context"

// Repository defines what every repository does regardless of the
// persistence technology behind it. T is the entity kind, K its key.
type Repository[T Identifiable[K], K comparable] interface {
	// Store persists a new entity. A tracked entity yields
	// ErrEntityAlreadyExists, unless the implementation documents a
	// different DuplicatePolicy.
	Store(ctx context.Context, entity T) error
	// Update writes the state of a tracked entity, or fails with ErrEntityNotPersisted.
	Update(ctx context.Context, entity T) error
	// Delete removes a tracked entity, or fails with ErrEntityNotPersisted.
	Delete(ctx context.Context, entity T) error
	// IsPersisted reports whether this instance is tracked, not merely whether
	// an entity with an equal key exists.
	IsPersisted(entity T) bool
	// GetByKey returns the entity with the given key. A missing entity is
	// reported with false, not an error.
	GetByKey(ctx context.Context, key K) (T, bool, error)
	// FindAll returns every entity of the kind, in no particular order.
	FindAll(ctx context.Context) ([]T, error)
	// Count returns len(FindAll).
	Count(ctx context.Context) (int, error)
}

// TransactionalRepository adds explicit transaction control and structured
// queries to Repository.
type TransactionalRepository[T Identifiable[K], K comparable] interface {
	Repository[T, K]

	// BeginTransaction fails with ErrTransactionActive when a transaction is already active.
	BeginTransaction(ctx context.Context) error
	// Commit fails with ErrNoTransaction when no transaction is active, and
	// with ErrCommit when the context fails to commit.
	Commit(ctx context.Context) error
	// Rollback discards pending changes. Fails with ErrNoTransaction when no
	// transaction is active.
	Rollback(ctx context.Context) error
	// SetAutoCommit toggles the implicit transaction around Store. It is
	// refused with ErrAutoCommitInTransaction while a transaction is active.
	SetAutoCommit(enabled bool) error
	AutoCommit() bool
	TransactionState() TxState
	// Close releases the persistence context. It is terminal.
	Close(ctx context.Context) error

	QueryBuilder() *Query[T]
	Find(ctx context.Context, q *Query[T]) ([]T, error)
	// Get returns the first match of q, or false when nothing matches.
	Get(ctx context.Context, q *Query[T]) (T, bool, error)
}

// TxState is the lifecycle state of the transaction owned by a repository.
type TxState int

const (
	TxInactive TxState = iota
	TxActive
	TxCompleted
)

func (s TxState) String() string {
	switch s {
	case TxInactive:
		return "inactive"
	case TxActive:
		return "active"
	case TxCompleted:
		return "completed"
	default:
		return "unknown"
	}
}

// DuplicatePolicy decides what Store does with an entity that is already tracked.
type DuplicatePolicy int

const (
	// RedirectToUpdate turns Store of a tracked entity into Update.
	RedirectToUpdate DuplicatePolicy = iota
	// FailOnDuplicate makes Store of a tracked entity fail with ErrEntityAlreadyExists.
	FailOnDuplicate
)

func (p DuplicatePolicy) String() string {
	if p == FailOnDuplicate {
		return "fail"
	}
	return "redirect"
}

// ParseDuplicatePolicy accepts "redirect" and "fail".
func ParseDuplicatePolicy(s string) (DuplicatePolicy, bool) {
	switch s {
	case "redirect", "":
		return RedirectToUpdate, true
	case "fail":
		return FailOnDuplicate, true
	default:
		return RedirectToUpdate, false
	}
}
