package persistence

import "context"

// Transaction is the handle a persistence context hands out for its unit of work.
type Transaction interface {
	Begin(ctx context.Context) error
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// Context is the persistence context a TxRepository is bound to. It tracks
// which entities are attached for the current unit of work and executes
// structured queries against the backing store.
//
// Implementations live in the memory and sqlstore subpackages.
type Context[T Identifiable[K], K comparable] interface {
	// Attach starts tracking a new entity and schedules its insertion.
	Attach(ctx context.Context, entity T) error
	// Merge schedules the write of a tracked entity's current state.
	Merge(ctx context.Context, entity T) error
	// Remove stops tracking an entity and schedules its deletion.
	Remove(ctx context.Context, entity T) error
	// Contains reports whether this exact instance is tracked.
	Contains(entity T) bool
	// FindByKey returns the entity with the given key, or false when absent.
	FindByKey(ctx context.Context, key K) (T, bool, error)
	ExecuteQuery(ctx context.Context, q *Query[T]) ([]T, error)
	NewTransaction() Transaction
	BuildQuery() *Query[T]
	Close() error
}

// Mapper describes how an entity kind maps onto a row. Columns lists the key
// column first; Values and Fields are aligned with Columns.
type Mapper[T Identifiable[K], K comparable] interface {
	Table() string
	KeyColumn() string
	Columns() []string
	// AutoKey reports whether the store assigns keys to entities inserted without one.
	AutoKey() bool
	New() T
	// Values returns the column values of e.
	Values(e T) []any
	// Fields returns pointers into e, used as scan targets.
	Fields(e T) []any
}
