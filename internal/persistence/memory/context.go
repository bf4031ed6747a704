package memory

import (
	"context"
	"fmt"

	"txrepo/internal/persistence"
)

type opKind int

const (
	opInsert opKind = iota
	opUpdate
	opDelete
)

type op[T any, K comparable] struct {
	kind   opKind
	key    K
	entity T
}

// Context is a unit of work over a Store. Writes are journaled and reach the
// store when the transaction commits; writes made with no active transaction
// join the next one. A Context is not safe for concurrent use.
type Context[T persistence.Identifiable[K], K comparable] struct {
	store   *Store[T, K]
	tracked map[K]T
	journal []op[T, K]
	active  bool
	closed  bool
}

var _ persistence.Context[*persistence.AutoID, int64] = (*Context[*persistence.AutoID, int64])(nil)

func (c *Context[T, K]) Attach(_ context.Context, entity T) error {
	if c.closed {
		return ErrContextClosed
	}
	if c.store.mapper.AutoKey() && !persistence.HasKey[T, K](entity) {
		key, err := c.store.nextKey()
		if err != nil {
			return err
		}
		entity.SetID(key)
	} else if c.store.mapper.AutoKey() {
		c.store.observeKey(entity.GetID())
	}
	key := entity.GetID()
	if _, ok := c.tracked[key]; ok {
		return fmt.Errorf("%w: %v", ErrAlreadyAttached, key)
	}
	c.tracked[key] = entity
	c.journal = append(c.journal, op[T, K]{kind: opInsert, key: key, entity: entity})
	return nil
}

func (c *Context[T, K]) Merge(_ context.Context, entity T) error {
	if c.closed {
		return ErrContextClosed
	}
	if !c.Contains(entity) {
		return ErrNotAttached
	}
	c.journal = append(c.journal, op[T, K]{kind: opUpdate, key: entity.GetID(), entity: entity})
	return nil
}

func (c *Context[T, K]) Remove(_ context.Context, entity T) error {
	if c.closed {
		return ErrContextClosed
	}
	if !c.Contains(entity) {
		return ErrNotAttached
	}
	key := entity.GetID()
	delete(c.tracked, key)
	c.journal = append(c.journal, op[T, K]{kind: opDelete, key: key, entity: entity})
	return nil
}

// Contains reports whether this exact instance is tracked.
func (c *Context[T, K]) Contains(entity T) bool {
	if c.closed {
		return false
	}
	cur, ok := c.tracked[entity.GetID()]
	return ok && any(cur) == any(entity)
}

// FindByKey returns the tracked instance for key, or loads and tracks the
// committed row. Rows removed in this unit of work are absent.
func (c *Context[T, K]) FindByKey(_ context.Context, key K) (T, bool, error) {
	var zero T
	if c.closed {
		return zero, false, ErrContextClosed
	}
	if e, ok := c.tracked[key]; ok {
		return e, true, nil
	}
	if c.pendingDelete(key) {
		return zero, false, nil
	}
	row, ok := c.store.row(key)
	if !ok {
		return zero, false, nil
	}
	e, err := c.store.materialize(row)
	if err != nil {
		return zero, false, err
	}
	c.tracked[key] = e
	return e, true, nil
}

// ExecuteQuery evaluates q over the committed rows as seen by this unit of
// work: pending deletes are hidden and tracked entities contribute their
// current state.
func (c *Context[T, K]) ExecuteQuery(_ context.Context, q *persistence.Query[T]) ([]T, error) {
	if c.closed {
		return nil, ErrContextClosed
	}
	keys, rows := c.store.snapshot()
	for _, o := range c.journal {
		if _, ok := rows[o.key]; ok || o.kind != opInsert {
			continue
		}
		if _, ok := c.tracked[o.key]; ok {
			rows[o.key] = nil
			keys = append(keys, o.key)
		}
	}

	columns := c.store.mapper.Columns()
	var matched []candidate[T]
	for _, key := range keys {
		if c.pendingDelete(key) {
			continue
		}
		entity, tracked := c.tracked[key]
		row := rows[key]
		if tracked {
			row = c.store.mapper.Values(entity)
		}
		rec := newRecord(columns, row)
		ok, err := matchAll(q.Predicates(), rec)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		if !tracked {
			entity, err = c.store.materialize(row)
			if err != nil {
				return nil, err
			}
		}
		matched = append(matched, candidate[T]{entity: entity, rec: rec, tracked: tracked})
	}

	if err := sortCandidates(matched, q.Ordering(), columns); err != nil {
		return nil, err
	}
	matched = paginate(matched, q)

	out := make([]T, 0, len(matched))
	for _, m := range matched {
		if !m.tracked {
			c.tracked[m.entity.GetID()] = m.entity
		}
		out = append(out, m.entity)
	}
	return out, nil
}

func (c *Context[T, K]) NewTransaction() persistence.Transaction {
	return &transaction[T, K]{c: c}
}

func (c *Context[T, K]) BuildQuery() *persistence.Query[T] {
	return persistence.NewQuery[T]()
}

// Close discards pending writes and detaches everything.
func (c *Context[T, K]) Close() error {
	if c.closed {
		return ErrContextClosed
	}
	c.reset()
	c.closed = true
	return nil
}

func (c *Context[T, K]) pendingDelete(key K) bool {
	for i := len(c.journal) - 1; i >= 0; i-- {
		if c.journal[i].key == key {
			return c.journal[i].kind == opDelete
		}
	}
	return false
}

// reset drops the journal and detaches every tracked entity.
func (c *Context[T, K]) reset() {
	c.journal = nil
	c.tracked = make(map[K]T)
	c.active = false
}

type transaction[T persistence.Identifiable[K], K comparable] struct {
	c *Context[T, K]
}

func (t *transaction[T, K]) Begin(context.Context) error {
	if t.c.closed {
		return ErrContextClosed
	}
	if t.c.active {
		return ErrTxActive
	}
	t.c.active = true
	return nil
}

// Commit applies the journal atomically. On failure nothing is applied and
// the unit of work is reset as on rollback.
func (t *transaction[T, K]) Commit(context.Context) error {
	if t.c.closed {
		return ErrContextClosed
	}
	if !t.c.active {
		return ErrTxNotActive
	}
	if err := t.c.store.apply(t.c.journal); err != nil {
		t.c.reset()
		return err
	}
	t.c.journal = nil
	t.c.active = false
	return nil
}

func (t *transaction[T, K]) Rollback(context.Context) error {
	if t.c.closed {
		return ErrContextClosed
	}
	if !t.c.active {
		return ErrTxNotActive
	}
	t.c.reset()
	return nil
}
