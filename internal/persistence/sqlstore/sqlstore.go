// Package sqlstore implements a persistence context over database/sql.
// Statements are built with squirrel; the placeholder format selects the
// dialect (squirrel.Dollar for PostgreSQL, squirrel.Question for SQLite).
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/Masterminds/squirrel"

	"txrepo/internal/persistence"
)

var (
	ErrNoRowsAffected  = errors.New("sqlstore: no rows affected")
	ErrAlreadyAttached = errors.New("sqlstore: another instance with this key is attached")
	ErrNotAttached     = errors.New("sqlstore: entity is not attached")
	ErrTxActive        = errors.New("sqlstore: transaction already active")
	ErrTxNotActive     = errors.New("sqlstore: no active transaction")
	ErrContextClosed   = errors.New("sqlstore: context is closed")
)

// execer is satisfied by both *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Option configures a Context.
type Option func(*options)

type options struct {
	placeholder squirrel.PlaceholderFormat
	txOptions   *sql.TxOptions
}

// WithPlaceholder sets the bind parameter format. Default: squirrel.Dollar.
func WithPlaceholder(p squirrel.PlaceholderFormat) Option {
	return func(o *options) { o.placeholder = p }
}

// WithTxOptions sets the options passed to BeginTx.
func WithTxOptions(opts *sql.TxOptions) Option {
	return func(o *options) { o.txOptions = opts }
}

type writeKind int

const (
	writeInsert writeKind = iota
	writeUpdate
	writeDelete
)

type write[T any] struct {
	kind   writeKind
	entity T
}

// Context is a unit of work over a *sql.DB. While a transaction is active,
// writes run immediately on its *sql.Tx. Writes issued with no active
// transaction are queued, stay invisible to queries, and are flushed through
// the next transaction when it begins.
//
// The *sql.DB is shared and not owned: Close never closes it.
type Context[T persistence.Identifiable[K], K comparable] struct {
	db     *sql.DB
	mapper persistence.Mapper[T, K]
	sb     squirrel.StatementBuilderType
	txOpts *sql.TxOptions

	tx      *sql.Tx
	tracked map[K]T
	unkeyed []T
	queued  []write[T]
	closed  bool
}

var _ persistence.Context[*persistence.AutoID, int64] = (*Context[*persistence.AutoID, int64])(nil)

// New opens a unit of work over db for the entity kind described by mapper.
func New[T persistence.Identifiable[K], K comparable](db *sql.DB, mapper persistence.Mapper[T, K], opts ...Option) *Context[T, K] {
	o := options{placeholder: squirrel.Dollar}
	for _, opt := range opts {
		opt(&o)
	}
	return &Context[T, K]{
		db:      db,
		mapper:  mapper,
		sb:      squirrel.StatementBuilder.PlaceholderFormat(o.placeholder),
		txOpts:  o.txOptions,
		tracked: make(map[K]T),
	}
}

func (c *Context[T, K]) Attach(ctx context.Context, entity T) error {
	if c.closed {
		return ErrContextClosed
	}
	generated := c.mapper.AutoKey() && !persistence.HasKey[T, K](entity)
	if !generated {
		if _, ok := c.tracked[entity.GetID()]; ok {
			return fmt.Errorf("%w: %v", ErrAlreadyAttached, entity.GetID())
		}
	}

	if c.tx == nil {
		c.queued = append(c.queued, write[T]{kind: writeInsert, entity: entity})
		if generated {
			c.unkeyed = append(c.unkeyed, entity)
		} else {
			c.tracked[entity.GetID()] = entity
		}
		return nil
	}

	if err := c.insert(ctx, c.tx, entity); err != nil {
		return err
	}
	c.tracked[entity.GetID()] = entity
	return nil
}

func (c *Context[T, K]) Merge(ctx context.Context, entity T) error {
	if c.closed {
		return ErrContextClosed
	}
	if !c.Contains(entity) {
		return ErrNotAttached
	}
	if c.tx == nil {
		c.queued = append(c.queued, write[T]{kind: writeUpdate, entity: entity})
		return nil
	}
	return c.update(ctx, c.tx, entity)
}

func (c *Context[T, K]) Remove(ctx context.Context, entity T) error {
	if c.closed {
		return ErrContextClosed
	}
	if !c.Contains(entity) {
		return ErrNotAttached
	}
	if c.tx == nil {
		c.queued = append(c.queued, write[T]{kind: writeDelete, entity: entity})
		c.detach(entity)
		return nil
	}
	if err := c.delete(ctx, c.tx, entity); err != nil {
		return err
	}
	c.detach(entity)
	return nil
}

// Contains reports whether this exact instance is tracked, including queued
// inserts still waiting for a generated key.
func (c *Context[T, K]) Contains(entity T) bool {
	if c.closed {
		return false
	}
	if cur, ok := c.tracked[entity.GetID()]; ok && any(cur) == any(entity) {
		return true
	}
	for _, u := range c.unkeyed {
		if any(u) == any(entity) {
			return true
		}
	}
	return false
}

func (c *Context[T, K]) FindByKey(ctx context.Context, key K) (T, bool, error) {
	var zero T
	if c.closed {
		return zero, false, ErrContextClosed
	}
	if e, ok := c.tracked[key]; ok {
		return e, true, nil
	}
	if c.queuedDelete(key) {
		return zero, false, nil
	}

	query, args, err := c.sb.Select(c.mapper.Columns()...).
		From(c.mapper.Table()).
		Where(squirrel.Eq{c.mapper.KeyColumn(): key}).
		ToSql()
	if err != nil {
		return zero, false, fmt.Errorf("building select query: %w", err)
	}

	e := c.mapper.New()
	if err := c.executor().QueryRowContext(ctx, query, args...).Scan(c.mapper.Fields(e)...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return zero, false, nil
		}
		return zero, false, fmt.Errorf("selecting from %s: %w", c.mapper.Table(), err)
	}
	c.tracked[key] = e
	return e, true, nil
}

// ExecuteQuery runs q. Rows whose key is already tracked resolve to the
// tracked instance.
func (c *Context[T, K]) ExecuteQuery(ctx context.Context, q *persistence.Query[T]) ([]T, error) {
	if c.closed {
		return nil, ErrContextClosed
	}
	sb := c.sb.Select(c.mapper.Columns()...).From(c.mapper.Table())
	for _, p := range q.Predicates() {
		sb = sb.Where(p)
	}
	if terms := q.Ordering(); len(terms) > 0 {
		sb = sb.OrderBy(terms...)
	}
	if limit, ok := q.LimitValue(); ok {
		sb = sb.Limit(limit)
	}
	if offset := q.OffsetValue(); offset > 0 {
		sb = sb.Offset(offset)
	}

	query, args, err := sb.ToSql()
	if err != nil {
		return nil, fmt.Errorf("building select query: %w", err)
	}
	rows, err := c.executor().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying %s: %w", c.mapper.Table(), err)
	}
	defer rows.Close()

	out := make([]T, 0)
	for rows.Next() {
		e := c.mapper.New()
		if err := rows.Scan(c.mapper.Fields(e)...); err != nil {
			return nil, fmt.Errorf("scanning %s: %w", c.mapper.Table(), err)
		}
		key := e.GetID()
		if c.queuedDelete(key) {
			continue
		}
		if cur, ok := c.tracked[key]; ok {
			e = cur
		} else {
			c.tracked[key] = e
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Context[T, K]) NewTransaction() persistence.Transaction {
	return &transaction[T, K]{c: c}
}

func (c *Context[T, K]) BuildQuery() *persistence.Query[T] {
	return persistence.NewQuery[T]()
}

// Close rolls back an open transaction and detaches everything.
func (c *Context[T, K]) Close() error {
	if c.closed {
		return ErrContextClosed
	}
	var err error
	if c.tx != nil {
		err = c.tx.Rollback()
	}
	c.reset()
	c.closed = true
	return err
}

func (c *Context[T, K]) executor() execer {
	if c.tx != nil {
		return c.tx
	}
	return c.db
}

func (c *Context[T, K]) insert(ctx context.Context, ex execer, e T) error {
	cols := c.mapper.Columns()
	vals := c.mapper.Values(e)
	table := c.mapper.Table()

	if c.mapper.AutoKey() && !persistence.HasKey[T, K](e) {
		query, args, err := c.sb.Insert(table).
			Columns(cols[1:]...).
			Values(vals[1:]...).
			Suffix("RETURNING " + c.mapper.KeyColumn()).
			ToSql()
		if err != nil {
			return fmt.Errorf("building insert query: %w", err)
		}
		var id K
		if err := ex.QueryRowContext(ctx, query, args...).Scan(&id); err != nil {
			return fmt.Errorf("inserting into %s: %w", table, err)
		}
		e.SetID(id)
		return nil
	}

	query, args, err := c.sb.Insert(table).
		Columns(cols...).
		Values(vals...).
		ToSql()
	if err != nil {
		return fmt.Errorf("building insert query: %w", err)
	}
	if _, err := ex.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("inserting into %s: %w", table, err)
	}
	return nil
}

func (c *Context[T, K]) update(ctx context.Context, ex execer, e T) error {
	cols := c.mapper.Columns()
	vals := c.mapper.Values(e)
	ub := c.sb.Update(c.mapper.Table())
	for i := 1; i < len(cols); i++ {
		ub = ub.Set(cols[i], vals[i])
	}
	query, args, err := ub.Where(squirrel.Eq{c.mapper.KeyColumn(): e.GetID()}).ToSql()
	if err != nil {
		return fmt.Errorf("building update query: %w", err)
	}
	res, err := ex.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("updating %s: %w", c.mapper.Table(), err)
	}
	return requireAffected(res, c.mapper.Table(), e.GetID())
}

func (c *Context[T, K]) delete(ctx context.Context, ex execer, e T) error {
	query, args, err := c.sb.Delete(c.mapper.Table()).
		Where(squirrel.Eq{c.mapper.KeyColumn(): e.GetID()}).
		ToSql()
	if err != nil {
		return fmt.Errorf("building delete query: %w", err)
	}
	res, err := ex.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("deleting from %s: %w", c.mapper.Table(), err)
	}
	return requireAffected(res, c.mapper.Table(), e.GetID())
}

func requireAffected(res sql.Result, table string, key any) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected on %s: %w", table, err)
	}
	if n == 0 {
		return fmt.Errorf("%s %v: %w", table, key, ErrNoRowsAffected)
	}
	return nil
}

// flush runs the queued writes on the active transaction.
func (c *Context[T, K]) flush(ctx context.Context) error {
	queued := c.queued
	c.queued = nil
	for _, w := range queued {
		var err error
		switch w.kind {
		case writeInsert:
			err = c.insert(ctx, c.tx, w.entity)
			if err == nil {
				c.tracked[w.entity.GetID()] = w.entity
			}
		case writeUpdate:
			err = c.update(ctx, c.tx, w.entity)
		case writeDelete:
			err = c.delete(ctx, c.tx, w.entity)
		}
		if err != nil {
			return err
		}
	}
	c.unkeyed = nil
	return nil
}

func (c *Context[T, K]) queuedDelete(key K) bool {
	for i := len(c.queued) - 1; i >= 0; i-- {
		w := c.queued[i]
		if w.entity.GetID() == key {
			return w.kind == writeDelete
		}
	}
	return false
}

func (c *Context[T, K]) detach(e T) {
	if cur, ok := c.tracked[e.GetID()]; ok && any(cur) == any(e) {
		delete(c.tracked, e.GetID())
	}
	for i, u := range c.unkeyed {
		if any(u) == any(e) {
			c.unkeyed = append(c.unkeyed[:i], c.unkeyed[i+1:]...)
			break
		}
	}
}

// reset drops queued writes and detaches every tracked entity.
func (c *Context[T, K]) reset() {
	c.tx = nil
	c.queued = nil
	c.unkeyed = nil
	c.tracked = make(map[K]T)
}

type transaction[T persistence.Identifiable[K], K comparable] struct {
	c *Context[T, K]
}

// Begin opens a *sql.Tx and flushes queued writes through it. A failed flush
// rolls the transaction back and resets the unit of work.
func (t *transaction[T, K]) Begin(ctx context.Context) error {
	c := t.c
	if c.closed {
		return ErrContextClosed
	}
	if c.tx != nil {
		return ErrTxActive
	}
	tx, err := c.db.BeginTx(ctx, c.txOpts)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	c.tx = tx
	if err := c.flush(ctx); err != nil {
		_ = tx.Rollback()
		c.reset()
		return fmt.Errorf("flushing queued writes: %w", err)
	}
	return nil
}

func (t *transaction[T, K]) Commit(context.Context) error {
	c := t.c
	if c.closed {
		return ErrContextClosed
	}
	if c.tx == nil {
		return ErrTxNotActive
	}
	err := c.tx.Commit()
	c.tx = nil
	if err != nil {
		c.reset()
		return err
	}
	return nil
}

func (t *transaction[T, K]) Rollback(context.Context) error {
	c := t.c
	if c.closed {
		return ErrContextClosed
	}
	if c.tx == nil {
		return ErrTxNotActive
	}
	err := c.tx.Rollback()
	c.reset()
	return err
}
