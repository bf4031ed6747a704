package persistence

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const tracerName = "txrepo/internal/persistence"

// Option configures a TxRepository.
type Option func(*settings)

type settings struct {
	autoCommit  bool
	onDuplicate DuplicatePolicy
	logger      *zap.Logger
	metrics     *Metrics
	tp          trace.TracerProvider
	kind        string
}

// WithAutoCommit sets the initial auto-commit mode. Default: enabled.
func WithAutoCommit(enabled bool) Option {
	return func(s *settings) { s.autoCommit = enabled }
}

// WithDuplicatePolicy sets what Store does with a tracked entity. Default: RedirectToUpdate.
func WithDuplicatePolicy(p DuplicatePolicy) Option {
	return func(s *settings) { s.onDuplicate = p }
}

func WithLogger(l *zap.Logger) Option {
	return func(s *settings) {
		if l != nil {
			s.logger = l
		}
	}
}

func WithMetrics(m *Metrics) Option {
	return func(s *settings) { s.metrics = m }
}

func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(s *settings) {
		if tp != nil {
			s.tp = tp
		}
	}
}

// WithKind names the entity kind in logs, metrics and spans.
func WithKind(kind string) Option {
	return func(s *settings) { s.kind = kind }
}

// TxRepository implements TransactionalRepository on top of a persistence
// Context. It owns the Transaction obtained from the context at construction
// and the auto-commit flag; it does not own the context's storage.
//
// Store wraps itself in an implicit begin/commit pair when auto-commit is
// enabled. Update and Delete never do: outside an explicit transaction their
// writes stay pending in the context until the next commit.
//
// A TxRepository is a single unit of work and is not safe for concurrent use.
type TxRepository[T Identifiable[K], K comparable] struct {
	pctx        Context[T, K]
	tx          Transaction
	state       TxState
	autoCommit  bool
	onDuplicate DuplicatePolicy
	closed      bool

	kind    string
	logger  *zap.Logger
	metrics *Metrics
	tracer  trace.Tracer
}

// NewTxRepository binds a repository to pctx.
func NewTxRepository[T Identifiable[K], K comparable](pctx Context[T, K], opts ...Option) *TxRepository[T, K] {
	s := settings{
		autoCommit:  true,
		onDuplicate: RedirectToUpdate,
		logger:      zap.NewNop(),
		tp:          otel.GetTracerProvider(),
		kind:        fmt.Sprintf("%T", *new(T)),
	}
	for _, opt := range opts {
		opt(&s)
	}

	return &TxRepository[T, K]{
		pctx:        pctx,
		tx:          pctx.NewTransaction(),
		state:       TxInactive,
		autoCommit:  s.autoCommit,
		onDuplicate: s.onDuplicate,
		kind:        s.kind,
		logger:      s.logger.With(zap.String("kind", s.kind)),
		metrics:     s.metrics,
		tracer:      s.tp.Tracer(tracerName),
	}
}

// Store persists entity. With RedirectToUpdate a tracked entity is updated
// instead; with FailOnDuplicate it fails with ErrEntityAlreadyExists.
func (r *TxRepository[T, K]) Store(ctx context.Context, entity T) error {
	if !r.closed && r.pctx.Contains(entity) {
		if r.onDuplicate == FailOnDuplicate {
			return r.record(ctx, "store", func(context.Context) error {
				return &Error{Reason: EntityAlreadyExists}
			})
		}
		return r.Update(ctx, entity)
	}
	return r.mutate(ctx, "store", r.autoCommit, func(ctx context.Context) error {
		return r.pctx.Attach(ctx, entity)
	})
}

// Update writes the state of a tracked entity.
func (r *TxRepository[T, K]) Update(ctx context.Context, entity T) error {
	return r.mutate(ctx, "update", false, func(ctx context.Context) error {
		if !r.pctx.Contains(entity) {
			return &Error{Reason: EntityNotPersisted}
		}
		return r.pctx.Merge(ctx, entity)
	})
}

// Delete removes a tracked entity.
func (r *TxRepository[T, K]) Delete(ctx context.Context, entity T) error {
	return r.mutate(ctx, "delete", false, func(ctx context.Context) error {
		if !r.pctx.Contains(entity) {
			return &Error{Reason: EntityNotPersisted}
		}
		return r.pctx.Remove(ctx, entity)
	})
}

// mutate is the single path of Store, Update and Delete. selfWrap brackets fn
// with an implicit begin/commit; if fn fails the implicit transaction is rolled back.
func (r *TxRepository[T, K]) mutate(ctx context.Context, op string, selfWrap bool, fn func(context.Context) error) error {
	return r.record(ctx, op, func(ctx context.Context) error {
		if !selfWrap {
			return fn(ctx)
		}
		if err := r.BeginTransaction(ctx); err != nil {
			return err
		}
		if err := fn(ctx); err != nil {
			if rbErr := r.Rollback(ctx); rbErr != nil {
				r.logger.Warn("implicit rollback failed",
					zap.String("operation", op),
					zap.Error(rbErr),
				)
			}
			return err
		}
		return r.Commit(ctx)
	})
}

// record runs fn inside a span and records its outcome.
func (r *TxRepository[T, K]) record(ctx context.Context, op string, fn func(context.Context) error) (err error) {
	ctx, span := r.tracer.Start(ctx, "repository."+op, trace.WithAttributes(
		attribute.String("repository.kind", r.kind),
		attribute.Bool("repository.auto_commit", r.autoCommit),
	))
	start := time.Now()
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
		r.metrics.observe(r.kind, op, err, time.Since(start))
	}()

	if r.closed {
		return ErrClosed
	}
	return fn(ctx)
}

// IsPersisted reports whether the context tracks this instance.
func (r *TxRepository[T, K]) IsPersisted(entity T) bool {
	if r.closed {
		return false
	}
	return r.pctx.Contains(entity)
}

func (r *TxRepository[T, K]) GetByKey(ctx context.Context, key K) (entity T, found bool, err error) {
	err = r.record(ctx, "get_by_key", func(ctx context.Context) error {
		var ferr error
		entity, found, ferr = r.pctx.FindByKey(ctx, key)
		return ferr
	})
	return entity, found, err
}

// FindAll returns every entity of the kind in storage order.
func (r *TxRepository[T, K]) FindAll(ctx context.Context) ([]T, error) {
	if r.closed {
		return nil, ErrClosed
	}
	return r.Find(ctx, r.pctx.BuildQuery())
}

// Count is len(FindAll); it costs as much as FindAll.
func (r *TxRepository[T, K]) Count(ctx context.Context) (int, error) {
	all, err := r.FindAll(ctx)
	if err != nil {
		return 0, err
	}
	return len(all), nil
}

// QueryBuilder returns an unfiltered query for the repository's kind.
func (r *TxRepository[T, K]) QueryBuilder() *Query[T] {
	return r.pctx.BuildQuery()
}

func (r *TxRepository[T, K]) Find(ctx context.Context, q *Query[T]) (out []T, err error) {
	err = r.record(ctx, "find", func(ctx context.Context) error {
		var qerr error
		out, qerr = r.pctx.ExecuteQuery(ctx, q)
		return qerr
	})
	return out, err
}

// Get returns the first result of q. Zero results is not an error.
func (r *TxRepository[T, K]) Get(ctx context.Context, q *Query[T]) (T, bool, error) {
	var zero T
	results, err := r.Find(ctx, q)
	if err != nil {
		return zero, false, err
	}
	if len(results) == 0 {
		return zero, false, nil
	}
	return results[0], true, nil
}

// BeginTransaction moves the transaction from inactive or completed to active.
func (r *TxRepository[T, K]) BeginTransaction(ctx context.Context) error {
	if r.closed {
		return ErrClosed
	}
	if r.state == TxActive {
		return ErrTransactionActive
	}
	if err := r.tx.Begin(ctx); err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	r.state = TxActive
	r.logger.Debug("transaction begun")
	return nil
}

// Commit moves the transaction from active to completed. A failure of the
// context is reported as ErrCommit; the transaction is completed regardless.
func (r *TxRepository[T, K]) Commit(ctx context.Context) error {
	if r.closed {
		return ErrClosed
	}
	if r.state != TxActive {
		return ErrNoTransaction
	}
	err := r.tx.Commit(ctx)
	r.state = TxCompleted
	if err != nil {
		r.metrics.transaction(r.kind, "commit_failed")
		r.logger.Error("commit failed", zap.Error(err))
		return &Error{Reason: CommitError, Err: err}
	}
	r.metrics.transaction(r.kind, "committed")
	r.logger.Debug("transaction committed")
	return nil
}

// Rollback moves the transaction from active to completed, discarding pending changes.
func (r *TxRepository[T, K]) Rollback(ctx context.Context) error {
	if r.closed {
		return ErrClosed
	}
	if r.state != TxActive {
		return ErrNoTransaction
	}
	err := r.tx.Rollback(ctx)
	r.state = TxCompleted
	r.metrics.transaction(r.kind, "rolled_back")
	if err != nil {
		return fmt.Errorf("rollback: %w", err)
	}
	r.logger.Debug("transaction rolled back")
	return nil
}

// SetAutoCommit toggles the implicit transaction around Store.
func (r *TxRepository[T, K]) SetAutoCommit(enabled bool) error {
	if r.closed {
		return ErrClosed
	}
	if r.state == TxActive {
		return ErrAutoCommitInTransaction
	}
	r.autoCommit = enabled
	return nil
}

func (r *TxRepository[T, K]) AutoCommit() bool { return r.autoCommit }

func (r *TxRepository[T, K]) TransactionState() TxState { return r.state }

// Close rolls back an active transaction and closes the context. Any later
// call, including a second Close, returns ErrClosed.
func (r *TxRepository[T, K]) Close(ctx context.Context) error {
	if r.closed {
		return ErrClosed
	}
	if r.state == TxActive {
		r.logger.Warn("closing repository with an active transaction, rolling back")
		if err := r.Rollback(ctx); err != nil {
			r.logger.Warn("rollback on close failed", zap.Error(err))
		}
	}
	r.closed = true
	if err := r.pctx.Close(); err != nil {
		return fmt.Errorf("close persistence context: %w", err)
	}
	return nil
}
