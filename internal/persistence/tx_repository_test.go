package persistence_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/Masterminds/squirrel"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"txrepo/internal/persistence"
	"txrepo/internal/persistence/memory"
	"txrepo/internal/persistence/mocks"
)

type widget struct {
	persistence.AutoID
	Name string
	Size int
}

type widgetMapper struct{}

func (widgetMapper) Table() string          { return "widgets" }
func (widgetMapper) KeyColumn() string      { return "id" }
func (widgetMapper) Columns() []string      { return []string{"id", "name", "size"} }
func (widgetMapper) AutoKey() bool          { return true }
func (widgetMapper) New() *widget           { return &widget{} }
func (widgetMapper) Values(w *widget) []any { return []any{w.ID, w.Name, w.Size} }
func (widgetMapper) Fields(w *widget) []any { return []any{&w.ID, &w.Name, &w.Size} }

func newWidgetRepo(t *testing.T, store *memory.Store[*widget, int64], opts ...persistence.Option) *persistence.TxRepository[*widget, int64] {
	t.Helper()
	opts = append([]persistence.Option{persistence.WithKind("widget")}, opts...)
	return persistence.NewTxRepository[*widget, int64](store.NewContext(), opts...)
}

func TestTxRepository_StoreAutoCommit(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore[*widget, int64](widgetMapper{})
	repo := newWidgetRepo(t, store)

	a := &widget{Name: "bolt", Size: 3}
	require.NoError(t, repo.Store(ctx, a))

	assert.True(t, repo.IsPersisted(a))
	assert.NotZero(t, a.ID)
	assert.Equal(t, persistence.TxCompleted, repo.TransactionState())
	assert.Equal(t, 1, store.Len())

	a.Size = 5
	require.NoError(t, repo.Update(ctx, a))

	got, found, err := repo.GetByKey(ctx, a.ID)
	require.NoError(t, err)
	require.True(t, found)
	assert.Same(t, a, got)
	assert.Equal(t, 5, got.Size)
}

func TestTxRepository_ManualRollbackDiscardsEverything(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore[*widget, int64](widgetMapper{})
	repo := newWidgetRepo(t, store)

	require.NoError(t, repo.SetAutoCommit(false))
	require.NoError(t, repo.BeginTransaction(ctx))

	a := &widget{Name: "a"}
	b := &widget{Name: "b"}
	require.NoError(t, repo.Store(ctx, a))
	require.NoError(t, repo.Store(ctx, b))
	assert.True(t, repo.IsPersisted(a))

	require.NoError(t, repo.Rollback(ctx))

	assert.False(t, repo.IsPersisted(a))
	assert.False(t, repo.IsPersisted(b))
	assert.Equal(t, 0, store.Len())

	n, err := repo.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestTxRepository_ManualCommitThenMisuse(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore[*widget, int64](widgetMapper{})
	repo := newWidgetRepo(t, store, persistence.WithAutoCommit(false))

	assert.False(t, repo.AutoCommit())
	require.NoError(t, repo.BeginTransaction(ctx))
	a := &widget{Name: "a"}
	require.NoError(t, repo.Store(ctx, a))
	require.NoError(t, repo.Commit(ctx))

	assert.True(t, repo.IsPersisted(a))
	assert.Equal(t, 1, store.Len())

	err := repo.Commit(ctx)
	assert.ErrorIs(t, err, persistence.ErrNoTransaction)
	_, classified := persistence.ReasonOf(err)
	assert.False(t, classified)

	assert.ErrorIs(t, repo.Rollback(ctx), persistence.ErrNoTransaction)
}

func TestTxRepository_BeginTwice(t *testing.T) {
	ctx := context.Background()
	repo := newWidgetRepo(t, memory.NewStore[*widget, int64](widgetMapper{}))

	require.NoError(t, repo.BeginTransaction(ctx))
	assert.ErrorIs(t, repo.BeginTransaction(ctx), persistence.ErrTransactionActive)
	assert.Equal(t, persistence.TxActive, repo.TransactionState())

	require.NoError(t, repo.Rollback(ctx))
	require.NoError(t, repo.BeginTransaction(ctx), "begin is valid again after completion")
}

func TestTxRepository_AutoCommitStoreInsideExplicitTransaction(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore[*widget, int64](widgetMapper{})
	repo := newWidgetRepo(t, store)

	require.NoError(t, repo.BeginTransaction(ctx))
	err := repo.Store(ctx, &widget{Name: "a"})
	assert.ErrorIs(t, err, persistence.ErrTransactionActive)
	assert.Equal(t, persistence.TxActive, repo.TransactionState())
}

func TestTxRepository_SetAutoCommitInsideTransaction(t *testing.T) {
	ctx := context.Background()
	repo := newWidgetRepo(t, memory.NewStore[*widget, int64](widgetMapper{}))

	require.NoError(t, repo.BeginTransaction(ctx))
	assert.ErrorIs(t, repo.SetAutoCommit(false), persistence.ErrAutoCommitInTransaction)
	assert.True(t, repo.AutoCommit())
}

func TestTxRepository_UntrackedEntity(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore[*widget, int64](widgetMapper{})
	repo := newWidgetRepo(t, store)

	stranger := &widget{Name: "never stored"}

	tests := []struct {
		name string
		call func() error
	}{
		{"update", func() error { return repo.Update(ctx, stranger) }},
		{"delete", func() error { return repo.Delete(ctx, stranger) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.call()
			require.Error(t, err)
			assert.ErrorIs(t, err, persistence.ErrEntityNotPersisted)
			reason, ok := persistence.ReasonOf(err)
			assert.True(t, ok)
			assert.Equal(t, persistence.EntityNotPersisted, reason)
		})
	}
	assert.Equal(t, 0, store.Len())
}

func TestTxRepository_StoreTrackedEntity(t *testing.T) {
	ctx := context.Background()

	t.Run("redirect to update", func(t *testing.T) {
		store := memory.NewStore[*widget, int64](widgetMapper{})
		repo := newWidgetRepo(t, store)

		a := &widget{Name: "a", Size: 1}
		require.NoError(t, repo.Store(ctx, a))
		a.Size = 2
		require.NoError(t, repo.Store(ctx, a))
		require.NoError(t, repo.BeginTransaction(ctx))
		require.NoError(t, repo.Commit(ctx))

		fresh := newWidgetRepo(t, store)
		got, found, err := fresh.GetByKey(ctx, a.ID)
		require.NoError(t, err)
		require.True(t, found)
		assert.Equal(t, 2, got.Size)
		assert.Equal(t, 1, store.Len())
	})

	t.Run("fail on duplicate", func(t *testing.T) {
		store := memory.NewStore[*widget, int64](widgetMapper{})
		repo := newWidgetRepo(t, store, persistence.WithDuplicatePolicy(persistence.FailOnDuplicate))

		a := &widget{Name: "a"}
		require.NoError(t, repo.Store(ctx, a))
		err := repo.Store(ctx, a)
		assert.ErrorIs(t, err, persistence.ErrEntityAlreadyExists)
		assert.Equal(t, 1, store.Len())
	})
}

func TestTxRepository_UpdateOutsideTransactionWaitsForCommit(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore[*widget, int64](widgetMapper{})
	repo := newWidgetRepo(t, store)

	a := &widget{Name: "a", Size: 1}
	require.NoError(t, repo.Store(ctx, a))

	a.Size = 9
	require.NoError(t, repo.Update(ctx, a))

	observer := newWidgetRepo(t, store)
	got, _, err := observer.GetByKey(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.Size, "update is pending until the next commit")

	require.NoError(t, repo.BeginTransaction(ctx))
	require.NoError(t, repo.Commit(ctx))

	observer = newWidgetRepo(t, store)
	got, _, err = observer.GetByKey(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, 9, got.Size)
}

func TestTxRepository_Delete(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore[*widget, int64](widgetMapper{})
	repo := newWidgetRepo(t, store)

	a := &widget{Name: "a"}
	require.NoError(t, repo.Store(ctx, a))

	require.NoError(t, repo.BeginTransaction(ctx))
	require.NoError(t, repo.Delete(ctx, a))
	assert.False(t, repo.IsPersisted(a))

	_, found, err := repo.GetByKey(ctx, a.ID)
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, repo.Commit(ctx))
	assert.Equal(t, 0, store.Len())
}

func TestTxRepository_FindAndGet(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore[*widget, int64](widgetMapper{})
	repo := newWidgetRepo(t, store)

	for _, w := range []*widget{{Name: "nut", Size: 1}, {Name: "bolt", Size: 4}, {Name: "washer", Size: 2}} {
		require.NoError(t, repo.Store(ctx, w))
	}

	all, err := repo.FindAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	big, err := repo.Find(ctx, repo.QueryBuilder().Where(squirrel.GtOrEq{"size": 2}).OrderBy("size DESC"))
	require.NoError(t, err)
	require.Len(t, big, 2)
	assert.Equal(t, "bolt", big[0].Name)
	assert.Equal(t, "washer", big[1].Name)

	w, found, err := repo.Get(ctx, repo.QueryBuilder().Where(squirrel.Eq{"name": "nut"}))
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, 1, w.Size)

	_, found, err = repo.Get(ctx, repo.QueryBuilder().Where(squirrel.Eq{"name": "gear"}))
	require.NoError(t, err)
	assert.False(t, found)
}

func TestTxRepository_Close(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore[*widget, int64](widgetMapper{})
	repo := newWidgetRepo(t, store, persistence.WithAutoCommit(false))

	require.NoError(t, repo.BeginTransaction(ctx))
	a := &widget{Name: "a"}
	require.NoError(t, repo.Store(ctx, &widget{Name: "pending"}))
	require.NoError(t, repo.Close(ctx))

	assert.Equal(t, 0, store.Len(), "close rolls back the active transaction")
	assert.False(t, repo.IsPersisted(a))
	assert.ErrorIs(t, repo.Store(ctx, a), persistence.ErrClosed)
	assert.ErrorIs(t, repo.BeginTransaction(ctx), persistence.ErrClosed)
	_, err := repo.FindAll(ctx)
	assert.ErrorIs(t, err, persistence.ErrClosed)
	assert.ErrorIs(t, repo.Close(ctx), persistence.ErrClosed)
}

func TestTxRepository_CommitFailure(t *testing.T) {
	ctx := context.Background()
	cause := errors.New("disk full")

	tx := new(mocks.MockTransaction)
	tx.On("Begin", mock.Anything).Return(nil)
	tx.On("Commit", mock.Anything).Return(cause)

	pctx := new(mocks.MockContext[*widget, int64])
	pctx.On("NewTransaction").Return(tx)
	pctx.On("Contains", mock.Anything).Return(false)
	pctx.On("Attach", mock.Anything, mock.Anything).Return(nil)

	repo := persistence.NewTxRepository[*widget, int64](pctx)

	err := repo.Store(ctx, &widget{Name: "a"})
	require.Error(t, err)
	assert.ErrorIs(t, err, persistence.ErrCommit)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, persistence.TxCompleted, repo.TransactionState())

	tx.AssertExpectations(t)
	pctx.AssertExpectations(t)
}

func TestTxRepository_FailedAttachRollsBack(t *testing.T) {
	ctx := context.Background()
	cause := errors.New("constraint violated")

	tx := new(mocks.MockTransaction)
	tx.On("Begin", mock.Anything).Return(nil)
	tx.On("Rollback", mock.Anything).Return(nil)

	pctx := new(mocks.MockContext[*widget, int64])
	pctx.On("NewTransaction").Return(tx)
	pctx.On("Contains", mock.Anything).Return(false)
	pctx.On("Attach", mock.Anything, mock.Anything).Return(cause)

	repo := persistence.NewTxRepository[*widget, int64](pctx)

	err := repo.Store(ctx, &widget{Name: "a"})
	assert.ErrorIs(t, err, cause)
	_, classified := persistence.ReasonOf(err)
	assert.False(t, classified)
	assert.Equal(t, persistence.TxCompleted, repo.TransactionState())

	tx.AssertNotCalled(t, "Commit", mock.Anything)
	tx.AssertExpectations(t)
}

func TestTxRepository_UpdateNeverSelfWraps(t *testing.T) {
	ctx := context.Background()
	w := &widget{Name: "a"}

	tx := new(mocks.MockTransaction)
	pctx := new(mocks.MockContext[*widget, int64])
	pctx.On("NewTransaction").Return(tx)
	pctx.On("Contains", w).Return(true)
	pctx.On("Merge", mock.Anything, w).Return(nil)
	pctx.On("Remove", mock.Anything, w).Return(nil)

	repo := persistence.NewTxRepository[*widget, int64](pctx)
	require.True(t, repo.AutoCommit())

	require.NoError(t, repo.Update(ctx, w))
	require.NoError(t, repo.Delete(ctx, w))

	assert.Equal(t, persistence.TxInactive, repo.TransactionState())
	tx.AssertNotCalled(t, "Begin", mock.Anything)
	tx.AssertNotCalled(t, "Commit", mock.Anything)
}

func TestTxRepository_Metrics(t *testing.T) {
	ctx := context.Background()
	reg := prometheus.NewRegistry()
	metrics, err := persistence.NewMetrics(reg)
	require.NoError(t, err)

	repo := newWidgetRepo(t, memory.NewStore[*widget, int64](widgetMapper{}), persistence.WithMetrics(metrics))

	require.NoError(t, repo.Store(ctx, &widget{Name: "a"}))
	require.Error(t, repo.Update(ctx, &widget{Name: "b"}))

	expected := `
# HELP repository_operations_total Total number of repository operations by outcome.
# TYPE repository_operations_total counter
repository_operations_total{kind="widget",operation="store",outcome="ok"} 1
repository_operations_total{kind="widget",operation="update",outcome="ENTITY_NOT_PERSISTED"} 1
# HELP repository_transactions_total Total number of finished repository transactions.
# TYPE repository_transactions_total counter
repository_transactions_total{kind="widget",outcome="committed"} 1
`
	assert.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected),
		"repository_operations_total", "repository_transactions_total"))

	_, err = persistence.NewMetrics(reg)
	assert.Error(t, err, "collectors register once per registry")
}

func TestTxRepository_Spans(t *testing.T) {
	ctx := context.Background()
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))

	repo := newWidgetRepo(t, memory.NewStore[*widget, int64](widgetMapper{}), persistence.WithTracerProvider(tp))

	_, _, err := repo.GetByKey(ctx, 42)
	require.NoError(t, err)
	require.Error(t, repo.Delete(ctx, &widget{}))

	spans := sr.Ended()
	require.Len(t, spans, 2)
	assert.Equal(t, "repository.get_by_key", spans[0].Name())
	assert.Equal(t, codes.Unset, spans[0].Status().Code)
	assert.Equal(t, "repository.delete", spans[1].Name())
	assert.Equal(t, codes.Error, spans[1].Status().Code)
}
