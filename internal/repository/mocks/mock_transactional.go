package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"txrepo/internal/persistence"
)

// MockTransactional mocks persistence.TransactionalRepository for any entity kind.
type MockTransactional[T persistence.Identifiable[K], K comparable] struct {
	mock.Mock
}

func (m *MockTransactional[T, K]) Store(ctx context.Context, entity T) error {
	args := m.Called(ctx, entity)
	return args.Error(0)
}

func (m *MockTransactional[T, K]) Update(ctx context.Context, entity T) error {
	args := m.Called(ctx, entity)
	return args.Error(0)
}

func (m *MockTransactional[T, K]) Delete(ctx context.Context, entity T) error {
	args := m.Called(ctx, entity)
	return args.Error(0)
}

func (m *MockTransactional[T, K]) IsPersisted(entity T) bool {
	args := m.Called(entity)
	return args.Bool(0)
}

func (m *MockTransactional[T, K]) GetByKey(ctx context.Context, key K) (T, bool, error) {
	args := m.Called(ctx, key)
	var zero T
	if args.Get(0) == nil {
		return zero, args.Bool(1), args.Error(2)
	}
	return args.Get(0).(T), args.Bool(1), args.Error(2)
}

func (m *MockTransactional[T, K]) FindAll(ctx context.Context) ([]T, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]T), args.Error(1)
}

func (m *MockTransactional[T, K]) Count(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}

func (m *MockTransactional[T, K]) BeginTransaction(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockTransactional[T, K]) Commit(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockTransactional[T, K]) Rollback(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockTransactional[T, K]) SetAutoCommit(enabled bool) error {
	args := m.Called(enabled)
	return args.Error(0)
}

func (m *MockTransactional[T, K]) AutoCommit() bool {
	args := m.Called()
	return args.Bool(0)
}

func (m *MockTransactional[T, K]) TransactionState() persistence.TxState {
	args := m.Called()
	return args.Get(0).(persistence.TxState)
}

func (m *MockTransactional[T, K]) Close(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockTransactional[T, K]) QueryBuilder() *persistence.Query[T] {
	return persistence.NewQuery[T]()
}

func (m *MockTransactional[T, K]) Find(ctx context.Context, q *persistence.Query[T]) ([]T, error) {
	args := m.Called(ctx, q)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]T), args.Error(1)
}

func (m *MockTransactional[T, K]) Get(ctx context.Context, q *persistence.Query[T]) (T, bool, error) {
	args := m.Called(ctx, q)
	var zero T
	if args.Get(0) == nil {
		return zero, args.Bool(1), args.Error(2)
	}
	return args.Get(0).(T), args.Bool(1), args.Error(2)
}
