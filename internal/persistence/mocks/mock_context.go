package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"txrepo/internal/persistence"
)

type MockContext[T persistence.Identifiable[K], K comparable] struct {
	mock.Mock
}

func (m *MockContext[T, K]) Attach(ctx context.Context, entity T) error {
	args := m.Called(ctx, entity)
	return args.Error(0)
}

func (m *MockContext[T, K]) Merge(ctx context.Context, entity T) error {
	args := m.Called(ctx, entity)
	return args.Error(0)
}

func (m *MockContext[T, K]) Remove(ctx context.Context, entity T) error {
	args := m.Called(ctx, entity)
	return args.Error(0)
}

func (m *MockContext[T, K]) Contains(entity T) bool {
	args := m.Called(entity)
	return args.Bool(0)
}

func (m *MockContext[T, K]) FindByKey(ctx context.Context, key K) (T, bool, error) {
	args := m.Called(ctx, key)
	var zero T
	if args.Get(0) == nil {
		return zero, args.Bool(1), args.Error(2)
	}
	return args.Get(0).(T), args.Bool(1), args.Error(2)
}

func (m *MockContext[T, K]) ExecuteQuery(ctx context.Context, q *persistence.Query[T]) ([]T, error) {
	args := m.Called(ctx, q)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]T), args.Error(1)
}

func (m *MockContext[T, K]) NewTransaction() persistence.Transaction {
	args := m.Called()
	return args.Get(0).(persistence.Transaction)
}

func (m *MockContext[T, K]) BuildQuery() *persistence.Query[T] {
	return persistence.NewQuery[T]()
}

func (m *MockContext[T, K]) Close() error {
	args := m.Called()
	return args.Error(0)
}

type MockTransaction struct {
	mock.Mock
}

func (m *MockTransaction) Begin(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockTransaction) Commit(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockTransaction) Rollback(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}
