// Package service holds the use cases of the user directory. Every method
// takes a fresh repository from the factory, so each call is its own unit of work.
package service

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"txrepo/internal/logger"
	"txrepo/internal/persistence"
)

var (
	ErrInvalidInput = errors.New("invalid input")
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("already exists")
)

// transact runs fn between BeginTransaction and Commit, rolling back when fn fails.
func transact[T persistence.Identifiable[K], K comparable](ctx context.Context, repo persistence.TransactionalRepository[T, K], fn func() error) error {
	if err := repo.BeginTransaction(ctx); err != nil {
		return err
	}
	if err := fn(); err != nil {
		if rbErr := repo.Rollback(ctx); rbErr != nil {
			logger.From(ctx).Warn("rollback failed", zap.Error(rbErr))
		}
		return err
	}
	return repo.Commit(ctx)
}

// store persists a new entity whether or not the repository auto-commits.
func store[T persistence.Identifiable[K], K comparable](ctx context.Context, repo persistence.TransactionalRepository[T, K], entity T) error {
	if repo.AutoCommit() {
		return repo.Store(ctx, entity)
	}
	return transact[T, K](ctx, repo, func() error { return repo.Store(ctx, entity) })
}

func closeRepo(ctx context.Context, repo interface{ Close(context.Context) error }) {
	if err := repo.Close(ctx); err != nil {
		logger.From(ctx).Warn("closing repository", zap.Error(err))
	}
}
