package repository

import (
	"context"

	"github.com/Masterminds/squirrel"

	"txrepo/internal/model"
	"txrepo/internal/persistence"
)

// UserRepository is the transactional repository of users.
type UserRepository interface {
	persistence.TransactionalRepository[*model.User, string]

	// FindByEmail returns the user registered with email, or false.
	FindByEmail(ctx context.Context, email string) (*model.User, bool, error)
	// Page returns users ordered by username.
	Page(ctx context.Context, pq PageQuery) (*PageResult[*model.User], error)
}

// UserTxRepository implements UserRepository over a persistence context.
type UserTxRepository struct {
	*persistence.TxRepository[*model.User, string]
}

var _ UserRepository = (*UserTxRepository)(nil)

// NewUserRepository binds a user repository to pctx.
func NewUserRepository(pctx persistence.Context[*model.User, string], opts ...persistence.Option) *UserTxRepository {
	opts = append([]persistence.Option{persistence.WithKind("user")}, opts...)
	return &UserTxRepository{TxRepository: persistence.NewTxRepository[*model.User, string](pctx, opts...)}
}

func (r *UserTxRepository) FindByEmail(ctx context.Context, email string) (*model.User, bool, error) {
	return r.Get(ctx, r.QueryBuilder().Where(squirrel.Eq{"email": email}))
}

func (r *UserTxRepository) Page(ctx context.Context, pq PageQuery) (*PageResult[*model.User], error) {
	total, err := r.Count(ctx)
	if err != nil {
		return nil, err
	}
	items, err := r.Find(ctx, r.QueryBuilder().
		OrderBy("username").
		Limit(uint64(pq.Limit)).
		Offset(uint64(pq.Offset)))
	if err != nil {
		return nil, err
	}
	return &PageResult[*model.User]{Items: items, Total: total}, nil
}
