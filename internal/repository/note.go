package repository

import (
	"context"

	"github.com/Masterminds/squirrel"

	"txrepo/internal/model"
	"txrepo/internal/persistence"
)

// NoteRepository is the transactional repository of notes.
type NoteRepository interface {
	persistence.TransactionalRepository[*model.Note, int64]

	// FindByOwner returns the notes of a user, newest first.
	FindByOwner(ctx context.Context, owner string) ([]*model.Note, error)
}

type NoteTxRepository struct {
	*persistence.TxRepository[*model.Note, int64]
}

var _ NoteRepository = (*NoteTxRepository)(nil)

func NewNoteRepository(pctx persistence.Context[*model.Note, int64], opts ...persistence.Option) *NoteTxRepository {
	opts = append([]persistence.Option{persistence.WithKind("note")}, opts...)
	return &NoteTxRepository{TxRepository: persistence.NewTxRepository[*model.Note, int64](pctx, opts...)}
}

func (r *NoteTxRepository) FindByOwner(ctx context.Context, owner string) ([]*model.Note, error) {
	return r.Find(ctx, r.QueryBuilder().
		Where(squirrel.Eq{"owner": owner}).
		OrderBy("created_at DESC", "id DESC"))
}
