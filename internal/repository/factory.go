package repository

import (
	"database/sql"

	"github.com/Masterminds/squirrel"

	"txrepo/internal/model"
	"txrepo/internal/persistence"
	"txrepo/internal/persistence/memory"
	"txrepo/internal/persistence/sqlstore"
)

// Factory hands out repositories bound to a fresh persistence context. Each
// repository is one unit of work: callers use it for a single request and Close it.
type Factory interface {
	Users() UserRepository
	Notes() NoteRepository
}

// MemoryFactory serves repositories over process-local row stores.
type MemoryFactory struct {
	users *memory.Store[*model.User, string]
	notes *memory.Store[*model.Note, int64]
	opts  []persistence.Option
}

func NewMemoryFactory(opts ...persistence.Option) *MemoryFactory {
	return &MemoryFactory{
		users: memory.NewStore[*model.User, string](UserMapper{}),
		notes: memory.NewStore[*model.Note, int64](NoteMapper{}),
		opts:  opts,
	}
}

func (f *MemoryFactory) Users() UserRepository {
	return NewUserRepository(f.users.NewContext(), f.opts...)
}

func (f *MemoryFactory) Notes() NoteRepository {
	return NewNoteRepository(f.notes.NewContext(), f.opts...)
}

// SQLFactory serves repositories over a shared *sql.DB pool.
type SQLFactory struct {
	db          *sql.DB
	placeholder squirrel.PlaceholderFormat
	opts        []persistence.Option
}

// NewSQLFactory uses placeholder to render bind parameters, squirrel.Dollar
// for PostgreSQL and squirrel.Question for SQLite.
func NewSQLFactory(db *sql.DB, placeholder squirrel.PlaceholderFormat, opts ...persistence.Option) *SQLFactory {
	return &SQLFactory{db: db, placeholder: placeholder, opts: opts}
}

func (f *SQLFactory) Users() UserRepository {
	pctx := sqlstore.New[*model.User, string](f.db, UserMapper{}, sqlstore.WithPlaceholder(f.placeholder))
	return NewUserRepository(pctx, f.opts...)
}

func (f *SQLFactory) Notes() NoteRepository {
	pctx := sqlstore.New[*model.Note, int64](f.db, NoteMapper{}, sqlstore.WithPlaceholder(f.placeholder))
	return NewNoteRepository(pctx, f.opts...)
}
