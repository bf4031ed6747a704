package repository

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"txrepo/internal/database/migration"
	"txrepo/internal/model"
)

func sqliteFactory(t *testing.T) *SQLFactory {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, migration.EnsureMigrated(context.Background(), db, migration.SQLite, zap.NewNop()))
	return NewSQLFactory(db, squirrel.Question)
}

func factories(t *testing.T) map[string]Factory {
	return map[string]Factory{
		"memory": NewMemoryFactory(),
		"sqlite": sqliteFactory(t),
	}
}

func TestUserRepository(t *testing.T) {
	ctx := context.Background()
	created := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	for name, f := range factories(t) {
		t.Run(name, func(t *testing.T) {
			users := f.Users()
			for _, u := range []*model.User{
				{Username: "carol", Email: "carol@example.com", CreatedAt: created},
				{Username: "ada", Email: "ada@example.com", CreatedAt: created},
				{Username: "bob", Email: "bob@example.com", CreatedAt: created},
			} {
				require.NoError(t, users.Store(ctx, u))
			}
			require.NoError(t, users.Close(ctx))

			users = f.Users()
			defer users.Close(ctx)

			u, found, err := users.FindByEmail(ctx, "bob@example.com")
			require.NoError(t, err)
			require.True(t, found)
			assert.Equal(t, "bob", u.Username)
			assert.True(t, created.Equal(u.CreatedAt))

			_, found, err = users.FindByEmail(ctx, "nobody@example.com")
			require.NoError(t, err)
			assert.False(t, found)

			page, err := users.Page(ctx, PageQuery{Limit: 2, Offset: 1})
			require.NoError(t, err)
			assert.Equal(t, 3, page.Total)
			require.Len(t, page.Items, 2)
			assert.Equal(t, "bob", page.Items[0].Username)
			assert.Equal(t, "carol", page.Items[1].Username)
		})
	}
}

func TestNoteRepository(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)

	for name, f := range factories(t) {
		t.Run(name, func(t *testing.T) {
			users := f.Users()
			require.NoError(t, users.Store(ctx, &model.User{Username: "ada", Email: "ada@example.com", CreatedAt: base}))
			require.NoError(t, users.Store(ctx, &model.User{Username: "bob", Email: "bob@example.com", CreatedAt: base}))
			require.NoError(t, users.Close(ctx))

			notes := f.Notes()
			first := &model.Note{Owner: "ada", Title: "first", CreatedAt: base}
			second := &model.Note{Owner: "ada", Title: "second", CreatedAt: base.Add(time.Hour)}
			other := &model.Note{Owner: "bob", Title: "other", CreatedAt: base}
			for _, n := range []*model.Note{first, second, other} {
				require.NoError(t, notes.Store(ctx, n))
				assert.True(t, n.HasID())
			}
			assert.NotEqual(t, first.ID, second.ID)
			require.NoError(t, notes.Close(ctx))

			notes = f.Notes()
			defer notes.Close(ctx)
			got, err := notes.FindByOwner(ctx, "ada")
			require.NoError(t, err)
			require.Len(t, got, 2)
			assert.Equal(t, "second", got[0].Title)
			assert.Equal(t, "first", got[1].Title)
		})
	}
}
