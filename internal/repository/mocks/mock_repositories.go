package mocks

import (
	"context"

	"txrepo/internal/model"
	"txrepo/internal/repository"
)

type MockUserRepository struct {
	MockTransactional[*model.User, string]
}

var _ repository.UserRepository = (*MockUserRepository)(nil)

func (m *MockUserRepository) FindByEmail(ctx context.Context, email string) (*model.User, bool, error) {
	args := m.Called(ctx, email)
	if args.Get(0) == nil {
		return nil, args.Bool(1), args.Error(2)
	}
	return args.Get(0).(*model.User), args.Bool(1), args.Error(2)
}

func (m *MockUserRepository) Page(ctx context.Context, pq repository.PageQuery) (*repository.PageResult[*model.User], error) {
	args := m.Called(ctx, pq)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*repository.PageResult[*model.User]), args.Error(1)
}

type MockNoteRepository struct {
	MockTransactional[*model.Note, int64]
}

var _ repository.NoteRepository = (*MockNoteRepository)(nil)

func (m *MockNoteRepository) FindByOwner(ctx context.Context, owner string) ([]*model.Note, error) {
	args := m.Called(ctx, owner)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*model.Note), args.Error(1)
}

// MockFactory hands out the same mocked repositories on every call.
type MockFactory struct {
	UserRepo *MockUserRepository
	NoteRepo *MockNoteRepository
}

var _ repository.Factory = (*MockFactory)(nil)

func (f *MockFactory) Users() repository.UserRepository { return f.UserRepo }
func (f *MockFactory) Notes() repository.NoteRepository { return f.NoteRepo }
