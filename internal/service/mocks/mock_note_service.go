package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"txrepo/internal/model"
	"txrepo/internal/service"
)

type MockNoteService struct {
	mock.Mock
}

func (m *MockNoteService) Create(ctx context.Context, owner string, in service.NoteInput) (*model.Note, error) {
	args := m.Called(ctx, owner, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Note), args.Error(1)
}

func (m *MockNoteService) ListByOwner(ctx context.Context, owner string) ([]*model.Note, error) {
	args := m.Called(ctx, owner)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*model.Note), args.Error(1)
}
