package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"txrepo/internal/model"
	"txrepo/internal/repository"
)

type NoteInput struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

// NoteService defines the use cases for a user's notes.
type NoteService interface {
	// Create stores a note for an existing user; the returned note carries its assigned ID.
	Create(ctx context.Context, owner string, in NoteInput) (*model.Note, error)
	ListByOwner(ctx context.Context, owner string) ([]*model.Note, error)
}

type noteService struct {
	repos repository.Factory
	now   func() time.Time
}

func NewNoteService(repos repository.Factory) NoteService {
	return &noteService{repos: repos, now: time.Now}
}

func (s *noteService) Create(ctx context.Context, owner string, in NoteInput) (*model.Note, error) {
	if strings.TrimSpace(in.Title) == "" {
		return nil, fmt.Errorf("%w: title is required", ErrInvalidInput)
	}
	if err := s.ensureUser(ctx, owner); err != nil {
		return nil, err
	}

	repo := s.repos.Notes()
	defer closeRepo(ctx, repo)

	n := &model.Note{
		Owner:     owner,
		Title:     in.Title,
		Body:      in.Body,
		CreatedAt: s.now().UTC(),
	}
	if err := store[*model.Note, int64](ctx, repo, n); err != nil {
		return nil, fmt.Errorf("create note: %w", err)
	}
	return n, nil
}

func (s *noteService) ListByOwner(ctx context.Context, owner string) ([]*model.Note, error) {
	if err := s.ensureUser(ctx, owner); err != nil {
		return nil, err
	}
	repo := s.repos.Notes()
	defer closeRepo(ctx, repo)
	return repo.FindByOwner(ctx, owner)
}

// ensureUser closes its repository before returning, so a single-connection
// pool is free for the notes repository.
func (s *noteService) ensureUser(ctx context.Context, owner string) error {
	users := s.repos.Users()
	defer closeRepo(ctx, users)

	_, found, err := users.GetByKey(ctx, owner)
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("user %q: %w", owner, ErrNotFound)
	}
	return nil
}
