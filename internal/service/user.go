package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"txrepo/internal/model"
	"txrepo/internal/repository"
)

const (
	defaultPageLimit = 10
	maxPageLimit     = 100
)

// RegisterInput is what a caller supplies to create a user.
type RegisterInput struct {
	Username    string `json:"username"`
	Email       string `json:"email"`
	DisplayName string `json:"display_name"`
}

func (in RegisterInput) validate() error {
	if strings.TrimSpace(in.Username) == "" {
		return fmt.Errorf("%w: username is required", ErrInvalidInput)
	}
	if !strings.Contains(in.Email, "@") {
		return fmt.Errorf("%w: email %q is not valid", ErrInvalidInput, in.Email)
	}
	return nil
}

// UserListResult is the service-level DTO for paginated users.
type UserListResult struct {
	Items []*model.User `json:"data"`
	Total int           `json:"total"`
}

// UserService defines the use cases for managing users.
type UserService interface {
	// Register creates a user. An existing username or email is ErrConflict.
	Register(ctx context.Context, in RegisterInput) (*model.User, error)
	Get(ctx context.Context, username string) (*model.User, error)
	List(ctx context.Context, limit, offset int) (*UserListResult, error)
	Count(ctx context.Context) (int, error)
	// ChangeEmail updates the email inside an explicit transaction.
	ChangeEmail(ctx context.Context, username, email string) (*model.User, error)
	Remove(ctx context.Context, username string) error
	// Import registers every user in one transaction; one failure rolls back all of them.
	Import(ctx context.Context, in []RegisterInput) ([]*model.User, error)
}

type userService struct {
	repos repository.Factory
	now   func() time.Time
}

func NewUserService(repos repository.Factory) UserService {
	return &userService{repos: repos, now: time.Now}
}

func (s *userService) Register(ctx context.Context, in RegisterInput) (*model.User, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	repo := s.repos.Users()
	defer closeRepo(ctx, repo)

	if err := s.checkAvailable(ctx, repo, in); err != nil {
		return nil, err
	}

	u := s.newUser(in)
	if err := store[*model.User, string](ctx, repo, u); err != nil {
		return nil, fmt.Errorf("register user: %w", err)
	}
	return u, nil
}

func (s *userService) Get(ctx context.Context, username string) (*model.User, error) {
	repo := s.repos.Users()
	defer closeRepo(ctx, repo)
	return s.load(ctx, repo, username)
}

func (s *userService) List(ctx context.Context, limit, offset int) (*UserListResult, error) {
	if limit <= 0 {
		limit = defaultPageLimit
	}
	if limit > maxPageLimit {
		limit = maxPageLimit
	}
	if offset < 0 {
		offset = 0
	}

	repo := s.repos.Users()
	defer closeRepo(ctx, repo)

	res, err := repo.Page(ctx, repository.PageQuery{Limit: limit, Offset: offset})
	if err != nil {
		return nil, err
	}
	return &UserListResult{Items: res.Items, Total: res.Total}, nil
}

func (s *userService) Count(ctx context.Context) (int, error) {
	repo := s.repos.Users()
	defer closeRepo(ctx, repo)
	return repo.Count(ctx)
}

func (s *userService) ChangeEmail(ctx context.Context, username, email string) (*model.User, error) {
	if !strings.Contains(email, "@") {
		return nil, fmt.Errorf("%w: email %q is not valid", ErrInvalidInput, email)
	}
	repo := s.repos.Users()
	defer closeRepo(ctx, repo)

	u, err := s.load(ctx, repo, username)
	if err != nil {
		return nil, err
	}
	if u.Email == email {
		return u, nil
	}
	if other, found, err := repo.FindByEmail(ctx, email); err != nil {
		return nil, err
	} else if found && other.Username != username {
		return nil, fmt.Errorf("email %q: %w", email, ErrConflict)
	}

	u.Email = email
	if err := transact[*model.User, string](ctx, repo, func() error { return repo.Update(ctx, u) }); err != nil {
		return nil, fmt.Errorf("change email: %w", err)
	}
	return u, nil
}

func (s *userService) Remove(ctx context.Context, username string) error {
	repo := s.repos.Users()
	defer closeRepo(ctx, repo)

	u, err := s.load(ctx, repo, username)
	if err != nil {
		return err
	}
	if err := transact[*model.User, string](ctx, repo, func() error { return repo.Delete(ctx, u) }); err != nil {
		return fmt.Errorf("remove user: %w", err)
	}
	return nil
}

func (s *userService) Import(ctx context.Context, in []RegisterInput) ([]*model.User, error) {
	if len(in) == 0 {
		return nil, fmt.Errorf("%w: nothing to import", ErrInvalidInput)
	}
	seen := make(map[string]bool, len(in))
	for i, item := range in {
		if err := item.validate(); err != nil {
			return nil, fmt.Errorf("item %d: %w", i, err)
		}
		if seen[item.Username] || seen[item.Email] {
			return nil, fmt.Errorf("item %d: duplicate in batch: %w", i, ErrConflict)
		}
		seen[item.Username] = true
		seen[item.Email] = true
	}

	repo := s.repos.Users()
	defer closeRepo(ctx, repo)

	if err := repo.SetAutoCommit(false); err != nil {
		return nil, err
	}

	out := make([]*model.User, 0, len(in))
	err := transact[*model.User, string](ctx, repo, func() error {
		for i, item := range in {
			if err := s.checkAvailable(ctx, repo, item); err != nil {
				return fmt.Errorf("item %d: %w", i, err)
			}
			u := s.newUser(item)
			if err := repo.Store(ctx, u); err != nil {
				return fmt.Errorf("item %d: %w", i, err)
			}
			out = append(out, u)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("import users: %w", err)
	}
	return out, nil
}

func (s *userService) checkAvailable(ctx context.Context, repo repository.UserRepository, in RegisterInput) error {
	if _, found, err := repo.GetByKey(ctx, in.Username); err != nil {
		return err
	} else if found {
		return fmt.Errorf("username %q: %w", in.Username, ErrConflict)
	}
	if _, found, err := repo.FindByEmail(ctx, in.Email); err != nil {
		return err
	} else if found {
		return fmt.Errorf("email %q: %w", in.Email, ErrConflict)
	}
	return nil
}

func (s *userService) load(ctx context.Context, repo repository.UserRepository, username string) (*model.User, error) {
	u, found, err := repo.GetByKey(ctx, username)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("user %q: %w", username, ErrNotFound)
	}
	return u, nil
}

func (s *userService) newUser(in RegisterInput) *model.User {
	display := in.DisplayName
	if display == "" {
		display = in.Username
	}
	return &model.User{
		Username:    in.Username,
		Email:       in.Email,
		DisplayName: display,
		CreatedAt:   s.now().UTC(),
	}
}
