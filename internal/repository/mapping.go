package repository

import "txrepo/internal/model"

// UserMapper maps model.User onto the users table.
type UserMapper struct{}

func (UserMapper) Table() string     { return "users" }
func (UserMapper) KeyColumn() string { return "username" }
func (UserMapper) Columns() []string {
	return []string{"username", "email", "display_name", "created_at"}
}
func (UserMapper) AutoKey() bool    { return false }
func (UserMapper) New() *model.User { return &model.User{} }

func (UserMapper) Values(u *model.User) []any {
	return []any{u.Username, u.Email, u.DisplayName, u.CreatedAt}
}

func (UserMapper) Fields(u *model.User) []any {
	return []any{&u.Username, &u.Email, &u.DisplayName, &u.CreatedAt}
}

// NoteMapper maps model.Note onto the notes table. Keys are store-assigned.
type NoteMapper struct{}

func (NoteMapper) Table() string     { return "notes" }
func (NoteMapper) KeyColumn() string { return "id" }
func (NoteMapper) Columns() []string {
	return []string{"id", "owner", "title", "body", "created_at"}
}
func (NoteMapper) AutoKey() bool    { return true }
func (NoteMapper) New() *model.Note { return &model.Note{} }

func (NoteMapper) Values(n *model.Note) []any {
	return []any{n.ID, n.Owner, n.Title, n.Body, n.CreatedAt}
}

func (NoteMapper) Fields(n *model.Note) []any {
	return []any{&n.ID, &n.Owner, &n.Title, &n.Body, &n.CreatedAt}
}
