package model

import "time"

// User is keyed by its username, which callers choose at registration.
type User struct {
	Username    string    `json:"username"`
	Email       string    `json:"email"`
	DisplayName string    `json:"display_name"`
	CreatedAt   time.Time `json:"created_at"`
}

func (u *User) GetID() string   { return u.Username }
func (u *User) SetID(id string) { u.Username = id }
