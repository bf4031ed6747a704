package model

import (
	"time"

	"txrepo/internal/persistence"
)

// Note belongs to a user. Its ID is assigned by the store on first insert.
type Note struct {
	persistence.AutoID
	Owner     string    `json:"owner"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
}
