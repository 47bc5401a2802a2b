package model

import "time"

// User owns accounts, cursors and, through accounts, transactions.
type User struct {
	CreatedAt time.Time
	ID        string
	Email     string
}
