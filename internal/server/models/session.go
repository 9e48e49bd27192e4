package models

import "time"

type Session struct {
	ID        string
	UserID    string
	Expires   time.Time
	CreatedAt time.Time
}
