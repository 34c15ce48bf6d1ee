package domain

import "time"

type Notification struct {
	ID        int       `json:"id"`
	UserID    int       `json:"user_id"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	Seen      bool      `json:"seen"`
	CreatedAt time.Time `json:"created_at"`
}
