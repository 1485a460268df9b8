package model

import "time"

// GuestbookMaxRunes bounds a guestbook note.
const GuestbookMaxRunes = 20

type GuestbookEntry struct {
	ID        string    `json:"id"`
	BoardID   string    `json:"boardId"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
}
