package store

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/dukerupert/missionboard/internal/model"
)

var (
	ErrGuestbookEmpty   = errors.New("guestbook entry is empty")
	ErrGuestbookTooLong = fmt.Errorf("guestbook entry exceeds %d characters", model.GuestbookMaxRunes)
)

type GuestbookStore struct {
	db  *sql.DB
	now func() time.Time
}

func NewGuestbookStore(db *sql.DB) *GuestbookStore {
	return &GuestbookStore{db: db, now: time.Now}
}

const guestbookCols = `id, board_id, content, created_at`

func scanGuestbookEntry(scanner interface{ Scan(...any) error }) (*model.GuestbookEntry, error) {
	var e model.GuestbookEntry
	var createdAt int64
	if err := scanner.Scan(&e.ID, &e.BoardID, &e.Content, &createdAt); err != nil {
		return nil, err
	}
	e.CreatedAt = fromMillis(createdAt)
	return &e, nil
}

// Create appends a note to a board's guestbook. Content is trimmed and must
// hold between 1 and model.GuestbookMaxRunes characters.
func (s *GuestbookStore) Create(boardID, content string) (*model.GuestbookEntry, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, ErrGuestbookEmpty
	}
	if utf8.RuneCountInString(content) > model.GuestbookMaxRunes {
		return nil, ErrGuestbookTooLong
	}

	e := model.GuestbookEntry{
		ID:        uuid.NewString(),
		BoardID:   boardID,
		Content:   content,
		CreatedAt: fromMillis(s.now().UnixMilli()),
	}
	_, err := s.db.Exec(
		`INSERT INTO guestbook_entries (`+guestbookCols+`) VALUES (?, ?, ?, ?)`,
		e.ID, e.BoardID, e.Content, e.CreatedAt.UnixMilli(),
	)
	if err != nil {
		return nil, fmt.Errorf("insert guestbook entry: %w", err)
	}
	return &e, nil
}

// ListByBoard returns a board's entries, newest first.
func (s *GuestbookStore) ListByBoard(boardID string, limit int) ([]model.GuestbookEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(
		`SELECT `+guestbookCols+` FROM guestbook_entries WHERE board_id = ?
		ORDER BY created_at DESC, rowid DESC LIMIT ?`,
		boardID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list guestbook entries: %w", err)
	}
	defer rows.Close()

	entries := []model.GuestbookEntry{}
	for rows.Next() {
		e, err := scanGuestbookEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan guestbook entry: %w", err)
		}
		entries = append(entries, *e)
	}
	return entries, rows.Err()
}
