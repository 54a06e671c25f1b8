package deadletter

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Classification says whether a failed webhook effect is worth replaying.
type Classification string

const (
	Retryable Classification = "retryable"
	Permanent Classification = "permanent"
)

// Entry is a webhook event whose entitlement effect could not be applied.
// The raw payload is kept verbatim so an operator can replay it.
type Entry struct {
	ID             string         `json:"id"`
	EventID        string         `json:"event_id"`
	EventType      string         `json:"event_type"`
	Classification Classification `json:"classification"`
	Reason         string         `json:"reason"`
	Payload        []byte         `json:"payload"`
	CreatedAt      time.Time      `json:"created_at"`
}

// Store records failed webhook effects. The webhook endpoint acknowledges the
// provider regardless, so this table is the only place such failures surface
// besides logs.
type Store interface {
	Record(ctx context.Context, entry Entry) error
	List(ctx context.Context, limit int) ([]Entry, error)
}

type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

func (s *SQLiteStore) Record(ctx context.Context, entry Entry) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	query := `
		INSERT INTO webhook_dead_letters (id, event_id, event_type, classification, reason, payload, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`
	_, err := s.db.ExecContext(ctx, query,
		entry.ID, entry.EventID, entry.EventType, string(entry.Classification), entry.Reason, entry.Payload, entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to record dead letter: %w", err)
	}
	return nil
}

func (s *SQLiteStore) List(ctx context.Context, limit int) ([]Entry, error) {
	query := `
		SELECT id, event_id, event_type, classification, reason, payload, created_at
		FROM webhook_dead_letters
		ORDER BY created_at DESC
		LIMIT ?`
	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to select dead letters: %w", err)
	}
	defer rows.Close()

	var result []Entry
	for rows.Next() {
		var e Entry
		var class string
		if err := rows.Scan(&e.ID, &e.EventID, &e.EventType, &class, &e.Reason, &e.Payload, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.Classification = Classification(class)
		result = append(result, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}
