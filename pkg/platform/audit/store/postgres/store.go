package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	id "actarchive/pkg/domain"
	audit "actarchive/pkg/platform/audit"
	txcontext "actarchive/pkg/platform/tx"
)

// Store persists history events in the document_history table. Rows are
// insert-only; the table has no UPDATE path.
type Store struct {
	db *sql.DB
}

// New creates a PostgreSQL history store.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Append inserts an event. Re-delivery of the same event ID is ignored, which
// keeps retries from duplicating trail entries.
func (s *Store) Append(ctx context.Context, event audit.Event) error {
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	details, err := json.Marshal(event.Details)
	if err != nil {
		return fmt.Errorf("marshal history details: %w", err)
	}

	var performedBy *uuid.UUID
	if !event.PerformedBy.IsNil() {
		u := uuid.UUID(event.PerformedBy)
		performedBy = &u
	}

	query := `
		INSERT INTO document_history (id, document_id, action, performed_by, details, request_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO NOTHING
	`
	_, err = txcontext.Pick(ctx, s.db).ExecContext(ctx, query,
		event.ID,
		int64(event.DocumentID),
		string(event.Action),
		performedBy,
		string(details),
		event.RequestID,
		event.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("insert history event: %w", err)
	}
	return nil
}

// ListByDocument returns a document's events oldest first.
func (s *Store) ListByDocument(ctx context.Context, documentID id.DocumentID) ([]audit.Event, error) {
	query := `
		SELECT id, document_id, action, performed_by, details, request_id, created_at
		FROM document_history
		WHERE document_id = $1
		ORDER BY created_at ASC, seq ASC
	`
	rows, err := txcontext.Pick(ctx, s.db).QueryContext(ctx, query, int64(documentID))
	if err != nil {
		return nil, fmt.Errorf("query history events: %w", err)
	}
	defer rows.Close()

	var events []audit.Event
	for rows.Next() {
		var (
			event       audit.Event
			docID       int64
			action      string
			performedBy *uuid.UUID
			details     []byte
		)
		if err := rows.Scan(&event.ID, &docID, &action, &performedBy, &details, &event.RequestID, &event.Timestamp); err != nil {
			return nil, fmt.Errorf("scan history event: %w", err)
		}
		event.DocumentID = id.DocumentID(docID)
		event.Action = audit.Action(action)
		if performedBy != nil {
			event.PerformedBy = id.UserID(*performedBy)
		}
		if len(details) > 0 {
			if err := json.Unmarshal(details, &event.Details); err != nil {
				return nil, fmt.Errorf("decode history details: %w", err)
			}
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate history events: %w", err)
	}
	return events, nil
}
