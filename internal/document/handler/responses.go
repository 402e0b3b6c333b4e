package handler

import (
	"time"

	id "actarchive/pkg/domain"
	"actarchive/pkg/platform/audit"
)

// RejectRequest is the body of POST /documents/{id}/reject.
type RejectRequest struct {
	ErrorType string `json:"error_type"`
	Message   string `json:"message"`
}

type historyEntry struct {
	ID          string            `json:"id"`
	Action      string            `json:"action"`
	PerformedBy string            `json:"performed_by"`
	Details     map[string]string `json:"details,omitempty"`
	RequestID   string            `json:"request_id,omitempty"`
	Timestamp   time.Time         `json:"timestamp"`
}

type historyResponse struct {
	DocumentID id.DocumentID  `json:"document_id"`
	Events     []historyEntry `json:"events"`
}

func toHistoryResponse(documentID id.DocumentID, events []audit.Event) historyResponse {
	resp := historyResponse{DocumentID: documentID, Events: make([]historyEntry, 0, len(events))}
	for _, e := range events {
		resp.Events = append(resp.Events, historyEntry{
			ID:          e.ID.String(),
			Action:      string(e.Action),
			PerformedBy: e.PerformedBy.String(),
			Details:     e.Details,
			RequestID:   e.RequestID,
			Timestamp:   e.Timestamp,
		})
	}
	return resp
}
