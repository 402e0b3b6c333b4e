package models

import (
	"strings"

	dErrors "actarchive/pkg/domain-errors"
)

// Status is the workflow position of an act document.
type Status string

const (
	StatusPending           Status = "pending"
	StatusReviewing         Status = "reviewing"
	StatusRejectedForUpdate Status = "rejected_for_update"
	StatusStored            Status = "stored"
	// StatusProcessing and StatusFieldsExtracted are set by downstream
	// extraction jobs; the reviewer workflow treats them as terminal.
	StatusProcessing      Status = "processing"
	StatusFieldsExtracted Status = "fields_extracted"
)

var transitions = map[Status][]Status{
	StatusPending:           {StatusReviewing, StatusStored, StatusRejectedForUpdate},
	StatusReviewing:         {StatusStored, StatusRejectedForUpdate},
	StatusRejectedForUpdate: {StatusPending},
}

// CanTransitionTo reports whether the reviewer workflow allows s -> next.
func (s Status) CanTransitionTo(next Status) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// IsValid reports whether s is a known status.
func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusReviewing, StatusRejectedForUpdate,
		StatusStored, StatusProcessing, StatusFieldsExtracted:
		return true
	}
	return false
}

// IsTerminal reports whether no reviewer transition leaves s.
func (s Status) IsTerminal() bool {
	return len(transitions[s]) == 0
}

// ParseStatus validates a status filter value.
func ParseStatus(raw string) (Status, error) {
	s := Status(strings.ToLower(strings.TrimSpace(raw)))
	if !s.IsValid() {
		return "", dErrors.New(dErrors.CodeValidation, "unknown status: "+raw)
	}
	return s, nil
}

// ErrorType classifies why a reviewer rejected a scan.
type ErrorType string

const (
	ErrorTypeQualityIssue        ErrorType = "quality_issue"
	ErrorTypeWrongClassification ErrorType = "wrong_classification"
	ErrorTypeIncompleteDocument  ErrorType = "incomplete_document"
	ErrorTypeDuplicate           ErrorType = "duplicate"
	ErrorTypeOther               ErrorType = "other"
)

func (e ErrorType) IsValid() bool {
	switch e {
	case ErrorTypeQualityIssue, ErrorTypeWrongClassification, ErrorTypeIncompleteDocument,
		ErrorTypeDuplicate, ErrorTypeOther:
		return true
	}
	return false
}
