// Package domain holds typed identifiers and the act classification key
// shared across modules. Parsing happens at trust boundaries (HTTP, CLI) so
// services only see valid values.
package domain

import (
	"strconv"
	"strings"

	"github.com/google/uuid"

	dErrors "actarchive/pkg/domain-errors"
)

// DocumentID identifies an act document. Documents use sequential numeric IDs.
type DocumentID int64

// UserID identifies an actor supplied by the upstream identity provider.
type UserID uuid.UUID

// BatchID identifies one inventory spreadsheet import.
type BatchID uuid.UUID

const maxIDLength = 64

// ParseDocumentID parses a positive decimal document ID.
func ParseDocumentID(s string) (DocumentID, error) {
	if s == "" || len(s) > 19 {
		return 0, dErrors.New(dErrors.CodeInvalidInput, "document ID must be a positive integer")
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil || n <= 0 {
		return 0, dErrors.New(dErrors.CodeInvalidInput, "document ID must be a positive integer")
	}
	return DocumentID(n), nil
}

func (d DocumentID) String() string {
	return strconv.FormatInt(int64(d), 10)
}

// ParseUserID parses a non-nil UUID user ID.
func ParseUserID(s string) (UserID, error) {
	u, err := parseUUID(s, "user ID")
	if err != nil {
		return UserID{}, err
	}
	return UserID(u), nil
}

func (u UserID) String() string { return uuid.UUID(u).String() }

// IsNil reports whether the ID is the zero UUID.
func (u UserID) IsNil() bool { return uuid.UUID(u) == uuid.Nil }

func (u UserID) MarshalText() ([]byte, error) { return uuid.UUID(u).MarshalText() }

func (u *UserID) UnmarshalText(data []byte) error {
	parsed, err := ParseUserID(string(data))
	if err != nil {
		return err
	}
	*u = parsed
	return nil
}

// NewBatchID allocates a fresh batch ID.
func NewBatchID() BatchID { return BatchID(uuid.New()) }

// ParseBatchID parses a non-nil UUID batch ID.
func ParseBatchID(s string) (BatchID, error) {
	u, err := parseUUID(s, "batch ID")
	if err != nil {
		return BatchID{}, err
	}
	return BatchID(u), nil
}

func (b BatchID) String() string { return uuid.UUID(b).String() }

func (b BatchID) IsNil() bool { return uuid.UUID(b) == uuid.Nil }

func (b BatchID) MarshalText() ([]byte, error) { return uuid.UUID(b).MarshalText() }

func (b *BatchID) UnmarshalText(data []byte) error {
	parsed, err := ParseBatchID(string(data))
	if err != nil {
		return err
	}
	*b = parsed
	return nil
}

func parseUUID(s, label string) (uuid.UUID, error) {
	if strings.TrimSpace(s) == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, label+" is required")
	}
	if len(s) > maxIDLength {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "invalid "+label)
	}
	u, err := uuid.Parse(s)
	if err != nil || u == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "invalid "+label)
	}
	return u, nil
}
