// Package models holds the inventory aggregates: a batch is one spreadsheet
// import, and its records are the acts the paper registers declare.
package models

import (
	"errors"
	"fmt"
	"strings"
	"time"

	id "actarchive/pkg/domain"
	dErrors "actarchive/pkg/domain-errors"
)

// MaxBatchRows bounds a single import.
const MaxBatchRows = 100_000

// Batch is one imported inventory spreadsheet. Records are immutable and are
// only ever deleted together with their batch.
type Batch struct {
	ID             id.BatchID `json:"id"`
	UploadedBy     id.UserID  `json:"uploaded_by"`
	SourceFilename string     `json:"source_filename"`
	RecordCount    int        `json:"record_count"`
	CreatedAt      time.Time  `json:"created_at"`
}

// Record is one declared act.
type Record struct {
	BatchID   id.BatchID `json:"batch_id"`
	RowNumber int        `json:"row_number"`
	id.ClassificationKey
}

// Row is an unvalidated inventory line as read from a spreadsheet or a JSON
// body. Line is the 1-based source line used in error messages; zero means
// "position in the slice".
type Row struct {
	Bureau         string `json:"bureau"`
	RegistreType   string `json:"registre_type"`
	Year           string `json:"year"`
	RegistreNumber string `json:"registre_number"`
	ActeNumber     string `json:"acte_number"`
	Line           int    `json:"-"`
}

// Key validates the row and returns its classification key.
func (r Row) Key() (id.ClassificationKey, error) {
	return id.NewClassificationKey(r.Bureau, r.RegistreType, r.Year, r.RegistreNumber, r.ActeNumber)
}

// IsBlank reports whether every key cell is empty.
func (r Row) IsBlank() bool {
	return strings.TrimSpace(r.Bureau+r.RegistreType+r.Year+r.RegistreNumber+r.ActeNumber) == ""
}

// ImportRequest is the JSON form of an inventory import.
type ImportRequest struct {
	SourceFilename string `json:"source_filename"`
	Rows           []Row  `json:"rows"`
}

// NewBatch validates rows and builds the batch with its records. The first
// invalid row aborts the import; its line number is in the error message.
func NewBatch(batchID id.BatchID, uploadedBy id.UserID, sourceFilename string, rows []Row, now time.Time) (*Batch, []Record, error) {
	if uploadedBy.IsNil() {
		return nil, nil, dErrors.New(dErrors.CodeInvariantViolation, "uploader is required")
	}
	if len(rows) == 0 {
		return nil, nil, dErrors.New(dErrors.CodeValidation, "inventory batch has no rows")
	}
	if len(rows) > MaxBatchRows {
		return nil, nil, dErrors.New(dErrors.CodeValidation, fmt.Sprintf("inventory batch exceeds %d rows", MaxBatchRows))
	}

	records := make([]Record, 0, len(rows))
	for i, row := range rows {
		line := row.Line
		if line == 0 {
			line = i + 1
		}
		key, err := row.Key()
		if err != nil {
			msg := err.Error()
			var de *dErrors.Error
			if errors.As(err, &de) {
				msg = de.Message
			}
			return nil, nil, dErrors.Wrap(err, dErrors.CodeValidation, fmt.Sprintf("row %d: %s", line, msg))
		}
		records = append(records, Record{BatchID: batchID, RowNumber: line, ClassificationKey: key})
	}

	batch := &Batch{
		ID:             batchID,
		UploadedBy:     uploadedBy,
		SourceFilename: strings.TrimSpace(sourceFilename),
		RecordCount:    len(records),
		CreatedAt:      now,
	}
	return batch, records, nil
}
