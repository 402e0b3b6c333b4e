package models

import (
	"strings"

	id "actarchive/pkg/domain"
	dErrors "actarchive/pkg/domain-errors"
)

// UploadRequest is the metadata captured when a scan is registered.
type UploadRequest struct {
	Bureau           string `json:"bureau"`
	RegistreType     string `json:"registre_type"`
	Year             string `json:"year"`
	RegistreNumber   string `json:"registre_number"`
	ActeNumber       string `json:"acte_number"`
	FilePath         string `json:"file_path"`
	OriginalFilename string `json:"original_filename"`
	FileSize         int64  `json:"file_size"`
}

func (r *UploadRequest) Normalize() {
	r.Bureau = strings.TrimSpace(r.Bureau)
	r.RegistreType = strings.TrimSpace(r.RegistreType)
	r.Year = strings.TrimSpace(r.Year)
	r.RegistreNumber = strings.TrimSpace(r.RegistreNumber)
	r.ActeNumber = strings.TrimSpace(r.ActeNumber)
	r.FilePath = strings.TrimSpace(r.FilePath)
	r.OriginalFilename = strings.TrimSpace(r.OriginalFilename)
}

// Key validates and returns the classification key.
func (r *UploadRequest) Key() (id.ClassificationKey, error) {
	return id.NewClassificationKey(r.Bureau, r.RegistreType, r.Year, r.RegistreNumber, r.ActeNumber)
}

func (r *UploadRequest) Validate() error {
	if _, err := r.Key(); err != nil {
		return err
	}
	if r.FilePath == "" {
		return dErrors.New(dErrors.CodeValidation, "file_path is required")
	}
	if r.FileSize < 0 {
		return dErrors.New(dErrors.CodeValidation, "file_size cannot be negative")
	}
	return nil
}

// ReuploadRequest replaces the scan of a rejected document.
type ReuploadRequest struct {
	FilePath         string `json:"file_path"`
	OriginalFilename string `json:"original_filename"`
	FileSize         int64  `json:"file_size"`
}

func (r *ReuploadRequest) Normalize() {
	r.FilePath = strings.TrimSpace(r.FilePath)
	r.OriginalFilename = strings.TrimSpace(r.OriginalFilename)
}

func (r *ReuploadRequest) Validate() error {
	if r.FilePath == "" {
		return dErrors.New(dErrors.CodeValidation, "file_path is required")
	}
	if r.FileSize < 0 {
		return dErrors.New(dErrors.CodeValidation, "file_size cannot be negative")
	}
	return nil
}

const (
	DefaultListLimit = 50
	MaxListLimit     = 500
)

// ListFilter narrows a document listing. Zero fields match everything.
type ListFilter struct {
	Status       Status
	Bureau       string
	RegistreType string
	Year         int
	UploadedBy   id.UserID
	Limit        int
	Offset       int
}

// Normalize trims text fields and clamps pagination.
func (f *ListFilter) Normalize() {
	f.Bureau = strings.TrimSpace(f.Bureau)
	f.RegistreType = strings.TrimSpace(f.RegistreType)
	if f.Limit <= 0 {
		f.Limit = DefaultListLimit
	}
	if f.Limit > MaxListLimit {
		f.Limit = MaxListLimit
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
}

// Matches reports whether d passes the non-pagination filters.
func (f ListFilter) Matches(d *Document) bool {
	if f.Status != "" && d.Status != f.Status {
		return false
	}
	if f.Bureau != "" && d.Bureau != f.Bureau {
		return false
	}
	if f.RegistreType != "" && d.RegistreType != f.RegistreType {
		return false
	}
	if f.Year != 0 && d.Year != f.Year {
		return false
	}
	if !f.UploadedBy.IsNil() && d.UploadedBy != f.UploadedBy {
		return false
	}
	return true
}

// ListResult is one page of documents plus the unpaginated total.
type ListResult struct {
	Documents []*Document `json:"documents"`
	Total     int         `json:"total"`
	Limit     int         `json:"limit"`
	Offset    int         `json:"offset"`
}
