package domain

import (
	"cmp"
	"fmt"
	"path"
	"strconv"
	"strings"

	dErrors "actarchive/pkg/domain-errors"
)

const (
	minYear = 1800
	maxYear = 9999

	maxKeyFieldLength = 64
)

// ClassificationKey is the natural key of a civil-registry act. Documents and
// inventory rows carry the same key; reconciliation matches on exact equality
// of all five fields.
type ClassificationKey struct {
	Bureau         string `json:"bureau"`
	RegistreType   string `json:"registre_type"`
	Year           int    `json:"year"`
	RegistreNumber string `json:"registre_number"`
	ActeNumber     string `json:"acte_number"`
}

// NewClassificationKey trims the text fields, parses the year and validates
// the result.
func NewClassificationKey(bureau, registreType, year, registreNumber, acteNumber string) (ClassificationKey, error) {
	key := ClassificationKey{
		Bureau:         strings.TrimSpace(bureau),
		RegistreType:   strings.TrimSpace(registreType),
		RegistreNumber: strings.TrimSpace(registreNumber),
		ActeNumber:     strings.TrimSpace(acteNumber),
	}
	y, err := ParseYear(year)
	if err != nil {
		return ClassificationKey{}, err
	}
	key.Year = y
	if err := key.Validate(); err != nil {
		return ClassificationKey{}, err
	}
	return key, nil
}

// ParseYear parses a four digit year in [1800, 9999].
func ParseYear(raw string) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, dErrors.New(dErrors.CodeValidation, "year is required")
	}
	if len(raw) != 4 {
		return 0, dErrors.New(dErrors.CodeValidation, "year must be a 4-digit number")
	}
	y, err := strconv.Atoi(raw)
	if err != nil {
		return 0, dErrors.New(dErrors.CodeValidation, "year must be a 4-digit number")
	}
	if y < minYear || y > maxYear {
		return 0, dErrors.New(dErrors.CodeValidation, fmt.Sprintf("year must be between %d and %d", minYear, maxYear))
	}
	return y, nil
}

// Validate checks every field is present and usable as a path segment.
func (k ClassificationKey) Validate() error {
	fields := []struct {
		name  string
		value string
	}{
		{"bureau", k.Bureau},
		{"registre_type", k.RegistreType},
		{"registre_number", k.RegistreNumber},
		{"acte_number", k.ActeNumber},
	}
	for _, f := range fields {
		if err := validateSegment(f.name, f.value); err != nil {
			return err
		}
	}
	if k.Year < minYear || k.Year > maxYear {
		return dErrors.New(dErrors.CodeValidation, fmt.Sprintf("year must be between %d and %d", minYear, maxYear))
	}
	return nil
}

func validateSegment(name, value string) error {
	if strings.TrimSpace(value) == "" {
		return dErrors.New(dErrors.CodeValidation, name+" is required")
	}
	if len(value) > maxKeyFieldLength {
		return dErrors.New(dErrors.CodeValidation, fmt.Sprintf("%s must be %d characters or less", name, maxKeyFieldLength))
	}
	if value == "." || value == ".." || strings.ContainsAny(value, `/\`) {
		return dErrors.New(dErrors.CodeValidation, name+" contains invalid characters")
	}
	return nil
}

// VirtualPath is where an approved act is archived:
// bureau/registreType/year/registreNumber/acteNumber.pdf
func (k ClassificationKey) VirtualPath() string {
	return path.Join(k.Bureau, k.RegistreType, strconv.Itoa(k.Year), k.RegistreNumber, k.ActeNumber+".pdf")
}

func (k ClassificationKey) String() string {
	return fmt.Sprintf("%s/%s/%d/%s/%s", k.Bureau, k.RegistreType, k.Year, k.RegistreNumber, k.ActeNumber)
}

// Compare orders keys field by field, for deterministic listings.
func (k ClassificationKey) Compare(other ClassificationKey) int {
	return cmp.Or(
		cmp.Compare(k.Bureau, other.Bureau),
		cmp.Compare(k.RegistreType, other.RegistreType),
		cmp.Compare(k.Year, other.Year),
		cmp.Compare(k.RegistreNumber, other.RegistreNumber),
		cmp.Compare(k.ActeNumber, other.ActeNumber),
	)
}

// KeyFilter narrows a key set by its leading fields. Zero fields match all.
type KeyFilter struct {
	Bureau       string `json:"bureau,omitempty"`
	RegistreType string `json:"registre_type,omitempty"`
	Year         int    `json:"year,omitempty"`
}

// ParseKeyFilter builds a filter from raw query values. A non-numeric year
// is a validation error.
func ParseKeyFilter(bureau, registreType, year string) (KeyFilter, error) {
	f := KeyFilter{
		Bureau:       strings.TrimSpace(bureau),
		RegistreType: strings.TrimSpace(registreType),
	}
	if strings.TrimSpace(year) != "" {
		y, err := ParseYear(year)
		if err != nil {
			return KeyFilter{}, err
		}
		f.Year = y
	}
	return f, nil
}

// IsZero reports whether the filter matches every key.
func (f KeyFilter) IsZero() bool {
	return f == KeyFilter{}
}

// Matches reports whether k passes the filter.
func (f KeyFilter) Matches(k ClassificationKey) bool {
	if f.Bureau != "" && k.Bureau != f.Bureau {
		return false
	}
	if f.RegistreType != "" && k.RegistreType != f.RegistreType {
		return false
	}
	if f.Year != 0 && k.Year != f.Year {
		return false
	}
	return true
}
