// Package importer reads inventory spreadsheets. It locates the header row
// by column name, so sheets with title rows above the table still import.
package importer

import (
	"fmt"
	"io"
	"strings"
	"unicode"

	"github.com/tealeg/xlsx/v2"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"actarchive/internal/inventory/models"
	dErrors "actarchive/pkg/domain-errors"
)

// maxHeaderScan is how many leading rows are searched for the header.
const maxHeaderScan = 20

// Options selects the sheet to read.
type Options struct {
	SheetName string // default: first sheet
}

type column int

const (
	colBureau column = iota
	colRegistreType
	colYear
	colRegistreNumber
	colActeNumber
	numColumns
)

// headerAliases maps folded header text to its column.
var headerAliases = map[string]column{
	"bureau":          colBureau,
	"registre_type":   colRegistreType,
	"type_registre":   colRegistreType,
	"type":            colRegistreType,
	"annee":           colYear,
	"year":            colYear,
	"numero_registre": colRegistreNumber,
	"registre_number": colRegistreNumber,
	"registre":        colRegistreNumber,
	"numero_acte":     colActeNumber,
	"acte_number":     colActeNumber,
	"acte":            colActeNumber,
}

var columnNames = [numColumns]string{"bureau", "registre_type", "annee", "numero_registre", "numero_acte"}

// Read parses an xlsx workbook from r.
func Read(r io.Reader, opts Options) ([]models.Row, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeBadRequest, "failed to read spreadsheet")
	}
	return ReadBytes(data, opts)
}

// ReadBytes parses an xlsx workbook held in memory.
func ReadBytes(data []byte, opts Options) ([]models.Row, error) {
	f, err := xlsx.OpenBinary(data)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeValidation, "file is not a valid xlsx workbook")
	}
	sheet, err := pickSheet(f, opts)
	if err != nil {
		return nil, err
	}
	return ParseRows(sheetCells(sheet))
}

// ParseRows finds the header row in cells and maps each following non-blank
// line to a Row. Line numbers are 1-based sheet rows.
func ParseRows(cells [][]string) ([]models.Row, error) {
	headerIdx, index, err := findHeader(cells)
	if err != nil {
		return nil, err
	}

	rows := make([]models.Row, 0, len(cells)-headerIdx-1)
	for i := headerIdx + 1; i < len(cells); i++ {
		line := cells[i]
		row := models.Row{
			Bureau:         cellAt(line, index[colBureau]),
			RegistreType:   cellAt(line, index[colRegistreType]),
			Year:           normalizeYear(cellAt(line, index[colYear])),
			RegistreNumber: cellAt(line, index[colRegistreNumber]),
			ActeNumber:     cellAt(line, index[colActeNumber]),
			Line:           i + 1,
		}
		if row.IsBlank() {
			continue
		}
		rows = append(rows, row)
	}
	if len(rows) == 0 {
		return nil, dErrors.New(dErrors.CodeValidation, "spreadsheet has no inventory rows")
	}
	return rows, nil
}

func findHeader(cells [][]string) (int, [numColumns]int, error) {
	for i := 0; i < len(cells) && i < maxHeaderScan; i++ {
		var index [numColumns]int
		for c := range index {
			index[c] = -1
		}
		found := 0
		for j, raw := range cells[i] {
			col, ok := headerAliases[FoldHeader(raw)]
			if !ok || index[col] != -1 {
				continue
			}
			index[col] = j
			found++
		}
		if found == int(numColumns) {
			return i, index, nil
		}
	}
	return 0, [numColumns]int{}, dErrors.New(dErrors.CodeValidation,
		fmt.Sprintf("no header row with columns %s found", strings.Join(columnNames[:], ", ")))
}

// FoldHeader lowercases, strips accents and joins words with underscores:
// "Numéro Acte" and "numero_acte" both fold to "numero_acte".
func FoldHeader(raw string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, raw)
	if err != nil {
		folded = raw
	}
	folded = strings.ToLower(strings.TrimSpace(folded))
	return strings.Join(strings.FieldsFunc(folded, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}), "_")
}

// normalizeYear drops the ".0" a numeric cell can carry.
func normalizeYear(raw string) string {
	raw = strings.TrimSpace(raw)
	if whole, frac, ok := strings.Cut(raw, "."); ok && strings.Trim(frac, "0") == "" {
		return whole
	}
	return raw
}

func cellAt(line []string, idx int) string {
	if idx < 0 || idx >= len(line) {
		return ""
	}
	return strings.TrimSpace(line[idx])
}

func pickSheet(f *xlsx.File, opts Options) (*xlsx.Sheet, error) {
	if opts.SheetName != "" {
		sheet, ok := f.Sheet[opts.SheetName]
		if !ok {
			return nil, dErrors.New(dErrors.CodeValidation, fmt.Sprintf("sheet %q not found", opts.SheetName))
		}
		return sheet, nil
	}
	if len(f.Sheets) == 0 {
		return nil, dErrors.New(dErrors.CodeValidation, "workbook has no sheets")
	}
	return f.Sheets[0], nil
}

func sheetCells(sheet *xlsx.Sheet) [][]string {
	out := make([][]string, len(sheet.Rows))
	for i, row := range sheet.Rows {
		if row == nil {
			continue
		}
		line := make([]string, len(row.Cells))
		for j, cell := range row.Cells {
			if cell != nil {
				line[j] = cell.String()
			}
		}
		out[i] = line
	}
	return out
}
