package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"

	"actarchive/internal/document/models"
	documentstore "actarchive/internal/document/store"
	inventoryservice "actarchive/internal/inventory/service"
	inventorystore "actarchive/internal/inventory/store"
	reconservice "actarchive/internal/reconciliation/service"
	id "actarchive/pkg/domain"
)

type harness struct {
	documents *documentstore.InMemory
	opts      *RootOptions
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	docs := documentstore.NewInMemory()
	inv := inventorystore.NewInMemory()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := &harness{documents: docs}
	h.opts = &RootOptions{open: func(context.Context, *RootOptions) (*Backend, error) {
		return &Backend{
			Inventory:      inventoryservice.New(inv, inventoryservice.WithLogger(logger)),
			Reconciliation: reconservice.New(inv, docs, reconservice.WithLogger(logger)),
			Close:          func() error { return nil },
		}, nil
	}}
	return h
}

func (h *harness) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand(h.opts)
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func (h *harness) archive(t *testing.T, acte string) {
	t.Helper()
	ctx := context.Background()
	key := id.ClassificationKey{Bureau: "Anfa", RegistreType: "N", Year: 2019, RegistreNumber: "12", ActeNumber: acte}
	doc, err := models.NewDocument(key, "incoming/"+acte+".pdf", acte+".pdf", 1, id.UserID(uuid.New()), time.Now())
	require.NoError(t, err)
	require.NoError(t, h.documents.Create(ctx, doc))
	stored := doc.Clone()
	stored.ApplyApproval(id.UserID(uuid.New()), time.Now())
	require.NoError(t, h.documents.UpdateIfStatus(ctx, stored, models.StatusPending))
}

func writeWorkbook(t *testing.T, rows [][]string) string {
	t.Helper()
	f := xlsx.NewFile()
	sheet, err := f.AddSheet("Inventaire")
	require.NoError(t, err)
	for _, data := range rows {
		row := sheet.AddRow()
		for _, v := range data {
			row.AddCell().SetString(v)
		}
	}
	path := filepath.Join(t.TempDir(), "inventaire.xlsx")
	require.NoError(t, f.Save(path))
	return path
}

func TestImportThenCompare(t *testing.T) {
	h := newHarness(t)
	h.archive(t, "1")
	h.archive(t, "9")

	path := writeWorkbook(t, [][]string{
		{"Inventaire Anfa 2019"},
		{"Bureau", "Type registre", "Année", "Numéro registre", "Numéro acte"},
		{"Anfa", "N", "2019", "12", "1"},
		{"Anfa", "N", "2019", "12", "2"},
		{"", "", "", "", ""},
		{"Anfa", "N", "2019", "12", "3"},
	})

	out, err := h.run(t, "import", path, "--uploader", uuid.NewString())
	require.NoError(t, err)
	var batch struct {
		ID          string `json:"id"`
		RecordCount int    `json:"record_count"`
		Source      string `json:"source_filename"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &batch))
	assert.Equal(t, 3, batch.RecordCount)
	assert.Equal(t, "inventaire.xlsx", batch.Source)

	out, err = h.run(t, "compare", batch.ID)
	require.NoError(t, err)
	var result struct {
		Summary struct {
			Matched   int     `json:"matched_count"`
			Missing   int     `json:"missing_count"`
			Extra     int     `json:"extra_count"`
			MatchRate float64 `json:"match_rate"`
		} `json:"summary"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	assert.Equal(t, 1, result.Summary.Matched)
	assert.Equal(t, 2, result.Summary.Missing)
	assert.Equal(t, 1, result.Summary.Extra)
	assert.Equal(t, 33.33, result.Summary.MatchRate)

	out, err = h.run(t, "compare", batch.ID, "--format", "text")
	require.NoError(t, err)
	assert.Contains(t, out, "1 matched, 2 missing, 1 extra (33.33%)")
	assert.Contains(t, out, "missing  Anfa/N/2019/12/2")
	assert.Contains(t, out, "extra    Anfa/N/2019/12/9")

	out, err = h.run(t, "tree", batch.ID, "--format", "text")
	require.NoError(t, err)
	assert.Contains(t, out, "count_based")
	assert.Contains(t, out, "  Anfa: 2/3")
}

func TestImportRequiresUploader(t *testing.T) {
	h := newHarness(t)
	t.Setenv("ACTCTL_USER_ID", "")
	path := writeWorkbook(t, [][]string{{"bureau", "type", "annee", "registre", "acte"}, {"Anfa", "N", "2019", "1", "1"}})

	_, err := h.run(t, "import", path)
	assert.ErrorContains(t, err, "--uploader")
}

func TestCompareRejectsBadArguments(t *testing.T) {
	h := newHarness(t)

	_, err := h.run(t, "compare", "not-a-batch")
	assert.Error(t, err)

	_, err = h.run(t, "compare", id.NewBatchID().String(), "--year", "20x9")
	assert.Error(t, err)

	_, err = h.run(t, "compare", id.NewBatchID().String())
	assert.ErrorContains(t, err, "not found")

	_, err = h.run(t, "compare", id.NewBatchID().String(), "--format", "yaml")
	assert.ErrorContains(t, err, "invalid format")
}

func TestMigrateNeedsDatabase(t *testing.T) {
	h := newHarness(t)
	h.opts.DatabaseURL = ""
	t.Setenv("DATABASE_URL", "")
	_, err := h.run(t, "migrate")
	assert.ErrorIs(t, err, errNoDatabase)
}
