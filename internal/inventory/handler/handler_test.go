package handler

import (
	"bytes"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"github.com/tealeg/xlsx/v2"
	"go.uber.org/mock/gomock"

	"actarchive/internal/access"
	"actarchive/internal/inventory/handler/mocks"
	"actarchive/internal/inventory/models"
	"actarchive/internal/platform/middleware"
	id "actarchive/pkg/domain"
	dErrors "actarchive/pkg/domain-errors"
	"actarchive/pkg/testutil"
)

//go:generate mockgen -source=handler.go -destination=mocks/mocks.go -package=mocks

const (
	agentID      = "0b6c3c1e-8f55-4c3a-9d3e-5f4f3d1f9a01"
	supervisorID = "2a7f9d0c-1e44-4b0b-8c52-7d0d6e2b3c02"
	adminID      = "9e1d2c3b-4a5f-4e6d-8c7b-6a5f4e3d2c03"
)

type InventoryHandlerSuite struct {
	suite.Suite
	service *mocks.MockService
	router  http.Handler
}

func TestInventoryHandlerSuite(t *testing.T) {
	suite.Run(t, new(InventoryHandlerSuite))
}

func (s *InventoryHandlerSuite) SetupTest() {
	s.service = mocks.NewMockService(gomock.NewController(s.T()))
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	r := chi.NewRouter()
	r.Use(middleware.RequireIdentity(logger, nil))
	New(s.service, logger, nil).Register(r)
	s.router = r
}

func (s *InventoryHandlerSuite) batch() *models.Batch {
	uploader, err := id.ParseUserID(supervisorID)
	s.Require().NoError(err)
	return &models.Batch{
		ID:             id.NewBatchID(),
		UploadedBy:     uploader,
		SourceFilename: "inventaire.xlsx",
		RecordCount:    2,
		CreatedAt:      time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC),
	}
}

func (s *InventoryHandlerSuite) TestImportJSON() {
	batch := s.batch()
	s.service.EXPECT().
		ImportBatch(gomock.Any(), batch.UploadedBy, "manual", gomock.Len(2)).
		Return(batch, nil)

	req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/inventory/batches", models.ImportRequest{
		SourceFilename: "manual",
		Rows: []models.Row{
			{Bureau: "Anfa", RegistreType: "N", Year: "2019", RegistreNumber: "12", ActeNumber: "1"},
			{Bureau: "Anfa", RegistreType: "N", Year: "2019", RegistreNumber: "12", ActeNumber: "2"},
		},
	})
	rr := testutil.DoRequest(s.router, testutil.WithIdentityHeaders(req, supervisorID, access.RoleSupervisor))

	s.Equal(http.StatusCreated, rr.Code)
	resp := testutil.UnmarshalResponse[map[string]any](s.T(), rr)
	s.Equal(batch.ID.String(), (*resp)["id"])
	s.EqualValues(2, (*resp)["record_count"])
}

func (s *InventoryHandlerSuite) TestImportSpreadsheet() {
	f := xlsx.NewFile()
	sheet, err := f.AddSheet("Feuil1")
	s.Require().NoError(err)
	for _, line := range [][]string{
		{"Bureau", "Type Registre", "Année", "Numéro Registre", "Numéro Acte"},
		{"Anfa", "N", "2019", "12", "1"},
	} {
		row := sheet.AddRow()
		for _, v := range line {
			row.AddCell().SetString(v)
		}
	}
	var workbook bytes.Buffer
	s.Require().NoError(f.Write(&workbook))

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", "anfa-2019.xlsx")
	s.Require().NoError(err)
	_, err = part.Write(workbook.Bytes())
	s.Require().NoError(err)
	s.Require().NoError(mw.Close())

	s.service.EXPECT().
		ImportBatch(gomock.Any(), gomock.Any(), "anfa-2019.xlsx", []models.Row{{
			Bureau: "Anfa", RegistreType: "N", Year: "2019", RegistreNumber: "12", ActeNumber: "1", Line: 2,
		}}).
		Return(s.batch(), nil)

	req := httptest.NewRequest(http.MethodPost, "/inventory/batches", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rr := testutil.DoRequest(s.router, testutil.WithIdentityHeaders(req, adminID, access.RoleAdmin))

	s.Equal(http.StatusCreated, rr.Code, rr.Body.String())
}

func (s *InventoryHandlerSuite) TestImportValidationError() {
	s.service.EXPECT().ImportBatch(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
		Return(nil, dErrors.New(dErrors.CodeValidation, "row 7: year must be a 4-digit number"))

	req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/inventory/batches", models.ImportRequest{Rows: []models.Row{{}}})
	rr := testutil.DoRequest(s.router, testutil.WithIdentityHeaders(req, supervisorID, access.RoleSupervisor))

	testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, "validation_error")
}

func (s *InventoryHandlerSuite) TestAgentsAreForbidden() {
	req := testutil.NewRequest(s.T(), http.MethodGet, "/inventory/batches")
	rr := testutil.DoRequest(s.router, testutil.WithIdentityHeaders(req, agentID, access.RoleAgent))
	testutil.AssertStatusAndError(s.T(), rr, http.StatusForbidden, "forbidden")
}

func (s *InventoryHandlerSuite) TestGetWithRecords() {
	batch := s.batch()
	s.service.EXPECT().GetBatch(gomock.Any(), batch.ID).Return(batch, nil)
	s.service.EXPECT().Records(gomock.Any(), batch.ID).Return([]models.Record{
		{BatchID: batch.ID, RowNumber: 2, ClassificationKey: id.ClassificationKey{Bureau: "Anfa", RegistreType: "N", Year: 2019, RegistreNumber: "12", ActeNumber: "1"}},
	}, nil)

	req := testutil.NewRequest(s.T(), http.MethodGet, "/inventory/batches/"+batch.ID.String()+"?records=true")
	rr := testutil.DoRequest(s.router, testutil.WithIdentityHeaders(req, supervisorID, access.RoleSupervisor))

	s.Require().Equal(http.StatusOK, rr.Code)
	resp := testutil.UnmarshalResponse[map[string]any](s.T(), rr)
	records := (*resp)["records"].([]any)
	require.Len(s.T(), records, 1)
	s.Equal("Anfa", records[0].(map[string]any)["bureau"])
}

func (s *InventoryHandlerSuite) TestDelete() {
	batch := s.batch()

	s.Run("supervisor cannot delete", func() {
		req := testutil.NewRequest(s.T(), http.MethodDelete, "/inventory/batches/"+batch.ID.String())
		rr := testutil.DoRequest(s.router, testutil.WithIdentityHeaders(req, supervisorID, access.RoleSupervisor))
		s.Equal(http.StatusForbidden, rr.Code)
	})

	s.Run("admin deletes", func() {
		s.service.EXPECT().DeleteBatch(gomock.Any(), batch.ID, gomock.Any()).Return(nil)
		req := testutil.NewRequest(s.T(), http.MethodDelete, "/inventory/batches/"+batch.ID.String())
		rr := testutil.DoRequest(s.router, testutil.WithIdentityHeaders(req, adminID, access.RoleAdmin))
		s.Equal(http.StatusNoContent, rr.Code)
	})

	s.Run("unknown batch", func() {
		s.service.EXPECT().DeleteBatch(gomock.Any(), gomock.Any(), gomock.Any()).
			Return(dErrors.New(dErrors.CodeNotFound, "inventory batch not found"))
		req := testutil.NewRequest(s.T(), http.MethodDelete, "/inventory/batches/"+id.NewBatchID().String())
		rr := testutil.DoRequest(s.router, testutil.WithIdentityHeaders(req, adminID, access.RoleAdmin))
		testutil.AssertStatusAndError(s.T(), rr, http.StatusNotFound, "not_found")
	})
}
