package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"actarchive/internal/inventory/models"
	"actarchive/internal/inventory/service/mocks"
	"actarchive/internal/inventory/store"
	id "actarchive/pkg/domain"
	dErrors "actarchive/pkg/domain-errors"
	"actarchive/pkg/requestcontext"
)

//go:generate mockgen -source=service.go -destination=mocks/mocks.go -package=mocks

type InventoryServiceSuite struct {
	suite.Suite
	ctx      context.Context
	store    *store.InMemory
	service  *Service
	batchID  id.BatchID
	uploader id.UserID
	now      time.Time
}

func TestInventoryServiceSuite(t *testing.T) {
	suite.Run(t, new(InventoryServiceSuite))
}

func (s *InventoryServiceSuite) SetupTest() {
	s.now = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	s.ctx = requestcontext.WithTime(context.Background(), s.now)
	s.store = store.NewInMemory()
	s.batchID = id.NewBatchID()
	s.uploader = id.UserID(uuid.New())
	s.service = New(s.store,
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithIDGenerator(func() id.BatchID { return s.batchID }),
	)
}

func validRows() []models.Row {
	return []models.Row{
		{Bureau: "Anfa", RegistreType: "N", Year: "2019", RegistreNumber: "12", ActeNumber: "1", Line: 2},
		{Bureau: "Anfa", RegistreType: "N", Year: "2019", RegistreNumber: "12", ActeNumber: "2", Line: 3},
		{Bureau: "Anfa", RegistreType: "N", Year: "2019", RegistreNumber: "12", ActeNumber: "3", Line: 4},
	}
}

func (s *InventoryServiceSuite) TestImportBatch() {
	s.Run("stores every row under one batch", func() {
		batch, err := s.service.ImportBatch(s.ctx, s.uploader, "inventaire.xlsx", validRows())
		s.Require().NoError(err)
		s.Equal(s.batchID, batch.ID)
		s.Equal(3, batch.RecordCount)
		s.Equal(s.now, batch.CreatedAt)

		records, err := s.service.Records(s.ctx, batch.ID)
		s.Require().NoError(err)
		s.Len(records, 3)
	})

	s.Run("one bad row rejects the whole batch", func() {
		s.batchID = id.NewBatchID()
		rows := validRows()
		rows[1].Year = "19x9"

		_, err := s.service.ImportBatch(s.ctx, s.uploader, "inventaire.xlsx", rows)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
		s.Contains(err.Error(), "row 3")

		_, err = s.service.GetBatch(s.ctx, s.batchID)
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})
}

func (s *InventoryServiceSuite) TestGetUnknownBatch() {
	_, err := s.service.GetBatch(s.ctx, id.NewBatchID())
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))

	_, err = s.service.Records(s.ctx, id.NewBatchID())
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

func (s *InventoryServiceSuite) TestDeleteBatchInvalidatesCache() {
	ctrl := gomock.NewController(s.T())
	invalidator := mocks.NewMockInvalidator(ctrl)
	svc := New(s.store, WithInvalidator(invalidator), WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))

	batch, err := svc.ImportBatch(s.ctx, s.uploader, "inventaire.xlsx", validRows())
	s.Require().NoError(err)

	invalidator.EXPECT().InvalidateBatch(gomock.Any(), batch.ID).Return(errors.New("redis down"))
	s.Require().NoError(svc.DeleteBatch(s.ctx, batch.ID, id.UserID(uuid.New())))

	batches, err := svc.ListBatches(s.ctx)
	s.Require().NoError(err)
	s.Empty(batches)

	err = svc.DeleteBatch(s.ctx, batch.ID, id.UserID(uuid.New()))
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

func (s *InventoryServiceSuite) TestStoreFailureIsInternal() {
	ctrl := gomock.NewController(s.T())
	st := mocks.NewMockStore(ctrl)
	svc := New(st, WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))

	st.EXPECT().CreateBatch(gomock.Any(), gomock.Any(), gomock.Len(3)).Return(errors.New("connection reset"))

	_, err := svc.ImportBatch(s.ctx, s.uploader, "inventaire.xlsx", validRows())
	s.True(dErrors.HasCode(err, dErrors.CodeInternal))
}
