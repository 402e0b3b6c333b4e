package service

//go:generate mockgen -source=service.go -destination=mocks/mocks.go -package=mocks

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/go-git/go-billy/v5/util"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"actarchive/internal/access"
	"actarchive/internal/document/models"
	"actarchive/internal/document/service/mocks"
	"actarchive/internal/document/storage"
	"actarchive/internal/document/store"
	id "actarchive/pkg/domain"
	dErrors "actarchive/pkg/domain-errors"
	"actarchive/pkg/platform/audit"
	"actarchive/pkg/platform/audit/publisher"
	auditmemory "actarchive/pkg/platform/audit/store/memory"
	"actarchive/pkg/platform/sentinel"
	"actarchive/pkg/requestcontext"
)

type WorkflowSuite struct {
	suite.Suite
	ctx      context.Context
	store    *store.InMemory
	files    *storage.Storage
	history  *auditmemory.InMemoryStore
	service  *Service
	uploader id.UserID
	reviewer id.UserID
}

func TestWorkflowSuite(t *testing.T) {
	suite.Run(t, new(WorkflowSuite))
}

func (s *WorkflowSuite) SetupTest() {
	s.ctx = requestcontext.WithTime(context.Background(), time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC))
	s.store = store.NewInMemory()
	s.files = storage.NewInMemory()
	s.history = auditmemory.NewInMemoryStore()
	s.uploader = id.UserID(uuid.New())
	s.reviewer = id.UserID(uuid.New())
	s.service = New(s.store, s.files,
		WithLogger(discardLogger()),
		WithHistoryPublisher(publisher.NewPublisher(s.history)),
		WithHistoryReader(s.history),
	)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func uploadRequest(filePath string) *models.UploadRequest {
	return &models.UploadRequest{
		Bureau:           "AnfaBureau",
		RegistreType:     "naissances",
		Year:             "2020",
		RegistreNumber:   "R1",
		ActeNumber:       "A100",
		FilePath:         filePath,
		OriginalFilename: "A100.pdf",
		FileSize:         3,
	}
}

func (s *WorkflowSuite) upload(filePath string) *models.Document {
	s.Require().NoError(util.WriteFile(s.files.Filesystem(), filePath, []byte("pdf"), 0o640))
	doc, err := s.service.Upload(s.ctx, uploadRequest(filePath), s.uploader)
	s.Require().NoError(err)
	return doc
}

func (s *WorkflowSuite) fileExists(path string) bool {
	ok, err := s.files.Exists(path)
	s.Require().NoError(err)
	return ok
}

func (s *WorkflowSuite) actions(documentID id.DocumentID) []audit.Action {
	events, err := s.history.ListByDocument(s.ctx, documentID)
	s.Require().NoError(err)
	out := make([]audit.Action, 0, len(events))
	for _, e := range events {
		out = append(out, e.Action)
	}
	return out
}

func (s *WorkflowSuite) TestUploadReviewApprove() {
	doc := s.upload("/incoming/a100.pdf")
	s.Equal(models.StatusPending, doc.Status)
	s.Empty(doc.VirtualPath)

	reviewed, err := s.service.StartReview(s.ctx, doc.ID, s.reviewer)
	s.Require().NoError(err)
	s.Equal(models.StatusReviewing, reviewed.Status)
	s.Equal(s.reviewer, *reviewed.ReviewedBy)

	approved, err := s.service.Approve(s.ctx, doc.ID, s.reviewer)
	s.Require().NoError(err)
	s.Equal(models.StatusStored, approved.Status)
	s.Equal("AnfaBureau/naissances/2020/R1/A100.pdf", approved.VirtualPath)
	s.Equal(approved.VirtualPath, approved.FilePath)
	s.NotNil(approved.StoredAt)

	s.True(s.fileExists("AnfaBureau/naissances/2020/R1/A100.pdf"))
	s.False(s.fileExists("/incoming/a100.pdf"))

	s.Equal([]audit.Action{audit.ActionUploaded, audit.ActionReviewStarted, audit.ActionApproved}, s.actions(doc.ID))
}

func (s *WorkflowSuite) TestApproveTwice() {
	doc := s.upload("/incoming/a100.pdf")
	first, err := s.service.Approve(s.ctx, doc.ID, s.reviewer)
	s.Require().NoError(err)

	_, err = s.service.Approve(s.ctx, doc.ID, s.reviewer)
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidState))

	current, err := s.store.FindByID(s.ctx, doc.ID)
	s.Require().NoError(err)
	s.Equal(first.VirtualPath, current.VirtualPath)
	s.Equal([]audit.Action{audit.ActionUploaded, audit.ActionApproved}, s.actions(doc.ID))
}

func (s *WorkflowSuite) TestRejectThenReupload() {
	doc := s.upload("/incoming/a100.pdf")

	s.Run("rejects short reasons", func() {
		_, err := s.service.Reject(s.ctx, doc.ID, s.reviewer, models.ErrorTypeQualityIssue, "blurry")
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Run("rejects unknown error types", func() {
		_, err := s.service.Reject(s.ctx, doc.ID, s.reviewer, "smudged", "Scan too blurry to read numbers")
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	rejected, err := s.service.Reject(s.ctx, doc.ID, s.reviewer, models.ErrorTypeQualityIssue, "Scan too blurry to read numbers")
	s.Require().NoError(err)
	s.Equal(models.StatusRejectedForUpdate, rejected.Status)
	s.Require().NotNil(rejected.Rejection)
	s.Equal(models.ErrorTypeQualityIssue, rejected.Rejection.ErrorType)

	_, err = s.service.Approve(s.ctx, doc.ID, s.reviewer)
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidState))

	s.Require().NoError(util.WriteFile(s.files.Filesystem(), "/incoming/a100-v2.pdf", []byte("pdf2"), 0o640))
	reuploaded, err := s.service.Reupload(s.ctx, doc.ID, &models.ReuploadRequest{
		FilePath:         "/incoming/a100-v2.pdf",
		OriginalFilename: "A100-v2.pdf",
		FileSize:         4,
	}, s.uploader)
	s.Require().NoError(err)
	s.Equal(models.StatusPending, reuploaded.Status)
	s.Nil(reuploaded.Rejection)
	s.Nil(reuploaded.ReviewedBy)
	s.Nil(reuploaded.ReviewedAt)
	s.Equal("/incoming/a100-v2.pdf", reuploaded.FilePath)
	s.False(s.fileExists("/incoming/a100.pdf"))

	s.Equal([]audit.Action{audit.ActionUploaded, audit.ActionRejected, audit.ActionReuploaded}, s.actions(doc.ID))
}

func (s *WorkflowSuite) TestReuploadRequiresRejection() {
	doc := s.upload("/incoming/a100.pdf")
	_, err := s.service.Reupload(s.ctx, doc.ID, &models.ReuploadRequest{FilePath: "/incoming/x.pdf"}, s.uploader)
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidState))
}

func (s *WorkflowSuite) TestConcurrentStartReview() {
	doc := s.upload("/incoming/a100.pdf")

	const reviewers = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		conflicts int
	)
	for i := 0; i < reviewers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.service.StartReview(s.ctx, doc.ID, id.UserID(uuid.New()))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case dErrors.HasCode(err, dErrors.CodeInvalidState):
				conflicts++
			}
		}()
	}
	wg.Wait()

	s.Equal(1, successes)
	s.Equal(reviewers-1, conflicts)
	s.Equal([]audit.Action{audit.ActionUploaded, audit.ActionReviewStarted}, s.actions(doc.ID))
}

func (s *WorkflowSuite) TestUploadValidation() {
	tests := []struct {
		name   string
		mutate func(r *models.UploadRequest)
	}{
		{"blank bureau", func(r *models.UploadRequest) { r.Bureau = "   " }},
		{"non numeric year", func(r *models.UploadRequest) { r.Year = "20x0" }},
		{"missing file path", func(r *models.UploadRequest) { r.FilePath = "" }},
	}
	for _, tt := range tests {
		s.Run(tt.name, func() {
			req := uploadRequest("/incoming/a.pdf")
			tt.mutate(req)
			_, err := s.service.Upload(s.ctx, req, s.uploader)
			s.True(dErrors.HasCode(err, dErrors.CodeValidation))
		})
	}
}

func (s *WorkflowSuite) TestApproveMissingSourceFile() {
	doc, err := s.service.Upload(s.ctx, uploadRequest("/incoming/ghost.pdf"), s.uploader)
	s.Require().NoError(err)

	_, err = s.service.Approve(s.ctx, doc.ID, s.reviewer)
	s.True(dErrors.HasCode(err, dErrors.CodeStorage))

	current, err := s.store.FindByID(s.ctx, doc.ID)
	s.Require().NoError(err)
	s.Equal(models.StatusPending, current.Status)
	s.Empty(current.VirtualPath)
}

func (s *WorkflowSuite) TestNotFound() {
	_, err := s.service.StartReview(s.ctx, 404, s.reviewer)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))

	_, err = s.service.Get(s.ctx, 404, access.Unrestricted())
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

func (s *WorkflowSuite) TestDelete() {
	doc := s.upload("/incoming/a100.pdf")
	admin := id.UserID(uuid.New())

	s.Require().NoError(s.service.Delete(s.ctx, doc.ID, admin))
	s.False(s.fileExists("/incoming/a100.pdf"))

	_, err := s.store.FindByID(s.ctx, doc.ID)
	s.ErrorIs(err, sentinel.ErrNotFound)
	s.Equal([]audit.Action{audit.ActionUploaded, audit.ActionDeleted}, s.actions(doc.ID))
}

func (s *WorkflowSuite) TestScopedReads() {
	doc := s.upload("/incoming/a100.pdf")
	other := id.UserID(uuid.New())

	_, err := s.service.Get(s.ctx, doc.ID, access.ScopeFor(access.Identity{UserID: other, Role: access.RoleAgent}))
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))

	got, err := s.service.Get(s.ctx, doc.ID, access.ScopeFor(access.Identity{UserID: other, Role: access.RoleSupervisor, Bureaux: []string{"AnfaBureau"}}))
	s.Require().NoError(err)
	s.Equal(doc.ID, got.ID)

	result, err := s.service.List(s.ctx, models.ListFilter{}, access.ScopeFor(access.Identity{UserID: s.uploader, Role: access.RoleAgent}))
	s.Require().NoError(err)
	s.Equal(1, result.Total)
	s.Equal(models.DefaultListLimit, result.Limit)

	events, err := s.service.History(s.ctx, doc.ID, access.Unrestricted())
	s.Require().NoError(err)
	s.Require().Len(events, 1)
	s.Equal(audit.ActionUploaded, events[0].Action)
	s.Equal(s.uploader, events[0].PerformedBy)
}

// fakeMove records which phase the workflow finished a staged move with.
type fakeMove struct {
	committed bool
	aborted   bool
}

func (m *fakeMove) Commit(context.Context) error { m.committed = true; return nil }
func (m *fakeMove) Abort(context.Context) error  { m.aborted = true; return nil }

type StorageFailureSuite struct {
	suite.Suite
	ctx   context.Context
	ctrl  *gomock.Controller
	files *mocks.MockFileStorage
	store *store.InMemory
}

func TestStorageFailureSuite(t *testing.T) {
	suite.Run(t, new(StorageFailureSuite))
}

func (s *StorageFailureSuite) SetupTest() {
	s.ctx = context.Background()
	s.ctrl = gomock.NewController(s.T())
	s.files = mocks.NewMockFileStorage(s.ctrl)
	s.store = store.NewInMemory()
}

func (s *StorageFailureSuite) TearDownTest() {
	s.ctrl.Finish()
}

func (s *StorageFailureSuite) pendingDocument() *models.Document {
	key := id.ClassificationKey{Bureau: "AnfaBureau", RegistreType: "naissances", Year: 2020, RegistreNumber: "R1", ActeNumber: "A100"}
	doc, err := models.NewDocument(key, "/incoming/a100.pdf", "a100.pdf", 3, id.UserID(uuid.New()), time.Now())
	s.Require().NoError(err)
	s.Require().NoError(s.store.Create(s.ctx, doc))
	return doc
}

func (s *StorageFailureSuite) TestPrepareFailureCommitsNothing() {
	doc := s.pendingDocument()
	history := mocks.NewMockHistoryPublisher(s.ctrl)
	svc := New(s.store, s.files, WithLogger(discardLogger()), WithHistoryPublisher(history))

	s.files.EXPECT().
		Prepare(gomock.Any(), "/incoming/a100.pdf", "AnfaBureau/naissances/2020/R1/A100.pdf").
		Return(nil, errors.New("disk full"))
	history.EXPECT().Emit(gomock.Any(), gomock.Any()).Times(0)

	_, err := svc.Approve(s.ctx, doc.ID, id.UserID(uuid.New()))
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeStorage))

	current, err := s.store.FindByID(s.ctx, doc.ID)
	s.Require().NoError(err)
	s.Equal(models.StatusPending, current.Status)
	s.Empty(current.VirtualPath)
}

func (s *StorageFailureSuite) TestDestinationTakenIsConflict() {
	doc := s.pendingDocument()
	svc := New(s.store, s.files, WithLogger(discardLogger()))

	s.files.EXPECT().Prepare(gomock.Any(), gomock.Any(), gomock.Any()).
		Return(nil, sentinel.ErrConflict)

	_, err := svc.Approve(s.ctx, doc.ID, id.UserID(uuid.New()))
	s.True(dErrors.HasCode(err, dErrors.CodeConflict))
}

func (s *StorageFailureSuite) TestFailedCommitAbortsMove() {
	doc := s.pendingDocument()
	documents := mocks.NewMockStore(s.ctrl)
	svc := New(documents, s.files, WithLogger(discardLogger()))
	move := &fakeMove{}

	documents.EXPECT().FindByIDForUpdate(gomock.Any(), doc.ID).Return(doc.Clone(), nil)
	s.files.EXPECT().Prepare(gomock.Any(), gomock.Any(), gomock.Any()).Return(move, nil)
	documents.EXPECT().UpdateIfStatus(gomock.Any(), gomock.Any(), models.StatusPending).
		Return(sentinel.ErrInvalidState)

	_, err := svc.Approve(s.ctx, doc.ID, id.UserID(uuid.New()))
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidState))
	s.True(move.aborted)
	s.False(move.committed)
}

func (s *StorageFailureSuite) TestSuccessfulApproveFinalizesMove() {
	doc := s.pendingDocument()
	svc := New(s.store, s.files, WithLogger(discardLogger()))
	move := &fakeMove{}

	s.files.EXPECT().Prepare(gomock.Any(), gomock.Any(), gomock.Any()).Return(move, nil)

	_, err := svc.Approve(s.ctx, doc.ID, id.UserID(uuid.New()))
	s.Require().NoError(err)
	s.True(move.committed)
	s.False(move.aborted)
}

func (s *StorageFailureSuite) TestDeleteRemovesFileOnlyAfterCommit() {
	doc := s.pendingDocument()
	documents := mocks.NewMockStore(s.ctrl)
	svc := New(documents, s.files, WithLogger(discardLogger()))

	documents.EXPECT().FindByIDForUpdate(gomock.Any(), doc.ID).Return(doc.Clone(), nil)
	documents.EXPECT().Delete(gomock.Any(), doc.ID).Return(errors.New("connection reset"))
	s.files.EXPECT().DeleteFile(gomock.Any(), gomock.Any()).Times(0)

	err := svc.Delete(s.ctx, doc.ID, id.UserID(uuid.New()))
	s.True(dErrors.HasCode(err, dErrors.CodeInternal))
}

func (s *StorageFailureSuite) TestDeleteFileFailureStillDeletesRecord() {
	doc := s.pendingDocument()
	history := mocks.NewMockHistoryPublisher(s.ctrl)
	svc := New(s.store, s.files, WithLogger(discardLogger()), WithHistoryPublisher(history))

	s.files.EXPECT().DeleteFile(gomock.Any(), "/incoming/a100.pdf").Return(errors.New("permission denied"))
	history.EXPECT().Emit(gomock.Any(), gomock.Any()).Return(nil)

	s.Require().NoError(svc.Delete(s.ctx, doc.ID, id.UserID(uuid.New())))

	_, err := s.store.FindByID(s.ctx, doc.ID)
	s.ErrorIs(err, sentinel.ErrNotFound)
}

// Two scans of the same act approved at once must leave exactly one stored
// record, and that record's file must be the winner's scan.
func TestConcurrentApproveSameKey(t *testing.T) {
	ctx := context.Background()
	for round := 0; round < 20; round++ {
		documents := store.NewInMemory()
		files := storage.NewOS(t.TempDir())
		svc := New(documents, files, WithLogger(discardLogger()))
		uploader := id.UserID(uuid.New())

		docs := make([]*models.Document, 2)
		scans := make([][]byte, 2)
		for n := range docs {
			filePath := fmt.Sprintf("incoming/scan-%d.pdf", n)
			scans[n] = bytes.Repeat([]byte{byte('a' + n)}, 4<<20)
			require.NoError(t, util.WriteFile(files.Filesystem(), filePath, scans[n], 0o640))
			doc, err := svc.Upload(ctx, uploadRequest(filePath), uploader)
			require.NoError(t, err)
			docs[n] = doc
		}

		var (
			wg    sync.WaitGroup
			start = make(chan struct{})
			errs  = make([]error, len(docs))
		)
		for n := range docs {
			wg.Add(1)
			go func() {
				defer wg.Done()
				<-start
				_, errs[n] = svc.Approve(ctx, docs[n].ID, uploader)
			}()
		}
		close(start)
		wg.Wait()

		winner, loser := 0, 1
		if errs[0] != nil {
			winner, loser = 1, 0
		}
		require.NoError(t, errs[winner], "round %d", round)
		require.Error(t, errs[loser], "round %d: both approvals succeeded", round)
		assert.True(t, dErrors.HasCode(errs[loser], dErrors.CodeConflict), "round %d: %v", round, errs[loser])

		stored, err := documents.FindByID(ctx, docs[winner].ID)
		require.NoError(t, err)
		require.Equal(t, models.StatusStored, stored.Status)
		archived, err := util.ReadFile(files.Filesystem(), stored.FilePath)
		require.NoError(t, err, "round %d: stored document has no file", round)
		assert.True(t, bytes.Equal(scans[winner], archived), "round %d: archived file is not the winner's scan", round)

		pending, err := documents.FindByID(ctx, docs[loser].ID)
		require.NoError(t, err)
		assert.Equal(t, models.StatusPending, pending.Status)
		source, err := util.ReadFile(files.Filesystem(), pending.FilePath)
		require.NoError(t, err, "round %d: rejected approval lost its source", round)
		assert.True(t, bytes.Equal(scans[loser], source))
	}
}
