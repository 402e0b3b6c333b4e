package handler

import (
	"io"
	"log/slog"
	"net/http"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"actarchive/internal/access"
	"actarchive/internal/platform/middleware"
	"actarchive/internal/reconciliation/handler/mocks"
	"actarchive/internal/reconciliation/models"
	id "actarchive/pkg/domain"
	dErrors "actarchive/pkg/domain-errors"
	"actarchive/pkg/testutil"
)

//go:generate mockgen -source=handler.go -destination=mocks/mocks.go -package=mocks

const (
	agentID      = "0b6c3c1e-8f55-4c3a-9d3e-5f4f3d1f9a01"
	supervisorID = "2a7f9d0c-1e44-4b0b-8c52-7d0d6e2b3c02"
)

func newRouter(t *testing.T) (http.Handler, *mocks.MockService) {
	t.Helper()
	svc := mocks.NewMockService(gomock.NewController(t))
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	r := chi.NewRouter()
	r.Use(middleware.RequireIdentity(logger, nil))
	New(svc, logger, nil).Register(r)
	return r, svc
}

func TestCompare(t *testing.T) {
	batchID := id.NewBatchID()

	testutil.Given(t, "a supervisor assigned to Anfa", func(t *testing.T) {
		testutil.When(t, "comparing with a year filter", func(t *testing.T) {
			router, svc := newRouter(t)
			svc.EXPECT().
				Compare(gomock.Any(), batchID, id.KeyFilter{Bureau: "Anfa", Year: 2019}, gomock.Any()).
				DoAndReturn(func(_ any, _ id.BatchID, filter id.KeyFilter, scope access.Scope) (*models.ComparisonResult, error) {
					assert.Equal(t, []string{"Anfa"}, scope.Bureaux())
					return &models.ComparisonResult{
						BatchID: batchID,
						Filters: filter,
						Matched: []id.ClassificationKey{{Bureau: "Anfa", RegistreType: "N", Year: 2019, RegistreNumber: "12", ActeNumber: "1"}},
						Missing: []id.ClassificationKey{},
						Extra:   []id.ClassificationKey{},
						Summary: models.Summary{TotalInventory: 1, TotalDocuments: 1, MatchedCount: 1, MatchRate: 100},
					}, nil
				})

			req := testutil.NewRequest(t, http.MethodGet, "/reconciliation/"+batchID.String()+"/compare?bureau=Anfa&year=2019")
			rr := testutil.DoRequest(router, testutil.WithIdentityHeaders(req, supervisorID, access.RoleSupervisor, "Anfa"))

			testutil.Then(t, "the comparison is returned", func(t *testing.T) {
				require.Equal(t, http.StatusOK, rr.Code)
				resp := testutil.UnmarshalResponse[map[string]any](t, rr)
				summary := (*resp)["summary"].(map[string]any)
				assert.EqualValues(t, 100, summary["match_rate"])
				assert.Len(t, (*resp)["matched"], 1)
			})
		})
	})

	testutil.Given(t, "a malformed year filter", func(t *testing.T) {
		router, _ := newRouter(t)
		req := testutil.NewRequest(t, http.MethodGet, "/reconciliation/"+batchID.String()+"/compare?year=20x9")
		rr := testutil.DoRequest(router, testutil.WithIdentityHeaders(req, supervisorID, access.RoleSupervisor))

		testutil.Then(t, "it is a validation error", func(t *testing.T) {
			testutil.AssertStatusAndError(t, rr, http.StatusBadRequest, "validation_error")
		})
	})

	testutil.Given(t, "an unknown batch", func(t *testing.T) {
		router, svc := newRouter(t)
		svc.EXPECT().Compare(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
			Return(nil, dErrors.New(dErrors.CodeNotFound, "inventory batch not found"))
		req := testutil.NewRequest(t, http.MethodGet, "/reconciliation/"+id.NewBatchID().String()+"/compare")
		rr := testutil.DoRequest(router, testutil.WithIdentityHeaders(req, supervisorID, access.RoleSupervisor))

		testutil.Then(t, "it is not found", func(t *testing.T) {
			testutil.AssertStatusAndError(t, rr, http.StatusNotFound, "not_found")
		})
	})

	testutil.Given(t, "an agent", func(t *testing.T) {
		router, _ := newRouter(t)
		req := testutil.NewRequest(t, http.MethodGet, "/reconciliation/"+batchID.String()+"/compare")
		rr := testutil.DoRequest(router, testutil.WithIdentityHeaders(req, agentID, access.RoleAgent))

		testutil.Then(t, "reports are forbidden", func(t *testing.T) {
			testutil.AssertStatusAndError(t, rr, http.StatusForbidden, "forbidden")
		})
	})
}

func TestTreeMarksApproximation(t *testing.T) {
	router, svc := newRouter(t)
	batchID := id.NewBatchID()
	svc.EXPECT().Tree(gomock.Any(), batchID, id.KeyFilter{}, gomock.Any()).Return(&models.Tree{
		BatchID:       batchID,
		Approximation: models.ApproximationCountBased,
		Summary:       models.Stats{InventoryCount: 2, ActualCount: 1, Matched: 1, Missing: 1, MatchRate: 50},
		Bureaux: map[string]*models.Node{
			"Anfa": {Stats: models.Stats{InventoryCount: 2, ActualCount: 1, Matched: 1, Missing: 1, MatchRate: 50}},
		},
	}, nil)

	req := testutil.NewRequest(t, http.MethodGet, "/reconciliation/"+batchID.String()+"/tree")
	rr := testutil.DoRequest(router, testutil.WithIdentityHeaders(req, supervisorID, access.RoleSupervisor))

	require.Equal(t, http.StatusOK, rr.Code)
	resp := testutil.UnmarshalResponse[map[string]any](t, rr)
	assert.Equal(t, "count_based", (*resp)["approximation"])
	anfa := (*resp)["bureaux"].(map[string]any)["Anfa"].(map[string]any)
	assert.EqualValues(t, 50, anfa["match_rate"])
}
