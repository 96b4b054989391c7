package quotations

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/fulfillment/internal/shared"
)

func newTestRouter(svc *Service) http.Handler {
	r := chi.NewRouter()
	r.Route("/quotations", NewHandler(nil, svc).MountRoutes)
	return r
}

func TestHandler_SetStatus(t *testing.T) {
	svc, repo := newTestService()
	router := newTestRouter(svc)

	req := httptest.NewRequest(http.MethodPost, "/quotations/7/status", strings.NewReader(`{"status":"accepted"}`))
	req = req.WithContext(shared.ContextWithActor(req.Context(), ownerID))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var res StatusResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.Equal(t, StatusAccepted, res.Status)
	assert.NotEmpty(t, res.Message)
	assert.Equal(t, StatusAccepted, repo.quotes[7].Status)
}

func TestHandler_SetStatusErrors(t *testing.T) {
	svc, _ := newTestService()
	router := newTestRouter(svc)

	cases := []struct {
		name   string
		path   string
		body   string
		actor  int64
		status int
	}{
		{"invalid status", "/quotations/7/status", `{"status":"approved"}`, ownerID, http.StatusBadRequest},
		{"forbidden", "/quotations/7/status", `{"status":"sent"}`, otherID, http.StatusForbidden},
		{"anonymous", "/quotations/7/status", `{"status":"sent"}`, 0, http.StatusForbidden},
		{"missing", "/quotations/8/status", `{"status":"sent"}`, ownerID, http.StatusNotFound},
		{"bad id", "/quotations/abc/status", `{"status":"sent"}`, ownerID, http.StatusBadRequest},
		{"empty body", "/quotations/7/status", `{}`, ownerID, http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, tc.path, strings.NewReader(tc.body))
			if tc.actor > 0 {
				req = req.WithContext(shared.ContextWithActor(req.Context(), tc.actor))
			}
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)
			assert.Equal(t, tc.status, rec.Code, rec.Body.String())
		})
	}
}

func TestHandler_Eligibility(t *testing.T) {
	svc, repo := newTestService()
	repo.quotes[7].Status = StatusAccepted

	rec := httptest.NewRecorder()
	newTestRouter(svc).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/quotations/7/eligibility", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var elig Eligibility
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &elig))
	assert.True(t, elig.CanCreateProduction)
	assert.True(t, elig.CanCreateInvoice)
}
