package handler

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ralphbot/internal/consent/models"
	"ralphbot/internal/consent/service"
	"ralphbot/internal/consent/store/memory"
	id "ralphbot/pkg/domain"
	"ralphbot/pkg/testutil"
)

func newTestHandler(t *testing.T) (*Handler, *service.Service) {
	t.Helper()
	svc, err := service.New(memory.NewInMemoryStore())
	require.NoError(t, err)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(svc, logger), svc
}

func serveAs(h *Handler, userID id.UserID, method, target, body string) *httptest.ResponseRecorder {
	r := chi.NewRouter()
	h.Register(r)

	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if !userID.IsNil() {
		req = testutil.WithUserID(req, userID.String())
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestHandleGrant(t *testing.T) {
	h, svc := newTestHandler(t)
	userID := id.NewUserID()

	t.Run("grants purposes", func(t *testing.T) {
		rec := serveAs(h, userID, http.MethodPost, "/me/consent", `{"purposes":["analytics"]}`)

		require.Equal(t, http.StatusCreated, rec.Code)
		assert.Contains(t, rec.Body.String(), "analytics")

		records, err := svc.List(context.Background(), userID)
		require.NoError(t, err)
		require.Len(t, records, 1)
		assert.Equal(t, id.ConsentPurposeAnalytics, records[0].Purpose)
	})

	t.Run("invalid purpose is 400", func(t *testing.T) {
		rec := serveAs(h, userID, http.MethodPost, "/me/consent", `{"purposes":["mind_reading"]}`)

		require.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, rec.Body.String(), "bad_request")
	})

	t.Run("malformed body is 400", func(t *testing.T) {
		rec := serveAs(h, userID, http.MethodPost, "/me/consent", `{"purposes":`)

		require.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("operator token without subject is 403", func(t *testing.T) {
		rec := serveAs(h, id.UserID{}, http.MethodPost, "/me/consent", `{"purposes":["analytics"]}`)

		require.Equal(t, http.StatusForbidden, rec.Code)
	})
}

func TestHandleRevoke(t *testing.T) {
	h, svc := newTestHandler(t)
	userID := id.NewUserID()

	_, err := svc.Grant(context.Background(), userID, []string{"personalization"})
	require.NoError(t, err)

	rec := serveAs(h, userID, http.MethodPost, "/me/consent/revoke", `{"purpose":"personalization"}`)
	require.Equal(t, http.StatusNoContent, rec.Code)

	err = svc.Require(context.Background(), userID, id.ConsentPurposePersonalization)
	require.Error(t, err)
}

func TestHandleStatus(t *testing.T) {
	h, svc := newTestHandler(t)
	userID := id.NewUserID()

	_, err := svc.Grant(context.Background(), userID, []string{"analytics"})
	require.NoError(t, err)

	rec := serveAs(h, userID, http.MethodGet, "/me/consent", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Consents []models.ConsentStatus `json:"consents"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Len(t, resp.Consents, 3)
}
