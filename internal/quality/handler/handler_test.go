package handler

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ralphbot/internal/quality/models"
	"ralphbot/internal/quality/service"
	"ralphbot/internal/quality/store/memory"
	id "ralphbot/pkg/domain"
)

func TestHandleGet(t *testing.T) {
	svc, err := service.New(memory.NewInMemoryStore())
	require.NoError(t, err)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := New(svc, logger)

	userID := id.NewUserID()
	_, _, err = svc.RecordOutcome(context.Background(), userID, models.OutcomeAccepted)
	require.NoError(t, err)

	serve := func(target string) *httptest.ResponseRecorder {
		r := chi.NewRouter()
		h.Register(r)
		req := httptest.NewRequest(http.MethodGet, target, nil)
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		return rec
	}

	t.Run("returns the record", func(t *testing.T) {
		rec := serve("/admin/users/" + userID.String() + "/quality")

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `"accepted"`)
	})

	t.Run("unknown user is 404", func(t *testing.T) {
		rec := serve("/admin/users/" + id.NewUserID().String() + "/quality")
		require.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("malformed id is 400", func(t *testing.T) {
		rec := serve("/admin/users/someone/quality")
		require.Equal(t, http.StatusBadRequest, rec.Code)
	})
}
