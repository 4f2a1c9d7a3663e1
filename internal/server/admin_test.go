package server

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leelachesszero/sprt-server/internal/coordinator"
	"github.com/leelachesszero/sprt-server/internal/db"
	"github.com/leelachesszero/sprt-server/internal/models"
)

func newTestPool(t *testing.T) *coordinator.Pool {
	t.Helper()
	store, err := db.OpenBadger(db.BadgerConfig{InMemory: true})
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return coordinator.NewPool(store, coordinator.Options{
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
}

func do(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func testSpec(dev, base uint) gin.H {
	return gin.H{
		"author":            "tester",
		"dev_id":            dev,
		"base_id":           base,
		"dev_time_control":  "10.0+0.1",
		"base_time_control": "10.0+0.1",
		"book_name":         "UHO_4060_v3.epd",
		"test_mode":         "SPRT",
		"elo_lower":         0,
		"elo_upper":         5,
	}
}

func TestAdminTestLifecycle(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := NewAdminRouter(newTestPool(t), 0.95)

	w := do(t, r, http.MethodPost, "/v1/engines", gin.H{"name": "lc0", "sha": "abcdef1", "bench": 100})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	dev := decode[models.Engine](t, w)

	w = do(t, r, http.MethodPost, "/v1/tests", testSpec(dev.ID, dev.ID))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	created := decode[models.Test](t, w)
	assert.Equal(t, "PENDING", string(created.Status))

	path := "/v1/tests/" + itoa(created.ID)
	w = do(t, r, http.MethodPost, path+"/await", nil)
	require.Equal(t, http.StatusOK, w.Code)
	w = do(t, r, http.MethodPost, path+"/approve", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ACTIVE", string(decode[models.Test](t, w).Status))

	w = do(t, r, http.MethodPost, path+"/resume", nil)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "invalid_transition", decode[gin.H](t, w)["reason"])

	w = do(t, r, http.MethodGet, path, nil)
	require.Equal(t, http.StatusOK, w.Code)
	got := decode[TestView](t, w)
	assert.Equal(t, created.ID, got.ID)
	assert.Zero(t, got.Elo.Elo)

	w = do(t, r, http.MethodGet, "/v1/tests?status=ACTIVE", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[[]TestView](t, w), 1)
	w = do(t, r, http.MethodGet, "/v1/tests?status=PENDING", nil)
	assert.Empty(t, decode[[]TestView](t, w))

	w = do(t, r, http.MethodDelete, path, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "DELETED", string(decode[models.Test](t, w).Status))
}

func TestAdminErrors(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := NewAdminRouter(newTestPool(t), 0.95)

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		code   int
	}{
		{"engine missing sha", http.MethodPost, "/v1/engines", gin.H{"name": "lc0"}, http.StatusBadRequest},
		{"engine bad sha", http.MethodPost, "/v1/engines", gin.H{"name": "lc0", "sha": "zz"}, http.StatusBadRequest},
		{"unknown engine", http.MethodPost, "/v1/tests", testSpec(41, 42), http.StatusNotFound},
		{"unknown test", http.MethodGet, "/v1/tests/99", nil, http.StatusNotFound},
		{"bad id", http.MethodPost, "/v1/tests/abc/approve", nil, http.StatusBadRequest},
		{"malformed body", http.MethodPost, "/v1/tests", "not an object", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, r, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.code, w.Code, w.Body.String())
		})
	}
}

func TestAdminHealthAndMetrics(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := NewAdminRouter(newTestPool(t), 0.95)

	w := do(t, r, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = do(t, r, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "go_goroutines")
}
