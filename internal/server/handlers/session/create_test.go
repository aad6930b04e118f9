package session

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vendormonitor/internal/broadcast"
	"vendormonitor/internal/entity"
	"vendormonitor/internal/server/middlewares"
	"vendormonitor/internal/store"
	"vendormonitor/internal/worker"
	"vendormonitor/pkg/logger"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// failingPipeline 首轮处理总是失败
type failingPipeline struct{}

func (failingPipeline) Process(context.Context, string, bool) (*worker.Pass, error) {
	return nil, errors.New("session lock timeout")
}

func (failingPipeline) Read(context.Context, string) (*worker.Pass, error) {
	return nil, errors.New("unused")
}

func (failingPipeline) ClearAll(context.Context, string) error {
	return errors.New("unused")
}

// fakeArchive 记录查询过的会话
type fakeArchive struct {
	queried []string
}

func (a *fakeArchive) ListBySession(_ context.Context, sessionID, _ string, _ int) ([]*entity.ClearedAlert, error) {
	a.queried = append(a.queried, sessionID)
	return nil, nil
}

func newReadyStore() *store.Store {
	st := store.New(store.Options{InactivityTimeout: time.Minute, LockTimeout: time.Second}, nil)
	st.MarkReady()
	return st
}

func newEngine(h *SessionHandler) *gin.Engine {
	r := gin.New()
	r.Use(middlewares.ErrorHandler(logger.NewNop()))
	r.POST("/api/sessions", h.Create)
	r.GET("/api/sessions/:id/alerts/archive", h.Archive)
	return r
}

func TestCreateRemovesSessionWhenFirstPassFails(t *testing.T) {
	st := newReadyStore()
	h := NewSessionHandler(st, failingPipeline{}, broadcast.NewHub(nil), nil, false, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/sessions", bytes.NewBufferString(`{"vendors":["V1","V2"]}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	newEngine(h).ServeHTTP(w, req)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	counts, err := st.Counts(context.Background())
	require.NoError(t, err)
	assert.Zero(t, counts[store.StatusActive])
	ids, err := st.ActiveSessions(context.Background())
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestArchiveRequiresLiveSession(t *testing.T) {
	st := newReadyStore()
	archive := &fakeArchive{}
	h := NewSessionHandler(st, failingPipeline{}, broadcast.NewHub(nil), archive, false, nil)
	r := newEngine(h)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/sessions/unknown/alerts/archive", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Empty(t, archive.queried)

	info, err := st.Create(context.Background(), []string{"V1"})
	require.NoError(t, err)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/sessions/"+info.ID+"/alerts/archive?limit=10", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{info.ID}, archive.queried)
}
