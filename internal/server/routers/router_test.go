package routers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vendormonitor/internal/broadcast"
	"vendormonitor/internal/business"
	"vendormonitor/internal/framework"
	"vendormonitor/internal/server/apimodel/request"
	"vendormonitor/internal/server/handlers/health"
	"vendormonitor/internal/server/handlers/realtime"
	"vendormonitor/internal/server/handlers/session"
	"vendormonitor/internal/store"
	"vendormonitor/internal/worker"
	"vendormonitor/pkg/ginx"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeSource struct {
	mu   sync.Mutex
	rows map[framework.Domain][]framework.Row
}

func (f *fakeSource) set(d framework.Domain, rows ...framework.Row) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rows[d] = rows
}

func (f *fakeSource) Fetch(_ context.Context, d framework.Domain) (*framework.Dataset, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return &framework.Dataset{Domain: d, Rows: f.rows[d], FetchedAt: time.Now()}, nil
}

type testServer struct {
	engine    *gin.Engine
	source    *fakeSource
	store     *store.Store
	hub       *broadcast.Hub
	refresher *worker.Refresher
	health    *health.HealthHandler
}

func newTestServer(t *testing.T, ready bool) *testServer {
	t.Helper()
	src := &fakeSource{rows: make(map[framework.Domain][]framework.Row)}
	src.set(framework.DomainDiscountStock,
		discountRow("V1", "p1", 2, 5),
		discountRow("V2", "p1", 1, 5),
	)
	src.set(framework.DomainVendorStatus,
		statusRow("V1", business.VendorInactive),
		statusRow("V2", business.VendorActive),
		statusRow("V3", business.VendorActive),
	)
	src.set(framework.DomainVendorProductStatus, productRow("V1", 4), productRow("V2", 4))

	st := store.New(store.Options{InactivityTimeout: 5 * time.Minute, LockTimeout: time.Second}, nil)
	hub := broadcast.NewHub(nil)
	pipeline := worker.NewPipeline(st, hub, business.NewEngine(business.DefaultNearEndThreshold), nil, nil)
	refresher := worker.NewRefresher(worker.RefresherConfig{Interval: time.Minute, Workers: 2}, src, st, hub, pipeline, nil)
	if ready {
		require.NoError(t, refresher.InitialFetch(context.Background()))
	}

	healthHandler := health.NewHealthHandler(st, hub, refresher, 2*time.Minute)
	r := SetupRoutes(
		session.NewSessionHandler(st, pipeline, hub, nil, true, nil),
		healthHandler,
		realtime.NewRealtimeHandler(st, hub, realtime.Config{BufferSize: 16, PingInterval: time.Second}, nil),
		Options{MetricsEnabled: false},
	)
	return &testServer{engine: r, source: src, store: st, hub: hub, refresher: refresher, health: healthHandler}
}

func discountRow(vendor, product string, discountStock, stock float64) framework.Row {
	return framework.Row{
		business.ColVendorCode:    vendor,
		business.ColVendorName:    "name-" + vendor,
		business.ColHeaderName:    "header",
		business.ColProductName:   product,
		business.ColDiscountStock: discountStock,
		business.ColProductStock:  stock,
	}
}

func statusRow(vendor, status string) framework.Row {
	return framework.Row{
		business.ColVendorCode:   vendor,
		business.ColVendorName:   "name-" + vendor,
		business.ColVendorStatus: status,
	}
}

func productRow(vendor string, stock float64) framework.Row {
	return framework.Row{
		business.ColVendorCode:   vendor,
		business.ColBusinessLine: "food",
		business.ColHeaderName:   "h-" + vendor,
		business.ColProductID:    "p-" + vendor,
		business.ColProductStock: stock,
		business.ColIsVisible:    true,
	}
}

type envelope struct {
	Meta ginx.Meta       `json:"meta"`
	Data json.RawMessage `json:"data"`
}

func (s *testServer) do(t *testing.T, method, path string, body interface{}) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return s.serve(t, req)
}

func (s *testServer) serve(t *testing.T, req *http.Request) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	w := httptest.NewRecorder()
	s.engine.ServeHTTP(w, req)

	var env envelope
	if w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	}
	return w, env
}

type createdSession struct {
	Session store.Info                 `json:"session"`
	Data    store.View                 `json:"data"`
	Alerts  map[string]json.RawMessage `json:"alerts"`
}

func (s *testServer) createSession(t *testing.T, vendors ...string) createdSession {
	t.Helper()
	w, env := s.do(t, http.MethodPost, "/api/sessions", map[string]interface{}{"vendors": vendors})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var out createdSession
	require.NoError(t, json.Unmarshal(env.Data, &out))
	return out
}

func TestCreateSessionReturnsScopedSnapshot(t *testing.T) {
	s := newTestServer(t, true)

	w, env := s.do(t, http.MethodPost, "/api/sessions", map[string]interface{}{"vendors": []string{"V1", " V1 ", ""}})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, 201, env.Meta.Code)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))

	var out struct {
		Session store.Info                   `json:"session"`
		Data    store.View                   `json:"data"`
		Alerts  map[string]json.RawMessage   `json:"alerts"`
		Stats   map[string]json.RawMessage   `json:"stats"`
		Domains map[string]store.DomainState `json:"domains"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &out))
	assert.NotEmpty(t, out.Session.ID)
	assert.Equal(t, 1, out.Session.VendorCount)
	assert.Equal(t, store.StatusActive, out.Session.Status)
	require.Len(t, out.Data.Discount, 1)
	assert.Equal(t, "V1", out.Data.Discount[0].VendorCode)

	var discounts []business.DiscountAlert
	require.NoError(t, json.Unmarshal(out.Alerts[string(business.TabDiscountStock)], &discounts))
	require.Len(t, discounts, 1)
	assert.Equal(t, business.SeverityRedMedium, discounts[0].Severity)
	assert.Len(t, out.Domains, len(framework.Domains))
}

func TestCreateSessionFromFile(t *testing.T) {
	s := newTestServer(t, true)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", "vendors.csv")
	require.NoError(t, err)
	_, err = part.Write([]byte("vendor_code\nV1\nV2,extra\n\n"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/sessions", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w, env := s.serve(t, req)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var out createdSession
	require.NoError(t, json.Unmarshal(env.Data, &out))
	assert.Equal(t, 2, out.Session.VendorCount)
	assert.Len(t, out.Data.Discount, 2)
}

func TestCreateSessionRejectsBadFile(t *testing.T) {
	s := newTestServer(t, true)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", "vendors.csv")
	require.NoError(t, err)
	_, err = part.Write([]byte(strings.Repeat("V1\n", request.MaxVendorCodes+1)))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/sessions", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w, env := s.serve(t, req)
	require.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
	assert.Equal(t, "Invalid vendor file", env.Meta.Message)
	require.Len(t, env.Meta.Details, 1)
	assert.Equal(t, "vendors.csv", env.Meta.Details[0].Path)

	// 缺少文件字段
	buf.Reset()
	mw = multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("other", "x"))
	require.NoError(t, mw.Close())
	req = httptest.NewRequest(http.MethodPost, "/api/sessions", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w, env = s.serve(t, req)
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Len(t, env.Meta.Details, 1)
	assert.Equal(t, "file", env.Meta.Details[0].Path)

	counts, err := s.store.Counts(context.Background())
	require.NoError(t, err)
	assert.Zero(t, counts[store.StatusActive])
}

func TestCreateSessionRejectsBadInput(t *testing.T) {
	s := newTestServer(t, true)

	w, env := s.do(t, http.MethodPost, "/api/sessions", map[string]interface{}{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.NotEmpty(t, env.Meta.Details)

	w, _ = s.do(t, http.MethodPost, "/api/sessions", map[string]interface{}{"vendors": []string{" ", ""}})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCreateSessionBeforeReady(t *testing.T) {
	s := newTestServer(t, false)

	w, _ := s.do(t, http.MethodPost, "/api/sessions", map[string]interface{}{"vendors": []string{"V1"}})
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	w, env := s.do(t, http.MethodGet, "/ready", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "Service not ready", env.Meta.Message)
}

func TestUnknownSessionIsNotFound(t *testing.T) {
	s := newTestServer(t, true)

	for _, path := range []string{"/api/sessions/missing", "/api/sessions/missing/status", "/api/sessions/missing/vendors?status=active"} {
		w, env := s.do(t, http.MethodGet, path, nil)
		assert.Equal(t, http.StatusNotFound, w.Code, path)
		assert.Contains(t, env.Meta.Message, "upload the vendor list again", path)
	}
	w, _ := s.do(t, http.MethodPost, "/api/sessions/missing/refresh", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSessionEndpoints(t *testing.T) {
	s := newTestServer(t, true)
	created := s.createSession(t, "V1", "V2", "V3")
	base := "/api/sessions/" + created.Session.ID

	// 状态
	w, env := s.do(t, http.MethodGet, base+"/status", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var status struct {
		Status      store.Status `json:"status"`
		Subscribers int          `json:"subscribers"`
		ExpiresIn   float64      `json:"expires_in_seconds"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &status))
	assert.Equal(t, store.StatusActive, status.Status)
	assert.Zero(t, status.Subscribers)
	assert.Greater(t, status.ExpiresIn, 0.0)

	// 商家列表
	w, env = s.do(t, http.MethodGet, base+"/vendors?status=inactive", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var vendors struct {
		Count   int                        `json:"count"`
		Vendors []business.VendorStatusRow `json:"vendors"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &vendors))
	require.Equal(t, 1, vendors.Count)
	assert.Equal(t, "V1", vendors.Vendors[0].VendorCode)

	w, _ = s.do(t, http.MethodGet, base+"/vendors?status=unknown", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// 补货后下一轮清除 V1 的折扣告警
	s.source.set(framework.DomainDiscountStock, discountRow("V1", "p1", 10, 5), discountRow("V2", "p1", 1, 5))
	s.refresher.RunCycle(context.Background())

	var cleared struct {
		Count  int                      `json:"count"`
		Alerts []business.DiscountAlert `json:"alerts"`
	}
	w, env = s.do(t, http.MethodGet, base+"/alerts/cleared?domain=discount_stock", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(env.Data, &cleared))
	require.Equal(t, 1, cleared.Count)
	assert.Equal(t, business.AlertDiscountedItemFixed, cleared.Alerts[0].Type)

	w, _ = s.do(t, http.MethodGet, base+"/alerts/cleared?domain=bogus", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// 读取不会产生新的差分
	w, _ = s.do(t, http.MethodGet, base, nil)
	require.Equal(t, http.StatusOK, w.Code)
	w, _ = s.do(t, http.MethodPost, base+"/refresh", nil)
	require.Equal(t, http.StatusOK, w.Code)

	// 清空
	w, _ = s.do(t, http.MethodPost, base+"/clear", nil)
	require.Equal(t, http.StatusOK, w.Code)
	_, env = s.do(t, http.MethodGet, base+"/alerts/cleared?domain=discount_stock", nil)
	require.NoError(t, json.Unmarshal(env.Data, &cleared))
	assert.Zero(t, cleared.Count)

	// 未配置归档
	w, _ = s.do(t, http.MethodGet, base+"/alerts/archive", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	// 关闭
	w, _ = s.do(t, http.MethodDelete, base, nil)
	require.Equal(t, http.StatusOK, w.Code)
	w, _ = s.do(t, http.MethodGet, base, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHealthEndpoints(t *testing.T) {
	s := newTestServer(t, true)

	w, _ := s.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w, env := s.do(t, http.MethodGet, "/ready", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var ready struct {
		Status    string           `json:"status"`
		Checks    map[string]bool  `json:"checks"`
		Broadcast *broadcast.Stats `json:"broadcast"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &ready))
	assert.Equal(t, "ready", ready.Status)
	assert.True(t, ready.Checks["initial_fetch"])
	assert.NotNil(t, ready.Broadcast)

	// 尚未运行过调度
	w, _ = s.do(t, http.MethodGet, "/health/jobs", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	s.refresher.RunCycle(context.Background())
	w, env = s.do(t, http.MethodGet, "/health/jobs", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var jobs struct {
		Status string `json:"status"`
		Cycles int64  `json:"cycles"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &jobs))
	assert.Equal(t, "healthy", jobs.Status)
	assert.Equal(t, int64(1), jobs.Cycles)
}

type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

func TestReadyIncludesDependencyChecks(t *testing.T) {
	s := newTestServer(t, true)
	s.health.AddCheck("redis", pingFunc(func(context.Context) error { return nil }))

	w, env := s.do(t, http.MethodGet, "/ready", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var ready struct {
		Checks map[string]bool `json:"checks"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &ready))
	assert.True(t, ready.Checks["redis"])

	s.health.AddCheck("mysql", pingFunc(func(context.Context) error { return errors.New("connection refused") }))
	w, env = s.do(t, http.MethodGet, "/ready", nil)
	require.Equal(t, http.StatusServiceUnavailable, w.Code)
	require.NoError(t, json.Unmarshal(env.Data, &ready))
	assert.True(t, ready.Checks["redis"])
	assert.False(t, ready.Checks["mysql"])
	assert.True(t, ready.Checks["initial_fetch"])
}

func TestRealtimeChannel(t *testing.T) {
	s := newTestServer(t, true)
	created := s.createSession(t, "V1")
	id := created.Session.ID

	srv := httptest.NewServer(s.engine)
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", nil)
	require.NoError(t, err)
	defer conn.Close()

	read := func() broadcast.Message {
		t.Helper()
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
		var msg broadcast.Message
		require.NoError(t, conn.ReadJSON(&msg))
		return msg
	}
	register := func(sessionID string) {
		require.NoError(t, conn.WriteJSON(map[string]interface{}{
			"event": realtime.EventRegister,
			"data":  map[string]string{"session_id": sessionID},
		}))
	}

	// 1. 无效会话
	register("missing")
	msg := read()
	assert.Equal(t, realtime.EventError, msg.Event)

	// 2. 有效会话
	register(id)
	msg = read()
	require.Equal(t, realtime.EventRegistered, msg.Event)
	assert.Equal(t, id, msg.SessionID)
	assert.Equal(t, 1, s.hub.Subscribers(id))

	info, err := s.store.Info(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, 1, info.Connections)

	// 3. 只收到本会话的事件
	other := s.createSession(t, "V2")
	w, _ := s.do(t, http.MethodPost, "/api/sessions/"+other.Session.ID+"/clear", nil)
	require.Equal(t, http.StatusOK, w.Code)
	w, _ = s.do(t, http.MethodPost, "/api/sessions/"+id+"/clear", nil)
	require.Equal(t, http.StatusOK, w.Code)

	msg = read()
	assert.Equal(t, string(business.EventClearAll), msg.Event)
	assert.Equal(t, id, msg.SessionID)

	// 4. 断开后进入 disconnected
	require.NoError(t, conn.Close())
	assert.Eventually(t, func() bool {
		info, err := s.store.Info(context.Background(), id)
		return err == nil && info.Status == store.StatusDisconnected
	}, 5*time.Second, 20*time.Millisecond)
	assert.Zero(t, s.hub.Subscribers(id))
}

func TestRealtimeClosedWithSession(t *testing.T) {
	s := newTestServer(t, true)
	created := s.createSession(t, "V1")

	srv := httptest.NewServer(s.engine)
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(map[string]interface{}{
		"event": realtime.EventRegister,
		"data":  map[string]string{"session_id": created.Session.ID},
	}))
	var msg broadcast.Message
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	require.NoError(t, conn.ReadJSON(&msg))
	require.Equal(t, realtime.EventRegistered, msg.Event)

	w, _ := s.do(t, http.MethodDelete, "/api/sessions/"+created.Session.ID, nil)
	require.Equal(t, http.StatusOK, w.Code)

	_, _, err = conn.ReadMessage()
	require.Error(t, err)
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), err.Error())
}
