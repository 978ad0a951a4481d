package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"universe/internal/config"
	"universe/internal/events"
	appLog "universe/internal/log"
	"universe/internal/store"
	"universe/internal/upstream"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type stubEvents struct {
	payload events.Payload
	err     error
	gets    atomic.Int32
	fetches atomic.Int32
}

func (s *stubEvents) GetEvents(context.Context) (events.Payload, error) {
	s.gets.Add(1)
	return s.payload, s.err
}

func (s *stubEvents) FetchAndCache(context.Context) (events.Payload, error) {
	s.fetches.Add(1)
	return s.payload, s.err
}

func (s *stubEvents) Status(context.Context) events.Status {
	return events.Status{Fresh: s.err == nil, Today: "03/05/2025"}
}

func do(t *testing.T, h http.Handler, method, path string, setup ...func(*http.Request)) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	for _, fn := range setup {
		fn(req)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	s := NewServer(config.DefaultConfig(), &stubEvents{})
	rec := do(t, s.Handler(), http.MethodGet, "/health")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())
}

func TestEventsReturnsPayloadVerbatim(t *testing.T) {
	payload := `[{"EventKey":"1","Title":"Career Fair"}]`
	s := NewServer(config.DefaultConfig(), &stubEvents{payload: events.Payload(payload)})

	rec := do(t, s.Handler(), http.MethodGet, "/events")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, payload, rec.Body.String())
	assert.Contains(t, rec.Header().Get("Content-Type"), "application/json")
}

func TestEventsFailureRendersMessageAndError(t *testing.T) {
	s := NewServer(config.DefaultConfig(), &stubEvents{err: errors.New("upstream status: status 502: 502 Bad Gateway")})

	rec := do(t, s.Handler(), http.MethodGet, "/events")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "Failed to retrieve events.", body["message"])
	assert.Contains(t, body["error"], "502")
}

func TestEventsICS(t *testing.T) {
	payload := `[
		{"EventKey":"a","Title":"Career Fair","Start":"/Date(1900000000000)/","Categories":[{"CategoryName":"Career Development"}]},
		{"EventKey":"b","Title":"Alumni Gala","Start":"/Date(1900000000000)/","Categories":[{"CategoryName":"Alumni"}]}
	]`
	s := NewServer(config.DefaultConfig(), &stubEvents{payload: events.Payload(payload)})

	rec := do(t, s.Handler(), http.MethodGet, "/events.ics?category=career&upcoming=1")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/calendar")
	assert.Equal(t, "1", rec.Header().Get("X-Event-Count"))
	assert.Contains(t, rec.Body.String(), "SUMMARY:Career Fair")
	assert.NotContains(t, rec.Body.String(), "Alumni Gala")
}

func TestEventsICSNonArrayPayload(t *testing.T) {
	s := NewServer(config.DefaultConfig(), &stubEvents{payload: events.Payload(`{"x":1}`)})
	rec := do(t, s.Handler(), http.MethodGet, "/events.ics")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestStatus(t *testing.T) {
	s := NewServer(config.DefaultConfig(), &stubEvents{})
	rec := do(t, s.Handler(), http.MethodGet, "/events/status")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"fresh":true,"today":"03/05/2025","size":0}`, rec.Body.String())
}

func TestAdminRefreshRequiresBasicAuthWhenConfigured(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.BasicAuth = &config.BasicAuthConfig{Username: "ops", Password: "s3cret"}
	svc := &stubEvents{payload: events.Payload(`[]`)}
	s := NewServer(cfg, svc)

	rec := do(t, s.Handler(), http.MethodPost, "/admin/refresh")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("WWW-Authenticate"))

	rec = do(t, s.Handler(), http.MethodPost, "/admin/refresh", func(r *http.Request) {
		r.SetBasicAuth("ops", "wrong")
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Zero(t, svc.fetches.Load())

	rec = do(t, s.Handler(), http.MethodPost, "/admin/refresh", func(r *http.Request) {
		r.SetBasicAuth("ops", "s3cret")
	})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 1, svc.fetches.Load())

	// /events stays unauthenticated.
	rec = do(t, s.Handler(), http.MethodGet, "/events")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAdminRefreshFailure(t *testing.T) {
	s := NewServer(config.DefaultConfig(), &stubEvents{err: errors.New("boom")})
	rec := do(t, s.Handler(), http.MethodPost, "/admin/refresh")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "Failed to refresh events.")
}

func TestMetricsEndpointToggle(t *testing.T) {
	cfg := config.DefaultConfig()
	s := NewServer(cfg, &stubEvents{payload: events.Payload(`[]`)})
	_ = do(t, s.Handler(), http.MethodGet, "/events")

	rec := do(t, s.Handler(), http.MethodGet, "/metrics")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "universe_api_latency_seconds")

	cfg = config.DefaultConfig()
	cfg.Metrics.Enabled = false
	s = NewServer(cfg, &stubEvents{})
	rec = do(t, s.Handler(), http.MethodGet, "/metrics")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestUnknownRouteIsJSON404(t *testing.T) {
	s := NewServer(config.DefaultConfig(), &stubEvents{})
	rec := do(t, s.Handler(), http.MethodGet, "/nope")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "/nope")
}

func TestRecoveryHandlesPanics(t *testing.T) {
	core, recorded := observer.New(zap.InfoLevel)
	t.Cleanup(appLog.Replace(zap.New(core)))

	s := NewServer(config.DefaultConfig(), &stubEvents{})
	s.engine.GET("/panic", func(*gin.Context) { panic("kaboom") })

	rec := do(t, s.Handler(), http.MethodGet, "/panic")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"message":"Internal server error"}`, rec.Body.String())

	access := recorded.FilterMessage("request").All()
	require.Len(t, access, 1, "panicking requests are still access-logged")
	fields := access[0].ContextMap()
	assert.Equal(t, "/panic", fields["path"])
	assert.EqualValues(t, http.StatusInternalServerError, fields["status"])
}

func TestEventsEndToEnd(t *testing.T) {
	var hits atomic.Int32
	up := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		_, _ = w.Write([]byte(`[ {"EventKey": "1", "Title": "Career Fair"} ]`))
	}))
	defer up.Close()

	client, err := upstream.NewClient(upstream.Config{URL: up.URL}, up.Client())
	require.NoError(t, err)
	mgr, err := events.NewManager(store.NewMemoryStore(nil), client)
	require.NoError(t, err)
	s := NewServer(config.DefaultConfig(), mgr)

	for i := 0; i < 3; i++ {
		rec := do(t, s.Handler(), http.MethodGet, "/events")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, `[{"EventKey":"1","Title":"Career Fair"}]`, rec.Body.String())
	}
	assert.EqualValues(t, 1, hits.Load())

	rec := do(t, s.Handler(), http.MethodGet, "/events/status")
	require.Equal(t, http.StatusOK, rec.Code)
	var st events.Status
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &st))
	assert.True(t, st.Fresh)
}

func TestRunShutsDownOnCancel(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Listen = "127.0.0.1:0"
	s := NewServer(cfg, &stubEvents{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}

func TestParseBool(t *testing.T) {
	for _, v := range []string{"1", "true", "YES", " on "} {
		assert.True(t, parseBool(v), v)
	}
	for _, v := range []string{"", "0", "false", "nah"} {
		assert.False(t, parseBool(v), v)
	}
}
