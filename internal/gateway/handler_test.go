package gateway

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ecogrid-lab/ecogrid-gateway/internal/apiclient"
	"github.com/ecogrid-lab/ecogrid-gateway/internal/auth"
	"github.com/ecogrid-lab/ecogrid-gateway/internal/binding"
	httperr "github.com/ecogrid-lab/ecogrid-gateway/internal/core/errors"
	"github.com/ecogrid-lab/ecogrid-gateway/internal/core/retry"
	"github.com/ecogrid-lab/ecogrid-gateway/internal/devicefeed"
	"github.com/ecogrid-lab/ecogrid-gateway/internal/report"
	"github.com/ecogrid-lab/ecogrid-gateway/internal/stream"
	"github.com/ecogrid-lab/ecogrid-gateway/internal/telemetry"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

type upstream struct {
	mu     sync.Mutex
	hits   map[string]int
	server *httptest.Server
}

func newUpstream(t *testing.T, routes map[string]http.HandlerFunc) *upstream {
	t.Helper()
	u := &upstream{hits: make(map[string]int)}
	u.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u.mu.Lock()
		u.hits[r.URL.Path]++
		u.mu.Unlock()
		if h, ok := routes[r.Method+" "+r.URL.Path]; ok {
			h(w, r)
			return
		}
		writeJSON(w, http.StatusNotFound, map[string]any{"message": "no route"})
	}))
	t.Cleanup(u.server.Close)
	return u
}

func (u *upstream) count(path string) int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.hits[path]
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func jsonRoute(status int, v any) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) { writeJSON(w, status, v) }
}

type fakeLive map[string]*telemetry.Accumulator

func (f fakeLive) Accumulator(ctx context.Context, siteID string) (*telemetry.Accumulator, error) {
	acc, ok := f[siteID]
	if !ok {
		return nil, stream.ErrUnknownSite
	}
	return acc, nil
}

func (f fakeLive) Watch(ctx context.Context, siteID string) (*telemetry.Accumulator, func(), error) {
	acc, err := f.Accumulator(ctx, siteID)
	if err != nil {
		return nil, nil, err
	}
	return acc, func() {}, nil
}

type fixture struct {
	upstream *upstream
	client   *apiclient.Client
	creds    *auth.CredentialStore
	session  *auth.Session
	tracker  *devicefeed.Tracker
	engine   *gin.Engine
}

func newFixture(t *testing.T, routes map[string]http.HandlerFunc, live LiveSites) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	f := &fixture{
		upstream: newUpstream(t, routes),
		creds:    auth.NewCredentialStore(nil),
		session:  auth.NewSession(),
		tracker:  devicefeed.NewTracker(),
	}
	var err error
	f.client, err = apiclient.New(apiclient.Config{BaseURL: f.upstream.server.URL + "/api"}, f.creds, f.session)
	require.NoError(t, err)

	overviews := NewOverviewWatchers(f.client, f.tracker, OverviewOptions{
		Idle:    time.Minute,
		Binding: []binding.Option{binding.WithPolicy(retry.Policy{MaxAttempts: 1})},
	})
	t.Cleanup(overviews.Close)

	h := New(Deps{
		API:          f.client,
		Session:      auth.NewService(f.client, f.creds, f.session),
		Overviews:    overviews,
		Tracker:      f.tracker,
		Live:         live,
		OverviewWait: time.Second,
		KeepAlive:    time.Hour,
	})
	f.engine = gin.New()
	f.engine.Use(RequestID(), Observe())
	h.RegisterRoutes(f.engine)
	return f
}

func (f *fixture) do(method, target string, body []byte) *httptest.ResponseRecorder {
	var req *http.Request
	if body != nil {
		req = httptest.NewRequest(method, target, bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	w := httptest.NewRecorder()
	f.engine.ServeHTTP(w, req)
	return w
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) httperr.ErrorResponse {
	t.Helper()
	var resp httperr.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

var siteList = []map[string]any{
	{"id": 1, "name": "Alpha", "status": "ACTIVE", "locationLat": 1, "locationLng": 2, "capacityMw": 3},
}

func TestHandleListSites(t *testing.T) {
	f := newFixture(t, map[string]http.HandlerFunc{
		"GET /api/sites": func(w http.ResponseWriter, r *http.Request) {
			require.Equal(t, "name", r.URL.Query().Get("sortBy"))
			writeJSON(w, http.StatusOK, siteList)
		},
	}, nil)

	tests := []struct {
		name       string
		target     string
		wantStatus int
		wantType   string
	}{
		{"valid query", "/v1/sites?sortBy=name", http.StatusOK, ""},
		{"bad sort field", "/v1/sites?sortBy=color", http.StatusBadRequest, httperr.HttpInvalidParamsError},
		{"non-numeric page", "/v1/sites?page=x", http.StatusBadRequest, httperr.HttpInvalidParamsError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := f.do(http.MethodGet, tt.target, nil)
			require.Equal(t, tt.wantStatus, w.Code)
			if tt.wantType != "" {
				require.Equal(t, tt.wantType, decodeError(t, w).ErrorType)
				return
			}
			var sites []apiclient.Site
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &sites))
			require.Len(t, sites, 1)
			require.Equal(t, "Alpha", sites[0].Name)
		})
	}
}

func TestHandlers_CacheAndRefresh(t *testing.T) {
	f := newFixture(t, map[string]http.HandlerFunc{
		"GET /api/sites/1": jsonRoute(http.StatusOK, siteList[0]),
	}, nil)

	require.Equal(t, http.StatusOK, f.do(http.MethodGet, "/v1/sites/1", nil).Code)
	require.Equal(t, http.StatusOK, f.do(http.MethodGet, "/v1/sites/1", nil).Code)
	require.Equal(t, 1, f.upstream.count("/api/sites/1"))

	require.Equal(t, http.StatusOK, f.do(http.MethodGet, "/v1/sites/1?refresh=true", nil).Code)
	require.Equal(t, 2, f.upstream.count("/api/sites/1"))
}

func TestHandleGetSite_InvalidID(t *testing.T) {
	f := newFixture(t, nil, nil)
	for _, target := range []string{"/v1/sites/abc", "/v1/sites/0", "/v1/devices/-1"} {
		w := f.do(http.MethodGet, target, nil)
		require.Equal(t, http.StatusBadRequest, w.Code, target)
		require.Equal(t, httperr.HttpInvalidParamsError, decodeError(t, w).ErrorType)
	}
}

func TestErrorMapping(t *testing.T) {
	f := newFixture(t, map[string]http.HandlerFunc{
		"GET /api/sites/1":   jsonRoute(http.StatusUnauthorized, map[string]any{"message": "expired"}),
		"GET /api/sites/2":   jsonRoute(http.StatusServiceUnavailable, map[string]any{"message": "busy", "code": "MAINTENANCE"}),
		"GET /api/sites/3":   jsonRoute(http.StatusForbidden, map[string]any{"message": "no"}),
		"GET /api/sites/5":   func(w http.ResponseWriter, r *http.Request) { _, _ = w.Write([]byte("{")) },
		"GET /api/devices/9": jsonRoute(http.StatusNotFound, map[string]any{"message": "gone"}),
	}, nil)
	ended := make(chan string, 1)
	f.session.OnEnd(func(reason string) { ended <- reason })

	tests := []struct {
		target     string
		wantStatus int
		wantType   string
	}{
		{"/v1/sites/1", http.StatusUnauthorized, httperr.HttpSessionEndedError},
		{"/v1/sites/2", http.StatusBadGateway, httperr.HttpUnavailableError},
		{"/v1/sites/3", http.StatusForbidden, httperr.HttpUpstreamError},
		{"/v1/sites/5", http.StatusBadGateway, httperr.HttpUpstreamError},
		{"/v1/devices/9", http.StatusNotFound, httperr.HttpNotFoundError},
	}
	for _, tt := range tests {
		t.Run(tt.target, func(t *testing.T) {
			w := f.do(http.MethodGet, tt.target, nil)
			require.Equal(t, tt.wantStatus, w.Code)
			require.Equal(t, tt.wantType, decodeError(t, w).ErrorType)
		})
	}

	require.Equal(t, auth.ReasonUnauthorized, <-ended)

	w := f.do(http.MethodGet, "/v1/sites/2", nil)
	details, ok := decodeError(t, w).Details.(map[string]any)
	require.True(t, ok)
	require.Equal(t, float64(http.StatusServiceUnavailable), details["upstream_status"])
	require.Equal(t, "MAINTENANCE", details["upstream_code"])
}

func TestHandleListDevices_ByType(t *testing.T) {
	f := newFixture(t, map[string]http.HandlerFunc{
		"GET /api/devices": func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, []map[string]any{
				{"id": 4, "siteId": 1, "type": r.URL.Query().Get("type"), "status": "ONLINE"},
			})
		},
	}, nil)

	w := f.do(http.MethodGet, "/v1/devices?type=BATTERY&siteId=1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var devices []apiclient.Device
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &devices))
	require.Equal(t, "BATTERY", devices[0].Type)

	w = f.do(http.MethodGet, "/v1/devices", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &devices))
	require.Equal(t, "", devices[0].Type)
}

func TestAnalyticsValidation(t *testing.T) {
	f := newFixture(t, map[string]http.HandlerFunc{
		"GET /api/analytics/energy/consumption": jsonRoute(http.StatusOK, map[string]any{"totalConsumption": 12.5, "aggregation": "DAILY"}),
		"GET /api/analytics/carbon/footprint":   jsonRoute(http.StatusOK, map[string]any{"totalCarbon": 3}),
		"GET /api/analytics/dashboard":          jsonRoute(http.StatusOK, map[string]any{"activeSites": 2, "costSavings": "10.50"}),
	}, nil)

	tests := []struct {
		target     string
		wantStatus int
	}{
		{"/v1/analytics/energy?aggregation=DAILY&startDate=2026-01-01&endDate=2026-01-31", http.StatusOK},
		{"/v1/analytics/energy?aggregation=YEARLY", http.StatusBadRequest},
		{"/v1/analytics/energy?startDate=2026-02-01&endDate=2026-01-01", http.StatusBadRequest},
		{"/v1/analytics/carbon?aggregation=HOURLY", http.StatusBadRequest},
		{"/v1/analytics/carbon", http.StatusOK},
		{"/v1/analytics/financial?currency=EURO", http.StatusBadRequest},
		{"/v1/analytics/dashboard?hoursBack=-1", http.StatusBadRequest},
		{"/v1/analytics/dashboard?hoursBack=24", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.target, func(t *testing.T) {
			w := f.do(http.MethodGet, tt.target, nil)
			require.Equal(t, tt.wantStatus, w.Code, w.Body.String())
		})
	}
}

func TestHandleSiteAnalytics_QueryCannotOverridePath(t *testing.T) {
	f := newFixture(t, map[string]http.HandlerFunc{
		"GET /api/analytics/sites/3": jsonRoute(http.StatusOK, map[string]any{"siteId": 3}),
	}, nil)

	w := f.do(http.MethodGet, "/v1/sites/3/analytics?siteId=5", nil)
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Equal(t, httperr.HttpInvalidParamsError, decodeError(t, w).ErrorType)
	require.Zero(t, f.upstream.count("/api/analytics/sites/3"))

	require.Equal(t, http.StatusOK, f.do(http.MethodGet, "/v1/sites/3/analytics", nil).Code)
	require.Equal(t, http.StatusOK, f.do(http.MethodGet, "/v1/sites/3/analytics?period=week", nil).Code)
	require.Equal(t, 2, f.upstream.count("/api/analytics/sites/3"))
}

func TestHandleFinancialExport(t *testing.T) {
	f := newFixture(t, map[string]http.HandlerFunc{
		"GET /api/analytics/financial-metrics": jsonRoute(http.StatusOK, map[string]any{
			"totalRevenue": "100.00",
			"totalCosts":   "40.00",
			"netProfit":    "60.00",
			"periodStart":  "2026-01-01",
			"periodEnd":    "2026-01-31",
			"dataPoints": []map[string]any{
				{"timestamp": "2026-01-01", "revenue": "100", "costs": "40", "profit": "60"},
			},
		}),
	}, nil)

	w := f.do(http.MethodGet, "/v1/analytics/financial/export?startDate=2026-01-01&endDate=2026-01-31&currency=EUR", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, report.ContentTypeXLSX, w.Header().Get("Content-Type"))
	require.Contains(t, w.Header().Get("Content-Disposition"), "financial-metrics_2026-01-01_2026-01-31.xlsx")

	x, err := excelize.OpenReader(bytes.NewReader(w.Body.Bytes()))
	require.NoError(t, err)
	defer x.Close()
	v, err := x.GetCellValue(report.SummarySheet, "B8")
	require.NoError(t, err)
	require.Equal(t, "60", v)
}

func TestHandleSiteOverview_MergesDeviceReadings(t *testing.T) {
	f := newFixture(t, map[string]http.HandlerFunc{
		"GET /api/sites/1/overview": jsonRoute(http.StatusOK, map[string]any{
			"id":   1,
			"name": "Alpha",
			"devices": []map[string]any{
				{"id": 10, "deviceType": "BATTERY", "latestTelemetry": map[string]any{
					"timestamp": "2026-01-01T00:00:00Z", "telemetryType": "BATTERY", "data": map[string]any{"soc": 40},
				}},
			},
		}),
	}, nil)

	w := f.do(http.MethodGet, "/v1/sites/1/overview", nil)
	require.Equal(t, http.StatusOK, w.Code)

	applied := f.tracker.Apply(devicefeed.Event{
		SiteID:    1,
		DeviceID:  10,
		Telemetry: json.RawMessage(`{"soc":55}`),
		Timestamp: "2026-01-01T00:05:00Z",
	})
	require.True(t, applied)

	w = f.do(http.MethodGet, "/v1/sites/1/overview", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Status binding.Status         `json:"status"`
		Data   apiclient.SiteOverview `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Equal(t, binding.StatusReady, resp.Status)
	require.JSONEq(t, `{"soc":55}`, string(resp.Data.Devices[0].LatestTelemetry.Data))
	require.Equal(t, "2026-01-01T00:05:00Z", resp.Data.Devices[0].LatestTelemetry.Timestamp)
	require.Equal(t, 1, f.upstream.count("/api/sites/1/overview"))
}

func TestHandleSiteOverview_ReloadServesPreviousData(t *testing.T) {
	gate := make(chan struct{})
	var calls sync.Map
	f := newFixture(t, map[string]http.HandlerFunc{
		"GET /api/sites/1/overview": func(w http.ResponseWriter, r *http.Request) {
			if _, seen := calls.LoadOrStore("first", true); seen {
				select {
				case <-gate:
				case <-r.Context().Done():
					return
				}
			}
			writeJSON(w, http.StatusOK, map[string]any{"id": 1, "name": "Alpha"})
		},
	}, nil)
	t.Cleanup(func() { close(gate) })

	overviews := NewOverviewWatchers(f.client, f.tracker, OverviewOptions{
		Idle:    time.Minute,
		Binding: []binding.Option{binding.WithPolicy(retry.Policy{MaxAttempts: 1})},
	})
	t.Cleanup(overviews.Close)
	h := New(Deps{API: f.client, Overviews: overviews, Tracker: f.tracker, OverviewWait: 20 * time.Millisecond})
	engine := gin.New()
	h.RegisterRoutes(engine)

	get := func(target string) *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, target, nil))
		return w
	}

	require.Equal(t, http.StatusOK, get("/v1/sites/1/overview").Code)

	w := get("/v1/sites/1/overview?refresh=true")
	require.Equal(t, http.StatusAccepted, w.Code)
	var resp struct {
		Status binding.Status          `json:"status"`
		Data   *apiclient.SiteOverview `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Equal(t, binding.StatusLoading, resp.Status)
	require.NotNil(t, resp.Data)
	require.Equal(t, "Alpha", resp.Data.Name)
}

func TestHandleSiteOverview_Failed(t *testing.T) {
	f := newFixture(t, map[string]http.HandlerFunc{
		"GET /api/sites/2/overview": jsonRoute(http.StatusBadRequest, map[string]any{"message": "bad site"}),
	}, nil)

	w := f.do(http.MethodGet, "/v1/sites/2/overview", nil)
	require.Equal(t, http.StatusBadRequest, w.Code)
	var resp map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Equal(t, "failed", resp["status"])
	require.Contains(t, resp["error"], "bad site")
}

func TestCacheEndpoints(t *testing.T) {
	f := newFixture(t, map[string]http.HandlerFunc{
		"GET /api/sites/1": jsonRoute(http.StatusOK, siteList[0]),
	}, nil)
	require.Equal(t, http.StatusOK, f.do(http.MethodGet, "/v1/sites/1", nil).Code)

	w := f.do(http.MethodPost, "/v1/cache/invalidate", nil)
	require.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(http.MethodPost, "/v1/cache/invalidate?pattern=site", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.JSONEq(t, `{"pattern":"site","removed":1}`, w.Body.String())

	require.Equal(t, http.StatusOK, f.do(http.MethodGet, "/v1/sites/1", nil).Code)
	require.Equal(t, 2, f.upstream.count("/api/sites/1"))

	require.Equal(t, http.StatusNoContent, f.do(http.MethodDelete, "/v1/cache", nil).Code)
	require.Zero(t, f.client.Cache().Len())
}

func TestSessionEndpoints(t *testing.T) {
	f := newFixture(t, map[string]http.HandlerFunc{
		"POST /api/auth/login": func(w http.ResponseWriter, r *http.Request) {
			var req auth.LoginRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			if req.Password != "secret" {
				writeJSON(w, http.StatusUnauthorized, map[string]any{"message": "bad credentials"})
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{
				"token":     "opaque-token",
				"user":      map[string]any{"id": 7, "email": req.Email, "role": "ADMIN"},
				"expiresIn": 3600,
			})
		},
		"GET /api/auth/me":      jsonRoute(http.StatusOK, map[string]any{"id": 7, "email": "ops@example.com", "role": "ADMIN"}),
		"POST /api/auth/logout": jsonRoute(http.StatusInternalServerError, map[string]any{"message": "down"}),
	}, nil)

	w := f.do(http.MethodGet, "/v1/session", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.JSONEq(t, `{"authenticated":false}`, w.Body.String())

	w = f.do(http.MethodPost, "/v1/session/login", []byte(`{`))
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Equal(t, httperr.HttpInvalidJsonError, decodeError(t, w).ErrorType)

	w = f.do(http.MethodPost, "/v1/session/login", []byte(`{"email":"ops@example.com","password":""}`))
	require.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(http.MethodPost, "/v1/session/login", []byte(`{"email":"ops@example.com","password":"wrong"}`))
	require.Equal(t, http.StatusUnauthorized, w.Code)

	w = f.do(http.MethodPost, "/v1/session/login", []byte(`{"email":"ops@example.com","password":"secret"}`))
	require.Equal(t, http.StatusOK, w.Code)
	require.NotContains(t, w.Body.String(), "opaque-token")
	require.Equal(t, "opaque-token", f.creds.Token())

	w = f.do(http.MethodGet, "/v1/session", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var sess sessionResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &sess))
	require.True(t, sess.Authenticated)
	require.Equal(t, "ops@example.com", sess.User.Email)

	require.Equal(t, http.StatusNoContent, f.do(http.MethodPost, "/v1/session/logout", nil).Code)
	require.Empty(t, f.creds.Token())
}

func TestRequestID(t *testing.T) {
	f := newFixture(t, nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/v1/session", nil)
	req.Header.Set(RequestIDHeader, "abc-123")
	w := httptest.NewRecorder()
	f.engine.ServeHTTP(w, req)
	require.Equal(t, "abc-123", w.Header().Get(RequestIDHeader))

	w = f.do(http.MethodGet, "/v1/session", nil)
	require.Len(t, w.Header().Get(RequestIDHeader), 36)
}

func TestHandleEMSState(t *testing.T) {
	acc := telemetry.NewAccumulator("site-1", nil)
	acc.Apply(telemetry.Message{
		SiteID:        "site-1",
		Type:          telemetry.FullUpdate,
		BatterySystem: &telemetry.BatterySystem{SOC: func() *float64 { v := 72.0; return &v }()},
	})
	f := newFixture(t, nil, fakeLive{"site-1": acc})

	w := f.do(http.MethodGet, "/v1/ems/site-1/state", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var state telemetry.State
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &state))
	require.Equal(t, 72.0, *state.BatterySystem.SOC)

	w = f.do(http.MethodGet, "/v1/ems/site-9/state", nil)
	require.Equal(t, http.StatusNotFound, w.Code)

	disabled := newFixture(t, nil, nil)
	w = disabled.do(http.MethodGet, "/v1/ems/site-1/state", nil)
	require.Equal(t, http.StatusServiceUnavailable, w.Code)
	require.Equal(t, httperr.HttpStreamDisabledError, decodeError(t, w).ErrorType)
}

func TestHandleEMSState_HubLimit(t *testing.T) {
	hub := stream.NewHub(func(ctx context.Context, siteID string) (*stream.Feed, error) {
		return &stream.Feed{Accumulator: telemetry.NewAccumulator(siteID, nil)}, nil
	}, nil, stream.WithMaxFeeds(1))
	t.Cleanup(hub.Close)
	f := newFixture(t, nil, hub)

	w := f.do(http.MethodGet, "/v1/ems/site-a/state", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = f.do(http.MethodGet, "/v1/ems/site-b/state", nil)
	require.Equal(t, http.StatusServiceUnavailable, w.Code)
	require.Equal(t, httperr.HttpStreamDisabledError, decodeError(t, w).ErrorType)
	require.Equal(t, []string{"site-a"}, hub.Sites())
}

func TestHandleEMSStream(t *testing.T) {
	acc := telemetry.NewAccumulator("site-1", nil)
	f := newFixture(t, nil, fakeLive{"site-1": acc})
	srv := httptest.NewServer(f.engine)
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/v1/ems/site-1/stream", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.True(t, strings.HasPrefix(resp.Header.Get("Content-Type"), "text/event-stream"))

	events := make(chan telemetry.State, 4)
	go func() {
		scanner := bufio.NewScanner(resp.Body)
		for scanner.Scan() {
			line := scanner.Text()
			if data, ok := strings.CutPrefix(line, "data:"); ok {
				var s telemetry.State
				if json.Unmarshal([]byte(data), &s) == nil {
					events <- s
				}
			}
		}
		close(events)
	}()

	first := <-events
	require.Equal(t, "site-1", first.SiteID)
	require.Nil(t, first.BatterySystem)

	require.Eventually(t, func() bool {
		acc.Apply(telemetry.Message{
			SiteID:        "site-1",
			Type:          telemetry.DeltaUpdate,
			BatterySystem: &telemetry.BatterySystem{SOC: func() *float64 { v := 30.0; return &v }()},
		})
		select {
		case s := <-events:
			return s.BatterySystem != nil && *s.BatterySystem.SOC == 30
		case <-time.After(50 * time.Millisecond):
			return false
		}
	}, 3*time.Second, 10*time.Millisecond)
}
