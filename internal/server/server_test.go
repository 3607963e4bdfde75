package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

func TestHealth(t *testing.T) {
	tests := []struct {
		name       string
		checks     map[string]HealthChecker
		wantStatus int
		wantBody   map[string]any
	}{
		{
			name:       "no checks",
			wantStatus: http.StatusOK,
			wantBody:   map[string]any{"status": "healthy", "checks": map[string]any{}},
		},
		{
			name: "all healthy",
			checks: map[string]HealthChecker{
				"database": pingFunc(func(context.Context) error { return nil }),
			},
			wantStatus: http.StatusOK,
			wantBody:   map[string]any{"status": "healthy", "checks": map[string]any{"database": "connected"}},
		},
		{
			name: "one failing",
			checks: map[string]HealthChecker{
				"database": pingFunc(func(context.Context) error { return errors.New("down") }),
				"broker":   pingFunc(func(context.Context) error { return nil }),
			},
			wantStatus: http.StatusServiceUnavailable,
			wantBody: map[string]any{"status": "unhealthy", "checks": map[string]any{
				"database": "unreachable",
				"broker":   "connected",
			}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := New(":0", "test", tt.checks)
			w := httptest.NewRecorder()
			s.Engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

			require.Equal(t, tt.wantStatus, w.Code)
			var body map[string]any
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			require.Equal(t, tt.wantBody, body)
		})
	}
}

func TestMiddlewareAndMetrics(t *testing.T) {
	called := false
	s := New(":0", "test", nil, func(c *gin.Context) {
		called = true
		c.Next()
	})

	w := httptest.NewRecorder()
	s.Engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
	require.True(t, called)
	require.Contains(t, w.Body.String(), "go_goroutines")
}
