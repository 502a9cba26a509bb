package routes

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"github.com/yigit/classsetup/internal/app/models/dto"
)

func TestHealthCheck(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tests := []struct {
		name   string
		check  HealthCheck
		status int
		want   string
	}{
		{name: "memory", check: HealthCheck{Storage: "memory"}, status: http.StatusOK, want: "ok"},
		{
			name:   "postgres up",
			check:  HealthCheck{Storage: "postgres", Ping: func(context.Context) error { return nil }},
			status: http.StatusOK,
			want:   "ok",
		},
		{
			name:   "postgres down",
			check:  HealthCheck{Storage: "postgres", Ping: func(context.Context) error { return errors.New("connection refused") }},
			status: http.StatusServiceUnavailable,
			want:   "unavailable",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := gin.New()
			router.GET("/health", tt.check.handle)

			w := httptest.NewRecorder()
			router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
			require.Equal(t, tt.status, w.Code)

			var body dto.HealthResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			require.Equal(t, tt.want, body.Status)
			require.Equal(t, tt.check.Storage, body.Storage)
		})
	}
}
