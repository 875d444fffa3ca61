package observability

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHealthChecker_Check(t *testing.T) {
	tests := []struct {
		name     string
		critical error
		optional error
		want     string
	}{
		{"all healthy", nil, nil, StatusHealthy},
		{"optional failing", nil, errors.New("down"), StatusDegraded},
		{"critical failing", errors.New("down"), nil, StatusUnhealthy},
		{"both failing", errors.New("down"), errors.New("down"), StatusUnhealthy},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHealthChecker("test")
			h.AddCheck("database", true, func(context.Context) error { return tt.critical })
			h.AddCheck("redis", false, func(context.Context) error { return tt.optional })

			status := h.Check(context.Background())
			assert.Equal(t, tt.want, status.Status)
			assert.Equal(t, "test", status.Version)
			assert.Len(t, status.Dependencies, 2)
			if tt.optional != nil {
				assert.Equal(t, StatusDegraded, status.Dependencies["redis"].Status)
				assert.Equal(t, "down", status.Dependencies["redis"].Message)
			}
		})
	}
}

func TestHealthRoutes(t *testing.T) {
	h := NewHealthChecker("test")
	failing := false
	h.AddCheck("database", true, func(context.Context) error {
		if failing {
			return errors.New("connection refused")
		}
		return nil
	})

	router := mux.NewRouter()
	RegisterHealthRoutes(router, h)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	failing = true
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var status HealthStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, StatusUnhealthy, status.Status)
	assert.Equal(t, "connection refused", status.Dependencies["database"].Message)
}


func TestRedisCheck(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	assert.NoError(t, RedisCheck(client)(context.Background()))

	mr.Close()
	assert.Error(t, RedisCheck(client)(context.Background()))
}
