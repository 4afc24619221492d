package handlers

import (
	"net/http"
	"net/http/httptest"
	"runtime"
	"strconv"
	"testing"
	"time"

	json "github.com/json-iterator/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeHealth(t *testing.T, w *httptest.ResponseRecorder) HealthResponse {
	t.Helper()
	var response HealthResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
	return response
}

func TestHealthHandler(t *testing.T) {
	t.Run("returns service status", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		w := httptest.NewRecorder()

		HealthHandler(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

		response := decodeHealth(t, w)
		assert.Equal(t, "healthy", response.Status)
		assert.Equal(t, ServiceName, response.Service)
		assert.NotEmpty(t, response.Uptime)

		_, err := time.Parse(time.RFC3339, response.Timestamp)
		assert.NoError(t, err, "Timestamp should be valid RFC3339 format")
	})

	t.Run("details carry runtime info", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		w := httptest.NewRecorder()

		HealthHandler(w, req)

		response := decodeHealth(t, w)
		assert.Equal(t, runtime.Version(), response.Details["go_version"])
		assert.Equal(t, strconv.Itoa(runtime.NumCPU()), response.Details["num_cpu"])
	})

	t.Run("uptime increases over time", func(t *testing.T) {
		w1 := httptest.NewRecorder()
		HealthHandler(w1, httptest.NewRequest(http.MethodGet, "/health", nil))
		first := decodeHealth(t, w1)

		time.Sleep(10 * time.Millisecond)

		w2 := httptest.NewRecorder()
		HealthHandler(w2, httptest.NewRequest(http.MethodGet, "/health", nil))
		second := decodeHealth(t, w2)

		assert.NotEqual(t, first.Uptime, second.Uptime)
	})

	for _, method := range []string{http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodPatch, http.MethodHead} {
		t.Run("rejects "+method, func(t *testing.T) {
			req := httptest.NewRequest(method, "/health", nil)
			w := httptest.NewRecorder()

			HealthHandler(w, req)

			assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
		})
	}

	t.Run("handles concurrent requests", func(t *testing.T) {
		const numRequests = 10
		results := make(chan int, numRequests)

		for range numRequests {
			go func() {
				w := httptest.NewRecorder()
				HealthHandler(w, httptest.NewRequest(http.MethodGet, "/health", nil))
				results <- w.Code
			}()
		}

		for range numRequests {
			assert.Equal(t, http.StatusOK, <-results)
		}
	})
}

func TestHealthResponseOmitsEmpty(t *testing.T) {
	data, err := json.Marshal(HealthResponse{Status: "healthy", Service: ServiceName})
	require.NoError(t, err)

	assert.NotContains(t, string(data), "uptime")
	assert.NotContains(t, string(data), "details")
}
