package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

var ok = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
})

func TestCors(t *testing.T) {
	t.Run("answers preflight", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodOptions, "/session/dataset", nil)
		rec := httptest.NewRecorder()

		Cors("http://localhost:3000")(ok).ServeHTTP(rec, req)

		assert.Equal(t, http.StatusNoContent, rec.Code)
		assert.Equal(t, "http://localhost:3000", rec.Header().Get("Access-Control-Allow-Origin"))
		assert.Contains(t, rec.Header().Get("Access-Control-Allow-Methods"), "DELETE")
	})

	t.Run("passes other requests through", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/build", nil)
		rec := httptest.NewRecorder()

		Cors("http://localhost:3000")(ok).ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		for _, header := range []string{
			"Access-Control-Allow-Origin",
			"Access-Control-Allow-Methods",
			"Access-Control-Allow-Headers",
			"Access-Control-Max-Age",
		} {
			assert.NotEmpty(t, rec.Header().Get(header), header)
		}
	})

	t.Run("empty origin allows any", func(t *testing.T) {
		rec := httptest.NewRecorder()

		Cors("")(ok).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

		assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	})
}
