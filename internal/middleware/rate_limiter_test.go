package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUpgradeLimiter(t *testing.T) {
	e := echo.New()

	handler := func(c echo.Context) error {
		return c.String(http.StatusOK, "OK")
	}

	// A tiny rate so the bucket does not refill during the test.
	e.GET("/ws", handler, UpgradeLimiter(3))

	get := func(remote string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/ws", nil)
		req.RemoteAddr = remote
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)
		return rec
	}

	t.Run("allows requests within the burst", func(t *testing.T) {
		rec := get("192.0.2.1:1234")
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("blocks requests exceeding the burst", func(t *testing.T) {
		clientIP := "192.0.2.2:1234"
		for i := 0; i < 3; i++ {
			rec := get(clientIP)
			require.Equal(t, http.StatusOK, rec.Code, "request %d should be allowed", i+1)
		}

		rec := get(clientIP)
		assert.Equal(t, http.StatusTooManyRequests, rec.Code)
		assert.Contains(t, rec.Body.String(), "Too many requests")
	})

	t.Run("limits each IP separately", func(t *testing.T) {
		assert.Equal(t, http.StatusOK, get("192.0.2.3:1234").Code)
	})
}
