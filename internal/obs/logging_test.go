package obs

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
)

func TestRequestLoggerTagsCheckoutRequests(t *testing.T) {
	var buf bytes.Buffer
	r := chi.NewRouter()
	r.Use(RequestLogger{Logger: newLogger(&buf, "json", "debug")}.Middleware)
	r.Post("/orders/{orderID}/checkout", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusConflict)
	})

	req := httptest.NewRequest(http.MethodPost, "/orders/ord-7/checkout", nil)
	req.Header.Set("X-Waiter-ID", "w-3")
	r.ServeHTTP(httptest.NewRecorder(), req)

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	require.Equal(t, "warn", line["level"])
	require.Equal(t, "/orders/{orderID}/checkout", line["route"])
	require.Equal(t, "ord-7", line["order_id"])
	require.Equal(t, "w-3", line["waiter_id"])
	require.EqualValues(t, 409, line["status"])
}

func TestNewLoggerFallsBackToInfo(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf, "json", "chatty")
	logger.Debug().Msg("hidden")
	require.Empty(t, buf.String())
	logger.Info().Msg("shown")
	require.Contains(t, buf.String(), "shown")
}
