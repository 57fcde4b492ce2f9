package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type observation struct {
	module, method, reason string
	status                 int
}

type fakeRecorder struct{ seen []observation }

func (f *fakeRecorder) Observe(module, method string, status int, reason string, _ time.Duration) {
	f.seen = append(f.seen, observation{module: module, method: method, reason: reason, status: status})
}

func TestObservabilityRecordsOutcome(t *testing.T) {
	recorder := &fakeRecorder{}
	obs := NewObservability(ObservabilityConfig{}, recorder, nil)
	handler := obs.Middleware("redeem")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(ReasonHeader, "already_redeemed")
		w.WriteHeader(http.StatusConflict)
	}))

	res := httptest.NewRecorder()
	handler.ServeHTTP(res, httptest.NewRequest(http.MethodPost, "/v1/split/redeem", nil))

	require.Equal(t, http.StatusConflict, res.Code)
	require.NotEmpty(t, res.Header().Get(RequestIDHeader))
	require.Equal(t, []observation{{module: "split", method: "redeem", reason: "already_redeemed", status: http.StatusConflict}}, recorder.seen)
}

func TestObservabilityKeepsRequestID(t *testing.T) {
	obs := NewObservability(ObservabilityConfig{Module: "split"}, nil, nil)
	handler := obs.Middleware("status")(okHandler())
	req := httptest.NewRequest(http.MethodGet, "/v1/split/status", nil)
	req.Header.Set(RequestIDHeader, "req-42")
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	require.Equal(t, "req-42", res.Header().Get(RequestIDHeader))
}

func TestCORSPreflight(t *testing.T) {
	handler := CORS(CORSConfig{AllowedOrigins: []string{"https://dao.example"}})(okHandler())
	req := httptest.NewRequest(http.MethodOptions, "/v1/split/deposit", nil)
	req.Header.Set("Origin", "https://dao.example")
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	require.Equal(t, http.StatusNoContent, res.Code)
	require.Equal(t, "https://dao.example", res.Header().Get("Access-Control-Allow-Origin"))

	req.Header.Set("Origin", "https://evil.example")
	res = httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	require.Empty(t, res.Header().Get("Access-Control-Allow-Origin"))
}
