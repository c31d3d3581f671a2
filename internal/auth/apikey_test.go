package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAPIKeyMiddleware(t *testing.T) {
	m := &APIKeyMiddleware{Key: "secret"}
	handler := m.Handle(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	testCases := []struct {
		name   string
		target string
		header string
		code   int
	}{
		{name: "valid header", target: "/order", header: "secret", code: http.StatusOK},
		{name: "valid query", target: "/order?api-key=secret", code: http.StatusOK},
		{name: "missing", target: "/order", code: http.StatusUnauthorized},
		{name: "wrong", target: "/order", header: "nope", code: http.StatusUnauthorized},
		{name: "empty query key", target: "/order?api-key=", code: http.StatusUnauthorized},
		{name: "health needs key too", target: "/health", code: http.StatusUnauthorized},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tc.target, nil)
			if tc.header != "" {
				req.Header.Set(APIKeyHeader, tc.header)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			assert.Equal(t, tc.code, rec.Code)
		})
	}
}
