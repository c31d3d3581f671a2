package auth

import (
	"crypto/subtle"
	"net/http"
)

const APIKeyHeader = "X-API-Key"

// APIKeyMiddleware rejects requests without the configured static key.
type APIKeyMiddleware struct {
	Key string
}

func (m *APIKeyMiddleware) Handle(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Header.Get(APIKeyHeader)
		if key == "" {
			key = r.URL.Query().Get("api-key")
		}
		if key == "" || subtle.ConstantTimeCompare([]byte(key), []byte(m.Key)) != 1 {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte(`{"hasError":true,"message":"invalid API key"}`))
			return
		}
		next.ServeHTTP(w, r)
	})
}
