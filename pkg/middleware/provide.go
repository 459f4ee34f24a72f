package middleware

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"
)

func withValue(ctx context.Context, key, value any) context.Context {
	return context.WithValue(ctx, key, value)
}

// Provide injects a fixed value into every request context.
func Provide(key any, value any) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(withValue(r.Context(), key, value)))
		})
	}
}

// ProvideFunc is Provide for values built per request.
func ProvideFunc(key any, build func(r *http.Request) any) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(withValue(r.Context(), key, build(r))))
		})
	}
}
