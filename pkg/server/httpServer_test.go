package server

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/require"

	"github.com/autopeca/marketplace/pkg/application"
)

type pingController struct{}

func (pingController) Key() string { return "/ping" }
func (pingController) Register(r *mux.Router) {
	r.HandleFunc("/ping", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("pong"))
	}).Methods(http.MethodGet)
}

func TestHTTPServer_MiddlewareWrapsFallbacks(t *testing.T) {
	t.Parallel()

	tag := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Tagged", "1")
			next.ServeHTTP(w, r)
		})
	}
	s := &HTTPServer{
		Controllers:             []application.Controller{pingController{}},
		Middlewares:             []mux.MiddlewareFunc{tag},
		NotFoundHandler:         http.NotFoundHandler(),
		MethodNotAllowedHandler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusMethodNotAllowed) }),
	}
	h := s.Handler()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ping", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "pong", rec.Body.String())
	require.Equal(t, "1", rec.Header().Get("X-Tagged"))

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/missing", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Equal(t, "1", rec.Header().Get("X-Tagged"))

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/ping", nil))
	require.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
