package middleware

import (
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/autopeca/marketplace/pkg/composables"
	"github.com/autopeca/marketplace/pkg/httpapi"
)

// AgentIdentity reads the agent id set by the upstream auth gateway. Requests without a valid
// id never reach the handler.
func AgentIdentity(header string) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := strings.TrimSpace(r.Header.Get(header))
			id, err := uuid.Parse(raw)
			if raw == "" || err != nil || id == uuid.Nil {
				meta := map[string]string{}
				if rid, ok := composables.UseRequestID(r.Context()); ok {
					meta["request_id"] = rid
				}
				_ = httpapi.WriteError(w, http.StatusUnauthorized, "AGENT_UNAUTHENTICATED", "missing or invalid agent identity", meta)
				return
			}
			next.ServeHTTP(w, r.WithContext(composables.WithAgentID(r.Context(), id)))
		})
	}
}
