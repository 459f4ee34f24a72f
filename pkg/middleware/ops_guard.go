package middleware

import (
	"crypto/subtle"
	"net"
	"net/http"
	"net/netip"
	"strings"

	"github.com/gorilla/mux"
)

type OpsGuardConfig struct {
	Enabled bool
	// Paths are matched by exact path or "/prefix/" prefix.
	Paths        []string
	CIDRs        string
	Token        string
	RealIPHeader string
}

type opsGuard struct {
	cfg   OpsGuardConfig
	cidrs []netip.Prefix
}

// OpsGuard hides ops endpoints behind a CIDR allowlist or a shared token. Unauthorized callers
// get a plain 404 so the endpoints are not discoverable.
func OpsGuard(cfg OpsGuardConfig) mux.MiddlewareFunc {
	g := &opsGuard{cfg: cfg, cidrs: parseCIDRs(cfg.CIDRs)}
	return g.middleware
}

func (g *opsGuard) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !g.cfg.Enabled || !g.guarded(r.URL.Path) || g.authorized(r) {
			next.ServeHTTP(w, r)
			return
		}
		http.NotFound(w, r)
	})
}

func (g *opsGuard) guarded(path string) bool {
	for _, p := range g.cfg.Paths {
		if path == p || (strings.HasSuffix(p, "/") && strings.HasPrefix(path, p)) {
			return true
		}
	}
	return false
}

func (g *opsGuard) authorized(r *http.Request) bool {
	if len(g.cidrs) > 0 {
		if ip, ok := realIP(r, g.cfg.RealIPHeader); ok {
			if addr, err := netip.ParseAddr(ip); err == nil {
				for _, p := range g.cidrs {
					if p.Contains(addr) {
						return true
					}
				}
			}
		}
	}
	if token := strings.TrimSpace(g.cfg.Token); token != "" {
		return subtle.ConstantTimeCompare([]byte(tokenFromRequest(r)), []byte(token)) == 1
	}
	return false
}

func parseCIDRs(raw string) []netip.Prefix {
	parts := strings.FieldsFunc(raw, func(r rune) bool { return r == ',' || r == ';' || r == ' ' || r == '\n' || r == '\t' })
	out := make([]netip.Prefix, 0, len(parts))
	for _, part := range parts {
		if p, err := netip.ParsePrefix(part); err == nil {
			out = append(out, p)
		}
	}
	return out
}

func tokenFromRequest(r *http.Request) string {
	if t := strings.TrimSpace(r.Header.Get("X-Ops-Token")); t != "" {
		return t
	}
	auth := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(auth) > len("bearer ") && strings.EqualFold(auth[:len("bearer ")], "bearer ") {
		return strings.TrimSpace(auth[len("bearer "):])
	}
	return ""
}

// realIP takes the first X-Forwarded-For style entry of header, else RemoteAddr.
func realIP(r *http.Request, header string) (string, bool) {
	if header != "" {
		if v := strings.TrimSpace(r.Header.Get(header)); v != "" {
			if first, _, found := strings.Cut(v, ","); found {
				v = strings.TrimSpace(first)
			}
			return stripPort(v)
		}
	}
	return stripPort(r.RemoteAddr)
}

func stripPort(s string) (string, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", false
	}
	if host, _, err := net.SplitHostPort(s); err == nil {
		return host, true
	}
	return s, true
}
