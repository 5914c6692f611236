package auth

import (
	"net/http"
	"strings"

	"github.com/ghuser/xscontrol/pkg/httpx"
	"github.com/ghuser/xscontrol/pkg/logger"
)

// OpenPaths is the set of request paths that bypass bearer auth, mirroring
// web_api.py's open_paths allowlist (health checks, docs, dashboards).
type OpenPaths map[string]struct{}

// NewOpenPaths builds an OpenPaths set from the given path list.
func NewOpenPaths(paths ...string) OpenPaths {
	set := make(OpenPaths, len(paths))
	for _, p := range paths {
		set[p] = struct{}{}
	}
	return set
}

// RequireBearer is a chi middleware enforcing Authorization: Bearer <token>
// on every request whose path is not in open. Returns 401 if the header is
// missing, malformed, or the token fails SecureAgent.VerifyToken.
func RequireBearer(agent *SecureAgent, open OpenPaths, log logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := open[r.URL.Path]; ok {
				next.ServeHTTP(w, r)
				return
			}

			header := r.Header.Get("Authorization")
			token, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || token == "" {
				log.WarnContext(r.Context(), "missing bearer token", "path", r.URL.Path)
				httpx.JSON(w, http.StatusUnauthorized, map[string]string{"error": "authentication required"})
				return
			}

			if !agent.VerifyToken(token) {
				log.WarnContext(r.Context(), "invalid bearer token", "path", r.URL.Path)
				httpx.JSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid token"})
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
