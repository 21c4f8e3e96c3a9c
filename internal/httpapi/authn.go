package httpapi

import (
	"net/http"
	"strings"

	"clinicbase.org/internal/audit"
	"clinicbase.org/internal/auth"
)

var publicPaths = map[string]bool{
	"/healthz":       true,
	"/readyz":        true,
	"/metrics":       true,
	"/v1/info":       true,
	"/openapi.yaml":  true,
	"/v1/auth/token": true,
}

// withAuth requires a bearer token on all non-public paths and seeds both the
// auth context and the audit request context from the validated claims.
func (a *API) withAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if publicPaths[r.URL.Path] {
			next.ServeHTTP(w, r)
			return
		}

		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			writeError(w, r, http.StatusUnauthorized, "missing bearer token")
			return
		}

		claims, err := auth.ParseAndValidate(token)
		if err != nil {
			writeError(w, r, http.StatusUnauthorized, "invalid token")
			return
		}

		deviceID := claims.DeviceID
		if hdr := r.Header.Get("X-Device-Id"); hdr != "" {
			deviceID = hdr
		}

		ctx := auth.ContextWithUser(r.Context(), claims.Subject, deviceID, claims.Roles)
		ctx = audit.WithRequestContext(ctx, audit.RequestContext{
			UserID:    claims.Subject,
			DeviceID:  deviceID,
			AppID:     r.Header.Get("X-App-Id"),
			IPAddress: clientIP(r),
		})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
