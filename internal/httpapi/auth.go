package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"servicedesk/internal/store"
)

const permissionMonitoringIngest = "monitoring:ingest"

type authContextKey struct{}

type authInfo struct {
	Session store.Session
}

func AuthMiddleware(sessions store.SessionStore, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if isPublicEndpoint(r) {
			next.ServeHTTP(w, r)
			return
		}
		sessionID := sessionIDFromRequest(r)
		if sessionID == "" {
			writeError(w, requestIDFromRequest(r), http.StatusUnauthorized, "missing session")
			return
		}
		session, err := sessions.GetSession(r.Context(), sessionID)
		if err != nil {
			if errors.Is(err, store.ErrSessionNotFound) {
				writeError(w, requestIDFromRequest(r), http.StatusUnauthorized, "invalid session")
				return
			}
			writeError(w, requestIDFromRequest(r), http.StatusInternalServerError, "internal server error")
			return
		}
		if info := requestInfoFromContext(r.Context()); info != nil {
			info.userID = session.UserID
		}
		ctx := context.WithValue(r.Context(), authContextKey{}, authInfo{Session: session})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func sessionFromContext(ctx context.Context) (store.Session, bool) {
	value := ctx.Value(authContextKey{})
	if value == nil {
		return store.Session{}, false
	}
	info, ok := value.(authInfo)
	if !ok {
		return store.Session{}, false
	}
	return info.Session, true
}

func requireSession(w http.ResponseWriter, r *http.Request) (store.Session, bool) {
	session, ok := sessionFromContext(r.Context())
	if !ok {
		writeError(w, requestIDFromRequest(r), http.StatusUnauthorized, "missing session")
		return store.Session{}, false
	}
	return session, true
}

// authorizeAPIKey checks an X-API-Key of the form <key_id>.<secret> for permission.
func (h *Handler) authorizeAPIKey(w http.ResponseWriter, r *http.Request, permission string) (store.APIKey, bool) {
	keyID, secret, ok := strings.Cut(strings.TrimSpace(r.Header.Get("X-API-Key")), ".")
	if !ok || keyID == "" || secret == "" {
		writeError(w, requestIDFromRequest(r), http.StatusUnauthorized, "missing API key")
		return store.APIKey{}, false
	}
	key, err := h.store.VerifyAPIKey(r.Context(), keyID, secret)
	if err != nil {
		h.respondError(w, r, err)
		return store.APIKey{}, false
	}
	if !contains(key.Permissions, permission) && !contains(key.Permissions, "*") {
		writeError(w, requestIDFromRequest(r), http.StatusForbidden, "API key lacks permission")
		return store.APIKey{}, false
	}
	return key, true
}

func contains(values []string, value string) bool {
	for _, item := range values {
		if item == value {
			return true
		}
	}
	return false
}

func sessionIDFromRequest(r *http.Request) string {
	if token := bearerToken(r.Header.Get("Authorization")); token != "" {
		return token
	}
	return strings.TrimSpace(r.Header.Get("X-Session-ID"))
}

func requestIDFromRequest(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get("X-Request-ID"))
}

func bearerToken(header string) string {
	if header == "" {
		return ""
	}
	parts := strings.Fields(header)
	if len(parts) != 2 {
		return ""
	}
	if strings.ToLower(parts[0]) != "bearer" {
		return ""
	}
	return parts[1]
}

func isPublicEndpoint(r *http.Request) bool {
	switch r.URL.Path {
	case "/healthz", "/metrics":
		return true
	case "/api/monitoring/atm/ingest":
		return r.Method == http.MethodPost
	default:
		return r.Method == http.MethodOptions || strings.HasPrefix(r.URL.Path, "/realtime/")
	}
}
