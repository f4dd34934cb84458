package realtime

import (
	"context"
	"net/http"
	"strings"
	"time"

	"servicedesk/internal/store"

	"github.com/google/uuid"
	"github.com/igm/sockjs-go/sockjs"
)

const sessionLookupTimeout = 5 * time.Second

// NewHandler serves the SockJS endpoint under prefix. Clients authenticate with
// the same session token as the REST API and then send subscribe messages.
func NewHandler(prefix string, sessions store.SessionStore, hub *Hub, rules store.ClaimRules) http.Handler {
	return sockjs.NewHandler(prefix, sockjs.DefaultOptions, func(session sockjs.Session) {
		sessionID := sessionIDFromRequest(session.Request())
		if sessionID == "" {
			_ = session.Close(4001, "missing session")
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), sessionLookupTimeout)
		authSession, err := sessions.GetSession(ctx, sessionID)
		cancel()
		if err != nil {
			_ = session.Close(4002, "invalid session")
			return
		}

		client := &Client{ID: uuid.NewString(), Send: make(chan []byte, 16)}
		hub.Register(client)
		defer hub.Unregister(client)

		go func() {
			for msg := range client.Send {
				_ = session.Send(string(msg))
			}
		}()

		for {
			msg, err := session.Recv()
			if err != nil {
				return
			}
			parsed, ok := ParseSubscribe([]byte(msg))
			if !ok {
				continue
			}
			if parsed.Action == "unsubscribe" {
				hub.UpdateSubscription(client, Subscription{})
				continue
			}
			sub, allowed := Authorize(authSession, parsed, rules)
			if !allowed {
				_ = session.Close(4003, "access denied")
				return
			}
			hub.UpdateSubscription(client, sub)
		}
	})
}

// Authorize turns a subscribe request into the subscription the session may hold.
// Branch-scoped users only ever receive their own branch's claim events.
func Authorize(session store.Session, msg SubscribeMessage, rules store.ClaimRules) (Subscription, bool) {
	switch msg.Channel {
	case ChannelMonitor:
		return Subscription{Channel: ChannelMonitor}, true
	case ChannelClaims:
		switch session.Role {
		case store.RoleAdmin, store.RoleSuperAdmin, store.RoleManagerIT:
			return Subscription{Channel: ChannelClaims, BranchID: msg.BranchID}, true
		}
		if store.IsSystemWideClaimViewer(session, rules) {
			return Subscription{Channel: ChannelClaims, BranchID: msg.BranchID}, true
		}
		if session.BranchID == "" {
			return Subscription{}, false
		}
		if msg.BranchID != "" && msg.BranchID != session.BranchID {
			return Subscription{}, false
		}
		return Subscription{Channel: ChannelClaims, BranchID: session.BranchID}, true
	}
	return Subscription{}, false
}

func sessionIDFromRequest(r *http.Request) string {
	if r == nil {
		return ""
	}
	if token := bearerToken(r.Header.Get("Authorization")); token != "" {
		return token
	}
	if sessionID := strings.TrimSpace(r.Header.Get("X-Session-ID")); sessionID != "" {
		return sessionID
	}
	return strings.TrimSpace(r.URL.Query().Get("session_id"))
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
