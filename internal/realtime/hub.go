package realtime

import (
	"encoding/json"
	"log"
	"strings"
	"sync"
	"time"
)

const (
	ChannelMonitor = "atm.monitor"
	ChannelClaims  = "claims"

	EventMonitorUpdated      = "atm.monitor.updated"
	EventClaimCreated        = "claim.created"
	EventVerificationUpdated = "claim.verification_updated"
)

// Subscription is what a client listens to. An empty BranchID means every branch.
type Subscription struct {
	Channel  string
	BranchID string
}

// Target addresses a broadcast. Without branch ids it reaches every subscriber
// of the channel.
type Target struct {
	Channel   string
	BranchIDs []string
}

type Client struct {
	ID           string
	Send         chan []byte
	Subscription Subscription
}

type Envelope struct {
	Type      string          `json:"type"`
	Channel   string          `json:"channel"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
}

type Hub struct {
	mu      sync.RWMutex
	clients map[string]*Client
	onDrop  func()
}

type SubscribeMessage struct {
	Action   string `json:"action"`
	Channel  string `json:"channel"`
	BranchID string `json:"branch_id"`
}

func New() *Hub {
	return &Hub{clients: make(map[string]*Client)}
}

// OnDrop registers a callback for messages dropped on full client buffers.
func (h *Hub) OnDrop(fn func()) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onDrop = fn
}

func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[client.ID] = client
}

func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[client.ID]; !ok {
		return
	}
	delete(h.clients, client.ID)
	close(client.Send)
}

func (h *Hub) UpdateSubscription(client *Client, sub Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	client.Subscription = sub
}

func (h *Hub) Broadcast(payload []byte, target Target) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	delivered := 0
	for _, client := range h.clients {
		if !match(client.Subscription, target) {
			continue
		}
		select {
		case client.Send <- payload:
			delivered++
		default:
			log.Printf("drop message for client %s channel=%s", client.ID, target.Channel)
			if h.onDrop != nil {
				h.onDrop()
			}
		}
	}
	return delivered
}

// Publish wraps payload in an envelope and broadcasts it.
func (h *Hub) Publish(eventType string, target Target, payload interface{}) {
	raw, err := json.Marshal(payload)
	if err != nil {
		log.Printf("realtime marshal error type=%s: %v", eventType, err)
		return
	}
	env, err := json.Marshal(Envelope{
		Type:      eventType,
		Channel:   target.Channel,
		Payload:   raw,
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		log.Printf("realtime marshal error type=%s: %v", eventType, err)
		return
	}
	h.Broadcast(env, target)
}

func match(sub Subscription, target Target) bool {
	if sub.Channel == "" || sub.Channel != target.Channel {
		return false
	}
	if sub.BranchID == "" || len(target.BranchIDs) == 0 {
		return true
	}
	for _, branchID := range target.BranchIDs {
		if branchID == sub.BranchID {
			return true
		}
	}
	return false
}

func ParseSubscribe(data []byte) (SubscribeMessage, bool) {
	var msg SubscribeMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return SubscribeMessage{}, false
	}
	msg.Channel = strings.TrimSpace(msg.Channel)
	msg.BranchID = strings.TrimSpace(msg.BranchID)
	switch msg.Action {
	case "unsubscribe":
		return msg, true
	case "subscribe":
		if msg.Channel != ChannelMonitor && msg.Channel != ChannelClaims {
			return SubscribeMessage{}, false
		}
		return msg, true
	}
	return SubscribeMessage{}, false
}
