package store

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"time"
)

const (
	EventClaimCreated             = "claim.created"
	EventClaimVerificationUpdated = "claim.verification_updated"
	EventClaimStatusChanged       = "claim.status_changed"
	EventClaimAttachmentAdded     = "claim.attachment_added"
)

// ClaimEvent is one link in a claim's append-only audit chain.
type ClaimEvent struct {
	ClaimID   string          `json:"claim_id"`
	Seq       int             `json:"seq"`
	Type      string          `json:"type"`
	ActorID   string          `json:"actor_id"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
	PrevHash  string          `json:"prev_hash"`
	Hash      string          `json:"hash"`
}

func ComputeClaimEventHash(prevHash, claimID, eventType string, payload json.RawMessage, createdAt time.Time, seq int) string {
	raw := fmt.Sprintf("%s|%s|%s|%s|%d|%s", prevHash, claimID, eventType, createdAt.UTC().Format(time.RFC3339Nano), seq, payload)
	sum := sha256.Sum256([]byte(raw))
	return fmt.Sprintf("%x", sum)
}

// VerifyClaimEventChain returns the sequence number of the first broken link, or 0.
func VerifyClaimEventChain(events []ClaimEvent) int {
	prev := ""
	for i, event := range events {
		if event.Seq != i+1 || event.PrevHash != prev {
			return event.Seq
		}
		if ComputeClaimEventHash(prev, event.ClaimID, event.Type, event.Payload, event.CreatedAt, event.Seq) != event.Hash {
			return event.Seq
		}
		prev = event.Hash
	}
	return 0
}
