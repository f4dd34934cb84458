package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"servicedesk/internal/store"

	"github.com/jackc/pgx/v5"
)

// insertClaimEvent appends to the claim's hash chain. The advisory lock keeps
// sequence numbers gapless when two writers race on the same claim.
func insertClaimEvent(ctx context.Context, tx pgx.Tx, claimID, eventType, actorID string, payload []byte) error {
	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, claimID); err != nil {
		return err
	}

	var lastSeq int
	var prevHash sql.NullString
	row := tx.QueryRow(ctx, `
		SELECT seq, hash
		FROM claim_events
		WHERE ticket_id = $1
		ORDER BY seq DESC
		LIMIT 1
		FOR UPDATE
	`, claimID)
	if err := row.Scan(&lastSeq, &prevHash); err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return err
	}
	nextSeq := lastSeq + 1
	prev := ""
	if prevHash.Valid {
		prev = prevHash.String
	}
	// Stored timestamps keep microseconds and the JSON column keeps payload
	// bytes verbatim, so the hash can be recomputed from what is read back.
	createdAt := time.Now().UTC().Truncate(time.Microsecond)
	hash := store.ComputeClaimEventHash(prev, claimID, eventType, payload, createdAt, nextSeq)

	_, err := tx.Exec(ctx, `
		INSERT INTO claim_events (ticket_id, seq, type, actor_id, payload, created_at, prev_hash, hash)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, claimID, nextSeq, eventType, actorID, payload, createdAt, prev, hash)
	return err
}

func (s *Store) ListClaimEvents(ctx context.Context, claimID string) ([]store.ClaimEvent, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT ticket_id, seq, type, actor_id, payload::TEXT, created_at, prev_hash, hash
		FROM claim_events
		WHERE ticket_id = $1
		ORDER BY seq ASC
	`, claimID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	events := []store.ClaimEvent{}
	for rows.Next() {
		var event store.ClaimEvent
		var payload string
		if err := rows.Scan(&event.ClaimID, &event.Seq, &event.Type, &event.ActorID, &payload, &event.CreatedAt, &event.PrevHash, &event.Hash); err != nil {
			return nil, err
		}
		event.Payload = []byte(payload)
		event.CreatedAt = event.CreatedAt.UTC()
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return events, nil
}
