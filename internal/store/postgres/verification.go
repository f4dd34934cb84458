package postgres

import (
	"context"
	"fmt"
	"time"

	"servicedesk/internal/models"
	"servicedesk/internal/store"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

func (s *Store) GetVerification(ctx context.Context, claimID string) (*models.Verification, error) {
	claim, err := getClaim(ctx, s.pool, claimID)
	if err != nil {
		return nil, err
	}
	return claim.Verification, nil
}

// UpdateVerification merges a partial verification update. A terminal
// recommendation locks the verification and moves the claim's status.
func (s *Store) UpdateVerification(ctx context.Context, input store.UpdateVerificationInput) (verification models.Verification, claim models.Claim, err error) {
	if err = store.ValidateVerificationPatch(input.Patch); err != nil {
		return models.Verification{}, models.Claim{}, err
	}
	at := input.OccurredAt
	if at.IsZero() {
		at = time.Now().UTC()
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.Verification{}, models.Claim{}, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	access, err := getClaimAccess(ctx, tx, input.ClaimID, true)
	if err != nil {
		return models.Verification{}, models.Claim{}, err
	}
	if !store.CanVerify(input.Actor, access) {
		err = store.ErrAccessDenied
		return models.Verification{}, models.Claim{}, err
	}

	current, err := getClaim(ctx, tx, input.ClaimID)
	if err != nil {
		return models.Verification{}, models.Claim{}, err
	}
	if store.VerificationLocked(current.Verification) {
		err = store.ErrVerificationLocked
		return models.Verification{}, models.Claim{}, err
	}

	before := models.Verification{ClaimID: input.ClaimID, CreatedAt: at}
	if current.Verification != nil {
		before = *current.Verification
	}
	if before.VerificationID == "" {
		before.VerificationID = uuid.NewString()
	}
	next := store.ApplyVerificationPatch(before, input.Patch, input.Actor.UserID, at)

	if err = upsertVerification(ctx, tx, next); err != nil {
		return models.Verification{}, models.Claim{}, err
	}

	if note := store.DescribeVerificationChange(before, next, input.Patch); note != "" {
		if err = insertComment(ctx, tx, input.ClaimID, input.Actor.UserID, note, true, at); err != nil {
			return models.Verification{}, models.Claim{}, err
		}
	}

	payload, err := jsonBytes(map[string]interface{}{
		"fields":         input.Patch.ChangedFields(),
		"recommendation": next.Recommendation,
		"cash_variance":  next.CashVariance,
		"verified":       next.VerifiedAt != nil,
	})
	if err != nil {
		return models.Verification{}, models.Claim{}, err
	}
	if err = insertClaimEvent(ctx, tx, input.ClaimID, store.EventClaimVerificationUpdated, input.Actor.UserID, payload); err != nil {
		return models.Verification{}, models.Claim{}, err
	}

	newStatus := ""
	if next.Recommendation != nil && next.VerifiedAt != nil {
		if status, ok := store.TicketStatusForRecommendation(*next.Recommendation); ok {
			newStatus = status
		}
	} else if current.Status == models.TicketStatusOpen {
		newStatus = models.TicketStatusInProgress
	}
	if newStatus != "" && newStatus != current.Status {
		if err = updateClaimStatus(ctx, tx, input.ClaimID, current.Status, newStatus, input.Actor.UserID, next.RecommendationNotes, at); err != nil {
			return models.Verification{}, models.Claim{}, err
		}
	}

	claim, err = getClaim(ctx, tx, input.ClaimID)
	if err != nil {
		return models.Verification{}, models.Claim{}, err
	}
	if err = tx.Commit(ctx); err != nil {
		return models.Verification{}, models.Claim{}, err
	}
	return next, claim, nil
}

func upsertVerification(ctx context.Context, tx pgx.Tx, v models.Verification) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO claim_verifications (
			verification_id, ticket_id, journal_checked, journal_findings, ej_transaction_found,
			ej_reference_number, amount_matches, cash_opening, cash_dispensed, cash_remaining,
			cash_variance, cctv_reviewed, cctv_findings, cctv_evidence_url, debit_successful,
			reversal_completed, recommendation, recommendation_notes, verified_by_id, verified_at,
			created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22)
		ON CONFLICT (ticket_id) DO UPDATE SET
			journal_checked = EXCLUDED.journal_checked,
			journal_findings = EXCLUDED.journal_findings,
			ej_transaction_found = EXCLUDED.ej_transaction_found,
			ej_reference_number = EXCLUDED.ej_reference_number,
			amount_matches = EXCLUDED.amount_matches,
			cash_opening = EXCLUDED.cash_opening,
			cash_dispensed = EXCLUDED.cash_dispensed,
			cash_remaining = EXCLUDED.cash_remaining,
			cash_variance = EXCLUDED.cash_variance,
			cctv_reviewed = EXCLUDED.cctv_reviewed,
			cctv_findings = EXCLUDED.cctv_findings,
			cctv_evidence_url = EXCLUDED.cctv_evidence_url,
			debit_successful = EXCLUDED.debit_successful,
			reversal_completed = EXCLUDED.reversal_completed,
			recommendation = EXCLUDED.recommendation,
			recommendation_notes = EXCLUDED.recommendation_notes,
			verified_by_id = EXCLUDED.verified_by_id,
			verified_at = EXCLUDED.verified_at,
			updated_at = EXCLUDED.updated_at
	`, v.VerificationID, v.ClaimID, v.JournalChecked, v.JournalFindings, v.EJTransactionFound,
		v.EJReferenceNumber, v.AmountMatches, v.CashOpening, v.CashDispensed, v.CashRemaining,
		v.CashVariance, v.CCTVReviewed, v.CCTVFindings, v.CCTVEvidenceURL, v.DebitSuccessful,
		v.ReversalCompleted, v.Recommendation, v.RecommendationNotes, v.VerifiedByID, v.VerifiedAt,
		v.CreatedAt, v.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert verification: %w", err)
	}
	return nil
}

func updateClaimStatus(ctx context.Context, tx pgx.Tx, claimID, fromStatus, toStatus, actorID string, notes *string, at time.Time) error {
	var resolvedAt, closedAt interface{}
	switch toStatus {
	case models.TicketStatusResolved:
		resolvedAt = at
	case models.TicketStatusClosed:
		closedAt = at
	}
	tag, err := tx.Exec(ctx, `
		UPDATE tickets
		SET status = $2,
		    updated_at = $3,
		    resolved_at = COALESCE($4, resolved_at),
		    closed_at = COALESCE($5, closed_at)
		WHERE ticket_id = $1
	`, claimID, toStatus, at, resolvedAt, closedAt)
	if err != nil {
		return fmt.Errorf("update claim status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrClaimNotFound
	}
	payload, err := jsonBytes(map[string]interface{}{
		"from":  fromStatus,
		"to":    toStatus,
		"notes": notes,
	})
	if err != nil {
		return err
	}
	return insertClaimEvent(ctx, tx, claimID, store.EventClaimStatusChanged, actorID, payload)
}
