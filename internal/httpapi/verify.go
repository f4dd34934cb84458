package httpapi

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strings"

	"servicedesk/internal/models"
	"servicedesk/internal/realtime"
	"servicedesk/internal/store"
)

// updateVerificationRequest accepts cash_variance only to ignore it; the
// variance is always derived from the cash fields.
type updateVerificationRequest struct {
	store.VerificationPatch
	CashVariance json.RawMessage `json:"cash_variance"`
}

type verificationResponse struct {
	Verification   *models.Verification `json:"verification"`
	ClaimStatus    string               `json:"claim_status,omitempty"`
	Progress       int                  `json:"progress"`
	CompletedSteps int                  `json:"completed_steps"`
	TotalSteps     int                  `json:"total_steps"`
}

func newVerificationResponse(v *models.Verification) verificationResponse {
	progress := store.ProgressOf(v)
	return verificationResponse{
		Verification:   v,
		Progress:       progress.Percent,
		CompletedSteps: progress.CompletedSteps,
		TotalSteps:     progress.TotalSteps,
	}
}

func (h *Handler) handleGetVerification(w http.ResponseWriter, r *http.Request) {
	session, ok := requireSession(w, r)
	if !ok {
		return
	}
	access, ok := h.loadClaimAccess(w, r, session)
	if !ok {
		return
	}
	verification, err := h.store.GetVerification(r.Context(), access.ClaimID)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newVerificationResponse(verification))
}

func (h *Handler) handleUpdateVerification(w http.ResponseWriter, r *http.Request) {
	session, ok := requireSession(w, r)
	if !ok {
		return
	}
	access, ok := h.loadClaimAccess(w, r, session)
	if !ok {
		return
	}
	if !store.CanVerify(session, access) {
		writeError(w, requestIDFromRequest(r), http.StatusForbidden, "access denied")
		return
	}
	var req updateVerificationRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	patch := req.VerificationPatch
	if err := store.ValidateVerificationPatch(patch); err != nil {
		h.respondError(w, r, err)
		return
	}
	if patch.Empty() {
		writeError(w, requestIDFromRequest(r), http.StatusBadRequest, "no verification fields supplied")
		return
	}

	verification, claim, err := h.store.UpdateVerification(r.Context(), store.UpdateVerificationInput{
		ClaimID:    access.ClaimID,
		Actor:      session,
		Patch:      patch,
		OccurredAt: h.now().UTC(),
	})
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	if h.metrics != nil {
		h.metrics.VerificationUpdated()
	}
	if h.publisher != nil {
		h.publisher.Publish(realtime.EventVerificationUpdated, realtime.Target{
			Channel:   realtime.ChannelClaims,
			BranchIDs: []string{access.BranchID, access.CreatedByBranchID},
		}, map[string]interface{}{
			"claim_id":      claim.ClaimID,
			"ticket_number": claim.TicketNumber,
			"status":        claim.Status,
			"fields":        patch.ChangedFields(),
		})
	}
	if decidedNow(patch, verification) && claim.OmniTicketID != nil && h.omni != nil && h.omni.Enabled() {
		go h.pushOmniStatus(*claim.OmniTicketID, claim.TicketNumber, claim.Status)
	}

	response := newVerificationResponse(&verification)
	response.ClaimStatus = claim.Status
	writeJSON(w, http.StatusOK, response)
}

// decidedNow reports whether this update recorded the terminal recommendation.
func decidedNow(patch store.VerificationPatch, v models.Verification) bool {
	if !patch.Recommendation.Set || patch.Recommendation.Value == nil {
		return false
	}
	return store.IsTerminalRecommendation(strings.TrimSpace(*patch.Recommendation.Value)) && v.VerifiedAt != nil
}

func (h *Handler) pushOmniStatus(omniTicketID, ticketNumber, status string) {
	ctx, cancel := context.WithTimeout(context.Background(), h.mirrorTimeout)
	defer cancel()
	if err := h.omni.UpdateStatus(ctx, omniTicketID, ticketNumber, status); err != nil {
		log.Printf("omni status update failed omni_ticket_id=%s ticket=%s status=%s: %v", omniTicketID, ticketNumber, status, err)
		if h.metrics != nil {
			h.metrics.OmniMirror("status_error")
		}
		return
	}
	if h.metrics != nil {
		h.metrics.OmniMirror("status_success")
	}
}
