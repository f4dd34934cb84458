package httpapi

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"servicedesk/internal/models"
	"servicedesk/internal/omni"
	"servicedesk/internal/realtime"
	"servicedesk/internal/store"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"
)

var transactionDateLayouts = []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02T15:04", "2006-01-02"}

type createClaimRequest struct {
	ATMCode           string          `json:"atm_code"`
	TransactionDate   string          `json:"transaction_date"`
	TransactionAmount decimal.Decimal `json:"transaction_amount"`
	CardLast4         string          `json:"card_last_4"`
	CustomerName      string          `json:"customer_name"`
	CustomerAccount   string          `json:"customer_account"`
	CustomerPhone     string          `json:"customer_phone"`
	CustomerEmail     string          `json:"customer_email"`
	ClaimType         string          `json:"claim_type"`
	ClaimDescription  string          `json:"claim_description"`
	TransactionRef    string          `json:"transaction_ref"`
	ReportingChannel  string          `json:"reporting_channel"`
}

type createClaimResponse struct {
	Ticket  models.Claim   `json:"ticket"`
	Routing models.Routing `json:"routing"`
}

type listClaimsResponse struct {
	Claims     []models.Claim         `json:"claims"`
	Statistics models.ClaimStatistics `json:"statistics"`
	Pagination models.Pagination      `json:"pagination"`
}

type claimEventsResponse struct {
	Events     []store.ClaimEvent `json:"events"`
	ChainValid bool               `json:"chain_valid"`
	BrokenAt   *int               `json:"broken_at"`
}

func parseTransactionDate(value string) (time.Time, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, true
	}
	for _, layout := range transactionDateLayouts {
		if parsed, err := time.Parse(layout, value); err == nil {
			return parsed.UTC(), true
		}
	}
	return time.Time{}, false
}

func (h *Handler) handleLookupATM(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireSession(w, r); !ok {
		return
	}
	code := strings.TrimSpace(r.URL.Query().Get("code"))
	if code == "" {
		writeError(w, requestIDFromRequest(r), http.StatusBadRequest, "code is required")
		return
	}
	atm, err := h.store.LookupATM(r.Context(), code)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, atm)
}

func (h *Handler) handleCreateClaim(w http.ResponseWriter, r *http.Request) {
	session, ok := requireSession(w, r)
	if !ok {
		return
	}
	var req createClaimRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	transactionDate, ok := parseTransactionDate(req.TransactionDate)
	if !ok {
		writeError(w, requestIDFromRequest(r), http.StatusBadRequest, "transaction_date must be an ISO date")
		return
	}

	input := store.CreateClaimInput{
		UserID:            session.UserID,
		UserName:          session.Name,
		UserBranchID:      session.BranchID,
		ATMCode:           strings.ToUpper(strings.TrimSpace(req.ATMCode)),
		TransactionDate:   transactionDate,
		TransactionAmount: req.TransactionAmount,
		CardLast4:         strings.TrimSpace(req.CardLast4),
		CustomerName:      strings.TrimSpace(req.CustomerName),
		CustomerAccount:   strings.TrimSpace(req.CustomerAccount),
		CustomerPhone:     strings.TrimSpace(req.CustomerPhone),
		CustomerEmail:     strings.TrimSpace(req.CustomerEmail),
		ClaimType:         strings.ToUpper(strings.TrimSpace(req.ClaimType)),
		ClaimDescription:  strings.TrimSpace(req.ClaimDescription),
		TransactionRef:    strings.TrimSpace(req.TransactionRef),
		ReportingChannel:  strings.ToUpper(strings.TrimSpace(req.ReportingChannel)),
		CreatedAt:         h.now().UTC(),
	}
	if err := store.ValidateCreateClaim(input); err != nil {
		h.respondError(w, r, err)
		return
	}

	result, err := h.store.CreateClaim(r.Context(), input)
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	if h.metrics != nil {
		h.metrics.ClaimCreated(result.Routing.IsInterBranch)
	}
	if h.publisher != nil {
		h.publisher.Publish(realtime.EventClaimCreated, realtime.Target{
			Channel:   realtime.ChannelClaims,
			BranchIDs: []string{result.Routing.ToBranch.BranchID, result.Routing.FromBranch.BranchID},
		}, map[string]interface{}{
			"claim_id":      result.Claim.ClaimID,
			"ticket_number": result.Claim.TicketNumber,
			"routing":       result.Routing,
		})
	}
	if h.omni != nil && h.omni.Enabled() {
		go h.mirrorClaim(result.Claim)
	}

	writeJSON(w, http.StatusCreated, createClaimResponse{Ticket: result.Claim, Routing: result.Routing})
}

// mirrorClaim runs after the response; failures are only logged and counted.
func (h *Handler) mirrorClaim(claim models.Claim) {
	ctx, cancel := context.WithTimeout(context.Background(), h.mirrorTimeout)
	defer cancel()
	if _, err := h.omni.Mirror(ctx, claim); err != nil {
		log.Printf("omni mirror failed claim_id=%s ticket=%s: %v", claim.ClaimID, claim.TicketNumber, err)
		result := "error"
		if errors.Is(err, omni.ErrUnconfirmed) {
			result = "unconfirmed"
			markCtx, markCancel := context.WithTimeout(context.Background(), h.mirrorTimeout)
			if markErr := h.store.MarkOmniUnconfirmed(markCtx, claim.ClaimID); markErr != nil {
				log.Printf("omni mark unconfirmed failed claim_id=%s: %v", claim.ClaimID, markErr)
			}
			markCancel()
		}
		if h.metrics != nil {
			h.metrics.OmniMirror(result)
		}
		return
	}
	if h.metrics != nil {
		h.metrics.OmniMirror("success")
	}
}

func (h *Handler) handleListClaims(w http.ResponseWriter, r *http.Request) {
	session, ok := requireSession(w, r)
	if !ok {
		return
	}
	query := r.URL.Query()
	_, claimType := h.rules.Rule(query.Get("claimType"))
	filter := store.ClaimFilter{
		Scope:     store.ScopeFor(session, h.rules),
		Source:    store.NormalizeClaimSource(query.Get("source")),
		ClaimType: claimType,
		Search:    strings.TrimSpace(query.Get("search")),
		Status:    strings.ToUpper(strings.TrimSpace(query.Get("status"))),
	}
	filter.Page, filter.Limit = store.NormalizePage(queryInt(r, "page"), queryInt(r, "limit"), store.DefaultClaimLimit, store.MaxClaimLimit)

	claims, total, err := h.store.ListClaims(r.Context(), filter)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	stats, err := h.store.ClaimStatistics(r.Context(), filter)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, listClaimsResponse{
		Claims:     claims,
		Statistics: stats,
		Pagination: store.NewPagination(filter.Page, filter.Limit, total),
	})
}

// loadClaimAccess resolves the claim in the path and enforces ticket visibility.
func (h *Handler) loadClaimAccess(w http.ResponseWriter, r *http.Request, session store.Session) (store.TicketAccess, bool) {
	claimID := strings.TrimSpace(mux.Vars(r)["id"])
	if !isValidUUID(claimID) {
		writeError(w, requestIDFromRequest(r), http.StatusNotFound, "claim not found")
		return store.TicketAccess{}, false
	}
	access, err := h.store.GetClaimAccess(r.Context(), claimID)
	if err != nil {
		h.respondError(w, r, err)
		return store.TicketAccess{}, false
	}
	if !store.CanAccessTicket(session, access, h.rules) {
		writeError(w, requestIDFromRequest(r), http.StatusForbidden, "access denied")
		return store.TicketAccess{}, false
	}
	return access, true
}

func (h *Handler) handleClaimEvents(w http.ResponseWriter, r *http.Request) {
	session, ok := requireSession(w, r)
	if !ok {
		return
	}
	access, ok := h.loadClaimAccess(w, r, session)
	if !ok {
		return
	}
	events, err := h.store.ListClaimEvents(r.Context(), access.ClaimID)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	if events == nil {
		events = []store.ClaimEvent{}
	}
	response := claimEventsResponse{Events: events, ChainValid: true}
	if broken := store.VerifyClaimEventChain(events); broken != 0 {
		response.ChainValid = false
		response.BrokenAt = &broken
	}
	writeJSON(w, http.StatusOK, response)
}
