package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type Claim struct {
	ClaimID             string        `json:"claim_id"`
	TicketNumber        string        `json:"ticket_number"`
	Title               string        `json:"title"`
	Description         string        `json:"description"`
	Status              string        `json:"status"`
	Priority            string        `json:"priority"`
	ServiceID           string        `json:"service_id"`
	ServiceName         string        `json:"service_name"`
	CategoryID          *string       `json:"category_id,omitempty"`
	CategoryName        string        `json:"category_name,omitempty"`
	BranchID            string        `json:"branch_id"`
	BranchName          string        `json:"branch_name"`
	BranchCode          string        `json:"branch_code"`
	CreatedByID         string        `json:"created_by_id"`
	CreatedByName       string        `json:"created_by_name"`
	CreatedByBranchID   *string       `json:"created_by_branch_id"`
	CreatedByBranchName string        `json:"created_by_branch_name,omitempty"`
	AssignedToID        *string       `json:"assigned_to_id"`
	AssignedToName      string        `json:"assigned_to_name,omitempty"`
	OmniTicketID        *string       `json:"omni_ticket_id,omitempty"`
	Details             *ClaimDetails `json:"details,omitempty"`
	Verification        *Verification `json:"verification"`
	CreatedAt           time.Time     `json:"created_at"`
	UpdatedAt           time.Time     `json:"updated_at"`
	ResolvedAt          *time.Time    `json:"resolved_at,omitempty"`
}

type ClaimDetails struct {
	ATMID             string          `json:"atm_id"`
	ATMCode           string          `json:"atm_code"`
	ATMLocation       string          `json:"atm_location"`
	ClaimType         string          `json:"claim_type"`
	TransactionDate   time.Time       `json:"transaction_date"`
	TransactionAmount decimal.Decimal `json:"transaction_amount"`
	CardLast4         string          `json:"card_last_4"`
	CustomerName      string          `json:"customer_name"`
	CustomerAccount   string          `json:"customer_account"`
	CustomerPhone     string          `json:"customer_phone"`
	CustomerEmail     string          `json:"customer_email,omitempty"`
	TransactionRef    string          `json:"transaction_ref,omitempty"`
	ReportingChannel  string          `json:"reporting_channel"`
}

type Verification struct {
	VerificationID      string           `json:"verification_id"`
	ClaimID             string           `json:"claim_id"`
	JournalChecked      bool             `json:"journal_checked"`
	JournalFindings     *string          `json:"journal_findings"`
	EJTransactionFound  *bool            `json:"ej_transaction_found"`
	EJReferenceNumber   *string          `json:"ej_reference_number"`
	AmountMatches       *bool            `json:"amount_matches"`
	CashOpening         *decimal.Decimal `json:"cash_opening"`
	CashDispensed       *decimal.Decimal `json:"cash_dispensed"`
	CashRemaining       *decimal.Decimal `json:"cash_remaining"`
	CashVariance        *decimal.Decimal `json:"cash_variance"`
	CCTVReviewed        bool             `json:"cctv_reviewed"`
	CCTVFindings        *string          `json:"cctv_findings"`
	CCTVEvidenceURL     *string          `json:"cctv_evidence_url"`
	DebitSuccessful     *bool            `json:"debit_successful"`
	ReversalCompleted   *bool            `json:"reversal_completed"`
	Recommendation      *string          `json:"recommendation"`
	RecommendationNotes *string          `json:"recommendation_notes"`
	VerifiedByID        *string          `json:"verified_by_id"`
	VerifiedAt          *time.Time       `json:"verified_at"`
	CreatedAt           time.Time        `json:"created_at"`
	UpdatedAt           time.Time        `json:"updated_at"`
}

type ScopeCount struct {
	Total                int `json:"total"`
	PendingVerifications int `json:"pending_verifications"`
}

type ClaimBreakdown struct {
	All      ScopeCount `json:"all"`
	Internal ScopeCount `json:"internal"`
	External ScopeCount `json:"external"`
}

type ClaimStatistics struct {
	Total                int            `json:"total"`
	PendingVerifications int            `json:"pending_verifications"`
	FromOtherBranches    int            `json:"from_other_branches"`
	Breakdown            ClaimBreakdown `json:"breakdown"`
}

type Comment struct {
	CommentID  string    `json:"comment_id"`
	ClaimID    string    `json:"claim_id"`
	UserID     string    `json:"user_id"`
	Content    string    `json:"content"`
	IsInternal bool      `json:"is_internal"`
	CreatedAt  time.Time `json:"created_at"`
}

const (
	TicketStatusOpen          = "OPEN"
	TicketStatusInProgress    = "IN_PROGRESS"
	TicketStatusPendingVendor = "PENDING_VENDOR"
	TicketStatusResolved      = "RESOLVED"
	TicketStatusClosed        = "CLOSED"

	PriorityHigh   = "HIGH"
	PriorityMedium = "MEDIUM"

	RecommendationApprove      = "APPROVE"
	RecommendationReject       = "REJECT"
	RecommendationEscalate     = "ESCALATE"
	RecommendationNeedMoreInfo = "NEED_MORE_INFO"
)

type BranchRef struct {
	BranchID string `json:"branch_id"`
	Name     string `json:"name"`
	Code     string `json:"code"`
}

type ATMRef struct {
	Code     string `json:"code"`
	Location string `json:"location"`
}

type Routing struct {
	IsInterBranch bool      `json:"is_inter_branch"`
	FromBranch    BranchRef `json:"from_branch"`
	ToBranch      BranchRef `json:"to_branch"`
	ATM           ATMRef    `json:"atm"`
}
