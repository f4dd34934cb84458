package store

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"servicedesk/internal/models"

	"github.com/shopspring/decimal"
)

// Field is a tri-state patch value: unset, cleared (null) or set.
// Absent keys and empty strings leave it unset.
type Field[T any] struct {
	Set   bool
	Value *T
}

func SetField[T any](value T) Field[T] {
	return Field[T]{Set: true, Value: &value}
}

func ClearField[T any]() Field[T] {
	return Field[T]{Set: true}
}

func (f *Field[T]) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if bytes.Equal(trimmed, []byte(`""`)) {
		*f = Field[T]{}
		return nil
	}
	if bytes.Equal(trimmed, []byte("null")) {
		*f = Field[T]{Set: true}
		return nil
	}
	var value T
	if err := json.Unmarshal(trimmed, &value); err != nil {
		return err
	}
	*f = Field[T]{Set: true, Value: &value}
	return nil
}

// VerificationPatch carries the editable verification fields. Cash variance is
// not part of it; it is always derived.
type VerificationPatch struct {
	JournalChecked      Field[bool]            `json:"journal_checked"`
	JournalFindings     Field[string]          `json:"journal_findings"`
	EJTransactionFound  Field[bool]            `json:"ej_transaction_found"`
	EJReferenceNumber   Field[string]          `json:"ej_reference_number"`
	AmountMatches       Field[bool]            `json:"amount_matches"`
	CashOpening         Field[decimal.Decimal] `json:"cash_opening"`
	CashDispensed       Field[decimal.Decimal] `json:"cash_dispensed"`
	CashRemaining       Field[decimal.Decimal] `json:"cash_remaining"`
	CCTVReviewed        Field[bool]            `json:"cctv_reviewed"`
	CCTVFindings        Field[string]          `json:"cctv_findings"`
	CCTVEvidenceURL     Field[string]          `json:"cctv_evidence_url"`
	DebitSuccessful     Field[bool]            `json:"debit_successful"`
	ReversalCompleted   Field[bool]            `json:"reversal_completed"`
	Recommendation      Field[string]          `json:"recommendation"`
	RecommendationNotes Field[string]          `json:"recommendation_notes"`
}

const VerificationSteps = 7

type VerificationProgress struct {
	CompletedSteps int `json:"completed_steps"`
	TotalSteps     int `json:"total_steps"`
	Percent        int `json:"percent"`
}

// CashVariance is remaining - (opening - dispensed), or nil unless all three are known.
func CashVariance(opening, dispensed, remaining *decimal.Decimal) *decimal.Decimal {
	if opening == nil || dispensed == nil || remaining == nil {
		return nil
	}
	variance := remaining.Sub(opening.Sub(*dispensed))
	return &variance
}

func IsTerminalRecommendation(recommendation string) bool {
	switch recommendation {
	case models.RecommendationApprove, models.RecommendationReject, models.RecommendationEscalate:
		return true
	}
	return false
}

func ValidRecommendation(recommendation string) bool {
	return IsTerminalRecommendation(recommendation) || recommendation == models.RecommendationNeedMoreInfo
}

// TicketStatusForRecommendation maps a terminal recommendation to the claim status it produces.
func TicketStatusForRecommendation(recommendation string) (string, bool) {
	switch recommendation {
	case models.RecommendationApprove:
		return models.TicketStatusResolved, true
	case models.RecommendationReject:
		return models.TicketStatusClosed, true
	case models.RecommendationEscalate:
		return models.TicketStatusPendingVendor, true
	}
	return "", false
}

func ValidateVerificationPatch(patch VerificationPatch) error {
	if patch.Recommendation.Set && patch.Recommendation.Value != nil {
		value := strings.TrimSpace(*patch.Recommendation.Value)
		if !ValidRecommendation(value) {
			return ErrInvalidRecommendation
		}
	}
	return nil
}

func (p VerificationPatch) Empty() bool {
	return len(p.ChangedFields()) == 0
}

// ChangedFields lists the JSON names of fields the patch touches.
func (p VerificationPatch) ChangedFields() []string {
	var fields []string
	add := func(set bool, name string) {
		if set {
			fields = append(fields, name)
		}
	}
	add(p.JournalChecked.Set, "journal_checked")
	add(p.JournalFindings.Set, "journal_findings")
	add(p.EJTransactionFound.Set, "ej_transaction_found")
	add(p.EJReferenceNumber.Set, "ej_reference_number")
	add(p.AmountMatches.Set, "amount_matches")
	add(p.CashOpening.Set, "cash_opening")
	add(p.CashDispensed.Set, "cash_dispensed")
	add(p.CashRemaining.Set, "cash_remaining")
	add(p.CCTVReviewed.Set, "cctv_reviewed")
	add(p.CCTVFindings.Set, "cctv_findings")
	add(p.CCTVEvidenceURL.Set, "cctv_evidence_url")
	add(p.DebitSuccessful.Set, "debit_successful")
	add(p.ReversalCompleted.Set, "reversal_completed")
	add(p.Recommendation.Set, "recommendation")
	add(p.RecommendationNotes.Set, "recommendation_notes")
	return fields
}

// ApplyVerificationPatch merges patch into current. Unset fields keep their
// stored value, and cash variance is recomputed from the merged cash fields.
// Completing a terminal recommendation stamps the verifier.
func ApplyVerificationPatch(current models.Verification, patch VerificationPatch, actorID string, at time.Time) models.Verification {
	next := current
	applyBool(&next.JournalChecked, patch.JournalChecked)
	applyPtr(&next.JournalFindings, trimmed(patch.JournalFindings))
	applyPtr(&next.EJTransactionFound, patch.EJTransactionFound)
	applyPtr(&next.EJReferenceNumber, trimmed(patch.EJReferenceNumber))
	applyPtr(&next.AmountMatches, patch.AmountMatches)
	applyPtr(&next.CashOpening, patch.CashOpening)
	applyPtr(&next.CashDispensed, patch.CashDispensed)
	applyPtr(&next.CashRemaining, patch.CashRemaining)
	applyBool(&next.CCTVReviewed, patch.CCTVReviewed)
	applyPtr(&next.CCTVFindings, trimmed(patch.CCTVFindings))
	applyPtr(&next.CCTVEvidenceURL, trimmed(patch.CCTVEvidenceURL))
	applyPtr(&next.DebitSuccessful, patch.DebitSuccessful)
	applyPtr(&next.ReversalCompleted, patch.ReversalCompleted)
	applyPtr(&next.Recommendation, trimmed(patch.Recommendation))
	applyPtr(&next.RecommendationNotes, trimmed(patch.RecommendationNotes))

	next.CashVariance = CashVariance(next.CashOpening, next.CashDispensed, next.CashRemaining)

	if next.Recommendation != nil && IsTerminalRecommendation(*next.Recommendation) && next.VerifiedAt == nil {
		verifiedAt := at.UTC()
		next.VerifiedAt = &verifiedAt
		if actorID != "" {
			verifier := actorID
			next.VerifiedByID = &verifier
		}
	}
	next.UpdatedAt = at.UTC()
	return next
}

// VerificationLocked reports whether a verification no longer accepts edits.
func VerificationLocked(v *models.Verification) bool {
	return v != nil && v.VerifiedAt != nil
}

func ProgressOf(v *models.Verification) VerificationProgress {
	progress := VerificationProgress{TotalSteps: VerificationSteps}
	if v == nil {
		return progress
	}
	steps := []bool{
		v.JournalChecked,
		v.EJTransactionFound != nil,
		v.CashOpening != nil,
		v.CCTVReviewed,
		v.DebitSuccessful != nil,
		v.Recommendation != nil,
		v.VerifiedAt != nil,
	}
	for _, done := range steps {
		if done {
			progress.CompletedSteps++
		}
	}
	progress.Percent = progress.CompletedSteps * 100 / progress.TotalSteps
	return progress
}

// DescribeVerificationChange summarises an update for the claim's internal comment.
func DescribeVerificationChange(before, after models.Verification, patch VerificationPatch) string {
	var lines []string
	lines = append(lines, "Verifikasi klaim diperbarui: "+strings.Join(patch.ChangedFields(), ", "))
	if after.CashVariance != nil && !equalDecimalPtr(before.CashVariance, after.CashVariance) {
		lines = append(lines, fmt.Sprintf("Selisih kas: Rp %s", FormatRupiah(*after.CashVariance)))
	}
	if after.Recommendation != nil && (before.Recommendation == nil || *before.Recommendation != *after.Recommendation) {
		line := "Rekomendasi: " + *after.Recommendation
		if after.RecommendationNotes != nil && *after.RecommendationNotes != "" {
			line += " - " + *after.RecommendationNotes
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}

func applyBool(target *bool, field Field[bool]) {
	if !field.Set {
		return
	}
	if field.Value == nil {
		*target = false
		return
	}
	*target = *field.Value
}

func applyPtr[T any](target **T, field Field[T]) {
	if !field.Set {
		return
	}
	if field.Value == nil {
		*target = nil
		return
	}
	value := *field.Value
	*target = &value
}

func trimmed(field Field[string]) Field[string] {
	if !field.Set || field.Value == nil {
		return field
	}
	value := strings.TrimSpace(*field.Value)
	if value == "" {
		return Field[string]{}
	}
	return Field[string]{Set: true, Value: &value}
}

func equalDecimalPtr(a, b *decimal.Decimal) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}
