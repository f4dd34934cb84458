package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"servicedesk/internal/models"
	"servicedesk/internal/store"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

const ticketNumberLockKey = "ticket_number"

func (s *Store) LookupATM(ctx context.Context, code string) (models.ATM, error) {
	return lookupATM(ctx, s.pool, code)
}

type queryRower interface {
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

func lookupATM(ctx context.Context, q queryRower, code string) (models.ATM, error) {
	var atm models.ATM
	row := q.QueryRow(ctx, `
		SELECT a.atm_id, a.code, a.name, a.location, a.is_active, b.branch_id, b.name, b.code
		FROM atms a
		JOIN branches b ON b.branch_id = a.branch_id
		WHERE UPPER(a.code) = UPPER($1)
	`, strings.TrimSpace(code))
	if err := row.Scan(&atm.ATMID, &atm.Code, &atm.Name, &atm.Location, &atm.Active, &atm.BranchID, &atm.BranchName, &atm.BranchCode); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.ATM{}, store.ErrATMNotFound
		}
		return models.ATM{}, err
	}
	return atm, nil
}

func lookupBranch(ctx context.Context, q queryRower, branchID string) (models.BranchRef, error) {
	var branch models.BranchRef
	row := q.QueryRow(ctx, `SELECT branch_id, name, code FROM branches WHERE branch_id = $1`, branchID)
	if err := row.Scan(&branch.BranchID, &branch.Name, &branch.Code); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.BranchRef{}, store.ErrBranchRequired
		}
		return models.BranchRef{}, err
	}
	return branch, nil
}

type claimService struct {
	ID         string
	Name       string
	CategoryID sql.NullString
}

func (s *Store) findClaimService(ctx context.Context, tx pgx.Tx) (claimService, error) {
	var service claimService
	row := tx.QueryRow(ctx, `
		SELECT service_id, name, category_id
		FROM services
		WHERE is_active = TRUE AND name ILIKE ANY($1)
		ORDER BY created_at ASC, name ASC
		LIMIT 1
	`, s.rules.ServicePatterns)
	if err := row.Scan(&service.ID, &service.Name, &service.CategoryID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return claimService{}, store.ErrServiceNotFound
		}
		return claimService{}, err
	}
	return service, nil
}

// CreateClaim files an ATM claim against the ATM's owning branch.
func (s *Store) CreateClaim(ctx context.Context, input store.CreateClaimInput) (result store.CreateClaimResult, err error) {
	if err = store.ValidateCreateClaim(input); err != nil {
		return store.CreateClaimResult{}, err
	}
	createdAt := input.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	if input.ReportingChannel == "" {
		input.ReportingChannel = "BRANCH"
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return store.CreateClaimResult{}, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	atm, err := lookupATM(ctx, tx, input.ATMCode)
	if err != nil {
		return store.CreateClaimResult{}, err
	}
	filer, err := lookupBranch(ctx, tx, input.UserBranchID)
	if err != nil {
		return store.CreateClaimResult{}, err
	}
	service, err := s.findClaimService(ctx, tx)
	if err != nil {
		return store.CreateClaimResult{}, err
	}

	ticketNumber, err := nextTicketNumber(ctx, tx)
	if err != nil {
		return store.CreateClaimResult{}, err
	}

	owner := models.BranchRef{BranchID: atm.BranchID, Name: atm.BranchName, Code: atm.BranchCode}
	routing := models.Routing{
		IsInterBranch: filer.BranchID != owner.BranchID,
		FromBranch:    filer,
		ToBranch:      owner,
		ATM:           models.ATMRef{Code: atm.Code, Location: atm.Location},
	}

	claim := models.Claim{
		ClaimID:             uuid.NewString(),
		TicketNumber:        ticketNumber,
		Title:               store.ClaimTitle(input.ClaimType, atm.Code),
		Description:         store.ClaimDescription(input, atm, filer.Name),
		Status:              models.TicketStatusOpen,
		Priority:            store.ClaimPriority(input.TransactionAmount, s.highPriorityThreshold),
		ServiceID:           service.ID,
		ServiceName:         service.Name,
		CategoryID:          nullStringPtr(service.CategoryID),
		BranchID:            owner.BranchID,
		BranchName:          owner.Name,
		BranchCode:          owner.Code,
		CreatedByID:         input.UserID,
		CreatedByName:       input.UserName,
		CreatedByBranchID:   &filer.BranchID,
		CreatedByBranchName: filer.Name,
		CreatedAt:           createdAt,
		UpdatedAt:           createdAt,
		Details: &models.ClaimDetails{
			ATMID:             atm.ATMID,
			ATMCode:           atm.Code,
			ATMLocation:       atm.Location,
			ClaimType:         input.ClaimType,
			TransactionDate:   input.TransactionDate.UTC(),
			TransactionAmount: input.TransactionAmount,
			CardLast4:         input.CardLast4,
			CustomerName:      input.CustomerName,
			CustomerAccount:   input.CustomerAccount,
			CustomerPhone:     input.CustomerPhone,
			CustomerEmail:     input.CustomerEmail,
			TransactionRef:    input.TransactionRef,
			ReportingChannel:  input.ReportingChannel,
		},
	}

	if _, err = tx.Exec(ctx, `
		INSERT INTO tickets (
			ticket_id, ticket_number, title, description, status, priority, service_id, category_id,
			branch_id, created_by_id, created_by_branch_id, created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$12)
	`, claim.ClaimID, claim.TicketNumber, claim.Title, claim.Description, claim.Status, claim.Priority,
		service.ID, service.CategoryID, owner.BranchID, input.UserID, filer.BranchID, createdAt); err != nil {
		return store.CreateClaimResult{}, fmt.Errorf("insert ticket: %w", err)
	}

	details := claim.Details
	if _, err = tx.Exec(ctx, `
		INSERT INTO claim_details (
			ticket_id, atm_id, claim_type, transaction_date, transaction_amount, card_last_4,
			customer_name, customer_account, customer_phone, customer_email, transaction_ref, reporting_channel
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
	`, claim.ClaimID, atm.ATMID, details.ClaimType, details.TransactionDate, details.TransactionAmount, details.CardLast4,
		details.CustomerName, details.CustomerAccount, details.CustomerPhone, nullIfEmpty(details.CustomerEmail),
		nullIfEmpty(details.TransactionRef), details.ReportingChannel); err != nil {
		return store.CreateClaimResult{}, fmt.Errorf("insert claim details: %w", err)
	}

	if err = insertFieldValues(ctx, tx, claim.ClaimID, service.ID, store.ClaimFieldValues(input, atm, filer.Name)); err != nil {
		return store.CreateClaimResult{}, err
	}

	verification := models.Verification{
		VerificationID: uuid.NewString(),
		ClaimID:        claim.ClaimID,
		CreatedAt:      createdAt,
		UpdatedAt:      createdAt,
	}
	if _, err = tx.Exec(ctx, `
		INSERT INTO claim_verifications (verification_id, ticket_id, created_at, updated_at)
		VALUES ($1, $2, $3, $3)
	`, verification.VerificationID, claim.ClaimID, createdAt); err != nil {
		return store.CreateClaimResult{}, fmt.Errorf("insert verification: %w", err)
	}
	claim.Verification = &verification

	if err = insertComment(ctx, tx, claim.ClaimID, input.UserID, store.CreationNote(atm.Code, input.ClaimType, input.UserName), false, createdAt); err != nil {
		return store.CreateClaimResult{}, err
	}
	if routing.IsInterBranch {
		if err = insertComment(ctx, tx, claim.ClaimID, input.UserID, store.InterBranchNote(filer, owner, atm.Code), true, createdAt); err != nil {
			return store.CreateClaimResult{}, err
		}
	}

	payload, err := jsonBytes(map[string]interface{}{
		"ticket_number":   claim.TicketNumber,
		"atm_code":        atm.Code,
		"claim_type":      input.ClaimType,
		"amount":          input.TransactionAmount.String(),
		"priority":        claim.Priority,
		"branch_id":       owner.BranchID,
		"from_branch_id":  filer.BranchID,
		"is_inter_branch": routing.IsInterBranch,
	})
	if err != nil {
		return store.CreateClaimResult{}, err
	}
	if err = insertClaimEvent(ctx, tx, claim.ClaimID, store.EventClaimCreated, input.UserID, payload); err != nil {
		return store.CreateClaimResult{}, err
	}

	if err = tx.Commit(ctx); err != nil {
		return store.CreateClaimResult{}, err
	}
	return store.CreateClaimResult{Claim: claim, Routing: routing}, nil
}

// nextTicketNumber serializes numbering across all claim creations in the
// database with a transaction-scoped advisory lock.
func nextTicketNumber(ctx context.Context, tx pgx.Tx) (string, error) {
	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, ticketNumberLockKey); err != nil {
		return "", err
	}
	var current sql.NullString
	row := tx.QueryRow(ctx, `
		SELECT MAX(ticket_number::BIGINT)::TEXT
		FROM tickets
		WHERE ticket_number ~ '^[0-9]+$'
	`)
	if err := row.Scan(&current); err != nil {
		return "", err
	}
	return store.NextTicketNumber(current.String), nil
}

func insertFieldValues(ctx context.Context, tx pgx.Tx, claimID, serviceID string, values map[string]string) error {
	if len(values) == 0 {
		return nil
	}
	rows, err := tx.Query(ctx, `SELECT field_id, name FROM service_fields WHERE service_id = $1`, serviceID)
	if err != nil {
		return err
	}
	fields := make(map[string]string)
	for rows.Next() {
		var id, name string
		if err := rows.Scan(&id, &name); err != nil {
			rows.Close()
			return err
		}
		fields[name] = id
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}
	for name, value := range values {
		fieldID, ok := fields[name]
		if !ok {
			continue
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO ticket_field_values (ticket_id, field_id, value) VALUES ($1, $2, $3)
		`, claimID, fieldID, value); err != nil {
			return fmt.Errorf("insert field value %s: %w", name, err)
		}
	}
	return nil
}

func insertComment(ctx context.Context, tx pgx.Tx, claimID, userID, content string, internal bool, at time.Time) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO ticket_comments (comment_id, ticket_id, user_id, content, is_internal, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, uuid.NewString(), claimID, userID, content, internal, at)
	return err
}

const claimSelect = `
	SELECT t.ticket_id, t.ticket_number, t.title, t.description, t.status, t.priority,
	       t.service_id, s.name, t.category_id, COALESCE(c.name, ''),
	       t.branch_id, b.name, b.code,
	       t.created_by_id, u.name, t.created_by_branch_id, COALESCE(fb.name, ''),
	       t.assigned_to_id, COALESCE(au.name, ''), t.omni_ticket_id,
	       t.created_at, t.updated_at, t.resolved_at,
	       cd.atm_id, a.code, a.location, cd.claim_type, cd.transaction_date, cd.transaction_amount,
	       cd.card_last_4, cd.customer_name, cd.customer_account, cd.customer_phone,
	       cd.customer_email, cd.transaction_ref, cd.reporting_channel,
	       v.verification_id, v.journal_checked, v.journal_findings, v.ej_transaction_found,
	       v.ej_reference_number, v.amount_matches, v.cash_opening, v.cash_dispensed,
	       v.cash_remaining, v.cash_variance, v.cctv_reviewed, v.cctv_findings, v.cctv_evidence_url,
	       v.debit_successful, v.reversal_completed, v.recommendation, v.recommendation_notes,
	       v.verified_by_id, v.verified_at, v.created_at, v.updated_at
	FROM tickets t
	JOIN services s ON s.service_id = t.service_id
	LEFT JOIN categories c ON c.category_id = t.category_id
	JOIN branches b ON b.branch_id = t.branch_id
	JOIN users u ON u.user_id = t.created_by_id
	LEFT JOIN branches fb ON fb.branch_id = t.created_by_branch_id
	LEFT JOIN users au ON au.user_id = t.assigned_to_id
	LEFT JOIN claim_details cd ON cd.ticket_id = t.ticket_id
	LEFT JOIN atms a ON a.atm_id = cd.atm_id
	LEFT JOIN claim_verifications v ON v.ticket_id = t.ticket_id
`

func scanClaim(row pgx.Row) (models.Claim, error) {
	var claim models.Claim
	var (
		categoryID, createdByBranchID, assignedToID, omniTicketID sql.NullString
		resolvedAt                                                sql.NullTime
		atmID, atmCode, atmLocation, claimType                    sql.NullString
		transactionDate                                           sql.NullTime
		transactionAmount                                         decimal.NullDecimal
		cardLast4, customerName, customerAccount, customerPhone   sql.NullString
		customerEmail, transactionRef, reportingChannel           sql.NullString
	)
	var (
		verificationID, journalFindings, ejReference, cctvFindings, cctvEvidence sql.NullString
		recommendation, recommendationNotes, verifiedBy                          sql.NullString
		journalChecked, cctvReviewed                                             sql.NullBool
		ejFound, amountMatches, debitSuccessful, reversalCompleted               sql.NullBool
		cashOpening, cashDispensed, cashRemaining, cashVariance                  decimal.NullDecimal
		verifiedAt, verificationCreated, verificationUpdated                     sql.NullTime
	)
	if err := row.Scan(
		&claim.ClaimID, &claim.TicketNumber, &claim.Title, &claim.Description, &claim.Status, &claim.Priority,
		&claim.ServiceID, &claim.ServiceName, &categoryID, &claim.CategoryName,
		&claim.BranchID, &claim.BranchName, &claim.BranchCode,
		&claim.CreatedByID, &claim.CreatedByName, &createdByBranchID, &claim.CreatedByBranchName,
		&assignedToID, &claim.AssignedToName, &omniTicketID,
		&claim.CreatedAt, &claim.UpdatedAt, &resolvedAt,
		&atmID, &atmCode, &atmLocation, &claimType, &transactionDate, &transactionAmount,
		&cardLast4, &customerName, &customerAccount, &customerPhone,
		&customerEmail, &transactionRef, &reportingChannel,
		&verificationID, &journalChecked, &journalFindings, &ejFound,
		&ejReference, &amountMatches, &cashOpening, &cashDispensed,
		&cashRemaining, &cashVariance, &cctvReviewed, &cctvFindings, &cctvEvidence,
		&debitSuccessful, &reversalCompleted, &recommendation, &recommendationNotes,
		&verifiedBy, &verifiedAt, &verificationCreated, &verificationUpdated,
	); err != nil {
		return models.Claim{}, err
	}
	claim.CategoryID = nullStringPtr(categoryID)
	claim.CreatedByBranchID = nullStringPtr(createdByBranchID)
	claim.AssignedToID = nullStringPtr(assignedToID)
	claim.OmniTicketID = nullStringPtr(omniTicketID)
	claim.CreatedAt = claim.CreatedAt.UTC()
	claim.UpdatedAt = claim.UpdatedAt.UTC()
	claim.ResolvedAt = nullTimePtr(resolvedAt)

	if atmID.Valid {
		claim.Details = &models.ClaimDetails{
			ATMID:             atmID.String,
			ATMCode:           atmCode.String,
			ATMLocation:       atmLocation.String,
			ClaimType:         claimType.String,
			TransactionDate:   transactionDate.Time.UTC(),
			TransactionAmount: transactionAmount.Decimal,
			CardLast4:         cardLast4.String,
			CustomerName:      customerName.String,
			CustomerAccount:   customerAccount.String,
			CustomerPhone:     customerPhone.String,
			CustomerEmail:     customerEmail.String,
			TransactionRef:    transactionRef.String,
			ReportingChannel:  reportingChannel.String,
		}
	}
	if verificationID.Valid {
		claim.Verification = &models.Verification{
			VerificationID:      verificationID.String,
			ClaimID:             claim.ClaimID,
			JournalChecked:      journalChecked.Bool,
			JournalFindings:     nullStringPtr(journalFindings),
			EJTransactionFound:  nullBoolPtr(ejFound),
			EJReferenceNumber:   nullStringPtr(ejReference),
			AmountMatches:       nullBoolPtr(amountMatches),
			CashOpening:         nullDecimalPtr(cashOpening),
			CashDispensed:       nullDecimalPtr(cashDispensed),
			CashRemaining:       nullDecimalPtr(cashRemaining),
			CashVariance:        nullDecimalPtr(cashVariance),
			CCTVReviewed:        cctvReviewed.Bool,
			CCTVFindings:        nullStringPtr(cctvFindings),
			CCTVEvidenceURL:     nullStringPtr(cctvEvidence),
			DebitSuccessful:     nullBoolPtr(debitSuccessful),
			ReversalCompleted:   nullBoolPtr(reversalCompleted),
			Recommendation:      nullStringPtr(recommendation),
			RecommendationNotes: nullStringPtr(recommendationNotes),
			VerifiedByID:        nullStringPtr(verifiedBy),
			VerifiedAt:          nullTimePtr(verifiedAt),
			CreatedAt:           verificationCreated.Time.UTC(),
			UpdatedAt:           verificationUpdated.Time.UTC(),
		}
	}
	return claim, nil
}

// claimQuery builds WHERE clauses with positional arguments.
type claimQuery struct {
	conditions []string
	args       []interface{}
}

func (q *claimQuery) arg(value interface{}) string {
	q.args = append(q.args, value)
	return fmt.Sprintf("$%d", len(q.args))
}

func (q *claimQuery) add(condition string) {
	q.conditions = append(q.conditions, condition)
}

func (q *claimQuery) where() string {
	if len(q.conditions) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(q.conditions, " AND ")
}

// typeCondition matches the rule's categories and, when configured, its keywords.
func (q *claimQuery) typeCondition(rule store.ClaimTypeRule) {
	if len(rule.CategoryIDs) > 0 {
		q.add("t.category_id = ANY(" + q.arg(rule.CategoryIDs) + ")")
	}
	if len(rule.Keywords) > 0 {
		patterns := make([]string, 0, len(rule.Keywords))
		for _, keyword := range rule.Keywords {
			patterns = append(patterns, "%"+escapeLike(strings.ToLower(keyword))+"%")
		}
		placeholder := q.arg(patterns)
		q.add("(s.name ILIKE ANY(" + placeholder + ") OR t.title ILIKE ANY(" + placeholder + "))")
	}
}

func (q *claimQuery) scopeCondition(scope store.ClaimScope) {
	if scope.SystemWide {
		return
	}
	if scope.BranchID == "" {
		q.add("t.created_by_id = " + q.arg(scope.UserID))
		return
	}
	branch := q.arg(scope.BranchID)
	user := q.arg(scope.UserID)
	q.add("(t.branch_id = " + branch + " OR t.created_by_branch_id = " + branch + " OR t.created_by_id = " + user + ")")
}

func (q *claimQuery) sourceCondition(scope store.ClaimScope, source string) {
	switch source {
	case store.ClaimSourceInternal:
		if scope.BranchID == "" {
			q.add("t.created_by_id = " + q.arg(scope.UserID))
			return
		}
		q.add("t.created_by_branch_id = " + q.arg(scope.BranchID))
	case store.ClaimSourceExternal:
		if scope.BranchID == "" {
			q.add("FALSE")
			return
		}
		branch := q.arg(scope.BranchID)
		q.add("(t.branch_id = " + branch + " AND t.created_by_branch_id IS DISTINCT FROM " + branch + ")")
	}
}

func (s *Store) baseClaimQuery(filter store.ClaimFilter, source string) *claimQuery {
	q := &claimQuery{}
	rule, _ := s.rules.Rule(filter.ClaimType)
	q.typeCondition(rule)
	q.scopeCondition(filter.Scope)
	q.sourceCondition(filter.Scope, source)
	return q
}

const pendingCondition = "(v.verification_id IS NULL OR v.verified_at IS NULL)"

func (s *Store) ListClaims(ctx context.Context, filter store.ClaimFilter) ([]models.Claim, int, error) {
	page, limit := store.NormalizePage(filter.Page, filter.Limit, store.DefaultClaimLimit, store.MaxClaimLimit)
	q := s.baseClaimQuery(filter, store.NormalizeClaimSource(filter.Source))
	if search := strings.TrimSpace(filter.Search); search != "" {
		pattern := q.arg("%" + escapeLike(search) + "%")
		q.add("(t.ticket_number ILIKE " + pattern + " OR t.title ILIKE " + pattern +
			" OR cd.customer_name ILIKE " + pattern + " OR a.code ILIKE " + pattern + ")")
	}
	if status := strings.ToUpper(strings.TrimSpace(filter.Status)); status != "" {
		q.add("t.status = " + q.arg(status))
	}

	var total int
	countQuery := `
		SELECT COUNT(*)
		FROM tickets t
		JOIN services s ON s.service_id = t.service_id
		LEFT JOIN claim_details cd ON cd.ticket_id = t.ticket_id
		LEFT JOIN atms a ON a.atm_id = cd.atm_id` + q.where()
	if err := s.pool.QueryRow(ctx, countQuery, q.args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count claims: %w", err)
	}

	args := append(append([]interface{}{}, q.args...), limit, (page-1)*limit)
	query := claimSelect + q.where() + fmt.Sprintf(" ORDER BY t.created_at DESC, t.ticket_number DESC LIMIT $%d OFFSET $%d", len(q.args)+1, len(q.args)+2)
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list claims: %w", err)
	}
	defer rows.Close()
	claims := []models.Claim{}
	for rows.Next() {
		claim, err := scanClaim(rows)
		if err != nil {
			return nil, 0, err
		}
		claims = append(claims, claim)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return claims, total, nil
}

func (s *Store) countClaims(ctx context.Context, filter store.ClaimFilter, source string) (models.ScopeCount, error) {
	q := s.baseClaimQuery(filter, source)
	var count models.ScopeCount
	row := s.pool.QueryRow(ctx, `
		SELECT COUNT(*), COUNT(*) FILTER (WHERE `+pendingCondition+`)
		FROM tickets t
		JOIN services s ON s.service_id = t.service_id
		LEFT JOIN claim_verifications v ON v.ticket_id = t.ticket_id`+q.where(), q.args...)
	if err := row.Scan(&count.Total, &count.PendingVerifications); err != nil {
		return models.ScopeCount{}, fmt.Errorf("count %s claims: %w", source, err)
	}
	return count, nil
}

// ClaimStatistics counts every source tab concurrently. The headline numbers
// follow the active tab.
func (s *Store) ClaimStatistics(ctx context.Context, filter store.ClaimFilter) (models.ClaimStatistics, error) {
	var breakdown models.ClaimBreakdown
	group, gctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		var err error
		breakdown.All, err = s.countClaims(gctx, filter, store.ClaimSourceAll)
		return err
	})
	group.Go(func() error {
		var err error
		breakdown.Internal, err = s.countClaims(gctx, filter, store.ClaimSourceInternal)
		return err
	})
	group.Go(func() error {
		var err error
		breakdown.External, err = s.countClaims(gctx, filter, store.ClaimSourceExternal)
		return err
	})
	if err := group.Wait(); err != nil {
		return models.ClaimStatistics{}, err
	}

	active := breakdown.All
	switch store.NormalizeClaimSource(filter.Source) {
	case store.ClaimSourceInternal:
		active = breakdown.Internal
	case store.ClaimSourceExternal:
		active = breakdown.External
	}
	return models.ClaimStatistics{
		Total:                active.Total,
		PendingVerifications: active.PendingVerifications,
		FromOtherBranches:    breakdown.External.Total,
		Breakdown:            breakdown,
	}, nil
}

func (s *Store) GetClaimAccess(ctx context.Context, claimID string) (store.TicketAccess, error) {
	return getClaimAccess(ctx, s.pool, claimID, false)
}

func getClaimAccess(ctx context.Context, q queryRower, claimID string, forUpdate bool) (store.TicketAccess, error) {
	if _, err := uuid.Parse(claimID); err != nil {
		return store.TicketAccess{}, store.ErrClaimNotFound
	}
	query := `
		SELECT t.ticket_id, t.branch_id, t.created_by_id, COALESCE(t.created_by_branch_id::TEXT, ''),
		       COALESCE(t.assigned_to_id::TEXT, ''), COALESCE(t.category_id, ''), s.name, t.title
		FROM tickets t
		JOIN services s ON s.service_id = t.service_id
		WHERE t.ticket_id = $1`
	if forUpdate {
		query += " FOR UPDATE OF t"
	}
	var access store.TicketAccess
	row := q.QueryRow(ctx, query, claimID)
	if err := row.Scan(&access.ClaimID, &access.BranchID, &access.CreatedByID, &access.CreatedByBranchID,
		&access.AssignedToID, &access.CategoryID, &access.ServiceName, &access.Title); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return store.TicketAccess{}, store.ErrClaimNotFound
		}
		return store.TicketAccess{}, err
	}
	return access, nil
}

func getClaim(ctx context.Context, q queryRower, claimID string) (models.Claim, error) {
	claim, err := scanClaim(q.QueryRow(ctx, claimSelect+" WHERE t.ticket_id = $1", claimID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Claim{}, store.ErrClaimNotFound
		}
		return models.Claim{}, err
	}
	return claim, nil
}

func (s *Store) RecordOmniTicket(ctx context.Context, claimID, omniTicketID, omniTicketNumber string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE tickets SET omni_ticket_id = $2, omni_ticket_number = $3, updated_at = NOW()
		WHERE ticket_id = $1
	`, claimID, nullIfEmpty(omniTicketID), nullIfEmpty(omniTicketNumber))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return store.ErrClaimNotFound
	}
	return nil
}

// ListUnmirroredClaims returns ATM claims without an Omni ticket, oldest first.
func (s *Store) ListUnmirroredClaims(ctx context.Context, filter store.UnmirroredClaimFilter) ([]models.Claim, error) {
	q := &claimQuery{}
	q.add("t.omni_ticket_id IS NULL")
	q.add("t.omni_unconfirmed_at IS NULL")
	q.add("cd.ticket_id IS NOT NULL")
	q.add("t.omni_mirror_attempts < " + q.arg(filter.MaxAttempts))
	if !filter.CreatedAfter.IsZero() {
		q.add("t.created_at >= " + q.arg(filter.CreatedAfter))
	}
	if !filter.CreatedBefore.IsZero() {
		q.add("t.created_at < " + q.arg(filter.CreatedBefore))
	}
	query := claimSelect + q.where() + fmt.Sprintf(" ORDER BY t.created_at LIMIT $%d", len(q.args)+1)
	rows, err := s.pool.Query(ctx, query, append(q.args, filter.Limit)...)
	if err != nil {
		return nil, fmt.Errorf("list unmirrored claims: %w", err)
	}
	defer rows.Close()
	claims := []models.Claim{}
	for rows.Next() {
		claim, err := scanClaim(rows)
		if err != nil {
			return nil, err
		}
		claims = append(claims, claim)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return claims, nil
}

// RecordOmniFailure counts a failed mirror attempt and returns the new total.
func (s *Store) RecordOmniFailure(ctx context.Context, claimID string) (int, error) {
	var attempts int
	err := s.pool.QueryRow(ctx, `
		UPDATE tickets SET omni_mirror_attempts = omni_mirror_attempts + 1
		WHERE ticket_id = $1
		RETURNING omni_mirror_attempts
	`, claimID).Scan(&attempts)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, store.ErrClaimNotFound
		}
		return 0, fmt.Errorf("record omni failure: %w", err)
	}
	return attempts, nil
}

// MarkOmniUnconfirmed takes a claim out of mirror retries after Omni accepted
// a ticket whose reference could not be stored.
func (s *Store) MarkOmniUnconfirmed(ctx context.Context, claimID string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE tickets SET omni_unconfirmed_at = NOW()
		WHERE ticket_id = $1 AND omni_ticket_id IS NULL
	`, claimID)
	if err != nil {
		return fmt.Errorf("mark omni unconfirmed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrClaimNotFound
	}
	return nil
}
