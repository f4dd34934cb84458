package store

import (
	"fmt"
	"strconv"
	"strings"

	"servicedesk/internal/models"

	"github.com/shopspring/decimal"
)

const (
	ClaimSourceAll      = "all"
	ClaimSourceInternal = "internal"
	ClaimSourceExternal = "external"
)

const (
	DefaultClaimLimit = 20
	MaxClaimLimit     = 100
)

var DefaultHighPriorityThreshold = decimal.NewFromInt(1_000_000)

var claimTypeLabels = map[string]string{
	"CARD_CAPTURED":      "Kartu Tertelan",
	"CASH_NOT_DISPENSED": "Uang Tidak Keluar",
	"WRONG_AMOUNT":       "Nominal Tidak Sesuai",
	"DOUBLE_DEBIT":       "Terdebet Ganda",
	"TIMEOUT":            "Transaksi Timeout",
	"OTHER":              "Lainnya",
}

var reportingChannels = map[string]bool{
	"BRANCH":      true,
	"CALL_CENTER": true,
	"EMAIL":       true,
	"MOBILE":      true,
	"SOCIAL":      true,
}

func ClaimTypeLabel(code string) string {
	if label, ok := claimTypeLabels[code]; ok {
		return label
	}
	return code
}

// ClaimPriority is HIGH only when the amount is strictly above the threshold.
func ClaimPriority(amount, threshold decimal.Decimal) string {
	if amount.GreaterThan(threshold) {
		return models.PriorityHigh
	}
	return models.PriorityMedium
}

func ClaimTitle(claimType, atmCode string) string {
	return fmt.Sprintf("Klaim ATM - %s - %s", ClaimTypeLabel(claimType), atmCode)
}

func ClaimDescription(input CreateClaimInput, atm models.ATM, reportingBranch string) string {
	var b strings.Builder
	b.WriteString("**Informasi Klaim ATM**\n")
	fmt.Fprintf(&b, "- Jenis Klaim: %s\n", ClaimTypeLabel(input.ClaimType))
	fmt.Fprintf(&b, "- ATM: %s - %s\n", atm.Code, atm.Location)
	fmt.Fprintf(&b, "- Tanggal Transaksi: %s\n", input.TransactionDate.Format("02/01/2006 15:04"))
	fmt.Fprintf(&b, "- Nominal: Rp %s\n\n", FormatRupiah(input.TransactionAmount))
	b.WriteString("**Informasi Nasabah**\n")
	fmt.Fprintf(&b, "- Nama: %s\n", input.CustomerName)
	fmt.Fprintf(&b, "- No. Rekening: %s\n", input.CustomerAccount)
	fmt.Fprintf(&b, "- No. HP: %s\n", input.CustomerPhone)
	fmt.Fprintf(&b, "- Email: %s\n", valueOrDash(input.CustomerEmail))
	fmt.Fprintf(&b, "- Kartu ATM (4 digit): ****%s\n\n", input.CardLast4)
	b.WriteString("**Kronologi Kejadian**\n")
	b.WriteString(input.ClaimDescription)
	b.WriteString("\n\n**Informasi Pelaporan**\n")
	fmt.Fprintf(&b, "- Channel: %s\n", input.ReportingChannel)
	fmt.Fprintf(&b, "- Cabang Pelapor: %s\n", reportingBranch)
	fmt.Fprintf(&b, "- Cabang Pemilik ATM: %s", atm.BranchName)
	if input.TransactionRef != "" {
		fmt.Fprintf(&b, "\n- No. Referensi: %s", input.TransactionRef)
	}
	return b.String()
}

// InterBranchNote is the internal comment left when one branch files against another's ATM.
func InterBranchNote(from, to models.BranchRef, atmCode string) string {
	return fmt.Sprintf("Klaim antar cabang: diajukan oleh %s (%s) untuk ATM %s milik %s (%s).", from.Name, from.Code, atmCode, to.Name, to.Code)
}

func CreationNote(atmCode, claimType, userName string) string {
	return fmt.Sprintf("Tiket klaim ATM dibuat.\nATM: %s\nJenis: %s\nDibuat oleh: %s", atmCode, ClaimTypeLabel(claimType), userName)
}

// ClaimFieldValues maps submitted claim data onto service field names.
func ClaimFieldValues(input CreateClaimInput, atm models.ATM, reportingBranch string) map[string]string {
	values := map[string]string{
		"atm_code":           atm.Code,
		"atm_location":       atm.Location,
		"owner_branch":       atm.BranchName,
		"reporting_branch":   reportingBranch,
		"transaction_date":   input.TransactionDate.UTC().Format("2006-01-02T15:04:05Z07:00"),
		"transaction_amount": input.TransactionAmount.String(),
		"card_last_4":        input.CardLast4,
		"customer_name":      input.CustomerName,
		"customer_account":   input.CustomerAccount,
		"customer_phone":     input.CustomerPhone,
		"customer_email":     input.CustomerEmail,
		"claim_type":         input.ClaimType,
		"claim_description":  input.ClaimDescription,
		"transaction_ref":    input.TransactionRef,
		"reporting_channel":  input.ReportingChannel,
	}
	for key, value := range values {
		if strings.TrimSpace(value) == "" {
			delete(values, key)
		}
	}
	return values
}

func ValidateCreateClaim(input CreateClaimInput) error {
	if strings.TrimSpace(input.UserBranchID) == "" {
		return ErrBranchRequired
	}
	var missing []string
	if input.ATMCode == "" {
		missing = append(missing, "atm_code")
	}
	if input.TransactionDate.IsZero() {
		missing = append(missing, "transaction_date")
	}
	if input.CustomerName == "" {
		missing = append(missing, "customer_name")
	}
	if input.CustomerAccount == "" {
		missing = append(missing, "customer_account")
	}
	if input.CustomerPhone == "" {
		missing = append(missing, "customer_phone")
	}
	if input.CardLast4 == "" {
		missing = append(missing, "card_last_4")
	}
	if input.ClaimType == "" {
		missing = append(missing, "claim_type")
	}
	if input.ClaimDescription == "" {
		missing = append(missing, "claim_description")
	}
	if len(missing) > 0 {
		return invalid("missing required fields: " + strings.Join(missing, ", "))
	}
	if !input.TransactionAmount.IsPositive() {
		return invalid("transaction_amount must be greater than zero")
	}
	if len(input.CardLast4) != 4 || !isDigits(input.CardLast4) {
		return invalid("card_last_4 must be 4 digits")
	}
	if _, ok := claimTypeLabels[input.ClaimType]; !ok {
		return invalid("unknown claim_type")
	}
	if input.ReportingChannel != "" && !reportingChannels[input.ReportingChannel] {
		return invalid("unknown reporting_channel")
	}
	return nil
}

func NormalizeClaimSource(source string) string {
	switch strings.ToLower(strings.TrimSpace(source)) {
	case ClaimSourceInternal:
		return ClaimSourceInternal
	case ClaimSourceExternal:
		return ClaimSourceExternal
	default:
		return ClaimSourceAll
	}
}

// NextTicketNumber returns the number following the highest numeric ticket number.
func NextTicketNumber(current string) string {
	value, err := strconv.ParseInt(strings.TrimSpace(current), 10, 64)
	if err != nil || value < 0 {
		value = 0
	}
	return strconv.FormatInt(value+1, 10)
}

// FormatRupiah renders an amount rounded to sen with Indonesian thousands
// separators.
func FormatRupiah(amount decimal.Decimal) string {
	rounded := amount.Round(2)
	abs := rounded.Abs()
	whole := abs.Truncate(0)
	digits := whole.String()
	var b strings.Builder
	if rounded.IsNegative() {
		b.WriteByte('-')
	}
	for i, r := range digits {
		if i > 0 && (len(digits)-i)%3 == 0 {
			b.WriteByte('.')
		}
		b.WriteRune(r)
	}
	if frac := abs.Sub(whole); !frac.IsZero() {
		b.WriteString(",")
		b.WriteString(strings.TrimPrefix(frac.StringFixed(2), "0."))
	}
	return b.String()
}

func isDigits(value string) bool {
	for _, r := range value {
		if r < '0' || r > '9' {
			return false
		}
	}
	return value != ""
}

func valueOrDash(value string) string {
	if strings.TrimSpace(value) == "" {
		return "-"
	}
	return value
}
