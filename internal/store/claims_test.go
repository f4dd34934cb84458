package store

import (
	"errors"
	"strings"
	"testing"
	"time"

	"servicedesk/internal/models"

	"github.com/shopspring/decimal"
)

func TestClaimPriority(t *testing.T) {
	cases := []struct {
		amount int64
		want   string
	}{
		{1500000, models.PriorityHigh},
		{1000001, models.PriorityHigh},
		{1000000, models.PriorityMedium},
		{50000, models.PriorityMedium},
	}
	for _, tc := range cases {
		if got := ClaimPriority(decimal.NewFromInt(tc.amount), DefaultHighPriorityThreshold); got != tc.want {
			t.Fatalf("amount %d: expected %s, got %s", tc.amount, tc.want, got)
		}
	}
}

func validClaimInput() CreateClaimInput {
	return CreateClaimInput{
		UserID:            "user-b",
		UserName:          "Teller B",
		UserBranchID:      "branch-b",
		ATMCode:           "ATM-001",
		TransactionDate:   time.Date(2026, 2, 10, 9, 30, 0, 0, time.UTC),
		TransactionAmount: decimal.NewFromInt(1500000),
		CardLast4:         "1234",
		CustomerName:      "Budi",
		CustomerAccount:   "0011223344",
		CustomerPhone:     "081234567890",
		ClaimType:         "CASH_NOT_DISPENSED",
		ClaimDescription:  "Uang tidak keluar",
		ReportingChannel:  "BRANCH",
	}
}

func TestValidateCreateClaim(t *testing.T) {
	if err := ValidateCreateClaim(validClaimInput()); err != nil {
		t.Fatalf("expected valid input, got %v", err)
	}

	noBranch := validClaimInput()
	noBranch.UserBranchID = ""
	if err := ValidateCreateClaim(noBranch); !errors.Is(err, ErrBranchRequired) {
		t.Fatalf("expected branch required, got %v", err)
	}

	missing := validClaimInput()
	missing.CustomerName = ""
	missing.ATMCode = ""
	err := ValidateCreateClaim(missing)
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
	if !strings.Contains(err.Error(), "atm_code") || !strings.Contains(err.Error(), "customer_name") {
		t.Fatalf("expected missing fields in message, got %q", err.Error())
	}

	zero := validClaimInput()
	zero.TransactionAmount = decimal.Zero
	if err := ValidateCreateClaim(zero); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected invalid amount, got %v", err)
	}

	badCard := validClaimInput()
	badCard.CardLast4 = "12a4"
	if err := ValidateCreateClaim(badCard); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected invalid card digits, got %v", err)
	}

	badType := validClaimInput()
	badType.ClaimType = "LOST_CARD"
	if err := ValidateCreateClaim(badType); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected invalid claim type, got %v", err)
	}
}

func TestClaimTitleAndNotes(t *testing.T) {
	if got := ClaimTitle("CARD_CAPTURED", "ATM-001"); got != "Klaim ATM - Kartu Tertelan - ATM-001" {
		t.Fatalf("unexpected title %q", got)
	}
	if got := ClaimTitle("CUSTOM", "ATM-9"); got != "Klaim ATM - CUSTOM - ATM-9" {
		t.Fatalf("unexpected title for unknown type %q", got)
	}
	note := InterBranchNote(models.BranchRef{Name: "Cabang B", Code: "002"}, models.BranchRef{Name: "Cabang A", Code: "001"}, "ATM-001")
	if !strings.Contains(note, "Cabang B") || !strings.Contains(note, "Cabang A") || !strings.Contains(note, "ATM-001") {
		t.Fatalf("inter-branch note missing parties: %q", note)
	}
}

func TestClaimFieldValuesSkipsEmpty(t *testing.T) {
	input := validClaimInput()
	atm := models.ATM{Code: "ATM-001", Location: "Mall A", BranchName: "Cabang A"}
	values := ClaimFieldValues(input, atm, "Cabang B")
	if values["owner_branch"] != "Cabang A" || values["reporting_branch"] != "Cabang B" {
		t.Fatalf("unexpected derived branches: %v", values)
	}
	if values["transaction_amount"] != "1500000" {
		t.Fatalf("unexpected amount %q", values["transaction_amount"])
	}
	if _, ok := values["customer_email"]; ok {
		t.Fatalf("empty email must be skipped")
	}
}

func TestClaimDescription(t *testing.T) {
	input := validClaimInput()
	input.TransactionRef = "REF-9"
	desc := ClaimDescription(input, models.ATM{Code: "ATM-001", Location: "Mall A", BranchName: "Cabang A"}, "Cabang B")
	for _, want := range []string{"Uang Tidak Keluar", "Rp 1.500.000", "****1234", "Cabang Pelapor: Cabang B", "No. Referensi: REF-9", "Email: -"} {
		if !strings.Contains(desc, want) {
			t.Fatalf("description missing %q:\n%s", want, desc)
		}
	}
}

func TestNextTicketNumber(t *testing.T) {
	cases := map[string]string{
		"":      "1",
		"41":    "42",
		"  9 ":  "10",
		"abc":   "1",
		"99999": "100000",
	}
	for current, want := range cases {
		if got := NextTicketNumber(current); got != want {
			t.Fatalf("NextTicketNumber(%q)=%q, want %q", current, got, want)
		}
	}
}

func TestFormatRupiah(t *testing.T) {
	cases := []struct {
		amount decimal.Decimal
		want   string
	}{
		{decimal.NewFromInt(1500000), "1.500.000"},
		{decimal.NewFromInt(999), "999"},
		{decimal.NewFromInt(-50000), "-50.000"},
		{decimal.RequireFromString("1234.5"), "1.234,50"},
		{decimal.RequireFromString("1.995"), "2"},
		{decimal.RequireFromString("999.999"), "1.000"},
		{decimal.RequireFromString("-0.5"), "-0,50"},
		{decimal.RequireFromString("-1234.567"), "-1.234,57"},
		{decimal.RequireFromString("-0.001"), "0"},
	}
	for _, tc := range cases {
		if got := FormatRupiah(tc.amount); got != tc.want {
			t.Fatalf("FormatRupiah(%s)=%q, want %q", tc.amount, got, tc.want)
		}
	}
}

func TestNormalizeClaimSource(t *testing.T) {
	if NormalizeClaimSource("Internal") != ClaimSourceInternal {
		t.Fatalf("expected internal")
	}
	if NormalizeClaimSource("external") != ClaimSourceExternal {
		t.Fatalf("expected external")
	}
	if NormalizeClaimSource("anything") != ClaimSourceAll {
		t.Fatalf("expected all")
	}
}
