package omni

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"servicedesk/internal/models"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const (
	defaultConnectID = "helpdesk@banksulutgo.co.id"
	claimDateLayout  = "2006-01-02 15:04:05"
)

var ErrRejected = errors.New("omni rejected request")

// ErrUnconfirmed means Omni accepted the ticket but its reference was not
// stored. Retrying would create a second Omni ticket.
var ErrUnconfirmed = errors.New("omni ticket not confirmed")

type Config struct {
	Enabled         bool
	APIURL          string
	Token           string
	UpdateStatusURL string
	Timeout         time.Duration
}

type TicketRecorder interface {
	RecordOmniTicket(ctx context.Context, claimID, omniTicketID, omniTicketNumber string) error
}

// Payload is the helpdesk ticket body accepted by the Omni create endpoint.
type Payload struct {
	NamaNasabah          string  `json:"namaNasabah"`
	TicketType           string  `json:"ticketType"`
	Content              string  `json:"content"`
	Email                string  `json:"email,omitempty"`
	ConnectID            string  `json:"connectID"`
	MediaTransaksi       string  `json:"mediaTransaksi"`
	JenisTransaksi       string  `json:"jenisTransaksi,omitempty"`
	Nominal              float64 `json:"nominal"`
	NomorRekening        *int64  `json:"nomorRekening,omitempty"`
	NomorKartu           *int64  `json:"nomorKartu,omitempty"`
	TransactionID        string  `json:"transactionId,omitempty"`
	ClaimReason          string  `json:"claimReason,omitempty"`
	ClaimDate            string  `json:"claimDate,omitempty"`
	BranchCode           string  `json:"branchCode"`
	BranchName           string  `json:"branchName"`
	ATMName              string  `json:"atmName"`
	ATMID                string  `json:"atmId"`
	Description          string  `json:"description,omitempty"`
	NomorTicketHelpdesk  int64   `json:"nomorTicketHelpdesk"`
	NoRegPengaduanCabang int64   `json:"noRegPengaduanCabang"`
}

type Ticket struct {
	TicketID     string
	TicketNumber string
}

type createResponse struct {
	Success *bool  `json:"success"`
	Status  *bool  `json:"status"`
	Message string `json:"message"`
	Data    *struct {
		TicketID     string      `json:"ticketId"`
		TicketNumber json.Number `json:"ticket_number"`
	} `json:"data"`
}

type Client struct {
	cfg      Config
	recorder TicketRecorder
	http     *http.Client
}

func NewClient(cfg Config, recorder TicketRecorder) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Client{
		cfg:      cfg,
		recorder: recorder,
		http: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
}

func (c *Client) Enabled() bool {
	return c != nil && c.cfg.Enabled && c.cfg.Token != "" && c.cfg.APIURL != ""
}

// Mirror creates the Omni ticket for a claim and stores the returned reference.
func (c *Client) Mirror(ctx context.Context, claim models.Claim) (Ticket, error) {
	if !c.Enabled() {
		return Ticket{}, nil
	}
	payload := BuildPayload(claim)
	if payload.NomorTicketHelpdesk <= 0 {
		return Ticket{}, fmt.Errorf("invalid ticket number %q", claim.TicketNumber)
	}
	ticket, err := c.create(ctx, payload)
	if err != nil {
		return Ticket{}, err
	}
	log.Printf("omni ticket created claim_id=%s omni_ticket_id=%s omni_ticket_number=%s",
		claim.ClaimID, ticket.TicketID, ticket.TicketNumber)
	if c.recorder != nil {
		if err := c.recorder.RecordOmniTicket(ctx, claim.ClaimID, ticket.TicketID, ticket.TicketNumber); err != nil {
			return ticket, fmt.Errorf("%w: record omni ticket: %w", ErrUnconfirmed, err)
		}
	}
	return ticket, nil
}

func (c *Client) create(ctx context.Context, payload Payload) (Ticket, error) {
	endpoint, err := url.Parse(c.cfg.APIURL)
	if err != nil {
		return Ticket{}, fmt.Errorf("parse omni url: %w", err)
	}
	query := endpoint.Query()
	query.Set("client_secret_key", c.cfg.Token)
	endpoint.RawQuery = query.Encode()

	resp, err := c.post(ctx, endpoint.String(), payload)
	if err != nil {
		return Ticket{}, err
	}
	defer resp.Body.Close()

	var body createResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&body); err != nil {
		return Ticket{}, fmt.Errorf("decode omni response: %w", err)
	}
	succeeded := (body.Success != nil && *body.Success) || (body.Status != nil && *body.Status)
	if resp.StatusCode >= 300 || !succeeded {
		return Ticket{}, fmt.Errorf("%w: status=%d message=%s", ErrRejected, resp.StatusCode, body.Message)
	}
	if body.Data == nil || strings.TrimSpace(body.Data.TicketID) == "" {
		return Ticket{}, fmt.Errorf("%w: response missing ticketId", ErrUnconfirmed)
	}
	return Ticket{TicketID: body.Data.TicketID, TicketNumber: body.Data.TicketNumber.String()}, nil
}

// UpdateStatus pushes a claim status change to a mirrored Omni ticket.
// Statuses without an Omni equivalent are skipped.
func (c *Client) UpdateStatus(ctx context.Context, omniTicketID, ticketNumber, status string) error {
	if !c.Enabled() || c.cfg.UpdateStatusURL == "" || omniTicketID == "" {
		return nil
	}
	omniStatus, ok := StatusFor(status)
	if !ok {
		return nil
	}
	resp, err := c.post(ctx, c.cfg.UpdateStatusURL, map[string]string{
		"sociomile_ticket_id": omniTicketID,
		"bsg_ticket_id":       ticketNumber,
		"status":              omniStatus,
	})
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode >= 300 {
		return fmt.Errorf("%w: status=%d", ErrRejected, resp.StatusCode)
	}
	return nil
}

func (c *Client) post(ctx context.Context, endpoint string, payload interface{}) (*http.Response, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("omni request: %w", err)
	}
	return resp, nil
}

func StatusFor(status string) (string, bool) {
	switch status {
	case models.TicketStatusOpen:
		return "Open", true
	case models.TicketStatusInProgress:
		return "InProgress", true
	case models.TicketStatusPendingVendor:
		return "On Hold", true
	case models.TicketStatusResolved, models.TicketStatusClosed:
		return "Close", true
	default:
		return "", false
	}
}

func BuildPayload(claim models.Claim) Payload {
	details := models.ClaimDetails{}
	if claim.Details != nil {
		details = *claim.Details
	}

	customerName := firstNonEmpty(details.CustomerName, claim.CreatedByName, "Customer")
	atmID := firstNonEmpty(details.ATMCode, "N/A")
	ticketNumber := digitsOnly(claim.TicketNumber)

	payload := Payload{
		NamaNasabah:          customerName,
		TicketType:           "helpdesk",
		Content:              firstNonEmpty(claim.Description, claim.Title, "Transaction Claim"),
		Email:                details.CustomerEmail,
		ConnectID:            firstNonEmpty(details.CustomerEmail, details.CustomerPhone, defaultConnectID),
		MediaTransaksi:       firstNonEmpty(details.ATMCode, "BRANCH_PORTAL"),
		JenisTransaksi:       TransactionType(claim.ServiceName, details.ClaimType),
		Nominal:              details.TransactionAmount.InexactFloat64(),
		NomorRekening:        digitsPtr(details.CustomerAccount),
		NomorKartu:           digitsPtr(details.CardLast4),
		TransactionID:        details.TransactionRef,
		ClaimReason:          firstNonEmpty(details.ClaimType, claim.ServiceName),
		ClaimDate:            claim.CreatedAt.Format(claimDateLayout),
		BranchCode:           firstNonEmpty(claim.BranchCode, "000"),
		BranchName:           firstNonEmpty(claim.BranchName, "Unknown Branch"),
		ATMName:              firstNonEmpty(details.ATMLocation, "N/A"),
		ATMID:                atmID,
		Description:          claim.Description,
		NomorTicketHelpdesk:  ticketNumber,
		NoRegPengaduanCabang: ticketNumber,
	}
	return payload
}

// TransactionType classifies a claim for the jenisTransaksi field.
func TransactionType(serviceName, claimType string) string {
	name := strings.ToLower(serviceName)
	claim := strings.ToLower(claimType)
	switch {
	case strings.Contains(name, "pembelian") || strings.Contains(name, "purchase") || strings.Contains(claim, "purchase"):
		return "PEMBELIAN"
	case strings.Contains(name, "pembayaran") || strings.Contains(name, "payment") || strings.Contains(claim, "payment"):
		return "PEMBAYARAN"
	case strings.Contains(name, "transfer"):
		return "TRANSFER"
	case strings.Contains(name, "atm") || strings.Contains(name, "penarikan") || strings.Contains(name, "klaim"):
		return "PENARIKAN"
	default:
		return "KLAIM"
	}
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if strings.TrimSpace(value) != "" {
			return value
		}
	}
	return ""
}

func digitsOnly(value string) int64 {
	var b strings.Builder
	for _, r := range value {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	n, err := strconv.ParseInt(b.String(), 10, 64)
	if err != nil {
		return 0
	}
	return n
}

func digitsPtr(value string) *int64 {
	n := digitsOnly(value)
	if n == 0 {
		return nil
	}
	return &n
}
