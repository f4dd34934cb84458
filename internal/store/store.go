package store

import (
	"context"
	"time"

	"servicedesk/internal/models"

	"github.com/shopspring/decimal"
)

type Session struct {
	SessionID    string
	UserID       string
	Name         string
	Email        string
	Role         string
	BranchID     string
	BranchName   string
	BranchCode   string
	SupportGroup string
	ExpiresAt    time.Time
}

type APIKey struct {
	KeyID       string
	Name        string
	Permissions []string
}

type MonitorFilter struct {
	Search    string
	Status    string
	AlarmType string
	Page      int
	Limit     int
}

type Snapshot struct {
	Timestamp time.Time        `json:"timestamp"`
	Devices   []SnapshotDevice `json:"devices"`
	Alarms    []SnapshotAlarm  `json:"alarms"`
	Source    string           `json:"-"`
}

type SnapshotDevice struct {
	DeviceID string `json:"device_id"`
	Location string `json:"location"`
}

type SnapshotAlarm struct {
	DeviceID   string    `json:"device_id"`
	Location   string    `json:"location"`
	AlarmType  string    `json:"alarm_type"`
	OccurredAt time.Time `json:"occurred_at"`
}

type IngestResult struct {
	Batch        models.IngestBatch
	Opened       int
	Cleared      int
	ActiveAlarms int
}

type CreateClaimInput struct {
	UserID            string
	UserName          string
	UserBranchID      string
	ATMCode           string
	TransactionDate   time.Time
	TransactionAmount decimal.Decimal
	CardLast4         string
	CustomerName      string
	CustomerAccount   string
	CustomerPhone     string
	CustomerEmail     string
	ClaimType         string
	ClaimDescription  string
	TransactionRef    string
	ReportingChannel  string
	CreatedAt         time.Time
}

type CreateClaimResult struct {
	Claim   models.Claim
	Routing models.Routing
}

// ClaimScope describes which claims a viewer may see.
type ClaimScope struct {
	SystemWide bool
	BranchID   string
	UserID     string
}

type ClaimFilter struct {
	Scope     ClaimScope
	Source    string
	ClaimType string
	Search    string
	Status    string
	Page      int
	Limit     int
}

type UpdateVerificationInput struct {
	ClaimID    string
	Actor      Session
	Patch      VerificationPatch
	OccurredAt time.Time
}

type AttachmentInput struct {
	ClaimID      string
	Kind         string
	Filename     string
	OriginalName string
	MimeType     string
	Size         int64
	Path         string
	UploadedByID string
	CreatedAt    time.Time
}

// TicketAccess is the subset of a ticket needed for access decisions.
type TicketAccess struct {
	ClaimID           string
	BranchID          string
	CreatedByID       string
	CreatedByBranchID string
	AssignedToID      string
	CategoryID        string
	ServiceName       string
	Title             string
}

type PCAssetFilter struct {
	BranchID   string
	BranchCode string
	Status     string
	FormFactor string
	Search     string
}

type TransactionClaimFilter struct {
	From time.Time
	To   time.Time
}

// UnmirroredClaimFilter selects claims still waiting for an Omni ticket.
type UnmirroredClaimFilter struct {
	CreatedAfter  time.Time
	CreatedBefore time.Time
	MaxAttempts   int
	Limit         int
}

type SessionStore interface {
	GetSession(ctx context.Context, sessionID string) (Session, error)
}

type MonitorStore interface {
	ListDevices(ctx context.Context, filter MonitorFilter) (models.MonitorPage, error)
	GetDeviceHistory(ctx context.Context, deviceID string, limit int) (models.DeviceHistory, error)
	IngestSnapshot(ctx context.Context, snapshot Snapshot) (IngestResult, error)
	VerifyAPIKey(ctx context.Context, keyID, secret string) (APIKey, error)
}

type ClaimStore interface {
	LookupATM(ctx context.Context, code string) (models.ATM, error)
	CreateClaim(ctx context.Context, input CreateClaimInput) (CreateClaimResult, error)
	ListClaims(ctx context.Context, filter ClaimFilter) ([]models.Claim, int, error)
	ClaimStatistics(ctx context.Context, filter ClaimFilter) (models.ClaimStatistics, error)
	GetClaimAccess(ctx context.Context, claimID string) (TicketAccess, error)
	GetVerification(ctx context.Context, claimID string) (*models.Verification, error)
	UpdateVerification(ctx context.Context, input UpdateVerificationInput) (models.Verification, models.Claim, error)
	AddAttachment(ctx context.Context, input AttachmentInput) (models.Attachment, error)
	GetAttachment(ctx context.Context, claimID, attachmentID string) (models.Attachment, TicketAccess, error)
	ListClaimEvents(ctx context.Context, claimID string) ([]ClaimEvent, error)
	RecordOmniTicket(ctx context.Context, claimID, omniTicketID, omniTicketNumber string) error
	MarkOmniUnconfirmed(ctx context.Context, claimID string) error
}

type ReportStore interface {
	ListPCAssets(ctx context.Context, filter PCAssetFilter) ([]models.PCAsset, error)
	ListTransactionClaims(ctx context.Context, filter TransactionClaimFilter) ([]models.Claim, error)
}

type Store interface {
	SessionStore
	MonitorStore
	ClaimStore
	ReportStore
}
