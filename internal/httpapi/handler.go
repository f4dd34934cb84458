package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"servicedesk/internal/attachments"
	"servicedesk/internal/models"
	"servicedesk/internal/omni"
	"servicedesk/internal/realtime"
	"servicedesk/internal/store"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
)

type MonitorCache interface {
	Get(ctx context.Context, query string) (string, []byte, bool)
	Put(ctx context.Context, key string, body []byte)
}

type SnapshotIngestor interface {
	Apply(ctx context.Context, snapshot store.Snapshot) (store.IngestResult, error)
}

type Publisher interface {
	Publish(eventType string, target realtime.Target, payload interface{})
}

type OmniMirror interface {
	Enabled() bool
	Mirror(ctx context.Context, claim models.Claim) (omni.Ticket, error)
	UpdateStatus(ctx context.Context, omniTicketID, ticketNumber, status string) error
}

type FileStorage interface {
	Save(claimID, originalName string, r io.Reader, maxSize int64) (attachments.Stored, error)
	Open(path string) (*os.File, error)
	Remove(path string) error
}

type Recorder interface {
	ClaimCreated(interBranch bool)
	OmniMirror(result string)
	VerificationUpdated()
}

type Handler struct {
	store         store.Store
	rules         store.ClaimRules
	cache         MonitorCache
	ingestor      SnapshotIngestor
	publisher     Publisher
	omni          OmniMirror
	files         FileStorage
	metrics       Recorder
	mirrorTimeout time.Duration
	now           func() time.Time
}

type Options struct {
	Rules         store.ClaimRules
	Cache         MonitorCache
	Ingestor      SnapshotIngestor
	Publisher     Publisher
	Omni          OmniMirror
	Files         FileStorage
	Metrics       Recorder
	MirrorTimeout time.Duration
	Now           func() time.Time
}

type errorResponse struct {
	RequestID string `json:"request_id"`
	Error     string `json:"error"`
}

type successResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data"`
}

func NewHandler(st store.Store, options Options) *Handler {
	rules := options.Rules
	if len(rules.Types) == 0 {
		rules = store.DefaultClaimRules()
	}
	now := options.Now
	if now == nil {
		now = time.Now
	}
	mirrorTimeout := options.MirrorTimeout
	if mirrorTimeout <= 0 {
		mirrorTimeout = 30 * time.Second
	}
	return &Handler{
		store:         st,
		rules:         rules,
		cache:         options.Cache,
		ingestor:      options.Ingestor,
		publisher:     options.Publisher,
		omni:          options.Omni,
		files:         options.Files,
		metrics:       options.Metrics,
		mirrorTimeout: mirrorTimeout,
		now:           now,
	}
}

func (h *Handler) Routes() *mux.Router {
	r := mux.NewRouter()
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusMethodNotAllowed)
	})
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, requestIDFromRequest(r), http.StatusNotFound, "not found")
	})

	r.HandleFunc("/healthz", h.handleHealth).Methods(http.MethodGet)

	r.HandleFunc("/api/monitoring/atm", h.handleListDevices).Methods(http.MethodGet)
	r.HandleFunc("/api/monitoring/atm/ingest", h.handleIngest).Methods(http.MethodPost)
	r.HandleFunc("/api/monitoring/atm/{deviceId}", h.handleDeviceHistory).Methods(http.MethodGet)

	r.HandleFunc("/api/atms/lookup", h.handleLookupATM).Methods(http.MethodGet)

	r.HandleFunc("/api/branch/atm-claims", h.handleListClaims).Methods(http.MethodGet)
	r.HandleFunc("/api/branch/atm-claims", h.handleCreateClaim).Methods(http.MethodPost)
	r.HandleFunc("/api/branch/atm-claims/{id}/verify", h.handleGetVerification).Methods(http.MethodGet)
	r.HandleFunc("/api/branch/atm-claims/{id}/verify", h.handleUpdateVerification).Methods(http.MethodPost)
	r.HandleFunc("/api/branch/atm-claims/{id}/upload", h.handleUpload).Methods(http.MethodPost)
	r.HandleFunc("/api/branch/atm-claims/{id}/events", h.handleClaimEvents).Methods(http.MethodGet)

	r.HandleFunc("/api/tickets/{id}/attachments/{attachmentId}/download", h.handleDownload).Methods(http.MethodGet)
	r.HandleFunc("/api/tickets/{id}/attachments/{attachmentId}/preview", h.handlePreview).Methods(http.MethodGet)

	r.HandleFunc("/api/admin/pc-management/export", h.handlePCExport).Methods(http.MethodGet)
	r.HandleFunc("/api/reports/transaction-claims", h.handleTransactionClaimsReport).Methods(http.MethodGet)
	return r
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, target interface{}) bool {
	decoder := json.NewDecoder(io.LimitReader(r.Body, 1<<20))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(target); err != nil {
		writeError(w, requestIDFromRequest(r), http.StatusBadRequest, "invalid JSON payload")
		return false
	}
	return true
}

func queryInt(r *http.Request, key string) int {
	value, err := strconv.Atoi(strings.TrimSpace(r.URL.Query().Get(key)))
	if err != nil {
		return 0
	}
	return value
}

func isValidUUID(value string) bool {
	_, err := uuid.Parse(value)
	return err == nil
}

func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, err error) {
	status, msg := mapError(err)
	if status == http.StatusInternalServerError {
		log.Printf("request error method=%s path=%s request_id=%s: %v", r.Method, r.URL.Path, requestIDFromRequest(r), err)
	}
	writeError(w, requestIDFromRequest(r), status, msg)
}

func mapError(err error) (int, string) {
	var validation store.ValidationError
	switch {
	case errors.As(err, &validation):
		return http.StatusBadRequest, validation.Message
	case errors.Is(err, store.ErrInvalidRecommendation):
		return http.StatusBadRequest, "recommendation must be APPROVE, REJECT, ESCALATE or NEED_MORE_INFO"
	case errors.Is(err, store.ErrBranchRequired):
		return http.StatusBadRequest, "user must be assigned to a branch"
	case errors.Is(err, store.ErrATMNotFound):
		return http.StatusNotFound, "ATM not found"
	case errors.Is(err, store.ErrDeviceNotFound):
		return http.StatusNotFound, "device not found"
	case errors.Is(err, store.ErrServiceNotFound):
		return http.StatusNotFound, "ATM claim service not configured"
	case errors.Is(err, store.ErrClaimNotFound):
		return http.StatusNotFound, "claim not found"
	case errors.Is(err, store.ErrAttachmentNotFound):
		return http.StatusNotFound, "attachment not found"
	case errors.Is(err, store.ErrSessionNotFound), errors.Is(err, store.ErrAPIKeyInvalid):
		return http.StatusUnauthorized, "unauthorized"
	case errors.Is(err, store.ErrAccessDenied):
		return http.StatusForbidden, "access denied"
	case errors.Is(err, store.ErrVerificationLocked):
		return http.StatusConflict, "verification already completed"
	case errors.Is(err, store.ErrInvalidInput):
		return http.StatusBadRequest, "invalid input"
	default:
		return http.StatusInternalServerError, "internal server error"
	}
}

func writeError(w http.ResponseWriter, requestID string, status int, message string) {
	writeJSON(w, status, errorResponse{RequestID: requestID, Error: message})
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(payload)
}

func writeSuccess(w http.ResponseWriter, status int, data interface{}) {
	writeJSON(w, status, successResponse{Success: true, Data: data})
}
