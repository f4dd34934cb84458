package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"servicedesk/internal/models"
	"servicedesk/internal/omni"
	"servicedesk/internal/realtime"
	"servicedesk/internal/store"
)

const (
	testClaimID      = "aaaaaaaa-aaaa-aaaa-aaaa-aaaaaaaaaaaa"
	testAttachmentID = "bbbbbbbb-bbbb-bbbb-bbbb-bbbbbbbbbbbb"
	testToken        = "session-token"
)

type fakeStore struct {
	sessionFn           func(ctx context.Context, sessionID string) (store.Session, error)
	listDevicesFn       func(ctx context.Context, filter store.MonitorFilter) (models.MonitorPage, error)
	deviceHistoryFn     func(ctx context.Context, deviceID string, limit int) (models.DeviceHistory, error)
	ingestFn            func(ctx context.Context, snapshot store.Snapshot) (store.IngestResult, error)
	verifyAPIKeyFn      func(ctx context.Context, keyID, secret string) (store.APIKey, error)
	lookupATMFn         func(ctx context.Context, code string) (models.ATM, error)
	createClaimFn       func(ctx context.Context, input store.CreateClaimInput) (store.CreateClaimResult, error)
	listClaimsFn        func(ctx context.Context, filter store.ClaimFilter) ([]models.Claim, int, error)
	claimStatsFn        func(ctx context.Context, filter store.ClaimFilter) (models.ClaimStatistics, error)
	claimAccessFn       func(ctx context.Context, claimID string) (store.TicketAccess, error)
	getVerificationFn   func(ctx context.Context, claimID string) (*models.Verification, error)
	updateVerifyFn      func(ctx context.Context, input store.UpdateVerificationInput) (models.Verification, models.Claim, error)
	addAttachmentFn     func(ctx context.Context, input store.AttachmentInput) (models.Attachment, error)
	getAttachmentFn     func(ctx context.Context, claimID, attachmentID string) (models.Attachment, store.TicketAccess, error)
	claimEventsFn       func(ctx context.Context, claimID string) ([]store.ClaimEvent, error)
	recordOmniFn        func(ctx context.Context, claimID, omniTicketID, omniTicketNumber string) error
	markUnconfirmedFn   func(ctx context.Context, claimID string) error
	pcAssetsFn          func(ctx context.Context, filter store.PCAssetFilter) ([]models.PCAsset, error)
	transactionClaimsFn func(ctx context.Context, filter store.TransactionClaimFilter) ([]models.Claim, error)
}

func (f fakeStore) GetSession(ctx context.Context, sessionID string) (store.Session, error) {
	if f.sessionFn == nil {
		return store.Session{}, store.ErrSessionNotFound
	}
	return f.sessionFn(ctx, sessionID)
}

func (f fakeStore) ListDevices(ctx context.Context, filter store.MonitorFilter) (models.MonitorPage, error) {
	if f.listDevicesFn == nil {
		return models.MonitorPage{}, nil
	}
	return f.listDevicesFn(ctx, filter)
}

func (f fakeStore) GetDeviceHistory(ctx context.Context, deviceID string, limit int) (models.DeviceHistory, error) {
	if f.deviceHistoryFn == nil {
		return models.DeviceHistory{}, nil
	}
	return f.deviceHistoryFn(ctx, deviceID, limit)
}

func (f fakeStore) IngestSnapshot(ctx context.Context, snapshot store.Snapshot) (store.IngestResult, error) {
	if f.ingestFn == nil {
		return store.IngestResult{}, nil
	}
	return f.ingestFn(ctx, snapshot)
}

func (f fakeStore) VerifyAPIKey(ctx context.Context, keyID, secret string) (store.APIKey, error) {
	if f.verifyAPIKeyFn == nil {
		return store.APIKey{}, store.ErrAPIKeyInvalid
	}
	return f.verifyAPIKeyFn(ctx, keyID, secret)
}

func (f fakeStore) LookupATM(ctx context.Context, code string) (models.ATM, error) {
	if f.lookupATMFn == nil {
		return models.ATM{}, nil
	}
	return f.lookupATMFn(ctx, code)
}

func (f fakeStore) CreateClaim(ctx context.Context, input store.CreateClaimInput) (store.CreateClaimResult, error) {
	if f.createClaimFn == nil {
		return store.CreateClaimResult{}, nil
	}
	return f.createClaimFn(ctx, input)
}

func (f fakeStore) ListClaims(ctx context.Context, filter store.ClaimFilter) ([]models.Claim, int, error) {
	if f.listClaimsFn == nil {
		return nil, 0, nil
	}
	return f.listClaimsFn(ctx, filter)
}

func (f fakeStore) ClaimStatistics(ctx context.Context, filter store.ClaimFilter) (models.ClaimStatistics, error) {
	if f.claimStatsFn == nil {
		return models.ClaimStatistics{}, nil
	}
	return f.claimStatsFn(ctx, filter)
}

func (f fakeStore) GetClaimAccess(ctx context.Context, claimID string) (store.TicketAccess, error) {
	if f.claimAccessFn == nil {
		return store.TicketAccess{}, store.ErrClaimNotFound
	}
	return f.claimAccessFn(ctx, claimID)
}

func (f fakeStore) GetVerification(ctx context.Context, claimID string) (*models.Verification, error) {
	if f.getVerificationFn == nil {
		return nil, nil
	}
	return f.getVerificationFn(ctx, claimID)
}

func (f fakeStore) UpdateVerification(ctx context.Context, input store.UpdateVerificationInput) (models.Verification, models.Claim, error) {
	if f.updateVerifyFn == nil {
		return models.Verification{}, models.Claim{}, nil
	}
	return f.updateVerifyFn(ctx, input)
}

func (f fakeStore) AddAttachment(ctx context.Context, input store.AttachmentInput) (models.Attachment, error) {
	if f.addAttachmentFn == nil {
		return models.Attachment{}, nil
	}
	return f.addAttachmentFn(ctx, input)
}

func (f fakeStore) GetAttachment(ctx context.Context, claimID, attachmentID string) (models.Attachment, store.TicketAccess, error) {
	if f.getAttachmentFn == nil {
		return models.Attachment{}, store.TicketAccess{}, store.ErrAttachmentNotFound
	}
	return f.getAttachmentFn(ctx, claimID, attachmentID)
}

func (f fakeStore) ListClaimEvents(ctx context.Context, claimID string) ([]store.ClaimEvent, error) {
	if f.claimEventsFn == nil {
		return nil, nil
	}
	return f.claimEventsFn(ctx, claimID)
}

func (f fakeStore) RecordOmniTicket(ctx context.Context, claimID, omniTicketID, omniTicketNumber string) error {
	if f.recordOmniFn == nil {
		return nil
	}
	return f.recordOmniFn(ctx, claimID, omniTicketID, omniTicketNumber)
}

func (f fakeStore) MarkOmniUnconfirmed(ctx context.Context, claimID string) error {
	if f.markUnconfirmedFn == nil {
		return nil
	}
	return f.markUnconfirmedFn(ctx, claimID)
}

func (f fakeStore) ListPCAssets(ctx context.Context, filter store.PCAssetFilter) ([]models.PCAsset, error) {
	if f.pcAssetsFn == nil {
		return nil, nil
	}
	return f.pcAssetsFn(ctx, filter)
}

func (f fakeStore) ListTransactionClaims(ctx context.Context, filter store.TransactionClaimFilter) ([]models.Claim, error) {
	if f.transactionClaimsFn == nil {
		return []models.Claim{}, nil
	}
	return f.transactionClaimsFn(ctx, filter)
}

type publishedEvent struct {
	eventType string
	target    realtime.Target
	payload   interface{}
}

type fakePublisher struct {
	events []publishedEvent
}

func (p *fakePublisher) Publish(eventType string, target realtime.Target, payload interface{}) {
	p.events = append(p.events, publishedEvent{eventType: eventType, target: target, payload: payload})
}

type fakeCache struct {
	hits map[string][]byte
	puts map[string][]byte
}

func (c *fakeCache) Get(ctx context.Context, query string) (string, []byte, bool) {
	key := "monitor:" + query
	body, ok := c.hits[key]
	return key, body, ok
}

func (c *fakeCache) Put(ctx context.Context, key string, body []byte) {
	if c.puts == nil {
		c.puts = map[string][]byte{}
	}
	c.puts[key] = body
}

type fakeRecorder struct {
	created      int
	interBranch  int
	mirrors      chan string
	verification int
}

func (r *fakeRecorder) ClaimCreated(interBranch bool) {
	r.created++
	if interBranch {
		r.interBranch++
	}
}

func (r *fakeRecorder) OmniMirror(result string) {
	if r.mirrors != nil {
		r.mirrors <- result
	}
}

func (r *fakeRecorder) VerificationUpdated() {
	r.verification++
}

type fakeOmni struct {
	enabled  bool
	mirrorFn func(ctx context.Context, claim models.Claim) (omni.Ticket, error)
	statusFn func(ctx context.Context, omniTicketID, ticketNumber, status string) error
}

func (o fakeOmni) Enabled() bool {
	return o.enabled
}

func (o fakeOmni) Mirror(ctx context.Context, claim models.Claim) (omni.Ticket, error) {
	if o.mirrorFn == nil {
		return omni.Ticket{}, nil
	}
	return o.mirrorFn(ctx, claim)
}

func (o fakeOmni) UpdateStatus(ctx context.Context, omniTicketID, ticketNumber, status string) error {
	if o.statusFn == nil {
		return nil
	}
	return o.statusFn(ctx, omniTicketID, ticketNumber, status)
}

func withSession(st fakeStore, session store.Session) fakeStore {
	st.sessionFn = func(ctx context.Context, sessionID string) (store.Session, error) {
		if sessionID != testToken {
			return store.Session{}, store.ErrSessionNotFound
		}
		session.SessionID = sessionID
		return session, nil
	}
	return st
}

func serve(st fakeStore, options Options, req *http.Request) *httptest.ResponseRecorder {
	h := NewHandler(st, options)
	resp := httptest.NewRecorder()
	AuthMiddleware(st, h.Routes()).ServeHTTP(resp, req)
	return resp
}

func authed(method, target string, body []byte) *http.Request {
	var req *http.Request
	if body == nil {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, bytes.NewReader(body))
	}
	req.Header.Set("Authorization", "Bearer "+testToken)
	req.Header.Set("X-Request-ID", "req-1")
	return req
}

func decodeBody(t *testing.T, resp *httptest.ResponseRecorder, target interface{}) {
	t.Helper()
	if err := json.NewDecoder(resp.Body).Decode(target); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

func adminSession() store.Session {
	return store.Session{UserID: "admin-1", Name: "Admin", Role: store.RoleAdmin, BranchID: "branch-1"}
}

func TestHealthIsPublic(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	resp := serve(fakeStore{}, Options{}, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.Code)
	}
}

func TestMissingSessionUnauthorized(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/monitoring/atm", nil)
	req.Header.Set("X-Request-ID", "req-42")
	resp := serve(fakeStore{}, Options{}, req)
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d", resp.Code)
	}
	var body errorResponse
	decodeBody(t, resp, &body)
	if body.RequestID != "req-42" || body.Error == "" {
		t.Fatalf("unexpected error body: %+v", body)
	}
}

func TestInvalidSessionUnauthorized(t *testing.T) {
	st := withSession(fakeStore{}, adminSession())
	req := httptest.NewRequest(http.MethodGet, "/api/monitoring/atm", nil)
	req.Header.Set("X-Session-ID", "someone-else")
	resp := serve(st, Options{}, req)
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d", resp.Code)
	}
}

func TestSessionLookupFailureIsInternal(t *testing.T) {
	st := fakeStore{sessionFn: func(ctx context.Context, sessionID string) (store.Session, error) {
		return store.Session{}, errors.New("db down")
	}}
	resp := serve(st, Options{}, authed(http.MethodGet, "/api/monitoring/atm", nil))
	if resp.Code != http.StatusInternalServerError {
		t.Fatalf("expected status 500, got %d", resp.Code)
	}
}

func TestUnknownRouteNotFound(t *testing.T) {
	st := withSession(fakeStore{}, adminSession())
	resp := serve(st, Options{}, authed(http.MethodGet, "/api/nope", nil))
	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", resp.Code)
	}
}

func TestListDevicesWrapsPageAndCaches(t *testing.T) {
	var got store.MonitorFilter
	st := withSession(fakeStore{
		listDevicesFn: func(ctx context.Context, filter store.MonitorFilter) (models.MonitorPage, error) {
			got = filter
			return models.MonitorPage{
				Devices: []models.ATMDevice{{DeviceID: "ATM-001", Status: models.DeviceStatusAlarm}},
				Summary: models.MonitorSummary{TotalDevices: 1, AlarmingDevices: 1},
			}, nil
		},
	}, adminSession())
	cache := &fakeCache{}

	resp := serve(st, Options{Cache: cache}, authed(http.MethodGet, "/api/monitoring/atm?status=alarm&limit=5000&search=Mall", nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.Code)
	}
	if got.Status != models.DeviceStatusAlarm || got.Limit != store.MaxMonitorLimit || got.Page != 1 || got.Search != "Mall" {
		t.Fatalf("unexpected filter: %+v", got)
	}
	if resp.Header().Get("X-Cache") != "" {
		t.Fatalf("expected cache miss, got %q", resp.Header().Get("X-Cache"))
	}

	var body struct {
		Success bool               `json:"success"`
		Data    models.MonitorPage `json:"data"`
	}
	decodeBody(t, resp, &body)
	if !body.Success || len(body.Data.Devices) != 1 || body.Data.Summary.TotalDevices != 1 {
		t.Fatalf("unexpected body: %+v", body)
	}
	if len(cache.puts) != 1 {
		t.Fatalf("expected one cache write, got %d", len(cache.puts))
	}
}

func TestListDevicesServesCacheHit(t *testing.T) {
	st := withSession(fakeStore{
		listDevicesFn: func(ctx context.Context, filter store.MonitorFilter) (models.MonitorPage, error) {
			t.Fatal("store should not be queried on cache hit")
			return models.MonitorPage{}, nil
		},
	}, adminSession())
	filter := store.MonitorFilter{Page: 1, Limit: store.DefaultMonitorLimit}
	cache := &fakeCache{hits: map[string][]byte{
		"monitor:" + monitorCacheQuery(filter): []byte(`{"success":true,"data":{"devices":[]}}`),
	}}

	resp := serve(st, Options{Cache: cache}, authed(http.MethodGet, "/api/monitoring/atm", nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.Code)
	}
	if resp.Header().Get("X-Cache") != "HIT" {
		t.Fatalf("expected cache hit header")
	}
	if !strings.Contains(resp.Body.String(), `"devices":[]`) {
		t.Fatalf("unexpected body: %s", resp.Body.String())
	}
}

func TestMonitorCacheQueryIgnoresSearchCase(t *testing.T) {
	a := monitorCacheQuery(store.MonitorFilter{Search: "Mall", Page: 1, Limit: 10})
	b := monitorCacheQuery(store.MonitorFilter{Search: "mall", Page: 1, Limit: 10})
	if a != b {
		t.Fatalf("expected equal cache queries, got %q and %q", a, b)
	}
}

func TestListDevicesKeepsAlarmTypeSpelling(t *testing.T) {
	var got store.MonitorFilter
	st := withSession(fakeStore{
		listDevicesFn: func(ctx context.Context, filter store.MonitorFilter) (models.MonitorPage, error) {
			got = filter
			return models.MonitorPage{}, nil
		},
	}, adminSession())

	resp := serve(st, Options{}, authed(http.MethodGet, "/api/monitoring/atm?alarmType=%20Printer%20Error%20", nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.Code)
	}
	if got.AlarmType != "Printer Error" {
		t.Fatalf("expected trimmed alarm type as sent, got %q", got.AlarmType)
	}

	a := monitorCacheQuery(store.MonitorFilter{AlarmType: "Printer Error", Page: 1, Limit: 10})
	b := monitorCacheQuery(store.MonitorFilter{AlarmType: "PRINTER ERROR", Page: 1, Limit: 10})
	if a != b {
		t.Fatalf("expected equal cache queries, got %q and %q", a, b)
	}
}

func TestDeviceHistoryNotFound(t *testing.T) {
	st := withSession(fakeStore{
		deviceHistoryFn: func(ctx context.Context, deviceID string, limit int) (models.DeviceHistory, error) {
			if limit != store.DeviceHistoryLimit {
				t.Fatalf("unexpected limit %d", limit)
			}
			return models.DeviceHistory{}, store.ErrDeviceNotFound
		},
	}, adminSession())
	resp := serve(st, Options{}, authed(http.MethodGet, "/api/monitoring/atm/ATM-404", nil))
	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", resp.Code)
	}
}

const ingestBody = `{"timestamp":"2026-01-12T08:00:00Z","devices":[{"device_id":"ATM-001","location":"Mall"}],"alarms":[{"device_id":"ATM-001","location":"Mall","alarm_type":"CASH_LOW","occurred_at":"2026-01-12T07:55:00Z"}]}`

func ingestRequest(apiKey string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/api/monitoring/atm/ingest", strings.NewReader(ingestBody))
	if apiKey != "" {
		req.Header.Set("X-API-Key", apiKey)
	}
	return req
}

func TestIngestRequiresAPIKey(t *testing.T) {
	resp := serve(fakeStore{}, Options{}, ingestRequest(""))
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d", resp.Code)
	}

	resp = serve(fakeStore{}, Options{}, ingestRequest("key-1.wrong"))
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401 for rejected key, got %d", resp.Code)
	}
}

func TestIngestRequiresPermission(t *testing.T) {
	st := fakeStore{
		verifyAPIKeyFn: func(ctx context.Context, keyID, secret string) (store.APIKey, error) {
			return store.APIKey{KeyID: keyID, Permissions: []string{"reports:read"}}, nil
		},
	}
	resp := serve(st, Options{}, ingestRequest("key-1.secret"))
	if resp.Code != http.StatusForbidden {
		t.Fatalf("expected status 403, got %d", resp.Code)
	}
}

type fakeIngestor struct {
	snapshots []store.Snapshot
}

func (i *fakeIngestor) Apply(ctx context.Context, snapshot store.Snapshot) (store.IngestResult, error) {
	i.snapshots = append(i.snapshots, snapshot)
	return store.IngestResult{
		Batch:        models.IngestBatch{ID: "batch-1", AlarmCount: len(snapshot.Alarms)},
		Opened:       1,
		ActiveAlarms: 1,
	}, nil
}

func TestIngestAppliesSnapshot(t *testing.T) {
	st := fakeStore{
		verifyAPIKeyFn: func(ctx context.Context, keyID, secret string) (store.APIKey, error) {
			if keyID != "key-1" || secret != "secret" {
				return store.APIKey{}, store.ErrAPIKeyInvalid
			}
			return store.APIKey{KeyID: keyID, Permissions: []string{permissionMonitoringIngest}}, nil
		},
	}
	ingestor := &fakeIngestor{}

	resp := serve(st, Options{Ingestor: ingestor}, ingestRequest("key-1.secret"))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", resp.Code, resp.Body.String())
	}
	if len(ingestor.snapshots) != 1 || ingestor.snapshots[0].Source != "api" {
		t.Fatalf("unexpected snapshots: %+v", ingestor.snapshots)
	}
	var body struct {
		Success bool           `json:"success"`
		Data    ingestResponse `json:"data"`
	}
	decodeBody(t, resp, &body)
	if body.Data.BatchID != "batch-1" || body.Data.AlarmCount != 1 || body.Data.Opened != 1 {
		t.Fatalf("unexpected body: %+v", body)
	}
}

func TestIngestRejectsUnknownFields(t *testing.T) {
	st := fakeStore{
		verifyAPIKeyFn: func(ctx context.Context, keyID, secret string) (store.APIKey, error) {
			return store.APIKey{KeyID: keyID, Permissions: []string{"*"}}, nil
		},
	}
	req := httptest.NewRequest(http.MethodPost, "/api/monitoring/atm/ingest", strings.NewReader(`{"devices":[],"extra":1}`))
	req.Header.Set("X-API-Key", "key-1.secret")
	resp := serve(st, Options{}, req)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", resp.Code)
	}
}

func TestLookupATM(t *testing.T) {
	st := withSession(fakeStore{
		lookupATMFn: func(ctx context.Context, code string) (models.ATM, error) {
			if code != "ATM-001" {
				return models.ATM{}, store.ErrATMNotFound
			}
			return models.ATM{ATMID: "atm-1", Code: code, BranchID: "branch-2"}, nil
		},
	}, adminSession())

	resp := serve(st, Options{}, authed(http.MethodGet, "/api/atms/lookup?code=ATM-001", nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.Code)
	}
	resp = serve(st, Options{}, authed(http.MethodGet, "/api/atms/lookup?code=ATM-999", nil))
	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", resp.Code)
	}
	resp = serve(st, Options{}, authed(http.MethodGet, "/api/atms/lookup", nil))
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", resp.Code)
	}
}

func TestRateLimiterBlocksAfterBurst(t *testing.T) {
	limiter := NewRateLimiter(RateLimitConfig{IPPerMinute: 1, IPBurst: 2, UserPerMinute: 100, UserBurst: 100})
	handler := limiter.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		resp := httptest.NewRecorder()
		handler.ServeHTTP(resp, req)
		codes = append(codes, resp.Code)
	}
	if codes[0] != http.StatusOK || codes[1] != http.StatusOK || codes[2] != http.StatusTooManyRequests {
		t.Fatalf("unexpected codes: %v", codes)
	}
}

func TestTokenLimiterSweepsIdleBuckets(t *testing.T) {
	now := time.Date(2026, 1, 12, 8, 0, 0, 0, time.UTC)
	limiter := newTokenLimiter(60, 1)
	limiter.now = func() time.Time { return now }

	limiter.allow("10.0.0.1")
	now = now.Add(bucketIdle + time.Second)
	limiter.allow("10.0.0.2")
	if _, ok := limiter.bucket["10.0.0.1"]; ok {
		t.Fatal("expected idle bucket to be swept")
	}
	if len(limiter.bucket) != 1 {
		t.Fatalf("expected 1 bucket, got %d", len(limiter.bucket))
	}
}

func TestUserRateLimiterKeysBySession(t *testing.T) {
	limiter := NewRateLimiter(RateLimitConfig{IPPerMinute: 100, IPBurst: 100, UserPerMinute: 1, UserBurst: 1})
	st := withSession(fakeStore{}, adminSession())
	handler := AuthMiddleware(st, limiter.UserMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})))

	first := httptest.NewRecorder()
	handler.ServeHTTP(first, authed(http.MethodGet, "/api/monitoring/atm", nil))
	second := httptest.NewRecorder()
	handler.ServeHTTP(second, authed(http.MethodGet, "/api/monitoring/atm", nil))
	if first.Code != http.StatusOK || second.Code != http.StatusTooManyRequests {
		t.Fatalf("unexpected codes: %d %d", first.Code, second.Code)
	}
}

type fakeObserver struct {
	statuses []int
}

func (o *fakeObserver) ObserveRequest(method string, status int, duration time.Duration) {
	o.statuses = append(o.statuses, status)
}

func TestLoggingMiddlewareObservesStatus(t *testing.T) {
	observer := &fakeObserver{}
	st := withSession(fakeStore{}, adminSession())
	handler := LoggingMiddleware(observer, AuthMiddleware(st, NewHandler(st, Options{}).Routes()))

	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/api/monitoring/atm", nil))
	if len(observer.statuses) != 1 || observer.statuses[0] != http.StatusUnauthorized {
		t.Fatalf("unexpected observed statuses: %v", observer.statuses)
	}
}

func TestMapError(t *testing.T) {
	cases := []struct {
		err    error
		status int
	}{
		{store.ValidationError{Message: "bad"}, http.StatusBadRequest},
		{store.ErrInvalidRecommendation, http.StatusBadRequest},
		{store.ErrBranchRequired, http.StatusBadRequest},
		{store.ErrATMNotFound, http.StatusNotFound},
		{fmt.Errorf("wrapped: %w", store.ErrClaimNotFound), http.StatusNotFound},
		{store.ErrAPIKeyInvalid, http.StatusUnauthorized},
		{store.ErrAccessDenied, http.StatusForbidden},
		{store.ErrVerificationLocked, http.StatusConflict},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		status, msg := mapError(tc.err)
		if status != tc.status {
			t.Fatalf("mapError(%v) = %d, want %d", tc.err, status, tc.status)
		}
		if msg == "" {
			t.Fatalf("mapError(%v) returned empty message", tc.err)
		}
	}
	if _, msg := mapError(store.ValidationError{Message: "card_last_4 must be 4 digits"}); msg != "card_last_4 must be 4 digits" {
		t.Fatalf("validation message not passed through: %q", msg)
	}
}

func TestBearerToken(t *testing.T) {
	if got := bearerToken("Bearer abc"); got != "abc" {
		t.Fatalf("expected abc, got %q", got)
	}
	if got := bearerToken("Basic abc"); got != "" {
		t.Fatalf("expected empty token, got %q", got)
	}
	if got := bearerToken("Bearer"); got != "" {
		t.Fatalf("expected empty token, got %q", got)
	}
}
