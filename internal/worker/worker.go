package worker

import (
	"context"
	"errors"
	"log"
	"time"

	"servicedesk/internal/models"
	"servicedesk/internal/omni"
	"servicedesk/internal/store"
)

type Store interface {
	ListUnmirroredClaims(ctx context.Context, filter store.UnmirroredClaimFilter) ([]models.Claim, error)
	RecordOmniFailure(ctx context.Context, claimID string) (int, error)
	MarkOmniUnconfirmed(ctx context.Context, claimID string) error
}

type Mirror interface {
	Enabled() bool
	Mirror(ctx context.Context, claim models.Claim) (omni.Ticket, error)
}

type Recorder interface {
	OmniMirror(result string)
}

// Worker retries Omni mirroring for claims whose inline mirror did not land.
type Worker struct {
	store       Store
	mirror      Mirror
	metrics     Recorder
	batchSize   int
	maxAttempts int
	grace       time.Duration
	maxAge      time.Duration
	callTimeout time.Duration
	now         func() time.Time
}

// Config bounds a pass. Claims younger than Grace are left to the inline
// mirror and claims older than MaxAge are never retried.
type Config struct {
	BatchSize   int
	MaxAttempts int
	Grace       time.Duration
	MaxAge      time.Duration
	CallTimeout time.Duration
	Now         func() time.Time
}

func New(st Store, mirror Mirror, metrics Recorder, cfg Config) *Worker {
	batch := cfg.BatchSize
	if batch <= 0 {
		batch = 50
	}
	maxAttempts := cfg.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	grace := cfg.Grace
	if grace <= 0 {
		grace = 2 * time.Minute
	}
	maxAge := cfg.MaxAge
	if maxAge <= 0 {
		maxAge = 24 * time.Hour
	}
	callTimeout := cfg.CallTimeout
	if callTimeout <= 0 {
		callTimeout = 30 * time.Second
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Worker{
		store:       st,
		mirror:      mirror,
		metrics:     metrics,
		batchSize:   batch,
		maxAttempts: maxAttempts,
		grace:       grace,
		maxAge:      maxAge,
		callTimeout: callTimeout,
		now:         now,
	}
}

// Run makes one pass over pending claims and returns how many were mirrored.
func (w *Worker) Run(ctx context.Context) (int, error) {
	if w.mirror == nil || !w.mirror.Enabled() {
		return 0, nil
	}
	now := w.now()
	claims, err := w.store.ListUnmirroredClaims(ctx, store.UnmirroredClaimFilter{
		CreatedAfter:  now.Add(-w.maxAge),
		CreatedBefore: now.Add(-w.grace),
		MaxAttempts:   w.maxAttempts,
		Limit:         w.batchSize,
	})
	if err != nil {
		return 0, err
	}

	mirrored := 0
	for _, claim := range claims {
		if ctx.Err() != nil {
			return mirrored, ctx.Err()
		}
		if w.process(ctx, claim) {
			mirrored++
		}
	}
	return mirrored, nil
}

func (w *Worker) process(ctx context.Context, claim models.Claim) bool {
	callCtx, cancel := context.WithTimeout(ctx, w.callTimeout)
	_, err := w.mirror.Mirror(callCtx, claim)
	cancel()
	if err == nil {
		w.record("retry_success")
		log.Printf("omni retry mirrored claim_id=%s ticket=%s", claim.ClaimID, claim.TicketNumber)
		return true
	}

	if errors.Is(err, omni.ErrUnconfirmed) {
		w.record("retry_unconfirmed")
		markErr := w.store.MarkOmniUnconfirmed(ctx, claim.ClaimID)
		if markErr == nil {
			log.Printf("omni retry stopped claim_id=%s ticket=%s: %v", claim.ClaimID, claim.TicketNumber, err)
			return false
		}
		log.Printf("omni retry mark unconfirmed claim_id=%s: %v", claim.ClaimID, markErr)
	} else {
		w.record("retry_error")
	}
	attempts, recordErr := w.store.RecordOmniFailure(ctx, claim.ClaimID)
	if recordErr != nil {
		log.Printf("omni retry record failure claim_id=%s: %v", claim.ClaimID, recordErr)
		return false
	}
	if attempts >= w.maxAttempts {
		log.Printf("omni retry giving up claim_id=%s ticket=%s attempts=%d: %v", claim.ClaimID, claim.TicketNumber, attempts, err)
		return false
	}
	log.Printf("omni retry failed claim_id=%s ticket=%s attempts=%d: %v", claim.ClaimID, claim.TicketNumber, attempts, err)
	return false
}

func (w *Worker) record(result string) {
	if w.metrics != nil {
		w.metrics.OmniMirror(result)
	}
}

func Start(ctx context.Context, interval time.Duration, w *Worker) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			count, err := w.Run(ctx)
			if err != nil {
				log.Printf("omni retry worker error: %v", err)
				continue
			}
			if count > 0 {
				log.Printf("omni retry worker mirrored %d claims", count)
			}
		}
	}
}
