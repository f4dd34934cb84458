package ingest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"

	"servicedesk/internal/realtime"
	"servicedesk/internal/store"
)

const (
	SourceMQTT = "mqtt"
	SourceAPI  = "api"
)

type SnapshotStore interface {
	IngestSnapshot(ctx context.Context, snapshot store.Snapshot) (store.IngestResult, error)
}

type CacheInvalidator interface {
	Invalidate(ctx context.Context) error
}

type Publisher interface {
	Publish(eventType string, target realtime.Target, payload interface{})
}

type Recorder interface {
	IngestApplied(source string, activeAlarms int)
}

// Service applies ATM status snapshots and fans out the change.
type Service struct {
	store     SnapshotStore
	cache     CacheInvalidator
	publisher Publisher
	metrics   Recorder
}

func NewService(st SnapshotStore, cache CacheInvalidator, publisher Publisher, metrics Recorder) *Service {
	return &Service{store: st, cache: cache, publisher: publisher, metrics: metrics}
}

// Apply stores the snapshot. Cache, push and metric updates after the commit
// are best-effort.
func (s *Service) Apply(ctx context.Context, snapshot store.Snapshot) (store.IngestResult, error) {
	result, err := s.store.IngestSnapshot(ctx, snapshot)
	if err != nil {
		return store.IngestResult{}, err
	}
	if s.cache != nil {
		if err := s.cache.Invalidate(ctx); err != nil {
			log.Printf("monitor cache invalidate error: %v", err)
		}
	}
	if s.metrics != nil {
		s.metrics.IngestApplied(snapshot.Source, result.ActiveAlarms)
	}
	if s.publisher != nil {
		s.publisher.Publish(realtime.EventMonitorUpdated, realtime.Target{Channel: realtime.ChannelMonitor}, map[string]interface{}{
			"batch":         result.Batch,
			"opened":        result.Opened,
			"cleared":       result.Cleared,
			"active_alarms": result.ActiveAlarms,
		})
	}
	log.Printf("atm ingest source=%s batch=%s alarms=%d opened=%d cleared=%d",
		snapshot.Source, result.Batch.ID, result.Batch.AlarmCount, result.Opened, result.Cleared)
	return result, nil
}

// ParseSnapshot decodes a snapshot payload, rejecting unknown fields.
func ParseSnapshot(data []byte, source string) (store.Snapshot, error) {
	decoder := json.NewDecoder(bytes.NewReader(data))
	decoder.DisallowUnknownFields()
	var snapshot store.Snapshot
	if err := decoder.Decode(&snapshot); err != nil {
		return store.Snapshot{}, store.ValidationError{Message: fmt.Sprintf("invalid snapshot: %v", err)}
	}
	snapshot.Source = source
	return snapshot, nil
}
