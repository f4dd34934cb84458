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
	"golang.org/x/sync/errgroup"
)

const ingestLockKey = "atm_ingest"

func (s *Store) ListDevices(ctx context.Context, filter store.MonitorFilter) (models.MonitorPage, error) {
	page, limit := store.NormalizePage(filter.Page, filter.Limit, store.DefaultMonitorLimit, store.MaxMonitorLimit)
	where, args := deviceFilterClause(filter)

	var (
		devices []models.ATMDevice
		total   int
		summary models.MonitorSummary
		last    *models.IngestBatch
	)
	group, gctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		row := s.pool.QueryRow(gctx, `SELECT COUNT(*) FROM atm_devices d`+where, args...)
		return row.Scan(&total)
	})
	group.Go(func() error {
		pageArgs := append(append([]interface{}{}, args...), limit, (page-1)*limit)
		query := fmt.Sprintf(`
			SELECT d.id, d.device_id, d.location, d.last_seen_at
			FROM atm_devices d%s
			ORDER BY d.device_id ASC
			LIMIT $%d OFFSET $%d
		`, where, len(args)+1, len(args)+2)
		rows, err := s.pool.Query(gctx, query, pageArgs...)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var device models.ATMDevice
			var lastSeen sql.NullTime
			if err := rows.Scan(&device.ID, &device.DeviceID, &device.Location, &lastSeen); err != nil {
				return err
			}
			device.LastSeenAt = nullTimePtr(lastSeen)
			devices = append(devices, device)
		}
		return rows.Err()
	})
	group.Go(func() error {
		var err error
		summary, err = s.fleetSummary(gctx)
		return err
	})
	group.Go(func() error {
		var err error
		last, err = s.lastIngestBatch(gctx)
		return err
	})
	if err := group.Wait(); err != nil {
		return models.MonitorPage{}, err
	}

	ids := make([]string, 0, len(devices))
	for _, device := range devices {
		ids = append(ids, device.DeviceID)
	}
	active, err := s.activeAlarmsFor(ctx, ids)
	if err != nil {
		return models.MonitorPage{}, err
	}
	if devices == nil {
		devices = []models.ATMDevice{}
	}
	for i := range devices {
		alarms := active[devices[i].DeviceID]
		if alarms == nil {
			alarms = []models.Alarm{}
		}
		devices[i].CurrentAlarms = alarms
		devices[i].Status = store.DeriveDeviceStatus(len(alarms))
	}

	return models.MonitorPage{
		Devices:    devices,
		Summary:    summary,
		LastUpdate: last,
		Pagination: store.NewPagination(page, limit, total),
	}, nil
}

func deviceFilterClause(filter store.MonitorFilter) (string, []interface{}) {
	var conditions []string
	var args []interface{}
	if search := strings.TrimSpace(filter.Search); search != "" {
		args = append(args, "%"+escapeLike(search)+"%")
		conditions = append(conditions, fmt.Sprintf("(d.device_id ILIKE $%d OR d.location ILIKE $%d)", len(args), len(args)))
	}
	switch store.NormalizeDeviceStatus(filter.Status) {
	case models.DeviceStatusAlarm:
		conditions = append(conditions, "EXISTS (SELECT 1 FROM atm_alarms a WHERE a.device_id = d.device_id AND a.cleared_at IS NULL)")
	case models.DeviceStatusOnline:
		conditions = append(conditions, "NOT EXISTS (SELECT 1 FROM atm_alarms a WHERE a.device_id = d.device_id AND a.cleared_at IS NULL)")
	}
	if alarmType := strings.TrimSpace(filter.AlarmType); alarmType != "" {
		args = append(args, alarmType)
		// Alarm types keep the feed's spelling; the filter matches any case.
		conditions = append(conditions, fmt.Sprintf("EXISTS (SELECT 1 FROM atm_alarms a WHERE a.device_id = d.device_id AND a.cleared_at IS NULL AND UPPER(a.alarm_type) = UPPER($%d))", len(args)))
	}
	if len(conditions) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conditions, " AND "), args
}

// fleetSummary always covers every device, regardless of the list filter.
func (s *Store) fleetSummary(ctx context.Context) (models.MonitorSummary, error) {
	var summary models.MonitorSummary
	row := s.pool.QueryRow(ctx, `
		SELECT
			(SELECT COUNT(*) FROM atm_devices),
			(SELECT COUNT(DISTINCT device_id) FROM atm_alarms WHERE cleared_at IS NULL)
	`)
	if err := row.Scan(&summary.TotalDevices, &summary.AlarmingDevices); err != nil {
		return models.MonitorSummary{}, err
	}
	summary.OnlineDevices = summary.TotalDevices - summary.AlarmingDevices
	if summary.OnlineDevices < 0 {
		summary.OnlineDevices = 0
	}

	rows, err := s.pool.Query(ctx, `
		SELECT alarm_type, COUNT(*)
		FROM atm_alarms
		WHERE cleared_at IS NULL
		GROUP BY alarm_type
	`)
	if err != nil {
		return models.MonitorSummary{}, err
	}
	defer rows.Close()
	counts := make(map[string]int)
	for rows.Next() {
		var alarmType string
		var count int
		if err := rows.Scan(&alarmType, &count); err != nil {
			return models.MonitorSummary{}, err
		}
		counts[alarmType] = count
	}
	if err := rows.Err(); err != nil {
		return models.MonitorSummary{}, err
	}
	summary.AlarmTypeBreakdown = store.SortAlarmTypeCounts(counts)
	return summary, nil
}

func (s *Store) lastIngestBatch(ctx context.Context) (*models.IngestBatch, error) {
	var batch models.IngestBatch
	row := s.pool.QueryRow(ctx, `
		SELECT id, snapshot_at, received_at, alarm_count, processed_count, devices_alarming, devices_cleared
		FROM atm_ingest_batches
		ORDER BY received_at DESC
		LIMIT 1
	`)
	if err := row.Scan(&batch.ID, &batch.Timestamp, &batch.ReceivedAt, &batch.AlarmCount, &batch.ProcessedCount, &batch.DevicesAlarming, &batch.DevicesCleared); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &batch, nil
}

func (s *Store) activeAlarmsFor(ctx context.Context, deviceIDs []string) (map[string][]models.Alarm, error) {
	result := make(map[string][]models.Alarm)
	if len(deviceIDs) == 0 {
		return result, nil
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id, device_id, alarm_type, location, occurred_at, cleared_at
		FROM atm_alarms
		WHERE device_id = ANY($1) AND cleared_at IS NULL
		ORDER BY occurred_at DESC
	`, deviceIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		alarm, err := scanAlarm(rows)
		if err != nil {
			return nil, err
		}
		result[alarm.DeviceID] = append(result[alarm.DeviceID], alarm)
	}
	return result, rows.Err()
}

func scanAlarm(row pgx.Row) (models.Alarm, error) {
	var alarm models.Alarm
	var clearedAt sql.NullTime
	if err := row.Scan(&alarm.ID, &alarm.DeviceID, &alarm.AlarmType, &alarm.Location, &alarm.OccurredAt, &clearedAt); err != nil {
		return models.Alarm{}, err
	}
	alarm.OccurredAt = alarm.OccurredAt.UTC()
	alarm.ClearedAt = nullTimePtr(clearedAt)
	alarm.Duration = store.AlarmDuration(alarm.OccurredAt, alarm.ClearedAt)
	return alarm, nil
}

func (s *Store) GetDeviceHistory(ctx context.Context, deviceID string, limit int) (models.DeviceHistory, error) {
	if limit <= 0 || limit > store.DeviceHistoryLimit {
		limit = store.DeviceHistoryLimit
	}
	var device models.ATMDevice
	var lastSeen sql.NullTime
	row := s.pool.QueryRow(ctx, `
		SELECT id, device_id, location, last_seen_at
		FROM atm_devices
		WHERE device_id = $1
	`, deviceID)
	if err := row.Scan(&device.ID, &device.DeviceID, &device.Location, &lastSeen); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.DeviceHistory{}, store.ErrDeviceNotFound
		}
		return models.DeviceHistory{}, err
	}
	device.LastSeenAt = nullTimePtr(lastSeen)

	active, err := s.activeAlarmsFor(ctx, []string{deviceID})
	if err != nil {
		return models.DeviceHistory{}, err
	}
	device.CurrentAlarms = active[deviceID]
	if device.CurrentAlarms == nil {
		device.CurrentAlarms = []models.Alarm{}
	}
	device.Status = store.DeriveDeviceStatus(len(device.CurrentAlarms))

	rows, err := s.pool.Query(ctx, `
		SELECT id, device_id, alarm_type, location, occurred_at, cleared_at
		FROM atm_alarms
		WHERE device_id = $1
		ORDER BY occurred_at DESC
		LIMIT $2
	`, deviceID, limit)
	if err != nil {
		return models.DeviceHistory{}, err
	}
	defer rows.Close()
	history := []models.Alarm{}
	for rows.Next() {
		alarm, err := scanAlarm(rows)
		if err != nil {
			return models.DeviceHistory{}, err
		}
		history = append(history, alarm)
	}
	if err := rows.Err(); err != nil {
		return models.DeviceHistory{}, err
	}
	return models.DeviceHistory{Device: device, RecentHistory: history}, nil
}

// IngestSnapshot applies a full alarm snapshot in one transaction. Ingests are
// serialized so two snapshots never diff against the same active set.
func (s *Store) IngestSnapshot(ctx context.Context, snapshot store.Snapshot) (result store.IngestResult, err error) {
	receivedAt := time.Now().UTC()
	rawAlarmCount := len(snapshot.Alarms)
	snapshot, err = store.NormalizeSnapshot(snapshot, receivedAt)
	if err != nil {
		return store.IngestResult{}, err
	}
	source := snapshot.Source
	if source == "" {
		source = "api"
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return store.IngestResult{}, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	if _, err = tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, ingestLockKey); err != nil {
		return store.IngestResult{}, err
	}

	for _, device := range snapshot.Devices {
		if _, err = tx.Exec(ctx, `
			INSERT INTO atm_devices (id, device_id, location, status, last_seen_at)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (device_id) DO UPDATE SET
				location = COALESCE(NULLIF(EXCLUDED.location, ''), atm_devices.location),
				last_seen_at = GREATEST(atm_devices.last_seen_at, EXCLUDED.last_seen_at)
		`, uuid.NewString(), device.DeviceID, device.Location, models.DeviceStatusOnline, snapshot.Timestamp); err != nil {
			return store.IngestResult{}, err
		}
	}

	active, err := lockActiveAlarms(ctx, tx)
	if err != nil {
		return store.IngestResult{}, err
	}
	plan := store.DiffAlarms(active, snapshot.Alarms)
	batchID := uuid.NewString()

	for _, alarm := range plan.Open {
		if _, err = tx.Exec(ctx, `
			INSERT INTO atm_alarms (id, device_id, alarm_type, location, occurred_at, batch_id)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, uuid.NewString(), alarm.DeviceID, alarm.AlarmType, alarm.Location, alarm.OccurredAt.UTC(), batchID); err != nil {
			return store.IngestResult{}, err
		}
	}
	if len(plan.Clear) > 0 {
		ids := make([]string, 0, len(plan.Clear))
		for _, alarm := range plan.Clear {
			ids = append(ids, alarm.ID)
		}
		if _, err = tx.Exec(ctx, `
			UPDATE atm_alarms SET cleared_at = $1 WHERE id = ANY($2) AND cleared_at IS NULL
		`, snapshot.Timestamp, ids); err != nil {
			return store.IngestResult{}, err
		}
	}

	if _, err = tx.Exec(ctx, `
		UPDATE atm_devices d SET status = CASE
			WHEN EXISTS (SELECT 1 FROM atm_alarms a WHERE a.device_id = d.device_id AND a.cleared_at IS NULL) THEN $1
			ELSE $2
		END
	`, models.DeviceStatusAlarm, models.DeviceStatusOnline); err != nil {
		return store.IngestResult{}, err
	}

	batch := models.IngestBatch{
		ID:              batchID,
		Timestamp:       snapshot.Timestamp,
		ReceivedAt:      receivedAt,
		AlarmCount:      rawAlarmCount,
		ProcessedCount:  len(plan.Open) + plan.Kept,
		DevicesAlarming: plan.DevicesAlarming,
		DevicesCleared:  plan.DevicesCleared,
	}
	if _, err = tx.Exec(ctx, `
		INSERT INTO atm_ingest_batches (id, snapshot_at, received_at, source, alarm_count, processed_count, devices_alarming, devices_cleared)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, batch.ID, batch.Timestamp, batch.ReceivedAt, source, batch.AlarmCount, batch.ProcessedCount, batch.DevicesAlarming, batch.DevicesCleared); err != nil {
		return store.IngestResult{}, err
	}

	if err = tx.Commit(ctx); err != nil {
		return store.IngestResult{}, err
	}
	return store.IngestResult{
		Batch:        batch,
		Opened:       len(plan.Open),
		Cleared:      len(plan.Clear),
		ActiveAlarms: batch.ProcessedCount,
	}, nil
}

func lockActiveAlarms(ctx context.Context, tx pgx.Tx) ([]store.ActiveAlarm, error) {
	rows, err := tx.Query(ctx, `
		SELECT id, device_id, alarm_type
		FROM atm_alarms
		WHERE cleared_at IS NULL
		FOR UPDATE
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var active []store.ActiveAlarm
	for rows.Next() {
		var alarm store.ActiveAlarm
		if err := rows.Scan(&alarm.ID, &alarm.DeviceID, &alarm.AlarmType); err != nil {
			return nil, err
		}
		active = append(active, alarm)
	}
	return active, rows.Err()
}
