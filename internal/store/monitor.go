package store

import (
	"sort"
	"strings"
	"time"

	"servicedesk/internal/models"
)

const (
	DefaultMonitorLimit = 50
	MaxMonitorLimit     = 1000
	DeviceHistoryLimit  = 100

	// MaxPage keeps (page-1)*limit far from overflowing an OFFSET.
	MaxPage = 100000
)

type ActiveAlarm struct {
	ID        string
	DeviceID  string
	AlarmType string
}

// AlarmPlan is what an ingest snapshot changes relative to the stored active alarms.
type AlarmPlan struct {
	Open            []SnapshotAlarm
	Clear           []ActiveAlarm
	Kept            int
	DevicesAlarming int
	DevicesCleared  int
}

func alarmKey(deviceID, alarmType string) string {
	return deviceID + "|" + alarmType
}

// DiffAlarms treats the snapshot as the complete set of active alarms.
func DiffAlarms(active []ActiveAlarm, snapshot []SnapshotAlarm) AlarmPlan {
	var plan AlarmPlan
	activeKeys := make(map[string]bool, len(active))
	for _, alarm := range active {
		activeKeys[alarmKey(alarm.DeviceID, alarm.AlarmType)] = true
	}

	wanted := make(map[string]bool, len(snapshot))
	alarmingDevices := make(map[string]bool)
	for _, alarm := range snapshot {
		key := alarmKey(alarm.DeviceID, alarm.AlarmType)
		if wanted[key] {
			continue
		}
		wanted[key] = true
		alarmingDevices[alarm.DeviceID] = true
		if activeKeys[key] {
			plan.Kept++
			continue
		}
		plan.Open = append(plan.Open, alarm)
	}

	clearedDevices := make(map[string]bool)
	for _, alarm := range active {
		if wanted[alarmKey(alarm.DeviceID, alarm.AlarmType)] {
			continue
		}
		plan.Clear = append(plan.Clear, alarm)
		if !alarmingDevices[alarm.DeviceID] {
			clearedDevices[alarm.DeviceID] = true
		}
	}
	plan.DevicesAlarming = len(alarmingDevices)
	plan.DevicesCleared = len(clearedDevices)
	return plan
}

// NormalizeSnapshot trims identifiers, fills timestamps and makes sure every
// alarming device is also listed as a device.
func NormalizeSnapshot(snapshot Snapshot, now time.Time) (Snapshot, error) {
	if snapshot.Timestamp.IsZero() {
		snapshot.Timestamp = now.UTC()
	}
	seen := make(map[string]int)
	devices := make([]SnapshotDevice, 0, len(snapshot.Devices))
	for _, device := range snapshot.Devices {
		device.DeviceID = strings.TrimSpace(device.DeviceID)
		device.Location = strings.TrimSpace(device.Location)
		if device.DeviceID == "" {
			return Snapshot{}, invalid("device_id is required for every device")
		}
		if idx, ok := seen[device.DeviceID]; ok {
			if device.Location != "" {
				devices[idx].Location = device.Location
			}
			continue
		}
		seen[device.DeviceID] = len(devices)
		devices = append(devices, device)
	}

	alarms := make([]SnapshotAlarm, 0, len(snapshot.Alarms))
	for _, alarm := range snapshot.Alarms {
		alarm.DeviceID = strings.TrimSpace(alarm.DeviceID)
		alarm.AlarmType = strings.TrimSpace(alarm.AlarmType)
		alarm.Location = strings.TrimSpace(alarm.Location)
		if alarm.DeviceID == "" || alarm.AlarmType == "" {
			return Snapshot{}, invalid("device_id and alarm_type are required for every alarm")
		}
		if alarm.OccurredAt.IsZero() {
			alarm.OccurredAt = snapshot.Timestamp
		}
		if _, ok := seen[alarm.DeviceID]; !ok {
			seen[alarm.DeviceID] = len(devices)
			devices = append(devices, SnapshotDevice{DeviceID: alarm.DeviceID, Location: alarm.Location})
		} else if alarm.Location != "" && devices[seen[alarm.DeviceID]].Location == "" {
			devices[seen[alarm.DeviceID]].Location = alarm.Location
		}
		alarms = append(alarms, alarm)
	}
	snapshot.Devices = devices
	snapshot.Alarms = alarms
	return snapshot, nil
}

func DeriveDeviceStatus(activeAlarms int) string {
	if activeAlarms > 0 {
		return models.DeviceStatusAlarm
	}
	return models.DeviceStatusOnline
}

// AlarmDuration is the cleared-minus-occurred time in whole seconds, nil while active.
func AlarmDuration(occurredAt time.Time, clearedAt *time.Time) *int64 {
	if clearedAt == nil {
		return nil
	}
	seconds := int64(clearedAt.Sub(occurredAt) / time.Second)
	if seconds < 0 {
		seconds = 0
	}
	return &seconds
}

func SortAlarmTypeCounts(counts map[string]int) []models.AlarmTypeCount {
	breakdown := make([]models.AlarmTypeCount, 0, len(counts))
	for alarmType, count := range counts {
		breakdown = append(breakdown, models.AlarmTypeCount{AlarmType: alarmType, Count: count})
	}
	sort.Slice(breakdown, func(i, j int) bool {
		if breakdown[i].Count != breakdown[j].Count {
			return breakdown[i].Count > breakdown[j].Count
		}
		return breakdown[i].AlarmType < breakdown[j].AlarmType
	})
	return breakdown
}

func NormalizePage(page, limit, defaultLimit, maxLimit int) (int, int) {
	if page < 1 {
		page = 1
	}
	if page > MaxPage {
		page = MaxPage
	}
	if limit <= 0 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	return page, limit
}

func NewPagination(page, limit, total int) models.Pagination {
	pages := 0
	if limit > 0 {
		pages = (total + limit - 1) / limit
	}
	return models.Pagination{Page: page, Limit: limit, TotalCount: total, TotalPages: pages}
}

func NormalizeDeviceStatus(status string) string {
	switch strings.ToUpper(strings.TrimSpace(status)) {
	case models.DeviceStatusAlarm:
		return models.DeviceStatusAlarm
	case models.DeviceStatusOnline:
		return models.DeviceStatusOnline
	}
	return ""
}
