package store

import (
	"errors"
	"math"
	"testing"
	"time"

	"servicedesk/internal/models"
)

func TestDiffAlarms(t *testing.T) {
	active := []ActiveAlarm{
		{ID: "a1", DeviceID: "ATM-001", AlarmType: "PRINTER"},
		{ID: "a2", DeviceID: "ATM-001", AlarmType: "CASH_LOW"},
		{ID: "a3", DeviceID: "ATM-002", AlarmType: "COMMUNICATION"},
	}
	snapshot := []SnapshotAlarm{
		{DeviceID: "ATM-001", AlarmType: "PRINTER"},
		{DeviceID: "ATM-001", AlarmType: "PRINTER"},
		{DeviceID: "ATM-003", AlarmType: "DOOR"},
	}
	plan := DiffAlarms(active, snapshot)
	if plan.Kept != 1 {
		t.Fatalf("expected 1 kept alarm, got %d", plan.Kept)
	}
	if len(plan.Open) != 1 || plan.Open[0].DeviceID != "ATM-003" {
		t.Fatalf("expected ATM-003 door alarm to open, got %+v", plan.Open)
	}
	if len(plan.Clear) != 2 {
		t.Fatalf("expected 2 cleared alarms, got %+v", plan.Clear)
	}
	if plan.DevicesAlarming != 2 {
		t.Fatalf("expected 2 alarming devices, got %d", plan.DevicesAlarming)
	}
	if plan.DevicesCleared != 1 {
		t.Fatalf("expected only ATM-002 to be fully cleared, got %d", plan.DevicesCleared)
	}
}

func TestDiffAlarmsEmptySnapshotClearsEverything(t *testing.T) {
	active := []ActiveAlarm{{ID: "a1", DeviceID: "ATM-001", AlarmType: "PRINTER"}}
	plan := DiffAlarms(active, nil)
	if len(plan.Clear) != 1 || len(plan.Open) != 0 || plan.DevicesCleared != 1 {
		t.Fatalf("unexpected plan: %+v", plan)
	}
}

func TestNormalizeSnapshot(t *testing.T) {
	now := time.Date(2026, 1, 5, 8, 0, 0, 0, time.UTC)
	snapshot, err := NormalizeSnapshot(Snapshot{
		Devices: []SnapshotDevice{{DeviceID: " ATM-001 "}, {DeviceID: "ATM-001", Location: "Lobby"}},
		Alarms:  []SnapshotAlarm{{DeviceID: "ATM-002", AlarmType: " DOOR ", Location: "Mall"}},
	}, now)
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if !snapshot.Timestamp.Equal(now) {
		t.Fatalf("expected timestamp defaulted to now")
	}
	if len(snapshot.Devices) != 2 {
		t.Fatalf("expected 2 devices, got %+v", snapshot.Devices)
	}
	if snapshot.Devices[0].Location != "Lobby" {
		t.Fatalf("expected duplicate device location merged, got %q", snapshot.Devices[0].Location)
	}
	if snapshot.Devices[1].DeviceID != "ATM-002" || snapshot.Devices[1].Location != "Mall" {
		t.Fatalf("expected alarming device added, got %+v", snapshot.Devices[1])
	}
	if snapshot.Alarms[0].AlarmType != "DOOR" || !snapshot.Alarms[0].OccurredAt.Equal(now) {
		t.Fatalf("unexpected alarm %+v", snapshot.Alarms[0])
	}

	_, err = NormalizeSnapshot(Snapshot{Alarms: []SnapshotAlarm{{DeviceID: "ATM-1"}}}, now)
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected invalid input for alarm without type, got %v", err)
	}
}

func TestDeriveDeviceStatus(t *testing.T) {
	if DeriveDeviceStatus(0) != models.DeviceStatusOnline {
		t.Fatalf("device without active alarms must be online")
	}
	if DeriveDeviceStatus(3) != models.DeviceStatusAlarm {
		t.Fatalf("device with active alarms must be alarming")
	}
}

func TestAlarmDuration(t *testing.T) {
	occurred := time.Date(2026, 1, 5, 8, 0, 0, 0, time.UTC)
	if AlarmDuration(occurred, nil) != nil {
		t.Fatalf("active alarm has no duration")
	}
	cleared := occurred.Add(90*time.Second + 400*time.Millisecond)
	got := AlarmDuration(occurred, &cleared)
	if got == nil || *got != 90 {
		t.Fatalf("expected 90 seconds, got %v", got)
	}
}

func TestSortAlarmTypeCounts(t *testing.T) {
	got := SortAlarmTypeCounts(map[string]int{"PRINTER": 2, "DOOR": 5, "CASH_LOW": 2})
	want := []string{"DOOR", "CASH_LOW", "PRINTER"}
	for i, item := range got {
		if item.AlarmType != want[i] {
			t.Fatalf("position %d: expected %s, got %s", i, want[i], item.AlarmType)
		}
	}
}

func TestPagination(t *testing.T) {
	page, limit := NormalizePage(0, 0, DefaultMonitorLimit, MaxMonitorLimit)
	if page != 1 || limit != 50 {
		t.Fatalf("unexpected defaults %d/%d", page, limit)
	}
	_, limit = NormalizePage(2, 5000, DefaultMonitorLimit, MaxMonitorLimit)
	if limit != MaxMonitorLimit {
		t.Fatalf("expected limit capped, got %d", limit)
	}
	page, _ = NormalizePage(math.MaxInt, 10, DefaultMonitorLimit, MaxMonitorLimit)
	if page != MaxPage {
		t.Fatalf("expected page capped at %d, got %d", MaxPage, page)
	}
	p := NewPagination(2, 50, 101)
	if p.TotalPages != 3 {
		t.Fatalf("expected 3 pages, got %d", p.TotalPages)
	}
}
