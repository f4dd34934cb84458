package models

import "time"

type ATM struct {
	ATMID      string `json:"atm_id"`
	Code       string `json:"code"`
	Name       string `json:"name"`
	Location   string `json:"location"`
	BranchID   string `json:"branch_id"`
	BranchName string `json:"branch_name"`
	BranchCode string `json:"branch_code"`
	Active     bool   `json:"active"`
}

type ATMDevice struct {
	ID            string     `json:"id"`
	DeviceID      string     `json:"device_id"`
	Location      string     `json:"location"`
	Status        string     `json:"status"`
	LastSeenAt    *time.Time `json:"last_seen_at"`
	CurrentAlarms []Alarm    `json:"current_alarms"`
}

type Alarm struct {
	ID         string     `json:"id"`
	DeviceID   string     `json:"device_id"`
	AlarmType  string     `json:"alarm_type"`
	Location   string     `json:"location"`
	OccurredAt time.Time  `json:"occurred_at"`
	ClearedAt  *time.Time `json:"cleared_at"`
	Duration   *int64     `json:"duration"`
}

type AlarmTypeCount struct {
	AlarmType string `json:"alarm_type"`
	Count     int    `json:"count"`
}

type MonitorSummary struct {
	TotalDevices       int              `json:"total_devices"`
	OnlineDevices      int              `json:"online_devices"`
	AlarmingDevices    int              `json:"alarming_devices"`
	AlarmTypeBreakdown []AlarmTypeCount `json:"alarm_type_breakdown"`
}

type IngestBatch struct {
	ID              string    `json:"id"`
	Timestamp       time.Time `json:"timestamp"`
	ReceivedAt      time.Time `json:"received_at"`
	AlarmCount      int       `json:"alarm_count"`
	ProcessedCount  int       `json:"processed_count"`
	DevicesAlarming int       `json:"devices_alarming"`
	DevicesCleared  int       `json:"devices_cleared"`
}

type Pagination struct {
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	TotalCount int `json:"total_count"`
	TotalPages int `json:"total_pages"`
}

type MonitorPage struct {
	Devices    []ATMDevice    `json:"devices"`
	Summary    MonitorSummary `json:"summary"`
	LastUpdate *IngestBatch   `json:"last_update"`
	Pagination Pagination     `json:"pagination"`
}

type DeviceHistory struct {
	Device        ATMDevice `json:"device"`
	RecentHistory []Alarm   `json:"recent_history"`
}

const (
	DeviceStatusOnline = "ONLINE"
	DeviceStatusAlarm  = "ALARM"
)
