// Package types defines core data structures used across logwarden.
package types

import (
	"time"
)

// LogLevel is the severity of an ingested log event.
type LogLevel string

const (
	LevelDebug LogLevel = "DEBUG"
	LevelInfo  LogLevel = "INFO"
	LevelWarn  LogLevel = "WARN"
	LevelError LogLevel = "ERROR"
)

// ParseLogLevel normalizes a string level to a known LogLevel.
// Unknown values map to INFO.
func ParseLogLevel(s string) LogLevel {
	switch LogLevel(s) {
	case LevelDebug, LevelInfo, LevelWarn, LevelError:
		return LogLevel(s)
	default:
		return LevelInfo
	}
}

// LogEvent is a single ingested log record. Immutable once stored.
type LogEvent struct {
	ID        int64     `json:"id"`
	Source    string    `json:"source"` // e.g., "nginx", "web_app", "firewall"
	Level     LogLevel  `json:"level"`
	Timestamp time.Time `json:"timestamp"` // event time, not ingest time
	IP        string    `json:"ip,omitempty"`
	User      string    `json:"user,omitempty"`
	Message   string    `json:"message"`
	RawData   string    `json:"raw_data,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// AlertType classifies an alert by the rule family that produced it.
type AlertType string

const (
	AlertBruteForce       AlertType = "BRUTE_FORCE"
	AlertErrorLog         AlertType = "ERROR_LOG"
	AlertSuspiciousAccess AlertType = "SUSPICIOUS_ACCESS"
	AlertSystemAnomaly    AlertType = "SYSTEM_ANOMALY"
	AlertCustom           AlertType = "CUSTOM"
)

// AlertLevel grades alert urgency.
type AlertLevel string

const (
	AlertLow      AlertLevel = "LOW"
	AlertMedium   AlertLevel = "MEDIUM"
	AlertHigh     AlertLevel = "HIGH"
	AlertCritical AlertLevel = "CRITICAL"
)

// AlertStatus tracks the handling lifecycle of an alert.
// The engine only ever creates alerts as UNHANDLED; every other transition
// is an operator action through the API.
type AlertStatus string

const (
	StatusUnhandled AlertStatus = "UNHANDLED"
	StatusHandling  AlertStatus = "HANDLING"
	StatusResolved  AlertStatus = "RESOLVED"
	StatusIgnored   AlertStatus = "IGNORED"
)

// ValidAlertLevel reports whether l is a known alert level.
func ValidAlertLevel(l AlertLevel) bool {
	switch l {
	case AlertLow, AlertMedium, AlertHigh, AlertCritical:
		return true
	}
	return false
}

// ValidAlertStatus reports whether s is a known alert status.
func ValidAlertStatus(s AlertStatus) bool {
	switch s {
	case StatusUnhandled, StatusHandling, StatusResolved, StatusIgnored:
		return true
	}
	return false
}

// Open reports whether an alert in this status may still absorb new
// rule firings via merge.
func (s AlertStatus) Open() bool {
	return s == StatusUnhandled || s == StatusHandling
}

// Alert is the engine's primary output: one correlated detection,
// possibly fed by many rule firings.
type Alert struct {
	ID            int64       `json:"id"`
	AlertType     AlertType   `json:"alert_type"`
	AlertLevel    AlertLevel  `json:"alert_level"`
	Title         string      `json:"title"`
	Description   string      `json:"description"`
	RelatedIP     string      `json:"related_ip,omitempty"`
	RelatedUser   string      `json:"related_user,omitempty"`
	RelatedLogIDs []int64     `json:"related_log_ids"`
	TriggerCount  int         `json:"trigger_count"`
	Status        AlertStatus `json:"status"`
	HandlerUserID string      `json:"handler_user_id,omitempty"`
	HandlerNote   string      `json:"handler_note,omitempty"`
	HandledAt     *time.Time  `json:"handled_at,omitempty"`
	ExtraData     string      `json:"extra_data,omitempty"` // rule-specific evidence, JSON
	CreatedAt     time.Time   `json:"created_at"`
	UpdatedAt     time.Time   `json:"updated_at"`
}

// MergeLogIDs unions newIDs into the alert's evidence set, preserving
// first-seen order and never duplicating an id.
func (a *Alert) MergeLogIDs(newIDs []int64) {
	seen := make(map[int64]bool, len(a.RelatedLogIDs))
	for _, id := range a.RelatedLogIDs {
		seen[id] = true
	}
	for _, id := range newIDs {
		if !seen[id] {
			a.RelatedLogIDs = append(a.RelatedLogIDs, id)
			seen[id] = true
		}
	}
}

// FailureGroup is one IP's worth of matching failure events within a window,
// as aggregated by the log store for the brute-force rule.
type FailureGroup struct {
	IP     string
	Count  int
	LogIDs []int64
}

// IPSpread is one user's set of distinct login IPs within a window, as
// aggregated by the log store for the suspicious-access rule.
type IPSpread struct {
	User string
	IPs  []string
}

// TimeBucket is one point on a time-series count, keyed by the bucket's
// formatted start time.
type TimeBucket struct {
	Time  string `json:"time"`
	Count int    `json:"count"`
}

// AlertStats summarizes alert counts for the stats endpoint.
type AlertStats struct {
	Total     int            `json:"total"`
	Unhandled int            `json:"unhandled"`
	Handling  int            `json:"handling"`
	Resolved  int            `json:"resolved"`
	Ignored   int            `json:"ignored"`
	ByLevel   map[string]int `json:"by_level"`
	ByType    map[string]int `json:"by_type"`
}

// SystemConfig is one entry of the key-value configuration store that
// backs the engine's tunable rule parameters.
type SystemConfig struct {
	ID          int64     `json:"id"`
	ConfigKey   string    `json:"config_key"`
	ConfigValue string    `json:"config_value"`
	Category    string    `json:"category"` // "alert", "log", "system", ...
	Description string    `json:"description,omitempty"`
	ValueType   string    `json:"value_type"` // "string", "int", "boolean"
	IsActive    bool      `json:"is_active"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Well-known configuration keys read by the detection rules.
const (
	ConfigBruteForceThreshold = "alert_brute_force_threshold"
	ConfigBruteForceWindow    = "alert_brute_force_window_minutes"
	ConfigErrorLogEnabled     = "alert_error_log_enabled"
)

// User is an operator account for the audit API.
type User struct {
	ID           string     `json:"id"`
	Username     string     `json:"username"`
	PasswordHash string     `json:"-"`
	Role         string     `json:"role"` // "admin" or "auditor"
	CreatedAt    time.Time  `json:"created_at"`
	LastLogin    *time.Time `json:"last_login,omitempty"`
}

// OperationLog records one operator action for audit trail purposes.
type OperationLog struct {
	ID            int64     `json:"id"`
	UserID        string    `json:"user_id"`
	Username      string    `json:"username"`
	Action        string    `json:"action"` // LOGIN, UPDATE_ALERT_STATUS, CHANGE_CONFIG, ...
	ResourceType  string    `json:"resource_type,omitempty"`
	ResourceID    string    `json:"resource_id,omitempty"`
	Detail        string    `json:"detail,omitempty"`
	Result        string    `json:"result"` // SUCCESS or FAILED
	IPAddress     string    `json:"ip_address,omitempty"`
	RequestMethod string    `json:"request_method,omitempty"`
	RequestURL    string    `json:"request_url,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// SystemHealth exposes daemon health for the unauthenticated health endpoint.
type SystemHealth struct {
	Uptime      time.Duration `json:"uptime"`
	TotalLogs   int           `json:"total_logs"`
	OpenAlerts  int           `json:"open_alerts"`
	ActiveRules int           `json:"active_rules"`
	Version     string        `json:"version"`
}
