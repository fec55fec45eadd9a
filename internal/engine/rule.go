package engine

import (
	"context"
	"encoding/json"
	"time"

	"github.com/logwarden/logwarden/internal/types"
)

// Trigger describes why the engine is evaluating its rules: either a
// specific freshly inserted log event, or a periodic sweep.
type Trigger struct {
	LogID int64 // 0 for scheduled sweeps
}

// Scheduled reports whether this is a timer-driven sweep with no
// originating event.
func (t Trigger) Scheduled() bool {
	return t.LogID == 0
}

// Proposal is a rule's output before deduplication: an alert the rule wants
// raised or refreshed, not yet reconciled against the alert store.
type Proposal struct {
	Type        types.AlertType
	Level       types.AlertLevel
	Title       string
	Description string

	// Correlation keys. At most one of RelatedIP / RelatedUser drives
	// dedup matching; event-scoped proposals set Window to zero instead.
	RelatedIP   string
	RelatedUser string

	// Evidence.
	LogIDs []int64
	Extra  map[string]interface{}

	// Window is the trailing interval within which an existing open alert
	// with the same correlation key absorbs this firing. Zero means the
	// proposal is never merged and always creates a fresh alert.
	Window time.Duration
}

// CorrelationKey returns the value half of the (type, key) dedup pair.
func (p Proposal) CorrelationKey() string {
	if p.RelatedIP != "" {
		return p.RelatedIP
	}
	return p.RelatedUser
}

// extraJSON serializes the rule-specific evidence for the extra_data column.
func (p Proposal) extraJSON() string {
	if len(p.Extra) == 0 {
		return ""
	}
	b, err := json.Marshal(p.Extra)
	if err != nil {
		return ""
	}
	return string(b)
}

// Rule is one detection algorithm. Implementations query the log source and
// configuration provider and propose alerts; they never write to the alert
// store themselves; the engine applies proposals through the merge policy.
type Rule interface {
	Name() string
	Evaluate(ctx context.Context, trig Trigger) ([]Proposal, error)
}

// LogSource is the read-only view of ingested log events that rules scan.
type LogSource interface {
	LogByID(id int64) (*types.LogEvent, error)
	FailedLoginGroups(since time.Time, patterns []string, threshold int) ([]types.FailureGroup, error)
	LoginIPSpread(since time.Time, patterns []string, minIPs int) ([]types.IPSpread, error)
}

// AlertStore persists the engine's output.
type AlertStore interface {
	FindOpenAlert(alertType types.AlertType, ip, user string, since time.Time) (*types.Alert, error)
	CreateAlert(a *types.Alert) error
	UpdateAlert(a *types.Alert) error
}

// ConfigSource supplies raw rule parameters by key. The boolean is false
// when the key is unset or inactive.
type ConfigSource interface {
	ConfigValue(key string) (string, bool, error)
}

// Default message patterns for the login heuristics. These are loose
// substring matches inherited from the log conventions this system audits;
// they can over- and under-match and are injectable per rule for tuning.
var (
	DefaultFailurePatterns = []string{"%login%failed%", "%authentication%failed%"}
	DefaultSuccessPatterns = []string{"%login%success%"}
)
