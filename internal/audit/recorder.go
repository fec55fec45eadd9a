// Package audit records operator actions into the operation log so that
// every state change carries an attributable trail entry.
package audit

import (
	"github.com/rs/zerolog"

	"github.com/logwarden/logwarden/internal/types"
)

// Store is the slice of the persistence layer the recorder writes to.
type Store interface {
	RecordOperation(op *types.OperationLog) error
}

// Recorder writes audit-trail entries. Recording is best-effort: a failed
// write is logged but never fails the operation it describes.
type Recorder struct {
	store Store
	log   zerolog.Logger
}

func NewRecorder(store Store, logger zerolog.Logger) *Recorder {
	return &Recorder{
		store: store,
		log:   logger.With().Str("component", "audit").Logger(),
	}
}

// Entry is one operator action to record.
type Entry struct {
	UserID        string
	Username      string
	Action        string
	ResourceType  string
	ResourceID    string
	Detail        string
	Result        string
	IPAddress     string
	RequestMethod string
	RequestURL    string
}

const (
	ResultSuccess = "SUCCESS"
	ResultFailed  = "FAILED"
)

// Operator action names.
const (
	ActionLogin             = "LOGIN"
	ActionLoginFailed       = "LOGIN_FAILED"
	ActionUpdateAlertStatus = "UPDATE_ALERT_STATUS"
	ActionUpdateAlert       = "UPDATE_ALERT"
	ActionChangeConfig      = "CHANGE_CONFIG"
	ActionIngestLog         = "INGEST_LOG"
)

// Record persists one entry.
func (r *Recorder) Record(e Entry) {
	op := &types.OperationLog{
		UserID:        e.UserID,
		Username:      e.Username,
		Action:        e.Action,
		ResourceType:  e.ResourceType,
		ResourceID:    e.ResourceID,
		Detail:        e.Detail,
		Result:        e.Result,
		IPAddress:     e.IPAddress,
		RequestMethod: e.RequestMethod,
		RequestURL:    e.RequestURL,
	}
	if op.Result == "" {
		op.Result = ResultSuccess
	}
	if err := r.store.RecordOperation(op); err != nil {
		r.log.Error().Err(err).Str("action", e.Action).Msg("audit record failed")
	}
}
