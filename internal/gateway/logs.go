package gateway

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/logwarden/logwarden/internal/audit"
	apperrors "github.com/logwarden/logwarden/internal/errors"
	"github.com/logwarden/logwarden/internal/storage"
	"github.com/logwarden/logwarden/internal/types"
)

type ingestLogRequest struct {
	Source    string `json:"source"`
	Level     string `json:"level"`
	Timestamp string `json:"timestamp,omitempty"` // RFC 3339; defaults to now
	IP        string `json:"ip,omitempty"`
	User      string `json:"user,omitempty"`
	Message   string `json:"message"`
	RawData   string `json:"raw_data,omitempty"`
}

func (s *Server) handleIngestLog(w http.ResponseWriter, r *http.Request) {
	var req ingestLogRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIError(w, http.StatusBadRequest, apperrors.ErrInvalidInput, "Invalid JSON body")
		return
	}
	if req.Source == "" || req.Message == "" {
		writeAPIError(w, http.StatusBadRequest, apperrors.ErrMissingParam, "source and message are required")
		return
	}
	level := types.ParseLogLevel(req.Level)

	ts := time.Now()
	if req.Timestamp != "" {
		parsed, err := time.Parse(time.RFC3339, req.Timestamp)
		if err != nil {
			writeAPIError(w, http.StatusBadRequest, apperrors.ErrValidation, "timestamp must be RFC 3339")
			return
		}
		ts = parsed
	}

	event := &types.LogEvent{
		Source:    req.Source,
		Level:     level,
		Timestamp: ts,
		IP:        req.IP,
		User:      req.User,
		Message:   req.Message,
		RawData:   req.RawData,
	}
	if err := s.store.InsertLog(event); err != nil {
		writeAppError(w, err)
		return
	}

	// Correlation runs inline so the caller sees alerts raised by this
	// event as soon as the response lands. Rule failures do not fail
	// the ingest.
	alerts, err := s.eng.RunOnEvent(r.Context(), event.ID)
	if err != nil {
		s.logger.Error().Err(err).Int64("log_id", event.ID).Msg("correlation failed")
	}
	if len(alerts) > 0 {
		s.logger.Debug().Int64("log_id", event.ID).Int("alerts", len(alerts)).Msg("event raised alerts")
	}

	entry := audit.Entry{
		Action:        audit.ActionIngestLog,
		ResourceType:  "log",
		ResourceID:    strconv.FormatInt(event.ID, 10),
		Detail:        fmt.Sprintf("source=%s level=%s", event.Source, event.Level),
		IPAddress:     clientIP(r),
		RequestMethod: r.Method,
		RequestURL:    r.URL.Path,
	}
	if claims := claimsFrom(r.Context()); claims != nil {
		entry.UserID = claims.UserID
		entry.Username = claims.Username
	}
	s.audit.Record(entry)

	writeAPICreated(w, event)
}

func (s *Server) handleListLogs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := storage.LogFilter{
		Source:   q.Get("source"),
		IP:       q.Get("ip"),
		User:     q.Get("user"),
		Message:  q.Get("message"),
		Page:     parseQueryInt(r, "page", 1),
		PageSize: parseQueryInt(r, "page_size", 20),
	}
	f.Page, f.PageSize = storage.NormalizePage(f.Page, f.PageSize)
	if lvl := q.Get("level"); lvl != "" {
		level := types.ParseLogLevel(lvl)
		if string(level) != lvl {
			writeAPIError(w, http.StatusBadRequest, apperrors.ErrValidation, "invalid level filter")
			return
		}
		f.Level = level
	}
	var err error
	if f.Start, err = parseQueryTime(r, "start"); err != nil {
		writeAPIError(w, http.StatusBadRequest, apperrors.ErrValidation, "start must be RFC 3339")
		return
	}
	if f.End, err = parseQueryTime(r, "end"); err != nil {
		writeAPIError(w, http.StatusBadRequest, apperrors.ErrValidation, "end must be RFC 3339")
		return
	}

	logs, total, err := s.store.ListLogs(f)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeAPISuccess(w, pageEnvelope{
		Total:    total,
		Page:     f.Page,
		PageSize: f.PageSize,
		Items:    logs,
	})
}

func (s *Server) handleLogByID(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeAPIError(w, http.StatusBadRequest, apperrors.ErrValidation, "invalid log id")
		return
	}
	event, err := s.store.LogByID(id)
	if err != nil {
		writeAppError(w, err)
		return
	}
	if event == nil {
		writeAPIError(w, http.StatusNotFound, apperrors.ErrNotFound, "log not found")
		return
	}
	writeAPISuccess(w, event)
}

// --- Query helpers ---

func parseQueryInt(r *http.Request, key string, def int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}

func parseQueryTime(r *http.Request, key string) (*time.Time, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
