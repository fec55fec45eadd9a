package gateway

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/sync/errgroup"

	"github.com/logwarden/logwarden/internal/audit"
	apperrors "github.com/logwarden/logwarden/internal/errors"
	"github.com/logwarden/logwarden/internal/storage"
	"github.com/logwarden/logwarden/internal/types"
)

func (s *Server) handleListAlerts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := storage.AlertFilter{
		Type:     types.AlertType(q.Get("type")),
		Level:    types.AlertLevel(q.Get("level")),
		Status:   types.AlertStatus(q.Get("status")),
		IP:       q.Get("ip"),
		User:     q.Get("user"),
		Page:     parseQueryInt(r, "page", 1),
		PageSize: parseQueryInt(r, "page_size", 20),
	}
	f.Page, f.PageSize = storage.NormalizePage(f.Page, f.PageSize)
	if f.Status != "" && !types.ValidAlertStatus(f.Status) {
		writeAPIError(w, http.StatusBadRequest, apperrors.ErrValidation, "invalid status filter")
		return
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

	alerts, total, err := s.store.ListAlerts(f)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeAPISuccess(w, pageEnvelope{
		Total:    total,
		Page:     f.Page,
		PageSize: f.PageSize,
		Items:    alerts,
	})
}

func (s *Server) handleAlertByID(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeAPIError(w, http.StatusBadRequest, apperrors.ErrValidation, "invalid alert id")
		return
	}
	alert, err := s.store.AlertByID(id)
	if err != nil {
		writeAppError(w, err)
		return
	}
	if alert == nil {
		writeAPIError(w, http.StatusNotFound, apperrors.ErrNotFound, "alert not found")
		return
	}
	writeAPISuccess(w, alert)
}

type alertStatusRequest struct {
	Status types.AlertStatus `json:"status"`
	Note   string            `json:"note,omitempty"`
}

func (s *Server) handleAlertStatus(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeAPIError(w, http.StatusBadRequest, apperrors.ErrValidation, "invalid alert id")
		return
	}

	var req alertStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIError(w, http.StatusBadRequest, apperrors.ErrInvalidInput, "Invalid JSON body")
		return
	}
	if !types.ValidAlertStatus(req.Status) {
		writeAPIError(w, http.StatusBadRequest, apperrors.ErrValidation, "status must be one of UNHANDLED, HANDLING, RESOLVED, IGNORED")
		return
	}

	claims := claimsFrom(r.Context())
	handlerID := ""
	handlerName := ""
	if claims != nil {
		handlerID = claims.UserID
		handlerName = claims.Username
	}

	alert, err := s.store.SetAlertStatus(id, req.Status, handlerID, req.Note)
	if err != nil {
		writeAppError(w, err)
		return
	}
	if alert == nil {
		writeAPIError(w, http.StatusNotFound, apperrors.ErrNotFound, "alert not found")
		return
	}

	s.audit.Record(audit.Entry{
		UserID:        handlerID,
		Username:      handlerName,
		Action:        audit.ActionUpdateAlertStatus,
		ResourceType:  "alert",
		ResourceID:    strconv.FormatInt(id, 10),
		Detail:        fmt.Sprintf("status=%s", req.Status),
		IPAddress:     clientIP(r),
		RequestMethod: r.Method,
		RequestURL:    r.URL.Path,
	})

	writeAPISuccess(w, alert)
}

type alertUpdateRequest struct {
	Title       *string           `json:"title,omitempty"`
	Description *string           `json:"description,omitempty"`
	Level       *types.AlertLevel `json:"level,omitempty"`
	ExtraData   *string           `json:"extra_data,omitempty"`
}

// handleUpdateAlert lets an admin rewrite an alert's descriptive fields.
// Lifecycle state moves only through the status endpoint.
func (s *Server) handleUpdateAlert(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeAPIError(w, http.StatusBadRequest, apperrors.ErrValidation, "invalid alert id")
		return
	}

	var req alertUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIError(w, http.StatusBadRequest, apperrors.ErrInvalidInput, "Invalid JSON body")
		return
	}
	if req.Level != nil && !types.ValidAlertLevel(*req.Level) {
		writeAPIError(w, http.StatusBadRequest, apperrors.ErrValidation, "level must be one of LOW, MEDIUM, HIGH, CRITICAL")
		return
	}

	alert, err := s.store.AlertByID(id)
	if err != nil {
		writeAppError(w, err)
		return
	}
	if alert == nil {
		writeAPIError(w, http.StatusNotFound, apperrors.ErrNotFound, "alert not found")
		return
	}

	if req.Title != nil {
		alert.Title = *req.Title
	}
	if req.Description != nil {
		alert.Description = *req.Description
	}
	if req.Level != nil {
		alert.AlertLevel = *req.Level
	}
	if req.ExtraData != nil {
		alert.ExtraData = *req.ExtraData
	}
	alert.UpdatedAt = time.Now()

	if err := s.store.UpdateAlert(alert); err != nil {
		writeAppError(w, err)
		return
	}

	claims := claimsFrom(r.Context())
	entry := audit.Entry{
		Action:        audit.ActionUpdateAlert,
		ResourceType:  "alert",
		ResourceID:    strconv.FormatInt(id, 10),
		IPAddress:     clientIP(r),
		RequestMethod: r.Method,
		RequestURL:    r.URL.Path,
	}
	if claims != nil {
		entry.UserID = claims.UserID
		entry.Username = claims.Username
	}
	s.audit.Record(entry)

	writeAPISuccess(w, alert)
}

// handleAlertStats aggregates alert counts, running the independent count
// queries in parallel.
func (s *Server) handleAlertStats(w http.ResponseWriter, r *http.Request) {
	start, err := parseQueryTime(r, "start")
	if err != nil {
		writeAPIError(w, http.StatusBadRequest, apperrors.ErrValidation, "start must be RFC 3339")
		return
	}
	end, err := parseQueryTime(r, "end")
	if err != nil {
		writeAPIError(w, http.StatusBadRequest, apperrors.ErrValidation, "end must be RFC 3339")
		return
	}

	var stats types.AlertStats
	var byStatus map[string]int

	g, _ := errgroup.WithContext(r.Context())
	g.Go(func() error {
		var err error
		stats.Total, err = s.store.CountAlerts(start, end)
		return err
	})
	g.Go(func() error {
		var err error
		byStatus, err = s.store.CountAlertsByStatus(start, end)
		return err
	})
	g.Go(func() error {
		var err error
		stats.ByLevel, err = s.store.CountAlertsByLevel(start, end)
		return err
	})
	g.Go(func() error {
		var err error
		stats.ByType, err = s.store.CountAlertsByType(start, end)
		return err
	})
	if err := g.Wait(); err != nil {
		writeAppError(w, err)
		return
	}

	stats.Unhandled = byStatus[string(types.StatusUnhandled)]
	stats.Handling = byStatus[string(types.StatusHandling)]
	stats.Resolved = byStatus[string(types.StatusResolved)]
	stats.Ignored = byStatus[string(types.StatusIgnored)]

	writeAPISuccess(w, stats)
}
