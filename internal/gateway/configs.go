package gateway

import (
	"encoding/json"
	"net/http"

	"github.com/logwarden/logwarden/internal/audit"
	apperrors "github.com/logwarden/logwarden/internal/errors"
	"github.com/logwarden/logwarden/internal/types"
)

func (s *Server) handleListConfigs(w http.ResponseWriter, r *http.Request) {
	configs, err := s.store.ListConfigs(r.URL.Query().Get("category"))
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeAPISuccess(w, configs)
}

type upsertConfigRequest struct {
	ConfigKey   string `json:"config_key"`
	ConfigValue string `json:"config_value"`
	Category    string `json:"category,omitempty"`
	Description string `json:"description,omitempty"`
	ValueType   string `json:"value_type,omitempty"`
	IsActive    *bool  `json:"is_active,omitempty"`
}

func (s *Server) handleUpsertConfig(w http.ResponseWriter, r *http.Request) {
	var req upsertConfigRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIError(w, http.StatusBadRequest, apperrors.ErrInvalidInput, "Invalid JSON body")
		return
	}
	if req.ConfigKey == "" {
		writeAPIError(w, http.StatusBadRequest, apperrors.ErrMissingParam, "config_key is required")
		return
	}

	cfg := &types.SystemConfig{
		ConfigKey:   req.ConfigKey,
		ConfigValue: req.ConfigValue,
		Category:    req.Category,
		Description: req.Description,
		ValueType:   req.ValueType,
		IsActive:    true,
	}
	if req.IsActive != nil {
		cfg.IsActive = *req.IsActive
	}
	if cfg.Category == "" {
		cfg.Category = "alert"
	}
	if cfg.ValueType == "" {
		cfg.ValueType = "string"
	}

	if err := s.store.UpsertConfig(cfg); err != nil {
		writeAppError(w, err)
		return
	}

	claims := claimsFrom(r.Context())
	entry := audit.Entry{
		Action:        audit.ActionChangeConfig,
		ResourceType:  "config",
		ResourceID:    cfg.ConfigKey,
		Detail:        cfg.ConfigValue,
		IPAddress:     clientIP(r),
		RequestMethod: r.Method,
		RequestURL:    r.URL.Path,
	}
	if claims != nil {
		entry.UserID = claims.UserID
		entry.Username = claims.Username
	}
	s.audit.Record(entry)

	writeAPISuccess(w, cfg)
}
