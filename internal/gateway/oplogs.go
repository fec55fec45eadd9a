package gateway

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	apperrors "github.com/logwarden/logwarden/internal/errors"
	"github.com/logwarden/logwarden/internal/storage"
)

func (s *Server) handleListOplogs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := storage.OperationFilter{
		UserID:   q.Get("user_id"),
		Action:   q.Get("action"),
		Page:     parseQueryInt(r, "page", 1),
		PageSize: parseQueryInt(r, "page_size", 20),
	}
	f.Page, f.PageSize = storage.NormalizePage(f.Page, f.PageSize)
	var err error
	if f.Start, err = parseQueryTime(r, "start"); err != nil {
		writeAPIError(w, http.StatusBadRequest, apperrors.ErrValidation, "start must be RFC 3339")
		return
	}
	if f.End, err = parseQueryTime(r, "end"); err != nil {
		writeAPIError(w, http.StatusBadRequest, apperrors.ErrValidation, "end must be RFC 3339")
		return
	}

	ops, total, err := s.store.ListOperations(f)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeAPISuccess(w, pageEnvelope{
		Total:    total,
		Page:     f.Page,
		PageSize: f.PageSize,
		Items:    ops,
	})
}

func (s *Server) handleOplogByID(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeAPIError(w, http.StatusBadRequest, apperrors.ErrValidation, "invalid operation log id")
		return
	}
	op, err := s.store.OperationByID(id)
	if err != nil {
		writeAppError(w, err)
		return
	}
	if op == nil {
		writeAPIError(w, http.StatusNotFound, apperrors.ErrNotFound, "operation log not found")
		return
	}

	// Non-admins may only read their own trail entries.
	claims := claimsFrom(r.Context())
	if claims != nil && claims.Role != roleAdmin && op.UserID != claims.UserID {
		writeAPIError(w, http.StatusForbidden, apperrors.ErrForbidden, "not allowed to view this entry")
		return
	}

	writeAPISuccess(w, op)
}
