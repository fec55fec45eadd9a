package gateway

import (
	"encoding/json"
	"errors"
	"net/http"

	apperrors "github.com/logwarden/logwarden/internal/errors"
)

// --- API Response Helpers ---

type apiResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *apiError   `json:"error,omitempty"`
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// pageEnvelope is the list payload shape shared by every paginated endpoint.
type pageEnvelope struct {
	Total    int         `json:"total"`
	Page     int         `json:"page"`
	PageSize int         `json:"page_size"`
	Items    interface{} `json:"items"`
}

func writeAPISuccess(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(apiResponse{
		Success: true,
		Data:    data,
	})
}

func writeAPICreated(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(apiResponse{
		Success: true,
		Data:    data,
	})
}

func writeAPIError(w http.ResponseWriter, status int, code apperrors.ErrorCode, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(apiResponse{
		Success: false,
		Error:   &apiError{Code: string(code), Message: message},
	})
}

// writeAppError maps a structured error onto the wire format.
func writeAppError(w http.ResponseWriter, err error) {
	code := apperrors.GetCode(err)
	if code == "" {
		code = apperrors.ErrStorage
	}
	msg := "internal error"
	var le *apperrors.Error
	if errors.As(err, &le) {
		msg = le.Message
	}
	writeAPIError(w, apperrors.ToHTTPStatus(code), code, msg)
}
