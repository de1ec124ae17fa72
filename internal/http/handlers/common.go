package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/geopix/geopix-back/internal/auth"
	"github.com/geopix/geopix-back/internal/http/middleware"
	"github.com/geopix/geopix-back/internal/service"
)

var errInvalidPayload = errors.New("invalid payload")

type API struct {
	uploadsService *service.UploadsService
	authService    *auth.Service
}

func NewAPI(uploadsService *service.UploadsService, authService *auth.Service) *API {
	return &API{
		uploadsService: uploadsService,
		authService:    authService,
	}
}

type errorPayload struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
	Fields    map[string]string `json:"fields,omitempty"`
	RequestID string            `json:"request_id"`
}

func writeJSON(w http.ResponseWriter, statusCode int, value any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(value)
}

func writeError(w http.ResponseWriter, r *http.Request, statusCode int, code, message string) {
	payload := errorPayload{RequestID: middleware.GetRequestID(r.Context())}
	payload.Error.Code = code
	payload.Error.Message = message
	writeJSON(w, statusCode, payload)
}

// writeValidationError reports per-field failures with 422, the shape the
// upload form consumes.
func writeValidationError(w http.ResponseWriter, r *http.Request, fields map[string]string) {
	payload := errorPayload{
		Fields:    fields,
		RequestID: middleware.GetRequestID(r.Context()),
	}
	payload.Error.Code = "validation_failed"
	payload.Error.Message = "the given data was invalid"
	writeJSON(w, http.StatusUnprocessableEntity, payload)
}

func decodeJSON(r *http.Request, value any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(value); err != nil {
		return errInvalidPayload
	}
	return nil
}
