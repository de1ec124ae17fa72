package handlers

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/geopix/geopix-back/internal/domain"
	"github.com/geopix/geopix-back/internal/http/middleware"
	"github.com/geopix/geopix-back/internal/media"
	"github.com/geopix/geopix-back/internal/repository"
	"github.com/geopix/geopix-back/internal/service"
)

const (
	maxImageBytes  = 5 << 20
	maxTitleLength = 255
)

// Uploads dispatches the collection routes: list and create.
func (api *API) Uploads(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		api.listUploads(w, r)
	case http.MethodPost:
		api.createUpload(w, r)
	default:
		writeError(w, r, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
	}
}

// UploadByID dispatches the member routes: show and delete.
func (api *API) UploadByID(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(strings.TrimPrefix(r.URL.Path, "/image-upload/"))
	if id == "" || strings.Contains(id, "/") {
		writeError(w, r, http.StatusNotFound, "not_found", "upload not found")
		return
	}

	switch r.Method {
	case http.MethodGet:
		api.showUpload(w, r, id)
	case http.MethodDelete:
		api.deleteUpload(w, r, id)
	default:
		writeError(w, r, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
	}
}

func (api *API) listUploads(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUser(r.Context())
	query := r.URL.Query()

	filter := domain.UploadListFilter{
		OwnerID:     user.ID,
		ID:          strings.TrimSpace(query.Get("id")),
		Title:       strings.TrimSpace(query.Get("title")),
		Description: strings.TrimSpace(query.Get("description")),
		Sort:        strings.TrimSpace(query.Get("sort")),
		Cursor:      strings.TrimSpace(query.Get("cursor")),
	}

	if status := query.Get("status"); status != "" {
		parsed := domain.Status(status)
		if parsed != domain.StatusProcessing && !parsed.Terminal() {
			writeValidationError(w, r, map[string]string{"status": "unknown status"})
			return
		}
		filter.Status = parsed
	}
	if event := query.Get("event"); event != "" {
		parsed := domain.Event(event)
		if !parsed.Valid() {
			writeValidationError(w, r, map[string]string{"event": "unknown event"})
			return
		}
		filter.Event = parsed
	}
	for name, target := range map[string]**time.Time{
		"created_at":      &filter.CreatedAt,
		"created_at_from": &filter.CreatedAtFrom,
		"created_at_to":   &filter.CreatedAtTo,
	} {
		value, err := parseOptionalDateTime(query.Get(name))
		if err != nil {
			writeValidationError(w, r, map[string]string{name: "must be an RFC 3339 timestamp"})
			return
		}
		*target = value
	}
	if raw := query.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 1 {
			writeValidationError(w, r, map[string]string{"limit": "must be a positive integer"})
			return
		}
		filter.Limit = limit
	}

	uploads, nextCursor, err := api.uploadsService.List(r.Context(), filter)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_request", "failed to list uploads")
		return
	}

	data := make([]map[string]any, 0, len(uploads))
	for _, upload := range uploads {
		data = append(data, upload.Public())
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"data":        data,
		"next_cursor": nextCursor,
		"labels": map[string]any{
			"events":   domain.EventLabels(),
			"statuses": domain.StatusLabels(),
		},
	})
}

type createUploadRequest struct {
	Title       string          `json:"title"`
	Description string          `json:"description"`
	Source      string          `json:"source"`
	Event       string          `json:"event"`
	Metadata    json.RawMessage `json:"metadata"`
	Image       string          `json:"image"`
}

func (api *API) createUpload(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUser(r.Context())

	input, fields := api.decodeCreateRequest(r)
	if len(fields) > 0 {
		writeValidationError(w, r, fields)
		return
	}
	input.OwnerID = user.ID

	upload, err := api.uploadsService.Submit(r.Context(), input)
	if err != nil {
		var duplicate *service.DuplicateError
		if errors.As(err, &duplicate) {
			payload := map[string]any{
				"error": map[string]any{
					"code":    "duplicate_submission",
					"message": duplicate.Error(),
				},
				"existing":   duplicate.Existing.Public(),
				"request_id": middleware.GetRequestID(r.Context()),
			}
			writeJSON(w, http.StatusConflict, payload)
			return
		}
		writeError(w, r, http.StatusInternalServerError, "internal_error", "failed to submit upload")
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{"data": upload.Public()})
}

// decodeCreateRequest accepts either a multipart form with an image file or a
// JSON body with the image base64-encoded. It returns the submit input plus
// per-field validation failures.
func (api *API) decodeCreateRequest(r *http.Request) (service.SubmitInput, map[string]string) {
	contentType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))

	var (
		input  service.SubmitInput
		fields = map[string]string{}
	)

	switch {
	case contentType == "multipart/form-data":
		if err := r.ParseMultipartForm(maxImageBytes + (1 << 20)); err != nil {
			fields["image"] = "image must be at most 5 MB"
			return input, fields
		}
		input.Title = strings.TrimSpace(r.FormValue("title"))
		input.Description = strings.TrimSpace(r.FormValue("description"))
		input.Source = domain.Source(strings.TrimSpace(r.FormValue("source")))
		input.Event = domain.Event(strings.TrimSpace(r.FormValue("event")))
		if metadata := strings.TrimSpace(r.FormValue("metadata")); metadata != "" {
			input.Metadata = json.RawMessage(metadata)
		}

		file, _, err := r.FormFile("image")
		if err != nil {
			fields["image"] = "image is required"
		} else {
			defer file.Close()
			content, err := io.ReadAll(io.LimitReader(file, maxImageBytes+1))
			if err != nil {
				fields["image"] = "failed to read image"
			} else {
				input.Image = content
			}
		}
	default:
		var request createUploadRequest
		if err := decodeJSON(r, &request); err != nil {
			fields["body"] = "request body must be valid JSON"
			return input, fields
		}
		input.Title = strings.TrimSpace(request.Title)
		input.Description = strings.TrimSpace(request.Description)
		input.Source = domain.Source(strings.TrimSpace(request.Source))
		input.Event = domain.Event(strings.TrimSpace(request.Event))
		input.Metadata = request.Metadata

		if request.Image == "" {
			fields["image"] = "image is required"
		} else {
			content, err := base64.StdEncoding.DecodeString(request.Image)
			if err != nil {
				fields["image"] = "image must be base64 encoded"
			} else {
				input.Image = content
			}
		}
	}

	if input.Title == "" {
		fields["title"] = "title is required"
	} else if len(input.Title) > maxTitleLength {
		fields["title"] = "title must be at most 255 characters"
	}
	if input.Source != "" && !input.Source.Valid() {
		fields["source"] = "unknown source"
	}
	if input.Event != "" && !input.Event.Valid() {
		fields["event"] = "unknown event"
	}
	if len(input.Metadata) > 0 && !json.Valid(input.Metadata) {
		fields["metadata"] = "metadata must be valid JSON"
	}
	if len(input.Image) > 0 {
		if len(input.Image) > maxImageBytes {
			fields["image"] = "image must be at most 5 MB"
		} else if _, ok := media.DetectImageType(input.Image); !ok {
			fields["image"] = "image must be a jpeg, png or gif"
		}
	}

	return input, fields
}

func (api *API) showUpload(w http.ResponseWriter, r *http.Request, id string) {
	user := middleware.GetUser(r.Context())

	upload, err := api.uploadsService.Get(r.Context(), user.ID, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeError(w, r, http.StatusNotFound, "not_found", "upload not found")
			return
		}
		writeError(w, r, http.StatusInternalServerError, "internal_error", "failed to load upload")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": upload.Public()})
}

func (api *API) deleteUpload(w http.ResponseWriter, r *http.Request, id string) {
	user := middleware.GetUser(r.Context())

	if err := api.uploadsService.Delete(r.Context(), user.ID, id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeError(w, r, http.StatusNotFound, "not_found", "upload not found")
			return
		}
		writeError(w, r, http.StatusInternalServerError, "internal_error", "failed to delete upload")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "deleted"})
}

func parseOptionalDateTime(value string) (*time.Time, error) {
	if strings.TrimSpace(value) == "" {
		return nil, nil
	}
	parsed, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return nil, errInvalidPayload
	}
	return &parsed, nil
}
