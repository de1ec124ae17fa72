package domain

import (
	"encoding/json"
	"time"
)

type Event string

const (
	EventGetCoordinate Event = "get_coordinate"
)

func (e Event) Valid() bool {
	return e == EventGetCoordinate
}

func (e Event) Label() string {
	switch e {
	case EventGetCoordinate:
		return "Get coordinates"
	default:
		return string(e)
	}
}

func EventLabels() map[string]string {
	return map[string]string{
		string(EventGetCoordinate): EventGetCoordinate.Label(),
	}
}

type Source string

const (
	SourceWeb    Source = "web"
	SourceMobile Source = "mobile"
	SourceAPI    Source = "api"
	SourceEtc    Source = "etc"
)

func (s Source) Valid() bool {
	switch s {
	case SourceWeb, SourceMobile, SourceAPI, SourceEtc:
		return true
	default:
		return false
	}
}

type Status string

const (
	StatusProcessing Status = "processing"
	StatusSuccess    Status = "success"
	StatusFailed     Status = "failed"
)

// Terminal reports whether no further status transition is permitted.
func (s Status) Terminal() bool {
	return s == StatusSuccess || s == StatusFailed
}

func (s Status) Label() string {
	switch s {
	case StatusProcessing:
		return "Processing"
	case StatusSuccess:
		return "Success"
	case StatusFailed:
		return "Failed"
	default:
		return string(s)
	}
}

func StatusLabels() map[string]string {
	return map[string]string{
		string(StatusProcessing): StatusProcessing.Label(),
		string(StatusSuccess):    StatusSuccess.Label(),
		string(StatusFailed):     StatusFailed.Label(),
	}
}

// ImageUpload is the canonical record of one submitted geolocation job.
// Result holds the full inbound worker message verbatim; latitude and
// longitude are always derived from it, never stored independently.
type ImageUpload struct {
	ID           string
	OwnerID      string
	Title        string
	Description  string
	Source       Source
	Event        Event
	Status       Status
	Metadata     json.RawMessage
	Result       json.RawMessage
	ErrorMessage string
	ImageURL     string
	CreatedAt    time.Time
	UpdatedAt    time.Time
	DeletedAt    *time.Time
}

// Geolocation extracts the coordinates from the canonical result payload.
// ok is false while the upload has no result or the result carries none.
func (u *ImageUpload) Geolocation() (lat, lon float64, ok bool) {
	if len(u.Result) == 0 {
		return 0, 0, false
	}
	var decoded struct {
		Geolocation *struct {
			Lat float64 `json:"lat"`
			Lon float64 `json:"lon"`
		} `json:"geolocation"`
	}
	if err := json.Unmarshal(u.Result, &decoded); err != nil || decoded.Geolocation == nil {
		return 0, 0, false
	}
	return decoded.Geolocation.Lat, decoded.Geolocation.Lon, true
}

// Public returns the externally visible representation used by API
// responses and real-time events. Latitude and longitude come from the
// canonical result payload.
func (u *ImageUpload) Public() map[string]any {
	fields := map[string]any{
		"id":            u.ID,
		"title":         u.Title,
		"description":   u.Description,
		"source":        string(u.Source),
		"event":         string(u.Event),
		"event_name":    u.Event.Label(),
		"status":        string(u.Status),
		"status_name":   u.Status.Label(),
		"error_message": u.ErrorMessage,
		"metadata":      rawOrNil(u.Metadata),
		"result":        rawOrNil(u.Result),
		"image":         u.ImageURL,
		"created_at":    u.CreatedAt,
		"updated_at":    u.UpdatedAt,
	}
	if lat, lon, ok := u.Geolocation(); ok {
		fields["latitude"] = lat
		fields["longitude"] = lon
	} else {
		fields["latitude"] = nil
		fields["longitude"] = nil
	}
	return fields
}

func rawOrNil(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	var decoded any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return string(raw)
	}
	return decoded
}

// DuplicateKey is the tuple the duplicate-submission guard matches on.
type DuplicateKey struct {
	OwnerID     string
	Title       string
	Description string
	Event       Event
	Source      Source
}

func (u *ImageUpload) DuplicateKey() DuplicateKey {
	return DuplicateKey{
		OwnerID:     u.OwnerID,
		Title:       u.Title,
		Description: u.Description,
		Event:       u.Event,
		Source:      u.Source,
	}
}

// TaskMessage is the outbound payload sent to the ML worker.
type TaskMessage struct {
	ImageID  string          `json:"image_id"`
	ImageURL string          `json:"image_url"`
	Metadata json.RawMessage `json:"metadata,omitempty"`
}

// ResultEnvelope is the decoded view of an inbound worker message. The raw
// body remains the canonical stored form; this only lifts the fields the
// consumer needs to route and classify the result.
type ResultEnvelope struct {
	ImageID     string `json:"image_id"`
	Error       string `json:"error,omitempty"`
	Geolocation *struct {
		Lat float64 `json:"lat"`
		Lon float64 `json:"lon"`
	} `json:"geolocation,omitempty"`
}

type User struct {
	ID           string
	Email        string
	Name         string
	PasswordHash string
	CreatedAt    time.Time
}

// UploadListFilter mirrors the query surface of the list endpoint.
type UploadListFilter struct {
	OwnerID       string
	ID            string
	Title         string
	Description   string
	Status        Status
	Event         Event
	CreatedAt     *time.Time
	CreatedAtFrom *time.Time
	CreatedAtTo   *time.Time
	Sort          string
	Limit         int
	Cursor        string
}
