package model

import (
	"encoding/json"
	"strings"
	"time"
)

// TransformationHistoryRecord is the server-stored fact that a transformation
// was applied to an image at a given step. Field names on the wire are the
// backend's.
type TransformationHistoryRecord struct {
	TransformationID int64     `json:"id_transformacion"`
	ImageID          int64     `json:"id_imagen"`
	Kind             string    `json:"tipo"`
	ParametersRaw    RawParams `json:"parametros"`
	Order            int       `json:"orden"`
	CreatedAt        Timestamp `json:"fecha_creacion"`
}

// HistoryListResponse is returned by GET /history/transformations.
type HistoryListResponse struct {
	Success bool                          `json:"success"`
	Data    []TransformationHistoryRecord `json:"data"`
	Message string                        `json:"message,omitempty"`
}

// HistoryDetailResponse is returned by GET /history/transformations/:id.
type HistoryDetailResponse struct {
	Success bool                         `json:"success"`
	Data    *TransformationHistoryRecord `json:"data"`
	Message string                       `json:"message,omitempty"`
}

// StatusResponse is the generic {success,message} body.
type StatusResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// RawParams holds a record's stored parameters as text. The backend sends a
// JSON-encoded string, but a bare object, array or number is kept as its raw
// JSON so one odd record never fails a whole history list.
type RawParams string

// UnmarshalJSON implements json.Unmarshaler.
func (p *RawParams) UnmarshalJSON(b []byte) error {
	trimmed := strings.TrimSpace(string(b))
	if trimmed == "null" {
		*p = ""
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		*p = RawParams(trimmed)
		return nil
	}
	*p = RawParams(s)
	return nil
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// Timestamp decodes the several date encodings the backend has used.
// A value that matches none of them decodes to the zero time and keeps the
// raw text, so a single bad date never fails a whole history list.
type Timestamp struct {
	time.Time
	Raw string
}

// NewTimestamp wraps t.
func NewTimestamp(t time.Time) Timestamp {
	return Timestamp{Time: t}
}

// UnmarshalJSON implements json.Unmarshaler.
func (ts *Timestamp) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*ts = Timestamp{}
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		// numbers end up here
		ts.Time = time.Time{}
		ts.Raw = strings.TrimSpace(string(b))
		return nil
	}
	ts.Raw = s
	ts.Time = time.Time{}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			ts.Time = t
			return nil
		}
	}
	return nil
}

// MarshalJSON implements json.Marshaler.
func (ts Timestamp) MarshalJSON() ([]byte, error) {
	if ts.Time.IsZero() {
		return json.Marshal(ts.Raw)
	}
	return json.Marshal(ts.Time.Format(time.RFC3339))
}
