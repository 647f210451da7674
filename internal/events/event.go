// Package events publishes one record per classification request to
// pluggable sinks without slowing down the request path.
package events

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/straja-ai/soundlens/internal/redact"
)

// Version of the event schema.
const Version = "1"

// Outcome of a request.
const (
	OutcomeOK                = "ok"
	OutcomeUnsupportedFormat = "unsupported_format"
	OutcomeDecodeError       = "decode_error"
	OutcomeInferenceError    = "inference_error"
	OutcomeError             = "error"
)

type AudioInfo struct {
	Format          string  `json:"format"`
	Bytes           int     `json:"bytes"`
	DurationSeconds float64 `json:"duration_seconds"`
}

type ResultInfo struct {
	Label         string             `json:"label"`
	Probabilities map[string]float64 `json:"probabilities,omitempty"`
}

type ContentInfo struct {
	Fallback bool `json:"fallback"`
}

type LatencyMs struct {
	Decode      float64 `json:"decode"`
	Spectrogram float64 `json:"spectrogram"`
	Inference   float64 `json:"inference"`
	Total       float64 `json:"total"`
}

// Event is the record emitted for every classification request.
type Event struct {
	Version   string      `json:"version"`
	Timestamp time.Time   `json:"timestamp"`
	RequestID string      `json:"request_id"`
	Outcome   string      `json:"outcome"`
	Audio     AudioInfo   `json:"audio"`
	Result    *ResultInfo `json:"result,omitempty"`
	Content   ContentInfo `json:"content"`
	LatencyMs LatencyMs   `json:"latency_ms"`
	Error     string      `json:"error,omitempty"`
}

// New stamps an event with the schema version, current time and a request ID
// (generated when empty).
func New(requestID, outcome string) *Event {
	if requestID == "" {
		requestID = uuid.NewString()
	}
	return &Event{
		Version:   Version,
		Timestamp: time.Now().UTC(),
		RequestID: requestID,
		Outcome:   outcome,
	}
}

// Millis converts a duration to fractional milliseconds.
func Millis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

// LogEvent prints a redacted JSON representation of the event.
func LogEvent(ev *Event) {
	if ev == nil {
		return
	}
	data, err := json.Marshal(ev)
	if err != nil {
		redact.Logf("events: failed to marshal event: %v", err)
		return
	}
	redact.Logf("events: %s", string(data))
}
