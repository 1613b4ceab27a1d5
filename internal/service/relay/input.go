package relay

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/jmehdipour/sms-relay/internal/apperr"
	"github.com/jmehdipour/sms-relay/internal/model"
)

// UploadInput is one message record as sent by the device.
// The device app uses older field names, so "message", "timestamp" and "type"
// are read as aliases of body, occurred_at_ms and kind.
type UploadInput struct {
	Sender       string
	Body         string
	OccurredAtMs string // decimal epoch millis; "" when absent
	Kind         string
}

type flexString string

// UnmarshalJSON accepts a JSON string or number.
func (f *flexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*f = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*f = flexString(n.String())
	return nil
}

type wireInput struct {
	Sender       *flexString `json:"sender"`
	Body         *flexString `json:"body"`
	Message      *flexString `json:"message"`
	OccurredAtMs *flexString `json:"occurred_at_ms"`
	Timestamp    *flexString `json:"timestamp"`
	Kind         *flexString `json:"kind"`
	Type         *flexString `json:"type"`
}

func first(vals ...*flexString) string {
	for _, v := range vals {
		if v != nil && *v != "" {
			return string(*v)
		}
	}
	return ""
}

func (in *UploadInput) UnmarshalJSON(b []byte) error {
	var w wireInput
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	*in = UploadInput{
		Sender:       first(w.Sender),
		Body:         first(w.Body, w.Message),
		OccurredAtMs: first(w.OccurredAtMs, w.Timestamp),
		Kind:         first(w.Kind, w.Type),
	}
	return nil
}

// DecodeUploadJSON parses a single record or an array of records.
func DecodeUploadJSON(raw []byte) ([]UploadInput, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return nil, apperr.Invalid("empty payload")
	}

	if raw[0] == '[' {
		var list []UploadInput
		if err := json.Unmarshal(raw, &list); err != nil {
			return nil, apperr.Invalid("malformed payload: %v", err)
		}
		if len(list) == 0 {
			return nil, apperr.Invalid("empty payload")
		}
		return list, nil
	}

	var one UploadInput
	if err := json.Unmarshal(raw, &one); err != nil {
		return nil, apperr.Invalid("malformed payload: %v", err)
	}
	return []UploadInput{one}, nil
}

// FormInput builds a record from form values, honouring the same aliases as JSON.
func FormInput(get func(string) string) UploadInput {
	pick := func(keys ...string) string {
		for _, k := range keys {
			if v := get(k); v != "" {
				return v
			}
		}
		return ""
	}
	return UploadInput{
		Sender:       pick("sender"),
		Body:         pick("body", "message"),
		OccurredAtMs: pick("occurred_at_ms", "timestamp"),
		Kind:         pick("kind", "type"),
	}
}

func (in UploadInput) missing() []string {
	var out []string
	if strings.TrimSpace(in.Sender) == "" {
		out = append(out, "sender")
	}
	if strings.TrimSpace(in.Body) == "" {
		out = append(out, "body")
	}
	if strings.TrimSpace(in.OccurredAtMs) == "" {
		out = append(out, "occurred_at_ms")
	}
	if strings.TrimSpace(in.Kind) == "" {
		out = append(out, "kind")
	}
	return out
}

// parseMillis accepts epoch millis in [0, model.MaxOccurredAtMs], the range every
// backend stores and encodes. NaN and infinities fail the range check.
func parseMillis(s string) (int64, bool) {
	s = strings.TrimSpace(s)
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		return ms, ms >= 0 && ms <= model.MaxOccurredAtMs
	}
	// some device builds send 1.7e12 style numbers
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || f < 0 || f > float64(model.MaxOccurredAtMs) {
		return 0, false
	}
	return int64(f), true
}
