package model

import (
	"encoding/json"
	"strings"
	"time"
)

var dateLayouts = []string{
	"2006-01-02",
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// ParseDate accepts the date layouts the forecasting service emits and
// returns UTC. Timestamps without a zone are taken as UTC; fractional
// seconds are allowed on every layout with a time part.
func ParseDate(raw string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

// LenientTime decodes an optional JSON timestamp. Null, non-string and
// unparseable values yield nil instead of an error.
func LenientTime(raw json.RawMessage) *time.Time {
	if len(raw) == 0 {
		return nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil
	}
	t, ok := ParseDate(s)
	if !ok {
		return nil
	}
	return &t
}

// UnmarshalJSON implements json.Unmarshaler. trained_at is optional and
// decoded leniently so a malformed timestamp never drops the forecast.
func (f *ForecastResult) UnmarshalJSON(data []byte) error {
	type plain ForecastResult
	aux := struct {
		*plain
		TrainedAt json.RawMessage `json:"trained_at,omitempty"`
	}{plain: (*plain)(f)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	f.TrainedAt = LenientTime(aux.TrainedAt)
	return nil
}
