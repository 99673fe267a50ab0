package extract

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"psut-lecture-notifier/pkg/lecture"
)

// ParseRecords decodes a model response into records.
//
// The top level must be a JSON array. Elements that are not objects are dropped.
// Within an object, any field whose value does not have the expected type is
// treated as absent, so a partially wrong answer never carries arbitrary shapes
// into the rest of the pipeline.
func ParseRecords(text string) ([]*lecture.Record, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyResponse
	}

	var raw []json.RawMessage
	if err := json.Unmarshal([]byte(text), &raw); err != nil {
		return nil, fmt.Errorf("decode response array: %w", err)
	}

	records := make([]*lecture.Record, 0, len(raw))
	for _, elem := range raw {
		var fields map[string]json.RawMessage
		if err := json.Unmarshal(elem, &fields); err != nil || fields == nil {
			continue
		}
		records = append(records, recordFromFields(fields))
	}
	return records, nil
}

func recordFromFields(f map[string]json.RawMessage) *lecture.Record {
	r := &lecture.Record{
		Title:                stringField(f["title"]),
		Date:                 stringField(f["date"]),
		Time:                 stringField(f["time"]),
		Location:             stringField(f["location"]),
		ActivityHours:        stringField(f["activity_hours"]),
		Restrictions:         stringField(f["restrictions"]),
		MaxRegistrations:     intField(f["max_registrations"]),
		CurrentRegistrations: intField(f["current_registrations"]),
		StartDate:            stringField(f["start_date"]),
		EndDate:              stringField(f["end_date"]),
		OfficerName:          stringField(f["officer_name"]),
		OfficerEmail:         stringField(f["officer_email"]),
		OfficerPhone:         stringField(f["officer_phone"]),
	}
	if u := stringField(f["source_url"]); u != nil {
		r.SourceURL = strings.TrimSpace(*u)
	}
	return r
}

// stringField accepts only JSON strings; blank strings count as absent.
func stringField(v json.RawMessage) *string {
	if len(v) == 0 || bytes.Equal(v, []byte("null")) {
		return nil
	}
	var s string
	if err := json.Unmarshal(v, &s); err != nil {
		return nil
	}
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return &s
}

// intField accepts only JSON numbers with no fractional part.
func intField(v json.RawMessage) *int {
	if len(v) == 0 || bytes.Equal(v, []byte("null")) {
		return nil
	}
	var f float64
	if err := json.Unmarshal(v, &f); err != nil {
		return nil
	}
	if f != math.Trunc(f) || f < math.MinInt32 || f > math.MaxInt32 {
		return nil
	}
	n := int(f)
	return &n
}
