package store

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/roach88/revops/internal/dataset"
)

// timeLayout is used for every stored timestamp.
const timeLayout = time.RFC3339Nano

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse time %q: %w", s, err)
	}
	return t, nil
}

func formatOptionalTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}

func parseOptionalTime(s *string) (*time.Time, error) {
	if s == nil {
		return nil, nil
	}
	t, err := parseTime(*s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// marshalFields stores an issue's field list as canonical JSON.
func marshalFields(fields []string) (string, error) {
	arr := make([]any, len(fields))
	for i, f := range fields {
		arr[i] = f
	}
	data, err := dataset.MarshalCanonical(arr)
	if err != nil {
		return "", fmt.Errorf("marshal fields: %w", err)
	}
	return string(data), nil
}

func unmarshalFields(data string) ([]string, error) {
	var fields []string
	if err := json.Unmarshal([]byte(data), &fields); err != nil {
		return nil, fmt.Errorf("unmarshal fields: %w", err)
	}
	if fields == nil {
		fields = []string{}
	}
	return fields, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
