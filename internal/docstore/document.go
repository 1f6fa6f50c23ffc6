package docstore

import (
	"encoding/json"
	"fmt"
	"time"
)

// TimestampLayout is how server timestamps are stored. It is fixed width
// and always UTC, so string order equals time order.
const TimestampLayout = "2006-01-02T15:04:05.000000000Z"

type serverTimestamp struct{}

// ServerTimestamp is replaced by the commit time when it appears as a
// top-level field value of a write.
var ServerTimestamp = serverTimestamp{}

// Document is one stored record.
type Document struct {
	Path       string
	ID         string
	Data       map[string]any
	CreateTime time.Time
	UpdateTime time.Time
}

func (d Document) clone() Document {
	d.Data = cloneData(d.Data)
	return d
}

// DataTo decodes the document fields into out. The document id is not
// part of Data; callers that want it set it themselves.
func (d Document) DataTo(out any) error {
	raw, err := json.Marshal(d.Data)
	if err != nil {
		return fmt.Errorf("encode %s: %w", d.Path, err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode %s: %w", d.Path, err)
	}
	return nil
}

// Snapshot is the full result of a query at one instant.
type Snapshot struct {
	Docs     []Document
	ReadTime time.Time
}

func formatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

// normalize resolves sentinels and converts data to plain JSON values
// (string, float64, bool, nil, []any, map[string]any).
func normalize(data map[string]any, commit time.Time) (map[string]any, error) {
	resolved := make(map[string]any, len(data))
	for k, v := range data {
		if k == "" {
			return nil, fmt.Errorf("empty field name")
		}
		if _, ok := v.(serverTimestamp); ok {
			resolved[k] = formatTimestamp(commit)
			continue
		}
		if t, ok := v.(time.Time); ok {
			resolved[k] = formatTimestamp(t)
			continue
		}
		resolved[k] = v
	}
	raw, err := json.Marshal(resolved)
	if err != nil {
		return nil, err
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// normalizeValue converts a single filter operand the same way field
// values are converted on write.
func normalizeValue(v any) (any, error) {
	if t, ok := v.(time.Time); ok {
		return formatTimestamp(t), nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func cloneData(data map[string]any) map[string]any {
	if data == nil {
		return nil
	}
	out := make(map[string]any, len(data))
	for k, v := range data {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return cloneData(t)
	case []any:
		out := make([]any, len(t))
		for i := range t {
			out[i] = cloneValue(t[i])
		}
		return out
	default:
		return v
	}
}
