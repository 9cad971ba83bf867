package apierr

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// locationPrefixes are the FastAPI-style leading loc segments that name the
// request part rather than the field.
var locationPrefixes = map[string]bool{
	"body":   true,
	"query":  true,
	"path":   true,
	"header": true,
	"form":   true,
}

type detailItem struct {
	Loc []any  `json:"loc"`
	Msg string `json:"msg"`
}

// ParseDetail extracts the "detail" member of an error body.
//
// A string detail is returned as-is. A list of {loc, msg} objects becomes
// per-field errors (and an empty detail string). Any other shape is returned
// as its compact JSON text. Bodies that are not JSON objects yield nothing.
func ParseDetail(body []byte) (string, []FieldError) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 || body[0] != '{' {
		return "", nil
	}

	var envelope struct {
		Detail json.RawMessage `json:"detail"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return "", nil
	}
	raw := bytes.TrimSpace(envelope.Detail)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return "", nil
	}

	switch raw[0] {
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			return s, nil
		}
	case '[':
		var items []detailItem
		if err := json.Unmarshal(raw, &items); err == nil && allHaveMessages(items) {
			fields := make([]FieldError, 0, len(items))
			for _, it := range items {
				fields = append(fields, FieldError{Field: fieldName(it.Loc), Message: it.Msg})
			}
			return "", fields
		}
	}

	var compact bytes.Buffer
	if err := json.Compact(&compact, raw); err != nil {
		return string(raw), nil
	}
	return compact.String(), nil
}

func allHaveMessages(items []detailItem) bool {
	if len(items) == 0 {
		return false
	}
	for _, it := range items {
		if it.Msg == "" {
			return false
		}
	}
	return true
}

func fieldName(loc []any) string {
	parts := make([]string, 0, len(loc))
	for i, seg := range loc {
		s := fmt.Sprint(seg)
		if f, ok := seg.(float64); ok {
			s = fmt.Sprintf("%d", int64(f))
		}
		if i == 0 && locationPrefixes[s] && len(loc) > 1 {
			continue
		}
		parts = append(parts, s)
	}
	return strings.Join(parts, ".")
}
