package notify

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"strconv"
	"strings"
)

var ErrEmptyRequest = errors.New("empty request")

// Request is an inbound notification payload.
type Request struct {
	// Fields holds the object form. Non-object input is wrapped as
	// {"message": value}.
	Fields map[string]any

	// raw is the decoded payload as received, used for dedup.
	raw any
}

// ParseRequest decodes a payload. Numbers are kept as json.Number so the
// canonical form matches the input digits.
func ParseRequest(data json.RawMessage) (Request, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return Request{}, ErrEmptyRequest
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return Request{}, fmt.Errorf("decode request: %w", err)
	}
	return NewRequest(v), nil
}

// NewRequest wraps an already decoded value.
func NewRequest(v any) Request {
	if obj, ok := v.(map[string]any); ok {
		return Request{Fields: maps.Clone(obj), raw: obj}
	}
	return Request{Fields: map[string]any{"message": v}, raw: v}
}

// TextRequest is shorthand for a bare message body.
func TextRequest(text string) Request { return NewRequest(text) }

// Key is the canonical serialization used for duplicate detection.
// encoding/json sorts map keys, so structurally equal payloads match.
func (r Request) Key() string {
	v := r.raw
	if v == nil {
		v = r.Fields
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%#v", v)
	}
	return string(b)
}

// Token returns the per-call credential override, if any.
func (r Request) Token() (string, bool) {
	v, ok := r.Fields["token"]
	if !ok || !truthy(v) {
		return "", false
	}
	return stringify(v), true
}

// truthy mirrors the loose falsy set callers rely on: absent, null, false,
// 0 and "" all mean "use the default".
func truthy(v any) bool {
	switch x := v.(type) {
	case nil:
		return false
	case bool:
		return x
	case string:
		return x != ""
	case json.Number:
		f, err := x.Float64()
		return err != nil || f != 0
	case float64:
		return x != 0
	case int:
		return x != 0
	case int64:
		return x != 0
	default:
		return true
	}
}

func stringify(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case json.Number:
		return x.String()
	case bool:
		return strconv.FormatBool(x)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	default:
		b, err := json.Marshal(x)
		if err != nil {
			return fmt.Sprint(x)
		}
		return string(b)
	}
}

// number returns v as a float when it is a JSON number or a numeric string.
func number(v any) (float64, bool) {
	switch x := v.(type) {
	case json.Number:
		f, err := x.Float64()
		return f, err == nil
	case float64:
		return x, true
	case int:
		return float64(x), true
	case int64:
		return float64(x), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		return f, err == nil
	}
	return 0, false
}

// parseIntOr parses the leading integer of v (so "120s" gives 120 and 7.9
// gives 7) and falls back to def when nothing parses or the result is 0.
func parseIntOr(v any, def int) int {
	s := strings.TrimSpace(stringify(v))
	end := 0
	if end < len(s) && (s[end] == '-' || s[end] == '+') {
		end++
	}
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	n, err := strconv.Atoi(s[:end])
	if err != nil || n == 0 {
		return def
	}
	return n
}

// Blank reports a scalar payload that carries nothing to send ("", 0, false).
func (r Request) Blank() bool {
	if _, isObj := r.raw.(map[string]any); isObj {
		return false
	}
	return !truthy(r.Fields["message"])
}
