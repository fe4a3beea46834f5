package notify

import (
	"math"
	"strconv"

	"pushbridge/internal/provider"
)

const (
	// MillisThreshold is 2000-01-01T00:00:00 in milliseconds (local CET
	// midnight). Timestamps above it are taken as milliseconds.
	MillisThreshold = 946681200000

	DefaultRetry  = 60
	DefaultExpire = 3600
)

// Defaults are the instance-level values a request falls back to.
type Defaults struct {
	User     string
	Token    string
	Title    string
	Sound    string
	Priority int
	URL      string
	URLTitle string
	Device   string
}

// DefaultsFromNative reads the plain defaults out of an instance's native
// config. The token is resolved separately.
func DefaultsFromNative(native map[string]any, token string) Defaults {
	d := Defaults{
		Token:    token,
		User:     nativeString(native, "user"),
		Title:    nativeString(native, "title"),
		Sound:    nativeString(native, "sound"),
		URL:      nativeString(native, "url"),
		URLTitle: nativeString(native, "url_title"),
		Device:   nativeString(native, "device"),
	}
	if v, ok := native["priority"]; ok && truthy(v) {
		d.Priority = parseIntOr(v, 0)
	}
	return d
}

func nativeString(native map[string]any, key string) string {
	v, ok := native[key]
	if !ok || !truthy(v) {
		return ""
	}
	return stringify(v)
}

var knownFields = map[string]struct{}{
	"message": {}, "title": {}, "sound": {}, "priority": {}, "url": {},
	"url_title": {}, "device": {}, "timestamp": {}, "token": {},
	"retry": {}, "expire": {}, "user": {},
}

// Normalize builds the outbound message. It has no side effects and does
// not modify r.
func Normalize(r Request, d Defaults) provider.Message {
	f := r.Fields
	msg := provider.Message{
		User:     d.User,
		Token:    d.Token,
		Message:  stringify(f["message"]),
		Title:    pick(f["title"], d.Title),
		Sound:    pick(f["sound"], d.Sound),
		URL:      pick(f["url"], d.URL),
		URLTitle: pick(f["url_title"], d.URLTitle),
		Device:   pick(f["device"], d.Device),
		Priority: d.Priority,
	}
	if tok, ok := r.Token(); ok {
		msg.Token = tok
	}
	// A non-integral priority is not a Pushover level; the default stays.
	if v := f["priority"]; truthy(v) {
		if n, ok := number(v); ok && n == math.Trunc(n) {
			msg.Priority = int(n)
		}
	}
	// Numeric timestamps become whole seconds. Anything else is passed
	// through unchanged for the provider to judge.
	var rawTimestamp any
	if v, ok := f["timestamp"]; ok && v != nil {
		if ts, ok := number(v); ok {
			if ts > MillisThreshold {
				ts /= 1000
			}
			msg.Timestamp = int64(math.Round(ts))
		} else {
			rawTimestamp = v
		}
	}

	if msg.Priority == provider.PriorityEmergency {
		msg.Retry = parseIntOr(f["retry"], DefaultRetry)
		msg.Expire = parseIntOr(f["expire"], DefaultExpire)
	} else {
		msg.Retry = parseIntOr(f["retry"], 0)
		msg.Expire = parseIntOr(f["expire"], 0)
	}

	for k, v := range f {
		if _, known := knownFields[k]; known || v == nil {
			continue
		}
		if msg.Extra == nil {
			msg.Extra = map[string]string{}
		}
		msg.Extra[k] = extraValue(v)
	}
	if rawTimestamp != nil {
		if msg.Extra == nil {
			msg.Extra = map[string]string{}
		}
		msg.Extra["timestamp"] = extraValue(rawTimestamp)
	}
	return msg
}

func pick(v any, def string) string {
	if truthy(v) {
		return stringify(v)
	}
	return def
}

// Pushover expects flags such as html and monospace as 0/1.
func extraValue(v any) string {
	if b, ok := v.(bool); ok {
		if b {
			return "1"
		}
		return "0"
	}
	return stringify(v)
}

// FormatPriority is used in logs.
func FormatPriority(p int) string {
	switch p {
	case -2:
		return "lowest"
	case -1:
		return "low"
	case 0:
		return "normal"
	case 1:
		return "high"
	case provider.PriorityEmergency:
		return "emergency"
	}
	return strconv.Itoa(p)
}
