package api

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/pidpatrol/pidpatrol/internal/monitor"
	"github.com/pidpatrol/pidpatrol/internal/monitor/names"
)

// payload is a decoded JSON object body.  Values stay raw until a handler
// knows what shape it expects.
type payload map[string]json.RawMessage

const (
	msgInvalidPayload = "invalid payload (expected JSON)"
	msgMissingNames   = "missing 'names' or 'processes'"
)

func decodePayload(body []byte) (payload, error) {
	var p payload
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, err
	}
	if p == nil {
		// a literal null
		return nil, &monitor.ValidationError{Reason: msgInvalidPayload}
	}
	return p, nil
}

func isFalsy(raw json.RawMessage) bool {
	switch s := string(bytes.TrimSpace(raw)); s {
	case "", "null", "false", "0", `""`, "[]", "{}":
		return true
	default:
		if f, err := strconv.ParseFloat(s, 64); err == nil && f == 0 {
			return true
		}
		return false
	}
}

// first returns the value of the first key with a truthy value.  When none
// is truthy the value of the last key is returned, or nil if it is absent or
// null.
func (p payload) first(keys ...string) json.RawMessage {
	for _, k := range keys {
		if v, ok := p[k]; ok && !isFalsy(v) {
			return v
		}
	}
	return p.lookup(keys[len(keys)-1])
}

// lookup returns the value of the first key that is present and not null.
func (p payload) lookup(keys ...string) json.RawMessage {
	for _, k := range keys {
		if v, ok := p[k]; ok && string(bytes.TrimSpace(v)) != "null" {
			return v
		}
	}
	return nil
}

// namesFrom turns a names value into an Input.  Arrays become a list whose
// items may be strings, numbers or objects with a "name" key; anything else
// in an array is dropped.  Scalars become delimited text.
func namesFrom(raw json.RawMessage) names.Input {
	if raw == nil {
		return names.Input{}
	}

	var list []json.RawMessage
	if err := json.Unmarshal(raw, &list); err == nil {
		items := make([]string, 0, len(list))
		for _, item := range list {
			if s, ok := scalarText(item); ok {
				items = append(items, s)
				continue
			}
			var obj struct {
				Name json.RawMessage `json:"name"`
			}
			if err := json.Unmarshal(item, &obj); err == nil && obj.Name != nil {
				if s, ok := scalarText(obj.Name); ok {
					items = append(items, s)
				}
			}
		}
		return names.FromList(items)
	}

	if s, ok := scalarText(raw); ok {
		return names.FromText(s)
	}

	var obj struct {
		Name json.RawMessage `json:"name"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil && obj.Name != nil {
		if s, ok := scalarText(obj.Name); ok {
			return names.FromList([]string{s})
		}
	}
	return names.FromList(nil)
}

// scalarText renders a JSON string or number as text.
func scalarText(raw json.RawMessage) (string, bool) {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, true
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String(), true
	}
	return "", false
}

// intervalFrom accepts a JSON number or a string holding one.
func intervalFrom(raw json.RawMessage) (float64, error) {
	bad := &monitor.ValidationError{Reason: monitor.MsgInvalidInterval}
	if raw == nil {
		return 0, bad
	}

	text, ok := scalarText(raw)
	if !ok {
		return 0, bad
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(text), 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, bad
	}
	return f, nil
}
