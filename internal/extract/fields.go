package extract

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// The field types below never fail to decode: a value of an unexpected JSON
// type decodes to the zero value so one odd field cannot sink a whole item.

func decodeAny(b []byte) any {
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil
	}
	return v
}

func stringOf(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case json.Number:
		return t.String()
	default:
		return ""
	}
}

type flexString string

func (s *flexString) UnmarshalJSON(b []byte) error {
	*s = flexString(stringOf(decodeAny(b)))
	return nil
}

func (s flexString) String() string {
	return strings.TrimSpace(string(s))
}

// flexInt mirrors integer parsing of whatever the provider sent: numbers are
// truncated, numeric strings parsed (thousands separators allowed), anything
// else is 0. Negative counts are clamped to 0.
type flexInt int

func (n *flexInt) UnmarshalJSON(b []byte) error {
	*n = flexInt(parseCount(decodeAny(b)))
	return nil
}

func parseCount(v any) int {
	var s string
	switch t := v.(type) {
	case json.Number:
		s = t.String()
	case string:
		s = t
	default:
		return 0
	}

	s = strings.TrimSpace(strings.ReplaceAll(s, ",", ""))
	end := 0
	for end < len(s) && (s[end] >= '0' && s[end] <= '9' || end == 0 && (s[end] == '-' || s[end] == '+')) {
		end++
	}
	n, err := strconv.Atoi(s[:end])
	if err != nil || n < 0 {
		return 0
	}
	return n
}

// flexList records the length of an array field; non-arrays count as empty.
type flexList int

func (l *flexList) UnmarshalJSON(b []byte) error {
	if arr, ok := decodeAny(b).([]any); ok {
		*l = flexList(len(arr))
	} else {
		*l = 0
	}
	return nil
}

// dateField accepts either a date string or an object carrying a "date"
// string (or a millisecond "timestamp").
type dateField struct {
	raw string
	ms  int64
}

func (d *dateField) UnmarshalJSON(b []byte) error {
	*d = dateField{}
	switch t := decodeAny(b).(type) {
	case string:
		d.raw = strings.TrimSpace(t)
	case map[string]any:
		d.raw = strings.TrimSpace(stringOf(t["date"]))
		if n, ok := t["timestamp"].(json.Number); ok {
			d.ms, _ = n.Int64()
		}
	}
	return nil
}

func (d dateField) present() bool {
	return d.raw != "" || d.ms > 0
}

var dateLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.000Z0700",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"Jan 2, 2006",
}

// resolve returns the parsed time or fallback when nothing usable is present.
func (d dateField) resolve(fallback time.Time) time.Time {
	if d.raw != "" {
		for _, layout := range dateLayouts {
			if t, err := time.Parse(layout, d.raw); err == nil {
				return t.UTC()
			}
		}
	}
	if d.ms > 0 {
		return time.UnixMilli(d.ms).UTC()
	}
	return fallback
}

func firstDate(fields ...dateField) dateField {
	for _, f := range fields {
		if f.present() {
			return f
		}
	}
	return dateField{}
}

// authorField is either a plain name or an object with name and handle
// sub-fields under several possible keys.
type authorField struct {
	name   string
	handle string
}

var (
	authorNameKeys   = []string{"name", "authorName", "displayName", "fullName"}
	authorHandleKeys = []string{"publicIdentifier", "username"}
)

func (a *authorField) UnmarshalJSON(b []byte) error {
	*a = authorField{}
	switch t := decodeAny(b).(type) {
	case string:
		a.name = strings.TrimSpace(t)
	case map[string]any:
		a.name = firstKey(t, authorNameKeys)
		a.handle = firstKey(t, authorHandleKeys)
	}
	return nil
}

func firstKey(m map[string]any, keys []string) string {
	for _, k := range keys {
		if s, ok := m[k].(string); ok && strings.TrimSpace(s) != "" {
			return strings.TrimSpace(s)
		}
	}
	return ""
}

// transcriptField accepts a plain transcript string or the list of subtitle
// tracks some video actors return ({plaintext|text|srt, language}).
type transcriptField struct {
	text     string
	language string
}

func (f *transcriptField) UnmarshalJSON(b []byte) error {
	*f = transcriptField{}
	switch t := decodeAny(b).(type) {
	case string:
		f.text = strings.TrimSpace(t)
	case []any:
		for _, track := range t {
			m, ok := track.(map[string]any)
			if !ok {
				continue
			}
			if text := firstKey(m, []string{"plaintext", "text", "srt"}); text != "" {
				f.text = text
				f.language = firstKey(m, []string{"language", "languageCode"})
				return nil
			}
		}
	}
	return nil
}

// durationField holds seconds, given as a number, numeric string or clock
// notation ("1:02:03", "12:34").
type durationField int

func (d *durationField) UnmarshalJSON(b []byte) error {
	v := decodeAny(b)
	if s, ok := v.(string); ok && strings.Contains(s, ":") {
		*d = durationField(parseClock(s))
		return nil
	}
	*d = durationField(parseCount(v))
	return nil
}

func parseClock(s string) int {
	total := 0
	for _, part := range strings.Split(strings.TrimSpace(s), ":") {
		n, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil || n < 0 {
			return 0
		}
		total = total*60 + n
	}
	return total
}

func firstString(values ...flexString) string {
	for _, v := range values {
		if s := v.String(); s != "" {
			return s
		}
	}
	return ""
}

func firstInt(values ...flexInt) int {
	for _, v := range values {
		if v != 0 {
			return int(v)
		}
	}
	return 0
}

func firstDuration(values ...durationField) int {
	for _, v := range values {
		if v != 0 {
			return int(v)
		}
	}
	return 0
}
