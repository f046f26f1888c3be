// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package field

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/canonical/ecsql/internal/schema"
)

// The julian day of the unix epoch.
const unixEpochJulianDay = 2440587.5

const msPerDay = 86400000

// JulianDay returns the julian day DateTime values are stored as. Utc values
// are converted to UTC first, Local values to local time; the wall clock time
// of the result is what gets stored.
func JulianDay(t time.Time, info schema.DateTimeInfo) float64 {
	switch info.Kind {
	case schema.DateTimeKindUtc:
		t = t.UTC()
	case schema.DateTimeKindLocal:
		t = t.Local()
	}
	wall := time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), time.UTC)
	if info.Component == schema.DateTimeComponentDate {
		wall = time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	}
	return float64(wall.UnixMilli())/msPerDay + unixEpochJulianDay
}

// FromJulianDay converts a stored julian day back to a time, rounded to the
// millisecond. Local values are returned in the local time zone, all others
// in UTC.
func FromJulianDay(jd float64, info schema.DateTimeInfo) time.Time {
	ms := int64(math.Round((jd - unixEpochJulianDay) * msPerDay))
	t := time.UnixMilli(ms).UTC()
	if info.Component == schema.DateTimeComponentDate {
		t = time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	}
	if info.Kind == schema.DateTimeKindLocal {
		t = time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), time.Local)
	}
	return t
}

// The to* functions convert raw column values, as returned by the driver or
// decoded from JSON, following SQLite's own conversion rules where they
// apply. The boolean result is false if v cannot be converted at all; NULL
// converts to the zero value.

func toInt64(v any) (int64, bool) {
	switch v := v.(type) {
	case nil:
		return 0, true
	case int64:
		return v, true
	case int:
		return int64(v), true
	case float64:
		return int64(v), true
	case bool:
		if v {
			return 1, true
		}
		return 0, true
	case json.Number:
		return parseInt(string(v))
	case string:
		return parseInt(v)
	case []byte:
		return parseInt(string(v))
	}
	return 0, false
}

// parseInt reads text as a decimal integer. Text that is a real number is
// truncated; otherwise its leading digits are used, so "0x10" reads as 0.
func parseInt(s string) (int64, bool) {
	s = strings.TrimSpace(s)
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return i, true
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return int64(f), true
	}
	end := 0
	if end < len(s) && (s[end] == '-' || s[end] == '+') {
		end++
	}
	digits := end
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	if end == digits {
		return 0, false
	}
	i, err := strconv.ParseInt(s[:end], 10, 64)
	return i, err == nil
}

func toDouble(v any) (float64, bool) {
	switch v := v.(type) {
	case nil:
		return 0, true
	case float64:
		return v, true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	case int64:
		return float64(v), true
	case int:
		return float64(v), true
	case bool:
		if v {
			return 1, true
		}
		return 0, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		return f, err == nil
	case []byte:
		f, err := strconv.ParseFloat(strings.TrimSpace(string(v)), 64)
		return f, err == nil
	}
	return 0, false
}

func toBool(v any) (bool, bool) {
	switch v := v.(type) {
	case bool:
		return v, true
	case string:
		if b, err := strconv.ParseBool(strings.TrimSpace(v)); err == nil {
			return b, true
		}
	}
	i, ok := toInt64(v)
	return i != 0, ok
}

func toText(v any) (string, bool) {
	switch v := v.(type) {
	case nil:
		return "", true
	case string:
		return v, true
	case []byte:
		return string(v), true
	case json.Number:
		return string(v), true
	case int64:
		return strconv.FormatInt(v, 10), true
	case int:
		return strconv.Itoa(v), true
	case float64:
		return strconv.FormatFloat(v, 'g', -1, 64), true
	case bool:
		if v {
			return "1", true
		}
		return "0", true
	case time.Time:
		return v.Format(time.RFC3339Nano), true
	}
	return "", false
}

func toBlob(v any) ([]byte, bool) {
	switch v := v.(type) {
	case nil:
		return nil, true
	case []byte:
		return v, true
	case string:
		return []byte(v), true
	}
	s, ok := toText(v)
	return []byte(s), ok
}

func toGuid(v any) (uuid.UUID, bool) {
	switch v := v.(type) {
	case nil:
		return uuid.Nil, true
	case []byte:
		if len(v) == 16 {
			id, err := uuid.FromBytes(v)
			return id, err == nil
		}
		id, err := uuid.ParseBytes(v)
		return id, err == nil
	case string:
		id, err := uuid.Parse(v)
		return id, err == nil
	}
	return uuid.Nil, false
}

var dateTimeLayouts = []string{time.RFC3339Nano, "2006-01-02 15:04:05.999999999", "2006-01-02T15:04:05.999999999", "2006-01-02"}

func toDateTime(v any, info schema.DateTimeInfo) (time.Time, bool) {
	switch v := v.(type) {
	case nil:
		return time.Time{}, true
	case time.Time:
		return v, true
	case float64:
		return FromJulianDay(v, info), true
	case json.Number:
		f, err := v.Float64()
		return FromJulianDay(f, info), err == nil
	case int64:
		return FromJulianDay(float64(v), info), true
	case string:
		for _, layout := range dateTimeLayouts {
			if t, err := time.Parse(layout, v); err == nil {
				return t, true
			}
		}
	}
	return time.Time{}, false
}
