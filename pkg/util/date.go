package util

import (
    "strconv"
    "time"
)

// ParseTime accepts the time formats the admin API's ?since= query param
// allows: RFC3339, RFC3339Nano, or a unix-seconds timestamp. Returns
// (t, true) if any of them matched.
func ParseTime(s string) (time.Time, bool) {
    if s == "" {
        return time.Time{}, false
    }
    if t, err := time.Parse(time.RFC3339, s); err == nil {
        return t, true
    }
    if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
        return t, true
    }
    if ts, err := strconv.ParseInt(s, 10, 64); err == nil && ts > 0 {
        return time.Unix(ts, 0), true
    }
    return time.Time{}, false
}

// ParseTimeDefault parses a ?since= value, falling back to def (typically
// the zero time, meaning "no lower bound") when s is empty or unparseable.
func ParseTimeDefault(s string, def time.Time) time.Time {
    if t, ok := ParseTime(s); ok {
        return t
    }
    return def
}