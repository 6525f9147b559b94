package util

import (
    "strconv"
    "testing"
    "time"
)

// These mirror the ?since= values the admin txlog endpoint actually
// receives: an RFC3339 timestamp from a human operator, a unix timestamp
// from a scripted poller, and an empty/garbage value that must fall back
// to "no lower bound" rather than error the request.

func TestParseTimeRFC3339(t *testing.T) {
    s := "2024-10-10T10:10:10Z"
    got, ok := ParseTime(s)
    if !ok {
        t.Fatalf("expected ok")
    }
    if got.UTC().Format(time.RFC3339) != s {
        t.Fatalf("unexpected time %v", got)
    }
}

func TestParseTimeUnixSeconds(t *testing.T) {
    ts := time.Date(2024, 10, 10, 10, 10, 10, 0, time.UTC).Unix()
    got, ok := ParseTime(strconv.FormatInt(ts, 10))
    if !ok {
        t.Fatalf("expected ok")
    }
    if got.Unix() != ts {
        t.Fatalf("unexpected unix %v, want %v", got.Unix(), ts)
    }
}

func TestParseTimeDefaultFallsBackOnGarbage(t *testing.T) {
    def := time.Time{}
    if got := ParseTimeDefault("not-a-time", def); !got.Equal(def) {
        t.Fatalf("expected zero-value fallback, got %v", got)
    }
    if got := ParseTimeDefault("", def); !got.Equal(def) {
        t.Fatalf("expected zero-value fallback for empty input, got %v", got)
    }
}

func TestParseIntDefaultFallsBackOnGarbage(t *testing.T) {
    if got := ParseIntDefault("50", 25); got != 50 {
        t.Fatalf("got %d, want 50", got)
    }
    if got := ParseIntDefault("", 25); got != 25 {
        t.Fatalf("got %d, want default 25", got)
    }
    if got := ParseIntDefault("abc", 25); got != 25 {
        t.Fatalf("got %d, want default 25", got)
    }
}
