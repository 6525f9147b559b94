package util

import "strconv"

// ParseIntDefault parses a ?limit= query param, falling back to def when s
// is empty or not a valid integer rather than rejecting the request.
func ParseIntDefault(s string, def int) int {
    if s == "" {
        return def
    }
    v, err := strconv.Atoi(s)
    if err != nil {
        return def
    }
    return v
}