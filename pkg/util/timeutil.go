package util

import "time"

// NowUTC exposes time.Now for deterministic testing.
func NowUTC() time.Time {
	return time.Now().UTC()
}

// TruncateUTC drops sub-second precision, matching what the wire format keeps.
func TruncateUTC(t time.Time) time.Time {
	return t.UTC().Truncate(time.Second)
}
