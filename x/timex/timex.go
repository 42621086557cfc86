package timex

import "time"

// StampLayout is the sample timestamp format: UTC with millisecond precision.
const StampLayout = "2006-01-02T15:04:05.000Z"

// Stamp formats t in UTC as StampLayout.
func Stamp(t time.Time) string { return t.UTC().Format(StampLayout) }

// Clock formats t in UTC the way console reports print it.
func Clock(t time.Time) string { return t.UTC().Format("2006.01.02 15:04:05") }
