package engine

import "time"

// Overlaps reports whether the closed intervals [aStart, aEnd] and
// [bStart, bEnd] share at least one instant.
func Overlaps(aStart, aEnd, bStart, bEnd time.Time) bool {
	return !aStart.After(bEnd) && !bStart.After(aEnd)
}

// overlapsHalfOpen compares [aStart, aEnd) with [bStart, bEnd) by turning both
// into their closed equivalent at clock resolution.
func overlapsHalfOpen(aStart, aEnd, bStart, bEnd time.Time) bool {
	return Overlaps(aStart, lastInstant(aEnd), bStart, lastInstant(bEnd))
}

func lastInstant(end time.Time) time.Time {
	return end.Add(-time.Nanosecond)
}
