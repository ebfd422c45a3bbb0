package alerting

import "time"

// hourlyLimiter caps alert creations per wall-clock hour. The window resets
// at the top of each hour rather than sliding.
type hourlyLimiter struct {
	max    int
	window time.Time
	count  int
}

func newHourlyLimiter(max int) *hourlyLimiter {
	return &hourlyLimiter{max: max}
}

// allow consumes one slot in now's hour, or returns false when none remain.
func (l *hourlyLimiter) allow(now time.Time) bool {
	if l.max <= 0 {
		return true
	}
	hour := now.Truncate(time.Hour)
	if !hour.Equal(l.window) {
		l.window = hour
		l.count = 0
	}
	if l.count >= l.max {
		return false
	}
	l.count++
	return true
}

// exhausted reports whether now's hour has no slots left, without consuming one.
func (l *hourlyLimiter) exhausted(now time.Time) bool {
	return l.remaining(now) == 0
}

// remaining returns the slots left in now's hour.
func (l *hourlyLimiter) remaining(now time.Time) int {
	if l.max <= 0 {
		return -1
	}
	if !now.Truncate(time.Hour).Equal(l.window) {
		return l.max
	}
	return l.max - l.count
}
