package cache

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

const (
	day   = 24 * time.Hour
	week  = 7 * day
	month = 30 * day
	year  = 365 * day
)

var expiryUnits = map[string]time.Duration{
	"sec":    time.Second,
	"second": time.Second,
	"min":    time.Minute,
	"minute": time.Minute,
	"hour":   time.Hour,
	"day":    day,
	"week":   week,
	"month":  month,
	"year":   year,
}

// ParseExpiry converts a TTL such as "+1 hour", "2 days" or "90m" into a
// positive duration.
func ParseExpiry(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty expiry")
	}

	if d, err := time.ParseDuration(strings.TrimPrefix(s, "+")); err == nil {
		if d <= 0 {
			return 0, fmt.Errorf("expiry %q must be positive", s)
		}
		return d, nil
	}

	parts := strings.Fields(strings.TrimPrefix(s, "+"))
	if len(parts) != 2 {
		return 0, fmt.Errorf("invalid expiry %q", s)
	}

	n, err := strconv.Atoi(parts[0])
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid expiry amount in %q", s)
	}

	unit := strings.TrimSuffix(strings.ToLower(parts[1]), "s")
	d, ok := expiryUnits[unit]
	if !ok {
		return 0, fmt.Errorf("unknown expiry unit in %q", s)
	}

	if time.Duration(n) > time.Duration(math.MaxInt64)/d {
		return 0, fmt.Errorf("expiry %q is too large", s)
	}

	return time.Duration(n) * d, nil
}
