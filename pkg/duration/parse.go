// Package duration parses the duration-string grammar abwart's age policies
// accept: a single integer followed by a unit suffix.
package duration

import (
	"fmt"
	"regexp"
	"strconv"
	"time"
)

// Common duration constants for the human-friendly units.
const (
	Day  = 24 * time.Hour
	Week = 7 * Day
	Year = 365 * Day
)

// unitMultipliers maps the grammar's human-friendly unit suffixes to their
// duration values. ns/us/ms/s/m/h fall back to time.ParseDuration.
var unitMultipliers = map[string]time.Duration{
	"d": Day,
	"w": Week,
	"y": Year,
}

// pattern matches the full grammar: one or more digits followed by exactly
// one recognized unit suffix. Longer suffixes are listed first so "ms" isn't
// swallowed as "m" plus a stray "s".
var pattern = regexp.MustCompile(`^([0-9]+)(ns|us|ms|s|m|h|d|w|y)$`)

// Parse parses a duration string matching `[0-9]+(ns|us|ms|s|m|h|d|w|y)`.
//
// Examples:
//
//	Parse("30s")  // 30 seconds
//	Parse("1d")   // 24 hours
//	Parse("2w")   // 14 days
//	Parse("1y")   // 365 days
func Parse(s string) (time.Duration, error) {
	match := pattern.FindStringSubmatch(s)
	if match == nil {
		return 0, fmt.Errorf("invalid duration %q: expected [0-9]+(ns|us|ms|s|m|h|d|w|y)", s)
	}

	value, err := strconv.ParseInt(match[1], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid duration value %q in %q: %w", match[1], s, err)
	}

	unit := match[2]
	if multiplier, ok := unitMultipliers[unit]; ok {
		return time.Duration(value) * multiplier, nil
	}

	// Standard Go units (ns, us, ms, s, m, h) parse as-is.
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q: %w", s, err)
	}
	return d, nil
}
