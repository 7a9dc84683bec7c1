// Package timing owns session durations: parsing, the per-session countdown
// timer, the persisted remaining-time store and startup reconciliation.
package timing

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

var sessionDurationPattern = regexp.MustCompile(`^(\d+(?:\.\d+)?)h$`)

// ParseSessionDuration parses "Nh" or "N.Mh". It reports false for empty,
// malformed or non-positive values, which all mean an unlimited session.
func ParseSessionDuration(s string) (time.Duration, bool) {
	m := sessionDurationPattern.FindStringSubmatch(strings.TrimSpace(strings.ToLower(s)))
	if m == nil {
		return 0, false
	}
	hours, err := strconv.ParseFloat(m[1], 64)
	if err != nil || hours <= 0 {
		return 0, false
	}
	d := time.Duration(hours * float64(time.Hour)).Round(time.Millisecond)
	if d <= 0 {
		return 0, false
	}
	return d, true
}

// FormatRemaining renders a remaining duration as "1h02m03s".
func FormatRemaining(d time.Duration) string {
	if d <= 0 {
		return "0s"
	}
	return d.Truncate(time.Second).String()
}
