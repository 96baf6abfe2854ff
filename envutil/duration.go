package envutil

import (
	"fmt"
	"regexp"
	"strconv"
	"time"
)

// durationRe matches the positional [Ny][Nw][Nd][Nh][Nm][Ns] grammar;
// every component is optional but at least one must be present, and
// components must appear in that order (years first, seconds last).
var durationRe = regexp.MustCompile(`^(?:(\d+)y)?(?:(\d+)w)?(?:(\d+)d)?(?:(\d+)h)?(?:(\d+)m)?(?:(\d+)s)?$`)

const (
	day  = 24 * time.Hour
	week = 7 * day
	year = 365 * day
)

// ParseDuration parses the domain's positional duration grammar
// ("1h30m", "2w3d", "90s") and returns it as microseconds, resolving the
// unit ambiguity noted in DESIGN NOTES §9 in favor of microseconds
// internally. Callers at the API boundary (operator config) that need
// seconds should divide by 1e6.
func ParseDuration(s string) (int64, error) {
	if s == "" {
		return 0, fmt.Errorf("envutil: empty duration string")
	}
	m := durationRe.FindStringSubmatch(s)
	if m == nil || m[0] == "" {
		return 0, fmt.Errorf("envutil: malformed duration %q", s)
	}

	var total time.Duration
	units := []time.Duration{year, week, day, time.Hour, time.Minute, time.Second}
	anySet := false
	for i, group := range m[1:] {
		if group == "" {
			continue
		}
		anySet = true
		n, err := strconv.ParseInt(group, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("envutil: invalid duration component %q: %w", group, err)
		}
		total += time.Duration(n) * units[i]
	}
	if !anySet {
		return 0, fmt.Errorf("envutil: malformed duration %q", s)
	}

	return total.Microseconds(), nil
}

// MustParseDuration is ParseDuration for callers that treat a malformed
// literal as a construction-time configuration error.
func MustParseDuration(s string) int64 {
	d, err := ParseDuration(s)
	if err != nil {
		panic(err)
	}
	return d
}
