package sleep

import (
	"errors"
	"math"
	"strconv"
	"strings"
)

// NormalizeSeconds validates and clamps a direct-seconds input.
//
// Rules, in order:
//  1. NaN fails with ErrCodeInvalidArgument.
//  2. +Inf becomes max.
//  3. Values <= 0 (including -0 and -Inf) become 0.
//  4. Values above max become max.
//  5. Anything else passes through.
func NormalizeSeconds(v, max float64) (float64, error) {
	if math.IsNaN(v) {
		return 0, NewNaNError()
	}
	return clamp(v, max), nil
}

// ParseSeconds parses numeric text for the direct-seconds path.
//
// Text beyond the float64 range parses as the matching infinity instead of
// failing, so "1e400" clamps like "Infinity" once normalized.
func ParseSeconds(s string) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil && !errors.Is(err, strconv.ErrRange) {
		return 0, err
	}
	return v, nil
}

// IntervalSeconds converts an interval to canonical seconds, approximating
// a month as 30 days. Integer fields cannot yield NaN, so rule 1 is skipped.
func IntervalSeconds(iv Interval, max float64) float64 {
	seconds := float64(iv.Days)*secondsPerDay +
		float64(iv.Months)*secondsPerMonth +
		float64(iv.Micros)/microsPerSecond
	return clamp(seconds, max)
}

// SecondsUntil converts a target timestamp to canonical seconds relative
// to now. The sentinels short-circuit before any subtraction, so
// neither can overflow.
func SecondsUntil(target, now Timestamp, max float64) float64 {
	switch target {
	case NegativeInfinity:
		return 0
	case PositiveInfinity:
		return max
	}
	return clamp(diffSeconds(target, now), max)
}

// diffSeconds returns (target - now) in seconds. A finite now can still be
// far enough from target to overflow int64, so saturate instead of wrapping.
func diffSeconds(target, now Timestamp) float64 {
	diff := int64(target) - int64(now)
	if (int64(now) < 0 && diff < int64(target)) || (int64(now) > 0 && diff > int64(target)) {
		if int64(now) < 0 {
			return math.Inf(1)
		}
		return math.Inf(-1)
	}
	return float64(diff) / microsPerSecond
}

// clamp applies rules 2 through 5.
func clamp(v, max float64) float64 {
	switch {
	case math.IsInf(v, 1):
		return max
	case v <= 0:
		return 0
	case v > max:
		return max
	}
	return v
}
