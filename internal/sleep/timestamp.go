package sleep

import (
	"fmt"
	"math"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"
)

// Timestamp is a count of microseconds since the Unix epoch, UTC.
// Two values are reserved as sentinels for unbounded past and future.
type Timestamp int64

const (
	// NegativeInfinity stands for a point before every real instant.
	NegativeInfinity Timestamp = math.MinInt64

	// PositiveInfinity stands for a point after every real instant.
	PositiveInfinity Timestamp = math.MaxInt64
)

// TimestampOf converts t to microsecond precision, truncating.
func TimestampOf(t time.Time) Timestamp {
	return Timestamp(t.UnixMicro())
}

// IsFinite reports whether ts is a real instant rather than a sentinel.
func (ts Timestamp) IsFinite() bool {
	return ts != NegativeInfinity && ts != PositiveInfinity
}

// Time returns the instant in UTC. Sentinels have no meaningful Time.
func (ts Timestamp) Time() time.Time {
	return time.UnixMicro(int64(ts)).UTC()
}

// String formats finite timestamps as "2006-01-02 15:04:05.999999".
func (ts Timestamp) String() string {
	switch ts {
	case NegativeInfinity:
		return "-infinity"
	case PositiveInfinity:
		return "infinity"
	}
	return ts.Time().Format("2006-01-02 15:04:05.999999")
}

// Layouts without a zone are read as UTC. Fractional seconds are accepted
// after the seconds field even though the layouts do not spell them out.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04:05-07",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

// ParseTimestamp parses SQL timestamp text. Besides the layouts above it
// accepts "infinity", "+infinity", "-infinity" and "epoch".
func ParseTimestamp(s string) (Timestamp, error) {
	text := strings.TrimSpace(norm.NFKC.String(s))
	switch strings.ToLower(text) {
	case "infinity", "+infinity":
		return PositiveInfinity, nil
	case "-infinity":
		return NegativeInfinity, nil
	case "epoch":
		return 0, nil
	}

	for _, layout := range timestampLayouts {
		t, err := time.Parse(layout, text)
		if err == nil {
			return TimestampOf(t), nil
		}
	}
	return 0, fmt.Errorf("invalid timestamp %q", s)
}
