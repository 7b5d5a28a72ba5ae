package sleep

import (
	"fmt"
	"math"
	"math/big"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Interval is a calendar-style duration. The three fields are independent
// and never normalized against each other: 25 hours stays 25 hours rather
// than becoming 1 day 1 hour.
type Interval struct {
	Months int32
	Days   int32
	Micros int64
}

const (
	microsPerSecond = 1_000_000
	secondsPerDay   = 86_400
	daysPerMonth    = 30

	// secondsPerMonth approximates a month as exactly 30 days.
	secondsPerMonth = daysPerMonth * secondsPerDay
)

// IsZero reports whether all three fields are zero.
func (iv Interval) IsZero() bool {
	return iv.Months == 0 && iv.Days == 0 && iv.Micros == 0
}

// String formats the interval the way PostgreSQL does by default,
// e.g. "1 mon 2 days 03:04:05.5". ParseInterval accepts the result.
func (iv Interval) String() string {
	var parts []string
	if iv.Months != 0 {
		parts = append(parts, plural(int64(iv.Months), "mon"))
	}
	if iv.Days != 0 {
		parts = append(parts, plural(int64(iv.Days), "day"))
	}
	if iv.Micros != 0 || len(parts) == 0 {
		parts = append(parts, formatClock(iv.Micros))
	}
	return strings.Join(parts, " ")
}

func plural(n int64, unit string) string {
	if n == 1 || n == -1 {
		return fmt.Sprintf("%d %s", n, unit)
	}
	return fmt.Sprintf("%d %ss", n, unit)
}

func formatClock(micros int64) string {
	sign := ""
	// math.MinInt64 has no positive counterpart; go through uint64.
	u := uint64(micros)
	if micros < 0 {
		sign = "-"
		u = uint64(-(micros + 1)) + 1
	}
	frac := u % microsPerSecond
	secs := u / microsPerSecond
	s := fmt.Sprintf("%s%02d:%02d:%02d", sign, secs/3600, secs/60%60, secs%60)
	if frac != 0 {
		s += strings.TrimRight(fmt.Sprintf(".%06d", frac), "0")
	}
	return s
}

// ParseInterval parses interval text in either PostgreSQL style
// ("1 day 02:00:00.5", "500 milliseconds", "3 hours ago", "@ 2 mins")
// or ISO 8601 duration style ("P1M2DT3H4M5.5S").
//
// Input is NFKC-normalized first so full-width digits and letters parse.
// A bare number is read as seconds. Fractional months spill into days
// (30 per month) and fractional days into microseconds.
func ParseInterval(s string) (Interval, error) {
	text := strings.ToLower(strings.TrimSpace(norm.NFKC.String(s)))
	if text == "" {
		return Interval{}, fmt.Errorf("invalid interval %q: empty", s)
	}

	acc := newIntervalAccumulator()
	var err error
	if strings.HasPrefix(text, "p") || strings.HasPrefix(text, "-p") {
		err = acc.parseISO(text)
	} else {
		err = acc.parseVerbose(text)
	}
	if err != nil {
		return Interval{}, fmt.Errorf("invalid interval %q: %w", s, err)
	}

	iv, err := acc.interval()
	if err != nil {
		return Interval{}, fmt.Errorf("invalid interval %q: %w", s, err)
	}
	return iv, nil
}

// intervalUnit says where a parsed quantity goes and how it is scaled.
type intervalUnit struct {
	field int   // fieldMonths, fieldDays or fieldMicros
	scale int64 // multiplier into that field
}

const (
	fieldMonths = iota
	fieldDays
	fieldMicros
)

var verboseUnits = map[string]intervalUnit{
	"microsecond": {fieldMicros, 1}, "microseconds": {fieldMicros, 1},
	"usec": {fieldMicros, 1}, "usecs": {fieldMicros, 1}, "us": {fieldMicros, 1},
	"millisecond": {fieldMicros, 1_000}, "milliseconds": {fieldMicros, 1_000},
	"msec": {fieldMicros, 1_000}, "msecs": {fieldMicros, 1_000}, "ms": {fieldMicros, 1_000},
	"second": {fieldMicros, microsPerSecond}, "seconds": {fieldMicros, microsPerSecond},
	"sec": {fieldMicros, microsPerSecond}, "secs": {fieldMicros, microsPerSecond}, "s": {fieldMicros, microsPerSecond},
	"minute": {fieldMicros, 60 * microsPerSecond}, "minutes": {fieldMicros, 60 * microsPerSecond},
	"min": {fieldMicros, 60 * microsPerSecond}, "mins": {fieldMicros, 60 * microsPerSecond}, "m": {fieldMicros, 60 * microsPerSecond},
	"hour": {fieldMicros, 3600 * microsPerSecond}, "hours": {fieldMicros, 3600 * microsPerSecond},
	"hr": {fieldMicros, 3600 * microsPerSecond}, "hrs": {fieldMicros, 3600 * microsPerSecond}, "h": {fieldMicros, 3600 * microsPerSecond},
	"day": {fieldDays, 1}, "days": {fieldDays, 1}, "d": {fieldDays, 1},
	"week": {fieldDays, 7}, "weeks": {fieldDays, 7}, "w": {fieldDays, 7},
	"month": {fieldMonths, 1}, "months": {fieldMonths, 1}, "mon": {fieldMonths, 1}, "mons": {fieldMonths, 1},
	"year": {fieldMonths, 12}, "years": {fieldMonths, 12}, "yr": {fieldMonths, 12}, "yrs": {fieldMonths, 12}, "y": {fieldMonths, 12},
}

var (
	isoDateUnits = map[byte]intervalUnit{
		'y': {fieldMonths, 12},
		'm': {fieldMonths, 1},
		'w': {fieldDays, 7},
		'd': {fieldDays, 1},
	}
	isoTimeUnits = map[byte]intervalUnit{
		'h': {fieldMicros, 3600 * microsPerSecond},
		'm': {fieldMicros, 60 * microsPerSecond},
		's': {fieldMicros, microsPerSecond},
	}
)

// intervalAccumulator sums exact decimal quantities per field.
type intervalAccumulator struct {
	fields [3]*big.Rat
	seen   bool
}

func newIntervalAccumulator() *intervalAccumulator {
	return &intervalAccumulator{fields: [3]*big.Rat{new(big.Rat), new(big.Rat), new(big.Rat)}}
}

func (a *intervalAccumulator) add(number string, unit intervalUnit) error {
	q, ok := new(big.Rat).SetString(strings.ReplaceAll(number, ",", "."))
	if !ok {
		return fmt.Errorf("bad number %q", number)
	}
	q.Mul(q, new(big.Rat).SetInt64(unit.scale))
	a.fields[unit.field].Add(a.fields[unit.field], q)
	a.seen = true
	return nil
}

func (a *intervalAccumulator) negate() {
	for _, f := range a.fields {
		f.Neg(f)
	}
}

// parseVerbose handles "[@] <qty> <unit> ... [hh:mm[:ss[.f]]] [ago]".
func (a *intervalAccumulator) parseVerbose(text string) error {
	tokens := strings.Fields(text)
	if len(tokens) > 0 && tokens[0] == "@" {
		tokens = tokens[1:]
	}
	ago := false
	if n := len(tokens); n > 0 && tokens[n-1] == "ago" {
		ago = true
		tokens = tokens[:n-1]
	}
	if len(tokens) == 0 {
		return fmt.Errorf("no quantities")
	}

	for i := 0; i < len(tokens); i++ {
		tok := tokens[i]
		if strings.Contains(tok, ":") {
			if err := a.addClock(tok); err != nil {
				return err
			}
			continue
		}

		number, unit := splitNumber(tok)
		if number == "" {
			return fmt.Errorf("expected a number, got %q", tok)
		}
		if unit == "" && i+1 < len(tokens) && isAlpha(tokens[i+1]) {
			i++
			unit = tokens[i]
		}
		if unit == "" {
			unit = "seconds"
		}
		u, ok := verboseUnits[unit]
		if !ok {
			return fmt.Errorf("unknown unit %q", unit)
		}
		if err := a.add(number, u); err != nil {
			return err
		}
	}

	if ago {
		a.negate()
	}
	return nil
}

// addClock parses "[-]hh:mm[:ss[.ffffff]]".
func (a *intervalAccumulator) addClock(tok string) error {
	negative := false
	switch {
	case strings.HasPrefix(tok, "-"):
		negative = true
		tok = tok[1:]
	case strings.HasPrefix(tok, "+"):
		tok = tok[1:]
	}
	parts := strings.Split(tok, ":")
	if len(parts) < 2 || len(parts) > 3 {
		return fmt.Errorf("bad time %q", tok)
	}
	scales := []int64{3600 * microsPerSecond, 60 * microsPerSecond, microsPerSecond}
	clock := newIntervalAccumulator()
	for i, p := range parts {
		if p == "" || (i < 2 && strings.ContainsAny(p, ".,")) {
			return fmt.Errorf("bad time %q", tok)
		}
		if p[0] == '-' || p[0] == '+' {
			return fmt.Errorf("bad time %q", tok)
		}
		if err := clock.add(p, intervalUnit{fieldMicros, scales[i]}); err != nil {
			return err
		}
	}
	if negative {
		clock.negate()
	}
	a.fields[fieldMicros].Add(a.fields[fieldMicros], clock.fields[fieldMicros])
	a.seen = true
	return nil
}

// parseISO handles "[-]P[nY][nM][nW][nD][T[nH][nM][nS]]".
func (a *intervalAccumulator) parseISO(text string) error {
	negative := false
	if strings.HasPrefix(text, "-") {
		negative = true
		text = text[1:]
	}
	body := text[1:]
	if body == "" {
		return fmt.Errorf("empty ISO 8601 duration")
	}

	datePart, timePart, hasTime := strings.Cut(body, "t")
	if hasTime && timePart == "" {
		return fmt.Errorf("empty time section")
	}
	if err := a.parseISOSection(datePart, isoDateUnits); err != nil {
		return err
	}
	if err := a.parseISOSection(timePart, isoTimeUnits); err != nil {
		return err
	}
	if !a.seen {
		return fmt.Errorf("no quantities")
	}
	if negative {
		a.negate()
	}
	return nil
}

func (a *intervalAccumulator) parseISOSection(section string, units map[byte]intervalUnit) error {
	for section != "" {
		number, rest := splitNumber(section)
		if number == "" || rest == "" {
			return fmt.Errorf("bad ISO 8601 component %q", section)
		}
		u, ok := units[rest[0]]
		if !ok {
			return fmt.Errorf("unknown ISO 8601 designator %q", rest[:1])
		}
		if err := a.add(number, u); err != nil {
			return err
		}
		section = rest[1:]
	}
	return nil
}

// interval settles fractions downward and range-checks the fields.
func (a *intervalAccumulator) interval() (Interval, error) {
	months, monthFrac := splitRat(a.fields[fieldMonths])
	days := new(big.Rat).Add(a.fields[fieldDays], monthFrac.Mul(monthFrac, big.NewRat(daysPerMonth, 1)))
	wholeDays, dayFrac := splitRat(days)
	micros := new(big.Rat).Add(a.fields[fieldMicros], dayFrac.Mul(dayFrac, big.NewRat(secondsPerDay*microsPerSecond, 1)))

	m := months.Num()
	d := wholeDays.Num()
	us := roundRat(micros)
	if !fitsInt(m, math.MinInt32, math.MaxInt32) {
		return Interval{}, fmt.Errorf("months out of range")
	}
	if !fitsInt(d, math.MinInt32, math.MaxInt32) {
		return Interval{}, fmt.Errorf("days out of range")
	}
	if !us.IsInt64() {
		return Interval{}, fmt.Errorf("microseconds out of range")
	}
	return Interval{Months: int32(m.Int64()), Days: int32(d.Int64()), Micros: us.Int64()}, nil
}

// splitRat returns the integer part (truncated toward zero) and the remainder.
func splitRat(r *big.Rat) (*big.Rat, *big.Rat) {
	whole := new(big.Int).Quo(r.Num(), r.Denom())
	w := new(big.Rat).SetInt(whole)
	return w, new(big.Rat).Sub(r, w)
}

// roundRat rounds half away from zero.
func roundRat(r *big.Rat) *big.Int {
	half := big.NewRat(1, 2)
	if r.Sign() < 0 {
		half.Neg(half)
	}
	shifted := new(big.Rat).Add(r, half)
	return new(big.Int).Quo(shifted.Num(), shifted.Denom())
}

func fitsInt(n *big.Int, lo, hi int64) bool {
	return n.IsInt64() && n.Int64() >= lo && n.Int64() <= hi
}

// splitNumber splits a leading signed decimal from the rest of s.
func splitNumber(s string) (number, rest string) {
	i := 0
	if i < len(s) && (s[i] == '+' || s[i] == '-') {
		i++
	}
	digits := 0
	for i < len(s) && (isDigit(s[i]) || s[i] == '.' || s[i] == ',') {
		if isDigit(s[i]) {
			digits++
		}
		i++
	}
	if digits == 0 {
		return "", s
	}
	return s[:i], s[i:]
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

func isAlpha(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < 'a' || s[i] > 'z' {
			return false
		}
	}
	return s != ""
}
