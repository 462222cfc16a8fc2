package domain

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// MaxRate is the largest accepted points-per-minute rate (999.99).
const MaxRate Rate = 99999

// Rate is a points-per-minute conversion rate held in hundredths of a point,
// so 1.25 points per minute is Rate(125).
type Rate int64

// ParseRate parses a decimal string with at most two fractional digits.
func ParseRate(s string) (Rate, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty rate")
	}
	if strings.HasPrefix(s, "-") {
		return 0, fmt.Errorf("rate %q is negative", s)
	}
	whole, frac, hasFrac := strings.Cut(s, ".")
	if whole == "" {
		whole = "0"
	}
	if hasFrac && (frac == "" || len(frac) > 2) {
		return 0, fmt.Errorf("rate %q must have one or two decimal places", s)
	}
	if !isDigits(whole) || (hasFrac && !isDigits(frac)) {
		return 0, fmt.Errorf("rate %q is not a decimal number", s)
	}
	for len(frac) < 2 {
		frac += "0"
	}
	w, err := strconv.ParseInt(whole, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("rate %q: %w", s, err)
	}
	f, err := strconv.ParseInt(frac, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("rate %q: %w", s, err)
	}
	if w > int64(MaxRate)/100 {
		return 0, fmt.Errorf("rate %q exceeds %s", s, MaxRate)
	}
	return Rate(w*100 + f), nil
}

func isDigits(s string) bool {
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return s != ""
}

// MustParseRate is ParseRate for literals; it panics on malformed input.
func MustParseRate(s string) Rate {
	r, err := ParseRate(s)
	if err != nil {
		panic(err)
	}
	return r
}

// Hundredths returns the raw fixed-point value.
func (r Rate) Hundredths() int64 { return int64(r) }

func (r Rate) String() string {
	return fmt.Sprintf("%d.%02d", int64(r)/100, int64(r)%100)
}

// MarshalJSON encodes the rate as a JSON number, e.g. 1.25.
func (r Rate) MarshalJSON() ([]byte, error) {
	return []byte(r.String()), nil
}

// UnmarshalJSON accepts either a JSON number or a quoted decimal string.
func (r *Rate) UnmarshalJSON(data []byte) error {
	raw := strings.TrimSpace(string(data))
	if strings.HasPrefix(raw, `"`) {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		raw = s
	}
	parsed, err := ParseRate(raw)
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}
