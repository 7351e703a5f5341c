package fixed

import (
	"fmt"
	"strconv"
	"strings"
)

// String formats with four decimal places, e.g. "1.2500", "-0.0001".
func (v Value) String() string {
	raw := int64(v)
	sign := ""
	if raw < 0 {
		sign = "-"
		raw = -raw
	}
	return fmt.Sprintf("%s%d.%04d", sign, raw/Scale, raw%Scale)
}

// Parse reads a decimal string with up to four fractional digits.
func Parse(s string) (Value, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Zero, fmt.Errorf("fixed: empty value")
	}
	neg := false
	switch s[0] {
	case '-':
		neg = true
		s = s[1:]
	case '+':
		s = s[1:]
	}
	whole, frac := s, ""
	if i := strings.IndexByte(s, '.'); i >= 0 {
		whole, frac = s[:i], s[i+1:]
	}
	if whole == "" {
		whole = "0"
	}
	if len(frac) > 4 {
		return Zero, fmt.Errorf("fixed: %q has more than 4 fractional digits", s)
	}
	for len(frac) < 4 {
		frac += "0"
	}
	w, err := strconv.ParseInt(whole, 10, 64)
	if err != nil {
		return Zero, fmt.Errorf("fixed: bad whole part in %q: %w", s, err)
	}
	f, err := strconv.ParseInt(frac, 10, 64)
	if err != nil {
		return Zero, fmt.Errorf("fixed: bad fraction in %q: %w", s, err)
	}
	raw := w*Scale + f
	if neg {
		raw = -raw
	}
	return Value(raw), nil
}

// MarshalText makes Value usable in yaml/json config round-trips.
func (v Value) MarshalText() ([]byte, error) { return []byte(v.String()), nil }

func (v *Value) UnmarshalText(b []byte) error {
	p, err := Parse(string(b))
	if err != nil {
		return err
	}
	*v = p
	return nil
}
