// Package fixed provides scaled-integer arithmetic for the simulation.
//
// Every quantity that can influence a state checksum is carried as a Value.
// Floats are banned from simulation logic: x87/SSE/FMA rounding differences
// would break cross-machine determinism. The only float entry points are
// FromFloat and Float, reserved for config parsing and display.
package fixed

import "math/bits"

// Scale is the number of raw units per 1.0. 0.25 is stored as 2500.
const Scale = 10000

// Value is a fixed-point number with four decimal places of precision,
// backed by an int64 raw count of 1/Scale units.
type Value int64

const (
	Zero Value = 0
	One  Value = Scale
	Half Value = Scale / 2
)

// FromRaw wraps a raw scaled integer.
func FromRaw(raw int64) Value { return Value(raw) }

// FromInt converts a whole number: FromInt(5) == 5.0000.
func FromInt(v int64) Value { return Value(v * Scale) }

// Raw returns the underlying scaled integer.
func (v Value) Raw() int64 { return int64(v) }

// Int truncates toward zero.
func (v Value) Int() int64 { return int64(v) / Scale }

// Round rounds to the nearest whole number, ties away from zero.
func (v Value) Round() int64 {
	if v >= 0 {
		return (int64(v) + Scale/2) / Scale
	}
	return (int64(v) - Scale/2) / Scale
}

func (v Value) Add(o Value) Value { return v + o }
func (v Value) Sub(o Value) Value { return v - o }

// Mul multiplies two fixed-point values with a 128-bit intermediate and a
// single round-to-nearest (ties away from zero) back to scale.
func (v Value) Mul(o Value) Value {
	return Value(mulDivRound(int64(v), int64(o), Scale))
}

// Div divides two fixed-point values with a 128-bit intermediate and a
// single round-to-nearest (ties away from zero). Division by zero yields
// Zero rather than panicking; callers that care check first.
func (v Value) Div(o Value) Value {
	if o == 0 {
		return Zero
	}
	return Value(mulDivRound(int64(v), Scale, int64(o)))
}

// MulInt scales by a plain integer without intermediate rounding.
func (v Value) MulInt(n int64) Value { return Value(int64(v) * n) }

// DivInt divides by a plain integer, round-to-nearest ties away from zero.
func (v Value) DivInt(n int64) Value {
	if n == 0 {
		return Zero
	}
	return Value(divRound(int64(v), n))
}

// SatAdd adds with saturation at the int64 bounds.
func (v Value) SatAdd(o Value) Value {
	s := int64(v) + int64(o)
	if v > 0 && o > 0 && s < 0 {
		return Value(1<<63 - 1)
	}
	if v < 0 && o < 0 && s >= 0 {
		return Value(-1 << 63)
	}
	return Value(s)
}

// SatSub subtracts with saturation at the int64 bounds.
func (v Value) SatSub(o Value) Value { return v.SatAdd(-o) }

func (v Value) Neg() Value { return -v }

func (v Value) Abs() Value {
	if v < 0 {
		return -v
	}
	return v
}

func (v Value) Min(o Value) Value {
	if v <= o {
		return v
	}
	return o
}

func (v Value) Max(o Value) Value {
	if v >= o {
		return v
	}
	return o
}

// Clamp bounds v to [lo, hi].
func (v Value) Clamp(lo, hi Value) Value {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Clamp01 bounds v to [0, 1]. Normalized quantities (autonomy, unrest
// fractions) pass through here before entering any formula.
func (v Value) Clamp01() Value { return v.Clamp(Zero, One) }

func (v Value) IsZero() bool     { return v == 0 }
func (v Value) IsNegative() bool { return v < 0 }

// FromFloat converts a float for config parsing and test construction only.
// Never call this from simulation logic.
func FromFloat(f float64) Value {
	if f != f { // NaN
		return Zero
	}
	s := f * Scale
	if s >= float64(1<<63-1) {
		return Value(1<<63 - 1)
	}
	if s <= float64(-1<<63) {
		return Value(-1 << 63)
	}
	if s >= 0 {
		return Value(int64(s + 0.5))
	}
	return Value(int64(s - 0.5))
}

// Float converts for display only.
func (v Value) Float() float64 { return float64(v) / Scale }

// divRound divides a by b rounding to nearest, ties away from zero.
func divRound(a, b int64) int64 {
	neg := false
	if a < 0 {
		a, neg = -a, !neg
	}
	if b < 0 {
		b, neg = -b, !neg
	}
	q := (a + b/2) / b
	if neg {
		return -q
	}
	return q
}

// mulDivRound computes a*b/c with a 128-bit intermediate and round-to-nearest
// ties away from zero. c must be positive.
func mulDivRound(a, b, c int64) int64 {
	neg := false
	if a < 0 {
		a, neg = -a, !neg
	}
	if b < 0 {
		b, neg = -b, !neg
	}
	hi, lo := bits.Mul64(uint64(a), uint64(b))
	uc := uint64(c)
	// Round to nearest: add c/2 before dividing.
	carry := lo + uc/2
	if carry < lo {
		hi++
	}
	lo = carry
	if hi >= uc {
		// Quotient would overflow 64 bits; saturate.
		if neg {
			return -1 << 63
		}
		return 1<<63 - 1
	}
	q, _ := bits.Div64(hi, lo, uc)
	if q > 1<<63-1 {
		if neg {
			return -1 << 63
		}
		return 1<<63 - 1
	}
	if neg {
		return -int64(q)
	}
	return int64(q)
}
