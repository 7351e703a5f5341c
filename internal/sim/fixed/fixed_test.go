package fixed

import "testing"

func TestMulRounding(t *testing.T) {
	cases := []struct {
		a, b Value
		want Value
	}{
		{FromInt(2), FromInt(3), FromInt(6)},
		{Half, Half, FromRaw(2500)},            // 0.5*0.5 = 0.25
		{FromRaw(1), FromRaw(5000), FromRaw(1)}, // 0.0001*0.5 = 0.00005 rounds away to 0.0001
		{FromRaw(-1), FromRaw(5000), FromRaw(-1)},
		{FromRaw(1), FromRaw(4999), Zero}, // below the tie rounds to zero
		{FromInt(-3), FromInt(4), FromInt(-12)},
	}
	for _, c := range cases {
		if got := c.a.Mul(c.b); got != c.want {
			t.Errorf("%v * %v = %v, want %v", c.a, c.b, got, c.want)
		}
	}
}

func TestDivRounding(t *testing.T) {
	if got := FromInt(1).Div(FromInt(3)); got != FromRaw(3333) {
		t.Errorf("1/3 = %v, want 0.3333", got)
	}
	if got := FromInt(2).Div(FromInt(3)); got != FromRaw(6667) {
		t.Errorf("2/3 = %v, want 0.6667", got)
	}
	if got := FromInt(-1).Div(FromInt(3)); got != FromRaw(-3333) {
		t.Errorf("-1/3 = %v, want -0.3333", got)
	}
	if got := FromInt(5).Div(Zero); got != Zero {
		t.Errorf("div by zero = %v, want 0", got)
	}
}

func TestTiesAwayFromZero(t *testing.T) {
	// 0.0001 / 2 = 0.00005, a tie; rounds away from zero.
	if got := FromRaw(1).DivInt(2); got != FromRaw(1) {
		t.Errorf("0.0001/2 = %v, want 0.0001", got)
	}
	if got := FromRaw(-1).DivInt(2); got != FromRaw(-1) {
		t.Errorf("-0.0001/2 = %v, want -0.0001", got)
	}
}

func TestClamp01(t *testing.T) {
	if got := FromFloat(1.2).Clamp01(); got != One {
		t.Errorf("clamp01(1.2) = %v", got)
	}
	if got := FromFloat(-0.4).Clamp01(); got != Zero {
		t.Errorf("clamp01(-0.4) = %v", got)
	}
	if got := Half.Clamp01(); got != Half {
		t.Errorf("clamp01(0.5) = %v", got)
	}
}

func TestSaturation(t *testing.T) {
	max := Value(1<<63 - 1)
	if got := max.SatAdd(One); got != max {
		t.Errorf("saturating add overflowed: %d", got.Raw())
	}
	min := Value(-1 << 63)
	if got := min.SatSub(One); got != min {
		t.Errorf("saturating sub underflowed: %d", got.Raw())
	}
}

func TestLargeMulNoOverflow(t *testing.T) {
	// One billion ducats squared stays exact through the 128-bit intermediate.
	a := FromInt(1_000_000_000)
	got := a.Mul(FromInt(2))
	if got != FromInt(2_000_000_000) {
		t.Errorf("large mul = %v", got)
	}
}

func TestParseString(t *testing.T) {
	cases := []struct {
		in   string
		want Value
	}{
		{"1.25", FromRaw(12500)},
		{"-0.0001", FromRaw(-1)},
		{"10", FromInt(10)},
		{"0.5", Half},
	}
	for _, c := range cases {
		got, err := Parse(c.in)
		if err != nil {
			t.Fatalf("parse %q: %v", c.in, err)
		}
		if got != c.want {
			t.Errorf("parse %q = %v, want %v", c.in, got, c.want)
		}
	}
	if _, err := Parse("1.00005"); err == nil {
		t.Error("expected error for 5 fractional digits")
	}
	if s := FromRaw(12500).String(); s != "1.2500" {
		t.Errorf("string = %q", s)
	}
	if s := FromRaw(-1).String(); s != "-0.0001" {
		t.Errorf("string = %q", s)
	}
}

func TestRound(t *testing.T) {
	if got := FromFloat(2.5).Round(); got != 3 {
		t.Errorf("round(2.5) = %d", got)
	}
	if got := FromFloat(-2.5).Round(); got != -3 {
		t.Errorf("round(-2.5) = %d", got)
	}
	if got := FromFloat(2.4).Int(); got != 2 {
		t.Errorf("int(2.4) = %d", got)
	}
}
