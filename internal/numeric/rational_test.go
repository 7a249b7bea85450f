package numeric

import (
	"math/big"
	"testing"
)

func TestFromBig_RejectsZeroDenominator(t *testing.T) {
	_, err := FromBig(big.NewInt(1), big.NewInt(0))
	if err == nil {
		t.Fatal("expected error for zero denominator")
	}
}

func TestFromBig_NormalizesNegativeDenominator(t *testing.T) {
	f, err := FromBig(big.NewInt(3), big.NewInt(-4))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f.Den.Sign() <= 0 {
		t.Errorf("denominator must be positive, got %s", f.Den)
	}
	if f.Num.Cmp(big.NewInt(-3)) != 0 {
		t.Errorf("sign must move to numerator, got %s", f.Num)
	}
}

func TestMulDiv(t *testing.T) {
	half := New(1, 2)
	third := New(1, 3)

	got := half.Mul(third)
	if got.Num.Cmp(big.NewInt(1)) != 0 || got.Den.Cmp(big.NewInt(6)) != 0 {
		t.Errorf("1/2 * 1/3 = %s, want 1/6", got)
	}

	q, err := half.Div(third)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// Not reduced: (1*3)/(2*1) = 3/2.
	if q.Num.Cmp(big.NewInt(3)) != 0 || q.Den.Cmp(big.NewInt(2)) != 0 {
		t.Errorf("1/2 / 1/3 = %s, want 3/2", q)
	}

	if _, err := half.Div(New(0, 1)); err == nil {
		t.Error("expected error dividing by zero fraction")
	}
}

func TestDiv_NegativeDivisorKeepsDenPositive(t *testing.T) {
	q, err := New(1, 2).Div(New(-1, 3))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if q.Den.Sign() <= 0 {
		t.Errorf("denominator must stay positive, got %s", q.Den)
	}
	if q.Sign() >= 0 {
		t.Errorf("expected negative result, got %s", q)
	}
}

func TestScalePow10(t *testing.T) {
	tests := []struct {
		name string
		f    Fraction
		exp  int
		want Fraction
	}{
		{"up", New(3, 7), 3, New(3000, 7)},
		{"down", New(3, 7), -2, New(3, 700)},
		{"zero", New(3, 7), 0, New(3, 7)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.f.ScalePow10(tt.exp)
			if got.Num.Cmp(tt.want.Num) != 0 || got.Den.Cmp(tt.want.Den) != 0 {
				t.Errorf("got %s, want %s", got, tt.want)
			}
		})
	}
}

func TestCmp_CrossMultiplies(t *testing.T) {
	// 1/3 vs 2/6: equal without reduction.
	if New(1, 3).Cmp(New(2, 6)) != 0 {
		t.Error("1/3 must equal 2/6")
	}
	if New(1, 3).Cmp(New(1, 2)) != -1 {
		t.Error("1/3 must be less than 1/2")
	}
	if New(2, 3).Cmp(New(1, 2)) != 1 {
		t.Error("2/3 must be greater than 1/2")
	}
}

func TestFloor(t *testing.T) {
	tests := []struct {
		f    Fraction
		want int64
	}{
		{New(7, 2), 3},
		{New(6, 2), 3},
		{New(-7, 2), -4},
		{New(0, 1), 0},
	}
	for _, tt := range tests {
		if got := tt.f.Floor(); got.Cmp(big.NewInt(tt.want)) != 0 {
			t.Errorf("floor(%s) = %s, want %d", tt.f, got, tt.want)
		}
	}
}

func TestClampNonNegative(t *testing.T) {
	if got := ClampNonNegative(big.NewInt(-5)); got.Sign() != 0 {
		t.Errorf("clamp(-5) = %s, want 0", got)
	}
	if got := ClampNonNegative(big.NewInt(5)); got.Cmp(big.NewInt(5)) != 0 {
		t.Errorf("clamp(5) = %s, want 5", got)
	}

	neg := New(-3, 2).ClampNonNegative()
	if !neg.IsZero() {
		t.Errorf("clamp(-3/2) = %s, want 0", neg)
	}
	pos := New(3, 2).ClampNonNegative()
	if pos.Cmp(New(3, 2)) != 0 {
		t.Errorf("clamp(3/2) = %s, want 3/2", pos)
	}
}

func TestDecimalString(t *testing.T) {
	tests := []struct {
		f    Fraction
		prec int
		want string
	}{
		{New(1, 2), 4, "0.5000"},
		{New(1, 3), 6, "0.333333"},
		{New(-7, 4), 2, "-1.75"},
		{New(5, 1), 0, "5"},
	}
	for _, tt := range tests {
		if got := tt.f.DecimalString(tt.prec); got != tt.want {
			t.Errorf("DecimalString(%s, %d) = %q, want %q", tt.f, tt.prec, got, tt.want)
		}
	}
}

func TestSub(t *testing.T) {
	got := New(3, 4).Sub(New(1, 4))
	if got.Cmp(New(1, 2)) != 0 {
		t.Errorf("3/4 - 1/4 = %s, want 1/2", got)
	}
	neg := New(1, 4).Sub(New(3, 4))
	if neg.Sign() != -1 {
		t.Errorf("1/4 - 3/4 should be negative, got %s", neg)
	}
}
