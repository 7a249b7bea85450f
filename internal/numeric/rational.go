// Package numeric provides exact rational arithmetic for on-ledger prices and
// token amounts. Every quantity stays in arbitrary-precision integer or
// fraction form until it crosses a presentation boundary; nothing in this
// package ever converts through float64.
package numeric

import (
	"fmt"
	"math/big"
)

// Fraction is an exact ratio with a strictly positive denominator. Fractions
// are never reduced implicitly: a 2/4 stays 2/4 so that values read from the
// ledger round-trip unchanged. Comparisons cross-multiply instead of
// converting to a decimal form.
type Fraction struct {
	Num *big.Int
	Den *big.Int
}

// New returns the fraction num/den. It panics when den <= 0; use FromBig for
// untrusted input.
func New(num, den int64) Fraction {
	if den <= 0 {
		panic(fmt.Sprintf("numeric: non-positive denominator %d", den))
	}
	return Fraction{Num: big.NewInt(num), Den: big.NewInt(den)}
}

// FromBig builds a fraction from arbitrary-precision parts, enforcing the
// positive-denominator invariant. A negative denominator has its sign moved
// to the numerator.
func FromBig(num, den *big.Int) (Fraction, error) {
	if num == nil || den == nil {
		return Fraction{}, fmt.Errorf("numeric: nil fraction component")
	}
	if den.Sign() == 0 {
		return Fraction{}, fmt.Errorf("numeric: zero denominator")
	}
	n := new(big.Int).Set(num)
	d := new(big.Int).Set(den)
	if d.Sign() < 0 {
		n.Neg(n)
		d.Neg(d)
	}
	return Fraction{Num: n, Den: d}, nil
}

// FromInt returns the fraction n/1.
func FromInt(n *big.Int) Fraction {
	return Fraction{Num: new(big.Int).Set(n), Den: big.NewInt(1)}
}

// Mul returns f * g.
func (f Fraction) Mul(g Fraction) Fraction {
	return Fraction{
		Num: new(big.Int).Mul(f.Num, g.Num),
		Den: new(big.Int).Mul(f.Den, g.Den),
	}
}

// Div returns f / g. Dividing by a zero fraction is an error.
func (f Fraction) Div(g Fraction) (Fraction, error) {
	if g.Num.Sign() == 0 {
		return Fraction{}, fmt.Errorf("numeric: division by zero fraction")
	}
	num := new(big.Int).Mul(f.Num, g.Den)
	den := new(big.Int).Mul(f.Den, g.Num)
	if den.Sign() < 0 {
		num.Neg(num)
		den.Neg(den)
	}
	return Fraction{Num: num, Den: den}, nil
}

// Sub returns f - g.
func (f Fraction) Sub(g Fraction) Fraction {
	// a/b - c/d = (ad - cb) / bd
	num := new(big.Int).Mul(f.Num, g.Den)
	num.Sub(num, new(big.Int).Mul(g.Num, f.Den))
	return Fraction{Num: num, Den: new(big.Int).Mul(f.Den, g.Den)}
}

// ScalePow10 returns f * 10^exp. A negative exponent divides, which is how a
// pair of tokens with different decimal precisions (say 18 and 6) is
// normalized without precision loss.
func (f Fraction) ScalePow10(exp int) Fraction {
	if exp == 0 {
		return Fraction{Num: new(big.Int).Set(f.Num), Den: new(big.Int).Set(f.Den)}
	}
	if exp > 0 {
		p := pow10(exp)
		return Fraction{Num: new(big.Int).Mul(f.Num, p), Den: new(big.Int).Set(f.Den)}
	}
	p := pow10(-exp)
	return Fraction{Num: new(big.Int).Set(f.Num), Den: new(big.Int).Mul(f.Den, p)}
}

// IsZero reports whether f equals zero.
func (f Fraction) IsZero() bool {
	return f.Num.Sign() == 0
}

// Sign returns -1, 0 or +1 according to the sign of f.
func (f Fraction) Sign() int {
	return f.Num.Sign()
}

// Cmp compares f and g by cross-multiplying, returning -1, 0 or +1.
func (f Fraction) Cmp(g Fraction) int {
	left := new(big.Int).Mul(f.Num, g.Den)
	right := new(big.Int).Mul(g.Num, f.Den)
	return left.Cmp(right)
}

// Floor returns the largest integer <= f.
func (f Fraction) Floor() *big.Int {
	q := new(big.Int)
	m := new(big.Int)
	q.QuoRem(f.Num, f.Den, m)
	if m.Sign() < 0 {
		q.Sub(q, big.NewInt(1))
	}
	return q
}

// ClampNonNegative returns f, or zero when f is negative. A negative value in
// auction math is a transient read-skew artifact, not an error.
func (f Fraction) ClampNonNegative() Fraction {
	if f.Num.Sign() < 0 {
		return Fraction{Num: big.NewInt(0), Den: big.NewInt(1)}
	}
	return f
}

// ClampNonNegative returns n, or zero when n is negative.
func ClampNonNegative(n *big.Int) *big.Int {
	if n.Sign() < 0 {
		return big.NewInt(0)
	}
	return new(big.Int).Set(n)
}

// DecimalString renders f as a decimal string with the given number of digits
// after the decimal point. This is the only place a fraction leaves exact
// form, so it belongs at presentation boundaries only.
func (f Fraction) DecimalString(precision int) string {
	r := new(big.Rat).SetFrac(f.Num, f.Den)
	return r.FloatString(precision)
}

// String renders f as "num/den".
func (f Fraction) String() string {
	return f.Num.String() + "/" + f.Den.String()
}

func pow10(exp int) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(exp)), nil)
}
