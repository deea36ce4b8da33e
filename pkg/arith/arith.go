package arith

import (
	"errors"
	"math/big"
)

var one = big.NewInt(1)

var ErrNotInvertible = errors.New("value has no modular inverse")

// ExtendedGCD returns gcd(a, b) together with the Bézout coefficients x and y such that a*x + b*y = gcd(a, b).
func ExtendedGCD(a, b *big.Int) (gcd, x, y *big.Int) {
	oldR, r := new(big.Int).Set(a), new(big.Int).Set(b)
	oldS, s := big.NewInt(1), big.NewInt(0)
	oldT, t := big.NewInt(0), big.NewInt(1)

	quotient := new(big.Int)
	for r.Sign() != 0 {
		quotient.Div(oldR, r)
		oldR, r = r, new(big.Int).Sub(oldR, new(big.Int).Mul(quotient, r))
		oldS, s = s, new(big.Int).Sub(oldS, new(big.Int).Mul(quotient, s))
		oldT, t = t, new(big.Int).Sub(oldT, new(big.Int).Mul(quotient, t))
	}

	return oldR, oldS, oldT
}

func GCD(a, b *big.Int) *big.Int {
	gcd, _, _ := ExtendedGCD(a, b)
	return gcd.Abs(gcd)
}

func Coprime(a, b *big.Int) bool {
	return GCD(a, b).Cmp(one) == 0
}

// ModInverse returns the x in [0, m) with a*x ≡ 1 (mod m).
func ModInverse(a, m *big.Int) (*big.Int, error) {
	if m.Cmp(one) <= 0 {
		return nil, ErrNotInvertible
	}

	gcd, x, _ := ExtendedGCD(new(big.Int).Mod(a, m), m)
	if gcd.Cmp(one) != 0 {
		return nil, ErrNotInvertible
	}

	return x.Mod(x, m), nil
}
