package keys

import (
	"fmt"
	"math/big"
)

// ParseDecimal parses a non-negative base-10 integer.
func ParseDecimal(s string) (*big.Int, error) {
	x, ok := new(big.Int).SetString(s, 10)
	if !ok || x.Sign() < 0 {
		return nil, fmt.Errorf("%w: '%s' is not a non-negative decimal integer", ErrInvalidArgument, s)
	}
	return x, nil
}

func (in PublicKey) Decimal() (n, e string) {
	return in.N.String(), in.E.String()
}

func (in PrivateKey) Decimal() (n, d string) {
	return in.N.String(), in.D.String()
}

func ParsePublicKey(n, e string) (PublicKey, error) {
	modulus, exponent, err := parsePair(n, e)
	if err != nil {
		return PublicKey{}, fmt.Errorf("parsing public key: %w", err)
	}
	return PublicKey{N: modulus, E: exponent}, nil
}

func ParsePrivateKey(n, d string) (PrivateKey, error) {
	modulus, exponent, err := parsePair(n, d)
	if err != nil {
		return PrivateKey{}, fmt.Errorf("parsing private key: %w", err)
	}
	return PrivateKey{N: modulus, D: exponent}, nil
}

func parsePair(n, exponent string) (*big.Int, *big.Int, error) {
	modulus, err := ParseDecimal(n)
	if err != nil {
		return nil, nil, err
	}
	exp, err := ParseDecimal(exponent)
	if err != nil {
		return nil, nil, err
	}
	return modulus, exp, nil
}
