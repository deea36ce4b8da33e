package primality

import (
	"crypto/rand"
	"fmt"
	"io"
	"math/big"
)

// DefaultRounds bounds the false-positive probability at 4^-40.
const DefaultRounds = 40

var smallPrimes = []int64{
	2, 3, 5, 7, 11, 13, 17, 19, 23, 29, 31, 37, 41, 43, 47, 53, 59, 61, 67, 71, 73, 79, 83, 89, 97,
}

var (
	one = big.NewInt(1)
	two = big.NewInt(2)
)

type Tester struct {
	random io.Reader
	rounds int
}

// New returns a Miller-Rabin tester drawing its bases from random.
// A rounds value below one selects DefaultRounds.
func New(random io.Reader, rounds int) Tester {
	if random == nil {
		random = rand.Reader
	}
	if rounds < 1 {
		rounds = DefaultRounds
	}
	return Tester{random: random, rounds: rounds}
}

// IsProbablyPrime tests candidate with bases from crypto/rand.
func IsProbablyPrime(candidate *big.Int, rounds int) (bool, error) {
	return New(rand.Reader, rounds).IsProbablyPrime(candidate)
}

func (t Tester) Rounds() int {
	return t.rounds
}

// IsProbablyPrime returns false only for proven composites; true carries an error probability of at most 4^-rounds.
func (t Tester) IsProbablyPrime(candidate *big.Int) (bool, error) {
	if candidate.Cmp(two) < 0 {
		return false, nil
	}

	if decided, prime := trialDivision(candidate); decided {
		return prime, nil
	}

	nMinus1 := new(big.Int).Sub(candidate, one)
	d := new(big.Int).Set(nMinus1)
	s := int(d.TrailingZeroBits())
	d.Rsh(d, uint(s))

	// bases are drawn from [2, n-2]
	baseRange := new(big.Int).Sub(candidate, big.NewInt(3))

	for i := 0; i < t.rounds; i++ {
		a, err := rand.Int(t.random, baseRange)
		if err != nil {
			return false, fmt.Errorf("drawing Miller-Rabin base: %w", err)
		}
		a.Add(a, two)

		if !survivesRound(candidate, nMinus1, a, d, s) {
			return false, nil
		}
	}
	return true, nil
}

func survivesRound(n, nMinus1, a, d *big.Int, s int) bool {
	x := new(big.Int).Exp(a, d, n)
	if x.Cmp(one) == 0 || x.Cmp(nMinus1) == 0 {
		return true
	}

	for r := 1; r < s; r++ {
		x.Mul(x, x).Mod(x, n)
		if x.Cmp(nMinus1) == 0 {
			return true
		}
		if x.Cmp(one) == 0 {
			return false
		}
	}
	return false
}

// trialDivision settles candidates that are small primes or have a small prime factor.
func trialDivision(candidate *big.Int) (decided, prime bool) {
	remainder := new(big.Int)
	for _, p := range smallPrimes {
		divisor := big.NewInt(p)
		if candidate.Cmp(divisor) == 0 {
			return true, true
		}
		if remainder.Mod(candidate, divisor).Sign() == 0 {
			return true, false
		}
	}
	return false, false
}
