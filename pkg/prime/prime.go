package prime

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"math/big"

	"github.com/nais/rsarator/pkg/keys"
	"github.com/nais/rsarator/pkg/metrics"
	"github.com/nais/rsarator/pkg/primality"
)

var (
	ErrInvalidBitLength    = fmt.Errorf("%w: prime bit length must be at least 2", keys.ErrInvalidArgument)
	ErrCandidatesExhausted = errors.New("no probable prime found within the candidate limit")
)

type Tester interface {
	IsProbablyPrime(candidate *big.Int) (bool, error)
}

type Generator struct {
	random        io.Reader
	tester        Tester
	maxCandidates int
}

// New returns a generator sampling candidates from random. A nil tester selects a Miller-Rabin tester with
// primality.DefaultRounds sharing the same random source.
func New(random io.Reader, tester Tester) Generator {
	if random == nil {
		random = rand.Reader
	}
	if tester == nil {
		tester = primality.New(random, primality.DefaultRounds)
	}
	return Generator{random: random, tester: tester}
}

// WithMaxCandidates caps the number of candidates tested per call. Zero means unbounded.
func (g Generator) WithMaxCandidates(max int) Generator {
	g.maxCandidates = max
	return g
}

func Generate(ctx context.Context, bitLength int) (*big.Int, error) {
	return New(rand.Reader, nil).Generate(ctx, bitLength)
}

// Generate returns a probable prime of exactly bitLength bits.
func (g Generator) Generate(ctx context.Context, bitLength int) (*big.Int, error) {
	if bitLength < 2 {
		return nil, ErrInvalidBitLength
	}

	buf := make([]byte, (bitLength+7)/8)
	candidate := new(big.Int)

	for attempt := 0; g.maxCandidates <= 0 || attempt < g.maxCandidates; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("generating %d-bit prime: %w", bitLength, err)
		}

		if err := oddCandidate(g.random, buf, bitLength, candidate); err != nil {
			return nil, err
		}
		metrics.PrimeCandidatesTotal.Inc()

		prime, err := g.tester.IsProbablyPrime(candidate)
		if err != nil {
			return nil, fmt.Errorf("testing %d-bit candidate: %w", bitLength, err)
		}
		if prime {
			return new(big.Int).Set(candidate), nil
		}
	}

	return nil, fmt.Errorf("generating %d-bit prime after %d candidates: %w", bitLength, g.maxCandidates, ErrCandidatesExhausted)
}

// oddCandidate fills candidate with a random integer of exactly bitLength bits whose lowest bit is set.
func oddCandidate(random io.Reader, buf []byte, bitLength int, candidate *big.Int) error {
	if _, err := io.ReadFull(random, buf); err != nil {
		return fmt.Errorf("reading random candidate: %w", err)
	}

	// clear the excess bits of the leading byte
	excess := uint(len(buf)*8 - bitLength)
	buf[0] &= byte(0xff >> excess)

	candidate.SetBytes(buf)
	candidate.SetBit(candidate, bitLength-1, 1)
	candidate.SetBit(candidate, 0, 1)
	return nil
}
