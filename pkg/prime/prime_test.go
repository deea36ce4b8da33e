package prime_test

import (
	"context"
	"math/big"
	"math/rand"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nais/rsarator/pkg/keys"
	"github.com/nais/rsarator/pkg/metrics"
	"github.com/nais/rsarator/pkg/prime"
	"github.com/nais/rsarator/pkg/primality"
)

type rejectAll struct{}

func (rejectAll) IsProbablyPrime(*big.Int) (bool, error) {
	return false, nil
}

func TestGenerate(t *testing.T) {
	ctx := context.Background()

	for _, bitLength := range []int{2, 3, 8, 13, 64, 256} {
		p, err := prime.Generate(ctx, bitLength)
		require.NoError(t, err)

		assert.Equal(t, bitLength, p.BitLen(), "prime should have exactly %d bits", bitLength)
		assert.Equal(t, uint(1), p.Bit(0), "prime should be odd")

		isPrime, err := primality.IsProbablyPrime(p, primality.DefaultRounds)
		require.NoError(t, err)
		assert.True(t, isPrime)
	}
}

func TestGenerator(t *testing.T) {
	ctx := context.Background()

	t.Run("too short bit lengths are invalid arguments", func(t *testing.T) {
		for _, bitLength := range []int{-1, 0, 1} {
			_, err := prime.Generate(ctx, bitLength)
			assert.ErrorIs(t, err, prime.ErrInvalidBitLength)
			assert.ErrorIs(t, err, keys.ErrInvalidArgument)
		}
	})

	t.Run("seeded random source yields repeatable primes", func(t *testing.T) {
		a, err := prime.New(rand.New(rand.NewSource(42)), nil).Generate(ctx, 32)
		require.NoError(t, err)
		b, err := prime.New(rand.New(rand.NewSource(42)), nil).Generate(ctx, 32)
		require.NoError(t, err)

		assert.Equal(t, 0, a.Cmp(b))
	})

	t.Run("candidate limit is reported", func(t *testing.T) {
		before := testutil.ToFloat64(metrics.PrimeCandidatesTotal)

		_, err := prime.New(nil, rejectAll{}).WithMaxCandidates(5).Generate(ctx, 64)
		assert.ErrorIs(t, err, prime.ErrCandidatesExhausted)
		assert.Equal(t, before+5, testutil.ToFloat64(metrics.PrimeCandidatesTotal))
	})

	t.Run("cancelled context stops sampling", func(t *testing.T) {
		cancelled, cancel := context.WithCancel(ctx)
		cancel()

		_, err := prime.New(nil, rejectAll{}).Generate(cancelled, 64)
		assert.ErrorIs(t, err, context.Canceled)
	})
}
