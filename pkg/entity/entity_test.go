package entity_test

import (
	"context"
	"errors"
	"math/big"
	"math/rand"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nais/rsarator/pkg/entity"
	"github.com/nais/rsarator/pkg/keygen"
	"github.com/nais/rsarator/pkg/keys"
	"github.com/nais/rsarator/pkg/retry"
)

// textbookKeyPair is the p=61, q=53 example key.
func textbookKeyPair() *keys.KeyPair {
	return &keys.KeyPair{
		Public:  keys.NewPublicKey(big.NewInt(3233), big.NewInt(17)),
		Private: keys.NewPrivateKey(big.NewInt(3233), big.NewInt(2753)),
	}
}

type flakyGenerator struct {
	failures int
	calls    int
	err      error
}

func (f *flakyGenerator) GenerateKeys(ctx context.Context, bitLength int) (keys.KeyPair, error) {
	f.calls++
	if f.calls <= f.failures {
		return keys.KeyPair{}, f.err
	}
	return *textbookKeyPair(), nil
}

func TestNew(t *testing.T) {
	ctx := context.Background()

	t.Run("generate mode creates a fresh key pair", func(t *testing.T) {
		e, err := entity.New(ctx, entity.Options{Generate: true, BitLength: 256})
		require.NoError(t, err)

		// the product of two 128-bit primes has 255 or 256 bits
		assert.Contains(t, []int{255, 256}, e.KeyPair().BitLen())
		assert.NotEmpty(t, e.ID())
	})

	t.Run("two generated entities never share keys", func(t *testing.T) {
		a, err := entity.New(ctx, entity.Options{Generate: true, BitLength: 256})
		require.NoError(t, err)
		b, err := entity.New(ctx, entity.Options{Generate: true, BitLength: 256})
		require.NoError(t, err)

		assert.False(t, a.PublicKey().Equal(b.PublicKey()))
		assert.NotEqual(t, a.ID(), b.ID())
	})

	t.Run("import mode stores key data verbatim", func(t *testing.T) {
		data := textbookKeyPair()
		e, err := entity.New(ctx, entity.Options{KeyData: data, ID: "alice"})
		require.NoError(t, err)

		assert.Equal(t, keys.ID("alice"), e.ID())
		assert.True(t, e.PublicKey().Equal(data.Public))
		assert.Equal(t, 0, e.KeyPair().Private.D.Cmp(data.Private.D))
	})

	t.Run("import mode without key data is an invalid argument", func(t *testing.T) {
		e, err := entity.New(ctx, entity.Options{Generate: false})
		assert.ErrorIs(t, err, entity.ErrMissingKeyData)
		assert.ErrorIs(t, err, keys.ErrInvalidArgument)
		assert.Nil(t, e)
	})

	t.Run("imported key data is copied", func(t *testing.T) {
		data := textbookKeyPair()
		e, err := entity.New(ctx, entity.Options{KeyData: data})
		require.NoError(t, err)

		data.Public.N.SetInt64(1)
		e.PublicKey().E.SetInt64(1)

		assert.Equal(t, int64(3233), e.PublicKey().N.Int64())
		assert.Equal(t, int64(17), e.PublicKey().E.Int64())
	})

	t.Run("non-coprime exponents are retried with fresh sampling", func(t *testing.T) {
		generator := &flakyGenerator{failures: 2, err: keygen.ErrNonCoprimeExponent}
		e, err := entity.New(ctx, entity.Options{Generate: true, BitLength: 12, Generator: generator})
		require.NoError(t, err)

		assert.Equal(t, 3, generator.calls)
		assert.True(t, e.PublicKey().Equal(textbookKeyPair().Public))
	})

	t.Run("retries stop at the attempt limit", func(t *testing.T) {
		generator := &flakyGenerator{failures: 10, err: keygen.ErrNonCoprimeExponent}
		backoff := retry.Constant(0).WithMaxAttempts(2)

		_, err := entity.New(ctx, entity.Options{Generate: true, BitLength: 12, Generator: generator, Backoff: &backoff})
		assert.ErrorIs(t, err, keygen.ErrNonCoprimeExponent)
		assert.Equal(t, 2, generator.calls)
	})

	t.Run("other generation errors are not retried", func(t *testing.T) {
		generator := &flakyGenerator{failures: 10, err: errors.New("entropy exhausted")}

		_, err := entity.New(ctx, entity.Options{Generate: true, BitLength: 12, Generator: generator})
		assert.ErrorContains(t, err, "entropy exhausted")
		assert.Equal(t, 1, generator.calls)
	})

	t.Run("invalid bit length is reported", func(t *testing.T) {
		_, err := entity.New(ctx, entity.Options{Generate: true, BitLength: 2})
		assert.ErrorIs(t, err, keygen.ErrInvalidBitLength)
	})
}

func TestEntity_Scenario(t *testing.T) {
	ctx := context.Background()
	generator := keygen.New(keygen.WithRandom(rand.New(rand.NewSource(16))))

	e, err := entity.New(ctx, entity.Options{Generate: true, BitLength: 16, Generator: generator})
	require.NoError(t, err)
	pub := e.PublicKey()

	ciphertext, err := e.Encrypt(pub, big.NewInt(42))
	require.NoError(t, err)

	plaintext, err := e.Decrypt(ciphertext)
	require.NoError(t, err)
	assert.Equal(t, int64(42), plaintext.Int64())

	for _, fixed := range []int64{0, 1} {
		c, err := e.Encrypt(pub, big.NewInt(fixed))
		require.NoError(t, err)
		assert.Equal(t, fixed, c.Int64())
	}
}

func TestEntity_RoundTrip(t *testing.T) {
	ctx := context.Background()

	for _, bitLength := range []int{16, 64, 512} {
		e, err := entity.New(ctx, entity.Options{Generate: true, BitLength: bitLength})
		require.NoError(t, err)
		pub := e.PublicKey()
		random := rand.New(rand.NewSource(int64(bitLength)))

		for i := 0; i < 50; i++ {
			m := new(big.Int).Rand(random, pub.N)

			c, err := e.Encrypt(pub, m)
			require.NoError(t, err)
			decrypted, err := e.Decrypt(c)
			require.NoError(t, err)
			assert.Equal(t, 0, m.Cmp(decrypted), "decrypt(encrypt(m)) should be m for m=%s", m)

			signed, err := e.Decrypt(m)
			require.NoError(t, err)
			recovered, err := e.Encrypt(pub, signed)
			require.NoError(t, err)
			assert.Equal(t, 0, m.Cmp(recovered), "encrypt(decrypt(m)) should be m for m=%s", m)
		}
	}
}

func TestEntity_Encrypt(t *testing.T) {
	ctx := context.Background()

	t.Run("textbook vector", func(t *testing.T) {
		e, err := entity.New(ctx, entity.Options{KeyData: textbookKeyPair()})
		require.NoError(t, err)

		c, err := e.Encrypt(e.PublicKey(), big.NewInt(65))
		require.NoError(t, err)
		assert.Equal(t, int64(2790), c.Int64())

		m, err := e.Decrypt(c)
		require.NoError(t, err)
		assert.Equal(t, int64(65), m.Int64())
	})

	t.Run("encryption uses the recipient's key", func(t *testing.T) {
		alice, err := entity.New(ctx, entity.Options{Generate: true, BitLength: 256})
		require.NoError(t, err)
		bob, err := entity.New(ctx, entity.Options{Generate: true, BitLength: 256})
		require.NoError(t, err)

		message := big.NewInt(1234567)
		c, err := alice.Encrypt(bob.PublicKey(), message)
		require.NoError(t, err)

		m, err := bob.Decrypt(c)
		require.NoError(t, err)
		assert.Equal(t, 0, message.Cmp(m))

		wrong, err := alice.Decrypt(new(big.Int).Mod(c, alice.PublicKey().N))
		require.NoError(t, err)
		assert.NotEqual(t, 0, message.Cmp(wrong))
	})

	t.Run("operands at or above the modulus are rejected", func(t *testing.T) {
		e, err := entity.New(ctx, entity.Options{KeyData: textbookKeyPair()})
		require.NoError(t, err)
		n := e.PublicKey().N

		for _, operand := range []*big.Int{n, new(big.Int).Add(n, big.NewInt(1)), big.NewInt(-1)} {
			_, err := e.Encrypt(e.PublicKey(), operand)
			assert.ErrorIs(t, err, keys.ErrOutOfRangeOperand)

			_, err = e.Decrypt(operand)
			assert.ErrorIs(t, err, keys.ErrOutOfRangeOperand)
		}
	})

	t.Run("malformed recipient key is rejected", func(t *testing.T) {
		e, err := entity.New(ctx, entity.Options{KeyData: textbookKeyPair()})
		require.NoError(t, err)

		_, err = e.Encrypt(keys.PublicKey{}, big.NewInt(1))
		assert.ErrorIs(t, err, keys.ErrInvalidKey)
	})
}

func TestEntity_Decrypt(t *testing.T) {
	ctx := context.Background()

	t.Run("imported even modulus still decrypts", func(t *testing.T) {
		data := &keys.KeyPair{
			Public:  keys.NewPublicKey(big.NewInt(14), big.NewInt(5)),
			Private: keys.NewPrivateKey(big.NewInt(14), big.NewInt(5)),
		}
		e, err := entity.New(ctx, entity.Options{KeyData: data})
		require.NoError(t, err)

		m, err := e.Decrypt(big.NewInt(3))
		require.NoError(t, err)
		assert.Equal(t, int64(5), m.Int64())
	})

	t.Run("imported key without a modulus cannot decrypt", func(t *testing.T) {
		e, err := entity.New(ctx, entity.Options{KeyData: &keys.KeyPair{}})
		require.NoError(t, err)

		_, err = e.Decrypt(big.NewInt(0))
		assert.ErrorIs(t, err, keys.ErrInvalidKey)
	})
}

func TestEntity_Concurrent(t *testing.T) {
	e, err := entity.New(context.Background(), entity.Options{Generate: true, BitLength: 256})
	require.NoError(t, err)
	pub := e.PublicKey()

	var wg sync.WaitGroup
	errs := make(chan error, 32)
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(m int64) {
			defer wg.Done()
			c, err := e.Encrypt(pub, big.NewInt(m))
			if err != nil {
				errs <- err
				return
			}
			decrypted, err := e.Decrypt(c)
			if err != nil {
				errs <- err
				return
			}
			if decrypted.Int64() != m {
				errs <- errors.New("round trip mismatch")
			}
		}(int64(i * 1000))
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}
}
