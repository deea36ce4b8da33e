package keygen

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"math/big"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/nais/rsarator/pkg/arith"
	"github.com/nais/rsarator/pkg/keys"
	"github.com/nais/rsarator/pkg/metrics"
	"github.com/nais/rsarator/pkg/prime"
	"github.com/nais/rsarator/pkg/primality"
)

const (
	DefaultPublicExponent = 65537
	// MinBitLength is the smallest modulus size for which two distinct primes of half the length exist.
	MinBitLength = 6
)

var (
	ErrInvalidBitLength   = fmt.Errorf("%w: key bit length must be at least %d", keys.ErrInvalidArgument, MinBitLength)
	ErrNonCoprimeExponent = errors.New("public exponent is not invertible modulo the totient")
	ErrDuplicatePrimes    = errors.New("sampled primes are equal")
)

var one = big.NewInt(1)

// Material is a generated key pair together with the secrets it was derived from.
type Material struct {
	keys.KeyPair
	P       *big.Int
	Q       *big.Int
	Totient *big.Int
}

type Generator struct {
	random         io.Reader
	rounds         int
	publicExponent *big.Int
	maxCandidates  int
	log            log.FieldLogger
}

type Option func(*Generator)

// WithRandom sets the entropy source for prime sampling and Miller-Rabin bases.
func WithRandom(random io.Reader) Option {
	return func(g *Generator) {
		if random != nil {
			g.random = random
		}
	}
}

func WithRounds(rounds int) Option {
	return func(g *Generator) {
		if rounds > 0 {
			g.rounds = rounds
		}
	}
}

// WithPublicExponent sets the preferred public exponent. Values below 3 keep the default.
func WithPublicExponent(e int64) Option {
	return func(g *Generator) {
		if e >= 3 {
			g.publicExponent = big.NewInt(e)
		}
	}
}

func WithMaxCandidates(max int) Option {
	return func(g *Generator) {
		g.maxCandidates = max
	}
}

func WithLogger(logger log.FieldLogger) Option {
	return func(g *Generator) {
		if logger != nil {
			g.log = logger
		}
	}
}

func New(opts ...Option) Generator {
	g := Generator{
		random:         rand.Reader,
		rounds:         primality.DefaultRounds,
		publicExponent: big.NewInt(DefaultPublicExponent),
		log:            log.StandardLogger(),
	}
	for _, opt := range opts {
		opt(&g)
	}
	return g
}

func (g Generator) GenerateKeys(ctx context.Context, bitLength int) (keys.KeyPair, error) {
	material, err := g.GenerateMaterial(ctx, bitLength)
	if err != nil {
		return keys.KeyPair{}, err
	}
	return material.KeyPair, nil
}

// GenerateMaterial runs one generation: two distinct primes of bitLength/2 bits, the modulus, the totient
// and a coprime exponent pair.
func (g Generator) GenerateMaterial(ctx context.Context, bitLength int) (Material, error) {
	if bitLength < MinBitLength {
		return Material{}, ErrInvalidBitLength
	}

	start := time.Now()
	primeBits := bitLength / 2
	primes := prime.New(g.random, primality.New(g.random, g.rounds)).WithMaxCandidates(g.maxCandidates)

	p, err := primes.Generate(ctx, primeBits)
	if err != nil {
		return Material{}, fmt.Errorf("generating p: %w", err)
	}

	q, err := g.distinctPrime(ctx, primes, primeBits, p)
	if err != nil {
		return Material{}, fmt.Errorf("generating q: %w", err)
	}

	n := new(big.Int).Mul(p, q)
	totient := new(big.Int).Mul(
		new(big.Int).Sub(p, one),
		new(big.Int).Sub(q, one),
	)

	e, err := g.exponent(totient)
	if err != nil {
		return Material{}, err
	}

	d, err := arith.ModInverse(e, totient)
	if err != nil {
		return Material{}, fmt.Errorf("%w: %w", ErrNonCoprimeExponent, err)
	}

	metrics.KeyPairsGeneratedTotal.Inc()
	metrics.KeyGenerationDuration.Observe(time.Since(start).Seconds())

	return Material{
		KeyPair: keys.KeyPair{
			Public:  keys.PublicKey{N: n, E: e},
			Private: keys.PrivateKey{N: new(big.Int).Set(n), D: d},
		},
		P:       p,
		Q:       q,
		Totient: totient,
	}, nil
}

func (g Generator) distinctPrime(ctx context.Context, primes prime.Generator, bitLength int, other *big.Int) (*big.Int, error) {
	for {
		q, err := primes.Generate(ctx, bitLength)
		if err != nil {
			return nil, err
		}
		if q.Cmp(other) != 0 {
			return q, nil
		}

		metrics.DuplicatePrimesTotal.Inc()
		g.log.WithField("bit_length", bitLength).Debugf("%v; re-sampling q", ErrDuplicatePrimes)
	}
}

// exponent returns the preferred public exponent when it lies in (1, totient) and is coprime to the totient,
// otherwise the smallest odd e >= 3 that is.
func (g Generator) exponent(totient *big.Int) (*big.Int, error) {
	if g.publicExponent.Cmp(one) > 0 && g.publicExponent.Cmp(totient) < 0 && arith.Coprime(g.publicExponent, totient) {
		return new(big.Int).Set(g.publicExponent), nil
	}

	metrics.ExponentFallbackTotal.Inc()
	g.log.WithField("preferred_exponent", g.publicExponent.String()).Debug("preferred public exponent unusable; searching")

	step := big.NewInt(2)
	for e := big.NewInt(3); e.Cmp(totient) < 0; e.Add(e, step) {
		if arith.Coprime(e, totient) {
			return e, nil
		}
	}
	return nil, ErrNonCoprimeExponent
}
