package entity

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/cronokirby/saferith"
	log "github.com/sirupsen/logrus"

	"github.com/nais/rsarator/pkg/keygen"
	"github.com/nais/rsarator/pkg/keys"
	"github.com/nais/rsarator/pkg/metrics"
	"github.com/nais/rsarator/pkg/retry"
)

const DefaultMaxAttempts = 5

var ErrMissingKeyData = fmt.Errorf("%w: key data must be supplied when not generating", keys.ErrInvalidArgument)

type KeyGenerator interface {
	GenerateKeys(ctx context.Context, bitLength int) (keys.KeyPair, error)
}

type Options struct {
	// Generate selects generation of a fresh key pair; otherwise KeyData is imported.
	Generate  bool
	BitLength int
	KeyData   *keys.KeyPair

	// ID identifies imported key data. A new ID is assigned when empty.
	ID keys.ID

	Generator KeyGenerator
	Backoff   *retry.Backoff
	Log       log.FieldLogger
}

// Entity owns exactly one key pair. It is immutable after construction and safe for concurrent use.
type Entity struct {
	id      keys.ID
	keyPair keys.KeyPair
	modulus *saferith.Modulus
}

func New(ctx context.Context, opts Options) (*Entity, error) {
	logger := opts.Log
	if logger == nil {
		logger = log.StandardLogger()
	}

	if !opts.Generate {
		if opts.KeyData == nil {
			return nil, ErrMissingKeyData
		}
		id := opts.ID
		if len(id) == 0 {
			id = keys.NewID()
		}
		metrics.KeyPairsImportedTotal.Inc()
		return newEntity(id, opts.KeyData.Clone()), nil
	}

	generator := opts.Generator
	if generator == nil {
		generator = keygen.New(keygen.WithLogger(logger))
	}

	backoff := retry.Constant(0).WithMaxAttempts(DefaultMaxAttempts)
	if opts.Backoff != nil {
		backoff = *opts.Backoff
	}

	var keyPair keys.KeyPair
	err := backoff.Do(ctx, func(ctx context.Context) error {
		pair, err := generator.GenerateKeys(ctx, opts.BitLength)
		if errors.Is(err, keygen.ErrNonCoprimeExponent) {
			logger.Debugf("retrying key generation: %v", err)
			return retry.RetryableError(err)
		}
		if err != nil {
			return err
		}
		keyPair = pair
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("generating %d-bit key pair: %w", opts.BitLength, err)
	}

	return newEntity(keys.NewID(), keyPair), nil
}

func newEntity(id keys.ID, keyPair keys.KeyPair) *Entity {
	return &Entity{
		id:      id,
		keyPair: keyPair,
		modulus: constantTimeModulus(keyPair.Private.N),
	}
}

func (e *Entity) ID() keys.ID {
	return e.id
}

func (e *Entity) PublicKey() keys.PublicKey {
	return e.keyPair.Public.Clone()
}

func (e *Entity) KeyPair() keys.KeyPair {
	return e.keyPair.Clone()
}

// Encrypt returns message^e mod n under the recipient's public key. No padding is applied.
func (e *Entity) Encrypt(recipient keys.PublicKey, message *big.Int) (*big.Int, error) {
	ciphertext, err := encrypt(recipient, message)
	metrics.ObserveOperation(metrics.OperationEncrypt, err)
	return ciphertext, err
}

// Decrypt returns ciphertext^d mod n under the entity's own private key.
func (e *Entity) Decrypt(ciphertext *big.Int) (*big.Int, error) {
	message, err := e.decrypt(ciphertext)
	metrics.ObserveOperation(metrics.OperationDecrypt, err)
	return message, err
}

func encrypt(recipient keys.PublicKey, message *big.Int) (*big.Int, error) {
	if err := recipient.Validate(); err != nil {
		return nil, fmt.Errorf("recipient public key: %w", err)
	}
	if err := recipient.CheckOperand(message); err != nil {
		return nil, fmt.Errorf("message: %w", err)
	}
	return new(big.Int).Exp(message, recipient.E, recipient.N), nil
}

func (e *Entity) decrypt(ciphertext *big.Int) (*big.Int, error) {
	private := e.keyPair.Private
	if err := private.Validate(); err != nil {
		return nil, fmt.Errorf("private key: %w", err)
	}
	if err := private.CheckOperand(ciphertext); err != nil {
		return nil, fmt.Errorf("ciphertext: %w", err)
	}

	if e.modulus == nil || private.D.Sign() == 0 {
		return new(big.Int).Exp(ciphertext, private.D, private.N), nil
	}

	size := private.N.BitLen()
	c := new(saferith.Nat).SetBig(ciphertext, size)
	d := new(saferith.Nat).SetBig(private.D, private.D.BitLen())
	return new(saferith.Nat).Exp(c, d, e.modulus).Big(), nil
}

// constantTimeModulus prepares n for constant-time exponentiation. Imported key data is not validated, so
// moduli that are not odd and greater than one fall back to math/big.
func constantTimeModulus(n *big.Int) *saferith.Modulus {
	if n == nil || n.Sign() <= 0 || n.Bit(0) == 0 || n.BitLen() < 2 {
		return nil
	}
	return saferith.ModulusFromNat(new(saferith.Nat).SetBig(n, n.BitLen()))
}
