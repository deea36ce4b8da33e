package keys

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/google/uuid"
)

var (
	ErrInvalidArgument   = errors.New("invalid argument")
	ErrOutOfRangeOperand = fmt.Errorf("%w: operand must be in [0, n)", ErrInvalidArgument)
	ErrInvalidKey        = fmt.Errorf("%w: key must have a positive modulus and a non-negative exponent", ErrInvalidArgument)
)

type ID string

func NewID() ID {
	return ID(uuid.New().String())
}

func (in ID) String() string {
	return string(in)
}

// PublicKey is the pair (n, e).
type PublicKey struct {
	N *big.Int
	E *big.Int
}

// PrivateKey is the pair (n, d). N duplicates the modulus of the matching PublicKey.
type PrivateKey struct {
	N *big.Int
	D *big.Int
}

// KeyPair holds the two halves produced by a single generation run.
type KeyPair struct {
	Public  PublicKey
	Private PrivateKey
}

func NewPublicKey(n, e *big.Int) PublicKey {
	return PublicKey{N: clone(n), E: clone(e)}
}

func NewPrivateKey(n, d *big.Int) PrivateKey {
	return PrivateKey{N: clone(n), D: clone(d)}
}

func (in PublicKey) Clone() PublicKey {
	return NewPublicKey(in.N, in.E)
}

func (in PublicKey) Equal(other PublicKey) bool {
	return equal(in.N, other.N) && equal(in.E, other.E)
}

func (in PublicKey) Validate() error {
	return validate(in.N, in.E)
}

// CheckOperand reports ErrOutOfRangeOperand unless 0 <= x < n.
func (in PublicKey) CheckOperand(x *big.Int) error {
	return checkOperand(x, in.N)
}

func (in PrivateKey) Clone() PrivateKey {
	return NewPrivateKey(in.N, in.D)
}

func (in PrivateKey) Validate() error {
	return validate(in.N, in.D)
}

func (in PrivateKey) CheckOperand(x *big.Int) error {
	return checkOperand(x, in.N)
}

func (in KeyPair) Clone() KeyPair {
	return KeyPair{
		Public:  in.Public.Clone(),
		Private: in.Private.Clone(),
	}
}

func (in KeyPair) BitLen() int {
	if in.Public.N == nil {
		return 0
	}
	return in.Public.N.BitLen()
}

func validate(n, exponent *big.Int) error {
	if n == nil || n.Sign() <= 0 || exponent == nil || exponent.Sign() < 0 {
		return ErrInvalidKey
	}
	return nil
}

func checkOperand(x, n *big.Int) error {
	if n == nil || n.Sign() <= 0 {
		return ErrInvalidKey
	}
	if x == nil || x.Sign() < 0 || x.Cmp(n) >= 0 {
		return ErrOutOfRangeOperand
	}
	return nil
}

func clone(x *big.Int) *big.Int {
	if x == nil {
		return nil
	}
	return new(big.Int).Set(x)
}

func equal(a, b *big.Int) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Cmp(b) == 0
}
