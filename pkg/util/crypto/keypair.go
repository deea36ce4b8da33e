package crypto

import (
	"crypto/rsa"
	"fmt"
	"math"
	"math/big"

	"github.com/nais/rsarator/pkg/keys"
)

// ToRSAPublicKey converts pub for use with crypto/rsa and its encoders. The exponent must fit in an int.
func ToRSAPublicKey(pub keys.PublicKey) (*rsa.PublicKey, error) {
	if err := pub.Validate(); err != nil {
		return nil, err
	}
	if !pub.E.IsInt64() || pub.E.Int64() > math.MaxInt32 {
		return nil, fmt.Errorf("%w: public exponent %s does not fit a JSON web key", keys.ErrInvalidArgument, pub.E)
	}
	return &rsa.PublicKey{
		N: new(big.Int).Set(pub.N),
		E: int(pub.E.Int64()),
	}, nil
}

func FromRSAPublicKey(pub *rsa.PublicKey) keys.PublicKey {
	return keys.NewPublicKey(pub.N, big.NewInt(int64(pub.E)))
}
