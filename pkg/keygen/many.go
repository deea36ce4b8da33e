package keygen

import (
	"context"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/nais/rsarator/pkg/keys"
)

// GenerateMany generates count independent key pairs concurrently. The random source must be safe for
// concurrent use; crypto/rand.Reader is.
func (g Generator) GenerateMany(ctx context.Context, bitLength, count int) ([]keys.KeyPair, error) {
	if count <= 0 {
		return nil, nil
	}

	pairs := make([]keys.KeyPair, count)

	group, ctx := errgroup.WithContext(ctx)
	group.SetLimit(runtime.GOMAXPROCS(0))

	for i := range pairs {
		i := i
		group.Go(func() error {
			pair, err := g.GenerateKeys(ctx, bitLength)
			if err != nil {
				return err
			}
			pairs[i] = pair
			return nil
		})
	}

	if err := group.Wait(); err != nil {
		return nil, err
	}
	return pairs, nil
}
