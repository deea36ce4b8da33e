package keystore_test

import (
	"context"
	"math/big"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nais/rsarator/pkg/keys"
	"github.com/nais/rsarator/pkg/keystore"
)

func newStore(t *testing.T) *keystore.Store {
	t.Helper()
	store, err := keystore.Open(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, store.Close())
	})
	return store
}

func textbookKeyPair() keys.KeyPair {
	return keys.KeyPair{
		Public:  keys.NewPublicKey(big.NewInt(3233), big.NewInt(17)),
		Private: keys.NewPrivateKey(big.NewInt(3233), big.NewInt(2753)),
	}
}

func TestStore_KeyPairs(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	pair := textbookKeyPair()

	t.Run("saved key pair can be fetched", func(t *testing.T) {
		require.NoError(t, store.SaveKeyPair(ctx, "alice", pair))

		fetched, err := store.KeyPair(ctx, "alice")
		require.NoError(t, err)
		assert.True(t, pair.Public.Equal(fetched.Public))
		assert.Equal(t, 0, pair.Private.D.Cmp(fetched.Private.D))
		assert.Equal(t, 0, pair.Private.N.Cmp(fetched.Private.N))
	})

	t.Run("fetched key pairs are copies", func(t *testing.T) {
		fetched, err := store.KeyPair(ctx, "alice")
		require.NoError(t, err)
		fetched.Private.D.SetInt64(1)

		again, err := store.KeyPair(ctx, "alice")
		require.NoError(t, err)
		assert.Equal(t, int64(2753), again.Private.D.Int64())
	})

	t.Run("duplicate ids are rejected", func(t *testing.T) {
		assert.Error(t, store.SaveKeyPair(ctx, "alice", pair))
	})

	t.Run("unknown id is not found", func(t *testing.T) {
		_, err := store.KeyPair(ctx, "mallory")
		assert.ErrorIs(t, err, keystore.ErrNotFound)
	})

	t.Run("ids are listed", func(t *testing.T) {
		require.NoError(t, store.SaveKeyPair(ctx, "bob", pair))

		ids, err := store.KeyPairIDs(ctx)
		require.NoError(t, err)
		assert.ElementsMatch(t, []keys.ID{"alice", "bob"}, ids)
	})

	t.Run("deleted key pair is gone", func(t *testing.T) {
		require.NoError(t, store.DeleteKeyPair(ctx, "bob"))

		_, err := store.KeyPair(ctx, "bob")
		assert.ErrorIs(t, err, keystore.ErrNotFound)
		assert.ErrorIs(t, store.DeleteKeyPair(ctx, "bob"), keystore.ErrNotFound)
	})
}

func TestStore_Recipients(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)

	first := keys.NewPublicKey(big.NewInt(3233), big.NewInt(17))
	second := keys.NewPublicKey(big.NewInt(3233), big.NewInt(7))

	require.NoError(t, store.SaveRecipient(ctx, "bob", first))
	require.NoError(t, store.SaveRecipient(ctx, "bob", second))
	require.NoError(t, store.SaveRecipient(ctx, "carol", first))

	t.Run("latest key wins", func(t *testing.T) {
		pub, err := store.Recipient(ctx, "bob")
		require.NoError(t, err)
		assert.True(t, second.Equal(pub))
	})

	t.Run("all recipients are listed", func(t *testing.T) {
		recipients, err := store.Recipients(ctx)
		require.NoError(t, err)
		require.Len(t, recipients, 2)
		assert.True(t, first.Equal(recipients["carol"]))
	})

	t.Run("unknown recipient is not found", func(t *testing.T) {
		_, err := store.Recipient(ctx, "dave")
		assert.ErrorIs(t, err, keystore.ErrNotFound)
	})

	t.Run("counts cover both tables", func(t *testing.T) {
		require.NoError(t, store.SaveKeyPair(ctx, "alice", textbookKeyPair()))

		keyPairs, recipients, err := store.Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, keyPairs)
		assert.Equal(t, 2, recipients)
	})
}

func TestStore_Persistence(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "rsarator.db")

	store, err := keystore.Open(ctx, path)
	require.NoError(t, err)
	require.NoError(t, store.SaveKeyPair(ctx, "alice", textbookKeyPair()))
	require.NoError(t, store.Close())

	reopened, err := keystore.Open(ctx, path)
	require.NoError(t, err)
	defer reopened.Close()

	pair, err := reopened.KeyPair(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(2753), pair.Private.D.Int64())
}
