package keystore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	cache "github.com/Code-Hex/go-generics-cache"
	_ "github.com/mattn/go-sqlite3"

	"github.com/nais/rsarator/pkg/keys"
)

const DefaultCacheExpiration = 10 * time.Minute

var ErrNotFound = errors.New("not found")

const schema = `
CREATE TABLE IF NOT EXISTS key_pairs (
	id TEXT PRIMARY KEY,
	n TEXT NOT NULL,
	e TEXT NOT NULL,
	d TEXT NOT NULL,
	created_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS recipients (
	id TEXT PRIMARY KEY,
	n TEXT NOT NULL,
	e TEXT NOT NULL,
	updated_at DATETIME NOT NULL
);`

// Store persists key pairs and recipient public keys as decimal strings in sqlite.
type Store struct {
	db         *sql.DB
	expiration time.Duration
	keyPairs   *cache.Cache[keys.ID, keys.KeyPair]
	recipients *cache.Cache[keys.ID, keys.PublicKey]
}

func Open(ctx context.Context, path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("opening keystore '%s': %w", path, err)
	}
	// sqlite serialises writers, and in-memory databases exist per connection
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("creating keystore schema: %w", err)
	}

	return &Store{
		db:         db,
		expiration: DefaultCacheExpiration,
		keyPairs:   cache.New[keys.ID, keys.KeyPair](),
		recipients: cache.New[keys.ID, keys.PublicKey](),
	}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) SaveKeyPair(ctx context.Context, id keys.ID, pair keys.KeyPair) error {
	n, e := pair.Public.Decimal()
	_, d := pair.Private.Decimal()

	_, err := s.db.ExecContext(ctx,
		"INSERT INTO key_pairs (id, n, e, d, created_at) VALUES (?, ?, ?, ?, ?)",
		id.String(), n, e, d, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("saving key pair '%s': %w", id, err)
	}

	s.keyPairs.Set(id, pair.Clone(), cache.WithExpiration(s.expiration))
	return nil
}

func (s *Store) KeyPair(ctx context.Context, id keys.ID) (keys.KeyPair, error) {
	if val, found := s.keyPairs.Get(id); found {
		return val.Clone(), nil
	}

	var n, e, d string
	err := s.db.QueryRowContext(ctx, "SELECT n, e, d FROM key_pairs WHERE id = ?", id.String()).Scan(&n, &e, &d)
	if errors.Is(err, sql.ErrNoRows) {
		return keys.KeyPair{}, fmt.Errorf("key pair '%s': %w", id, ErrNotFound)
	}
	if err != nil {
		return keys.KeyPair{}, fmt.Errorf("fetching key pair '%s': %w", id, err)
	}

	public, err := keys.ParsePublicKey(n, e)
	if err != nil {
		return keys.KeyPair{}, fmt.Errorf("key pair '%s': %w", id, err)
	}
	private, err := keys.ParsePrivateKey(n, d)
	if err != nil {
		return keys.KeyPair{}, fmt.Errorf("key pair '%s': %w", id, err)
	}

	pair := keys.KeyPair{Public: public, Private: private}
	s.keyPairs.Set(id, pair.Clone(), cache.WithExpiration(s.expiration))
	return pair, nil
}

func (s *Store) KeyPairIDs(ctx context.Context) ([]keys.ID, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT id FROM key_pairs ORDER BY created_at, id")
	if err != nil {
		return nil, fmt.Errorf("listing key pairs: %w", err)
	}
	defer rows.Close()

	ids := make([]keys.ID, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("reading key pair id: %w", err)
		}
		ids = append(ids, keys.ID(id))
	}
	return ids, rows.Err()
}

func (s *Store) DeleteKeyPair(ctx context.Context, id keys.ID) error {
	s.keyPairs.Delete(id)

	result, err := s.db.ExecContext(ctx, "DELETE FROM key_pairs WHERE id = ?", id.String())
	if err != nil {
		return fmt.Errorf("deleting key pair '%s': %w", id, err)
	}
	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return fmt.Errorf("key pair '%s': %w", id, ErrNotFound)
	}
	return nil
}

// SaveRecipient inserts or replaces the public key known for id.
func (s *Store) SaveRecipient(ctx context.Context, id keys.ID, pub keys.PublicKey) error {
	n, e := pub.Decimal()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO recipients (id, n, e, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET n = excluded.n, e = excluded.e, updated_at = excluded.updated_at`,
		id.String(), n, e, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("saving recipient '%s': %w", id, err)
	}

	s.recipients.Set(id, pub.Clone(), cache.WithExpiration(s.expiration))
	return nil
}

func (s *Store) Recipient(ctx context.Context, id keys.ID) (keys.PublicKey, error) {
	if val, found := s.recipients.Get(id); found {
		return val.Clone(), nil
	}

	var n, e string
	err := s.db.QueryRowContext(ctx, "SELECT n, e FROM recipients WHERE id = ?", id.String()).Scan(&n, &e)
	if errors.Is(err, sql.ErrNoRows) {
		return keys.PublicKey{}, fmt.Errorf("recipient '%s': %w", id, ErrNotFound)
	}
	if err != nil {
		return keys.PublicKey{}, fmt.Errorf("fetching recipient '%s': %w", id, err)
	}

	pub, err := keys.ParsePublicKey(n, e)
	if err != nil {
		return keys.PublicKey{}, fmt.Errorf("recipient '%s': %w", id, err)
	}

	s.recipients.Set(id, pub.Clone(), cache.WithExpiration(s.expiration))
	return pub, nil
}

func (s *Store) Recipients(ctx context.Context) (map[keys.ID]keys.PublicKey, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT id, n, e FROM recipients")
	if err != nil {
		return nil, fmt.Errorf("listing recipients: %w", err)
	}
	defer rows.Close()

	recipients := make(map[keys.ID]keys.PublicKey)
	for rows.Next() {
		var id, n, e string
		if err := rows.Scan(&id, &n, &e); err != nil {
			return nil, fmt.Errorf("reading recipient: %w", err)
		}
		pub, err := keys.ParsePublicKey(n, e)
		if err != nil {
			return nil, fmt.Errorf("recipient '%s': %w", id, err)
		}
		recipients[keys.ID(id)] = pub
	}
	return recipients, rows.Err()
}

func (s *Store) Count(ctx context.Context) (keyPairs, recipients int, err error) {
	err = s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM key_pairs").Scan(&keyPairs)
	if err != nil {
		return 0, 0, fmt.Errorf("counting key pairs: %w", err)
	}
	err = s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM recipients").Scan(&recipients)
	if err != nil {
		return 0, 0, fmt.Errorf("counting recipients: %w", err)
	}
	return keyPairs, recipients, nil
}
