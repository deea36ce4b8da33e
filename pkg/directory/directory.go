package directory

import (
	"context"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	log "github.com/sirupsen/logrus"

	"github.com/nais/rsarator/pkg/event"
	"github.com/nais/rsarator/pkg/keys"
)

const storeTimeout = 5 * time.Second

type RecipientStore interface {
	SaveRecipient(ctx context.Context, id keys.ID, pub keys.PublicKey) error
}

// Directory records public keys announced by other hosts as recipients for encryption.
type Directory struct {
	store RecipientStore
	self  keys.ID
}

// New returns a directory that ignores announcements of self, the local key.
func New(store RecipientStore, self keys.ID) Directory {
	return Directory{store: store, self: self}
}

// Callback handles one announcement. Undecodable announcements are dropped; storage failures are retried.
func (d Directory) Callback(message *sarama.ConsumerMessage, logger *log.Entry) (bool, error) {
	e, err := event.Unmarshal(message.Value)
	if err != nil {
		return false, err
	}

	id, pub, err := e.PublicKey()
	if err != nil {
		return false, fmt.Errorf("%s: %w", e, err)
	}
	if err := pub.Validate(); err != nil {
		return false, fmt.Errorf("%s: %w", e, err)
	}

	logger = logger.WithField("key_id", id)
	if id == d.self {
		logger.Debugf("ignoring announcement of own key: %s", e)
		return false, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()

	if err := d.store.SaveRecipient(ctx, id, pub); err != nil {
		return true, fmt.Errorf("%s: %w", e, err)
	}

	logger.Infof("recorded recipient key from %s", e)
	return false, nil
}
