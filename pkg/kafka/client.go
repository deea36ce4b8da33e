package kafka

import (
	"crypto/tls"
	"errors"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/nais/rsarator/pkg/config"
	"github.com/nais/rsarator/pkg/keys"
)

type Client struct {
	Producer
	*Consumer
}

// NewClient connects a producer for announcements and a consumer in a group private to keyID.
func NewClient(config config.Config, tlsConfig *tls.Config, logger *log.Logger, keyID keys.ID, callback Callback) (*Client, error) {
	producer, err := NewProducer(config, tlsConfig, logger)
	if err != nil {
		return nil, fmt.Errorf("creating kafka producer: %w", err)
	}

	groupID := fmt.Sprintf("rsarator-%s-v1", keyID)
	consumer, err := NewConsumer(config, tlsConfig, logger, groupID, callback)
	if err != nil {
		_ = producer.Close()
		return nil, fmt.Errorf("creating kafka consumer: %w", err)
	}

	return &Client{
		Producer: producer,
		Consumer: consumer,
	}, nil
}

func (c *Client) Close() error {
	return errors.Join(c.Producer.Close(), c.Consumer.Close())
}
