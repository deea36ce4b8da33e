package kafka

import (
	"context"
	"crypto/tls"
	"errors"
	"os"
	"time"

	"github.com/IBM/sarama"
	log "github.com/sirupsen/logrus"

	"github.com/nais/rsarator/pkg/config"
)

const restartInterval = 10 * time.Second

type Consumer struct {
	callback      Callback
	consumer      sarama.ConsumerGroup
	groupID       string
	logger        *log.Logger
	retryInterval time.Duration
	topic         string
}

// Setup is run at the beginning of a new session, before ConsumeClaim
func (c *Consumer) Setup(_ sarama.ConsumerGroupSession) error {
	return nil
}

// Cleanup is run at the end of a session, once all ConsumeClaim goroutines have exited
func (c *Consumer) Cleanup(_ sarama.ConsumerGroupSession) error {
	return nil
}

// ConsumeClaim must start a consumer loop of ConsumerGroupClaim's Messages().
func (c *Consumer) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for message := range claim.Messages() {
		logger := c.logger.WithFields(log.Fields{
			"kafka_offset":    message.Offset,
			"kafka_partition": message.Partition,
			"kafka_topic":     message.Topic,
		})

		for {
			retry, err := c.callback(message, logger)
			if err == nil || !retry {
				if err != nil {
					logger.Errorf("dropping Kafka message: %s", err)
				}
				break
			}

			logger.Errorf("consuming Kafka message: %s", err)
			select {
			case <-session.Context().Done():
				return nil
			case <-time.After(c.retryInterval):
			}
		}
		session.MarkMessage(message, "")
	}
	return nil
}

// NewConsumer joins groupID on the configured topic. Each host should use its own group to see every announcement.
func NewConsumer(cfg config.Config, tlsConfig *tls.Config, logger *log.Logger, groupID string, callback Callback) (*Consumer, error) {
	consumerCfg := sarama.NewConfig()
	consumerCfg.Net.TLS.Enable = cfg.Kafka.TLS.Enabled
	consumerCfg.Net.TLS.Config = tlsConfig
	consumerCfg.Version = sarama.V3_1_0_0
	consumerCfg.Consumer.Offsets.Initial = sarama.OffsetOldest
	consumerCfg.Consumer.Return.Errors = true
	consumerCfg.ClientID, _ = os.Hostname()
	sarama.Logger = logger

	consumer, err := sarama.NewConsumerGroup(cfg.Kafka.Brokers, groupID, consumerCfg)
	if err != nil {
		return nil, err
	}

	return &Consumer{
		callback:      callback,
		consumer:      consumer,
		groupID:       groupID,
		logger:        logger,
		retryInterval: cfg.Kafka.RetryInterval,
		topic:         cfg.Kafka.Topic,
	}, nil
}

// Run consumes until ctx is done, re-joining the group whenever a session ends.
func (c *Consumer) Run(ctx context.Context) error {
	go func() {
		for err := range c.consumer.Errors() {
			c.logger.Errorf("Consumer encountered error: %s", err)
		}
	}()

	for {
		c.logger.Infof("(re-)starting consumer on topic %s", c.topic)
		err := c.consumer.Consume(ctx, []string{c.topic}, c)
		if errors.Is(err, sarama.ErrClosedConsumerGroup) {
			return nil
		}
		if err != nil {
			c.logger.Errorf("Error setting up consumer: %s", err)
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(restartInterval):
		}
	}
}

func (c *Consumer) Close() error {
	return c.consumer.Close()
}
