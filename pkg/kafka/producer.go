package kafka

import (
	"crypto/tls"
	"fmt"
	"os"
	"time"

	"github.com/IBM/sarama"
	log "github.com/sirupsen/logrus"

	"github.com/nais/rsarator/pkg/config"
	"github.com/nais/rsarator/pkg/event"
)

type Producer interface {
	Produce(key string, msg Message) (int64, error)
	ProduceEvent(event.Event) (int64, error)
	Close() error
}

type producer struct {
	producer sarama.SyncProducer
	topic    string
}

func NewProducer(config config.Config, tlsConfig *tls.Config, logger *log.Logger) (Producer, error) {
	cfg := sarama.NewConfig()
	cfg.Net.TLS.Enable = config.Kafka.TLS.Enabled
	cfg.Net.TLS.Config = tlsConfig
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Return.Errors = true
	cfg.Producer.Return.Successes = true
	cfg.ClientID, _ = os.Hostname()
	sarama.Logger = logger

	syncProducer, err := sarama.NewSyncProducer(config.Kafka.Brokers, cfg)
	if err != nil {
		return nil, err
	}

	return NewProducerFromSyncProducer(syncProducer, config.Kafka.Topic), nil
}

func NewProducerFromSyncProducer(syncProducer sarama.SyncProducer, topic string) Producer {
	return &producer{
		producer: syncProducer,
		topic:    topic,
	}
}

func (p *producer) Produce(key string, msg Message) (offset int64, err error) {
	producerMessage := &sarama.ProducerMessage{
		Topic:     p.topic,
		Key:       sarama.StringEncoder(key),
		Value:     sarama.ByteEncoder(msg),
		Timestamp: time.Now(),
	}
	_, offset, err = p.producer.SendMessage(producerMessage)
	return
}

// ProduceEvent publishes e keyed by the announced key id, so that announcements for one key stay ordered.
func (p *producer) ProduceEvent(e event.Event) (int64, error) {
	message, err := e.Marshal()
	if err != nil {
		return -1, fmt.Errorf("marshalling event: %w", err)
	}

	return p.Produce(e.KeyID().String(), message)
}

func (p *producer) Close() error {
	return p.producer.Close()
}
