package config

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/asaskevich/govalidator"
	"github.com/go-viper/mapstructure/v2"
	log "github.com/sirupsen/logrus"
	flag "github.com/spf13/pflag"
	"github.com/spf13/viper"

	utilstrings "github.com/nais/rsarator/pkg/util/strings"
)

type Config struct {
	Debug          bool     `json:"debug"`
	MetricsAddress string   `json:"metrics-address"`
	Key            Key      `json:"key"`
	Keystore       Keystore `json:"keystore"`
	Kafka          Kafka    `json:"kafka"`
}

type Key struct {
	Generate          bool          `json:"generate"`
	ID                string        `json:"id"`
	BitLength         int           `json:"bit-length"`
	Rounds            int           `json:"rounds"`
	PublicExponent    int64         `json:"public-exponent"`
	MaxCandidates     int           `json:"max-candidates"`
	MaxAttempts       uint64        `json:"max-attempts"`
	GenerationTimeout time.Duration `json:"generation-timeout"`
}

type Keystore struct {
	Path string `json:"path"`
}

type Kafka struct {
	Enabled       bool          `json:"enabled"`
	Brokers       []string      `json:"brokers"`
	Topic         string        `json:"topic"`
	TLS           KafkaTLS      `json:"tls"`
	RetryInterval time.Duration `json:"retry-interval"`
}

type KafkaTLS struct {
	Enabled bool `json:"enabled"`
}

// Configuration options
const (
	DebugEnabled         = "debug"
	MetricsAddress       = "metrics-address"
	KeyGenerate          = "key.generate"
	KeyID                = "key.id"
	KeyBitLength         = "key.bit-length"
	KeyRounds            = "key.rounds"
	KeyPublicExponent    = "key.public-exponent"
	KeyMaxCandidates     = "key.max-candidates"
	KeyMaxAttempts       = "key.max-attempts"
	KeyGenerationTimeout = "key.generation-timeout"
	KeystorePath         = "keystore.path"
	KafkaEnabled         = "kafka.enabled"
	KafkaBrokers         = "kafka.brokers"
	KafkaTopic           = "kafka.topic"
	KafkaTLSEnabled      = "kafka.tls.enabled"
	KafkaRetryInterval   = "kafka.retry-interval"
)

const (
	MinBitLength          = 6
	DefaultBitLength      = 2048
	DefaultRounds         = 40
	DefaultPublicExponent = 65537
)

func init() {
	// Automatically read configuration options from environment variables.
	// e.g. --key.bit-length will be configurable using RSARATOR_KEY_BIT_LENGTH.
	viper.SetEnvPrefix("RSARATOR")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))

	// Read configuration file from working directory and/or /etc.
	// File formats supported include JSON, TOML, YAML, HCL, envfile and Java properties config files
	viper.SetConfigName("rsarator")
	viper.AddConfigPath(".")
	viper.AddConfigPath("/etc/rsarator")

	flag.Bool(DebugEnabled, false, "Debug mode toggle")
	flag.String(MetricsAddress, ":8080", "The address the metric endpoint binds to.")

	flag.Bool(KeyGenerate, true, "Generate a fresh key pair on startup. If false, the key pair identified by key.id is imported from the keystore.")
	flag.String(KeyID, "", "ID of the key pair to import when not generating")
	flag.Int(KeyBitLength, DefaultBitLength, "Bit length of the generated modulus")
	flag.Int(KeyRounds, DefaultRounds, "Number of Miller-Rabin rounds per prime candidate")
	flag.Int64(KeyPublicExponent, DefaultPublicExponent, "Preferred public exponent. A coprime odd exponent is searched for if unusable.")
	flag.Int(KeyMaxCandidates, 0, "Maximum number of candidates tested per prime. 0 means unbounded.")
	flag.Uint64(KeyMaxAttempts, 5, "Maximum number of key generation attempts for retryable failures")
	flag.Duration(KeyGenerationTimeout, 5*time.Minute, "Deadline for generating a key pair")

	flag.String(KeystorePath, "rsarator.db", "Path to the sqlite keystore")

	flag.Bool(KafkaEnabled, false, "Announce the public key and collect recipient keys through Kafka")
	flag.StringSlice(KafkaBrokers, []string{"localhost:9092"}, "Comma-separated list of Kafka brokers, HOST:PORT")
	flag.String(KafkaTopic, "rsarator-keys", "Kafka topic for public key announcements")
	flag.Bool(KafkaTLSEnabled, false, "Use TLS when connecting to Kafka brokers")
	flag.Duration(KafkaRetryInterval, 5*time.Second, "Base interval between retries of failed announcements and of failed message handling in the consumer")
}

// Print out all configuration options except secret stuff.
func (c Config) Print(redacted []string) {
	ok := func(key string) bool {
		for _, forbiddenKey := range redacted {
			if forbiddenKey == key {
				return false
			}
		}
		return true
	}

	var keys sort.StringSlice = viper.AllKeys()

	keys.Sort()
	for _, key := range keys {
		if ok(key) {
			log.Printf("%s: %s", key, viper.GetString(key))
		} else {
			log.Printf("%s: ***REDACTED***", key)
		}
	}
}

func (c Config) Validate() error {
	errs := make([]string, 0)

	if c.Key.BitLength < MinBitLength {
		errs = append(errs, fmt.Sprintf("%s must be at least %d", KeyBitLength, MinBitLength))
	}
	if c.Key.Rounds < 1 {
		errs = append(errs, fmt.Sprintf("%s must be positive", KeyRounds))
	}
	if !c.Key.Generate && len(c.Key.ID) == 0 {
		errs = append(errs, fmt.Sprintf("%s is required when %s is false", KeyID, KeyGenerate))
	}
	if len(c.Keystore.Path) == 0 {
		errs = append(errs, fmt.Sprintf("%s is required", KeystorePath))
	}

	if c.Kafka.Enabled {
		if len(c.Kafka.Brokers) == 0 {
			errs = append(errs, fmt.Sprintf("%s is required when Kafka is enabled", KafkaBrokers))
		}
		for _, broker := range c.Kafka.Brokers {
			if !govalidator.IsDialString(broker) {
				errs = append(errs, fmt.Sprintf("%s: '%s' is not HOST:PORT", KafkaBrokers, broker))
			}
		}
		if len(c.Kafka.Topic) == 0 {
			errs = append(errs, fmt.Sprintf("%s is required when Kafka is enabled", KafkaTopic))
		}
	}

	for _, err := range errs {
		log.Printf("invalid configuration: %s", err)
	}
	if len(errs) > 0 {
		return errors.New("invalid configuration values")
	}
	return nil
}

func decoderHook(dc *mapstructure.DecoderConfig) {
	dc.TagName = "json"
	dc.ErrorUnused = true
}

func New() (*Config, error) {
	var err error
	var cfg Config

	err = viper.ReadInConfig()
	if err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	flag.Parse()

	err = viper.BindPFlags(flag.CommandLine)
	if err != nil {
		return nil, err
	}

	err = viper.Unmarshal(&cfg, decoderHook)
	if err != nil {
		return nil, err
	}
	cfg.Kafka.Brokers = utilstrings.Normalize(cfg.Kafka.Brokers)

	return &cfg, nil
}
