package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/nais/rsarator/pkg/config"
	"github.com/nais/rsarator/pkg/directory"
	"github.com/nais/rsarator/pkg/entity"
	"github.com/nais/rsarator/pkg/event"
	"github.com/nais/rsarator/pkg/kafka"
	"github.com/nais/rsarator/pkg/keygen"
	"github.com/nais/rsarator/pkg/keys"
	"github.com/nais/rsarator/pkg/keystore"
	"github.com/nais/rsarator/pkg/logger"
	"github.com/nais/rsarator/pkg/metrics"
	"github.com/nais/rsarator/pkg/retry"
)

const (
	metricsRefreshInterval = 30 * time.Second
	shutdownTimeout        = 5 * time.Second
)

func main() {
	err := run()

	if err != nil {
		log.Errorf("Run loop errored: %v", err)
		os.Exit(1)
	}

	log.Info("Shutting down")
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.New()
	if err != nil {
		return err
	}

	logger.SetupLogrus(cfg.Debug)
	cfg.Print(nil)

	if err := cfg.Validate(); err != nil {
		return err
	}

	if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
		return fmt.Errorf("registering metrics: %w", err)
	}

	store, err := keystore.Open(ctx, cfg.Keystore.Path)
	if err != nil {
		return fmt.Errorf("opening keystore: %w", err)
	}
	defer store.Close()

	self, err := setupEntity(ctx, *cfg, store)
	if err != nil {
		return err
	}
	log.WithField("key_id", self.ID()).Infof("holding %d-bit key pair", self.KeyPair().BitLen())

	var client *kafka.Client
	if cfg.Kafka.Enabled {
		client, err = kafka.NewClient(*cfg, nil, log.StandardLogger(), self.ID(), directory.New(store, self.ID()).Callback)
		if err != nil {
			return fmt.Errorf("setting up kafka: %w", err)
		}
		defer client.Close()
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		metrics.New(store, metricsRefreshInterval).Refresh(ctx)
		return nil
	})

	g.Go(func() error {
		return serveMetrics(ctx, cfg.MetricsAddress)
	})

	if client != nil {
		g.Go(func() error {
			return announce(ctx, *cfg, client, self)
		})

		g.Go(func() error {
			return client.Run(ctx)
		})
	}

	return g.Wait()
}

func setupEntity(ctx context.Context, cfg config.Config, store *keystore.Store) (*entity.Entity, error) {
	if !cfg.Key.Generate {
		id := keys.ID(cfg.Key.ID)
		pair, err := store.KeyPair(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("importing key pair '%s': %w", id, err)
		}
		return entity.New(ctx, entity.Options{
			KeyData: &pair,
			ID:      id,
		})
	}

	if cfg.Key.GenerationTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Key.GenerationTimeout)
		defer cancel()
	}

	generator := keygen.New(
		keygen.WithRounds(cfg.Key.Rounds),
		keygen.WithPublicExponent(cfg.Key.PublicExponent),
		keygen.WithMaxCandidates(cfg.Key.MaxCandidates),
		keygen.WithLogger(log.StandardLogger()),
	)
	backoff := retry.Constant(0).WithMaxAttempts(cfg.Key.MaxAttempts)
	if cfg.Key.GenerationTimeout > 0 {
		backoff = backoff.WithMaxDuration(cfg.Key.GenerationTimeout)
	}

	self, err := entity.New(ctx, entity.Options{
		Generate:  true,
		BitLength: cfg.Key.BitLength,
		Generator: generator,
		Backoff:   &backoff,
	})
	if err != nil {
		return nil, err
	}

	if err := store.SaveKeyPair(ctx, self.ID(), self.KeyPair()); err != nil {
		return nil, fmt.Errorf("saving key pair: %w", err)
	}
	return self, nil
}

func announce(ctx context.Context, cfg config.Config, producer kafka.Producer, self *entity.Entity) error {
	name := event.KeyGenerated
	if !cfg.Key.Generate {
		name = event.KeyImported
	}

	e, err := event.NewEvent(name, self.ID(), self.PublicKey())
	if err != nil {
		return err
	}

	return retry.Fibonacci(cfg.Kafka.RetryInterval).Do(ctx, func(ctx context.Context) error {
		offset, err := producer.ProduceEvent(e)
		if err != nil {
			log.Errorf("announcing %s: %v", e, err)
			return retry.RetryableError(err)
		}
		log.WithField("key_id", self.ID()).Infof("announced %s at offset %d", e, offset)
		return nil
	})
}

func serveMetrics(ctx context.Context, address string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	server := &http.Server{
		Addr:              address,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	log.Infof("serving metrics on %s", address)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
