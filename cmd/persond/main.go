// Package main is persond's service runtime (C8): it wires the
// Postgres event log, Kafka fanout, snapshot store, repository, and
// command dispatcher together, then runs until a shutdown signal
// drains in-flight work.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/persondomain/persond/internal/config"
	"github.com/persondomain/persond/internal/dispatcher"
	"github.com/persondomain/persond/internal/eventstore"
	"github.com/persondomain/persond/internal/healthserver"
	"github.com/persondomain/persond/internal/repository"
	"github.com/persondomain/persond/internal/snapshot"
)

// Exit codes per the service runtime's contract.
const (
	exitClean                 = 0
	exitConfigInvalid         = 1
	exitBrokerUnreachable     = 2
	exitStreamProvisionFailed = 3
	exitSignalTerminated      = 130
)

const (
	dispatcherGroupID    = "persond-dispatcher"
	brokerReconnectCap   = 30 * time.Second
	brokerReconnectBase  = 500 * time.Millisecond
	brokerReconnectBudget = 5 * time.Minute
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "persond: loading configuration: %v\n", err)

		return exitConfigInvalid
	}

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "persond: invalid configuration: %v\n", err)

		return exitConfigInvalid
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel}))
	slog.SetDefault(logger)

	logger.Info("starting persond",
		slog.String("broker", cfg.MaskBrokerURL()),
		slog.String("database", cfg.MaskDatabaseURL()),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dbConn, err := eventstore.NewConnection(eventstore.NewConnectionConfig(cfg.DatabaseURL))
	if err != nil {
		logger.Error("database unreachable", slog.Any("error", err))

		return exitBrokerUnreachable
	}
	defer func() { _ = dbConn.Close() }()

	eventStore, err := eventstore.NewPostgresEventStore(dbConn, 0, eventstore.WithLogger(logger))
	if err != nil {
		logger.Error("failed to build event store", slog.Any("error", err))

		return exitConfigInvalid
	}
	defer func() { _ = eventStore.Close() }()

	brokerAddr, err := waitForBroker(ctx, cfg.BrokerURL, logger)
	if err != nil {
		logger.Error("broker unreachable beyond reconnect budget", slog.Any("error", err))

		return exitBrokerUnreachable
	}

	publisher, err := eventstore.NewKafkaPublisher(brokerAddr, cfg.EventsPrefix, cfg.PublishAckTimeout, eventstore.WithPublisherLogger(logger))
	if err != nil {
		logger.Error("failed to provision event publisher", slog.Any("error", err))

		return exitStreamProvisionFailed
	}
	defer func() { _ = publisher.Close() }()

	commandSource, err := dispatcher.NewKafkaCommandSource(brokerAddr, cfg.CommandsPrefix, dispatcherGroupID, cfg.FetchTimeout)
	if err != nil {
		logger.Error("failed to provision command source", slog.Any("error", err))

		return exitStreamProvisionFailed
	}
	defer func() { _ = commandSource.Close() }()

	snapshotStore, err := snapshot.NewPostgresStore(dbConn)
	if err != nil {
		logger.Error("failed to build snapshot store", slog.Any("error", err))

		return exitConfigInvalid
	}

	quarantineStore, err := dispatcher.NewPostgresQuarantineStore(dbConn)
	if err != nil {
		logger.Error("failed to build quarantine store", slog.Any("error", err))

		return exitConfigInvalid
	}

	repo := repository.New(eventStore, publisher, snapshotStore,
		repository.WithLogger(logger),
		repository.WithSnapshotFrequency(cfg.SnapshotFrequency),
	)

	disp := dispatcher.New(commandSource, repo, publisher, quarantineStore, cfg.MaxInflightCommands,
		dispatcher.WithLogger(logger),
		dispatcher.WithRetryPolicy(cfg.RetryBase, cfg.RetryCap, cfg.RetryMaxAttempts),
	)

	health := healthserver.New(healthserver.Config{
		Port:         cfg.HealthPort,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	}, map[string]healthserver.Checker{
		"eventstore": eventStore,
		"broker":     publisher,
	})

	runErrors := make(chan error, 2)

	go func() {
		logger.Info("dispatcher starting")

		if err := disp.Run(ctx); err != nil {
			runErrors <- fmt.Errorf("dispatcher: %w", err)

			return
		}

		runErrors <- nil
	}()

	go func() {
		if err := health.Start(ctx, cfg.ShutdownGrace); err != nil {
			runErrors <- fmt.Errorf("healthserver: %w", err)

			return
		}

		runErrors <- nil
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received, draining dispatcher")
	case err := <-runErrors:
		if err != nil {
			logger.Error("service runtime failed", slog.Any("error", err))
			stop()

			<-runErrors

			return exitSignalTerminated
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownGrace)
	defer cancel()

	done := make(chan struct{})

	go func() {
		<-runErrors
		<-runErrors
		close(done)
	}()

	select {
	case <-done:
		logger.Info("clean shutdown complete")

		return exitClean
	case <-shutdownCtx.Done():
		logger.Warn("shutdown grace period exceeded, forcing exit")

		return exitSignalTerminated
	}
}

// waitForBroker resolves the broker address, retrying with jittered
// exponential backoff until it answers or the reconnect budget is
// spent (spec's "connect to broker with reconnect policy: unbounded
// retry, exponential backoff" bounded here by a hard startup budget so
// an operator isn't left waiting forever on a typo'd address).
func waitForBroker(ctx context.Context, brokerAddr string, logger *slog.Logger) (string, error) {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = brokerReconnectBase
	eb.MaxInterval = brokerReconnectCap
	eb.MaxElapsedTime = brokerReconnectBudget

	operation := func() error {
		probe, err := eventstore.NewKafkaPublisher(brokerAddr, "persond.startup-probe", 5*time.Second)
		if err != nil {
			logger.Warn("broker not yet reachable, retrying", slog.Any("error", err))

			return err
		}

		return probe.Close()
	}

	if err := backoff.Retry(operation, backoff.WithContext(eb, ctx)); err != nil {
		return "", fmt.Errorf("persond: %w", errors.Join(eventstore.ErrTransientBrokerUnreachable, err))
	}

	return brokerAddr, nil
}
