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

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/AntonStoeckl/library-lending-simulation/circulation"
	"github.com/AntonStoeckl/library-lending-simulation/simulation"
)

const (
	keyPatrons          = "patrons"
	keyTurns            = "turns"
	keyTimeout          = "timeout"
	keyProgressInterval = "progress-interval"
	keySeed             = "seed"
	keyReadingMin       = "reading-min"
	keyReadingMax       = "reading-max"
	keyPauseMin         = "pause-min"
	keyPauseMax         = "pause-max"
	keyBackoffBase      = "backoff-base"
	keyBackoffMax       = "backoff-max"

	defaultPatrons = 5
	defaultTurns   = 3

	shutdownTimeout = 10 * time.Second
)

func newRunCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one simulation and print its summary",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.run(cmd.Context())
		},
	}

	flags := cmd.Flags()
	flags.Int(keyPatrons, defaultPatrons, "number of patrons")
	flags.Int(keyTurns, defaultTurns, "borrow/return cycles per patron")
	flags.String(keyBooks, "", "catalogue file (Title|Author|ISBN|Copies[|Year]), overrides the stored snapshot")
	flags.Duration(keyTimeout, simulation.DefaultCompletionTimeout, "stop patrons that have not finished after this long")
	flags.Duration(keyProgressInterval, simulation.DefaultProgressInterval, "interval of progress log lines")
	flags.Uint64(keySeed, 0, "random seed, 0 picks one")
	flags.Duration(keyReadingMin, simulation.DefaultMinReadingTime, "minimum time a patron keeps a book")
	flags.Duration(keyReadingMax, simulation.DefaultMaxReadingTime, "maximum time a patron keeps a book")
	flags.Duration(keyPauseMin, simulation.DefaultMinPause, "minimum pause between turns")
	flags.Duration(keyPauseMax, simulation.DefaultMaxPause, "maximum pause between turns")
	flags.Duration(keyBackoffBase, simulation.DefaultBackoffBaseDelay, "first retry delay after an unavailable title")
	flags.Duration(keyBackoffMax, simulation.DefaultBackoffMaxDelay, "maximum retry delay")
	flags.String(keyMetricsAddr, "", "serve Prometheus metrics on this address, e.g. :9090")
	flags.Bool(keyTelemetry, false, "record OpenTelemetry spans and metrics in-process and print a digest")

	return cmd
}

func (a *app) run(ctx context.Context) error {
	logger, err := a.newLogger()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	runID, err := uuid.NewV7()
	if err != nil {
		return err
	}
	logger = logger.With("run_id", runID.String())

	store, closeStore, err := a.openStore(ctx, logger)
	if err != nil {
		return fmt.Errorf("opening snapshot store: %w", err)
	}
	defer closeStore()

	obs, err := a.newObservability(logger)
	if err != nil {
		return fmt.Errorf("setting up observability: %w", err)
	}

	seed, err := a.loadSeed(ctx, store, logger)
	if err != nil {
		return errors.Join(fmt.Errorf("loading catalogue: %w", err), obs.shutdown(context.Background()))
	}

	options := []circulation.Option{
		circulation.WithLogger(logger),
		circulation.WithSequenceStart(seed.sequence),
	}
	if store != nil {
		options = append(options, circulation.WithPersister(store))
	}
	options = append(options, obs.options...)

	service, err := circulation.NewLendingService(options...)
	if err != nil {
		return errors.Join(err, obs.shutdown(context.Background()))
	}

	if err = service.Seed(ctx, seed.records); err != nil {
		return errors.Join(err, a.shutdown(service, obs))
	}

	controller, err := a.newController(service, logger)
	if err != nil {
		return errors.Join(err, a.shutdown(service, obs))
	}

	summary, runErr := controller.Run(ctx, a.v.GetInt(keyPatrons), a.v.GetInt(keyTurns))
	if errors.Is(runErr, circulation.ErrInvalidArgument) {
		return errors.Join(runErr, a.shutdown(service, obs))
	}

	if _, err = summary.WriteTo(a.out); err != nil {
		logger.Warn("writing summary failed", "error", err.Error())
	}

	if err = obs.writeDigest(context.Background(), a.out); err != nil {
		logger.Warn("collecting telemetry failed", "error", err.Error())
	}

	return errors.Join(runErr, a.shutdown(service, obs))
}

func (a *app) newController(service *circulation.LendingService, logger *slog.Logger) (*simulation.Controller, error) {
	timing := simulation.Timing{
		MinReadingTime: a.v.GetDuration(keyReadingMin),
		MaxReadingTime: a.v.GetDuration(keyReadingMax),
		MinPause:       a.v.GetDuration(keyPauseMin),
		MaxPause:       a.v.GetDuration(keyPauseMax),
		Backoff: simulation.Backoff{
			BaseDelay:    a.v.GetDuration(keyBackoffBase),
			MaxDelay:     a.v.GetDuration(keyBackoffMax),
			JitterFactor: simulation.DefaultBackoffJitterFactor,
		},
	}

	options := []simulation.Option{
		simulation.WithTiming(timing),
		simulation.WithCompletionTimeout(a.v.GetDuration(keyTimeout)),
		simulation.WithProgressInterval(a.v.GetDuration(keyProgressInterval)),
		simulation.WithLogger(logger),
	}

	if seed := a.v.GetUint64(keySeed); seed != 0 {
		options = append(options, simulation.WithSeed(seed))
	}

	return simulation.NewController(service, options...)
}

// shutdown flushes the last snapshot and stops the telemetry. It runs on a fresh context
// so an interrupted run still saves its final state.
func (a *app) shutdown(service *circulation.LendingService, obs *observability) error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	return errors.Join(service.Close(ctx), obs.shutdown(ctx))
}
