package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/shogotsuneto/go-rollups-broker/config"
	"github.com/shogotsuneto/go-rollups-broker/facade"
	"github.com/shogotsuneto/go-rollups-broker/internal/logging"
)

// exitSequencing is the exit status for a sequencing violation.
const exitSequencing = 2

var cmdMain = &cobra.Command{
	Use:           "rollups-broker",
	Short:         "Sequence rollup inputs and relay claims through the broker",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var flagMain = struct {
	ConfigFile string
	EnvFiles   []string
}{}

func init() {
	cmdMain.PersistentFlags().StringVarP(&flagMain.ConfigFile, "config", "c", "", "YAML configuration file")
	cmdMain.PersistentFlags().StringSliceVar(&flagMain.EnvFiles, "env-file", []string{".env"}, "dotenv files to load")
	config.RegisterFlags(cmdMain.PersistentFlags())
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	err := cmdMain.ExecuteContext(ctx)
	if err == nil {
		return
	}

	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	if facade.IsFatal(err) {
		// The stream and the caller disagree on position; stop everything
		os.Exit(exitSequencing)
	}
	os.Exit(1)
}

// app holds what the subcommands share.
type app struct {
	cfg      config.Config
	logger   zerolog.Logger
	registry *prometheus.Registry
	facade   *facade.BrokerFacade
}

// loadConfig reads the file, the dotenv files, the environment and the flags.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	if err := config.LoadDotEnv(flagMain.EnvFiles...); err != nil {
		return config.Config{}, err
	}

	cfg, err := config.Load(flagMain.ConfigFile)
	if err != nil {
		return config.Config{}, err
	}
	if err := cfg.ApplyEnv(os.Getenv); err != nil {
		return config.Config{}, err
	}
	if err := cfg.ApplyFlags(cmd.Flags()); err != nil {
		return config.Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}

	return cfg, nil
}

// setup loads the configuration and connects the facade.
func setup(cmd *cobra.Command) (*app, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}

	logger, err := logging.New(os.Stderr, cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return nil, err
	}

	registry := prometheus.NewRegistry()
	metrics, err := facade.NewMetrics(registry)
	if err != nil {
		return nil, err
	}

	f, err := facade.New(cmd.Context(), cfg.Facade(), facade.WithLogger(logger), facade.WithMetrics(metrics))
	if err != nil {
		return nil, err
	}

	return &app{
		cfg:      cfg,
		logger:   logger,
		registry: registry,
		facade:   f,
	}, nil
}

// run wraps a subcommand body with setup and teardown.
func run(fn func(cmd *cobra.Command, args []string, a *app) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		a, err := setup(cmd)
		if err != nil {
			return err
		}
		defer a.facade.Close()

		err = fn(cmd, args, a)
		if facade.IsFatal(err) {
			a.logger.WithLevel(zerolog.FatalLevel).Err(err).Msg("inputs stream and dispatcher diverged, halting")
		}
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	}
}
