package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/shogotsuneto/go-rollups-broker"
	"github.com/shogotsuneto/go-rollups-broker/facade"
	"github.com/shogotsuneto/go-rollups-broker/postgres"
	"github.com/shogotsuneto/go-rollups-broker/rollups"
)

var cmdStatus = &cobra.Command{
	Use:   "status",
	Short: "Print the rollup status derived from the inputs stream",
	Args:  cobra.NoArgs,
	RunE: run(func(cmd *cobra.Command, _ []string, a *app) error {
		status, err := a.facade.Status(cmd.Context())
		if err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "inputs sent:        %d\n", status.InputsSentCount)
		fmt.Fprintf(cmd.OutOrStdout(), "epoch just closed:  %t\n", status.LastEventIsFinishEpoch)
		return nil
	}),
}

var flagEnqueue = struct {
	Index          uint64
	Sender         string
	BlockNumber    uint64
	BlockTimestamp uint64
	Payload        string
	TxHash         string
}{}

var cmdEnqueue = &cobra.Command{
	Use:   "enqueue",
	Short: "Append an advance-state input to the inputs stream",
	Args:  cobra.NoArgs,
	RunE: run(func(cmd *cobra.Command, _ []string, a *app) error {
		input, err := parseInput()
		if err != nil {
			return err
		}

		if err := a.facade.EnqueueInput(cmd.Context(), flagEnqueue.Index, input); err != nil {
			return err
		}

		a.logger.Info().Uint64("input_index", flagEnqueue.Index).Msg("Input enqueued")
		return nil
	}),
}

func parseInput() (rollups.Input, error) {
	if !common.IsHexAddress(flagEnqueue.Sender) {
		return rollups.Input{}, fmt.Errorf("invalid sender address %q", flagEnqueue.Sender)
	}

	var payload []byte
	if flagEnqueue.Payload != "" {
		var err error
		payload, err = hexutil.Decode(flagEnqueue.Payload)
		if err != nil {
			return rollups.Input{}, fmt.Errorf("invalid payload: %w", err)
		}
	}

	var txHash common.Hash
	if flagEnqueue.TxHash != "" {
		b, err := hexutil.Decode(flagEnqueue.TxHash)
		if err != nil || len(b) != common.HashLength {
			return rollups.Input{}, fmt.Errorf("invalid transaction hash %q", flagEnqueue.TxHash)
		}
		txHash = common.BytesToHash(b)
	}

	return rollups.Input{
		Sender:         common.HexToAddress(flagEnqueue.Sender),
		BlockNumber:    flagEnqueue.BlockNumber,
		BlockTimestamp: flagEnqueue.BlockTimestamp,
		Payload:        payload,
		TxHash:         txHash,
	}, nil
}

var flagFinishEpoch = struct {
	InputsSentCount uint64
}{}

var cmdFinishEpoch = &cobra.Command{
	Use:   "finish-epoch",
	Short: "Close the current epoch",
	Args:  cobra.NoArgs,
	RunE: run(func(cmd *cobra.Command, _ []string, a *app) error {
		if err := a.facade.FinishEpoch(cmd.Context(), flagFinishEpoch.InputsSentCount); err != nil {
			return err
		}

		a.logger.Info().Uint64("inputs_sent_count", flagFinishEpoch.InputsSentCount).Msg("Epoch finished")
		return nil
	}),
}

var flagClaims = struct {
	Follow       bool
	PollInterval time.Duration
}{}

var cmdClaims = &cobra.Command{
	Use:   "claims",
	Short: "Print the claims of the claims stream",
	Args:  cobra.NoArgs,
	RunE: run(func(cmd *cobra.Command, _ []string, a *app) error {
		if !flagClaims.Follow {
			return drainClaims(cmd.Context(), cmd, a)
		}
		if flagClaims.PollInterval <= 0 {
			return fmt.Errorf("poll interval must be positive, got %s", flagClaims.PollInterval)
		}

		g, ctx := errgroup.WithContext(cmd.Context())

		if a.cfg.Metrics.Address != "" {
			server := &http.Server{
				Addr:              a.cfg.Metrics.Address,
				Handler:           promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{}),
				ReadHeaderTimeout: 5 * time.Second,
			}

			g.Go(func() error {
				a.logger.Info().Str("address", server.Addr).Msg("Serving metrics")
				err := server.ListenAndServe()
				if errors.Is(err, http.ErrServerClosed) {
					return nil
				}
				return err
			})

			g.Go(func() error {
				<-ctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				return server.Shutdown(shutdownCtx)
			})
		}

		g.Go(func() error {
			ticker := time.NewTicker(flagClaims.PollInterval)
			defer ticker.Stop()

			for {
				if err := drainClaims(ctx, cmd, a); err != nil {
					return err
				}

				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-ticker.C:
				}
			}
		})

		return g.Wait()
	}),
}

// drainClaims prints every claim available right now.
func drainClaims(ctx context.Context, cmd *cobra.Command, a *app) error {
	for {
		claim, err := a.facade.NextClaim(ctx)
		if err != nil {
			return err
		}
		if claim == nil {
			return nil
		}

		fmt.Fprintf(cmd.OutOrStdout(), "%d %s\n", claim.Number, claim.Hash.Hex())
	}
}

var cmdAudit = &cobra.Command{
	Use:   "audit",
	Short: "Verify the linkage of every entry of the inputs stream",
	Args:  cobra.NoArgs,
	RunE: run(func(cmd *cobra.Command, _ []string, a *app) error {
		n, err := a.facade.AuditInputs(cmd.Context())
		if err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "%d entries verified\n", n)
		return nil
	}),
}

var cmdInitSchema = &cobra.Command{
	Use:   "init-schema",
	Short: "Create the stream table of a Postgres broker",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		u, err := url.Parse(cfg.Broker.Endpoint)
		if err != nil {
			return err
		}
		if u.Scheme != "postgres" && u.Scheme != "postgresql" {
			return fmt.Errorf("init-schema needs a postgres endpoint, got %q", u.Scheme)
		}

		broker, err := postgres.Connect(cmd.Context(), postgres.Config{
			Config: eventstore.Config{
				Endpoint:          cfg.Broker.Endpoint,
				BackoffMaxElapsed: cfg.Broker.BackoffMaxElapsed,
			},
			TableName: cfg.Broker.PostgresTable,
		})
		if err != nil {
			return fmt.Errorf("%w: %w", facade.ErrBrokerConnection, err)
		}
		defer broker.Close()

		return broker.InitSchema(cmd.Context())
	},
}

func init() {
	cmdEnqueue.Flags().Uint64Var(&flagEnqueue.Index, "index", 0, "Expected index of the input")
	cmdEnqueue.Flags().StringVar(&flagEnqueue.Sender, "sender", "", "Address of the input sender")
	cmdEnqueue.Flags().Uint64Var(&flagEnqueue.BlockNumber, "block-number", 0, "Block the input was included in")
	cmdEnqueue.Flags().Uint64Var(&flagEnqueue.BlockTimestamp, "block-timestamp", 0, "Timestamp of the block")
	cmdEnqueue.Flags().StringVar(&flagEnqueue.Payload, "payload", "", "Hex encoded payload")
	cmdEnqueue.Flags().StringVar(&flagEnqueue.TxHash, "tx-hash", "", "Hash of the transaction carrying the input")
	_ = cmdEnqueue.MarkFlagRequired("index")
	_ = cmdEnqueue.MarkFlagRequired("sender")

	cmdFinishEpoch.Flags().Uint64Var(&flagFinishEpoch.InputsSentCount, "inputs-sent-count", 0, "Expected number of inputs sent")
	_ = cmdFinishEpoch.MarkFlagRequired("inputs-sent-count")

	cmdClaims.Flags().BoolVarP(&flagClaims.Follow, "follow", "f", false, "Keep polling for new claims")
	cmdClaims.Flags().DurationVar(&flagClaims.PollInterval, "poll-interval", time.Second, "Interval between polls when following")

	cmdMain.AddCommand(cmdStatus, cmdEnqueue, cmdFinishEpoch, cmdClaims, cmdAudit, cmdInitSchema)
}
