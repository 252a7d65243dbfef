// Package facade sequences rollup inputs into the inputs stream and relays
// claims from the claims stream.
//
// The sequencing position is derived from the tail of the inputs stream on
// every call and is never cached, so a restarted process carries on from
// the last durable entry. All operations of a BrokerFacade are serialized
// by one lock, which makes the read-position/build/produce sequence of a
// write atomic with respect to other callers of the same facade. Writers in
// other processes are not excluded; a race with them surfaces as a
// *SequencingError.
package facade

import (
	"context"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"

	"github.com/shogotsuneto/go-rollups-broker"
	"github.com/shogotsuneto/go-rollups-broker/rollups"
)

// Config holds everything needed to connect a facade.
type Config struct {
	Broker eventstore.Config
	// PostgresTable is used by postgres endpoints only
	PostgresTable string
	ChainID       uint64
	DAppAddress   common.Address
}

// Option configures a BrokerFacade.
type Option func(*BrokerFacade)

// WithLogger sets the logger operations are traced to.
func WithLogger(logger zerolog.Logger) Option {
	return func(f *BrokerFacade) {
		f.logger = logger
	}
}

// WithMetrics sets the metrics operations are counted in.
func WithMetrics(metrics *Metrics) Option {
	return func(f *BrokerFacade) {
		f.metrics = metrics
	}
}

// BrokerFacade is the single entry point to the rollup streams.
type BrokerFacade struct {
	mu          sync.Mutex
	broker      eventstore.Broker
	inputs      rollups.Stream[rollups.RollupsInput]
	claims      rollups.Stream[rollups.RollupsClaim]
	lastClaimID string

	logger  zerolog.Logger
	metrics *Metrics
}

// New connects to the broker, retrying with exponential backoff for at most
// config.Broker.BackoffMaxElapsed. A failure matches ErrBrokerConnection and
// is not retried again.
func New(ctx context.Context, config Config, opts ...Option) (*BrokerFacade, error) {
	f := newFacade(nil, rollups.DAppMetadata{
		ChainID:     config.ChainID,
		DAppAddress: config.DAppAddress,
	}, opts)

	f.logger.Trace().
		Str("endpoint", eventstore.RedactEndpoint(config.Broker.Endpoint)).
		Dur("backoff_max_elapsed", config.Broker.BackoffMaxElapsed).
		Msg("connecting to the broker")

	broker, err := Dial(ctx, config.Broker, config.PostgresTable)
	if err != nil {
		f.metrics.brokerError("connect")
		return nil, wrap(ErrBrokerConnection, err)
	}
	f.broker = broker

	f.logger.Trace().Msg("connected to the broker successfully")

	return f, nil
}

// NewWithBroker creates a facade on an already connected broker.
func NewWithBroker(broker eventstore.Broker, dapp rollups.DAppMetadata, opts ...Option) *BrokerFacade {
	return newFacade(broker, dapp, opts)
}

func newFacade(broker eventstore.Broker, dapp rollups.DAppMetadata, opts []Option) *BrokerFacade {
	f := &BrokerFacade{
		broker:      broker,
		inputs:      rollups.InputsStream(dapp),
		claims:      rollups.ClaimsStream(dapp),
		lastClaimID: eventstore.InitialID,
		logger:      zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Close closes the broker connection.
func (f *BrokerFacade) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.broker.Close()
}

// position peeks the tail of the inputs stream. The caller must hold f.mu.
func (f *BrokerFacade) position(ctx context.Context) (streamPosition, error) {
	f.logger.Trace().Msg("peeking last produced event")

	entry, err := f.inputs.PeekLatest(ctx, f.broker)
	if err != nil {
		f.metrics.brokerError("peek")
		return streamPosition{}, wrap(ErrPeekInput, err)
	}

	pos := positionFromEntry(entry)
	f.metrics.observeStatus(pos.status)
	f.logger.Trace().
		Str("id", pos.id).
		Uint64("epoch", pos.epochNumber).
		Uint64("inputs_sent_count", pos.status.InputsSentCount).
		Bool("last_event_is_finish_epoch", pos.status.LastEventIsFinishEpoch).
		Msg("got stream position")

	return pos, nil
}

// Status returns the rollup status derived from the tail of the inputs stream.
func (f *BrokerFacade) Status(ctx context.Context) (RollupStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	pos, err := f.position(ctx)
	if err != nil {
		return RollupStatus{}, err
	}

	return pos.status, nil
}

// EnqueueInput appends input to the inputs stream. inputIndex is the index
// the caller expects the input to get.
//
// A *SequencingError means the caller and the stream disagree; it must
// propagate to process termination and never be caught and continued.
func (f *BrokerFacade) EnqueueInput(ctx context.Context, inputIndex uint64, input rollups.Input) error {
	f.logger.Trace().
		Uint64("input_index", inputIndex).
		Str("tx_hash", input.TxHash.Hex()).
		Msg("enqueueing input")

	f.mu.Lock()
	defer f.mu.Unlock()

	pos, err := f.position(ctx)
	if err != nil {
		return err
	}

	event := buildNextInput(input, pos)
	if err := checkInput(event, inputIndex); err != nil {
		f.metrics.sequencingViolation(err)
		f.logger.Error().Err(err).Uint64("input_index", inputIndex).Msg("refusing to produce input event")
		return err
	}

	f.logger.Trace().
		Str("parent_id", event.ParentID).
		Uint64("epoch", event.EpochIndex).
		Uint64("inputs_sent_count", event.InputsSentCount).
		Msg("producing input event")

	id, err := f.inputs.Produce(ctx, f.broker, event)
	if err != nil {
		f.metrics.brokerError("produce_input")
		return wrap(ErrProduceInput, err)
	}

	f.metrics.inputEnqueued()
	f.logger.Trace().Str("id", id).Msg("produced event with id")

	return nil
}

// FinishEpoch closes the current epoch. inputsSentCount is the count the
// caller expects the closed epoch to end at.
//
// A *SequencingError means the caller and the stream disagree; it must
// propagate to process termination and never be caught and continued.
func (f *BrokerFacade) FinishEpoch(ctx context.Context, inputsSentCount uint64) error {
	f.logger.Trace().Uint64("inputs_sent_count", inputsSentCount).Msg("finishing epoch")

	f.mu.Lock()
	defer f.mu.Unlock()

	pos, err := f.position(ctx)
	if err != nil {
		return err
	}

	event := buildNextFinishEpoch(pos)
	if err := checkFinishEpoch(event, inputsSentCount); err != nil {
		f.metrics.sequencingViolation(err)
		f.logger.Error().Err(err).Uint64("inputs_sent_count", inputsSentCount).Msg("refusing to produce finish epoch event")
		return err
	}

	f.logger.Trace().
		Str("parent_id", event.ParentID).
		Uint64("epoch", event.EpochIndex).
		Msg("producing finish epoch event")

	id, err := f.inputs.Produce(ctx, f.broker, event)
	if err != nil {
		f.metrics.brokerError("produce_finish")
		return wrap(ErrProduceFinish, err)
	}

	f.metrics.epochFinished()
	f.logger.Trace().Str("id", id).Msg("produced event with id")

	return nil
}

// NextClaim returns the claim after the last one returned, or nil if there
// is none yet. The cursor only moves when a claim is returned and starts
// from the beginning of the stream in every new process.
func (f *BrokerFacade) NextClaim(ctx context.Context) (*RollupClaim, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.logger.Trace().Str("last_id", f.lastClaimID).Msg("getting next epoch claim")

	entry, err := f.claims.ConsumeAfter(ctx, f.broker, f.lastClaimID)
	if err != nil {
		f.metrics.brokerError("consume_claim")
		return nil, wrap(ErrConsumeClaim, err)
	}
	if entry == nil {
		return nil, nil
	}

	f.lastClaimID = entry.ID
	f.metrics.claimConsumed()
	f.logger.Trace().Str("id", entry.ID).Uint64("epoch", entry.Payload.EpochIndex).Msg("consumed event")

	return claimFromEntry(entry), nil
}

// AuditInputs reads the whole inputs stream and verifies its linkage.
// It needs a broker implementing eventstore.Loader and returns the number
// of entries checked.
func (f *BrokerFacade) AuditInputs(ctx context.Context) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	loader, ok := f.broker.(eventstore.Loader)
	if !ok {
		return 0, errLoaderUnsupported
	}

	entries, err := f.inputs.Load(ctx, loader, eventstore.LoadOptions{After: eventstore.InitialID})
	if err != nil {
		f.metrics.brokerError("load")
		return 0, wrap(ErrLoadInputs, err)
	}

	return len(entries), rollups.VerifyChain(entries)
}
