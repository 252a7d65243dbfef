package facade

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/shogotsuneto/go-rollups-broker"
	"github.com/shogotsuneto/go-rollups-broker/memory"
	"github.com/shogotsuneto/go-rollups-broker/redis"
	"github.com/shogotsuneto/go-rollups-broker/rollups"
)

var testDApp = rollups.DAppMetadata{
	ChainID:     31337,
	DAppAddress: common.HexToAddress("0x70ac08179605AF2D9e75782b8DEcDD3c22aA4D0C"),
}

// fixture writes to the rollup streams the way other processes would.
type fixture struct {
	t      *testing.T
	broker eventstore.Broker

	parent     string
	epoch      uint64
	inputCount uint64
	claimCount uint64
}

type backend struct {
	name    string
	connect func(t *testing.T) eventstore.Broker
}

var backends = []backend{
	{
		name: "memory",
		connect: func(t *testing.T) eventstore.Broker {
			return memory.NewInMemoryBroker(0)
		},
	},
	{
		name: "redis",
		connect: func(t *testing.T) eventstore.Broker {
			server := miniredis.RunT(t)
			broker, err := redis.Connect(context.Background(), eventstore.Config{
				Endpoint:          "redis://" + server.Addr(),
				BackoffMaxElapsed: time.Second,
			})
			require.NoError(t, err)
			return broker
		},
	},
}

// forEachBackend runs test against a fresh facade on every backend.
func forEachBackend(t *testing.T, test func(t *testing.T, fx *fixture, f *BrokerFacade)) {
	for _, b := range backends {
		b := b
		t.Run(b.name, func(t *testing.T) {
			broker := b.connect(t)
			f := NewWithBroker(broker, testDApp)
			t.Cleanup(func() { _ = f.Close() })

			test(t, &fixture{t: t, broker: broker, parent: eventstore.InitialID}, f)
		})
	}
}

func (fx *fixture) produceInput(data rollups.RollupsData) {
	fx.t.Helper()

	if !data.IsFinishEpoch() {
		fx.inputCount++
	}
	id, err := rollups.InputsStream(testDApp).Produce(context.Background(), fx.broker, rollups.RollupsInput{
		ParentID:        fx.parent,
		EpochIndex:      fx.epoch,
		InputsSentCount: fx.inputCount,
		Data:            data,
	})
	require.NoError(fx.t, err)

	fx.parent = id
	if data.IsFinishEpoch() {
		fx.epoch++
	}
}

func (fx *fixture) produceAdvanceStateInputs(n int) {
	fx.t.Helper()

	for i := 0; i < n; i++ {
		fx.produceInput(rollups.RollupsData{AdvanceStateInput: &rollups.AdvanceStateInput{
			Metadata: rollups.InputMetadata{InputIndex: fx.inputCount},
		}})
	}
}

func (fx *fixture) produceFinishEpoch() {
	fx.t.Helper()

	fx.produceInput(rollups.RollupsData{FinishEpoch: &rollups.FinishEpoch{}})
}

func (fx *fixture) produceClaim(hash common.Hash) {
	fx.t.Helper()

	_, err := rollups.ClaimsStream(testDApp).Produce(context.Background(), fx.broker, rollups.RollupsClaim{
		EpochIndex: fx.claimCount,
		Claim:      hash,
	})
	require.NoError(fx.t, err)
	fx.claimCount++
}

func (fx *fixture) produceClaims(n int) []common.Hash {
	fx.t.Helper()

	var hashes []common.Hash
	for i := 0; i < n; i++ {
		hash := common.BytesToHash([]byte{byte(i + 1)})
		fx.produceClaim(hash)
		hashes = append(hashes, hash)
	}
	return hashes
}

func (fx *fixture) inputs() []rollups.Entry[rollups.RollupsInput] {
	fx.t.Helper()

	loader, ok := fx.broker.(eventstore.Loader)
	require.True(fx.t, ok)

	entries, err := rollups.InputsStream(testDApp).Load(context.Background(), loader, eventstore.LoadOptions{})
	require.NoError(fx.t, err)
	return entries
}

func newInput() rollups.Input {
	return rollups.Input{
		Sender:         common.HexToAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"),
		BlockNumber:    0,
		BlockTimestamp: 0,
		Payload:        []byte{},
		TxHash:         common.HexToHash("0xdeadbeef"),
	}
}

var errBrokerDown = errors.New("broker down")

// failingBroker fails the operations it is told to.
type failingBroker struct {
	eventstore.Broker
	peek, produce, consume bool
}

func (b *failingBroker) PeekLatest(ctx context.Context, stream string) (*eventstore.Event, error) {
	if b.peek {
		return nil, errBrokerDown
	}
	return b.Broker.PeekLatest(ctx, stream)
}

func (b *failingBroker) Produce(ctx context.Context, stream string, data []byte) (string, error) {
	if b.produce {
		return "", errBrokerDown
	}
	return b.Broker.Produce(ctx, stream, data)
}

func (b *failingBroker) ConsumeAfter(ctx context.Context, stream string, id string) (*eventstore.Event, error) {
	if b.consume {
		return nil, errBrokerDown
	}
	return b.Broker.ConsumeAfter(ctx, stream, id)
}
