package facade

import (
	"github.com/ethereum/go-ethereum/common"

	"github.com/shogotsuneto/go-rollups-broker"
	"github.com/shogotsuneto/go-rollups-broker/rollups"
)

// RollupStatus is the sequencing state derived from the inputs stream.
type RollupStatus struct {
	InputsSentCount        uint64
	LastEventIsFinishEpoch bool
}

// RollupClaim is a claim read from the claims stream.
type RollupClaim struct {
	Hash   common.Hash
	Number uint64
}

// streamPosition is where the next event of the inputs stream goes.
// It lives for one operation and is never cached.
type streamPosition struct {
	id          string
	epochNumber uint64
	status      RollupStatus
}

// statusFromInput projects an inputs stream entry to a rollup status.
func statusFromInput(input rollups.RollupsInput) RollupStatus {
	return RollupStatus{
		InputsSentCount:        input.InputsSentCount,
		LastEventIsFinishEpoch: input.Data.IsFinishEpoch(),
	}
}

// positionFromEntry derives the position after the given tail entry.
// Closing an epoch moves the position to the next epoch right away.
func positionFromEntry(entry *rollups.Entry[rollups.RollupsInput]) streamPosition {
	if entry == nil {
		return streamPosition{
			id:          eventstore.InitialID,
			epochNumber: 0,
		}
	}

	epochNumber := entry.Payload.EpochIndex
	if entry.Payload.Data.IsFinishEpoch() {
		epochNumber++
	}

	return streamPosition{
		id:          entry.ID,
		epochNumber: epochNumber,
		status:      statusFromInput(entry.Payload),
	}
}

func claimFromEntry(entry *rollups.Entry[rollups.RollupsClaim]) *RollupClaim {
	return &RollupClaim{
		Hash:   entry.Payload.Claim,
		Number: entry.Payload.EpochIndex,
	}
}
