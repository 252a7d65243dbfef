package facade

import (
	"github.com/shogotsuneto/go-rollups-broker/rollups"
)

// buildNextInput builds the input event that follows pos.
func buildNextInput(input rollups.Input, pos streamPosition) rollups.RollupsInput {
	metadata := rollups.InputMetadata{
		MsgSender:   input.Sender,
		BlockNumber: input.BlockNumber,
		Timestamp:   input.BlockTimestamp,
		// Kept at 0 for the machine; the epoch is carried by RollupsInput.EpochIndex
		EpochIndex: 0,
		InputIndex: pos.status.InputsSentCount,
	}

	return rollups.RollupsInput{
		ParentID:        pos.id,
		EpochIndex:      pos.epochNumber,
		InputsSentCount: pos.status.InputsSentCount + 1,
		Data: rollups.RollupsData{
			AdvanceStateInput: &rollups.AdvanceStateInput{
				Metadata: metadata,
				Payload:  append([]byte(nil), input.Payload...),
				TxHash:   input.TxHash,
			},
		},
	}
}

// buildNextFinishEpoch builds the event closing the epoch of pos.
func buildNextFinishEpoch(pos streamPosition) rollups.RollupsInput {
	return rollups.RollupsInput{
		ParentID:        pos.id,
		EpochIndex:      pos.epochNumber,
		InputsSentCount: pos.status.InputsSentCount,
		Data: rollups.RollupsData{
			FinishEpoch: &rollups.FinishEpoch{},
		},
	}
}
