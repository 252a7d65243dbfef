package facade

import (
	"github.com/shogotsuneto/go-rollups-broker/rollups"
)

// checkInput validates an input event against the index the caller expects it at.
func checkInput(event rollups.RollupsInput, inputIndex uint64) error {
	if event.InputsSentCount != inputIndex+1 {
		return &SequencingError{Check: "inputs_sent_count", Actual: event.InputsSentCount, Expected: inputIndex + 1}
	}

	advance := event.Data.AdvanceStateInput
	if advance == nil {
		return &SequencingError{Check: "advance_state_input", Actual: 0, Expected: 1}
	}
	if advance.Metadata.EpochIndex != 0 {
		return &SequencingError{Check: "metadata.epoch_index", Actual: advance.Metadata.EpochIndex, Expected: 0}
	}
	if advance.Metadata.InputIndex != inputIndex {
		return &SequencingError{Check: "metadata.input_index", Actual: advance.Metadata.InputIndex, Expected: inputIndex}
	}

	return nil
}

// checkFinishEpoch validates a finish-epoch event against the count the caller expects.
func checkFinishEpoch(event rollups.RollupsInput, inputsSentCount uint64) error {
	if event.InputsSentCount != inputsSentCount {
		return &SequencingError{Check: "inputs_sent_count", Actual: event.InputsSentCount, Expected: inputsSentCount}
	}
	if !event.Data.IsFinishEpoch() {
		return &SequencingError{Check: "finish_epoch", Actual: 0, Expected: 1}
	}

	return nil
}
