// Package rollups defines the records carried by the rollups inputs and
// claims streams and their wire encoding.
package rollups

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// DAppMetadata identifies a rollup instance.
type DAppMetadata struct {
	ChainID     uint64
	DAppAddress common.Address
}

func (m DAppMetadata) streamPrefix() string {
	return fmt.Sprintf("{chain-%d:dapp-%x}", m.ChainID, m.DAppAddress.Bytes())
}

// InputsStreamKey returns the key of the inputs stream of the rollup.
func (m DAppMetadata) InputsStreamKey() string {
	return m.streamPrefix() + ":rollups-inputs"
}

// ClaimsStreamKey returns the key of the claims stream of the rollup.
func (m DAppMetadata) ClaimsStreamKey() string {
	return m.streamPrefix() + ":rollups-claims"
}

// Input is an input observed on chain, as handed to the broker facade.
type Input struct {
	Sender         common.Address
	BlockNumber    uint64
	BlockTimestamp uint64
	Payload        []byte
	TxHash         common.Hash
}

// InputMetadata describes an advance-state input to the machine.
type InputMetadata struct {
	MsgSender   common.Address `json:"msg_sender"`
	BlockNumber uint64         `json:"block_number"`
	Timestamp   uint64         `json:"timestamp"`
	// EpochIndex is always written as 0; the stream level epoch lives in RollupsInput
	EpochIndex uint64 `json:"epoch_index"`
	InputIndex uint64 `json:"input_index"`
}

// AdvanceStateInput is the payload of an input event.
type AdvanceStateInput struct {
	Metadata InputMetadata `json:"metadata"`
	Payload  hexutil.Bytes `json:"payload"`
	TxHash   common.Hash   `json:"tx_hash"`
}

// FinishEpoch is the payload of an epoch closing event. It has no fields.
type FinishEpoch struct{}

// RollupsData holds exactly one of its variants.
type RollupsData struct {
	AdvanceStateInput *AdvanceStateInput
	FinishEpoch       *FinishEpoch
}

// IsFinishEpoch reports whether the data closes an epoch.
func (d RollupsData) IsFinishEpoch() bool {
	return d.FinishEpoch != nil
}

var errVariant = errors.New("rollups data must hold exactly one variant")

type taggedData struct {
	AdvanceStateInput *AdvanceStateInput `json:"AdvanceStateInput,omitempty"`
	FinishEpoch       *FinishEpoch       `json:"FinishEpoch,omitempty"`
}

// MarshalJSON encodes the variant externally tagged, e.g. {"FinishEpoch":{}}.
func (d RollupsData) MarshalJSON() ([]byte, error) {
	if (d.AdvanceStateInput == nil) == (d.FinishEpoch == nil) {
		return nil, errVariant
	}
	return json.Marshal(taggedData(d))
}

// UnmarshalJSON decodes an externally tagged variant.
func (d *RollupsData) UnmarshalJSON(data []byte) error {
	var tagged taggedData
	if err := json.Unmarshal(data, &tagged); err != nil {
		return err
	}
	if (tagged.AdvanceStateInput == nil) == (tagged.FinishEpoch == nil) {
		return errVariant
	}
	*d = RollupsData(tagged)
	return nil
}

// RollupsInput is an entry of the inputs stream.
type RollupsInput struct {
	// ParentID is the id of the previous entry of the stream
	ParentID string `json:"parent_id"`
	// EpochIndex is the epoch the entry belongs to
	EpochIndex uint64 `json:"epoch_index"`
	// InputsSentCount is the number of inputs sequenced including this entry
	InputsSentCount uint64      `json:"inputs_sent_count"`
	Data            RollupsData `json:"data"`
}

// RollupsClaim is an entry of the claims stream.
type RollupsClaim struct {
	EpochIndex uint64      `json:"epoch_index"`
	Claim      common.Hash `json:"claim"`
}
