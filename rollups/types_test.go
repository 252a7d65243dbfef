package rollups

import (
	"encoding/json"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func TestDAppMetadata_StreamKeys(t *testing.T) {
	dapp := DAppMetadata{
		ChainID:     31337,
		DAppAddress: common.HexToAddress("0x70ac08179605AF2D9e75782b8DEcDD3c22aA4D0C"),
	}

	require.Equal(t, "{chain-31337:dapp-70ac08179605af2d9e75782b8decdd3c22aa4d0c}:rollups-inputs", dapp.InputsStreamKey())
	require.Equal(t, "{chain-31337:dapp-70ac08179605af2d9e75782b8decdd3c22aa4d0c}:rollups-claims", dapp.ClaimsStreamKey())
}

func TestRollupsData_FinishEpochEncoding(t *testing.T) {
	data, err := json.Marshal(RollupsInput{
		ParentID:        "0",
		EpochIndex:      2,
		InputsSentCount: 5,
		Data:            RollupsData{FinishEpoch: &FinishEpoch{}},
	})
	require.NoError(t, err)
	require.JSONEq(t, `{"parent_id":"0","epoch_index":2,"inputs_sent_count":5,"data":{"FinishEpoch":{}}}`, string(data))
}

func TestRollupsData_AdvanceStateInputEncoding(t *testing.T) {
	input := RollupsInput{
		ParentID:        "1-0",
		EpochIndex:      1,
		InputsSentCount: 4,
		Data: RollupsData{AdvanceStateInput: &AdvanceStateInput{
			Metadata: InputMetadata{
				MsgSender:   common.HexToAddress("0x01"),
				BlockNumber: 10,
				Timestamp:   1700000000,
				InputIndex:  3,
			},
			Payload: []byte{0xca, 0xfe},
			TxHash:  common.HexToHash("0x02"),
		}},
	}

	data, err := json.Marshal(input)
	require.NoError(t, err)
	require.Contains(t, string(data), `"AdvanceStateInput":{"metadata":`)
	require.Contains(t, string(data), `"payload":"0xcafe"`)

	var decoded RollupsInput
	require.NoError(t, json.Unmarshal(data, &decoded))
	if diff := cmp.Diff(input, decoded); diff != "" {
		t.Errorf("decoded input mismatch (-want +got):\n%s", diff)
	}
}

func TestRollupsData_RejectsAmbiguousVariants(t *testing.T) {
	_, err := json.Marshal(RollupsData{})
	require.Error(t, err)

	_, err = json.Marshal(RollupsData{
		AdvanceStateInput: &AdvanceStateInput{},
		FinishEpoch:       &FinishEpoch{},
	})
	require.Error(t, err)

	var d RollupsData
	require.Error(t, json.Unmarshal([]byte(`{}`), &d))
	require.Error(t, json.Unmarshal([]byte(`{"AdvanceStateInput":{},"FinishEpoch":{}}`), &d))
	require.NoError(t, json.Unmarshal([]byte(`{"FinishEpoch":{}}`), &d))
	require.True(t, d.IsFinishEpoch())
}
