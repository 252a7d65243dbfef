package rollups

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func advance(id, parent string, epoch, index uint64) Entry[RollupsInput] {
	return Entry[RollupsInput]{
		ID: id,
		Payload: RollupsInput{
			ParentID:        parent,
			EpochIndex:      epoch,
			InputsSentCount: index + 1,
			Data: RollupsData{AdvanceStateInput: &AdvanceStateInput{
				Metadata: InputMetadata{InputIndex: index},
			}},
		},
	}
}

func finish(id, parent string, epoch, count uint64) Entry[RollupsInput] {
	return Entry[RollupsInput]{
		ID: id,
		Payload: RollupsInput{
			ParentID:        parent,
			EpochIndex:      epoch,
			InputsSentCount: count,
			Data:            RollupsData{FinishEpoch: &FinishEpoch{}},
		},
	}
}

func TestVerifyChain(t *testing.T) {
	tests := []struct {
		name     string
		entries  []Entry[RollupsInput]
		position int
	}{
		{
			name:     "empty stream",
			position: -1,
		},
		{
			name: "two epochs",
			entries: []Entry[RollupsInput]{
				advance("1", "0", 0, 0),
				advance("2", "1", 0, 1),
				finish("3", "2", 0, 2),
				advance("4", "3", 1, 2),
				finish("5", "4", 1, 3),
				finish("6", "5", 2, 3),
			},
			position: -1,
		},
		{
			name: "broken parent",
			entries: []Entry[RollupsInput]{
				advance("1", "0", 0, 0),
				advance("2", "0", 0, 1),
			},
			position: 1,
		},
		{
			name: "epoch not advanced after finish",
			entries: []Entry[RollupsInput]{
				finish("1", "0", 0, 0),
				advance("2", "1", 0, 0),
			},
			position: 1,
		},
		{
			name: "skipped input index",
			entries: []Entry[RollupsInput]{
				advance("1", "0", 0, 0),
				advance("2", "1", 0, 2),
			},
			position: 1,
		},
		{
			name: "finish changes count",
			entries: []Entry[RollupsInput]{
				advance("1", "0", 0, 0),
				finish("2", "1", 0, 2),
			},
			position: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := VerifyChain(tt.entries)
			if tt.position < 0 {
				require.NoError(t, err)
				return
			}

			var chainErr *ChainError
			require.ErrorAs(t, err, &chainErr)
			require.Equal(t, tt.position, chainErr.Position)
		})
	}
}
