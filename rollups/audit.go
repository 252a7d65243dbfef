package rollups

import (
	"fmt"

	"github.com/shogotsuneto/go-rollups-broker"
)

// ChainError reports the first entry of an inputs stream that breaks the
// linkage or counters of the entries before it.
type ChainError struct {
	Position int
	ID       string
	Reason   string
}

func (e *ChainError) Error() string {
	return fmt.Sprintf("inputs stream broken at entry %d (%s): %s", e.Position, e.ID, e.Reason)
}

// VerifyChain checks a whole inputs stream read from the beginning:
// parent ids chain, input counters grow by one per input and stay put on
// epoch close, and epoch indexes advance by one after each close.
func VerifyChain(entries []Entry[RollupsInput]) error {
	parent := eventstore.InitialID
	var epoch, count uint64

	for i, entry := range entries {
		in := entry.Payload
		fail := func(format string, args ...interface{}) error {
			return &ChainError{Position: i, ID: entry.ID, Reason: fmt.Sprintf(format, args...)}
		}

		if in.ParentID != parent {
			return fail("parent id %s, expected %s", in.ParentID, parent)
		}
		if in.EpochIndex != epoch {
			return fail("epoch index %d, expected %d", in.EpochIndex, epoch)
		}

		switch {
		case in.Data.IsFinishEpoch():
			if in.InputsSentCount != count {
				return fail("inputs sent count %d, expected %d", in.InputsSentCount, count)
			}
			epoch++
		default:
			meta := in.Data.AdvanceStateInput.Metadata
			if meta.InputIndex != count {
				return fail("input index %d, expected %d", meta.InputIndex, count)
			}
			count++
			if in.InputsSentCount != count {
				return fail("inputs sent count %d, expected %d", in.InputsSentCount, count)
			}
		}

		parent = entry.ID
	}

	return nil
}
