package aggregate

import (
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pulsedao/pulse-indexer/events"
	"github.com/pulsedao/pulse-indexer/wire"
)

func TestApplyContractDeltaIsIdempotent(t *testing.T) {
	row := NewContractState(testTopic.Bytes())
	delta := &ContractDelta{
		Contract:     testTopic,
		Event:        events.EventID{BlockNumber: 10, EventIndex: 2},
		AddDeposited: uint256.NewInt(300),
	}

	changed, err := ApplyContractDelta(row, delta, 1000)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, "300", row.TotalDeposited)

	// replaying the exact same event must not double count
	changed, err = ApplyContractDelta(row, delta, 2000)
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, "300", row.TotalDeposited)
	assert.Equal(t, int64(1000), row.UpdatedAt, "skipped replay leaves the row untouched")
}

func TestApplyContractDeltaRejectsStaleOrdinals(t *testing.T) {
	row := NewContractState(testTopic.Bytes())

	newer := &ContractDelta{
		Contract: testTopic,
		Event:    events.EventID{BlockNumber: 20, EventIndex: 0},
		Score:    uint256.NewInt(100),
	}
	stale := &ContractDelta{
		Contract: testTopic,
		Event:    events.EventID{BlockNumber: 18, EventIndex: 5},
		Score:    uint256.NewInt(40),
	}

	_, err := ApplyContractDelta(row, newer, 1000)
	require.NoError(t, err)

	changed, err := ApplyContractDelta(row, stale, 1000)
	require.NoError(t, err)
	assert.False(t, changed, "out of order replay below the guard is skipped")
	assert.Equal(t, "100", row.LatestScore)
}

func TestApplyUserDeltaMergesFields(t *testing.T) {
	userId := events.UserID{}
	row := NewUserProfile(userId.Bytes())

	displayName := "alice"
	_, err := ApplyUserDelta(row, &UserDelta{
		UserID:      userId,
		Event:       events.EventID{BlockNumber: 1},
		DisplayName: &displayName,
		AddClaimed:  uint256.NewInt(10),
	}, 1000)
	require.NoError(t, err)

	// a later delta touching other fields keeps the earlier ones
	_, err = ApplyUserDelta(row, &UserDelta{
		UserID:     userId,
		Event:      events.EventID{BlockNumber: 2},
		AddClaimed: uint256.NewInt(5),
		Score:      uint256.NewInt(77),
	}, 1001)
	require.NoError(t, err)

	assert.Equal(t, "alice", row.DisplayName)
	assert.Equal(t, "15", row.TotalClaimed)
	assert.Equal(t, "77", row.LatestScore)
	assert.Equal(t, events.EventID{BlockNumber: 2}.Ord(), row.LastEventOrd)
}

func TestApplyEpochDeltaLeavesWindowWhenUnset(t *testing.T) {
	row := NewEpochState(testTopic.Bytes(), 3)
	start := uint64(100)
	end := uint64(200)

	_, err := ApplyEpochDelta(row, &EpochDelta{
		Contract:  testTopic,
		Epoch:     3,
		Event:     events.EventID{BlockNumber: 1},
		StartTime: &start,
		EndTime:   &end,
	}, 1000)
	require.NoError(t, err)

	// a score push for the epoch carries no window fields
	_, err = ApplyEpochDelta(row, &EpochDelta{
		Contract: testTopic,
		Epoch:    3,
		Event:    events.EventID{BlockNumber: 2},
		Score:    uint256.NewInt(9),
	}, 1001)
	require.NoError(t, err)

	assert.Equal(t, uint64(100), row.StartTime)
	assert.Equal(t, uint64(200), row.EndTime)
	assert.Equal(t, "9", row.LatestScore)
}

func TestApplyContractDeltaSaturatesInsteadOfWrapping(t *testing.T) {
	row := NewContractState(testTopic.Bytes())

	// a malformed amount clamps to max uint256 in the codec, the totals
	// must saturate there instead of wrapping backwards on the next add
	clamped := &ContractDelta{
		Contract:     testTopic,
		Event:        events.EventID{BlockNumber: 10, EventIndex: 0},
		AddDeposited: wire.WordsToUint256(badLimbWord(), wire.Word{}),
	}
	deposit := &ContractDelta{
		Contract:     testTopic,
		Event:        events.EventID{BlockNumber: 11, EventIndex: 0},
		AddDeposited: uint256.NewInt(300),
	}

	_, err := ApplyContractDelta(row, clamped, 1000)
	require.NoError(t, err)
	assert.Equal(t, wire.MaxUint256.Dec(), row.TotalDeposited)

	_, err = ApplyContractDelta(row, deposit, 1001)
	require.NoError(t, err)
	assert.Equal(t, wire.MaxUint256.Dec(), row.TotalDeposited, "monotonic total must never decrease")
}

func badLimbWord() wire.Word {
	var w wire.Word
	w[0] = 1
	return w
}

func TestApplyDeltaRejectsCorruptStoredAmount(t *testing.T) {
	row := NewContractState(testTopic.Bytes())
	row.TotalDeposited = "not a number"

	_, err := ApplyContractDelta(row, &ContractDelta{
		Contract:     testTopic,
		Event:        events.EventID{BlockNumber: 1},
		AddDeposited: uint256.NewInt(1),
	}, 1000)
	assert.Error(t, err)
}
