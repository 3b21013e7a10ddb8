package aggregate

import (
	"encoding/json"
	"fmt"

	"github.com/holiman/uint256"

	"github.com/pulsedao/pulse-indexer/dbtypes"
)

// Apply functions merge one coalesced delta into its aggregate row.
// The replay guard: a delta whose event ordinal is at or below the row's
// last_event_ord was already committed in an earlier transaction and is
// skipped as a whole. Applying the same delta twice therefore never double
// counts, and stale out-of-order replays never clobber newer overwrites.

func addAmount(current string, add *uint256.Int) (string, error) {
	if add == nil {
		return current, nil
	}
	total, err := uint256.FromDecimal(current)
	if err != nil {
		return current, fmt.Errorf("invalid stored amount %q: %w", current, err)
	}
	// totals are monotonic, saturate instead of wrapping past 2^256
	if _, overflow := total.AddOverflow(total, add); overflow {
		total.SetAllOne()
	}
	return total.Dec(), nil
}

func encodeStringList(list []string) string {
	if list == nil {
		list = []string{}
	}
	encoded, _ := json.Marshal(list)
	return string(encoded)
}

// ApplyContractDelta merges a delta into a contract state row. It reports
// whether the row changed.
func ApplyContractDelta(row *dbtypes.ContractState, delta *ContractDelta, now int64) (bool, error) {
	if delta.Event.Ord() <= row.LastEventOrd {
		return false, nil
	}

	if delta.Creator != nil {
		row.Creator = delta.Creator.Bytes()
	}
	if delta.Name != nil {
		row.Name = *delta.Name
	}
	if delta.Description != nil {
		row.Description = *delta.Description
	}
	if delta.Keywords != nil {
		row.Keywords = encodeStringList(delta.Keywords)
	}
	if delta.CurrentEpoch != nil {
		row.CurrentEpoch = *delta.CurrentEpoch
	}
	if delta.EpochStartTime != nil {
		row.EpochStartTime = *delta.EpochStartTime
	}
	if delta.EpochEndTime != nil {
		row.EpochEndTime = *delta.EpochEndTime
	}

	var err error
	if row.TotalDeposited, err = addAmount(row.TotalDeposited, delta.AddDeposited); err != nil {
		return false, err
	}
	if row.TotalClaimed, err = addAmount(row.TotalClaimed, delta.AddClaimed); err != nil {
		return false, err
	}
	if row.TotalAlgo, err = addAmount(row.TotalAlgo, delta.AddAlgo); err != nil {
		return false, err
	}
	if row.TotalVote, err = addAmount(row.TotalVote, delta.AddVote); err != nil {
		return false, err
	}

	if delta.Score != nil {
		row.LatestScore = delta.Score.Dec()
	}

	row.LastEventOrd = delta.Event.Ord()
	row.UpdatedAt = now
	return true, nil
}

func ApplyEpochDelta(row *dbtypes.EpochState, delta *EpochDelta, now int64) (bool, error) {
	if delta.Event.Ord() <= row.LastEventOrd {
		return false, nil
	}

	if delta.StartTime != nil {
		row.StartTime = *delta.StartTime
	}
	if delta.EndTime != nil {
		row.EndTime = *delta.EndTime
	}

	var err error
	if row.TotalDeposited, err = addAmount(row.TotalDeposited, delta.AddDeposited); err != nil {
		return false, err
	}
	if row.TotalClaimed, err = addAmount(row.TotalClaimed, delta.AddClaimed); err != nil {
		return false, err
	}
	if row.TotalAlgo, err = addAmount(row.TotalAlgo, delta.AddAlgo); err != nil {
		return false, err
	}
	if row.TotalVote, err = addAmount(row.TotalVote, delta.AddVote); err != nil {
		return false, err
	}

	if delta.Score != nil {
		row.LatestScore = delta.Score.Dec()
	}

	row.LastEventOrd = delta.Event.Ord()
	row.UpdatedAt = now
	return true, nil
}

func ApplyUserDelta(row *dbtypes.UserProfile, delta *UserDelta, now int64) (bool, error) {
	if delta.Event.Ord() <= row.LastEventOrd {
		return false, nil
	}

	if delta.DisplayName != nil {
		row.DisplayName = *delta.DisplayName
	}
	if delta.Bio != nil {
		row.Bio = *delta.Bio
	}
	if delta.Interests != nil {
		row.Interests = encodeStringList(delta.Interests)
	}
	if delta.LinkedAddress != nil {
		row.LinkedAddress = delta.LinkedAddress.Bytes()
	}
	if delta.LinkedByAdmin != nil {
		row.LinkedByAdmin = *delta.LinkedByAdmin
	}

	var err error
	if row.TotalDeposited, err = addAmount(row.TotalDeposited, delta.AddDeposited); err != nil {
		return false, err
	}
	if row.TotalClaimed, err = addAmount(row.TotalClaimed, delta.AddClaimed); err != nil {
		return false, err
	}

	if delta.Score != nil {
		row.LatestScore = delta.Score.Dec()
	}

	row.LastEventOrd = delta.Event.Ord()
	row.UpdatedAt = now
	return true, nil
}

func ApplyUserEpochDelta(row *dbtypes.UserEpochState, delta *UserEpochDelta, now int64) (bool, error) {
	if delta.Event.Ord() <= row.LastEventOrd {
		return false, nil
	}

	var err error
	if row.TotalDeposited, err = addAmount(row.TotalDeposited, delta.AddDeposited); err != nil {
		return false, err
	}
	if row.TotalClaimed, err = addAmount(row.TotalClaimed, delta.AddClaimed); err != nil {
		return false, err
	}
	if row.TotalAlgo, err = addAmount(row.TotalAlgo, delta.AddAlgo); err != nil {
		return false, err
	}
	if row.TotalVote, err = addAmount(row.TotalVote, delta.AddVote); err != nil {
		return false, err
	}

	if delta.Score != nil {
		row.LatestScore = delta.Score.Dec()
	}

	row.LastEventOrd = delta.Event.Ord()
	row.UpdatedAt = now
	return true, nil
}

// NewContractState returns a fresh zero row for a contract first seen now.
func NewContractState(contract []byte) *dbtypes.ContractState {
	return &dbtypes.ContractState{
		Contract:       contract,
		Creator:        []byte{},
		Keywords:       "[]",
		TotalDeposited: "0",
		TotalClaimed:   "0",
		TotalAlgo:      "0",
		TotalVote:      "0",
		LatestScore:    "0",
	}
}

func NewEpochState(contract []byte, epoch uint64) *dbtypes.EpochState {
	return &dbtypes.EpochState{
		Contract:       contract,
		Epoch:          epoch,
		TotalDeposited: "0",
		TotalClaimed:   "0",
		TotalAlgo:      "0",
		TotalVote:      "0",
		LatestScore:    "0",
	}
}

func NewUserProfile(userId []byte) *dbtypes.UserProfile {
	return &dbtypes.UserProfile{
		UserId:         userId,
		Interests:      "[]",
		LinkedAddress:  []byte{},
		TotalDeposited: "0",
		TotalClaimed:   "0",
		LatestScore:    "0",
	}
}

func NewUserEpochState(userId []byte, contract []byte, epoch uint64) *dbtypes.UserEpochState {
	return &dbtypes.UserEpochState{
		UserId:         userId,
		Contract:       contract,
		Epoch:          epoch,
		TotalDeposited: "0",
		TotalClaimed:   "0",
		TotalAlgo:      "0",
		TotalVote:      "0",
		LatestScore:    "0",
	}
}
