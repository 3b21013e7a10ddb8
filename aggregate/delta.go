package aggregate

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/pulsedao/pulse-indexer/events"
)

// Deltas is the set of entity updates implied by one event. Add* fields are
// monotonic accumulations, pointer fields are last-write-wins overwrites.
// Nil fields leave the stored value untouched (merge semantics).
type Deltas struct {
	Contracts  []*ContractDelta
	Epochs     []*EpochDelta
	Users      []*UserDelta
	UserEpochs []*UserEpochDelta
}

type ContractDelta struct {
	Contract common.Address
	Event    events.EventID

	Creator        *common.Address
	Name           *string
	Description    *string
	Keywords       []string
	CurrentEpoch   *uint64
	EpochStartTime *uint64
	EpochEndTime   *uint64

	AddDeposited *uint256.Int
	AddClaimed   *uint256.Int
	AddAlgo      *uint256.Int
	AddVote      *uint256.Int

	Score *uint256.Int
}

type EpochDelta struct {
	Contract common.Address
	Epoch    uint64
	Event    events.EventID

	StartTime *uint64
	EndTime   *uint64

	AddDeposited *uint256.Int
	AddClaimed   *uint256.Int
	AddAlgo      *uint256.Int
	AddVote      *uint256.Int

	Score *uint256.Int
}

type UserDelta struct {
	UserID events.UserID
	Event  events.EventID

	DisplayName   *string
	Bio           *string
	Interests     []string
	LinkedAddress *common.Address
	LinkedByAdmin *bool

	AddDeposited *uint256.Int
	AddClaimed   *uint256.Int

	Score *uint256.Int
}

type UserEpochDelta struct {
	UserID   events.UserID
	Contract common.Address
	Epoch    uint64
	Event    events.EventID

	AddDeposited *uint256.Int
	AddClaimed   *uint256.Int
	AddAlgo      *uint256.Int
	AddVote      *uint256.Int

	Score *uint256.Int
}

// Append merges another delta set into this one.
func (d *Deltas) Append(other *Deltas) {
	if other == nil {
		return
	}
	d.Contracts = append(d.Contracts, other.Contracts...)
	d.Epochs = append(d.Epochs, other.Epochs...)
	d.Users = append(d.Users, other.Users...)
	d.UserEpochs = append(d.UserEpochs, other.UserEpochs...)
}

func (d *Deltas) IsEmpty() bool {
	return d == nil || (len(d.Contracts) == 0 && len(d.Epochs) == 0 && len(d.Users) == 0 && len(d.UserEpochs) == 0)
}

// Coalesce combines deltas addressing the same entity. Deltas produced by
// different handlers for the same event carry the same event ordinal, they
// must merge into one upsert before the replay guard sees them.
func (d *Deltas) Coalesce() {
	if d == nil {
		return
	}

	contracts := []*ContractDelta{}
	contractIdx := map[common.Address]*ContractDelta{}
	for _, delta := range d.Contracts {
		if existing := contractIdx[delta.Contract]; existing != nil {
			mergeContractDeltas(existing, delta)
		} else {
			contractIdx[delta.Contract] = delta
			contracts = append(contracts, delta)
		}
	}
	d.Contracts = contracts

	type epochKey struct {
		contract common.Address
		epoch    uint64
	}
	epochs := []*EpochDelta{}
	epochIdx := map[epochKey]*EpochDelta{}
	for _, delta := range d.Epochs {
		key := epochKey{delta.Contract, delta.Epoch}
		if existing := epochIdx[key]; existing != nil {
			mergeEpochDeltas(existing, delta)
		} else {
			epochIdx[key] = delta
			epochs = append(epochs, delta)
		}
	}
	d.Epochs = epochs

	users := []*UserDelta{}
	userIdx := map[events.UserID]*UserDelta{}
	for _, delta := range d.Users {
		if existing := userIdx[delta.UserID]; existing != nil {
			mergeUserDeltas(existing, delta)
		} else {
			userIdx[delta.UserID] = delta
			users = append(users, delta)
		}
	}
	d.Users = users

	type userEpochKey struct {
		user     events.UserID
		contract common.Address
		epoch    uint64
	}
	userEpochs := []*UserEpochDelta{}
	userEpochIdx := map[userEpochKey]*UserEpochDelta{}
	for _, delta := range d.UserEpochs {
		key := userEpochKey{delta.UserID, delta.Contract, delta.Epoch}
		if existing := userEpochIdx[key]; existing != nil {
			mergeUserEpochDeltas(existing, delta)
		} else {
			userEpochIdx[key] = delta
			userEpochs = append(userEpochs, delta)
		}
	}
	d.UserEpochs = userEpochs
}

func maxEvent(a events.EventID, b events.EventID) events.EventID {
	if b.Ord() > a.Ord() {
		return b
	}
	return a
}

func sumAmounts(a *uint256.Int, b *uint256.Int) *uint256.Int {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	return new(uint256.Int).Add(a, b)
}

func mergeContractDeltas(dst *ContractDelta, src *ContractDelta) {
	dst.Event = maxEvent(dst.Event, src.Event)
	if src.Creator != nil {
		dst.Creator = src.Creator
	}
	if src.Name != nil {
		dst.Name = src.Name
	}
	if src.Description != nil {
		dst.Description = src.Description
	}
	if src.Keywords != nil {
		dst.Keywords = src.Keywords
	}
	if src.CurrentEpoch != nil {
		dst.CurrentEpoch = src.CurrentEpoch
	}
	if src.EpochStartTime != nil {
		dst.EpochStartTime = src.EpochStartTime
	}
	if src.EpochEndTime != nil {
		dst.EpochEndTime = src.EpochEndTime
	}
	dst.AddDeposited = sumAmounts(dst.AddDeposited, src.AddDeposited)
	dst.AddClaimed = sumAmounts(dst.AddClaimed, src.AddClaimed)
	dst.AddAlgo = sumAmounts(dst.AddAlgo, src.AddAlgo)
	dst.AddVote = sumAmounts(dst.AddVote, src.AddVote)
	if src.Score != nil {
		dst.Score = src.Score
	}
}

func mergeEpochDeltas(dst *EpochDelta, src *EpochDelta) {
	dst.Event = maxEvent(dst.Event, src.Event)
	if src.StartTime != nil {
		dst.StartTime = src.StartTime
	}
	if src.EndTime != nil {
		dst.EndTime = src.EndTime
	}
	dst.AddDeposited = sumAmounts(dst.AddDeposited, src.AddDeposited)
	dst.AddClaimed = sumAmounts(dst.AddClaimed, src.AddClaimed)
	dst.AddAlgo = sumAmounts(dst.AddAlgo, src.AddAlgo)
	dst.AddVote = sumAmounts(dst.AddVote, src.AddVote)
	if src.Score != nil {
		dst.Score = src.Score
	}
}

func mergeUserDeltas(dst *UserDelta, src *UserDelta) {
	dst.Event = maxEvent(dst.Event, src.Event)
	if src.DisplayName != nil {
		dst.DisplayName = src.DisplayName
	}
	if src.Bio != nil {
		dst.Bio = src.Bio
	}
	if src.Interests != nil {
		dst.Interests = src.Interests
	}
	if src.LinkedAddress != nil {
		dst.LinkedAddress = src.LinkedAddress
	}
	if src.LinkedByAdmin != nil {
		dst.LinkedByAdmin = src.LinkedByAdmin
	}
	dst.AddDeposited = sumAmounts(dst.AddDeposited, src.AddDeposited)
	dst.AddClaimed = sumAmounts(dst.AddClaimed, src.AddClaimed)
	if src.Score != nil {
		dst.Score = src.Score
	}
}

func mergeUserEpochDeltas(dst *UserEpochDelta, src *UserEpochDelta) {
	dst.Event = maxEvent(dst.Event, src.Event)
	dst.AddDeposited = sumAmounts(dst.AddDeposited, src.AddDeposited)
	dst.AddClaimed = sumAmounts(dst.AddClaimed, src.AddClaimed)
	dst.AddAlgo = sumAmounts(dst.AddAlgo, src.AddAlgo)
	dst.AddVote = sumAmounts(dst.AddVote, src.AddVote)
	if src.Score != nil {
		dst.Score = src.Score
	}
}
