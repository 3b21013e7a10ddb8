package aggregate

import (
	"github.com/ethereum/go-ethereum/common"

	"github.com/pulsedao/pulse-indexer/events"
)

// Handler turns one decoded event into the entity deltas it implies.
// Handlers are total: they never fail on event content, an event that does
// not concern them yields a nil delta set.
type Handler interface {
	Name() string
	Selectors() []common.Hash
	HandleEvent(ev events.DecodedEvent) (*Deltas, error)
}

// DefaultHandlers returns the aggregation handlers in their registration
// order. Order matters for handlers sharing a selector: their deltas are
// coalesced in this order before the upsert.
func DefaultHandlers(registry *events.Registry) []Handler {
	return []Handler{
		NewEpochHandler(registry),
		NewRewardsHandler(registry),
		NewScoreHandler(registry),
		NewLinkHandler(registry),
		NewMetadataHandler(registry),
	}
}

// EpochHandler tracks the reward epoch window on topic contracts.
type EpochHandler struct {
	selectors []common.Hash
}

func NewEpochHandler(registry *events.Registry) *EpochHandler {
	return &EpochHandler{
		selectors: registry.Selectors(events.KindEpochAdvanced),
	}
}

func (h *EpochHandler) Name() string {
	return "epoch"
}

func (h *EpochHandler) Selectors() []common.Hash {
	return h.selectors
}

func (h *EpochHandler) HandleEvent(ev events.DecodedEvent) (*Deltas, error) {
	adv, ok := ev.(*events.EpochAdvanced)
	if !ok {
		return nil, nil
	}

	epochIndex := adv.EpochIndex
	startTime := adv.StartTime
	endTime := adv.EndTime

	return &Deltas{
		Contracts: []*ContractDelta{{
			Contract:       adv.Contract,
			Event:          adv.ID,
			CurrentEpoch:   &epochIndex,
			EpochStartTime: &startTime,
			EpochEndTime:   &endTime,
		}},
		Epochs: []*EpochDelta{{
			Contract:  adv.Contract,
			Epoch:     epochIndex,
			Event:     adv.ID,
			StartTime: &startTime,
			EndTime:   &endTime,
		}},
	}, nil
}

// RewardsHandler accumulates deposit and distribution totals across the
// contract, epoch, user and user-epoch aggregates.
type RewardsHandler struct {
	selectors []common.Hash
}

func NewRewardsHandler(registry *events.Registry) *RewardsHandler {
	return &RewardsHandler{
		selectors: registry.Selectors(events.KindRewardsDeposited, events.KindRewardsDistributed),
	}
}

func (h *RewardsHandler) Name() string {
	return "rewards"
}

func (h *RewardsHandler) Selectors() []common.Hash {
	return h.selectors
}

func (h *RewardsHandler) HandleEvent(ev events.DecodedEvent) (*Deltas, error) {
	switch event := ev.(type) {
	case *events.RewardsDeposited:
		deltas := &Deltas{
			Contracts: []*ContractDelta{{
				Contract:     event.Contract,
				Event:        event.ID,
				AddDeposited: event.Amount,
			}},
			Epochs: []*EpochDelta{{
				Contract:     event.Contract,
				Epoch:        event.EpochIndex,
				Event:        event.ID,
				AddDeposited: event.Amount,
			}},
		}
		// without a user identity the event only moves entity level totals
		if !event.UserID.IsZero() {
			deltas.Users = []*UserDelta{{
				UserID:       event.UserID,
				Event:        event.ID,
				AddDeposited: event.Amount,
			}}
			deltas.UserEpochs = []*UserEpochDelta{{
				UserID:       event.UserID,
				Contract:     event.Contract,
				Epoch:        event.EpochIndex,
				Event:        event.ID,
				AddDeposited: event.Amount,
			}}
		}
		return deltas, nil

	case *events.RewardsDistributed:
		deltas := &Deltas{
			Contracts: []*ContractDelta{{
				Contract:   event.Contract,
				Event:      event.ID,
				AddClaimed: event.Amount,
				AddAlgo:    event.AlgoAmount,
				AddVote:    event.VoteAmount,
			}},
			Epochs: []*EpochDelta{{
				Contract:   event.Contract,
				Epoch:      event.EpochIndex,
				Event:      event.ID,
				AddClaimed: event.Amount,
				AddAlgo:    event.AlgoAmount,
				AddVote:    event.VoteAmount,
			}},
		}
		if !event.UserID.IsZero() {
			deltas.Users = []*UserDelta{{
				UserID:     event.UserID,
				Event:      event.ID,
				AddClaimed: event.Amount,
			}}
			deltas.UserEpochs = []*UserEpochDelta{{
				UserID:     event.UserID,
				Contract:   event.Contract,
				Epoch:      event.EpochIndex,
				Event:      event.ID,
				AddClaimed: event.Amount,
				AddAlgo:    event.AlgoAmount,
				AddVote:    event.VoteAmount,
			}}
		}
		return deltas, nil
	}

	return nil, nil
}

// ScoreHandler overwrites the latest score on every touched aggregate.
// Scores supersede, the replay guard keeps stale replays from winning.
type ScoreHandler struct {
	selectors []common.Hash
}

func NewScoreHandler(registry *events.Registry) *ScoreHandler {
	return &ScoreHandler{
		selectors: registry.Selectors(events.KindScorePushed),
	}
}

func (h *ScoreHandler) Name() string {
	return "score"
}

func (h *ScoreHandler) Selectors() []common.Hash {
	return h.selectors
}

func (h *ScoreHandler) HandleEvent(ev events.DecodedEvent) (*Deltas, error) {
	score, ok := ev.(*events.ScorePushed)
	if !ok {
		return nil, nil
	}

	deltas := &Deltas{
		Contracts: []*ContractDelta{{
			Contract: score.Contract,
			Event:    score.ID,
			Score:    score.Score,
		}},
		Epochs: []*EpochDelta{{
			Contract: score.Contract,
			Epoch:    score.EpochIndex,
			Event:    score.ID,
			Score:    score.Score,
		}},
	}
	if !score.UserID.IsZero() {
		deltas.Users = []*UserDelta{{
			UserID: score.UserID,
			Event:  score.ID,
			Score:  score.Score,
		}}
		deltas.UserEpochs = []*UserEpochDelta{{
			UserID:   score.UserID,
			Contract: score.Contract,
			Epoch:    score.EpochIndex,
			Event:    score.ID,
			Score:    score.Score,
		}}
	}
	return deltas, nil
}

// LinkHandler maintains the secondary address linkage on user profiles.
type LinkHandler struct {
	selectors []common.Hash
}

func NewLinkHandler(registry *events.Registry) *LinkHandler {
	return &LinkHandler{
		selectors: registry.Selectors(events.KindAddressLinked, events.KindAddressLinkedByAdmin),
	}
}

func (h *LinkHandler) Name() string {
	return "link"
}

func (h *LinkHandler) Selectors() []common.Hash {
	return h.selectors
}

func (h *LinkHandler) HandleEvent(ev events.DecodedEvent) (*Deltas, error) {
	link, ok := ev.(*events.AddressLinked)
	if !ok {
		return nil, nil
	}
	if link.UserID.IsZero() {
		return nil, nil
	}

	linkedAddress := link.LinkedAddress
	byAdmin := link.ByAdmin

	return &Deltas{
		Users: []*UserDelta{{
			UserID:        link.UserID,
			Event:         link.ID,
			LinkedAddress: &linkedAddress,
			LinkedByAdmin: &byAdmin,
		}},
	}, nil
}

// MetadataHandler applies descriptive metadata to topics and profiles.
// Metadata replaces whole fields, keyword and interest lists included.
type MetadataHandler struct {
	selectors []common.Hash
}

func NewMetadataHandler(registry *events.Registry) *MetadataHandler {
	return &MetadataHandler{
		selectors: registry.Selectors(events.KindTopicMetadataAdded, events.KindProfileMetadataAdded),
	}
}

func (h *MetadataHandler) Name() string {
	return "metadata"
}

func (h *MetadataHandler) Selectors() []common.Hash {
	return h.selectors
}

func (h *MetadataHandler) HandleEvent(ev events.DecodedEvent) (*Deltas, error) {
	switch event := ev.(type) {
	case *events.TopicMetadataAdded:
		name := event.Name
		description := event.Description
		keywords := event.Keywords
		if keywords == nil {
			keywords = []string{}
		}
		return &Deltas{
			Contracts: []*ContractDelta{{
				Contract:    event.Contract,
				Event:       event.ID,
				Name:        &name,
				Description: &description,
				Keywords:    keywords,
			}},
		}, nil

	case *events.ProfileMetadataAdded:
		if event.UserID.IsZero() {
			return nil, nil
		}
		displayName := event.DisplayName
		bio := event.Bio
		interests := event.Interests
		if interests == nil {
			interests = []string{}
		}
		return &Deltas{
			Users: []*UserDelta{{
				UserID:      event.UserID,
				Event:       event.ID,
				DisplayName: &displayName,
				Bio:         &bio,
				Interests:   interests,
			}},
		}, nil
	}

	return nil, nil
}
