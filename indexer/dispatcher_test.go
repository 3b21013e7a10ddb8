package indexer

import (
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pulsedao/pulse-indexer/aggregate"
	"github.com/pulsedao/pulse-indexer/events"
)

type stubHandler struct {
	name      string
	selectors []common.Hash
	handle    func(ev events.DecodedEvent) (*aggregate.Deltas, error)
}

func (h *stubHandler) Name() string             { return h.name }
func (h *stubHandler) Selectors() []common.Hash { return h.selectors }
func (h *stubHandler) HandleEvent(ev events.DecodedEvent) (*aggregate.Deltas, error) {
	return h.handle(ev)
}

func scoreEvent(selector common.Hash) *events.ScorePushed {
	return &events.ScorePushed{
		EventBase: events.EventBase{
			ID:       events.EventID{BlockNumber: 5, EventIndex: 1},
			Contract: common.HexToAddress("0x1111111111111111111111111111111111111111"),
			Selector: selector,
		},
		EpochIndex: 1,
		Score:      uint256.NewInt(10),
	}
}

func TestDispatcherFansOutInRegistrationOrder(t *testing.T) {
	selector := events.Selector(events.KindScorePushed)
	dispatcher := NewDispatcher()

	calls := []string{}
	for _, name := range []string{"first", "second", "third"} {
		handlerName := name
		dispatcher.Register(&stubHandler{
			name:      handlerName,
			selectors: []common.Hash{selector},
			handle: func(ev events.DecodedEvent) (*aggregate.Deltas, error) {
				calls = append(calls, handlerName)
				return nil, nil
			},
		})
	}

	dispatcher.Dispatch(scoreEvent(selector))
	assert.Equal(t, []string{"first", "second", "third"}, calls)
}

func TestDispatcherSkipsUnsubscribedHandlers(t *testing.T) {
	dispatcher := NewDispatcher()

	called := false
	dispatcher.Register(&stubHandler{
		name:      "other",
		selectors: []common.Hash{events.Selector(events.KindEpochAdvanced)},
		handle: func(ev events.DecodedEvent) (*aggregate.Deltas, error) {
			called = true
			return nil, nil
		},
	})

	deltas := dispatcher.Dispatch(scoreEvent(events.Selector(events.KindScorePushed)))
	assert.False(t, called)
	assert.True(t, deltas.IsEmpty())
}

func TestDispatcherIsolatesFailingHandlers(t *testing.T) {
	selector := events.Selector(events.KindScorePushed)
	topic := common.HexToAddress("0x1111111111111111111111111111111111111111")
	dispatcher := NewDispatcher()

	dispatcher.Register(&stubHandler{
		name:      "panicking",
		selectors: []common.Hash{selector},
		handle: func(ev events.DecodedEvent) (*aggregate.Deltas, error) {
			panic("boom")
		},
	})
	dispatcher.Register(&stubHandler{
		name:      "failing",
		selectors: []common.Hash{selector},
		handle: func(ev events.DecodedEvent) (*aggregate.Deltas, error) {
			return nil, errors.New("handler error")
		},
	})
	dispatcher.Register(&stubHandler{
		name:      "working",
		selectors: []common.Hash{selector},
		handle: func(ev events.DecodedEvent) (*aggregate.Deltas, error) {
			return &aggregate.Deltas{
				Contracts: []*aggregate.ContractDelta{{
					Contract: topic,
					Event:    ev.Base().ID,
					Score:    uint256.NewInt(10),
				}},
			}, nil
		},
	})

	deltas := dispatcher.Dispatch(scoreEvent(selector))
	require.Len(t, deltas.Contracts, 1, "working handler still contributes after sibling failures")
	assert.Equal(t, "10", deltas.Contracts[0].Score.Dec())
}

func TestDispatcherCoalescesHandlerDeltas(t *testing.T) {
	selector := events.Selector(events.KindScorePushed)
	topic := common.HexToAddress("0x1111111111111111111111111111111111111111")
	dispatcher := NewDispatcher()

	for idx := 0; idx < 2; idx++ {
		dispatcher.Register(&stubHandler{
			name:      "adder",
			selectors: []common.Hash{selector},
			handle: func(ev events.DecodedEvent) (*aggregate.Deltas, error) {
				return &aggregate.Deltas{
					Contracts: []*aggregate.ContractDelta{{
						Contract:     topic,
						Event:        ev.Base().ID,
						AddDeposited: uint256.NewInt(5),
					}},
				}, nil
			},
		})
	}

	deltas := dispatcher.Dispatch(scoreEvent(selector))
	require.Len(t, deltas.Contracts, 1, "same-entity deltas merge before the replay guard")
	assert.Equal(t, "10", deltas.Contracts[0].AddDeposited.Dec())
}
