package indexer

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"

	"github.com/pulsedao/pulse-indexer/aggregate"
	"github.com/pulsedao/pulse-indexer/events"
	"github.com/pulsedao/pulse-indexer/metrics"
	"github.com/pulsedao/pulse-indexer/stream"
)

// FactoryHandler grows the filter set on factory events: every announced
// topic contract is added with the full topic selector set, so its events
// are delivered from the next (re)subscription on. Re-announcements of a
// known topic are no-ops.
type FactoryHandler struct {
	logger   logrus.FieldLogger
	registry *events.Registry
	filter   *stream.FilterSet
}

func NewFactoryHandler(registry *events.Registry, filter *stream.FilterSet) *FactoryHandler {
	return &FactoryHandler{
		logger:   logrus.StandardLogger().WithField("module", "indexer"),
		registry: registry,
		filter:   filter,
	}
}

func (h *FactoryHandler) Name() string {
	return "factory"
}

func (h *FactoryHandler) Selectors() []common.Hash {
	return h.registry.Selectors(events.KindTopicCreated)
}

func (h *FactoryHandler) HandleEvent(ev events.DecodedEvent) (*aggregate.Deltas, error) {
	created, ok := ev.(*events.TopicCreated)
	if !ok {
		return nil, nil
	}

	if h.filter.Add(created.Topic, h.registry.TopicSelectors()) {
		h.logger.Infof("discovered topic contract %v (creator %v)", created.Topic.Hex(), created.Creator.Hex())
		metrics.TopicsDiscovered.Inc()
	}

	creator := created.Creator
	name := created.Name

	return &aggregate.Deltas{
		Contracts: []*aggregate.ContractDelta{{
			Contract: created.Topic,
			Event:    created.ID,
			Creator:  &creator,
			Name:     &name,
		}},
	}, nil
}
