package indexer

import (
	"fmt"
	"runtime/debug"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"

	"github.com/pulsedao/pulse-indexer/aggregate"
	"github.com/pulsedao/pulse-indexer/events"
	"github.com/pulsedao/pulse-indexer/metrics"
)

// Dispatcher fans a decoded event out to the handlers subscribed to its
// selector, in registration order. A failing or panicking handler is logged
// and skipped, it never takes down the batch or its sibling handlers.
type Dispatcher struct {
	logger     logrus.FieldLogger
	handlers   []aggregate.Handler
	bySelector map[common.Hash][]aggregate.Handler
}

func NewDispatcher() *Dispatcher {
	return &Dispatcher{
		logger:     logrus.StandardLogger().WithField("module", "indexer"),
		bySelector: map[common.Hash][]aggregate.Handler{},
	}
}

func (d *Dispatcher) Register(handler aggregate.Handler) {
	d.handlers = append(d.handlers, handler)
	for _, selector := range handler.Selectors() {
		d.bySelector[selector] = append(d.bySelector[selector], handler)
	}
}

// Dispatch runs every subscribed handler on the event and returns their
// coalesced deltas. An event whose selector no handler subscribed to yields
// an empty delta set.
func (d *Dispatcher) Dispatch(ev events.DecodedEvent) *aggregate.Deltas {
	deltas := &aggregate.Deltas{}
	for _, handler := range d.bySelector[ev.Base().Selector] {
		handlerDeltas, err := d.runHandler(handler, ev)
		if err != nil {
			d.logger.WithError(err).Errorf("handler %v failed on %v event %v", handler.Name(), ev.Kind(), ev.Base().ID)
			metrics.HandlerErrors.WithLabelValues(handler.Name()).Inc()
			continue
		}
		deltas.Append(handlerDeltas)
	}
	deltas.Coalesce()
	return deltas
}

func (d *Dispatcher) runHandler(handler aggregate.Handler, ev events.DecodedEvent) (deltas *aggregate.Deltas, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v, stack: %v", r, string(debug.Stack()))
		}
	}()
	return handler.HandleEvent(ev)
}
