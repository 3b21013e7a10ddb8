package indexer

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jmoiron/sqlx"
	"github.com/sethvargo/go-retry"
	"github.com/sirupsen/logrus"

	"github.com/pulsedao/pulse-indexer/aggregate"
	"github.com/pulsedao/pulse-indexer/db"
	"github.com/pulsedao/pulse-indexer/dbtypes"
	"github.com/pulsedao/pulse-indexer/events"
	"github.com/pulsedao/pulse-indexer/metrics"
	"github.com/pulsedao/pulse-indexer/stream"
	"github.com/pulsedao/pulse-indexer/utils"
	"github.com/pulsedao/pulse-indexer/wire"
)

// Indexer drives the event processing pipeline: it subscribes to the stream
// provider at the persisted cursor, decodes and dispatches each block batch,
// and commits the resulting aggregate upserts atomically with the advanced
// cursor. Delivery is at-least-once, the per-row replay guard keeps
// reprocessing idempotent.
type Indexer struct {
	logger     logrus.FieldLogger
	provider   stream.Provider
	registry   *events.Registry
	dispatcher *Dispatcher
	filter     *stream.FilterSet

	stateKey       string
	startBlock     uint64
	retryLimit     uint64
	reconnectDelay time.Duration
	tokenDecimals  int32

	ctx     context.Context
	cancel  context.CancelFunc
	stopped chan struct{}

	cursor *stream.Cursor
}

func NewIndexer(provider stream.Provider, registry *events.Registry) (*Indexer, error) {
	config := &utils.Config.Indexer

	reconnectDelay := config.ReconnectDelay
	if reconnectDelay == 0 {
		reconnectDelay = 10 * time.Second
	}

	filter := stream.NewFilterSet()
	if config.TopicRegistryContract != "" {
		if !common.IsHexAddress(config.TopicRegistryContract) {
			return nil, fmt.Errorf("invalid topic registry contract address: %v", config.TopicRegistryContract)
		}
		filter.Add(common.HexToAddress(config.TopicRegistryContract), registry.RegistrySelectors())
	}
	for _, topicContract := range config.TopicContracts {
		if !common.IsHexAddress(topicContract) {
			return nil, fmt.Errorf("invalid topic contract address: %v", topicContract)
		}
		filter.Add(common.HexToAddress(topicContract), registry.TopicSelectors())
	}

	indexer := &Indexer{
		logger:         logrus.StandardLogger().WithField("module", "indexer"),
		provider:       provider,
		registry:       registry,
		dispatcher:     NewDispatcher(),
		filter:         filter,
		stateKey:       config.StateKey,
		startBlock:     config.StartBlock,
		retryLimit:     config.BatchRetryLimit,
		reconnectDelay: reconnectDelay,
		tokenDecimals:  config.TokenDecimals,
		stopped:        make(chan struct{}),
	}

	indexer.dispatcher.Register(NewFactoryHandler(registry, filter))
	for _, handler := range aggregate.DefaultHandlers(registry) {
		indexer.dispatcher.Register(handler)
	}

	return indexer, nil
}

// Start loads the persisted cursor and launches the processing loop.
func (i *Indexer) Start() error {
	cursor, err := i.loadCursor()
	if err != nil {
		return fmt.Errorf("error loading indexer cursor: %w", err)
	}
	i.cursor = cursor

	if cursor != nil {
		i.logger.Infof("resuming from cursor %v (%v)", cursor.BlockNumber, cursor.BlockHash.Hex())
	} else {
		i.logger.Infof("no cursor found, starting from block %v", i.startBlock)
	}

	i.ctx, i.cancel = context.WithCancel(context.Background())
	go i.runLoop()
	return nil
}

// Stop cancels the processing loop and waits for the in-flight batch to
// finish. The cursor only ever advances past fully committed batches, so a
// restart resumes without loss.
func (i *Indexer) Stop() {
	i.cancel()
	<-i.stopped
}

func (i *Indexer) loadCursor() (*stream.Cursor, error) {
	cursorState := dbtypes.IndexerCursorState{}
	_, err := db.GetIndexerState(i.stateKey, &cursorState)
	if errors.Is(err, sql.ErrNoRows) {
		if i.startBlock > 0 {
			return &stream.Cursor{BlockNumber: i.startBlock - 1}, nil
		}
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &stream.Cursor{
		BlockNumber: cursorState.BlockNumber,
		BlockHash:   common.HexToHash(cursorState.BlockHash),
	}, nil
}

func (i *Indexer) runLoop() {
	defer utils.HandleSubroutinePanic("indexer.runLoop")
	defer close(i.stopped)

	for {
		subscription, err := i.subscribe()
		if err != nil {
			// only fails on shutdown, subscribe retries forever otherwise
			return
		}

		err = i.consumeSubscription(subscription)
		subscription.Close()
		if err != nil {
			return
		}
	}
}

// subscribe opens a subscription at the current cursor with the current
// filter snapshot, retrying with a constant delay until it succeeds or the
// indexer shuts down.
func (i *Indexer) subscribe() (stream.Subscription, error) {
	i.filter.ShouldReapply() // the snapshot below covers any pending staleness
	filter := i.filter.Snapshot()

	var subscription stream.Subscription
	err := retry.Do(i.ctx, retry.NewConstant(i.reconnectDelay), func(ctx context.Context) error {
		sub, err := i.provider.Subscribe(ctx, i.cursor, filter)
		if err != nil {
			i.logger.WithError(err).Warnf("error subscribing to stream provider, retrying in %v", i.reconnectDelay)
			metrics.StreamReconnects.Inc()
			return retry.RetryableError(err)
		}
		subscription = sub
		return nil
	})
	if err != nil {
		return nil, err
	}

	i.logger.Infof("subscribed with %v filter entries", len(filter))
	return subscription, nil
}

// consumeSubscription processes batches until the subscription breaks (nil
// return, caller resubscribes) or the indexer shuts down (ctx error).
func (i *Indexer) consumeSubscription(subscription stream.Subscription) error {
	for {
		if i.ctx.Err() != nil {
			return i.ctx.Err()
		}

		// a grown filter set requires a fresh subscription to take effect
		if i.filter.ShouldReapply() {
			i.logger.Infof("filter set grew, resubscribing")
			metrics.FilterReapplies.Inc()
			return nil
		}

		batch, err := subscription.Next(i.ctx)
		if err != nil {
			if i.ctx.Err() != nil {
				return i.ctx.Err()
			}
			i.logger.WithError(err).Warnf("stream subscription broke, reconnecting")
			metrics.StreamReconnects.Inc()
			return nil
		}

		err = i.processBatchWithRetry(batch)
		if err != nil {
			if i.ctx.Err() != nil {
				return i.ctx.Err()
			}
			// resubscribing from the last committed cursor re-delivers the batch
			i.logger.WithError(err).Errorf("error processing batch for block %v, resubscribing", batch.Header.Number)
			return nil
		}
	}
}

func (i *Indexer) processBatchWithRetry(batch *stream.BlockBatch) error {
	attempt := uint64(0)
	backoff := retry.WithMaxRetries(i.retryLimit, retry.NewConstant(2*time.Second))
	return retry.Do(i.ctx, backoff, func(ctx context.Context) error {
		err := i.processBatch(batch)
		if err != nil {
			attempt++
			i.logger.WithError(err).Warnf("error processing batch for block %v (attempt %v)", batch.Header.Number, attempt)
			metrics.BatchRetries.Inc()
			return retry.RetryableError(err)
		}
		return nil
	})
}

// processBatch decodes, dispatches and persists one block batch. The entity
// upserts and the advanced cursor commit in a single transaction, a crash
// mid-batch leaves the database at the previous cursor.
func (i *Indexer) processBatch(batch *stream.BlockBatch) error {
	if i.cursor != nil && batch.Header.Number == i.cursor.BlockNumber &&
		i.cursor.BlockHash != (common.Hash{}) && batch.Header.Hash != i.cursor.BlockHash {
		// chain rewrites are not handled, flag the divergence for operators
		i.logger.Warnf("block %v hash mismatch: stream %v, cursor %v", batch.Header.Number, batch.Header.Hash.Hex(), i.cursor.BlockHash.Hex())
	}

	decoded := i.decodeBatch(batch)

	err := db.RunDBTransaction(func(tx *sqlx.Tx) error {
		writer := newBatchWriter(tx, time.Now().Unix())

		for _, ev := range decoded {
			i.logEvent(ev)

			deltas := i.dispatcher.Dispatch(ev)
			if deltas.IsEmpty() {
				continue
			}
			if err := writer.applyDeltas(deltas); err != nil {
				return fmt.Errorf("error applying event %v: %w", ev.Base().ID, err)
			}
		}

		if err := writer.flush(); err != nil {
			return err
		}

		return db.SetIndexerState(i.stateKey, &dbtypes.IndexerCursorState{
			BlockNumber: batch.Header.Number,
			BlockHash:   batch.Header.Hash.Hex(),
		}, tx)
	})
	if err != nil {
		return err
	}

	i.cursor = &stream.Cursor{
		BlockNumber: batch.Header.Number,
		BlockHash:   batch.Header.Hash,
	}
	metrics.BatchesProcessed.Inc()

	if len(decoded) > 0 {
		i.logger.Debugf("processed block %v with %v events", batch.Header.Number, len(decoded))
	}

	return nil
}

func (i *Indexer) logEvent(ev events.DecodedEvent) {
	if !logrus.StandardLogger().IsLevelEnabled(logrus.DebugLevel) {
		return
	}
	switch event := ev.(type) {
	case *events.RewardsDeposited:
		i.logger.Debugf("event %v: deposit of %v tokens to %v epoch %v",
			event.ID, wire.WordsToDecimalString(event.Amount, i.tokenDecimals), event.Contract.Hex(), event.EpochIndex)
	case *events.RewardsDistributed:
		i.logger.Debugf("event %v: distribution of %v tokens (%v algo / %v vote) from %v epoch %v",
			event.ID, wire.WordsToDecimalString(event.Amount, i.tokenDecimals),
			wire.WordsToDecimalString(event.AlgoAmount, i.tokenDecimals),
			wire.WordsToDecimalString(event.VoteAmount, i.tokenDecimals),
			event.Contract.Hex(), event.EpochIndex)
	default:
		i.logger.Debugf("event %v: %v on %v", ev.Base().ID, ev.Kind(), ev.Base().Contract.Hex())
	}
}

// decodeBatch decodes the batch events in chain order. Events the registry
// cannot decode are skipped, the rest of the batch still applies.
func (i *Indexer) decodeBatch(batch *stream.BlockBatch) []events.DecodedEvent {
	rawEvents := make([]*events.RawEvent, len(batch.Events))
	copy(rawEvents, batch.Events)
	sort.SliceStable(rawEvents, func(a, b int) bool {
		return rawEvents[a].ID().Ord() < rawEvents[b].ID().Ord()
	})

	decoded := make([]events.DecodedEvent, 0, len(rawEvents))
	for _, rawEvent := range rawEvents {
		ev, err := i.registry.Decode(rawEvent)
		if err != nil {
			switch {
			case errors.Is(err, events.ErrUnknownSelector):
				i.logger.Debugf("skipping event %v: %v", rawEvent.ID(), err)
				metrics.EventsUnknown.Inc()
			case errors.Is(err, events.ErrTruncatedEvent):
				i.logger.Warnf("skipping event %v: %v", rawEvent.ID(), err)
				metrics.EventsTruncated.Inc()
			default:
				i.logger.Warnf("skipping event %v: %v", rawEvent.ID(), err)
			}
			continue
		}
		decoded = append(decoded, ev)
		metrics.EventsProcessed.Inc()
	}
	return decoded
}
