package stream

import (
	"context"

	"github.com/ethereum/go-ethereum/common"

	"github.com/pulsedao/pulse-indexer/events"
)

// Cursor is the resumption position: the last fully processed block. On
// (re)subscribe the provider may replay blocks at or before the cursor,
// duplicate delivery is expected and absorbed downstream.
type Cursor struct {
	BlockNumber uint64
	BlockHash   common.Hash
}

// BlockHeader describes the block a batch of events belongs to.
type BlockHeader struct {
	Number     uint64
	Hash       common.Hash
	ParentHash common.Hash
	Timestamp  uint64
}

// BlockBatch is one unit of delivery from the upstream provider: a block
// header plus all matching events of that block.
type BlockBatch struct {
	Header BlockHeader
	Events []*events.RawEvent
}

// AddressFilter is one entry of the subscription filter.
type AddressFilter struct {
	Address   common.Address
	Selectors []common.Hash
}

// Provider is the upstream stream capability. The provider requires the
// filter to be re-submitted (a fresh subscription) to start watching
// additional addresses.
type Provider interface {
	Subscribe(ctx context.Context, cursor *Cursor, filter []AddressFilter) (Subscription, error)
}

// Subscription yields block batches in chain order until closed.
type Subscription interface {
	Next(ctx context.Context) (*BlockBatch, error)
	Close() error
}
