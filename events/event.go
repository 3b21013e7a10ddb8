package events

import (
	"encoding/hex"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/pulsedao/pulse-indexer/wire"
)

// EventID identifies one event by its position in the chain. It is the
// stable ordinal used for replay deduplication in the aggregate store.
type EventID struct {
	BlockNumber uint64 `json:"block_number"`
	EventIndex  uint32 `json:"event_index"`
}

// Ord packs the id into one orderable integer: 44 bits block number,
// 20 bits event index. Ordinals start at 1, a zero replay guard always
// means "no event applied". An event index past the 20 bit range
// saturates, so a later same-block event never aliases an earlier
// ordinal and gets dropped as a replay.
func (id EventID) Ord() uint64 {
	index := uint64(id.EventIndex)
	if index > 0xFFFFF {
		index = 0xFFFFF
	}
	return (id.BlockNumber<<20 | index) + 1
}

func (id EventID) String() string {
	return fmt.Sprintf("%v/%v", id.BlockNumber, id.EventIndex)
}

// RawEvent is one event as delivered by the stream provider: a selector-keyed
// list of key words plus a list of data words. Never mutated, never persisted.
type RawEvent struct {
	BlockNumber uint64
	BlockHash   common.Hash
	Timestamp   uint64
	EventIndex  uint32
	Address     common.Address
	Keys        []wire.Word
	Data        []wire.Word
}

func (e *RawEvent) ID() EventID {
	return EventID{BlockNumber: e.BlockNumber, EventIndex: e.EventIndex}
}

// UserID is the stable cross-chain user identity attached to events.
// A zero user id means no identity was attached.
type UserID wire.Word

func (u UserID) IsZero() bool {
	return wire.Word(u).IsZero()
}

func (u UserID) Bytes() []byte {
	return append([]byte{}, u[:]...)
}

func (u UserID) Hex() string {
	return "0x" + hex.EncodeToString(u[:])
}

// Event kind names as emitted on chain. The selector of a kind is the
// keccak256 hash of its name.
const (
	KindTopicCreated         = "TopicCreated"
	KindEpochAdvanced        = "EpochAdvanced"
	KindRewardsDeposited     = "RewardsDeposited"
	KindRewardsDistributed   = "RewardsDistributed"
	KindScorePushed          = "ScorePushed"
	KindAddressLinked        = "AddressLinked"
	KindAddressLinkedByAdmin = "AddressLinkedByAdmin"
	KindTopicMetadataAdded   = "TopicMetadataAdded"
	KindProfileMetadataAdded = "ProfileMetadataAdded"
)

// DecodedEvent is the closed set of structured event records produced by the
// schema registry. Handlers receive the concrete per-kind struct.
type DecodedEvent interface {
	Kind() string
	Base() *EventBase
}

// EventBase carries the fields every decoded event shares.
type EventBase struct {
	ID        EventID
	Contract  common.Address
	Timestamp uint64
	Selector  common.Hash
}

func (b *EventBase) Base() *EventBase {
	return b
}

// TopicCreated is the factory event: the topic registry announces a newly
// deployed topic contract to start watching.
type TopicCreated struct {
	EventBase
	Creator common.Address
	Topic   common.Address
	Name    string
}

func (e *TopicCreated) Kind() string { return KindTopicCreated }

// EpochAdvanced moves a topic contract to its next reward epoch.
type EpochAdvanced struct {
	EventBase
	EpochIndex uint64
	StartTime  uint64
	EndTime    uint64
}

func (e *EpochAdvanced) Kind() string { return KindEpochAdvanced }

// RewardsDeposited adds funds to a topic's epoch reward pool.
type RewardsDeposited struct {
	EventBase
	Depositor  common.Address
	EpochIndex uint64
	Amount     *uint256.Int
	UserID     UserID
}

func (e *RewardsDeposited) Kind() string { return KindRewardsDeposited }

// RewardsDistributed pays out claimed rewards, split into the algorithmic
// and vote-weighted shares.
type RewardsDistributed struct {
	EventBase
	Recipient  common.Address
	EpochIndex uint64
	Amount     *uint256.Int
	AlgoAmount *uint256.Int
	VoteAmount *uint256.Int
	UserID     UserID
}

func (e *RewardsDistributed) Kind() string { return KindRewardsDistributed }

// ScorePushed publishes the latest AI-derived score. A re-score supersedes
// the previous value, it does not accumulate.
type ScorePushed struct {
	EventBase
	EpochIndex uint64
	Score      *uint256.Int
	UserID     UserID
}

func (e *ScorePushed) Kind() string { return KindScorePushed }

// AddressLinked attaches a secondary address to a user identity. ByAdmin
// marks admin-asserted linkage as opposed to self-asserted.
type AddressLinked struct {
	EventBase
	UserID        UserID
	LinkedAddress common.Address
	ByAdmin       bool
}

func (e *AddressLinked) Kind() string {
	if e.ByAdmin {
		return KindAddressLinkedByAdmin
	}
	return KindAddressLinked
}

// TopicMetadataAdded updates the descriptive fields of a topic contract.
type TopicMetadataAdded struct {
	EventBase
	Name        string
	Description string
	Keywords    []string
}

func (e *TopicMetadataAdded) Kind() string { return KindTopicMetadataAdded }

// ProfileMetadataAdded updates the descriptive fields of a user profile.
type ProfileMetadataAdded struct {
	EventBase
	UserID      UserID
	DisplayName string
	Bio         string
	Interests   []string
}

func (e *ProfileMetadataAdded) Kind() string { return KindProfileMetadataAdded }
