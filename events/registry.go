package events

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"

	"github.com/pulsedao/pulse-indexer/wire"
)

var (
	// ErrUnknownSelector marks an event kind with no registered shape.
	// Callers skip the event and keep processing the batch.
	ErrUnknownSelector = errors.New("unknown event selector")

	// ErrTruncatedEvent marks an event with fewer words than its shape
	// requires. Callers skip the event and keep processing the batch.
	ErrTruncatedEvent = errors.New("truncated event payload")
)

// Shape binds a selector to its decoder. Key words and data words are
// consumed in declared order; multi-word fields consume as many physical
// words as they need, so a short payload is caught as ErrTruncatedEvent
// instead of misreading subsequent fields.
type Shape struct {
	Name   string
	decode func(r *wordReader, base EventBase) (DecodedEvent, error)
}

// Registry maps event selectors to decoding shapes. It is constructed once
// at startup and passed by reference into the dispatcher, there is no
// ambient global selector state.
type Registry struct {
	shapes    map[common.Hash]*Shape
	selectors map[string]common.Hash
}

// Selector derives the wire selector of an event name.
func Selector(name string) common.Hash {
	return crypto.Keccak256Hash([]byte(name))
}

// NewRegistry builds a registry with all event kinds of the current schema
// version registered.
func NewRegistry() *Registry {
	r := &Registry{
		shapes:    map[common.Hash]*Shape{},
		selectors: map[string]common.Hash{},
	}

	r.Register(KindTopicCreated, decodeTopicCreated)
	r.Register(KindEpochAdvanced, decodeEpochAdvanced)
	r.Register(KindRewardsDeposited, decodeRewardsDeposited)
	r.Register(KindRewardsDistributed, decodeRewardsDistributed)
	r.Register(KindScorePushed, decodeScorePushed)
	r.Register(KindAddressLinked, decodeAddressLinked(false))
	r.Register(KindAddressLinkedByAdmin, decodeAddressLinked(true))
	r.Register(KindTopicMetadataAdded, decodeTopicMetadataAdded)
	r.Register(KindProfileMetadataAdded, decodeProfileMetadataAdded)

	return r
}

func (r *Registry) Register(name string, decode func(reader *wordReader, base EventBase) (DecodedEvent, error)) {
	selector := Selector(name)
	r.shapes[selector] = &Shape{Name: name, decode: decode}
	r.selectors[name] = selector
}

// Selectors resolves event names to their selectors. Unknown names panic,
// they indicate a wiring bug, not runtime input.
func (r *Registry) Selectors(names ...string) []common.Hash {
	selectors := make([]common.Hash, len(names))
	for idx, name := range names {
		selector, found := r.selectors[name]
		if !found {
			panic(fmt.Sprintf("unregistered event name: %v", name))
		}
		selectors[idx] = selector
	}
	return selectors
}

// TopicSelectors is the full selector set watched on topic contracts. The
// factory expansion registers new topic addresses with exactly this set.
func (r *Registry) TopicSelectors() []common.Hash {
	return r.Selectors(
		KindEpochAdvanced,
		KindRewardsDeposited,
		KindRewardsDistributed,
		KindScorePushed,
		KindTopicMetadataAdded,
	)
}

// RegistrySelectors is the selector set watched on the topic registry
// contract (factory + profile level events).
func (r *Registry) RegistrySelectors() []common.Hash {
	return r.Selectors(
		KindTopicCreated,
		KindAddressLinked,
		KindAddressLinkedByAdmin,
		KindProfileMetadataAdded,
	)
}

// Decode turns a raw event into its structured record. Events with an
// unregistered selector return ErrUnknownSelector, events with too few
// words for their shape return ErrTruncatedEvent.
func (r *Registry) Decode(raw *RawEvent) (DecodedEvent, error) {
	if len(raw.Keys) == 0 {
		return nil, fmt.Errorf("%w: event without selector key", ErrTruncatedEvent)
	}

	selector := common.Hash(raw.Keys[0])
	shape := r.shapes[selector]
	if shape == nil {
		return nil, fmt.Errorf("%w: %v", ErrUnknownSelector, selector)
	}

	reader := &wordReader{
		keys: raw.Keys[1:],
		data: raw.Data,
	}

	base := EventBase{
		ID:        raw.ID(),
		Contract:  raw.Address,
		Timestamp: raw.Timestamp,
		Selector:  selector,
	}

	decoded, err := shape.decode(reader, base)
	if err != nil {
		return nil, err
	}
	if reader.err != nil {
		return nil, fmt.Errorf("%w: %v event %v", ErrTruncatedEvent, shape.Name, reader.err)
	}

	return decoded, nil
}

// wordReader consumes key and data words in order, tracking how many words
// each field takes. On underflow it records the failing field and keeps
// returning zero values so decoders stay linear.
type wordReader struct {
	keys []wire.Word
	data []wire.Word
	err  error
}

func (r *wordReader) fail(field string, format string, args ...interface{}) {
	if r.err == nil {
		r.err = fmt.Errorf("field %v: %v", field, fmt.Sprintf(format, args...))
	}
}

func (r *wordReader) nextKey(field string) wire.Word {
	if len(r.keys) == 0 {
		r.fail(field, "missing key word")
		return wire.Word{}
	}
	word := r.keys[0]
	r.keys = r.keys[1:]
	return word
}

func (r *wordReader) nextData(field string) wire.Word {
	if len(r.data) == 0 {
		r.fail(field, "missing data word")
		return wire.Word{}
	}
	word := r.data[0]
	r.data = r.data[1:]
	return word
}

func (r *wordReader) keyAddress(field string) common.Address {
	addr, err := wire.WordToAddress(r.nextKey(field))
	if err != nil && r.err == nil {
		r.fail(field, "%v", err)
	}
	return addr
}

func (r *wordReader) keyUserID(field string) UserID {
	return UserID(r.nextKey(field))
}

func (r *wordReader) dataAddress(field string) common.Address {
	addr, err := wire.WordToAddress(r.nextData(field))
	if err != nil && r.err == nil {
		r.fail(field, "%v", err)
	}
	return addr
}

func (r *wordReader) dataUint64(field string) uint64 {
	return wire.WordToUint64(r.nextData(field))
}

func (r *wordReader) dataUserID(field string) UserID {
	return UserID(r.nextData(field))
}

// dataUint256 consumes the (low, high) limb pair of a 256 bit amount.
func (r *wordReader) dataUint256(field string) *uint256.Int {
	low := r.nextData(field)
	high := r.nextData(field)
	if r.err != nil {
		return uint256.NewInt(0)
	}
	return wire.WordsToUint256(low, high)
}

// dataByteArray consumes a chunked string: the chunk count word determines
// how many physical words the field spans.
func (r *wordReader) dataByteArray(field string) string {
	if len(r.data) < 3 {
		r.fail(field, "missing byte array words")
		return ""
	}
	chunkCount := wire.WordToUint64(r.data[0])
	wordCount := int(chunkCount) + 3
	if chunkCount > uint64(len(r.data)) || wordCount > len(r.data) {
		r.fail(field, "byte array spans %v words, %v left", wordCount, len(r.data))
		return ""
	}
	value, err := wire.DecodeByteArray(r.data[:wordCount])
	if err != nil {
		r.fail(field, "%v", err)
		return ""
	}
	r.data = r.data[wordCount:]
	return value
}

// dataStringList consumes a count-prefixed list of chunked strings.
func (r *wordReader) dataStringList(field string) []string {
	count := r.dataUint64(field)
	if r.err != nil {
		return nil
	}
	if count > 256 {
		r.fail(field, "unreasonable list length %v", count)
		return nil
	}
	list := make([]string, 0, count)
	for idx := uint64(0); idx < count; idx++ {
		list = append(list, r.dataByteArray(fmt.Sprintf("%v[%v]", field, idx)))
		if r.err != nil {
			return nil
		}
	}
	return list
}

func decodeTopicCreated(r *wordReader, base EventBase) (DecodedEvent, error) {
	ev := &TopicCreated{EventBase: base}
	ev.Creator = r.keyAddress("creator")
	ev.Topic = r.dataAddress("topic")
	ev.Name = r.dataByteArray("name")
	return ev, nil
}

func decodeEpochAdvanced(r *wordReader, base EventBase) (DecodedEvent, error) {
	ev := &EpochAdvanced{EventBase: base}
	ev.EpochIndex = r.dataUint64("epoch_index")
	ev.StartTime = r.dataUint64("start_time")
	ev.EndTime = r.dataUint64("end_time")
	return ev, nil
}

func decodeRewardsDeposited(r *wordReader, base EventBase) (DecodedEvent, error) {
	ev := &RewardsDeposited{EventBase: base}
	ev.Depositor = r.keyAddress("depositor")
	ev.EpochIndex = r.dataUint64("epoch_index")
	ev.Amount = r.dataUint256("amount")
	ev.UserID = r.dataUserID("user_id")
	return ev, nil
}

func decodeRewardsDistributed(r *wordReader, base EventBase) (DecodedEvent, error) {
	ev := &RewardsDistributed{EventBase: base}
	ev.Recipient = r.keyAddress("recipient")
	ev.EpochIndex = r.dataUint64("epoch_index")
	ev.Amount = r.dataUint256("amount")
	ev.AlgoAmount = r.dataUint256("algo_amount")
	ev.VoteAmount = r.dataUint256("vote_amount")
	ev.UserID = r.dataUserID("user_id")
	return ev, nil
}

func decodeScorePushed(r *wordReader, base EventBase) (DecodedEvent, error) {
	ev := &ScorePushed{EventBase: base}
	ev.EpochIndex = r.dataUint64("epoch_index")
	ev.Score = r.dataUint256("score")
	ev.UserID = r.dataUserID("user_id")
	return ev, nil
}

func decodeAddressLinked(byAdmin bool) func(r *wordReader, base EventBase) (DecodedEvent, error) {
	return func(r *wordReader, base EventBase) (DecodedEvent, error) {
		ev := &AddressLinked{EventBase: base, ByAdmin: byAdmin}
		ev.UserID = r.keyUserID("user_id")
		ev.LinkedAddress = r.dataAddress("linked_address")
		return ev, nil
	}
}

func decodeTopicMetadataAdded(r *wordReader, base EventBase) (DecodedEvent, error) {
	ev := &TopicMetadataAdded{EventBase: base}
	ev.Name = r.dataByteArray("name")
	ev.Description = r.dataByteArray("description")
	ev.Keywords = r.dataStringList("keywords")
	return ev, nil
}

func decodeProfileMetadataAdded(r *wordReader, base EventBase) (DecodedEvent, error) {
	ev := &ProfileMetadataAdded{EventBase: base}
	ev.UserID = r.keyUserID("user_id")
	ev.DisplayName = r.dataByteArray("display_name")
	ev.Bio = r.dataByteArray("bio")
	ev.Interests = r.dataStringList("interests")
	return ev, nil
}
