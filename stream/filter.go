package stream

import (
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// FilterSet tracks which (address, selectors) pairs the subscription watches.
// Entries are only ever added during a session. Adding a previously absent
// address marks the set dirty: the active subscription must be torn down and
// re-issued with the enlarged filter to take effect.
type FilterSet struct {
	mutex   sync.Mutex
	entries map[common.Address]map[common.Hash]bool
	dirty   bool
}

func NewFilterSet() *FilterSet {
	return &FilterSet{
		entries: map[common.Address]map[common.Hash]bool{},
	}
}

// Add merges selectors for an address into the set. It reports whether the
// address was previously absent. Re-adding a known address is a no-op.
func (fs *FilterSet) Add(address common.Address, selectors []common.Hash) bool {
	fs.mutex.Lock()
	defer fs.mutex.Unlock()

	entry := fs.entries[address]
	isNew := entry == nil
	if isNew {
		entry = map[common.Hash]bool{}
		fs.entries[address] = entry
		fs.dirty = true
	}
	for _, selector := range selectors {
		entry[selector] = true
	}
	return isNew
}

// Contains reports whether an address is already watched.
func (fs *FilterSet) Contains(address common.Address) bool {
	fs.mutex.Lock()
	defer fs.mutex.Unlock()
	return fs.entries[address] != nil
}

// ShouldReapply reports whether the subscription filter is stale and clears
// the flag. The caller is expected to resubscribe when it returns true.
func (fs *FilterSet) ShouldReapply() bool {
	fs.mutex.Lock()
	defer fs.mutex.Unlock()
	dirty := fs.dirty
	fs.dirty = false
	return dirty
}

// Snapshot returns the current filter in the request shape, sorted for
// deterministic subscriptions.
func (fs *FilterSet) Snapshot() []AddressFilter {
	fs.mutex.Lock()
	defer fs.mutex.Unlock()

	filter := make([]AddressFilter, 0, len(fs.entries))
	for address, selectorSet := range fs.entries {
		selectors := make([]common.Hash, 0, len(selectorSet))
		for selector := range selectorSet {
			selectors = append(selectors, selector)
		}
		sort.Slice(selectors, func(a, b int) bool {
			return selectors[a].Hex() < selectors[b].Hex()
		})
		filter = append(filter, AddressFilter{Address: address, Selectors: selectors})
	}
	sort.Slice(filter, func(a, b int) bool {
		return filter[a].Address.Hex() < filter[b].Address.Hex()
	})
	return filter
}
