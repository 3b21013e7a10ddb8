package dbtypes

// IndexerState is the generic key/value state row. Each indexer instance
// persists its cursor under its own key.
type IndexerState struct {
	Key   string `db:"key"`
	Value string `db:"value"`
}

// IndexerCursorState is the JSON payload stored under the indexer state key:
// the last fully processed block.
type IndexerCursorState struct {
	BlockNumber uint64 `json:"block_number"`
	BlockHash   string `json:"block_hash"`
}
