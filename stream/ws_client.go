package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/pulsedao/pulse-indexer/events"
	"github.com/pulsedao/pulse-indexer/wire"
)

// WsProvider implements the Provider capability over a websocket endpoint.
// One subscribe request frame starts the stream, every following frame is
// one block batch.
type WsProvider struct {
	url         string
	authToken   string
	readTimeout time.Duration
	logger      logrus.FieldLogger
}

func NewWsProvider(url string, authToken string, readTimeout time.Duration) *WsProvider {
	if readTimeout == 0 {
		readTimeout = 120 * time.Second
	}
	return &WsProvider{
		url:         url,
		authToken:   authToken,
		readTimeout: readTimeout,
		logger:      logrus.StandardLogger().WithField("module", "stream"),
	}
}

type wsSubscribeRequest struct {
	StartCursor *wsCursor         `json:"start_cursor,omitempty"`
	Filter      []wsAddressFilter `json:"filter"`
}

type wsCursor struct {
	BlockNumber uint64 `json:"block_number"`
	BlockHash   string `json:"block_hash"`
}

type wsAddressFilter struct {
	Address   string   `json:"address"`
	Selectors []string `json:"selectors"`
}

type wsBlockBatch struct {
	Header struct {
		Number     uint64 `json:"number"`
		Hash       string `json:"hash"`
		ParentHash string `json:"parent_hash"`
		Timestamp  uint64 `json:"timestamp"`
	} `json:"header"`
	Events []struct {
		EventIndex uint32   `json:"event_index"`
		Address    string   `json:"address"`
		Keys       []string `json:"keys"`
		Data       []string `json:"data"`
	} `json:"events"`
}

func (p *WsProvider) Subscribe(ctx context.Context, cursor *Cursor, filter []AddressFilter) (Subscription, error) {
	header := http.Header{}
	if p.authToken != "" {
		header.Set("Authorization", "Bearer "+p.authToken)
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: 30 * time.Second,
	}
	conn, _, err := dialer.DialContext(ctx, p.url, header)
	if err != nil {
		return nil, fmt.Errorf("error connecting to stream provider %v: %w", p.url, err)
	}

	request := wsSubscribeRequest{
		Filter: make([]wsAddressFilter, len(filter)),
	}
	if cursor != nil {
		request.StartCursor = &wsCursor{
			BlockNumber: cursor.BlockNumber,
			BlockHash:   cursor.BlockHash.Hex(),
		}
	}
	for idx, entry := range filter {
		selectors := make([]string, len(entry.Selectors))
		for sIdx, selector := range entry.Selectors {
			selectors[sIdx] = selector.Hex()
		}
		request.Filter[idx] = wsAddressFilter{
			Address:   entry.Address.Hex(),
			Selectors: selectors,
		}
	}

	err = conn.WriteJSON(&request)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("error sending subscribe request: %w", err)
	}

	p.logger.Debugf("subscribed with %v filter entries from cursor %v", len(filter), cursor)

	return &wsSubscription{
		conn:        conn,
		readTimeout: p.readTimeout,
	}, nil
}

type wsSubscription struct {
	conn        *websocket.Conn
	readTimeout time.Duration
}

func (s *wsSubscription) Next(ctx context.Context) (*BlockBatch, error) {
	deadline := time.Now().Add(s.readTimeout)
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(deadline) {
		deadline = ctxDeadline
	}
	s.conn.SetReadDeadline(deadline)

	// gorilla reads are not context aware, expire the deadline on
	// cancellation so a shutdown does not wait for the next frame
	readDone := make(chan struct{})
	defer close(readDone)
	go func() {
		select {
		case <-ctx.Done():
			s.conn.SetReadDeadline(time.Now())
		case <-readDone:
		}
	}()

	_, frame, err := s.conn.ReadMessage()
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("error reading batch frame: %w", err)
	}

	var raw wsBlockBatch
	err = json.Unmarshal(frame, &raw)
	if err != nil {
		return nil, fmt.Errorf("error decoding batch frame: %w", err)
	}

	batch := &BlockBatch{
		Header: BlockHeader{
			Number:     raw.Header.Number,
			Hash:       common.HexToHash(raw.Header.Hash),
			ParentHash: common.HexToHash(raw.Header.ParentHash),
			Timestamp:  raw.Header.Timestamp,
		},
		Events: make([]*events.RawEvent, 0, len(raw.Events)),
	}

	for idx := range raw.Events {
		rawEvent := &raw.Events[idx]

		keys, err := parseWords(rawEvent.Keys)
		if err != nil {
			return nil, fmt.Errorf("error decoding event %v/%v keys: %w", raw.Header.Number, rawEvent.EventIndex, err)
		}
		data, err := parseWords(rawEvent.Data)
		if err != nil {
			return nil, fmt.Errorf("error decoding event %v/%v data: %w", raw.Header.Number, rawEvent.EventIndex, err)
		}

		batch.Events = append(batch.Events, &events.RawEvent{
			BlockNumber: raw.Header.Number,
			BlockHash:   batch.Header.Hash,
			Timestamp:   raw.Header.Timestamp,
			EventIndex:  rawEvent.EventIndex,
			Address:     common.HexToAddress(rawEvent.Address),
			Keys:        keys,
			Data:        data,
		})
	}

	return batch, nil
}

func (s *wsSubscription) Close() error {
	return s.conn.Close()
}

func parseWords(hexWords []string) ([]wire.Word, error) {
	words := make([]wire.Word, len(hexWords))
	for idx, hexWord := range hexWords {
		word, err := wire.WordFromHex(hexWord)
		if err != nil {
			return nil, err
		}
		words[idx] = word
	}
	return words, nil
}
