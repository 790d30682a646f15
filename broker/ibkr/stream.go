package ibkr

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tradekit/optrader/market"
)

// Stream keeps a websocket subscription to the gateway's market data topics
// and folds ticks into a QuoteStore. Snapshot polling works without it; the
// stream exists for monitors that want sub-second premiums without hammering
// the snapshot endpoint.
type Stream struct {
	url   string
	store *market.QuoteStore

	mu   sync.Mutex
	subs map[int]string // conid -> instrument key
}

func NewStream(host string, port int, store *market.QuoteStore) *Stream {
	return &Stream{
		url:   fmt.Sprintf("wss://%s:%d/v1/api/ws", host, port),
		store: store,
		subs:  make(map[int]string),
	}
}

// Subscribe registers one instrument. Takes effect on the next (re)connect;
// call before Run.
func (s *Stream) Subscribe(conID int, instrumentKey string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subs[conID] = instrumentKey
}

// Run connects and consumes ticks until the context ends, redialing with a
// fixed backoff after any transport failure.
func (s *Stream) Run(ctx context.Context) error {
	const redialDelay = 5 * time.Second
	for {
		if err := s.runOnce(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.WithError(err).Warn("market data stream dropped, redialing")
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(redialDelay):
		}
	}
}

func (s *Stream) runOnce(ctx context.Context) error {
	dialer := websocket.Dialer{
		HandshakeTimeout: 30 * time.Second,
		TLSClientConfig:  &tls.Config{InsecureSkipVerify: true},
	}
	conn, _, err := dialer.DialContext(ctx, s.url, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", s.url, err)
	}
	defer conn.Close()

	// Close the socket when the context ends so ReadMessage unblocks.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	s.mu.Lock()
	subs := make(map[int]string, len(s.subs))
	for id, key := range s.subs {
		subs[id] = key
	}
	s.mu.Unlock()

	for conID := range subs {
		msg := fmt.Sprintf(`smd+%d+{"fields":["31","84","86"]}`, conID)
		if err := conn.WriteMessage(websocket.TextMessage, []byte(msg)); err != nil {
			return fmt.Errorf("subscribe conid %d: %w", conID, err)
		}
	}

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		s.consume(subs, data)
	}
}

// consume parses one smd tick. Messages for other topics (system, sts,
// tickles) are ignored.
func (s *Stream) consume(subs map[int]string, data []byte) {
	var msg struct {
		Topic string `json:"topic"`
		ConID int    `json:"conid"`
		Last  any    `json:"31"`
		Bid   any    `json:"84"`
		Ask   any    `json:"86"`
	}
	if err := json.Unmarshal(data, &msg); err != nil {
		return
	}
	if !strings.HasPrefix(msg.Topic, "smd+") {
		return
	}
	key, ok := subs[msg.ConID]
	if !ok {
		return
	}

	prev, _ := s.store.Get(key)
	q := market.Quote{
		Instrument: key,
		Last:       tickPrice(msg.Last, prev.Last),
		Bid:        tickPrice(msg.Bid, prev.Bid),
		Ask:        tickPrice(msg.Ask, prev.Ask),
		Time:       time.Now(),
	}
	s.store.Set(q)
}

// tickPrice parses a streamed field, keeping the previous value for fields
// this tick did not carry.
func tickPrice(v any, prev float64) float64 {
	if v == nil {
		if prev == 0 {
			return math.NaN()
		}
		return prev
	}
	row := map[string]any{"x": v}
	return fieldPrice(row, "x")
}
