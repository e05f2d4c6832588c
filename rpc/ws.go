package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"nhooyr.io/websocket"

	"viewledger/core/events"
	"viewledger/core/types"
)

const (
	wsWriteTimeout    = 10 * time.Second
	wsBacklogPage     = 500
	defaultSubscriber = 256
)

var errSlowConsumer = errors.New("subscriber fell behind")

// EventSource replays committed events from the receipt log.
type EventSource interface {
	Events(afterSeq uint64, limit int) ([]*types.EventRecord, error)
}

// Hub fans committed events out to websocket subscribers. It is registered
// as a processor emitter; subscribers that cannot keep up are disconnected
// and may reconnect with afterSeq to resume from the receipt log.
type Hub struct {
	source EventSource
	logger *slog.Logger
	buffer int

	mu     sync.Mutex
	subs   map[*subscription]struct{}
	closed bool
}

type subscription struct {
	ch   chan *types.EventRecord
	done chan struct{}
	once sync.Once
	err  error
}

func (s *subscription) stop(err error) {
	s.once.Do(func() {
		s.err = err
		close(s.done)
	})
}

func NewHub(source EventSource, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		source: source,
		logger: logger,
		buffer: defaultSubscriber,
		subs:   make(map[*subscription]struct{}),
	}
}

// Emit delivers committed events to every live subscriber without blocking.
func (h *Hub) Emit(evt events.Event) {
	committed, ok := evt.(events.Committed)
	if !ok || committed.Record == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for sub := range h.subs {
		select {
		case sub.ch <- committed.Record:
		default:
			delete(h.subs, sub)
			sub.stop(errSlowConsumer)
		}
	}
}

func (h *Hub) subscribe() (*subscription, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, false
	}
	sub := &subscription{
		ch:   make(chan *types.EventRecord, h.buffer),
		done: make(chan struct{}),
	}
	h.subs[sub] = struct{}{}
	return sub, true
}

func (h *Hub) unsubscribe(sub *subscription) {
	h.mu.Lock()
	delete(h.subs, sub)
	h.mu.Unlock()
	sub.stop(nil)
}

// Subscribers returns the number of live subscriptions.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Close disconnects every subscriber and rejects new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for sub := range h.subs {
		delete(h.subs, sub)
		sub.stop(nil)
	}
}

// ServeHTTP upgrades to a websocket and streams committed events. The
// optional afterSeq query parameter replays the receipt log first.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var (
		after  uint64
		replay bool
	)
	if raw := strings.TrimSpace(r.URL.Query().Get("afterSeq")); raw != "" {
		parsed, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			http.Error(w, "afterSeq must be an unsigned integer", http.StatusBadRequest)
			return
		}
		after, replay = parsed, true
	}
	sub, ok := h.subscribe()
	if !ok {
		http.Error(w, "event stream closed", http.StatusServiceUnavailable)
		return
	}
	defer h.unsubscribe(sub)

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: []string{"*"}})
	if err != nil {
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "stream closed")

	ctx := conn.CloseRead(r.Context())
	if err := h.stream(ctx, conn, sub, after, replay); err != nil {
		switch {
		case errors.Is(err, errSlowConsumer):
			_ = conn.Close(websocket.StatusTryAgainLater, "subscriber fell behind")
		case websocket.CloseStatus(err) == -1 && !errors.Is(err, context.Canceled):
			h.logger.Debug("rpc: event stream ended", slog.Any("error", err))
			_ = conn.Close(websocket.StatusInternalError, "stream error")
		}
	}
}

func (h *Hub) stream(ctx context.Context, conn *websocket.Conn, sub *subscription, after uint64, replay bool) error {
	last := after
	if replay && h.source != nil {
		for {
			page, err := h.source.Events(last, wsBacklogPage)
			if err != nil {
				return err
			}
			for _, rec := range page {
				if err := writeEventRecord(ctx, conn, rec); err != nil {
					return err
				}
				last = rec.Seq
			}
			if len(page) < wsBacklogPage {
				break
			}
		}
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-sub.done:
			return sub.err
		case rec := <-sub.ch:
			if replay && rec.Seq <= last {
				continue
			}
			if err := writeEventRecord(ctx, conn, rec); err != nil {
				return err
			}
			last = rec.Seq
		}
	}
}

func writeEventRecord(ctx context.Context, conn *websocket.Conn, rec *types.EventRecord) error {
	data, err := json.Marshal(formatEventRecord(rec))
	if err != nil {
		return err
	}
	writeCtx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
	defer cancel()
	return conn.Write(writeCtx, websocket.MessageText, data)
}
