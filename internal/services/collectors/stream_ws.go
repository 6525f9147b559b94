package collectors

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"sentioracle/internal/domain/models"
	"sentioracle/pkg/logger"
)

// StreamBufferCapacity bounds the in-memory backlog between WebSocket
// frames and the next Collect() drain; once full, new frames are dropped
// rather than blocking the read loop, the same non-blocking backpressure
// choice as the reference streaming client.
const StreamBufferCapacity = 20_000

// WebSocketStream collects text items from a push-style feed (chat/social
// firehoses), buffering between Orchestrator cycles so its push cadence
// can still satisfy the pull-shaped Collector contract. Connection
// handling — dial, subscribe, ping loop, reconnect — is adapted from the
// teacher's Finnhub streaming client.
type WebSocketStream struct {
	url            string
	apiKey         string
	channels       []string
	source         models.Source
	reconnectDelay time.Duration
	pingInterval   time.Duration
	log            *logger.Logger

	mu        sync.Mutex
	conn      *websocket.Conn
	connected bool
	buffer    []models.Item
}

// NewWebSocketStream builds a streaming collector for one source.
func NewWebSocketStream(source models.Source, url, apiKey string, channels []string, reconnectDelay, pingInterval time.Duration, log *logger.Logger) *WebSocketStream {
	return &WebSocketStream{
		url:            url,
		apiKey:         apiKey,
		channels:       channels,
		source:         source,
		reconnectDelay: reconnectDelay,
		pingInterval:   pingInterval,
		log:            log,
	}
}

// Source implements domain/service.Collector.
func (w *WebSocketStream) Source() models.Source { return w.source }

// Run dials, subscribes and reads frames until ctx is cancelled,
// reconnecting on read error after reconnectDelay. Intended to run for
// the lifetime of the process in its own goroutine, independent of the
// Orchestrator's cycle cadence.
func (w *WebSocketStream) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		if err := w.connect(ctx); err != nil {
			w.log.Warn("stream connect failed", logger.String("source", string(w.source)), logger.Error(err))
			select {
			case <-ctx.Done():
				return
			case <-time.After(w.reconnectDelay):
			}
			continue
		}
		w.readLoop(ctx)
		select {
		case <-ctx.Done():
			return
		case <-time.After(w.reconnectDelay):
		}
	}
}

func (w *WebSocketStream) connect(ctx context.Context) error {
	u := fmt.Sprintf("%s?token=%s", w.url, w.apiKey)
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u, nil)
	if err != nil {
		return fmt.Errorf("stream dial: %w", err)
	}
	for _, ch := range w.channels {
		if err := conn.WriteJSON(map[string]string{"type": "subscribe", "channel": ch}); err != nil {
			conn.Close()
			return fmt.Errorf("stream subscribe %s: %w", ch, err)
		}
	}

	w.mu.Lock()
	w.conn = conn
	w.connected = true
	w.mu.Unlock()
	return nil
}

type streamFrame struct {
	Type string     `json:"type"`
	Data []feedItem `json:"data"`
}

func (w *WebSocketStream) readLoop(ctx context.Context) {
	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(w.pingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				w.mu.Lock()
				conn := w.conn
				w.mu.Unlock()
				if conn != nil {
					_ = conn.WriteMessage(websocket.PingMessage, nil)
				}
			}
		}
	}()
	defer close(done)

	for {
		if ctx.Err() != nil {
			w.closeConn()
			return
		}
		w.mu.Lock()
		conn := w.conn
		w.mu.Unlock()
		if conn == nil {
			return
		}
		_, raw, err := conn.ReadMessage()
		if err != nil {
			w.log.Warn("stream read error", logger.String("source", string(w.source)), logger.Error(err))
			w.closeConn()
			return
		}
		var frame streamFrame
		if err := json.Unmarshal(raw, &frame); err != nil {
			continue
		}
		if frame.Type != "item" {
			continue
		}
		for _, fi := range frame.Data {
			w.push(toItem(w.source, fi))
		}
	}
}

func (w *WebSocketStream) push(it models.Item) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.buffer) >= StreamBufferCapacity {
		return // drop on backpressure
	}
	w.buffer = append(w.buffer, it)
}

func (w *WebSocketStream) closeConn() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.conn != nil {
		w.conn.Close()
	}
	w.conn = nil
	w.connected = false
}

// Collect implements domain/service.Collector by draining the buffer of
// items created within [windowStart, windowEnd). nextCursor is always
// empty: a push stream has no resumable offset the Orchestrator needs to
// carry across cycles.
func (w *WebSocketStream) Collect(_ context.Context, windowStart, windowEnd time.Time, assets []string) ([]models.Item, string, error) {
	w.mu.Lock()
	pending := w.buffer
	w.buffer = nil
	w.mu.Unlock()

	wanted := assetSet(assets)
	out := make([]models.Item, 0, len(pending))
	var carry []models.Item
	for _, it := range pending {
		if it.CreatedAt.Before(windowStart) || !it.CreatedAt.Before(windowEnd) {
			if !it.CreatedAt.Before(windowEnd) {
				carry = append(carry, it) // belongs to a future cycle
			}
			continue
		}
		if len(wanted) > 0 && !matchesAny(it.AssetTags, wanted) {
			continue
		}
		out = append(out, it)
		if len(out) >= MaxItemsPerCycle {
			break
		}
	}

	if len(carry) > 0 {
		w.mu.Lock()
		w.buffer = append(carry, w.buffer...)
		w.mu.Unlock()
	}

	return out, "", nil
}

func assetSet(assets []string) map[string]struct{} {
	if len(assets) == 0 {
		return nil
	}
	set := make(map[string]struct{}, len(assets))
	for _, a := range assets {
		set[a] = struct{}{}
	}
	return set
}

func matchesAny(tags []string, wanted map[string]struct{}) bool {
	for _, t := range tags {
		if _, ok := wanted[t]; ok {
			return true
		}
	}
	return false
}
