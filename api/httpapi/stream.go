package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"go.uber.org/zap"

	"github.com/openmemory/openmemory/internal/channel"
	"github.com/openmemory/openmemory/types"
)

// StreamEvent is one notification pushed to dashboards subscribed to
// `/ai-agents/stream`. It is purely additive: nothing in C1-C11 reads it
// back, it only mirrors completions that already happened.
type StreamEvent struct {
	Type      string    `json:"type"` // autonomous_complete
	Project   string    `json:"project"`
	Timestamp time.Time `json:"timestamp"`
	Summary   any       `json:"summary"`
}

// Broadcaster fans StreamEvents out to every connected `/ai-agents/stream`
// subscriber. A publish with no subscribers is a no-op; a slow subscriber
// never blocks the others, it just drops events past its buffer.
type Broadcaster struct {
	mu   sync.Mutex
	subs map[*channel.TunableChannel[StreamEvent]]struct{}
}

// NewBroadcaster builds an empty Broadcaster.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{subs: make(map[*channel.TunableChannel[StreamEvent]]struct{})}
}

func (b *Broadcaster) subscribe() *channel.TunableChannel[StreamEvent] {
	ch := channel.NewTunableChannel[StreamEvent](channel.StreamSubscriberConfig())
	b.mu.Lock()
	b.subs[ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

func (b *Broadcaster) unsubscribe(ch *channel.TunableChannel[StreamEvent]) {
	b.mu.Lock()
	delete(b.subs, ch)
	b.mu.Unlock()
	ch.Close()
}

// Publish fans an event out to all current subscribers, dropping it for
// any whose buffer is full rather than blocking, and lets each subscriber
// retune its buffer size from the resulting send/block rate.
func (b *Broadcaster) Publish(ev StreamEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.subs {
		ch.TrySend(ev)
		ch.Tune()
	}
}

// StreamHandler serves `/ai-agents/stream`: a websocket endpoint that
// pushes autonomous-run completions to connected dashboards. It is off by
// default (config.ServerConfig.StreamEnabled) since it has no other
// effect on the system and no client is required for OpenMemory to work.
type StreamHandler struct {
	broadcaster *Broadcaster
	enabled     bool
	logger      *zap.Logger
}

// NewStreamHandler builds a StreamHandler gated on enabled.
func NewStreamHandler(broadcaster *Broadcaster, enabled bool, logger *zap.Logger) *StreamHandler {
	return &StreamHandler{broadcaster: broadcaster, enabled: enabled, logger: logger.With(zap.String("component", "stream"))}
}

// HandleStream upgrades the connection and relays events until the client
// disconnects or the server shuts the request context down.
func (s *StreamHandler) HandleStream(w http.ResponseWriter, r *http.Request) {
	if !s.enabled {
		WriteErrorMessage(w, r, types.ErrNotFound, http.StatusNotFound, "streaming is disabled on this server", s.logger)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true, // CORS is intentionally unrestricted per §6; see middleware.CORS
	})
	if err != nil {
		s.logger.Warn("stream upgrade failed", zap.Error(err))
		return
	}
	defer conn.CloseNow()

	ch := s.broadcaster.subscribe()
	defer s.broadcaster.unsubscribe(ch)

	ctx := conn.CloseRead(r.Context())
	for {
		select {
		case <-ctx.Done():
			conn.Close(websocket.StatusNormalClosure, "client closed")
			return
		case ev, open := <-ch.Chan():
			if !open {
				return
			}
			payload, err := json.Marshal(ev)
			if err != nil {
				continue
			}
			wctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
			err = conn.Write(wctx, websocket.MessageText, payload)
			cancel()
			if err != nil {
				return
			}
		}
	}
}
