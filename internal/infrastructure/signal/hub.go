package signal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"bemore/internal/core/domain"
	"bemore/internal/core/ports"
	"bemore/pkg/tracing"

	"go.uber.org/zap"
)

// HubObserver receives channel metrics.
type HubObserver interface {
	RecordChannelStatus(channel domain.Channel, status domain.ChannelStatus)
	RecordReconnect(channel domain.Channel)
	RecordMessage(channel domain.Channel, direction string)
}

// MessageHandler consumes one inbound message of a channel.
type MessageHandler func(ctx context.Context, data []byte)

// Hub owns the realtime channels of the current session and tracks their state.
type Hub struct {
	cfg      ClientConfig
	channels []domain.Channel
	observer HubObserver
	logger   *zap.SugaredLogger

	handlersMu sync.RWMutex
	handlers   map[domain.Channel]MessageHandler
	listeners  []func(wsConnected bool, statuses map[domain.Channel]domain.ChannelStatus)

	mu       sync.RWMutex
	clients  map[domain.Channel]*ChannelClient
	statuses map[domain.Channel]domain.ChannelStatus
	active   bool
}

func NewHub(cfg ClientConfig, observer HubObserver, logger *zap.SugaredLogger) *Hub {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Hub{
		cfg:      cfg,
		channels: append([]domain.Channel(nil), domain.DefaultChannels...),
		observer: observer,
		logger:   logger,
		handlers: make(map[domain.Channel]MessageHandler),
		clients:  make(map[domain.Channel]*ChannelClient),
		statuses: make(map[domain.Channel]domain.ChannelStatus),
	}
}

// Handle registers the consumer of a channel's inbound messages.
func (h *Hub) Handle(channel domain.Channel, fn MessageHandler) {
	h.handlersMu.Lock()
	defer h.handlersMu.Unlock()
	h.handlers[channel] = fn
}

// OnChange registers fn to be called after any channel changes state.
func (h *Hub) OnChange(fn func(wsConnected bool, statuses map[domain.Channel]domain.ChannelStatus)) {
	h.handlersMu.Lock()
	defer h.handlersMu.Unlock()
	h.listeners = append(h.listeners, fn)
}

// Connect opens every channel of session, replacing any open ones. Channels
// that fail their first dial keep retrying in the background; the returned
// error lists them.
func (h *Hub) Connect(ctx context.Context, session *domain.SessionData) error {
	h.Disconnect()

	clients := make(map[domain.Channel]*ChannelClient, len(h.channels))
	for _, ch := range h.channels {
		url := session.WSURLs.For(ch)
		if url == "" {
			h.logger.Warnw("Session has no URL for channel", "channel", ch, "session_id", session.SessionID)
			continue
		}
		clients[ch] = NewChannelClient(ch, url, h.cfg, ClientEvents{
			OnStatus:    h.onStatus,
			OnMessage:   h.onMessage,
			OnReconnect: h.onReconnect,
		}, h.logger)
	}

	h.mu.Lock()
	h.clients = clients
	h.statuses = make(map[domain.Channel]domain.ChannelStatus)
	h.active = true
	h.mu.Unlock()

	var errs []error
	for ch, client := range clients {
		if err := client.Connect(ctx); err != nil {
			errs = append(errs, err)
			h.logger.Warnw("Channel connect failed, retrying in background", "channel", ch, "error", err)
		}
	}
	if len(clients) == 0 {
		return fmt.Errorf("session %s has no channel URLs", session.SessionID)
	}
	return errors.Join(errs...)
}

// Disconnect closes every channel and marks the transport down.
func (h *Hub) Disconnect() {
	h.mu.Lock()
	clients := h.clients
	h.clients = make(map[domain.Channel]*ChannelClient)
	wasActive := h.active
	h.active = false
	h.mu.Unlock()

	for _, client := range clients {
		client.Close()
	}
	if wasActive {
		h.logger.Infow("Session channels disconnected")
		h.notify()
	}
}

// Snapshot reports the transport as up while a session is connected and at
// least one of its channels is open.
func (h *Hub) Snapshot() (bool, map[domain.Channel]domain.ChannelStatus) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	statuses := make(map[domain.Channel]domain.ChannelStatus, len(h.channels))
	anyUp := false
	for _, ch := range h.channels {
		st := domain.ChannelDisconnected
		if h.active {
			st = h.statuses[ch].Normalize()
		}
		statuses[ch] = st
		if st == domain.ChannelConnected {
			anyUp = true
		}
	}
	return h.active && anyUp, statuses
}

// Send encodes v as JSON and queues it on channel.
func (h *Hub) Send(channel domain.Channel, v interface{}) error {
	h.mu.RLock()
	client, ok := h.clients[channel]
	h.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotConnected, channel)
	}

	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode %s message: %w", channel, err)
	}
	if err := client.Send(data); err != nil {
		return err
	}
	if h.observer != nil {
		h.observer.RecordMessage(channel, "out")
	}
	return nil
}

func (h *Hub) onStatus(channel domain.Channel, status domain.ChannelStatus) {
	h.mu.Lock()
	h.statuses[channel] = status
	h.mu.Unlock()

	if h.observer != nil {
		h.observer.RecordChannelStatus(channel, status)
	}
	h.notify()
}

func (h *Hub) onReconnect(channel domain.Channel, attempt int) {
	h.logger.Debugw("Reconnecting channel", "channel", channel, "attempt", attempt)
	if h.observer != nil {
		h.observer.RecordReconnect(channel)
	}
}

func (h *Hub) onMessage(channel domain.Channel, data []byte) {
	if h.observer != nil {
		h.observer.RecordMessage(channel, "in")
	}

	h.handlersMu.RLock()
	fn := h.handlers[channel]
	h.handlersMu.RUnlock()
	if fn == nil {
		return
	}

	ctx, span := tracing.TraceChannelMessage(context.Background(), string(channel), messageType(data))
	defer span.End()
	fn(ctx, data)
}

func (h *Hub) notify() {
	h.handlersMu.RLock()
	listeners := append([]func(bool, map[domain.Channel]domain.ChannelStatus){}, h.listeners...)
	h.handlersMu.RUnlock()
	if len(listeners) == 0 {
		return
	}

	wsConnected, statuses := h.Snapshot()
	for _, fn := range listeners {
		fn(wsConnected, statuses)
	}
}

// StatusHandler adapts fn to the status messages of the session channel.
// Other message types are ignored.
func StatusHandler(fn func(ctx context.Context, status domain.SessionStatus)) MessageHandler {
	return func(ctx context.Context, data []byte) {
		var msg StatusMessage
		if err := json.Unmarshal(data, &msg); err != nil || msg.Type != "status" {
			return
		}
		fn(ctx, msg.Status)
	}
}

// messageType peeks at the type field of a JSON message.
func messageType(data []byte) string {
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil || head.Type == "" {
		return "unknown"
	}
	return head.Type
}

var (
	_ ports.ChannelConnector = (*Hub)(nil)
	_ ports.StatusSource     = (*Hub)(nil)
)
