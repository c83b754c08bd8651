package signal

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"bemore/internal/core/domain"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var (
	ErrNotConnected = errors.New("channel not connected")
	errServerClosed = errors.New("channel closed by server")
)

// ClientConfig tunes one channel connection.
type ClientConfig struct {
	PingInterval         time.Duration
	PongTimeout          time.Duration
	WriteTimeout         time.Duration
	ReconnectDelay       time.Duration
	MaxReconnectAttempts int
	MaxMessageSize       int64
	SendBuffer           int
}

func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		PingInterval:         25 * time.Second,
		PongTimeout:          60 * time.Second,
		WriteTimeout:         10 * time.Second,
		ReconnectDelay:       2 * time.Second,
		MaxReconnectAttempts: 5,
		MaxMessageSize:       512 * 1024,
		SendBuffer:           32,
	}
}

// ClientEvents receives what happens on a channel. Callbacks run on the
// connection's goroutines and must not block for long.
type ClientEvents struct {
	OnStatus    func(channel domain.Channel, status domain.ChannelStatus)
	OnMessage   func(channel domain.Channel, data []byte)
	OnReconnect func(channel domain.Channel, attempt int)
}

// ChannelClient keeps one realtime channel open, reconnecting with a growing
// delay until MaxReconnectAttempts consecutive dials fail.
type ChannelClient struct {
	channel domain.Channel
	url     string
	cfg     ClientConfig
	events  ClientEvents
	dialer  *websocket.Dialer
	logger  *zap.SugaredLogger

	send chan []byte

	mu     sync.RWMutex
	status domain.ChannelStatus

	cancel context.CancelFunc
	done   chan struct{}
}

func NewChannelClient(channel domain.Channel, url string, cfg ClientConfig, events ClientEvents, logger *zap.SugaredLogger) *ChannelClient {
	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = 32
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &ChannelClient{
		channel: channel,
		url:     url,
		cfg:     cfg,
		events:  events,
		dialer:  websocket.DefaultDialer,
		logger:  logger.With("channel", channel),
		send:    make(chan []byte, cfg.SendBuffer),
		status:  domain.ChannelDisconnected,
		done:    make(chan struct{}),
	}
}

func (c *ChannelClient) Channel() domain.Channel {
	return c.channel
}

func (c *ChannelClient) Status() domain.ChannelStatus {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.status
}

func (c *ChannelClient) setStatus(status domain.ChannelStatus) {
	c.mu.Lock()
	changed := c.status != status
	c.status = status
	c.mu.Unlock()

	if changed && c.events.OnStatus != nil {
		c.events.OnStatus(c.channel, status)
	}
}

// Connect dials once synchronously so the caller learns about a bad URL or a
// refused token. The connection is then kept alive in the background; after a
// failed first dial the background loop keeps retrying.
func (c *ChannelClient) Connect(ctx context.Context) error {
	conn, err := c.dial(ctx)

	runCtx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	go c.run(runCtx, conn)
	return err
}

// Close stops the connection and waits for its goroutines.
func (c *ChannelClient) Close() {
	if c.cancel == nil {
		return
	}
	c.cancel()
	<-c.done
}

// Send queues data for the channel. It fails fast when disconnected or when the
// send buffer is full.
func (c *ChannelClient) Send(data []byte) error {
	if c.Status() != domain.ChannelConnected {
		return ErrNotConnected
	}
	select {
	case c.send <- data:
		return nil
	default:
		return fmt.Errorf("%s channel send buffer full", c.channel)
	}
}

func (c *ChannelClient) dial(ctx context.Context) (*websocket.Conn, error) {
	conn, resp, err := c.dialer.DialContext(ctx, c.url, nil)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("failed to connect %s channel: status %d: %w", c.channel, resp.StatusCode, err)
		}
		return nil, fmt.Errorf("failed to connect %s channel: %w", c.channel, err)
	}
	if c.cfg.MaxMessageSize > 0 {
		conn.SetReadLimit(c.cfg.MaxMessageSize)
	}
	return conn, nil
}

func (c *ChannelClient) run(ctx context.Context, conn *websocket.Conn) {
	defer close(c.done)
	defer c.setStatus(domain.ChannelDisconnected)

	if conn == nil {
		if conn = c.reconnect(ctx); conn == nil {
			return
		}
	}

	for {
		c.setStatus(domain.ChannelConnected)
		c.logger.Infow("Channel connected")

		err := c.serve(ctx, conn)
		c.setStatus(domain.ChannelDisconnected)
		if ctx.Err() != nil {
			return
		}
		if errors.Is(err, errServerClosed) {
			c.logger.Infow("Channel closed by server")
			return
		}
		c.logger.Warnw("Channel connection lost", "error", err)

		conn = c.reconnect(ctx)
		if conn == nil {
			return
		}
	}
}

func (c *ChannelClient) reconnect(ctx context.Context) *websocket.Conn {
	delay := c.cfg.ReconnectDelay
	for attempt := 1; c.cfg.MaxReconnectAttempts == 0 || attempt <= c.cfg.MaxReconnectAttempts; attempt++ {
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}

		if c.events.OnReconnect != nil {
			c.events.OnReconnect(c.channel, attempt)
		}
		conn, err := c.dial(ctx)
		if err == nil {
			return conn
		}
		c.logger.Warnw("Channel reconnect failed", "attempt", attempt, "error", err)
		if delay < 30*time.Second {
			delay *= 2
		}
	}

	c.logger.Errorw("Giving up on channel", "attempts", c.cfg.MaxReconnectAttempts)
	return nil
}

// serve pumps one connection until it fails or ctx is cancelled.
func (c *ChannelClient) serve(ctx context.Context, conn *websocket.Conn) error {
	defer conn.Close()

	pongWait := c.cfg.PongTimeout
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	readErr := make(chan error, 1)
	go func() {
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				readErr <- err
				return
			}
			conn.SetReadDeadline(time.Now().Add(pongWait))
			if c.events.OnMessage != nil {
				c.events.OnMessage(c.channel, data)
			}
		}
	}()

	pingTicker := time.NewTicker(c.cfg.PingInterval)
	defer pingTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
			_ = conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, "client closing"))
			return ctx.Err()

		case data := <-c.send:
			conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return fmt.Errorf("write failed: %w", err)
			}

		case <-pingTicker.C:
			conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return fmt.Errorf("ping failed: %w", err)
			}

		case err := <-readErr:
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				return errServerClosed
			}
			return err
		}
	}
}
