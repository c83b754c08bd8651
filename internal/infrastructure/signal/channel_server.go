package signal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"bemore/internal/core/domain"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// ChannelAuthorizer admits a connection to a session's channel.
type ChannelAuthorizer interface {
	AuthorizeChannel(ctx context.Context, sessionID domain.SessionID, token string) (*domain.SessionData, error)
}

// InboundHandler consumes a message a client sent on a channel. A non-nil reply
// is sent back on the same connection.
type InboundHandler func(ctx context.Context, sessionID domain.SessionID, data []byte) (reply interface{}, err error)

type ServerConfig struct {
	PingInterval   time.Duration
	PongTimeout    time.Duration
	WriteTimeout   time.Duration
	MaxMessageSize int64
}

// ChannelMessage is the envelope every channel message shares.
type ChannelMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// StatusMessage is pushed on the session channel when a session changes status.
type StatusMessage struct {
	Type      string               `json:"type"`
	SessionID domain.SessionID     `json:"sessionId"`
	Status    domain.SessionStatus `json:"status"`
}

type serverConn struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
	timeout time.Duration
}

func (c *serverConn) writeJSON(v interface{}) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(c.timeout))
	return c.conn.WriteJSON(v)
}

func (c *serverConn) writeControl(messageType int, data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteControl(messageType, data, time.Now().Add(c.timeout))
}

// ChannelServer terminates the realtime channels of every session.
type ChannelServer struct {
	auth     ChannelAuthorizer
	cfg      ServerConfig
	upgrader websocket.Upgrader
	logger   *zap.SugaredLogger

	handlersMu sync.RWMutex
	handlers   map[domain.Channel]InboundHandler

	mu    sync.RWMutex
	conns map[domain.SessionID]map[domain.Channel]*serverConn
}

func NewChannelServer(auth ChannelAuthorizer, cfg ServerConfig, logger *zap.SugaredLogger) *ChannelServer {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &ChannelServer{
		auth: auth,
		cfg:  cfg,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  4096,
			WriteBufferSize: 1024,
		},
		logger:   logger,
		handlers: make(map[domain.Channel]InboundHandler),
		conns:    make(map[domain.SessionID]map[domain.Channel]*serverConn),
	}
}

// Handle registers the consumer of inbound messages on channel.
func (s *ChannelServer) Handle(channel domain.Channel, fn InboundHandler) {
	s.handlersMu.Lock()
	defer s.handlersMu.Unlock()
	s.handlers[channel] = fn
}

// HandleWebSocket authorizes and upgrades one channel connection, then serves
// it until either side closes.
func (s *ChannelServer) HandleWebSocket(w http.ResponseWriter, r *http.Request, channel domain.Channel) {
	if !channel.Valid() {
		http.Error(w, domain.ErrUnknownChannel.Error(), http.StatusNotFound)
		return
	}

	sessionID := domain.SessionID(r.URL.Query().Get("session_id"))
	token := r.URL.Query().Get("token")
	if sessionID == "" || token == "" {
		http.Error(w, "session_id and token are required", http.StatusUnauthorized)
		return
	}

	if _, err := s.auth.AuthorizeChannel(r.Context(), sessionID, token); err != nil {
		status := http.StatusUnauthorized
		switch {
		case errors.Is(err, domain.ErrSessionEnded):
			status = http.StatusGone
		case errors.Is(err, domain.ErrSessionNotFound):
			status = http.StatusNotFound
		}
		s.logger.Infow("channel connection refused",
			"session_id", sessionID,
			"channel", channel,
			"error", err,
		)
		http.Error(w, err.Error(), status)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Errorw("websocket upgrade failed", "error", err)
		return
	}
	if s.cfg.MaxMessageSize > 0 {
		conn.SetReadLimit(s.cfg.MaxMessageSize)
	}

	sc := &serverConn{conn: conn, timeout: s.cfg.WriteTimeout}
	isReconnect := s.register(sessionID, channel, sc)
	s.logger.Infow("channel connected",
		"session_id", sessionID,
		"channel", channel,
		"reconnect", isReconnect,
	)

	s.serve(sessionID, channel, sc)

	s.unregister(sessionID, channel, sc)
	s.logger.Infow("channel disconnected", "session_id", sessionID, "channel", channel)
}

// register stores sc, closing any earlier connection of the same channel.
func (s *ChannelServer) register(sessionID domain.SessionID, channel domain.Channel, sc *serverConn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	byChannel, ok := s.conns[sessionID]
	if !ok {
		byChannel = make(map[domain.Channel]*serverConn)
		s.conns[sessionID] = byChannel
	}
	existing, isReconnect := byChannel[channel]
	if isReconnect && existing != nil {
		existing.conn.Close()
	}
	byChannel[channel] = sc
	return isReconnect
}

func (s *ChannelServer) unregister(sessionID domain.SessionID, channel domain.Channel, sc *serverConn) {
	s.mu.Lock()
	defer s.mu.Unlock()

	byChannel := s.conns[sessionID]
	if byChannel[channel] == sc {
		delete(byChannel, channel)
	}
	if len(byChannel) == 0 {
		delete(s.conns, sessionID)
	}
}

func (s *ChannelServer) serve(sessionID domain.SessionID, channel domain.Channel, sc *serverConn) {
	conn := sc.conn
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(s.cfg.PongTimeout))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(s.cfg.PongTimeout))
		return nil
	})

	pingTicker := time.NewTicker(s.cfg.PingInterval)
	defer pingTicker.Stop()

	messageChan := make(chan []byte, 16)
	errorChan := make(chan error, 1)
	done := make(chan struct{})
	defer close(done)

	go readLoop(func() ([]byte, error) {
		_, data, err := conn.ReadMessage()
		if err == nil {
			conn.SetReadDeadline(time.Now().Add(s.cfg.PongTimeout))
		}
		return data, err
	}, messageChan, errorChan, done)

	for {
		select {
		case data, ok := <-messageChan:
			if !ok {
				messageChan = nil
				continue
			}
			if err := s.handleMessage(sessionID, channel, sc, data); err != nil {
				s.logger.Infow("error handling channel message",
					"session_id", sessionID,
					"channel", channel,
					"error", err,
				)
				s.sendError(sc, err.Error())
			}

		case <-pingTicker.C:
			if err := sc.writeControl(websocket.PingMessage, nil); err != nil {
				s.logger.Infow("error sending ping", "session_id", sessionID, "channel", channel, "error", err)
				return
			}

		case err := <-errorChan:
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Infow("error reading channel message",
					"session_id", sessionID,
					"channel", channel,
					"error", err,
				)
			}
			return
		}
	}
}

// readLoop feeds messages until read fails or done is closed. It never blocks
// on a full messages channel once serve has returned.
func readLoop(read func() ([]byte, error), messages chan<- []byte, errs chan<- error, done <-chan struct{}) {
	defer close(messages)
	for {
		data, err := read()
		if err != nil {
			errs <- err
			return
		}
		select {
		case messages <- data:
		case <-done:
			return
		}
	}
}

func (s *ChannelServer) handleMessage(sessionID domain.SessionID, channel domain.Channel, sc *serverConn, data []byte) error {
	var msg ChannelMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return fmt.Errorf("invalid message: %w", err)
	}
	if msg.Type == "" {
		return fmt.Errorf("message type is required")
	}
	if msg.Type == "ping" {
		return sc.writeJSON(map[string]interface{}{
			"type":      "pong",
			"timestamp": time.Now().UnixMilli(),
		})
	}

	s.handlersMu.RLock()
	fn := s.handlers[channel]
	s.handlersMu.RUnlock()
	if fn == nil {
		return nil
	}

	reply, err := fn(context.Background(), sessionID, data)
	if err != nil {
		return err
	}
	if reply != nil {
		return sc.writeJSON(reply)
	}
	return nil
}

func (s *ChannelServer) sendError(sc *serverConn, message string) {
	_ = sc.writeJSON(map[string]interface{}{
		"type":    "error",
		"message": message,
	})
}

// Push sends v to the session's connection on channel.
func (s *ChannelServer) Push(sessionID domain.SessionID, channel domain.Channel, v interface{}) error {
	s.mu.RLock()
	sc, ok := s.conns[sessionID][channel]
	s.mu.RUnlock()
	if !ok {
		return fmt.Errorf("session %s has no %s connection", sessionID, channel)
	}
	return sc.writeJSON(v)
}

// PublishStatus tells the session channel about a status change. An ended
// session gets all of its connections closed afterwards.
func (s *ChannelServer) PublishStatus(session *domain.SessionData) {
	msg := StatusMessage{Type: "status", SessionID: session.SessionID, Status: session.Status}
	if err := s.Push(session.SessionID, domain.ChannelSession, msg); err != nil {
		s.logger.Debugw("status not delivered", "session_id", session.SessionID, "error", err)
	}
	if session.Status == domain.SessionEnded {
		s.CloseSession(session.SessionID, "session ended")
	}
}

// CloseSession closes every channel of a session with a normal closure.
func (s *ChannelServer) CloseSession(sessionID domain.SessionID, reason string) {
	s.mu.RLock()
	conns := make([]*serverConn, 0, len(s.conns[sessionID]))
	for _, sc := range s.conns[sessionID] {
		conns = append(conns, sc)
	}
	s.mu.RUnlock()

	for _, sc := range conns {
		_ = sc.writeControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, reason))
		sc.conn.Close()
	}
}

// ConnectionCount returns the number of open channel connections.
func (s *ChannelServer) ConnectionCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, byChannel := range s.conns {
		n += len(byChannel)
	}
	return n
}

func (s *ChannelServer) IsConnected(sessionID domain.SessionID, channel domain.Channel) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.conns[sessionID][channel]
	return ok
}
