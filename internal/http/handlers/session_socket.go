package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/yungbote/mindmesh-backend/internal/mindmap"
	"github.com/yungbote/mindmesh-backend/internal/platform/apierr"
	"github.com/yungbote/mindmesh-backend/internal/platform/logger"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	defaultPongWait = 60 * time.Second
)

type SocketConfig struct {
	ReadBufferSize  int
	WriteBufferSize int
	// MaxMessageSize caps one inbound frame in bytes.
	MaxMessageSize int64
	// SendBuffer is the outbound queue length per connection. A subscriber whose
	// queue is full is treated as failed and dropped from its session.
	SendBuffer int
	// InboundBuffer is how many received frames may wait for the pipeline.
	InboundBuffer int
	// PongWait is how long the peer may stay silent. Pings go out at 9/10 of it.
	PongWait time.Duration
	// AllowedOrigins restricts the upgrade. Empty or "*" allows any origin.
	AllowedOrigins []string
}

func DefaultSocketConfig() SocketConfig {
	return SocketConfig{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		MaxMessageSize:  64 * 1024,
		SendBuffer:      256,
		InboundBuffer:   64,
		PongWait:        defaultPongWait,
	}
}

// SessionSocketHandler is the ingress channel: one websocket per client,
// bound to the session named in the path.
type SessionSocketHandler struct {
	log      *logger.Logger
	manager  *mindmap.SessionManager
	cfg      SocketConfig
	upgrader websocket.Upgrader
}

func NewSessionSocketHandler(log *logger.Logger, manager *mindmap.SessionManager, cfg SocketConfig) *SessionSocketHandler {
	def := DefaultSocketConfig()
	if cfg.ReadBufferSize <= 0 {
		cfg.ReadBufferSize = def.ReadBufferSize
	}
	if cfg.WriteBufferSize <= 0 {
		cfg.WriteBufferSize = def.WriteBufferSize
	}
	if cfg.MaxMessageSize <= 0 {
		cfg.MaxMessageSize = def.MaxMessageSize
	}
	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = def.SendBuffer
	}
	if cfg.InboundBuffer <= 0 {
		cfg.InboundBuffer = def.InboundBuffer
	}
	if cfg.PongWait <= 0 {
		cfg.PongWait = def.PongWait
	}
	h := &SessionSocketHandler{
		log:     log.With("handler", "SessionSocketHandler"),
		manager: manager,
		cfg:     cfg,
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  cfg.ReadBufferSize,
		WriteBufferSize: cfg.WriteBufferSize,
		CheckOrigin:     originChecker(cfg.AllowedOrigins),
	}
	return h
}

func originChecker(origins []string) func(r *http.Request) bool {
	allowed := map[string]bool{}
	for _, o := range origins {
		o = strings.TrimSpace(o)
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
		if o != "" {
			allowed[o] = true
		}
	}
	if len(allowed) == 0 {
		return func(*http.Request) bool { return true }
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		// Non-browser clients send no Origin.
		return origin == "" || allowed[origin]
	}
}

// GET /ws/session/:session_id
func (h *SessionSocketHandler) Serve(c *gin.Context) {
	sessionID := strings.TrimSpace(c.Param("session_id"))
	if sessionID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing session id"})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// The upgrader has already written the HTTP error.
		h.log.Warn("Websocket upgrade failed", "session_id", sessionID, "error", err)
		return
	}

	sub := newSocketSubscriber(conn, h.cfg.SendBuffer, (h.cfg.PongWait*9)/10, h.log.With("session_id", sessionID))
	h.manager.Attach(sessionID, sub)
	sub.log.Info("Subscriber connected", "subscriber", sub.id, "remote_addr", c.ClientIP())

	go sub.writePump()

	frames := make(chan []byte, h.cfg.InboundBuffer)
	workerDone := make(chan string, 1)
	go func() {
		workerDone <- h.processFrames(c.Request.Context(), sessionID, sub, frames)
	}()

	reason := h.readPump(sub, frames)
	close(frames)
	if r := <-workerDone; r != "" {
		reason = r
	}

	h.manager.Detach(sessionID, sub)
	sub.shutdown()
	sub.log.Info("Subscriber disconnected", "subscriber", sub.id, "reason", reason)
}

// readPump only reads: it hands text frames to the worker in arrival order and
// keeps the pong deadline moving while an utterance is in the pipeline. It
// returns why the loop ended.
func (h *SessionSocketHandler) readPump(sub *socketSubscriber, frames chan<- []byte) string {
	conn := sub.conn
	conn.SetReadLimit(h.cfg.MaxMessageSize)
	extend := func() error {
		return conn.SetReadDeadline(time.Now().Add(h.cfg.PongWait))
	}
	_ = extend()
	conn.SetPongHandler(func(string) error { return extend() })

	for {
		messageType, raw, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-sub.done:
				return string(apierr.ChannelClosed)
			default:
			}
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				sub.log.Warn("Websocket read error", "error", err)
				return "read_error"
			}
			return string(apierr.ChannelClosed)
		}
		// Any frame from the peer shows it is alive.
		_ = extend()
		if messageType != websocket.TextMessage {
			sub.log.Debug("Non-text frame dropped", "message_type", messageType)
			continue
		}
		select {
		case frames <- raw:
		case <-sub.done:
			return string(apierr.ChannelClosed)
		}
		// Waiting on a full inbound queue is not silence from the peer.
		_ = extend()
	}
}

// processFrames runs frames through the pipeline one at a time, in order. It
// returns a reason only when it closed the channel itself.
func (h *SessionSocketHandler) processFrames(ctx context.Context, sessionID string, sub *socketSubscriber, frames <-chan []byte) string {
	for raw := range frames {
		err := h.handleFrame(ctx, sessionID, sub, raw)
		switch apierr.KindOf(err) {
		case apierr.Fatal:
			sub.log.ErrorStack("Closing channel after fatal frame error", "error", err)
			sub.closeWith(websocket.CloseInternalServerErr, "internal error")
			return string(apierr.Fatal)
		case apierr.BadFrame, apierr.EmptyText:
			sub.log.Debug("Frame ignored", "error", err)
		}
	}
	return ""
}

// handleFrame turns a panic in the pipeline into a Fatal error for this
// channel only.
func (h *SessionSocketHandler) handleFrame(ctx context.Context, sessionID string, sub *socketSubscriber, raw []byte) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = apierr.New(apierr.Fatal, "handle frame", fmt.Errorf("panic: %v", r))
		}
	}()
	return h.manager.HandleFrame(ctx, sessionID, sub, raw)
}

// socketSubscriber is the realtime.Subscriber for one websocket. Send only
// enqueues; writePump owns all data writes on the connection.
type socketSubscriber struct {
	id         string
	conn       *websocket.Conn
	send       chan []byte
	log        *logger.Logger
	pingPeriod time.Duration

	// closing asks writePump to write what is queued and then say goodbye.
	closing     chan struct{}
	closingOnce sync.Once
	// flushed is closed once writePump has returned.
	flushed chan struct{}

	done      chan struct{}
	closeOnce sync.Once
}

func newSocketSubscriber(conn *websocket.Conn, buffer int, pingPeriod time.Duration, log *logger.Logger) *socketSubscriber {
	id := uuid.New().String()
	return &socketSubscriber{
		id:         id,
		conn:       conn,
		send:       make(chan []byte, buffer),
		log:        log.With("connection_id", id),
		pingPeriod: pingPeriod,
		closing:    make(chan struct{}),
		flushed:    make(chan struct{}),
		done:       make(chan struct{}),
	}
}

func (s *socketSubscriber) ID() string { return s.id }

func (s *socketSubscriber) Send(ctx context.Context, frame []byte) error {
	select {
	case <-s.done:
		return apierr.Of(apierr.ChannelClosed)
	case <-s.closing:
		return apierr.Of(apierr.ChannelClosed)
	default:
	}
	select {
	case s.send <- frame:
		return nil
	case <-s.done:
		return apierr.Of(apierr.ChannelClosed)
	case <-ctx.Done():
		return apierr.New(apierr.DeliveryError, "enqueue", ctx.Err())
	default:
		// The hub drops this subscriber; close so the client reconnects.
		go s.closeWith(websocket.CloseTryAgainLater, "slow consumer")
		return apierr.New(apierr.DeliveryError, "enqueue", errors.New("outbound queue full"))
	}
}

func (s *socketSubscriber) writePump() {
	ticker := time.NewTicker(s.pingPeriod)
	defer func() {
		ticker.Stop()
		s.close()
		close(s.flushed)
	}()

	for {
		select {
		case <-s.done:
			return
		case <-s.closing:
			s.flush()
			return
		case frame := <-s.send:
			if err := s.write(websocket.TextMessage, frame); err != nil {
				s.log.Debug("Failed to write frame", "error", err)
				return
			}
		case <-ticker.C:
			if err := s.write(websocket.PingMessage, nil); err != nil {
				s.log.Debug("Failed to send ping", "error", err)
				return
			}
		}
	}
}

func (s *socketSubscriber) write(messageType int, data []byte) error {
	_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return s.conn.WriteMessage(messageType, data)
}

// flush writes every queued frame, then a normal close frame.
func (s *socketSubscriber) flush() {
	for {
		select {
		case frame := <-s.send:
			if err := s.write(websocket.TextMessage, frame); err != nil {
				s.log.Debug("Failed to flush frame", "error", err)
				return
			}
		default:
			_ = s.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
			return
		}
	}
}

// shutdown lets writePump drain the outbound queue before the connection is
// closed. It waits at most writeWait.
func (s *socketSubscriber) shutdown() {
	s.closingOnce.Do(func() { close(s.closing) })
	select {
	case <-s.flushed:
	case <-time.After(writeWait):
	}
	s.close()
}

// closeWith sends a close frame before closing. WriteControl may run
// concurrently with writePump.
func (s *socketSubscriber) closeWith(code int, text string) {
	if s.conn == nil {
		s.close()
		return
	}
	_ = s.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, text), time.Now().Add(writeWait))
	s.close()
}

func (s *socketSubscriber) close() {
	s.closeOnce.Do(func() {
		close(s.done)
		if s.conn != nil {
			_ = s.conn.Close()
		}
	})
}
