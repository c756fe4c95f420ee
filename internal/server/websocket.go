package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	pkgerrors "github.com/pkg/errors"

	"github.com/zeusync/ballistics/internal/core/observability/log"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// aiming clients are game servers and tools, not browsers
	CheckOrigin: func(*http.Request) bool { return true },
}

// session is one websocket client. Reads and writes both happen on the
// handler goroutine; close may be called from Stop.
type session struct {
	id          string
	conn        *websocket.Conn
	connectedAt time.Time
	lastSeen    int64 // atomic unix timestamp
	closeOnce   sync.Once
}

func (c *session) close() {
	c.closeOnce.Do(func() {
		deadline := time.Now().Add(time.Second)
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"), deadline)
		_ = c.conn.Close()
	})
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("Websocket upgrade failed", log.Error(err))
		return
	}

	sess := &session{
		id:          uuid.NewString(),
		conn:        conn,
		connectedAt: time.Now(),
		lastSeen:    time.Now().Unix(),
	}

	s.sessions.Store(sess.id, sess)
	atomic.AddInt64(&s.clientCount, 1)

	s.logger.Info("Client connected",
		log.String("client_id", sess.id),
		log.String("remote_addr", conn.RemoteAddr().String()),
		log.Int64("total_clients", atomic.LoadInt64(&s.clientCount)))

	defer func() {
		s.sessions.Delete(sess.id)
		atomic.AddInt64(&s.clientCount, -1)
		sess.close()

		s.logger.Info("Client disconnected",
			log.String("client_id", sess.id),
			log.Duration("connected_for", time.Since(sess.connectedAt)),
			log.Int64("total_clients", atomic.LoadInt64(&s.clientCount)))
	}()

	s.serveSession(r.Context(), sess)
}

func (s *Server) serveSession(ctx context.Context, sess *session) {
	clientLogger := s.logger.With(log.String("client_id", sess.id))
	if s.config.MaxMessageSize > 0 {
		sess.conn.SetReadLimit(s.config.MaxMessageSize)
	}

	for {
		if s.config.ReadTimeout > 0 {
			_ = sess.conn.SetReadDeadline(time.Now().Add(s.config.ReadTimeout))
		}

		messageType, data, err := sess.conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) &&
				atomic.LoadInt32(&s.running) == 1 {
				clientLogger.Debug("Failed to read message", log.Error(err))
			}
			return
		}
		atomic.StoreInt64(&sess.lastSeen, time.Now().Unix())

		// Only handle text and binary messages
		if messageType != websocket.TextMessage && messageType != websocket.BinaryMessage {
			continue
		}

		var in Envelope
		var reply Envelope
		if err := json.Unmarshal(data, &in); err != nil {
			clientLogger.Debug("Malformed frame", log.Error(err))
			reply = Envelope{Type: TypeError, Error: ErrInvalidMessage.Error() + ": " + err.Error()}
		} else {
			reply = s.handleEnvelope(log.ContextWithRequestID(ctx, in.ID), in)
		}

		if err := s.writeEnvelope(sess, reply); err != nil {
			clientLogger.Warn("Failed to write reply", log.Error(err))
			return
		}
	}
}

func (s *Server) writeEnvelope(sess *session, env Envelope) error {
	buf := s.buffers.Get()
	defer s.buffers.Put(buf)

	if err := json.NewEncoder(buf).Encode(env); err != nil {
		return pkgerrors.Wrap(err, "failed to encode reply")
	}

	if s.config.WriteTimeout > 0 {
		_ = sess.conn.SetWriteDeadline(time.Now().Add(s.config.WriteTimeout))
	}

	if err := sess.conn.WriteMessage(websocket.TextMessage, buf.Bytes()); err != nil {
		if errors.Is(err, websocket.ErrCloseSent) {
			return nil
		}
		return pkgerrors.Wrap(err, "failed to write message")
	}
	return nil
}
