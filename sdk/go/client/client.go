// Package client is the Go SDK for talking to the aiming server over
// websocket or QUIC.
package client

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/quic-go/quic-go"

	"github.com/zeusync/ballistics/internal/core/aiming"
	"github.com/zeusync/ballistics/internal/core/observability/log"
	"github.com/zeusync/ballistics/internal/core/systems/physics"
	"github.com/zeusync/ballistics/internal/server"
)

// Client multiplexes concurrent requests over one connection. Over
// websocket replies are matched to callers by envelope ID; over QUIC every
// call gets its own stream.
type Client struct {
	conn     *websocket.Conn
	quicConn *quic.Conn
	writeMu  sync.Mutex
	pending  sync.Map // map[string]chan server.Envelope

	// Lifecycle
	connected int32 // atomic bool
	closed    int32 // atomic bool
	done      chan struct{}

	config Config
	logger log.Log
}

// Transport selects how the client reaches the server.
type Transport string

const (
	TransportWebSocket Transport = "websocket"
	TransportQUIC      Transport = "quic"
)

// Config holds configuration for the client
type Config struct {
	Transport Transport
	// ServerURL is the websocket endpoint, e.g. ws://localhost:8080/ws
	ServerURL string
	// QUICAddr is the host:port of the server's QUIC listener.
	QUICAddr string
	// TLSConfig is used for QUIC; nil verifies against the system roots.
	TLSConfig      *tls.Config
	ConnectTimeout time.Duration
	MessageTimeout time.Duration
	Logger         log.Log
}

// DefaultClientConfig returns default client configuration
func DefaultClientConfig() Config {
	return Config{
		Transport:      TransportWebSocket,
		ServerURL:      "ws://127.0.0.1:8080/ws",
		QUICAddr:       "127.0.0.1:8443",
		ConnectTimeout: 10 * time.Second,
		MessageTimeout: 10 * time.Second,
	}
}

func NewClient(config Config) *Client {
	logger := config.Logger
	if logger == nil {
		logger = log.NewNop()
	}
	return &Client{
		done:   make(chan struct{}),
		config: config,
		logger: logger.With(log.String("component", "client")),
	}
}

// Connect dials the server and starts the reply receiver.
func (c *Client) Connect(ctx context.Context) error {
	if atomic.LoadInt32(&c.closed) == 1 {
		return ErrClientClosed
	}
	if atomic.LoadInt32(&c.connected) == 1 {
		return ErrAlreadyConnected
	}

	if c.config.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.config.ConnectTimeout)
		defer cancel()
	}

	if c.config.Transport == TransportQUIC {
		return c.connectQUIC(ctx)
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.config.ServerURL, nil)
	if err != nil {
		return errors.Wrapf(err, "failed to dial %s", c.config.ServerURL)
	}

	c.conn = conn
	atomic.StoreInt32(&c.connected, 1)
	go c.messageReceiver()

	c.logger.Info("Client connected", log.String("server_url", c.config.ServerURL))
	return nil
}

func (c *Client) connectQUIC(ctx context.Context) error {
	tlsConfig := c.config.TLSConfig.Clone()
	if tlsConfig == nil {
		tlsConfig = &tls.Config{MinVersion: tls.VersionTLS13}
	}
	tlsConfig.NextProtos = []string{server.QUICProtocol}
	if tlsConfig.ServerName == "" {
		host, _, err := net.SplitHostPort(c.config.QUICAddr)
		if err != nil {
			host = c.config.QUICAddr
		}
		tlsConfig.ServerName = host
	}

	conn, err := quic.DialAddr(ctx, c.config.QUICAddr, tlsConfig, &quic.Config{KeepAlivePeriod: 15 * time.Second})
	if err != nil {
		return errors.Wrapf(err, "failed to dial QUIC %s", c.config.QUICAddr)
	}

	c.quicConn = conn
	atomic.StoreInt32(&c.connected, 1)

	c.logger.Info("Client connected",
		log.String("quic_addr", c.config.QUICAddr),
		log.String("transport", string(TransportQUIC)))
	return nil
}

// Close disconnects and fails every pending call.
func (c *Client) Close() error {
	if !atomic.CompareAndSwapInt32(&c.closed, 0, 1) {
		return nil
	}
	close(c.done)
	if atomic.SwapInt32(&c.connected, 0) == 1 {
		if c.quicConn != nil {
			return c.quicConn.CloseWithError(0, "client closed")
		}
		c.writeMu.Lock()
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		c.writeMu.Unlock()
		return c.conn.Close()
	}
	return nil
}

func (c *Client) IsConnected() bool {
	return atomic.LoadInt32(&c.connected) == 1
}

func (c *Client) Aim(ctx context.Context, req aiming.Request) (aiming.Response, error) {
	var resp aiming.Response
	err := c.call(ctx, server.TypeAim, req, &resp)
	return resp, err
}

func (c *Client) AimBatch(ctx context.Context, reqs []aiming.Request) ([]aiming.Response, error) {
	var resp server.BatchResponse
	err := c.call(ctx, server.TypeAimBatch, server.BatchRequest{Requests: reqs}, &resp)
	return resp.Responses, err
}

func (c *Client) Scatter(ctx context.Context, origin physics.Vec3, angleDeg float64) (physics.Vec3, error) {
	var resp server.ScatterResponse
	err := c.call(ctx, server.TypeScatter, server.ScatterRequest{Origin: origin, Angle: angleDeg}, &resp)
	return resp.Direction, err
}

func (c *Client) Stats(ctx context.Context) (server.Stats, error) {
	var resp server.Stats
	err := c.call(ctx, server.TypeStats, struct{}{}, &resp)
	return resp, err
}

func (c *Client) call(ctx context.Context, typ server.MessageType, payload any, out any) error {
	if atomic.LoadInt32(&c.closed) == 1 {
		return ErrClientClosed
	}
	if atomic.LoadInt32(&c.connected) == 0 {
		return ErrNotConnected
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return errors.Wrap(err, "failed to encode payload")
	}

	env := server.Envelope{ID: uuid.NewString(), Type: typ, Payload: raw}

	var reply server.Envelope
	if c.quicConn != nil {
		reply, err = c.roundTripQUIC(ctx, env)
	} else {
		reply, err = c.roundTripWebSocket(ctx, env)
	}
	if err != nil {
		return err
	}

	if reply.Type == server.TypeError {
		return fmt.Errorf("%w: %s", ErrServerError, reply.Error)
	}
	return errors.Wrap(json.Unmarshal(reply.Payload, out), "failed to decode reply")
}

func (c *Client) roundTripWebSocket(ctx context.Context, env server.Envelope) (server.Envelope, error) {
	replyCh := make(chan server.Envelope, 1)
	c.pending.Store(env.ID, replyCh)
	defer c.pending.Delete(env.ID)

	c.writeMu.Lock()
	err := c.conn.WriteJSON(env)
	c.writeMu.Unlock()
	if err != nil {
		return server.Envelope{}, errors.Wrap(err, "failed to send message")
	}

	var timeout <-chan time.Time
	if c.config.MessageTimeout > 0 {
		timer := time.NewTimer(c.config.MessageTimeout)
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case reply := <-replyCh:
		return reply, nil
	case <-timeout:
		return server.Envelope{}, ErrMessageTimeout
	case <-ctx.Done():
		return server.Envelope{}, ctx.Err()
	case <-c.done:
		return server.Envelope{}, ErrClientClosed
	}
}

func (c *Client) roundTripQUIC(ctx context.Context, env server.Envelope) (server.Envelope, error) {
	stream, err := c.quicConn.OpenStreamSync(ctx)
	if err != nil {
		return server.Envelope{}, errors.Wrap(err, "failed to open stream")
	}

	if c.config.MessageTimeout > 0 {
		_ = stream.SetDeadline(time.Now().Add(c.config.MessageTimeout))
	}
	stop := context.AfterFunc(ctx, func() {
		stream.CancelRead(0)
		stream.CancelWrite(0)
	})
	defer stop()

	err = server.WriteFrame(stream, env)
	if err == nil {
		// the server answers once our side is closed
		err = stream.Close()
	}

	var reply server.Envelope
	if err == nil {
		reply, err = server.ReadFrame(stream, 0)
	}
	if err != nil {
		if ctx.Err() != nil {
			return server.Envelope{}, ctx.Err()
		}
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return server.Envelope{}, ErrMessageTimeout
		}
		if atomic.LoadInt32(&c.closed) == 1 {
			return server.Envelope{}, ErrClientClosed
		}
		return server.Envelope{}, errors.Wrap(err, "QUIC round trip failed")
	}
	return reply, nil
}

func (c *Client) messageReceiver() {
	c.logger.Debug("Message receiver started")
	defer c.logger.Debug("Message receiver stopped")

	for {
		var env server.Envelope
		if err := c.conn.ReadJSON(&env); err != nil {
			if atomic.LoadInt32(&c.closed) == 0 {
				c.logger.Warn("Connection lost", log.Error(err))
				_ = c.Close()
			}
			return
		}

		if ch, ok := c.pending.Load(env.ID); ok {
			ch.(chan server.Envelope) <- env
			continue
		}
		c.logger.Debug("Dropping unmatched reply", log.String("id", env.ID), log.String("type", string(env.Type)))
	}
}
