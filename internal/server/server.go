package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net"
	"net/http"
	"sync"
	"sync/atomic"

	pkgerrors "github.com/pkg/errors"
	"github.com/quic-go/quic-go"

	"github.com/zeusync/ballistics/internal/config"
	"github.com/zeusync/ballistics/internal/core/aiming"
	"github.com/zeusync/ballistics/internal/core/observability/log"
	"github.com/zeusync/ballistics/pkg/generic"
)

// Server exposes the aimer over websocket, plain HTTP and, when
// configured, QUIC.
type Server struct {
	httpServer   *http.Server
	listener     net.Listener
	quicListener *quic.Listener
	aimer        *aiming.Aimer

	// Client management
	sessions    sync.Map // map[string]*session
	quicConns   sync.Map // map[string]*quic.Conn
	clientCount int64    // atomic

	messagesTotal uint64 // atomic

	// Server state
	running int32 // atomic bool
	closed  int32 // atomic bool

	config  config.ServerConfig
	logger  log.Log
	buffers *generic.Pool[*bytes.Buffer]

	serveDone chan struct{}
	quicDone  chan struct{}
}

func NewServer(cfg config.ServerConfig, aimer *aiming.Aimer, logger log.Log) *Server {
	if logger == nil {
		logger = log.NewNop()
	}
	defaults := config.Default().Server
	if cfg.MaxMessageSize <= 0 {
		cfg.MaxMessageSize = defaults.MaxMessageSize
	}
	if cfg.MaxBatchSize <= 0 {
		cfg.MaxBatchSize = defaults.MaxBatchSize
	}

	server := &Server{
		aimer:  aimer,
		config: cfg,
		logger: logger.With(log.String("component", "server")),
		buffers: generic.NewHotPool(
			func() *bytes.Buffer { return new(bytes.Buffer) },
			(*bytes.Buffer).Reset,
			16,
		),
	}

	server.logger.Info("Server created",
		log.String("listen_addr", cfg.ListenAddr),
		log.Int64("max_message_size", cfg.MaxMessageSize))

	return server
}

// Handler returns the routes without starting a listener.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("/aim", s.handleHTTPAim)
	mux.HandleFunc("/aim/batch", s.handleHTTPAimBatch)
	mux.HandleFunc("/scatter", s.handleHTTPScatter)
	mux.HandleFunc("/stats", s.handleHTTPStats)
	mux.HandleFunc("/healthz", s.handleHealth)
	return mux
}

// Start listens on the configured address and serves in the background.
func (s *Server) Start(ctx context.Context) error {
	if atomic.LoadInt32(&s.closed) == 1 {
		return ErrServerClosed
	}

	if !atomic.CompareAndSwapInt32(&s.running, 0, 1) {
		return ErrServerAlreadyRunning
	}

	s.logger.Info("Starting server")

	var lc net.ListenConfig
	listener, err := lc.Listen(ctx, "tcp", s.config.ListenAddr)
	if err != nil {
		atomic.StoreInt32(&s.running, 0)
		s.logger.Error("Failed to create listener", log.Error(err))
		return fmt.Errorf("%w: %v", ErrListenerFailed, err)
	}

	if s.config.QUICAddr != "" {
		if err := s.startQUIC(context.WithoutCancel(ctx)); err != nil {
			_ = listener.Close()
			atomic.StoreInt32(&s.running, 0)
			return err
		}
	}

	s.listener = listener
	s.httpServer = &http.Server{
		Handler:     s.Handler(),
		ReadTimeout: s.config.ReadTimeout,
		BaseContext: func(net.Listener) context.Context { return context.WithoutCancel(ctx) },
	}
	s.serveDone = make(chan struct{})

	go func() {
		defer close(s.serveDone)
		if err := s.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("Server stopped unexpectedly", log.Error(err))
		}
	}()

	s.logger.Info("Server listening", log.String("addr", listener.Addr().String()))

	return nil
}

// Addr is the bound address once started.
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Stop shuts down HTTP handling and disconnects websocket clients.
func (s *Server) Stop(ctx context.Context) error {
	if !atomic.CompareAndSwapInt32(&s.running, 1, 0) {
		return ErrServerNotRunning
	}

	s.logger.Info("Stopping server")

	err := s.httpServer.Shutdown(ctx)

	// hijacked connections are not tracked by http.Server
	s.sessions.Range(func(_, value any) bool {
		value.(*session).close()
		return true
	})

	select {
	case <-s.serveDone:
	case <-ctx.Done():
	}

	quicErr := s.stopQUIC(ctx)

	s.logger.Info("Server stopped", log.Uint64("messages_total", atomic.LoadUint64(&s.messagesTotal)))

	if err != nil {
		return pkgerrors.Wrap(err, "failed to shut down http server")
	}
	return quicErr
}

// Close stops the server if needed and prevents restarts.
func (s *Server) Close() error {
	if !atomic.CompareAndSwapInt32(&s.closed, 0, 1) {
		return nil // Already closed
	}

	if atomic.LoadInt32(&s.running) == 1 {
		return s.Stop(context.Background())
	}
	return nil
}

// GetStats returns server statistics
func (s *Server) GetStats() Stats {
	return Stats{
		ClientCount:   atomic.LoadInt64(&s.clientCount),
		MessagesTotal: atomic.LoadUint64(&s.messagesTotal),
		Running:       atomic.LoadInt32(&s.running) == 1,
		Cache:         s.aimer.CacheStats(),
	}
}

// handleEnvelope executes one request frame and builds the reply frame.
func (s *Server) handleEnvelope(ctx context.Context, in Envelope) Envelope {
	atomic.AddUint64(&s.messagesTotal, 1)

	payload, err := s.dispatch(ctx, in)
	if err != nil {
		return Envelope{ID: in.ID, Type: TypeError, Error: err.Error()}
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return Envelope{ID: in.ID, Type: TypeError, Error: err.Error()}
	}
	return Envelope{ID: in.ID, Type: in.Type, Payload: raw}
}

func (s *Server) dispatch(ctx context.Context, in Envelope) (any, error) {
	switch in.Type {
	case TypeAim:
		var req aiming.Request
		if err := decodePayload(in.Payload, &req); err != nil {
			return nil, err
		}
		if req.ID == "" {
			req.ID = in.ID
		}
		return s.aimer.Aim(ctx, req)

	case TypeAimBatch:
		var req BatchRequest
		if err := decodePayload(in.Payload, &req); err != nil {
			return nil, err
		}
		return s.aimBatch(ctx, req)

	case TypeScatter:
		var req ScatterRequest
		if err := decodePayload(in.Payload, &req); err != nil {
			return nil, err
		}
		return s.scatter(req)

	case TypeStats:
		return s.GetStats(), nil

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownMessageType, in.Type)
	}
}

func (s *Server) aimBatch(ctx context.Context, req BatchRequest) (BatchResponse, error) {
	s.logger.WithContext(ctx).Debug("Batch received", log.Int("batch_size", len(req.Requests)))
	if len(req.Requests) > s.config.MaxBatchSize {
		return BatchResponse{}, fmt.Errorf("%w: %d requests, limit %d", ErrBatchTooLarge, len(req.Requests), s.config.MaxBatchSize)
	}
	responses, err := s.aimer.AimBatch(ctx, req.Requests)
	if err != nil {
		return BatchResponse{}, err
	}
	return BatchResponse{Responses: responses}, nil
}

func (s *Server) scatter(req ScatterRequest) (ScatterResponse, error) {
	if !req.Origin.IsFinite() || math.IsNaN(req.Angle) || math.IsInf(req.Angle, 0) {
		return ScatterResponse{}, fmt.Errorf("%w: scatter input is not finite", ErrInvalidMessage)
	}
	return ScatterResponse{Direction: s.aimer.Scatter(req.Origin, req.Angle)}, nil
}

func decodePayload(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		return fmt.Errorf("%w: missing payload", ErrInvalidMessage)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}
	return nil
}
