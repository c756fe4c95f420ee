package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"sync/atomic"

	"github.com/zeusync/ballistics/internal/core/aiming"
	"github.com/zeusync/ballistics/internal/core/observability/log"
)

func (s *Server) handleHTTPAim(w http.ResponseWriter, r *http.Request) {
	var req aiming.Request
	if !s.decodeHTTP(w, r, &req) {
		return
	}
	resp, err := s.aimer.Aim(r.Context(), req)
	s.respond(r.Context(), w, resp, err)
}

func (s *Server) handleHTTPAimBatch(w http.ResponseWriter, r *http.Request) {
	var req BatchRequest
	if !s.decodeHTTP(w, r, &req) {
		return
	}
	resp, err := s.aimBatch(r.Context(), req)
	s.respond(r.Context(), w, resp, err)
}

func (s *Server) handleHTTPScatter(w http.ResponseWriter, r *http.Request) {
	var req ScatterRequest
	if !s.decodeHTTP(w, r, &req) {
		return
	}
	resp, err := s.scatter(req)
	s.respond(r.Context(), w, resp, err)
}

func (s *Server) handleHTTPStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.respond(r.Context(), w, s.GetStats(), nil)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, "ok")
}

func (s *Server) decodeHTTP(w http.ResponseWriter, r *http.Request, v any) bool {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return false
	}
	body := http.MaxBytesReader(w, r.Body, s.config.MaxMessageSize)
	if err := json.NewDecoder(body).Decode(v); err != nil {
		http.Error(w, ErrInvalidMessage.Error()+": "+err.Error(), http.StatusBadRequest)
		return false
	}
	atomic.AddUint64(&s.messagesTotal, 1)
	return true
}

func (s *Server) respond(ctx context.Context, w http.ResponseWriter, v any, err error) {
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			status = http.StatusServiceUnavailable
		}
		http.Error(w, err.Error(), status)
		return
	}

	buf := s.buffers.Get()
	defer s.buffers.Put(buf)

	if err := json.NewEncoder(buf).Encode(v); err != nil {
		s.logger.WithContext(ctx).Error("Failed to encode response", log.Error(err))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(buf.Bytes())
}
