package server

import (
	"bytes"
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/binary"
	"encoding/json"
	"encoding/pem"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	pkgerrors "github.com/pkg/errors"
	"github.com/quic-go/quic-go"

	"github.com/zeusync/ballistics/internal/core/observability/log"
)

// QUICProtocol is the ALPN protocol negotiated by server and clients.
const QUICProtocol = "ballistics-quic"

const frameHeaderSize = 4

// Each request uses its own QUIC stream: the client writes one frame and
// closes its side, the server answers with one frame and closes.

// appendFrame encodes env into buf as a big-endian length followed by JSON.
// buf must be empty.
func appendFrame(buf *bytes.Buffer, env Envelope) error {
	buf.Write(make([]byte, frameHeaderSize))
	if err := json.NewEncoder(buf).Encode(env); err != nil {
		return pkgerrors.Wrap(err, "failed to encode frame")
	}
	binary.BigEndian.PutUint32(buf.Bytes()[:frameHeaderSize], uint32(buf.Len()-frameHeaderSize))
	return nil
}

// WriteFrame writes one length-prefixed envelope.
func WriteFrame(w io.Writer, env Envelope) error {
	var buf bytes.Buffer
	if err := appendFrame(&buf, env); err != nil {
		return err
	}
	if _, err := w.Write(buf.Bytes()); err != nil {
		return pkgerrors.Wrap(err, "failed to write frame")
	}
	return nil
}

// ReadFrame reads one length-prefixed envelope. A limit of zero or less
// accepts any size.
func ReadFrame(r io.Reader, limit int64) (Envelope, error) {
	var header [frameHeaderSize]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return Envelope{}, pkgerrors.Wrap(err, "failed to read frame length")
	}

	size := binary.BigEndian.Uint32(header[:])
	if limit > 0 && int64(size) > limit {
		return Envelope{}, fmt.Errorf("%w: frame of %d bytes exceeds limit %d", ErrMessageTooLarge, size, limit)
	}

	data := make([]byte, size)
	if _, err := io.ReadFull(r, data); err != nil {
		return Envelope{}, pkgerrors.Wrap(err, "failed to read frame data")
	}

	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}
	return env, nil
}

// newTLSConfig loads the configured certificate pair, or generates a
// self-signed certificate for local use when none is configured.
func newTLSConfig(certFile, keyFile string) (*tls.Config, error) {
	if certFile == "" {
		return generateTLSConfig()
	}

	cert, err := tls.LoadX509KeyPair(certFile, keyFile)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "failed to load TLS certificate")
	}

	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		NextProtos:   []string{QUICProtocol},
		MinVersion:   tls.VersionTLS13, // QUIC requires TLS 1.3
	}, nil
}

func generateTLSConfig() (*tls.Config, error) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "failed to generate TLS key")
	}

	template := x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{Organization: []string{"ballistics"}},
		NotBefore:    time.Now(),
		NotAfter:     time.Now().Add(365 * 24 * time.Hour),
		KeyUsage:     x509.KeyUsageKeyEncipherment | x509.KeyUsageDigitalSignature,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		IPAddresses:  []net.IP{net.IPv4(127, 0, 0, 1), net.IPv6loopback},
		DNSNames:     []string{"localhost"},
	}

	certDER, err := x509.CreateCertificate(rand.Reader, &template, &template, &key.PublicKey, key)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "failed to create TLS certificate")
	}

	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)})
	certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: certDER})

	tlsCert, err := tls.X509KeyPair(certPEM, keyPEM)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "failed to load generated TLS certificate")
	}

	return &tls.Config{
		Certificates: []tls.Certificate{tlsCert},
		NextProtos:   []string{QUICProtocol},
		MinVersion:   tls.VersionTLS13,
	}, nil
}

func (s *Server) startQUIC(ctx context.Context) error {
	tlsConfig, err := newTLSConfig(s.config.TLSCertFile, s.config.TLSKeyFile)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrListenerFailed, err)
	}

	quicConfig := &quic.Config{
		MaxIdleTimeout:  s.config.ReadTimeout,
		KeepAlivePeriod: s.config.ReadTimeout / 2,
	}

	listener, err := quic.ListenAddr(s.config.QUICAddr, tlsConfig, quicConfig)
	if err != nil {
		s.logger.Error("Failed to create QUIC listener", log.String("addr", s.config.QUICAddr), log.Error(err))
		return fmt.Errorf("%w: %v", ErrListenerFailed, err)
	}

	s.quicListener = listener
	s.quicDone = make(chan struct{})
	go s.acceptQUIC(ctx, listener)

	s.logger.Info("QUIC listening", log.String("addr", listener.Addr().String()))
	return nil
}

// QUICAddr is the bound QUIC address, or nil when QUIC is not running.
func (s *Server) QUICAddr() net.Addr {
	if s.quicListener == nil {
		return nil
	}
	return s.quicListener.Addr()
}

func (s *Server) acceptQUIC(ctx context.Context, listener *quic.Listener) {
	defer close(s.quicDone)

	for {
		conn, err := listener.Accept(ctx)
		if err != nil {
			if atomic.LoadInt32(&s.running) == 1 {
				s.logger.Error("QUIC accept failed", log.Error(err))
			}
			return
		}
		go s.serveQUICConn(ctx, conn)
	}
}

func (s *Server) serveQUICConn(ctx context.Context, conn *quic.Conn) {
	id := uuid.NewString()
	connectedAt := time.Now()
	clientLogger := s.logger.With(log.String("client_id", id), log.String("transport", "quic"))

	s.quicConns.Store(id, conn)
	atomic.AddInt64(&s.clientCount, 1)

	clientLogger.Info("Client connected",
		log.String("remote_addr", conn.RemoteAddr().String()),
		log.Int64("total_clients", atomic.LoadInt64(&s.clientCount)))

	defer func() {
		s.quicConns.Delete(id)
		atomic.AddInt64(&s.clientCount, -1)
		_ = conn.CloseWithError(0, "")

		clientLogger.Info("Client disconnected",
			log.Duration("connected_for", time.Since(connectedAt)),
			log.Int64("total_clients", atomic.LoadInt64(&s.clientCount)))
	}()

	for {
		stream, err := conn.AcceptStream(ctx)
		if err != nil {
			clientLogger.Debug("Stopped accepting streams", log.Error(err))
			return
		}
		go s.serveQUICStream(ctx, clientLogger, stream)
	}
}

func (s *Server) serveQUICStream(ctx context.Context, clientLogger log.Log, stream *quic.Stream) {
	defer stream.Close()

	if s.config.ReadTimeout > 0 {
		_ = stream.SetReadDeadline(time.Now().Add(s.config.ReadTimeout))
	}

	var reply Envelope
	in, err := ReadFrame(stream, s.config.MaxMessageSize)
	switch {
	case err == nil:
		reply = s.handleEnvelope(log.ContextWithRequestID(ctx, in.ID), in)
	case errors.Is(err, ErrInvalidMessage), errors.Is(err, ErrMessageTooLarge):
		clientLogger.Debug("Malformed frame", log.Error(err))
		reply = Envelope{Type: TypeError, Error: err.Error()}
		// drop whatever is left of an oversized frame
		stream.CancelRead(0)
	default:
		clientLogger.Debug("Failed to read frame", log.Error(err))
		stream.CancelRead(0)
		return
	}

	buf := s.buffers.Get()
	defer s.buffers.Put(buf)
	if err := appendFrame(buf, reply); err != nil {
		clientLogger.Warn("Failed to encode reply", log.Error(err))
		return
	}

	if s.config.WriteTimeout > 0 {
		_ = stream.SetWriteDeadline(time.Now().Add(s.config.WriteTimeout))
	}
	if _, err := stream.Write(buf.Bytes()); err != nil {
		clientLogger.Warn("Failed to write reply", log.Error(err))
	}
}

func (s *Server) stopQUIC(ctx context.Context) error {
	if s.quicListener == nil {
		return nil
	}

	s.quicConns.Range(func(_, value any) bool {
		_ = value.(*quic.Conn).CloseWithError(0, "server shutting down")
		return true
	})

	err := s.quicListener.Close()

	select {
	case <-s.quicDone:
	case <-ctx.Done():
	}

	s.quicListener = nil
	return pkgerrors.Wrap(err, "failed to close QUIC listener")
}
