// Package network carries frames between peers: the server side terminates
// TLS, demultiplexes yamux streams and runs one handler per stream; the
// client side pools multiplexed connections and opens a stream per command.
package network

import (
	"crypto/tls"
	"io"
	"net"
	"sync"
	"time"

	"github.com/hashicorp/yamux"
	"github.com/pkg/errors"

	"tablekv/internal/logger"
	"tablekv/internal/protocol"
	"tablekv/internal/service"
	"tablekv/internal/types"
)

// DefaultHandshakeTimeout bounds the TLS handshake per connection.
const DefaultHandshakeTimeout = 5 * time.Second

// Server accepts TLS connections and serves one command pipeline execution
// per logical stream.
type Server struct {
	svc              *service.Service
	tlsConf          *tls.Config
	HandshakeTimeout time.Duration

	mu sync.Mutex
	ln net.Listener
}

func NewServer(svc *service.Service, tlsConf *tls.Config) *Server {
	return &Server{
		svc:              svc,
		tlsConf:          tlsConf,
		HandshakeTimeout: DefaultHandshakeTimeout,
	}
}

// Start listens on addr and serves until Close.
func (s *Server) Start(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return errors.Wrapf(err, "listen %s", addr)
	}
	return s.Serve(ln)
}

// Serve accepts connections from ln until it is closed.
func (s *Server) Serve(ln net.Listener) error {
	s.mu.Lock()
	s.ln = ln
	s.mu.Unlock()
	logger.Info("listening on %s", ln.Addr())

	for {
		conn, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			logger.Error("accept: %v", err)
			continue
		}
		go s.serveConn(conn)
	}
}

// Close stops the listener; streams already accepted run to completion.
func (s *Server) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return nil
	}
	return s.ln.Close()
}

// Addr returns the bound address once Serve has been called.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

func (s *Server) serveConn(conn net.Conn) {
	defer conn.Close()

	if tcpConn, ok := conn.(*net.TCPConn); ok {
		tcpConn.SetKeepAlive(true)
		tcpConn.SetKeepAlivePeriod(30 * time.Second)
	}

	tlsConn := tls.Server(conn, s.tlsConf)
	conn.SetDeadline(time.Now().Add(s.HandshakeTimeout))
	if err := tlsConn.Handshake(); err != nil {
		logger.Warn("tls handshake from %s: %v", conn.RemoteAddr(), err)
		return
	}
	conn.SetDeadline(time.Time{})

	sess, err := yamux.Server(tlsConn, yamuxConfig())
	if err != nil {
		logger.Error("yamux session from %s: %v", conn.RemoteAddr(), err)
		return
	}
	defer sess.Close()
	logger.Info("connection from %s", conn.RemoteAddr())

	for {
		stream, err := sess.AcceptStream()
		if err != nil {
			if err != io.EOF {
				logger.Debug("connection %s closed: %v", conn.RemoteAddr(), err)
			}
			return
		}
		go s.handleStream(stream)
	}
}

// handleStream runs one pipeline execution: one request frame in, the
// response sequence out. A panic is contained to the stream.
func (s *Server) handleStream(stream net.Conn) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("stream handler panic: %v", r)
		}
		stream.Close()
	}()

	var req types.CommandRequest
	if err := protocol.DecodeFrame(stream, &req); err != nil {
		if err != io.EOF {
			logger.Warn("decode request: %v", err)
			resp := types.ErrorResponse(types.StatusBadRequest, err.Error())
			if werr := protocol.EncodeFrame(stream, resp); werr != nil {
				logger.Debug("write error response: %v", werr)
			}
		}
		return
	}

	rs := s.svc.Execute(&req)
	defer rs.Close()

	// the stream carries exactly one request, so the next read only returns
	// once the peer has closed its end; that must tear down any
	// subscription feeding rs
	go func() {
		var b [1]byte
		stream.Read(b[:])
		rs.Close()
	}()

	for resp := range rs.C {
		if err := protocol.EncodeFrame(stream, resp); err != nil {
			logger.Debug("write response: %v", err)
			return
		}
	}
}

func yamuxConfig() *yamux.Config {
	cfg := yamux.DefaultConfig()
	cfg.LogOutput = io.Discard
	return cfg
}
