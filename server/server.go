package server

import (
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hashicorp/go-multierror"
)

// Server is the FTP server.
//
// It listens for control connections and runs one session per connection.
// A fault inside one session is logged and ends that session only.
//
// Lifecycle:
//  1. Create server with NewServer()
//  2. Start with ListenAndServe() or Serve()
//  3. Stop with Shutdown() from another goroutine
//
// Basic example:
//
//	table := auth.NewTable(users)
//	driver, _ := server.NewFSDriver("/srv/ftp", table)
//	s, err := server.NewServer(":21", server.WithDriver(driver))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	log.Fatal(s.ListenAndServe())
type Server struct {
	// addr is the TCP address to listen on (e.g., ":21").
	addr string

	// driver authenticates users and provides their filesystem.
	driver Driver

	// logger is the logger instance.
	logger *slog.Logger

	// metrics receives command, transfer and connection events. May be nil.
	metrics MetricsCollector

	// bufferSize is the chunk size for RETR and STOR.
	// Defaults to 64 KiB.
	bufferSize int

	// dataTimeout bounds the active connect and the passive accept.
	// Defaults to 60 seconds.
	dataTimeout time.Duration

	// dataPort, if non-zero, is the local source port for active connections.
	dataPort int

	// settings configures passive listeners.
	settings Settings

	// maxIdleTime is the maximum time the control connection can be idle.
	// If 0, no idle timeout is applied.
	maxIdleTime time.Duration

	// maxConnections is the maximum number of simultaneous sessions.
	// If 0, there is no limit.
	maxConnections int

	// maxConnectionsPerIP is the maximum number of simultaneous sessions per IP.
	// If 0, there is no per-IP limit.
	maxConnectionsPerIP int

	// activeConns tracks the number of running sessions.
	activeConns atomic.Int32

	// connsByIP tracks the number of running sessions per IP address.
	connsByIP   map[string]int32
	connsByIPMu sync.Mutex

	// nextPassivePort rotates through the passive port range.
	nextPassivePort atomic.Int32

	// Shutdown handling
	mu         sync.Mutex
	listener   net.Listener
	conns      map[net.Conn]struct{}
	inShutdown atomic.Bool
}

// ErrServerClosed is returned by Serve and ListenAndServe after Shutdown.
var ErrServerClosed = errors.New("ftpd: Server closed")

const (
	// DefaultBufferSize is the transfer chunk size.
	DefaultBufferSize = 64 * 1024

	// DefaultDataTimeout bounds data connection establishment.
	DefaultDataTimeout = 60 * time.Second
)

// NewServer creates a new FTP server with the given address and options.
// The driver must be provided via the WithDriver option.
//
// Default values:
//   - Logger: slog.Default()
//   - BufferSize: 64 KiB
//   - DataTimeout: 60 seconds
//   - MaxIdleTime: 0 (no idle timeout)
//   - MaxConnections: 0 (unlimited)
func NewServer(addr string, options ...Option) (*Server, error) {
	s := &Server{
		addr:        addr,
		logger:      slog.Default(),
		bufferSize:  DefaultBufferSize,
		dataTimeout: DefaultDataTimeout,
		conns:       make(map[net.Conn]struct{}),
		connsByIP:   make(map[string]int32),
	}

	for _, opt := range options {
		if err := opt(s); err != nil {
			return nil, err
		}
	}

	if s.driver == nil {
		return nil, fmt.Errorf("driver is required (use WithDriver option)")
	}

	return s, nil
}

// ListenAndServe listens on the configured address and calls Serve.
func (s *Server) ListenAndServe() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}

	s.logger.Info("FTP server listening", "addr", ln.Addr().String())
	return s.Serve(ln)
}

// Shutdown stops the server.
//
// It closes the listener and immediately closes all control connections,
// which ends their sessions.
func (s *Server) Shutdown() error {
	s.inShutdown.Store(true)

	s.mu.Lock()
	ln := s.listener
	s.listener = nil
	conns := s.conns
	s.conns = make(map[net.Conn]struct{})
	s.mu.Unlock()

	var result *multierror.Error
	if ln != nil {
		if err := ln.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			result = multierror.Append(result, err)
		}
	}

	for conn := range maps.Keys(conns) {
		if err := conn.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			result = multierror.Append(result, err)
		}
	}

	return result.ErrorOrNil()
}

// Serve accepts incoming connections on the listener l.
// It blocks until the listener is closed or Shutdown is called.
func (s *Server) Serve(l net.Listener) error {
	s.mu.Lock()
	if s.inShutdown.Load() {
		s.mu.Unlock()
		l.Close()
		return ErrServerClosed
	}
	s.listener = l
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		if s.listener == l {
			s.listener = nil
		}
		s.mu.Unlock()
		l.Close()
	}()

	for {
		conn, err := l.Accept()
		if err != nil {
			if s.inShutdown.Load() || errors.Is(err, net.ErrClosed) {
				return ErrServerClosed
			}
			s.logger.Error("accept error", "error", err)
			continue
		}

		go s.handleConnection(conn)
	}
}

// Addr returns the listener address, or nil before Serve is called.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// handleConnection runs one control connection to completion.
func (s *Server) handleConnection(conn net.Conn) {
	if !s.trackConnection(conn, true) {
		return
	}
	defer func() {
		s.trackConnection(conn, false)
		conn.Close()
	}()

	ip := remoteIP(conn)

	if reason, msg := s.admit(ip); reason != "" {
		s.logger.Warn("connection_rejected",
			"remote_ip", ip,
			"reason", reason,
		)
		if s.metrics != nil {
			s.metrics.RecordConnection(false, reason)
		}
		fmt.Fprintf(conn, "%s\r\n", encodeReply(421, replyContext{arg: msg}))
		return
	}
	defer s.release(ip)

	if s.metrics != nil {
		s.metrics.RecordConnection(true, "accepted")
	}

	newSession(s, conn).serve()
}

// admit applies the connection limits. It returns a non-empty reason when
// the connection must be refused, with the text for the 421 reply.
func (s *Server) admit(ip string) (reason, msg string) {
	s.connsByIPMu.Lock()
	defer s.connsByIPMu.Unlock()

	if s.maxConnections > 0 && s.activeConns.Load() >= int32(s.maxConnections) {
		return "global_limit_reached", "Too many users, sorry."
	}
	if s.maxConnectionsPerIP > 0 && s.connsByIP[ip] >= int32(s.maxConnectionsPerIP) {
		return "per_ip_limit_reached", "Too many connections from your IP address."
	}

	s.activeConns.Add(1)
	s.connsByIP[ip]++
	return "", ""
}

func (s *Server) release(ip string) {
	s.activeConns.Add(-1)

	s.connsByIPMu.Lock()
	s.connsByIP[ip]--
	if s.connsByIP[ip] <= 0 {
		delete(s.connsByIP, ip)
	}
	s.connsByIPMu.Unlock()
}

// trackConnection returns false if we're shutting down.
func (s *Server) trackConnection(conn net.Conn, add bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !add {
		delete(s.conns, conn)
		return true
	}

	if s.inShutdown.Load() {
		conn.Close()
		return false
	}
	s.conns[conn] = struct{}{}
	return true
}

// remoteIP returns the IP part of the connection's remote address.
func remoteIP(conn net.Conn) string {
	remoteAddr := conn.RemoteAddr().String()
	ip, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		return remoteAddr
	}
	return ip
}

// ActiveSessions returns the number of admitted sessions currently running.
func (s *Server) ActiveSessions() int {
	return int(s.activeConns.Load())
}
