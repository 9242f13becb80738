package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"runtime/debug"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"github.com/spf13/afero"
)

// commandQueueDepth bounds how many commands may wait for the worker.
const commandQueueDepth = 16

// session represents an FTP client session.
type session struct {
	server *Server
	conn   net.Conn
	lines  *controlReader
	log    *slog.Logger
	wmu    sync.Mutex // Serializes replies from the reader and the worker

	// Session tracking
	sessionID string
	remoteIP  string
	localIP   string

	// Login state. Written by the reader goroutine (USER/PASS), read by
	// the worker, so it is guarded by mu.
	mu            sync.Mutex
	user          string
	authenticated bool
	fs            afero.Fs

	// Owned by the worker goroutine.
	cwd          vpath
	transferType string // ASCII or BINARY

	// Data connection state. Owned by the worker; close() reaches in under
	// dataMu to unblock an in-flight transfer.
	dataMu     sync.Mutex
	activeAddr string // host:port from PORT
	pasvList   net.Listener
	dataConn   net.Conn

	// abort is set by ABOR on the reader goroutine and polled by the
	// worker once per chunk or directory entry.
	abort atomic.Bool

	// busy is true while a data connection is open.
	busy atomic.Bool

	// lastCode is the most recent reply code, for metrics.
	lastCode atomic.Int32

	ctx        context.Context
	cancel     context.CancelFunc
	queue      chan command
	workerDone chan struct{}
	closeOnce  sync.Once
}

type command struct {
	verb string
	arg  string
}

// newSession creates a new session.
func newSession(server *Server, conn net.Conn) *session {
	sessionID := uuid.NewString()
	ip := remoteIP(conn)

	localIP, _, err := net.SplitHostPort(conn.LocalAddr().String())
	if err != nil {
		localIP = conn.LocalAddr().String()
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &session{
		server:       server,
		conn:         conn,
		lines:        newControlReader(conn),
		log:          server.logger.With("session_id", sessionID, "remote_ip", ip),
		sessionID:    sessionID,
		remoteIP:     ip,
		localIP:      localIP,
		transferType: "ASCII",
		ctx:          ctx,
		cancel:       cancel,
		queue:        make(chan command, commandQueueDepth),
		workerDone:   make(chan struct{}),
	}
}

// serve runs the session until QUIT, end of stream or a fault.
//
// Concurrency Model:
//
//  1. Reader (this goroutine): reads control lines. USER, PASS, QUIT and
//     ABOR are handled right here, so they stay responsive while a
//     transfer runs. Every other command goes to the queue and the reader
//     moves on to the next line without waiting.
//
//  2. Worker (runWorker): takes commands off the queue one at a time, in
//     arrival order, and runs the dispatcher. It may block for the whole
//     duration of a transfer.
//
//  3. Abort: ABOR sets the abort flag; the transfer loop in the worker
//     checks it once per buffer or directory entry and unwinds with a 551.
//
//  4. Faults: an unexpected error in the worker is logged and closes the
//     control connection, which ends the reader loop.
func (s *session) serve() {
	defer s.close()

	s.log.Info("session_started")
	s.replyCtx(220, replyContext{host: s.localIP})

	go s.runWorker()

	defer func() {
		if r := recover(); r != nil {
			s.log.Error("session_fault", "panic", r, "stack", string(debug.Stack()))
		}
	}()

	for {
		if s.server.maxIdleTime > 0 {
			_ = s.conn.SetReadDeadline(time.Now().Add(s.server.maxIdleTime))
		}

		line, err := s.lines.ReadLine()
		if err != nil {
			if isTimeout(err) && s.busy.Load() {
				continue
			}
			s.logReadError(err)
			return
		}

		verb, arg := parseCommand(line)
		if verb == "" {
			continue
		}

		logArg := arg
		if verb == "PASS" {
			logArg = "***"
		}
		s.log.Debug("command_received", "user", s.username(), "cmd", verb, "arg", logArg)

		switch verb {
		case "QUIT":
			s.reply(221, "")
			return
		case "USER":
			s.handleUSER(arg)
		case "PASS":
			s.handlePASS(arg)
		case "ABOR":
			s.handleABOR()
		default:
			select {
			case s.queue <- command{verb: verb, arg: arg}:
			case <-s.ctx.Done():
				return
			}
		}
	}
}

func (s *session) logReadError(err error) {
	switch {
	case errors.Is(err, errLineTooLong):
		s.reply(500, "Command line too long")
	case errors.Is(err, io.EOF), errors.Is(err, net.ErrClosed), s.ctx.Err() != nil:
	case isTimeout(err):
		s.log.Info("session_idle_timeout", "user", s.username())
	default:
		s.log.Warn("read error", "user", s.username(), "error", err)
	}
}

// parseCommand splits a control line at the first run of spaces.
func parseCommand(line string) (verb, arg string) {
	verb, arg, _ = strings.Cut(line, " ")
	return verb, strings.TrimLeft(arg, " ")
}

// runWorker executes queued commands one at a time.
func (s *session) runWorker() {
	defer close(s.workerDone)
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("session_fault", "panic", r, "stack", string(debug.Stack()))
			s.terminate()
		}
	}()

	for {
		select {
		case <-s.ctx.Done():
			return
		case cmd := <-s.queue:
			if s.ctx.Err() != nil {
				return
			}
			if err := s.execute(cmd); err != nil {
				s.log.Error("session_fault",
					"user", s.username(),
					"cmd", cmd.verb,
					"error", err,
				)
				s.terminate()
				return
			}
		}
	}
}

// execute runs one dispatched command and reports it to the metrics
// collector.
func (s *session) execute(cmd command) error {
	start := time.Now()
	err := s.dispatch(cmd.verb, cmd.arg)

	if s.server.metrics != nil {
		label := cmd.verb
		if _, ok := commandHandlers[label]; !ok {
			label = "UNKNOWN"
		}
		s.server.metrics.RecordCommand(label, int(s.lastCode.Load()), time.Since(start))
	}
	return err
}

// terminate cancels the session and closes the control connection.
// Safe to call more than once and from either goroutine.
func (s *session) terminate() {
	s.closeOnce.Do(func() {
		s.cancel()
		s.conn.Close()
	})
}

// close tears the session down: the worker is stopped and any data
// connection or passive listener is closed.
func (s *session) close() {
	s.terminate()
	s.abort.Store(true)

	s.dataMu.Lock()
	var result *multierror.Error
	if s.dataConn != nil {
		result = multierror.Append(result, s.dataConn.Close())
	}
	if s.pasvList != nil {
		result = multierror.Append(result, s.pasvList.Close())
	}
	s.dataMu.Unlock()

	<-s.workerDone

	if err := result.ErrorOrNil(); err != nil {
		s.log.Debug("data connection teardown", "error", err)
	}
	s.log.Debug("session closed", "user", s.username())
}

// username returns the current USER value.
func (s *session) username() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.user
}

// userFs returns the logged-in user's filesystem, or false if the session
// is not authenticated.
func (s *session) userFs() (afero.Fs, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fs, s.authenticated
}

// reply sends a reply whose only context value is arg.
func (s *session) reply(code int, arg string) {
	s.replyCtx(code, replyContext{arg: arg})
}

// replyCtx encodes and sends a reply to the client.
func (s *session) replyCtx(code int, rc replyContext) {
	line := encodeReply(code, rc)
	s.lastCode.Store(int32(code))

	s.wmu.Lock()
	defer s.wmu.Unlock()
	if _, err := fmt.Fprintf(s.conn, "%s\r\n", line); err != nil && s.ctx.Err() == nil {
		s.log.Debug("reply write failed", "code", code, "error", err)
	}
	s.log.Debug("reply_sent", "reply", line)
}

func isTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
