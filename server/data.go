package server

import (
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
)

// errTransferAborted is returned by a transfer body that saw the abort flag.
var errTransferAborted = errors.New("transfer aborted")

// dataConnError marks a failure on the data connection itself, as opposed
// to the filesystem side of a transfer.
type dataConnError struct {
	err error
}

func (e *dataConnError) Error() string { return "data connection: " + e.err.Error() }
func (e *dataConnError) Unwrap() error { return e.err }

// transferBody moves data over an established data connection and returns
// the number of bytes sent or received on it.
type transferBody func(conn net.Conn) (int64, error)

// withDataConnection runs body over a fresh data connection and answers
// the client. op names the command in logs and metrics; label is shown in
// the 150 reply.
//
// Reply sequence:
//   - 425 when neither PORT nor PASV was issued
//   - 150, then the connection is established
//   - 425 when it cannot be established, 551 on timeout
//   - 226 when body succeeds, 551 when it was aborted or the data
//     connection broke
//
// Any other body error is returned to the caller as a session fault.
// Whatever happens, PORT and PASV state and the abort flag are cleared,
// including on the early 425.
func (s *session) withDataConnection(op, label string, body transferBody) error {
	s.dataMu.Lock()
	active, pasv := s.activeAddr, s.pasvList
	s.dataMu.Unlock()

	if active == "" && pasv == nil {
		// Still ends the lifecycle: a pending ABOR is dropped here.
		s.abort.Store(false)
		s.reply(425, op)
		return nil
	}

	s.busy.Store(true)
	defer s.resetDataState()

	s.replyCtx(150, replyContext{arg: label, typeName: s.transferType})

	conn, err := s.openDataConn(active, pasv)
	if err != nil {
		switch {
		case s.ctx.Err() != nil:
		case isTimeout(err):
			s.log.Info("data_connection_timeout", "cmd", op, "timeout", s.server.dataTimeout)
			s.reply(551, "")
		default:
			target := active
			if target == "" {
				target = "PASV"
			}
			s.log.Warn("data_connection_failed", "cmd", op, "target", target, "error", err)
			s.reply(425, target)
		}
		return nil
	}

	s.dataMu.Lock()
	s.dataConn = conn
	s.dataMu.Unlock()

	start := time.Now()
	n, err := body(conn)
	duration := time.Since(start)
	s.closeDataConn()

	if s.ctx.Err() != nil {
		return nil
	}

	var dce *dataConnError
	switch {
	case err == nil:
		s.logTransfer(op, label, n, duration)
		s.recordTransfer(op, n, "complete", duration)
		s.reply(226, "")
	case errors.Is(err, errTransferAborted), errors.As(err, &dce), isTimeout(err):
		s.log.Info("transfer_aborted",
			"user", s.username(),
			"operation", op,
			"path", label,
			"bytes", n,
			"reason", err.Error(),
		)
		s.recordTransfer(op, n, "aborted", duration)
		s.reply(551, "")
	default:
		s.recordTransfer(op, n, "failed", duration)
		return fmt.Errorf("%s %s: %w", op, label, err)
	}
	return nil
}

// openDataConn dials the PORT target or accepts on the PASV listener,
// bounded by the data timeout.
func (s *session) openDataConn(active string, pasv net.Listener) (net.Conn, error) {
	if active != "" {
		dialer := net.Dialer{Timeout: s.server.dataTimeout}
		if s.server.dataPort > 0 {
			dialer.LocalAddr = &net.TCPAddr{Port: s.server.dataPort}
		}
		s.log.Debug("dialing active connection", "addr", active)
		return dialer.DialContext(s.ctx, "tcp", active)
	}

	s.log.Debug("waiting for passive connection", "addr", pasv.Addr().String())
	if tl, ok := pasv.(*net.TCPListener); ok {
		_ = tl.SetDeadline(time.Now().Add(s.server.dataTimeout))
	}
	return pasv.Accept()
}

func (s *session) closeDataConn() {
	s.dataMu.Lock()
	defer s.dataMu.Unlock()
	if s.dataConn != nil {
		s.dataConn.Close()
		s.dataConn = nil
	}
}

// resetDataState ends a data connection lifecycle.
func (s *session) resetDataState() {
	s.dataMu.Lock()
	if s.dataConn != nil {
		s.dataConn.Close()
		s.dataConn = nil
	}
	if s.pasvList != nil {
		s.pasvList.Close()
		s.pasvList = nil
	}
	s.activeAddr = ""
	s.dataMu.Unlock()

	s.abort.Store(false)
	s.busy.Store(false)
}

// copyChunks copies src to dst one buffer at a time, checking the abort
// flag after every read. upload tells which side is the data connection.
func (s *session) copyChunks(dst io.Writer, src io.Reader, upload bool) (int64, error) {
	buf := make([]byte, s.server.bufferSize)
	var total int64
	for {
		n, rerr := src.Read(buf)
		if n > 0 {
			if s.abort.Load() {
				return total, errTransferAborted
			}
			w, werr := dst.Write(buf[:n])
			if upload {
				total += int64(n)
			} else {
				total += int64(w)
			}
			if werr != nil {
				if upload {
					return total, werr
				}
				return total, &dataConnError{werr}
			}
		}
		if rerr == io.EOF {
			return total, nil
		}
		if rerr != nil {
			if upload {
				return total, &dataConnError{rerr}
			}
			return total, rerr
		}
	}
}

// logTransfer logs a completed transfer with its throughput.
func (s *session) logTransfer(operation, path string, bytes int64, duration time.Duration) {
	rate := "n/a"
	if secs := duration.Seconds(); secs > 0 {
		rate = humanize.IBytes(uint64(float64(bytes)/secs)) + "/s"
	}
	s.log.Info("transfer_complete",
		"user", s.username(),
		"operation", operation,
		"path", path,
		"bytes", bytes,
		"size", humanize.IBytes(uint64(bytes)),
		"duration_ms", duration.Milliseconds(),
		"throughput", rate,
	)
}

func (s *session) recordTransfer(operation string, bytes int64, outcome string, duration time.Duration) {
	if s.server.metrics != nil {
		s.server.metrics.RecordTransfer(operation, bytes, outcome, duration)
	}
}

// parseHostPort decodes the PORT argument h1,h2,h3,h4,p1,p2.
func parseHostPort(arg string) (string, error) {
	fields := strings.Split(arg, ",")
	if len(fields) != 6 {
		return "", fmt.Errorf("expected 6 fields, got %d", len(fields))
	}

	var v [6]int
	for i, f := range fields {
		n, err := strconv.Atoi(strings.TrimSpace(f))
		if err != nil {
			return "", fmt.Errorf("field %d: %w", i+1, err)
		}
		if n < 0 || n > 255 {
			return "", fmt.Errorf("field %d out of range: %d", i+1, n)
		}
		v[i] = n
	}

	host := fmt.Sprintf("%d.%d.%d.%d", v[0], v[1], v[2], v[3])
	port := v[4]<<8 | v[5]
	return net.JoinHostPort(host, strconv.Itoa(port)), nil
}

// formatHostPort encodes an IPv4 address and port for a 227 reply.
func formatHostPort(ip net.IP, port int) string {
	ip4 := ip.To4()
	return fmt.Sprintf("%d,%d,%d,%d,%d,%d", ip4[0], ip4[1], ip4[2], ip4[3], port>>8, port&0xff)
}
