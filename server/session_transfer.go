package server

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
)

// errNoPassiveIP is returned when the address to advertise in a 227 reply
// is not an IPv4 address.
var errNoPassiveIP = errors.New("no IPv4 address to advertise")

func (s *session) handleTYPE(arg string) error {
	switch arg {
	case "A":
		s.transferType = "ASCII"
	case "I":
		s.transferType = "BINARY"
	default:
		s.reply(501, "")
		return nil
	}
	s.reply(200, arg)
	return nil
}

// handlePORT records the active mode target. A malformed argument is not a
// client error here: it ends the session.
func (s *session) handlePORT(arg string) error {
	s.dataMu.Lock()
	passive := s.pasvList != nil
	s.dataMu.Unlock()

	if passive {
		s.reply(500, "Illegal PORT command")
		return nil
	}

	addr, err := parseHostPort(arg)
	if err != nil {
		return fmt.Errorf("PORT %q: %w", arg, err)
	}

	s.dataMu.Lock()
	s.activeAddr = addr
	s.dataMu.Unlock()

	s.reply(250, "PORT")
	return nil
}

func (s *session) handlePASV(string) error {
	s.dataMu.Lock()
	active := s.activeAddr != ""
	old := s.pasvList
	s.pasvList = nil
	s.dataMu.Unlock()

	if active {
		s.reply(500, "Illegal PASV command")
		return nil
	}
	if old != nil {
		old.Close()
	}

	ln, err := s.listenPassive()
	if err != nil {
		s.log.Warn("passive listen failed", "error", err)
		s.reply(425, "PASV")
		return nil
	}

	ip, err := s.passiveIP()
	if err != nil {
		ln.Close()
		s.log.Warn("passive address unavailable", "error", err)
		s.reply(425, "PASV")
		return nil
	}

	s.dataMu.Lock()
	s.pasvList = ln
	s.dataMu.Unlock()

	port := ln.Addr().(*net.TCPAddr).Port
	s.log.Debug("passive listener opened", "addr", ln.Addr().String())
	s.reply(227, formatHostPort(ip, port))
	return nil
}

// listenPassive binds a listener on the control connection's local address,
// either on an ephemeral port or on the next free port of the configured
// range.
func (s *session) listenPassive() (net.Listener, error) {
	minPort, maxPort := s.server.settings.PasvMinPort, s.server.settings.PasvMaxPort
	if minPort <= 0 || maxPort < minPort {
		return net.Listen("tcp", net.JoinHostPort(s.localIP, "0"))
	}

	rangeLen := int32(maxPort - minPort + 1)

	// Round-robin start so concurrent sessions spread over the range.
	start := s.server.nextPassivePort.Add(1)

	for i := int32(0); i < rangeLen; i++ {
		offset := (start + i) % rangeLen
		if offset < 0 {
			offset += rangeLen
		}
		port := minPort + int(offset)
		ln, err := net.Listen("tcp", net.JoinHostPort(s.localIP, strconv.Itoa(port)))
		if err == nil {
			return ln, nil
		}
	}
	return nil, fmt.Errorf("no available ports in range [%d, %d]", minPort, maxPort)
}

// passiveIP returns the address advertised in a 227 reply: PublicHost when
// configured, otherwise the local end of the control connection.
func (s *session) passiveIP() (net.IP, error) {
	host := s.localIP
	if s.server.settings.PublicHost != "" {
		host = s.server.settings.PublicHost
	}

	if ip := net.ParseIP(host); ip != nil {
		if ip4 := ip.To4(); ip4 != nil {
			return ip4, nil
		}
		return nil, fmt.Errorf("%s: %w", host, errNoPassiveIP)
	}

	ips, err := net.LookupIP(host)
	if err != nil {
		return nil, err
	}
	for _, ip := range ips {
		if ip4 := ip.To4(); ip4 != nil {
			return ip4, nil
		}
	}
	return nil, fmt.Errorf("%s: %w", host, errNoPassiveIP)
}

func (s *session) handleRETR(arg string) error {
	fs, _ := s.userFs()
	path := s.resolve(arg)

	return s.withDataConnection("RETR", arg, func(conn net.Conn) (int64, error) {
		f, err := fs.Open(path)
		if err != nil {
			return 0, err
		}
		defer f.Close()

		return s.copyChunks(conn, f, false)
	})
}

// handleSTOR writes the upload to path. An aborted upload leaves whatever
// was written so far.
func (s *session) handleSTOR(arg string) error {
	fs, _ := s.userFs()
	path := s.resolve(arg)

	return s.withDataConnection("STOR", arg, func(conn net.Conn) (int64, error) {
		f, err := fs.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
		if err != nil {
			return 0, err
		}

		n, err := s.copyChunks(f, conn, true)
		if cerr := f.Close(); err == nil && cerr != nil {
			err = cerr
		}
		return n, err
	})
}
