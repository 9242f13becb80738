package server

import (
	"bufio"
	"errors"
	"io"
)

const (
	// telnetIAC is Interpret As Command
	telnetIAC = 0xFF
	// telnetWILL negotiation command
	telnetWILL = 0xFB
	// telnetWONT negotiation command
	telnetWONT = 0xFC
	// telnetDO negotiation command
	telnetDO = 0xFD
	// telnetDONT negotiation command
	telnetDONT = 0xFE
	// telnetSB starts a subnegotiation
	telnetSB = 0xFA
	// telnetSE ends a subnegotiation
	telnetSE = 0xF0
)

// MaxCommandLength is the maximum length of a command line.
const MaxCommandLength = 4096

var errLineTooLong = errors.New("command too long")

// controlReader reads command lines from the control connection.
// Telnet commands are dropped, an escaped IAC IAC yields one 0xFF byte.
type controlReader struct {
	reader *bufio.Reader
}

func newControlReader(r io.Reader) *controlReader {
	return &controlReader{reader: bufio.NewReader(r)}
}

// ReadLine returns the next line without its CRLF or LF terminator.
// A partial line at end of stream is discarded and io.EOF returned.
func (c *controlReader) ReadLine() (string, error) {
	line := make([]byte, 0, 64)
	for {
		b, err := c.reader.ReadByte()
		if err != nil {
			return "", err
		}

		if b == telnetIAC {
			next, err := c.reader.ReadByte()
			if err != nil {
				return "", err
			}
			switch next {
			case telnetIAC:
				// escaped 0xFF, keep it
			case telnetWILL, telnetWONT, telnetDO, telnetDONT:
				// 3-byte sequence (IAC CMD OPT)
				if _, err := c.reader.ReadByte(); err != nil {
					return "", err
				}
				continue
			case telnetSB:
				if err := c.skipSubnegotiation(); err != nil {
					return "", err
				}
				continue
			default:
				continue
			}
		}

		if b == '\n' {
			if n := len(line); n > 0 && line[n-1] == '\r' {
				line = line[:n-1]
			}
			return string(line), nil
		}

		if len(line) >= MaxCommandLength {
			return "", errLineTooLong
		}
		line = append(line, b)
	}
}

// skipSubnegotiation discards everything up to and including IAC SE.
func (c *controlReader) skipSubnegotiation() error {
	for {
		b, err := c.reader.ReadByte()
		if err != nil {
			return err
		}
		if b != telnetIAC {
			continue
		}
		next, err := c.reader.ReadByte()
		if err != nil {
			return err
		}
		if next == telnetSE {
			return nil
		}
	}
}
