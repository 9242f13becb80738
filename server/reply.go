package server

import (
	"fmt"
	"strings"
)

// replyContext carries the values some reply texts substitute.
type replyContext struct {
	arg      string // command label, type letter, address tuple, directory...
	typeName string // ASCII or BINARY
	user     string
	host     string
}

// encodeReply returns the wire line for code, without the line terminator.
//
// An unknown code is a programming error and panics.
func encodeReply(code int, rc replyContext) string {
	var msg string
	switch code {
	case 150:
		msg = fmt.Sprintf("Opening %s mode data connection for %s", rc.typeName, rc.arg)
	case 200:
		msg = "Type set to " + rc.arg
	case 220:
		msg = rc.host + " FTP server ready"
	case 221:
		msg = "Goodbye"
	case 226:
		msg = "Transfer complete"
	case 227:
		msg = "Entering Passive Mode (" + rc.arg + ")"
	case 230:
		msg = fmt.Sprintf("User %s logged in.", rc.user)
	case 250:
		msg = rc.arg + " command successful"
	case 257:
		// RFC 959 quotes embedded double quotes by doubling them.
		msg = `"` + strings.ReplaceAll(rc.arg, `"`, `""`) + `" is current directory`
	case 331:
		msg = "Password required"
	case 421:
		msg = orDefault(rc.arg, "Service not available, closing control connection")
	case 425:
		msg = "Can't open data connection [" + rc.arg + "]"
	case 500:
		msg = orDefault(rc.arg, "Syntax error, command unrecognized")
	case 501:
		msg = orDefault(rc.arg, "Syntax error in parameters or arguments")
	case 502:
		msg = "Command not implemented"
	case 503:
		msg = "Login with USER first"
	case 530:
		msg = orDefault(rc.arg, "Not logged in")
	case 550:
		msg = orDefault(rc.arg, "No such file or directory")
	case 551:
		msg = orDefault(rc.arg, "Request action aborted.")
	default:
		panic(fmt.Sprintf("ftpd: unknown reply code %d", code))
	}
	return fmt.Sprintf("%d %s", code, msg)
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
