package server

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEncodeReply(t *testing.T) {
	tests := []struct {
		code int
		rc   replyContext
		want string
	}{
		{150, replyContext{typeName: "BINARY", arg: "a.txt"}, "150 Opening BINARY mode data connection for a.txt"},
		{200, replyContext{arg: "I"}, "200 Type set to I"},
		{220, replyContext{host: "10.0.0.1"}, "220 10.0.0.1 FTP server ready"},
		{221, replyContext{}, "221 Goodbye"},
		{226, replyContext{}, "226 Transfer complete"},
		{227, replyContext{arg: "127,0,0,1,4,1"}, "227 Entering Passive Mode (127,0,0,1,4,1)"},
		{230, replyContext{user: "alice"}, "230 User alice logged in."},
		{250, replyContext{arg: "CWD"}, "250 CWD command successful"},
		{257, replyContext{arg: "/docs"}, `257 "/docs" is current directory`},
		{257, replyContext{arg: `/say "hi"`}, `257 "/say ""hi""" is current directory`},
		{331, replyContext{}, "331 Password required"},
		{421, replyContext{}, "421 Service not available, closing control connection"},
		{421, replyContext{arg: "Too many users, sorry."}, "421 Too many users, sorry."},
		{425, replyContext{arg: "PASV"}, "425 Can't open data connection [PASV]"},
		{500, replyContext{}, "500 Syntax error, command unrecognized"},
		{500, replyContext{arg: "Illegal PORT command"}, "500 Illegal PORT command"},
		{501, replyContext{}, "501 Syntax error in parameters or arguments"},
		{502, replyContext{}, "502 Command not implemented"},
		{503, replyContext{}, "503 Login with USER first"},
		{530, replyContext{}, "530 Not logged in"},
		{550, replyContext{arg: "/missing"}, "550 /missing"},
		{550, replyContext{}, "550 No such file or directory"},
		{551, replyContext{}, "551 Request action aborted."},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, encodeReply(tt.code, tt.rc))
	}
}

func TestEncodeReplyUnknownCode(t *testing.T) {
	assert.Panics(t, func() {
		encodeReply(999, replyContext{})
	})
}
