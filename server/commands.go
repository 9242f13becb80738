package server

// commandHandlers maps dispatched FTP commands to their handlers.
// USER, PASS, QUIT and ABOR never get here; the session reader handles
// them inline.
var commandHandlers = map[string]func(*session, string) error{
	// Working directory
	"CDUP": (*session).handleCDUP,
	"CWD":  (*session).handleCWD,
	"PWD":  (*session).handlePWD,

	// Transfer parameters
	"TYPE": (*session).handleTYPE,
	"PORT": (*session).handlePORT,
	"PASV": (*session).handlePASV,

	// Data connection commands
	"LIST": (*session).handleLIST,
	"RETR": (*session).handleRETR,
	"STOR": (*session).handleSTOR,
}

// dispatch runs one command on the worker goroutine. A returned error is
// an unexpected fault that ends the session; everything the client did
// wrong is answered with a reply instead.
func (s *session) dispatch(verb, arg string) error {
	if _, ok := s.userFs(); !ok {
		s.reply(530, "")
		return nil
	}

	handler, ok := commandHandlers[verb]
	if !ok {
		s.reply(502, "")
		return nil
	}
	return handler(s, arg)
}
