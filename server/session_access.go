package server

func (s *session) handleUSER(user string) {
	s.mu.Lock()
	s.user = user
	s.authenticated = false
	s.mu.Unlock()

	s.reply(331, "")
}

func (s *session) handlePASS(pass string) {
	user := s.username()
	if user == "" {
		s.reply(503, "")
		return
	}

	fs, err := s.server.driver.Authenticate(user, pass)
	if err != nil {
		s.mu.Lock()
		s.user = ""
		s.authenticated = false
		s.mu.Unlock()

		// Security audit: failed authentication
		s.log.Warn("authentication_failed",
			"user", user,
			"reason", err.Error(),
		)
		if s.server.metrics != nil {
			s.server.metrics.RecordAuthentication(false, user)
		}
		s.reply(530, "Login incorrect.")
		return
	}

	s.mu.Lock()
	s.fs = fs
	s.authenticated = true
	s.mu.Unlock()

	// Security audit: successful authentication
	s.log.Info("authentication_success", "user", user)
	if s.server.metrics != nil {
		s.server.metrics.RecordAuthentication(true, user)
	}
	s.replyCtx(230, replyContext{user: user})
}

// handleABOR flags the running transfer for abort. ABOR itself gets no
// reply; the transfer answers 551 once it notices the flag.
func (s *session) handleABOR() {
	s.abort.Store(true)
	s.log.Debug("transfer_abort_requested", "busy", s.busy.Load())
}
