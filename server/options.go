package server

import (
	"fmt"
	"log/slog"
	"time"
)

// Option is a functional option for configuring an FTP server.
type Option func(*Server) error

// WithDriver sets the backend driver for authentication and file access.
// This option is required and can only be set once.
//
// Example:
//
//	driver, _ := server.NewFSDriver("/srv/ftp", table)
//	s, _ := server.NewServer(":21", server.WithDriver(driver))
func WithDriver(driver Driver) Option {
	return func(s *Server) error {
		if s.driver != nil {
			return fmt.Errorf("driver already set")
		}
		s.driver = driver
		return nil
	}
}

// WithLogger sets a custom logger for the server.
// If not specified, slog.Default() is used.
//
// Example with debug logging:
//
//	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
//	    Level: slog.LevelDebug,
//	}))
//	s, _ := server.NewServer(":21",
//	    server.WithDriver(driver),
//	    server.WithLogger(logger),
//	)
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) error {
		if logger == nil {
			return fmt.Errorf("logger must not be nil")
		}
		s.logger = logger
		return nil
	}
}

// WithMetrics sets the collector notified of commands, transfers,
// connections and logins.
func WithMetrics(collector MetricsCollector) Option {
	return func(s *Server) error {
		s.metrics = collector
		return nil
	}
}

// WithBufferSize sets the chunk size used by RETR and STOR. The abort
// flag is checked once per chunk.
func WithBufferSize(size int) Option {
	return func(s *Server) error {
		if size <= 0 {
			return fmt.Errorf("buffer size must be positive, got %d", size)
		}
		s.bufferSize = size
		return nil
	}
}

// WithDataTimeout sets how long to wait for the data connection, both
// when dialing the client (PORT) and when accepting from it (PASV).
func WithDataTimeout(d time.Duration) Option {
	return func(s *Server) error {
		if d <= 0 {
			return fmt.Errorf("data timeout must be positive, got %v", d)
		}
		s.dataTimeout = d
		return nil
	}
}

// WithDataPort sets the local source port used for active mode
// connections. 0 lets the OS pick one.
func WithDataPort(port int) Option {
	return func(s *Server) error {
		if port < 0 || port > 65535 {
			return fmt.Errorf("invalid data port %d", port)
		}
		s.dataPort = port
		return nil
	}
}

// WithPassive configures the address advertised by PASV and the port range
// used for passive listeners.
//
// Example:
//
//	s, _ := server.NewServer(":21",
//	    server.WithDriver(driver),
//	    server.WithPassive(server.Settings{
//	        PublicHost:  "203.0.113.7",
//	        PasvMinPort: 30000,
//	        PasvMaxPort: 30100,
//	    }),
//	)
func WithPassive(settings Settings) Option {
	return func(s *Server) error {
		if settings.PasvMinPort < 0 || settings.PasvMaxPort > 65535 {
			return fmt.Errorf("invalid passive port range [%d, %d]", settings.PasvMinPort, settings.PasvMaxPort)
		}
		if settings.PasvMinPort > 0 && settings.PasvMaxPort < settings.PasvMinPort {
			return fmt.Errorf("invalid passive port range [%d, %d]", settings.PasvMinPort, settings.PasvMaxPort)
		}
		s.settings = settings
		return nil
	}
}

// WithMaxIdleTime sets the maximum time the control connection can stay
// silent before the session is closed. 0 disables the timeout.
func WithMaxIdleTime(duration time.Duration) Option {
	return func(s *Server) error {
		s.maxIdleTime = duration
		return nil
	}
}

// WithMaxConnections sets the maximum number of simultaneous sessions, in
// total and per client IP. 0 means no limit.
//
// When a limit is reached, new connections receive a 421 reply.
func WithMaxConnections(max, perIP int) Option {
	return func(s *Server) error {
		s.maxConnections = max
		s.maxConnectionsPerIP = perIP
		return nil
	}
}
