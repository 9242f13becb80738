package server

import "time"

// MetricsCollector is an optional interface for collecting server metrics.
// The metrics package provides a Prometheus implementation.
//
// All methods are called from session goroutines and should not block.
type MetricsCollector interface {
	// RecordCommand records a dispatched command.
	// cmd is the command verb (e.g., "CWD", "RETR").
	// code is the final reply code sent for it.
	// duration is how long the command took to execute.
	RecordCommand(cmd string, code int, duration time.Duration)

	// RecordTransfer records a data transfer.
	// operation is "RETR", "STOR" or "LIST".
	// bytes is the number of bytes moved over the data connection.
	// outcome is "complete", "aborted" or "failed".
	RecordTransfer(operation string, bytes int64, outcome string, duration time.Duration)

	// RecordConnection records a control connection attempt.
	// reason is "accepted", "global_limit_reached" or "per_ip_limit_reached".
	RecordConnection(accepted bool, reason string)

	// RecordAuthentication records a PASS attempt.
	RecordAuthentication(success bool, user string)
}
