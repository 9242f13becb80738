// Package metrics exports FTP server metrics to Prometheus.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/gonzalop/ftpd/server"
)

var _ server.MetricsCollector = (*Collector)(nil)

// Collector is the Prometheus implementation of server.MetricsCollector.
type Collector struct {
	commands        *prometheus.CounterVec
	commandDuration *prometheus.HistogramVec
	transfers       *prometheus.CounterVec
	transferBytes   *prometheus.CounterVec
	transferTime    *prometheus.HistogramVec
	connections     *prometheus.CounterVec
	authentications *prometheus.CounterVec

	reg prometheus.Registerer
}

// New registers the ftpd metrics with reg.
func New(reg prometheus.Registerer) *Collector {
	return &Collector{
		reg: reg,
		commands: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "ftpd_commands_total",
				Help: "Total number of dispatched commands by verb and reply code",
			},
			[]string{"command", "code"},
		),
		commandDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ftpd_command_duration_seconds",
				Help:    "Time spent executing dispatched commands",
				Buckets: prometheus.ExponentialBuckets(0.0005, 4, 10), // 0.5ms .. ~131s
			},
			[]string{"command"},
		),
		transfers: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "ftpd_transfers_total",
				Help: "Total number of data transfers by operation and outcome",
			},
			[]string{"operation", "outcome"}, // outcome: complete, aborted, failed
		),
		transferBytes: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "ftpd_transfer_bytes_total",
				Help: "Total bytes moved over data connections",
			},
			[]string{"operation"},
		),
		transferTime: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ftpd_transfer_duration_seconds",
				Help:    "Duration of data transfers",
				Buckets: prometheus.ExponentialBuckets(0.001, 4, 10),
			},
			[]string{"operation"},
		),
		connections: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "ftpd_connections_total",
				Help: "Control connections by admission result",
			},
			[]string{"result", "reason"},
		),
		authentications: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "ftpd_authentications_total",
				Help: "Login attempts by result",
			},
			[]string{"result"},
		),
	}
}

// TrackSessions exports the value of active as the ftpd_active_sessions
// gauge.
func (c *Collector) TrackSessions(active func() int) {
	promauto.With(c.reg).NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "ftpd_active_sessions",
			Help: "Number of running FTP sessions",
		},
		func() float64 { return float64(active()) },
	)
}

func (c *Collector) RecordCommand(cmd string, code int, duration time.Duration) {
	c.commands.WithLabelValues(cmd, strconv.Itoa(code)).Inc()
	c.commandDuration.WithLabelValues(cmd).Observe(duration.Seconds())
}

func (c *Collector) RecordTransfer(operation string, bytes int64, outcome string, duration time.Duration) {
	c.transfers.WithLabelValues(operation, outcome).Inc()
	c.transferBytes.WithLabelValues(operation).Add(float64(bytes))
	c.transferTime.WithLabelValues(operation).Observe(duration.Seconds())
}

func (c *Collector) RecordConnection(accepted bool, reason string) {
	c.connections.WithLabelValues(result(accepted), reason).Inc()
}

// RecordAuthentication counts a login attempt. The user name is not a
// label.
func (c *Collector) RecordAuthentication(success bool, _ string) {
	c.authentications.WithLabelValues(result(success)).Inc()
}

func result(ok bool) string {
	if ok {
		return "success"
	}
	return "failure"
}
