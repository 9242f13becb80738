package metrics

import (
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/handlers"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRouter serves:
//   - GET /metrics - Prometheus scrape endpoint for gatherer
//   - GET /healthz - Liveness probe
//
// Requests are logged in Apache combined format to accessLog, and panics
// are recovered.
func NewRouter(gatherer prometheus.Gatherer, accessLog io.Writer, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()

	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = io.WriteString(w, "ok\n")
	})

	recovery := handlers.RecoveryHandler(
		handlers.RecoveryLogger(slogRecoveryLogger{logger}),
		handlers.PrintRecoveryStack(false),
	)
	return recovery(handlers.CombinedLoggingHandler(accessLog, r))
}

// NewHTTPServer returns an http.Server for the metrics endpoint on addr.
func NewHTTPServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
}

// slogRecoveryLogger adapts slog to handlers.RecoveryHandlerLogger.
type slogRecoveryLogger struct {
	logger *slog.Logger
}

func (l slogRecoveryLogger) Println(v ...interface{}) {
	l.logger.Error("metrics handler panic", "panic", v)
}
