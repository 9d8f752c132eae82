// Package relayermetrics serves the relay metrics of a running relayer over HTTP.
package relayermetrics

import (
	"context"
	"net"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// StartMetricsServer starts a metrics server in a background goroutine,
// accepting connections on the given listener.
// /metrics serves the relay metrics in registry together with the Go runtime
// and process metrics; /relayer/metrics serves the relay metrics alone.
// Any HTTP logging will be written at info level to the given logger.
// The server will be forcefully shut down when ctx finishes.
func StartMetricsServer(ctx context.Context, log *zap.Logger, ln net.Listener, registry *prometheus.Registry) {
	mux := http.NewServeMux()

	opts := promhttp.HandlerOpts{ErrorLog: zap.NewStdLog(log)}
	all := prometheus.Gatherers{prometheus.DefaultGatherer, registry}
	mux.Handle("/metrics", promhttp.HandlerFor(all, opts))
	mux.Handle("/relayer/metrics", promhttp.HandlerFor(registry, opts))

	srv := &http.Server{
		Handler:  mux,
		ErrorLog: zap.NewStdLog(log),
		BaseContext: func(net.Listener) context.Context {
			return ctx
		},
	}

	go srv.Serve(ln)

	go func() {
		<-ctx.Done()
		srv.Close()
	}()
}
