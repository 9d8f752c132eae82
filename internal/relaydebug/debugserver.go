// Package relaydebug exposes runtime diagnostics of a running relayer.
package relaydebug

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/http/pprof"
	"runtime"
	"runtime/debug"

	"go.uber.org/zap"
)

// StartDebugServer serves pprof under /debug/pprof and the build information
// of the binary under /debug/buildinfo, accepting connections on ln.
// The server is forcefully shut down when ctx finishes.
func StartDebugServer(ctx context.Context, log *zap.Logger, ln net.Listener) {
	mux := http.NewServeMux()
	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	mux.HandleFunc("/debug/buildinfo", serveBuildInfo)

	// Anything else lands on the pprof index.
	mux.Handle("/", http.RedirectHandler("/debug/pprof/", http.StatusSeeOther))

	srv := &http.Server{
		Handler:  mux,
		ErrorLog: zap.NewStdLog(log),
		BaseContext: func(net.Listener) context.Context {
			return ctx
		},
	}

	go func() {
		if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			log.Warn("Debug server stopped", zap.Error(err))
		}
	}()

	go func() {
		<-ctx.Done()
		srv.Close()
	}()
}

func serveBuildInfo(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	fmt.Fprintf(w, "commit\t%s\n", BuildCommit())
	fmt.Fprintf(w, "runtime\t%s %s/%s\n", runtime.Version(), runtime.GOOS, runtime.GOARCH)
	if bi, ok := debug.ReadBuildInfo(); ok {
		fmt.Fprint(w, bi.String())
	}
}
