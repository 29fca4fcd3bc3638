//go:build linux

package main

import (
	"errors"
	"os"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"

	"github.com/packlab/bootstub"
	"github.com/packlab/bootstub/supervise"
)

var logger = newLogger()

// newLogger builds the diagnostics logger: logfmt on stderr, debug level
// gated by BOOTSTUB_DEBUG.
func newLogger() log.Logger {
	l := log.NewLogfmtLogger(log.NewSyncWriter(os.Stderr))
	opt := level.AllowWarn()
	if os.Getenv("BOOTSTUB_DEBUG") != "" {
		opt = level.AllowDebug()
	}
	return level.NewFilter(l, opt)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		level.Error(logger).Log("msg", "loader failed", "err", err)
		if errors.Is(err, supervise.ErrExecFailed) {
			os.Exit(bootstub.ExecFailStatus)
		}
		os.Exit(bootstub.FatalStatus)
	}
}
