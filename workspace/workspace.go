//go:build linux

// Package workspace manages the private per-run extraction directory.
package workspace

import (
	"fmt"
	"os"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
)

// Prefix of every workspace directory under the system temp root.
const dirPattern = "bootstub-*"

// Create makes a uniquely-named directory under the system temp root.
// There is no fallback location; concurrent runs always obtain distinct
// directories and a name is never reused.
func Create() (string, error) {
	dir, err := os.MkdirTemp(os.TempDir(), dirPattern)
	if err != nil {
		return "", fmt.Errorf("workspace: create: %w", err)
	}
	return dir, nil
}

// Destroy removes the workspace tree. By the time cleanup runs the child's
// result is already determined, so removal failure is logged and swallowed;
// an already-absent directory is a silent success.
func Destroy(logger log.Logger, dir string) {
	if err := os.RemoveAll(dir); err != nil {
		level.Warn(logger).Log("msg", "failed to remove workspace", "dir", dir, "err", err)
		return
	}
	level.Debug(logger).Log("msg", "removed workspace", "dir", dir)
}
