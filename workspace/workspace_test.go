//go:build linux

package workspace

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/go-kit/log"
)

func TestCreateDestroy(t *testing.T) {
	dir, err := Create()
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if !strings.HasPrefix(filepath.Base(dir), "bootstub-") {
		t.Fatalf("unexpected workspace name: %s", dir)
	}
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		t.Fatalf("workspace not a directory: %v", err)
	}

	// Destroy removes contents recursively.
	if err := os.WriteFile(filepath.Join(dir, "member"), []byte("x"), 0o600); err != nil {
		t.Fatalf("write member: %v", err)
	}
	Destroy(log.NewNopLogger(), dir)
	if _, err := os.Stat(dir); !os.IsNotExist(err) {
		t.Fatalf("workspace still present after Destroy: %v", err)
	}
}

func TestDestroyMissingDirIsSafe(t *testing.T) {
	Destroy(log.NewNopLogger(), filepath.Join(t.TempDir(), "never-created"))
}

func TestCreateIsolation(t *testing.T) {
	a, err := Create()
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	t.Cleanup(func() { Destroy(log.NewNopLogger(), a) })

	b, err := Create()
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	t.Cleanup(func() { Destroy(log.NewNopLogger(), b) })

	if a == b {
		t.Fatalf("two workspaces share a path: %s", a)
	}
}
