//go:build linux

// Package extract materializes the loader's embedded xz-compressed tar
// archive into the run's private workspace.
package extract

import (
	"archive/tar"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
)

// ExtractAll decompresses the embedded archive and writes every member
// under homedir, preserving permission bits and relative paths. Member
// paths that are absolute or escape homedir are rejected. Any decode or
// materialization error aborts the extraction; there is no partial-success
// mode.
func ExtractAll(logger log.Logger, compressed []byte, homedir string) error {
	st, err := newStream(compressed)
	if err != nil {
		return err
	}
	defer st.Close()

	tr := tar.NewReader(st)
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("extract: read archive member: %w", err)
		}
		if err := writeMember(logger, tr, hdr, homedir); err != nil {
			return err
		}
	}
}

func writeMember(logger log.Logger, tr *tar.Reader, hdr *tar.Header, homedir string) error {
	name := filepath.Clean(hdr.Name)
	if !filepath.IsLocal(name) {
		return fmt.Errorf("extract: archive member %q escapes the workspace", hdr.Name)
	}
	dest := filepath.Join(homedir, name)
	perm := fs.FileMode(hdr.Mode).Perm()

	level.Debug(logger).Log("msg", "extracting member", "name", name, "type", hdr.Typeflag, "mode", fmt.Sprintf("%#o", perm))

	switch hdr.Typeflag {
	case tar.TypeDir:
		if err := os.MkdirAll(dest, perm); err != nil {
			return fmt.Errorf("extract: create directory %s: %w", name, err)
		}
		// MkdirAll is subject to the umask; pin the archived bits.
		if err := os.Chmod(dest, perm); err != nil {
			return fmt.Errorf("extract: chmod %s: %w", name, err)
		}

	case tar.TypeReg:
		if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
			return fmt.Errorf("extract: create parent of %s: %w", name, err)
		}
		f, err := os.OpenFile(dest, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, perm)
		if err != nil {
			return fmt.Errorf("extract: create %s: %w", name, err)
		}
		_, err = io.Copy(f, tr)
		if cerr := f.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			return fmt.Errorf("extract: write %s: %w", name, err)
		}
		if err := os.Chmod(dest, perm); err != nil {
			return fmt.Errorf("extract: chmod %s: %w", name, err)
		}

	case tar.TypeSymlink:
		if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
			return fmt.Errorf("extract: create parent of %s: %w", name, err)
		}
		if err := os.Symlink(hdr.Linkname, dest); err != nil {
			return fmt.Errorf("extract: symlink %s: %w", name, err)
		}

	default:
		return fmt.Errorf("extract: archive member %q has unsupported type %d", hdr.Name, hdr.Typeflag)
	}
	return nil
}
