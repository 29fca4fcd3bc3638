//go:build linux

package elfpatch

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// Mapping owns a memory mapping of a whole file. Writable mappings are
// shared so that mutations land on disk; read-only mappings are private.
type Mapping struct {
	data     []byte
	writable bool
}

// Acquire maps the file at path in its entirety. The underlying descriptor
// is closed before Acquire returns; the mapping keeps the pages alive until
// Release.
func Acquire(path string, writable bool) (*Mapping, error) {
	flags := os.O_RDONLY
	if writable {
		flags = os.O_RDWR
	}
	f, err := os.OpenFile(path, flags, 0)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	size := info.Size()
	if size <= 0 {
		return nil, fmt.Errorf("map %s: file is empty", path)
	}

	prot := unix.PROT_READ
	mapFlags := unix.MAP_PRIVATE
	if writable {
		prot |= unix.PROT_WRITE
		mapFlags = unix.MAP_SHARED
	}
	data, err := unix.Mmap(int(f.Fd()), 0, int(size), prot, mapFlags)
	if err != nil {
		return nil, fmt.Errorf("mmap %s: %w", path, err)
	}

	return &Mapping{data: data, writable: writable}, nil
}

// Bytes returns the mapped region. The slice is valid only until Release.
func (m *Mapping) Bytes() []byte {
	return m.data
}

// Writable reports whether mutations through Bytes reach the file.
func (m *Mapping) Writable() bool {
	return m.writable
}

// Release unmaps the region. Calling Release on an already-released mapping
// is a no-op.
func (m *Mapping) Release() error {
	if m == nil || m.data == nil {
		return nil
	}
	data := m.data
	m.data = nil
	if err := unix.Munmap(data); err != nil {
		return fmt.Errorf("munmap: %w", err)
	}
	return nil
}
