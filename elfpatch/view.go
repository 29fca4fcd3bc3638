//go:build linux

package elfpatch

import (
	"bytes"
	"debug/elf"
	"encoding/binary"
	"errors"
	"fmt"
)

var (
	// ErrBadMagic means the mapped bytes do not start with the ELF magic.
	ErrBadMagic = errors.New("elfpatch: bad ELF magic")

	// ErrNotFound means a requested program header, section, or dynamic
	// tag is absent. Absence is not itself fatal; callers decide.
	ErrNotFound = errors.New("elfpatch: not found")
)

// Fixed structure sizes for the 64-bit layout. Binaries declaring any other
// entry size are rejected outright.
const (
	ehdrSize = 64
	phdrSize = 56
	shdrSize = 64
	dynSize  = 16
)

// ELF header field offsets (ELF64).
const (
	offPhoff     = 0x20
	offShoff     = 0x28
	offPhentsize = 0x36
	offPhnum     = 0x38
	offShentsize = 0x3a
	offShnum     = 0x3c
	offShstrndx  = 0x3e
)

// View interprets a mapping's bytes as a 64-bit little-endian ELF image.
// It borrows the mapping and is valid only while the mapping is alive.
// Construction checks the 4-byte magic only; each lookup validates what it
// touches against the mapping's length before trusting it.
type View struct {
	m *Mapping
}

// NewView validates the 4-byte magic of a mapping. Nothing beyond the
// magic is trusted until a lookup checks it.
func NewView(m *Mapping) (*View, error) {
	b := m.Bytes()
	if len(b) < 4 || !bytes.Equal(b[:4], []byte(elf.ELFMAG)) {
		return nil, ErrBadMagic
	}
	return &View{m: m}, nil
}

// header ensures the mapping covers a full ELF64 header before any header
// field is read.
func (v *View) header() error {
	if n := len(v.m.Bytes()); n < ehdrSize {
		return fmt.Errorf("elfpatch: image truncated: %d bytes, ELF header needs %d", n, ehdrSize)
	}
	return nil
}

// slice returns b[off:off+n] bounds-checked against the mapping length.
func (v *View) slice(off, n uint64) ([]byte, error) {
	b := v.m.Bytes()
	total := uint64(len(b))
	if off > total || n > total-off {
		return nil, fmt.Errorf("elfpatch: range [0x%x, +0x%x) outside image of 0x%x bytes", off, n, total)
	}
	return b[off : off+n], nil
}

func (v *View) u16(off uint64) uint16 {
	return binary.LittleEndian.Uint16(v.m.Bytes()[off:])
}

func (v *View) u64(off uint64) uint64 {
	return binary.LittleEndian.Uint64(v.m.Bytes()[off:])
}

// ProgHeader is a borrowed view of one program header table entry.
type ProgHeader struct {
	Type   elf.ProgType
	Off    uint64 // segment file offset
	Filesz uint64 // segment size in the file
}

// ProgHeaderByType scans the program header table in order and returns the
// first entry of the given type, or ErrNotFound.
func (v *View) ProgHeaderByType(t elf.ProgType) (*ProgHeader, error) {
	if err := v.header(); err != nil {
		return nil, err
	}
	if entsize := v.u16(offPhentsize); entsize != phdrSize {
		return nil, fmt.Errorf("elfpatch: program header entry size %d, expected %d", entsize, phdrSize)
	}
	phoff := v.u64(offPhoff)
	phnum := uint64(v.u16(offPhnum))

	table, err := v.slice(phoff, phnum*phdrSize)
	if err != nil {
		return nil, fmt.Errorf("elfpatch: program header table: %w", err)
	}
	for i := uint64(0); i < phnum; i++ {
		e := table[i*phdrSize:]
		if elf.ProgType(binary.LittleEndian.Uint32(e)) != t {
			continue
		}
		return &ProgHeader{
			Type:   t,
			Off:    binary.LittleEndian.Uint64(e[8:]),
			Filesz: binary.LittleEndian.Uint64(e[32:]),
		}, nil
	}
	return nil, fmt.Errorf("elfpatch: program header %v: %w", t, ErrNotFound)
}

// Section is a borrowed view of one section header table entry.
type Section struct {
	Name string
	Type elf.SectionType
	Off  uint64
	Size uint64

	view *View
}

// Data returns the section's byte range within the mapping.
func (s *Section) Data() ([]byte, error) {
	b, err := s.view.slice(s.Off, s.Size)
	if err != nil {
		return nil, fmt.Errorf("elfpatch: section %s: %w", s.Name, err)
	}
	return b, nil
}

// SectionByName resolves each section's name through the section-name string
// table and returns the first section whose name matches, or ErrNotFound.
func (v *View) SectionByName(name string) (*Section, error) {
	if err := v.header(); err != nil {
		return nil, err
	}
	if entsize := v.u16(offShentsize); entsize != shdrSize {
		return nil, fmt.Errorf("elfpatch: section header entry size %d, expected %d", entsize, shdrSize)
	}
	shoff := v.u64(offShoff)
	shnum := uint64(v.u16(offShnum))
	shstrndx := uint64(v.u16(offShstrndx))

	table, err := v.slice(shoff, shnum*shdrSize)
	if err != nil {
		return nil, fmt.Errorf("elfpatch: section header table: %w", err)
	}
	if shstrndx >= shnum {
		return nil, fmt.Errorf("elfpatch: section name table index %d outside table of %d entries", shstrndx, shnum)
	}

	strhdr := table[shstrndx*shdrSize:]
	strtab, err := v.slice(binary.LittleEndian.Uint64(strhdr[24:]), binary.LittleEndian.Uint64(strhdr[32:]))
	if err != nil {
		return nil, fmt.Errorf("elfpatch: section name table: %w", err)
	}

	for i := uint64(0); i < shnum; i++ {
		e := table[i*shdrSize:]
		nameOff := uint64(binary.LittleEndian.Uint32(e))
		if got, ok := cstringAt(strtab, nameOff); !ok || got != name {
			continue
		}
		return &Section{
			Name: name,
			Type: elf.SectionType(binary.LittleEndian.Uint32(e[4:])),
			Off:  binary.LittleEndian.Uint64(e[24:]),
			Size: binary.LittleEndian.Uint64(e[32:]),
			view: v,
		}, nil
	}
	return nil, fmt.Errorf("elfpatch: section %s: %w", name, ErrNotFound)
}

// cstringAt reads a NUL-terminated string starting at off. Reports false if
// off is outside the table or no terminator exists before its end.
func cstringAt(tab []byte, off uint64) (string, bool) {
	if off >= uint64(len(tab)) {
		return "", false
	}
	end := bytes.IndexByte(tab[off:], 0)
	if end < 0 {
		return "", false
	}
	return string(tab[off : off+uint64(end)]), true
}
