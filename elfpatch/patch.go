//go:build linux

package elfpatch

import (
	"bytes"
	"debug/elf"
	"encoding/binary"
	"fmt"
)

// SetInterp overwrites the interpreter path stored in the PT_INTERP segment.
//
// The segment is a fixed-capacity NUL-terminated field of p_filesz bytes.
// The replacement plus its terminator must fit; nothing is written
// otherwise. Bytes past the new terminator keep their previous contents.
func (v *View) SetInterp(newPath string) error {
	ph, err := v.ProgHeaderByType(elf.PT_INTERP)
	if err != nil {
		return err
	}
	field, err := v.slice(ph.Off, ph.Filesz)
	if err != nil {
		return fmt.Errorf("elfpatch: PT_INTERP segment: %w", err)
	}
	if len(field) == 0 || field[len(field)-1] != 0 {
		return fmt.Errorf("elfpatch: current interpreter not NUL terminated within %d bytes", len(field))
	}
	if len(newPath)+1 > len(field) {
		return fmt.Errorf("elfpatch: interpreter %q needs %d bytes, field holds %d", newPath, len(newPath)+1, len(field))
	}
	writeCString(field, newPath)
	return nil
}

// SetRunPath overwrites the runtime library search path (DT_RPATH or
// DT_RUNPATH) in place.
//
// The string lives in .dynstr and is shared storage: it can shrink or stay
// the same length, never grow. Bytes past the new terminator keep their
// previous contents.
func (v *View) SetRunPath(newPath string) error {
	dyn, err := v.SectionByName(".dynamic")
	if err != nil {
		return err
	}
	dynstr, err := v.SectionByName(".dynstr")
	if err != nil {
		return err
	}

	table, err := dyn.Data()
	if err != nil {
		return err
	}
	strOff, err := findRunPathTag(table)
	if err != nil {
		return err
	}

	strtab, err := dynstr.Data()
	if err != nil {
		return err
	}
	if strOff > uint64(len(strtab)) {
		return fmt.Errorf("elfpatch: run path offset 0x%x outside .dynstr of 0x%x bytes", strOff, len(strtab))
	}
	cur := strtab[strOff:]
	end := bytes.IndexByte(cur, 0)
	if end < 0 {
		return fmt.Errorf("elfpatch: current run path not NUL terminated")
	}
	if len(newPath) > end {
		return fmt.Errorf("elfpatch: run path %q is %d bytes, current value holds %d", newPath, len(newPath), end)
	}
	writeCString(cur[:end+1], newPath)
	return nil
}

// findRunPathTag scans dynamic entries in table order until DT_NULL or the
// end of the section, returning the string-table offset of the first
// DT_RPATH or DT_RUNPATH entry.
func findRunPathTag(table []byte) (uint64, error) {
	for off := 0; off+dynSize <= len(table); off += dynSize {
		tag := elf.DynTag(binary.LittleEndian.Uint64(table[off:]))
		if tag == elf.DT_NULL {
			break
		}
		if tag == elf.DT_RPATH || tag == elf.DT_RUNPATH {
			return binary.LittleEndian.Uint64(table[off+8:]), nil
		}
	}
	return 0, fmt.Errorf("elfpatch: run path dynamic tag: %w", ErrNotFound)
}

// writeCString writes s and its terminator at the start of field. The
// caller has already checked capacity.
func writeCString(field []byte, s string) {
	copy(field, s)
	field[len(s)] = 0
}
