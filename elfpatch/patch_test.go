//go:build linux

package elfpatch

import (
	"bytes"
	"debug/elf"
	"testing"

	"github.com/stretchr/testify/require"
)

func patchView(t *testing.T, ti TestImage) (*View, *Mapping) {
	t.Helper()

	m := mapTestImage(t, ti.Build(), true)
	v, err := NewView(m)
	require.NoError(t, err)
	return v, m
}

func interpField(t *testing.T, v *View) []byte {
	t.Helper()

	ph, err := v.ProgHeaderByType(elf.PT_INTERP)
	require.NoError(t, err)
	field, err := v.slice(ph.Off, ph.Filesz)
	require.NoError(t, err)
	return field
}

func TestSetInterpCapacityLaw(t *testing.T) {
	// Field capacity C, replacement length L: succeeds iff L+1 <= C.
	tests := []struct {
		name     string
		original string
		newPath  string
		ok       bool
	}{
		{"shrinks", "/lib64/ld-linux-x86-64.so.2", "/tmp/x/ld", true},
		{"exact fit", "/lib64/ld-linux-x86-64.so.2", "/lib64/ld-linux-x86-64.so.3", true},
		{"one byte too long", "/lib/ld.so", "/lib/ld.so.0", false},
		{"far too long", "/ld", "/some/very/long/interpreter/path", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, _ := patchView(t, TestImage{Interp: tt.original, RunPath: "/opt"})

			err := v.SetInterp(tt.newPath)
			if !tt.ok {
				require.Error(t, err)
				// Rejected before any byte is written.
				require.Equal(t, tt.original, cstring(interpField(t, v)))
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.newPath, cstring(interpField(t, v)))
		})
	}
}

func TestSetInterpPreservesResidualBytes(t *testing.T) {
	v, _ := patchView(t, TestImage{Interp: "/very/long/interpreter/path/ld.so", RunPath: "/opt"})
	require.NoError(t, v.SetInterp("/t/ld"))

	field := interpField(t, v)
	require.Equal(t, "/t/ld", cstring(field))
	// Bytes past the new terminator keep the old contents.
	require.Equal(t, "long/interpreter/path/ld.so\x00", string(field[len("/t/ld")+1:]))
}

func TestSetInterpErrors(t *testing.T) {
	t.Run("missing PT_INTERP", func(t *testing.T) {
		v, _ := patchView(t, TestImage{OmitInterp: true, RunPath: "/opt"})
		require.ErrorIs(t, v.SetInterp("/x"), ErrNotFound)
	})
	t.Run("not NUL terminated", func(t *testing.T) {
		v, _ := patchView(t, TestImage{InterpField: []byte("/lib/ld.so"), RunPath: "/opt"})
		require.Error(t, v.SetInterp("/x"))
	})
}

func TestSetRunPathCapacityLaw(t *testing.T) {
	// Current value length M, replacement length L: succeeds iff L <= M.
	tests := []struct {
		name    string
		current string
		newPath string
		ok      bool
	}{
		{"shrinks", "/origin/build/tree/lib", "/tmp/bs-1", true},
		{"equal length", "/opt/lib", "/tmp/abc", true},
		{"one byte too long", "/opt/lib", "/tmp/abcd", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, _ := patchView(t, TestImage{Interp: "/lib/ld.so", RunPath: tt.current})

			err := v.SetRunPath(tt.newPath)
			dynstr, serr := v.SectionByName(".dynstr")
			require.NoError(t, serr)
			data, serr := dynstr.Data()
			require.NoError(t, serr)
			got := cstring(data[1:]) // current value lives at offset 1

			if !tt.ok {
				require.Error(t, err)
				require.Equal(t, tt.current, got)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.newPath, got)
		})
	}
}

func TestSetRunPathHonorsRunPathTag(t *testing.T) {
	v, _ := patchView(t, TestImage{Interp: "/lib/ld.so", RunPath: "/opt/lib", RunPathTag: elf.DT_RUNPATH})
	require.NoError(t, v.SetRunPath("/tmp/x"))
}

func TestSetRunPathErrors(t *testing.T) {
	t.Run("missing .dynamic", func(t *testing.T) {
		v, _ := patchView(t, TestImage{Interp: "/lib/ld.so", OmitDynamic: true})
		require.ErrorIs(t, v.SetRunPath("/x"), ErrNotFound)
	})
	t.Run("missing .dynstr", func(t *testing.T) {
		v, _ := patchView(t, TestImage{Interp: "/lib/ld.so", OmitDynstr: true})
		require.ErrorIs(t, v.SetRunPath("/x"), ErrNotFound)
	})
	t.Run("tag missing before terminator", func(t *testing.T) {
		// DT_DEBUG carries no string; the scan hits DT_NULL without a match.
		v, _ := patchView(t, TestImage{Interp: "/lib/ld.so", RunPath: "/opt/lib", RunPathTag: elf.DT_DEBUG})
		require.ErrorIs(t, v.SetRunPath("/x"), ErrNotFound)
	})
	t.Run("string offset outside .dynstr", func(t *testing.T) {
		ti := TestImage{Interp: "/lib/ld.so", RunPath: "/opt/lib"}
		img := ti.Build()
		m := mapTestImage(t, img, true)
		v, err := NewView(m)
		require.NoError(t, err)

		dyn, err := v.SectionByName(".dynamic")
		require.NoError(t, err)
		data, err := dyn.Data()
		require.NoError(t, err)
		// Point the run path entry far past the string table.
		copy(data[8:16], []byte{0xff, 0xff, 0, 0, 0, 0, 0, 0})
		require.Error(t, v.SetRunPath("/x"))
	})
}

func cstring(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		return string(b[:i])
	}
	return string(b)
}
