//go:build linux

package elfpatch

import (
	"debug/elf"
	"encoding/binary"
	"sort"
)

// TestImage describes a synthetic ELF64 image for tests. Images built from
// it carry a PT_INTERP segment, a .dynamic/.dynstr pair, and any extra
// named sections, laid out the way the patcher expects to find them.
type TestImage struct {
	Interp      string // interpreter path; field capacity is len+1 unless InterpField is set
	InterpField []byte // raw PT_INTERP field contents, overrides Interp
	RunPath     string // current run path value stored in .dynstr
	RunPathTag  elf.DynTag
	OmitInterp  bool
	OmitDynamic bool
	OmitDynstr  bool

	// Extra named sections with raw contents, e.g. an embedded archive.
	Sections map[string][]byte
}

// Build assembles the image bytes.
func (ti TestImage) Build() []byte {
	if ti.RunPathTag == 0 {
		ti.RunPathTag = elf.DT_RPATH
	}
	interpField := ti.InterpField
	if interpField == nil {
		interpField = append([]byte(ti.Interp), 0)
	}

	phnum := 1
	if ti.OmitInterp {
		phnum = 0
	}

	type sec struct {
		name string
		typ  elf.SectionType
		data []byte
	}
	var secs []sec
	dynstr := append([]byte{0}, append([]byte(ti.RunPath), 0)...)
	if !ti.OmitDynstr {
		secs = append(secs, sec{".dynstr", elf.SHT_STRTAB, dynstr})
	}
	if !ti.OmitDynamic {
		dynamic := make([]byte, 2*dynSize)
		binary.LittleEndian.PutUint64(dynamic[0:], uint64(ti.RunPathTag))
		binary.LittleEndian.PutUint64(dynamic[8:], 1) // offset of RunPath in .dynstr
		// second entry stays DT_NULL
		secs = append(secs, sec{".dynamic", elf.SHT_DYNAMIC, dynamic})
	}
	extraNames := make([]string, 0, len(ti.Sections))
	for name := range ti.Sections {
		extraNames = append(extraNames, name)
	}
	sort.Strings(extraNames)
	for _, name := range extraNames {
		secs = append(secs, sec{name, elf.SHT_PROGBITS, ti.Sections[name]})
	}

	// Section name table: one entry per section plus itself.
	shstrtab := []byte{0}
	nameOff := make(map[string]uint32)
	addName := func(name string) {
		nameOff[name] = uint32(len(shstrtab))
		shstrtab = append(shstrtab, name...)
		shstrtab = append(shstrtab, 0)
	}
	for _, s := range secs {
		addName(s.name)
	}
	addName(".shstrtab")
	secs = append(secs, sec{".shstrtab", elf.SHT_STRTAB, shstrtab})

	shnum := 1 + len(secs) // leading null section

	// Layout: ehdr, phdr table, data blobs, shdr table.
	img := make([]byte, ehdrSize+phnum*phdrSize)
	interpOff := 0
	if phnum > 0 {
		interpOff = len(img)
		img = append(img, interpField...)
	}
	secOff := make([]int, len(secs))
	for i, s := range secs {
		secOff[i] = len(img)
		img = append(img, s.data...)
	}
	shoff := len(img)
	img = append(img, make([]byte, shnum*shdrSize)...)

	// ELF header.
	copy(img, elf.ELFMAG)
	img[4] = byte(elf.ELFCLASS64)
	img[5] = byte(elf.ELFDATA2LSB)
	img[6] = 1
	binary.LittleEndian.PutUint16(img[0x10:], uint16(elf.ET_EXEC))
	binary.LittleEndian.PutUint16(img[0x12:], uint16(elf.EM_X86_64))
	binary.LittleEndian.PutUint32(img[0x14:], 1)
	binary.LittleEndian.PutUint64(img[offPhoff:], ehdrSize)
	binary.LittleEndian.PutUint64(img[offShoff:], uint64(shoff))
	binary.LittleEndian.PutUint16(img[0x34:], ehdrSize)
	binary.LittleEndian.PutUint16(img[offPhentsize:], phdrSize)
	binary.LittleEndian.PutUint16(img[offPhnum:], uint16(phnum))
	binary.LittleEndian.PutUint16(img[offShentsize:], shdrSize)
	binary.LittleEndian.PutUint16(img[offShnum:], uint16(shnum))
	binary.LittleEndian.PutUint16(img[offShstrndx:], uint16(shnum-1))

	// PT_INTERP program header.
	if phnum > 0 {
		ph := img[ehdrSize:]
		binary.LittleEndian.PutUint32(ph[0:], uint32(elf.PT_INTERP))
		binary.LittleEndian.PutUint64(ph[8:], uint64(interpOff))
		binary.LittleEndian.PutUint64(ph[32:], uint64(len(interpField)))
	}

	// Section headers; entry 0 stays all-zero.
	for i, s := range secs {
		sh := img[shoff+(i+1)*shdrSize:]
		binary.LittleEndian.PutUint32(sh[0:], nameOff[s.name])
		binary.LittleEndian.PutUint32(sh[4:], uint32(s.typ))
		binary.LittleEndian.PutUint64(sh[24:], uint64(secOff[i]))
		binary.LittleEndian.PutUint64(sh[32:], uint64(len(s.data)))
	}

	return img
}
