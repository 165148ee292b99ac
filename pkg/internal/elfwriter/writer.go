// Package elfwriter writes the ELF executables and core files read by
// pkg/proc/core, one piece at a time.
// Only 64bit little endian files are supported and section headers are
// never written.
package elfwriter

import (
	"debug/elf"
	"encoding/binary"
	"io"
)

const (
	ehsize    = 64
	phentsize = 56
)

// WriteCloserSeeker is the union of io.Writer, io.Closer and io.Seeker.
type WriteCloserSeeker interface {
	io.Writer
	io.Seeker
	io.Closer
}

// Writer writes ELF files.
// The first error encountered is stored in Err and all following writes
// become no-ops.
type Writer struct {
	w     WriteCloserSeeker
	Err   error
	Progs []*elf.ProgHeader

	seekProgHeader int64
	seekProgNum    int64
}

// Note is an entry of a PT_NOTE segment.
type Note struct {
	Type elf.NType
	Name string
	Data []byte
}

// New writes the file header described by fhdr and returns a Writer
// positioned right after it.
func New(w WriteCloserSeeker, fhdr *elf.FileHeader) *Writer {
	if seek, _ := w.Seek(0, io.SeekCurrent); seek != 0 {
		panic("can't write halfway through a file")
	}
	if fhdr.Class != elf.ELFCLASS64 || fhdr.Data != elf.ELFDATA2LSB {
		panic("unsupported")
	}

	r := &Writer{w: w}

	// e_ident
	r.Write([]byte{0x7f, 'E', 'L', 'F', byte(fhdr.Class), byte(fhdr.Data), byte(fhdr.Version), byte(fhdr.OSABI), byte(fhdr.ABIVersion), 0, 0, 0, 0, 0, 0, 0})

	r.u16(uint16(fhdr.Type))    // e_type
	r.u16(uint16(fhdr.Machine)) // e_machine
	r.u32(uint32(fhdr.Version)) // e_version
	r.u64(fhdr.Entry)           // e_entry
	r.seekProgHeader = r.Here()
	r.u64(0)         // e_phoff
	r.u64(0)         // e_shoff
	r.u32(0)         // e_flags
	r.u16(ehsize)    // e_ehsize
	r.u16(phentsize) // e_phentsize
	r.seekProgNum = r.Here()
	r.u16(0)                     // e_phnum
	r.u16(0)                     // e_shentsize
	r.u16(0)                     // e_shnum
	r.u16(uint16(elf.SHN_UNDEF)) // e_shstrndx

	if sz := r.Here(); r.Err == nil && sz != ehsize {
		panic("internal error, ELF header size")
	}

	return r
}

// WriteNotes writes notes to the current location and adds a PT_NOTE
// program header describing them.
func (w *Writer) WriteNotes(notes []Note) *elf.ProgHeader {
	if len(notes) == 0 {
		return nil
	}
	w.Align(4)
	h := &elf.ProgHeader{
		Type:  elf.PT_NOTE,
		Off:   uint64(w.Here()),
		Align: 4,
	}
	for i := range notes {
		note := &notes[i]
		w.u32(uint32(len(note.Name) + 1))
		w.u32(uint32(len(note.Data)))
		w.u32(uint32(note.Type))
		w.Write([]byte(note.Name))
		w.Write([]byte{0})
		w.Align(4)
		w.Write(note.Data)
		w.Align(4)
	}
	h.Filesz = uint64(w.Here()) - h.Off
	w.Progs = append(w.Progs, h)
	return h
}

// WriteSegment writes data to the next page aligned location and adds a
// PT_LOAD program header mapping it at vaddr.
func (w *Writer) WriteSegment(vaddr uint64, flags elf.ProgFlag, data []byte) *elf.ProgHeader {
	const pageSize = 0x1000
	w.Align(pageSize)
	h := &elf.ProgHeader{
		Type:   elf.PT_LOAD,
		Flags:  flags,
		Off:    uint64(w.Here()),
		Vaddr:  vaddr,
		Paddr:  vaddr,
		Filesz: uint64(len(data)),
		Memsz:  uint64(len(data)),
		Align:  pageSize,
	}
	w.Write(data)
	w.Progs = append(w.Progs, h)
	return h
}

// WriteProgramHeaders writes the program headers at the current location
// and patches the file header accordingly.
func (w *Writer) WriteProgramHeaders() {
	w.Align(8)
	phoff := w.Here()

	w.seek(w.seekProgHeader, io.SeekStart)
	w.u64(uint64(phoff))
	w.seek(w.seekProgNum, io.SeekStart)
	w.u16(uint16(len(w.Progs)))
	w.seek(0, io.SeekEnd)

	for _, prog := range w.Progs {
		w.u32(uint32(prog.Type))
		w.u32(uint32(prog.Flags))
		w.u64(prog.Off)
		w.u64(prog.Vaddr)
		w.u64(prog.Paddr)
		w.u64(prog.Filesz)
		w.u64(prog.Memsz)
		w.u64(prog.Align)
	}
}

// Close writes the program headers and closes the underlying file.
func (w *Writer) Close() error {
	w.WriteProgramHeaders()
	err := w.w.Close()
	if w.Err != nil {
		return w.Err
	}
	return err
}

// Here returns the current seek offset from the start of the file.
func (w *Writer) Here() int64 {
	r, err := w.w.Seek(0, io.SeekCurrent)
	if err != nil && w.Err == nil {
		w.Err = err
	}
	return r
}

// Align writes as many padding bytes as needed to make the current file
// offset a multiple of align.
func (w *Writer) Align(align int64) {
	off := w.Here()
	alignOff := (off + (align - 1)) &^ (align - 1)
	if alignOff-off > 0 {
		w.Write(make([]byte, alignOff-off))
	}
}

func (w *Writer) Write(buf []byte) {
	if w.Err != nil {
		return
	}
	_, w.Err = w.w.Write(buf)
}

func (w *Writer) seek(off int64, whence int) {
	if w.Err != nil {
		return
	}
	_, w.Err = w.w.Seek(off, whence)
}

func (w *Writer) u16(n uint16) {
	var buf [2]byte
	binary.LittleEndian.PutUint16(buf[:], n)
	w.Write(buf[:])
}

func (w *Writer) u32(n uint32) {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], n)
	w.Write(buf[:])
}

func (w *Writer) u64(n uint64) {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], n)
	w.Write(buf[:])
}
