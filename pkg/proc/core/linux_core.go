package core

import (
	"bytes"
	"debug/elf"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-delve/pyexc/pkg/logflags"
	"github.com/go-delve/pyexc/pkg/proc"
)

// NT_FILE is file mapping information, e.g. program text mappings. Desc is a linuxNTFile.
const _NT_FILE elf.NType = 0x46494c45 // "FILE".

// NT_AUXV is the note type for notes containing a copy of the Auxv array
const _NT_AUXV elf.NType = 0x6

const (
	_AT_NULL  = 0
	_AT_ENTRY = 9
)

const elfErrorBadMagicNumber = "bad magic number"

// process is the content of a core file, paired with its executable.
type process struct {
	mem        proc.MemoryReader
	pid        int
	comm       string
	entryPoint uint64

	files []io.Closer
}

func (p *process) Close() error {
	var err error
	for _, f := range p.files {
		if err1 := f.Close(); err == nil {
			err = err1
		}
	}
	p.files = nil
	return err
}

// readLinuxCore reads a core file from corePath corresponding to the executable at
// exePath. For details on the Linux ELF core format, see:
// http://www.gabriel.urdhr.fr/2015/05/29/core-file/,
// http://uhlo.blogspot.fr/2012/05/brief-look-into-core-dumps.html,
// elf_core_dump in http://lxr.free-electrons.com/source/fs/binfmt_elf.c,
// and, if absolutely desperate, readelf.c from the binutils source.
func readLinuxCore(corePath, exePath string) (*process, error) {
	logger := logflags.CoreLogger()

	coreFile, err := elf.Open(corePath)
	if err != nil {
		var fmterr *elf.FormatError
		if errors.As(err, &fmterr) && (strings.Contains(err.Error(), elfErrorBadMagicNumber) || strings.Contains(err.Error(), " at offset 0x0: too short")) {
			return nil, ErrUnrecognizedFormat
		}
		return nil, err
	}
	p := &process{files: []io.Closer{coreFile}}

	exe, err := os.Open(exePath)
	if err != nil {
		p.Close()
		return nil, err
	}
	p.files = append(p.files, exe)
	exeELF, err := elf.NewFile(exe)
	if err != nil {
		p.Close()
		return nil, err
	}

	if coreFile.Type != elf.ET_CORE {
		p.Close()
		return nil, fmt.Errorf("%s is not a core file", corePath)
	}
	if exeELF.Type != elf.ET_EXEC && exeELF.Type != elf.ET_DYN {
		p.Close()
		return nil, fmt.Errorf("%s is not an exe file", exePath)
	}
	if coreFile.Machine != exeELF.Machine {
		p.Close()
		return nil, fmt.Errorf("core file machine %v does not match executable machine %v", coreFile.Machine, exeELF.Machine)
	}

	ptrSize := 8
	if coreFile.Class == elf.ELFCLASS32 {
		ptrSize = 4
	}

	notes, err := readNotes(coreFile, ptrSize)
	if err != nil {
		p.Close()
		return nil, err
	}
	p.entryPoint = findEntryPoint(notes, ptrSize)
	p.mem = buildMemory(coreFile, exeELF, exe, exePath, notes, p.entryPoint)
	if exeELF.Type == elf.ET_DYN && p.entryPoint == 0 {
		p.Close()
		return nil, ErrNoEntryPoint
	}

	for _, note := range notes {
		if note.Type == elf.NT_PRPSINFO {
			if info, ok := note.Desc.(*linuxPrPsInfo); ok {
				p.pid = int(info.Pid)
				p.comm = string(bytes.TrimRight(info.Fname[:], "\x00"))
			}
		}
	}
	logger.Debugf("core of %q (pid %d), entry point %#x, %d notes", p.comm, p.pid, p.entryPoint, len(notes))
	return p, nil
}

// note is a note from the PT_NOTE prog.
// Relevant types:
// - NT_FILE: File mapping information, e.g. program text mappings. Desc is a *linuxNTFile.
// - NT_PRPSINFO: Information about a process, including PID and signal. Desc is a *linuxPrPsInfo.
// - NT_AUXV: the auxiliary vector. Desc is a []byte.
type note struct {
	Type elf.NType
	Name string
	Desc interface{} // Decoded Desc from the
}

// readNotes reads all the notes from the notes progs in core.
func readNotes(core *elf.File, ptrSize int) ([]*note, error) {
	notes := []*note{}
	for _, prog := range core.Progs {
		if prog.Type != elf.PT_NOTE {
			continue
		}
		r := prog.Open()
		for {
			note, err := readNote(r, core.ByteOrder, ptrSize)
			if err == io.EOF {
				break
			}
			if err != nil {
				return nil, err
			}
			notes = append(notes, note)
		}
	}
	return notes, nil
}

// readNote reads a single note from r, decoding the descriptor if possible.
func readNote(r io.ReadSeeker, order binary.ByteOrder, ptrSize int) (*note, error) {
	// Notes are laid out as described in the SysV ABI:
	// http://www.sco.com/developers/gabi/latest/ch5.pheader.html#note_section
	note := &note{}
	hdr := &elfNotesHdr{}

	err := binary.Read(r, order, hdr)
	if err != nil {
		return nil, err // don't wrap so readNotes sees EOF.
	}
	note.Type = elf.NType(hdr.Type)

	name := make([]byte, hdr.Namesz)
	if _, err := io.ReadFull(r, name); err != nil {
		return nil, fmt.Errorf("reading name: %v", err)
	}
	note.Name = string(bytes.TrimRight(name, "\x00"))
	if err := skipPadding(r, 4); err != nil {
		return nil, fmt.Errorf("aligning after name: %v", err)
	}
	desc := make([]byte, hdr.Descsz)
	if _, err := io.ReadFull(r, desc); err != nil {
		return nil, fmt.Errorf("reading desc: %v", err)
	}
	descReader := bytes.NewReader(desc)
	switch note.Type {
	case elf.NT_PRPSINFO:
		if ptrSize == 8 {
			info := &linuxPrPsInfo{}
			if err := binary.Read(descReader, order, info); err != nil {
				return nil, fmt.Errorf("reading NT_PRPSINFO: %v", err)
			}
			note.Desc = info
		}
	case _NT_FILE:
		data, err := readNTFile(desc, order, ptrSize)
		if err != nil {
			return nil, err
		}
		note.Desc = data
	case _NT_AUXV:
		note.Desc = desc
	}
	if err := skipPadding(r, 4); err != nil {
		return nil, fmt.Errorf("aligning after desc: %v", err)
	}
	return note, nil
}

// readNTFile decodes a NT_FILE note: a header, including entry count,
// followed by that many entries, and then the file name of each entry,
// null-delimited.
func readNTFile(desc []byte, order binary.ByteOrder, ptrSize int) (*linuxNTFile, error) {
	rd := bytes.NewReader(desc)
	word := func() (uint64, error) {
		return readUintRaw(rd, order, ptrSize)
	}
	data := &linuxNTFile{}
	var err error
	if data.Count, err = word(); err != nil {
		return nil, fmt.Errorf("reading NT_FILE header: %v", err)
	}
	if data.PageSize, err = word(); err != nil {
		return nil, fmt.Errorf("reading NT_FILE header: %v", err)
	}
	if data.Count > uint64(len(desc)) {
		return nil, fmt.Errorf("reading NT_FILE header: bad entry count %d", data.Count)
	}
	for i := 0; i < int(data.Count); i++ {
		entry := &linuxNTFileEntry{}
		if entry.Start, err = word(); err == nil {
			if entry.End, err = word(); err == nil {
				entry.FileOfs, err = word()
			}
		}
		if err != nil {
			return nil, fmt.Errorf("reading NT_FILE entry %v: %v", i, err)
		}
		data.entries = append(data.entries, entry)
	}
	rest, _ := io.ReadAll(rd)
	names := strings.Split(string(rest), "\x00")
	for i := range data.entries {
		if i < len(names) {
			data.entries[i].Name = names[i]
		}
	}
	return data, nil
}

func readUintRaw(rd io.Reader, order binary.ByteOrder, ptrSize int) (uint64, error) {
	switch ptrSize {
	case 4:
		var n uint32
		if err := binary.Read(rd, order, &n); err != nil {
			return 0, err
		}
		return uint64(n), nil
	case 8:
		var n uint64
		if err := binary.Read(rd, order, &n); err != nil {
			return 0, err
		}
		return n, nil
	}
	return 0, fmt.Errorf("not supported ptr size %d", ptrSize)
}

// skipPadding moves r to the next multiple of pad.
func skipPadding(r io.ReadSeeker, pad int64) error {
	pos, err := r.Seek(0, io.SeekCurrent)
	if err != nil {
		return err
	}
	if pos%pad == 0 {
		return nil
	}
	if _, err := r.Seek(pad-(pos%pad), io.SeekCurrent); err != nil {
		return err
	}
	return nil
}

// sameFile reports whether the file name recorded in a NT_FILE entry refers
// to the executable at exePath.
func sameFile(mapped, exePath string) bool {
	if mapped == "" {
		return false
	}
	if abs, err := filepath.Abs(exePath); err == nil && abs == mapped {
		return true
	}
	return filepath.Base(mapped) == filepath.Base(exePath)
}

func buildMemory(core, exeELF *elf.File, exe io.ReaderAt, exePath string, notes []*note, entryPoint uint64) proc.MemoryReader {
	logger := logflags.CoreLogger()
	memory := &splicedMemory{}

	// File backed mappings of the executable, typically read-only data that
	// the kernel did not dump.
	for _, note := range notes {
		if note.Type != _NT_FILE {
			continue
		}
		fileNote := note.Desc.(*linuxNTFile)
		for _, entry := range fileNote.entries {
			if !sameFile(entry.Name, exePath) {
				logger.Debugf("skipping mapping of %s at %#x", entry.Name, entry.Start)
				continue
			}
			r := &offsetReaderAt{
				reader: exe,
				offset: entry.Start - (entry.FileOfs * fileNote.PageSize),
			}
			memory.Add(r, entry.Start, entry.End-entry.Start)
		}
	}

	// Load memory segments from exe and then from the core file,
	// allowing the corefile to overwrite previously loaded segments
	staticBase := uint64(0)
	if exeELF.Type == elf.ET_DYN && entryPoint != 0 {
		staticBase = entryPoint - exeELF.Entry
	}
	for _, prog := range exeELF.Progs {
		if prog.Type == elf.PT_LOAD && prog.Filesz != 0 {
			r := &offsetReaderAt{
				reader: prog.ReaderAt,
				offset: prog.Vaddr + staticBase,
			}
			memory.Add(r, prog.Vaddr+staticBase, prog.Filesz)
		}
	}
	for _, prog := range core.Progs {
		if prog.Type == elf.PT_LOAD && prog.Filesz != 0 {
			r := &offsetReaderAt{
				reader: prog.ReaderAt,
				offset: prog.Vaddr,
			}
			memory.Add(r, prog.Vaddr, prog.Filesz)
		}
	}
	return memory
}

// findEntryPoint searches the elf auxiliary vector for the entry point
// address.
// For a description of the auxiliary vector (auxv) format see:
// System V Application Binary Interface, AMD64 Architecture Processor
// Supplement, section 3.4.3.
func findEntryPoint(notes []*note, ptrSize int) uint64 {
	for _, note := range notes {
		if note.Type == _NT_AUXV {
			return entryPointFromAuxv(note.Desc.([]byte), ptrSize)
		}
	}
	return 0
}

func entryPointFromAuxv(auxv []byte, ptrSize int) uint64 {
	rd := bytes.NewBuffer(auxv)

	for {
		tag, err := readUintRaw(rd, binary.LittleEndian, ptrSize)
		if err != nil {
			return 0
		}
		val, err := readUintRaw(rd, binary.LittleEndian, ptrSize)
		if err != nil {
			return 0
		}

		switch tag {
		case _AT_NULL:
			return 0
		case _AT_ENTRY:
			return val
		}
	}
}

// linuxPrPsInfo has various structures from the ELF spec and the Linux kernel.
// AMD64 specific primarily because some of the fields are word sized.
// See http://lxr.free-electrons.com/source/include/uapi/linux/elfcore.h
type linuxPrPsInfo struct {
	State                uint8
	Sname                int8
	Zomb                 uint8
	Nice                 int8
	_                    [4]uint8
	Flag                 uint64
	Uid, Gid             uint32
	Pid, Ppid, Pgrp, Sid int32
	Fname                [16]uint8
	Args                 [80]uint8
}

// linuxNTFile contains information on mapped files.
type linuxNTFile struct {
	Count    uint64
	PageSize uint64
	entries  []*linuxNTFileEntry
}

// linuxNTFileEntry is an entry of an NT_FILE note.
type linuxNTFileEntry struct {
	Start   uint64
	End     uint64
	FileOfs uint64
	Name    string
}

// elfNotesHdr is the ELF Notes header.
// Same size on 64 and 32-bit machines.
type elfNotesHdr struct {
	Namesz uint32
	Descsz uint32
	Type   uint32
}
