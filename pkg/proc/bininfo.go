package proc

import (
	"bytes"
	"debug/dwarf"
	"debug/elf"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/go-delve/pyexc/pkg/logflags"
	"github.com/go-delve/pyexc/pkg/proc/debuginfod"
)

// BinaryInfo holds information on the binary being inspected: its symbol
// table and the named types and global variables described by its debug
// information.
type BinaryInfo struct {
	// Path on disk of the binary being inspected.
	Path string
	// ByteOrder of the target.
	ByteOrder binary.ByteOrder

	// staticBase is the address at which the executable is loaded, 0 for
	// non-PIE executables.
	staticBase uint64
	ptrSize    int

	dwarf *dwarf.Data

	symbols map[string]uint64

	typesMu     sync.Mutex
	typeOffsets map[string]dwarf.Offset
	types       map[string]dwarf.Type
	globals     map[string]global
}

type global struct {
	off dwarf.Offset
	typ dwarf.Type
}

// ErrNoDebugInfo is returned when neither the executable nor any of the
// debug info directories contain DWARF data for it.
var ErrNoDebugInfo = errors.New("could not find debug info")

// NewBinaryInfo returns an empty BinaryInfo for a little endian target with
// the given pointer size. Types, symbols and globals can be added with
// RegisterType and RegisterGlobal.
func NewBinaryInfo(ptrSize int) *BinaryInfo {
	return &BinaryInfo{
		ByteOrder:   binary.LittleEndian,
		ptrSize:     ptrSize,
		symbols:     make(map[string]uint64),
		typeOffsets: make(map[string]dwarf.Offset),
		types:       make(map[string]dwarf.Type),
		globals:     make(map[string]global),
	}
}

// PtrSize returns the size of a pointer on the target.
func (bi *BinaryInfo) PtrSize() int {
	return bi.ptrSize
}

// StaticBase returns the load address of the executable.
func (bi *BinaryInfo) StaticBase() uint64 {
	return bi.staticBase
}

// RegisterType makes typ available through FindType under name.
func (bi *BinaryInfo) RegisterType(name string, typ dwarf.Type) {
	bi.typesMu.Lock()
	bi.types[name] = typ
	bi.typesMu.Unlock()
}

// RegisterGlobal records a global variable of type typ at addr.
func (bi *BinaryInfo) RegisterGlobal(name string, addr uint64, typ dwarf.Type) {
	bi.typesMu.Lock()
	bi.symbols[name] = addr
	bi.globals[name] = global{typ: typ}
	bi.typesMu.Unlock()
}

// LoadBinaryInfo reads the ELF executable at path. entryPoint is the
// runtime entry point of the process (from the auxiliary vector), it is used
// to compute the load address of position independent executables and can
// be zero for fixed address executables.
func LoadBinaryInfo(path string, entryPoint uint64, debugInfoDirs []string) (*BinaryInfo, error) {
	logger := logflags.CoreLogger()

	exe, err := elf.Open(path)
	if err != nil {
		return nil, err
	}
	defer exe.Close()

	if exe.Type != elf.ET_EXEC && exe.Type != elf.ET_DYN {
		return nil, fmt.Errorf("%s is not an executable file", path)
	}

	bi := NewBinaryInfo(8)
	bi.Path = path
	bi.ByteOrder = exe.ByteOrder
	if exe.Class == elf.ELFCLASS32 {
		bi.ptrSize = 4
	}
	if exe.Type == elf.ET_DYN && entryPoint != 0 {
		bi.staticBase = entryPoint - exe.Entry
	}

	bi.loadSymbols(exe)

	bi.dwarf, err = exe.DWARF()
	if err != nil {
		logger.Debugf("no DWARF in %s: %v", path, err)
		bi.dwarf, err = openSeparateDebugInfo(exe, debugInfoDirs)
		if err != nil {
			return nil, err
		}
	}
	if err := bi.indexDebugInfo(); err != nil {
		return nil, fmt.Errorf("could not read debug info of %s: %w", path, err)
	}
	logger.Debugf("loaded %s: static base %#x, %d symbols, %d types, %d globals", path, bi.staticBase, len(bi.symbols), len(bi.typeOffsets), len(bi.globals))
	return bi, nil
}

func (bi *BinaryInfo) loadSymbols(exe *elf.File) {
	add := func(syms []elf.Symbol) {
		for _, sym := range syms {
			if sym.Name == "" || sym.Value == 0 || sym.Section == elf.SHN_UNDEF {
				continue
			}
			if _, dup := bi.symbols[sym.Name]; dup {
				continue
			}
			bi.symbols[sym.Name] = sym.Value + bi.staticBase
		}
	}
	if syms, err := exe.Symbols(); err == nil {
		add(syms)
	}
	if syms, err := exe.DynamicSymbols(); err == nil {
		add(syms)
	}
}

// openSeparateDebugInfo looks for the debug info file of exe in each of
// debugInfoDirs using its GNU build ID, following the
// <dir>/<first two hex digits>/<rest>.debug convention, then asks
// debuginfod for it.
func openSeparateDebugInfo(exe *elf.File, debugInfoDirs []string) (*dwarf.Data, error) {
	logger := logflags.CoreLogger()
	buildID := buildIDOf(exe)
	if buildID == "" || len(buildID) < 3 {
		return nil, ErrNoDebugInfo
	}
	for _, dir := range debugInfoDirs {
		path := filepath.Join(dir, buildID[:2], buildID[2:]+".debug")
		if _, err := os.Stat(path); err != nil {
			continue
		}
		data, err := openDebugFile(path)
		if err == nil {
			return data, nil
		}
		logger.Debugf("could not read debug info from %s: %v", path, err)
	}
	path, err := debuginfod.GetDebuginfo(buildID)
	if err != nil {
		logger.Debugf("debuginfod lookup of %s: %v", buildID, err)
		return nil, ErrNoDebugInfo
	}
	data, err := openDebugFile(path)
	if err != nil {
		logger.Debugf("could not read debug info from %s: %v", path, err)
		return nil, ErrNoDebugInfo
	}
	return data, nil
}

func openDebugFile(path string) (*dwarf.Data, error) {
	f, err := elf.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return f.DWARF()
}

// buildIDOf returns the hex encoded GNU build ID of exe, or the empty string.
func buildIDOf(exe *elf.File) string {
	sec := exe.Section(".note.gnu.build-id")
	if sec == nil {
		return ""
	}
	data, err := sec.Data()
	if err != nil {
		return ""
	}
	return parseBuildIDNote(data, exe.ByteOrder)
}

func parseBuildIDNote(data []byte, order binary.ByteOrder) string {
	if len(data) < 12 {
		return ""
	}
	namesz := order.Uint32(data[0:])
	descsz := order.Uint32(data[4:])
	typ := order.Uint32(data[8:])
	if typ != 3 { // NT_GNU_BUILD_ID
		return ""
	}
	off := 12 + (namesz+3)&^3
	if uint64(off)+uint64(descsz) > uint64(len(data)) {
		return ""
	}
	if !bytes.HasPrefix(data[12:], []byte("GNU")) {
		return ""
	}
	return hex.EncodeToString(data[off : off+descsz])
}

// indexDebugInfo records the offsets of named types and top level
// variables. Types are only decoded when FindType asks for them.
func (bi *BinaryInfo) indexDebugInfo() error {
	rdr := bi.dwarf.Reader()
	for {
		entry, err := rdr.Next()
		if err != nil {
			return err
		}
		if entry == nil {
			return nil
		}
		switch entry.Tag {
		case dwarf.TagCompileUnit:
			continue
		case dwarf.TagTypedef, dwarf.TagStructType, dwarf.TagUnionType, dwarf.TagBaseType, dwarf.TagEnumerationType:
			name, _ := entry.Val(dwarf.AttrName).(string)
			decl, _ := entry.Val(dwarf.AttrDeclaration).(bool)
			if name != "" && !decl {
				if _, dup := bi.typeOffsets[name]; !dup {
					bi.typeOffsets[name] = entry.Offset
				}
			}
		case dwarf.TagVariable:
			name, _ := entry.Val(dwarf.AttrName).(string)
			typeOff, ok := entry.Val(dwarf.AttrType).(dwarf.Offset)
			if name != "" && ok {
				if _, dup := bi.globals[name]; !dup {
					bi.globals[name] = global{off: typeOff}
				}
			}
		}
		if entry.Children {
			rdr.SkipChildren()
		}
	}
}

// FindType returns the type called name.
func (bi *BinaryInfo) FindType(name string) (dwarf.Type, error) {
	bi.typesMu.Lock()
	defer bi.typesMu.Unlock()
	if typ, ok := bi.types[name]; ok {
		return typ, nil
	}
	off, ok := bi.typeOffsets[name]
	if !ok || bi.dwarf == nil {
		return nil, &TypeNotFoundError{Name: name}
	}
	typ, err := bi.dwarf.Type(off)
	if err != nil {
		return nil, fmt.Errorf("could not read type %s: %w", name, err)
	}
	bi.types[name] = typ
	return typ, nil
}

// findGlobal returns the address and type of the global variable name.
func (bi *BinaryInfo) findGlobal(name string) (uint64, dwarf.Type, error) {
	bi.typesMu.Lock()
	defer bi.typesMu.Unlock()
	addr, ok := bi.symbols[name]
	if !ok {
		return 0, nil, &SymbolNotFoundError{Name: name}
	}
	g, ok := bi.globals[name]
	if !ok {
		return 0, nil, fmt.Errorf("no type information for %s", name)
	}
	if g.typ == nil {
		if bi.dwarf == nil {
			return 0, nil, fmt.Errorf("no type information for %s", name)
		}
		typ, err := bi.dwarf.Type(g.off)
		if err != nil {
			return 0, nil, fmt.Errorf("could not read type of %s: %w", name, err)
		}
		g.typ = typ
		bi.globals[name] = g
	}
	return addr, g.typ, nil
}
