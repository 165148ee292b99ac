package elfwriter

import (
	"debug/elf"
	"encoding/binary"
)

const (
	// NTFile is the type of notes listing the files mapped by the process.
	NTFile elf.NType = 0x46494c45 // FILE
	// NTAuxv is the type of notes holding the auxiliary vector.
	NTAuxv elf.NType = 0x6

	coreNoteName = "CORE"

	atNull  = 0
	atEntry = 9

	prpsinfoSize = 136
)

// FileMapping is a file backed mapping of a process, as recorded in a
// NT_FILE note. Offset is in pages.
type FileMapping struct {
	Start, End, Offset uint64
	Name               string
}

// PrPsInfoNote returns a NT_PRPSINFO note for a process of a 64bit Linux
// system.
func PrPsInfoNote(pid int32, fname string) Note {
	desc := make([]byte, prpsinfoSize)
	binary.LittleEndian.PutUint32(desc[24:], uint32(pid))
	copy(desc[40:56], fname)
	return Note{Type: elf.NT_PRPSINFO, Name: coreNoteName, Data: desc}
}

// AuxvNote returns a NT_AUXV note containing only the entry point.
func AuxvNote(entry uint64) Note {
	return Note{Type: NTAuxv, Name: coreNoteName, Data: words(atEntry, entry, atNull, 0)}
}

// FileNote returns a NT_FILE note listing mappings.
func FileNote(pageSize uint64, mappings []FileMapping) Note {
	ws := []uint64{uint64(len(mappings)), pageSize}
	for _, m := range mappings {
		ws = append(ws, m.Start, m.End, m.Offset)
	}
	desc := words(ws...)
	for _, m := range mappings {
		desc = append(desc, m.Name...)
		desc = append(desc, 0)
	}
	return Note{Type: NTFile, Name: coreNoteName, Data: desc}
}

func words(ws ...uint64) []byte {
	buf := make([]byte, 8*len(ws))
	for i, w := range ws {
		binary.LittleEndian.PutUint64(buf[8*i:], w)
	}
	return buf
}
