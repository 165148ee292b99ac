package proc

import (
	"encoding/binary"
	"testing"
)

func TestParseBuildIDNote(t *testing.T) {
	note := make([]byte, 12)
	binary.LittleEndian.PutUint32(note[0:], 4)
	binary.LittleEndian.PutUint32(note[4:], 4)
	binary.LittleEndian.PutUint32(note[8:], 3)
	note = append(note, "GNU\x00"...)
	note = append(note, 0xde, 0xad, 0xbe, 0xef)

	if got := parseBuildIDNote(note, binary.LittleEndian); got != "deadbeef" {
		t.Fatalf("build id = %q", got)
	}

	binary.LittleEndian.PutUint32(note[8:], 1)
	if got := parseBuildIDNote(note, binary.LittleEndian); got != "" {
		t.Fatalf("wrong note type accepted: %q", got)
	}
	if got := parseBuildIDNote(note[:8], binary.LittleEndian); got != "" {
		t.Fatalf("short note accepted: %q", got)
	}
}
