package proc

import (
	"bytes"
	"testing"
)

func TestPageCache(t *testing.T) {
	data := make([]byte, 3*cachePageSize+100)
	for i := range data {
		data[i] = byte(i)
	}
	mem := &bufMem{base: 0x10000, data: data}
	cached := CacheMemory(mem, 2)

	if CacheMemory(cached, 2) != cached {
		t.Fatalf("cache wrapped twice")
	}

	tests := []struct {
		name string
		addr uint64
		len  int
	}{
		{"within page", 0x10010, 16},
		{"across pages", 0x10000 + cachePageSize - 8, 16},
		{"three pages", 0x10000 + 10, 2*cachePageSize + 10},
		{"partial last page", 0x10000 + 3*cachePageSize + 10, 50},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			got := make([]byte, test.len)
			n, err := cached.ReadMemory(got, test.addr)
			if err != nil || n != test.len {
				t.Fatalf("ReadMemory = %d, %v", n, err)
			}
			off := test.addr - mem.base
			if !bytes.Equal(got, data[off:off+uint64(test.len)]) {
				t.Fatalf("wrong data read at %#x", test.addr)
			}
		})
	}

	reads := mem.reads
	buf := make([]byte, 8)
	if _, err := cached.ReadMemory(buf, 0x10000+2*cachePageSize+4); err != nil {
		t.Fatal(err)
	}
	if mem.reads != reads {
		t.Fatalf("read of a cached page reached the underlying memory")
	}

	if _, err := cached.ReadMemory(buf, 0x20000000); err == nil {
		t.Fatalf("expected error reading unmapped memory")
	}
}

func TestCacheMemoryRange(t *testing.T) {
	mem := &bufMem{base: 0x1000, data: []byte("0123456789abcdef")}
	c, err := cacheMemory(mem, 0x1004, 4)
	if err != nil {
		t.Fatal(err)
	}
	mem.data[5] = 'X'
	buf := make([]byte, 4)
	if _, err := c.ReadMemory(buf, 0x1004); err != nil || string(buf) != "4567" {
		t.Fatalf("cached read = %q, %v", buf, err)
	}
	if _, err := c.ReadMemory(buf, 0x1000); err != nil || string(buf) != "0123" {
		t.Fatalf("read outside snapshot = %q, %v", buf, err)
	}
	if _, err := cacheMemory(mem, 0x1010, 4); err == nil {
		t.Fatalf("expected error caching unmapped range")
	}
}
