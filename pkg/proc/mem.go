package proc

import (
	lru "github.com/hashicorp/golang-lru"
)

const (
	cacheEnabled  = true
	cachePageSize = 0x1000

	// DefaultCachePages is the number of pages CacheMemory keeps when no
	// explicit size is given.
	DefaultCachePages = 256
)

// MemoryReader is like io.ReaderAt, but the offset is a uint64 so that it
// can address all of 64-bit memory.
type MemoryReader interface {
	// ReadMemory is just like io.ReaderAt.ReadAt.
	ReadMemory(buf []byte, addr uint64) (n int, err error)
}

// pageCache serves reads of a read-only memory image out of whole cached
// pages. Core files never change, so entries are never invalidated.
type pageCache struct {
	mem   MemoryReader
	pages *lru.Cache
}

// CacheMemory wraps mem with a page cache holding up to npages pages. If
// npages is not positive DefaultCachePages is used.
func CacheMemory(mem MemoryReader, npages int) MemoryReader {
	if !cacheEnabled {
		return mem
	}
	if _, isCache := mem.(*pageCache); isCache {
		return mem
	}
	if npages <= 0 {
		npages = DefaultCachePages
	}
	pages, err := lru.New(npages)
	if err != nil {
		return mem
	}
	return &pageCache{mem: mem, pages: pages}
}

func (c *pageCache) page(base uint64) ([]byte, bool) {
	if p, ok := c.pages.Get(base); ok {
		return p.([]byte), true
	}
	p := make([]byte, cachePageSize)
	n, err := c.mem.ReadMemory(p, base)
	if err != nil || n != cachePageSize {
		// Partially mapped pages are not cached, the caller reads through.
		return nil, false
	}
	c.pages.Add(base, p)
	return p, true
}

// ReadMemory implements MemoryReader.ReadMemory.
func (c *pageCache) ReadMemory(buf []byte, addr uint64) (int, error) {
	n := 0
	for n < len(buf) {
		cur := addr + uint64(n)
		base := cur &^ (cachePageSize - 1)
		p, ok := c.page(base)
		if !ok {
			m, err := c.mem.ReadMemory(buf[n:], cur)
			return n + m, err
		}
		n += copy(buf[n:], p[cur-base:])
	}
	return n, nil
}

// memCache is a snapshot of a single contiguous range of memory.
type memCache struct {
	cacheAddr uint64
	cache     []byte
	mem       MemoryReader
}

func (m *memCache) contains(addr uint64, size int) bool {
	return addr >= m.cacheAddr && addr+uint64(size) <= m.cacheAddr+uint64(len(m.cache))
}

func (m *memCache) ReadMemory(data []byte, addr uint64) (n int, err error) {
	if m.contains(addr, len(data)) {
		copy(data, m.cache[addr-m.cacheAddr:])
		return len(data), nil
	}
	return m.mem.ReadMemory(data, addr)
}

// cacheMemory reads size bytes at addr from mem and returns a reader that
// serves that range from the copy.
func cacheMemory(mem MemoryReader, addr uint64, size int) (MemoryReader, error) {
	if size <= 0 {
		return mem, nil
	}
	if cacheMem, isCache := mem.(*memCache); isCache {
		if cacheMem.contains(addr, size) {
			return mem, nil
		}
		mem = cacheMem.mem
	}
	cache := make([]byte, size)
	if err := readFull(mem, cache, addr); err != nil {
		return mem, err
	}
	return &memCache{addr, cache, mem}, nil
}

func readFull(mem MemoryReader, buf []byte, addr uint64) error {
	n, err := mem.ReadMemory(buf, addr)
	if err != nil {
		return &MemoryReadError{Addr: addr, Len: len(buf), Err: err}
	}
	if n != len(buf) {
		return &MemoryReadError{Addr: addr, Len: len(buf), Err: ErrShortRead}
	}
	return nil
}
