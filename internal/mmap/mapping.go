package mmap

import (
	"os"
	"sync/atomic"
)

// PageSize returns the platform page size in bytes.
func PageSize() int {
	return os.Getpagesize()
}

// Descriptor is an open file that can be mapped.
type Descriptor interface {
	Fd() uintptr
}

// Mapping represents a read-only shared mapping of a file.
// It owns the mapped byte slice but not the file.
type Mapping struct {
	f      Descriptor
	data   []byte
	size   int
	remaps atomic.Uint64
	closed atomic.Bool
}

// Map maps the first size bytes of f into memory as read-only and shared.
func Map(f Descriptor, size int) (*Mapping, error) {
	if size <= 0 {
		return nil, ErrInvalidSize
	}

	data, err := osMap(f, size)
	if err != nil {
		return nil, err
	}

	return &Mapping{
		f:    f,
		data: data,
		size: size,
	}, nil
}

// Remap unmaps the current range and immediately maps the file again.
// The new range shares nothing with the old one, so every page faults anew.
// If the second mmap fails the mapping is closed.
func (m *Mapping) Remap() error {
	if m.closed.Load() {
		return ErrClosed
	}
	if err := osUnmap(m.data); err != nil {
		return err
	}
	m.data = nil

	data, err := osMap(m.f, m.size)
	if err != nil {
		m.closed.Store(true)
		return err
	}
	m.data = data
	m.remaps.Add(1)
	return nil
}

// Remaps returns how many times Remap succeeded.
func (m *Mapping) Remaps() uint64 {
	return m.remaps.Load()
}

// Invalidate asks the kernel to invalidate cached translations for the
// mapping (msync with MS_INVALIDATE).
func (m *Mapping) Invalidate() error {
	if m.closed.Load() {
		return ErrClosed
	}
	return osInvalidate(m.data)
}

// Mincore fills vec with one residency byte per page. The low bit of each
// entry is set when the page is resident.
func (m *Mapping) Mincore(vec []byte) error {
	if m.closed.Load() {
		return ErrClosed
	}
	pages := (m.size + PageSize() - 1) / PageSize()
	if len(vec) < pages {
		return ErrShortVector
	}
	return osMincore(m.data, vec[:pages])
}

// Advise provides hints to the kernel about how the memory will be accessed.
func (m *Mapping) Advise(pattern AccessPattern) error {
	if m.closed.Load() {
		return ErrClosed
	}
	return osAdvise(m.data, pattern)
}

// Close unmaps the memory. It is idempotent.
func (m *Mapping) Close() error {
	if m.closed.Swap(true) {
		return nil // Already closed
	}
	if m.data == nil {
		return nil
	}
	err := osUnmap(m.data)
	m.data = nil
	return err
}

// Bytes returns the underlying byte slice.
// Warning: The slice is valid only until the next Remap or Close.
func (m *Mapping) Bytes() []byte {
	if m.closed.Load() {
		return nil
	}
	return m.data
}

// Size returns the size of the mapping in bytes.
func (m *Mapping) Size() int {
	return m.size
}
