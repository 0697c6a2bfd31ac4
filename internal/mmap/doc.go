// Package mmap provides remappable, read-only shared file mappings.
//
// # Overview
//
// A Mapping is a view of an open file that can be torn down and
// re-established in place. Every Remap produces a brand new address range,
// so the first access to each page after a Remap has to go through the
// kernel fault path again. This is the property the page-fault benchmark
// relies on.
//
// # Usage
//
//	f, _ := os.Open("fault-source.bin")
//	m, err := mmap.Map(f, size)
//	if err != nil { ... }
//	defer m.Close()
//
//	_ = m.Bytes()[offset] // fault the page in
//	_ = m.Remap()         // fresh address range, pages must fault again
//	_ = m.Invalidate()    // msync(MS_INVALIDATE), ErrUnsupported if absent
//
//	vec := make([]byte, pages)
//	_ = m.Mincore(vec)    // per-page residency
//
// # Platform Support
//
//   - Linux, macOS: mmap(2), msync(2), mincore(2), madvise(2)
//   - Other platforms: Map returns ErrUnsupported
//   - Windows: CreateFileMapping/MapViewOfFile; Invalidate and Mincore
//     return ErrUnsupported, Advise is a no-op
//
// # Ownership
//
// The Mapping does not own the file descriptor. Callers keep the *os.File
// open for the lifetime of the Mapping and close it after Close.
package mmap
