// Package fs provides filesystem abstractions for testability and fault injection.
//
// The package defines two key interfaces:
//
//   - [File]: an open file that can also be memory mapped (it exposes Fd)
//   - [FileSystem]: open, remove and stat
//
// # Implementations
//
//   - [LocalFS]: Production implementation using standard os package
//   - [FaultyFS]: Test utility for fault injection (simulate I/O errors)
//
// # Cloning
//
// [Copy] clones a file to a new path, optionally throttled through a
// resource.Controller. The benchmark uses it to give every process its own
// page cache identity for the fault source:
//
//	err := fs.Copy(ctx, fs.Default, src, dst, 0o600, rc)
//
// On failure the partial copy is removed.
package fs
