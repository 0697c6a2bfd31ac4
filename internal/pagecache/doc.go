// Package pagecache forces file-backed pages out of the OS page cache and
// reports which pages of a mapping are still resident.
//
// Dropping is a global operation: Drop flushes dirty pages system-wide and
// then asks the kernel to reclaim the whole clean page cache through
// /proc/sys/vm/drop_caches. It only produces cold faults for a particular
// file because the caller's working set dominates; do not run it next to
// unrelated cache-sensitive workloads.
//
// The capability is detected at run time. When the control file is missing
// or not writable, Open returns ErrUnsupported and callers are expected to
// carry on without dropping.
package pagecache
