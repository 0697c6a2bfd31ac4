// Package conv provides bounds-checked integer conversions.
//
// File sizes arrive as int64 from stat, while mappings and slices are
// indexed by int. On 32-bit platforms a large fault source does not fit
// the address space; these helpers turn that into an error instead of a
// silent wrap.
package conv
