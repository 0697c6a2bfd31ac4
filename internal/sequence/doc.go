// Package sequence builds page access sequences.
//
// A sequence is a slice of byte offsets, one per page, each a multiple of
// the page size. Both disciplines produce a bijection onto
// {0, pageSize, ..., (pageCount-1)*pageSize}; only the order differs:
//
//   - Serial: ascending order
//   - Random: a uniformly random permutation (Fisher-Yates)
package sequence
