// Package testutil provides testing utilities for pagefault.
//
// This package is intended for use in tests only. It creates fault source
// files of a given size and provides a seeded, thread-safe RNG.
//
// # Fault Sources
//
//	path := testutil.CreateSizedFile(t, 2<<20) // 2 MiB in t.TempDir()
//
// Every page of the file starts with a distinct byte, so a test can tell
// which page a mapped offset belongs to.
//
// # Random Sizes
//
//	rng := testutil.NewRNG(seed)
//	size := rng.Int63n(64 << 20)
package testutil
