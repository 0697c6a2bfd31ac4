package testutil

import (
	"math/rand"
	"os"
	"path/filepath"
	"sync"
	"testing"
)

// PageMarker returns the byte CreateSizedFile writes at the start of page i.
func PageMarker(i int) byte {
	return byte(i%251 + 1)
}

// CreateSizedFile writes a file of size bytes into t.TempDir() and returns
// its path. The first byte of every pageSize-sized page is PageMarker(i).
func CreateSizedFile(t testing.TB, size int64) string {
	t.Helper()
	return CreateSizedFileIn(t, t.TempDir(), "fault-source.bin", size)
}

// CreateSizedFileIn is CreateSizedFile with an explicit directory and name.
func CreateSizedFileIn(t testing.TB, dir, name string, size int64) string {
	t.Helper()

	pageSize := int64(os.Getpagesize())
	data := make([]byte, size)
	for off := int64(0); off < size; off += pageSize {
		data[off] = PageMarker(int(off / pageSize))
	}

	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("create %s: %v", path, err)
	}
	return path
}

// RNG struct encapsulates the random number generator and seed.
// It is thread-safe.
type RNG struct {
	rand *rand.Rand
	seed int64
	mu   sync.Mutex
}

// NewRNG creates a new RNG instance with the specified seed.
func NewRNG(seed int64) *RNG {
	return &RNG{
		rand: rand.New(rand.NewSource(seed)),
		seed: seed,
	}
}

// Reset resets the RNG to its initial seed.
func (r *RNG) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rand.Seed(r.seed)
}

// Seed returns the initial seed.
func (r *RNG) Seed() int64 {
	return r.seed
}

// Intn returns a non-negative pseudo-random number in [0,n).
func (r *RNG) Intn(n int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rand.Intn(n)
}

// Int63n returns a non-negative pseudo-random number in [0,n).
func (r *RNG) Int63n(n int64) int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rand.Int63n(n)
}
