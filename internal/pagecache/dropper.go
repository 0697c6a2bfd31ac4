package pagecache

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
)

// DropCachesPath is the Linux page cache reclaim control file.
const DropCachesPath = "/proc/sys/vm/drop_caches"

// dropPageCache reclaims clean page cache only (dentries and inodes stay).
var dropPageCache = []byte("1")

var (
	// ErrUnsupported is returned when the reclaim interface is unavailable.
	ErrUnsupported = errors.New("pagecache: cache drop not supported")
	// ErrClosed is returned when dropping through a closed Dropper.
	ErrClosed = errors.New("pagecache: dropper is closed")
)

// Dropper holds an open handle to the reclaim control file.
type Dropper struct {
	f    *os.File
	sync func()
}

// Open opens the default reclaim control file.
func Open() (*Dropper, error) {
	return OpenPath(DropCachesPath)
}

// OpenPath opens the reclaim control file at path. Missing files and
// permission errors are reported as ErrUnsupported.
func OpenPath(path string) (*Dropper, error) {
	f, err := os.OpenFile(path, os.O_WRONLY, 0)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) || errors.Is(err, fs.ErrPermission) {
			return nil, fmt.Errorf("%w: %w", ErrUnsupported, err)
		}
		return nil, err
	}
	return &Dropper{f: f, sync: syncAll}, nil
}

// Drop flushes dirty pages and asks the kernel to reclaim the page cache.
func (d *Dropper) Drop() error {
	if d == nil || d.f == nil {
		return ErrClosed
	}
	d.sync()
	if _, err := d.f.WriteAt(dropPageCache, 0); err != nil {
		return fmt.Errorf("pagecache: write %s: %w", d.f.Name(), err)
	}
	return nil
}

// Close releases the control file handle. It is idempotent.
func (d *Dropper) Close() error {
	if d == nil || d.f == nil {
		return nil
	}
	err := d.f.Close()
	d.f = nil
	return err
}
