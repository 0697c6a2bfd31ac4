//go:build linux || darwin

package pagecache

import "golang.org/x/sys/unix"

func syncAll() {
	unix.Sync()
}
