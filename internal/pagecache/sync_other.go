//go:build !linux && !darwin

package pagecache

func syncAll() {}
