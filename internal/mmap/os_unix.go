//go:build linux || darwin

package mmap

import (
	"unsafe"

	"golang.org/x/sys/unix"
)

func osMap(f Descriptor, size int) ([]byte, error) {
	return unix.Mmap(int(f.Fd()), 0, size, unix.PROT_READ, unix.MAP_SHARED)
}

func osUnmap(data []byte) error {
	if len(data) == 0 {
		return nil
	}
	return unix.Munmap(data)
}

func osInvalidate(data []byte) error {
	if len(data) == 0 {
		return nil
	}
	err := unix.Msync(data, unix.MS_INVALIDATE)
	if err == unix.ENOSYS || err == unix.EOPNOTSUPP {
		return ErrUnsupported
	}
	return err
}

// x/sys/unix has no mincore wrapper.
func osMincore(data []byte, vec []byte) error {
	if len(data) == 0 {
		return nil
	}
	if ret, _, errno := unix.Syscall(
		unix.SYS_MINCORE,
		uintptr(unsafe.Pointer(&data[0])),
		uintptr(len(data)),
		uintptr(unsafe.Pointer(&vec[0]))); ret != 0 {
		return errno
	}
	return nil
}

func osAdvise(data []byte, pattern AccessPattern) error {
	if len(data) == 0 {
		return nil
	}

	var advice int
	switch pattern {
	case AccessSequential:
		advice = unix.MADV_SEQUENTIAL
	case AccessRandom:
		advice = unix.MADV_RANDOM
	case AccessWillNeed:
		advice = unix.MADV_WILLNEED
	case AccessDontNeed:
		advice = unix.MADV_DONTNEED
	default:
		advice = unix.MADV_NORMAL
	}

	err := unix.Madvise(data, advice)
	if err == unix.EINVAL {
		// Advisory only.
		return nil
	}
	return err
}
