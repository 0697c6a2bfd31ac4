//go:build !linux && !darwin && !windows

package mmap

func osMap(f Descriptor, size int) ([]byte, error) {
	return nil, ErrUnsupported
}

func osUnmap(data []byte) error {
	return nil
}

func osInvalidate(data []byte) error {
	return ErrUnsupported
}

func osMincore(data []byte, vec []byte) error {
	return ErrUnsupported
}

func osAdvise(data []byte, pattern AccessPattern) error {
	return nil // No-op
}
