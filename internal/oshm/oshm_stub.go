//go:build !linux && !darwin

package oshm

import "errors"

// ErrUnsupported is returned by Create and Open on platforms without a named
// shared-memory mapping facility wired up.
var ErrUnsupported = errors.New("oshm: shared memory not supported on this platform")

// Create is unsupported outside linux/darwin.
func Create(name string, size int64) (*Segment, error) {
	return nil, ErrUnsupported
}

// Open is unsupported outside linux/darwin.
func Open(name string) (*Segment, error) {
	return nil, ErrUnsupported
}

// Close is a no-op stub.
func (s *Segment) Close() error {
	return nil
}
