//go:build linux || darwin

package oshm

import (
	"fmt"
	"os"
	"syscall"
)

// Create creates a new named segment of exactly size bytes and maps it. It
// fails if a segment with this name already exists, mirroring the
// single-owner initialization discipline the pool relies on.
func Create(name string, size int64) (*Segment, error) {
	path := segmentPath(name)

	file, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_RDWR, 0600)
	if err != nil {
		if os.IsExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrExist, name)
		}
		return nil, fmt.Errorf("oshm: create segment file %s: %w", path, err)
	}

	cleanup := func() {
		file.Close()
		os.Remove(path)
	}

	if err := file.Truncate(size); err != nil {
		cleanup()
		return nil, fmt.Errorf("oshm: size segment %s: %w", path, err)
	}

	mem, err := syscall.Mmap(int(file.Fd()), 0, int(size), syscall.PROT_READ|syscall.PROT_WRITE, syscall.MAP_SHARED)
	if err != nil {
		cleanup()
		return nil, fmt.Errorf("oshm: mmap segment %s: %w", path, err)
	}

	return &Segment{Mem: mem, file: file, path: path}, nil
}

// Open maps an existing named segment. It fails if the segment has not been
// created yet.
func Open(name string) (*Segment, error) {
	path := segmentPath(name)

	file, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotExist, name)
		}
		return nil, fmt.Errorf("oshm: open segment file %s: %w", path, err)
	}

	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("oshm: stat segment %s: %w", path, err)
	}
	size := info.Size()
	if size == 0 {
		file.Close()
		return nil, fmt.Errorf("oshm: segment %s has zero size", path)
	}

	mem, err := syscall.Mmap(int(file.Fd()), 0, int(size), syscall.PROT_READ|syscall.PROT_WRITE, syscall.MAP_SHARED)
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("oshm: mmap segment %s: %w", path, err)
	}

	return &Segment{Mem: mem, file: file, path: path}, nil
}

// Close unmaps the segment and closes its file descriptor. It does not
// unlink the name; only the owner does that, via Unlink.
func (s *Segment) Close() error {
	var firstErr error
	if s.Mem != nil {
		if err := syscall.Munmap(s.Mem); err != nil {
			firstErr = fmt.Errorf("oshm: munmap %s: %w", s.path, err)
		}
		s.Mem = nil
	}
	if s.file != nil {
		if err := s.file.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("oshm: close %s: %w", s.path, err)
		}
		s.file = nil
	}
	return firstErr
}
