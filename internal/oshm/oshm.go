// Package oshm is the collaborator boundary between the pool and the host
// operating system's named shared-memory facility: create/open by name, size,
// map into the address space, unlink, unmap. The pool's control algorithm
// never depends on how a platform implements these; it only depends on
// getting back a stable []byte view of the segment.
package oshm

import (
	"errors"
	"os"
	"path/filepath"
)

// ErrNotExist is returned by Open when the named segment does not exist.
var ErrNotExist = errors.New("oshm: segment does not exist")

// ErrExist is returned by Create when the named segment already exists.
var ErrExist = errors.New("oshm: segment already exists")

// Segment is a mapped shared-memory region backed by a named OS object.
type Segment struct {
	Mem  []byte
	file *os.File
	path string
}

// PageSize is the fixed 4096-byte granularity used to round segment sizes;
// it is not queried from the platform.
const PageSize = 4096

// RoundToPage rounds n up to the next multiple of PageSize.
func RoundToPage(n int64) int64 {
	return (n + PageSize - 1) &^ (PageSize - 1)
}

func segmentPath(name string) string {
	dir := "/dev/shm"
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		dir = os.TempDir()
	}
	return filepath.Join(dir, "objpool_"+name)
}

// Exists reports whether a segment with the given name has been created.
func Exists(name string) bool {
	_, err := os.Stat(segmentPath(name))
	return err == nil
}

// Unlink removes the named segment so no further clients can open it.
// Processes that already mapped it keep their mapping.
func Unlink(name string) error {
	err := os.Remove(segmentPath(name))
	if err != nil && os.IsNotExist(err) {
		return nil
	}
	return err
}
