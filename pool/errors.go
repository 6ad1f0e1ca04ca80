package pool

import "errors"

// ErrInvalidCapacity is returned when a requested capacity is not a power of
// two, or is below the minimum of 2.
var ErrInvalidCapacity = errors.New("pool: capacity must be a power of two and at least 2")

// ErrUnsupportedType is returned when the element type is not trivially
// copyable and of standard layout, per the pool's cross-process byte-reuse
// contract.
var ErrUnsupportedType = errors.New("pool: element type is not trivially copyable")

// ErrSegmentNotFound is returned by AttachShared when no owner has created
// the named segment yet.
var ErrSegmentNotFound = errors.New("pool: shared segment not found")

// ErrHandshakeTimeout is returned when a client gives up waiting for the
// owner to publish its initialization marker.
var ErrHandshakeTimeout = errors.New("pool: timed out waiting for owner initialization")

// ErrCorruptSegment is returned when an attached segment's published header
// fails basic consistency checks (e.g. non-power-of-two capacity).
var ErrCorruptSegment = errors.New("pool: shared segment header is inconsistent")
