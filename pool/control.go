package pool

import (
	"encoding/binary"
	"sync/atomic"
	"time"
)

const (
	// cacheLineSize is the granularity at which reserved/consumed are
	// isolated from each other, matching common x86-64 and arm64 L1 line
	// sizes.
	cacheLineSize = 64

	// controlHeaderSize is two cache lines: reserved+capacity+magic+version
	// on line A, consumed on line B.
	controlHeaderSize = 2 * cacheLineSize

	// segmentVersion identifies the on-disk/in-memory layout of the control
	// header and slot array. Bump it if the layout ever changes; attachShared
	// rejects a mismatch with ErrCorruptSegment rather than trusting a
	// layout it cannot verify.
	segmentVersion = uint32(1)

	// handshakeTimeout bounds how long a client spins waiting for the owner
	// to publish its initialization marker.
	handshakeTimeout = 5 * time.Second

	// handshakePoll is the interval between magic-marker re-checks.
	handshakePoll = 200 * time.Microsecond
)

// controlHeader occupies the first two cache lines of every pool's backing
// store, local or shared. Line A carries reserved (the allocate-side
// ticket), capacity (read-only after init), and the handshake fields; line B
// carries consumed alone, so a consumer's cache line is never invalidated by
// producer traffic and vice versa.
type controlHeader struct {
	reserved uint64   // 0x00: next ticket allocate() will attempt to claim
	capacity uint64   // 0x08: fixed at construction, read-only thereafter
	magic    uint64   // 0x10: written last, with release, by the owner
	version  uint32   // 0x18: checked by attachShared against segmentVersion
	_padA    [36]byte // 0x1C-0x3F: pad line A to 64 bytes

	consumed uint64   // 0x40: count of slots successfully returned by free(); diagnostic only, not consulted to pick a slot
	_padB    [56]byte // 0x48-0x7F: pad line B to 64 bytes
}

var poolMagicBytes = [8]byte{'O', 'B', 'J', 'P', 'O', 'O', 'L', 0}

func poolMagicWord() uint64 {
	return binary.LittleEndian.Uint64(poolMagicBytes[:])
}

// segmentLayout is the byte-offset arithmetic shared by local and shared
// backing stores: control header, then the packed slot-sequence array, then
// the element-aligned payload array.
type segmentLayout struct {
	seqArrayOffset uintptr
	payloadOffset  uintptr
	payloadStride  uintptr
	totalSize      uintptr
}

func alignUp(n, align uintptr) uintptr {
	if align <= 1 {
		return n
	}
	return (n + align - 1) &^ (align - 1)
}

// computeLayout mirrors spec.md §4.4's four-part layout: a two-cache-line
// header, a packed slot-control array (one uint64 sequence per slot, no
// per-slot padding — the "typical implementation" choice §4.4 leaves open),
// and an element-aligned payload array.
func computeLayout(capacity uint64, elemSize, elemAlign uintptr) segmentLayout {
	seqOff := uintptr(controlHeaderSize)
	seqBytes := uintptr(capacity) * 8

	stride := alignUp(elemSize, elemAlign)
	if stride == 0 {
		stride = 1
	}
	payOff := alignUp(seqOff+seqBytes, elemAlign)
	total := payOff + uintptr(capacity)*stride

	return segmentLayout{
		seqArrayOffset: seqOff,
		payloadOffset:  payOff,
		payloadStride:  stride,
		totalSize:      total,
	}
}

// waitForMagic spins with a bounded timeout until the owner's release store
// of the magic word becomes visible, resolving the race where a client
// attaches before the owner has finished populating slot sequences (§4.4).
// A client must never observe uninitialized sequences as valid; this is the
// gate that prevents it.
func waitForMagic(ctrl *controlHeader) error {
	deadline := time.Now().Add(handshakeTimeout)
	want := poolMagicWord()
	for {
		if atomic.LoadUint64(&ctrl.magic) == want {
			return nil
		}
		if time.Now().After(deadline) {
			return ErrHandshakeTimeout
		}
		time.Sleep(handshakePoll)
	}
}
