package pool

import (
	"errors"
	"fmt"
	"reflect"
	"sync/atomic"
	"unsafe"

	"github.com/SlickQuant/slick-object-pool/internal/layout"
	"github.com/SlickQuant/slick-object-pool/internal/oshm"
)

// Pool is a fixed-capacity lock-free object pool for T. The zero value is
// not usable; construct one with New, NewShared, or AttachShared. A Pool
// must not be copied after first use.
type Pool[T any] struct {
	capacity uint64
	mask     uint64
	mode     BackingMode
	name     string
	stride   uintptr

	back    backing
	ctrl    *controlHeader
	seqBase unsafe.Pointer
	payBase unsafe.Pointer
	payEnd  unsafe.Pointer
}

func isPowerOfTwo(n uint64) bool {
	return n >= 2 && n&(n-1) == 0
}

func elemTypeOf[T any]() reflect.Type {
	return reflect.TypeOf((*T)(nil)).Elem()
}

func elemSizeAndAlign[T any]() (uintptr, uintptr) {
	var zero T
	return unsafe.Sizeof(zero), unsafe.Alignof(zero)
}

// New constructs a process-local pool of the given capacity. Capacity must
// be a power of two and at least 2.
func New[T any](capacity uint64) (*Pool[T], error) {
	if err := layout.CheckTrivial(elemTypeOf[T]()); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedType, err)
	}
	if !isPowerOfTwo(capacity) {
		return nil, ErrInvalidCapacity
	}

	elemSize, elemAlign := elemSizeAndAlign[T]()
	lay := computeLayout(capacity, elemSize, elemAlign)
	buf := make([]byte, lay.totalSize)

	base := unsafe.Pointer(&buf[0])
	ctrl := (*controlHeader)(base)
	initSequences(unsafe.Pointer(uintptr(base)+lay.seqArrayOffset), capacity, false)
	ctrl.capacity = capacity
	ctrl.version = segmentVersion
	ctrl.magic = poolMagicWord()

	return newPool[T](capacity, lay, &localBacking{buf: buf}, ModeLocal, ""), nil
}

// NewShared constructs a pool backed by a named shared-memory segment. If no
// segment with this name exists yet, the caller becomes the owner: it
// creates the segment sized for capacity and initializes it. If the segment
// already exists, the caller instead attaches to it as a client, in which
// case capacity (which must still be a valid power of two) is otherwise
// ignored in favor of whatever the owner configured — the segment's
// published capacity always wins.
func NewShared[T any](capacity uint64, name string) (*Pool[T], error) {
	if err := layout.CheckTrivial(elemTypeOf[T]()); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedType, err)
	}
	if !isPowerOfTwo(capacity) {
		return nil, ErrInvalidCapacity
	}

	elemSize, elemAlign := elemSizeAndAlign[T]()
	lay := computeLayout(capacity, elemSize, elemAlign)
	size := oshm.RoundToPage(int64(lay.totalSize))

	seg, err := oshm.Create(name, size)
	if err == nil {
		base := unsafe.Pointer(&seg.Mem[0])
		ctrl := (*controlHeader)(base)
		initSequences(unsafe.Pointer(uintptr(base)+lay.seqArrayOffset), capacity, true)
		atomic.StoreUint64(&ctrl.reserved, 0)
		atomic.StoreUint64(&ctrl.consumed, 0)
		atomic.StoreUint64(&ctrl.capacity, capacity)
		atomic.StoreUint32(&ctrl.version, segmentVersion)
		// Final initialization step: publish the magic word with release
		// ordering so any client's acquire load happens-after every prior
		// write, per the §4.4 owner/client handshake.
		atomic.StoreUint64(&ctrl.magic, poolMagicWord())

		back := &sharedBacking{seg: seg, owner: true, name: name}
		return newPool[T](capacity, lay, back, ModeSharedOwner, name), nil
	}
	if !isSegmentExistsErr(err) {
		return nil, fmt.Errorf("pool: create shared segment %q: %w", name, err)
	}
	return attachShared[T](name)
}

// AttachShared attaches to an existing shared-memory segment as a client.
// It never initializes anything; if no owner has created the segment yet,
// it returns ErrSegmentNotFound.
func AttachShared[T any](name string) (*Pool[T], error) {
	if err := layout.CheckTrivial(elemTypeOf[T]()); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedType, err)
	}
	return attachShared[T](name)
}

func attachShared[T any](name string) (*Pool[T], error) {
	seg, err := oshm.Open(name)
	if err != nil {
		if isSegmentNotFoundErr(err) {
			return nil, fmt.Errorf("%w: %s", ErrSegmentNotFound, name)
		}
		return nil, fmt.Errorf("pool: attach shared segment %q: %w", name, err)
	}

	ctrl := (*controlHeader)(unsafe.Pointer(&seg.Mem[0]))
	if err := waitForMagic(ctrl); err != nil {
		seg.Close()
		return nil, fmt.Errorf("pool: attach shared segment %q: %w", name, err)
	}

	capacity := atomic.LoadUint64(&ctrl.capacity)
	if !isPowerOfTwo(capacity) {
		seg.Close()
		return nil, fmt.Errorf("pool: attach shared segment %q: %w", name, ErrCorruptSegment)
	}
	if version := atomic.LoadUint32(&ctrl.version); version != segmentVersion {
		seg.Close()
		return nil, fmt.Errorf("pool: attach shared segment %q: owner layout version %d, want %d: %w", name, version, segmentVersion, ErrCorruptSegment)
	}

	elemSize, elemAlign := elemSizeAndAlign[T]()
	lay := computeLayout(capacity, elemSize, elemAlign)

	back := &sharedBacking{seg: seg, owner: false, name: name}
	return newPool[T](capacity, lay, back, ModeSharedClient, name), nil
}

// initSequences sets sequence[i] = i for every slot, the state that makes
// every slot immediately available for allocation. In owner-shared mode the
// stores use release ordering, since a client's later acquire load of the
// magic word must observe them; in local/single-threaded construction plain
// stores suffice.
func initSequences(seqBase unsafe.Pointer, capacity uint64, releaseStores bool) {
	for i := uint64(0); i < capacity; i++ {
		p := (*uint64)(unsafe.Pointer(uintptr(seqBase) + uintptr(i)*8))
		if releaseStores {
			atomic.StoreUint64(p, i)
		} else {
			*p = i
		}
	}
}

func newPool[T any](capacity uint64, lay segmentLayout, back backing, mode BackingMode, name string) *Pool[T] {
	mem := back.bytes()
	base := unsafe.Pointer(&mem[0])
	return &Pool[T]{
		capacity: capacity,
		mask:     capacity - 1,
		mode:     mode,
		name:     name,
		stride:   lay.payloadStride,
		back:     back,
		ctrl:     (*controlHeader)(base),
		seqBase:  unsafe.Pointer(uintptr(base) + lay.seqArrayOffset),
		payBase:  unsafe.Pointer(uintptr(base) + lay.payloadOffset),
		payEnd:   unsafe.Pointer(uintptr(base) + lay.payloadOffset + uintptr(capacity)*lay.payloadStride),
	}
}

func (p *Pool[T]) seqAt(i uint64) *uint64 {
	return (*uint64)(unsafe.Pointer(uintptr(p.seqBase) + uintptr(i)*8))
}

func (p *Pool[T]) payloadAt(i uint64) *T {
	return (*T)(unsafe.Pointer(uintptr(p.payBase) + uintptr(i)*p.stride))
}

func (p *Pool[T]) inRange(ptr *T) bool {
	addr := uintptr(unsafe.Pointer(ptr))
	return addr >= uintptr(p.payBase) && addr < uintptr(p.payEnd)
}

// FromPool reports whether ptr was handed out from this pool's ring, as
// opposed to a heap fallback allocation made when the ring was saturated.
// Callers that want to distinguish the two paths — for metrics or
// diagnostics — should use this rather than re-deriving the address check.
func (p *Pool[T]) FromPool(ptr *T) bool {
	return p.inRange(ptr)
}

// Allocate returns a pointer to uninitialized storage for one T, valid until
// a matching Free. It never blocks and never fails: once the ring is
// saturated it transparently falls back to a heap allocation (§4.3).
func (p *Pool[T]) Allocate() *T {
	for {
		reserved := atomic.LoadUint64(&p.ctrl.reserved)
		i := reserved & p.mask
		seqPtr := p.seqAt(i)
		seq := atomic.LoadUint64(seqPtr)

		switch {
		case seq == reserved:
			if atomic.CompareAndSwapUint64(&p.ctrl.reserved, reserved, reserved+1) {
				ptr := p.payloadAt(i)
				atomic.StoreUint64(seqPtr, reserved+1)
				return ptr
			}
			// Lost the race for this ticket; reload and retry.
		case seq < reserved:
			// This slot has not been returned since its last occupation:
			// the ring is saturated at this ticket. Route to the heap
			// rather than spin indefinitely.
			return new(T)
		default:
			// seq > reserved: another producer already advanced past this
			// ticket. Reload reserved and retry.
		}
	}
}

// slotIndex derives the ring slot ptr occupies from its address, rather than
// from any shared counter. Every slot's own sequence value already encodes
// which ticket last claimed it, so this is the only input Free needs to
// locate and validate the correct slot.
func (p *Pool[T]) slotIndex(ptr *T) uint64 {
	offset := uintptr(unsafe.Pointer(ptr)) - uintptr(p.payBase)
	return (uint64(offset / p.stride)) & p.mask
}

// Free returns ptr to the pool, or releases it to the heap if it did not
// originate from this pool's payload array. ptr must have been returned by
// Allocate on this pool (or an attached client of it, in shared mode);
// freeing anything else, or freeing the same pointer twice, is undefined
// behavior.
func (p *Pool[T]) Free(ptr *T) {
	if !p.inRange(ptr) {
		// Fallback object: nothing to do. The caller drops its last
		// reference and the Go heap reclaims it.
		return
	}

	i := p.slotIndex(ptr)
	seqPtr := p.seqAt(i)
	// A slot's sequence value modulo capacity is i while it's available for
	// allocation and (i+1) mod capacity while it's occupied — this holds for
	// every cycle the slot goes through, since Allocate advances it by one
	// and Free advances it by capacity-1. That lets Free validate and own
	// its target slot without consulting reserved/consumed at all.
	occupied := (i + 1) & p.mask

	for {
		seq := atomic.LoadUint64(seqPtr)
		if seq&p.mask != occupied {
			// This slot is not currently occupied: double-free or some
			// other precondition violation. The contract leaves this
			// undefined; return without corrupting state.
			return
		}
		if atomic.CompareAndSwapUint64(seqPtr, seq, seq+p.capacity-1) {
			atomic.AddUint64(&p.ctrl.consumed, 1)
			return
		}
		// Lost a race on this slot's own sequence; reload and retry.
	}
}

// Capacity returns the pool's fixed slot count.
func (p *Pool[T]) Capacity() uint64 { return p.capacity }

// OwnsBacking reports whether this Pool created (and is responsible for
// tearing down) its backing store: true for local and shared-owner pools,
// false for shared-client pools.
func (p *Pool[T]) OwnsBacking() bool { return p.mode != ModeSharedClient }

// UsesSharedMemory reports whether this Pool is backed by a named
// shared-memory segment, whether as owner or client.
func (p *Pool[T]) UsesSharedMemory() bool { return p.mode != ModeLocal }

// Mode returns the pool's backing mode.
func (p *Pool[T]) Mode() BackingMode { return p.mode }

// Name returns the shared-segment name, or "" for a local pool.
func (p *Pool[T]) Name() string { return p.name }

// Reserved returns the current allocate-side ticket. Exposed for tests and
// diagnostics; not part of the operational contract.
func (p *Pool[T]) Reserved() uint64 { return atomic.LoadUint64(&p.ctrl.reserved) }

// Consumed returns the number of in-pool Frees completed so far. Exposed for tests and
// diagnostics; not part of the operational contract.
func (p *Pool[T]) Consumed() uint64 { return atomic.LoadUint64(&p.ctrl.consumed) }

// Close tears down the pool's backing store. Local pools simply drop their
// heap allocation; shared-owner pools unlink the segment name (existing
// clients keep their mapping, per §4.4) and unmap; shared-client pools only
// unmap. Close must not race with any Allocate or Free on this pool.
func (p *Pool[T]) Close() error {
	return p.back.close()
}

func isSegmentExistsErr(err error) bool {
	return errors.Is(err, oshm.ErrExist)
}

func isSegmentNotFoundErr(err error) bool {
	return errors.Is(err, oshm.ErrNotExist)
}
