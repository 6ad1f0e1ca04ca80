package pool

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type point struct {
	X, Y int64
}

type hasPointer struct {
	P *int
}

func uniqueSegName(t *testing.T) string {
	t.Helper()
	return fmt.Sprintf("objpool-test-%s-%d", t.Name(), time.Now().UnixNano())
}

func TestNewRejectsNonPowerOfTwoCapacity(t *testing.T) {
	for _, cap := range []uint64{0, 1, 3, 5, 6, 7, 9, 1000} {
		if _, err := New[point](cap); err != ErrInvalidCapacity {
			t.Fatalf("capacity %d: expected ErrInvalidCapacity, got %v", cap, err)
		}
	}
}

func TestNewAcceptsPowerOfTwoCapacity(t *testing.T) {
	for _, cap := range []uint64{2, 4, 8, 16, 1024} {
		p, err := New[point](cap)
		if err != nil {
			t.Fatalf("capacity %d: unexpected error: %v", cap, err)
		}
		if p.Capacity() != cap {
			t.Fatalf("capacity %d: Capacity() returned %d", cap, p.Capacity())
		}
	}
}

func TestNewRejectsNonTrivialType(t *testing.T) {
	if _, err := New[hasPointer](4); err == nil {
		t.Fatal("expected error constructing a pool over a type containing a pointer")
	}
}

func TestAllocateFreeRoundTrip(t *testing.T) {
	p, err := New[point](8)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	ptr := p.Allocate()
	if ptr == nil {
		t.Fatal("Allocate returned nil")
	}
	ptr.X, ptr.Y = 7, 9

	if !p.inRange(ptr) {
		t.Fatal("allocation from a fresh pool should come from the payload array")
	}

	p.Free(ptr)

	if got := p.Reserved(); got != 1 {
		t.Fatalf("expected reserved == 1 after one Allocate, got %d", got)
	}
	if got := p.Consumed(); got != 1 {
		t.Fatalf("expected consumed == 1 after one Free, got %d", got)
	}
}

func TestAllocateExhaustsThenFallsBackToHeap(t *testing.T) {
	const cap = 4
	p, err := New[point](cap)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	inPool := make([]*point, 0, cap)
	for i := 0; i < cap; i++ {
		ptr := p.Allocate()
		if !p.inRange(ptr) {
			t.Fatalf("slot %d: expected an in-pool allocation", i)
		}
		inPool = append(inPool, ptr)
	}

	overflow := p.Allocate()
	if p.FromPool(overflow) {
		t.Fatal("expected the (cap+1)th allocation to fall back to the heap")
	}
	overflow.X = 42
	if overflow.X != 42 {
		t.Fatal("heap fallback allocation should be usable like any other pointer")
	}

	// Freeing a heap pointer is a harmless no-op.
	p.Free(overflow)

	for _, ptr := range inPool {
		p.Free(ptr)
	}
	if got := p.Consumed(); got != cap {
		t.Fatalf("expected consumed == %d after freeing all in-pool slots, got %d", cap, got)
	}

	// The freed slots are available again.
	reused := p.Allocate()
	if !p.inRange(reused) {
		t.Fatal("expected a freed slot to be reusable")
	}
}

func TestAllocateReusesFreedSlotValue(t *testing.T) {
	p, err := New[point](2)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	first := p.Allocate()
	firstAddr := first
	p.Free(first)

	other := p.Allocate()
	p.Free(other)

	// With capacity 2, the ticket that lands on the same slot as first comes
	// around two allocations later; freeing everything in between lets this
	// one come from the pool instead of falling back to the heap.
	reused := p.Allocate()
	if reused != firstAddr {
		t.Fatalf("expected the freed slot's address to be reused, got a different pointer")
	}
	p.Free(reused)
}

// TestFreeDoesNotRecycleAnotherLiveSlot guards against Free selecting its
// target slot from the shared consumed counter instead of from the pointer
// it was actually given: freeing a newer allocation must never recycle an
// older one that is still held live, even though the older ticket is the
// one a FIFO-style consumed counter would name next.
func TestFreeDoesNotRecycleAnotherLiveSlot(t *testing.T) {
	p, err := New[point](2)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	a := p.Allocate() // held live for the whole test
	b := p.Allocate()

	// Free the newer allocation first.
	p.Free(b)

	// a's slot is still occupied, so the ring is saturated at the next
	// ticket; a correct Allocate falls back to the heap rather than handing
	// out a's still-live address.
	c := p.Allocate()
	if p.FromPool(c) {
		t.Fatal("expected Allocate to fall back to the heap while a's slot remains live")
	}
	if c == a {
		t.Fatal("Allocate handed out a's still-live slot address")
	}

	p.Free(c) // heap pointer: harmless no-op
	p.Free(a)
}

func TestConcurrentAllocateFreeConservesReservedConsumed(t *testing.T) {
	const cap = 64
	const producers = 8
	const perProducer = 2000

	p, err := New[point](cap)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	var wg sync.WaitGroup
	var totalAllocs int64
	wg.Add(producers)
	for i := 0; i < producers; i++ {
		go func() {
			defer wg.Done()
			for j := 0; j < perProducer; j++ {
				ptr := p.Allocate()
				ptr.X = int64(j)
				atomic.AddInt64(&totalAllocs, 1)
				p.Free(ptr)
			}
		}()
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(30 * time.Second):
		t.Fatal("concurrent allocate/free workload timed out")
	}

	if totalAllocs != producers*perProducer {
		t.Fatalf("expected %d total allocations, got %d", producers*perProducer, totalAllocs)
	}
	if p.Reserved() != p.Consumed() {
		t.Fatalf("expected reserved == consumed after workload drains, got reserved=%d consumed=%d", p.Reserved(), p.Consumed())
	}
}

func TestSharedOwnerAndClientSeeSameValues(t *testing.T) {
	name := uniqueSegName(t)

	owner, err := NewShared[point](8, name)
	if err != nil {
		t.Fatalf("NewShared (owner) failed: %v", err)
	}
	defer owner.Close()

	client, err := AttachShared[point](name)
	if err != nil {
		t.Fatalf("AttachShared failed: %v", err)
	}
	defer client.Close()

	if !owner.UsesSharedMemory() || !client.UsesSharedMemory() {
		t.Fatal("both owner and client pools should report shared-memory backing")
	}
	if !owner.OwnsBacking() {
		t.Fatal("owner pool should report OwnsBacking() == true")
	}
	if client.OwnsBacking() {
		t.Fatal("client pool should report OwnsBacking() == false")
	}

	ptr := owner.Allocate()
	ptr.X, ptr.Y = 11, 22

	// A client pool over the same segment observes the owner's write at the
	// same byte offset without any copy or message passing.
	clientView := client.payloadAt(0)
	if clientView.X != 11 || clientView.Y != 22 {
		t.Fatalf("client did not observe owner's write: got %+v", *clientView)
	}

	owner.Free(ptr)
}

func TestAttachSharedWithoutOwnerFails(t *testing.T) {
	name := uniqueSegName(t)
	if _, err := AttachShared[point](name); err == nil {
		t.Fatal("expected AttachShared to fail when no owner has created the segment")
	}
}

func TestNewSharedSecondCallerAttachesInsteadOfRecreating(t *testing.T) {
	name := uniqueSegName(t)

	owner, err := NewShared[point](16, name)
	if err != nil {
		t.Fatalf("NewShared (owner) failed: %v", err)
	}
	defer owner.Close()

	second, err := NewShared[point](4, name)
	if err != nil {
		t.Fatalf("NewShared (second caller) failed: %v", err)
	}
	defer second.Close()

	if second.OwnsBacking() {
		t.Fatal("second caller on an existing segment should attach as a client, not an owner")
	}
	if second.Capacity() != 16 {
		t.Fatalf("expected second caller to observe the owner's capacity 16, got %d", second.Capacity())
	}
}

func TestCloseOwnerUnlinksSegmentName(t *testing.T) {
	name := uniqueSegName(t)

	owner, err := NewShared[point](4, name)
	if err != nil {
		t.Fatalf("NewShared failed: %v", err)
	}
	if err := owner.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	if _, err := AttachShared[point](name); err == nil || !errors.Is(err, ErrSegmentNotFound) {
		t.Fatalf("expected attaching after owner Close to fail with ErrSegmentNotFound, got %v", err)
	}
}
