package pool

import (
	"fmt"

	"github.com/SlickQuant/slick-object-pool/internal/oshm"
)

// BackingMode identifies where a Pool's control structure and payload array
// live.
type BackingMode int

const (
	// ModeLocal backs the pool with process-local heap memory. The pool
	// owns its backing store outright.
	ModeLocal BackingMode = iota
	// ModeSharedOwner backs the pool with a named shared-memory segment
	// this process created and initialized.
	ModeSharedOwner
	// ModeSharedClient backs the pool with a named shared-memory segment
	// created and initialized by another process.
	ModeSharedClient
)

// String returns a human-readable name for the mode.
func (m BackingMode) String() string {
	switch m {
	case ModeLocal:
		return "local"
	case ModeSharedOwner:
		return "shared-owner"
	case ModeSharedClient:
		return "shared-client"
	default:
		return "unknown"
	}
}

// backing is the storage collaborator behind a Pool: a contiguous byte
// region holding the control header, slot sequences, and payload array in
// the layout computeLayout defines, plus whatever teardown the mode
// requires.
type backing interface {
	bytes() []byte
	close() error
}

// localBacking is a process-local heap allocation. It owns nothing external
// and requires no teardown beyond letting the GC reclaim the slice.
type localBacking struct {
	buf []byte
}

func (b *localBacking) bytes() []byte { return b.buf }
func (b *localBacking) close() error  { return nil }

// sharedBacking wraps a mapped named segment. Only the owner unlinks the
// name on close; a client only unmaps.
type sharedBacking struct {
	seg   *oshm.Segment
	owner bool
	name  string
}

func (b *sharedBacking) bytes() []byte { return b.seg.Mem }

func (b *sharedBacking) close() error {
	closeErr := b.seg.Close()
	if !b.owner {
		return closeErr
	}
	if err := oshm.Unlink(b.name); err != nil {
		if closeErr != nil {
			return fmt.Errorf("%w (also failed to unlink: %v)", closeErr, err)
		}
		return fmt.Errorf("pool: unlink shared segment %q: %w", b.name, err)
	}
	return closeErr
}
