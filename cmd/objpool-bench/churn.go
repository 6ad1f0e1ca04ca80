package main

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/SlickQuant/slick-object-pool/pool"
)

// bench is a trivially-copyable payload used by the workload; any type
// satisfying the pool's layout constraint would do.
type bench struct {
	Seq   uint64
	Value [6]uint64
}

// churnResult summarizes one run of the workload.
type churnResult struct {
	totalAllocations uint64
	heapFallbacks    uint64
	elapsed          time.Duration
}

// runChurn drives cfg.Workers goroutines, each performing cfg.Iterations
// Allocate/Free round-trips (or running until ctx is done, for the serve
// subcommand's continuous mode), reporting into m as it goes.
func runChurn(ctx context.Context, p *pool.Pool[bench], cfg runConfig, m *poolMetrics, log *zap.Logger) (churnResult, error) {
	var allocations, fallbacks uint64
	start := time.Now()

	g, gctx := errgroup.WithContext(ctx)
	for w := 0; w < cfg.Workers; w++ {
		w := w
		g.Go(func() error {
			done := 0
			for cfg.Iterations == 0 || done < cfg.Iterations {
				select {
				case <-gctx.Done():
					return nil
				default:
				}

				ptr := p.Allocate()
				fromPool := p.FromPool(ptr)
				ptr.Seq = uint64(w)<<32 | uint64(done)
				atomic.AddUint64(&allocations, 1)
				if !fromPool {
					atomic.AddUint64(&fallbacks, 1)
				}
				if m != nil {
					m.recordAllocate(fromPool)
				}

				p.Free(ptr)
				if m != nil {
					m.recordFree()
					m.observeGap(p.Reserved(), p.Consumed())
				}

				done++
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return churnResult{}, err
	}

	result := churnResult{
		totalAllocations: atomic.LoadUint64(&allocations),
		heapFallbacks:    atomic.LoadUint64(&fallbacks),
		elapsed:          time.Since(start),
	}
	log.Info("churn workload finished",
		zap.Uint64("allocations", result.totalAllocations),
		zap.Uint64("heap_fallbacks", result.heapFallbacks),
		zap.Duration("elapsed", result.elapsed))
	return result, nil
}
