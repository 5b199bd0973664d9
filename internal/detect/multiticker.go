package detect

import (
	"context"
	"fmt"
	"sync"
	"time"

	"patterngraph/internal/funcs"
	"patterngraph/internal/graph"
	"patterngraph/internal/metrics"
	"patterngraph/internal/model"
	"patterngraph/internal/ringbuf"
)

// RunMultiTicker runs one independent sequential scan per entry in sources
// concurrently, and feeds every pattern drained at the end of each scan
// (the completed ones, archived by Drain; patterns still ACTIVE are not
// passed on) to sink on a single goroutine — so a single-writer repository (sqlite.Repository)
// never needs locking of its own. Each ticker gets its own SPSC ring buffer:
// that ticker's scan goroutine is the sole producer, and the one call to
// RunMultiTicker is the sole consumer across all of them, preserving the
// ring buffer's single-producer single-consumer contract per instance.
//
// sink is called sequentially and must not block indefinitely; a slow sink
// backs up every ring buffer and throttles every scan goroutine via Push's
// busy-retry.
func RunMultiTicker(ctx context.Context, g *graph.Graph, reg *funcs.Registry, m *metrics.Metrics, sources map[string]model.Series, sink func(*model.Pattern) error) error {
	rings := make(map[string]*ringbuf.Ring[*model.Pattern], len(sources))
	for ticker := range sources {
		rings[ticker] = ringbuf.New[*model.Pattern](256)
	}

	var wg sync.WaitGroup
	errCh := make(chan error, len(sources))
	for ticker, series := range sources {
		wg.Add(1)
		go func(ticker string, series model.Series, ring *ringbuf.Ring[*model.Pattern]) {
			defer wg.Done()
			o := New(g, reg, ticker, m)
			if err := o.Run(ctx, series); err != nil {
				errCh <- fmt.Errorf("%s: %w", ticker, err)
			}
			for _, pc := range o.Drain() {
				for !ring.Push(pc.Pattern) {
					if ctx.Err() != nil {
						return
					}
					time.Sleep(time.Millisecond)
				}
			}
		}(ticker, series, rings[ticker])
	}

	producersDone := make(chan struct{})
	go func() {
		wg.Wait()
		close(producersDone)
	}()

	drainAll := func() error {
		for _, ring := range rings {
			for {
				p, ok := ring.Pop()
				if !ok {
					break
				}
				if err := sink(p); err != nil {
					return err
				}
			}
		}
		return nil
	}

	for {
		anyPopped := false
		for _, ring := range rings {
			if p, ok := ring.Pop(); ok {
				if err := sink(p); err != nil {
					return err
				}
				anyPopped = true
			}
		}

		select {
		case <-producersDone:
			if err := drainAll(); err != nil {
				return err
			}
			select {
			case err := <-errCh:
				return err
			default:
				return nil
			}
		default:
		}

		if !anyPopped {
			time.Sleep(time.Millisecond)
		}
	}
}
