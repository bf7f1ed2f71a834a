package crawl

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"

	"github.com/Sriram-PR/supplier-sync/pkg/utils"
)

// SaveFunc persists one unit of crawl output
type SaveFunc func(ctx context.Context) error

// SavePool runs saves concurrently with at most size saves in flight.
// Submit blocks while the pool is full; Wait joins every accepted save.
type SavePool struct {
	sem  *semaphore.Weighted
	wg   sync.WaitGroup
	size int

	mu   sync.Mutex
	errs []error

	// saveCtx is detached from the crawl so accepted pages are persisted
	// even after the crawl is cancelled.
	saveCtx context.Context
	log     *logrus.Entry
}

// NewSavePool creates a pool of size concurrent saves. parent supplies the
// values (not the cancellation) of the context saves run under.
func NewSavePool(parent context.Context, size int, log *logrus.Entry) *SavePool {
	if size <= 0 {
		size = 1
	}
	return &SavePool{
		sem:     semaphore.NewWeighted(int64(size)),
		size:    size,
		saveCtx: context.WithoutCancel(parent),
		log:     log,
	}
}

// Submit starts fn once a slot is free. It returns an error, without running
// fn, only when ctx is cancelled while waiting for a slot.
func (p *SavePool) Submit(ctx context.Context, label string, fn SaveFunc) error {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("%w: save slot for %q: %w", utils.ErrSemaphoreTimeout, label, err)
	}

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer p.sem.Release(1)
		defer func() {
			if r := recover(); r != nil {
				p.record(fmt.Errorf("panic saving %q: %v", label, r))
				p.log.WithField("label", label).Errorf("PANIC in save: %v\n%s", r, debug.Stack())
			}
		}()

		if err := fn(p.saveCtx); err != nil {
			p.log.WithField("label", label).Errorf("Save failed: %v", err)
			p.record(fmt.Errorf("save %q: %w", label, err))
		}
	}()
	return nil
}

// Wait blocks until every submitted save has finished and returns their
// errors in completion order.
func (p *SavePool) Wait() []error {
	p.wg.Wait()

	p.mu.Lock()
	defer p.mu.Unlock()
	errs := p.errs
	p.errs = nil
	return errs
}

func (p *SavePool) record(err error) {
	p.mu.Lock()
	p.errs = append(p.errs, err)
	p.mu.Unlock()
}
