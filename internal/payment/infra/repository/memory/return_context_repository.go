package memory

import (
	"context"
	"sync"
	"time"

	"github.com/cristianortiz/auctionSettlement/internal/payment/domain"
	"github.com/cristianortiz/auctionSettlement/internal/shared/scheduler"
)

type entry struct {
	snap      domain.Snapshot
	expiresAt time.Time
}

// ReturnContextRepository keeps snapshots in process. It is used when no
// database is configured, a restart loses every pending detour.
type ReturnContextRepository struct {
	mu      sync.Mutex
	clock   scheduler.Scheduler
	entries map[string]entry
}

func NewReturnContextRepository(clock scheduler.Scheduler) *ReturnContextRepository {
	return &ReturnContextRepository{clock: clock, entries: make(map[string]entry)}
}

func (r *ReturnContextRepository) Save(_ context.Context, snap domain.Snapshot, ttl time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	snap.Context.Nights = append([]string(nil), snap.Context.Nights...)
	r.entries[snap.Locator] = entry{snap: snap, expiresAt: r.clock.Now().Add(ttl)}
	return nil
}

func (r *ReturnContextRepository) Load(_ context.Context, locator string) (*domain.Snapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[locator]
	if !ok {
		return nil, domain.ErrContextNotFound
	}
	if !r.clock.Now().Before(e.expiresAt) {
		delete(r.entries, locator)
		return nil, domain.ErrContextNotFound
	}
	snap := e.snap
	snap.Context.Nights = append([]string(nil), e.snap.Context.Nights...)
	return &snap, nil
}

func (r *ReturnContextRepository) Delete(_ context.Context, locator string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, locator)
	return nil
}

// PurgeExpired removes expired snapshots and reports how many went.
func (r *ReturnContextRepository) PurgeExpired(_ context.Context) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.clock.Now()
	var n int64
	for k, e := range r.entries {
		if !now.Before(e.expiresAt) {
			delete(r.entries, k)
			n++
		}
	}
	return n, nil
}
