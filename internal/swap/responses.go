package swap

import (
	"context"
	"sync"
)

// Responses holds the values a wallet client reports for one trade. Waiters
// block on a channel that is closed and replaced on every submission.
type Responses struct {
	mu      sync.Mutex
	values  map[string]string
	changed chan struct{}
}

// NewResponses returns an empty response table.
func NewResponses() *Responses {
	return &Responses{
		values:  make(map[string]string),
		changed: make(chan struct{}),
	}
}

// Submit merges values into the table and wakes all waiters.
func (r *Responses) Submit(values map[string]string) {
	if len(values) == 0 {
		return
	}
	r.mu.Lock()
	for k, v := range values {
		r.values[k] = v
	}
	close(r.changed)
	r.changed = make(chan struct{})
	r.mu.Unlock()
}

// Get returns the latest value for key.
func (r *Responses) Get(key string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.values[key]
	return v, ok
}

// Changed returns a channel closed by the next Submit.
func (r *Responses) Changed() <-chan struct{} {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.changed
}

// Snapshot copies the table.
func (r *Responses) Snapshot() map[string]string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]string, len(r.values))
	for k, v := range r.values {
		out[k] = v
	}
	return out
}

// Await blocks until key has a value or ctx ends.
func (r *Responses) Await(ctx context.Context, key string) (string, error) {
	return r.Wait(ctx, key, nil)
}

// Wait blocks until key has a value accepted by accept (any value when
// accept is nil) or ctx ends.
func (r *Responses) Wait(ctx context.Context, key string, accept func(string) bool) (string, error) {
	for {
		r.mu.Lock()
		v, ok := r.values[key]
		ch := r.changed
		r.mu.Unlock()

		if ok && (accept == nil || accept(v)) {
			return v, nil
		}
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-ch:
		}
	}
}
