package evm

import (
	"context"
	"errors"
	"sync"
)

// ErrPoolClosed is returned by Get after Close.
var ErrPoolClosed = errors.New("watcher pool closed")

// DialFunc connects a Watcher to an RPC endpoint.
type DialFunc func(ctx context.Context, rpcURL string) (*Watcher, error)

// Pool shares one Watcher per RPC endpoint between trades.
type Pool struct {
	dial DialFunc

	mu       sync.Mutex
	watchers map[string]*Watcher
	closed   bool
}

// NewPool creates a pool. A nil dial uses Dial.
func NewPool(dial DialFunc) *Pool {
	if dial == nil {
		dial = Dial
	}
	return &Pool{dial: dial, watchers: make(map[string]*Watcher)}
}

// Get returns the watcher for rpcURL, dialing it on first use. A failed
// dial is not cached.
func (p *Pool) Get(ctx context.Context, rpcURL string) (*Watcher, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil, ErrPoolClosed
	}
	if w, ok := p.watchers[rpcURL]; ok {
		return w, nil
	}
	w, err := p.dial(ctx, rpcURL)
	if err != nil {
		return nil, err
	}
	p.watchers[rpcURL] = w
	return w, nil
}

// Len returns the number of open watchers.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.watchers)
}

// Close closes every watcher.
func (p *Pool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.closed = true
	for url, w := range p.watchers {
		w.Close()
		delete(p.watchers, url)
	}
}
