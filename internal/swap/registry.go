// Package swap - Registry of trade runs, one goroutine per trade.
package swap

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/klingon-exchange/htlcswap/internal/config"
	"github.com/klingon-exchange/htlcswap/pkg/logging"
)

var (
	ErrKindMismatch   = errors.New("trade is registered with another kind")
	ErrNotRunning     = errors.New("trade is not registered")
	ErrNoResponses    = errors.New("trade does not accept wallet responses")
	ErrRegistryClosed = errors.New("registry is closed")
	ErrUnknownKind    = errors.New("unknown trade kind")
)

// RegistryConfig wires a Registry to its collaborators.
type RegistryConfig struct {
	Store       Store
	Gateways    Gateways
	Codec       Codec
	Timing      config.TimingConfig
	Ethereum    EthSettings
	TradeLogDir string
	Logger      *logging.Logger
}

// Registry owns the trade runs of the process. Entries outlive their runs so
// the last status stays readable.
type Registry struct {
	cfg RegistryConfig

	mu       sync.RWMutex
	entries  map[string]*entry
	handlers []StatusHandler
	closed   bool

	log    *logging.Logger
	ctx    context.Context
	cancel context.CancelFunc
	group  errgroup.Group
}

type entry struct {
	state *runState
	log   *logging.TradeLog

	mu         sync.Mutex
	running    bool
	failed     bool
	startedAt  time.Time
	finishedAt time.Time
}

// NewRegistry creates an empty registry.
func NewRegistry(cfg RegistryConfig) *Registry {
	log := cfg.Logger
	if log == nil {
		log = logging.GetDefault().Component("registry")
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Registry{
		cfg:     cfg,
		entries: make(map[string]*entry),
		log:     log,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// EnsureStarted starts a run for the trade unless one is running or has
// already finished. A run that failed is started again. It reports whether
// a new run was launched.
func (r *Registry) EnsureStarted(tradeID string, kind Kind) (bool, error) {
	if kind != KindTrade && kind != KindEthTrade {
		return false, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return false, ErrRegistryClosed
	}

	e, ok := r.entries[tradeID]
	if ok {
		if e.state.kind != kind {
			return false, ErrKindMismatch
		}
		e.mu.Lock()
		restart := !e.running && e.failed
		e.mu.Unlock()
		if !restart {
			return false, nil
		}
	}

	tl, err := logging.OpenTradeLog(r.cfg.TradeLogDir, tradeID, r.log.With("trade", tradeID))
	if err != nil {
		return false, err
	}
	if e == nil {
		e = &entry{state: newRunState(tradeID, kind, r.emit)}
		r.entries[tradeID] = e
	}
	e.mu.Lock()
	e.log = tl
	e.running = true
	e.failed = false
	e.startedAt = time.Now()
	e.mu.Unlock()

	r.log.Info("starting trade run", "trade", tradeID, "kind", kind, "log", tl.Path())
	runsActive.WithLabelValues(string(kind)).Inc()
	r.group.Go(func() error {
		r.run(e)
		return nil
	})
	return true, nil
}

func (r *Registry) newRunner(e *entry) *legRunner {
	return &legRunner{
		gateways: r.cfg.Gateways,
		codec:    r.cfg.Codec,
		timing:   r.cfg.Timing,
		state:    e.state,
		log:      e.log.Logger(),
	}
}

func (r *Registry) run(e *entry) {
	id, kind := e.state.id, e.state.kind
	lr := r.newRunner(e)

	var err error
	switch kind {
	case KindTrade:
		err = (&tradeRun{legRunner: lr, store: r.cfg.Store, tradeID: id}).run(r.ctx)
	case KindEthTrade:
		err = (&ethTradeRun{legRunner: lr, store: r.cfg.Store, tradeID: id, settings: r.cfg.Ethereum}).run(r.ctx)
	}

	result := "ok"
	switch {
	case err == nil:
		r.log.Info("trade run finished", "trade", id)
	case errors.Is(err, context.Canceled):
		result = "stopped"
		r.log.Info("trade run stopped", "trade", id)
	default:
		result = "error"
		lr.log.Error("trade run failed", "error", err)
		r.log.Error("trade run failed", "trade", id, "error", err)
		e.state.setMessage(fmt.Sprintf("Trade stopped: %v", err))
	}
	runsActive.WithLabelValues(string(kind)).Dec()
	runsFinished.WithLabelValues(string(kind), result).Inc()

	e.mu.Lock()
	e.running = false
	e.failed = err != nil
	e.finishedAt = time.Now()
	tl := e.log
	e.mu.Unlock()
	if cerr := tl.Close(); cerr != nil {
		r.log.Warn("failed to close trade log", "trade", id, "error", cerr)
	}
}

func (r *Registry) get(tradeID string) (*entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[tradeID]
	return e, ok
}

// Status returns the trade's current snapshot.
func (r *Registry) Status(tradeID string) (Snapshot, bool) {
	e, ok := r.get(tradeID)
	if !ok {
		return Snapshot{}, false
	}
	return e.state.snapshot(), true
}

// Running reports whether the trade's run is in progress.
func (r *Registry) Running(tradeID string) bool {
	e, ok := r.get(tradeID)
	if !ok {
		return false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.running
}

// SubmitResponse merges wallet-reported values into an EVM-paired trade.
func (r *Registry) SubmitResponse(tradeID string, values map[string]string) error {
	e, ok := r.get(tradeID)
	if !ok {
		return ErrNotRunning
	}
	if e.state.responses == nil {
		return ErrNoResponses
	}
	e.state.responses.Submit(values)
	return nil
}

// OnStatus registers a handler for status changes. Handlers are called in
// order on the trade's goroutine and must not block.
func (r *Registry) OnStatus(h StatusHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers = append(r.handlers, h)
}

func (r *Registry) emit(event StatusEvent) {
	r.mu.RLock()
	handlers := make([]StatusHandler, len(r.handlers))
	copy(handlers, r.handlers)
	r.mu.RUnlock()

	for _, h := range handlers {
		h(event)
	}
}

// Close stops every run and waits for them to exit.
func (r *Registry) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	r.mu.Unlock()

	r.cancel()
	return r.group.Wait()
}
