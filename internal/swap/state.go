// Package swap - In-memory run state published to API clients.
package swap

import (
	"sync"
	"time"

	"github.com/klingon-exchange/htlcswap/internal/evm"
)

// DefaultStatusMessage is shown until a run publishes its first status.
const DefaultStatusMessage = "Starting thread..."

// Kind tells which orchestrator drives a trade.
type Kind string

const (
	KindTrade    Kind = "trade"
	KindEthTrade Kind = "eth_trade"
)

// Snapshot is a client's view of a trade run. Command is only set for
// EVM-paired trades.
type Snapshot struct {
	Message string       `json:"message"`
	Address *string      `json:"address"`
	Command *evm.Command `json:"command,omitempty"`
}

// StatusEvent is emitted whenever a run changes its status.
type StatusEvent struct {
	TradeID   string    `json:"trade_id"`
	Kind      Kind      `json:"kind"`
	Status    Snapshot  `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

// StatusHandler is called when a run changes its status.
type StatusHandler func(event StatusEvent)

// runState is written by a single run and read by any number of status
// pollers.
type runState struct {
	id        string
	kind      Kind
	responses *Responses
	notify    func(StatusEvent)

	mu      sync.RWMutex
	message string
	address *string
	command *evm.Command
}

func newRunState(id string, kind Kind, notify func(StatusEvent)) *runState {
	s := &runState{
		id:      id,
		kind:    kind,
		notify:  notify,
		message: DefaultStatusMessage,
	}
	if kind == KindEthTrade {
		s.command = evm.NoCommand()
		s.responses = NewResponses()
	}
	return s
}

func (s *runState) snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked()
}

func (s *runState) snapshotLocked() Snapshot {
	snap := Snapshot{Message: s.message, Command: s.command}
	if s.address != nil {
		addr := *s.address
		snap.Address = &addr
	}
	return snap
}

// setMessage changes the message and keeps the address.
func (s *runState) setMessage(msg string) {
	s.mu.Lock()
	s.message = msg
	snap := s.snapshotLocked()
	s.mu.Unlock()
	s.emit(snap)
}

// show changes the message and the displayed deposit address.
func (s *runState) show(msg string, address *string) {
	s.mu.Lock()
	s.message = msg
	s.address = address
	snap := s.snapshotLocked()
	s.mu.Unlock()
	s.emit(snap)
}

func (s *runState) setCommand(cmd *evm.Command) {
	s.mu.Lock()
	s.command = cmd
	snap := s.snapshotLocked()
	s.mu.Unlock()
	s.emit(snap)
}

func (s *runState) emit(snap Snapshot) {
	if s.notify == nil {
		return
	}
	s.notify(StatusEvent{
		TradeID:   s.id,
		Kind:      s.kind,
		Status:    snap,
		Timestamp: time.Now(),
	})
}
