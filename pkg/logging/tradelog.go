package logging

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
)

// TradeLogHeader is written at the top of every new trade log.
const TradeLogHeader = "ONLY SHARE THE CONTENTS OF THIS FILE WITH TRUSTED PEOPLE\n"

// ErrInvalidTradeID is returned when a trade id cannot be used as a file name.
var ErrInvalidTradeID = errors.New("invalid trade id for log file")

// TradeLog is an append-only log file owned by a single trade run.
// Writes after Close fail with os.ErrClosed.
type TradeLog struct {
	mu     sync.Mutex
	f      *os.File
	path   string
	logger *Logger
	mirror *Logger
}

// TradeLogPath returns the file a trade's log is written to.
func TradeLogPath(dir, tradeID string) string {
	return filepath.Join(dir, tradeID+"-log.txt")
}

// OpenTradeLog opens (or creates) the log file for a trade in append mode.
// Every line is also written to mirror at debug level when mirror is set.
func OpenTradeLog(dir, tradeID string, mirror *Logger) (*TradeLog, error) {
	if tradeID == "" || strings.ContainsAny(tradeID, `/\`) || tradeID == "." || tradeID == ".." {
		return nil, fmt.Errorf("%w: %q", ErrInvalidTradeID, tradeID)
	}
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create trade log directory: %w", err)
	}

	path := TradeLogPath(dir, tradeID)
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return nil, fmt.Errorf("failed to open trade log: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to stat trade log: %w", err)
	}
	if info.Size() == 0 {
		if _, err := f.WriteString(TradeLogHeader); err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to write trade log header: %w", err)
		}
	}

	tl := &TradeLog{f: f, path: path, mirror: mirror}
	l := log.NewWithOptions(tl, log.Options{
		ReportTimestamp: true,
		TimeFormat:      time.RFC3339,
		Formatter:       log.LogfmtFormatter,
		Level:           log.DebugLevel,
	})
	tl.logger = &Logger{Logger: l.With("trade", tradeID)}
	return tl, nil
}

// Write implements io.Writer.
func (t *TradeLog) Write(p []byte) (int, error) {
	t.mu.Lock()
	if t.f == nil {
		t.mu.Unlock()
		return 0, os.ErrClosed
	}
	n, err := t.f.Write(p)
	t.mu.Unlock()

	if t.mirror != nil && err == nil {
		t.mirror.Debug(strings.TrimRight(string(p), "\n"))
	}
	return n, err
}

// Logger returns a structured logger that writes into the trade log.
func (t *TradeLog) Logger() *Logger {
	return t.logger
}

// Path returns the file path of the log.
func (t *TradeLog) Path() string {
	return t.path
}

// Close closes the underlying file. It is safe to call more than once.
func (t *TradeLog) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.f == nil {
		return nil
	}
	err := t.f.Close()
	t.f = nil
	return err
}
