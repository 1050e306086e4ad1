package node

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// HealthState tracks how far the adaptor can trust its ledger view.
type HealthState int32

const (
	HealthNormal HealthState = 0 // ledger polls succeed, quotes and payments allowed
	HealthStale  HealthState = 1 // repeated poll failures, new payments refused
	HealthFailed HealthState = 2 // stale for longer than the timeout, daemon stops
)

func (s HealthState) String() string {
	switch s {
	case HealthNormal:
		return "NORMAL"
	case HealthStale:
		return "STALE"
	case HealthFailed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

// ledgerHealth is driven by the outcome of each tip poll.
type ledgerHealth struct {
	threshold  int
	timeout    time.Duration // 0 disables the FAILED transition
	state      atomic.Int32
	mu         sync.Mutex
	failCount  int
	staleSince time.Time
	logger     *slog.Logger
}

func newLedgerHealth(threshold int, timeout time.Duration, logger *slog.Logger) *ledgerHealth {
	if threshold <= 0 {
		threshold = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ledgerHealth{threshold: threshold, timeout: timeout, logger: logger}
}

func (h *ledgerHealth) State() HealthState { return HealthState(h.state.Load()) }

// observe records one poll outcome at now and returns the resulting state.
func (h *ledgerHealth) observe(err error, now time.Time) HealthState {
	h.mu.Lock()
	defer h.mu.Unlock()
	current := HealthState(h.state.Load())

	if err == nil {
		if current != HealthNormal {
			h.logger.Info("ledger view recovered", "from", current.String(), "to", HealthNormal.String())
		}
		h.failCount = 0
		h.state.Store(int32(HealthNormal))
		return HealthNormal
	}

	h.failCount++
	h.logger.Warn("ledger poll failed",
		"fail_count", h.failCount,
		"threshold", h.threshold,
		"error", err.Error(),
	)

	switch {
	case current == HealthNormal && h.failCount >= h.threshold:
		h.staleSince = now
		h.state.Store(int32(HealthStale))
		h.logger.Warn("ledger view stale, refusing new payments", "fail_count", h.failCount)
		return HealthStale
	case current == HealthStale && h.timeout > 0 && now.Sub(h.staleSince) >= h.timeout:
		h.state.Store(int32(HealthFailed))
		h.logger.Error("ledger view stale beyond timeout", "timeout", h.timeout.String())
		return HealthFailed
	}
	return current
}
