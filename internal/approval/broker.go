package approval

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"reelpost/internal/database"
	"reelpost/internal/logging"
	"reelpost/internal/metrics"
)

// Decision is the admin's answer to a pending request.
type Decision string

const (
	Approved Decision = "approved"
	Rejected Decision = "rejected"
	TimedOut Decision = "timeout"
)

// Request kinds.
const (
	KindPost      = "post"
	KindDemoStart = "demo-start"
	KindDemoPost  = "demo-post"
)

// ErrTimeout is returned by Wait when the admin never answers.
var ErrTimeout = errors.New("approval timed out")

// ErrAlreadyPending is returned when a request for the same key is
// already waiting.
var ErrAlreadyPending = errors.New("approval already pending")

// auditStore records decisions. *database.Database satisfies it.
type auditStore interface {
	RecordApproval(ctx context.Context, approval *database.Approval) error
}

type resolution struct {
	decision  Decision
	decidedBy int64
}

type pending struct {
	ch        chan resolution
	createdAt time.Time
}

// Broker matches Wait calls with Resolve calls by key.
type Broker struct {
	store auditStore

	mu      sync.Mutex
	waiting map[string]*pending
}

// New creates a broker that audits decisions through store.
func New(store auditStore) *Broker {
	return &Broker{
		store:   store,
		waiting: make(map[string]*pending),
	}
}

func key(kind string, reelID int64) string {
	return fmt.Sprintf("%s:%d", kind, reelID)
}

// Wait blocks until the request is resolved, the timeout lapses, or ctx
// is cancelled. Timeouts return (TimedOut, ErrTimeout) and are audited.
func (b *Broker) Wait(ctx context.Context, kind string, reelID int64, timeout time.Duration) (Decision, error) {
	k := key(kind, reelID)

	b.mu.Lock()
	if _, exists := b.waiting[k]; exists {
		b.mu.Unlock()
		return "", ErrAlreadyPending
	}
	p := &pending{ch: make(chan resolution, 1), createdAt: time.Now()}
	b.waiting[k] = p
	b.mu.Unlock()

	metrics.ApprovalsPending.Inc()
	defer metrics.ApprovalsPending.Dec()
	defer b.remove(k)

	logging.Debug("Waiting for %s approval (reel %d, timeout %v)", kind, reelID, timeout)

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case res := <-p.ch:
		return b.settle(kind, reelID, p, res), nil

	case <-timer.C:
		// Take the key back before declaring a timeout. If Resolve
		// already claimed it, its decision is in the channel and wins.
		b.mu.Lock()
		_, stillWaiting := b.waiting[k]
		if stillWaiting {
			delete(b.waiting, k)
		}
		b.mu.Unlock()

		if !stillWaiting {
			return b.settle(kind, reelID, p, <-p.ch), nil
		}

		latency := time.Since(p.createdAt)
		b.audit(kind, reelID, TimedOut, 0, latency)
		metrics.ApprovalsTotal.WithLabelValues(kind, string(TimedOut)).Inc()
		logging.Warn("Reel %d %s request timed out after %v", reelID, kind, timeout)
		return TimedOut, ErrTimeout

	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (b *Broker) settle(kind string, reelID int64, p *pending, res resolution) Decision {
	latency := time.Since(p.createdAt)
	b.audit(kind, reelID, res.decision, res.decidedBy, latency)
	metrics.ApprovalsTotal.WithLabelValues(kind, string(res.decision)).Inc()
	metrics.ApprovalLatency.WithLabelValues(kind).Observe(latency.Seconds())
	logging.Info("Reel %d %s request %s by admin after %v", reelID, kind, res.decision, latency.Round(time.Second))
	return res.decision
}

// Resolve delivers the admin's decision to a waiting request. Returns
// false if nothing is waiting under that key (stale button press).
func (b *Broker) Resolve(kind string, reelID int64, decision Decision, decidedBy int64) bool {
	k := key(kind, reelID)

	b.mu.Lock()
	p, exists := b.waiting[k]
	if exists {
		delete(b.waiting, k)
	}
	b.mu.Unlock()

	if !exists {
		logging.Debug("No pending %s approval for reel %d (stale callback?)", kind, reelID)
		return false
	}

	p.ch <- resolution{decision: decision, decidedBy: decidedBy}
	return true
}

// PendingCount returns the number of requests currently waiting.
func (b *Broker) PendingCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.waiting)
}

func (b *Broker) remove(k string) {
	b.mu.Lock()
	delete(b.waiting, k)
	b.mu.Unlock()
}

func (b *Broker) audit(kind string, reelID int64, decision Decision, decidedBy int64, latency time.Duration) {
	if b.store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	record := &database.Approval{
		Kind:      kind,
		ReelID:    reelID,
		Decision:  string(decision),
		DecidedBy: decidedBy,
		Latency:   latency.Seconds(),
	}
	if err := b.store.RecordApproval(ctx, record); err != nil {
		logging.Warn("Failed to audit %s approval for reel %d: %v", kind, reelID, err)
	}
}
