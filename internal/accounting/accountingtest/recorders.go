package accountingtest

import (
	"context"
	"sync"

	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

// AuditRecorder captures audit logs in memory.
type AuditRecorder struct {
	mu   sync.Mutex
	Logs []shared.AuditLog
}

// Record implements accounting.AuditPort.
func (r *AuditRecorder) Record(_ context.Context, log shared.AuditLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Logs = append(r.Logs, log)
	return nil
}

// Actions returns the recorded actions in order.
func (r *AuditRecorder) Actions() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.Logs))
	for _, l := range r.Logs {
		out = append(out, l.Action)
	}
	return out
}

// ApprovalRecorder captures approval logs in memory.
type ApprovalRecorder struct {
	mu   sync.Mutex
	Logs []shared.ApprovalLog
}

// Record implements accounting.ApprovalPort.
func (r *ApprovalRecorder) Record(_ context.Context, log shared.ApprovalLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Logs = append(r.Logs, log)
	return nil
}

// Len returns the number of recorded approvals.
func (r *ApprovalRecorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.Logs)
}

// Metrics counts ledger events.
type Metrics struct {
	mu     sync.Mutex
	Posted int
	Voids  map[string]int
}

// EntryPosted implements accounting.MetricsPort.
func (m *Metrics) EntryPosted() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Posted++
}

// VoidOutcome implements accounting.MetricsPort.
func (m *Metrics) VoidOutcome(outcome string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Voids == nil {
		m.Voids = map[string]int{}
	}
	m.Voids[outcome]++
}

// VoidCount returns how many voids ended with outcome.
func (m *Metrics) VoidCount(outcome string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Voids[outcome]
}
