package consensus

import "sync"

// SuspicionLedger is a diagnostic record of senders whose messages failed a
// validator, per §7's error taxonomy (malformed message / invalid
// certificate are silently dropped at the protocol level, but worth keeping
// around for observability). It never affects protocol progress — it is
// read-only from the outside, write-only from the dispatcher.
//
// Adapted from the teacher's CertificationProtocol (faulty-pair tracking for
// ex-post accountability): same locking shape, repurposed here to record
// (sender, reason) pairs instead of IVSS faulty-pair accusations.
type SuspicionLedger struct {
	mu      sync.RWMutex
	records []SuspicionRecord
	counts  map[ProcessID]int
}

// SuspicionRecord is one dropped-message event.
type SuspicionRecord struct {
	Sender ProcessID
	Reason string
}

// NewSuspicionLedger returns an empty ledger.
func NewSuspicionLedger() *SuspicionLedger {
	return &SuspicionLedger{counts: make(map[ProcessID]int)}
}

// Record appends a dropped-message event for sender.
func (l *SuspicionLedger) Record(sender ProcessID, reason string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.records = append(l.records, SuspicionRecord{Sender: sender, Reason: reason})
	l.counts[sender]++
}

// Count returns how many times sender has been recorded.
func (l *SuspicionLedger) Count(sender ProcessID) int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.counts[sender]
}

// Records returns a copy of every recorded event, in order.
func (l *SuspicionLedger) Records() []SuspicionRecord {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]SuspicionRecord, len(l.records))
	copy(out, l.records)
	return out
}

// Suspicion exposes the process's suspicion ledger for diagnostics (e.g.
// tests asserting that Byzantine fuzzing was actually detected and dropped).
func (p *Process) Suspicion() *SuspicionLedger { return p.suspicion }
