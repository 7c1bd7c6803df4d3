package guard

import (
	"sort"
	"time"
)

// ExecutionAttempt is one guarded call, recorded whether it ran or was
// blocked. Never mutated after creation.
type ExecutionAttempt struct {
	Fingerprint string
	Timestamp   time.Time
	Depth       int
	Result      string
	Err         error
	Blocked     bool
	BlockReason BlockReason
}

// ExecutionHistory tracks every attempt of one guard instance. Reset only at
// session boundaries. Not safe for concurrent use; independent sessions use
// independent guard instances.
type ExecutionHistory struct {
	attempts        []ExecutionAttempt
	counts          map[string]int
	depthStack      []string
	maxDepthReached int
	totalBlocked    int
}

// NewExecutionHistory creates an empty history.
func NewExecutionHistory() *ExecutionHistory {
	return &ExecutionHistory{counts: make(map[string]int)}
}

// Depth returns the current execution stack depth.
func (h *ExecutionHistory) Depth() int { return len(h.depthStack) }

// Count returns how many times a fingerprint has been attempted.
func (h *ExecutionHistory) Count(fingerprint string) int { return h.counts[fingerprint] }

// RecentFingerprints returns up to n most recent attempt fingerprints in
// chronological order.
func (h *ExecutionHistory) RecentFingerprints(n int) []string {
	start := len(h.attempts) - n
	if start < 0 {
		start = 0
	}
	out := make([]string, 0, len(h.attempts)-start)
	for _, a := range h.attempts[start:] {
		out = append(out, a.Fingerprint)
	}
	return out
}

// Push enters a fingerprint onto the depth stack.
func (h *ExecutionHistory) Push(fingerprint string) {
	h.depthStack = append(h.depthStack, fingerprint)
	if len(h.depthStack) > h.maxDepthReached {
		h.maxDepthReached = len(h.depthStack)
	}
}

// Pop removes the top of the depth stack. Strict LIFO: the caller pops in a
// cleanup path on every exit including cancellation.
func (h *ExecutionHistory) Pop() {
	if len(h.depthStack) > 0 {
		h.depthStack = h.depthStack[:len(h.depthStack)-1]
	}
}

// Record appends a finished attempt and bumps its fingerprint count.
// Blocked attempts count too so repeat offenders surface in the stats.
func (h *ExecutionHistory) Record(a ExecutionAttempt) {
	h.attempts = append(h.attempts, a)
	h.counts[a.Fingerprint]++
	if a.Blocked {
		h.totalBlocked++
	}
}

// Reset clears the history at a session boundary.
func (h *ExecutionHistory) Reset() {
	h.attempts = nil
	h.counts = make(map[string]int)
	h.depthStack = nil
	h.maxDepthReached = 0
	h.totalBlocked = 0
}

// FingerprintFrequency is one entry of the top-fingerprint ranking.
type FingerprintFrequency struct {
	Fingerprint string
	Count       int
}

// Stats is the cumulative view over an execution history.
type Stats struct {
	Attempts           int
	Blocked            int
	BlockedPercent     float64
	UniqueFingerprints int
	MaxDepthReached    int
	AverageDepth       float64
	TopFingerprints    []FingerprintFrequency
	BlockReasons       map[BlockReason]int
}

// Stats computes the cumulative statistics.
func (h *ExecutionHistory) Stats() Stats {
	s := Stats{
		Attempts:           len(h.attempts),
		Blocked:            h.totalBlocked,
		UniqueFingerprints: len(h.counts),
		MaxDepthReached:    h.maxDepthReached,
		BlockReasons:       make(map[BlockReason]int),
	}
	if s.Attempts > 0 {
		s.BlockedPercent = float64(s.Blocked) / float64(s.Attempts) * 100
		totalDepth := 0
		for _, a := range h.attempts {
			totalDepth += a.Depth
			if a.Blocked {
				s.BlockReasons[a.BlockReason]++
			}
		}
		s.AverageDepth = float64(totalDepth) / float64(s.Attempts)
	}

	freqs := make([]FingerprintFrequency, 0, len(h.counts))
	for fp, count := range h.counts {
		freqs = append(freqs, FingerprintFrequency{Fingerprint: fp, Count: count})
	}
	sort.Slice(freqs, func(i, j int) bool {
		if freqs[i].Count != freqs[j].Count {
			return freqs[i].Count > freqs[j].Count
		}
		return freqs[i].Fingerprint < freqs[j].Fingerprint
	})
	if len(freqs) > 5 {
		freqs = freqs[:5]
	}
	s.TopFingerprints = freqs
	return s
}
