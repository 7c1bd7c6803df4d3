package events

import (
	"encoding/json"
	"io"
	"sync"
	"time"
)

// LogEntry is one appended audit record.
type LogEntry struct {
	Timestamp time.Time              `json:"timestamp"`
	EventType string                 `json:"event_type"`
	SessionID string                 `json:"session_id,omitempty"`
	Details   map[string]interface{} `json:"details,omitempty"`
}

// AuditLogger appends governance events as JSON lines to a writer. It is the
// only durable trace the control plane produces; governed state itself is
// never stored here.
type AuditLogger struct {
	mu  sync.Mutex
	w   io.Writer
	enc *json.Encoder

	unsubscribes []func()
}

// NewAuditLogger creates an audit logger writing JSONL to w.
func NewAuditLogger(w io.Writer) *AuditLogger {
	return &AuditLogger{w: w, enc: json.NewEncoder(w)}
}

// Attach subscribes the logger to every governance event type on the bus.
func (l *AuditLogger) Attach(bus *Bus) {
	for _, et := range []EventType{
		EventExecutionBlocked,
		EventPlanRepaired,
		EventPatternDetected,
		EventHealthDegraded,
		EventIterationLimit,
		EventLockTakeover,
	} {
		l.unsubscribes = append(l.unsubscribes, bus.Subscribe(et, l.record))
	}
}

// Detach removes all subscriptions created by Attach.
func (l *AuditLogger) Detach() {
	for _, unsub := range l.unsubscribes {
		unsub()
	}
	l.unsubscribes = nil
}

func (l *AuditLogger) record(e Event) {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry := LogEntry{
		Timestamp: e.Timestamp,
		EventType: string(e.Type),
		Details:   e.Data,
	}
	if sid, ok := e.Data["session_id"].(string); ok {
		entry.SessionID = sid
	}
	// best effort: an unwritable sink must never fail a governance check
	_ = l.enc.Encode(entry)
}
