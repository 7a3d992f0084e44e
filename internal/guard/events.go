package guard

import (
	"sync"
	"time"

	"nvision.io/internal/audit"
	"nvision.io/internal/ids"
)

// EventType classifies security events appended to the audit buffer.
type EventType string

const (
	EventRateLimitExceeded    EventType = "rate_limit_exceeded"
	EventSuspiciousActivity   EventType = "suspicious_activity"
	EventBruteForceAttack     EventType = "brute_force_attack"
	EventSessionCreated       EventType = "session_created"
	EventSessionInvalidated   EventType = "session_invalidated"
	EventSessionHijackAttempt EventType = "session_hijack_attempt"
)

// SecurityEvent is a single entry in the bounded audit buffer.
type SecurityEvent struct {
	ID        string            `json:"id"`
	Type      EventType         `json:"type"`
	ClientIP  string            `json:"client_ip,omitempty"`
	UserID    string            `json:"user_id,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
	Details   map[string]string `json:"details,omitempty"`
}

const defaultEventCapacity = 1000

// eventLog keeps the last N security events.
type eventLog struct {
	mu       sync.Mutex
	capacity int
	events   []SecurityEvent
}

func newEventLog(capacity int) *eventLog {
	if capacity <= 0 {
		capacity = defaultEventCapacity
	}
	return &eventLog{capacity: capacity}
}

func (l *eventLog) append(evt SecurityEvent) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, evt)
	if overflow := len(l.events) - l.capacity; overflow > 0 {
		l.events = append(l.events[:0], l.events[overflow:]...)
	}
}

func (l *eventLog) recent(n int) []SecurityEvent {
	l.mu.Lock()
	defer l.mu.Unlock()
	if n <= 0 || n > len(l.events) {
		n = len(l.events)
	}
	out := make([]SecurityEvent, n)
	copy(out, l.events[len(l.events)-n:])
	return out
}

// recordEvent appends to the bounded buffer and emits a structured audit line.
func (g *Guard) recordEvent(evtType EventType, clientIP, userID string, details map[string]string) {
	evt := SecurityEvent{
		ID:        ids.New(),
		Type:      evtType,
		ClientIP:  clientIP,
		UserID:    userID,
		Timestamp: g.now().UTC(),
		Details:   details,
	}
	g.events.append(evt)

	fields := map[string]any{"client_ip": clientIP}
	if userID != "" {
		fields["user_id"] = userID
	}
	for k, v := range details {
		fields[k] = v
	}
	audit.Record(string(evtType), fields)
}

// RecentEvents returns up to n most recent security events, oldest first.
// n <= 0 returns the whole buffer.
func (g *Guard) RecentEvents(n int) []SecurityEvent {
	return g.events.recent(n)
}
