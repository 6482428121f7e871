package chat

import (
	"sync"
	"time"

	"polymath/pkg/utils"
)

// Roles of a transcript record.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Record is one rendered chat message.
type Record struct {
	ID        string `json:"id"`
	Role      string `json:"role"`
	Content   string `json:"content"`
	Timestamp int64  `json:"timestamp"`
}

// NewRecord stamps a record with a fresh ID and the current time.
func NewRecord(role, content string) Record {
	return Record{
		ID:        utils.GenerateID(),
		Role:      role,
		Content:   content,
		Timestamp: time.Now().Unix(),
	}
}

// Transcript is the ordered chat history of one session. It always starts
// with the assistant greeting.
type Transcript struct {
	greeting string
	records  []Record
	mu       sync.RWMutex
}

// NewTranscript creates a transcript holding only the greeting.
func NewTranscript(greeting string) *Transcript {
	t := &Transcript{greeting: greeting}
	t.records = []Record{NewRecord(RoleAssistant, greeting)}
	return t
}

// Append adds one record at the end.
func (t *Transcript) Append(rec Record) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.records = append(t.records, rec)
}

// Records returns a copy of the history, oldest first.
func (t *Transcript) Records() []Record {
	t.mu.RLock()
	defer t.mu.RUnlock()

	cp := make([]Record, len(t.records))
	copy(cp, t.records)
	return cp
}

// Len returns the number of records.
func (t *Transcript) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.records)
}

// Last returns the newest record.
func (t *Transcript) Last() (Record, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if len(t.records) == 0 {
		return Record{}, false
	}
	return t.records[len(t.records)-1], true
}

// Reset drops everything but a fresh greeting.
func (t *Transcript) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.records = []Record{NewRecord(RoleAssistant, t.greeting)}
}
