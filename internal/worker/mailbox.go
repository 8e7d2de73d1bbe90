// Package worker runs face recognition off the request path. Face crops are
// published into a single-slot mailbox and a RecognitionWorker turns the
// newest one into an attendance observation.
package worker

import (
	"sync"
	"time"
)

// Frame is one face crop waiting for recognition.
type Frame struct {
	Seq        uint64
	Data       []byte
	CapturedAt time.Time
}

// MailboxStats are lifetime counters of a mailbox.
type MailboxStats struct {
	Published uint64 `json:"published"`
	Consumed  uint64 `json:"consumed"`
	Dropped   uint64 `json:"dropped"`
	Pending   bool   `json:"pending"`
	Closed    bool   `json:"closed"`
}

// Mailbox holds at most one frame. Publish never blocks and overwrites an
// unconsumed frame, counting it as dropped. Next blocks until a frame arrives
// or the mailbox is closed.
type Mailbox struct {
	mu    sync.Mutex
	cond  *sync.Cond
	frame *Frame
	seq   uint64

	consumed uint64
	dropped  uint64
	closed   bool
}

func NewMailbox() *Mailbox {
	m := &Mailbox{}
	m.cond = sync.NewCond(&m.mu)
	return m
}

// Publish stores data as the newest frame and returns its sequence number.
// Returns 0 once the mailbox is closed.
func (m *Mailbox) Publish(data []byte, capturedAt time.Time) uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return 0
	}
	if m.frame != nil {
		m.dropped++
	}
	m.seq++
	m.frame = &Frame{Seq: m.seq, Data: data, CapturedAt: capturedAt}
	m.cond.Signal()
	return m.seq
}

// Next takes the pending frame, waiting for one if necessary. ok is false
// after Close; a frame published before Close is discarded.
func (m *Mailbox) Next() (frame *Frame, ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for m.frame == nil && !m.closed {
		m.cond.Wait()
	}
	if m.closed {
		return nil, false
	}
	frame = m.frame
	m.frame = nil
	m.consumed++
	return frame, true
}

// Close wakes a blocked Next. Safe to call more than once.
func (m *Mailbox) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.cond.Broadcast()
}

func (m *Mailbox) Stats() MailboxStats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return MailboxStats{
		Published: m.seq,
		Consumed:  m.consumed,
		Dropped:   m.dropped,
		Pending:   m.frame != nil,
		Closed:    m.closed,
	}
}
