package mail

import (
	"context"
	"sync"
)

// Recorder keeps sent messages in memory. Tests use it to assert on outgoing
// mail; Err makes every Send fail.
type Recorder struct {
	mu   sync.Mutex
	sent []Message
	Err  error
}

// Send records msg or returns r.Err.
func (r *Recorder) Send(_ context.Context, msg Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return r.Err
	}
	r.sent = append(r.sent, msg)
	return nil
}

// Sent returns a copy of the recorded messages.
func (r *Recorder) Sent() []Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Message, len(r.sent))
	copy(out, r.sent)
	return out
}
