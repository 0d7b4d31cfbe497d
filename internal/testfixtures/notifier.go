package testfixtures

import (
	"context"
	"sync"

	"github.com/example/digital-lending/internal/notify"
)

// RecordingNotifier captures sent messages for assertions. FailKinds lists
// message kinds whose delivery should fail.
type RecordingNotifier struct {
	mu        sync.Mutex
	sent      []notify.Message
	FailKinds map[notify.Kind]error
}

// NewRecordingNotifier constructs an empty recorder.
func NewRecordingNotifier() *RecordingNotifier {
	return &RecordingNotifier{FailKinds: make(map[notify.Kind]error)}
}

// Send records the message, or fails when its kind is marked to fail.
func (n *RecordingNotifier) Send(_ context.Context, msg notify.Message) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if err, ok := n.FailKinds[msg.Kind]; ok {
		return &notify.DeliveryError{Kind: msg.Kind, Recipient: msg.RecipientAddr, Err: err}
	}
	n.sent = append(n.sent, msg)
	return nil
}

// Sent returns a copy of the recorded messages in delivery order.
func (n *RecordingNotifier) Sent() []notify.Message {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]notify.Message(nil), n.sent...)
}

// SentOfKind returns the recorded messages of one kind.
func (n *RecordingNotifier) SentOfKind(kind notify.Kind) []notify.Message {
	n.mu.Lock()
	defer n.mu.Unlock()

	var out []notify.Message
	for _, msg := range n.sent {
		if msg.Kind == kind {
			out = append(out, msg)
		}
	}
	return out
}
