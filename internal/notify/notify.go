// Package notify delivers best-effort notifications. Notices are queued on
// a channel and sent by a background worker; enqueueing never blocks the
// request that produced the notice, and a delivery failure is logged and
// dropped rather than surfaced to the caller.
package notify

import (
	"context"
	"log"
	"time"
)

// KindDocumentAccess is the inbox notification kind for access grants.
const KindDocumentAccess = "$documentAccess"

// Notice is one pending notification.
type Notice struct {
	ID        string
	Recipient string
	Kind      string
	Payload   map[string]string
}

// Sender delivers a single notice.
type Sender interface {
	Send(ctx context.Context, notice Notice) error
}

const sendTimeout = 10 * time.Second

// Queue is an in-process dispatch queue in front of a Sender.
type Queue struct {
	sender Sender
	ch     chan Notice
	done   chan struct{}
}

// NewQueue starts the delivery worker. buffer bounds how many undelivered
// notices may be pending before new ones are dropped.
func NewQueue(sender Sender, buffer int) *Queue {
	if buffer <= 0 {
		buffer = 64
	}
	q := &Queue{
		sender: sender,
		ch:     make(chan Notice, buffer),
		done:   make(chan struct{}),
	}
	go q.run()
	return q
}

func (q *Queue) run() {
	defer close(q.done)
	for notice := range q.ch {
		ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
		if err := q.sender.Send(ctx, notice); err != nil {
			log.Printf("notify: deliver %s to %s: %v", notice.Kind, notice.Recipient, err)
		}
		cancel()
	}
}

// Enqueue hands a notice to the worker. If the queue is full the notice is
// dropped and logged; delivery is best-effort by contract.
func (q *Queue) Enqueue(notice Notice) {
	select {
	case q.ch <- notice:
	default:
		log.Printf("notify: queue full, dropping %s for %s", notice.Kind, notice.Recipient)
	}
}

// Close stops accepting notices and waits for the worker to drain.
func (q *Queue) Close() {
	close(q.ch)
	<-q.done
}
