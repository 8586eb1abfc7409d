package auth

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	notifierBuffer       = 32
	notifierFlushTimeout = time.Second
)

// statusNotifier delivers messages to a StatusFunc on its own goroutine so
// a slow callback never stalls a flow. Messages are dropped when the buffer
// is full.
type statusNotifier struct {
	fn   StatusFunc
	log  *zap.SugaredLogger
	ch   chan string
	done chan struct{}

	mu     sync.Mutex
	closed bool
}

func newStatusNotifier(fn StatusFunc, log *zap.SugaredLogger) *statusNotifier {
	n := &statusNotifier{
		fn:   fn,
		log:  log,
		ch:   make(chan string, notifierBuffer),
		done: make(chan struct{}),
	}
	go n.run()
	return n
}

func (n *statusNotifier) run() {
	defer close(n.done)
	for msg := range n.ch {
		if n.fn != nil {
			n.fn(msg)
		}
	}
}

func (n *statusNotifier) send(msg string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed || msg == "" {
		return
	}
	select {
	case n.ch <- msg:
	default:
		n.log.Debugw("Status message dropped", "message", msg)
	}
}

// close stops accepting messages and waits briefly for queued ones to be delivered.
func (n *statusNotifier) close() {
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return
	}
	n.closed = true
	close(n.ch)
	n.mu.Unlock()

	select {
	case <-n.done:
	case <-time.After(notifierFlushTimeout):
		n.log.Debugw("Status callback still busy, not waiting for remaining messages")
	}
}
