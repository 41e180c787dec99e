package bridge

import "errors"

// ErrQueueSaturated is returned by Enqueue when the bounded queue is full.
// Producers treat it as back-pressure: the message is dropped and counted.
var ErrQueueSaturated = errors.New("bridge: relay queue is full")

// Message is one relayed chat line, owned by value: produced by one side's
// event handler and consumed exactly once by the drain loop.
type Message struct {
	Target string // destination channel on the sink network
	Text   string
}

// Queue is the bounded multi-producer/single-consumer relay queue. It is the
// only shared resource between the inbound listener and the drain loop.
type Queue struct {
	ch chan Message
}

// NewQueue returns a queue holding at most capacity messages.
func NewQueue(capacity int) *Queue {
	return &Queue{ch: make(chan Message, capacity)}
}

// Enqueue pushes without blocking; a full queue is the caller's error.
func (q *Queue) Enqueue(m Message) error {
	select {
	case q.ch <- m:
		return nil
	default:
		return ErrQueueSaturated
	}
}

// TryDequeue pops one message without blocking.
func (q *Queue) TryDequeue() (Message, bool) {
	select {
	case m := <-q.ch:
		return m, true
	default:
		return Message{}, false
	}
}

// Len returns the number of queued messages.
func (q *Queue) Len() int {
	return len(q.ch)
}
