package broadcast

import (
	"log/slog"
	"sync"
)

// CloseReason tells the connection writer how to terminate the socket.
type CloseReason int

const (
	ReasonNone CloseReason = iota
	ReasonDisconnected
	ReasonLeft
	ReasonEvicted
	ReasonReplaced
	ReasonRoomClosed
)

func (r CloseReason) String() string {
	switch r {
	case ReasonDisconnected:
		return "disconnected"
	case ReasonLeft:
		return "left"
	case ReasonEvicted:
		return "evicted"
	case ReasonReplaced:
		return "replaced"
	case ReasonRoomClosed:
		return "room_closed"
	default:
		return "none"
	}
}

// Frame is a single outgoing message. Snapshot frames supersede each other.
type Frame struct {
	Snapshot bool
	Payload  any
}

// Outbox is the ordered, bounded send queue of one attached connection. Pushing never
// blocks; the writer waits on Notify and takes everything with Drain.
type Outbox struct {
	mu     sync.Mutex
	queue  []Frame
	limit  int
	closed bool
	reason CloseReason

	notify chan struct{}
	done   chan struct{}

	dropped int
	logger  *slog.Logger
}

func NewOutbox(limit int, logger *slog.Logger) *Outbox {
	if limit < 1 {
		limit = 1
	}

	return &Outbox{
		queue:  make([]Frame, 0, 8),
		limit:  limit,
		notify: make(chan struct{}, 1),
		done:   make(chan struct{}),
		logger: logger,
	}
}

// PushSnapshot replaces any snapshot still waiting and appends payload at the tail.
func (o *Outbox) PushSnapshot(payload any) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.closed {
		return
	}

	for i, f := range o.queue {
		if f.Snapshot {
			o.queue = append(o.queue[:i], o.queue[i+1:]...)
			break
		}
	}

	o.enqueue(Frame{Snapshot: true, Payload: payload})
}

func (o *Outbox) Push(payload any) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.closed {
		return
	}

	o.enqueue(Frame{Payload: payload})
}

// enqueue expects o.mu to be held.
func (o *Outbox) enqueue(f Frame) {
	if len(o.queue) >= o.limit {
		o.dropOldest()
	}
	o.queue = append(o.queue, f)

	select {
	case o.notify <- struct{}{}:
	default:
	}
}

func (o *Outbox) dropOldest() {
	index := 0
	for i, f := range o.queue {
		if !f.Snapshot {
			index = i
			break
		}
	}

	o.queue = append(o.queue[:index], o.queue[index+1:]...)
	o.dropped++
	o.logger.Warn("outbox is full, dropping oldest frame", "limit", o.limit, "dropped_total", o.dropped)
}

// Drain removes and returns all queued frames.
func (o *Outbox) Drain() []Frame {
	o.mu.Lock()
	defer o.mu.Unlock()

	frames := o.queue
	o.queue = make([]Frame, 0, 8)
	return frames
}

func (o *Outbox) Len() int {
	o.mu.Lock()
	defer o.mu.Unlock()

	return len(o.queue)
}

func (o *Outbox) Notify() <-chan struct{} {
	return o.notify
}

func (o *Outbox) Done() <-chan struct{} {
	return o.done
}

// Close is idempotent. The first reason wins. Frames queued before Close stay drainable.
func (o *Outbox) Close(reason CloseReason) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.closed {
		return
	}

	o.closed = true
	o.reason = reason
	close(o.done)
}

func (o *Outbox) Reason() CloseReason {
	o.mu.Lock()
	defer o.mu.Unlock()

	return o.reason
}

func (o *Outbox) Closed() bool {
	o.mu.Lock()
	defer o.mu.Unlock()

	return o.closed
}
