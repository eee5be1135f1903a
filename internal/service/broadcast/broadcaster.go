package broadcast

import (
	"log/slog"
	"sync"
)

// Broadcaster fans frames out to the outboxes of every attached connection of a room.
type Broadcaster struct {
	mu       sync.RWMutex
	outboxes map[string]*Outbox
	logger   *slog.Logger
}

func NewBroadcaster(logger *slog.Logger) *Broadcaster {
	return &Broadcaster{
		outboxes: make(map[string]*Outbox),
		logger:   logger,
	}
}

// Subscribe registers o under key. A previous outbox with the same key is closed as replaced.
func (b *Broadcaster) Subscribe(key string, o *Outbox) {
	b.mu.Lock()
	prev, ok := b.outboxes[key]
	b.outboxes[key] = o
	b.mu.Unlock()

	if ok && prev != o {
		prev.Close(ReasonReplaced)
	}
}

// Unsubscribe removes key only while it still points at o and closes o with reason.
func (b *Broadcaster) Unsubscribe(key string, o *Outbox, reason CloseReason) bool {
	b.mu.Lock()
	current, ok := b.outboxes[key]
	removed := ok && current == o
	if removed {
		delete(b.outboxes, key)
	}
	b.mu.Unlock()

	o.Close(reason)
	return removed
}

func (b *Broadcaster) Get(key string) (*Outbox, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	o, ok := b.outboxes[key]
	return o, ok
}

func (b *Broadcaster) PublishSnapshot(payload any) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, o := range b.outboxes {
		o.PushSnapshot(payload)
	}
}

func (b *Broadcaster) Publish(payload any) {
	b.PublishExcept("", payload)
}

// PublishExcept sends payload to every outbox but the one registered under skip.
func (b *Broadcaster) PublishExcept(skip string, payload any) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for key, o := range b.outboxes {
		if key == skip {
			continue
		}
		o.Push(payload)
	}
}

// CloseAll closes and forgets every outbox.
func (b *Broadcaster) CloseAll(reason CloseReason) {
	b.mu.Lock()
	outboxes := b.outboxes
	b.outboxes = make(map[string]*Outbox)
	b.mu.Unlock()

	for _, o := range outboxes {
		o.Close(reason)
	}
	b.logger.Debug("closed all outboxes", "count", len(outboxes), "reason", reason.String())
}

func (b *Broadcaster) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return len(b.outboxes)
}
