package domain

import "time"

// LogEntry is an accepted playback command or chat message.
type LogEntry struct {
	Seq      uint64    `json:"serverSeq"`
	Kind     EventType `json:"kind"`
	From     string    `json:"from"`
	Name     string    `json:"name,omitempty"`
	Text     string    `json:"text,omitempty"`
	Position float64   `json:"position"`
	At       time.Time `json:"at"`
}

// MessageLog is a bounded ring of entries ordered by Seq. The oldest entry is dropped once
// capacity is reached.
type MessageLog struct {
	entries []LogEntry
	start   int
	size    int
	lastSeq uint64
}

func NewMessageLog(capacity int) *MessageLog {
	if capacity < 1 {
		capacity = 1
	}

	return &MessageLog{entries: make([]LogEntry, capacity)}
}

func (l *MessageLog) Append(entry LogEntry) error {
	if entry.Seq <= l.lastSeq {
		return ErrOutOfOrder
	}

	capacity := len(l.entries)
	if l.size < capacity {
		l.entries[(l.start+l.size)%capacity] = entry
		l.size++
	} else {
		l.entries[l.start] = entry
		l.start = (l.start + 1) % capacity
	}
	l.lastSeq = entry.Seq

	return nil
}

func (l MessageLog) Len() int {
	return l.size
}

func (l MessageLog) LastSeq() uint64 {
	return l.lastSeq
}

// Tail returns up to n most recent entries, oldest first.
func (l MessageLog) Tail(n int) []LogEntry {
	n = clamp(n, 0, l.size)
	out := make([]LogEntry, 0, n)
	for i := l.size - n; i < l.size; i++ {
		out = append(out, l.entries[(l.start+i)%len(l.entries)])
	}

	return out
}

func (l MessageLog) All() []LogEntry {
	return l.Tail(l.size)
}
