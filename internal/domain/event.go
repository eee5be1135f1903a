package domain

type EventType string

const (
	EventPlay        EventType = "play"
	EventPause       EventType = "pause"
	EventSeek        EventType = "seek"
	EventChat        EventType = "chat"
	EventSyncRequest EventType = "sync-request"
	EventHeartbeat   EventType = "heartbeat"
)

// ControlEvent is a command issued by a member. The concrete types are Play, Pause, Seek,
// Chat, SyncRequest and Heartbeat.
type ControlEvent interface {
	Type() EventType
	Meta() EventMeta
}

// EventMeta identifies the issuer of an event and its client sequence token.
type EventMeta struct {
	MemberID  string
	ClientSeq uint64
}

func (m EventMeta) Meta() EventMeta { return m }

type Play struct {
	EventMeta
	Position *float64
}

func (Play) Type() EventType { return EventPlay }

type Pause struct {
	EventMeta
}

func (Pause) Type() EventType { return EventPause }

type Seek struct {
	EventMeta
	Position float64
}

func (Seek) Type() EventType { return EventSeek }

type Chat struct {
	EventMeta
	Text string
}

func (Chat) Type() EventType { return EventChat }

type SyncRequest struct {
	EventMeta
}

func (SyncRequest) Type() EventType { return EventSyncRequest }

type Heartbeat struct {
	EventMeta
}

func (Heartbeat) Type() EventType { return EventHeartbeat }

// IsPlayback reports whether the event mutates the playback state.
func IsPlayback(e ControlEvent) bool {
	switch e.Type() {
	case EventPlay, EventPause, EventSeek:
		return true
	default:
		return false
	}
}
