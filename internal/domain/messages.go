package domain

// Outgoing websocket frames.

const (
	MessageTypeSync     = "sync"
	MessageTypeChat     = "chat"
	MessageTypeControl  = "control"
	MessageTypePresence = "presence"
	MessageTypeWelcome  = "welcome"
	MessageTypeError    = "error"
	MessageTypeClosed   = "closed"
	MessageTypeRoom     = "room"
)

type SyncMessage struct {
	Type string `json:"type"`
	Snapshot
}

func NewSyncMessage(s Snapshot) SyncMessage {
	return SyncMessage{Type: MessageTypeSync, Snapshot: s}
}

type ChatMessage struct {
	Type      string `json:"type"`
	From      string `json:"from"`
	Name      string `json:"name"`
	Text      string `json:"text"`
	ServerSeq uint64 `json:"serverSeq"`
}

type ControlMessage struct {
	Type      string    `json:"type"`
	Action    EventType `json:"action"`
	From      string    `json:"from"`
	Position  float64   `json:"position"`
	ServerSeq uint64    `json:"serverSeq"`
}

// ReplayMessage renders a log entry as it is replayed to a late joiner.
func ReplayMessage(e LogEntry) any {
	if e.Kind == EventChat {
		return ChatMessage{
			Type:      MessageTypeChat,
			From:      e.From,
			Name:      e.Name,
			Text:      e.Text,
			ServerSeq: e.Seq,
		}
	}

	return ControlMessage{
		Type:      MessageTypeControl,
		Action:    e.Kind,
		From:      e.From,
		Position:  e.Position,
		ServerSeq: e.Seq,
	}
}

type PresenceEvent string

const (
	PresenceJoined  PresenceEvent = "joined"
	PresenceLeft    PresenceEvent = "left"
	PresenceUpdated PresenceEvent = "updated"
)

type PresenceMessage struct {
	Type   string        `json:"type"`
	Event  PresenceEvent `json:"event"`
	Member Member        `json:"member"`
}

type WelcomeMessage struct {
	Type     string   `json:"type"`
	Room     RoomInfo `json:"room"`
	Member   *Member  `json:"member,omitempty"`
	Observer bool     `json:"observer,omitempty"`

	// LastClientSeq lets a reconnecting client resume its token sequence.
	LastClientSeq *uint64 `json:"lastClientSeq,omitempty"`
}

type ErrorMessage struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ClosedMessage struct {
	Type   string `json:"type"`
	Reason string `json:"reason"`
}

// RoomMessage announces changed room settings.
type RoomMessage struct {
	Type string   `json:"type"`
	Room RoomInfo `json:"room"`
}
