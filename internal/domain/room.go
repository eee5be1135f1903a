package domain

import (
	"strings"
	"time"
)

type Mode string

const (
	ModeHostOnly      Mode = "host_only"
	ModeCollaborative Mode = "collaborative"
)

// ParseMode maps an empty string to the default host_only mode.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case "":
		return ModeHostOnly, nil
	case ModeHostOnly, ModeCollaborative:
		return Mode(s), nil
	default:
		return "", ErrInvalidMode
	}
}

type State string

const (
	StateEmpty        State = "empty"
	StateActive       State = "active"
	StatePendingClose State = "pending_close"
	StateClosed       State = "closed"
)

// Identity is the verified caller carried by a bearer credential.
type Identity struct {
	UserID  string
	Name    string
	IsAdmin bool
}

type Room struct {
	ID        string
	Code      string
	Name      string
	HostID    string
	MediaURL  string
	Duration  float64
	Mode      Mode
	State     State
	Player    Player
	Seq       uint64
	CreatedAt time.Time
}

func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// NextSeq advances the room sequence number and returns the new value.
func (r *Room) NextSeq() uint64 {
	r.Seq++
	return r.Seq
}

func (r Room) Snapshot(now time.Time) Snapshot {
	return Snapshot{
		Position:   r.Player.CurrentPosition(now, r.Duration),
		IsPlaying:  r.Player.IsPlaying,
		ServerSeq:  r.Seq,
		ServerTime: now.UnixMilli(),
	}
}

func (r Room) Info(connected int) RoomInfo {
	return RoomInfo{
		ID:               r.ID,
		Code:             r.Code,
		Name:             r.Name,
		HostID:           r.HostID,
		MediaURL:         r.MediaURL,
		Duration:         r.Duration,
		Mode:             r.Mode,
		State:            r.State,
		ConnectedMembers: connected,
		CreatedAt:        r.CreatedAt,
	}
}

type Snapshot struct {
	Position   float64 `json:"position"`
	IsPlaying  bool    `json:"isPlaying"`
	ServerSeq  uint64  `json:"serverSeq"`
	ServerTime int64   `json:"serverTime"`
}

type RoomInfo struct {
	ID               string    `json:"id"`
	Code             string    `json:"code"`
	Name             string    `json:"name,omitempty"`
	HostID           string    `json:"host_id"`
	MediaURL         string    `json:"media_url"`
	Duration         float64   `json:"duration,omitempty"`
	Mode             Mode      `json:"mode"`
	State            State     `json:"state"`
	ConnectedMembers int       `json:"connected_members"`
	CreatedAt        time.Time `json:"created_at"`
}
