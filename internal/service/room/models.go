package room

import (
	"time"

	"github.com/sharetube/syncroom/internal/domain"
	"github.com/sharetube/syncroom/internal/service/broadcast"
)

type Config struct {
	MembersLimit      int
	HistoryLimit      int
	CatchUpLimit      int
	OutboxLimit       int
	ChatMaxLength     int
	GracePeriod       time.Duration
	MemberGracePeriod time.Duration
	HeartbeatInterval time.Duration
	MissedHeartbeats  int
	ArchiveTimeout    time.Duration
}

func DefaultConfig() *Config {
	return &Config{
		MembersLimit:      9,
		HistoryLimit:      200,
		CatchUpLimit:      50,
		OutboxLimit:       256,
		ChatMaxLength:     500,
		GracePeriod:       30 * time.Second,
		MemberGracePeriod: 30 * time.Second,
		HeartbeatInterval: 10 * time.Second,
		MissedHeartbeats:  3,
		ArchiveTimeout:    5 * time.Second,
	}
}

// ClosedRoom is what remains of a session once it is closed.
type ClosedRoom struct {
	Room    domain.RoomInfo
	Members []domain.Member
	History []domain.LogEntry
	Reason  string
}

// RoomUpdate holds the room settings to change. Nil fields are kept.
type RoomUpdate struct {
	Name     *string
	MediaURL *string
	Duration *float64
	Mode     *domain.Mode
}

// AttachResult is handed to the connection gateway after a successful attach.
type AttachResult struct {
	Key      string
	Outbox   *broadcast.Outbox
	Member   *domain.Member
	Room     domain.RoomInfo
	Observer bool
}

const (
	closeReasonExpired = "expired"
	closeReasonClosed  = "closed_by_host"
	closeReasonAdmin   = "closed_by_admin"
	closeReasonServer  = "server_shutdown"
)
