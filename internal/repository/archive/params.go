package archive

import (
	"time"

	"github.com/sharetube/syncroom/internal/domain"
)

type SaveRoomParams struct {
	Room     domain.RoomInfo
	Members  []domain.Member
	Messages []domain.LogEntry
	Reason   string
	ClosedAt time.Time
}
