package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/sharetube/syncroom/internal/domain"
	"github.com/sharetube/syncroom/internal/repository/archive"
)

func (r repo) getRoomKey(roomID string) string {
	return "archive:room:" + roomID
}

func (r repo) getMessagesKey(roomID string) string {
	return "archive:room:" + roomID + ":messages"
}

func (r repo) SaveRoom(ctx context.Context, params *archive.SaveRoomParams) error {
	r.logger.DebugContext(ctx, "called", "room_id", params.Room.ID, "messages", len(params.Messages))

	room := archive.Room{
		Code:      params.Room.Code,
		HostID:    params.Room.HostID,
		MediaURL:  params.Room.MediaURL,
		Mode:      string(params.Room.Mode),
		Members:   len(params.Members),
		Messages:  len(params.Messages),
		Reason:    params.Reason,
		CreatedAt: params.Room.CreatedAt.UnixMilli(),
		ClosedAt:  params.ClosedAt.UnixMilli(),
	}
	if params.Room.Name != "" {
		room.Name = &params.Room.Name
	}

	messages := make([]any, 0, len(params.Messages))
	for _, entry := range params.Messages {
		b, err := json.Marshal(entry)
		if err != nil {
			return fmt.Errorf("failed to marshal log entry: %w", err)
		}
		messages = append(messages, b)
	}

	pipe := r.rc.TxPipeline()

	roomKey := r.getRoomKey(params.Room.ID)
	r.hSetStruct(ctx, pipe, roomKey, room)
	pipe.Expire(ctx, roomKey, r.expireDuration)

	messagesKey := r.getMessagesKey(params.Room.ID)
	pipe.Del(ctx, messagesKey)
	if len(messages) > 0 {
		pipe.RPush(ctx, messagesKey, messages...)
		pipe.Expire(ctx, messagesKey, r.expireDuration)
	}

	if err := r.executePipe(ctx, pipe); err != nil {
		return fmt.Errorf("failed to save room archive: %w", err)
	}

	return nil
}

func (r repo) GetRoom(ctx context.Context, roomID string) (archive.Room, error) {
	fields, err := r.rc.HGetAll(ctx, r.getRoomKey(roomID)).Result()
	if err != nil {
		return archive.Room{}, fmt.Errorf("failed to get archived room: %w", err)
	}
	if len(fields) == 0 {
		return archive.Room{}, domain.ErrArchiveNotFound
	}

	room := archive.Room{
		Code:      fields["code"],
		HostID:    fields["host_id"],
		MediaURL:  fields["media_url"],
		Mode:      fields["mode"],
		Members:   r.fieldToInt(fields["members"]),
		Messages:  r.fieldToInt(fields["messages"]),
		Reason:    fields["reason"],
		CreatedAt: r.fieldToInt64(fields["created_at"]),
		ClosedAt:  r.fieldToInt64(fields["closed_at"]),
	}
	if name, ok := fields["name"]; ok {
		room.Name = &name
	}

	return room, nil
}

func (r repo) GetMessages(ctx context.Context, roomID string) ([]domain.LogEntry, error) {
	exists, err := r.rc.Exists(ctx, r.getRoomKey(roomID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to check archive: %w", err)
	}
	if exists == 0 {
		return nil, domain.ErrArchiveNotFound
	}

	raw, err := r.rc.LRange(ctx, r.getMessagesKey(roomID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get archived messages: %w", err)
	}

	entries := make([]domain.LogEntry, 0, len(raw))
	for _, item := range raw {
		var entry domain.LogEntry
		if err := json.Unmarshal([]byte(item), &entry); err != nil {
			return nil, fmt.Errorf("failed to unmarshal log entry: %w", err)
		}
		entries = append(entries, entry)
	}

	return entries, nil
}
