package room

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/sharetube/syncroom/internal/domain"
)

// Submit applies a control event issued through the attachment registered under key.
// Stale events return domain.ErrStaleEvent and change nothing.
func (s *Session) Submit(ctx context.Context, key string, ev domain.ControlEvent) error {
	_, err := call(ctx, s, func() (struct{}, error) {
		return struct{}{}, s.apply(key, ev)
	})

	return err
}

func (s *Session) apply(key string, ev domain.ControlEvent) error {
	att, ok := s.attachments[key]
	if !ok {
		return domain.ErrMemberNotFound
	}

	now := s.now()
	var member *domain.Member
	if !att.observer {
		m, err := s.members.GetByID(att.memberID)
		if err != nil {
			return err
		}
		m.LastHeartbeat = now
		member = m
	}

	switch ev.(type) {
	case domain.Heartbeat:
		return nil
	case domain.SyncRequest:
		att.outbox.PushSnapshot(domain.NewSyncMessage(s.room.Snapshot(now)))
		return nil
	}

	if member == nil {
		return domain.ErrPermissionDenied
	}

	if domain.IsPlayback(ev) && s.room.Mode == domain.ModeHostOnly && member.Role != domain.RoleHost {
		return domain.ErrPermissionDenied
	}

	meta := ev.Meta()
	if member.ClientSeq.Stale(meta.ClientSeq) {
		last, _ := member.ClientSeq.Last()
		s.logger.Debug("dropped stale event", "member_id", member.ID, "type", ev.Type(), "client_seq", meta.ClientSeq, "last_client_seq", last)
		return domain.ErrStaleEvent
	}

	entry := domain.LogEntry{
		Kind: ev.Type(),
		From: member.ID,
		Name: member.Name,
		At:   now,
	}

	switch e := ev.(type) {
	case domain.Play:
		s.room.Player.Play(now, e.Position, s.room.Duration)
	case domain.Pause:
		s.room.Player.Pause(now, s.room.Duration)
	case domain.Seek:
		s.room.Player.Seek(now, e.Position, s.room.Duration)
	case domain.Chat:
		text, err := s.prepareChat(e.Text)
		if err != nil {
			return err
		}
		entry.Text = text
	default:
		return domain.ErrInvalidEvent
	}

	member.ClientSeq.Accept(meta.ClientSeq)
	entry.Seq = s.room.NextSeq()
	entry.Position = s.room.Player.CurrentPosition(now, s.room.Duration)
	if err := s.history.Append(entry); err != nil {
		s.logger.Error("failed to append log entry", "error", err, "seq", entry.Seq)
	}

	if entry.Kind == domain.EventChat {
		s.broadcaster.Publish(domain.ReplayMessage(entry))
		return nil
	}

	s.broadcaster.PublishSnapshot(domain.NewSyncMessage(s.room.Snapshot(now)))
	return nil
}

func (s *Session) prepareChat(text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", domain.ErrEmptyMessage
	}

	if s.cfg.ChatMaxLength > 0 && utf8.RuneCountInString(text) > s.cfg.ChatMaxLength {
		return "", domain.ErrMessageTooLong
	}

	if s.censor != nil {
		text = s.censor.Censor(text)
	}

	return text, nil
}
