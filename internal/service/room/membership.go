package room

import (
	"context"
	"time"

	"github.com/sharetube/syncroom/internal/domain"
	"github.com/sharetube/syncroom/internal/service/broadcast"
)

const observerKeyPrefix = "observer:"

func (s *Session) isHost(userID string) bool {
	m, err := s.members.GetByID(userID)
	return err == nil && m.Role == domain.RoleHost
}

func (s *Session) roleFor(userID string) domain.Role {
	if userID == s.room.HostID {
		return domain.RoleHost
	}

	return domain.RoleViewer
}

func (s *Session) publishPresence(event domain.PresenceEvent, m domain.Member) {
	s.broadcaster.Publish(domain.PresenceMessage{
		Type:   domain.MessageTypePresence,
		Event:  event,
		Member: m,
	})
}

// join registers id or revives its existing entry. A member that is not connecting stays in
// disconnected_grace until it attaches or the member grace period runs out.
func (s *Session) join(id domain.Identity, connect bool) (*domain.Member, error) {
	now := s.now()

	if member, err := s.members.GetByID(id.UserID); err == nil {
		if id.Name != "" {
			member.Name = id.Name
		}
		if connect && member.Status != domain.StatusConnected {
			member.Status = domain.StatusConnected
			member.LastHeartbeat = now
			member.DisconnectedAt = time.Time{}
			s.publishPresence(domain.PresenceUpdated, *member)
		}
		return member, nil
	}

	member := &domain.Member{
		ID:             id.UserID,
		Name:           id.Name,
		Role:           s.roleFor(id.UserID),
		Status:         domain.StatusDisconnectedGrace,
		LastHeartbeat:  now,
		JoinedAt:       now,
		DisconnectedAt: now,
	}
	if connect {
		member.Status = domain.StatusConnected
		member.DisconnectedAt = time.Time{}
	}

	if err := s.members.Add(member); err != nil {
		return nil, err
	}

	s.logger.Info("member joined", "member_id", member.ID, "role", member.Role, "connected", connect)
	s.publishPresence(domain.PresenceJoined, *member)
	return member, nil
}

// subscribe queues the catch-up frames for att and then starts live delivery. Running both
// in one actor step keeps live frames from slipping in between.
func (s *Session) subscribe(att *attachment, member *domain.Member) {
	now := s.now()
	att.outbox.PushSnapshot(domain.NewSyncMessage(s.room.Snapshot(now)))
	for _, entry := range s.history.Tail(s.cfg.CatchUpLimit) {
		att.outbox.Push(domain.ReplayMessage(entry))
	}

	welcome := domain.WelcomeMessage{
		Type:     domain.MessageTypeWelcome,
		Room:     s.info(),
		Observer: att.observer,
	}
	if member != nil {
		m := *member
		welcome.Member = &m
		if last, ok := member.ClientSeq.Last(); ok {
			welcome.LastClientSeq = &last
		}
	}
	att.outbox.Push(welcome)

	s.attachments[att.key] = att
	s.broadcaster.Subscribe(att.key, att.outbox)
}

// Join registers a member without a connection.
func (s *Session) Join(ctx context.Context, id domain.Identity) (domain.Member, error) {
	return call(ctx, s, func() (domain.Member, error) {
		member, err := s.join(id, false)
		if err != nil {
			return domain.Member{}, err
		}

		return *member, nil
	})
}

// Attach joins id and subscribes a fresh outbox to the room. With stealth set an admin
// attaches as an observer that is neither listed nor counted.
func (s *Session) Attach(ctx context.Context, id domain.Identity, stealth bool) (AttachResult, error) {
	return call(ctx, s, func() (AttachResult, error) {
		if stealth {
			if !id.IsAdmin {
				return AttachResult{}, domain.ErrPermissionDenied
			}

			att := &attachment{
				key:      observerKeyPrefix + id.UserID,
				memberID: id.UserID,
				observer: true,
				outbox:   broadcast.NewOutbox(s.cfg.OutboxLimit, s.logger.With("observer_id", id.UserID)),
			}
			s.subscribe(att, nil)
			s.logger.Info("observer attached", "observer_id", id.UserID)

			return AttachResult{Key: att.key, Outbox: att.outbox, Room: s.info(), Observer: true}, nil
		}

		member, err := s.join(id, true)
		if err != nil {
			return AttachResult{}, err
		}

		att := &attachment{
			key:      member.ID,
			memberID: member.ID,
			outbox:   broadcast.NewOutbox(s.cfg.OutboxLimit, s.logger.With("member_id", member.ID)),
		}
		s.subscribe(att, member)
		s.updateLifecycle()

		m := *member
		return AttachResult{Key: att.key, Outbox: att.outbox, Member: &m, Room: s.info()}, nil
	})
}

func (s *Session) detach(key string, outbox *broadcast.Outbox, reason broadcast.CloseReason) {
	att, ok := s.attachments[key]
	if !ok || att.outbox != outbox {
		outbox.Close(reason)
		return
	}

	delete(s.attachments, key)
	s.broadcaster.Unsubscribe(key, outbox, reason)
	if att.observer {
		return
	}

	if member, err := s.members.GetByID(att.memberID); err == nil && member.Status == domain.StatusConnected {
		member.Status = domain.StatusDisconnectedGrace
		member.DisconnectedAt = s.now()
		s.logger.Info("member disconnected", "member_id", member.ID, "reason", reason.String())
		s.publishPresence(domain.PresenceUpdated, *member)
	}

	s.updateLifecycle()
}

// Detach is the silent leave signalled by the gateway when a connection goes away. It is a
// no-op for an outbox that was already replaced.
func (s *Session) Detach(ctx context.Context, key string, outbox *broadcast.Outbox) error {
	_, err := call(ctx, s, func() (struct{}, error) {
		s.detach(key, outbox, broadcast.ReasonDisconnected)
		return struct{}{}, nil
	})

	return err
}

func (s *Session) leave(userID string, reason broadcast.CloseReason) (domain.Member, error) {
	member, err := s.members.RemoveByID(userID)
	if err != nil {
		return domain.Member{}, err
	}

	if att, ok := s.attachments[userID]; ok {
		delete(s.attachments, userID)
		s.broadcaster.Unsubscribe(userID, att.outbox, reason)
	}

	if reason == broadcast.ReasonEvicted {
		member.Status = domain.StatusEvicted
	}

	s.logger.Info("member left", "member_id", userID, "reason", reason.String())
	s.publishPresence(domain.PresenceLeft, member)
	s.hooks.onMemberRemoved(userID, s.id)
	s.updateLifecycle()

	return member, nil
}

// Leave removes a member immediately.
func (s *Session) Leave(ctx context.Context, userID string) error {
	_, err := call(ctx, s, func() (domain.Member, error) {
		return s.leave(userID, broadcast.ReasonLeft)
	})

	return err
}

func (s *Session) Heartbeat(ctx context.Context, key string) error {
	_, err := call(ctx, s, func() (struct{}, error) {
		att, ok := s.attachments[key]
		if !ok {
			return struct{}{}, domain.ErrMemberNotFound
		}

		if !att.observer {
			if member, err := s.members.GetByID(att.memberID); err == nil {
				member.LastHeartbeat = s.now()
			}
		}

		return struct{}{}, nil
	})

	return err
}

// sweep moves silent members to disconnected_grace and evicts members whose grace expired.
func (s *Session) sweep() {
	now := s.now()
	timeout := time.Duration(s.cfg.MissedHeartbeats) * s.cfg.HeartbeatInterval

	for _, m := range s.members.AsList() {
		switch m.Status {
		case domain.StatusConnected:
			if now.Sub(m.LastHeartbeat) <= timeout {
				continue
			}

			s.logger.Info("member missed heartbeats", "member_id", m.ID, "last_heartbeat", m.LastHeartbeat)
			if att, ok := s.attachments[m.ID]; ok {
				s.detach(m.ID, att.outbox, broadcast.ReasonDisconnected)
				continue
			}

			if member, err := s.members.GetByID(m.ID); err == nil {
				member.Status = domain.StatusDisconnectedGrace
				member.DisconnectedAt = now
			}
		case domain.StatusDisconnectedGrace:
			if now.Sub(m.DisconnectedAt) > s.cfg.MemberGracePeriod {
				s.leave(m.ID, broadcast.ReasonEvicted)
			}
		}
	}

	s.updateLifecycle()
}

// canRead reports whether actor may see the member list and the message log.
func (s *Session) canRead(actor domain.Identity) bool {
	if actor.IsAdmin || actor.UserID == s.room.HostID {
		return true
	}

	_, err := s.members.GetByID(actor.UserID)
	return err == nil
}

func (s *Session) Members(ctx context.Context, actor domain.Identity) ([]domain.Member, error) {
	return call(ctx, s, func() ([]domain.Member, error) {
		if !s.canRead(actor) {
			return nil, domain.ErrPermissionDenied
		}
		return s.members.AsList(), nil
	})
}

// ChangeRole is allowed to any host of the room and to admins. Demoting the room's host
// identity requires an admin.
func (s *Session) ChangeRole(ctx context.Context, actor domain.Identity, targetID string, role domain.Role) (domain.Member, error) {
	return call(ctx, s, func() (domain.Member, error) {
		if !actor.IsAdmin && !s.isHost(actor.UserID) {
			return domain.Member{}, domain.ErrPermissionDenied
		}

		target, err := s.members.GetByID(targetID)
		if err != nil {
			return domain.Member{}, err
		}

		if targetID == s.room.HostID && role != domain.RoleHost && !actor.IsAdmin {
			return domain.Member{}, domain.ErrPermissionDenied
		}

		if target.Role != role {
			target.Role = role
			s.logger.Info("member role changed", "member_id", targetID, "role", role, "by", actor.UserID)
			s.publishPresence(domain.PresenceUpdated, *target)
		}

		return *target, nil
	})
}
