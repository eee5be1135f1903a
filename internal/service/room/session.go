package room

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/sharetube/syncroom/internal/domain"
	"github.com/sharetube/syncroom/internal/service/broadcast"
)

const inboxSize = 64

type iCensor interface {
	Censor(text string) string
}

type sessionHooks struct {
	onClose         func(s *Session, closed ClosedRoom)
	onMemberRemoved func(userID, roomID string)
}

type attachment struct {
	key      string
	memberID string
	observer bool
	outbox   *broadcast.Outbox
}

// Session owns one room. All state below the immutable identifiers is touched only by the
// actor goroutine started in start.
type Session struct {
	id   string
	code string

	cfg    *Config
	now    func() time.Time
	logger *slog.Logger
	censor iCensor
	hooks  sessionHooks

	room        domain.Room
	members     *domain.Members
	history     *domain.MessageLog
	broadcaster *broadcast.Broadcaster
	attachments map[string]*attachment

	closeTimer *time.Timer
	timerGen   uint64

	inbox  chan func()
	done   chan struct{}
	closed atomic.Bool
}

type newSessionParams struct {
	Room   domain.Room
	Config *Config
	Now    func() time.Time
	Logger *slog.Logger
	Censor iCensor
	Hooks  sessionHooks
}

func newSession(params *newSessionParams) *Session {
	logger := params.Logger.With("room_id", params.Room.ID)
	hooks := params.Hooks
	if hooks.onClose == nil {
		hooks.onClose = func(*Session, ClosedRoom) {}
	}
	if hooks.onMemberRemoved == nil {
		hooks.onMemberRemoved = func(string, string) {}
	}

	return &Session{
		id:          params.Room.ID,
		code:        params.Room.Code,
		cfg:         params.Config,
		now:         params.Now,
		logger:      logger,
		censor:      params.Censor,
		hooks:       hooks,
		room:        params.Room,
		members:     domain.NewMembers(params.Config.MembersLimit),
		history:     domain.NewMessageLog(params.Config.HistoryLimit),
		broadcaster: broadcast.NewBroadcaster(logger),
		attachments: make(map[string]*attachment),
		inbox:       make(chan func(), inboxSize),
		done:        make(chan struct{}),
	}
}

func (s *Session) ID() string { return s.id }

func (s *Session) Code() string { return s.code }

// Closed reports whether the session stopped accepting joins.
func (s *Session) Closed() bool { return s.closed.Load() }

// Done is closed once the actor goroutine has stopped.
func (s *Session) Done() <-chan struct{} { return s.done }

func (s *Session) start() {
	s.startCloseTimer()
	go s.run()
}

func (s *Session) run() {
	ticker := time.NewTicker(s.cfg.HeartbeatInterval)
	defer ticker.Stop()

	for s.room.State != domain.StateClosed {
		select {
		case cmd := <-s.inbox:
			cmd()
		case <-ticker.C:
			s.sweep()
		}
	}

	close(s.done)
	// commands that raced with close observe the closed state
	for {
		select {
		case cmd := <-s.inbox:
			cmd()
		default:
			return
		}
	}
}

type result[T any] struct {
	value T
	err   error
}

// call runs fn on the actor goroutine and waits for its result.
func call[T any](ctx context.Context, s *Session, fn func() (T, error)) (T, error) {
	var zero T
	reply := make(chan result[T], 1)
	cmd := func() {
		if s.room.State == domain.StateClosed {
			reply <- result[T]{err: domain.ErrRoomNotFound}
			return
		}
		v, err := fn()
		reply <- result[T]{value: v, err: err}
	}

	select {
	case s.inbox <- cmd:
	case <-s.done:
		return zero, domain.ErrRoomNotFound
	case <-ctx.Done():
		return zero, ctx.Err()
	}

	select {
	case r := <-reply:
		return r.value, r.err
	case <-s.done:
		select {
		case r := <-reply:
			return r.value, r.err
		default:
			return zero, domain.ErrRoomNotFound
		}
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

// enqueue schedules cmd without waiting. It reports false when the actor has stopped.
func (s *Session) enqueue(cmd func()) bool {
	select {
	case s.inbox <- cmd:
		return true
	case <-s.done:
		return false
	}
}

func (s *Session) setState(state domain.State) {
	if s.room.State == state {
		return
	}

	s.logger.Debug("room state changed", "from", s.room.State, "to", state)
	s.room.State = state
	if state == domain.StateClosed {
		s.closed.Store(true)
	}
}

func (s *Session) updateLifecycle() {
	connected := s.members.Connected()
	switch s.room.State {
	case domain.StateEmpty, domain.StatePendingClose:
		if connected > 0 {
			s.stopCloseTimer()
			s.setState(domain.StateActive)
		}
	case domain.StateActive:
		if connected == 0 {
			s.setState(domain.StatePendingClose)
			s.startCloseTimer()
		}
	}
}

func (s *Session) startCloseTimer() {
	s.stopCloseTimer()
	gen := s.timerGen
	s.closeTimer = time.AfterFunc(s.cfg.GracePeriod, func() {
		s.enqueue(func() {
			if gen != s.timerGen || s.room.State == domain.StateActive {
				return
			}
			s.close(closeReasonExpired)
		})
	})
}

func (s *Session) stopCloseTimer() {
	s.timerGen++
	if s.closeTimer != nil {
		s.closeTimer.Stop()
		s.closeTimer = nil
	}
}

func (s *Session) close(reason string) {
	if s.room.State == domain.StateClosed {
		return
	}

	s.stopCloseTimer()
	s.setState(domain.StateClosed)

	s.broadcaster.Publish(domain.ClosedMessage{Type: domain.MessageTypeClosed, Reason: reason})
	s.broadcaster.CloseAll(broadcast.ReasonRoomClosed)
	clear(s.attachments)

	members := s.members.AsList()
	for _, m := range members {
		s.hooks.onMemberRemoved(m.ID, s.id)
	}

	s.logger.Info("room closed", "reason", reason, "members", len(members), "history", s.history.Len())
	s.hooks.onClose(s, ClosedRoom{
		Room:    s.room.Info(0),
		Members: members,
		History: s.history.All(),
		Reason:  reason,
	})
}

func (s *Session) info() domain.RoomInfo {
	return s.room.Info(s.members.Connected())
}

func (s *Session) Info(ctx context.Context) (domain.RoomInfo, error) {
	return call(ctx, s, func() (domain.RoomInfo, error) {
		return s.info(), nil
	})
}

func (s *Session) Snapshot(ctx context.Context) (domain.Snapshot, error) {
	return call(ctx, s, func() (domain.Snapshot, error) {
		return s.room.Snapshot(s.now()), nil
	})
}

// History returns up to limit of the most recent log entries, oldest first. A non-positive
// limit returns the whole log.
func (s *Session) History(ctx context.Context, actor domain.Identity, limit int) ([]domain.LogEntry, error) {
	return call(ctx, s, func() ([]domain.LogEntry, error) {
		if !s.canRead(actor) {
			return nil, domain.ErrPermissionDenied
		}
		if limit <= 0 {
			return s.history.All(), nil
		}
		return s.history.Tail(limit), nil
	})
}

// Close retires the room. Only the host identity, a member holding the host role or an
// admin may close it.
func (s *Session) Close(ctx context.Context, actor domain.Identity) error {
	_, err := call(ctx, s, func() (struct{}, error) {
		reason := closeReasonClosed
		switch {
		case actor.IsAdmin:
			reason = closeReasonAdmin
		case actor.UserID == s.room.HostID:
		case s.isHost(actor.UserID):
		default:
			return struct{}{}, domain.ErrPermissionDenied
		}

		s.close(reason)
		return struct{}{}, nil
	})

	return err
}

// Update changes the room settings with the same permissions as Close. A new media url
// rewinds the player, and any playback change is announced with a fresh snapshot.
func (s *Session) Update(ctx context.Context, actor domain.Identity, update RoomUpdate) (domain.RoomInfo, error) {
	return call(ctx, s, func() (domain.RoomInfo, error) {
		if !actor.IsAdmin && actor.UserID != s.room.HostID && !s.isHost(actor.UserID) {
			return domain.RoomInfo{}, domain.ErrPermissionDenied
		}

		now := s.now()
		playback := false
		if update.Name != nil {
			s.room.Name = *update.Name
		}
		if update.Mode != nil {
			s.room.Mode = *update.Mode
		}
		if update.Duration != nil {
			// keep the live position when the bound moves
			s.room.Player.Rebase(now, s.room.Duration)
			s.room.Duration = max(*update.Duration, 0)
			playback = true
		}
		if update.MediaURL != nil && *update.MediaURL != s.room.MediaURL {
			s.room.MediaURL = *update.MediaURL
			s.room.Player = domain.NewPlayer(now)
			playback = true
		}

		info := s.info()
		s.logger.Info("room updated", "by", actor.UserID, "mode", info.Mode, "media_url", info.MediaURL)
		s.broadcaster.Publish(domain.RoomMessage{Type: domain.MessageTypeRoom, Room: info})
		if playback {
			s.room.NextSeq()
			s.broadcaster.PublishSnapshot(domain.NewSyncMessage(s.room.Snapshot(now)))
		}

		return info, nil
	})
}

// shutdown closes the room regardless of the caller.
func (s *Session) shutdown(ctx context.Context) error {
	_, err := call(ctx, s, func() (struct{}, error) {
		s.close(closeReasonServer)
		return struct{}{}, nil
	})

	return err
}
