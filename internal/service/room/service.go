package room

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/samber/lo"

	"github.com/sharetube/syncroom/internal/domain"
	"github.com/sharetube/syncroom/internal/repository/archive"
	"github.com/sharetube/syncroom/internal/service/broadcast"
	"github.com/sharetube/syncroom/pkg/randstr"
)

const listTimeout = 250 * time.Millisecond

type iArchiveRepo interface {
	SaveRoom(ctx context.Context, params *archive.SaveRoomParams) error
	GetMessages(ctx context.Context, roomID string) ([]domain.LogEntry, error)
}

type service struct {
	registry    *Registry
	archiveRepo iArchiveRepo
	censor      iCensor
	cfg         *Config
	now         func() time.Time
	logger      *slog.Logger
	archiving   sync.WaitGroup
}

type Option func(*service)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *service) { s.now = now }
}

// WithArchive stores the message log of every closed room in repo.
func WithArchive(repo iArchiveRepo) Option {
	return func(s *service) { s.archiveRepo = repo }
}

func WithCensor(censor iCensor) Option {
	return func(s *service) { s.censor = censor }
}

func NewService(cfg *Config, logger *slog.Logger, opts ...Option) *service {
	s := &service{
		registry: NewRegistry(randstr.New(codeLetters)),
		cfg:      cfg,
		now:      time.Now,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(s)
	}

	return s
}

func (s *service) newSession(room domain.Room) *Session {
	return newSession(&newSessionParams{
		Room:   room,
		Config: s.cfg,
		Now:    s.now,
		Logger: s.logger,
		Censor: s.censor,
		Hooks: sessionHooks{
			onClose:         s.onRoomClosed,
			onMemberRemoved: s.registry.UnbindMember,
		},
	})
}

func (s *service) onRoomClosed(session *Session, closed ClosedRoom) {
	s.registry.Retire(session)
	if s.archiveRepo == nil {
		return
	}

	s.archiving.Add(1)
	go func() {
		defer s.archiving.Done()

		ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ArchiveTimeout)
		defer cancel()

		if err := s.archiveRepo.SaveRoom(ctx, &archive.SaveRoomParams{
			Room:     closed.Room,
			Members:  closed.Members,
			Messages: closed.History,
			Reason:   closed.Reason,
			ClosedAt: s.now(),
		}); err != nil {
			s.logger.ErrorContext(ctx, "failed to archive room", "error", err, "room_id", closed.Room.ID)
			return
		}
		s.logger.DebugContext(ctx, "room archived", "room_id", closed.Room.ID, "messages", len(closed.History))
	}()
}

type CreateRoomParams struct {
	Host     domain.Identity
	Name     string
	MediaURL string
	Duration float64
	Mode     string
}

type CreateRoomResponse struct {
	Room domain.RoomInfo
}

func (s *service) CreateRoom(ctx context.Context, params *CreateRoomParams) (CreateRoomResponse, error) {
	mode, err := domain.ParseMode(params.Mode)
	if err != nil {
		return CreateRoomResponse{}, err
	}

	now := s.now()
	session, err := s.registry.Register(func(id, code string) *Session {
		return s.newSession(domain.Room{
			ID:        id,
			Code:      code,
			Name:      params.Name,
			HostID:    params.Host.UserID,
			MediaURL:  params.MediaURL,
			Duration:  max(params.Duration, 0),
			Mode:      mode,
			State:     domain.StateEmpty,
			Player:    domain.NewPlayer(now),
			CreatedAt: now,
		})
	})
	if err != nil {
		s.logger.InfoContext(ctx, "failed to register room", "error", err)
		return CreateRoomResponse{}, fmt.Errorf("failed to create room: %w", err)
	}
	session.start()

	info, err := session.Info(ctx)
	if err != nil {
		return CreateRoomResponse{}, fmt.Errorf("failed to get room info: %w", err)
	}
	s.logger.InfoContext(ctx, "room created", "room_id", info.ID, "code", info.Code, "host_id", info.HostID)

	return CreateRoomResponse{Room: info}, nil
}

func (s *service) GetRoom(ctx context.Context, ref string) (domain.RoomInfo, error) {
	session, err := s.registry.Lookup(ref)
	if err != nil {
		return domain.RoomInfo{}, err
	}

	return session.Info(ctx)
}

// moveMember makes session the only room of userID and leaves the previous one. It runs
// only after the user got into session, so a refused join keeps the previous room.
func (s *service) moveMember(ctx context.Context, userID string, session *Session) {
	prev := s.registry.BindMember(userID, session.ID())
	if prev == "" {
		return
	}

	prevSession, err := s.registry.Lookup(prev)
	if err != nil {
		return
	}

	if err := prevSession.Leave(ctx, userID); err != nil && !errors.Is(err, domain.ErrNotFound) {
		s.logger.InfoContext(ctx, "failed to leave previous room", "error", err, "room_id", prev)
		return
	}
	s.logger.DebugContext(ctx, "member moved between rooms", "from", prev, "to", session.ID())
}

type JoinRoomParams struct {
	Identity domain.Identity
	RoomRef  string
}

type JoinRoomResponse struct {
	Room   domain.RoomInfo
	Member domain.Member
}

func (s *service) JoinRoom(ctx context.Context, params *JoinRoomParams) (JoinRoomResponse, error) {
	session, err := s.registry.Lookup(params.RoomRef)
	if err != nil {
		return JoinRoomResponse{}, err
	}

	member, err := session.Join(ctx, params.Identity)
	if err != nil {
		s.logger.InfoContext(ctx, "failed to join room", "error", err)
		return JoinRoomResponse{}, fmt.Errorf("failed to join room: %w", err)
	}
	s.moveMember(ctx, params.Identity.UserID, session)

	info, err := session.Info(ctx)
	if err != nil {
		return JoinRoomResponse{}, fmt.Errorf("failed to get room info: %w", err)
	}

	return JoinRoomResponse{Room: info, Member: member}, nil
}

type ConnectMemberParams struct {
	Identity domain.Identity
	RoomRef  string
	Stealth  bool
}

type ConnectMemberResponse struct {
	Session *Session
	AttachResult
}

func (s *service) ConnectMember(ctx context.Context, params *ConnectMemberParams) (ConnectMemberResponse, error) {
	session, err := s.registry.Lookup(params.RoomRef)
	if err != nil {
		return ConnectMemberResponse{}, err
	}

	res, err := session.Attach(ctx, params.Identity, params.Stealth)
	if err != nil {
		s.logger.InfoContext(ctx, "failed to attach member", "error", err)
		return ConnectMemberResponse{}, fmt.Errorf("failed to connect member: %w", err)
	}
	if !params.Stealth {
		s.moveMember(ctx, params.Identity.UserID, session)
	}

	return ConnectMemberResponse{Session: session, AttachResult: res}, nil
}

type DisconnectMemberParams struct {
	Session *Session
	Key     string
	Outbox  *broadcast.Outbox
}

func (s *service) DisconnectMember(ctx context.Context, params *DisconnectMemberParams) error {
	if err := params.Session.Detach(ctx, params.Key, params.Outbox); err != nil {
		// a closed room already dropped every attachment
		if errors.Is(err, domain.ErrRoomNotFound) {
			return nil
		}
		return fmt.Errorf("failed to disconnect member: %w", err)
	}

	return nil
}

type LeaveRoomParams struct {
	Identity domain.Identity
	RoomID   string
}

func (s *service) LeaveRoom(ctx context.Context, params *LeaveRoomParams) error {
	session, err := s.registry.Lookup(params.RoomID)
	if err != nil {
		return err
	}

	if err := session.Leave(ctx, params.Identity.UserID); err != nil {
		return fmt.Errorf("failed to leave room: %w", err)
	}

	return nil
}

type GetMembersParams struct {
	Actor  domain.Identity
	RoomID string
}

// GetMembers is open to members of the room, its host and admins.
func (s *service) GetMembers(ctx context.Context, params *GetMembersParams) ([]domain.Member, error) {
	session, err := s.registry.Lookup(params.RoomID)
	if err != nil {
		return nil, err
	}

	return session.Members(ctx, params.Actor)
}

type GetMessagesParams struct {
	Actor  domain.Identity
	RoomID string
	Limit  int
}

func (s *service) GetMessages(ctx context.Context, params *GetMessagesParams) ([]domain.LogEntry, error) {
	session, err := s.registry.Lookup(params.RoomID)
	if err != nil {
		return nil, err
	}

	return session.History(ctx, params.Actor, params.Limit)
}

type UpdateMemberRoleParams struct {
	Actor    domain.Identity
	RoomID   string
	MemberID string
	Role     string
}

func (s *service) UpdateMemberRole(ctx context.Context, params *UpdateMemberRoleParams) (domain.Member, error) {
	role, err := domain.ParseRole(params.Role)
	if err != nil {
		return domain.Member{}, err
	}

	session, err := s.registry.Lookup(params.RoomID)
	if err != nil {
		return domain.Member{}, err
	}

	member, err := session.ChangeRole(ctx, params.Actor, params.MemberID, role)
	if err != nil {
		s.logger.InfoContext(ctx, "failed to change member role", "error", err)
		return domain.Member{}, fmt.Errorf("failed to update member role: %w", err)
	}

	return member, nil
}

type UpdateRoomParams struct {
	Actor    domain.Identity
	RoomID   string
	Name     *string
	MediaURL *string
	Duration *float64
	Mode     *string
}

func (s *service) UpdateRoom(ctx context.Context, params *UpdateRoomParams) (domain.RoomInfo, error) {
	update := RoomUpdate{
		Name:     params.Name,
		MediaURL: params.MediaURL,
		Duration: params.Duration,
	}
	if params.Mode != nil {
		mode, err := domain.ParseMode(*params.Mode)
		if err != nil {
			return domain.RoomInfo{}, err
		}
		update.Mode = &mode
	}

	session, err := s.registry.Lookup(params.RoomID)
	if err != nil {
		return domain.RoomInfo{}, err
	}

	info, err := session.Update(ctx, params.Actor, update)
	if err != nil {
		s.logger.InfoContext(ctx, "failed to update room", "error", err)
		return domain.RoomInfo{}, fmt.Errorf("failed to update room: %w", err)
	}

	return info, nil
}

type CloseRoomParams struct {
	Actor  domain.Identity
	RoomID string
}

func (s *service) CloseRoom(ctx context.Context, params *CloseRoomParams) error {
	session, err := s.registry.Lookup(params.RoomID)
	if err != nil {
		return err
	}

	if err := session.Close(ctx, params.Actor); err != nil {
		return fmt.Errorf("failed to close room: %w", err)
	}

	return nil
}

// ListRooms asks every live session for its info and skips sessions that do not answer in
// time or closed meanwhile.
func (s *service) ListRooms(ctx context.Context) ([]domain.RoomInfo, error) {
	return s.listInfos(ctx, s.registry.List())
}

// ListUserRooms lists the live rooms hosted by userID together with the room it is a member of.
func (s *service) ListUserRooms(ctx context.Context, userID string) ([]domain.RoomInfo, error) {
	memberOf, _ := s.registry.MemberRoom(userID)
	infos, err := s.listInfos(ctx, s.registry.List())

	return lo.Filter(infos, func(info domain.RoomInfo, _ int) bool {
		return info.HostID == userID || info.ID == memberOf
	}), err
}

func (s *service) listInfos(ctx context.Context, sessions []*Session) ([]domain.RoomInfo, error) {
	infos := lo.FilterMap(sessions, func(session *Session, _ int) (domain.RoomInfo, bool) {
		ctx, cancel := context.WithTimeout(ctx, listTimeout)
		defer cancel()

		info, err := session.Info(ctx)
		if err != nil {
			s.logger.DebugContext(ctx, "skipped room in listing", "room_id", session.ID(), "error", err)
			return domain.RoomInfo{}, false
		}
		return info, true
	})

	slices.SortFunc(infos, func(a, b domain.RoomInfo) int {
		return cmp.Or(a.CreatedAt.Compare(b.CreatedAt), cmp.Compare(a.ID, b.ID))
	})

	return infos, ctx.Err()
}

func (s *service) GetArchivedMessages(ctx context.Context, roomID string) ([]domain.LogEntry, error) {
	if s.archiveRepo == nil {
		return nil, domain.ErrArchiveNotFound
	}

	messages, err := s.archiveRepo.GetMessages(ctx, roomID)
	if err != nil {
		return nil, fmt.Errorf("failed to get archived messages: %w", err)
	}

	return messages, nil
}

// Shutdown closes every room and waits for pending archive writes.
func (s *service) Shutdown(ctx context.Context) error {
	for _, session := range s.registry.List() {
		if err := session.shutdown(ctx); err != nil && !errors.Is(err, domain.ErrRoomNotFound) {
			s.logger.InfoContext(ctx, "failed to close room", "error", err, "room_id", session.ID())
		}
	}

	done := make(chan struct{})
	go func() {
		s.archiving.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
