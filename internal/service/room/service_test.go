package room

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sharetube/syncroom/internal/domain"
	archiveRedis "github.com/sharetube/syncroom/internal/repository/archive/redis"
	"github.com/sharetube/syncroom/internal/service/broadcast"
)

func TestCreateRoom(t *testing.T) {
	s, clock := newTestService(t, testConfig())

	resp, err := s.CreateRoom(context.Background(), &CreateRoomParams{
		Host:     host,
		MediaURL: "https://example.com/film.mp4",
		Duration: -3,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, resp.Room.ID, "room id is empty")
	assert.Len(t, resp.Room.Code, codeLength)
	assert.Equal(t, domain.ModeHostOnly, resp.Room.Mode)
	assert.Equal(t, domain.StateEmpty, resp.Room.State)
	assert.Equal(t, host.UserID, resp.Room.HostID)
	assert.Zero(t, resp.Room.Duration)
	assert.Equal(t, clock.Now(), resp.Room.CreatedAt)

	_, err = s.CreateRoom(context.Background(), &CreateRoomParams{Host: host, Mode: "chaos"})
	assert.ErrorIs(t, err, domain.ErrInvalid)
}

func TestJoinRoomRegistersMemberInGrace(t *testing.T) {
	s, _ := newTestService(t, testConfig())
	_, info := createRoom(t, s, domain.ModeHostOnly)

	resp, err := s.JoinRoom(context.Background(), &JoinRoomParams{Identity: viewer, RoomRef: info.Code})
	require.NoError(t, err)
	assert.Equal(t, domain.RoleViewer, resp.Member.Role)
	assert.Equal(t, domain.StatusDisconnectedGrace, resp.Member.Status)
	assert.Equal(t, domain.StateEmpty, resp.Room.State, "a member without a connection does not activate the room")

	// joining again revives the same entry
	_, err = s.JoinRoom(context.Background(), &JoinRoomParams{Identity: viewer, RoomRef: info.ID})
	require.NoError(t, err)
	members, err := s.GetMembers(context.Background(), &GetMembersParams{Actor: viewer, RoomID: info.ID})
	require.NoError(t, err)
	assert.Len(t, members, 1)
}

func TestMembersLimit(t *testing.T) {
	cfg := testConfig()
	cfg.MembersLimit = 2
	s, _ := newTestService(t, cfg)
	_, info := createRoom(t, s, domain.ModeHostOnly)
	ctx := context.Background()

	connect(t, s, host, info.ID)
	connect(t, s, viewer, info.ID)

	_, err := s.ConnectMember(ctx, &ConnectMemberParams{Identity: domain.Identity{UserID: "third"}, RoomRef: info.ID})
	assert.ErrorIs(t, err, domain.ErrMembersLimitReached)
	_, bound := s.registry.MemberRoom("third")
	assert.False(t, bound, "failed join must not keep the binding")
}

func TestMemberBelongsToOneRoom(t *testing.T) {
	s, _ := newTestService(t, testConfig())
	_, first := createRoom(t, s, domain.ModeHostOnly)
	_, second := createRoom(t, s, domain.ModeHostOnly)
	ctx := context.Background()

	v := connect(t, s, viewer, first.ID)
	_, err := s.JoinRoom(ctx, &JoinRoomParams{Identity: viewer, RoomRef: second.ID})
	require.NoError(t, err)

	members, err := s.GetMembers(ctx, &GetMembersParams{Actor: host, RoomID: first.ID})
	require.NoError(t, err)
	assert.Empty(t, members)
	assert.Equal(t, broadcast.ReasonLeft, v.Outbox.Reason())

	roomID, ok := s.registry.MemberRoom(viewer.UserID)
	require.True(t, ok)
	assert.Equal(t, second.ID, roomID)
}

func TestRefusedJoinKeepsPreviousRoom(t *testing.T) {
	cfg := testConfig()
	cfg.MembersLimit = 1
	s, _ := newTestService(t, cfg)
	_, first := createRoom(t, s, domain.ModeHostOnly)
	_, second := createRoom(t, s, domain.ModeHostOnly)
	ctx := context.Background()

	v := connect(t, s, viewer, first.ID)
	connect(t, s, domain.Identity{UserID: "third"}, second.ID)

	_, err := s.ConnectMember(ctx, &ConnectMemberParams{Identity: viewer, RoomRef: second.ID})
	assert.ErrorIs(t, err, domain.ErrMembersLimitReached)
	_, err = s.JoinRoom(ctx, &JoinRoomParams{Identity: viewer, RoomRef: second.Code})
	assert.ErrorIs(t, err, domain.ErrMembersLimitReached)

	members, err := s.GetMembers(ctx, &GetMembersParams{Actor: viewer, RoomID: first.ID})
	require.NoError(t, err)
	require.Len(t, members, 1)
	assert.Equal(t, viewer.UserID, members[0].ID)
	assert.Equal(t, broadcast.ReasonNone, v.Outbox.Reason())

	roomID, ok := s.registry.MemberRoom(viewer.UserID)
	require.True(t, ok)
	assert.Equal(t, first.ID, roomID)
}

func TestLeaveRoom(t *testing.T) {
	s, _ := newTestService(t, testConfig())
	_, info := createRoom(t, s, domain.ModeHostOnly)
	ctx := context.Background()

	h := connect(t, s, host, info.ID)
	connect(t, s, viewer, info.ID)
	drain(t, h.Outbox)

	require.NoError(t, s.LeaveRoom(ctx, &LeaveRoomParams{Identity: viewer, RoomID: info.ID}))
	frames := drain(t, h.Outbox)
	require.Equal(t, []string{"presence"}, types(frames))
	assert.Equal(t, "left", frames[0]["event"])

	err := s.LeaveRoom(ctx, &LeaveRoomParams{Identity: viewer, RoomID: info.ID})
	assert.ErrorIs(t, err, domain.ErrMemberNotFound)
}

func TestGetMessagesLimit(t *testing.T) {
	s, _ := newTestService(t, testConfig())
	session, info := createRoom(t, s, domain.ModeHostOnly)
	ctx := context.Background()

	h := connect(t, s, host, info.ID)
	for seq := uint64(1); seq <= 5; seq++ {
		require.NoError(t, session.Submit(ctx, h.Key, domain.Chat{EventMeta: meta(host, seq), Text: "msg"}))
	}

	messages, err := s.GetMessages(ctx, &GetMessagesParams{Actor: host, RoomID: info.ID, Limit: 2})
	require.NoError(t, err)
	require.Len(t, messages, 2)
	assert.Equal(t, uint64(4), messages[0].Seq)
	assert.Equal(t, uint64(5), messages[1].Seq)
}

func TestReadersMustBelongToRoom(t *testing.T) {
	s, _ := newTestService(t, testConfig())
	_, info := createRoom(t, s, domain.ModeHostOnly)
	ctx := context.Background()
	stranger := domain.Identity{UserID: "stranger"}

	_, err := s.GetMembers(ctx, &GetMembersParams{Actor: stranger, RoomID: info.ID})
	assert.ErrorIs(t, err, domain.ErrForbidden)
	_, err = s.GetMessages(ctx, &GetMessagesParams{Actor: stranger, RoomID: info.ID})
	assert.ErrorIs(t, err, domain.ErrForbidden)

	// the host identity reads before it joins
	_, err = s.GetMembers(ctx, &GetMembersParams{Actor: host, RoomID: info.ID})
	assert.NoError(t, err)
	_, err = s.GetMessages(ctx, &GetMessagesParams{Actor: admin, RoomID: info.ID})
	assert.NoError(t, err)

	_, err = s.JoinRoom(ctx, &JoinRoomParams{Identity: stranger, RoomRef: info.ID})
	require.NoError(t, err)
	_, err = s.GetMessages(ctx, &GetMessagesParams{Actor: stranger, RoomID: info.ID})
	assert.NoError(t, err)
}

func TestUpdateRoom(t *testing.T) {
	s, clock := newTestService(t, testConfig())
	session, info := createRoom(t, s, domain.ModeHostOnly)
	ctx := context.Background()

	h := connect(t, s, host, info.ID)
	v := connect(t, s, viewer, info.ID)
	require.NoError(t, session.Submit(ctx, h.Key, domain.Play{EventMeta: meta(host, 1)}))
	clock.Advance(5 * time.Second)
	drain(t, v.Outbox)

	_, err := s.UpdateRoom(ctx, &UpdateRoomParams{Actor: viewer, RoomID: info.ID, Name: ptr("mine")})
	assert.ErrorIs(t, err, domain.ErrForbidden)
	_, err = s.UpdateRoom(ctx, &UpdateRoomParams{Actor: host, RoomID: info.ID, Mode: ptr("chaos")})
	assert.ErrorIs(t, err, domain.ErrInvalid)

	got, err := s.UpdateRoom(ctx, &UpdateRoomParams{Actor: host, RoomID: info.ID, Name: ptr("late show"), Mode: ptr("collaborative")})
	require.NoError(t, err)
	assert.Equal(t, "late show", got.Name)
	assert.Equal(t, domain.ModeCollaborative, got.Mode)
	assert.Equal(t, info.MediaURL, got.MediaURL)

	frames := drain(t, v.Outbox)
	require.Equal(t, []string{"room"}, types(frames), "settings alone do not touch playback")
	assert.Equal(t, "late show", frames[0]["room"].(map[string]any)["name"])

	// viewers may now steer playback
	require.NoError(t, session.Submit(ctx, v.Key, domain.Pause{EventMeta: meta(viewer, 1)}))
	drain(t, v.Outbox)

	got, err = s.UpdateRoom(ctx, &UpdateRoomParams{Actor: admin, RoomID: info.ID, MediaURL: ptr("https://example.com/sequel.mp4"), Duration: ptr(90.0)})
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/sequel.mp4", got.MediaURL)
	assert.Equal(t, 90.0, got.Duration)

	frames = drain(t, v.Outbox)
	require.Equal(t, []string{"room", "sync"}, types(frames))
	assert.Equal(t, 0.0, frames[1]["position"], "new media starts from the beginning")
	assert.Equal(t, false, frames[1]["isPlaying"])
	assert.EqualValues(t, 3, frames[1]["serverSeq"])
}

func TestListUserRooms(t *testing.T) {
	s, clock := newTestService(t, testConfig())
	_, hosted := createRoom(t, s, domain.ModeHostOnly)
	clock.Advance(time.Second)
	_, joined := createRoom(t, s, domain.ModeHostOnly)
	ctx := context.Background()

	connect(t, s, viewer, joined.ID)

	rooms, err := s.ListUserRooms(ctx, viewer.UserID)
	require.NoError(t, err)
	require.Len(t, rooms, 1)
	assert.Equal(t, joined.ID, rooms[0].ID)

	rooms, err = s.ListUserRooms(ctx, host.UserID)
	require.NoError(t, err)
	require.Len(t, rooms, 2)
	assert.Equal(t, hosted.ID, rooms[0].ID)

	rooms, err = s.ListUserRooms(ctx, "nobody")
	require.NoError(t, err)
	assert.Empty(t, rooms)
}

func TestCloseRoomArchivesHistory(t *testing.T) {
	mr := miniredis.RunT(t)
	rc := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})
	defer rc.Close()
	archiveRepo := archiveRedis.NewRepo(rc, time.Hour, slog.Default())

	s, _ := newTestService(t, testConfig(), WithArchive(archiveRepo))
	session, info := createRoom(t, s, domain.ModeHostOnly)
	ctx := context.Background()

	h := connect(t, s, host, info.ID)
	v := connect(t, s, viewer, info.ID)
	require.NoError(t, session.Submit(ctx, h.Key, domain.Play{EventMeta: meta(host, 1)}))
	require.NoError(t, session.Submit(ctx, v.Key, domain.Chat{EventMeta: meta(viewer, 1), Text: "popcorn"}))

	err := s.CloseRoom(ctx, &CloseRoomParams{Actor: viewer, RoomID: info.ID})
	assert.ErrorIs(t, err, domain.ErrForbidden)

	require.NoError(t, s.CloseRoom(ctx, &CloseRoomParams{Actor: host, RoomID: info.ID}))
	assert.Equal(t, broadcast.ReasonRoomClosed, v.Outbox.Reason())
	_, err = s.GetRoom(ctx, info.ID)
	assert.ErrorIs(t, err, domain.ErrRoomNotFound)

	var messages []domain.LogEntry
	assert.Eventually(t, func() bool {
		messages, err = s.GetArchivedMessages(ctx, info.ID)
		return err == nil
	}, time.Second, 10*time.Millisecond)
	require.Len(t, messages, 2)
	assert.Equal(t, domain.EventPlay, messages[0].Kind)
	assert.Equal(t, "popcorn", messages[1].Text)

	_, err = s.GetArchivedMessages(ctx, "unknown")
	assert.ErrorIs(t, err, domain.ErrArchiveNotFound)
}

func TestListRooms(t *testing.T) {
	s, clock := newTestService(t, testConfig())
	_, first := createRoom(t, s, domain.ModeHostOnly)
	clock.Advance(time.Second)
	_, second := createRoom(t, s, domain.ModeCollaborative)
	connect(t, s, viewer, second.ID)

	rooms, err := s.ListRooms(context.Background())
	require.NoError(t, err)
	require.Len(t, rooms, 2)
	assert.Equal(t, first.ID, rooms[0].ID)
	assert.Equal(t, second.ID, rooms[1].ID)
	assert.Equal(t, 1, rooms[1].ConnectedMembers)
	assert.Equal(t, domain.StateActive, rooms[1].State)
}
