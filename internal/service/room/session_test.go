package room

import (
	"context"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sharetube/syncroom/internal/domain"
	"github.com/sharetube/syncroom/internal/service/broadcast"
	"github.com/sharetube/syncroom/internal/service/moderation"
)

func meta(id domain.Identity, seq uint64) domain.EventMeta {
	return domain.EventMeta{MemberID: id.UserID, ClientSeq: seq}
}

func TestAttachDeliversCatchUp(t *testing.T) {
	s, _ := newTestService(t, testConfig())
	session, info := createRoom(t, s, domain.ModeHostOnly)
	ctx := context.Background()

	h := connect(t, s, host, info.ID)
	assert.Equal(t, []string{"sync", "welcome"}, types(drain(t, h.Outbox)))
	assert.Equal(t, domain.RoleHost, h.Member.Role)

	require.NoError(t, session.Submit(ctx, h.Key, domain.Play{EventMeta: meta(host, 1)}))
	require.NoError(t, session.Submit(ctx, h.Key, domain.Chat{EventMeta: meta(host, 2), Text: "hi"}))

	v := connect(t, s, viewer, strings.ToLower(info.Code))
	frames := drain(t, v.Outbox)
	require.Equal(t, []string{"sync", "control", "chat", "welcome"}, types(frames))
	assert.Equal(t, true, frames[0]["isPlaying"])
	assert.EqualValues(t, 2, frames[0]["serverSeq"])
	assert.Equal(t, "play", frames[1]["action"])
	assert.EqualValues(t, 1, frames[1]["serverSeq"])
	assert.Equal(t, "hi", frames[2]["text"])
	assert.Equal(t, "viewer", frames[3]["member"].(map[string]any)["role"])

	assert.Equal(t, []string{"sync", "chat", "presence"}, types(drain(t, h.Outbox)))
}

func TestHostOnlyRejectsViewerPlayback(t *testing.T) {
	s, _ := newTestService(t, testConfig())
	session, info := createRoom(t, s, domain.ModeHostOnly)
	ctx := context.Background()

	connect(t, s, host, info.ID)
	v := connect(t, s, viewer, info.ID)
	drain(t, v.Outbox)

	err := session.Submit(ctx, v.Key, domain.Seek{EventMeta: meta(viewer, 1), Position: 10})
	assert.ErrorIs(t, err, domain.ErrForbidden)
	assert.Empty(t, drain(t, v.Outbox))

	require.NoError(t, session.Submit(ctx, v.Key, domain.Chat{EventMeta: meta(viewer, 1), Text: "can I?"}), "viewers may chat")
}

func TestStaleEventsAreDropped(t *testing.T) {
	s, _ := newTestService(t, testConfig())
	session, info := createRoom(t, s, domain.ModeHostOnly)
	ctx := context.Background()

	h := connect(t, s, host, info.ID)
	drain(t, h.Outbox)

	require.NoError(t, session.Submit(ctx, h.Key, domain.Seek{EventMeta: meta(host, 0), Position: 5}), "first token is fresh even when zero")
	assert.ErrorIs(t, session.Submit(ctx, h.Key, domain.Seek{EventMeta: meta(host, 0), Position: 6}), domain.ErrStale)
	require.NoError(t, session.Submit(ctx, h.Key, domain.Seek{EventMeta: meta(host, 5), Position: 30}))
	assert.ErrorIs(t, session.Submit(ctx, h.Key, domain.Seek{EventMeta: meta(host, 5), Position: 99}), domain.ErrStale)
	assert.ErrorIs(t, session.Submit(ctx, h.Key, domain.Chat{EventMeta: meta(host, 4), Text: "late"}), domain.ErrStale)

	snap, err := session.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, 30.0, snap.Position)
	assert.Equal(t, uint64(2), snap.ServerSeq)
	assert.Len(t, drain(t, h.Outbox), 1)
}

func TestStaleTokensSurviveReconnect(t *testing.T) {
	s, _ := newTestService(t, testConfig())
	session, info := createRoom(t, s, domain.ModeCollaborative)
	ctx := context.Background()

	h := connect(t, s, host, info.ID)
	v := connect(t, s, viewer, info.ID)
	require.NoError(t, session.Submit(ctx, v.Key, domain.Seek{EventMeta: meta(viewer, 3), Position: 20}))

	require.NoError(t, s.DisconnectMember(ctx, &DisconnectMemberParams{Session: session, Key: v.Key, Outbox: v.Outbox}))
	v = connect(t, s, viewer, info.ID)

	frames := drain(t, v.Outbox)
	welcome := frames[len(frames)-1]
	require.Equal(t, "welcome", welcome["type"])
	assert.Equal(t, 3.0, welcome["lastClientSeq"])

	drain(t, h.Outbox)
	assert.ErrorIs(t, session.Submit(ctx, v.Key, domain.Seek{EventMeta: meta(viewer, 3), Position: 20}), domain.ErrStale, "replayed command after reconnect")
	assert.Empty(t, drain(t, h.Outbox))
	require.NoError(t, session.Submit(ctx, v.Key, domain.Seek{EventMeta: meta(viewer, 4), Position: 25}))

	// an explicit leave drops the token history
	require.NoError(t, s.LeaveRoom(ctx, &LeaveRoomParams{Identity: viewer, RoomID: info.ID}))
	v = connect(t, s, viewer, info.ID)
	frames = drain(t, v.Outbox)
	assert.NotContains(t, frames[len(frames)-1], "lastClientSeq")
	require.NoError(t, session.Submit(ctx, v.Key, domain.Seek{EventMeta: meta(viewer, 1), Position: 10}))
}

func TestConcurrentSeeksLastAppliedWins(t *testing.T) {
	s, _ := newTestService(t, testConfig())
	session, info := createRoom(t, s, domain.ModeCollaborative)
	ctx := context.Background()

	a := connect(t, s, host, info.ID)
	b := connect(t, s, viewer, info.ID)
	drain(t, a.Outbox)
	drain(t, b.Outbox)

	require.NoError(t, session.Submit(ctx, a.Key, domain.Seek{EventMeta: meta(host, 1), Position: 30}))
	require.NoError(t, session.Submit(ctx, b.Key, domain.Seek{EventMeta: meta(viewer, 1), Position: 45}))

	for _, o := range []*broadcast.Outbox{a.Outbox, b.Outbox} {
		frames := drain(t, o)
		require.Equal(t, []string{"sync"}, types(frames), "superseded snapshot must be coalesced")
		assert.Equal(t, 45.0, frames[0]["position"])
		assert.EqualValues(t, 2, frames[0]["serverSeq"])
	}

	history, err := session.History(ctx, host, 0)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, uint64(1), history[0].Seq)
	assert.Equal(t, 45.0, history[1].Position)
}

func TestPlaybackExtrapolation(t *testing.T) {
	s, clock := newTestService(t, testConfig())
	session, info := createRoom(t, s, domain.ModeHostOnly)
	ctx := context.Background()

	h := connect(t, s, host, info.ID)
	require.NoError(t, session.Submit(ctx, h.Key, domain.Play{EventMeta: meta(host, 1), Position: ptr(10.0)}))

	clock.Advance(2500 * time.Millisecond)
	snap, err := session.Snapshot(ctx)
	require.NoError(t, err)
	assert.InDelta(t, 12.5, snap.Position, 1e-9)
	assert.Equal(t, clock.Now().UnixMilli(), snap.ServerTime)

	require.NoError(t, session.Submit(ctx, h.Key, domain.Pause{EventMeta: meta(host, 2)}))
	clock.Advance(time.Minute)
	snap, err = session.Snapshot(ctx)
	require.NoError(t, err)
	assert.False(t, snap.IsPlaying)
	assert.InDelta(t, 12.5, snap.Position, 1e-9)
}

func TestChatValidation(t *testing.T) {
	mod, err := moderation.NewModerator([]string{"spoiler"}, moderation.DefaultMask, slog.Default())
	require.NoError(t, err)
	cfg := testConfig()
	cfg.ChatMaxLength = 10
	s, _ := newTestService(t, cfg, WithCensor(mod))
	session, info := createRoom(t, s, domain.ModeHostOnly)
	ctx := context.Background()

	h := connect(t, s, host, info.ID)
	drain(t, h.Outbox)

	assert.ErrorIs(t, session.Submit(ctx, h.Key, domain.Chat{EventMeta: meta(host, 1), Text: "   "}), domain.ErrInvalid)
	assert.ErrorIs(t, session.Submit(ctx, h.Key, domain.Chat{EventMeta: meta(host, 2), Text: strings.Repeat("x", 11)}), domain.ErrInvalid)
	require.NoError(t, session.Submit(ctx, h.Key, domain.Chat{EventMeta: meta(host, 3), Text: " spoiler! "}))

	frames := drain(t, h.Outbox)
	require.Equal(t, []string{"chat"}, types(frames))
	assert.Equal(t, "*******!", frames[0]["text"])
	assert.Equal(t, "Host", frames[0]["name"])
	assert.EqualValues(t, 1, frames[0]["serverSeq"])
}

func TestSyncRequestIsUnicast(t *testing.T) {
	s, _ := newTestService(t, testConfig())
	session, info := createRoom(t, s, domain.ModeHostOnly)
	ctx := context.Background()

	h := connect(t, s, host, info.ID)
	obs, err := s.ConnectMember(ctx, &ConnectMemberParams{Identity: admin, RoomRef: info.ID, Stealth: true})
	require.NoError(t, err)
	drain(t, h.Outbox)
	drain(t, obs.Outbox)

	require.NoError(t, session.Submit(ctx, obs.Key, domain.SyncRequest{EventMeta: meta(admin, 0)}))
	assert.Equal(t, []string{"sync"}, types(drain(t, obs.Outbox)))
	assert.Empty(t, drain(t, h.Outbox))

	assert.ErrorIs(t, session.Submit(ctx, obs.Key, domain.Chat{EventMeta: meta(admin, 1), Text: "boo"}), domain.ErrForbidden)

	members, err := session.Members(ctx, admin)
	require.NoError(t, err)
	assert.Len(t, members, 1, "observers are not listed")
}

func TestStealthRequiresAdmin(t *testing.T) {
	s, _ := newTestService(t, testConfig())
	_, info := createRoom(t, s, domain.ModeHostOnly)

	_, err := s.ConnectMember(context.Background(), &ConnectMemberParams{Identity: viewer, RoomRef: info.ID, Stealth: true})
	assert.ErrorIs(t, err, domain.ErrForbidden)
}

func TestPendingCloseAndRejoin(t *testing.T) {
	cfg := testConfig()
	cfg.GracePeriod = 80 * time.Millisecond
	s, _ := newTestService(t, cfg)
	session, info := createRoom(t, s, domain.ModeHostOnly)
	ctx := context.Background()

	h := connect(t, s, host, info.ID)
	got, err := session.Info(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.StateActive, got.State)

	require.NoError(t, s.DisconnectMember(ctx, &DisconnectMemberParams{Session: h.Session, Key: h.Key, Outbox: h.Outbox}))
	got, err = session.Info(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.StatePendingClose, got.State)
	members, err := session.Members(ctx, admin)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusDisconnectedGrace, members[0].Status)

	h = connect(t, s, host, info.ID)
	time.Sleep(2 * cfg.GracePeriod)
	got, err = s.GetRoom(ctx, info.ID)
	require.NoError(t, err, "rejoin must cancel the close timer")
	assert.Equal(t, domain.StateActive, got.State)
	assert.Equal(t, 1, got.ConnectedMembers)

	obs, err := s.ConnectMember(ctx, &ConnectMemberParams{Identity: admin, RoomRef: info.ID, Stealth: true})
	require.NoError(t, err)
	require.NoError(t, s.DisconnectMember(ctx, &DisconnectMemberParams{Session: h.Session, Key: h.Key, Outbox: h.Outbox}))

	assert.Eventually(t, func() bool {
		_, err := s.GetRoom(ctx, info.ID)
		return err != nil
	}, time.Second, 10*time.Millisecond)

	select {
	case <-session.Done():
	case <-time.After(time.Second):
		t.Fatal("session did not stop")
	}

	assert.Equal(t, broadcast.ReasonRoomClosed, obs.Outbox.Reason())
	frames := drain(t, obs.Outbox)
	require.NotEmpty(t, frames)
	assert.Equal(t, "closed", frames[len(frames)-1]["type"])
	assert.Equal(t, closeReasonExpired, frames[len(frames)-1]["reason"])

	assert.ErrorIs(t, session.Submit(ctx, h.Key, domain.Pause{EventMeta: meta(host, 1)}), domain.ErrRoomNotFound)
	_, err = s.JoinRoom(ctx, &JoinRoomParams{Identity: viewer, RoomRef: info.Code})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestHeartbeatSweepEvicts(t *testing.T) {
	cfg := testConfig()
	cfg.MemberGracePeriod = 5 * time.Millisecond
	s, clock := newTestService(t, cfg)
	session, info := createRoom(t, s, domain.ModeHostOnly)
	ctx := context.Background()

	v := connect(t, s, viewer, info.ID)
	clock.Advance(20 * time.Millisecond)
	h := connect(t, s, host, info.ID)

	select {
	case <-v.Outbox.Done():
	case <-time.After(time.Second):
		t.Fatal("silent member was not disconnected")
	}
	assert.Equal(t, broadcast.ReasonDisconnected, v.Outbox.Reason())

	clock.Advance(10 * time.Millisecond)
	assert.Eventually(t, func() bool {
		members, err := session.Members(ctx, admin)
		return err == nil && len(members) == 1 && members[0].ID == host.UserID
	}, time.Second, 5*time.Millisecond)

	_, bound := s.registry.MemberRoom(viewer.UserID)
	assert.False(t, bound)

	var left bool
	for _, f := range drain(t, h.Outbox) {
		if f["type"] == "presence" && f["event"] == "left" {
			left = true
			assert.Equal(t, "evicted", f["member"].(map[string]any)["status"])
		}
	}
	assert.True(t, left, "host must see the eviction")
}

func TestChangeRole(t *testing.T) {
	s, _ := newTestService(t, testConfig())
	_, info := createRoom(t, s, domain.ModeHostOnly)
	ctx := context.Background()

	connect(t, s, host, info.ID)
	_, err := s.JoinRoom(ctx, &JoinRoomParams{Identity: viewer, RoomRef: info.ID})
	require.NoError(t, err)

	_, err = s.UpdateMemberRole(ctx, &UpdateMemberRoleParams{Actor: viewer, RoomID: info.ID, MemberID: viewer.UserID, Role: "host"})
	assert.ErrorIs(t, err, domain.ErrForbidden)

	_, err = s.UpdateMemberRole(ctx, &UpdateMemberRoleParams{Actor: host, RoomID: info.ID, MemberID: viewer.UserID, Role: "owner"})
	assert.ErrorIs(t, err, domain.ErrInvalid)

	promoted, err := s.UpdateMemberRole(ctx, &UpdateMemberRoleParams{Actor: host, RoomID: info.ID, MemberID: viewer.UserID, Role: "host"})
	require.NoError(t, err)
	assert.Equal(t, domain.RoleHost, promoted.Role)

	_, err = s.UpdateMemberRole(ctx, &UpdateMemberRoleParams{Actor: viewer, RoomID: info.ID, MemberID: host.UserID, Role: "viewer"})
	assert.ErrorIs(t, err, domain.ErrForbidden, "demoting the owner requires admin")

	demoted, err := s.UpdateMemberRole(ctx, &UpdateMemberRoleParams{Actor: admin, RoomID: info.ID, MemberID: host.UserID, Role: "viewer"})
	require.NoError(t, err)
	assert.Equal(t, domain.RoleViewer, demoted.Role)
}
