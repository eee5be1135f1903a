package room

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sharetube/syncroom/internal/domain"
	"github.com/sharetube/syncroom/internal/service/broadcast"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.UnixMilli(1_700_000_000_000)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.now = c.now.Add(d)
}

func testConfig() *Config {
	cfg := DefaultConfig()
	cfg.GracePeriod = time.Minute
	cfg.HeartbeatInterval = 5 * time.Millisecond
	cfg.ArchiveTimeout = time.Second
	return cfg
}

func newTestService(t *testing.T, cfg *Config, opts ...Option) (*service, *fakeClock) {
	t.Helper()
	clock := newFakeClock()
	opts = append([]Option{WithClock(clock.Now)}, opts...)
	s := NewService(cfg, slog.Default(), opts...)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		s.Shutdown(ctx)
	})

	return s, clock
}

var (
	host   = domain.Identity{UserID: "host", Name: "Host"}
	viewer = domain.Identity{UserID: "viewer", Name: "Viewer"}
	admin  = domain.Identity{UserID: "admin", Name: "Admin", IsAdmin: true}
)

func createRoom(t *testing.T, s *service, mode domain.Mode) (*Session, domain.RoomInfo) {
	t.Helper()
	resp, err := s.CreateRoom(context.Background(), &CreateRoomParams{
		Host:     host,
		Name:     "movie night",
		MediaURL: "https://example.com/film.mp4",
		Mode:     string(mode),
	})
	require.NoError(t, err)

	session, err := s.registry.Lookup(resp.Room.ID)
	require.NoError(t, err)

	return session, resp.Room
}

func connect(t *testing.T, s *service, id domain.Identity, ref string) ConnectMemberResponse {
	t.Helper()
	resp, err := s.ConnectMember(context.Background(), &ConnectMemberParams{Identity: id, RoomRef: ref})
	require.NoError(t, err)

	return resp
}

type frame map[string]any

func drain(t *testing.T, o *broadcast.Outbox) []frame {
	t.Helper()
	frames := make([]frame, 0)
	for _, f := range o.Drain() {
		b, err := json.Marshal(f.Payload)
		require.NoError(t, err)

		var decoded frame
		require.NoError(t, json.Unmarshal(b, &decoded))
		frames = append(frames, decoded)
	}

	return frames
}

func types(frames []frame) []string {
	out := make([]string, 0, len(frames))
	for _, f := range frames {
		out = append(out, f["type"].(string))
	}

	return out
}

func ptr[T any](v T) *T {
	return &v
}
