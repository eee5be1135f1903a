package controller

import (
	"context"
	"fmt"

	"github.com/gorilla/websocket"

	"github.com/sharetube/syncroom/internal/domain"
	"github.com/sharetube/syncroom/pkg/wsrouter"
)

func (c controller) getWSRouter() *wsrouter.WSRouter {
	r := wsrouter.New()
	r.Use(c.wsFrameCtxMw(), c.loggerWSMw())

	wsrouter.Handle(r, string(domain.EventPlay), c.handlePlay)
	wsrouter.Handle(r, string(domain.EventPause), c.handlePause)
	wsrouter.Handle(r, string(domain.EventSeek), c.handleSeek)
	wsrouter.Handle(r, string(domain.EventChat), c.handleChat)
	wsrouter.Handle(r, string(domain.EventSyncRequest), c.handleSyncRequest)
	wsrouter.Handle(r, string(domain.EventHeartbeat), c.handleHeartbeat)

	return r
}

type EmptyInput struct {
	ClientSeq uint64 `json:"clientSeq"`
}

type PlayInput struct {
	Position  *float64 `json:"position"`
	ClientSeq uint64   `json:"clientSeq"`
}

type SeekInput struct {
	Position  *float64 `json:"position"`
	ClientSeq uint64   `json:"clientSeq"`
}

type ChatInput struct {
	Text      string `json:"text"`
	ClientSeq uint64 `json:"clientSeq"`
}

func (c controller) submit(ctx context.Context, ev domain.ControlEvent) error {
	client := c.getClientFromCtx(ctx)
	if client == nil {
		return domain.ErrMemberNotFound
	}

	if err := client.session.Submit(ctx, client.key, ev); err != nil {
		return fmt.Errorf("failed to submit %s: %w", ev.Type(), err)
	}

	return nil
}

func (c controller) meta(ctx context.Context, clientSeq uint64) domain.EventMeta {
	meta := domain.EventMeta{ClientSeq: clientSeq}
	if client := c.getClientFromCtx(ctx); client != nil {
		meta.MemberID = client.memberID
	}

	return meta
}

func (c controller) handlePlay(ctx context.Context, _ *websocket.Conn, input PlayInput) error {
	return c.submit(ctx, domain.Play{
		EventMeta: c.meta(ctx, input.ClientSeq),
		Position:  input.Position,
	})
}

func (c controller) handlePause(ctx context.Context, _ *websocket.Conn, input EmptyInput) error {
	return c.submit(ctx, domain.Pause{EventMeta: c.meta(ctx, input.ClientSeq)})
}

func (c controller) handleSeek(ctx context.Context, _ *websocket.Conn, input SeekInput) error {
	if input.Position == nil {
		return fmt.Errorf("%w: seek without position", domain.ErrInvalidEvent)
	}

	return c.submit(ctx, domain.Seek{
		EventMeta: c.meta(ctx, input.ClientSeq),
		Position:  *input.Position,
	})
}

func (c controller) handleChat(ctx context.Context, _ *websocket.Conn, input ChatInput) error {
	return c.submit(ctx, domain.Chat{
		EventMeta: c.meta(ctx, input.ClientSeq),
		Text:      input.Text,
	})
}

func (c controller) handleSyncRequest(ctx context.Context, _ *websocket.Conn, input EmptyInput) error {
	return c.submit(ctx, domain.SyncRequest{EventMeta: c.meta(ctx, input.ClientSeq)})
}

func (c controller) handleHeartbeat(ctx context.Context, _ *websocket.Conn, input EmptyInput) error {
	return c.submit(ctx, domain.Heartbeat{EventMeta: c.meta(ctx, input.ClientSeq)})
}
