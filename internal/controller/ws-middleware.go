package controller

import (
	"context"
	"log/slog"
	"time"

	"github.com/gorilla/websocket"

	"github.com/sharetube/syncroom/pkg/ctxlogger"
	"github.com/sharetube/syncroom/pkg/wsrouter"
)

// wsFrameCtxMw tags every frame with an id and the member that sent it.
func (c controller) wsFrameCtxMw() wsrouter.Middleware {
	return func(next wsrouter.HandlerFunc[any]) wsrouter.HandlerFunc[any] {
		return func(ctx context.Context, conn *websocket.Conn, payload any) error {
			ctx = ctxlogger.AppendCtx(ctx, slog.String("ws_frame_id", c.generateTimeBasedId()))
			ctx = ctxlogger.AppendCtx(ctx, slog.String("frame_type", wsrouter.GetMessageTypeFromCtx(ctx)))
			if client := c.getClientFromCtx(ctx); client != nil {
				ctx = ctxlogger.AppendCtx(ctx, slog.String("member_id", client.memberID))
				if client.observer {
					ctx = ctxlogger.AppendCtx(ctx, slog.Bool("observer", true))
				}
			}

			return next(ctx, conn, payload)
		}
	}
}

func (c controller) loggerWSMw() wsrouter.Middleware {
	return func(next wsrouter.HandlerFunc[any]) wsrouter.HandlerFunc[any] {
		return func(ctx context.Context, conn *websocket.Conn, payload any) error {
			start := time.Now()

			err := next(ctx, conn, payload)

			args := []any{"processing_time_us", time.Since(start).Microseconds()}
			if client := c.getClientFromCtx(ctx); client != nil {
				args = append(args, "queued_frames", client.outbox.Len())
			}
			if err != nil {
				args = append(args, "error", err)
			}
			c.logger.DebugContext(ctx, "websocket frame handled", args...)

			return err
		}
	}
}
