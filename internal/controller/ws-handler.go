package controller

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/sharetube/syncroom/internal/domain"
	"github.com/sharetube/syncroom/internal/service/broadcast"
	"github.com/sharetube/syncroom/internal/service/room"
	"github.com/sharetube/syncroom/pkg/ctxlogger"
)

const (
	closeRoomClosed = 4000
	closeEvicted    = 4001
)

// wsClient is the per-connection state shared by the read and write loops.
type wsClient struct {
	session  *room.Session
	key      string
	memberID string
	observer bool
	outbox   *broadcast.Outbox
	limiter  *rate.Limiter
}

func (c controller) connect(w http.ResponseWriter, r *http.Request) {
	c.serveRoomWS(w, r, chi.URLParam(r, "room-id"))
}

func (c controller) connectByCode(w http.ResponseWriter, r *http.Request) {
	c.serveRoomWS(w, r, chi.URLParam(r, "code"))
}

func (c controller) serveRoomWS(w http.ResponseWriter, r *http.Request, ref string) {
	identity := c.getIdentityFromCtx(r.Context())

	connectResp, err := c.roomService.ConnectMember(r.Context(), &room.ConnectMemberParams{
		Identity: identity,
		RoomRef:  ref,
		Stealth:  r.URL.Query().Get("stealth") == "true",
	})
	if err != nil {
		c.logger.InfoContext(r.Context(), "failed to connect member", "error", err)
		c.writeError(w, r, err)
		return
	}

	client := &wsClient{
		session:  connectResp.Session,
		key:      connectResp.Key,
		memberID: identity.UserID,
		observer: connectResp.Observer,
		outbox:   connectResp.Outbox,
		limiter:  rate.NewLimiter(c.cfg.RateLimit, c.cfg.RateBurst),
	}

	ctx := context.WithValue(r.Context(), clientCtxKey, client)
	ctx = ctxlogger.AppendCtx(ctx, slog.String("room_id", client.session.ID()))
	defer c.disconnect(ctx, client)

	conn, err := c.upgrader.Upgrade(w, r, nil)
	if err != nil {
		c.logger.WarnContext(ctx, "failed to upgrade to websocket", "error", err)
		return
	}
	defer conn.Close()

	if err := c.connRepo.Add(conn, client.key); err != nil {
		c.logger.WarnContext(ctx, "failed to add conn", "error", err)
		return
	}
	defer func() {
		if err := c.connRepo.RemoveByConn(conn); err != nil {
			c.logger.DebugContext(ctx, "failed to remove conn", "error", err)
		}
	}()

	c.logger.InfoContext(ctx, "member connected", "observer", connectResp.Observer)

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		c.writeLoop(ctx, conn, client)
	}()

	c.readLoop(ctx, conn, client)

	client.outbox.Close(broadcast.ReasonDisconnected)
	<-writerDone
}

// disconnect runs after the request context may already be done, so it uses its own deadline.
func (c controller) disconnect(ctx context.Context, client *wsClient) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.cfg.WriteWait)
	defer cancel()

	if err := c.roomService.DisconnectMember(ctx, &room.DisconnectMemberParams{
		Session: client.session,
		Key:     client.key,
		Outbox:  client.outbox,
	}); err != nil {
		c.logger.WarnContext(ctx, "failed to disconnect member", "error", err)
		return
	}

	c.logger.InfoContext(ctx, "member disconnected", "reason", client.outbox.Reason().String())
}

func (c controller) readLoop(ctx context.Context, conn *websocket.Conn, client *wsClient) {
	conn.SetReadLimit(c.cfg.MaxMessageSize)
	conn.SetReadDeadline(time.Now().Add(c.cfg.PongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(c.cfg.PongWait))
		if err := client.session.Heartbeat(ctx, client.key); err != nil {
			c.logger.DebugContext(ctx, "failed to refresh heartbeat", "error", err)
		}
		return nil
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.logger.InfoContext(ctx, "failed to read message", "error", err)
			}
			return
		}
		conn.SetReadDeadline(time.Now().Add(c.cfg.PongWait))

		if !client.limiter.Allow() {
			c.logger.DebugContext(ctx, "rate limited")
			client.outbox.Push(domain.ErrorMessage{
				Type:    "error",
				Code:    "rate_limited",
				Message: "too many messages",
			})
			continue
		}

		if err := c.wsRouter.ServeMessage(ctx, conn, data); err != nil {
			c.handleWSError(ctx, client, err)
		}
	}
}

// handleWSError reports a failed event to its sender only. Stale events are dropped silently.
func (c controller) handleWSError(ctx context.Context, client *wsClient, err error) {
	if errors.Is(err, domain.ErrStale) {
		return
	}

	code := c.errorCode(err)
	message := err.Error()
	if code == "internal" {
		c.logger.ErrorContext(ctx, "failed to handle message", "error", err)
		message = "internal error"
	} else {
		c.logger.DebugContext(ctx, "message rejected", "error", err)
	}

	client.outbox.Push(domain.ErrorMessage{
		Type:    "error",
		Code:    code,
		Message: message,
	})
}

func (c controller) writeLoop(ctx context.Context, conn *websocket.Conn, client *wsClient) {
	ticker := time.NewTicker(c.cfg.PingPeriod)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	for {
		select {
		case <-client.outbox.Notify():
			if err := c.writeFrames(conn, client.outbox.Drain()); err != nil {
				c.logger.InfoContext(ctx, "failed to write message", "error", err)
				client.outbox.Close(broadcast.ReasonDisconnected)
				return
			}
		case <-client.outbox.Done():
			if err := c.writeFrames(conn, client.outbox.Drain()); err != nil {
				c.logger.DebugContext(ctx, "failed to flush outbox", "error", err)
				return
			}
			code, text := c.closeCode(client.outbox.Reason())
			conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, text), time.Now().Add(c.cfg.WriteWait))
			return
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.logger.InfoContext(ctx, "failed to write ping", "error", err)
				client.outbox.Close(broadcast.ReasonDisconnected)
				return
			}
		}
	}
}

func (c controller) writeFrames(conn *websocket.Conn, frames []broadcast.Frame) error {
	for _, frame := range frames {
		conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait))
		if err := conn.WriteJSON(frame.Payload); err != nil {
			return err
		}
	}

	return nil
}

func (c controller) closeCode(reason broadcast.CloseReason) (int, string) {
	switch reason {
	case broadcast.ReasonRoomClosed:
		return closeRoomClosed, reason.String()
	case broadcast.ReasonEvicted, broadcast.ReasonReplaced:
		return closeEvicted, reason.String()
	default:
		return websocket.CloseNormalClosure, reason.String()
	}
}
