package wsrouter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/gorilla/websocket"
)

var (
	ErrUnknownMessageType = errors.New("unknown message type")
	ErrInvalidPayload     = errors.New("invalid payload")
)

type HandlerFunc[T any] func(ctx context.Context, conn *websocket.Conn, input T) error

type Middleware func(next HandlerFunc[any]) HandlerFunc[any]

type route func(ctx context.Context, conn *websocket.Conn, raw json.RawMessage) error

// WSRouter dispatches JSON frames by their "type" field. The whole frame is decoded into the
// input type of the matched handler.
type WSRouter struct {
	routes      map[string]route
	middlewares []Middleware
}

func New() *WSRouter {
	return &WSRouter{routes: make(map[string]route)}
}

func (r *WSRouter) Use(middlewares ...Middleware) {
	r.middlewares = append(r.middlewares, middlewares...)
}

func Handle[T any](r *WSRouter, messageType string, handler HandlerFunc[T]) {
	r.routes[messageType] = func(ctx context.Context, conn *websocket.Conn, raw json.RawMessage) error {
		var input T
		if err := json.Unmarshal(raw, &input); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidPayload, err)
		}

		return handler(ctx, conn, input)
	}
}

func (r *WSRouter) ServeMessage(ctx context.Context, conn *websocket.Conn, data []byte) error {
	var msg struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &msg); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidPayload, err)
	}

	next, ok := r.routes[msg.Type]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownMessageType, msg.Type)
	}

	ctx = context.WithValue(ctx, messageTypeKey, msg.Type)

	h := HandlerFunc[any](func(ctx context.Context, conn *websocket.Conn, payload any) error {
		return next(ctx, conn, payload.(json.RawMessage))
	})
	for i := len(r.middlewares) - 1; i >= 0; i-- {
		h = r.middlewares[i](h)
	}

	return h(ctx, conn, json.RawMessage(data))
}
