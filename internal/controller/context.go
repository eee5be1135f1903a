package controller

import (
	"context"

	"github.com/sharetube/syncroom/internal/domain"
)

type contextKey int

const (
	identityCtxKey contextKey = iota
	clientCtxKey
)

func (c controller) getIdentityFromCtx(ctx context.Context) domain.Identity {
	identity, ok := ctx.Value(identityCtxKey).(domain.Identity)
	if !ok {
		return domain.Identity{}
	}

	return identity
}

func (c controller) getClientFromCtx(ctx context.Context) *wsClient {
	client, ok := ctx.Value(clientCtxKey).(*wsClient)
	if !ok {
		return nil
	}

	return client
}
