package controller

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/sharetube/syncroom/pkg/ctxlogger"
	"github.com/sharetube/syncroom/pkg/rest"
)

func (c controller) requestIdMw(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		ctx = ctxlogger.AppendCtx(ctx, slog.String("request_id", c.generateTimeBasedId()))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (c controller) requestLoggingMw(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()

		next.ServeHTTP(ww, r)

		c.logger.InfoContext(r.Context(), "request",
			"method", r.Method,
			"path", r.URL.Path,
			"remote_addr", r.RemoteAddr,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})
}

func (c controller) authMw(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := c.bearerToken(r)
		if token == "" {
			rest.WriteJSON(w, http.StatusUnauthorized, rest.Envelope{"error": "missing bearer token"})
			return
		}

		identity, err := c.authService.ParseJWT(token)
		if err != nil {
			c.logger.InfoContext(r.Context(), "failed to parse jwt", "error", err)
			rest.WriteJSON(w, http.StatusUnauthorized, rest.Envelope{"error": "invalid bearer token"})
			return
		}

		ctx := context.WithValue(r.Context(), identityCtxKey, identity)
		ctx = ctxlogger.AppendCtx(ctx, slog.String("member_id", identity.UserID))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (c controller) adminOnlyMw(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !c.getIdentityFromCtx(r.Context()).IsAdmin {
			rest.WriteJSON(w, http.StatusForbidden, rest.Envelope{"error": "admin role required"})
			return
		}

		next.ServeHTTP(w, r)
	})
}
