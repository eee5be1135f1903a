package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"

	"github.com/sharetube/syncroom/internal/controller"
	archiveRedis "github.com/sharetube/syncroom/internal/repository/archive/redis"
	"github.com/sharetube/syncroom/internal/repository/connection/inmemory"
	"github.com/sharetube/syncroom/internal/service/auth"
	"github.com/sharetube/syncroom/internal/service/moderation"
	"github.com/sharetube/syncroom/internal/service/room"
	"github.com/sharetube/syncroom/pkg/ctxlogger"
	"github.com/sharetube/syncroom/pkg/redisclient"
)

const (
	writeWait      = 10 * time.Second
	maxMessageSize = 8192
	shutdownWait   = 30 * time.Second
)

type AppConfig struct {
	Secret            string        `json:"-"`
	Host              string        `json:"host"`
	Port              int           `json:"port"`
	LogLevel          string        `json:"log_level"`
	MembersLimit      int           `json:"members_limit"`
	HistoryLimit      int           `json:"history_limit"`
	CatchUpLimit      int           `json:"catch_up_limit"`
	OutboxLimit       int           `json:"outbox_limit"`
	ChatMaxLength     int           `json:"chat_max_length"`
	GracePeriod       time.Duration `json:"grace_period"`
	MemberGracePeriod time.Duration `json:"member_grace_period"`
	HeartbeatInterval time.Duration `json:"heartbeat_interval"`
	MissedHeartbeats  int           `json:"missed_heartbeats"`
	RateLimit         float64       `json:"rate_limit"`
	RateBurst         int           `json:"rate_burst"`
	CensoredWords     []string      `json:"censored_words"`
	RedisHost         string        `json:"redis_host"`
	RedisPort         int           `json:"redis_port"`
	RedisPassword     string        `json:"-"`
	ArchiveTTL        time.Duration `json:"archive_ttl"`
}

func (cfg *AppConfig) Validate() error {
	var errs []error
	if cfg.Secret == "" {
		errs = append(errs, errors.New("secret must be set"))
	}
	if cfg.Port < 1 || cfg.Port > 65535 {
		errs = append(errs, fmt.Errorf("port %d is out of range", cfg.Port))
	}
	if cfg.MembersLimit < 1 {
		errs = append(errs, errors.New("members limit must be greater than 0"))
	}
	if cfg.HistoryLimit < 1 {
		errs = append(errs, errors.New("history limit must be greater than 0"))
	}
	if cfg.CatchUpLimit < 0 || cfg.CatchUpLimit > cfg.HistoryLimit {
		errs = append(errs, errors.New("catch up limit must be between 0 and history limit"))
	}
	if cfg.OutboxLimit < 1 {
		errs = append(errs, errors.New("outbox limit must be greater than 0"))
	}
	if cfg.ChatMaxLength < 1 {
		errs = append(errs, errors.New("chat max length must be greater than 0"))
	}
	if cfg.GracePeriod <= 0 || cfg.MemberGracePeriod <= 0 {
		errs = append(errs, errors.New("grace periods must be positive"))
	}
	if cfg.HeartbeatInterval <= 0 || cfg.MissedHeartbeats < 1 {
		errs = append(errs, errors.New("heartbeat interval and missed heartbeats must be positive"))
	}
	if cfg.RateLimit <= 0 || cfg.RateBurst < 1 {
		errs = append(errs, errors.New("rate limit and rate burst must be positive"))
	}
	if cfg.RedisHost != "" && cfg.ArchiveTTL <= 0 {
		errs = append(errs, errors.New("archive ttl must be positive"))
	}

	return errors.Join(errs...)
}

func (cfg *AppConfig) roomConfig() *room.Config {
	roomCfg := room.DefaultConfig()
	roomCfg.MembersLimit = cfg.MembersLimit
	roomCfg.HistoryLimit = cfg.HistoryLimit
	roomCfg.CatchUpLimit = cfg.CatchUpLimit
	roomCfg.OutboxLimit = cfg.OutboxLimit
	roomCfg.ChatMaxLength = cfg.ChatMaxLength
	roomCfg.GracePeriod = cfg.GracePeriod
	roomCfg.MemberGracePeriod = cfg.MemberGracePeriod
	roomCfg.HeartbeatInterval = cfg.HeartbeatInterval
	roomCfg.MissedHeartbeats = cfg.MissedHeartbeats

	return roomCfg
}

func (cfg *AppConfig) controllerConfig() *controller.Config {
	return &controller.Config{
		PingPeriod:     cfg.HeartbeatInterval,
		PongWait:       time.Duration(cfg.MissedHeartbeats) * cfg.HeartbeatInterval,
		WriteWait:      writeWait,
		MaxMessageSize: maxMessageSize,
		RateLimit:      rate.Limit(cfg.RateLimit),
		RateBurst:      cfg.RateBurst,
	}
}

type iRoomService interface {
	Shutdown(context.Context) error
}

type iConnRepo interface {
	CloseAll(code int, text string) int
}

// app holds everything a running server needs to be torn down.
type app struct {
	handler     http.Handler
	roomService iRoomService
	connRepo    iConnRepo
	rc          *redis.Client
	logger      *slog.Logger
}

func newApp(ctx context.Context, cfg *AppConfig, logger *slog.Logger) (*app, error) {
	moderator, err := moderation.NewModerator(cfg.CensoredWords, moderation.DefaultMask, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create moderator: %w", err)
	}

	opts := []room.Option{room.WithCensor(moderator)}

	var rc *redis.Client
	if cfg.RedisHost != "" {
		rc, err = redisclient.NewRedisClient(ctx, &redisclient.Config{
			Host:     cfg.RedisHost,
			Port:     cfg.RedisPort,
			Password: cfg.RedisPassword,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create redis client: %w", err)
		}
		opts = append(opts, room.WithArchive(archiveRedis.NewRepo(rc, cfg.ArchiveTTL, logger)))
	} else {
		logger.WarnContext(ctx, "redis host is empty, archiving disabled")
	}

	roomService := room.NewService(cfg.roomConfig(), logger, opts...)
	connRepo := inmemory.NewRepo(logger)
	authService := auth.NewService(cfg.Secret)
	controller := controller.NewController(roomService, authService, connRepo, cfg.controllerConfig(), logger)

	return &app{
		handler:     controller.GetMux(),
		roomService: roomService,
		connRepo:    connRepo,
		rc:          rc,
		logger:      logger,
	}, nil
}

// shutdown closes every live connection and every room, waiting for pending archives.
func (a *app) shutdown(ctx context.Context) error {
	closed := a.connRepo.CloseAll(websocket.CloseGoingAway, "server shutdown")
	a.logger.InfoContext(ctx, "connections closed", "count", closed)

	err := a.roomService.Shutdown(ctx)
	if a.rc != nil {
		if closeErr := a.rc.Close(); closeErr != nil {
			err = errors.Join(err, fmt.Errorf("failed to close redis client: %w", closeErr))
		}
	}

	return err
}

func newLogger(level string) (*slog.Logger, error) {
	logLevel := slog.LevelInfo
	if err := logLevel.UnmarshalText([]byte(strings.ToUpper(level))); err != nil {
		return nil, fmt.Errorf("failed to parse log level: %w", err)
	}

	h := ctxlogger.ContextHandler{
		Handler: slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level:     logLevel,
			AddSource: true,
		}),
	}

	return slog.New(&h), nil
}

func Run(ctx context.Context, cfg *AppConfig) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}

	server := &http.Server{Addr: fmt.Sprintf("%s:%d", cfg.Host, cfg.Port), Handler: a.handler}

	// graceful shutdown
	serverCtx, serverStopCtx := context.WithCancel(ctx)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	go func() {
		<-sig

		shutdownCtx, c := context.WithTimeout(serverCtx, shutdownWait)
		defer c()

		go func() {
			<-shutdownCtx.Done()
			if shutdownCtx.Err() == context.DeadlineExceeded {
				log.Fatal("graceful shutdown timed out.. forcing exit.")
			}
		}()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.ErrorContext(shutdownCtx, "failed to shutdown server", "error", err)
		}
		if err := a.shutdown(shutdownCtx); err != nil {
			logger.ErrorContext(shutdownCtx, "failed to shutdown app", "error", err)
		}
		serverStopCtx()
	}()

	logger.InfoContext(serverCtx, "starting server", "address", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}

	<-serverCtx.Done()

	return nil
}
