package controller

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/sharetube/syncroom/internal/domain"
	"github.com/sharetube/syncroom/internal/service/room"
	"github.com/sharetube/syncroom/pkg/validator"
	"github.com/sharetube/syncroom/pkg/wsrouter"
)

type iRoomService interface {
	CreateRoom(context.Context, *room.CreateRoomParams) (room.CreateRoomResponse, error)
	GetRoom(context.Context, string) (domain.RoomInfo, error)
	JoinRoom(context.Context, *room.JoinRoomParams) (room.JoinRoomResponse, error)
	ConnectMember(context.Context, *room.ConnectMemberParams) (room.ConnectMemberResponse, error)
	DisconnectMember(context.Context, *room.DisconnectMemberParams) error
	LeaveRoom(context.Context, *room.LeaveRoomParams) error
	GetMembers(context.Context, *room.GetMembersParams) ([]domain.Member, error)
	GetMessages(context.Context, *room.GetMessagesParams) ([]domain.LogEntry, error)
	UpdateMemberRole(context.Context, *room.UpdateMemberRoleParams) (domain.Member, error)
	UpdateRoom(context.Context, *room.UpdateRoomParams) (domain.RoomInfo, error)
	CloseRoom(context.Context, *room.CloseRoomParams) error
	ListRooms(context.Context) ([]domain.RoomInfo, error)
	ListUserRooms(context.Context, string) ([]domain.RoomInfo, error)
	GetArchivedMessages(context.Context, string) ([]domain.LogEntry, error)
}

type iAuthService interface {
	ParseJWT(token string) (domain.Identity, error)
}

type iConnRepo interface {
	Add(*websocket.Conn, string) error
	RemoveByConn(*websocket.Conn) error
}

type Config struct {
	PingPeriod     time.Duration
	PongWait       time.Duration
	WriteWait      time.Duration
	MaxMessageSize int64
	RateLimit      rate.Limit
	RateBurst      int
}

type controller struct {
	roomService iRoomService
	authService iAuthService
	connRepo    iConnRepo
	upgrader    websocket.Upgrader
	validate    *validator.Validator
	wsRouter    *wsrouter.WSRouter
	cfg         *Config
	logger      *slog.Logger
}

func NewController(roomService iRoomService, authService iAuthService, connRepo iConnRepo, cfg *Config, logger *slog.Logger) *controller {
	c := &controller{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		roomService: roomService,
		authService: authService,
		connRepo:    connRepo,
		validate:    validator.NewValidator(),
		cfg:         cfg,
		logger:      logger,
	}
	c.wsRouter = c.getWSRouter()

	return c
}
