package controller

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/sharetube/syncroom/internal/domain"
	"github.com/sharetube/syncroom/internal/service/room"
	"github.com/sharetube/syncroom/pkg/rest"
)

type createRoomInput struct {
	Name     string  `json:"name" validate:"max=64"`
	MediaURL string  `json:"media_url" validate:"required,http_url"`
	Duration float64 `json:"duration" validate:"gte=0"`
	Mode     string  `json:"mode" validate:"omitempty,oneof=host_only collaborative"`
}

func (c controller) createRoom(w http.ResponseWriter, r *http.Request) {
	var input createRoomInput
	if err := rest.ReadJSON(w, r, &input); err != nil {
		c.logger.InfoContext(r.Context(), "failed to read json", "error", err)
		rest.WriteJSON(w, http.StatusUnprocessableEntity, rest.Envelope{"error": err.Error()})
		return
	}

	if validationErrors, ok := c.validate.Validate(input); !ok {
		c.logger.InfoContext(r.Context(), "failed to validate input", "errors", validationErrors)
		c.writeValidationErrors(w, validationErrors)
		return
	}

	resp, err := c.roomService.CreateRoom(r.Context(), &room.CreateRoomParams{
		Host:     c.getIdentityFromCtx(r.Context()),
		Name:     input.Name,
		MediaURL: input.MediaURL,
		Duration: input.Duration,
		Mode:     input.Mode,
	})
	if err != nil {
		c.logger.InfoContext(r.Context(), "failed to create room", "error", err)
		c.writeError(w, r, err)
		return
	}

	rest.WriteJSON(w, http.StatusCreated, rest.Envelope{"data": resp.Room})
}

func (c controller) getRoom(w http.ResponseWriter, r *http.Request) {
	c.writeRoom(w, r, chi.URLParam(r, "room-id"))
}

func (c controller) getRoomByCode(w http.ResponseWriter, r *http.Request) {
	c.writeRoom(w, r, chi.URLParam(r, "code"))
}

func (c controller) writeRoom(w http.ResponseWriter, r *http.Request, ref string) {
	info, err := c.roomService.GetRoom(r.Context(), ref)
	if err != nil {
		c.writeError(w, r, err)
		return
	}

	rest.WriteJSON(w, http.StatusOK, rest.Envelope{"data": info})
}

type joinRoomResponse struct {
	Room   domain.RoomInfo `json:"room"`
	Member domain.Member   `json:"member"`
}

func (c controller) joinRoom(w http.ResponseWriter, r *http.Request) {
	c.join(w, r, chi.URLParam(r, "room-id"))
}

func (c controller) joinRoomByCode(w http.ResponseWriter, r *http.Request) {
	c.join(w, r, chi.URLParam(r, "code"))
}

func (c controller) join(w http.ResponseWriter, r *http.Request, ref string) {
	resp, err := c.roomService.JoinRoom(r.Context(), &room.JoinRoomParams{
		Identity: c.getIdentityFromCtx(r.Context()),
		RoomRef:  ref,
	})
	if err != nil {
		c.logger.InfoContext(r.Context(), "failed to join room", "error", err)
		c.writeError(w, r, err)
		return
	}

	rest.WriteJSON(w, http.StatusOK, rest.Envelope{"data": joinRoomResponse{
		Room:   resp.Room,
		Member: resp.Member,
	}})
}

func (c controller) leaveRoom(w http.ResponseWriter, r *http.Request) {
	if err := c.roomService.LeaveRoom(r.Context(), &room.LeaveRoomParams{
		Identity: c.getIdentityFromCtx(r.Context()),
		RoomID:   chi.URLParam(r, "room-id"),
	}); err != nil {
		c.writeError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (c controller) getMembers(w http.ResponseWriter, r *http.Request) {
	members, err := c.roomService.GetMembers(r.Context(), &room.GetMembersParams{
		Actor:  c.getIdentityFromCtx(r.Context()),
		RoomID: chi.URLParam(r, "room-id"),
	})
	if err != nil {
		c.writeError(w, r, err)
		return
	}

	rest.WriteJSON(w, http.StatusOK, rest.Envelope{"data": members})
}

func (c controller) getMessages(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			rest.WriteJSON(w, http.StatusBadRequest, rest.Envelope{"error": fmt.Sprintf("invalid limit %q", raw)})
			return
		}
		limit = n
	}

	messages, err := c.roomService.GetMessages(r.Context(), &room.GetMessagesParams{
		Actor:  c.getIdentityFromCtx(r.Context()),
		RoomID: chi.URLParam(r, "room-id"),
		Limit:  limit,
	})
	if err != nil {
		c.writeError(w, r, err)
		return
	}

	rest.WriteJSON(w, http.StatusOK, rest.Envelope{"data": messages})
}

type updateMemberRoleInput struct {
	Role string `json:"role" validate:"required,oneof=host viewer"`
}

func (c controller) updateMemberRole(w http.ResponseWriter, r *http.Request) {
	var input updateMemberRoleInput
	if err := rest.ReadJSON(w, r, &input); err != nil {
		rest.WriteJSON(w, http.StatusUnprocessableEntity, rest.Envelope{"error": err.Error()})
		return
	}

	if validationErrors, ok := c.validate.Validate(input); !ok {
		c.writeValidationErrors(w, validationErrors)
		return
	}

	member, err := c.roomService.UpdateMemberRole(r.Context(), &room.UpdateMemberRoleParams{
		Actor:    c.getIdentityFromCtx(r.Context()),
		RoomID:   chi.URLParam(r, "room-id"),
		MemberID: chi.URLParam(r, "user-id"),
		Role:     input.Role,
	})
	if err != nil {
		c.writeError(w, r, err)
		return
	}

	rest.WriteJSON(w, http.StatusOK, rest.Envelope{"data": member})
}

type updateRoomInput struct {
	Name     *string  `json:"name" validate:"omitempty,max=64"`
	MediaURL *string  `json:"media_url" validate:"omitempty,http_url"`
	Duration *float64 `json:"duration" validate:"omitempty,gte=0"`
	Mode     *string  `json:"mode" validate:"omitempty,oneof=host_only collaborative"`
}

func (c controller) updateRoom(w http.ResponseWriter, r *http.Request) {
	var input updateRoomInput
	if err := rest.ReadJSON(w, r, &input); err != nil {
		rest.WriteJSON(w, http.StatusUnprocessableEntity, rest.Envelope{"error": err.Error()})
		return
	}

	if validationErrors, ok := c.validate.Validate(input); !ok {
		c.writeValidationErrors(w, validationErrors)
		return
	}

	info, err := c.roomService.UpdateRoom(r.Context(), &room.UpdateRoomParams{
		Actor:    c.getIdentityFromCtx(r.Context()),
		RoomID:   chi.URLParam(r, "room-id"),
		Name:     input.Name,
		MediaURL: input.MediaURL,
		Duration: input.Duration,
		Mode:     input.Mode,
	})
	if err != nil {
		c.logger.InfoContext(r.Context(), "failed to update room", "error", err)
		c.writeError(w, r, err)
		return
	}

	rest.WriteJSON(w, http.StatusOK, rest.Envelope{"data": info})
}

func (c controller) closeRoom(w http.ResponseWriter, r *http.Request) {
	if err := c.roomService.CloseRoom(r.Context(), &room.CloseRoomParams{
		Actor:  c.getIdentityFromCtx(r.Context()),
		RoomID: chi.URLParam(r, "room-id"),
	}); err != nil {
		c.logger.InfoContext(r.Context(), "failed to close room", "error", err)
		c.writeError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (c controller) listRooms(w http.ResponseWriter, r *http.Request) {
	rooms, err := c.roomService.ListRooms(r.Context())
	if err != nil {
		c.writeError(w, r, err)
		return
	}

	rest.WriteJSON(w, http.StatusOK, rest.Envelope{"data": rooms})
}

func (c controller) listUserRooms(w http.ResponseWriter, r *http.Request) {
	rooms, err := c.roomService.ListUserRooms(r.Context(), c.getIdentityFromCtx(r.Context()).UserID)
	if err != nil {
		c.writeError(w, r, err)
		return
	}

	rest.WriteJSON(w, http.StatusOK, rest.Envelope{"data": rooms})
}

func (c controller) getArchivedMessages(w http.ResponseWriter, r *http.Request) {
	messages, err := c.roomService.GetArchivedMessages(r.Context(), chi.URLParam(r, "room-id"))
	if err != nil {
		c.writeError(w, r, err)
		return
	}

	rest.WriteJSON(w, http.StatusOK, rest.Envelope{"data": messages})
}
