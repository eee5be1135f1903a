package controller

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

func (c controller) GetMux() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(c.requestIdMw)
	r.Use(c.requestLoggingMw)
	r.Use(cors.AllowAll().Handler)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte("OK"))
		})

		r.Group(func(r chi.Router) {
			r.Use(c.authMw)

			r.Route("/rooms", func(r chi.Router) {
				r.Post("/", c.createRoom)
				r.Get("/", c.listUserRooms)
				r.Route("/code/{code}", func(r chi.Router) {
					r.Get("/", c.getRoomByCode)
					r.Post("/join", c.joinRoomByCode)
				})
				r.Route("/{room-id}", func(r chi.Router) {
					r.Get("/", c.getRoom)
					r.Patch("/", c.updateRoom)
					r.Delete("/", c.closeRoom)
					r.Post("/join", c.joinRoom)
					r.Post("/leave", c.leaveRoom)
					r.Get("/members", c.getMembers)
					r.Post("/members/{user-id}/role", c.updateMemberRole)
					r.Get("/messages", c.getMessages)
				})
			})

			r.Route("/ws/rooms", func(r chi.Router) {
				r.Get("/code/{code}", c.connectByCode)
				r.Get("/{room-id}", c.connect)
			})

			r.Route("/admin", func(r chi.Router) {
				r.Use(c.adminOnlyMw)
				r.Get("/rooms", c.listRooms)
				r.Get("/archive/{room-id}/messages", c.getArchivedMessages)
			})
		})
	})

	return r
}
