package http

import (
	"context"
	"log/slog"
	"net/http"
	"sync"

	"neonchat/internal/admin"
	"neonchat/internal/api"
	"neonchat/internal/session"
)

type AdminServer struct {
	server *http.Server
	wg     sync.WaitGroup
}

func NewAdminServer(sessions *session.Manager, console *admin.Console, addr string) *AdminServer {
	h := api.NewAdminHandler(sessions, console)

	mux := http.NewServeMux()
	mux.HandleFunc("POST /admin/login", h.LoginHandler)
	mux.HandleFunc("GET /admin/stats", h.RequireAdmin(h.StatsHandler))
	mux.HandleFunc("GET /admin/activity", h.RequireAdmin(h.ActivityHandler))
	mux.HandleFunc("GET /admin/users", h.RequireAdmin(h.UsersHandler))
	mux.HandleFunc("POST /admin/users/block", h.RequireAdmin(h.BlockUserHandler))
	mux.HandleFunc("DELETE /admin/users", h.RequireAdmin(h.DeleteUserHandler))
	mux.HandleFunc("GET /admin/tickets", h.RequireAdmin(h.TicketsHandler))
	mux.HandleFunc("POST /admin/tickets/reply", h.RequireAdmin(h.ReplyHandler))
	mux.HandleFunc("POST /admin/tickets/toggle", h.RequireAdmin(h.ToggleTicketHandler))
	mux.HandleFunc("GET /admin/rooms", h.RequireAdmin(h.RoomsHandler))
	mux.HandleFunc("DELETE /admin/rooms", h.RequireAdmin(h.DeleteRoomHandler))
	mux.HandleFunc("GET /admin/settings", h.RequireAdmin(h.SettingsHandler))
	mux.HandleFunc("POST /admin/settings", h.RequireAdmin(h.UpdateSettingsHandler))

	if addr == "" {
		addr = "localhost:8081"
	}

	return &AdminServer{
		server: &http.Server{
			Addr:    addr,
			Handler: mux,
		},
	}
}

func (s *AdminServer) Start() error {
	slog.Info("Admin API started", "addr", s.server.Addr)
	s.wg.Add(1)
	defer s.wg.Done()

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *AdminServer) Shutdown(ctx context.Context) error {
	defer s.wg.Wait()
	return s.server.Shutdown(ctx)
}
