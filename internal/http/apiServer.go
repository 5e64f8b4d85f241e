// Package http owns the two listeners: the public API with the
// websocket endpoint, and the moderation console bound to a separate,
// normally non-public address.
package http

import (
	"context"
	"log/slog"
	"net/http"
	"sync"

	"neonchat/internal/api"
	"neonchat/internal/mirror"
	"neonchat/internal/rooms"
	"neonchat/internal/rtdb"
	"neonchat/internal/session"
	"neonchat/internal/ws"
)

type APIServer struct {
	server *http.Server
	wg     sync.WaitGroup
}

func NewAPIServer(sessions *session.Manager, store *rtdb.Store, mir *mirror.Store, reg *rooms.Registry, addr string) *APIServer {
	wsServer := ws.NewServer(store, mir, sessions)
	handlers := api.New(sessions, store, reg)

	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/login", handlers.LoginHandler)
	mux.HandleFunc("POST /api/register", handlers.RegisterHandler)
	mux.HandleFunc("POST /api/logoff", handlers.LogoffHandler)
	mux.HandleFunc("GET /api/me", handlers.RequireAuth(handlers.MeHandler))
	mux.HandleFunc("GET /api/users", handlers.RequireAuth(handlers.UsersHandler))
	mux.HandleFunc("POST /api/rooms", handlers.RequireAuth(handlers.CreateRoomHandler))
	mux.HandleFunc("POST /api/rooms/join", handlers.RequireAuth(handlers.JoinRoomHandler))
	mux.HandleFunc("GET /api/settings", handlers.SettingsHandler)

	// WebSocket endpoint
	mux.HandleFunc("/api/chat", wsServer.HandleConnections)

	if addr == "" {
		addr = ":8080"
	}

	return &APIServer{
		server: &http.Server{
			Addr:    addr,
			Handler: mux,
		},
	}
}

func (s *APIServer) Start() error {
	slog.Info("API server started", "addr", s.server.Addr)
	s.wg.Add(1)
	defer s.wg.Done()

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *APIServer) Shutdown(ctx context.Context) error {
	defer s.wg.Wait()
	return s.server.Shutdown(ctx)
}
