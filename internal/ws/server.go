package ws

import (
	"log/slog"
	"net/http"

	"neonchat/internal/conversation"
	"neonchat/internal/directory"
	"neonchat/internal/mirror"
	"neonchat/internal/rtdb"
	"neonchat/internal/session"

	"github.com/gorilla/websocket"
)

type Server struct {
	store    *rtdb.Store
	mirror   *mirror.Store
	sessions *session.Manager
	upgrader *websocket.Upgrader
	log      *slog.Logger
}

func NewServer(store *rtdb.Store, mir *mirror.Store, sessions *session.Manager) *Server {
	return &Server{
		store:    store,
		mirror:   mir,
		sessions: sessions,
		upgrader: &websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // Allow all origins for now
			},
		},
		log: slog.Default(),
	}
}

func (s *Server) HandleConnections(w http.ResponseWriter, r *http.Request) {
	token := r.Header.Get("token")
	if token == "" {
		token = r.URL.Query().Get("token")
	}
	sess, err := s.sessions.Get(token)
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("websocket upgrade failed", "error", err)
		return
	}

	sidebar, err := directory.Open(s.store, sess)
	if err != nil {
		s.log.Warn("directory open failed", "uid", sess.User.UID, "error", err)
		_ = conn.Close()
		return
	}

	channel := conversation.NewChannel(s.store, s.mirror, sess)

	if err := NewConnection(conn, channel, sidebar).Handle(r.Context()); err != nil {
		s.log.Warn("websocket session ended with error", "uid", sess.User.UID, "error", err)
	}
}
