// Package api holds the JSON handlers for the public endpoints and the
// moderation console.
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"neonchat/internal/directory"
	"neonchat/internal/models"
	"neonchat/internal/rooms"
	"neonchat/internal/rtdb"
	"neonchat/internal/session"
)

type API struct {
	sessions *session.Manager
	store    *rtdb.Store
	rooms    *rooms.Registry
	log      *slog.Logger
}

func New(sessions *session.Manager, store *rtdb.Store, reg *rooms.Registry) *API {
	return &API{
		sessions: sessions,
		store:    store,
		rooms:    reg,
		log:      slog.Default(),
	}
}

type sessionResponse struct {
	models.APIResponse
	Token string      `json:"token,omitempty"`
	User  models.User `json:"user,omitempty"`
}

func (a *API) LoginHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	sess, err := a.sessions.SignIn(req.Email, req.Password)
	if err != nil {
		a.writeError(w, err)
		return
	}

	a.writeSession(w, sess)
}

func (a *API) RegisterHandler(w http.ResponseWriter, r *http.Request) {
	var req session.RegistrationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	sess, err := a.sessions.Register(req)
	if err != nil {
		a.writeError(w, err)
		return
	}

	a.writeSession(w, sess)
}

func (a *API) LogoffHandler(w http.ResponseWriter, r *http.Request) {
	if token := a.getToken(r); token != "" {
		a.sessions.SignOut(token)
	}

	http.SetCookie(w, &http.Cookie{
		Name:     "token",
		Value:    "",
		HttpOnly: true,
		Path:     "/",
		MaxAge:   -1,
	})

	w.WriteHeader(http.StatusOK)
}

func (a *API) MeHandler(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	a.writeJSON(w, sess.User)
}

// UsersHandler serves the one-shot contact list. The live sidebar goes
// over the websocket; this endpoint backs the initial page render.
func (a *API) UsersHandler(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	users, err := directory.ListVisible(a.store, sess.User.UID)
	if err != nil {
		a.writeError(w, err)
		return
	}
	a.writeJSON(w, users)
}

func (a *API) CreateRoomHandler(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	room, err := a.rooms.Create(sess)
	if err != nil {
		a.writeError(w, err)
		return
	}
	a.writeJSON(w, room)
}

type joinRoomResponse struct {
	models.APIResponse
	Room models.Room `json:"room"`
}

func (a *API) JoinRoomHandler(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	var req struct {
		Code string `json:"code"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	res, err := a.rooms.Join(sess, req.Code)
	if err != nil {
		a.writeError(w, err)
		return
	}

	resp := joinRoomResponse{
		APIResponse: models.APIResponse{Success: true},
		Room:        res.Room,
	}
	if res.AlreadyMember {
		resp.Message = "You are already a member of this chat"
	}
	a.writeJSON(w, resp)
}

// SettingsHandler exposes the switches the login and registration pages
// need before any session exists.
func (a *API) SettingsHandler(w http.ResponseWriter, r *http.Request) {
	var resp struct {
		Maintenance        bool `json:"maintenance"`
		AllowRegistrations bool `json:"allowRegistrations"`
	}
	defaults := models.DefaultSettings()
	resp.Maintenance = a.readBoolSetting("settings/maintenance", defaults.Maintenance)
	resp.AllowRegistrations = a.readBoolSetting("settings/allowRegistrations", defaults.AllowRegistrations)
	a.writeJSON(w, resp)
}

// RequireAuth resolves the token before the wrapped handler runs.
func (a *API) RequireAuth(next func(http.ResponseWriter, *http.Request, *session.Session)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, err := a.sessions.Get(a.getToken(r))
		if err != nil {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next(w, r, sess)
	}
}

func (a *API) getToken(r *http.Request) string {
	token := r.Header.Get("token")
	if token == "" {
		if c, err := r.Cookie("token"); err == nil {
			token = c.Value
		}
	}
	return token
}

func (a *API) writeSession(w http.ResponseWriter, sess *session.Session) {
	http.SetCookie(w, &http.Cookie{
		Name:     "token",
		Value:    sess.Token,
		HttpOnly: true,
		Path:     "/",
		Expires:  time.Now().Add(session.DefaultTokenExpiry),
	})

	a.writeJSON(w, sessionResponse{
		APIResponse: models.APIResponse{Success: true},
		Token:       sess.Token,
		User:        sess.User,
	})
}

func (a *API) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		a.log.Warn("failed to encode response", "error", err)
	}
}

func (a *API) writeError(w http.ResponseWriter, err error) {
	writeError(w, a.log, err)
}

func (a *API) readBoolSetting(path string, fallback bool) bool {
	var v bool
	err := a.store.Get(path, &v)
	if errors.Is(err, models.ErrNotFound) {
		return fallback
	}
	if err != nil {
		a.log.Warn("failed to read setting", "path", path, "error", err)
		return fallback
	}
	return v
}

// writeError maps the error taxonomy onto status codes and a uniform
// response body.
func writeError(w http.ResponseWriter, log *slog.Logger, err error) {
	status := http.StatusInternalServerError

	var (
		verr *models.ValidationError
		aerr *models.AuthError
		cerr *models.CapacityError
	)
	switch {
	case errors.As(err, &verr):
		status = http.StatusBadRequest
	case errors.As(err, &aerr):
		status = http.StatusUnauthorized
	case errors.Is(err, models.ErrNotFound):
		status = http.StatusNotFound
	case errors.As(err, &cerr):
		status = http.StatusConflict
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	resp := models.APIResponse{Success: false, Message: err.Error()}
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		log.Warn("failed to encode error response", "error", err)
	}
}
