package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"neonchat/internal/admin"
	"neonchat/internal/models"
	"neonchat/internal/session"
)

type AdminHandler struct {
	sessions *session.Manager
	console  *admin.Console
	log      *slog.Logger
}

func NewAdminHandler(sessions *session.Manager, console *admin.Console) *AdminHandler {
	return &AdminHandler{
		sessions: sessions,
		console:  console,
		log:      slog.Default(),
	}
}

func (h *AdminHandler) LoginHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	sess, err := h.sessions.AdminSignIn(req.Username, req.Password)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, sessionResponse{
		APIResponse: models.APIResponse{Success: true},
		Token:       sess.Token,
		User:        sess.User,
	})
}

// RequireAdmin rejects anything but a live admin session.
func (h *AdminHandler) RequireAdmin(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := r.Header.Get("token")
		if token == "" {
			if c, err := r.Cookie("token"); err == nil {
				token = c.Value
			}
		}
		sess, err := h.sessions.Get(token)
		if err != nil || !sess.Admin {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}

func (h *AdminHandler) StatsHandler(w http.ResponseWriter, r *http.Request) {
	stats, err := h.console.Stats()
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, stats)
}

func (h *AdminHandler) ActivityHandler(w http.ResponseWriter, r *http.Request) {
	feed, err := h.console.RecentActivity()
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, feed)
}

func (h *AdminHandler) UsersHandler(w http.ResponseWriter, r *http.Request) {
	users, err := h.console.ListUsers()
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, users)
}

func (h *AdminHandler) BlockUserHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UID     string `json:"uid"`
		Blocked bool   `json:"blocked"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.UID == "" {
		http.Error(w, "User ID is required", http.StatusBadRequest)
		return
	}

	if err := h.console.SetBlocked(req.UID, req.Blocked); err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, models.APIResponse{Success: true})
}

func (h *AdminHandler) DeleteUserHandler(w http.ResponseWriter, r *http.Request) {
	uid := r.URL.Query().Get("id")
	if uid == "" {
		http.Error(w, "User ID is required", http.StatusBadRequest)
		return
	}

	if err := h.console.DeleteUser(uid); err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, models.APIResponse{Success: true, Message: "User " + uid + " deleted"})
}

func (h *AdminHandler) TicketsHandler(w http.ResponseWriter, r *http.Request) {
	tickets, err := h.console.ListTickets()
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, tickets)
}

func (h *AdminHandler) ReplyHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UID  string `json:"uid"`
		Text string `json:"text"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if err := h.console.Reply(req.UID, req.Text); err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, models.APIResponse{Success: true})
}

func (h *AdminHandler) ToggleTicketHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UID string `json:"uid"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	status, err := h.console.ToggleTicket(req.UID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, models.APIResponse{Success: true, Message: string(status)})
}

func (h *AdminHandler) RoomsHandler(w http.ResponseWriter, r *http.Request) {
	list, err := h.console.ListRooms()
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, list)
}

func (h *AdminHandler) DeleteRoomHandler(w http.ResponseWriter, r *http.Request) {
	code := r.URL.Query().Get("code")
	if code == "" {
		http.Error(w, "Room code is required", http.StatusBadRequest)
		return
	}

	if err := h.console.DeleteRoom(code); err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, models.APIResponse{Success: true, Message: "Room " + code + " deleted"})
}

func (h *AdminHandler) SettingsHandler(w http.ResponseWriter, r *http.Request) {
	settings, err := h.console.Settings()
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, settings)
}

// UpdateSettingsHandler applies only the fields present in the body, so
// the console can flip one switch without re-sending the rest.
func (h *AdminHandler) UpdateSettingsHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Maintenance        *bool `json:"maintenance"`
		AllowRegistrations *bool `json:"allowRegistrations"`
		AutoDeleteDays     *int  `json:"autoDeleteDays"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if req.Maintenance != nil {
		if err := h.console.SetMaintenance(*req.Maintenance); err != nil {
			h.writeError(w, err)
			return
		}
	}
	if req.AllowRegistrations != nil {
		if err := h.console.SetAllowRegistrations(*req.AllowRegistrations); err != nil {
			h.writeError(w, err)
			return
		}
	}
	if req.AutoDeleteDays != nil {
		if err := h.console.SetAutoDeleteDays(*req.AutoDeleteDays); err != nil {
			h.writeError(w, err)
			return
		}
	}

	settings, err := h.console.Settings()
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, settings)
}

func (h *AdminHandler) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.log.Warn("failed to encode response", "error", err)
	}
}

func (h *AdminHandler) writeError(w http.ResponseWriter, err error) {
	writeError(w, h.log, err)
}
