package handler

import (
	"encoding/json"
	"net/http"

	"gorm.io/gorm"

	"memos/internal/auth"
	"memos/internal/user"
)

// UserHandler covers profile, delegation edges and subscriptions.
type UserHandler struct {
	DB    *gorm.DB
	Users *user.Service
}

func (h *UserHandler) current(w http.ResponseWriter, r *http.Request) *user.User {
	username, _ := auth.UsernameFromContext(r.Context())
	u, err := h.Users.Find(r.Context(), username)
	if err != nil {
		http.Error(w, "not found", http.StatusNotFound)
		return nil
	}
	return u
}

func (h *UserHandler) Me(w http.ResponseWriter, r *http.Request) {
	u := h.current(w, r)
	if u == nil {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"username":  u.Username,
		"email":     u.Email,
		"admin":     u.Admin,
		"read_all":  u.ReadAll,
		"page_size": u.PageSize,
	})
}

type updateMeReq struct {
	Email    *string `json:"email"`
	PageSize *int    `json:"page_size"`
}

func (h *UserHandler) UpdateMe(w http.ResponseWriter, r *http.Request) {
	u := h.current(w, r)
	if u == nil {
		return
	}
	var req updateMeReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}
	updates := map[string]any{}
	if req.Email != nil && *req.Email != "" {
		updates["email"] = *req.Email
	}
	if req.PageSize != nil && *req.PageSize > 0 && *req.PageSize <= 200 {
		updates["page_size"] = *req.PageSize
	}
	if len(updates) > 0 {
		if err := h.DB.Model(u).Updates(updates).Error; err != nil {
			http.Error(w, "server error", http.StatusInternalServerError)
			return
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *UserHandler) Delegates(w http.ResponseWriter, r *http.Request) {
	u := h.current(w, r)
	if u == nil {
		return
	}
	delegates, err := h.Users.ListDelegates(r.Context(), u)
	if err != nil {
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}
	delegators, err := h.Users.ListDelegators(r.Context(), u)
	if err != nil {
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}
	names := func(users []*user.User) []string {
		out := make([]string, 0, len(users))
		for _, du := range users {
			out = append(out, du.Username)
		}
		return out
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"delegates":    names(delegates),
		"delegate_for": names(delegators),
	})
}

type rawListReq struct {
	Names string `json:"names"`
}

func (h *UserHandler) SetDelegates(w http.ResponseWriter, r *http.Request) {
	u := h.current(w, r)
	if u == nil {
		return
	}
	var req rawListReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}
	invalid, err := h.Users.SetDelegates(r.Context(), u, req.Names)
	if err != nil {
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"invalid": orEmpty(invalid)})
}

func (h *UserHandler) Subscriptions(w http.ResponseWriter, r *http.Request) {
	u := h.current(w, r)
	if u == nil {
		return
	}
	subs, err := h.Users.Subscriptions(r.Context(), u)
	if err != nil {
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"subscriptions": orEmpty(subs)})
}

func (h *UserHandler) SetSubscriptions(w http.ResponseWriter, r *http.Request) {
	u := h.current(w, r)
	if u == nil {
		return
	}
	var req rawListReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}
	invalid, err := h.Users.SetSubscriptions(r.Context(), u, req.Names)
	if err != nil {
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"invalid": orEmpty(invalid)})
}
