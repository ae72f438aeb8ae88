package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"memos/internal/auth"
	"memos/internal/memo"
	"memos/internal/user"
)

// FileHandler moves attachment blobs in and out of the file store.
type FileHandler struct {
	Svc   *memo.Service
	Users *user.Service
}

// Upload attaches one multipart file field named "file" to a draft.
func (h *FileHandler) Upload(w http.ResponseWriter, r *http.Request) {
	actor, _ := auth.UsernameFromContext(r.Context())
	owner, number, version, ok := memoParams(w, r)
	if !ok {
		return
	}

	if err := r.ParseMultipartForm(32 << 20); err != nil {
		http.Error(w, "bad multipart form", http.StatusBadRequest)
		return
	}
	f, header, err := r.FormFile("file")
	if err != nil {
		http.Error(w, "file field required", http.StatusBadRequest)
		return
	}
	defer f.Close()

	stored, err := h.Svc.StoreFile(r.Context(), owner, number, version, actor, header.Filename, f)
	if err != nil {
		writeSvcError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"uuid":     stored.UUID,
		"filename": stored.Filename,
	})
}

// Download streams a blob, gated by HasAccess for confidential memos.
func (h *FileHandler) Download(w http.ResponseWriter, r *http.Request) {
	owner, number, version, ok := memoParams(w, r)
	if !ok {
		return
	}
	m, err := h.Svc.Find(r.Context(), owner, number, version)
	if err != nil {
		writeSvcError(w, err)
		return
	}

	var u *user.User
	if username, ok := auth.UsernameFromContext(r.Context()); ok {
		u, _ = h.Users.Find(r.Context(), username)
	}
	if !memo.HasAccess(m, u) {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	path, filename, err := h.Svc.ResolveFilePath(r.Context(), m, chi.URLParam(r, "uuid"))
	if err != nil {
		writeSvcError(w, err)
		return
	}
	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
	http.ServeFile(w, r, path)
}

func (h *FileHandler) Remove(w http.ResponseWriter, r *http.Request) {
	actor, _ := auth.UsernameFromContext(r.Context())
	owner, number, version, ok := memoParams(w, r)
	if !ok {
		return
	}
	if err := h.Svc.RemoveFile(r.Context(), owner, number, version, actor, chi.URLParam(r, "uuid")); err != nil {
		writeSvcError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
