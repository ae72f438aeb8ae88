package handler

import (
	"net/http"
	"strconv"
	"time"

	"memos/internal/auth"
	"memos/internal/memo"
	"memos/internal/user"
)

// MemoReadHandler serves the read-only listing layer.
type MemoReadHandler struct {
	Svc   *memo.Service
	Users *user.Service
}

type pageDTO struct {
	Memos    []memoDTO `json:"memos"`
	Total    int64     `json:"total"`
	Page     int       `json:"page"`
	PageSize int       `json:"page_size"`
}

func toPageDTO(p *memo.Page) pageDTO {
	out := pageDTO{Total: p.Total, Page: p.Page, PageSize: p.PageSize, Memos: make([]memoDTO, 0, len(p.Memos))}
	for i := range p.Memos {
		out.Memos = append(out.Memos, toDTO(&p.Memos[i]))
	}
	return out
}

// pageParams reads ?page= and the user's page-size preference.
func (h *MemoReadHandler) pageParams(r *http.Request) (int, int) {
	page := 1
	if v := r.URL.Query().Get("page"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			page = n
		}
	}
	pageSize := memo.DefaultPageSize
	if username, ok := auth.UsernameFromContext(r.Context()); ok {
		if u, err := h.Users.Find(r.Context(), username); err == nil && u.PageSize > 0 {
			pageSize = u.PageSize
		}
	}
	return page, pageSize
}

// List filters by owner/number/version query params, most specific
// first; with none it returns every Active memo.
func (h *MemoReadHandler) List(w http.ResponseWriter, r *http.Request) {
	page, pageSize := h.pageParams(r)

	owner := r.URL.Query().Get("owner")
	var number *int
	if v := r.URL.Query().Get("number"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			http.Error(w, "invalid number", http.StatusBadRequest)
			return
		}
		number = &n
	}
	var version *string
	if v := r.URL.Query().Get("version"); v != "" {
		version = &v
	}

	p, err := h.Svc.ListByOwner(r.Context(), owner, number, version, page, pageSize)
	if err != nil {
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, toPageDTO(p))
}

// Detail returns one memo with its ledger, references and files.
// Confidential memos are gated by HasAccess.
func (h *MemoReadHandler) Detail(w http.ResponseWriter, r *http.Request) {
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

	sigs, err := h.Svc.Signers(r.Context(), m)
	if err != nil {
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}
	refs, err := h.Svc.ForwardRefs(r.Context(), m)
	if err != nil {
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}
	backrefs, err := h.Svc.BackRefs(r.Context(), m)
	if err != nil {
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}
	files, err := h.Svc.FilesFor(r.Context(), m)
	if err != nil {
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}

	type sigDTO struct {
		Signer   string     `json:"signer"`
		Delegate string     `json:"delegate,omitempty"`
		Signed   bool       `json:"signed"`
		SignedAt *time.Time `json:"signed_at,omitempty"`
	}
	type fileDTO struct {
		UUID     string `json:"uuid"`
		Filename string `json:"filename"`
	}

	sigOut := make([]sigDTO, 0, len(sigs))
	for _, sig := range sigs {
		sigOut = append(sigOut, sigDTO{
			Signer:   sig.SignerID,
			Delegate: sig.DelegateID,
			Signed:   sig.Signed,
			SignedAt: sig.SignedAt,
		})
	}
	fileOut := make([]fileDTO, 0, len(files))
	for _, f := range files {
		fileOut = append(fileOut, fileDTO{UUID: f.UUID, Filename: f.Filename})
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"memo":       toDTO(m),
		"signatures": sigOut,
		"references": orEmpty(refs),
		"backrefs":   orEmpty(backrefs),
		"files":      fileOut,
	})
}

// Inbox lists memos the authenticated user can sign.
func (h *MemoReadHandler) Inbox(w http.ResponseWriter, r *http.Request) {
	username, _ := auth.UsernameFromContext(r.Context())
	if v := r.URL.Query().Get("user"); v != "" {
		username = v
	}
	page, pageSize := h.pageParams(r)
	p, err := h.Svc.Inbox(r.Context(), username, page, pageSize)
	if err != nil {
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, toPageDTO(p))
}

// Drafts lists the authenticated user's drafts.
func (h *MemoReadHandler) Drafts(w http.ResponseWriter, r *http.Request) {
	username, _ := auth.UsernameFromContext(r.Context())
	if v := r.URL.Query().Get("owner"); v != "" {
		username = v
	}
	page, pageSize := h.pageParams(r)
	p, err := h.Svc.Drafts(r.Context(), username, page, pageSize)
	if err != nil {
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, toPageDTO(p))
}

// Search matches title or keyword substrings, case-insensitive.
func (h *MemoReadHandler) Search(w http.ResponseWriter, r *http.Request) {
	page, pageSize := h.pageParams(r)

	var p *memo.Page
	var err error
	switch {
	case r.URL.Query().Get("title") != "":
		p, err = h.Svc.SearchByTitle(r.Context(), r.URL.Query().Get("title"), page, pageSize)
	case r.URL.Query().Get("keyword") != "":
		p, err = h.Svc.SearchByKeyword(r.Context(), r.URL.Query().Get("keyword"), page, pageSize)
	default:
		http.Error(w, "title or keyword required", http.StatusBadRequest)
		return
	}
	if err != nil {
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, toPageDTO(p))
}
