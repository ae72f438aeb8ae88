package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"memos/internal/auth"
	"memos/internal/memo"
)

// MemoHandler fronts the lifecycle state machine. Every route takes
// the acting user from the token; sign-family routes additionally
// accept ?signer= to act as a delegate for someone else.
type MemoHandler struct {
	Svc *memo.Service
}

type memoDTO struct {
	Owner        string     `json:"owner"`
	Number       int        `json:"number"`
	Version      string     `json:"version"`
	Title        string     `json:"title"`
	Keywords     string     `json:"keywords"`
	Distribution string     `json:"distribution"`
	Confidential bool       `json:"confidential"`
	Pinned       bool       `json:"pinned"`
	Template     bool       `json:"template"`
	State        memo.State `json:"state"`
	ActionDate   time.Time  `json:"action_date"`
	CreateDate   *time.Time `json:"create_date,omitempty"`
	SubmitDate   *time.Time `json:"submit_date,omitempty"`
	ActiveDate   *time.Time `json:"active_date,omitempty"`
	ObsoleteDate *time.Time `json:"obsolete_date,omitempty"`
	NumFiles     int        `json:"num_files"`
	Signers      string     `json:"signers,omitempty"`
	References   string     `json:"references,omitempty"`
}

func toDTO(m *memo.Memo) memoDTO {
	return memoDTO{
		Owner:        m.OwnerID,
		Number:       m.Number,
		Version:      m.Version,
		Title:        m.Title,
		Keywords:     m.Keywords,
		Distribution: m.Distribution,
		Confidential: m.Confidential,
		Pinned:       m.Pinned,
		Template:     m.Template,
		State:        m.State,
		ActionDate:   m.ActionDate,
		CreateDate:   m.CreateDate,
		SubmitDate:   m.SubmitDate,
		ActiveDate:   m.ActiveDate,
		ObsoleteDate: m.ObsoleteDate,
		NumFiles:     m.NumFiles,
		Signers:      m.SignerNames,
		References:   m.ReferenceNames,
	}
}

type createMemoReq struct {
	Owner  string `json:"owner,omitempty"`  // defaults to the acting user
	Number *int   `json:"number,omitempty"` // omitted: allocate next
}

func (h *MemoHandler) CreateOrRevise(w http.ResponseWriter, r *http.Request) {
	actor, _ := auth.UsernameFromContext(r.Context())

	var req createMemoReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}
	if req.Owner == "" {
		req.Owner = actor
	}

	m, err := h.Svc.CreateOrRevise(r.Context(), req.Owner, actor, req.Number)
	if err != nil {
		writeSvcError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toDTO(m))
}

type updateDraftReq struct {
	Title        string `json:"title"`
	Keywords     string `json:"keywords"`
	Distribution string `json:"distribution"`
	Confidential bool   `json:"confidential"`
	Pinned       bool   `json:"pinned"`
	Template     bool   `json:"template"`
	Signers      string `json:"signers"`
	References   string `json:"references"`
}

func (h *MemoHandler) UpdateDraft(w http.ResponseWriter, r *http.Request) {
	actor, _ := auth.UsernameFromContext(r.Context())
	owner, number, version, ok := memoParams(w, r)
	if !ok {
		return
	}

	var req updateDraftReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}

	res, err := h.Svc.UpdateDraft(r.Context(), owner, number, version, actor, memo.DraftUpdate{
		Title:        req.Title,
		Keywords:     req.Keywords,
		Distribution: req.Distribution,
		Confidential: req.Confidential,
		Pinned:       req.Pinned,
		Template:     req.Template,
		Signers:      req.Signers,
		References:   req.References,
	})
	if err != nil {
		writeSvcError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"memo":               toDTO(res.Memo),
		"invalid_signers":    orEmpty(res.InvalidSigners),
		"invalid_references": orEmpty(res.InvalidReferences),
	})
}

func (h *MemoHandler) Submit(w http.ResponseWriter, r *http.Request) {
	h.lifecycle(w, r, func(owner string, number int, version, actor string) error {
		return h.Svc.Submit(r.Context(), owner, number, version, actor)
	})
}

func (h *MemoHandler) Sign(w http.ResponseWriter, r *http.Request) {
	h.signerOp(w, r, h.Svc.Sign)
}

func (h *MemoHandler) Unsign(w http.ResponseWriter, r *http.Request) {
	h.signerOp(w, r, h.Svc.Unsign)
}

func (h *MemoHandler) Reject(w http.ResponseWriter, r *http.Request) {
	h.signerOp(w, r, h.Svc.Reject)
}

func (h *MemoHandler) Obsolete(w http.ResponseWriter, r *http.Request) {
	h.lifecycle(w, r, func(owner string, number int, version, actor string) error {
		return h.Svc.Obsolete(r.Context(), owner, number, version, actor)
	})
}

func (h *MemoHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	h.lifecycle(w, r, func(owner string, number int, version, actor string) error {
		return h.Svc.Cancel(r.Context(), owner, number, version, actor)
	})
}

func (h *MemoHandler) History(w http.ResponseWriter, r *http.Request) {
	owner, number, version, ok := memoParams(w, r)
	if !ok {
		return
	}
	events, err := h.Svc.HistoryFor(r.Context(), owner, number, version)
	if err != nil {
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}
	type eventDTO struct {
		Activity  memo.Activity `json:"activity"`
		User      string        `json:"user"`
		CreatedAt time.Time     `json:"created_at"`
	}
	out := make([]eventDTO, 0, len(events))
	for _, e := range events {
		out = append(out, eventDTO{Activity: e.Activity, User: e.UserID, CreatedAt: e.CreatedAt})
	}
	writeJSON(w, http.StatusOK, out)
}

// signerOp handles sign/unsign/reject: the acting user is always the
// delegate, the signer defaults to them unless ?signer= names the
// person they act for.
func (h *MemoHandler) signerOp(w http.ResponseWriter, r *http.Request,
	op func(ctx context.Context, owner string, number int, version, signer, delegate string) error) {
	actor, _ := auth.UsernameFromContext(r.Context())
	owner, number, version, ok := memoParams(w, r)
	if !ok {
		return
	}
	signer := r.URL.Query().Get("signer")
	if signer == "" {
		signer = actor
	}
	if err := op(r.Context(), owner, number, version, signer, actor); err != nil {
		writeSvcError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *MemoHandler) lifecycle(w http.ResponseWriter, r *http.Request, op func(owner string, number int, version, actor string) error) {
	actor, _ := auth.UsernameFromContext(r.Context())
	owner, number, version, ok := memoParams(w, r)
	if !ok {
		return
	}
	if err := op(owner, number, version, actor); err != nil {
		writeSvcError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func memoParams(w http.ResponseWriter, r *http.Request) (string, int, string, bool) {
	owner := chi.URLParam(r, "owner")
	version := chi.URLParam(r, "version")
	number, err := strconv.Atoi(chi.URLParam(r, "number"))
	if err != nil || owner == "" || version == "" {
		http.Error(w, "invalid memo id", http.StatusBadRequest)
		return "", 0, "", false
	}
	return owner, number, version, true
}

func writeSvcError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, memo.ErrNotFound):
		http.Error(w, "not found", http.StatusNotFound)
	case errors.Is(err, memo.ErrNotAllowed):
		http.Error(w, "not allowed", http.StatusForbidden)
	default:
		http.Error(w, "server error", http.StatusInternalServerError)
	}
}

func orEmpty(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
