package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"gorm.io/gorm"

	"memos/internal/auth"
	"memos/internal/config"
	"memos/internal/http/handler"
	mw "memos/internal/http/middleware"
	"memos/internal/memo"
	"memos/internal/user"
)

func NewRouter(cfg config.Config, db *gorm.DB, jwtSvc *auth.JWT, memoSvc *memo.Service) http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)

	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(mw.CORS(cfg.CORSAllowedOrigins, cfg.CORSAllowCredentials))
	}

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	userSvc := &user.Service{DB: db}

	ah := &handler.AuthHandler{DB: db, JWT: jwtSvc}
	r.Post("/auth/register", ah.Register)
	r.Post("/auth/login", ah.Login)
	r.Post("/auth/reset", ah.RequestReset)
	r.Post("/auth/reset/confirm", ah.ConfirmReset)

	uh := &handler.UserHandler{DB: db, Users: userSvc}
	r.Route("/me", func(r chi.Router) {
		r.Use(auth.RequireAuth(jwtSvc))

		r.Get("/", uh.Me)
		r.Patch("/", uh.UpdateMe)
		r.Get("/delegates", uh.Delegates)
		r.Put("/delegates", uh.SetDelegates)
		r.Get("/subscriptions", uh.Subscriptions)
		r.Put("/subscriptions", uh.SetSubscriptions)
	})

	memoH := &handler.MemoHandler{Svc: memoSvc}
	memoRead := &handler.MemoReadHandler{Svc: memoSvc, Users: userSvc}
	fileH := &handler.FileHandler{Svc: memoSvc, Users: userSvc}

	r.Route("/memos", func(r chi.Router) {
		// listings stay readable without a token; confidential memos
		// are filtered per-request by HasAccess.
		r.With(auth.OptionalAuth(jwtSvc)).Get("/", memoRead.List)
		r.With(auth.OptionalAuth(jwtSvc)).Get("/search", memoRead.Search)

		r.Group(func(r chi.Router) {
			r.Use(auth.RequireAuth(jwtSvc))

			r.Post("/", memoH.CreateOrRevise)
			r.Get("/inbox", memoRead.Inbox)
			r.Get("/drafts", memoRead.Drafts)
		})

		r.Route("/{owner}/{number}/{version}", func(r chi.Router) {
			r.With(auth.OptionalAuth(jwtSvc)).Get("/", memoRead.Detail)
			r.With(auth.OptionalAuth(jwtSvc)).Get("/history", memoH.History)
			r.With(auth.OptionalAuth(jwtSvc)).Get("/files/{uuid}", fileH.Download)

			r.Group(func(r chi.Router) {
				r.Use(auth.RequireAuth(jwtSvc))

				r.Put("/", memoH.UpdateDraft)
				r.Post("/submit", memoH.Submit)
				r.Post("/sign", memoH.Sign)
				r.Post("/unsign", memoH.Unsign)
				r.Post("/reject", memoH.Reject)
				r.Post("/obsolete", memoH.Obsolete)
				r.Delete("/", memoH.Cancel)

				r.Post("/files", fileH.Upload)
				r.Delete("/files/{uuid}", fileH.Remove)
			})
		})
	})

	return r
}
