package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"memos/internal/auth"
	"memos/internal/config"
	"memos/internal/db"
	httpx "memos/internal/http"
	"memos/internal/jobs"
	"memos/internal/memo"
	"memos/internal/notify"
)

func main() {
	cfg, _ := config.Load()

	gdb, err := db.Connect(cfg.DatabaseURL)
	if err != nil {
		log.Fatal(err)
	}
	if err := db.AutoMigrateAndIndexes(gdb); err != nil {
		log.Fatal(err)
	}
	if err := db.SeedAdmin(gdb, cfg.AdminUser, cfg.AdminEmail, cfg.AdminPassword); err != nil {
		log.Fatal(err)
	}

	jwtSvc := auth.NewJWT(cfg.JWTSecret)

	memoSvc := &memo.Service{
		DB:        gdb,
		Files:     &memo.FileStore{Root: cfg.DataDir},
		Snapshots: &memo.SnapshotStore{Root: cfg.DataDir},
		BaseURL:   cfg.BaseURL,
	}

	r := httpx.NewRouter(cfg, gdb, jwtSvc, memoSvc)

	var notifier notify.Notifier
	if cfg.MailAddr != "" {
		notifier = &notify.SMTPNotifier{
			Addr:     cfg.MailAddr,
			From:     cfg.MailFrom,
			Username: cfg.MailUser,
			Password: cfg.MailPassword,
		}
	} else {
		notifier = &notify.LogNotifier{}
	}

	// worker
	jobsRepo := &jobs.Repo{DB: gdb}
	worker := &jobs.Worker{ID: "worker-1", Repo: jobsRepo, Notifier: notifier}

	ctx, cancel := context.WithCancel(context.Background())
	go worker.Run(ctx)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Printf("listening on %s\n", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal(err)
		}
	}()

	// graceful shutdown
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	<-ch

	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	_ = srv.Shutdown(shutdownCtx)
}
