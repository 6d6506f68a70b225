package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/grandcat/zeroconf"

	"github.com/mapwright/mapwright/internal/auth"
	"github.com/mapwright/mapwright/internal/collab"
	"github.com/mapwright/mapwright/internal/config"
	"github.com/mapwright/mapwright/internal/document"
	"github.com/mapwright/mapwright/internal/export"
	"github.com/mapwright/mapwright/internal/mapworker"
	"github.com/mapwright/mapwright/internal/metrics"
	mw "github.com/mapwright/mapwright/internal/middleware"
	"github.com/mapwright/mapwright/internal/project"
	"github.com/mapwright/mapwright/internal/store"
	"github.com/mapwright/mapwright/internal/view"
)

const (
	liveRoom      = "live"
	resyncTimeout = 2 * time.Second
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}
	level, _ := cfg.Level()
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	session, err := store.Open(ctx, cfg.SessionDriver, cfg.SessionDSN())
	if err != nil {
		slog.Error("open session store", "driver", cfg.SessionDriver, "error", err)
		os.Exit(1)
	}
	defer session.Close()

	doc, err := store.Recover(ctx, session, cfg.SessionKey)
	switch {
	case errors.Is(err, store.ErrNotFound):
		doc = document.NewSampleMap()
	case err != nil:
		slog.Warn("discarding unreadable session", "error", err)
		doc = document.NewSampleMap()
	default:
		slog.Info("session recovered", "map", doc.Ref.Name)
	}

	var docs store.Documents = store.NewMemoryDocuments()
	if cfg.DatabaseURL != "" {
		pg, err := store.OpenPostgres(ctx, cfg.DatabaseURL)
		if err != nil {
			slog.Error("connect to database", "error", err)
			os.Exit(1)
		}
		defer pg.Close()
		docs = pg
	}

	stats := metrics.New()

	worker := mapworker.New(doc,
		mapworker.WithLogger(logger.With("component", "worker")),
		mapworker.WithObserver(stats),
		mapworker.WithSessionSaver(store.Saver{Store: session, Key: cfg.SessionKey}, cfg.AutosaveDelay),
		mapworker.WithMaxHistory(cfg.MaxHistory),
	)
	mirror := view.NewMirror(doc,
		view.WithLogger(logger.With("component", "mirror")),
		view.WithMaxHistory(cfg.MaxHistory),
		view.WithResync(func(ctx context.Context) (*document.Map, error) {
			ctx, cancel := context.WithTimeout(ctx, resyncTimeout)
			defer cancel()
			return worker.Map(ctx)
		}),
	)

	hub := collab.NewHub(
		collab.WithLogger(logger.With("component", "hub")),
		collab.WithOriginPatterns(cfg.OriginPatterns()...),
	)
	mirror.AddLink(hub.AddRoom(liveRoom, mirror, worker))

	go func() {
		if err := worker.Run(ctx); err != nil {
			slog.Error("worker", "error", err)
		}
	}()
	go mirror.Run(ctx, worker.Notifications())
	go hub.Run(ctx)

	authService := auth.NewService(cfg.JWTSecret, cfg.ViewerPasscodeHash, cfg.EditorPasscodeHash)
	authHandler := auth.NewHandler(authService)

	projectHandler := project.NewHandler(project.NewService(docs, worker))
	exportHandler := export.NewHandler(mirror)

	r := mux.NewRouter()

	// Global middleware
	r.Use(mw.Recovery)
	r.Use(mw.Logger)
	r.Use(mw.CORS(cfg.OriginPatterns()))

	r.HandleFunc("/auth/join", authHandler.Join).Methods("POST", "OPTIONS")
	r.Handle("/metrics", stats.Handler()).Methods("GET")

	// Health check
	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	}).Methods("GET")

	// Editor API
	api := r.PathPrefix("/api").Subrouter()
	api.Use(authService.AuthMiddleware(auth.RoleEditor))

	api.HandleFunc("/me", authHandler.Me).Methods("GET")
	api.HandleFunc("/maps", projectHandler.List).Methods("GET")
	api.HandleFunc("/maps", projectHandler.Create).Methods("POST")
	api.HandleFunc("/maps/save", projectHandler.Save).Methods("POST")
	api.HandleFunc("/maps/import", projectHandler.Import).Methods("POST")
	api.HandleFunc("/maps/{mapId}", projectHandler.Get).Methods("GET")
	api.HandleFunc("/maps/{mapId}", projectHandler.Delete).Methods("DELETE")
	api.HandleFunc("/maps/{mapId}/open", projectHandler.Open).Methods("POST")
	api.HandleFunc("/export/image", exportHandler.ExportImage).Methods("GET")

	// WebSocket endpoints; browsers pass the token as a query parameter
	r.Handle("/ws/present", authService.AuthMiddleware(auth.RoleViewer)(surface(hub, false)))
	r.Handle("/ws/edit", authService.AuthMiddleware(auth.RoleEditor)(surface(hub, true)))

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	if cfg.Advertise {
		zc, err := zeroconf.Register(cfg.InstanceName, "_mapwright._tcp", "local.", cfg.Port,
			[]string{"present=/ws/present", "join=/auth/join"}, nil)
		if err != nil {
			slog.Warn("advertise on LAN", "error", err)
		} else {
			defer zc.Shutdown()
			slog.Info("advertising presentation surface", "instance", cfg.InstanceName)
		}
	}

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		slog.Info("shutting down server")

		// Stop the worker first so the last autosave lands
		cancel()
		<-worker.Done()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		srv.Shutdown(shutdownCtx)
	}()

	slog.Info("server starting", "addr", addr, "session", cfg.SessionDriver)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
}

// surface serves a websocket client in the live room as the authenticated
// viewer.
func surface(hub *collab.Hub, editor bool) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		v := auth.ViewerFromContext(r.Context())
		hub.Accept(w, r, liveRoom, collab.Participant{
			ID:          v.ID,
			DisplayName: v.DisplayName,
			Editor:      editor,
		})
	})
}
