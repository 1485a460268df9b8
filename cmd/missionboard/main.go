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

	"golang.org/x/sync/errgroup"

	"github.com/dukerupert/missionboard/internal/config"
	"github.com/dukerupert/missionboard/internal/database"
	"github.com/dukerupert/missionboard/internal/logging"
	"github.com/dukerupert/missionboard/internal/mission"
	"github.com/dukerupert/missionboard/internal/missionapi"
	"github.com/dukerupert/missionboard/internal/participation"
	"github.com/dukerupert/missionboard/internal/server"
	"github.com/dukerupert/missionboard/internal/session"
	"github.com/dukerupert/missionboard/internal/store"
	"github.com/dukerupert/missionboard/internal/upload"
	ws "github.com/dukerupert/missionboard/internal/websocket"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	cfg, err := config.Load(".env")
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	logger := logging.Setup(cfg.LogLevel, cfg.LogFormat)

	db, err := database.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()
	logger.Info("database ready", "path", cfg.DBPath)

	participationStore := store.NewParticipationStore(db)
	hub := ws.NewHub(logger.With("component", "websocket"))

	client := missionapi.NewClient(missionapi.Config{
		BaseURL:            cfg.APIURL,
		Timeout:            cfg.HTTPTimeout,
		CatalogConcurrency: cfg.ReconcileConcurrency,
		Logger:             logger.With("component", "missionapi"),
	})

	sessions := session.NewManager(client, store.NewSessionStore(db), cfg.SessionPassphrase, logger.With("component", "session"))
	if err := sessions.Restore(ctx); err != nil {
		logger.Warn("restoring session", "error", err)
	}

	initial, err := participationStore.Load()
	if err != nil {
		logger.Warn("loading saved participation", "error", err)
		initial = mission.EmptySnapshot()
	}
	state := participation.NewState(initial)
	stateLogger := logger.With("component", "state")
	state.OnChange(func(snap mission.Snapshot) {
		if err := participationStore.Save(snap); err != nil {
			stateLogger.Error("saving participation", "error", err)
		}
		hub.Broadcast(ws.NewMessage("participation", "updated", "", map[string]any{
			"totalCoins":    snap.TotalCoins(),
			"activityCount": len(snap.Activities),
		}))
	})

	reconciler := participation.NewReconciler(client, cfg.ReconcileConcurrency, nil, logger.With("component", "reconciler"))
	service := participation.NewService(client, reconciler, sessions, state, logger.With("component", "participation"))
	orchestrator := participation.NewOrchestrator(client, sessions, state, reconciler, participation.Config{
		ProximityMeters: cfg.ProximityMeters,
		Location:        cfg.Location(),
	}, logger.With("component", "orchestrator"))

	images := upload.New(upload.Config{
		Endpoint:  cfg.S3.Endpoint,
		Bucket:    cfg.S3.Bucket,
		Region:    cfg.S3.Region,
		AccessKey: cfg.S3.AccessKey,
		SecretKey: cfg.S3.SecretKey,
		PublicURL: cfg.S3.PublicURL,
		MaxBytes:  cfg.S3.MaxBytes,
	}, logger.With("component", "upload"))
	if !images.Enabled() {
		logger.Info("image upload disabled, photo missions need an imageUrl")
	}

	srv := server.New(server.Deps{
		DB:            db,
		Hub:           hub,
		State:         state,
		Service:       service,
		Orchestrator:  orchestrator,
		Sessions:      sessions,
		Guestbook:     store.NewGuestbookStore(db),
		Images:        images,
		MaxImageBytes: cfg.S3.MaxBytes,
	}, logger)

	httpServer := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           srv.Router(),
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      cfg.HTTPTimeout + 30*time.Second,
		IdleTimeout:       120 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if _, err := service.LoadBoards(gctx); err != nil {
			logger.Warn("initial board load", "error", err)
		}
		return nil
	})

	g.Go(func() error {
		logger.Info("starting http server", "addr", httpServer.Addr)
		return server.Run(httpServer)
	})

	g.Go(func() error {
		srv.RateLimiter().RunCleanup(gctx, 5*time.Minute)
		return nil
	})

	if cfg.ReconcileInterval > 0 {
		g.Go(func() error {
			reconcileLoop(gctx, service, cfg.ReconcileInterval, logger)
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down http server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// reconcileLoop rebuilds the snapshot from the ledger every interval while a
// user is signed in.
func reconcileLoop(ctx context.Context, service *participation.Service, interval time.Duration, logger *slog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			_, err := service.Reconcile(ctx)
			switch {
			case err == nil:
			case errors.Is(err, session.ErrNotLoggedIn), errors.Is(err, session.ErrExpired):
				logger.Debug("background reconcile skipped", "reason", err)
			default:
				logger.Warn("background reconcile", "error", err)
			}
		case <-ctx.Done():
			return
		}
	}
}
