package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/dukerupert/missionboard/internal/handler"
	"github.com/dukerupert/missionboard/internal/middleware"
	"github.com/dukerupert/missionboard/internal/participation"
	"github.com/dukerupert/missionboard/internal/session"
	"github.com/dukerupert/missionboard/internal/store"
	"github.com/dukerupert/missionboard/internal/upload"
	ws "github.com/dukerupert/missionboard/internal/websocket"
)

const (
	certifyLimit = 30
	loginLimit   = 10
	limitWindow  = time.Minute
)

// Deps are the wired components the HTTP layer serves.
type Deps struct {
	DB            *sql.DB
	Hub           *ws.Hub
	State         *participation.State
	Service       *participation.Service
	Orchestrator  *participation.Orchestrator
	Sessions      *session.Manager
	Guestbook     *store.GuestbookStore
	Images        *upload.Uploader
	MaxImageBytes int64
}

type Server struct {
	db          *sql.DB
	hub         *ws.Hub
	sessions    *session.Manager
	missionH    *handler.MissionHandler
	boardH      *handler.BoardHandler
	guestbookH  *handler.GuestbookHandler
	sessionH    *handler.SessionHandler
	rateLimiter *middleware.RateLimiter
	logger      *slog.Logger
}

func New(d Deps, logger *slog.Logger) *Server {
	return &Server{
		db:          d.DB,
		hub:         d.Hub,
		sessions:    d.Sessions,
		missionH:    handler.NewMissionHandler(d.Orchestrator, d.Images, d.MaxImageBytes, logger.With("component", "mission")),
		boardH:      handler.NewBoardHandler(d.Service, d.State, logger.With("component", "board")),
		guestbookH:  handler.NewGuestbookHandler(d.Guestbook, d.State, d.Hub, logger.With("component", "guestbook")),
		sessionH:    handler.NewSessionHandler(d.Sessions, d.Service, logger.With("component", "session")),
		rateLimiter: middleware.NewRateLimiter(),
		logger:      logger,
	}
}

// RateLimiter returns the rate limiter for cleanup tasks.
func (s *Server) RateLimiter() *middleware.RateLimiter {
	return s.rateLimiter
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(middleware.RequestLogger(s.logger.With("component", "http")))
	r.Use(chimw.Recoverer)

	r.Get("/health", s.healthHandler)
	r.Get("/ws", ws.HandleWebSocket(s.hub, s.logger.With("component", "websocket")))

	r.Route("/api", func(r chi.Router) {
		r.Get("/session", s.sessionH.Status)
		r.With(s.limit("login", loginLimit)).Post("/session/login", s.sessionH.Login)
		r.With(s.limit("signup", loginLimit)).Post("/session/signup", s.sessionH.Signup)
		r.Post("/session/logout", s.sessionH.Logout)

		r.Get("/boards", s.boardH.List)
		r.Post("/boards/load", s.boardH.Load)
		r.Route("/boards/{boardID}", func(r chi.Router) {
			r.Get("/", s.boardH.Get)
			r.With(middleware.RequireSession(s.sessions)).Post("/refresh", s.boardH.Refresh)

			r.Get("/guestbook", s.guestbookH.List)
			r.Post("/guestbook", s.guestbookH.Create)

			r.Route("/missions/{missionID}", func(r chi.Router) {
				r.Use(s.limit("certify", certifyLimit))
				r.Post("/quiet-time", s.missionH.QuietTime)
				r.Post("/receipt", s.missionH.Receipt)
				r.Post("/treasure-hunt", s.missionH.TreasureHunt)
				r.Post("/stamp", s.missionH.Stamp)
				r.Post("/stay/start", s.missionH.StartStay)
			})
		})

		r.Get("/activities", s.boardH.Activities)
		r.With(middleware.RequireSession(s.sessions)).Post("/activities/reconcile", s.boardH.Reconcile)
		r.With(s.limit("certify", certifyLimit)).Post("/activities/{activityID}/stay/complete", s.missionH.CompleteStay)
	})

	return r
}

func (s *Server) limit(name string, n int) func(http.Handler) http.Handler {
	return middleware.RateLimit(s.rateLimiter, middleware.ByIP(name), n, limitWindow)
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := s.db.PingContext(ctx); err != nil {
		s.logger.Error("health check", "error", err)
		w.WriteHeader(http.StatusServiceUnavailable)
		fmt.Fprint(w, `{"status":"unavailable"}`)
		return
	}
	fmt.Fprint(w, `{"status":"ok"}`)
}

// Run serves on addr until Shutdown is called.
func Run(srv *http.Server) error {
	ln, err := net.Listen("tcp", srv.Addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", srv.Addr, err)
	}
	err = srv.Serve(ln)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}
