package api

import (
	"context"
	"net/http"

	"github.com/gorilla/handlers"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/npezzotti/chatsync/internal/config"
	"github.com/npezzotti/chatsync/internal/engine"
	"github.com/npezzotti/chatsync/internal/types"
)

// Inspector is the engine surface served over HTTP.
type Inspector interface {
	Status(ctx context.Context) (engine.Status, error)
	Conversations(ctx context.Context) ([]types.Conversation, error)
	Conversation(ctx context.Context, id int64) (types.Conversation, bool, error)
	Timeline(ctx context.Context) (engine.TimelineView, error)
	Activate(ctx context.Context, id int64) error
	Send(ctx context.Context, target int64, content string) (int64, error)
	MarkRead(ctx context.Context, id int64) error
}

// Server exposes the local engine state to tools on the same machine.
type Server struct {
	log    zerolog.Logger
	engine Inspector
	srv    *http.Server
}

func NewServer(mux *http.ServeMux, logger zerolog.Logger, eng Inspector, cfg *config.Config) *Server {
	s := &Server{
		log:    logger,
		engine: eng,
	}

	mux.HandleFunc("GET /healthz", s.healthz)
	mux.HandleFunc("GET /api/session", s.noCache(s.session))
	mux.HandleFunc("GET /api/conversations", s.noCache(s.conversations))
	mux.HandleFunc("POST /api/conversations/active", s.activate)
	mux.HandleFunc("POST /api/conversations/read", s.markRead)
	mux.HandleFunc("GET /api/timeline", s.noCache(s.timeline))
	mux.HandleFunc("POST /api/messages", s.sendMessage)

	h := handlers.CORS(
		handlers.MaxAge(3600),
		handlers.AllowedOrigins(cfg.AllowedOrigins),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Origin", "Content-Type", "Accept"}),
	)(mux)

	h = s.errorHandler(h)

	s.srv = &http.Server{
		Addr:    cfg.InspectAddr,
		Handler: h,
	}
	return s
}

// Handler returns the fully wrapped handler.
func (s *Server) Handler() http.Handler {
	return s.srv.Handler
}

func (s *Server) Start() error {
	s.log.Info().Str("addr", s.srv.Addr).Msg("starting inspect server")
	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("shutting down inspect server")
	if err := s.srv.Shutdown(ctx); err != nil {
		return errors.Wrap(err, "server shutdown")
	}
	return nil
}
