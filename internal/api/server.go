package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// Server wraps the gin engine with graceful shutdown.
type Server struct {
	http   *http.Server
	logger zerolog.Logger
}

func NewServer(addr string, handler *Handler, logger zerolog.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	handler.Register(router)

	return &Server{
		http: &http.Server{
			Addr:    addr,
			Handler: router,
		},
		logger: logger.With().Str("component", "http").Logger(),
	}
}

// Start serves until the listener fails. http.ErrServerClosed after a
// Shutdown is not an error.
func (s *Server) Start() error {
	s.logger.Info().Str("addr", s.http.Addr).Msg("http server listening")
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info().Msg("shutting down http server")
	return s.http.Shutdown(ctx)
}
