package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog/log"

	"github.com/totalrecall/internal/chat"
	"github.com/totalrecall/internal/conversations"
	"github.com/totalrecall/internal/logging"
	"github.com/totalrecall/internal/metrics"
	"github.com/totalrecall/internal/settings"
)

const defaultShutdownTimeout = 10 * time.Second

// QuoteSource returns a raw JSON quote payload
type QuoteSource interface {
	Fetch(ctx context.Context) ([]byte, error)
}

// Options configures the HTTP listener
type Options struct {
	Addr            string
	AllowedOrigins  []string
	ShutdownTimeout time.Duration
}

// Dependencies are the services behind the routes. Metrics may be nil.
type Dependencies struct {
	Conversations *conversations.Repository
	Chat          *chat.Service
	Settings      *settings.Repository
	Quotes        QuoteSource
	Metrics       *metrics.Recorder
}

// Server represents the API server
type Server struct {
	echo            *echo.Echo
	addr            string
	shutdownTimeout time.Duration
	deps            Dependencies
	openapi         *openapi3.T
}

// NewServer creates a new API server
func NewServer(opts Options, deps Dependencies) (*Server, error) {
	doc, err := loadOpenAPI()
	if err != nil {
		return nil, err
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	var observe logging.RequestObserver
	if deps.Metrics != nil {
		observe = deps.Metrics.ObserveHTTPRequest
	}

	// Middleware
	e.Use(logging.RequestLogger(observe))
	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: opts.AllowedOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions, http.MethodPut, http.MethodDelete},
		AllowHeaders: []string{echo.HeaderContentType, "x-api-key"},
	}))

	timeout := opts.ShutdownTimeout
	if timeout <= 0 {
		timeout = defaultShutdownTimeout
	}

	server := &Server{
		echo:            e,
		addr:            opts.Addr,
		shutdownTimeout: timeout,
		deps:            deps,
		openapi:         doc,
	}

	// Setup routes
	server.setupRoutes()

	return server, nil
}

// setupRoutes configures all API endpoints
func (s *Server) setupRoutes() {
	s.echo.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status": "healthy",
		})
	})
	s.echo.GET("/openapi.json", s.getOpenAPI)
	if s.deps.Metrics != nil {
		s.echo.GET("/metrics", echo.WrapHandler(s.deps.Metrics.Handler()))
	}

	conv := NewConversationHandler(s.deps.Conversations, s.deps.Chat)
	s.echo.POST("/conversation", conv.Converse)
	s.echo.GET("/conversation", conv.Get)
	s.echo.DELETE("/conversation", conv.Delete)
	s.echo.GET("/conversations", conv.List)

	for _, prefix := range []string{"/conversation/tag", "/tag"} {
		s.echo.POST(prefix, conv.AddTag)
		s.echo.PUT(prefix, conv.EditTag)
		s.echo.DELETE(prefix, conv.DeleteTag)
	}
	s.echo.PUT("/conversation/tags", conv.ReplaceTags)
	s.echo.PUT("/conversation/name", conv.Rename)
	s.echo.POST("/conversation/message", conv.AddMessage)

	s.echo.POST("/sendPrompt", s.sendPrompt)
	s.echo.GET("/fetchQuote", s.fetchQuote)

	users := NewSettingsHandler(s.deps.Settings)
	s.echo.POST("/settings", users.Update)
}

// Handler exposes the router, mainly for tests
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start serves until SIGINT or SIGTERM, then drains in-flight requests
// within the shutdown timeout
func (s *Server) Start() error {
	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", s.addr).Msg("Starting API server")
		if err := s.echo.Start(s.addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("api server failed: %w", err)
		}
		return nil
	case sig := <-quit:
		log.Info().Str("signal", sig.String()).Msg("Shutting down API server")
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()
	return s.echo.Shutdown(ctx)
}
