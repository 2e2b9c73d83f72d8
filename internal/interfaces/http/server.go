// Package http provides HTTP server adapter for the application layer.
// This is a thin adapter layer that translates HTTP requests to application service calls.
package http

import (
	"context"
	"fmt"
	"net/http"
	"slices"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/cors"

	"github.com/garyjia/invoice-financing/internal/application/service"
	"github.com/garyjia/invoice-financing/internal/webhook"
)

// Logger interface for logging operations
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Warn(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host           string
	Port           int
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	MaxBodyBytes   int64
	AllowedOrigins []string
	Auth           AuthConfig
}

// DefaultServerConfig returns default server configuration
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Host:           "0.0.0.0",
		Port:           8080,
		ReadTimeout:    30 * time.Second,
		WriteTimeout:   60 * time.Second,
		MaxBodyBytes:   10 << 20,
	}
}

// Server is the HTTP server adapter
type Server struct {
	config     ServerConfig
	httpServer *http.Server
	router     *gin.Engine
	handler    http.Handler
	invoices   service.InvoiceService
	users      service.UserService
	webhooks   *webhook.Handler
	logger     Logger
}

// NewServer creates a new HTTP server with the given services
func NewServer(
	config ServerConfig,
	invoices service.InvoiceService,
	users service.UserService,
	webhooks *webhook.Handler,
	logger Logger,
) *Server {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.MaxMultipartMemory = config.MaxBodyBytes

	server := &Server{
		config:   config,
		router:   router,
		invoices: invoices,
		users:    users,
		webhooks: webhooks,
		logger:   logger,
	}

	server.setupMiddleware()
	server.setupRoutes()

	server.handler = cors.New(corsOptions(config.AllowedOrigins)).Handler(router)

	return server
}

// corsOptions admits no cross-origin callers unless origins are listed.
// Credentials are allowed only for an explicit list without a wildcard.
func corsOptions(origins []string) cors.Options {
	opts := cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Authorization", "Content-Type", webhook.SecretHeader},
		ExposedHeaders:   []string{"Content-Disposition"},
		AllowCredentials: len(origins) > 0 && !slices.Contains(origins, "*"),
	}
	if len(origins) == 0 {
		// rs/cors treats an empty list as "*"
		opts.AllowOriginFunc = func(string) bool { return false }
	}
	return opts
}

// setupMiddleware configures middleware for the router
func (s *Server) setupMiddleware() {
	s.router.Use(gin.Recovery())
	s.router.Use(s.loggingMiddleware())
	s.router.Use(bodyLimitMiddleware(s.config.MaxBodyBytes))
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() {
	handlers := NewHandlers(s.invoices, s.users, s.logger)

	s.router.GET("/health", handlers.HealthCheck)

	// Anonymous flows
	s.router.POST("/invoices/demo", handlers.Demo)
	onboarding := s.router.Group("/onboarding")
	{
		onboarding.POST("/upload", handlers.OnboardingUpload)
		onboarding.GET("/:id", handlers.GetOnboarding)
		onboarding.PUT("/:id", handlers.UpdateOnboarding)
	}

	if s.webhooks != nil {
		s.webhooks.Register(s.router)
	}

	auth := authMiddleware(s.config.Auth, s.logger)

	invoices := s.router.Group("/invoices", auth)
	{
		invoices.POST("/create", handlers.CreateInvoice)
		invoices.POST("/upload", handlers.UploadInvoice)
		invoices.GET("/list", handlers.ListInvoices)
		invoices.GET("/export", handlers.ExportInvoices)
		invoices.GET("/:id", handlers.GetInvoice)
		invoices.PATCH("/:id", handlers.UpdateInvoice)
		invoices.POST("/:id/claim", handlers.ClaimInvoice)
		invoices.POST("/:id/score", handlers.ScoreInvoice)
		invoices.POST("/:id/accept", handlers.AcceptInvoice)
		invoices.POST("/:id/refuse", handlers.RefuseInvoice)
		invoices.POST("/:id/send", handlers.SendInvoice)
	}

	users := s.router.Group("/users", auth)
	{
		users.GET("/me", handlers.GetMe)
		users.PUT("/me", handlers.UpdateMe)
	}
}

// Start starts the HTTP server
func (s *Server) Start(ctx context.Context) error {
	addr := s.Address()

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.handler,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}

	s.logger.Info("Starting HTTP server", "address", addr)

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("HTTP server shutdown requested")
		return s.Stop()
	case err := <-errCh:
		s.logger.Error("HTTP server error", "error", err)
		return err
	}
}

// Stop gracefully stops the HTTP server
func (s *Server) Stop() error {
	if s.httpServer == nil {
		return nil
	}

	s.logger.Info("Stopping HTTP server")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.logger.Error("HTTP server shutdown error", "error", err)
		return err
	}

	s.logger.Info("HTTP server stopped")
	return nil
}

// Handler returns the CORS-wrapped router (for testing)
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Address returns the server address
func (s *Server) Address() string {
	return fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
}
