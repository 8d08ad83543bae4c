package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"incidentmap/internal/handler"
	"incidentmap/internal/middleware"
	"incidentmap/internal/service"
)

// Services are the use cases exposed over HTTP.
type Services struct {
	Reports service.ReportService
	Chat    service.ChatService
	Sources service.SourceService
	Admin   service.AdminService
}

type Server struct {
	router *gin.Engine
	svc    Services
	logger *zap.Logger
}

func NewServer(svc Services, logger *zap.Logger) *Server {
	router := gin.New()
	router.Use(gin.Recovery(), middleware.RequestLogger(logger), middleware.CORS())

	s := &Server{
		router: router,
		svc:    svc,
		logger: logger,
	}

	s.setupRoutes()

	return s
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) setupRoutes() {
	reportHandler := handler.NewReportHandler(s.svc.Reports, s.logger)
	chatHandler := handler.NewChatHandler(s.svc.Chat, s.logger)
	sourceHandler := handler.NewSourceHandler(s.svc.Sources, s.logger)
	authHandler := handler.NewAuthHandler(s.svc.Admin, s.logger)
	adminOnly := middleware.AdminAuth(s.svc.Admin, s.logger)

	// Ping route for health check
	s.router.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"message": "pong",
		})
	})

	api := s.router.Group("/api")
	api.POST("/admin/auth", authHandler.Login)

	reports := api.Group("/reports")
	{
		reports.GET("", reportHandler.ListReports)
		reports.POST("", reportHandler.CreateReport)
		reports.GET("/:id", reportHandler.GetReport)
		reports.PATCH("/:id", adminOnly, reportHandler.UpdateReport)
		reports.DELETE("/:id", adminOnly, reportHandler.DeleteReport)

		reports.POST("/:id/vote", reportHandler.CastVote)

		reports.GET("/:id/messages", chatHandler.ListMessages)
		reports.POST("/:id/messages", chatHandler.PostMessage)
		reports.DELETE("/:id/messages/:messageId", adminOnly, chatHandler.DeleteMessage)

		reports.GET("/:id/sources", sourceHandler.ListSources)
		reports.POST("/:id/sources", sourceHandler.AddSource)
	}
}

// Run serves on addr until ctx is cancelled, then drains in-flight requests.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Server starting", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.logger.Info("Server shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
