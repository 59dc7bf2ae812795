package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/ifuryst/postcast/internal/config"
	"github.com/ifuryst/postcast/internal/service"
	"github.com/ifuryst/postcast/internal/service/media"
	"github.com/ifuryst/postcast/internal/service/publisher"
)

type Server struct {
	Config *config.Config
	DB     *gorm.DB
	Router *gin.Engine
	Logger *zap.Logger
	Server *http.Server

	// Services
	Posts      *service.PostService
	Publishers *publisher.Manager
	Scheduler  *service.Scheduler
	Monitoring *service.MonitoringService
}

func NewServer(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Server, error) {
	// Set gin mode
	gin.SetMode(cfg.Server.Mode)

	// Initialize database
	db, err := service.NewDatabase(&cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	storage, err := media.NewLocalStorage(cfg.Storage.Dir, cfg.Storage.MaxUploadBytes)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize media storage: %w", err)
	}

	location, err := cfg.Scheduler.Location()
	if err != nil {
		return nil, fmt.Errorf("invalid scheduler timezone: %w", err)
	}

	publishers, err := NewPublishManager(ctx, &cfg.Publisher, logger)
	if err != nil {
		return nil, err
	}

	// Initialize services
	store := service.NewGormPostStore(db)
	resolver := media.NewResolver(storage, cfg.Storage.PublicBaseURL)
	posts := service.NewPostService(store, storage, resolver, location, logger)
	scheduler := service.NewScheduler(&cfg.Scheduler, logger, store, publishers, resolver)
	monitoring := service.NewMonitoringService(store, publishers, logger)

	// Create router
	router := gin.New()

	// Create server
	srv := &Server{
		Config:     cfg,
		DB:         db,
		Router:     router,
		Logger:     logger,
		Posts:      posts,
		Publishers: publishers,
		Scheduler:  scheduler,
		Monitoring: monitoring,
	}

	// Setup middleware and routes
	srv.setupMiddleware()
	srv.setupRoutes()

	return srv, nil
}

func (s *Server) setupMiddleware() {
	// Recovery middleware
	s.Router.Use(gin.Recovery())

	// Logger middleware
	s.Router.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		Formatter: func(param gin.LogFormatterParams) string {
			return fmt.Sprintf("%s - [%s] \"%s %s %s %d %s \"%s\" %s\"\n",
				param.ClientIP,
				param.TimeStamp.Format(time.RFC3339),
				param.Method,
				param.Path,
				param.Request.Proto,
				param.StatusCode,
				param.Latency,
				param.Request.UserAgent(),
				param.ErrorMessage,
			)
		},
	}))

	// CORS middleware
	s.Router.Use(cors.New(cors.Config{
		AllowAllOrigins: true,
		AllowMethods:    []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:    []string{"Content-Type", "Authorization"},
		ExposeHeaders:   []string{"Content-Length"},
		MaxAge:          12 * time.Hour,
	}))
}

func (s *Server) setupRoutes() {
	// Health check
	s.Router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status": "ok",
			"time":   time.Now().Unix(),
		})
	})

	// Stored media
	s.Router.Static(s.Config.Storage.Route, s.Config.Storage.Dir)

	// API routes
	api := s.Router.Group("/api/v1")
	{
		api.GET("/stats", s.handleGetStats)

		posts := api.Group("/posts")
		{
			posts.POST("", s.handleCreatePost)
			posts.GET("", s.handleListPosts)
			posts.GET("/:id", s.handleGetPost)
			posts.PUT("/:id", s.handleUpdatePost)
			posts.DELETE("/:id", s.handleDeletePost)
			posts.GET("/:id/attempts", s.handleListAttempts)
		}
	}
}

func (s *Server) handleGetStats(c *gin.Context) {
	summary, err := s.Monitoring.GetDashboardSummary(c.Request.Context())
	if err != nil {
		s.respondError(c, "get stats", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"stats": summary})
}

func (s *Server) Start(ctx context.Context) error {
	// Start scheduler
	if err := s.Scheduler.Start(ctx); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}

	addr := fmt.Sprintf("%s:%d", s.Config.Server.Host, s.Config.Server.Port)

	s.Server = &http.Server{
		Addr:    addr,
		Handler: s.Router,
	}

	s.Logger.Info("Starting HTTP server", zap.String("addr", addr))

	var err error
	if s.Config.Server.CertFile != "" && s.Config.Server.KeyFile != "" {
		err = s.Server.ListenAndServeTLS(s.Config.Server.CertFile, s.Config.Server.KeyFile)
	} else {
		err = s.Server.ListenAndServe()
	}
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

func (s *Server) Shutdown(ctx context.Context) error {
	// Stop scheduler first
	s.Scheduler.Stop()

	if s.Server == nil {
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	return s.Server.Shutdown(shutdownCtx)
}
