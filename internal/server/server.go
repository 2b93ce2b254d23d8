package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"

	"gympro/internal/auth"
	"gympro/internal/config"
	"gympro/internal/notify"
	"gympro/internal/plan"
	"gympro/internal/subscription"
)

type Server struct {
	router  *gin.Engine
	httpSrv *http.Server
	db      *sqlx.DB
	config  *config.Config
}

func New(db *sqlx.DB, cfg *config.Config, redisClient *redis.Client, emailService *notify.Service) *Server {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(RequestLoggingMiddleware())
	router.Use(MetricsMiddleware())
	router.Use(corsMiddleware())
	router.Use(RateLimitMiddleware(20, 40))

	planRepo := plan.NewRepository(db)
	catalog := plan.NewCachedCatalog(planRepo, redisClient, cfg.PlanCacheTTL)

	planHandler := plan.NewHandler(catalog)
	billingHandler := subscription.NewHandler(db, catalog)

	router.GET("/health", Health)
	router.GET("/metrics", Metrics())
	router.GET("/plans", planHandler.ListPlans)
	SetupSwagger(router)

	authMiddleware := auth.AuthMiddleware(cfg.JWTSecret)
	billing := router.Group("/billing")
	billing.Use(authMiddleware)
	{
		billing.GET("/subscription", billingHandler.GetMy)
		billing.GET("/subscription/time-remaining", billingHandler.TimeRemaining)
		billing.POST("/preview", billingHandler.PreviewChange)
		billing.POST("/subscribe", billingHandler.Subscribe)
		billing.POST("/downgrade", billingHandler.Downgrade)
		billing.POST("/cancel", billingHandler.Cancel)
		billing.POST("/reactivate", billingHandler.Reactivate)
		billing.POST("/pending-change/cancel", billingHandler.CancelPendingChange)
		billing.GET("/history", billingHandler.ListHistory)
	}

	admin := router.Group("/admin")
	admin.Use(authMiddleware, auth.RequireRole("admin"))
	{
		admin.GET("/email-queue", EmailQueueLength(emailService))
	}

	return &Server{
		router: router,
		db:     db,
		config: cfg,
	}
}

func (s *Server) Start(port string) error {
	s.httpSrv = &http.Server{
		Addr:         ":" + port,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}
	return s.httpSrv.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Shutdown(ctx)
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE, PATCH")
		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	}
}
