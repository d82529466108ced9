package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/campusworks/dept-admin-api/api/swagger"
	"github.com/campusworks/dept-admin-api/internal/handler"
	"github.com/campusworks/dept-admin-api/internal/middleware"
	"github.com/campusworks/dept-admin-api/internal/models"
	"github.com/campusworks/dept-admin-api/internal/repository"
	"github.com/campusworks/dept-admin-api/internal/service"
	"github.com/campusworks/dept-admin-api/pkg/cache"
	"github.com/campusworks/dept-admin-api/pkg/config"
	"github.com/campusworks/dept-admin-api/pkg/database"
	"github.com/campusworks/dept-admin-api/pkg/logger"
	corsmiddleware "github.com/campusworks/dept-admin-api/pkg/middleware/cors"
	reqidmiddleware "github.com/campusworks/dept-admin-api/pkg/middleware/requestid"
)

// @title Department Admin API
// @version 1.0.0
// @description Back-office API for departmental people, labs, projects and announcements
// @BasePath /
// @schemes http

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer db.Close()

	metricsSvc := service.NewMetricsService()

	var cacheSvc *service.CacheService
	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Warn("redis unavailable, caching disabled", zap.Error(err))
	} else {
		defer redisClient.Close()
		cacheRepo := repository.NewCacheRepository(redisClient, logr)
		cacheSvc = service.NewCacheService(cacheRepo, metricsSvc, cfg.Posts.PublicCacheTTL, logr, true)
	}

	validate := validator.New()

	userRepo := repository.NewUserRepository(db)
	roleRepo := repository.NewRoleRepository(db)
	membershipRepo := repository.NewMembershipRepository(db)
	postRepo := repository.NewPostRepository(db)
	tagRepo := repository.NewTagRepository(db)
	labRepo := repository.NewLabRepository(db)
	projectRepo := repository.NewProjectRepository(db)
	activityRepo := repository.NewActivityRepository(db)

	slugs := service.NewSlugAllocator(logr)
	authz := service.NewAuthzService(roleRepo, logr)
	activitySvc := service.NewActivityService(activityRepo, authz, logr)

	authSvc := service.NewAuthService(userRepo, activitySvc, validate, logr, service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		Issuer:             cfg.JWT.Issuer,
		Audience:           cfg.JWT.Audience,
		SingleSession:      cfg.JWT.SingleSession,
	})

	membershipSvc := service.NewMembershipService(membershipRepo, roleRepo, logr)
	tagSvc := service.NewTagService(tagRepo, slugs, logr)
	userSvc := service.NewUserService(userRepo, authz, membershipSvc, activitySvc, validate, logr)

	webhookSvc := service.NewWebhookService(service.WebhookConfig{
		Enabled:    cfg.Webhooks.Enabled,
		Endpoint:   cfg.Webhooks.Endpoint,
		Workers:    cfg.Webhooks.WorkerConcurrency,
		MaxRetries: cfg.Webhooks.WorkerRetries,
		RetryDelay: cfg.Webhooks.RetryDelay,
	}, logr)
	webhookSvc.Start(ctx)
	defer webhookSvc.Stop()

	postSvc := service.NewPostService(postRepo, tagSvc, authz, slugs, cacheSvc, activitySvc, webhookSvc, validate, logr, cfg.Posts.PublicCacheTTL)
	labSvc := service.NewLabService(labRepo, tagSvc, authz, slugs, activitySvc, validate, logr)
	projectSvc := service.NewProjectService(projectRepo, tagSvc, authz, slugs, activitySvc, validate, logr)

	dashboardSvc := service.NewDashboardService(service.DashboardServiceParams{
		Posts:       postRepo,
		Memberships: membershipRepo,
		Labs:        labRepo,
		Projects:    projectRepo,
		Activity:    activityRepo,
		Authz:       authz,
		Cache:       cacheSvc,
		Logger:      logr,
	})
	exportSvc := service.NewExportService(postRepo, userRepo, activityRepo, authz, logr, nil, nil)

	authHandler := handler.NewAuthHandler(authSvc)
	userHandler := handler.NewUserHandler(userSvc)
	membershipHandler := handler.NewMembershipHandler(membershipSvc)
	postHandler := handler.NewPostHandler(postSvc)
	tagHandler := handler.NewTagHandler(tagSvc)
	labHandler := handler.NewLabHandler(labSvc)
	projectHandler := handler.NewProjectHandler(projectSvc)
	dashboardHandler := handler.NewDashboardHandler(dashboardSvc)
	activityHandler := handler.NewActivityHandler(activitySvc)
	exportHandler := handler.NewExportHandler(exportSvc)
	metricsHandler := handler.NewMetricsHandler(metricsSvc)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))
	r.Use(middleware.WithResponseMeta())

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", func(c *gin.Context) {
		if err := db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)

	auth := api.Group("/auth")
	{
		auth.POST("/login", authHandler.Login)
		auth.POST("/refresh", authHandler.Refresh)
	}

	public := api.Group("/public")
	public.Use(middleware.OptionalJWT(authSvc, userRepo))
	{
		public.GET("/posts", postHandler.ListPublic)
		public.GET("/posts/:slug", postHandler.GetPublic)
	}

	authed := api.Group("")
	authed.Use(middleware.JWT(authSvc, userRepo))
	{
		authed.POST("/auth/logout", authHandler.Logout)
		authed.POST("/auth/change-password", authHandler.ChangePassword)
		authed.GET("/auth/me", authHandler.Me)

		authed.GET("/users", userHandler.List)
		authed.GET("/users/:id", userHandler.Get)
		authed.PUT("/users/:id", userHandler.Update)
		authed.GET("/users/:id/roles", membershipHandler.List)

		authed.GET("/posts", postHandler.List)
		authed.GET("/posts/:id", postHandler.Get)
		authed.POST("/posts", postHandler.Create)
		authed.PUT("/posts/:id", postHandler.Update)
		authed.DELETE("/posts/:id", postHandler.Delete)
		authed.GET("/post-categories", postHandler.Categories)

		authed.GET("/tags", tagHandler.List)

		authed.GET("/labs", labHandler.List)
		authed.GET("/labs/:id", labHandler.Get)
		authed.POST("/labs", labHandler.Create)
		authed.PUT("/labs/:id", labHandler.Update)
		authed.DELETE("/labs/:id", labHandler.Delete)

		authed.GET("/projects", projectHandler.List)
		authed.GET("/projects/:id", projectHandler.Get)
		authed.POST("/projects", projectHandler.Create)
		authed.PUT("/projects/:id", projectHandler.Update)
		authed.DELETE("/projects/:id", projectHandler.Delete)
	}

	admin := authed.Group("")
	admin.Use(middleware.RequireAdmin(authz))
	{
		admin.POST("/users", userHandler.Create)
		admin.DELETE("/users/:id", userHandler.Delete)
		admin.POST("/users/:id/restore", userHandler.Restore)

		admin.POST("/users/:id/roles", membershipHandler.Grant)
		admin.POST("/memberships/:membershipId/activate", membershipHandler.Activate)
		admin.POST("/memberships/:membershipId/deactivate", membershipHandler.Deactivate)

		admin.POST("/posts/bulk/publish", postHandler.BulkPublish)
		admin.POST("/posts/bulk/unpublish", postHandler.BulkUnpublish)
		admin.POST("/posts/bulk/delete", postHandler.BulkDelete)
		admin.POST("/posts/:id/restore", postHandler.Restore)

		admin.POST("/tags/merge", tagHandler.Merge)
		admin.POST("/tags/:id/split", tagHandler.Split)

		admin.GET("/dashboard", dashboardHandler.Summary)
		admin.GET("/activity", activityHandler.List)
		admin.GET("/admin/metrics", metricsHandler.Snapshot)

		if cfg.Exports.Enabled {
			exports := admin.Group("/exports", middleware.Audit(activitySvc, models.ActivityExportDownloaded, "export"))
			exports.GET("/posts", exportHandler.Posts)
			exports.GET("/users", exportHandler.Users)
			exports.GET("/activity", exportHandler.Activity)
		}
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Warn("graceful shutdown failed", zap.Error(err))
	}
}
