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
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/enroll-api/api/swagger"
	"github.com/noah-isme/enroll-api/internal/handler"
	"github.com/noah-isme/enroll-api/internal/middleware"
	"github.com/noah-isme/enroll-api/internal/models"
	"github.com/noah-isme/enroll-api/internal/repository"
	"github.com/noah-isme/enroll-api/internal/service"
	"github.com/noah-isme/enroll-api/pkg/cache"
	"github.com/noah-isme/enroll-api/pkg/config"
	"github.com/noah-isme/enroll-api/pkg/database"
	"github.com/noah-isme/enroll-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/enroll-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/enroll-api/pkg/middleware/requestid"
)

// @title Enrollment Platform API
// @version 1.0.0
// @description Course enrollment platform: identity, catalog, roster, enrollment ledger
// @BasePath /api
// @schemes http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

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

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close()

	var cacheRepo *repository.CacheRepository
	if cfg.Cache.Enabled {
		redisClient, err := cache.NewRedis(cfg.Redis)
		if err != nil {
			logr.Sugar().Warnw("redis unavailable, catalog cache disabled", "error", err)
		} else {
			defer redisClient.Close()
			cacheRepo = repository.NewCacheRepository(redisClient, logr)
		}
	}

	userRepo := repository.NewUserRepository(db)
	studentRepo := repository.NewStudentRepository(db)
	courseRepo := repository.NewCourseRepository(db)
	enrollmentRepo := repository.NewEnrollmentRepository(db)

	metricsSvc := service.NewMetricsService()
	authSvc := service.NewAuthService(userRepo, studentRepo, nil, logr, service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		Issuer:             "enroll-api",
		SingleSession:      false,
	})
	studentSvc := service.NewStudentService(studentRepo, userRepo, nil, logr)
	// A nil *CacheRepository must not reach the service as a non-nil interface,
	// or every catalog read would count as a cache miss.
	var courseSvc *service.CourseService
	if cacheRepo != nil {
		courseSvc = service.NewCourseService(courseRepo, studentRepo, cacheRepo, metricsSvc, cfg.Cache.CatalogTTL, nil, logr)
	} else {
		courseSvc = service.NewCourseService(courseRepo, studentRepo, nil, nil, 0, nil, logr)
	}
	enrollmentSvc := service.NewEnrollmentService(enrollmentRepo, studentRepo, courseRepo, userRepo, logr)

	authHandler := handler.NewAuthHandler(authSvc)
	studentHandler := handler.NewStudentHandler(studentSvc)
	courseHandler := handler.NewCourseHandler(courseSvc)
	enrollmentHandler := handler.NewEnrollmentHandler(enrollmentSvc)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/ready", func(c *gin.Context) {
		if err := db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", gin.WrapH(metricsSvc.Handler()))

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)

	auth := api.Group("/auth")
	{
		auth.POST("/register", authHandler.Register)
		auth.POST("/login", authHandler.Login)
		auth.POST("/refresh", authHandler.Refresh)
		auth.POST("/logout", middleware.JWT(authSvc), authHandler.Logout)
	}

	adminOnly := middleware.RequireRoles(models.RoleAdmin)
	studentOnly := middleware.RequireRoles(models.RoleStudent)

	courses := api.Group("/courses", middleware.JWT(authSvc))
	{
		courses.GET("", courseHandler.List)
		courses.POST("", adminOnly, middleware.Audit(userRepo, "course.create", "courses"), courseHandler.Create)
		courses.GET("/student-view", studentOnly, courseHandler.StudentView)
		courses.GET("/search-for-student", adminOnly, courseHandler.SearchForStudent)
		courses.GET("/:id/students", adminOnly, enrollmentHandler.CourseStudents)
		courses.PUT("/:id", adminOnly, middleware.Audit(userRepo, "course.update", "courses"), courseHandler.Update)
		courses.DELETE("/:id", adminOnly, middleware.Audit(userRepo, "course.delete", "courses"), courseHandler.Delete)
	}

	students := api.Group("/students", middleware.JWT(authSvc))
	{
		students.GET("", adminOnly, studentHandler.List)
		students.POST("", adminOnly, studentHandler.Create)
		students.GET("/search", adminOnly, studentHandler.Search)
		students.GET("/user/:userId", middleware.RBAC(string(models.RoleAdmin), "SELF"), studentHandler.GetByUserID)
		students.GET("/:id/courses", adminOnly, enrollmentHandler.StudentCourses)
		students.PUT("/:id", middleware.RequireRoles(models.RoleAdmin, models.RoleStudent), studentHandler.Update)
		students.DELETE("/:id", adminOnly, studentHandler.Delete)
	}

	enrollments := api.Group("/enrollments", middleware.JWT(authSvc))
	{
		enrollments.POST("", studentOnly, enrollmentHandler.Enroll)
		enrollments.DELETE("/:courseId", studentOnly, enrollmentHandler.Withdraw)
		enrollments.GET("/my-courses", studentOnly, enrollmentHandler.MyCourses)
		enrollments.GET("", adminOnly, enrollmentHandler.ListAll)
		enrollments.GET("/export", adminOnly, enrollmentHandler.Export)
		enrollments.POST("/admin", adminOnly, enrollmentHandler.AdminEnroll)
		enrollments.DELETE("/admin/:studentId/:courseId", adminOnly, enrollmentHandler.AdminWithdraw)
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Sugar().Infow("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("graceful shutdown failed", "error", err)
	}
	logr.Info("server stopped", zap.String("addr", addr))
}
