package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"kompetisi/internal/cloudinary"
	"kompetisi/internal/competition"
	"kompetisi/internal/config"
	"kompetisi/internal/handler"
	"kompetisi/internal/httpmiddleware"
	"kompetisi/internal/logger"
	"kompetisi/internal/queue"
	"kompetisi/internal/registration"
	"kompetisi/internal/store"
)

var version = "dev"

func main() {
	cfg := config.Load()

	if cfg.Production() {
		gin.SetMode(gin.ReleaseMode)
	}

	host, _ := os.Hostname()
	logs := logger.New(nil, logger.Options{
		RollbarToken: cfg.RollbarToken,
		Env:          cfg.Env,
		Host:         host,
		Version:      version,
	})
	defer logs.Close()

	if err := runHTTP(cfg, logs); err != nil {
		logs.Fatal("http server failed", err)
	}
}

func runHTTP(cfg config.App, logs *logger.Logger) error {
	db, err := store.Open(cfg.DBDriver, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	if cfg.DBDriver == store.DriverSQLite {
		if err := store.Migrate(context.Background(), db); err != nil {
			return err
		}
	}

	var redisClient *store.Redis
	if cfg.QueueBackend != "memory" || cfg.RateLimitBackend == "redis" {
		redisClient, err = store.NewRedis(cfg.RedisAddr)
		if err != nil {
			return err
		}
		defer redisClient.Close()
	}

	var q queue.Queue
	if cfg.QueueBackend == "memory" {
		q = queue.NewInMemory(256)
	} else {
		q = queue.NewRedisQueue(redisClient.Client, queue.DefaultKey)
	}

	var limiter httpmiddleware.Limiter
	if cfg.RateLimitBackend == "redis" {
		limiter = httpmiddleware.NewRedisWindow(redisClient.Client, cfg.RateLimitPerMin)
	} else {
		limiter = httpmiddleware.NewSimpleTokenBucket(cfg.RateLimitPerMin, cfg.RateLimitPerMin)
	}

	// Cloudinary client (nil when not configured)
	var uploader handler.Uploader
	if cfg.CloudinaryConfigured() {
		uploader = cloudinary.New(cfg.CloudinaryCloudName, cfg.CloudinaryAPIKey, cfg.CloudinaryAPISecret, cfg.CloudinaryFolder)
		logs.Info("cloudinary configured: " + cfg.CloudinaryCloudName)
	} else {
		logs.Info("cloudinary not configured (CLOUDINARY_CLOUD_NAME / API_KEY / API_SECRET not set), KTM uploads disabled")
	}

	h := handler.New(handler.Deps{
		Registrations: registration.NewService(
			registration.NewRepository(db),
			registration.WithDefaultUniversity(cfg.DefaultUniversity),
		),
		Competitions: competition.NewService(competition.NewRepository(db)),
		Queue:        q,
		Uploader:     uploader,
		Log:          logs,
	})

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		SkipPaths: []string{"/healthz", "/metrics"},
	}))
	r.Use(httpmiddleware.RequestID())
	r.Use(corsMiddleware(cfg.CORSOrigins))
	r.Use(httpmiddleware.SecurityHeaders())
	r.Use(httpmiddleware.RateLimit(limiter))

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.GET("/healthz", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		dbHealthy := db.PingContext(ctx) == nil
		body := gin.H{"status": "ok", "db": dbHealthy, "version": version}
		healthy := dbHealthy
		if redisClient != nil {
			redisHealthy := redisClient.Healthy(ctx)
			body["redis"] = redisHealthy
			healthy = healthy && redisHealthy
		}
		if rq, ok := q.(*queue.RedisQueue); ok {
			if queued, dead, err := rq.Pending(ctx); err == nil {
				body["events"] = gin.H{"queued": queued, "dead": dead}
			}
		}
		status := http.StatusOK
		if !healthy {
			status = http.StatusServiceUnavailable
			body["status"] = "degraded"
		}
		c.JSON(status, body)
	})

	h.Routes(r, cfg.JWTSigningKey, cfg.JWTIssuer)

	// Graceful shutdown
	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logs.Info("starting server on :" + cfg.HTTPPort)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errCh:
		return err
	case <-quit:
	}
	logs.Info("shutting down server...")

	// Give outstanding requests 10 seconds to complete
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logs.Warn("server forced shutdown", err)
	}

	logs.Info("server exited")
	return nil
}

// CORS for the browser dashboard. Credentials are only allowed for an
// explicit origin list.
func corsMiddleware(origins []string) gin.HandlerFunc {
	cfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept", "Authorization", httpmiddleware.RequestIDHeader},
		ExposeHeaders: []string{httpmiddleware.RequestIDHeader},
		MaxAge:        24 * time.Hour,
	}
	wildcard := len(origins) == 0
	for _, o := range origins {
		if o == "*" {
			wildcard = true
		}
	}
	if wildcard {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = origins
		cfg.AllowCredentials = true
	}
	return cors.New(cfg)
}
