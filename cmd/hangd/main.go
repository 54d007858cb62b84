// Command hangd runs the Room Coordination Service: the websocket
// rendezvous point two Hang clients use to create/join a room and relay
// SyncCommand traffic between them.
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"

	"github.com/hangsync/hang/internal/bus"
	"github.com/hangsync/hang/internal/config"
	"github.com/hangsync/hang/internal/hub"
	"github.com/hangsync/hang/internal/logging"
	"github.com/hangsync/hang/internal/middleware"
	"github.com/hangsync/hang/internal/ratelimit"
	"github.com/hangsync/hang/internal/roomregistry"
	"github.com/hangsync/hang/internal/sessionstore"
	"github.com/hangsync/hang/internal/tracing"
)

func loadDotEnv() {
	for _, path := range []string{".env", "../../.env", "../.env"} {
		if err := godotenv.Load(path); err == nil {
			slog.Info("loaded environment file", "path", path)
			return
		}
	}
	slog.Warn("no .env file found in any expected location, relying on environment variables")
}

func main() {
	loadDotEnv()

	cfg, err := config.ValidateEnv()
	if err != nil {
		panic(err)
	}

	if err := logging.Initialize(cfg.Env != "production"); err != nil {
		panic(err)
	}
	ctx := context.Background()

	if cfg.OTELCollectorAddr != "" {
		tp, err := tracing.InitTracer(ctx, "hang-coordinator", cfg.OTELCollectorAddr, cfg.OTELInsecureSkipVerify)
		if err != nil {
			logging.Error(ctx, "failed to initialize tracing, continuing without it", zap.Error(err))
		} else {
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = tp.Shutdown(shutdownCtx)
			}()
		}
	}

	var busSvc *bus.Service
	if cfg.RedisEnabled {
		instanceID := uuid.NewString()
		svc, err := bus.NewService(cfg.RedisAddr, cfg.RedisPassword, instanceID)
		if err != nil {
			logging.Error(ctx, "failed to connect to redis, continuing single-instance", zap.Error(err))
		} else {
			busSvc = svc
		}
	}

	limiter, err := ratelimit.New(cfg, busSvc.Client())
	if err != nil {
		panic(err)
	}

	registry := roomregistry.New()
	sessions := sessionstore.New(cfg.ResumeTokenSecret)
	h := hub.New(registry, sessions, limiter, busSvc, cfg.RoomCleanupGracePeriod, splitOrigins(cfg.AllowedOrigins))

	if cfg.Env != "production" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CorrelationID())
	if cfg.OTELCollectorAddr != "" {
		router.Use(otelgin.Middleware("hang-coordinator"))
	}

	corsConfig := cors.DefaultConfig()
	if cfg.AllowedOrigins != "" {
		corsConfig.AllowOrigins = splitOrigins(cfg.AllowedOrigins)
	} else {
		corsConfig.AllowAllOrigins = true
	}
	router.Use(cors.New(corsConfig))

	router.GET("/", handleIndex)
	router.GET("/ws", h.ServeWs)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/join", handleJoinLanding)
	router.GET("/join/:room_id", handleJoinLanding)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		logging.Info(ctx, "room coordination service starting", zap.String("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.Fatal(ctx, "server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logging.Info(ctx, "shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = h.Shutdown(shutdownCtx)
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logging.Error(ctx, "server forced to shutdown", zap.Error(err))
	}
	if busSvc != nil {
		_ = busSvc.Close()
	}
	logging.Info(ctx, "shutdown complete")
}

func splitOrigins(raw string) []string {
	if raw == "" {
		return nil
	}
	var out []string
	start := 0
	for i := 0; i <= len(raw); i++ {
		if i == len(raw) || raw[i] == ',' {
			if i > start {
				out = append(out, raw[start:i])
			}
			start = i + 1
		}
	}
	return out
}
