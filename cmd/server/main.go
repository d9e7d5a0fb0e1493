package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"clanforge/backend/internal/cleanup"
	"clanforge/backend/internal/config"
	"clanforge/backend/internal/database"
	"clanforge/backend/internal/handler"
	"clanforge/backend/internal/hub"
	"clanforge/backend/internal/lobby"
	"clanforge/backend/internal/logger"
	"clanforge/backend/internal/metrics"
	"clanforge/backend/internal/middleware"
	"clanforge/backend/internal/user"
	"clanforge/backend/pkg/jwt"

	// Swagger imports
	_ "clanforge/backend/docs" // This is important for swag to find the generated docs
)

// @title           ClanForge API
// @version         1.0
// @description     Lobby matchmaking for campus squads: hackathons, games, sports and study groups.
// @host            localhost:8080
// @BasePath        /api/v1
// @securityDefinitions.apiKey BearerAuth
// @in header
// @name Authorization
func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	zl, err := logger.New(cfg.AppEnv)
	if err != nil {
		log.Fatalf("failed to create logger: %v", err)
	}
	defer zl.Sync()

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, zl); err != nil {
		zl.Fatal("server stopped", zap.Error(err))
	}
}

type storage struct {
	lobbies interface {
		lobby.Store
		lobby.Counter
	}
	users user.Store
	otps  user.OTPStore
	rdb   *redis.Client
}

func openStorage(cfg *config.Config, zl *zap.Logger) (*storage, error) {
	if cfg.StorageDriver == config.StorageDriverMemory {
		zl.Warn("using in-memory storage, data is lost on restart")
		return &storage{
			lobbies: lobby.NewMemoryStore(),
			users:   user.NewMemoryStore(),
			otps:    user.NewMemoryOTPStore(),
		}, nil
	}

	db, err := database.Connect(cfg.DatabaseURL, zl)
	if err != nil {
		return nil, err
	}

	rdb, err := database.ConnectRedis(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, zl)
	if err != nil {
		return nil, err
	}

	return &storage{
		lobbies: database.NewLobbyStore(db),
		users:   database.NewUserStore(db),
		otps:    user.NewRedisOTPStore(rdb),
		rdb:     rdb,
	}, nil
}

func run(ctx context.Context, cfg *config.Config, zl *zap.Logger) error {
	store, err := openStorage(cfg, zl)
	if err != nil {
		return err
	}
	if store.rdb != nil {
		defer store.rdb.Close()
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	collector := metrics.NewCollector(registry)

	events := hub.NewHub(zl.Named("hub"))
	events.SetObserver(collector)
	if store.rdb != nil {
		relay := hub.NewRelay(store.rdb, events, zl.Named("relay"))
		go func() {
			if err := relay.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				zl.Error("event relay stopped", zap.Error(err))
			}
		}()
	}

	lobbies := lobby.NewService(store.lobbies, store.lobbies, events, zl.Named("lobby")).
		WithRecorder(collector)

	var mailer user.Mailer
	if cfg.MailEnabled() {
		mailer = user.NewSMTPMailer(user.SMTPConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUser,
			Password: cfg.SMTPPass,
			From:     cfg.MailFrom,
		}, zl.Named("mail"))
	} else {
		zl.Warn("SMTP_USER not set, verification codes are written to the log")
		mailer = user.NewLogMailer(zl.Named("mail"))
	}

	tokens := jwt.NewIssuer(cfg.JWTSecret, cfg.JWTTTL)
	users := user.NewService(store.users, store.otps, mailer, tokens, lobbies, zl.Named("user")).
		WithOTPTTL(cfg.OTPTTL)
	if cfg.GoogleClientID != "" {
		users = users.WithGoogle(user.NewIDTokenVerifier(cfg.GoogleClientID))
	}

	if cfg.CleanupSchedule != "" {
		c, err := cleanup.Start(cfg.CleanupSchedule, cleanup.NewJob(lobbies, cfg.LobbyRetention, zl.Named("cleanup")))
		if err != nil {
			return err
		}
		defer c.Stop()
	}

	limiter := middleware.NewRateLimiter(middleware.RateLimiterConfig{
		Rate:  rate.Limit(cfg.RateLimitRPS),
		Burst: cfg.RateLimitBurst,
	}, zl.Named("ratelimit"))
	defer limiter.Stop()

	router := handler.NewRouter(handler.RouterConfig{
		Lobbies:     lobbies,
		Users:       users,
		Hub:         events,
		Tokens:      tokens,
		Origins:     cfg.AllowedOrigins(),
		Logger:      zl,
		AuthLimiter: limiter,
		Gatherer:    registry,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		zl.Info("Server is running", zap.String("addr", srv.Addr), zap.String("storage", cfg.StorageDriver))
		zl.Info("Swagger UI is available at http://localhost:" + cfg.Port + "/swagger/index.html")
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

	zl.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
