package main // Entry point package

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	"github.com/iliyamo/eventease/internal/config"
	"github.com/iliyamo/eventease/internal/database"
	"github.com/iliyamo/eventease/internal/handler"
	"github.com/iliyamo/eventease/internal/ledger"
	"github.com/iliyamo/eventease/internal/logger"
	"github.com/iliyamo/eventease/internal/middleware"
	"github.com/iliyamo/eventease/internal/model"
	"github.com/iliyamo/eventease/internal/queue"
	"github.com/iliyamo/eventease/internal/repository"
	"github.com/iliyamo/eventease/internal/router"
	"github.com/iliyamo/eventease/internal/service"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.New(logger.Config{Service: "eventease-api"}).Fatal("load config", "error", err)
	}
	log := logger.New(logger.Config{Level: cfg.LogLevel, Format: cfg.LogFormat, Service: "eventease-api"})

	dialect, err := database.ParseDialect(cfg.DBDriver)
	if err != nil {
		log.Fatal("database driver", "error", err)
	}
	db, err := database.Open(database.Options{
		Dialect: dialect,
		DSN:     cfg.DBDSN,
		User:    cfg.DBUser,
		Pass:    cfg.DBPass,
		Host:    cfg.DBHost,
		Port:    cfg.DBPort,
		Name:    cfg.DBName,
		Path:    cfg.DBPath,
	})
	if err != nil {
		log.Fatal("open database", "dialect", dialect, "error", err)
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := db.Migrate(ctx); err != nil {
		log.Fatal("migrate database", "error", err)
	}

	users := repository.NewUserRepo(db)
	tokens := repository.NewTokenRepo(db)
	events := repository.NewEventRepo(db)
	bookings := repository.NewBookingRepo(db)
	promoteAdmins(ctx, users, cfg.AdminEmails, log)

	opts := []ledger.Option{
		ledger.WithMaxIDAttempts(cfg.MaxIDAttempts),
		ledger.WithObserver(ledger.LoggingObserver{Log: log}),
	}
	if cfg.EventsEnabled {
		pub := queue.NewPublisher(queue.AMQPDialer(cfg.RabbitMQURL), log)
		defer pub.Close()
		opts = append(opts, ledger.WithObserver(pub))
	}
	bookingLedger := ledger.New(db, events, bookings, log, opts...)

	rdsCfg, err := config.LoadRedisConfig()
	if err != nil {
		log.Fatal("redis config", "error", err)
	}
	rlCfg, err := config.LoadRateLimitConfig()
	if err != nil {
		log.Fatal("rate limit config", "error", err)
	}
	cacheCfg, err := config.LoadCacheConfig()
	if err != nil {
		log.Fatal("cache config", "error", err)
	}
	rdb := config.NewRedisClient(rdsCfg)
	if rdb == nil {
		log.Warn("redis unavailable; rate limiting and response cache disabled")
	} else {
		defer rdb.Close()
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = handler.NewRequestValidator()
	e.Use(echomw.Recover())
	e.Use(middleware.RequestLogger(log))

	router.RegisterRoutes(e, db)
	router.RegisterAuth(e, handler.NewAuthHandler(cfg, users, tokens, log), cfg.JWTSecret)
	router.RegisterEvents(e,
		handler.NewEventHandler(service.NewEventService(events, log)),
		cfg.JWTSecret,
		middleware.NewRedisCache(cacheCfg, rdb, log))
	router.RegisterBookings(e,
		handler.NewBookingHandler(service.NewBookingService(bookingLedger, log)),
		cfg.JWTSecret,
		middleware.NewTokenBucket(rlCfg, rdb, log))

	addr := ":" + cfg.Port
	go func() {
		log.Info("listening", "addr", addr, "env", cfg.Env, "dialect", dialect)
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("http server", "error", err)
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown", "error", err)
	}
}

// promoteAdmins grants ADMIN to already registered users listed in
// ADMIN_EMAILS.  Unknown emails are skipped; they get the role when they
// register.
func promoteAdmins(ctx context.Context, users *repository.UserRepo, emails []string, log *logger.Logger) {
	for _, email := range emails {
		u, err := users.GetByEmail(ctx, email)
		if errors.Is(err, repository.ErrUserNotFound) {
			continue
		}
		if err != nil {
			log.Warn("promote admin: lookup failed", "email", email, "error", err)
			continue
		}
		if u.Role == model.RoleAdmin {
			continue
		}
		if err := users.SetRole(ctx, u.ID, model.RoleAdmin); err != nil {
			log.Warn("promote admin failed", "user_id", u.ID, "error", err)
			continue
		}
		log.Info("user promoted to admin", "user_id", u.ID)
	}
}
