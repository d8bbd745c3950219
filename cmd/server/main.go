package main // Entry point package

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/staymarket/internal/config"
	"github.com/iliyamo/staymarket/internal/database"
	"github.com/iliyamo/staymarket/internal/feed"
	"github.com/iliyamo/staymarket/internal/handler"
	"github.com/iliyamo/staymarket/internal/logging"
	"github.com/iliyamo/staymarket/internal/mail"
	"github.com/iliyamo/staymarket/internal/metrics"
	"github.com/iliyamo/staymarket/internal/middleware"
	"github.com/iliyamo/staymarket/internal/model"
	"github.com/iliyamo/staymarket/internal/queue"
	"github.com/iliyamo/staymarket/internal/repository"
	"github.com/iliyamo/staymarket/internal/router"
	"github.com/iliyamo/staymarket/internal/service"
)

func main() {
	_ = godotenv.Load() // .env is optional; real env wins

	cfg := config.Load()
	log := logging.New(cfg.Env, cfg.LogLevel)
	logrus.SetFormatter(log.Formatter) // config helpers log through the std logger
	logrus.SetLevel(log.Level)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.Open(cfg.DB)
	if err != nil {
		log.WithError(err).Fatal("database open failed")
	}
	defer db.Close()
	if cfg.Migrate {
		if err := database.Migrate(ctx, db); err != nil {
			log.WithError(err).Fatal("migration failed")
		}
	}

	rdb := config.NewRedisClient(log)
	if rdb != nil {
		defer rdb.Close()
	}
	cacheCfg := config.LoadCacheConfig()

	// Live feed: Redis Pub/Sub across instances, in-process otherwise.
	var bus feed.Bus
	if rdb != nil {
		bus = feed.NewRedisBus(rdb)
	} else {
		log.Warn("redis unavailable, live feed limited to this instance")
		local := feed.NewLocalBus()
		defer local.Close()
		bus = local
	}
	hub := feed.NewHub(bus, log)
	hub.OnOpen = metrics.SubscriptionOpened
	hub.OnClose = metrics.SubscriptionClosed
	notifier := middleware.CacheBuster{Next: hub, Redis: rdb, Cfg: cacheCfg, Log: log}

	var events service.EventPublisher
	if cfg.RabbitURL != "" {
		pub := queue.NewPublisher(cfg.RabbitURL)
		defer pub.Close()
		events = pub
		consumer := &queue.Consumer{URL: cfg.RabbitURL, LogPath: cfg.EventLogPath, Log: log}
		go func() {
			if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.WithError(err).Error("event consumer stopped")
			}
		}()
	} else {
		log.Info("rabbitmq disabled, domain events are not published")
	}

	accounts := repository.NewAccountRepo(db)
	profiles := repository.NewUserRepo(db)
	appeals := repository.NewAppealRepo(db)
	listings := repository.NewListingRepo(db)
	bookings := repository.NewBookingRepo(db)

	resolver := service.NewResolver(profiles, log)
	accountSvc := service.NewAccountService(cfg, service.AccountDeps{
		Accounts: accounts,
		Profiles: profiles,
		Refresh:  repository.NewTokenRepo(db),
		Verify:   repository.NewVerificationRepo(db),
		Mailer:   mail.New(config.LoadMailConfig(), log),
		Roles:    resolver,
		Notifier: notifier,
		Events:   events,
		Log:      log,
	})
	appealSvc := service.NewAppealService(appeals, profiles, notifier, events, log, nil)
	appealSvc.OnDecision = func(d model.Decision) { metrics.ObserveDecision(string(d)) }
	appealSvc.Guard = accountSvc
	catalogSvc := service.NewCatalogService(listings, bookings, notifier, events, log, nil)
	catalogSvc.OnBooking = func(b *model.Booking) { metrics.ObserveBooking(b.Nights) }
	catalogSvc.Guard = accountSvc
	adminSvc := service.NewAdminService(accounts, profiles, notifier, events, log, nil)
	adminSvc.AllowProfileOnlyDelete = cfg.DeleteFallback
	adminSvc.Guard = accountSvc

	e := echo.New()
	e.HideBanner = true
	e.Validator = handler.NewRequestValidator()
	e.Use(echomw.Recover())
	e.Use(middleware.RequestLog(log))
	e.Use(middleware.Metrics())
	e.Use(middleware.NewTokenBucket(config.LoadRateLimitConfig(), rdb, log))
	e.Use(middleware.Authenticate(accountSvc, resolver))

	catalogH := handler.NewCatalogHandler(catalogSvc, log)
	appealH := handler.NewAppealHandler(appealSvc, log)
	router.RegisterRoutes(e, db, handler.NewAdminCheck(cfg.AdminUIDs, log))
	router.RegisterAuth(e, handler.NewAuthHandler(accountSvc, log))
	router.RegisterPublic(e, catalogH, middleware.NewRedisCache(cacheCfg, rdb))
	router.RegisterAccount(e, handler.NewAccountHandler(accountSvc, log), appealH, catalogH)
	router.RegisterHost(e, catalogH)
	router.RegisterAdmin(e, appealH, handler.NewAdminHandler(adminSvc, log))
	router.RegisterLive(e, handler.NewLiveHandler(hub, catalogSvc, appealSvc, adminSvc, cfg.AllowedOrigins, log))

	addr := ":" + cfg.Port
	go func() {
		log.WithFields(logrus.Fields{"addr": addr, "env": cfg.Env}).Info("listening")
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("server failed")
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("graceful shutdown failed")
	}
}
