// Package app wires configuration, storage, services and transports into
// a runnable server.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/iliyamo/setlist-vote/internal/config"
	"github.com/iliyamo/setlist-vote/internal/database"
	"github.com/iliyamo/setlist-vote/internal/handler"
	"github.com/iliyamo/setlist-vote/internal/logging"
	"github.com/iliyamo/setlist-vote/internal/middleware"
	"github.com/iliyamo/setlist-vote/internal/queue"
	"github.com/iliyamo/setlist-vote/internal/realtime"
	"github.com/iliyamo/setlist-vote/internal/repository"
	"github.com/iliyamo/setlist-vote/internal/router"
	"github.com/iliyamo/setlist-vote/internal/service"
)

// App is the assembled server.
type App struct {
	cfg       config.Config
	log       *logrus.Logger
	db        *sql.DB
	rdb       *redis.Client
	e         *echo.Echo
	hub       *realtime.Hub
	tracker   *realtime.Tracker
	publisher *queue.Publisher
	consumer  *queue.Consumer
	trending  *service.TrendingService
	lifecycle *service.LifecycleService
}

// New connects to MySQL and Redis, applies the schema and builds every
// component.  RabbitMQ is optional: without RABBITMQ_URL events are only
// delivered to this instance's sockets.
func New(ctx context.Context, cfg config.Config, log *logrus.Logger) (*App, error) {
	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		return nil, fmt.Errorf("open mysql: %w", err)
	}
	if err := database.Migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	rdb, err := config.NewRedisClient(ctx)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("connect redis: %w", err)
	}

	a := &App{cfg: cfg, log: log, db: db, rdb: rdb}

	showRepo := repository.NewShowRepo(db)
	setlistRepo := repository.NewSetlistRepo(db)
	voteRepo := repository.NewVoteRepo(db)

	a.hub = realtime.NewHub(log.WithField("component", "hub"), nil)
	var pub realtime.EventPublisher = a.hub
	if cfg.AMQPURL != "" {
		a.publisher = queue.NewPublisher(cfg.AMQPURL, cfg.RealtimeExchange, log.WithField("component", "publisher"))
		a.consumer = queue.NewConsumer(cfg.AMQPURL, cfg.RealtimeExchange, log.WithField("component", "consumer"))
		pub = a.publisher
	} else {
		log.Warn("RABBITMQ_URL not set; realtime events stay on this instance")
	}
	notifier := realtime.NewNotifier(pub)

	presence := realtime.NewPresenceStore(rdb, cfg.PresenceTTL)
	a.tracker = realtime.NewTracker(presence, notifier, log.WithField("component", "presence"))
	a.hub.SetLeaveFunc(a.tracker.LastConnectionClosed)

	votes := service.NewVoteService(voteRepo, notifier, log.WithField("component", "votes"), service.VoteConfig{
		ShowCap:   cfg.ShowVoteCap,
		DailyCap:  cfg.DailyVoteCap,
		TxTimeout: cfg.VoteTxTimeout,
		DayZone:   cfg.VoteDayZone,
	})
	a.trending = service.NewTrendingService(showRepo, log.WithField("component", "trending"), cfg.TrendingWindowDays, cfg.TrendingConcurrency)
	a.lifecycle = service.NewLifecycleService(showRepo, log.WithField("component", "lifecycle"), cfg.ShowDuration)

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(echomw.Recover())
	e.Use(echomw.RequestID())
	e.Use(logging.RequestLogger(log))

	router.Register(e, router.Deps{
		Shows: &handler.ShowHandler{Shows: showRepo, Setlists: setlistRepo},
		Votes: &handler.VoteHandler{Votes: votes, Log: log},
		Presence: &handler.PresenceHandler{
			Presence:     a.tracker,
			Socket:       a.hub,
			HeartbeatGap: cfg.PresenceTTL / 3,
			Log:          log,
		},
		Cron: &handler.CronHandler{Trending: a.trending, Lifecycle: a.lifecycle, Log: log},
		Ready: handler.Ready(map[string]handler.Pinger{
			"mysql": db.PingContext,
			"redis": func(ctx context.Context) error { return rdb.Ping(ctx).Err() },
		}),
		JWTSecret: cfg.JWTSecret,
		CronHash:  cfg.CronSecretHash,
		Cache:     middleware.NewRedisCache(config.LoadCacheConfig(), rdb, log),
		RateLimit: middleware.NewTokenBucket(config.LoadRateLimitConfig(), rdb, log),
	})
	a.e = e
	return a, nil
}

// Run serves HTTP and runs the background loops until ctx is cancelled or
// one of them fails.
func (a *App) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error { return a.hub.Run(ctx) })

	if a.consumer != nil {
		g.Go(func() error { return a.consumer.Run(ctx, a.hub.Dispatch) })
	}

	g.Go(func() error {
		return service.RunPeriodically(ctx, a.log, "trending", a.cfg.TrendingInterval, func(ctx context.Context) error {
			_, err := a.trending.Run(ctx)
			return err
		})
	})
	g.Go(func() error {
		return service.RunPeriodically(ctx, a.log, "show-status", a.cfg.TrendingInterval, func(ctx context.Context) error {
			_, err := a.lifecycle.Advance(ctx)
			return err
		})
	})
	g.Go(func() error {
		return service.RunPeriodically(ctx, a.log, "presence-sweep", a.cfg.PresenceSweepInterval, func(ctx context.Context) error {
			_, err := a.tracker.Sweep(ctx)
			return err
		})
	})

	g.Go(func() error {
		a.log.WithField("addr", ":"+a.cfg.Port).Info("starting server")
		if err := a.e.Start(":" + a.cfg.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := a.e.Shutdown(shutdownCtx); err != nil {
			a.log.WithError(err).Error("error stopping server")
			return err
		}
		return nil
	})

	return g.Wait()
}

// Close releases the connections opened by New.
func (a *App) Close() error {
	var errs []error
	if a.publisher != nil {
		errs = append(errs, a.publisher.Close())
	}
	errs = append(errs, a.rdb.Close(), a.db.Close())
	return errors.Join(errs...)
}
