package app

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"chainvend.com/internal/config"
	"chainvend.com/internal/handler"
	vhttp "chainvend.com/internal/http"
	"chainvend.com/internal/jobs"
	monitorrepo "chainvend.com/internal/monitor/repo"
	monitorservice "chainvend.com/internal/monitor/service"
	"chainvend.com/internal/provider"
	purchaserepo "chainvend.com/internal/purchase/repo"
	purchaseservice "chainvend.com/internal/purchase/service"
	vipConfig "chainvend.com/pkg/config"
	"chainvend.com/pkg/logger"
	"chainvend.com/pkg/metrics"
	"chainvend.com/pkg/orm"
	"chainvend.com/pkg/ratelimit"
	"chainvend.com/pkg/safe"
	"chainvend.com/pkg/trace"
	"chainvend.com/pkg/xhttp"
	"chainvend.com/pkg/xredis"
)

type App struct {
	ctx          context.Context
	cfg          *config.Config
	db           *gorm.DB
	rdb          *redis.Client
	handlers     vhttp.Handlers
	jobs         *jobs.Runner
	scheduler    *monitorservice.Scheduler
	closers      []func()
	treeShutDown func(context.Context) error
}

func New(configName string) (*App, error) {
	if configName == "" {
		configName = "vend-service"
	}
	cfg := &config.Config{}
	if _, err := vipConfig.LoadAndWatch(configName, cfg); err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return &App{cfg: cfg}, nil
}

// StartService connects storage, wires every component and starts the background loops.
// The returned func releases what was opened.
func (app *App) StartService(ctx context.Context) (func(), error) {
	logger.Init(app.cfg.Name, app.cfg.LogLevel)
	metrics.MustRegister()
	app.ctx = ctx

	app.startTrace()
	app.startStorage()

	if err := app.wire(ctx); err != nil {
		app.cleanUp()
		return nil, err
	}
	app.jobs.Start()
	if app.scheduler != nil {
		safe.GoCtx(ctx, func(ctx context.Context) { app.scheduler.Run(ctx) })
	}
	return app.cleanUp, nil
}

func (app *App) StartHttp() *http.Server {
	engine := vhttp.NewEngine(app.ctx, app.cfg.Name, app.cfg.HTTP, app.handlers)
	return vhttp.NewServer(app.cfg.HTTP.Addr, engine)
}

func (app *App) cleanUp() {
	if app.jobs != nil {
		app.jobs.Stop()
	}
	for i := len(app.closers) - 1; i >= 0; i-- {
		app.closers[i]()
	}
	if app.rdb != nil {
		_ = app.rdb.Close()
	}
	if app.db != nil {
		if sqlDB, err := app.db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}
	if app.treeShutDown != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = app.treeShutDown(shutdownCtx)
	}
	logger.Sync()
}

func (app *App) startTrace() {
	shutdown, err := trace.InitTrace(app.cfg.Name, app.cfg.Trace.Host, app.cfg.Trace.SampleRatio)
	if err != nil {
		log.Fatal("init tracer error", err)
	}
	app.treeShutDown = shutdown
}

func (app *App) startStorage() {
	app.db = orm.NewMySQL(&orm.Config{
		DSN:         app.cfg.Mysql.DataSource,
		MaxIdle:     app.cfg.Mysql.MaxIdle,
		MaxOpen:     app.cfg.Mysql.MaxOpen,
		MaxLifetime: app.cfg.Mysql.MaxLifetime,
		LogLevel:    app.cfg.Mysql.LogLevel,
	})
	app.rdb = xredis.NewRedis(&xredis.Config{
		Addr:     app.cfg.Redis.Addr,
		Password: app.cfg.Redis.Password,
		DB:       app.cfg.Redis.DB,
	})
	safe.GoCtx(app.ctx, func(ctx context.Context) { orm.ReportPoolStats(ctx, app.db, 15*time.Second) })
	safe.GoCtx(app.ctx, func(ctx context.Context) { xredis.ReportPoolStats(ctx, app.rdb, 15*time.Second) })
}

func (app *App) wire(ctx context.Context) error {
	cfg := app.cfg
	models := append(purchaserepo.Models(), monitorrepo.Models()...)
	models = append(models, custodyModels()...)
	if err := orm.Migrate(app.db, models...); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	breakers := ratelimit.NewManager(cfg.Name, ratelimit.Rule{
		TripConsecutiveFailures: 5,
		Timeout:                 30 * time.Second,
	}, nil)
	registry, err := newRegistry(cfg.Chains, breakers)
	if err != nil {
		return err
	}

	rates := newConverter(cfg.Pricing, app.rdb)
	fulfiller := provider.New(xhttp.New(cfg.Provider.Timeout), provider.Options{
		BaseURL:     cfg.Provider.BaseURL,
		UserID:      cfg.Provider.UserID,
		APIKey:      cfg.Provider.APIKey,
		CallbackURL: cfg.Provider.CallbackURL,
		PlanTTL:     cfg.Provider.PlanTTL,
		Breakers:    breakers,
	})
	engine := purchaseservice.NewEngine(purchaserepo.New(app.db), registry, rates, fulfiller, cfg.Purchase)
	app.handlers.Purchase = handler.NewPurchase(engine)
	app.handlers.Catalog = handler.NewCatalog(fulfiller)

	app.jobs = jobs.NewRunner(ctx)
	for _, j := range []jobs.Job{
		jobs.RefreshRates(rates, cfg.Pricing.TTL),
		jobs.WarmPlans(fulfiller, cfg.Provider.PlanTTL),
	} {
		if err := app.jobs.Add(j); err != nil {
			return err
		}
	}

	custody, wallets, closeCustody, err := newCustody(ctx, cfg, app.db)
	if err != nil {
		return err
	}
	app.closers = append(app.closers, closeCustody)
	if custody == nil {
		logger.Warn(ctx, "custody disabled: mnemonic or encryption secret missing")
		return nil
	}
	app.handlers.Wallet = handler.NewWallet(custody)

	leader := xredis.NewRedisLockMaster(app.rdb)
	payments := monitorrepo.New(app.db)
	app.scheduler = monitorservice.NewScheduler(payments, registry, leader, cfg.Monitor)
	app.handlers.Merchant = handler.NewMerchant(monitorservice.NewPayments(
		payments, wallets, rates, app.scheduler, cfg.Purchase.TolerancePercent, cfg.Monitor.PaymentTTL))

	logger.Info(ctx, "service wired",
		zap.Int("chains", len(cfg.Chains.Networks)),
		zap.Bool("custody", true),
	)
	return nil
}
