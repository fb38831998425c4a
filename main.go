package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	apirest "github.com/kasuganosora/fracturesim/api/rest"
	"github.com/kasuganosora/fracturesim/api/sse"
	"github.com/kasuganosora/fracturesim/audit"
	"github.com/kasuganosora/fracturesim/cache"
	"github.com/kasuganosora/fracturesim/config"
	dbadapter "github.com/kasuganosora/fracturesim/db"
	"github.com/kasuganosora/fracturesim/game/actor"
	"github.com/kasuganosora/fracturesim/game/combat"
	"github.com/kasuganosora/fracturesim/game/faction"
	"github.com/kasuganosora/fracturesim/game/item"
	"github.com/kasuganosora/fracturesim/game/ledger"
	"github.com/kasuganosora/fracturesim/game/market"
	"github.com/kasuganosora/fracturesim/game/mission"
	"github.com/kasuganosora/fracturesim/game/npc"
	"github.com/kasuganosora/fracturesim/game/oracle"
	"github.com/kasuganosora/fracturesim/game/sim"
	"github.com/kasuganosora/fracturesim/game/trust"
	"github.com/kasuganosora/fracturesim/game/world"
	mw "github.com/kasuganosora/fracturesim/middleware"
	"github.com/kasuganosora/fracturesim/model"
	"github.com/kasuganosora/fracturesim/resource"
	"github.com/kasuganosora/fracturesim/scheduler"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

func main() {
	cfgPath := "config/config.yaml"
	if len(os.Args) > 1 {
		cfgPath = os.Args[1]
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	// ---- Logger ----
	var logger *zap.Logger
	var logErr error
	if cfg.Server.Debug {
		logger, logErr = zap.NewDevelopment()
	} else {
		logger, logErr = zap.NewProduction()
	}
	if logErr != nil {
		log.Fatalf("logger: %v", logErr)
	}
	defer logger.Sync()

	if cfg.Server.AdminKey == "" {
		logger.Warn("server.admin_key is not set; admin endpoints are disabled")
	}
	if cfg.Security.JWTSecret == "" {
		log.Fatalf("security.jwt_secret is required")
	}

	// ---- Database ----
	db, err := dbadapter.Open(cfg.Database)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	if err := model.AutoMigrate(db); err != nil {
		log.Fatalf("db migrate: %v", err)
	}
	logger.Info("DB initialized", zap.String("mode", cfg.Database.Mode))

	// ---- Audit ----
	auditSvc := audit.New(db, logger)
	defer auditSvc.Stop(context.Background())

	// ---- Cache / PubSub ----
	cacheConfig := cache.CacheConfig{
		RedisAddr:       cfg.Cache.RedisAddr,
		RedisPassword:   cfg.Cache.RedisPassword,
		RedisDB:         cfg.Cache.RedisDB,
		LocalGCInterval: cfg.Cache.LocalGCInterval,
		LocalPubSubBuf:  cfg.Cache.LocalPubSubBuf,
	}
	c, err := cache.NewCache(cacheConfig)
	if err != nil {
		log.Fatalf("cache: %v", err)
	}
	pubsub, err := cache.NewPubSub(cacheConfig)
	if err != nil {
		log.Fatalf("pubsub: %v", err)
	}
	logger.Info("Cache initialized", zap.Bool("redis", cfg.Cache.RedisAddr != ""))

	// ---- Item catalog ----
	loader := resource.NewLoader(cfg.Catalog.Path)
	if err := loader.Load(); err != nil {
		log.Fatalf("catalog: %v", err)
	}
	seeded, err := resource.Seed(context.Background(), db, loader.Catalog, logger)
	if err != nil {
		log.Fatalf("catalog seed: %v", err)
	}
	logger.Info("Catalog seeded", zap.Int("items", seeded.Items), zap.Int("recipes_created", seeded.RecipesCreated))

	// ---- Services ----
	orc := oracle.New(cfg.Oracle, logger)
	ledgerSvc := ledger.NewService(db, decimal.NewFromFloat(cfg.Game.WalletGrant), logger)
	itemSvc := item.NewService(db, logger)
	marketSvc := market.NewService(db, logger)
	trustSvc := trust.NewService(db, logger)
	actorSvc := actor.NewService(db, ledgerSvc, logger)
	missionSvc := mission.NewService(db, cfg.Game.MissionDurationS, logger)
	resolver := combat.NewResolver(db, pubsub, nil, logger)
	worldEng := world.NewEngine(db, orc, world.Config{
		ContextSize:   cfg.Game.EventContextSize,
		DefaultOracle: cfg.Oracle.DefaultProvider,
	}, logger, world.WithPubSub(pubsub), world.WithLog(c))
	npcEng := npc.NewEngine(db, c, orc, trustSvc, marketSvc, npc.Config{
		Parallelism:   cfg.Game.TurnParallelism,
		LockTTL:       cfg.Game.TurnLockTTL,
		Economy:       cfg.Game.NPCEconomy,
		PlayerAction:  secondsOf(cfg.Game.PlayerActionSeconds),
		DefaultOracle: cfg.Oracle.DefaultProvider,
	}, logger, npc.WithPubSub(pubsub))
	factionSvc := faction.NewService(db, orc, logger)
	simulation := sim.New(c, worldEng, npcEng, factionSvc, 0, logger)

	// ---- Scheduler ----
	sched := scheduler.New(logger)
	defer sched.Stop()
	if cfg.Game.TurnInterval > 0 {
		err := sched.AddTicker("world_turn", cfg.Game.TurnInterval, func(ctx context.Context) error {
			rep, err := simulation.Advance(ctx, "")
			if errors.Is(err, sim.ErrTurnInProgress) {
				logger.Debug("world turn already running elsewhere")
				return nil
			}
			if err != nil {
				return err
			}
			logger.Info("world turn",
				zap.Int("actors", len(rep.Turns)),
				zap.Int("factions", len(rep.Factions)),
				zap.Duration("took", rep.Duration))
			return nil
		})
		if err != nil {
			log.Fatalf("scheduler: %v", err)
		}
	}

	// ---- Gin HTTP Server ----
	if !cfg.Server.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(mw.TraceID(), mw.Logger(logger), mw.Recovery(logger))
	r.Use(mw.RateLimit(rate.Limit(cfg.Security.RateLimitRPS), cfg.Security.RateLimitBurst))

	r.GET("/health", func(ctx *gin.Context) {
		ctx.JSON(200, gin.H{"status": "ok"})
	})

	apirest.Register(r, apirest.Deps{
		DB:        db,
		Cache:     c,
		Security:  cfg.Security,
		AdminKey:  cfg.Server.AdminKey,
		Ledger:    ledgerSvc,
		Items:     itemSvc,
		Market:    marketSvc,
		Trust:     trustSvc,
		Combat:    resolver,
		Oracle:    orc,
		Actors:    actorSvc,
		NPC:       npcEng,
		Missions:  missionSvc,
		World:     worldEng,
		Factions:  factionSvc,
		Sim:       simulation,
		Scheduler: sched,
		Audit:     auditSvc,
		Catalog:   loader.Catalog,
		Logger:    logger,
	})

	// ---- SSE ----
	sseH := sse.NewHandler(pubsub, 0, logger)
	r.GET("/sse", sseH.ServeSSE)

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	logger.Info("Server listening", zap.String("addr", addr), zap.Strings("oracles", orc.Providers()))
	if err := r.Run(addr); err != nil {
		log.Fatalf("server: %v", err)
	}
}

func secondsOf(n int) time.Duration { return time.Duration(n) * time.Second }
