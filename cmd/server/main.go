package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"github.com/fathima-sithara/delivery-service/internal/api"
	"github.com/fathima-sithara/delivery-service/internal/auth"
	"github.com/fathima-sithara/delivery-service/internal/cache"
	cfgpkg "github.com/fathima-sithara/delivery-service/internal/config"
	"github.com/fathima-sithara/delivery-service/internal/hub"
	"github.com/fathima-sithara/delivery-service/internal/kafka"
	"github.com/fathima-sithara/delivery-service/internal/media"
	"github.com/fathima-sithara/delivery-service/internal/presence"
	"github.com/fathima-sithara/delivery-service/internal/repository"
	"github.com/fathima-sithara/delivery-service/internal/service"
	"github.com/fathima-sithara/delivery-service/internal/utils"
	"github.com/fathima-sithara/delivery-service/internal/ws"
)

func main() {
	cfg, err := cfgpkg.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		log.Fatalf("config load: %v", err)
	}

	logger, err := utils.NewLogger(cfg.Log.Development, cfg.Log.Level)
	if err != nil {
		log.Fatalf("logger init: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Message store
	var (
		store repository.Store
		dir   repository.Directory
		mc    *mongo.Client
	)
	switch cfg.Store.Driver {
	case "memory":
		logger.Warn("using in-memory message store; messages are lost on restart")
		store = repository.NewMemoryStore()
	default:
		mc, err = connectMongo(ctx, cfg, logger)
		if err != nil {
			logger.Fatal("mongo init", zap.Error(err))
		}
		db := mc.Database(cfg.Mongo.DB)
		ictx, cancel := context.WithTimeout(ctx, cfg.MongoTimeout)
		ms, err := repository.NewMongoStore(ictx, db.Collection(cfg.Mongo.MessagesCollection))
		cancel()
		if err != nil {
			logger.Fatal("mongo indexes", zap.Error(err))
		}
		store = ms
		dir = repository.NewMongoDirectory(db.Collection(cfg.Mongo.UsersCollection))
	}
	store = repository.NewBreakerStore(store, repository.BreakerConfig{
		MaxRequests:         cfg.Breaker.MaxRequests,
		Interval:            cfg.BreakerInterval,
		Timeout:             cfg.BreakerTimeout,
		ConsecutiveFailures: cfg.Breaker.ConsecutiveFailures,
	}, logger)

	h := hub.New(logger)

	// Presence, optionally mirrored to Redis for other services
	listener := presence.Listener(h.PresenceChanged)
	var lastSeen api.LastSeenReader
	if cfg.Redis.Enabled {
		rdb := cache.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		defer rdb.Close()
		ps := cache.NewPresenceStore(rdb, cfg.Redis.Prefix)
		if err := ps.Ping(ctx); err != nil {
			logger.Warn("redis unreachable, presence mirror will retry per write", zap.Error(err))
		}
		mirror := cache.NewMirror(ps, 0, logger)
		go mirror.Run(ctx)
		listener = presence.Fanout(h.PresenceChanged, mirror.Observe)
		lastSeen = ps
	}
	reg := presence.NewRegistry(listener)

	// Lifecycle stream
	var stream service.Stream
	if cfg.Kafka.Enabled {
		kprod := kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.Topic, logger)
		defer func() { _ = kprod.Close() }()
		stream = kprod
	}

	var images *media.ImageService
	if cfg.S3.Enabled {
		s3s, err := media.NewS3Store(ctx, cfg.S3.Region, cfg.S3.Bucket, cfg.S3.PublicRead)
		if err != nil {
			logger.Fatal("s3 init", zap.Error(err))
		}
		images = media.NewImageService(s3s, cfg.S3.MaxUploadBytes)
	}

	var jv *auth.JWTValidator
	if cfg.JWT.Enabled {
		jv, err = auth.New(cfg.JWT.Alg, cfg.JWT.HSSecret, cfg.JWT.PublicKeyPath)
		if err != nil {
			logger.Fatal("jwt init", zap.Error(err))
		}
	} else {
		logger.Warn("authentication disabled; identities are taken from the client")
	}

	contacts := service.NewContactsService(store, dir, h, logger)
	cmd := service.NewCommandService(store, h, contacts, stream, service.Options{
		ReconciliationWindow: cfg.ReconciliationWindow,
		HistoryPageSize:      cfg.Messages.HistoryPageSize,
		HistoryMaxPageSize:   cfg.Messages.HistoryMaxPageSize,
	}, logger)
	relay := service.NewRelayService(h, logger)

	wsrv := ws.NewServer(reg, h, cmd, relay, jv, ws.Settings{
		PingInterval:    cfg.PingInterval,
		WriteDeadline:   cfg.WriteDeadline,
		ReadDeadline:    cfg.ReadDeadline,
		MaxMessageSize:  cfg.WS.MaxMessageSizeBytes,
		SendBuffer:      cfg.WS.SendBuffer,
		RateLimitPerSec: cfg.WS.RateLimitPerSec,
		HandlerTimeout:  cfg.MongoTimeout,
	}, logger)

	app := api.NewServer(api.Deps{
		Commands:       cmd,
		Contacts:       contacts,
		Registry:       reg,
		Images:         images,
		JWT:            jv,
		WS:             wsrv,
		LastSeen:       lastSeen,
		MaxUploadBytes: cfg.S3.MaxUploadBytes,
		RequestTimeout: cfg.MongoTimeout,
	}, logger)

	go func() {
		if err := app.Listen(":" + cfg.App.PortString()); err != nil {
			logger.Fatal("server listen", zap.Error(err))
		}
	}()
	logger.Info("delivery-service started", zap.String("port", cfg.App.PortString()), zap.String("store", cfg.Store.Driver))

	<-ctx.Done()
	logger.Info("shutting down")

	if err := app.ShutdownWithTimeout(cfg.ShutdownTimeout); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}
	if mc != nil {
		dctx, cancel := context.WithTimeout(context.Background(), cfg.MongoTimeout)
		_ = mc.Disconnect(dctx)
		cancel()
	}
	logger.Info("delivery-service stopped")
}

// connectMongo dials and pings Mongo, retrying with exponential backoff until
// MongoConnectRetry elapses.
func connectMongo(ctx context.Context, cfg *cfgpkg.Config, logger *zap.Logger) (*mongo.Client, error) {
	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = cfg.MongoConnectRetry

	var client *mongo.Client
	op := func() error {
		cctx, cancel := context.WithTimeout(ctx, cfg.MongoTimeout)
		defer cancel()
		c, err := mongo.Connect(cctx, options.Client().ApplyURI(cfg.Mongo.URI))
		if err != nil {
			return err
		}
		if err := c.Ping(cctx, nil); err != nil {
			_ = c.Disconnect(context.Background())
			return err
		}
		client = c
		return nil
	}
	notify := func(err error, wait time.Duration) {
		logger.Warn("mongo not ready, retrying", zap.Duration("in", wait), zap.Error(err))
	}
	if err := backoff.RetryNotify(op, backoff.WithContext(bo, ctx), notify); err != nil {
		return nil, err
	}
	return client, nil
}
