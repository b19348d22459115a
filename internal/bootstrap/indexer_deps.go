package bootstrap

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/mongo"

	"indexer_server/adapter/out/entity"
	"indexer_server/adapter/out/indexcore"
	"indexer_server/adapter/out/messaging"
	"indexer_server/adapter/out/mongodb"
	"indexer_server/adapter/out/persistence"
	"indexer_server/adapter/out/realtime"
	"indexer_server/config"
	"indexer_server/core/port/out"
	"indexer_server/core/service/index"
	"indexer_server/infra/database"
	"indexer_server/pkg/crypto"
	"indexer_server/pkg/logger"

	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Dependencies holds every wired adapter and service.
type Dependencies struct {
	Config *config.Config

	DB      *sqlx.DB
	Redis   *redis.Client
	MongoDB *mongo.Client

	Encryptor    *crypto.Encryptor
	EntityClient *entity.Client
	ObjectStore  *persistence.ObjectStoreAdapter
	IndexCore    *indexcore.CoreAdapter
	BodyCache    out.BodyCache

	RealtimeAdapter *realtime.SSEAdapter
	SSEHub          *realtime.SSEHub
	Producer        *messaging.RedisProducer

	IndexService *index.MailIndexer
}

// NewDependencies wires the full dependency graph.
func NewDependencies(cfg *config.Config, zlog zerolog.Logger) (*Dependencies, func(), error) {
	deps := &Dependencies{Config: cfg}
	var cleanups []func()

	cleanup := func() {
		for i := len(cleanups) - 1; i >= 0; i-- {
			cleanups[i]()
		}
	}

	// Postgres
	db, err := database.NewPostgres(cfg.DatabaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("postgres connection failed: %w", err)
	}
	deps.DB = db
	cleanups = append(cleanups, func() { db.Close() })
	logger.Info("postgres connected")

	// Redis
	redisClient, err := database.NewRedis(cfg.RedisURL)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("redis connection failed: %w", err)
	}
	deps.Redis = redisClient
	cleanups = append(cleanups, func() { redisClient.Close() })
	logger.Info("redis connected")

	// MongoDB (body cache, optional)
	if cfg.MongoDBURL != "" {
		mongoClient, err := mongodb.NewClient(cfg.MongoDBURL)
		if err != nil {
			logger.Warn("MongoDB connection failed, body cache disabled: %v", err)
		} else {
			deps.MongoDB = mongoClient
			cleanups = append(cleanups, func() {
				mongoClient.Disconnect(context.Background())
			})

			bodyCache := mongodb.NewBodyCacheAdapter(mongoClient.Database(cfg.MongoDBName), cfg.BodyCacheTTLDays)
			if err := bodyCache.EnsureIndexes(context.Background()); err != nil {
				logger.Warn("failed to ensure body cache indexes: %v", err)
			}
			deps.BodyCache = bodyCache
			logger.Info("mongodb body cache ready")
		}
	}

	// Database key
	encryptor, err := crypto.NewEncryptor([]byte(cfg.DBEncryptionKey))
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("invalid encryption key: %w", err)
	}
	deps.Encryptor = encryptor

	// Entity fetcher
	deps.EntityClient = entity.NewClient(&entity.Config{
		BaseURL:   cfg.EntityStoreURL,
		Timeout:   cfg.EntityStoreTimeout(),
		AuthToken: cfg.EntityStoreToken,
		Logger:    zlog,
	})

	// Object store + index core schemas
	deps.ObjectStore = persistence.NewObjectStoreAdapter(db)
	if err := deps.ObjectStore.EnsureSchema(context.Background()); err != nil {
		cleanup()
		return nil, nil, err
	}

	deps.IndexCore = indexcore.NewCoreAdapter(db, encryptor)
	if err := deps.IndexCore.EnsureSchema(context.Background()); err != nil {
		cleanup()
		return nil, nil, err
	}

	// Realtime
	deps.RealtimeAdapter = realtime.NewSSEAdapter(zlog)
	deps.SSEHub = realtime.NewSSEHub(deps.RealtimeAdapter, zlog)

	// Messaging
	deps.Producer = messaging.NewRedisProducer(redisClient)

	// Indexer service
	deps.IndexService = index.NewMailIndexer(
		deps.EntityClient,
		deps.ObjectStore,
		deps.IndexCore,
		deps.BodyCache,
		deps.RealtimeAdapter,
	)

	return deps, cleanup, nil
}
