package config

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/prefeitura-rio/app-scim-sync/internal/logging"
	"github.com/prefeitura-rio/app-scim-sync/internal/redisclient"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.opentelemetry.io/contrib/instrumentation/go.mongodb.org/mongo-driver/mongo/otelmongo"
	"go.uber.org/zap"
)

var (
	// MongoDB database handle
	MongoDB *mongo.Database
	// Redis client, nil when REDIS_URI is unset
	Redis *redisclient.Client
)

// InitMongoDB initializes the MongoDB connection
func InitMongoDB(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	opts := options.Client().
		ApplyURI(AppConfig.MongoURI).
		SetMonitor(otelmongo.NewMonitor()).
		SetMaxPoolSize(100).
		SetMinPoolSize(10).
		SetMaxConnIdleTime(5 * time.Minute).
		SetRetryWrites(true).
		SetRetryReads(true)

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return fmt.Errorf("connect to MongoDB: %w", err)
	}

	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		return fmt.Errorf("ping MongoDB: %w", err)
	}

	MongoDB = client.Database(AppConfig.MongoDatabase)

	logging.Logger.Info("connected to MongoDB",
		zap.String("uri", maskMongoURI(AppConfig.MongoURI)),
		zap.String("database", AppConfig.MongoDatabase),
	)
	return nil
}

// CloseMongoDB disconnects the MongoDB client
func CloseMongoDB(ctx context.Context) {
	if MongoDB == nil {
		return
	}
	if err := MongoDB.Client().Disconnect(ctx); err != nil {
		logging.Logger.Warn("failed to disconnect MongoDB", zap.Error(err))
	}
}

// InitRedis initializes the Redis connection. A missing REDIS_URI leaves Redis nil.
func InitRedis(ctx context.Context) error {
	if AppConfig.RedisURI == "" {
		logging.Logger.Info("REDIS_URI not set, using process-local run locks")
		return nil
	}

	opts, err := redisOptions(AppConfig.RedisURI, AppConfig.RedisPassword, AppConfig.RedisDB)
	if err != nil {
		return err
	}

	Redis = redisclient.NewClient(redis.NewClient(opts))

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := Redis.Ping(ctx).Err(); err != nil {
		logging.Logger.Error("failed to connect to Redis",
			zap.String("uri", AppConfig.RedisURI),
			zap.Error(err))
		return fmt.Errorf("ping Redis: %w", err)
	}

	logging.Logger.Info("connected to Redis",
		zap.String("uri", AppConfig.RedisURI))
	return nil
}

func redisOptions(uri, password string, db int) (*redis.Options, error) {
	if strings.HasPrefix(uri, "redis://") || strings.HasPrefix(uri, "rediss://") {
		opts, err := redis.ParseURL(uri)
		if err != nil {
			return nil, fmt.Errorf("invalid REDIS_URI: %w", err)
		}
		if password != "" {
			opts.Password = password
		}
		return opts, nil
	}
	return &redis.Options{
		Addr:         uri,
		Password:     password,
		DB:           db,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
		MinIdleConns: 5,
	}, nil
}

// maskMongoURI masks sensitive information in MongoDB URI
func maskMongoURI(uri string) string {
	at := strings.LastIndex(uri, "@")
	if at < 0 {
		return uri
	}
	return "mongodb://****:****@" + uri[at+1:]
}

// EnsureIndex creates the named index on collection unless it already exists
func EnsureIndex(ctx context.Context, collection *mongo.Collection, model mongo.IndexModel) error {
	logger := logging.Logger.With(zap.String("collection", collection.Name()))

	name := ""
	if model.Options != nil && model.Options.Name != nil {
		name = *model.Options.Name
	}

	cursor, err := collection.Indexes().List(ctx)
	if err != nil {
		logger.Error("failed to list indexes", zap.Error(err))
		return err
	}
	defer cursor.Close(ctx)

	for cursor.Next(ctx) {
		var index bson.M
		if err := cursor.Decode(&index); err != nil {
			continue
		}
		if n, ok := index["name"].(string); ok && n == name {
			logger.Debug("index already exists", zap.String("index", name))
			return nil
		}
	}

	if _, err := collection.Indexes().CreateOne(ctx, model); err != nil {
		// another instance may have created it concurrently
		if mongo.IsDuplicateKeyError(err) {
			logger.Info("index already exists (created by another instance)", zap.String("index", name))
			return nil
		}
		logger.Error("failed to create index", zap.String("index", name), zap.Error(err))
		return err
	}

	logger.Info("created index", zap.String("index", name))
	return nil
}
