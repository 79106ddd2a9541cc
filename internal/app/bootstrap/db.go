// internal/app/bootstrap/db.go
package bootstrap

import (
	"context"
	"fmt"

	"github.com/dalemusser/guiafarma/internal/app/store/offlinecache"
	"github.com/dalemusser/guiafarma/internal/app/system/timeouts"
	"github.com/dalemusser/waffle/config"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.uber.org/zap"
)

// ConnectDB connects to MongoDB when the mongo cache store is selected.
// With the memory store no connection is made.
func ConnectDB(ctx context.Context, coreCfg *config.CoreConfig, appCfg AppConfig, logger *zap.Logger) (DBDeps, error) {
	deps := DBDeps{Services: &Services{}}
	if !appCfg.usesMongo() {
		logger.Info("cache store is in memory; skipping MongoDB connection")
		return deps, nil
	}

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(appCfg.MongoURI))
	if err != nil {
		return deps, fmt.Errorf("connect MongoDB: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, timeouts.Ping())
	defer cancel()
	if err := client.Ping(pingCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return deps, fmt.Errorf("ping MongoDB: %w", err)
	}

	logger.Info("connected to MongoDB", zap.String("database", appCfg.MongoDatabase))
	deps.MongoClient = client
	deps.MongoDatabase = client.Database(appCfg.MongoDatabase)
	return deps, nil
}

// EnsureSchema creates the offline cache indexes.
func EnsureSchema(ctx context.Context, coreCfg *config.CoreConfig, appCfg AppConfig, deps DBDeps, logger *zap.Logger) error {
	if deps.MongoDatabase == nil {
		return nil
	}
	if err := offlinecache.New(deps.MongoDatabase).EnsureIndexes(ctx); err != nil {
		logger.Error("failed to create offline cache indexes", zap.Error(err))
		return err
	}
	return nil
}
