package config

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/anonto42/vidtube/backend/internal/models"
)

// DB holds the database connections. Postgres is nil when no audit DB is configured.
type DB struct {
	Mongo    *mongo.Client
	Database *mongo.Database
	Postgres *gorm.DB
}

// InitDB connects to MongoDB and, when configured, to the PostgreSQL audit database.
func InitDB(ctx context.Context, cfg *Config) (*DB, error) {
	mongoClient, err := initMongo(ctx, cfg.MongoURI)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}
	db := &DB{
		Mongo:    mongoClient,
		Database: mongoClient.Database(cfg.MongoDatabase),
	}

	if cfg.AuditEnabled() {
		pg, err := initPostgres(cfg.PostgresConnStr)
		if err != nil {
			db.CloseDB()
			return nil, fmt.Errorf("failed to connect to PostgreSQL: %w", err)
		}
		db.Postgres = pg
	}
	return db, nil
}

// initPostgres opens the audit database with GORM and migrates the session events table
func initPostgres(connStr string) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(connStr), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	if err = sqlDB.Ping(); err != nil {
		return nil, err
	}

	if err := db.AutoMigrate(&models.SessionEvent{}); err != nil {
		return nil, fmt.Errorf("auto migrate session events: %w", err)
	}

	slog.Info("connected to PostgreSQL audit database")
	return db, nil
}

// initMongo initializes the MongoDB connection
func initMongo(ctx context.Context, uri string) (*mongo.Client, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, err
	}

	if err = client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}

	slog.Info("connected to MongoDB")
	return client, nil
}

// CloseDB closes the database connections
func (db *DB) CloseDB() {
	if db.Postgres != nil {
		sqlDB, err := db.Postgres.DB()
		if err != nil {
			slog.Error("get SQL DB from GORM", slog.Any("error", err))
		} else if err := sqlDB.Close(); err != nil {
			slog.Error("close PostgreSQL connection", slog.Any("error", err))
		} else {
			slog.Info("PostgreSQL connection closed")
		}
	}

	if db.Mongo != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := db.Mongo.Disconnect(ctx); err != nil {
			slog.Error("close MongoDB connection", slog.Any("error", err))
		} else {
			slog.Info("MongoDB connection closed")
		}
	}
}
