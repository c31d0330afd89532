package main

import (
	"context"
	"fmt"
	"os"

	"github.com/redis/go-redis/v9"

	"github.com/Skryldev/image-convert/adapters/storage"
	"github.com/Skryldev/image-convert/config"
	"github.com/Skryldev/image-convert/core"
	"github.com/Skryldev/image-convert/store"
)

const blobPrefix = "results/"

// openStore builds the result store selected by cfg.Storage.
func openStore(ctx context.Context, cfg config.Config, logger core.Logger) (store.Store, error) {
	opts := store.Options{
		TTL:        cfg.ResultTTL,
		MaxEntries: cfg.MaxEntries,
		MaxBytes:   cfg.MaxStoredBytes,
		Logger:     logger,
	}

	switch cfg.Storage {
	case config.StoreRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			return nil, fmt.Errorf("redis ping %s: %w", cfg.Redis.Addr, err)
		}
		return store.NewRedis(client, cfg.Redis.Prefix, opts), nil

	case config.StoreLocal:
		local, err := storage.NewLocal(cfg.Local.RootDir, os.FileMode(cfg.Local.Permissions))
		if err != nil {
			return nil, err
		}
		return store.NewBlob(local, "", blobPrefix, opts), nil

	case config.StoreS3:
		client, err := storage.NewMinioClient(ctx, storage.MinioConfig{
			Endpoint:  cfg.S3.Endpoint,
			AccessKey: cfg.S3.AccessKey,
			SecretKey: cfg.S3.SecretKey,
			Region:    cfg.S3.Region,
			UseSSL:    cfg.S3.UseSSL,
			Bucket:    cfg.S3.Bucket,
		})
		if err != nil {
			return nil, err
		}
		s3, err := storage.NewS3(client, cfg.S3.Bucket)
		if err != nil {
			return nil, err
		}
		return store.NewBlob(s3, cfg.S3.Bucket, blobPrefix, opts), nil

	default:
		return store.NewMemory(opts), nil
	}
}
