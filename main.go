package VersionDB

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/nickyhof/VersionDB/config"
	"github.com/nickyhof/VersionDB/db"
	"github.com/nickyhof/VersionDB/kv"
	"github.com/nickyhof/VersionDB/ps"
	"github.com/prometheus/client_golang/prometheus"
)

// Instance is an opened repository with the store it lives in.
type Instance struct {
	Store       kv.KeyStore
	Persistence *ps.Persistence
	Repo        *db.VersionedRepo

	closer io.Closer
}

// Option adjusts how Open builds the repository.
type Option func(*db.Config)

func WithLogger(logger *slog.Logger) Option {
	return func(cfg *db.Config) { cfg.Logger = logger }
}

func WithRegisterer(reg prometheus.Registerer) Option {
	return func(cfg *db.Config) { cfg.Registerer = reg }
}

func WithLockHandler(locks db.LockHandler) Option {
	return func(cfg *db.Config) { cfg.LockHandler = locks }
}

// Open builds the backend cfg names and the versioned repository on it.
func Open(ctx context.Context, cfg config.Config, opts ...Option) (*Instance, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	store, closer, err := openBackend(ctx, cfg.Backend)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s backend: %w", cfg.Backend.Type, err)
	}
	instance, err := OpenStore(ctx, store, cfg.Repo, opts...)
	if err != nil {
		if closer != nil {
			err = errors.Join(err, closer.Close())
		}
		return nil, err
	}
	instance.closer = closer
	return instance, nil
}

// OpenStore builds the repository on an existing store.
func OpenStore(ctx context.Context, store kv.KeyStore, repo config.RepoConfig, opts ...Option) (*Instance, error) {
	persistence, err := ps.NewPersistence(store)
	if err != nil {
		return nil, err
	}

	dbConfig := db.DefaultConfig()
	dbConfig.Capacity = repo.Capacity
	dbConfig.LockTimeout = repo.LockTimeout
	dbConfig.LockRetries = repo.LockRetries
	dbConfig.Cache = repo.Cache
	dbConfig.HistoryLimit = repo.HistoryLimit
	for _, opt := range opts {
		opt(&dbConfig)
	}

	versioned, err := db.New(ctx, persistence, dbConfig)
	if err != nil {
		return nil, err
	}
	return &Instance{Store: store, Persistence: persistence, Repo: versioned}, nil
}

func openBackend(ctx context.Context, backend config.BackendConfig) (kv.KeyStore, io.Closer, error) {
	switch backend.Type {
	case config.BackendMemory:
		return kv.NewMemoryStore(), nil, nil
	case config.BackendFile:
		store, err := kv.NewFileStore(backend.Path)
		return store, nil, err
	case config.BackendBolt:
		store, err := kv.OpenBoltStore(backend.Path)
		if err != nil {
			return nil, nil, err
		}
		return store, store, nil
	case config.BackendBadger:
		store, err := kv.OpenBadgerStore(kv.BadgerConfig{Path: backend.Path})
		if err != nil {
			return nil, nil, err
		}
		return store, store, nil
	case config.BackendS3:
		client, err := kv.NewS3Client(ctx, kv.S3Config{
			AccessKey: backend.AccessKey,
			SecretKey: backend.SecretKey,
			Region:    backend.Region,
			Endpoint:  backend.Endpoint,
		})
		if err != nil {
			return nil, nil, err
		}
		return kv.NewS3Store(client, backend.Bucket, backend.Prefix), nil, nil
	default:
		return nil, nil, fmt.Errorf("unknown backend type %q", backend.Type)
	}
}

// Close releases the backend.
func (instance *Instance) Close() error {
	if instance.closer == nil {
		return nil
	}
	return instance.closer.Close()
}
