// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CodeVault Contributors

package main

import (
	"context"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/samber/oops"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/codevault/codevault/internal/auth"
	authmongo "github.com/codevault/codevault/internal/auth/mongo"
	authpg "github.com/codevault/codevault/internal/auth/postgres"
	"github.com/codevault/codevault/internal/config"
	"github.com/codevault/codevault/internal/store"
)

// openStore connects to the database named by cfg, retrying per its
// connection policy. Mongo indexes are created before the store is
// returned.
func openStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (AccountStore, error) {
	policy := store.RetryPolicy{
		Retries:  cfg.Database.ConnectRetries,
		Interval: cfg.Database.RetryInterval,
	}

	switch cfg.Database.Driver {
	case config.DriverPostgres:
		pool, err := store.ConnectPostgres(ctx, cfg.Database.URL, policy, logger)
		if err != nil {
			return nil, err
		}
		return &postgresStore{pool: pool, accounts: authpg.NewAccountRepository(pool)}, nil

	case config.DriverMongo:
		client, db, err := store.ConnectMongo(ctx, cfg.Database.URL, cfg.Database.MongoDatabase, policy, logger)
		if err != nil {
			return nil, err
		}
		accounts := authmongo.NewAccountRepository(db)
		if err := accounts.EnsureIndexes(ctx); err != nil {
			_ = client.Disconnect(context.WithoutCancel(ctx)) //nolint:errcheck // index error takes precedence
			return nil, err
		}
		return &mongoStore{client: client, accounts: accounts}, nil

	default:
		return nil, oops.Code("CONFIG_INVALID").
			With("key", "database.driver").
			Errorf("unsupported database driver %q", cfg.Database.Driver)
	}
}

type postgresStore struct {
	pool     *pgxpool.Pool
	accounts *authpg.AccountRepository
}

func (s *postgresStore) Accounts() auth.AccountRepository { return s.accounts }

func (s *postgresStore) Ping(ctx context.Context) error { return s.pool.Ping(ctx) }

func (s *postgresStore) Close(context.Context) error {
	s.pool.Close()
	return nil
}

type mongoStore struct {
	client   *mongo.Client
	accounts *authmongo.AccountRepository
}

func (s *mongoStore) Accounts() auth.AccountRepository { return s.accounts }

func (s *mongoStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, readpref.Primary())
}

func (s *mongoStore) Close(ctx context.Context) error {
	if err := s.client.Disconnect(ctx); err != nil {
		return oops.Code("DB_CLOSE_FAILED").With("driver", config.DriverMongo).Wrap(err)
	}
	return nil
}
