// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CodeVault Contributors

// Package store connects to the account databases and manages their schema.
package store

import (
	"context"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// Default connection retry policy: five attempts, five seconds apart.
const (
	DefaultConnectRetries = 5
	DefaultRetryInterval  = 5 * time.Second
)

// RetryPolicy controls how often a failed connection attempt is repeated.
type RetryPolicy struct {
	Retries  uint64
	Interval time.Duration
}

func (p RetryPolicy) backoff() retry.Backoff {
	interval := p.Interval
	if interval <= 0 {
		interval = DefaultRetryInterval
	}
	return retry.WithMaxRetries(p.Retries, retry.NewConstant(interval))
}

// withRetry runs attempt until it succeeds, the policy is exhausted, or ctx
// is done. Every attempt error is treated as retryable.
func withRetry(ctx context.Context, policy RetryPolicy, logger *slog.Logger, target string, attempt func(ctx context.Context) error) error {
	n := 0
	return retry.Do(ctx, policy.backoff(), func(ctx context.Context) error {
		n++
		if err := attempt(ctx); err != nil {
			logger.WarnContext(ctx, "database connection attempt failed",
				"target", target,
				"attempt", n,
				"error", err)
			return retry.RetryableError(err)
		}
		return nil
	})
}

// pinger is satisfied by *pgxpool.Pool.
type pinger interface {
	Ping(ctx context.Context) error
}

// ConnectPostgres opens a pgx pool and waits until the server answers a ping.
func ConnectPostgres(ctx context.Context, databaseURL string, policy RetryPolicy, logger *slog.Logger) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, oops.Code("DB_CONFIG_INVALID").With("driver", "postgres").Wrap(err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, oops.Code("DB_CONNECT_FAILED").With("driver", "postgres").Wrap(err)
	}

	if err := waitReady(ctx, pool, policy, logger, "postgres"); err != nil {
		pool.Close()
		return nil, err
	}
	logger.InfoContext(ctx, "connected to database", "driver", "postgres", "host", cfg.ConnConfig.Host)
	return pool, nil
}

func waitReady(ctx context.Context, db pinger, policy RetryPolicy, logger *slog.Logger, target string) error {
	err := withRetry(ctx, policy, logger, target, db.Ping)
	if err != nil {
		return oops.Code("DB_CONNECT_FAILED").
			With("driver", target).
			With("retries", policy.Retries).
			Wrap(err)
	}
	return nil
}

// ConnectMongo connects a mongo client and returns the named database.
func ConnectMongo(ctx context.Context, uri, database string, policy RetryPolicy, logger *slog.Logger) (*mongo.Client, *mongo.Database, error) {
	if database == "" {
		return nil, nil, oops.Code("DB_CONFIG_INVALID").With("driver", "mongo").Errorf("mongo database name is required")
	}

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, nil, oops.Code("DB_CONNECT_FAILED").With("driver", "mongo").Wrap(err)
	}

	ping := mongoPinger{client: client}
	if err := waitReady(ctx, ping, policy, logger, "mongo"); err != nil {
		_ = client.Disconnect(context.WithoutCancel(ctx)) //nolint:errcheck // connect error takes precedence
		return nil, nil, err
	}
	logger.InfoContext(ctx, "connected to database", "driver", "mongo", "database", database)
	return client, client.Database(database), nil
}

type mongoPinger struct {
	client *mongo.Client
}

func (p mongoPinger) Ping(ctx context.Context) error {
	return p.client.Ping(ctx, readpref.Primary())
}
