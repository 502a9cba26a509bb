package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/yigit/classsetup/internal/config"
	"github.com/yigit/classsetup/internal/pkg/apperrors"
	"github.com/yigit/classsetup/internal/pkg/dberrors"
	"github.com/yigit/classsetup/internal/pkg/logger"
	"github.com/yigit/classsetup/internal/pkg/metrics"
)

const (
	connectTimeout = 10 * time.Second
	txTimeout      = 30 * time.Second
)

// txStarter opens transactions; *pgxpool.Pool satisfies it.
type txStarter interface {
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)
}

// PostgresDB wraps the connection pool shared by the class setup store.
type PostgresDB struct {
	Pool *pgxpool.Pool

	starter     txStarter
	lockTimeout time.Duration
	retries     int
}

// NewPostgresDB opens and pings the pool described by cfg.Database.
func NewPostgresDB(cfg *config.Config) (*PostgresDB, error) {
	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()

	poolConfig, err := pgxpool.ParseConfig(cfg.GetPostgresConnectionString())
	if err != nil {
		return nil, fmt.Errorf("failed to parse pgxpool config: %w", err)
	}
	poolConfig.MaxConns = int32(cfg.Database.MaxOpenConns)
	poolConfig.MinConns = int32(cfg.Database.MaxIdleConns)

	maxLifetime, err := time.ParseDuration(cfg.Database.ConnMaxLifetime)
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection max lifetime: %w", err)
	}
	poolConfig.MaxConnLifetime = maxLifetime

	poolConfig.BeforeAcquire = func(ctx context.Context, conn *pgx.Conn) bool {
		if err := conn.Ping(ctx); err != nil {
			logger.Warn().Err(err).Msg("Unhealthy connection detected")
			return false
		}
		return true
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create database connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to establish database connection: %w", err)
	}

	return &PostgresDB{Pool: pool, starter: pool, lockTimeout: cfg.LockTimeout(), retries: cfg.Database.TxRetries}, nil
}

// Close releases the pool.
func (db *PostgresDB) Close() {
	if db.Pool != nil {
		db.Pool.Close()
	}
}

// Ping checks that the database answers.
func (db *PostgresDB) Ping(ctx context.Context) error {
	return db.Pool.Ping(ctx)
}

// TransactionFn is a function that executes within a transaction
type TransactionFn func(ctx context.Context, tx pgx.Tx) error

// WithTransaction runs fn in a read-committed transaction whose row locks give up
// after the configured lock timeout. Serialization failures and deadlocks are
// retried with a fresh transaction, so fn must not keep state between calls.
func (db *PostgresDB) WithTransaction(ctx context.Context, fn TransactionFn) error {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, txTimeout)
		defer cancel()
	}

	var err error
	for attempt := 0; ; attempt++ {
		err = db.runTx(ctx, fn)
		if err == nil || attempt >= db.retries || !dberrors.IsRetryable(err) || ctx.Err() != nil {
			return err
		}
		metrics.RecordTransactionRetry()
		logger.Warn().Err(err).Int("attempt", attempt+1).Msg("Retrying transaction after conflict")
	}
}

func (db *PostgresDB) runTx(ctx context.Context, fn TransactionFn) (err error) {
	tx, err := db.starter.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return apperrors.Persistence("begin transaction", err)
	}

	defer func() {
		if r := recover(); r != nil {
			_ = tx.Rollback(ctx)
			panic(r)
		}
		if err != nil {
			if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
				logger.Error().Err(rbErr).Msg("Failed to rollback transaction")
			}
		}
	}()

	if db.lockTimeout > 0 {
		// SET does not take bind parameters.
		stmt := fmt.Sprintf("SET LOCAL lock_timeout = %d", db.lockTimeout.Milliseconds())
		if _, err = tx.Exec(ctx, stmt); err != nil {
			return apperrors.Persistence("set lock timeout", err)
		}
	}

	if err = fn(ctx, tx); err != nil {
		return err
	}
	if err = tx.Commit(ctx); err != nil {
		return apperrors.Persistence("commit transaction", err)
	}
	return nil
}
