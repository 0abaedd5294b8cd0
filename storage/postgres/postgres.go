package postgres

import (
	"context"
	"errors"
	"fmt"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	log "github.com/sirupsen/logrus"
	"snapgram/errs"
	"snapgram/storage"
)

type Store struct {
	pool *pgxpool.Pool
}

func New(ctx context.Context, connString string, maxConns int32) (*Store, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("parse postgres config: %w", err)
	}
	if maxConns > 0 {
		config.MaxConns = maxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, errs.Upstream("postgres connect", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, errs.Upstream("postgres ping", err)
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	s.pool.Close()
}

func (s *Store) Read(ctx context.Context, fn func(tx storage.Tx) error) error {
	return s.run(ctx, pgx.TxOptions{AccessMode: pgx.ReadOnly}, fn)
}

func (s *Store) Write(ctx context.Context, fn func(tx storage.Tx) error) error {
	return s.run(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted}, fn)
}

func (s *Store) run(ctx context.Context, options pgx.TxOptions, fn func(tx storage.Tx) error) error {
	var fnErr error
	err := pgx.BeginTxFunc(ctx, s.pool, options, func(conn pgx.Tx) error {
		fnErr = fn(&tx{conn: conn})
		return fnErr
	})
	if fnErr != nil {
		return fnErr
	}
	if err != nil {
		log.Warningf("Error committing transaction: %v", err)
		return errs.Upstream("postgres transaction", err)
	}
	return nil
}

type tx struct {
	conn pgx.Tx
}

func (t *tx) LockKey(ctx context.Context, key string) error {
	_, err := t.conn.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended(@key, 0))`, pgx.NamedArgs{"key": key})
	if err != nil {
		return errs.Upstream("advisory lock "+key, err)
	}
	return nil
}

func mapError(err error, resource, id string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return errs.NotFound(resource, id)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505": // unique_violation
			return errs.Conflict(fmt.Sprintf("%s already exists", resource), err)
		case "23503": // foreign_key_violation
			return errs.NotFound("row referenced by "+resource, id)
		case "23514": // check_violation
			return errs.InvalidOperation("%s violates %s", resource, pgErr.ConstraintName)
		}
	}
	return errs.Upstream(resource+" query", err)
}

var (
	_ storage.Store = (*Store)(nil)
	_ storage.Tx    = (*tx)(nil)
)
