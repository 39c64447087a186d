package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/legalaid-connect/legalaid/libs/config"
)

// SQLSTATE codes the services care about.
const (
	codeUniqueViolation    = "23505"
	codeExclusionViolation = "23P01"
)

type Pool struct {
	*pgxpool.Pool
}

type Options struct {
	MaxConns int32
	MinConns int32
	// ConnectAttempts is how many times Open pings before giving up, one
	// second apart. Containers often start before Postgres accepts connections.
	ConnectAttempts int
}

// OptionsFromEnv reads DB_MAX_CONNS, DB_MIN_CONNS and DB_CONNECT_ATTEMPTS.
func OptionsFromEnv() (Options, error) {
	maxConns, err := config.Int("DB_MAX_CONNS", 10)
	if err != nil {
		return Options{}, err
	}
	minConns, err := config.Int("DB_MIN_CONNS", 1)
	if err != nil {
		return Options{}, err
	}
	attempts, err := config.Int("DB_CONNECT_ATTEMPTS", 5)
	if err != nil {
		return Options{}, err
	}
	return Options{MaxConns: int32(maxConns), MinConns: int32(minConns), ConnectAttempts: attempts}, nil
}

func Open(ctx context.Context, databaseURL string, opts ...Options) (*Pool, error) {
	o := Options{MaxConns: 10, MinConns: 1, ConnectAttempts: 1}
	if len(opts) > 0 {
		if opts[0].MaxConns > 0 {
			o.MaxConns = opts[0].MaxConns
		}
		if opts[0].MinConns > 0 {
			o.MinConns = opts[0].MinConns
		}
		if opts[0].ConnectAttempts > 0 {
			o.ConnectAttempts = opts[0].ConnectAttempts
		}
	}
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	cfg.MaxConns = o.MaxConns
	cfg.MinConns = min(o.MinConns, o.MaxConns)
	cfg.MaxConnLifetime = 30 * time.Minute
	cfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	for attempt := 1; ; attempt++ {
		err = pool.Ping(ctx)
		if err == nil {
			return &Pool{Pool: pool}, nil
		}
		if attempt >= o.ConnectAttempts {
			break
		}
		select {
		case <-ctx.Done():
			pool.Close()
			return nil, ctx.Err()
		case <-time.After(time.Second):
		}
	}
	pool.Close()
	return nil, fmt.Errorf("ping database after %d attempt(s): %w", o.ConnectAttempts, err)
}

func (p *Pool) Close() {
	if p != nil && p.Pool != nil {
		p.Pool.Close()
	}
}

// InTx runs fn in a transaction, committing when fn returns nil.
func (p *Pool) InTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := p.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func ReadyCheck(pool *Pool) func(context.Context) error {
	return func(ctx context.Context) error {
		if pool == nil || pool.Pool == nil {
			return errors.New("db not configured")
		}
		return pool.Ping(ctx)
	}
}

func IsUniqueViolation(err error) bool {
	return hasCode(err, codeUniqueViolation)
}

func IsExclusionViolation(err error) bool {
	return hasCode(err, codeExclusionViolation)
}

func IsNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}

func hasCode(err error, code string) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == code
}
