package lock

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	id "tracecore/pkg/domain"
)

// advisoryNamespace keeps entity locks apart from any other advisory lock
// users of the same database.
const advisoryNamespace int32 = 0x7472 // "tr"

const unlockTimeout = 5 * time.Second

var errNotHeld = errors.New("advisory lock was not held by this session")

// session is the dedicated connection an advisory lock lives on.
type session interface {
	lock(ctx context.Context, key int32) error
	unlock(ctx context.Context, key int32) (bool, error)
	// release returns the connection to the pool.
	release()
	// discard closes the connection, which ends the Postgres session and
	// every advisory lock it still holds.
	discard(ctx context.Context) error
}

type poolSession struct {
	conn *pgxpool.Conn
}

func (p poolSession) lock(ctx context.Context, key int32) error {
	_, err := p.conn.Exec(ctx, `SELECT pg_advisory_lock($1, $2)`, advisoryNamespace, key)
	return err
}

func (p poolSession) unlock(ctx context.Context, key int32) (bool, error) {
	var released bool
	err := p.conn.QueryRow(ctx, `SELECT pg_advisory_unlock($1, $2)`, advisoryNamespace, key).Scan(&released)
	return released, err
}

func (p poolSession) release() { p.conn.Release() }

func (p poolSession) discard(ctx context.Context) error {
	return p.conn.Hijack().Close(ctx)
}

// Advisory serializes entity mutations across processes sharing one Postgres
// database by holding a session-level advisory lock on a dedicated connection.
type Advisory struct {
	acquire func(ctx context.Context) (session, error)
	logger  *slog.Logger
}

type AdvisoryOption func(*Advisory)

func WithAdvisoryLogger(logger *slog.Logger) AdvisoryOption {
	return func(a *Advisory) {
		if logger != nil {
			a.logger = logger
		}
	}
}

func NewAdvisory(pool *pgxpool.Pool, opts ...AdvisoryOption) *Advisory {
	return newAdvisory(func(ctx context.Context) (session, error) {
		conn, err := pool.Acquire(ctx)
		if err != nil {
			return nil, err
		}
		return poolSession{conn: conn}, nil
	}, opts...)
}

func newAdvisory(acquire func(ctx context.Context) (session, error), opts ...AdvisoryOption) *Advisory {
	a := &Advisory{acquire: acquire, logger: slog.Default()}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func (a *Advisory) Lock(ctx context.Context, entityID id.EntityID) (func(), error) {
	s, err := a.acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire lock connection: %w", err)
	}
	key := int32(uint64(entityID) % (1 << 31))
	if err := s.lock(ctx, key); err != nil {
		// An interrupted wait may still have been granted server side.
		a.discard(s, entityID, err)
		return nil, fmt.Errorf("advisory lock entity %d: %w", entityID, err)
	}
	var once sync.Once
	return func() {
		once.Do(func() {
			ctx, cancel := context.WithTimeout(context.Background(), unlockTimeout)
			defer cancel()
			released, err := s.unlock(ctx, key)
			if err == nil && !released {
				err = errNotHeld
			}
			if err != nil {
				a.discard(s, entityID, err)
				return
			}
			s.release()
		})
	}, nil
}

// discard drops a session whose lock state is unknown so the pool never hands
// out a connection that still holds an entity lock.
func (a *Advisory) discard(s session, entityID id.EntityID, cause error) {
	ctx, cancel := context.WithTimeout(context.Background(), unlockTimeout)
	defer cancel()
	closeErr := s.discard(ctx)
	a.logger.Warn("discarding advisory lock connection",
		"entity_id", entityID,
		"error", cause,
		"close_error", closeErr,
	)
}
