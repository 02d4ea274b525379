package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"tracecore/internal/platform/postgres"
	"tracecore/internal/registry/models"
	id "tracecore/pkg/domain"
	"tracecore/pkg/platform/sentinel"
	"tracecore/pkg/platform/tx"
)

const entityColumns = `id, name, type, owner, batch_key, valid_from, valid_until,
	attributes, metadata_ref, active, created_at, updated_at`

const checkpointColumns = `entity_id, seq, recorded_at, location, actor, status,
	environment, note, edited_at`

// PostgresStore persists registry state in PostgreSQL. Writes that touch more
// than one table run in a single transaction.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgres constructs a PostgreSQL-backed registry store.
func NewPostgres(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) CreateEntities(ctx context.Context, regs []models.Registration) error {
	return tx.Run(ctx, s.pool, func(ctx context.Context) error {
		q := tx.Conn(ctx, s.pool)
		for _, r := range regs {
			e := r.Entity
			err := q.QueryRow(ctx, `
				INSERT INTO entities (name, type, owner, batch_key, valid_from, valid_until,
					attributes, metadata_ref, active, created_at, updated_at)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
				RETURNING id`,
				e.Name, e.Type, string(e.Owner), e.BatchKey, e.ValidFrom, e.ValidUntil,
				e.Attributes, e.MetadataRef, e.Active, e.CreatedAt, e.UpdatedAt,
			).Scan(&e.ID)
			if err != nil {
				return fmt.Errorf("insert entity %s: %w", e.BatchKey, postgres.TranslateError(err))
			}
			if _, err := q.Exec(ctx, `
				INSERT INTO entity_actors (entity_id, actor, added_by, added_at)
				VALUES ($1, $2, $2, $3)`,
				e.ID, string(e.Owner), e.CreatedAt,
			); err != nil {
				return fmt.Errorf("seed owner: %w", postgres.TranslateError(err))
			}
			r.Genesis.EntityID = e.ID
			r.Genesis.Seq = 0
			if err := insertCheckpoint(ctx, q, r.Genesis); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *PostgresStore) FindByID(ctx context.Context, entityID id.EntityID) (*models.Entity, error) {
	row := tx.Conn(ctx, s.pool).QueryRow(ctx, `SELECT `+entityColumns+` FROM entities WHERE id = $1`, entityID)
	e, err := scanEntity(row)
	if err != nil {
		return nil, fmt.Errorf("find entity: %w", postgres.TranslateError(err))
	}
	return e, nil
}

func (s *PostgresStore) FindByBatchKey(ctx context.Context, key string) (*models.Entity, error) {
	row := tx.Conn(ctx, s.pool).QueryRow(ctx, `SELECT `+entityColumns+` FROM entities WHERE batch_key = $1`, key)
	e, err := scanEntity(row)
	if err != nil {
		return nil, fmt.Errorf("find entity by batch key: %w", postgres.TranslateError(err))
	}
	return e, nil
}

func (s *PostgresStore) ListByOwner(ctx context.Context, owner id.ActorID) ([]*models.Entity, error) {
	return s.listEntities(ctx, `SELECT `+entityColumns+` FROM entities WHERE owner = $1 ORDER BY id`, string(owner))
}

func (s *PostgresStore) ListByType(ctx context.Context, entityType string) ([]*models.Entity, error) {
	return s.listEntities(ctx, `SELECT `+entityColumns+` FROM entities WHERE type = $1 ORDER BY id`, entityType)
}

func (s *PostgresStore) ListByValidFrom(ctx context.Context, from, to time.Time) ([]*models.Entity, error) {
	return s.listEntities(ctx, `SELECT `+entityColumns+` FROM entities
		WHERE valid_from BETWEEN $1 AND $2 ORDER BY valid_from, id`, from, to)
}

func (s *PostgresStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := tx.Conn(ctx, s.pool).QueryRow(ctx, `SELECT count(*) FROM entities`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count entities: %w", err)
	}
	return n, nil
}

func (s *PostgresStore) Update(ctx context.Context, e *models.Entity) error {
	tag, err := tx.Conn(ctx, s.pool).Exec(ctx, `
		UPDATE entities SET name = $2, type = $3, valid_from = $4, valid_until = $5,
			attributes = $6, metadata_ref = $7, active = $8, updated_at = $9
		WHERE id = $1`,
		e.ID, e.Name, e.Type, e.ValidFrom, e.ValidUntil, e.Attributes, e.MetadataRef, e.Active, e.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update entity: %w", postgres.TranslateError(err))
	}
	if tag.RowsAffected() == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

// AppendCheckpoints relies on the caller holding the entity lock; the
// (entity_id, seq) primary key rejects any writer that raced past it.
func (s *PostgresStore) AppendCheckpoints(ctx context.Context, entityID id.EntityID, cps []*models.Checkpoint) error {
	return tx.Run(ctx, s.pool, func(ctx context.Context) error {
		q := tx.Conn(ctx, s.pool)
		var next int64
		err := q.QueryRow(ctx, `
			SELECT COALESCE(MAX(c.seq) + 1, 0)
			FROM entities e LEFT JOIN checkpoints c ON c.entity_id = e.id
			WHERE e.id = $1
			GROUP BY e.id`, entityID,
		).Scan(&next)
		if err != nil {
			return fmt.Errorf("next checkpoint seq: %w", postgres.TranslateError(err))
		}
		for i, cp := range cps {
			cp.EntityID = entityID
			cp.Seq = uint64(next) + uint64(i)
			if err := insertCheckpoint(ctx, q, cp); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *PostgresStore) ListCheckpoints(ctx context.Context, entityID id.EntityID) ([]*models.Checkpoint, error) {
	q := tx.Conn(ctx, s.pool)
	rows, err := q.Query(ctx, `SELECT `+checkpointColumns+` FROM checkpoints WHERE entity_id = $1 ORDER BY seq`, entityID)
	if err != nil {
		return nil, fmt.Errorf("list checkpoints: %w", err)
	}
	defer rows.Close()
	out := []*models.Checkpoint{}
	for rows.Next() {
		cp, err := scanCheckpoint(rows)
		if err != nil {
			return nil, fmt.Errorf("scan checkpoint: %w", err)
		}
		out = append(out, cp)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list checkpoints: %w", err)
	}
	if len(out) == 0 {
		// every registered entity has a genesis checkpoint
		return nil, sentinel.ErrNotFound
	}
	return out, nil
}

func (s *PostgresStore) FindCheckpoint(ctx context.Context, entityID id.EntityID, seq uint64) (*models.Checkpoint, error) {
	row := tx.Conn(ctx, s.pool).QueryRow(ctx,
		`SELECT `+checkpointColumns+` FROM checkpoints WHERE entity_id = $1 AND seq = $2`, entityID, int64(seq))
	cp, err := scanCheckpoint(row)
	if err != nil {
		return nil, fmt.Errorf("find checkpoint: %w", postgres.TranslateError(err))
	}
	return cp, nil
}

func (s *PostgresStore) LastCheckpoint(ctx context.Context, entityID id.EntityID) (*models.Checkpoint, error) {
	row := tx.Conn(ctx, s.pool).QueryRow(ctx,
		`SELECT `+checkpointColumns+` FROM checkpoints WHERE entity_id = $1 ORDER BY seq DESC LIMIT 1`, entityID)
	cp, err := scanCheckpoint(row)
	if err != nil {
		return nil, fmt.Errorf("last checkpoint: %w", postgres.TranslateError(err))
	}
	return cp, nil
}

func (s *PostgresStore) UpdateCheckpoint(ctx context.Context, cp *models.Checkpoint) error {
	tag, err := tx.Conn(ctx, s.pool).Exec(ctx, `
		UPDATE checkpoints SET location = $3, note = $4, edited_at = $5
		WHERE entity_id = $1 AND seq = $2`,
		cp.EntityID, int64(cp.Seq), cp.Location, cp.Note, cp.EditedAt,
	)
	if err != nil {
		return fmt.Errorf("update checkpoint: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) AddActor(ctx context.Context, sh models.Stakeholder) error {
	_, err := tx.Conn(ctx, s.pool).Exec(ctx, `
		INSERT INTO entity_actors (entity_id, actor, added_by, added_at)
		VALUES ($1, $2, $3, $4)`,
		sh.EntityID, string(sh.Actor), string(sh.AddedBy), sh.AddedAt,
	)
	if err != nil {
		return fmt.Errorf("add actor: %w", postgres.TranslateError(err))
	}
	return nil
}

func (s *PostgresStore) RemoveActor(ctx context.Context, entityID id.EntityID, actor id.ActorID) error {
	tag, err := tx.Conn(ctx, s.pool).Exec(ctx,
		`DELETE FROM entity_actors WHERE entity_id = $1 AND actor = $2`, entityID, string(actor))
	if err != nil {
		return fmt.Errorf("remove actor: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) ListActors(ctx context.Context, entityID id.EntityID) ([]models.Stakeholder, error) {
	rows, err := tx.Conn(ctx, s.pool).Query(ctx, `
		SELECT entity_id, actor, added_by, added_at FROM entity_actors
		WHERE entity_id = $1 ORDER BY added_at, actor`, entityID)
	if err != nil {
		return nil, fmt.Errorf("list actors: %w", err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.Stakeholder, error) {
		var sh models.Stakeholder
		var actor, addedBy string
		err := row.Scan(&sh.EntityID, &actor, &addedBy, &sh.AddedAt)
		sh.Actor, sh.AddedBy = id.ActorID(actor), id.ActorID(addedBy)
		return sh, err
	})
	if err != nil {
		return nil, fmt.Errorf("list actors: %w", err)
	}
	if len(out) == 0 {
		// the owner row is never deleted, so no rows means no entity
		return nil, sentinel.ErrNotFound
	}
	return out, nil
}

func (s *PostgresStore) listEntities(ctx context.Context, query string, args ...any) ([]*models.Entity, error) {
	rows, err := tx.Conn(ctx, s.pool).Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list entities: %w", err)
	}
	defer rows.Close()
	out := []*models.Entity{}
	for rows.Next() {
		e, err := scanEntity(rows)
		if err != nil {
			return nil, fmt.Errorf("scan entity: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func insertCheckpoint(ctx context.Context, q tx.Querier, cp *models.Checkpoint) error {
	env, err := marshalEnvironment(cp.Environment)
	if err != nil {
		return err
	}
	_, err = q.Exec(ctx, `
		INSERT INTO checkpoints (`+checkpointColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		cp.EntityID, int64(cp.Seq), cp.Timestamp, cp.Location, string(cp.Actor), cp.Status,
		env, cp.Note, cp.EditedAt,
	)
	if err != nil {
		return fmt.Errorf("insert checkpoint %d/%d: %w", cp.EntityID, cp.Seq, postgres.TranslateError(err))
	}
	return nil
}

func marshalEnvironment(env *models.Environment) ([]byte, error) {
	if env == nil {
		return nil, nil
	}
	b, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("marshal environment: %w", err)
	}
	return b, nil
}

func scanEntity(row pgx.Row) (*models.Entity, error) {
	var e models.Entity
	var owner string
	err := row.Scan(&e.ID, &e.Name, &e.Type, &owner, &e.BatchKey, &e.ValidFrom, &e.ValidUntil,
		&e.Attributes, &e.MetadataRef, &e.Active, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return nil, err
	}
	e.Owner = id.ActorID(owner)
	if e.Attributes == nil {
		e.Attributes = []string{}
	}
	return &e, nil
}

func scanCheckpoint(row pgx.Row) (*models.Checkpoint, error) {
	var cp models.Checkpoint
	var seq int64
	var actor string
	var env []byte
	err := row.Scan(&cp.EntityID, &seq, &cp.Timestamp, &cp.Location, &actor, &cp.Status,
		&env, &cp.Note, &cp.EditedAt)
	if err != nil {
		return nil, err
	}
	cp.Seq = uint64(seq)
	cp.Actor = id.ActorID(actor)
	cp.Timestamp = cp.Timestamp.UTC()
	if cp.EditedAt != nil {
		t := cp.EditedAt.UTC()
		cp.EditedAt = &t
	}
	if len(env) > 0 {
		cp.Environment = &models.Environment{}
		if err := json.Unmarshal(env, cp.Environment); err != nil {
			return nil, fmt.Errorf("decode environment: %w", err)
		}
	}
	return &cp, nil
}

