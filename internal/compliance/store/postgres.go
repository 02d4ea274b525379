package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"tracecore/internal/compliance/models"
	"tracecore/internal/platform/postgres"
	id "tracecore/pkg/domain"
	"tracecore/pkg/platform/sentinel"
	"tracecore/pkg/platform/tx"
)

const (
	ruleColumns  = `id, name, entity_type, requirement, standard, severity, active, created_at, updated_at`
	checkColumns = `entity_id, check_index, rule_id, passed, evidence, confidence, actor, recorded_at, note, evidence_updated_at`
)

// PostgresStore persists compliance state in Postgres. Check appends and the
// status projection share one transaction.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgres(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) CreateRule(ctx context.Context, r *models.Rule) error {
	_, err := tx.Conn(ctx, s.pool).Exec(ctx, `
		INSERT INTO compliance_rules (`+ruleColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		string(r.ID), r.Name, r.EntityType, r.Requirement, r.Standard, r.Severity, r.Active, r.CreatedAt, r.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("create rule: %w", postgres.TranslateError(err))
	}
	return nil
}

func (s *PostgresStore) FindRule(ctx context.Context, ruleID id.RuleID) (*models.Rule, error) {
	row := tx.Conn(ctx, s.pool).QueryRow(ctx, `SELECT `+ruleColumns+` FROM compliance_rules WHERE id = $1`, string(ruleID))
	r, err := scanRule(row)
	if err != nil {
		return nil, fmt.Errorf("find rule: %w", postgres.TranslateError(err))
	}
	return r, nil
}

func (s *PostgresStore) UpdateRule(ctx context.Context, r *models.Rule) error {
	tag, err := tx.Conn(ctx, s.pool).Exec(ctx,
		`UPDATE compliance_rules SET active = $2, updated_at = $3 WHERE id = $1`,
		string(r.ID), r.Active, r.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update rule: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) ListRules(ctx context.Context) ([]*models.Rule, error) {
	return s.listRules(ctx, `SELECT `+ruleColumns+` FROM compliance_rules ORDER BY id`)
}

func (s *PostgresStore) ListRulesByType(ctx context.Context, entityType string) ([]*models.Rule, error) {
	return s.listRules(ctx, `SELECT `+ruleColumns+` FROM compliance_rules WHERE entity_type = $1 ORDER BY id`, entityType)
}

func (s *PostgresStore) listRules(ctx context.Context, query string, args ...any) ([]*models.Rule, error) {
	rows, err := tx.Conn(ctx, s.pool).Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list rules: %w", err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*models.Rule, error) {
		return scanRule(row)
	})
	if err != nil {
		return nil, fmt.Errorf("list rules: %w", err)
	}
	return out, nil
}

// AppendChecks inserts checks and upserts the status in one transaction. The
// (entity_id, check_index) key turns an index race into ErrConflict.
func (s *PostgresStore) AppendChecks(ctx context.Context, entityID id.EntityID, checks []*models.Check, status *models.Status) error {
	return tx.Run(ctx, s.pool, func(ctx context.Context) error {
		q := tx.Conn(ctx, s.pool)
		var next int64
		if err := q.QueryRow(ctx,
			`SELECT COALESCE(MAX(check_index) + 1, 0) FROM compliance_checks WHERE entity_id = $1`, entityID,
		).Scan(&next); err != nil {
			return fmt.Errorf("next check index: %w", err)
		}
		for i, c := range checks {
			if c.Index != uint64(next)+uint64(i) {
				return sentinel.ErrConflict
			}
			_, err := q.Exec(ctx, `
				INSERT INTO compliance_checks (`+checkColumns+`)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
				c.EntityID, int64(c.Index), string(c.RuleID), c.Passed, c.Evidence, c.Confidence,
				string(c.Actor), c.Timestamp, c.Note, c.EvidenceUpdatedAt,
			)
			if err != nil {
				return fmt.Errorf("insert check %d/%d: %w", c.EntityID, c.Index, postgres.TranslateError(err))
			}
		}
		return saveStatus(ctx, q, status)
	})
}

func (s *PostgresStore) ListChecks(ctx context.Context, entityID id.EntityID) ([]*models.Check, error) {
	rows, err := tx.Conn(ctx, s.pool).Query(ctx,
		`SELECT `+checkColumns+` FROM compliance_checks WHERE entity_id = $1 ORDER BY check_index`, entityID)
	if err != nil {
		return nil, fmt.Errorf("list checks: %w", err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*models.Check, error) {
		return scanCheck(row)
	})
	if err != nil {
		return nil, fmt.Errorf("list checks: %w", err)
	}
	if out == nil {
		out = []*models.Check{}
	}
	return out, nil
}

func (s *PostgresStore) FindCheck(ctx context.Context, entityID id.EntityID, index uint64) (*models.Check, error) {
	row := tx.Conn(ctx, s.pool).QueryRow(ctx,
		`SELECT `+checkColumns+` FROM compliance_checks WHERE entity_id = $1 AND check_index = $2`, entityID, int64(index))
	c, err := scanCheck(row)
	if err != nil {
		return nil, fmt.Errorf("find check: %w", postgres.TranslateError(err))
	}
	return c, nil
}

func (s *PostgresStore) UpdateEvidence(ctx context.Context, c *models.Check) error {
	tag, err := tx.Conn(ctx, s.pool).Exec(ctx, `
		UPDATE compliance_checks SET evidence = $3, evidence_updated_at = $4
		WHERE entity_id = $1 AND check_index = $2`,
		c.EntityID, int64(c.Index), c.Evidence, c.EvidenceUpdatedAt)
	if err != nil {
		return fmt.Errorf("update evidence: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) FindStatus(ctx context.Context, entityID id.EntityID) (*models.Status, error) {
	var st models.Status
	var total, passed, failed int32
	var version int64
	var failedRules []string
	err := tx.Conn(ctx, s.pool).QueryRow(ctx, `
		SELECT entity_id, compliant, total, passed, failed, failed_rules, last_checked_at, version
		FROM compliance_status WHERE entity_id = $1`, entityID,
	).Scan(&st.EntityID, &st.Compliant, &total, &passed, &failed, &failedRules, &st.LastCheckedAt, &version)
	if err != nil {
		return nil, fmt.Errorf("find status: %w", postgres.TranslateError(err))
	}
	st.Total, st.Passed, st.Failed, st.Version = uint64(total), uint64(passed), uint64(failed), uint64(version)
	st.FailedRules = make([]id.RuleID, len(failedRules))
	for i, r := range failedRules {
		st.FailedRules[i] = id.RuleID(r)
	}
	if st.LastCheckedAt != nil {
		t := st.LastCheckedAt.UTC()
		st.LastCheckedAt = &t
	}
	return &st, nil
}

func (s *PostgresStore) SaveStatus(ctx context.Context, status *models.Status) error {
	return saveStatus(ctx, tx.Conn(ctx, s.pool), status)
}

func saveStatus(ctx context.Context, q tx.Querier, st *models.Status) error {
	failedRules := make([]string, len(st.FailedRules))
	for i, r := range st.FailedRules {
		failedRules[i] = string(r)
	}
	_, err := q.Exec(ctx, `
		INSERT INTO compliance_status (entity_id, compliant, total, passed, failed, failed_rules, last_checked_at, version)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (entity_id) DO UPDATE SET
			compliant = EXCLUDED.compliant,
			total = EXCLUDED.total,
			passed = EXCLUDED.passed,
			failed = EXCLUDED.failed,
			failed_rules = EXCLUDED.failed_rules,
			last_checked_at = EXCLUDED.last_checked_at,
			version = EXCLUDED.version`,
		st.EntityID, st.Compliant, int64(st.Total), int64(st.Passed), int64(st.Failed),
		failedRules, st.LastCheckedAt, int64(st.Version),
	)
	if err != nil {
		return fmt.Errorf("save status: %w", postgres.TranslateError(err))
	}
	return nil
}

func scanRule(row pgx.Row) (*models.Rule, error) {
	var r models.Rule
	var ruleID string
	var severity int16
	err := row.Scan(&ruleID, &r.Name, &r.EntityType, &r.Requirement, &r.Standard, &severity, &r.Active, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return nil, err
	}
	r.ID = id.RuleID(ruleID)
	r.Severity = int(severity)
	return &r, nil
}

func scanCheck(row pgx.Row) (*models.Check, error) {
	var c models.Check
	var index int64
	var ruleID, actor string
	var confidence int16
	err := row.Scan(&c.EntityID, &index, &ruleID, &c.Passed, &c.Evidence, &confidence,
		&actor, &c.Timestamp, &c.Note, &c.EvidenceUpdatedAt)
	if err != nil {
		return nil, err
	}
	c.Index = uint64(index)
	c.RuleID = id.RuleID(ruleID)
	c.Actor = id.ActorID(actor)
	c.Confidence = int(confidence)
	c.Timestamp = c.Timestamp.UTC()
	if c.EvidenceUpdatedAt != nil {
		t := c.EvidenceUpdatedAt.UTC()
		c.EvidenceUpdatedAt = &t
	}
	return &c, nil
}
