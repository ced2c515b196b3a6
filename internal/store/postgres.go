package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/keying-qc/internal/db"
	"github.com/sells-group/keying-qc/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// NewPostgresFromPool wraps an existing pool. Close is a no-op.
func NewPostgresFromPool(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Pool returns the underlying database pool for subsystems that share it
// (pattern settings, configuration versions, checkpoints, run log).
func (s *PostgresStore) Pool() db.Pool {
	return s.pool
}

// Ping checks connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

// Migrate applies the embedded schema migrations.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	return Migrate(ctx, s.pool)
}

// Close releases the pool when the store owns it.
func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

const projectColumns = `id, name, multi_row_sections, field_not_count, active`

func scanProject(row pgx.Row) (*model.Project, error) {
	var p model.Project
	if err := row.Scan(&p.ID, &p.Name, &p.MultiRowSections, &p.FieldNotCount, &p.Active); err != nil {
		return nil, err
	}
	return &p, nil
}

// ListProjects returns projects ordered by id.
func (s *PostgresStore) ListProjects(ctx context.Context, activeOnly bool) ([]model.Project, error) {
	query := `SELECT ` + projectColumns + ` FROM qc.projects`
	if activeOnly {
		query += ` WHERE active`
	}
	query += ` ORDER BY id`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list projects")
	}
	defer rows.Close()

	var out []model.Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan project")
		}
		out = append(out, *p)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list projects iterate")
}

// GetProject returns one project or ErrNotFound.
func (s *PostgresStore) GetProject(ctx context.Context, projectID string) (*model.Project, error) {
	p, err := scanProject(s.pool.QueryRow(ctx,
		`SELECT `+projectColumns+` FROM qc.projects WHERE id = $1`, projectID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, eris.Wrapf(ErrNotFound, "postgres: project %s", projectID)
		}
		return nil, eris.Wrapf(err, "postgres: get project %s", projectID)
	}
	return p, nil
}

// UpsertProject creates or replaces a project definition.
func (s *PostgresStore) UpsertProject(ctx context.Context, p model.Project) error {
	if err := ValidateProjectID(p.ID); err != nil {
		return err
	}
	multi := p.MultiRowSections
	if multi == nil {
		multi = []string{}
	}
	notCount := p.FieldNotCount
	if notCount == nil {
		notCount = []string{}
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO qc.projects (id, name, multi_row_sections, field_not_count, active, updated_at)
		 VALUES ($1, $2, $3, $4, $5, now())
		 ON CONFLICT (id) DO UPDATE SET name = $2, multi_row_sections = $3,
		   field_not_count = $4, active = $5, updated_at = now()`,
		p.ID, p.Name, multi, notCount, p.Active,
	)
	return eris.Wrapf(err, "postgres: upsert project %s", p.ID)
}

// EnsureProjectTables creates the project's result tables when missing.
func (s *PostgresStore) EnsureProjectTables(ctx context.Context, projectID string) error {
	if err := ValidateProjectID(projectID); err != nil {
		return err
	}
	t := Collections(projectID)
	mistakes := db.SanitizeTable(t.Mistakes)
	keying := db.SanitizeTable(t.Keying)

	sql := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %[1]s (
			doc_id               TEXT PRIMARY KEY,
			batch_id             TEXT NOT NULL DEFAULT '',
			imported_date        TIMESTAMPTZ NOT NULL,
			field_config_version INTEGER NOT NULL DEFAULT 0,
			threshold_version    INTEGER NOT NULL DEFAULT 0,
			mistakes             JSONB NOT NULL DEFAULT '[]',
			revision             INTEGER NOT NULL DEFAULT 0,
			updated_at           TIMESTAMPTZ NOT NULL DEFAULT now()
		);
		CREATE INDEX IF NOT EXISTS %[2]s ON %[1]s (imported_date);

		CREATE TABLE IF NOT EXISTS %[3]s (
			doc_id                   TEXT PRIMARY KEY,
			batch_id                 TEXT NOT NULL DEFAULT '',
			imported_date            TIMESTAMPTZ NOT NULL,
			field_config_version     INTEGER NOT NULL DEFAULT 0,
			threshold_version        INTEGER NOT NULL DEFAULT 0,
			keying_details           JSONB NOT NULL DEFAULT '[]',
			total_field_document     INTEGER NOT NULL DEFAULT 0,
			total_character_document INTEGER NOT NULL DEFAULT 0,
			total_line_document      INTEGER NOT NULL DEFAULT 0,
			total_record_document    INTEGER NOT NULL DEFAULT 0,
			updated_at               TIMESTAMPTZ NOT NULL DEFAULT now()
		);
		CREATE INDEX IF NOT EXISTS %[4]s ON %[3]s (imported_date);`,
		mistakes,
		pgx.Identifier{"idx_mistake_details_" + projectID + "_date"}.Sanitize(),
		keying,
		pgx.Identifier{"idx_keying_amount_" + projectID + "_date"}.Sanitize(),
	)
	if _, err := s.pool.Exec(ctx, sql); err != nil {
		return eris.Wrapf(err, "postgres: ensure tables for %s", projectID)
	}
	return nil
}
