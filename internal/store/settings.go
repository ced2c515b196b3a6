package store

import (
	"context"

	"github.com/rotisserie/eris"
)

// SetSetting writes one row of qc.settings.
func (s *PostgresStore) SetSetting(ctx context.Context, key, value string) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO qc.settings (key, value, updated_at) VALUES ($1, $2, now())
		 ON CONFLICT (key) DO UPDATE SET value = $2, updated_at = now()`,
		key, value,
	)
	return eris.Wrapf(err, "postgres: set setting %s", key)
}

// Settings returns every row of qc.settings.
func (s *PostgresStore) Settings(ctx context.Context) (map[string]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT key, value FROM qc.settings ORDER BY key`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list settings")
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, eris.Wrap(err, "postgres: scan setting")
		}
		out[k] = v
	}
	return out, eris.Wrap(rows.Err(), "postgres: list settings iterate")
}
