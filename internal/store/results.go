package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rotisserie/eris"

	"github.com/sells-group/keying-qc/internal/db"
	"github.com/sells-group/keying-qc/internal/model"
)

// mergeMistakesExpr unions the stored and incoming mistake arrays. A mistake
// is identified by its location, step pair and values; when both sides hold
// one, the stored copy wins so reviewed status and error type survive
// reprocessing. Array order (and so mistake indexes) is preserved.
const mergeMistakesExpr = `(SELECT COALESCE(jsonb_agg(d.m ORDER BY d.ord), '[]'::jsonb)
	FROM (SELECT DISTINCT ON (` + mistakeIdentity + `) e.m, e.ord
	      FROM jsonb_array_elements(t.mistakes || EXCLUDED.mistakes) WITH ORDINALITY AS e(m, ord)
	      ORDER BY ` + mistakeIdentity + `, e.ord) AS d)`

// mistakeIdentity mirrors model.MistakeRecord.LocationKey plus the step
// names and captured values.
const mistakeIdentity = `e.m->>'doc_id', e.m->>'field_name', e.m->>'system_record_id',
	COALESCE(e.m->>'line_id', ''), e.m->>'task_keyer_name', e.m->>'task_final_name',
	e.m->>'value_keyer', e.m->>'value_final'`

func mistakeUpsert(table string) db.UpsertConfig {
	return db.UpsertConfig{
		Table:        table,
		Columns:      []string{"doc_id", "batch_id", "imported_date", "field_config_version", "threshold_version", "mistakes"},
		ConflictKeys: []string{"doc_id"},
		// The stamp follows the latest write, like the keying row.
		UpdateCols: []string{
			"batch_id", "imported_date", "field_config_version", "threshold_version",
			"mistakes", "revision", "updated_at",
		},
		MergeExprs: map[string]string{
			"mistakes":   mergeMistakesExpr,
			"revision":   "t.revision + 1",
			"updated_at": "now()",
		},
	}
}

func keyingUpsert(table string) db.UpsertConfig {
	return db.UpsertConfig{
		Table: table,
		Columns: []string{
			"doc_id", "batch_id", "imported_date", "field_config_version", "threshold_version",
			"keying_details", "total_field_document", "total_character_document",
			"total_line_document", "total_record_document",
		},
		ConflictKeys: []string{"doc_id"},
		UpdateCols: []string{
			"batch_id", "imported_date", "field_config_version", "threshold_version",
			"keying_details", "total_field_document", "total_character_document",
			"total_line_document", "total_record_document", "updated_at",
		},
		MergeExprs: map[string]string{"updated_at": "now()"},
	}
}

// WriteResults upserts a batch of processed documents. Keying rows are full
// replacements; mistake rows are merged into the stored set. Documents with
// no mistakes produce no mistake write.
func (s *PostgresStore) WriteResults(ctx context.Context, projectID string, results []DocumentResult) (Written, error) {
	var w Written
	if len(results) == 0 {
		return w, nil
	}
	if err := ValidateProjectID(projectID); err != nil {
		return w, err
	}
	t := Collections(projectID)

	var mistakeRows, keyingRows [][]any
	for _, r := range latestPerDoc(results) {
		if m := r.Mistakes; m != nil && len(m.Mistakes) > 0 {
			js, err := json.Marshal(m.Mistakes)
			if err != nil {
				return w, eris.Wrapf(err, "postgres: marshal mistakes for %s", m.DocID)
			}
			mistakeRows = append(mistakeRows, []any{
				m.DocID, m.BatchID, m.ImportedDate, m.FieldConfigVersion, m.ThresholdVersion, js,
			})
			w.Mistakes += len(m.Mistakes)
		}
		if k := r.Keying; k != nil {
			js, err := json.Marshal(k.Details)
			if err != nil {
				return w, eris.Wrapf(err, "postgres: marshal keying details for %s", k.DocID)
			}
			keyingRows = append(keyingRows, []any{
				k.DocID, k.BatchID, k.ImportedDate, k.FieldConfigVersion, k.ThresholdVersion, js,
				k.TotalFieldDocument, k.TotalCharacterDocument, k.TotalLineDocument, k.TotalRecordDocument,
			})
			w.Effort++
		}
	}

	if _, err := db.BulkUpsert(ctx, s.pool, keyingUpsert(t.Keying), keyingRows); err != nil {
		return Written{}, eris.Wrapf(err, "postgres: write keying amounts for %s", projectID)
	}
	if _, err := db.BulkUpsert(ctx, s.pool, mistakeUpsert(t.Mistakes), mistakeRows); err != nil {
		return Written{Effort: w.Effort}, eris.Wrapf(err, "postgres: write mistake details for %s", projectID)
	}
	return w, nil
}

// latestPerDoc keeps the last result of each document so one statement never
// touches a row twice.
func latestPerDoc(results []DocumentResult) []DocumentResult {
	idx := make(map[string]int, len(results))
	out := make([]DocumentResult, 0, len(results))
	for _, r := range results {
		if i, ok := idx[r.DocID]; ok {
			out[i] = r
			continue
		}
		idx[r.DocID] = len(out)
		out = append(out, r)
	}
	return out
}

// ListKeyingAmounts returns keying documents imported in [from, to). A project
// that has never been processed yields no rows.
func (s *PostgresStore) ListKeyingAmounts(ctx context.Context, projectID string, from, to time.Time) ([]model.KeyingAmountDocument, error) {
	if err := ValidateProjectID(projectID); err != nil {
		return nil, err
	}
	rows, err := s.pool.Query(ctx, fmt.Sprintf(
		`SELECT doc_id, batch_id, imported_date, field_config_version, threshold_version,
		        keying_details, total_field_document, total_character_document,
		        total_line_document, total_record_document
		 FROM %s WHERE imported_date >= $1 AND imported_date < $2
		 ORDER BY imported_date, doc_id`, db.SanitizeTable(Collections(projectID).Keying)),
		from, to,
	)
	if err != nil {
		if isUndefinedTable(err) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "postgres: list keying amounts for %s", projectID)
	}
	defer rows.Close()

	var out []model.KeyingAmountDocument
	for rows.Next() {
		var k model.KeyingAmountDocument
		var details []byte
		if err := rows.Scan(&k.DocID, &k.BatchID, &k.ImportedDate, &k.FieldConfigVersion, &k.ThresholdVersion,
			&details, &k.TotalFieldDocument, &k.TotalCharacterDocument,
			&k.TotalLineDocument, &k.TotalRecordDocument); err != nil {
			return nil, eris.Wrap(err, "postgres: scan keying amount")
		}
		if err := json.Unmarshal(details, &k.Details); err != nil {
			return nil, eris.Wrapf(err, "postgres: unmarshal keying details for %s", k.DocID)
		}
		out = append(out, k)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list keying amounts iterate")
}

// ListMistakeReports returns mistake reports imported in [from, to).
func (s *PostgresStore) ListMistakeReports(ctx context.Context, projectID string, from, to time.Time) ([]model.MistakeReport, error) {
	if err := ValidateProjectID(projectID); err != nil {
		return nil, err
	}
	rows, err := s.pool.Query(ctx, fmt.Sprintf(
		`SELECT doc_id, batch_id, imported_date, field_config_version, threshold_version, mistakes, revision
		 FROM %s WHERE imported_date >= $1 AND imported_date < $2
		 ORDER BY imported_date, doc_id`, db.SanitizeTable(Collections(projectID).Mistakes)),
		from, to,
	)
	if err != nil {
		if isUndefinedTable(err) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "postgres: list mistake reports for %s", projectID)
	}
	defer rows.Close()

	var out []model.MistakeReport
	for rows.Next() {
		var m model.MistakeReport
		var mistakes []byte
		if err := rows.Scan(&m.DocID, &m.BatchID, &m.ImportedDate, &m.FieldConfigVersion,
			&m.ThresholdVersion, &mistakes, &m.Revision); err != nil {
			return nil, eris.Wrap(err, "postgres: scan mistake report")
		}
		if err := json.Unmarshal(mistakes, &m.Mistakes); err != nil {
			return nil, eris.Wrapf(err, "postgres: unmarshal mistakes for %s", m.DocID)
		}
		out = append(out, m)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list mistake reports iterate")
}

// SetMistakeStatus updates the workflow status (and optionally the error
// type) of one mistake, guarded by the report revision. It returns the new
// revision. A missing report or index yields ErrNotFound; a stale revision
// yields ErrConflict.
func (s *PostgresStore) SetMistakeStatus(ctx context.Context, projectID, docID string, expectedRevision, index int, status model.MistakeStatus, errorType *string) (int, error) {
	if !status.Valid() {
		return 0, eris.Errorf("postgres: invalid mistake status %q", status)
	}
	if err := ValidateProjectID(projectID); err != nil {
		return 0, err
	}
	table := db.SanitizeTable(Collections(projectID).Mistakes)

	var revision int
	err := s.pool.QueryRow(ctx, fmt.Sprintf(
		`UPDATE %s SET
		   mistakes = jsonb_set(
		     jsonb_set(mistakes, ARRAY[$3::text, 'status'], to_jsonb($4::text)),
		     ARRAY[$3::text, 'error_type'], COALESCE(to_jsonb($5::text), 'null'::jsonb)),
		   revision = revision + 1,
		   updated_at = now()
		 WHERE doc_id = $1 AND revision = $2 AND jsonb_array_length(mistakes) > $3
		 RETURNING revision`, table),
		docID, expectedRevision, index, string(status), errorType,
	).Scan(&revision)
	if err == nil {
		return revision, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return 0, eris.Wrapf(err, "postgres: set mistake status %s/%d", docID, index)
	}

	// Nothing updated: tell a missing target from a stale revision.
	var current, length int
	err = s.pool.QueryRow(ctx, fmt.Sprintf(
		`SELECT revision, jsonb_array_length(mistakes) FROM %s WHERE doc_id = $1`, table),
		docID,
	).Scan(&current, &length)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return 0, eris.Wrapf(ErrNotFound, "postgres: mistake report %s", docID)
	case err != nil:
		return 0, eris.Wrapf(err, "postgres: check mistake report %s", docID)
	case index < 0 || index >= length:
		return 0, eris.Wrapf(ErrNotFound, "postgres: mistake %s/%d", docID, index)
	default:
		return 0, eris.Wrapf(ErrConflict, "postgres: mistake report %s at revision %d, expected %d", docID, current, expectedRevision)
	}
}

func isUndefinedTable(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "42P01"
}
