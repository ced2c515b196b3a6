package versioned

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

const table = "qc.field_configurations"

var entryCols = []string{"project_id", "version", "is_active", "body", "created_by", "created_at"}

func newMock(t *testing.T) pgxmock.PgxPoolIface {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return mock
}

func TestLog_Current(t *testing.T) {
	mock := newMock(t)
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	mock.ExpectQuery("SELECT project_id, version, is_active, body").
		WithArgs("p1").
		WillReturnRows(pgxmock.NewRows(entryCols).
			AddRow("p1", 3, true, []byte(`["a","b"]`), "ops", at))

	e, err := NewLog[[]string](mock, table).Current(context.Background(), "p1")
	require.NoError(t, err)
	assert.Equal(t, 3, e.Version)
	assert.True(t, e.IsActive)
	assert.Equal(t, []string{"a", "b"}, e.Body)
	assert.Equal(t, "ops", e.CreatedBy)
	assert.Equal(t, at, e.CreatedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLog_CurrentNotFound(t *testing.T) {
	mock := newMock(t)
	mock.ExpectQuery("SELECT project_id").WithArgs("p1").WillReturnError(pgx.ErrNoRows)

	_, err := NewLog[[]string](mock, table).Current(context.Background(), "p1")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestLog_AtZeroResolvesCurrent(t *testing.T) {
	mock := newMock(t)
	mock.ExpectQuery("is_active").
		WithArgs("p1").
		WillReturnRows(pgxmock.NewRows(entryCols).AddRow("p1", 5, true, []byte(`[]`), "", time.Now()))

	e, err := NewLog[[]string](mock, table).At(context.Background(), "p1", 0)
	require.NoError(t, err)
	assert.Equal(t, 5, e.Version)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLog_AtPinnedVersion(t *testing.T) {
	mock := newMock(t)
	mock.ExpectQuery("version = ").
		WithArgs("p1", 2).
		WillReturnRows(pgxmock.NewRows(entryCols).AddRow("p1", 2, false, []byte(`["old"]`), "", time.Now()))

	e, err := NewLog[[]string](mock, table).At(context.Background(), "p1", 2)
	require.NoError(t, err)
	assert.Equal(t, 2, e.Version)
	assert.False(t, e.IsActive)
	assert.Equal(t, []string{"old"}, e.Body)
}

func TestLog_AtQueryError(t *testing.T) {
	mock := newMock(t)
	mock.ExpectQuery("version = ").WithArgs("p1", 9).WillReturnError(errors.New("conn reset"))

	_, err := NewLog[[]string](mock, table).At(context.Background(), "p1", 9)
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrNotFound))
	assert.Contains(t, err.Error(), "version 9")
}

func TestLog_History(t *testing.T) {
	mock := newMock(t)
	mock.ExpectQuery("ORDER BY version DESC").
		WithArgs("p1").
		WillReturnRows(pgxmock.NewRows(entryCols).
			AddRow("p1", 2, true, []byte(`["b"]`), "", time.Now()).
			AddRow("p1", 1, false, []byte(`["a"]`), "", time.Now()))

	h, err := NewLog[[]string](mock, table).History(context.Background(), "p1")
	require.NoError(t, err)
	require.Len(t, h, 2)
	assert.Equal(t, 2, h[0].Version)
	assert.Equal(t, []string{"a"}, h[1].Body)
}

func TestLog_AppendFirstVersion(t *testing.T) {
	mock := newMock(t)
	at := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectQuery("FOR UPDATE").WithArgs("p1").WillReturnError(pgx.ErrNoRows)
	mock.ExpectQuery("COALESCE\\(MAX\\(version\\), 0\\) \\+ 1").
		WithArgs("p1").
		WillReturnRows(pgxmock.NewRows([]string{"next"}).AddRow(1))
	mock.ExpectExec("UPDATE .* SET is_active = false").
		WithArgs("p1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectQuery("INSERT INTO").
		WithArgs("p1", 1, []byte(`["a"]`), "alice").
		WillReturnRows(pgxmock.NewRows([]string{"created_at"}).AddRow(at))
	mock.ExpectCommit()

	var sawCurrent *Entry[[]string]
	e, err := NewLog[[]string](mock, table).Append(context.Background(), "p1", "alice",
		func(cur *Entry[[]string]) ([]string, error) {
			sawCurrent = cur
			return []string{"a"}, nil
		})

	require.NoError(t, err)
	assert.Nil(t, sawCurrent)
	assert.Equal(t, 1, e.Version)
	assert.True(t, e.IsActive)
	assert.Equal(t, at, e.CreatedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLog_AppendNextVersion(t *testing.T) {
	mock := newMock(t)

	mock.ExpectBegin()
	mock.ExpectQuery("FOR UPDATE").
		WithArgs("p1").
		WillReturnRows(pgxmock.NewRows(entryCols).AddRow("p1", 4, true, []byte(`["a"]`), "bob", time.Now()))
	mock.ExpectQuery("COALESCE").
		WithArgs("p1").
		WillReturnRows(pgxmock.NewRows([]string{"next"}).AddRow(5))
	mock.ExpectExec("SET is_active = false").
		WithArgs("p1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectQuery("INSERT INTO").
		WithArgs("p1", 5, []byte(`["a","b"]`), "alice").
		WillReturnRows(pgxmock.NewRows([]string{"created_at"}).AddRow(time.Now()))
	mock.ExpectCommit()

	e, err := NewLog[[]string](mock, table).Append(context.Background(), "p1", "alice",
		func(cur *Entry[[]string]) ([]string, error) {
			require.NotNil(t, cur)
			return append(cur.Body, "b"), nil
		})

	require.NoError(t, err)
	assert.Equal(t, 5, e.Version)
	assert.Equal(t, []string{"a", "b"}, e.Body)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLog_AppendMutateErrorRollsBack(t *testing.T) {
	mock := newMock(t)

	mock.ExpectBegin()
	mock.ExpectQuery("FOR UPDATE").WithArgs("p1").WillReturnError(pgx.ErrNoRows)
	mock.ExpectRollback()

	_, err := NewLog[[]string](mock, table).Append(context.Background(), "p1", "alice",
		func(*Entry[[]string]) ([]string, error) {
			return nil, errors.New("invalid scope")
		})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid scope")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLog_AppendInsertErrorRollsBack(t *testing.T) {
	mock := newMock(t)

	mock.ExpectBegin()
	mock.ExpectQuery("FOR UPDATE").WithArgs("p1").WillReturnError(pgx.ErrNoRows)
	mock.ExpectQuery("COALESCE").WithArgs("p1").WillReturnRows(pgxmock.NewRows([]string{"next"}).AddRow(1))
	mock.ExpectExec("SET is_active = false").WithArgs("p1").WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectQuery("INSERT INTO").
		WithArgs("p1", 1, []byte(`["x"]`), "alice").
		WillReturnError(errors.New("duplicate key value violates unique constraint"))
	mock.ExpectRollback()

	_, err := NewLog[[]string](mock, table).Append(context.Background(), "p1", "alice",
		func(*Entry[[]string]) ([]string, error) { return []string{"x"}, nil })

	require.Error(t, err)
	assert.Contains(t, err.Error(), "versioned: insert")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLog_LockError(t *testing.T) {
	mock := newMock(t)

	mock.ExpectBegin()
	mock.ExpectQuery("FOR UPDATE").WithArgs("p1").WillReturnError(errors.New("lock timeout"))
	mock.ExpectRollback()

	_, err := NewLog[[]string](mock, table).Append(context.Background(), "p1", "alice",
		func(*Entry[[]string]) ([]string, error) { return nil, nil })

	require.Error(t, err)
	assert.Contains(t, err.Error(), "lock active")
	assert.Equal(t, table, NewLog[[]string](mock, table).Table())
}
