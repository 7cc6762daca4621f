package persistence

import (
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/petrijr/stepflow/pkg/api"
)

// SQLiteRunStore is a RunStore backed by SQLite, keeping the run audit
// trail across invocations.
//
// It expects an *sql.DB that uses a SQLite driver (for example,
// "modernc.org/sqlite"). The caller is responsible for importing
// the driver, e.g.:
//
//	import _ "modernc.org/sqlite"
type SQLiteRunStore struct {
	db *sql.DB
}

// Ensure SQLiteRunStore implements RunStore.
var _ RunStore = (*SQLiteRunStore)(nil)

// NewSQLiteRunStore initializes the required schema in the given database
// and returns a new SQLiteRunStore.
func NewSQLiteRunStore(db *sql.DB) (*SQLiteRunStore, error) {
	s := &SQLiteRunStore{db: db}
	if err := s.initSchema(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SQLiteRunStore) initSchema() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			pipeline TEXT NOT NULL,
			status TEXT NOT NULL,
			current_step TEXT NOT NULL,
			started_at INTEGER NOT NULL,
			finished_at INTEGER,
			error TEXT
		);`,
	)
	return err
}

func (s *SQLiteRunStore) SaveRun(r *api.RunRecord) error {
	errStr := ""
	if r.Err != nil {
		errStr = r.Err.Error()
	}

	_, err := s.db.Exec(`
		INSERT INTO runs (id, pipeline, status, current_step, started_at, finished_at, error)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		r.ID,
		r.Pipeline,
		string(r.Status),
		r.CurrentStep,
		r.StartedAt.UnixMilli(),
		finishedMilli(r.FinishedAt),
		errStr,
	)
	return err
}

func (s *SQLiteRunStore) UpdateRun(r *api.RunRecord) error {
	errStr := ""
	if r.Err != nil {
		errStr = r.Err.Error()
	}

	res, err := s.db.Exec(`
		UPDATE runs
		SET pipeline = ?, status = ?, current_step = ?, started_at = ?, finished_at = ?, error = ?
		WHERE id = ?`,
		r.Pipeline,
		string(r.Status),
		r.CurrentStep,
		r.StartedAt.UnixMilli(),
		finishedMilli(r.FinishedAt),
		errStr,
		r.ID,
	)
	if err != nil {
		return err
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrRunNotFound
	}

	return nil
}

func (s *SQLiteRunStore) GetRun(id string) (*api.RunRecord, error) {
	row := s.db.QueryRow(`
		SELECT id, pipeline, status, current_step, started_at, finished_at, error
		FROM runs
		WHERE id = ?`,
		id,
	)

	r, err := scanRun(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRunNotFound
		}
		return nil, err
	}
	return r, nil
}

func (s *SQLiteRunStore) ListRuns(filter RunFilter) ([]*api.RunRecord, error) {
	query := `
		SELECT id, pipeline, status, current_step, started_at, finished_at, error
		FROM runs`
	var args []any
	var clauses []string

	if filter.Pipeline != "" {
		clauses = append(clauses, "pipeline = ?")
		args = append(args, filter.Pipeline)
	}
	if filter.Status != "" {
		clauses = append(clauses, "status = ?")
		args = append(args, string(filter.Status))
	}

	if len(clauses) > 0 {
		query = query + " WHERE " + strings.Join(clauses, " AND ")
	}
	query = query + " ORDER BY started_at"

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []*api.RunRecord
	for rows.Next() {
		r, err := scanRun(rows.Scan)
		if err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return runs, nil
}

func scanRun(scan func(dest ...any) error) (*api.RunRecord, error) {
	var r api.RunRecord
	var statusStr string
	var startedAt int64
	var finishedAt sql.NullInt64
	var errStr sql.NullString

	if err := scan(&r.ID, &r.Pipeline, &statusStr, &r.CurrentStep, &startedAt, &finishedAt, &errStr); err != nil {
		return nil, err
	}

	r.Status = api.Status(statusStr)
	r.StartedAt = time.UnixMilli(startedAt)
	if finishedAt.Valid && finishedAt.Int64 != 0 {
		r.FinishedAt = time.UnixMilli(finishedAt.Int64)
	}
	if errStr.Valid && errStr.String != "" {
		r.Err = errors.New(errStr.String)
	}

	return &r, nil
}

func finishedMilli(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}
