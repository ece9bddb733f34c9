package jobstore

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/prefeitura-rio/app-scim-sync/internal/models"
)

//go:embed schema.sql
var schemaSQL string

const jobColumns = `id, action, user_id, group_id, role_id, realm_id, component_id, external_id, retry_count, created_at`

// execer is satisfied by both *sql.DB and *sql.Tx
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// SQLStore is a Store backed by SQLite
type SQLStore struct {
	db   *sql.DB
	q    execer
	inTx bool
	opts options
}

// OpenSQLite creates or opens a SQLite job store at path. Use ":memory:" for tests.
func OpenSQLite(path string, opts ...Option) (*SQLStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// SQLite allows one writer; a single connection also keeps ":memory:" databases shared
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &SQLStore{db: db, q: db, opts: buildOptions(opts)}, nil
}

func (s *SQLStore) Enqueue(ctx context.Context, req EnqueueRequest) (*models.SyncJob, bool, error) {
	if err := validateRequest(req); err != nil {
		return nil, false, err
	}

	var (
		job     *models.SyncJob
		created bool
	)
	err := s.InTx(ctx, func(ctx context.Context, tx Store) error {
		st := tx.(*SQLStore)

		row := st.q.QueryRowContext(ctx,
			`SELECT `+jobColumns+` FROM scim_sync_jobs
			 WHERE realm_id = ? AND action = ? AND user_id = ? AND group_id = ? AND role_id = ?
			   AND retry_count BETWEEN 0 AND ?
			 ORDER BY created_at, id LIMIT 1`,
			req.RealmID, string(req.Action), req.UserID, req.GroupID, req.RoleID, s.opts.ceiling)
		existing, err := scanJob(row)
		if err == nil {
			job = existing
			return nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("find due job: %w", err)
		}

		job = s.opts.newJob(req)
		_, err = st.q.ExecContext(ctx,
			`INSERT INTO scim_sync_jobs (`+jobColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			job.ID, string(job.Action), job.UserID, job.GroupID, job.RoleID, job.RealmID,
			job.ComponentID, job.ExternalID, job.RetryCount, job.CreatedAt.UnixNano())
		if err != nil {
			return fmt.Errorf("insert job: %w", err)
		}
		created = true
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return job, created, nil
}

func (s *SQLStore) FetchDue(ctx context.Context, limit int) ([]*models.SyncJob, error) {
	return s.query(ctx,
		`SELECT `+jobColumns+` FROM scim_sync_jobs
		 WHERE retry_count BETWEEN 0 AND ?
		 ORDER BY created_at, id LIMIT ?`,
		s.opts.ceiling, sqlLimit(limit))
}

func (s *SQLStore) MarkRetry(ctx context.Context, job *models.SyncJob) error {
	res, err := s.q.ExecContext(ctx,
		`UPDATE scim_sync_jobs SET retry_count = retry_count + 1 WHERE id = ?`, job.ID)
	if err != nil {
		return fmt.Errorf("mark retry: %w", err)
	}
	if err := requireRow(res); err != nil {
		return err
	}
	job.RetryCount++
	return nil
}

func (s *SQLStore) Requeue(ctx context.Context, job *models.SyncJob) error {
	now := s.opts.now()
	res, err := s.q.ExecContext(ctx,
		`UPDATE scim_sync_jobs SET retry_count = retry_count + 1, created_at = ? WHERE id = ?`,
		now.UnixNano(), job.ID)
	if err != nil {
		return fmt.Errorf("requeue job: %w", err)
	}
	if err := requireRow(res); err != nil {
		return err
	}
	job.RetryCount++
	job.CreatedAt = now
	return nil
}

func (s *SQLStore) Remove(ctx context.Context, job *models.SyncJob) error {
	if _, err := s.q.ExecContext(ctx, `DELETE FROM scim_sync_jobs WHERE id = ?`, job.ID); err != nil {
		return fmt.Errorf("remove job: %w", err)
	}
	return nil
}

func (s *SQLStore) Get(ctx context.Context, id string) (*models.SyncJob, error) {
	job, err := scanJob(s.q.QueryRowContext(ctx,
		`SELECT `+jobColumns+` FROM scim_sync_jobs WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return job, nil
}

func (s *SQLStore) ListAbandoned(ctx context.Context, limit int) ([]*models.SyncJob, error) {
	return s.query(ctx,
		`SELECT `+jobColumns+` FROM scim_sync_jobs
		 WHERE retry_count > ?
		 ORDER BY created_at, id LIMIT ?`,
		s.opts.ceiling, sqlLimit(limit))
}

func (s *SQLStore) FindAbandoned(ctx context.Context, t models.JobTarget) (*models.SyncJob, error) {
	job, err := scanJob(s.q.QueryRowContext(ctx,
		`SELECT `+jobColumns+` FROM scim_sync_jobs
		 WHERE realm_id = ? AND action = ? AND user_id = ? AND group_id = ? AND role_id = ?
		   AND retry_count > ?
		 ORDER BY created_at, id LIMIT 1`,
		t.RealmID, string(t.Action), t.UserID, t.GroupID, t.RoleID, s.opts.ceiling))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find abandoned job: %w", err)
	}
	return job, nil
}

func (s *SQLStore) Park(ctx context.Context, job *models.SyncJob) error {
	parked := s.opts.parkedCount()
	res, err := s.q.ExecContext(ctx,
		`UPDATE scim_sync_jobs SET retry_count = ? WHERE id = ?`, parked, job.ID)
	if err != nil {
		return fmt.Errorf("park job: %w", err)
	}
	if err := requireRow(res); err != nil {
		return err
	}
	job.RetryCount = parked
	return nil
}

func (s *SQLStore) Revive(ctx context.Context, id string) (*models.SyncJob, error) {
	var revived *models.SyncJob
	err := s.InTx(ctx, func(ctx context.Context, tx Store) error {
		st := tx.(*SQLStore)

		job, err := st.Get(ctx, id)
		if err != nil {
			return err
		}
		if job.IsDue(s.opts.ceiling) {
			revived = job
			return nil
		}

		var n int
		err = st.q.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM scim_sync_jobs
			 WHERE id <> ? AND realm_id = ? AND action = ? AND user_id = ? AND group_id = ? AND role_id = ?
			   AND retry_count BETWEEN 0 AND ?`,
			id, job.RealmID, string(job.Action), job.UserID, job.GroupID, job.RoleID, s.opts.ceiling).Scan(&n)
		if err != nil {
			return fmt.Errorf("check duplicate: %w", err)
		}
		if n > 0 {
			return ErrDuplicateDue
		}

		if _, err := st.q.ExecContext(ctx, `UPDATE scim_sync_jobs SET retry_count = 0 WHERE id = ?`, id); err != nil {
			return fmt.Errorf("revive job: %w", err)
		}
		job.RetryCount = 0
		revived = job
		return nil
	})
	if err != nil {
		return nil, err
	}
	return revived, nil
}

func (s *SQLStore) Stats(ctx context.Context) (Stats, error) {
	var st Stats
	err := s.q.QueryRowContext(ctx,
		`SELECT
		   COALESCE(SUM(CASE WHEN retry_count BETWEEN 0 AND ? THEN 1 ELSE 0 END), 0),
		   COALESCE(SUM(CASE WHEN retry_count > ? THEN 1 ELSE 0 END), 0)
		 FROM scim_sync_jobs`,
		s.opts.ceiling, s.opts.ceiling).Scan(&st.Due, &st.Abandoned)
	if err != nil {
		return Stats{}, fmt.Errorf("job stats: %w", err)
	}
	return st, nil
}

// InTx runs fn inside a database transaction; nested calls reuse it
func (s *SQLStore) InTx(ctx context.Context, fn TxFunc) error {
	if s.inTx {
		return fn(ctx, s)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	if err := fn(ctx, &SQLStore{db: s.db, q: tx, inTx: true, opts: s.opts}); err != nil {
		_ = tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// Close closes the database connection
func (s *SQLStore) Close() error {
	if s.db == nil || s.inTx {
		return nil
	}
	return s.db.Close()
}

func (s *SQLStore) query(ctx context.Context, query string, args ...any) ([]*models.SyncJob, error) {
	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query jobs: %w", err)
	}
	defer rows.Close()

	jobs := make([]*models.SyncJob, 0)
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanJob(row scanner) (*models.SyncJob, error) {
	var (
		job       models.SyncJob
		action    string
		createdAt int64
	)
	err := row.Scan(&job.ID, &action, &job.UserID, &job.GroupID, &job.RoleID, &job.RealmID,
		&job.ComponentID, &job.ExternalID, &job.RetryCount, &createdAt)
	if err != nil {
		return nil, err
	}
	job.Action = models.Action(action)
	job.CreatedAt = time.Unix(0, createdAt).UTC()
	return &job, nil
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return models.ErrJobNotFound
	}
	return nil
}

// sqlLimit maps a non-positive limit to SQLite's "no limit"
func sqlLimit(limit int) int {
	if limit <= 0 {
		return -1
	}
	return limit
}
