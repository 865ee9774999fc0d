package jobstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore implements Store against a job_records table:
//
//	CREATE TABLE job_records (
//	    id            text PRIMARY KEY,
//	    name          text NOT NULL,
//	    machine_name  text,
//	    status        text NOT NULL,
//	    scheduled_at  timestamptz NOT NULL,
//	    started_at    timestamptz,
//	    ended_at      timestamptz,
//	    progress      double precision NOT NULL DEFAULT 0,
//	    result        jsonb,
//	    error         text,
//	    error_details jsonb,
//	    logs            jsonb NOT NULL DEFAULT '[]',
//	    metadata        jsonb NOT NULL DEFAULT '{}',
//	    cron_expression text,
//	    timezone        text,
//	    next_run        timestamptz
//	);
//
// Transition uses an UPDATE ... WHERE status = $from for the compare-and-set;
// zero rows affected means a concurrent writer already moved the record.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore wraps an existing connection pool.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (p *PostgresStore) Create(ctx context.Context, name string, metadata map[string]any, scheduledAt time.Time) (string, error) {
	id := uuid.Must(uuid.NewV7()).String()
	meta, err := json.Marshal(metadata)
	if err != nil {
		return "", fmt.Errorf("jobstore/postgres: marshal metadata: %w", err)
	}

	_, err = p.pool.Exec(ctx,
		`INSERT INTO job_records (id, name, status, scheduled_at, metadata) VALUES ($1, $2, $3, $4, $5)`,
		id, name, StatusScheduled, scheduledAt, meta,
	)
	if err != nil {
		return "", fmt.Errorf("jobstore/postgres: create: %w", err)
	}
	return id, nil
}

func (p *PostgresStore) Transition(ctx context.Context, id string, from, to Status, patch Patch) error {
	var errDetail, meta, result []byte
	var err error
	if patch.Result != nil {
		if result, err = json.Marshal(patch.Result); err != nil {
			return fmt.Errorf("jobstore/postgres: marshal result: %w", err)
		}
	}
	if patch.ErrorDetail != nil {
		if errDetail, err = json.Marshal(patch.ErrorDetail); err != nil {
			return fmt.Errorf("jobstore/postgres: marshal error_details: %w", err)
		}
	}
	if patch.Metadata != nil {
		if meta, err = json.Marshal(patch.Metadata); err != nil {
			return fmt.Errorf("jobstore/postgres: marshal metadata patch: %w", err)
		}
	}

	tag, err := p.pool.Exec(ctx, `
		UPDATE job_records SET
			status = $1,
			machine_name = COALESCE(NULLIF($2, ''), machine_name),
			started_at = COALESCE($3, started_at),
			ended_at = COALESCE($4, ended_at),
			progress = COALESCE($5, progress),
			error = COALESCE(NULLIF($6, ''), error),
			error_details = COALESCE($7, error_details),
			metadata = CASE WHEN $8::jsonb IS NULL THEN metadata ELSE metadata || $8::jsonb END,
			result = COALESCE($11, result)
		WHERE id = $9 AND status = $10`,
		to, patch.MachineName, patch.StartedAt, patch.EndedAt, patch.Progress,
		patch.Error, errDetail, meta, id, from, result,
	)
	if err != nil {
		return fmt.Errorf("jobstore/postgres: transition: %w", err)
	}
	if tag.RowsAffected() == 0 {
		observed, getErr := p.Get(ctx, id)
		if getErr != nil {
			return &ErrConflict{ID: id, Expected: from, Observed: ""}
		}
		return &ErrConflict{ID: id, Expected: from, Observed: observed.Status}
	}
	return nil
}

func (p *PostgresStore) AppendLog(ctx context.Context, id string, entry LogEntry) error {
	payload, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("jobstore/postgres: marshal log entry: %w", err)
	}
	tag, err := p.pool.Exec(ctx,
		`UPDATE job_records SET logs = logs || $1::jsonb WHERE id = $2`,
		string(payload), id,
	)
	if err != nil {
		return fmt.Errorf("jobstore/postgres: append log: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return &ErrNotFound{ID: id}
	}
	return nil
}

func (p *PostgresStore) SetProgress(ctx context.Context, id string, value float64) error {
	tag, err := p.pool.Exec(ctx,
		`UPDATE job_records SET progress = $1 WHERE id = $2 AND progress <= $1`,
		value, id,
	)
	if err != nil {
		return fmt.Errorf("jobstore/postgres: set progress: %w", err)
	}
	if tag.RowsAffected() == 0 {
		rec, getErr := p.Get(ctx, id)
		if getErr != nil {
			return getErr
		}
		return &ErrProgressRegression{ID: id, Current: rec.Progress, Proposed: value}
	}
	return nil
}

func (p *PostgresStore) Get(ctx context.Context, id string) (JobRecord, error) {
	row := p.pool.QueryRow(ctx, scanColumns+` FROM job_records WHERE id = $1`, id)
	return scanRecord(row)
}

const scanColumns = `SELECT id, name, machine_name, status, scheduled_at, started_at, ended_at,
	progress, result, error, error_details, logs, metadata, cron_expression, timezone, next_run`

func scanRecord(row pgx.Row) (JobRecord, error) {
	var rec JobRecord
	var result, errDetail, logs, meta []byte
	var machineName, errMsg, cronExpr, timezone *string
	if err := row.Scan(
		&rec.ID, &rec.Name, &machineName, &rec.Status, &rec.ScheduledAt, &rec.StartedAt, &rec.EndedAt,
		&rec.Progress, &result, &errMsg, &errDetail, &logs, &meta, &cronExpr, &timezone, &rec.NextRun,
	); err != nil {
		if err == pgx.ErrNoRows {
			return JobRecord{}, &ErrNotFound{}
		}
		return JobRecord{}, fmt.Errorf("jobstore/postgres: scan: %w", err)
	}
	if machineName != nil {
		rec.MachineName = *machineName
	}
	if errMsg != nil {
		rec.Error = *errMsg
	}
	if cronExpr != nil {
		rec.CronExpression = *cronExpr
	}
	if timezone != nil {
		rec.Timezone = *timezone
	}
	if len(result) > 0 {
		_ = json.Unmarshal(result, &rec.Result)
	}
	if len(errDetail) > 0 {
		_ = json.Unmarshal(errDetail, &rec.ErrorDetail)
	}
	if len(logs) > 0 {
		_ = json.Unmarshal(logs, &rec.Logs)
	}
	if len(meta) > 0 {
		_ = json.Unmarshal(meta, &rec.Metadata)
	}
	return rec, nil
}

func (p *PostgresStore) queryRecords(ctx context.Context, where string, args ...any) ([]JobRecord, error) {
	rows, err := p.pool.Query(ctx, scanColumns+" FROM job_records "+where, args...)
	if err != nil {
		return nil, fmt.Errorf("jobstore/postgres: query: %w", err)
	}
	defer rows.Close()

	var out []JobRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (p *PostgresStore) FindByName(ctx context.Context, name string, limit int) ([]JobRecord, error) {
	if limit <= 0 {
		limit = 1000
	}
	return p.queryRecords(ctx, "WHERE name = $1 ORDER BY scheduled_at DESC LIMIT $2", name, limit)
}

func (p *PostgresStore) FindRunning(ctx context.Context) ([]JobRecord, error) {
	return p.queryRecords(ctx, "WHERE status = $1", StatusRunning)
}

func (p *PostgresStore) FindRecent(ctx context.Context, since time.Time) ([]JobRecord, error) {
	return p.queryRecords(ctx, "WHERE scheduled_at > $1 ORDER BY scheduled_at DESC", since)
}

func (p *PostgresStore) FindByCycle(ctx context.Context, listName string, cycleNumber int) ([]JobRecord, error) {
	return p.queryRecords(ctx,
		"WHERE metadata->>'cycledListName' = $1 AND (metadata->>'cycleNumber')::int = $2",
		listName, cycleNumber,
	)
}

func (p *PostgresStore) FindLatestFinished(ctx context.Context, name string) (JobRecord, error) {
	row := p.pool.QueryRow(ctx,
		scanColumns+` FROM job_records WHERE name = $1 AND status = ANY($2) ORDER BY ended_at DESC NULLS LAST LIMIT 1`,
		name, []string{string(StatusCompleted), string(StatusFailed), string(StatusCancelled), string(StatusSkipped)},
	)
	return scanRecord(row)
}

func (p *PostgresStore) UpdateMetadata(ctx context.Context, id string, patch map[string]any) error {
	meta, err := json.Marshal(patch)
	if err != nil {
		return fmt.Errorf("jobstore/postgres: marshal metadata: %w", err)
	}
	tag, err := p.pool.Exec(ctx,
		`UPDATE job_records SET metadata = metadata || $1::jsonb WHERE id = $2`,
		meta, id,
	)
	if err != nil {
		return fmt.Errorf("jobstore/postgres: update metadata: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return &ErrNotFound{ID: id}
	}
	return nil
}

func (p *PostgresStore) DeleteByID(ctx context.Context, id string) error {
	_, err := p.pool.Exec(ctx, `DELETE FROM job_records WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("jobstore/postgres: delete: %w", err)
	}
	return nil
}

func (p *PostgresStore) DeleteAll(ctx context.Context) error {
	_, err := p.pool.Exec(ctx, `TRUNCATE job_records`)
	if err != nil {
		return fmt.Errorf("jobstore/postgres: delete all: %w", err)
	}
	return nil
}

// SaveListStatus upserts into a cycled_list_status table:
//
//	CREATE TABLE cycled_list_status (
//	    name         text PRIMARY KEY,
//	    doc          jsonb NOT NULL,
//	    last_updated timestamptz NOT NULL
//	);
func (p *PostgresStore) SaveListStatus(ctx context.Context, s CycledListStatus) error {
	doc, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("jobstore/postgres: marshal status: %w", err)
	}
	_, err = p.pool.Exec(ctx, `
		INSERT INTO cycled_list_status (name, doc, last_updated) VALUES ($1, $2, $3)
		ON CONFLICT (name) DO UPDATE SET doc = EXCLUDED.doc, last_updated = EXCLUDED.last_updated`,
		s.Name, doc, s.LastUpdated,
	)
	if err != nil {
		return fmt.Errorf("jobstore/postgres: save status: %w", err)
	}
	return nil
}

func (p *PostgresStore) GetListStatus(ctx context.Context, name string) (CycledListStatus, error) {
	var doc []byte
	err := p.pool.QueryRow(ctx,
		`SELECT doc FROM cycled_list_status WHERE name = $1 ORDER BY last_updated DESC LIMIT 1`,
		name,
	).Scan(&doc)
	if err == pgx.ErrNoRows {
		return CycledListStatus{}, &ErrNotFound{ID: name}
	}
	if err != nil {
		return CycledListStatus{}, fmt.Errorf("jobstore/postgres: get status: %w", err)
	}
	var s CycledListStatus
	if err := json.Unmarshal(doc, &s); err != nil {
		return CycledListStatus{}, fmt.Errorf("jobstore/postgres: unmarshal status: %w", err)
	}
	return s, nil
}
