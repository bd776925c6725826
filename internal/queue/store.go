package queue

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"dubcast/internal/config"
)

// Store manages job persistence backed by SQLite.
type Store struct {
	db   *sql.DB
	path string
}

// Open initializes or connects to the job database and applies migrations.
func Open(cfg *config.Config) (*Store, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}

	dbPath := filepath.Join(cfg.Paths.DataDir, "jobs.db")
	// Pragmas must ride the DSN so database/sql applies them to every pooled
	// connection; a bare db.Exec reaches only one connection and leaves the
	// rest without a busy timeout.
	dsn := "file:" + dbPath + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: dbPath}
	if err := store.applyMigrations(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}

	return store, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path returns the database file location.
func (s *Store) Path() string {
	return s.path
}

// Insert persists a freshly submitted job.
func (s *Store) Insert(ctx context.Context, job *Job) error {
	if job == nil {
		return errors.New("job is nil")
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now().UTC()
	}
	sourceJSON, err := json.Marshal(job.Source)
	if err != nil {
		return fmt.Errorf("marshal source: %w", err)
	}
	paramsJSON, err := json.Marshal(job.Params)
	if err != nil {
		return fmt.Errorf("marshal params: %w", err)
	}

	_, err = s.db.ExecContext(
		ctx,
		`INSERT INTO pipeline_jobs (
            id, status, created_at, started_at, finished_at, error_message,
            source_json, params_json, speaker_required, speaker_submitted,
            speaker_tags_json, queue_position, result_json, name, note,
            tags_json, published
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		job.ID,
		job.Status,
		job.CreatedAt.Format(time.RFC3339Nano),
		nullableTime(job.StartedAt),
		nullableTime(job.FinishedAt),
		nullableString(job.ErrorMessage),
		string(sourceJSON),
		string(paramsJSON),
		boolToInt(job.SpeakerRequired),
		boolToInt(job.SpeakerSubmitted),
		marshalStrings(job.SpeakerTags),
		job.QueuePosition,
		marshalResult(job.Result),
		nullableString(job.Name),
		nullableString(job.Note),
		marshalStrings(job.Tags),
		boolToInt(job.Published),
	)
	if err != nil {
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

// GetByID fetches a job by identifier. Returns nil when the job is unknown.
func (s *Store) GetByID(ctx context.Context, id string) (*Job, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM pipeline_jobs WHERE id = ?`, id)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return job, nil
}

// Update persists changes to an existing job.
func (s *Store) Update(ctx context.Context, job *Job) error {
	if job == nil {
		return errors.New("job is nil")
	}
	sourceJSON, err := json.Marshal(job.Source)
	if err != nil {
		return fmt.Errorf("marshal source: %w", err)
	}
	paramsJSON, err := json.Marshal(job.Params)
	if err != nil {
		return fmt.Errorf("marshal params: %w", err)
	}

	_, err = s.db.ExecContext(
		ctx,
		`UPDATE pipeline_jobs
         SET status = ?, started_at = ?, finished_at = ?, error_message = ?,
             source_json = ?, params_json = ?, speaker_required = ?,
             speaker_submitted = ?, speaker_tags_json = ?, queue_position = ?,
             result_json = ?, name = ?, note = ?, tags_json = ?, published = ?
         WHERE id = ?`,
		job.Status,
		nullableTime(job.StartedAt),
		nullableTime(job.FinishedAt),
		nullableString(job.ErrorMessage),
		string(sourceJSON),
		string(paramsJSON),
		boolToInt(job.SpeakerRequired),
		boolToInt(job.SpeakerSubmitted),
		marshalStrings(job.SpeakerTags),
		job.QueuePosition,
		marshalResult(job.Result),
		nullableString(job.Name),
		nullableString(job.Note),
		marshalStrings(job.Tags),
		boolToInt(job.Published),
		job.ID,
	)
	if err != nil {
		return fmt.Errorf("update job: %w", err)
	}
	return nil
}

// UpdateMetadata writes only the user-editable columns. Pipeline-owned fields
// (status, result, queue position, speaker state) are untouched so a metadata
// edit can never clobber a concurrent executor or scheduler write.
func (s *Store) UpdateMetadata(ctx context.Context, id, name, note string, tags []string, published bool) error {
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE pipeline_jobs
         SET name = ?, note = ?, tags_json = ?, published = ?
         WHERE id = ?`,
		nullableString(name),
		nullableString(note),
		marshalStrings(tags),
		boolToInt(published),
		id,
	)
	if err != nil {
		return fmt.Errorf("update job metadata: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// List returns jobs filtered by status set (or all jobs when no status is
// provided), queued jobs first in queue order, then the rest by creation time.
func (s *Store) List(ctx context.Context, statuses ...Status) ([]*Job, error) {
	var (
		rows *sql.Rows
		err  error
	)

	baseQuery := `SELECT ` + jobColumns + ` FROM pipeline_jobs`
	orderClause := ` ORDER BY CASE WHEN queue_position >= 0 THEN 0 ELSE 1 END, queue_position, created_at`

	if len(statuses) == 0 {
		rows, err = s.db.QueryContext(ctx, baseQuery+orderClause)
	} else {
		placeholders := makePlaceholders(len(statuses))
		args := make([]any, len(statuses))
		for i, status := range statuses {
			args[i] = status
		}
		query := baseQuery + ` WHERE status IN (` + placeholders + `)` + orderClause
		rows, err = s.db.QueryContext(ctx, query, args...)
	}
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// Remove deletes a job and its step log. Returns false when no row matched.
func (s *Store) Remove(ctx context.Context, id string) (bool, error) {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM pipeline_steps WHERE job_id = ?`, id); err != nil {
		return false, fmt.Errorf("delete job steps: %w", err)
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM pipeline_jobs WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("delete job: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected > 0, nil
}

// MarkInterrupted fails any job still recorded running. Called once at startup
// so mid-flight state left behind by a crash or restart is not replayed.
// Queued jobs are untouched; they carry no in-flight state and re-enter the
// queue on start.
func (s *Store) MarkInterrupted(ctx context.Context, reason string) (int64, error) {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE pipeline_jobs
         SET status = ?, error_message = ?, finished_at = ?, queue_position = -1
         WHERE status = ?`,
		StatusFailed,
		reason,
		now,
		StatusRunning,
	)
	if err != nil {
		return 0, fmt.Errorf("mark interrupted jobs: %w", err)
	}
	return res.RowsAffected()
}

// SetQueuePositions rewrites queue positions to match the supplied order.
func (s *Store) SetQueuePositions(ctx context.Context, ids []string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin positions tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for position, id := range ids {
		if _, err := tx.ExecContext(ctx, `UPDATE pipeline_jobs SET queue_position = ? WHERE id = ?`, position, id); err != nil {
			return fmt.Errorf("set queue position: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit positions: %w", err)
	}
	return nil
}

// Stats returns a count of jobs grouped by status.
func (s *Store) Stats(ctx context.Context) (map[Status]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(1) FROM pipeline_jobs GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("job stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[Status]int)
	for rows.Next() {
		var status Status
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		stats[status] = count
	}
	return stats, rows.Err()
}

const jobColumns = "id, status, created_at, started_at, finished_at, error_message, source_json, params_json, speaker_required, speaker_submitted, speaker_tags_json, queue_position, result_json, name, note, tags_json, published"

func scanJob(scanner interface{ Scan(dest ...any) error }) (*Job, error) {
	var (
		id               string
		statusStr        string
		createdRaw       string
		startedRaw       sql.NullString
		finishedRaw      sql.NullString
		errorMessage     sql.NullString
		sourceJSON       sql.NullString
		paramsJSON       sql.NullString
		speakerRequired  sql.NullInt64
		speakerSubmitted sql.NullInt64
		speakerTagsJSON  sql.NullString
		queuePosition    sql.NullInt64
		resultJSON       sql.NullString
		name             sql.NullString
		note             sql.NullString
		tagsJSON         sql.NullString
		published        sql.NullInt64
	)

	if err := scanner.Scan(
		&id,
		&statusStr,
		&createdRaw,
		&startedRaw,
		&finishedRaw,
		&errorMessage,
		&sourceJSON,
		&paramsJSON,
		&speakerRequired,
		&speakerSubmitted,
		&speakerTagsJSON,
		&queuePosition,
		&resultJSON,
		&name,
		&note,
		&tagsJSON,
		&published,
	); err != nil {
		return nil, err
	}

	job := &Job{
		ID:               id,
		Status:           Status(statusStr),
		ErrorMessage:     errorMessage.String,
		SpeakerRequired:  speakerRequired.Int64 != 0,
		SpeakerSubmitted: speakerSubmitted.Int64 != 0,
		QueuePosition:    -1,
		Name:             name.String,
		Note:             note.String,
		Published:        published.Int64 != 0,
	}
	if queuePosition.Valid {
		job.QueuePosition = int(queuePosition.Int64)
	}
	if sourceJSON.Valid && sourceJSON.String != "" {
		if err := json.Unmarshal([]byte(sourceJSON.String), &job.Source); err != nil {
			return nil, fmt.Errorf("unmarshal source: %w", err)
		}
	}
	if paramsJSON.Valid && paramsJSON.String != "" {
		if err := json.Unmarshal([]byte(paramsJSON.String), &job.Params); err != nil {
			return nil, fmt.Errorf("unmarshal params: %w", err)
		}
	}
	if speakerTagsJSON.Valid && speakerTagsJSON.String != "" {
		if err := json.Unmarshal([]byte(speakerTagsJSON.String), &job.SpeakerTags); err != nil {
			return nil, fmt.Errorf("unmarshal speaker tags: %w", err)
		}
	}
	if tagsJSON.Valid && tagsJSON.String != "" {
		if err := json.Unmarshal([]byte(tagsJSON.String), &job.Tags); err != nil {
			return nil, fmt.Errorf("unmarshal tags: %w", err)
		}
	}
	if resultJSON.Valid && resultJSON.String != "" {
		var result Result
		if err := json.Unmarshal([]byte(resultJSON.String), &result); err != nil {
			return nil, fmt.Errorf("unmarshal result: %w", err)
		}
		job.Result = &result
	}

	if created, err := parseTimeString(createdRaw); err == nil {
		job.CreatedAt = created
	}
	if startedRaw.Valid {
		if started, err := parseTimeString(startedRaw.String); err == nil {
			job.StartedAt = &started
		}
	}
	if finishedRaw.Valid {
		if finished, err := parseTimeString(finishedRaw.String); err == nil {
			job.FinishedAt = &finished
		}
	}
	return job, nil
}

func marshalStrings(values []string) any {
	if len(values) == 0 {
		return nil
	}
	data, err := json.Marshal(values)
	if err != nil {
		return nil
	}
	return string(data)
}

func marshalResult(result *Result) any {
	if result == nil {
		return nil
	}
	data, err := json.Marshal(result)
	if err != nil {
		return nil
	}
	return string(data)
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func nullableTime(value *time.Time) any {
	if value == nil {
		return nil
	}
	return value.UTC().Format(time.RFC3339Nano)
}

func boolToInt(value bool) int {
	if value {
		return 1
	}
	return 0
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02 15:04:05", value)
}

func makePlaceholders(count int) string {
	if count <= 0 {
		return ""
	}
	placeholders := make([]byte, 0, count*2)
	for i := 0; i < count; i++ {
		if i > 0 {
			placeholders = append(placeholders, ',')
		}
		placeholders = append(placeholders, '?')
	}
	return string(placeholders)
}
