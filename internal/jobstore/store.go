package jobstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"webupload/internal/queue"
	"webupload/internal/services"
)

const jobColumns = "id, source_path, account_id, job_file, status, attempts, max_attempts, last_error_kind, last_error_message, last_error_hint, created_at, updated_at"

// Create stores a new queued job and writes its job file.
func (s *Store) Create(ctx context.Context, newJob NewJob) (*Descriptor, error) {
	ctx = ensureContext(ctx)
	if strings.TrimSpace(newJob.Account) == "" {
		return nil, services.Wrap(services.ErrValidation, "jobstore", "create", "account is required", nil)
	}
	if len(newJob.Media) == 0 {
		return nil, services.Wrap(services.ErrValidation, "jobstore", "create", "at least one media item is required", nil)
	}

	now := s.now().UTC()
	id := uuid.NewString()
	desc := &Descriptor{
		store:       s,
		id:          id,
		sourcePath:  newJob.SourcePath,
		account:     newJob.Account,
		jobFile:     filepath.Join(s.jobsDir, id+".toml"),
		status:      StatusQueued,
		maxAttempts: s.maxAttempts,
		createdAt:   now,
		updatedAt:   now,
		media:       append([]queue.Media(nil), newJob.Media...),
	}
	if desc.maxAttempts < 1 {
		desc.maxAttempts = 1
	}

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO jobs (id, source_path, account_id, job_file, status, attempts, max_attempts, created_at, updated_at)
             VALUES (?, ?, ?, ?, ?, 0, ?, ?, ?)`,
			desc.id, desc.sourcePath, desc.account, desc.jobFile, desc.status, desc.maxAttempts,
			formatTime(now), formatTime(now),
		); err != nil {
			return fmt.Errorf("insert job: %w", err)
		}
		return insertMedia(ctx, tx, desc.id, desc.media)
	})
	if err != nil {
		return nil, err
	}
	if err := desc.writeJobFile(); err != nil {
		return nil, err
	}
	return desc, nil
}

func insertMedia(ctx context.Context, tx *sql.Tx, jobID string, media []queue.Media) error {
	for idx, m := range media {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO media (job_id, idx, source_path, processed_path, mime_type, size, needs_processing, sent)
             VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			jobID, idx, m.SourcePath, nullableString(m.ProcessedPath), nullableString(m.MimeType),
			m.Size, boolToInt(m.NeedsProcessing), boolToInt(m.Sent),
		); err != nil {
			return fmt.Errorf("insert media %d: %w", idx, err)
		}
	}
	return nil
}

// Get loads a job by id.
func (s *Store) Get(ctx context.Context, id string) (*Descriptor, error) {
	ctx = ensureContext(ctx)
	row := s.db.QueryRowContext(ctx, "SELECT "+jobColumns+" FROM jobs WHERE id = ?", id)
	desc, err := s.scanDescriptor(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, services.Wrap(services.ErrNotFound, "jobstore", "get", fmt.Sprintf("job %s", id), nil)
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	if err := s.loadMedia(ctx, desc); err != nil {
		return nil, err
	}
	return desc, nil
}

// ListUnfinished returns queued and failed jobs, oldest first. This is the
// recovered-job feed replayed into the queue at engine start.
func (s *Store) ListUnfinished(ctx context.Context) ([]*Descriptor, error) {
	return s.List(ctx, StatusQueued, StatusFailed)
}

// List returns jobs with the given statuses (all when none), oldest first.
func (s *Store) List(ctx context.Context, statuses ...Status) ([]*Descriptor, error) {
	ctx = ensureContext(ctx)
	query := "SELECT " + jobColumns + " FROM jobs"
	args := make([]any, 0, len(statuses))
	if len(statuses) > 0 {
		query += " WHERE status IN (" + makePlaceholders(len(statuses)) + ")"
		for _, status := range statuses {
			args = append(args, status)
		}
	}
	query += " ORDER BY created_at, id"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	var out []*Descriptor
	for rows.Next() {
		desc, err := s.scanDescriptor(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan job: %w", err)
		}
		out = append(out, desc)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	for _, desc := range out {
		if err := s.loadMedia(ctx, desc); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// CancelUnfinished cancels every queued or failed job and returns how many
// were cancelled. It is used by the recovery tool when no engine is running.
func (s *Store) CancelUnfinished(ctx context.Context) (int, error) {
	jobs, err := s.ListUnfinished(ctx)
	if err != nil {
		return 0, err
	}
	for _, desc := range jobs {
		if err := desc.Cancel(ctx); err != nil {
			return 0, err
		}
	}
	return len(jobs), nil
}

// PruneFinished deletes done and cancelled jobs last updated before
// olderThan ago, along with their job files.
func (s *Store) PruneFinished(ctx context.Context, olderThan time.Duration) (int64, error) {
	ctx = ensureContext(ctx)
	cutoff := formatTime(s.now().Add(-olderThan))

	rows, err := s.db.QueryContext(ctx,
		`SELECT job_file FROM jobs WHERE status IN (?, ?) AND updated_at < ?`,
		StatusDone, StatusCancelled, cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("select prunable jobs: %w", err)
	}
	var files []string
	for rows.Next() {
		var path string
		if err := rows.Scan(&path); err != nil {
			rows.Close()
			return 0, err
		}
		files = append(files, path)
	}
	rows.Close()

	res, err := s.execWithRetry(ctx,
		`DELETE FROM jobs WHERE status IN (?, ?) AND updated_at < ?`,
		StatusDone, StatusCancelled, cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("prune jobs: %w", err)
	}
	for _, path := range files {
		_ = os.Remove(path)
	}
	return res.RowsAffected()
}

// Summaries returns listing rows for the given statuses (all when none).
func (s *Store) Summaries(ctx context.Context, statuses ...Status) ([]Summary, error) {
	jobs, err := s.List(ctx, statuses...)
	if err != nil {
		return nil, err
	}
	out := make([]Summary, 0, len(jobs))
	for _, desc := range jobs {
		out = append(out, desc.Summary())
	}
	return out, nil
}

func (s *Store) scanDescriptor(scanner interface{ Scan(dest ...any) error }) (*Descriptor, error) {
	var (
		id          string
		sourcePath  string
		account     string
		jobFile     string
		status      string
		attempts    int
		maxAttempts int
		errKind     sql.NullString
		errMessage  sql.NullString
		errHint     sql.NullString
		createdRaw  sql.NullString
		updatedRaw  sql.NullString
	)
	if err := scanner.Scan(
		&id,
		&sourcePath,
		&account,
		&jobFile,
		&status,
		&attempts,
		&maxAttempts,
		&errKind,
		&errMessage,
		&errHint,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}

	desc := &Descriptor{
		store:       s,
		id:          id,
		sourcePath:  sourcePath,
		account:     account,
		jobFile:     jobFile,
		status:      Status(status),
		attempts:    attempts,
		maxAttempts: maxAttempts,
		lastError: LastError{
			Kind:    errKind.String,
			Message: errMessage.String,
			Hint:    errHint.String,
		},
	}
	if created, err := parseTimeString(createdRaw.String); err == nil {
		desc.createdAt = created
	}
	if updated, err := parseTimeString(updatedRaw.String); err == nil {
		desc.updatedAt = updated
	}
	return desc, nil
}

func (s *Store) loadMedia(ctx context.Context, desc *Descriptor) error {
	rows, err := s.db.QueryContext(ctx,
		`SELECT source_path, processed_path, mime_type, size, needs_processing, sent
         FROM media WHERE job_id = ? ORDER BY idx`, desc.id)
	if err != nil {
		return fmt.Errorf("load media for %s: %w", desc.id, err)
	}
	defer rows.Close()

	var media []queue.Media
	for rows.Next() {
		var (
			source    string
			processed sql.NullString
			mimeType  sql.NullString
			size      int64
			needs     int
			sent      int
		)
		if err := rows.Scan(&source, &processed, &mimeType, &size, &needs, &sent); err != nil {
			return fmt.Errorf("scan media: %w", err)
		}
		media = append(media, queue.Media{
			SourcePath:      source,
			ProcessedPath:   processed.String,
			MimeType:        mimeType.String,
			Size:            size,
			NeedsProcessing: needs != 0,
			Sent:            sent != 0,
		})
	}
	if err := rows.Err(); err != nil {
		return err
	}
	desc.media = media
	return nil
}
