package jobstore

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"sync"
	"time"

	"webupload/internal/queue"
	"webupload/internal/services"
)

// Descriptor is a persisted job. It implements queue.Descriptor and is safe
// for concurrent use.
type Descriptor struct {
	store *Store

	mu          sync.Mutex
	id          string
	sourcePath  string
	account     string
	jobFile     string
	status      Status
	attempts    int
	maxAttempts int
	lastError   LastError
	createdAt   time.Time
	updatedAt   time.Time
	media       []queue.Media
}

var _ queue.Descriptor = (*Descriptor)(nil)

func (d *Descriptor) ID() string         { return d.id }
func (d *Descriptor) SourcePath() string { return d.sourcePath }
func (d *Descriptor) Path() string       { return d.jobFile }
func (d *Descriptor) Account() string    { return d.account }

func (d *Descriptor) MediaCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.media)
}

func (d *Descriptor) Media(index int) queue.Media {
	d.mu.Lock()
	defer d.mu.Unlock()
	if index < 0 || index >= len(d.media) {
		return queue.Media{}
	}
	return d.media[index]
}

func (d *Descriptor) MediaSentCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	count := 0
	for _, m := range d.media {
		if m.Sent {
			count++
		}
	}
	return count
}

func (d *Descriptor) TotalSize() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	var total int64
	for _, m := range d.media {
		total += m.Size
	}
	return total
}

func (d *Descriptor) UnsentSize() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	var total int64
	for _, m := range d.media {
		if !m.Sent {
			total += m.Size
		}
	}
	return total
}

// Status returns the persisted status.
func (d *Descriptor) Status() Status {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.status
}

// Attempts returns the number of failed attempts recorded.
func (d *Descriptor) Attempts() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.attempts
}

// LastError returns the persisted last failure.
func (d *Descriptor) LastError() LastError {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.lastError
}

// CreatedAt returns when the job was accepted.
func (d *Descriptor) CreatedAt() time.Time {
	return d.createdAt
}

// Summary returns a listing snapshot.
func (d *Descriptor) Summary() Summary {
	d.mu.Lock()
	defer d.mu.Unlock()
	summary := Summary{
		ID:          d.id,
		SourcePath:  d.sourcePath,
		Account:     d.account,
		Status:      d.status,
		Attempts:    d.attempts,
		MaxAttempts: d.maxAttempts,
		MediaCount:  len(d.media),
		LastError:   d.lastError,
		CreatedAt:   d.createdAt,
		UpdatedAt:   d.updatedAt,
	}
	for _, m := range d.media {
		summary.TotalSize += m.Size
		if m.Sent {
			summary.MediaSent++
		}
	}
	return summary
}

// SetProcessedPath records the staged copy for the item at index.
func (d *Descriptor) SetProcessedPath(ctx context.Context, index int, path string) error {
	d.mu.Lock()
	if index < 0 || index >= len(d.media) {
		d.mu.Unlock()
		return services.Wrap(services.ErrValidation, "jobstore", "set processed path", fmt.Sprintf("media index %d out of range", index), nil)
	}
	d.media[index].ProcessedPath = path
	d.updatedAt = d.store.now().UTC()
	updated := d.updatedAt
	d.mu.Unlock()

	err := d.store.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ensureContext(ctx),
			`UPDATE media SET processed_path = ? WHERE job_id = ? AND idx = ?`,
			nullableString(path), d.id, index,
		); err != nil {
			return err
		}
		return touchJob(ctx, tx, d.id, updated)
	})
	if err != nil {
		return fmt.Errorf("set processed path: %w", err)
	}
	return d.writeJobFile()
}

// MarkSent records that every item before index was transferred.
func (d *Descriptor) MarkSent(ctx context.Context, index int) error {
	d.mu.Lock()
	if index > len(d.media) {
		index = len(d.media)
	}
	changed := false
	for i := 0; i < index; i++ {
		if !d.media[i].Sent {
			d.media[i].Sent = true
			changed = true
		}
	}
	d.updatedAt = d.store.now().UTC()
	updated := d.updatedAt
	d.mu.Unlock()
	if !changed {
		return nil
	}

	err := d.store.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ensureContext(ctx),
			`UPDATE media SET sent = 1 WHERE job_id = ? AND idx < ?`, d.id, index,
		); err != nil {
			return err
		}
		return touchJob(ctx, tx, d.id, updated)
	})
	if err != nil {
		return fmt.Errorf("mark sent: %w", err)
	}
	return d.writeJobFile()
}

// Cancel marks the job cancelled and removes its job file.
func (d *Descriptor) Cancel(ctx context.Context) error {
	d.mu.Lock()
	d.status = StatusCancelled
	d.mu.Unlock()
	if err := d.persistRow(ctx); err != nil {
		return fmt.Errorf("cancel job: %w", err)
	}
	d.removeJobFile()
	return nil
}

// Persist writes the full job state and refreshes the job file.
func (d *Descriptor) Persist(ctx context.Context) error {
	d.mu.Lock()
	media := append([]queue.Media(nil), d.media...)
	d.mu.Unlock()

	if err := d.persistRow(ctx); err != nil {
		return fmt.Errorf("persist job: %w", err)
	}
	err := d.store.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ensureContext(ctx), `DELETE FROM media WHERE job_id = ?`, d.id); err != nil {
			return err
		}
		return insertMedia(ensureContext(ctx), tx, d.id, media)
	})
	if err != nil {
		return fmt.Errorf("persist media: %w", err)
	}
	if d.Status().Finished() {
		return nil
	}
	return d.writeJobFile()
}

// MarkFailed records a failed attempt. The returned flag is false once the
// attempt limit is reached.
func (d *Descriptor) MarkFailed(ctx context.Context, failure error) (bool, error) {
	d.mu.Lock()
	d.attempts++
	d.status = StatusFailed
	d.lastError = LastError{
		Kind:    services.KindOf(failure).String(),
		Message: errorMessage(failure),
		Hint:    services.Hint(failure),
	}
	retryable := d.attempts < d.maxAttempts
	d.mu.Unlock()

	if err := d.persistRow(ctx); err != nil {
		return retryable, fmt.Errorf("mark failed: %w", err)
	}
	return retryable, nil
}

// Requeue clears the failed status and the attempt counter after a repair.
func (d *Descriptor) Requeue(ctx context.Context) error {
	d.mu.Lock()
	d.status = StatusQueued
	d.attempts = 0
	d.mu.Unlock()
	if err := d.persistRow(ctx); err != nil {
		return fmt.Errorf("requeue job: %w", err)
	}
	return nil
}

// MarkDone marks every item sent and the job done.
func (d *Descriptor) MarkDone(ctx context.Context) error {
	d.mu.Lock()
	d.status = StatusDone
	d.lastError = LastError{}
	for i := range d.media {
		d.media[i].Sent = true
	}
	d.mu.Unlock()

	err := d.store.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ensureContext(ctx), `UPDATE media SET sent = 1 WHERE job_id = ?`, d.id)
		return err
	})
	if err != nil {
		return fmt.Errorf("mark done: %w", err)
	}
	if err := d.persistRow(ctx); err != nil {
		return fmt.Errorf("mark done: %w", err)
	}
	d.removeJobFile()
	return nil
}

func (d *Descriptor) persistRow(ctx context.Context) error {
	d.mu.Lock()
	d.updatedAt = d.store.now().UTC()
	status := d.status
	attempts := d.attempts
	lastError := d.lastError
	updated := d.updatedAt
	d.mu.Unlock()

	var finished any
	if status.Finished() {
		finished = formatTime(updated)
	}
	_, err := d.store.execWithRetry(ctx,
		`UPDATE jobs SET status = ?, attempts = ?, last_error_kind = ?, last_error_message = ?,
             last_error_hint = ?, updated_at = ?, finished_at = ?
         WHERE id = ?`,
		status, attempts,
		nullableString(lastError.Kind), nullableString(lastError.Message), nullableString(lastError.Hint),
		formatTime(updated), finished, d.id,
	)
	return err
}

func touchJob(ctx context.Context, tx *sql.Tx, id string, updated time.Time) error {
	_, err := tx.ExecContext(ensureContext(ctx), `UPDATE jobs SET updated_at = ? WHERE id = ?`, formatTime(updated), id)
	return err
}

func (d *Descriptor) removeJobFile() {
	_ = os.Remove(d.jobFile)
}

func errorMessage(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
