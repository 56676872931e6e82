package engine

import (
	"webupload/internal/logging"
	"webupload/internal/queue"
	"webupload/internal/services"
	"webupload/internal/staging"
	"webupload/internal/wire"
)

// evaluateHead decides what the head of the queue should do next.
func (e *Engine) evaluateHead() {
	if e.shuttingDown {
		return
	}
	head := e.queue.Head()
	if head == nil {
		return
	}
	if head.Owner() != queue.OwnerQueue {
		return
	}
	// A preempted job still owns the worker or the coordinator until it
	// reports back.
	if e.uploadJob != nil || !e.prep.Idle() {
		return
	}
	if head.Cancelled() {
		e.cancelAndRemove(head)
		return
	}
	if head.Failed() {
		return
	}
	if e.massStorage {
		head.SetPendingReason(queue.PendingDeviceBusy)
		return
	}
	if !head.Processed() {
		e.prep.Start(head)
		return
	}
	if !e.online {
		head.SetPendingReason(queue.PendingConnectivity)
		return
	}
	e.startUpload(head)
}

func (e *Engine) startUpload(job *queue.Job) {
	desc := job.Descriptor()
	path, err := e.resolver.WorkerPath(desc.Account())
	if err == nil {
		var unit uint64
		unit, err = e.upload.Start(path)
		if err == nil {
			e.uploadJob = job
			e.uploadUnit = unit
			e.stopReason = stopNone
		}
	}
	if err != nil {
		e.failJob(job, err)
		return
	}

	job.SetOwner(queue.OwnerUploadWorker)
	job.SetStopRequested(false)
	job.SetPendingReason(queue.PendingNone)
	job.Estimator().Reset()
	e.progress.reset()

	start := wire.StartUpload{JobPath: desc.Path(), LastError: services.ToRecord(job.LastError())}
	if !e.upload.Send(start) {
		// The worker exited before reading; its crash is reported as an event.
		e.logger.Warn("start request not delivered",
			logging.String(logging.FieldJobID, job.ID()),
			logging.Uint64(logging.FieldWorkerUnit, e.uploadUnit),
		)
	}
	e.logger.Info("upload started",
		logging.String(logging.FieldJobID, job.ID()),
		logging.String(logging.FieldAccount, desc.Account()),
		logging.Uint64(logging.FieldWorkerUnit, e.uploadUnit),
		logging.Int("media_count", desc.MediaCount()),
		logging.Int("media_sent", desc.MediaSentCount()),
		logging.Bool("retry", job.LastError() != nil),
		logging.String(logging.FieldEventType, "upload_started"),
	)
}

// preempt stops whatever the replaced head was doing. Its outcome arrives as
// a later input.
func (e *Engine) preempt(prev *queue.Job) {
	if prev == nil {
		return
	}
	switch prev.Owner() {
	case queue.OwnerUploadWorker:
		e.stopUpload(stopPromote)
	case queue.OwnerPreprocessor:
		e.prep.Stop(prev)
	default:
		if !prev.Failed() {
			prev.SetPendingReason(queue.PendingQueued)
		}
	}
}

// stopUpload asks the upload worker to stop. Repeated requests are ignored
// until the unit reports back.
func (e *Engine) stopUpload(reason stopReason) {
	job := e.uploadJob
	if job == nil {
		return
	}
	if job.StopRequested() {
		// A cancel overrides a pending promote or mass-storage stop.
		if reason == stopCancel {
			e.stopReason = stopCancel
		}
		return
	}
	e.stopReason = reason
	job.SetStopRequested(true)
	e.upload.Stop()
	e.logger.Info("upload stop requested",
		logging.String(logging.FieldJobID, job.ID()),
		logging.Uint64(logging.FieldWorkerUnit, e.uploadUnit),
		logging.String("reason", reason.String()),
		logging.String(logging.FieldEventType, "upload_stop_requested"),
	)
}

// releaseUpload returns the uploading job to the queue after its unit settled.
func (e *Engine) releaseUpload() (*queue.Job, stopReason) {
	job := e.uploadJob
	reason := e.stopReason
	e.uploadJob = nil
	e.uploadUnit = 0
	e.stopReason = stopNone
	if job != nil {
		job.SetOwner(queue.OwnerQueue)
		job.SetStopRequested(false)
		job.SetCurrentMedia(-1)
	}
	return job, reason
}

func (e *Engine) completeJob(job *queue.Job) {
	desc := job.Descriptor()
	if err := desc.MarkDone(jobContext(job)); err != nil {
		logging.ErrorWithContext(e.logger, "failed to record completed upload", "job_persist_failed",
			logging.String(logging.FieldJobID, job.ID()),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check the state directory"),
		)
	}
	job.SetLastError(nil)
	job.SetPendingReason(queue.PendingNone)
	e.remove(job)
	e.removeStaging(job)
	e.logger.Info("upload completed",
		logging.String(logging.FieldJobID, job.ID()),
		logging.String(logging.FieldAccount, desc.Account()),
		logging.Int("media_count", desc.MediaCount()),
		logging.Int64("total_bytes", desc.TotalSize()),
		logging.String(logging.FieldEventType, "upload_completed"),
	)
}

// failJob records err against job and routes it by kind.
func (e *Engine) failJob(job *queue.Job, err error) {
	desc := job.Descriptor()
	kind := services.KindOf(err)
	job.SetLastError(err)
	job.Estimator().Reset()

	retry, markErr := desc.MarkFailed(jobContext(job), err)
	if markErr != nil {
		logging.ErrorWithContext(e.logger, "failed to record upload failure", "job_persist_failed",
			logging.String(logging.FieldJobID, job.ID()),
			logging.Error(markErr),
			logging.String(logging.FieldErrorHint, "check the state directory"),
		)
	}
	logging.WarnWithContext(e.logger, "job failed", "job_failed",
		logging.String(logging.FieldJobID, job.ID()),
		logging.String(logging.FieldAccount, desc.Account()),
		logging.String(logging.FieldErrorKind, kind.String()),
		logging.Error(err),
		logging.Bool("retry", retry),
		logging.String(logging.FieldErrorHint, failureHint(err)),
		logging.String(logging.FieldImpact, failureImpact(kind, retry)),
	)

	if !retry {
		job.MarkCancelled()
	}
	if job.Cancelled() {
		e.cancelAndRemove(job)
		return
	}

	switch {
	case kind == services.KindConnectivityLost:
		job.SetPendingReason(queue.PendingConnectivity)
		e.online = false
		if e.monitor != nil {
			e.monitor.Recheck()
		}
	case e.massStorage && kind.DeviceRelated():
		job.SetPendingReason(queue.PendingDeviceBusy)
	default:
		job.SetFailed(true)
		job.SetPendingReason(queue.PendingNone)
	}
}

func failureHint(err error) string {
	if hint := services.Hint(err); hint != "" {
		return hint
	}
	return "inspect the job with webupload show and repair it"
}

func failureImpact(kind services.Kind, retry bool) string {
	switch {
	case !retry:
		return "retry limit reached; job cancelled"
	case kind == services.KindConnectivityLost:
		return "upload resumes when connectivity returns"
	default:
		return "queue is blocked until the job is repaired or cancelled"
	}
}

func (e *Engine) cancelAndRemove(job *queue.Job) {
	job.MarkCancelled()
	if err := job.Descriptor().Cancel(jobContext(job)); err != nil {
		logging.ErrorWithContext(e.logger, "failed to record cancellation", "job_persist_failed",
			logging.String(logging.FieldJobID, job.ID()),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check the state directory"),
		)
	}
	e.remove(job)
	e.removeStaging(job)
	e.logger.Info("job cancelled",
		logging.String(logging.FieldJobID, job.ID()),
		logging.String(logging.FieldEventType, "job_cancelled"),
	)
}

func (e *Engine) remove(job *queue.Job) {
	if err := e.queue.Remove(job); err != nil {
		e.logger.Warn("job not removed from queue",
			logging.String(logging.FieldJobID, job.ID()),
			logging.String("owner", job.Owner().String()),
			logging.Error(err),
		)
	}
}

func (e *Engine) removeStaging(job *queue.Job) {
	if err := staging.RemoveJob(e.cfg.Paths.StagingDir, job.ID()); err != nil {
		e.logger.Debug("staging cleanup failed",
			logging.String(logging.FieldJobID, job.ID()),
			logging.Error(err),
		)
	}
}
