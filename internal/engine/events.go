package engine

import (
	"fmt"

	"webupload/internal/logging"
	"webupload/internal/preprocess"
	"webupload/internal/queue"
	"webupload/internal/services"
	"webupload/internal/wire"
	"webupload/internal/worker"
)

func (e *Engine) handleWorker(ev worker.Event) {
	if e.uploadJob == nil || ev.Unit != e.uploadUnit {
		e.logger.Debug("ignoring event for retired worker unit",
			logging.Uint64(logging.FieldWorkerUnit, ev.Unit),
			logging.String("kind", ev.Kind.String()),
		)
		return
	}

	switch ev.Kind {
	case worker.EventMessage:
		e.handleWorkerMessage(e.uploadJob, ev.Message)
	case worker.EventDone:
		job, _ := e.releaseUpload()
		e.completeJob(job)
	case worker.EventStopped:
		job, reason := e.releaseUpload()
		e.uploadStopped(job, reason)
	case worker.EventFailed:
		job, reason := e.releaseUpload()
		if e.shuttingDown {
			return
		}
		if reason == stopCancel {
			job.MarkCancelled()
		}
		e.failJob(job, ev.Err)
		e.evaluateHead()
	}
}

func (e *Engine) handleWorkerMessage(job *queue.Job, msg wire.Message) {
	desc := job.Descriptor()
	switch m := msg.(type) {
	case wire.SendingMedia:
		index := int(m.Index)
		job.SetCurrentMedia(index)
		if err := desc.MarkSent(jobContext(job), index); err != nil {
			e.logger.Warn("failed to record sent media",
				logging.String(logging.FieldJobID, job.ID()),
				logging.Int(logging.FieldMediaIndex, index),
				logging.Error(err),
			)
		}
		e.logger.Debug("sending media",
			logging.String(logging.FieldJobID, job.ID()),
			logging.Int(logging.FieldMediaIndex, index),
			logging.Int("media_count", desc.MediaCount()),
		)
	case wire.Progress:
		fraction := float64(m.Fraction)
		job.Estimator().RecordSample(fraction)
		if e.progress.admit(job.ID(), job.CurrentMedia(), fraction) {
			attrs := []logging.Attr{
				logging.String(logging.FieldJobID, job.ID()),
				logging.Float64("percent", fraction*100),
				logging.String(logging.FieldEventType, "upload_progress"),
			}
			if eta, ok := job.Estimator().Estimate(); ok {
				attrs = append(attrs, logging.Duration("eta", eta))
			}
			e.logger.Info("upload progress", logging.Args(attrs...)...)
		}
	case wire.OptionValueChanged:
		if err := e.store.SaveOption(jobContext(job), desc.Account(), m); err != nil {
			e.logger.Warn("failed to store option value",
				logging.String(logging.FieldAccount, desc.Account()),
				logging.String("option", m.Name),
				logging.Error(err),
			)
		}
	case wire.Custom:
		e.logger.Debug("custom worker message",
			logging.String(logging.FieldJobID, job.ID()),
			logging.Int("code", int(m.Code)),
			logging.Int("bytes", len(m.Blob)),
		)
	default:
		e.logger.Debug("unexpected worker message",
			logging.String(logging.FieldJobID, job.ID()),
			logging.String("opcode", msg.Opcode().String()),
		)
	}
}

func (e *Engine) uploadStopped(job *queue.Job, reason stopReason) {
	e.logger.Info("upload stopped",
		logging.String(logging.FieldJobID, job.ID()),
		logging.String("reason", reason.String()),
		logging.String(logging.FieldEventType, "upload_stopped"),
	)
	if reason == stopCancel && !e.shuttingDown {
		job.MarkCancelled()
	}
	switch {
	case e.shuttingDown:
	case job.Cancelled():
		e.cancelAndRemove(job)
	case reason == stopPromote && !e.queue.IsHead(job):
		job.SetPendingReason(queue.PendingQueued)
		e.queue.MoveToBack(job)
		e.evaluateHead()
	case e.massStorage:
		job.SetPendingReason(queue.PendingDeviceBusy)
	default:
		e.evaluateHead()
	}
}

func (e *Engine) handlePrep(res preprocess.Result) {
	out := e.prep.Handle(res)
	job := out.Job
	switch out.Kind {
	case preprocess.OutcomeDone:
		job.SetPendingReason(queue.PendingNone)
		e.evaluateHead()
	case preprocess.OutcomeStopped:
		switch {
		case e.shuttingDown:
		case job.Cancelled():
			e.cancelAndRemove(job)
		case !e.queue.IsHead(job):
			job.SetPendingReason(queue.PendingQueued)
		}
		e.evaluateHead()
	case preprocess.OutcomeFailed:
		if !e.shuttingDown {
			e.failJob(job, out.Err)
			e.evaluateHead()
		}
	}
	e.maybeTerminate()
}

func (e *Engine) setOnline(online bool) {
	if online == e.online {
		return
	}
	e.online = online
	e.logger.Info("connectivity changed",
		logging.Bool("online", online),
		logging.String(logging.FieldEventType, "connectivity_changed"),
	)
	e.evaluateHead()
}

func (e *Engine) setMassStorage(active bool) {
	if active == e.massStorage {
		return
	}
	e.massStorage = active
	e.logger.Info("device mode changed",
		logging.Bool("mass_storage", active),
		logging.String(logging.FieldEventType, "mass_storage_changed"),
	)
	if active {
		e.stopUpload(stopDevice)
		e.prep.Stop(nil)
		if head := e.queue.Head(); head != nil {
			head.SetPendingReason(queue.PendingDeviceBusy)
		}
		return
	}
	// Files may have changed while the device was exported.
	for job := e.queue.Head(); job != nil; job = e.queue.NextAfter(job) {
		if job.Owner() == queue.OwnerQueue {
			job.RecomputeProcessed()
		}
	}
	e.evaluateHead()
}

func (e *Engine) control(kind controlKind, id string) error {
	if e.shuttingDown {
		return ErrShuttingDown
	}
	job := e.queue.Find(id)
	if job == nil {
		return services.Wrap(services.ErrNotFound, "engine", kind.String(), fmt.Sprintf("job %s is not queued", id), nil)
	}
	switch kind {
	case controlCancel:
		e.cancel(job)
	case controlPromote:
		if e.queue.PromoteToFront(job) {
			e.logger.Info("job promoted",
				logging.String(logging.FieldJobID, job.ID()),
				logging.String(logging.FieldEventType, "job_promoted"),
			)
		}
	case controlRepair:
		return e.repair(job)
	}
	return nil
}

func (e *Engine) cancel(job *queue.Job) {
	switch job.Owner() {
	case queue.OwnerUploadWorker:
		// Marked cancelled once the worker confirms the stop.
		e.stopUpload(stopCancel)
	case queue.OwnerPreprocessor:
		// The in-flight item finishes and the Stopped outcome removes the job.
		job.MarkCancelled()
	default:
		e.cancelAndRemove(job)
	}
}

func (e *Engine) repair(job *queue.Job) error {
	if !job.Failed() {
		return services.Wrap(services.ErrValidation, "engine", "repair", fmt.Sprintf("job %s is not awaiting repair", job.ID()), nil)
	}
	if err := job.Descriptor().Requeue(jobContext(job)); err != nil {
		return err
	}
	job.SetFailed(false)
	job.SetPendingReason(queue.PendingQueued)
	job.RecomputeProcessed()
	e.logger.Info("job repaired",
		logging.String(logging.FieldJobID, job.ID()),
		logging.String(logging.FieldEventType, "job_repaired"),
	)
	e.evaluateHead()
	return nil
}
