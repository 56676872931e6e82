package engine

import "context"

// Cancel cancels a queued job. An uploading job is stopped first and removed
// once the worker reports back.
func (e *Engine) Cancel(ctx context.Context, id string) error {
	return e.controlRequest(ctx, controlCancel, id)
}

// Promote moves a job to the head of the queue, preempting the current head.
func (e *Engine) Promote(ctx context.Context, id string) error {
	return e.controlRequest(ctx, controlPromote, id)
}

// Repair clears a failed job so it is retried as a fresh head.
func (e *Engine) Repair(ctx context.Context, id string) error {
	return e.controlRequest(ctx, controlRepair, id)
}

func (e *Engine) controlRequest(ctx context.Context, kind controlKind, id string) error {
	reply := make(chan error, 1)
	if err := e.request(ctx, controlInput{kind: kind, id: id, reply: reply}); err != nil {
		return err
	}
	res, err := awaitReply(ctx, e, reply)
	if err != nil {
		return err
	}
	return res
}

// SetOnline reports a connectivity change.
func (e *Engine) SetOnline(online bool) {
	e.post(connectivityInput{online: online})
}

// SetMassStorage reports entering or leaving USB mass-storage mode.
func (e *Engine) SetMassStorage(active bool) {
	e.post(massStorageInput{active: active})
}

// Shutdown asks the engine to stop. Jobs stay in the store and are recovered
// on the next start.
func (e *Engine) Shutdown(reason string) {
	e.post(shutdownInput{reason: reason})
}
