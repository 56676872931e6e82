package ipc

import "webupload/internal/api"

// StatusRequest fetches daemon status.
type StatusRequest struct{}

// StatusResponse carries the daemon status.
type StatusResponse struct {
	Status api.DaemonStatus `json:"status"`
}

// JobsRequest lists jobs. Stored rows are included when IncludeStored is set,
// filtered by Statuses (all when empty).
type JobsRequest struct {
	IncludeStored bool     `json:"include_stored"`
	Statuses      []string `json:"statuses,omitempty"`
}

// JobsResponse lists live and, optionally, stored jobs.
type JobsResponse struct {
	Live   []api.JobItem   `json:"live"`
	Stored []api.StoredJob `json:"stored,omitempty"`
}

// ShowRequest describes one job.
type ShowRequest struct {
	ID string `json:"id"`
}

// ShowResponse carries the live and stored views of one job.
type ShowResponse = api.JobDetailResponse

// SubmitRequest queues a new job from a job file or a file list.
type SubmitRequest struct {
	Account string   `json:"account,omitempty"`
	JobFile string   `json:"job_file,omitempty"`
	Files   []string `json:"files,omitempty"`
}

// SubmitResponse returns the queued job.
type SubmitResponse struct {
	Job api.JobItem `json:"job"`
}

// JobRequest addresses a queued job for cancel, promote and repair.
type JobRequest struct {
	ID string `json:"id"`
}

// JobResponse acknowledges a job control request.
type JobResponse struct {
	ID      string `json:"id"`
	Applied bool   `json:"applied"`
}

// RecoverRequest replays unfinished jobs, or cancels them when Clean is set.
type RecoverRequest struct {
	Clean bool `json:"clean"`
}

// RecoverResponse reports how many jobs were recovered or cancelled.
type RecoverResponse struct {
	Count int `json:"count"`
}

// ShutdownRequest stops the engine.
type ShutdownRequest struct {
	Reason string `json:"reason,omitempty"`
}

// ShutdownResponse acknowledges the shutdown request.
type ShutdownResponse struct {
	Acknowledged bool `json:"acknowledged"`
}

// OptionsUpdateRequest refreshes account options. An empty Option refreshes
// all of them; a non-empty Value is added to Option.
type OptionsUpdateRequest struct {
	Account string `json:"account"`
	Option  string `json:"option,omitempty"`
	Value   string `json:"value,omitempty"`
}

// OptionsUpdateResponse lists the values the worker reported.
type OptionsUpdateResponse struct {
	Changes []api.AccountOption `json:"changes"`
}

// OptionsListRequest lists cached options of an account.
type OptionsListRequest struct {
	Account string `json:"account"`
}

// OptionsListResponse lists cached options.
type OptionsListResponse struct {
	Options []api.AccountOption `json:"options"`
}
