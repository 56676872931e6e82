package api

// dateTimeFormat is used for RFC3339 timestamps in API payloads.
const dateTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// JobItem describes a queued job in a transport-friendly format.
type JobItem struct {
	ID            string      `json:"id"`
	Account       string      `json:"account"`
	SourcePath    string      `json:"sourcePath"`
	Position      int         `json:"position"`
	Owner         string      `json:"owner"`
	Pending       string      `json:"pending"`
	Cancelled     bool        `json:"cancelled"`
	Failed        bool        `json:"failed"`
	Processed     bool        `json:"processed"`
	StopRequested bool        `json:"stopRequested"`
	Media         JobMedia    `json:"media"`
	Progress      JobProgress `json:"progress"`
	LastError     *JobError   `json:"lastError,omitempty"`
}

// JobMedia summarises the media of a job.
type JobMedia struct {
	Count       int   `json:"count"`
	Sent        int   `json:"sent"`
	Current     int   `json:"current"`
	TotalBytes  int64 `json:"totalBytes"`
	UnsentBytes int64 `json:"unsentBytes"`
}

// JobProgress reports upload progress of the current media set.
type JobProgress struct {
	Fraction   float64 `json:"fraction"`
	Percent    float64 `json:"percent"`
	ETASeconds float64 `json:"etaSeconds,omitempty"`
}

// JobError is the most recent failure recorded for a job.
type JobError struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
	Hint    string `json:"hint,omitempty"`
}

// StoredJob is a persisted job row.
type StoredJob struct {
	ID          string    `json:"id"`
	Account     string    `json:"account"`
	SourcePath  string    `json:"sourcePath"`
	Status      string    `json:"status"`
	Attempts    int       `json:"attempts"`
	MaxAttempts int       `json:"maxAttempts"`
	MediaCount  int       `json:"mediaCount"`
	MediaSent   int       `json:"mediaSent"`
	TotalBytes  int64     `json:"totalBytes"`
	LastError   *JobError `json:"lastError,omitempty"`
	CreatedAt   string    `json:"createdAt,omitempty"`
	UpdatedAt   string    `json:"updatedAt,omitempty"`
}

// EngineStatus reports the engine state machine.
type EngineStatus struct {
	State        string `json:"state"`
	Online       bool   `json:"online"`
	MassStorage  bool   `json:"massStorage"`
	ShuttingDown bool   `json:"shuttingDown"`
	Immortal     bool   `json:"immortal"`
}

// CheckResult is one startup preflight check.
type CheckResult struct {
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
	Detail string `json:"detail,omitempty"`
}

// DaemonStatus aggregates runtime information.
type DaemonStatus struct {
	Running      bool           `json:"running"`
	PID          int            `json:"pid"`
	StartedAt    string         `json:"startedAt,omitempty"`
	LockPath     string         `json:"lockPath"`
	DatabasePath string         `json:"databasePath"`
	LogPath      string         `json:"logPath,omitempty"`
	Engine       EngineStatus   `json:"engine"`
	Jobs         []JobItem      `json:"jobs"`
	StoredCounts map[string]int `json:"storedCounts"`
	Checks       []CheckResult  `json:"checks,omitempty"`
}

// JobListResponse wraps the live job listing.
type JobListResponse struct {
	Jobs []JobItem `json:"jobs"`
}

// JobDetailResponse carries the live and stored views of one job. Either may
// be absent: finished jobs are only stored, and a job being built is only live.
type JobDetailResponse struct {
	Live   *JobItem   `json:"live,omitempty"`
	Stored *StoredJob `json:"stored,omitempty"`
}

// AccountOption is a cached option value.
type AccountOption struct {
	Account    string `json:"account"`
	Name       string `json:"name"`
	MediaIndex int32  `json:"mediaIndex"`
	Type       string `json:"type"`
	Value      any    `json:"value"`
	UpdatedAt  string `json:"updatedAt,omitempty"`
}

// ErrorResponse is the JSON body of a failed request.
type ErrorResponse struct {
	Error string `json:"error"`
}
