package engine

// progressLog decides which worker progress reports reach the log. It lets
// through the first report for each job or media item and then one report
// per step of completion.
type progressLog struct {
	step    float64
	key     progressKey
	reached int
}

type progressKey struct {
	jobID string
	media int
}

func newProgressLog(step float64) *progressLog {
	if step <= 0 || step > 1 {
		step = 0.05
	}
	return &progressLog{step: step, reached: -1}
}

// admit reports whether fraction for the given job and media item should be
// logged. Fractions outside [0, 1] are clamped.
func (p *progressLog) admit(jobID string, media int, fraction float64) bool {
	key := progressKey{jobID: jobID, media: media}
	fresh := key != p.key
	if fresh {
		p.key = key
		p.reached = -1
	}
	fraction = min(max(fraction, 0), 1)
	bucket := int(fraction / p.step)
	if bucket <= p.reached {
		return fresh
	}
	p.reached = bucket
	return true
}

func (p *progressLog) reset() {
	p.key = progressKey{}
	p.reached = -1
}
