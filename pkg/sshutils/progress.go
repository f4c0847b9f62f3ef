package sshutils

// Progress is one report from a file transfer.
type Progress struct {
	Sent    int64
	Total   int64
	Percent int
	Done    bool
}

// ProgressFunc receives transfer progress. It is called at most once per whole-percent
// increase and exactly once with Done set.
type ProgressFunc func(Progress)

// progressTracker counts the bytes of a single transfer. Each GetFile/PutFile call owns
// its own tracker.
type progressTracker struct {
	total       int64
	sent        int64
	lastPercent int
	done        bool
	report      ProgressFunc
}

func newProgressTracker(total int64, report ProgressFunc) *progressTracker {
	return &progressTracker{total: total, report: report}
}

// Write counts p so the tracker can sit behind io.MultiWriter or io.TeeReader.
func (p *progressTracker) Write(b []byte) (int, error) {
	p.Add(int64(len(b)))
	return len(b), nil
}

func (p *progressTracker) Add(n int64) {
	if n <= 0 || p.done {
		return
	}
	p.sent += n
	if p.total <= 0 {
		return
	}
	if p.sent >= p.total {
		p.finish()
		return
	}
	percent := int(p.sent * 100 / p.total)
	if percent-p.lastPercent < 1 {
		return
	}
	p.lastPercent = percent
	p.emit(Progress{Sent: p.sent, Total: p.total, Percent: percent})
}

// Finish emits the completion report unless Add already did.
func (p *progressTracker) Finish() {
	if !p.done {
		p.finish()
	}
}

func (p *progressTracker) finish() {
	p.done = true
	p.lastPercent = 100 //nolint:mnd
	p.emit(Progress{Sent: p.sent, Total: p.total, Percent: 100, Done: true}) //nolint:mnd
}

func (p *progressTracker) emit(pr Progress) {
	if p.report != nil {
		p.report(pr)
	}
}
