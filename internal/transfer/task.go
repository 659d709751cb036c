package transfer

import (
	"sort"
	"sync"
	"time"
)

// DownloadTask is one file to fetch. Tasks are built from the catalog and never persisted.
type DownloadTask struct {
	DestinationPath string
	SourceURL       string
	DisplayName     string
}

// Status is the outcome of a single task.
type Status string

const (
	StatusDone    Status = "done"
	StatusSkipped Status = "skipped"
	StatusFailed  Status = "failed"
)

// Result is what a worker hands back to its pool for one task.
type Result struct {
	Name     string
	Status   Status
	Kind     ErrorKind
	Err      error
	Bytes    int64
	Duration time.Duration
}

// Failed builds a failed Result with the error classified.
func Failed(name string, err error) Result {
	return Result{Name: name, Status: StatusFailed, Kind: Classify(err), Err: err}
}

// Report is the tally of a pool run.
type Report struct {
	Done     int
	Skipped  int
	Failed   int
	Bytes    int64
	Failures []Result
}

// Total returns the number of tasks that reached a worker.
func (r Report) Total() int {
	return r.Done + r.Skipped + r.Failed
}

// Merge adds other into r.
func (r *Report) Merge(other Report) {
	r.Done += other.Done
	r.Skipped += other.Skipped
	r.Failed += other.Failed
	r.Bytes += other.Bytes
	r.Failures = append(r.Failures, other.Failures...)
}

// Collector aggregates Results from concurrent workers.
type Collector struct {
	mu     sync.Mutex
	report Report
}

func (c *Collector) Add(r Result) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch r.Status {
	case StatusDone:
		c.report.Done++
	case StatusSkipped:
		c.report.Skipped++
	case StatusFailed:
		c.report.Failed++
		c.report.Failures = append(c.report.Failures, r)
	}

	c.report.Bytes += r.Bytes
}

// Report returns a snapshot with failures sorted by name.
func (c *Collector) Report() Report {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := c.report
	out.Failures = append([]Result(nil), c.report.Failures...)

	sort.Slice(out.Failures, func(i, j int) bool { return out.Failures[i].Name < out.Failures[j].Name })

	return out
}
