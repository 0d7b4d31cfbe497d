// Package scheduler runs the recurring lending jobs (expiration, reminders)
// on fixed wall-clock intervals. A tick whose predecessor is still running is
// skipped and counted, never run concurrently with itself.
package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Job is one recurring task.
type Job struct {
	Name     string
	Interval time.Duration
	Run      func(ctx context.Context) error
}

// JobStatus is a point-in-time view of a job's health, exposed for external
// health reporting.
type JobStatus struct {
	Name                string
	LastRun             time.Time
	LastError           string
	ConsecutiveFailures int
	Runs                uint64
	SkippedTicks        uint64
}

type jobState struct {
	job     Job
	running sync.Mutex

	mu                  sync.Mutex
	lastRun             time.Time
	lastError           string
	consecutiveFailures int
	runs                uint64
	skippedTicks        uint64
}

// Driver owns the job goroutines. Construct with NewDriver, add jobs with
// Register, then call Start exactly once.
type Driver struct {
	logger *slog.Logger
	now    func() time.Time
	jobs   []*jobState
	wg     sync.WaitGroup

	runsTotal     *prometheus.CounterVec
	failuresTotal *prometheus.CounterVec
	skippedTotal  *prometheus.CounterVec
	lastRunStamp  *prometheus.GaugeVec
}

// NewDriver wires a driver with metrics registered on reg. A nil registerer
// disables metric registration (used by tests).
func NewDriver(logger *slog.Logger, now func() time.Time, reg prometheus.Registerer) *Driver {
	if logger == nil {
		logger = slog.Default()
	}
	if now == nil {
		now = time.Now
	}
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	factory := promauto.With(reg)
	return &Driver{
		logger: logger,
		now:    now,
		runsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "lending_job_runs_total",
			Help: "Completed scheduled job runs.",
		}, []string{"job"}),
		failuresTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "lending_job_failures_total",
			Help: "Scheduled job runs that returned an error.",
		}, []string{"job"}),
		skippedTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "lending_job_skipped_ticks_total",
			Help: "Ticks skipped because the previous run was still in progress.",
		}, []string{"job"}),
		lastRunStamp: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "lending_job_last_run_timestamp_seconds",
			Help: "Unix time of the last completed run per job.",
		}, []string{"job"}),
	}
}

// Register adds a job. Must be called before Start.
func (d *Driver) Register(job Job) {
	d.jobs = append(d.jobs, &jobState{job: job})
}

// Start launches one goroutine per registered job. Jobs first fire one
// interval after Start and stop when ctx is cancelled.
func (d *Driver) Start(ctx context.Context) {
	for _, state := range d.jobs {
		d.wg.Add(1)
		go d.loop(ctx, state)
	}
}

// Wait blocks until every job goroutine has exited.
func (d *Driver) Wait() {
	d.wg.Wait()
}

// Snapshot reports the current status of every job, ordered as registered.
func (d *Driver) Snapshot() []JobStatus {
	statuses := make([]JobStatus, 0, len(d.jobs))
	for _, state := range d.jobs {
		state.mu.Lock()
		statuses = append(statuses, JobStatus{
			Name:                state.job.Name,
			LastRun:             state.lastRun,
			LastError:           state.lastError,
			ConsecutiveFailures: state.consecutiveFailures,
			Runs:                state.runs,
			SkippedTicks:        state.skippedTicks,
		})
		state.mu.Unlock()
	}
	return statuses
}

func (d *Driver) loop(ctx context.Context, state *jobState) {
	defer d.wg.Done()

	ticker := time.NewTicker(state.job.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			d.logger.Info("scheduled job stopped", "job", state.job.Name)
			return
		case <-ticker.C:
			if !state.running.TryLock() {
				d.recordSkip(state)
				continue
			}
			// In-flight runs join the driver's wait group so Wait blocks
			// until they finish after cancellation.
			d.wg.Add(1)
			go func() {
				defer d.wg.Done()
				defer state.running.Unlock()
				d.execute(ctx, state)
			}()
		}
	}
}

func (d *Driver) execute(ctx context.Context, state *jobState) {
	started := d.now()
	err := state.job.Run(ctx)
	finished := d.now()

	state.mu.Lock()
	state.lastRun = finished
	state.runs++
	if err != nil {
		state.lastError = err.Error()
		state.consecutiveFailures++
	} else {
		state.lastError = ""
		state.consecutiveFailures = 0
	}
	failures := state.consecutiveFailures
	state.mu.Unlock()

	d.runsTotal.WithLabelValues(state.job.Name).Inc()
	d.lastRunStamp.WithLabelValues(state.job.Name).Set(float64(finished.Unix()))

	if err != nil {
		d.failuresTotal.WithLabelValues(state.job.Name).Inc()
		d.logger.Error("scheduled job failed",
			"job", state.job.Name,
			"error", err,
			"consecutive_failures", failures,
			"duration", finished.Sub(started).String(),
		)
		return
	}

	d.logger.Debug("scheduled job completed",
		"job", state.job.Name,
		"duration", finished.Sub(started).String(),
	)
}

func (d *Driver) recordSkip(state *jobState) {
	state.mu.Lock()
	state.skippedTicks++
	state.mu.Unlock()

	d.skippedTotal.WithLabelValues(state.job.Name).Inc()
	d.logger.Warn("skipping tick, previous run still in progress", "job", state.job.Name)
}
