// Package download runs multi-file download jobs with progress tracking,
// cancellation and inactivity detection.
package download

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"enginectl/pkg/types"
)

// Defaults applied when corresponding Config fields are unset.
const (
	defaultInactivityTimeout = 20 * time.Second
	defaultBufferSize        = 32 * 1024
)

// Config encapsulates the tunables for Orchestrator construction.
type Config struct {
	// HTTPClient performs transfers. Its own timeout, if any, applies on top
	// of the inactivity watchdog.
	HTTPClient *http.Client
	// InactivityTimeout cancels a transfer that receives no data for this long.
	InactivityTimeout time.Duration
	Publisher         Publisher
	Logger            zerolog.Logger
}

// Request describes one job submission.
type Request struct {
	ID    string
	Title string
	Type  types.DownloadType
	// Targets are transferred in order unless Parallel is set.
	Targets []types.DownloadTarget
	// OnComplete runs once after every target is downloaded, before the job
	// is removed. It is not called for failed or aborted jobs.
	OnComplete func(ctx context.Context) error
	Parallel   bool
}

// Orchestrator owns the active job registry and the cancellation table.
type Orchestrator struct {
	// emitMu serializes mutate+publish so observers see snapshots in order.
	// Lock order: emitMu, then mu.
	emitMu sync.Mutex
	mu     sync.Mutex
	jobs   map[string]*jobState
	order  []string

	client     *http.Client
	inactivity time.Duration
	pub        Publisher
	log        zerolog.Logger
}

type jobState struct {
	job     types.DownloadJob
	index   map[string]int
	cancels map[string]context.CancelCauseFunc
	ctx     context.Context
	cancel  context.CancelCauseFunc
}

// New returns an Orchestrator with package defaults.
func New() *Orchestrator { return NewWithConfig(Config{Logger: zerolog.Nop()}) }

// NewWithConfig constructs an Orchestrator from Config.
func NewWithConfig(cfg Config) *Orchestrator {
	o := &Orchestrator{
		jobs:       make(map[string]*jobState),
		client:     cfg.HTTPClient,
		inactivity: cfg.InactivityTimeout,
		pub:        cfg.Publisher,
		log:        cfg.Logger,
	}
	if o.client == nil {
		o.client = &http.Client{}
	}
	if o.inactivity <= 0 {
		o.inactivity = defaultInactivityTimeout
	}
	if o.pub == nil {
		o.pub = noopPublisher{}
	}
	return o
}

// Submit registers the job and blocks until it is terminal. Submitting an id
// that is already active is a no-op and returns nil.
func (o *Orchestrator) Submit(ctx context.Context, req Request) error {
	js, accepted, err := o.register(ctx, req)
	if err != nil || !accepted {
		return err
	}
	return o.run(js, req)
}

// SubmitAsync registers the job synchronously and runs it in the background.
// The channel yields the job's terminal error (nil on success) and is then
// closed. For a duplicate id accepted is false and the channel is closed
// without a value.
func (o *Orchestrator) SubmitAsync(ctx context.Context, req Request) (bool, <-chan error) {
	done := make(chan error, 1)
	js, accepted, err := o.register(ctx, req)
	if err != nil {
		done <- err
		close(done)
		return false, done
	}
	if !accepted {
		close(done)
		return false, done
	}
	go func() {
		done <- o.run(js, req)
		close(done)
	}()
	return true, done
}

// Abort cancels every in-flight transfer of the job and removes it. It
// reports whether the job was active.
func (o *Orchestrator) Abort(id string) bool {
	o.emitMu.Lock()
	defer o.emitMu.Unlock()
	o.mu.Lock()
	js, ok := o.jobs[id]
	if !ok {
		o.mu.Unlock()
		return false
	}
	for _, cancel := range js.cancels {
		cancel(ErrAborted)
	}
	js.cancel(ErrAborted)
	o.removeLocked(id)
	snap := o.snapshotLocked()
	o.mu.Unlock()

	jobsTotal.WithLabelValues(typeLabel(string(js.job.Type)), outcomeAborted).Inc()
	o.log.Info().Str("job", id).Msg("download aborted")
	o.pub.Publish(snap)
	return true
}

// Active reports whether a job with id is registered.
func (o *Orchestrator) Active(id string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	_, ok := o.jobs[id]
	return ok
}

// State returns a deep copy of every active job in registration order.
func (o *Orchestrator) State() []types.DownloadJob {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.snapshotLocked()
}

func (o *Orchestrator) register(ctx context.Context, req Request) (*jobState, bool, error) {
	if req.ID == "" {
		return nil, false, invalidRequestError{msg: "job id required"}
	}
	if len(req.Targets) == 0 {
		return nil, false, invalidRequestError{msg: req.ID + ": no targets"}
	}
	js := &jobState{
		job: types.DownloadJob{
			ID:       req.ID,
			Title:    req.Title,
			Type:     req.Type,
			Status:   types.DownloadQueued,
			Children: make([]types.DownloadItem, 0, len(req.Targets)),
		},
		index:   make(map[string]int, len(req.Targets)),
		cancels: make(map[string]context.CancelCauseFunc),
	}
	for _, t := range req.Targets {
		if t.URL == "" || t.Destination == "" {
			return nil, false, invalidRequestError{msg: req.ID + ": target needs url and destination"}
		}
		if _, dup := js.index[t.Destination]; dup {
			return nil, false, invalidRequestError{msg: req.ID + ": duplicate destination " + t.Destination}
		}
		js.index[t.Destination] = len(js.job.Children)
		js.job.Children = append(js.job.Children, types.DownloadItem{ID: t.Destination, Status: types.DownloadDownloading})
	}

	o.emitMu.Lock()
	defer o.emitMu.Unlock()
	o.mu.Lock()
	if _, exists := o.jobs[req.ID]; exists {
		o.mu.Unlock()
		o.log.Debug().Str("job", req.ID).Msg("download already active; ignoring submission")
		return nil, false, nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	js.ctx, js.cancel = context.WithCancelCause(ctx)
	o.jobs[req.ID] = js
	o.order = append(o.order, req.ID)
	snap := o.snapshotLocked()
	o.mu.Unlock()

	activeJobs.Inc()
	o.log.Info().Str("job", req.ID).Int("targets", len(req.Targets)).Bool("parallel", req.Parallel).Msg("download registered")
	o.pub.Publish(snap)
	return js, true, nil
}

func (o *Orchestrator) run(js *jobState, req Request) error {
	defer js.cancel(nil)
	var err error
	if req.Parallel {
		g, gctx := errgroup.WithContext(js.ctx)
		for _, t := range req.Targets {
			t := t
			g.Go(func() error { return o.transfer(gctx, js, t) })
		}
		err = g.Wait()
	} else {
		for _, t := range req.Targets {
			if err = o.transfer(js.ctx, js, t); err != nil {
				break
			}
		}
	}
	if err != nil {
		o.fail(js, err)
		return err
	}

	active := o.update(js, func(js *jobState) bool {
		js.job.Status = types.DownloadDownloaded
		js.job.Progress = 100
		return true
	})
	if !active {
		return fmt.Errorf("download %s: %w", js.job.ID, ErrAborted)
	}
	var cbErr error
	if req.OnComplete != nil {
		if cbErr = req.OnComplete(js.ctx); cbErr != nil {
			o.log.Error().Err(cbErr).Str("job", js.job.ID).Msg("download completion step failed")
			cbErr = fmt.Errorf("download %s: completion: %w", js.job.ID, cbErr)
		}
	}
	if o.finish(js) {
		outcome := outcomeDownloaded
		if cbErr != nil {
			outcome = outcomeError
		}
		jobsTotal.WithLabelValues(typeLabel(string(js.job.Type)), outcome).Inc()
		o.log.Info().Str("job", js.job.ID).Msg("download complete")
	}
	return cbErr
}

// update applies fn to an active job and publishes when fn reports a visible
// change. It returns false once the job is no longer registered.
func (o *Orchestrator) update(js *jobState, fn func(*jobState) bool) bool {
	o.emitMu.Lock()
	defer o.emitMu.Unlock()
	o.mu.Lock()
	if o.jobs[js.job.ID] != js {
		o.mu.Unlock()
		return false
	}
	changed := fn(js)
	var snap []types.DownloadJob
	if changed {
		snap = o.snapshotLocked()
	}
	o.mu.Unlock()
	if changed {
		o.pub.Publish(snap)
	}
	return true
}

// finish removes a completed job and publishes the post-removal snapshot.
func (o *Orchestrator) finish(js *jobState) bool {
	o.emitMu.Lock()
	defer o.emitMu.Unlock()
	o.mu.Lock()
	if o.jobs[js.job.ID] != js {
		o.mu.Unlock()
		return false
	}
	o.removeLocked(js.job.ID)
	snap := o.snapshotLocked()
	o.mu.Unlock()
	o.pub.Publish(snap)
	return true
}

// fail marks the job and its failing item as errored, removes it, then
// publishes the failing job alone followed by the post-removal snapshot.
func (o *Orchestrator) fail(js *jobState, err error) {
	o.emitMu.Lock()
	defer o.emitMu.Unlock()
	o.mu.Lock()
	if o.jobs[js.job.ID] != js {
		// aborted; its removal was already published
		o.mu.Unlock()
		return
	}
	var te *TransferError
	if errors.As(err, &te) {
		if i, ok := js.index[te.Destination]; ok {
			js.job.Children[i].Status = types.DownloadError
			js.job.Children[i].Error = err.Error()
		}
	}
	js.job.Status = types.DownloadError
	js.job.Error = err.Error()
	failing := []types.DownloadJob{cloneJob(js.job)}
	for _, cancel := range js.cancels {
		cancel(err)
	}
	o.removeLocked(js.job.ID)
	post := o.snapshotLocked()
	o.mu.Unlock()

	jobsTotal.WithLabelValues(typeLabel(string(js.job.Type)), outcomeError).Inc()
	ev := o.log.Error().Err(err).Str("job", js.job.ID)
	if te != nil {
		ev = ev.Str("destination", te.Destination)
	}
	ev.Msg("download failed")
	o.pub.Publish(failing)
	o.pub.Publish(post)
}

func (o *Orchestrator) removeLocked(id string) {
	delete(o.jobs, id)
	for i, v := range o.order {
		if v == id {
			o.order = append(o.order[:i], o.order[i+1:]...)
			break
		}
	}
	activeJobs.Dec()
}

func (o *Orchestrator) snapshotLocked() []types.DownloadJob {
	out := make([]types.DownloadJob, 0, len(o.order))
	for _, id := range o.order {
		out = append(out, cloneJob(o.jobs[id].job))
	}
	return out
}

func cloneJob(j types.DownloadJob) types.DownloadJob {
	c := j
	c.Children = make([]types.DownloadItem, len(j.Children))
	copy(c.Children, j.Children)
	return c
}

// aggregateProgress is round(sum transferred / max(sum total, 1) * 100),
// clamped to 0..100.
func aggregateProgress(items []types.DownloadItem) int {
	var transferred, total int64
	for _, it := range items {
		transferred += it.Size.Transferred
		total += it.Size.Total
	}
	if total < 1 {
		total = 1
	}
	return clampPercent(transferred, total)
}

func percent(transferred, total int64) int {
	if total <= 0 {
		return 0
	}
	return clampPercent(transferred, total)
}

func clampPercent(n, d int64) int {
	p := int((n*100 + d/2) / d)
	if p > 100 {
		return 100
	}
	if p < 0 {
		return 0
	}
	return p
}
