// Package executor implements the crawl executor: it owns a crawl's
// frontier and lifecycle, drives the fetch/classify/process loop, and
// coordinates with the state machine, event bus, metrics collector,
// iteration store, and checkpoint store.
package executor

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/crawlcore/internal/common"
	"github.com/ternarybob/crawlcore/internal/fetch"
	"github.com/ternarybob/crawlcore/internal/interfaces"
	"github.com/ternarybob/crawlcore/internal/models"
	"github.com/ternarybob/crawlcore/internal/statemachine"
)

// Runtime bundles the collaborators every Executor shares, constructed once
// at process init and injected into every crawl.
type Runtime struct {
	Bus         interfaces.EventBus
	Metrics     interfaces.MetricsCollector
	Iterations  interfaces.IterationStore
	Checkpoints interfaces.CheckpointStore
	Fetcher     interfaces.Fetcher
	Processor   interfaces.ContentProcessor
	Planner     interfaces.Planner
	Clock       common.Clock
	Logger      arbor.ILogger
}

// Executor drives one crawl end to end. Frontier, visited, and failed state
// are owned exclusively by the coordinator goroutine started in run();
// every other method communicates with it via flags/channels rather than
// touching that state directly.
type Executor struct {
	rt      Runtime
	crawlID string
	config  models.CrawlConfig
	sm      *statemachine.Machine
	logger  arbor.ILogger
	pipe    *fetch.Pipeline

	frontier *Frontier

	mu            sync.Mutex
	visited       map[string]struct{}
	failed        map[string]models.FailureRecord
	completedDocs map[string]struct{}
	progress      models.Progress
	classCounts   map[models.ChangeClass]int

	iteration          models.Iteration
	parentFingerprints map[string]models.Fingerprint
	seenThisIteration  map[string]struct{}

	fetchSinceCheckpoint int64

	ctx    context.Context
	cancel context.CancelFunc

	pauseRequested  int32
	cancelRequested int32
	resumeCh        chan struct{}
	doneCh          chan struct{}

	// resumed is true when this Executor was reconstructed from a restored
	// StateBundle (executor.Manager.RestoreFromCheckpoint) rather than
	// started fresh; run() skips the initial Queued->Initializing->Crawling
	// transitions and the iteration_started event in that case, since both
	// already happened in the process that wrote the checkpoint.
	resumed bool
}

// happyPath is the fixed top-level sequence a crawl moves through absent
// Pause/Cancel/Fail. Used by advanceTo to fast-forward a
// restored Executor from wherever its checkpoint left it to a later state
// without re-entering states it has already passed.
var happyPath = []models.State{
	models.StateQueued,
	models.StateInitializing,
	models.StateCrawling,
	models.StateExtracting,
	models.StateProcessing,
	models.StateCompleted,
}

func happyPathIndex(s models.State) int {
	for i, st := range happyPath {
		if st == s {
			return i
		}
	}
	return -1
}

// advanceTo transitions the state machine forward along happyPath, one edge
// at a time, until it reaches target. A no-op if the machine is already at
// or past target (so a restored Executor that already left Crawling before
// its checkpoint was written doesn't re-run Crawling's transition).
func (e *Executor) advanceTo(target models.State) error {
	targetIdx := happyPathIndex(target)
	for {
		curIdx := happyPathIndex(e.sm.Current())
		if curIdx < 0 || curIdx >= targetIdx {
			return nil
		}
		if err := e.sm.Transition(happyPath[curIdx+1], nil); err != nil {
			return err
		}
	}
}

// newPipeline wires the fetch pipeline shared by fresh and restored
// Executors alike, from config alone.
func newPipeline(rt Runtime, config models.CrawlConfig, logger arbor.ILogger) *fetch.Pipeline {
	robots := fetch.NewRobotsGate(&http.Client{Timeout: 10 * time.Second}, config.UserAgent)
	hosts := fetch.NewHostLimiter(config.EffectiveDelay(), config.EffectivePerHostCap())
	retry := fetch.NewRetryPolicy(config.MaxRetries)
	fetcher := rt.Fetcher
	if fetcher == nil {
		fetcher = fetch.NewHTTPFetcher()
	}
	return fetch.New(fetcher, robots, hosts, retry, config, logger)
}

// newExecutor wires one crawl's Executor starting from a fresh frontier.
// Callers use Manager.Start/NextIteration rather than this directly.
func newExecutor(rt Runtime, crawlID string, config models.CrawlConfig, iter models.Iteration, parentFPs map[string]models.Fingerprint, logger arbor.ILogger) *Executor {
	ctx, cancel := context.WithCancel(context.Background())

	e := &Executor{
		rt:                 rt,
		crawlID:            crawlID,
		config:             config,
		logger:             logger,
		pipe:               newPipeline(rt, config, logger),
		frontier:           NewFrontier(config.FrontierSoftCap),
		visited:            make(map[string]struct{}),
		failed:             make(map[string]models.FailureRecord),
		completedDocs:      make(map[string]struct{}),
		classCounts:        make(map[models.ChangeClass]int),
		iteration:          iter,
		parentFingerprints: parentFPs,
		seenThisIteration:  make(map[string]struct{}),
		ctx:                ctx,
		cancel:             cancel,
		resumeCh:           make(chan struct{}, 1),
		doneCh:             make(chan struct{}),
	}
	e.sm = statemachine.New(crawlID, rt.Bus, logger)
	return e
}

// newExecutorFromBundle reconstructs an Executor from a restored
// StateBundle (executor.Manager.RestoreFromCheckpoint): frontier, visited,
// failed, completed documents, and progress are rebuilt from the bundle
// exactly as captured, and the state machine starts directly at
// bundle.ResumeState rather than at Queued.
func newExecutorFromBundle(rt Runtime, crawlID string, bundle models.StateBundle, iter models.Iteration, parentFPs map[string]models.Fingerprint, logger arbor.ILogger) *Executor {
	ctx, cancel := context.WithCancel(context.Background())

	frontier := NewFrontier(bundle.Config.FrontierSoftCap)
	for i := range bundle.Frontier {
		rec := bundle.Frontier[i]
		frontier.Push(&rec)
	}

	visited := make(map[string]struct{}, len(bundle.Visited))
	for _, u := range bundle.Visited {
		visited[u] = struct{}{}
	}
	failed := make(map[string]models.FailureRecord, len(bundle.Failed))
	for _, fr := range bundle.Failed {
		failed[fr.URL] = fr
	}
	completedDocs := make(map[string]struct{}, len(bundle.CompletedDocs))
	for _, u := range bundle.CompletedDocs {
		completedDocs[u] = struct{}{}
	}
	seenThisIteration := make(map[string]struct{}, len(visited)+len(failed))
	for u := range visited {
		seenThisIteration[u] = struct{}{}
	}
	for u := range failed {
		seenThisIteration[u] = struct{}{}
	}

	e := &Executor{
		rt:                 rt,
		crawlID:            crawlID,
		config:             bundle.Config,
		logger:             logger,
		pipe:               newPipeline(rt, bundle.Config, logger),
		frontier:           frontier,
		visited:            visited,
		failed:             failed,
		completedDocs:      completedDocs,
		progress:           bundle.Progress,
		classCounts:        make(map[models.ChangeClass]int),
		iteration:          iter,
		parentFingerprints: parentFPs,
		seenThisIteration:  seenThisIteration,
		ctx:                ctx,
		cancel:             cancel,
		resumeCh:           make(chan struct{}, 1),
		doneCh:             make(chan struct{}),
		resumed:            true,
	}
	resumeState := bundle.ResumeState
	if resumeState == "" || resumeState == models.StatePaused {
		resumeState = models.StateCrawling
	}
	e.sm = statemachine.NewRestored(crawlID, rt.Bus, logger, resumeState, bundle.Substate)
	return e
}

// CrawlID returns the crawl this Executor drives.
func (e *Executor) CrawlID() string { return e.crawlID }

// State returns the current top-level lifecycle state.
func (e *Executor) State() models.State { return e.sm.Current() }

// Done returns a channel closed once the executor's run loop has returned
// (Completed, Failed, or Cancelled).
func (e *Executor) Done() <-chan struct{} { return e.doneCh }

// Progress returns a copy of the current progress counters.
func (e *Executor) Progress() models.Progress {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.progress
}

// start transitions Queued->Initializing->Crawling and launches the
// coordinator goroutine. The caller (Manager.Start/NextIteration) has
// already created the Crawl/Iteration records.
func (e *Executor) start() {
	// Plain SafeGo, not SafeGoWithContext: a Cancel issued before this
	// goroutine is scheduled must still reach run, which ends in Cancelled
	// and closes doneCh.
	common.SafeGo(e.logger, "executor-run:"+e.crawlID, e.run)
}

func (e *Executor) run() {
	defer close(e.doneCh)

	if e.resumed {
		e.rt.Bus.Publish(e.crawlID, interfaces.EventCheckpointRestored, map[string]interface{}{
			"iteration_id": e.iteration.ID,
			"state":        string(e.sm.Current()),
		})
	} else {
		if err := e.advanceTo(models.StateCrawling); err != nil {
			e.fail(err)
			return
		}
		e.sm.SetSubstate(models.SubstateDiscovering)
		e.rt.Bus.Publish(e.crawlID, interfaces.EventIterationStarted, map[string]interface{}{
			"iteration_id":     e.iteration.ID,
			"iteration_number": e.iteration.IterationNumber,
		})
	}

	// A restored Executor may have already left Crawling (its checkpoint
	// was taken during Extracting/Processing) — only re-enter the fetch
	// loop if that's genuinely where execution stopped.
	if e.sm.Current() == models.StateCrawling {
		e.crawlLoop()
	}

	if atomic.LoadInt32(&e.cancelRequested) == 1 {
		return
	}

	if err := e.advanceTo(models.StateCompleted); err != nil {
		e.fail(err)
		return
	}

	stats := e.finalizeStats()
	if err := e.rt.Iterations.Complete(e.iteration.ID, stats); err != nil {
		e.logger.Error().Err(err).Str("iteration_id", e.iteration.ID).Msg("failed to seal iteration")
	}
	e.rt.Bus.Publish(e.crawlID, interfaces.EventIterationCompleted, stats)
}

func (e *Executor) finalizeStats() models.IterationStats {
	e.mu.Lock()
	defer e.mu.Unlock()

	deleted := 0
	if len(e.parentFingerprints) > 0 {
		d := 0
		for url := range e.parentFingerprints {
			if _, ok := e.seenThisIteration[url]; !ok {
				d++
			}
		}
		deleted = d
	}

	return models.IterationStats{
		New:       e.classCounts[models.ChangeNew],
		Modified:  e.classCounts[models.ChangeModified],
		Unchanged: e.classCounts[models.ChangeUnchanged],
		Deleted:   deleted,
		Failed:    len(e.failed),
	}
}

func (e *Executor) fail(err error) {
	e.logger.Error().Err(err).Str("crawl_id", e.crawlID).Msg("executor failing crawl")
	if _, cpErr := e.snapshotCheckpoint(models.CheckpointError); cpErr != nil {
		e.logger.Error().Err(cpErr).Msg("failed to write error checkpoint")
	}
	if tErr := e.sm.Transition(models.StateFailed, map[string]string{"error": err.Error()}); tErr != nil {
		e.logger.Error().Err(tErr).Msg("failed to transition to Failed")
	}
	e.rt.Bus.Publish(e.crawlID, interfaces.EventError, map[string]interface{}{"error": err.Error()})
}

// Pause requests a cooperative pause: the coordinator drains in-flight
// fetches, writes a pause checkpoint, and transitions to Paused before
// blocking on Resume/Cancel.
func (e *Executor) Pause() error {
	if e.sm.Current().IsTerminal() || e.sm.Current() == models.StatePaused {
		return models.ErrIllegalTransition
	}
	atomic.StoreInt32(&e.pauseRequested, 1)
	return nil
}

// Resume wakes a paused coordinator.
func (e *Executor) Resume() error {
	if e.sm.Current() != models.StatePaused {
		return models.ErrIllegalTransition
	}
	select {
	case e.resumeCh <- struct{}{}:
	default:
	}
	return nil
}

// CreateCheckpoint writes an on-demand manual checkpoint and returns its
// metadata, for the control-plane "create checkpoint" operation.
func (e *Executor) CreateCheckpoint() (models.Checkpoint, error) {
	return e.snapshotCheckpoint(models.CheckpointManual)
}

// Cancel requests cooperative cancellation; always succeeds.
func (e *Executor) Cancel() error {
	if e.sm.Current().IsTerminal() {
		return nil
	}
	atomic.StoreInt32(&e.cancelRequested, 1)
	e.cancel()
	select {
	case e.resumeCh <- struct{}{}:
	default:
	}
	return nil
}
