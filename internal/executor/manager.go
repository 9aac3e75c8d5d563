package executor

import (
	"fmt"
	"sync"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/crawlcore/internal/common"
	"github.com/ternarybob/crawlcore/internal/models"
)

// Manager is the crawl_id-addressable registry of live Executors: the
// in-memory collaborator behind the crawl_id-keyed control-plane operations
// lists (Start/Pause/Resume/Cancel/NextIteration), consumed by
// internal/server.
type Manager struct {
	rt Runtime

	mu        sync.RWMutex
	executors map[string]*Executor
}

// NewManager builds a Manager bound to one process-wide Runtime.
func NewManager(rt Runtime) *Manager {
	return &Manager{rt: rt, executors: make(map[string]*Executor)}
}

// Start validates config, creates the crawl's baseline iteration, and
// launches a new Executor.
func (m *Manager) Start(config models.CrawlConfig) (*Executor, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	crawlID := common.NewCrawlID()
	logger := m.rt.Logger
	if logger != nil {
		logger = logger.WithContextWriter(crawlID)
	}

	iter, err := m.rt.Iterations.CreateBaseline(crawlID)
	if err != nil {
		return nil, err
	}

	e := newExecutor(m.rt, crawlID, config, iter, map[string]models.Fingerprint{}, logger)
	for _, seed := range config.SeedURLs {
		e.frontier.Push(&models.URLRecord{URL: seed})
	}

	m.register(e)
	e.start()
	return e, nil
}

// Get returns the live Executor for crawlID, if one is registered.
func (m *Manager) Get(crawlID string) (*Executor, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.executors[crawlID]
	return e, ok
}

func (m *Manager) register(e *Executor) {
	m.mu.Lock()
	m.executors[e.crawlID] = e
	m.mu.Unlock()
}

// Pause, Resume, and Cancel look up the live Executor and forward the call,
// surfacing models.ErrUnknownCrawl when the crawl_id isn't registered.
func (m *Manager) Pause(crawlID string) error {
	e, ok := m.Get(crawlID)
	if !ok {
		return models.ErrUnknownCrawl
	}
	return e.Pause()
}

// Resume implements "Resume(crawl_id) — loads latest
// non-terminal checkpoint and transitions back to the captured state; if no
// checkpoint exists and crawl was Paused in memory, restores from memory."
// A live in-process Executor always wins (the cheap cooperative path);
// only when crawlID is absent from the registry — e.g. after a process
// restart — does Resume fall back to reconstructing the Executor from its
// latest checkpoint.
func (m *Manager) Resume(crawlID string) error {
	if e, ok := m.Get(crawlID); ok {
		return e.Resume()
	}
	_, err := m.RestoreFromCheckpoint(crawlID, "")
	return err
}

// RestoreFromCheckpoint reconstructs and resumes an Executor for crawlID
// from a checkpoint's StateBundle, continuing from exactly the frontier,
// visited, failed, and progress state it was captured with. If crawlID already has a live in-memory Executor,
// that Executor is resumed in place instead (the in-memory path never loses
// state a checkpoint wouldn't have captured yet). checkpointID may be empty
// to mean "the crawl's latest non-terminal checkpoint".
func (m *Manager) RestoreFromCheckpoint(crawlID string, checkpointID string) (*Executor, error) {
	if e, ok := m.Get(crawlID); ok {
		if err := e.Resume(); err != nil {
			return nil, err
		}
		return e, nil
	}

	id := checkpointID
	if id == "" {
		cp, ok, err := m.rt.Checkpoints.Latest(crawlID)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, models.ErrUnknownCrawl
		}
		id = cp.ID
	}

	bundle, err := m.rt.Checkpoints.Restore(id)
	if err != nil {
		return nil, err
	}
	if bundle.CrawlID != crawlID {
		return nil, models.ErrCrawlIDMismatch
	}

	iter, err := m.rt.Iterations.GetIteration(bundle.IterationID)
	if err != nil {
		return nil, fmt.Errorf("load restored iteration: %w", err)
	}

	parentFPs := map[string]models.Fingerprint{}
	if iter.ParentIterationID != "" {
		fps, fpErr := m.rt.Iterations.GetFingerprints(iter.ParentIterationID)
		if fpErr != nil {
			return nil, fmt.Errorf("load parent fingerprints: %w", fpErr)
		}
		parentFPs = fps
	}

	logger := m.logFor(crawlID)
	e := newExecutorFromBundle(m.rt, crawlID, bundle, iter, parentFPs, logger)

	m.register(e)
	e.start()
	return e, nil
}

func (m *Manager) Cancel(crawlID string) error {
	e, ok := m.Get(crawlID)
	if !ok {
		return models.ErrUnknownCrawl
	}
	return e.Cancel()
}

// NextIteration requires the crawl's current iteration to have completed
// (or mode to be full with AllowForkFromFailed set), creates the child
// iteration, and launches a fresh Executor over it with the parent's
// fingerprints loaded.
func (m *Manager) NextIteration(crawlID string, mode models.IterationMode) (*Executor, error) {
	prev, ok := m.Get(crawlID)
	if !ok {
		return nil, models.ErrUnknownCrawl
	}
	if prev.State() != models.StateCompleted {
		if !(mode == models.ModeFull && prev.config.AllowForkFromFailed && prev.State() == models.StateFailed) {
			return nil, models.ErrIllegalTransition
		}
	}

	child, err := m.rt.Iterations.CreateChild(crawlID, mode, prev.config.AllowForkFromFailed)
	if err != nil {
		return nil, fmt.Errorf("create child iteration: %w", err)
	}

	knownFPs, err := m.rt.Iterations.GetFingerprints(prev.iteration.ID)
	if err != nil {
		return nil, fmt.Errorf("load parent fingerprints: %w", err)
	}

	// ModeFull bypasses conditional-GET fast paths (every URL reclassifies
	// as New) but still reseeds the frontier with the parent's full known
	// URL set, not just the config's original seeds (DESIGN.md Open
	// Question 2: a full run revisits the whole known graph).
	parentFPs := knownFPs
	if mode == models.ModeFull {
		parentFPs = map[string]models.Fingerprint{}
	}

	logger := m.logFor(crawlID)
	e := newExecutor(m.rt, crawlID, prev.config, child, parentFPs, logger)

	for url := range knownFPs {
		e.frontier.Push(&models.URLRecord{URL: url})
	}
	for _, seed := range prev.config.SeedURLs {
		e.frontier.Push(&models.URLRecord{URL: seed})
	}

	m.register(e)
	e.start()
	return e, nil
}

func (m *Manager) logFor(crawlID string) arbor.ILogger {
	if m.rt.Logger == nil {
		return nil
	}
	return m.rt.Logger.WithContextWriter(crawlID)
}
