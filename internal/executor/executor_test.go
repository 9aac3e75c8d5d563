package executor

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"

	"github.com/ternarybob/crawlcore/internal/checkpoint"
	"github.com/ternarybob/crawlcore/internal/common"
	"github.com/ternarybob/crawlcore/internal/contentproc"
	"github.com/ternarybob/crawlcore/internal/eventbus"
	"github.com/ternarybob/crawlcore/internal/iteration"
	"github.com/ternarybob/crawlcore/internal/metrics"
	"github.com/ternarybob/crawlcore/internal/models"
	"github.com/ternarybob/crawlcore/internal/planner"
	"github.com/ternarybob/crawlcore/internal/storage/badger"
)

// newTestRuntime builds a Runtime over temp-dir-backed badger stores, the
// in-memory event bus/metrics collector, and the reference content
// processor/planner, mirroring internal/checkpoint and internal/iteration's
// own newTestStore(t) fixture pattern.
func newTestRuntime(t *testing.T) Runtime {
	t.Helper()

	metaDir, err := os.MkdirTemp("", "executor-badger-test")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(metaDir) })

	options := badgerhold.DefaultOptions
	options.Dir = metaDir
	options.ValueDir = metaDir
	raw, err := badgerhold.Open(options)
	require.NoError(t, err)
	t.Cleanup(func() { raw.Close() })

	db := badger.WrapStoreForTest(raw)
	logger := arbor.NewLogger()

	iterStore := iteration.New(badger.NewIterationStorage(db, logger))

	blobDir, err := os.MkdirTemp("", "executor-checkpoint-blob-test")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(blobDir) })
	cpStore, err := checkpoint.New(badger.NewCheckpointStorage(db, logger), blobDir, logger)
	require.NoError(t, err)

	return Runtime{
		Bus:         eventbus.New(logger),
		Metrics:     metrics.New(),
		Iterations:  iterStore,
		Checkpoints: cpStore,
		Processor:   contentproc.NewLinkDiscoverer(),
		Planner:     planner.New(),
		Clock:       common.RealClock{},
		Logger:      logger,
	}
}

func waitDone(t *testing.T, e *Executor) {
	t.Helper()
	select {
	case <-e.Done():
	case <-time.After(10 * time.Second):
		t.Fatalf("executor for crawl %s did not finish", e.CrawlID())
	}
}

func seedPathN(i int) string {
	return "/seed/" + string(rune('a'+i%26)) + string(rune('0'+i/26))
}

func testConfig(seeds ...string) models.CrawlConfig {
	cfg := models.DefaultCrawlConfig(seeds)
	cfg.DelaySeconds = 0
	cfg.TimeoutSeconds = 5
	cfg.MaxRetries = 0
	cfg.RespectRobots = false
	cfg.CheckpointEveryN = 1000
	cfg.ConcurrentRequests = 4
	return cfg
}

func TestBaselineThenIncrementalSkipsUnchangedViaConditionalGET(t *testing.T) {
	rt := newTestRuntime(t)

	pages := map[string]string{
		"/a": "page a v1",
		"/b": "page b v1",
		"/c": "page c v1",
	}
	srv := newFingerprintServer(t, pages)
	defer srv.Close()

	cfg := testConfig(srv.URL+"/a", srv.URL+"/b", srv.URL+"/c")
	manager := NewManager(rt)

	baseline, err := manager.Start(cfg)
	require.NoError(t, err)
	waitDone(t, baseline)
	assert.Equal(t, models.StateCompleted, baseline.State())
	assert.Equal(t, 3, baseline.Progress().CompletedURLs)

	// Modify exactly one page before the incremental iteration runs.
	srv.setBody("/b", "page b v2")

	incremental, err := manager.NextIteration(baseline.CrawlID(), models.ModeIncremental)
	require.NoError(t, err)
	waitDone(t, incremental)
	assert.Equal(t, models.StateCompleted, incremental.State())
	assert.Equal(t, 3, incremental.Progress().CompletedURLs)
	assert.Equal(t, 2, srv.downloadCount("/b"), "modified page is downloaded once per iteration")
	assert.Equal(t, 1, srv.downloadCount("/a"), "unchanged page downloads once in baseline, then 304s")
	assert.Equal(t, 1, srv.downloadCount("/c"), "unchanged page downloads once in baseline, then 304s")

	stats, err := rt.Iterations.GetIteration(incremental.iteration.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Stats.Modified+stats.Stats.New, "exactly one page changed")
}

func TestPauseResumeRetainsFrontierAndCompletes(t *testing.T) {
	rt := newTestRuntime(t)

	pages := make(map[string]string)
	var seeds []string
	for i := 0; i < 20; i++ {
		path := seedPathN(i)
		pages[path] = "content"
	}
	srv := newFingerprintServer(t, pages)
	defer srv.Close()
	for path := range pages {
		seeds = append(seeds, srv.URL+path)
	}

	cfg := testConfig(seeds...)
	manager := NewManager(rt)

	e, err := manager.Start(cfg)
	require.NoError(t, err)

	require.NoError(t, e.Pause())
	require.Eventually(t, func() bool { return e.State() == models.StatePaused }, 5*time.Second, 10*time.Millisecond)

	require.NoError(t, e.Resume())
	waitDone(t, e)

	assert.Equal(t, models.StateCompleted, e.State())
	assert.Equal(t, 20, e.Progress().CompletedURLs)
}

// TestResumeAfterProcessRestartReplaysFromCheckpoint kills the in-memory
// Executor mid-crawl (simulating a process restart: a fresh Manager over
// the same durable Iterations/Checkpoints stores, with no live Executor
// registered) and verifies Resume reconstructs it from the latest
// checkpoint and finishes every seed exactly once — scenario S2's "after
// process restart, Resume completes the remaining URLs exactly once;
// final visited set size = 100" (scaled down for test speed).
func TestResumeAfterProcessRestartReplaysFromCheckpoint(t *testing.T) {
	rt := newTestRuntime(t)

	pages := make(map[string]string)
	var seeds []string
	for i := 0; i < 20; i++ {
		path := seedPathN(i)
		pages[path] = "content"
	}
	srv := newFingerprintServer(t, pages)
	defer srv.Close()
	srv.setDelay(50 * time.Millisecond)
	for path := range pages {
		seeds = append(seeds, srv.URL+path)
	}

	cfg := testConfig(seeds...)
	cfg.ConcurrentRequests = 2
	manager1 := NewManager(rt)

	e, err := manager1.Start(cfg)
	require.NoError(t, err)
	crawlID := e.CrawlID()

	time.Sleep(120 * time.Millisecond)
	require.NoError(t, e.Pause())
	require.Eventually(t, func() bool { return e.State() == models.StatePaused }, 5*time.Second, 10*time.Millisecond)
	t.Cleanup(func() {
		e.Cancel()
		waitDone(t, e)
	})

	e.mu.Lock()
	pausedCompleted := e.progress.CompletedURLs
	e.mu.Unlock()
	require.Less(t, pausedCompleted, 20, "pause should land before every seed has completed")

	// Simulate a process restart: a brand-new Manager over the same
	// durable stores, with no knowledge of the in-memory Executor above.
	srv.setDelay(0)
	manager2 := NewManager(rt)
	resumed, err := manager2.RestoreFromCheckpoint(crawlID, "")
	require.NoError(t, err)
	waitDone(t, resumed)

	assert.Equal(t, models.StateCompleted, resumed.State())
	resumed.mu.Lock()
	visitedCount := len(resumed.visited)
	resumed.mu.Unlock()
	assert.Equal(t, 20, visitedCount, "every seed is visited exactly once across the restart")
}

func TestRobotsDenialRecordedNotFatal(t *testing.T) {
	rt := newTestRuntime(t)

	srv := newRobotsServer(t, map[string]string{
		"/private/secret": "secret body",
		"/public/page":    "public body",
	}, "User-agent: *\nDisallow: /private\n")
	defer srv.Close()

	cfg := testConfig(srv.URL+"/private/secret", srv.URL+"/public/page")
	cfg.RespectRobots = true

	manager := NewManager(rt)
	e, err := manager.Start(cfg)
	require.NoError(t, err)
	waitDone(t, e)

	assert.Equal(t, models.StateCompleted, e.State())
	e.mu.Lock()
	fr, denied := e.failed[srv.URL+"/private/secret"]
	_, fetched := e.visited[srv.URL+"/public/page"]
	e.mu.Unlock()
	require.True(t, denied)
	assert.Equal(t, "robots_denied", fr.Reason)
	assert.True(t, fetched)
}

func TestCancelIsAlwaysHonouredAndNeverErrors(t *testing.T) {
	rt := newTestRuntime(t)
	srv := newFingerprintServer(t, map[string]string{"/a": "hello"})
	defer srv.Close()

	cfg := testConfig(srv.URL + "/a")
	manager := NewManager(rt)
	e, err := manager.Start(cfg)
	require.NoError(t, err)

	require.NoError(t, e.Cancel())
	waitDone(t, e)
	assert.Equal(t, models.StateCancelled, e.State())

	// Cancel on an already-terminal crawl is a no-op, not an error.
	require.NoError(t, e.Cancel())
}
