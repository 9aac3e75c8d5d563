package executor

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/ternarybob/crawlcore/internal/common"
	"github.com/ternarybob/crawlcore/internal/fetch"
	"github.com/ternarybob/crawlcore/internal/fingerprint"
	"github.com/ternarybob/crawlcore/internal/interfaces"
	"github.com/ternarybob/crawlcore/internal/models"
)

// fetchOutcome is what a fetch worker goroutine sends back to the
// coordinator: the frontier record it was handling plus the pipeline's
// outcome for it. Only the coordinator (crawlLoop) ever mutates
// visited/failed/progress; this keeps a single writer for all shared state.
type fetchOutcome struct {
	rec     *models.URLRecord
	outcome fetch.Outcome
}

// crawlLoop is the coordinator: it owns the frontier and visited/failed
// state exclusively, dispatches fetch workers up to ConcurrentRequests,
// and reacts to pause/cancel requests and diagnostics ticks. It returns once the frontier is empty and no fetch is in flight, or
// the crawl is paused/cancelled.
func (e *Executor) crawlLoop() {
	concurrency := e.config.ConcurrentRequests
	if concurrency <= 0 {
		concurrency = 1
	}
	resultCh := make(chan fetchOutcome, concurrency*2)
	inFlight := 0

	diagTicker := time.NewTicker(30 * time.Second)
	defer diagTicker.Stop()

	sampleTicker := time.NewTicker(time.Second)
	defer sampleTicker.Stop()

	var maxDuration <-chan time.Time
	if e.config.MaxDurationMinutes > 0 {
		timer := time.NewTimer(time.Duration(e.config.MaxDurationMinutes) * time.Minute)
		defer timer.Stop()
		maxDuration = timer.C
	}

	for {
		if atomic.LoadInt32(&e.cancelRequested) == 1 {
			e.drainAndExit(resultCh, &inFlight)
			return
		}

		if atomic.LoadInt32(&e.pauseRequested) == 1 {
			e.drainInFlight(resultCh, &inFlight)
			e.enterPause()

			<-e.resumeCh
			atomic.StoreInt32(&e.pauseRequested, 0)

			if atomic.LoadInt32(&e.cancelRequested) == 1 {
				e.transitionCancelled()
				return
			}
			if err := e.sm.Resume(); err != nil {
				e.fail(err)
				return
			}
			continue
		}

		if e.limitReached() {
			e.frontier.Close()
		}

		select {
		case <-maxDuration:
			atomic.StoreInt32(&e.cancelRequested, 1)
			continue
		case <-diagTicker.C:
			e.logDiagnostics()
			continue
		case <-sampleTicker.C:
			e.sampleMetrics(inFlight)
			continue
		case res := <-resultCh:
			inFlight--
			e.handleResult(res)
			continue
		default:
		}

		if inFlight >= concurrency || e.frontier.Len() == 0 {
			if inFlight == 0 && e.frontier.Len() == 0 {
				return
			}
			select {
			case res := <-resultCh:
				inFlight--
				e.handleResult(res)
			case <-sampleTicker.C:
				e.sampleMetrics(inFlight)
			case <-time.After(200 * time.Millisecond):
			case <-maxDuration:
				atomic.StoreInt32(&e.cancelRequested, 1)
			}
			continue
		}

		popCtx, cancel := context.WithTimeout(e.ctx, 200*time.Millisecond)
		rec, err := e.frontier.Pop(popCtx)
		cancel()
		if err != nil || rec == nil {
			continue
		}

		if e.shouldDiscard(rec.URL) {
			continue
		}

		inFlight++
		e.dispatch(rec, resultCh)
	}
}

func (e *Executor) limitReached() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.config.MaxPages > 0 && e.progress.CompletedURLs >= e.config.MaxPages {
		return true
	}
	if e.config.MaxDocuments > 0 && len(e.completedDocs) >= e.config.MaxDocuments {
		return true
	}
	return false
}

func (e *Executor) shouldDiscard(url string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, visited := e.visited[url]
	_, failed := e.failed[url]
	return visited || failed
}

// dispatch spawns one fetch worker goroutine for rec. Conditional headers
// come from the parent iteration's fingerprint, if one exists for this URL:
// the origin's own 304 response realizes the ShouldFetch skip decision
// without a separate probe round-trip.
func (e *Executor) dispatch(rec *models.URLRecord, resultCh chan<- fetchOutcome) {
	common.SafeGoWithContext(e.ctx, e.logger, "executor-fetch:"+e.crawlID, func() {
		ifNoneMatch, ifModifiedSince := "", ""
		if fp, ok := e.parentFingerprints[rec.URL]; ok {
			ifNoneMatch = fp.ETag
			ifModifiedSince = fp.LastModified
		}
		outcome := e.pipe.Fetch(e.ctx, rec.URL, rec.Depth, ifNoneMatch, ifModifiedSince)
		select {
		case resultCh <- fetchOutcome{rec: rec, outcome: outcome}:
		case <-e.ctx.Done():
		}
	})
}

func (e *Executor) handleResult(res fetchOutcome) {
	url := res.rec.URL

	e.mu.Lock()
	e.seenThisIteration[url] = struct{}{}
	e.mu.Unlock()

	switch {
	case res.outcome.Failure != nil:
		e.recordFailure(*res.outcome.Failure)
	case res.outcome.NotModified:
		e.recordUnchanged(url)
	default:
		e.recordFetched(res.rec, res.outcome.Response)
	}

	if atomic.AddInt64(&e.fetchSinceCheckpoint, 1) >= int64(e.config.CheckpointEveryN) && e.config.CheckpointEveryN > 0 {
		atomic.StoreInt64(&e.fetchSinceCheckpoint, 0)
		if _, err := e.snapshotCheckpoint(models.CheckpointAuto); err != nil {
			e.logger.Error().Err(err).Msg("auto checkpoint failed")
		}
	}
}

func (e *Executor) recordFailure(fr models.FailureRecord) {
	e.mu.Lock()
	e.failed[fr.URL] = fr
	e.progress.FailedURLs++
	e.mu.Unlock()

	e.rt.Metrics.IncCounter(e.crawlID, "urls_failed", 1)
	e.rt.Bus.Publish(e.crawlID, interfaces.EventURLFailed, fr)
}

func (e *Executor) recordUnchanged(url string) {
	e.mu.Lock()
	e.visited[url] = struct{}{}
	e.progress.CompletedURLs++
	e.classCounts[models.ChangeUnchanged]++
	e.mu.Unlock()

	e.rt.Metrics.IncCounter(e.crawlID, "urls_crawled", 1)
	e.rt.Bus.Publish(e.crawlID, interfaces.EventDocumentProcessed, map[string]interface{}{
		"url": url, "change_class": models.ChangeUnchanged, "byte_delta": 0,
	})
}

func (e *Executor) recordFetched(source *models.URLRecord, resp *interfaces.FetchResponse) {
	if resp == nil {
		return
	}
	url := source.URL

	e.mu.Lock()
	e.visited[url] = struct{}{}
	e.progress.CompletedURLs++
	e.mu.Unlock()

	changeClass, hash := fingerprint.Classify(url, resp.Body, e.parentFingerprints)
	fp := fingerprint.NewFingerprint(e.iteration.ID, url, hash, resp.Header.Get("ETag"), resp.Header.Get("Last-Modified"), uint64(len(resp.Body)), time.Now(), nil)
	if err := e.rt.Iterations.RecordFingerprint(e.iteration.ID, fp); err != nil {
		e.logger.Error().Err(err).Str("url", url).Msg("failed to record fingerprint")
	}

	e.mu.Lock()
	e.classCounts[changeClass]++
	e.mu.Unlock()

	e.rt.Metrics.IncCounter(e.crawlID, "urls_crawled", 1)
	e.rt.Metrics.IncCounter(e.crawlID, "bytes_downloaded", int64(len(resp.Body)))
	e.rt.Bus.Publish(e.crawlID, interfaces.EventURLFetched, map[string]interface{}{
		"url": url, "status_code": resp.StatusCode, "byte_size": len(resp.Body),
	})

	outcome := e.rt.Processor.Process(e.ctx, url, resp.Body, resp.Header)
	if outcome.Failed {
		e.logger.Warn().Err(outcome.Err).Str("url", url).Msg("content processor failed")
	}
	if outcome.Scored && outcome.QualityScore < e.config.MinQualityScore {
		e.rt.Bus.Publish(e.crawlID, interfaces.EventDocumentProcessed, map[string]interface{}{
			"url": url, "change_class": changeClass, "quality_score": outcome.QualityScore, "below_threshold": true,
		})
		return
	}

	e.mu.Lock()
	e.completedDocs[url] = struct{}{}
	e.mu.Unlock()

	e.rt.Bus.Publish(e.crawlID, interfaces.EventDocumentProcessed, map[string]interface{}{
		"url": url, "change_class": changeClass, "byte_size": len(resp.Body),
	})

	for _, d := range outcome.Discovered {
		depth := source.Depth + 1
		if d.Depth > depth {
			depth = d.Depth
		}
		if e.config.MaxDepth > 0 && depth > e.config.MaxDepth {
			continue
		}
		rec := &models.URLRecord{URL: d.URL, Depth: depth, DiscoveredFrom: url, EnqueuedAt: time.Now()}
		switch e.frontier.Push(rec) {
		case PushEnqueued:
			e.rt.Metrics.IncCounter(e.crawlID, "urls_enqueued", 1)
			e.rt.Bus.Publish(e.crawlID, interfaces.EventURLEnqueued, map[string]interface{}{"url": d.URL, "depth": depth})
		case PushFull:
			e.rt.Bus.Publish(e.crawlID, interfaces.EventURLFailed, models.FailureRecord{
				URL: d.URL, Reason: "frontier_full", FailedAt: time.Now(),
			})
		}
	}
}

func (e *Executor) drainInFlight(resultCh <-chan fetchOutcome, inFlight *int) {
	deadline := time.After(5 * time.Second)
	for *inFlight > 0 {
		select {
		case res := <-resultCh:
			*inFlight--
			e.handleResult(res)
		case <-deadline:
			return
		}
	}
}

func (e *Executor) drainAndExit(resultCh <-chan fetchOutcome, inFlight *int) {
	e.drainInFlight(resultCh, inFlight)
	e.transitionCancelled()
}

func (e *Executor) enterPause() {
	if err := e.sm.Pause(); err != nil {
		e.logger.Error().Err(err).Msg("pause transition failed")
		return
	}
	if _, err := e.snapshotCheckpoint(models.CheckpointPause); err != nil {
		e.logger.Error().Err(err).Msg("pause checkpoint failed")
	}
}

func (e *Executor) transitionCancelled() {
	e.frontier.Close()
	if err := e.sm.Cancel(); err != nil {
		e.logger.Error().Err(err).Msg("cancel transition failed")
		return
	}
	if _, err := e.snapshotCheckpoint(models.CheckpointManual); err != nil {
		e.logger.Error().Err(err).Msg("final checkpoint on cancel failed")
	}
}

// sampleMetrics records the two named gauges (active_fetches,
// frontier_size) and takes one 1Hz rolling-window sample, so
// ThroughputPerMin/SamplesSince/checkpoint MetricSamples have real data to
// derive from instead of an empty series.
func (e *Executor) sampleMetrics(inFlight int) {
	e.rt.Metrics.SetGauge(e.crawlID, "active_fetches", float64(inFlight))
	e.rt.Metrics.SetGauge(e.crawlID, "frontier_size", float64(e.frontier.Len()))
	e.rt.Metrics.Sample(e.crawlID, time.Now())
}

func (e *Executor) logDiagnostics() {
	e.mu.Lock()
	visited, failed := len(e.visited), len(e.failed)
	e.mu.Unlock()
	e.logger.Debug().
		Str("crawl_id", e.crawlID).
		Int("frontier_len", e.frontier.Len()).
		Int("visited", visited).
		Int("failed", failed).
		Msg("crawl progress diagnostics")
}

func (e *Executor) snapshotCheckpoint(kind models.CheckpointKind) (models.Checkpoint, error) {
	bundle := e.buildStateBundle()
	cp, err := e.rt.Checkpoints.Snapshot(e.crawlID, bundle, kind)
	if err != nil {
		return models.Checkpoint{}, err
	}
	e.rt.Bus.Publish(e.crawlID, interfaces.EventCheckpointCreated, map[string]interface{}{
		"checkpoint_id": cp.ID, "sequence_number": cp.SequenceNumber, "kind": kind,
	})
	return cp, nil
}

func (e *Executor) buildStateBundle() models.StateBundle {
	e.mu.Lock()
	defer e.mu.Unlock()

	visited := make([]string, 0, len(e.visited))
	for u := range e.visited {
		visited = append(visited, u)
	}
	failedList := make([]models.FailureRecord, 0, len(e.failed))
	for _, fr := range e.failed {
		failedList = append(failedList, fr)
	}
	completed := make([]string, 0, len(e.completedDocs))
	for u := range e.completedDocs {
		completed = append(completed, u)
	}

	var metricSamples []models.MetricSample
	for _, s := range e.rt.Metrics.SamplesSince(e.crawlID, 24*time.Hour) {
		metricSamples = append(metricSamples, models.MetricSample{
			Timestamp: s.Timestamp, Counters: s.Counters, Gauges: s.Gauges,
		})
	}

	resumeState := e.sm.Current()
	if resumeState == models.StatePaused {
		if pre := e.sm.PrePause(); pre != "" {
			resumeState = pre
		} else {
			resumeState = models.StateCrawling
		}
	}

	return models.StateBundle{
		CrawlID:       e.crawlID,
		State:         e.sm.Current(),
		ResumeState:   resumeState,
		Substate:      e.sm.Substate(),
		Frontier:      e.frontier.Snapshot(),
		Visited:       visited,
		Failed:        failedList,
		CompletedDocs: completed,
		Progress:      e.progress,
		MetricSamples: metricSamples,
		Config:        e.config,
		IterationID:   e.iteration.ID,
		BaselineID:    e.iteration.BaselineIterationID,
		ParentID:      e.iteration.ParentIterationID,
		SchemaVersion: models.SchemaVersion,
	}
}
