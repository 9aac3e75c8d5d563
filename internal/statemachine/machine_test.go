package statemachine

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ternarybob/crawlcore/internal/eventbus"
	"github.com/ternarybob/crawlcore/internal/models"
)

func TestHappyPathTransitions(t *testing.T) {
	m := New("crawl-1", eventbus.New(nil), nil)

	path := []models.State{
		models.StateInitializing,
		models.StateCrawling,
		models.StateExtracting,
		models.StateProcessing,
		models.StateCompleted,
	}
	for _, s := range path {
		require.NoError(t, m.Transition(s, nil))
	}
	assert.Equal(t, models.StateCompleted, m.Current())
	assert.Len(t, m.History(), len(path))
}

func TestIllegalTransitionRejected(t *testing.T) {
	m := New("crawl-2", eventbus.New(nil), nil)
	err := m.Transition(models.StateCompleted, nil)
	assert.ErrorIs(t, err, models.ErrIllegalTransition)
	assert.Equal(t, models.StateQueued, m.Current())
}

func TestPauseResumeReturnsToCapturedState(t *testing.T) {
	m := New("crawl-3", eventbus.New(nil), nil)
	require.NoError(t, m.Transition(models.StateInitializing, nil))
	require.NoError(t, m.Transition(models.StateCrawling, nil))

	require.NoError(t, m.Pause())
	assert.Equal(t, models.StatePaused, m.Current())

	require.NoError(t, m.Resume())
	assert.Equal(t, models.StateCrawling, m.Current())
}

func TestCancelIsIdempotentAndTerminal(t *testing.T) {
	m := New("crawl-4", eventbus.New(nil), nil)
	require.NoError(t, m.Transition(models.StateInitializing, nil))

	require.NoError(t, m.Cancel())
	assert.Equal(t, models.StateCancelled, m.Current())

	// second Cancel is a no-op success (scenario S6).
	require.NoError(t, m.Cancel())
	assert.Equal(t, models.StateCancelled, m.Current())

	// no further transitions permitted from a terminal state.
	err := m.Transition(models.StateInitializing, nil)
	assert.ErrorIs(t, err, models.ErrIllegalTransition)
}

func TestConcurrentPauseCancelStaysInGraph(t *testing.T) {
	m := New("crawl-5", eventbus.New(nil), nil)
	require.NoError(t, m.Transition(models.StateInitializing, nil))
	require.NoError(t, m.Transition(models.StateCrawling, nil))

	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); _ = m.Pause() }()
	go func() { defer wg.Done(); _ = m.Cancel() }()
	wg.Wait()

	final := m.Current()
	assert.Contains(t, []models.State{models.StatePaused, models.StateCancelled}, final)
}
