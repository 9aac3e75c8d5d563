// Package statemachine enforces the crawl lifecycle's legal transition graph
// across a crawl's lifecycle and publishes state_transitioned events.
package statemachine

import (
	"fmt"
	"sync"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/crawlcore/internal/interfaces"
	"github.com/ternarybob/crawlcore/internal/models"
)

// graph is the legal transition table: a DAG across the happy path plus
// bidirectional X<->Paused for every non-terminal X, plus X->Failed and
// X->Cancelled from any non-terminal state.
var graph = buildGraph()

func buildGraph() map[models.State]map[models.State]bool {
	happyPath := []models.State{
		models.StateQueued,
		models.StateInitializing,
		models.StateCrawling,
		models.StateExtracting,
		models.StateProcessing,
		models.StateCompleted,
	}
	nonTerminal := []models.State{
		models.StateQueued,
		models.StateInitializing,
		models.StateCrawling,
		models.StateExtracting,
		models.StateProcessing,
		models.StatePaused,
	}

	g := make(map[models.State]map[models.State]bool)
	edge := func(from, to models.State) {
		if g[from] == nil {
			g[from] = make(map[models.State]bool)
		}
		g[from][to] = true
	}

	for i := 0; i+1 < len(happyPath); i++ {
		edge(happyPath[i], happyPath[i+1])
	}
	for _, s := range nonTerminal {
		if s == models.StatePaused {
			continue
		}
		edge(s, models.StatePaused)
		edge(models.StatePaused, s)
	}
	for _, s := range nonTerminal {
		edge(s, models.StateFailed)
		edge(s, models.StateCancelled)
	}
	return g
}

// Machine is the concrete StateMachine for one crawl.
type Machine struct {
	mu          sync.RWMutex
	crawlID     string
	current     models.State
	substate    models.Substate
	history     []interfaces.TransitionRecord
	lastEntered time.Time
	prePause    models.State
	bus         interfaces.EventBus
	logger      arbor.ILogger
}

var _ interfaces.StateMachine = (*Machine)(nil)

// New constructs a Machine starting in models.StateQueued.
func New(crawlID string, bus interfaces.EventBus, logger arbor.ILogger) *Machine {
	now := time.Now()
	return &Machine{
		crawlID:     crawlID,
		current:     models.StateQueued,
		substate:    models.SubstateNone,
		lastEntered: now,
		bus:         bus,
		logger:      logger,
	}
}

// NewRestored constructs a Machine whose current state is set directly to a
// checkpoint-restored state rather than reached via Transition, used by
// executor.Manager.RestoreFromCheckpoint when reconstructing an Executor
// after a process restart. Bypassing the graph here is deliberate: the
// transition that produced this state already happened (and was recorded)
// in the process that wrote the checkpoint. A single synthetic history
// entry records the restore itself.
func NewRestored(crawlID string, bus interfaces.EventBus, logger arbor.ILogger, state models.State, substate models.Substate) *Machine {
	now := time.Now()
	m := &Machine{
		crawlID:     crawlID,
		current:     state,
		substate:    substate,
		lastEntered: now,
		bus:         bus,
		logger:      logger,
	}
	m.history = append(m.history, interfaces.TransitionRecord{
		From: models.StatePaused,
		To:   state,
		At:   now,
	})
	return m
}

// PrePause returns the state captured by the most recent Pause() call, or
// the zero State if Pause has never been called. Used to populate
// StateBundle.ResumeState so a checkpoint taken while Paused restores to
// the state that was actually running, not to Paused itself.
func (m *Machine) PrePause() models.State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.prePause
}

func (m *Machine) Current() models.State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

func (m *Machine) Substate() models.Substate {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.substate
}

func (m *Machine) History() []interfaces.TransitionRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]interfaces.TransitionRecord, len(m.history))
	copy(out, m.history)
	return out
}

// SetSubstate records a substate change without touching the top-level
// state or the transition graph; substates are not graph-checked.
func (m *Machine) SetSubstate(sub models.Substate) {
	m.mu.Lock()
	m.substate = sub
	m.mu.Unlock()

	if m.bus != nil {
		m.bus.Publish(m.crawlID, interfaces.EventSubstateTransitioned, map[string]any{
			"substate": string(sub),
		})
	}
}

func (m *Machine) Transition(to models.State, metadata map[string]string) error {
	m.mu.Lock()
	from := m.current
	allowed := graph[from][to]
	if !allowed {
		m.mu.Unlock()
		return models.NewError(models.KindStateError, "IllegalTransition",
			fmt.Errorf("crawl %s: %s -> %s is not a legal transition", m.crawlID, from, to))
	}

	now := time.Now()
	duration := now.Sub(m.lastEntered)
	m.history = append(m.history, interfaces.TransitionRecord{
		From:           from,
		To:             to,
		At:             now,
		DurationInFrom: duration,
		Metadata:       metadata,
	})
	m.current = to
	m.substate = models.SubstateNone
	m.lastEntered = now
	m.mu.Unlock()

	if m.logger != nil {
		m.logger.Debug().Str("crawl_id", m.crawlID).Str("from", string(from)).Str("to", string(to)).Msg("state transition")
	}
	if m.bus != nil {
		m.bus.Publish(m.crawlID, interfaces.EventStateTransitioned, map[string]any{
			"from": string(from),
			"to":   string(to),
		})
	}
	return nil
}

// Pause captures the pre-pause state so Resume returns to exactly that
// state. Calling Pause while already Paused is a no-op.
func (m *Machine) Pause() error {
	m.mu.RLock()
	current := m.current
	m.mu.RUnlock()

	if current == models.StatePaused {
		return nil
	}
	if current.IsTerminal() {
		return models.NewError(models.KindStateError, "IllegalTransition",
			fmt.Errorf("crawl %s: cannot pause from terminal state %s", m.crawlID, current))
	}

	m.mu.Lock()
	m.prePause = current
	m.mu.Unlock()

	if err := m.Transition(models.StatePaused, nil); err != nil {
		return err
	}
	if m.bus != nil {
		m.bus.Publish(m.crawlID, interfaces.EventPaused, nil)
	}
	return nil
}

func (m *Machine) Resume() error {
	m.mu.RLock()
	current := m.current
	target := m.prePause
	m.mu.RUnlock()

	if current != models.StatePaused {
		return models.NewError(models.KindStateError, "IllegalTransition",
			fmt.Errorf("crawl %s: cannot resume from %s", m.crawlID, current))
	}
	if target == "" {
		target = models.StateInitializing
	}
	if err := m.Transition(target, nil); err != nil {
		return err
	}
	if m.bus != nil {
		m.bus.Publish(m.crawlID, interfaces.EventResumed, nil)
	}
	return nil
}

// Cancel is permitted from any non-terminal state and is irreversible.
// Issuing Cancel twice is idempotent: the second call is a no-op success.
func (m *Machine) Cancel() error {
	m.mu.RLock()
	current := m.current
	m.mu.RUnlock()

	if current == models.StateCancelled {
		return nil
	}
	if current.IsTerminal() {
		return models.NewError(models.KindStateError, "IllegalTransition",
			fmt.Errorf("crawl %s: cannot cancel from terminal state %s", m.crawlID, current))
	}
	if err := m.Transition(models.StateCancelled, nil); err != nil {
		return err
	}
	if m.bus != nil {
		m.bus.Publish(m.crawlID, interfaces.EventCancelled, nil)
	}
	return nil
}
