package interfaces

import (
	"time"

	"github.com/ternarybob/crawlcore/internal/models"
)

// TransitionRecord is one entry in a state machine's append-only history.
type TransitionRecord struct {
	From           models.State
	To             models.State
	At             time.Time
	DurationInFrom time.Duration
	Metadata       map[string]string
}

// StateMachine enforces the crawl lifecycle's legal transition graph.
type StateMachine interface {
	Current() models.State
	History() []TransitionRecord
	// Transition attempts from->to. Fails with models.ErrIllegalTransition
	// if the edge is absent from the graph.
	Transition(to models.State, metadata map[string]string) error
	// Pause captures the pre-pause state so Resume returns to exactly that
	// state.
	Pause() error
	Resume() error
	// Cancel is permitted from any non-terminal state and is irreversible.
	Cancel() error
}
