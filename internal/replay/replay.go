package replay

import (
	"fmt"
	"time"

	"github.com/riftline/arcjournal/internal/content"
	"github.com/riftline/arcjournal/internal/journal"
	apperrors "github.com/riftline/arcjournal/internal/platform/errors"
	"github.com/riftline/arcjournal/internal/platform/metrics"
)

// NewState returns the empty accumulator for an arc: no entities, every
// trigger inactive, funds at the arc's starting balance.
func NewState(arc *content.Arc) *State {
	s := &State{
		Entities:     make(map[string]*Entity),
		Triggers:     make(map[string]TriggerStatus),
		Reputation:   make(map[string]int64),
		Quests:       make(map[string]*QuestProgress),
		Interactions: make(map[string]int64),
	}
	if arc != nil {
		s.ArcRef = arc.Ref
		s.Funds = arc.StartingFunds
		for _, trigger := range arc.Triggers {
			s.Triggers[trigger.Ref] = TriggerInactive
		}
	}
	return s
}

// Replay folds an explicitly supplied, already-ordered committed transaction
// list into derived state. The input must be committed transactions in
// strictly increasing sequence order; gaps are legal, regressions are not.
func Replay(txs []journal.Transaction, arc *content.Arc) (*State, error) {
	start := time.Now()
	state := NewState(arc)

	for _, tx := range txs {
		if tx.Status != journal.StatusCommitted {
			return nil, apperrors.New(apperrors.CodeReplayUncommitted,
				fmt.Sprintf("transaction %s is not committed", tx.ID))
		}
		if tx.Seq <= state.LastSeq {
			return nil, apperrors.New(apperrors.CodeReplayOutOfOrder,
				fmt.Sprintf("transaction %s at seq %d does not advance past %d", tx.ID, tx.Seq, state.LastSeq))
		}
		if err := defaultRouter.fold(state, arc, tx); err != nil {
			return nil, err
		}
		state.LastSeq = tx.Seq
	}

	metrics.ReplayDuration.Observe(time.Since(start).Seconds())
	return state, nil
}

// ReplayToNow folds an instance's committed transactions, in sequence order,
// against the arc named by the instance. It is equivalent to calling Replay
// on the list returned by Instance.Committed.
func ReplayToNow(instance journal.Instance, library *content.Library) (*State, error) {
	arc, err := library.Arc(instance.ArcRef)
	if err != nil {
		return nil, err
	}
	return Replay(instance.Committed(), arc)
}

// HandledKinds returns every transaction kind the fold engine understands.
// Startup wiring uses it to verify new kinds always ship with a fold handler.
func HandledKinds() []journal.Kind {
	return defaultRouter.handledKinds()
}
