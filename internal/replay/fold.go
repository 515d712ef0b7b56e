package replay

import (
	"fmt"
	"math"

	"github.com/riftline/arcjournal/internal/content"
	"github.com/riftline/arcjournal/internal/journal"
	apperrors "github.com/riftline/arcjournal/internal/platform/errors"
)

// foldRouter dispatches transactions to typed fold handlers by kind. It
// removes the per-case type-assertion boilerplate a hand-written fold switch
// repeats for every kind.
type foldRouter struct {
	handlers map[journal.Kind]func(*State, *content.Arc, journal.Transaction) error
	kinds    []journal.Kind
}

// handleFold registers a typed fold handler. The handler receives the payload
// already asserted to its concrete type.
//
// Top-level function because Go disallows method-level type parameters.
func handleFold[P journal.Payload](r *foldRouter, kind journal.Kind, fn func(*State, *content.Arc, P) error) {
	r.handlers[kind] = func(s *State, arc *content.Arc, tx journal.Transaction) error {
		payload, ok := tx.Payload.(P)
		if !ok {
			return apperrors.New(apperrors.CodeReplayPayloadDecode,
				fmt.Sprintf("transaction %s carries %T, want %s payload", tx.ID, tx.Payload, kind))
		}
		return fn(s, arc, payload)
	}
	r.kinds = append(r.kinds, kind)
}

func (r *foldRouter) fold(s *State, arc *content.Arc, tx journal.Transaction) error {
	handler, ok := r.handlers[tx.Kind]
	if !ok {
		return apperrors.New(apperrors.CodeReplayUnknownKind,
			fmt.Sprintf("no fold handler for kind %q", tx.Kind))
	}
	return handler(s, arc, tx)
}

// handledKinds returns the kinds the router folds, in registration order.
func (r *foldRouter) handledKinds() []journal.Kind {
	return append([]journal.Kind(nil), r.kinds...)
}

var defaultRouter = newFoldRouter()

func newFoldRouter() *foldRouter {
	r := &foldRouter{handlers: make(map[journal.Kind]func(*State, *content.Arc, journal.Transaction) error)}
	handleFold(r, journal.KindCharacterSpawned, foldCharacterSpawned)
	handleFold(r, journal.KindCharacterDefeated, foldCharacterDefeated)
	handleFold(r, journal.KindEntityLooted, foldEntityLooted)
	handleFold(r, journal.KindPositionUpdated, foldPositionUpdated)
	handleFold(r, journal.KindTriggerActivated, foldTriggerActivated)
	handleFold(r, journal.KindTriggerDeactivated, foldTriggerDeactivated)
	handleFold(r, journal.KindItemTraded, foldItemTraded)
	handleFold(r, journal.KindReputationChanged, foldReputationChanged)
	handleFold(r, journal.KindQuestAccepted, foldQuestAccepted)
	handleFold(r, journal.KindQuestBranchChosen, foldQuestBranchChosen)
	return r
}

func foldCharacterSpawned(s *State, arc *content.Arc, p journal.CharacterSpawnedPayload) error {
	entity := &Entity{
		ID:           p.EntityID,
		CharacterRef: p.CharacterRef,
		TriggerRef:   p.TriggerRef,
		Alive:        true,
		Health:       p.Health,
	}
	if character, err := arc.Character(p.CharacterRef); err == nil {
		entity.Tag = character.Tag
	}
	s.Entities[p.EntityID] = entity
	return nil
}

func foldCharacterDefeated(s *State, arc *content.Arc, p journal.CharacterDefeatedPayload) error {
	entity, ok := s.Entities[p.EntityID]
	if !ok || !entity.Alive {
		// Defeat of an unknown or already-dead entity leaves state unchanged.
		return nil
	}
	entity.Alive = false
	entity.Health = 0

	tag := p.Tag
	if tag == "" {
		tag = entity.Tag
	}
	for _, progress := range s.Quests {
		for _, objective := range progress.Objectives {
			if objective.Tag == tag {
				objective.CurrentValue++
			}
		}
	}

	// A trigger whose spawned entities are all dead is completed and never
	// fires again.
	if entity.TriggerRef != "" && s.TriggerStatusFor(entity.TriggerRef) == TriggerActive {
		remaining := 0
		for _, other := range s.Entities {
			if other.TriggerRef == entity.TriggerRef && other.Alive {
				remaining++
			}
		}
		if remaining == 0 {
			s.Triggers[entity.TriggerRef] = TriggerCompleted
		}
	}
	return nil
}

func foldEntityLooted(s *State, _ *content.Arc, p journal.EntityLootedPayload) error {
	entity, ok := s.Entities[p.EntityID]
	if !ok || entity.Alive || entity.LootConsumed {
		return nil
	}
	entity.LootConsumed = true
	return nil
}

func foldPositionUpdated(s *State, _ *content.Arc, p journal.PositionUpdatedPayload) error {
	s.Position = Position{X: p.X, Y: p.Y}
	s.PositionKnown = true
	return nil
}

func foldTriggerActivated(s *State, _ *content.Arc, p journal.TriggerActivatedPayload) error {
	// Activation of an active or completed trigger is a no-op so spawn
	// effects fire at most once per activation cycle.
	if s.TriggerStatusFor(p.TriggerRef) != TriggerInactive {
		return nil
	}
	s.Triggers[p.TriggerRef] = TriggerActive
	return nil
}

func foldTriggerDeactivated(s *State, _ *content.Arc, p journal.TriggerDeactivatedPayload) error {
	if s.TriggerStatusFor(p.TriggerRef) != TriggerActive {
		return nil
	}
	s.Triggers[p.TriggerRef] = TriggerInactive
	return nil
}

func foldItemTraded(s *State, _ *content.Arc, p journal.ItemTradedPayload) error {
	if p.UnitPrice > 0 && (p.Quantity > math.MaxInt64/p.UnitPrice || p.Quantity < math.MinInt64/p.UnitPrice) {
		return apperrors.New(apperrors.CodeReplayPayloadDecode,
			fmt.Sprintf("trade total %d x %d for item %s overflows", p.Quantity, p.UnitPrice, p.ItemRef))
	}
	s.Interactions[p.ItemRef]++
	total := p.Quantity * p.UnitPrice
	switch p.Direction {
	case journal.TradeSell:
		s.Funds += total
	default:
		s.Funds -= total
	}
	return nil
}

func foldReputationChanged(s *State, arc *content.Arc, p journal.ReputationChangedPayload) error {
	s.Reputation[p.FactionRef] += p.Delta

	faction, err := arc.Faction(p.FactionRef)
	if err != nil {
		// Factions absent from content earn no spillover.
		return nil
	}
	for _, relation := range faction.Relations {
		spill := int64(math.Round(float64(p.Delta) * relation.Spillover))
		switch relation.Kind {
		case content.RelationAllied:
			s.Reputation[relation.FactionRef] += spill
		case content.RelationEnemy:
			s.Reputation[relation.FactionRef] -= spill
		}
	}
	return nil
}

func foldQuestAccepted(s *State, arc *content.Arc, p journal.QuestAcceptedPayload) error {
	if _, ok := s.Quests[p.QuestRef]; ok {
		return nil
	}
	progress := &QuestProgress{
		QuestRef:   p.QuestRef,
		Objectives: make(map[string]*ObjectiveProgress),
		Branches:   make(map[string]string),
	}
	if quest, err := arc.Quest(p.QuestRef); err == nil {
		for _, stage := range quest.Stages {
			for _, objective := range stage.Objectives {
				progress.Objectives[objective.Ref] = &ObjectiveProgress{
					Tag:       objective.Tag,
					Threshold: objective.Threshold,
				}
			}
		}
	}
	s.Quests[p.QuestRef] = progress
	return nil
}

func foldQuestBranchChosen(s *State, _ *content.Arc, p journal.QuestBranchChosenPayload) error {
	progress, ok := s.Quests[p.QuestRef]
	if !ok {
		return nil
	}
	// The first recorded choice per stage is final; rejecting duplicates is
	// the command layer's job via State.BranchChosen.
	if _, chosen := progress.Branches[p.StageRef]; chosen {
		return nil
	}
	progress.Branches[p.StageRef] = p.BranchRef
	return nil
}
