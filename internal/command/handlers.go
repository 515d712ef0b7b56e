package command

import (
	"context"
	"fmt"
	"math"

	"github.com/riftline/arcjournal/internal/content"
	"github.com/riftline/arcjournal/internal/journal"
	apperrors "github.com/riftline/arcjournal/internal/platform/errors"
	"github.com/riftline/arcjournal/internal/replay"
)

// UpdatePosition records a client position and fires trigger transitions:
// entering an inactive trigger's radius activates it and spawns its
// characters, leaving an active trigger's radius deactivates it. Triggers
// already active stay untouched, so repeated in-radius updates spawn nothing.
func (h *Handler) UpdatePosition(ctx context.Context, ownerID, arcRef string, x, y float64) (Result, error) {
	return h.execute(ctx, ownerID, arcRef, "update_position", func(state *replay.State, arc *content.Arc) ([]journal.Payload, error) {
		payloads := []journal.Payload{journal.PositionUpdatedPayload{X: x, Y: y}}
		for _, trigger := range arc.Triggers {
			inside := math.Hypot(x-trigger.X, y-trigger.Y) <= trigger.EnterRadius
			switch state.TriggerStatusFor(trigger.Ref) {
			case replay.TriggerInactive:
				if !inside {
					continue
				}
				payloads = append(payloads, journal.TriggerActivatedPayload{TriggerRef: trigger.Ref})
				for _, spawn := range trigger.Spawns {
					character, err := arc.Character(spawn.CharacterRef)
					if err != nil {
						return nil, err
					}
					payloads = append(payloads, journal.CharacterSpawnedPayload{
						EntityID:     h.newID(),
						CharacterRef: character.Ref,
						TriggerRef:   trigger.Ref,
						Health:       character.MaxHealth,
					})
				}
			case replay.TriggerActive:
				if !inside {
					payloads = append(payloads, journal.TriggerDeactivatedPayload{TriggerRef: trigger.Ref})
				}
			}
		}
		return payloads, nil
	})
}

// DefeatCharacter marks a live entity defeated.
func (h *Handler) DefeatCharacter(ctx context.Context, ownerID, arcRef, entityID string) (Result, error) {
	return h.execute(ctx, ownerID, arcRef, "defeat_character", func(state *replay.State, _ *content.Arc) ([]journal.Payload, error) {
		entity, ok := state.Entities[entityID]
		if !ok || !entity.Alive {
			return nil, apperrors.New(apperrors.CodeValidationEntityNotAlive,
				fmt.Sprintf("entity %s is not alive", entityID))
		}
		return []journal.Payload{journal.CharacterDefeatedPayload{
			EntityID:     entity.ID,
			CharacterRef: entity.CharacterRef,
			Tag:          entity.Tag,
		}}, nil
	})
}

// LootEntity collects loot from a defeated entity exactly once.
func (h *Handler) LootEntity(ctx context.Context, ownerID, arcRef, entityID string) (Result, error) {
	return h.execute(ctx, ownerID, arcRef, "loot_entity", func(state *replay.State, _ *content.Arc) ([]journal.Payload, error) {
		entity, ok := state.Entities[entityID]
		if !ok || entity.Alive {
			return nil, apperrors.New(apperrors.CodeValidationEntityNotAlive,
				fmt.Sprintf("entity %s is not defeated", entityID))
		}
		if entity.LootConsumed {
			return nil, apperrors.New(apperrors.CodeValidationLootConsumed,
				fmt.Sprintf("entity %s was already looted", entityID))
		}
		return []journal.Payload{journal.EntityLootedPayload{EntityID: entityID}}, nil
	})
}

// TradeItem records a buy or sell after checking funds and the item's
// interaction cap.
func (h *Handler) TradeItem(ctx context.Context, ownerID, arcRef, itemRef string, quantity, unitPrice int64, direction string) (Result, error) {
	return h.execute(ctx, ownerID, arcRef, "trade_item", func(state *replay.State, arc *content.Arc) ([]journal.Payload, error) {
		if quantity <= 0 {
			return nil, apperrors.New(apperrors.CodeValidationArgument, "trade quantity must be positive")
		}
		if unitPrice < 0 {
			return nil, apperrors.New(apperrors.CodeValidationArgument, "unit price cannot be negative")
		}
		if unitPrice > 0 && quantity > math.MaxInt64/unitPrice {
			return nil, apperrors.New(apperrors.CodeValidationArgument,
				fmt.Sprintf("trade total %d x %d exceeds the representable range", quantity, unitPrice))
		}
		if direction != journal.TradeBuy && direction != journal.TradeSell {
			return nil, apperrors.New(apperrors.CodeValidationArgument,
				fmt.Sprintf("unknown trade direction %q", direction))
		}
		item, err := arc.Item(itemRef)
		if err != nil {
			return nil, err
		}
		if item.MaxInteractions > 0 && state.Interactions[itemRef] >= item.MaxInteractions {
			return nil, apperrors.New(apperrors.CodeValidationInteractionsMax,
				fmt.Sprintf("item %s reached its interaction limit of %d", itemRef, item.MaxInteractions))
		}
		if direction == journal.TradeBuy && quantity*unitPrice > state.Funds {
			return nil, apperrors.New(apperrors.CodeValidationInsufficient,
				fmt.Sprintf("trade costs %d but only %d funds available", quantity*unitPrice, state.Funds))
		}
		return []journal.Payload{journal.ItemTradedPayload{
			ItemRef:   itemRef,
			Quantity:  quantity,
			UnitPrice: unitPrice,
			Direction: direction,
		}}, nil
	})
}

// AdjustReputation applies a reputation delta to a content-defined faction.
// Spillover to related factions happens at fold time.
func (h *Handler) AdjustReputation(ctx context.Context, ownerID, arcRef, factionRef string, delta int64) (Result, error) {
	return h.execute(ctx, ownerID, arcRef, "adjust_reputation", func(_ *replay.State, arc *content.Arc) ([]journal.Payload, error) {
		if _, err := arc.Faction(factionRef); err != nil {
			return nil, err
		}
		return []journal.Payload{journal.ReputationChangedPayload{FactionRef: factionRef, Delta: delta}}, nil
	})
}

// AcceptQuest opens a quest on the instance. Accepting twice is rejected.
func (h *Handler) AcceptQuest(ctx context.Context, ownerID, arcRef, questRef string) (Result, error) {
	return h.execute(ctx, ownerID, arcRef, "accept_quest", func(state *replay.State, arc *content.Arc) ([]journal.Payload, error) {
		if _, err := arc.Quest(questRef); err != nil {
			return nil, err
		}
		if state.QuestAccepted(questRef) {
			return nil, apperrors.New(apperrors.CodeValidationQuestAccepted,
				fmt.Sprintf("quest %s was already accepted", questRef))
		}
		return []journal.Payload{journal.QuestAcceptedPayload{QuestRef: questRef}}, nil
	})
}

// ChooseBranch records a branch choice for a quest stage. An exclusive stage
// accepts exactly one choice for the lifetime of the instance; any second
// choice, including re-choosing the same branch, is rejected against derived
// state.
func (h *Handler) ChooseBranch(ctx context.Context, ownerID, arcRef, questRef, stageRef, branchRef string) (Result, error) {
	return h.execute(ctx, ownerID, arcRef, "choose_branch", func(state *replay.State, arc *content.Arc) ([]journal.Payload, error) {
		quest, err := arc.Quest(questRef)
		if err != nil {
			return nil, err
		}
		stage, err := quest.Stage(stageRef)
		if err != nil {
			return nil, err
		}
		if _, err := stage.Branch(branchRef); err != nil {
			return nil, err
		}
		if !state.QuestAccepted(questRef) {
			return nil, apperrors.New(apperrors.CodeValidationQuestNotOpen,
				fmt.Sprintf("quest %s was not accepted", questRef))
		}
		if stage.Exclusive {
			if chosen, ok := state.BranchChosen(questRef, stageRef); ok {
				return nil, apperrors.New(apperrors.CodeValidationBranchChosen,
					fmt.Sprintf("stage %s already chose branch %s", stageRef, chosen))
			}
		}
		return []journal.Payload{journal.QuestBranchChosenPayload{
			QuestRef:  questRef,
			StageRef:  stageRef,
			BranchRef: branchRef,
		}}, nil
	})
}
