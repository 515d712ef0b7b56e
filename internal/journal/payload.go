package journal

import (
	"fmt"

	apperrors "github.com/riftline/arcjournal/internal/platform/errors"
)

// Payload is the typed, per-kind body of a transaction. Payloads are decoded
// from their textual field form once at the persistence edge; fold logic only
// ever sees the typed structs.
type Payload interface {
	// PayloadKind names the transaction kind this payload belongs to.
	PayloadKind() Kind
	// Fields serializes the payload to its ordered textual form.
	Fields() Fields
}

// CharacterSpawnedPayload captures the payload for character.spawned transactions.
type CharacterSpawnedPayload struct {
	EntityID     string
	CharacterRef string
	TriggerRef   string
	Health       int64
}

// CharacterDefeatedPayload captures the payload for character.defeated transactions.
type CharacterDefeatedPayload struct {
	EntityID     string
	CharacterRef string
	Tag          string
}

// EntityLootedPayload captures the payload for entity.looted transactions.
type EntityLootedPayload struct {
	EntityID string
}

// PositionUpdatedPayload captures the payload for position.updated transactions.
type PositionUpdatedPayload struct {
	X float64
	Y float64
}

// TriggerActivatedPayload captures the payload for trigger.activated transactions.
type TriggerActivatedPayload struct {
	TriggerRef string
}

// TriggerDeactivatedPayload captures the payload for trigger.deactivated transactions.
type TriggerDeactivatedPayload struct {
	TriggerRef string
}

// Trade directions for ItemTradedPayload.
const (
	// TradeBuy means the player acquires the item and pays funds.
	TradeBuy = "buy"
	// TradeSell means the player disposes of the item and receives funds.
	TradeSell = "sell"
)

// ItemTradedPayload captures the payload for item.traded transactions.
type ItemTradedPayload struct {
	ItemRef   string
	Quantity  int64
	UnitPrice int64
	// Direction is "buy" (player acquires) or "sell" (player disposes).
	Direction string
}

// ReputationChangedPayload captures the payload for reputation.changed transactions.
type ReputationChangedPayload struct {
	FactionRef string
	Delta      int64
}

// QuestAcceptedPayload captures the payload for quest.accepted transactions.
type QuestAcceptedPayload struct {
	QuestRef string
}

// QuestBranchChosenPayload captures the payload for quest.branch_chosen transactions.
type QuestBranchChosenPayload struct {
	QuestRef  string
	StageRef  string
	BranchRef string
}

func (CharacterSpawnedPayload) PayloadKind() Kind   { return KindCharacterSpawned }
func (CharacterDefeatedPayload) PayloadKind() Kind  { return KindCharacterDefeated }
func (EntityLootedPayload) PayloadKind() Kind       { return KindEntityLooted }
func (PositionUpdatedPayload) PayloadKind() Kind    { return KindPositionUpdated }
func (TriggerActivatedPayload) PayloadKind() Kind   { return KindTriggerActivated }
func (TriggerDeactivatedPayload) PayloadKind() Kind { return KindTriggerDeactivated }
func (ItemTradedPayload) PayloadKind() Kind         { return KindItemTraded }
func (ReputationChangedPayload) PayloadKind() Kind  { return KindReputationChanged }
func (QuestAcceptedPayload) PayloadKind() Kind      { return KindQuestAccepted }
func (QuestBranchChosenPayload) PayloadKind() Kind  { return KindQuestBranchChosen }

// Fields implements Payload.
func (p CharacterSpawnedPayload) Fields() Fields {
	fields := Fields{}
	fields.Set("entity_id", p.EntityID)
	fields.Set("character_ref", p.CharacterRef)
	fields.Set("trigger_ref", p.TriggerRef)
	fields.SetInt("health", p.Health)
	return fields
}

// Fields implements Payload.
func (p CharacterDefeatedPayload) Fields() Fields {
	fields := Fields{}
	fields.Set("entity_id", p.EntityID)
	fields.Set("character_ref", p.CharacterRef)
	fields.Set("tag", p.Tag)
	return fields
}

// Fields implements Payload.
func (p EntityLootedPayload) Fields() Fields {
	fields := Fields{}
	fields.Set("entity_id", p.EntityID)
	return fields
}

// Fields implements Payload.
func (p PositionUpdatedPayload) Fields() Fields {
	fields := Fields{}
	fields.SetFloat("x", p.X)
	fields.SetFloat("y", p.Y)
	return fields
}

// Fields implements Payload.
func (p TriggerActivatedPayload) Fields() Fields {
	fields := Fields{}
	fields.Set("trigger_ref", p.TriggerRef)
	return fields
}

// Fields implements Payload.
func (p TriggerDeactivatedPayload) Fields() Fields {
	fields := Fields{}
	fields.Set("trigger_ref", p.TriggerRef)
	return fields
}

// Fields implements Payload.
func (p ItemTradedPayload) Fields() Fields {
	fields := Fields{}
	fields.Set("item_ref", p.ItemRef)
	fields.SetInt("quantity", p.Quantity)
	fields.SetInt("unit_price", p.UnitPrice)
	fields.Set("direction", p.Direction)
	return fields
}

// Fields implements Payload.
func (p ReputationChangedPayload) Fields() Fields {
	fields := Fields{}
	fields.Set("faction_ref", p.FactionRef)
	fields.SetInt("delta", p.Delta)
	return fields
}

// Fields implements Payload.
func (p QuestAcceptedPayload) Fields() Fields {
	fields := Fields{}
	fields.Set("quest_ref", p.QuestRef)
	return fields
}

// Fields implements Payload.
func (p QuestBranchChosenPayload) Fields() Fields {
	fields := Fields{}
	fields.Set("quest_ref", p.QuestRef)
	fields.Set("stage_ref", p.StageRef)
	fields.Set("branch_ref", p.BranchRef)
	return fields
}

// payloadDecoders maps each kind to its textual decoder. Unknown keys in the
// incoming fields are ignored for forward compatibility.
var payloadDecoders = map[Kind]func(Fields) (Payload, error){
	KindCharacterSpawned: func(f Fields) (Payload, error) {
		health, err := f.GetInt("health")
		if err != nil {
			return nil, err
		}
		entityID, _ := f.Get("entity_id")
		characterRef, _ := f.Get("character_ref")
		triggerRef, _ := f.Get("trigger_ref")
		return CharacterSpawnedPayload{
			EntityID:     entityID,
			CharacterRef: characterRef,
			TriggerRef:   triggerRef,
			Health:       health,
		}, nil
	},
	KindCharacterDefeated: func(f Fields) (Payload, error) {
		entityID, _ := f.Get("entity_id")
		characterRef, _ := f.Get("character_ref")
		tag, _ := f.Get("tag")
		return CharacterDefeatedPayload{EntityID: entityID, CharacterRef: characterRef, Tag: tag}, nil
	},
	KindEntityLooted: func(f Fields) (Payload, error) {
		entityID, _ := f.Get("entity_id")
		return EntityLootedPayload{EntityID: entityID}, nil
	},
	KindPositionUpdated: func(f Fields) (Payload, error) {
		x, err := f.GetFloat("x")
		if err != nil {
			return nil, err
		}
		y, err := f.GetFloat("y")
		if err != nil {
			return nil, err
		}
		return PositionUpdatedPayload{X: x, Y: y}, nil
	},
	KindTriggerActivated: func(f Fields) (Payload, error) {
		triggerRef, _ := f.Get("trigger_ref")
		return TriggerActivatedPayload{TriggerRef: triggerRef}, nil
	},
	KindTriggerDeactivated: func(f Fields) (Payload, error) {
		triggerRef, _ := f.Get("trigger_ref")
		return TriggerDeactivatedPayload{TriggerRef: triggerRef}, nil
	},
	KindItemTraded: func(f Fields) (Payload, error) {
		quantity, err := f.GetInt("quantity")
		if err != nil {
			return nil, err
		}
		unitPrice, err := f.GetInt("unit_price")
		if err != nil {
			return nil, err
		}
		itemRef, _ := f.Get("item_ref")
		direction, _ := f.Get("direction")
		return ItemTradedPayload{ItemRef: itemRef, Quantity: quantity, UnitPrice: unitPrice, Direction: direction}, nil
	},
	KindReputationChanged: func(f Fields) (Payload, error) {
		delta, err := f.GetInt("delta")
		if err != nil {
			return nil, err
		}
		factionRef, _ := f.Get("faction_ref")
		return ReputationChangedPayload{FactionRef: factionRef, Delta: delta}, nil
	},
	KindQuestAccepted: func(f Fields) (Payload, error) {
		questRef, _ := f.Get("quest_ref")
		return QuestAcceptedPayload{QuestRef: questRef}, nil
	},
	KindQuestBranchChosen: func(f Fields) (Payload, error) {
		questRef, _ := f.Get("quest_ref")
		stageRef, _ := f.Get("stage_ref")
		branchRef, _ := f.Get("branch_ref")
		return QuestBranchChosenPayload{QuestRef: questRef, StageRef: stageRef, BranchRef: branchRef}, nil
	},
}

// DecodePayload rebuilds the typed payload for kind from its textual fields.
func DecodePayload(kind Kind, fields Fields) (Payload, error) {
	decode, ok := payloadDecoders[kind]
	if !ok {
		return nil, apperrors.New(apperrors.CodeReplayUnknownKind, fmt.Sprintf("unknown transaction kind %q", kind))
	}
	payload, err := decode(fields)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeReplayPayloadDecode, fmt.Sprintf("decode %s payload", kind), err)
	}
	return payload, nil
}
