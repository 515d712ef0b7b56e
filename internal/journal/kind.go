package journal

import "strings"

// Kind identifies the type of a journal transaction.
type Kind string

// World events.
const (
	// KindCharacterSpawned records an entity spawned by a trigger.
	KindCharacterSpawned Kind = "character.spawned"
	// KindCharacterDefeated records the defeat of a spawned entity.
	KindCharacterDefeated Kind = "character.defeated"
	// KindEntityLooted records the one-time loot collection from a defeated entity.
	KindEntityLooted Kind = "entity.looted"
	// KindPositionUpdated records a client-reported position change.
	KindPositionUpdated Kind = "position.updated"
)

// Trigger events.
const (
	// KindTriggerActivated records a trigger zone entry taking effect.
	KindTriggerActivated Kind = "trigger.activated"
	// KindTriggerDeactivated records a trigger zone exit.
	KindTriggerDeactivated Kind = "trigger.deactivated"
)

// Economy events.
const (
	// KindItemTraded records a completed item trade.
	KindItemTraded Kind = "item.traded"
	// KindReputationChanged records a faction reputation delta.
	KindReputationChanged Kind = "reputation.changed"
)

// Quest events.
const (
	// KindQuestAccepted records a quest acceptance.
	KindQuestAccepted Kind = "quest.accepted"
	// KindQuestBranchChosen records an exclusive branch choice for a quest stage.
	KindQuestBranchChosen Kind = "quest.branch_chosen"
)

// IsValid reports whether the kind is usable.
func (k Kind) IsValid() bool {
	return strings.TrimSpace(string(k)) != ""
}

// Domain returns the domain prefix of the kind (e.g. "trigger", "quest").
func (k Kind) Domain() string {
	for i, c := range k {
		if c == '.' {
			return string(k[:i])
		}
	}
	return string(k)
}
