// Package content holds the static definitions replay and validation read:
// arcs with their triggers, spawn lists, characters, faction relations,
// quests, and tradable items. Content is loaded once and treated as an
// immutable lookup table keyed by reference name.
package content

import (
	"fmt"

	apperrors "github.com/riftline/arcjournal/internal/platform/errors"
)

// RelationKind classifies a faction relationship for reputation spillover.
type RelationKind string

const (
	// RelationAllied spills a positive share of reputation changes.
	RelationAllied RelationKind = "allied"
	// RelationEnemy spills an inverted share of reputation changes.
	RelationEnemy RelationKind = "enemy"
)

// Relation links one faction to another with a spillover factor in [0, 1].
type Relation struct {
	FactionRef string       `yaml:"faction"`
	Kind       RelationKind `yaml:"kind"`
	Spillover  float64      `yaml:"spillover"`
}

// Faction is a reputation-bearing group.
type Faction struct {
	Ref       string     `yaml:"ref"`
	Name      string     `yaml:"name"`
	Relations []Relation `yaml:"relations"`
}

// Spawn names one character a trigger spawns on activation.
type Spawn struct {
	CharacterRef string `yaml:"character"`
}

// Trigger is a content-defined activation zone.
type Trigger struct {
	Ref         string  `yaml:"ref"`
	X           float64 `yaml:"x"`
	Y           float64 `yaml:"y"`
	EnterRadius float64 `yaml:"enter_radius"`
	Spawns      []Spawn `yaml:"spawns"`
}

// Character is a spawnable entity definition.
type Character struct {
	Ref       string `yaml:"ref"`
	Name      string `yaml:"name"`
	Tag       string `yaml:"tag"`
	MaxHealth int64  `yaml:"max_health"`
}

// Objective is a counted quest goal keyed by a character tag.
type Objective struct {
	Ref       string `yaml:"ref"`
	Tag       string `yaml:"tag"`
	Threshold int64  `yaml:"threshold"`
}

// Branch is one selectable path of a quest stage.
type Branch struct {
	Ref  string `yaml:"ref"`
	Name string `yaml:"name"`
}

// Stage is one step of a quest. An exclusive stage accepts at most one branch
// choice for the lifetime of an instance.
type Stage struct {
	Ref        string      `yaml:"ref"`
	Exclusive  bool        `yaml:"exclusive"`
	Branches   []Branch    `yaml:"branches"`
	Objectives []Objective `yaml:"objectives"`
}

// Quest is a staged goal line within an arc.
type Quest struct {
	Ref    string  `yaml:"ref"`
	Name   string  `yaml:"name"`
	Stages []Stage `yaml:"stages"`
}

// Item is a tradable good with an optional per-instance interaction cap.
type Item struct {
	Ref             string `yaml:"ref"`
	Name            string `yaml:"name"`
	MaxInteractions int64  `yaml:"max_interactions"`
}

// Arc is one named unit of narrative content.
type Arc struct {
	Ref           string      `yaml:"ref"`
	Name          string      `yaml:"name"`
	StartingFunds int64       `yaml:"starting_funds"`
	Triggers      []Trigger   `yaml:"triggers"`
	Characters    []Character `yaml:"characters"`
	Factions      []Faction   `yaml:"factions"`
	Quests        []Quest     `yaml:"quests"`
	Items         []Item      `yaml:"items"`

	triggers   map[string]Trigger
	characters map[string]Character
	factions   map[string]Faction
	quests     map[string]Quest
	items      map[string]Item
}

// Library is the read-only content lookup table.
type Library struct {
	arcs map[string]*Arc
}

// Arc returns the arc definition for ref.
func (l *Library) Arc(ref string) (*Arc, error) {
	if l == nil {
		return nil, apperrors.New(apperrors.CodeContentRefUnknown, "content library is not configured")
	}
	arc, ok := l.arcs[ref]
	if !ok {
		return nil, apperrors.WithMetadata(apperrors.CodeContentRefUnknown,
			fmt.Sprintf("unknown arc %q", ref), map[string]string{"arc_ref": ref})
	}
	return arc, nil
}

// Arcs returns the arc references in the library.
func (l *Library) Arcs() []string {
	refs := make([]string, 0, len(l.arcs))
	for ref := range l.arcs {
		refs = append(refs, ref)
	}
	return refs
}

// Trigger returns the trigger definition for ref.
func (a *Arc) Trigger(ref string) (Trigger, error) {
	trigger, ok := a.triggers[ref]
	if !ok {
		return Trigger{}, apperrors.WithMetadata(apperrors.CodeContentRefUnknown,
			fmt.Sprintf("unknown trigger %q in arc %q", ref, a.Ref),
			map[string]string{"arc_ref": a.Ref, "trigger_ref": ref})
	}
	return trigger, nil
}

// Character returns the character definition for ref.
func (a *Arc) Character(ref string) (Character, error) {
	character, ok := a.characters[ref]
	if !ok {
		return Character{}, apperrors.WithMetadata(apperrors.CodeContentRefUnknown,
			fmt.Sprintf("unknown character %q in arc %q", ref, a.Ref),
			map[string]string{"arc_ref": a.Ref, "character_ref": ref})
	}
	return character, nil
}

// Faction returns the faction definition for ref.
func (a *Arc) Faction(ref string) (Faction, error) {
	faction, ok := a.factions[ref]
	if !ok {
		return Faction{}, apperrors.WithMetadata(apperrors.CodeContentRefUnknown,
			fmt.Sprintf("unknown faction %q in arc %q", ref, a.Ref),
			map[string]string{"arc_ref": a.Ref, "faction_ref": ref})
	}
	return faction, nil
}

// Quest returns the quest definition for ref.
func (a *Arc) Quest(ref string) (Quest, error) {
	quest, ok := a.quests[ref]
	if !ok {
		return Quest{}, apperrors.WithMetadata(apperrors.CodeContentRefUnknown,
			fmt.Sprintf("unknown quest %q in arc %q", ref, a.Ref),
			map[string]string{"arc_ref": a.Ref, "quest_ref": ref})
	}
	return quest, nil
}

// Item returns the item definition for ref.
func (a *Arc) Item(ref string) (Item, error) {
	item, ok := a.items[ref]
	if !ok {
		return Item{}, apperrors.WithMetadata(apperrors.CodeContentRefUnknown,
			fmt.Sprintf("unknown item %q in arc %q", ref, a.Ref),
			map[string]string{"arc_ref": a.Ref, "item_ref": ref})
	}
	return item, nil
}

// Stage returns the stage definition for ref.
func (q Quest) Stage(ref string) (Stage, error) {
	for _, stage := range q.Stages {
		if stage.Ref == ref {
			return stage, nil
		}
	}
	return Stage{}, apperrors.WithMetadata(apperrors.CodeContentRefUnknown,
		fmt.Sprintf("unknown stage %q in quest %q", ref, q.Ref),
		map[string]string{"quest_ref": q.Ref, "stage_ref": ref})
}

// Branch returns the branch definition for ref.
func (s Stage) Branch(ref string) (Branch, error) {
	for _, branch := range s.Branches {
		if branch.Ref == ref {
			return branch, nil
		}
	}
	return Branch{}, apperrors.WithMetadata(apperrors.CodeContentRefUnknown,
		fmt.Sprintf("unknown branch %q in stage %q", ref, s.Ref),
		map[string]string{"stage_ref": s.Ref, "branch_ref": ref})
}
