package content

import (
	"fmt"
	"io/fs"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	apperrors "github.com/riftline/arcjournal/internal/platform/errors"
)

// LoadLibrary parses every *.yaml arc definition under root in fsys and
// returns the assembled library. Cross-references inside each arc are
// validated so replay and command validation never chase dangling refs.
func LoadLibrary(fsys fs.FS, root string) (*Library, error) {
	entries, err := fs.ReadDir(fsys, root)
	if err != nil {
		return nil, fmt.Errorf("read content dir: %w", err)
	}

	var files []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || (!strings.HasSuffix(name, ".yaml") && !strings.HasSuffix(name, ".yml")) {
			continue
		}
		files = append(files, name)
	}
	sort.Strings(files)

	library := &Library{arcs: make(map[string]*Arc)}
	for _, file := range files {
		data, err := fs.ReadFile(fsys, root+"/"+file)
		if err != nil {
			return nil, fmt.Errorf("read content file %s: %w", file, err)
		}
		arc, err := ParseArc(data)
		if err != nil {
			return nil, fmt.Errorf("content file %s: %w", file, err)
		}
		if _, dup := library.arcs[arc.Ref]; dup {
			return nil, apperrors.New(apperrors.CodeContentInvalid,
				fmt.Sprintf("duplicate arc ref %q", arc.Ref))
		}
		library.arcs[arc.Ref] = arc
	}
	return library, nil
}

// NewLibrary assembles a library from already-parsed arcs. Test fixtures and
// embedded defaults use this instead of the filesystem loader.
func NewLibrary(arcs ...*Arc) (*Library, error) {
	library := &Library{arcs: make(map[string]*Arc, len(arcs))}
	for _, arc := range arcs {
		if err := indexArc(arc); err != nil {
			return nil, err
		}
		if _, dup := library.arcs[arc.Ref]; dup {
			return nil, apperrors.New(apperrors.CodeContentInvalid,
				fmt.Sprintf("duplicate arc ref %q", arc.Ref))
		}
		library.arcs[arc.Ref] = arc
	}
	return library, nil
}

// ParseArc decodes and validates a single YAML arc definition.
func ParseArc(data []byte) (*Arc, error) {
	var arc Arc
	if err := yaml.Unmarshal(data, &arc); err != nil {
		return nil, apperrors.Wrap(apperrors.CodeContentInvalid, "decode arc yaml", err)
	}
	if err := indexArc(&arc); err != nil {
		return nil, err
	}
	return &arc, nil
}

// indexArc builds the lookup maps and validates cross-references.
func indexArc(arc *Arc) error {
	if strings.TrimSpace(arc.Ref) == "" {
		return apperrors.New(apperrors.CodeContentInvalid, "arc ref is required")
	}

	arc.characters = make(map[string]Character, len(arc.Characters))
	for _, character := range arc.Characters {
		if _, dup := arc.characters[character.Ref]; dup {
			return invalidf(arc.Ref, "duplicate character ref %q", character.Ref)
		}
		arc.characters[character.Ref] = character
	}

	arc.triggers = make(map[string]Trigger, len(arc.Triggers))
	for _, trigger := range arc.Triggers {
		if _, dup := arc.triggers[trigger.Ref]; dup {
			return invalidf(arc.Ref, "duplicate trigger ref %q", trigger.Ref)
		}
		if trigger.EnterRadius <= 0 {
			return invalidf(arc.Ref, "trigger %q requires a positive enter radius", trigger.Ref)
		}
		for _, spawn := range trigger.Spawns {
			if _, ok := arc.characters[spawn.CharacterRef]; !ok {
				return invalidf(arc.Ref, "trigger %q spawns unknown character %q", trigger.Ref, spawn.CharacterRef)
			}
		}
		arc.triggers[trigger.Ref] = trigger
	}

	arc.factions = make(map[string]Faction, len(arc.Factions))
	for _, faction := range arc.Factions {
		if _, dup := arc.factions[faction.Ref]; dup {
			return invalidf(arc.Ref, "duplicate faction ref %q", faction.Ref)
		}
		arc.factions[faction.Ref] = faction
	}
	for _, faction := range arc.Factions {
		for _, relation := range faction.Relations {
			if _, ok := arc.factions[relation.FactionRef]; !ok {
				return invalidf(arc.Ref, "faction %q relates to unknown faction %q", faction.Ref, relation.FactionRef)
			}
			if relation.Kind != RelationAllied && relation.Kind != RelationEnemy {
				return invalidf(arc.Ref, "faction %q has invalid relation kind %q", faction.Ref, relation.Kind)
			}
			if relation.Spillover < 0 || relation.Spillover > 1 {
				return invalidf(arc.Ref, "faction %q relation spillover must be in [0, 1]", faction.Ref)
			}
		}
	}

	arc.quests = make(map[string]Quest, len(arc.Quests))
	for _, quest := range arc.Quests {
		if _, dup := arc.quests[quest.Ref]; dup {
			return invalidf(arc.Ref, "duplicate quest ref %q", quest.Ref)
		}
		stageRefs := make(map[string]struct{}, len(quest.Stages))
		for _, stage := range quest.Stages {
			if _, dup := stageRefs[stage.Ref]; dup {
				return invalidf(arc.Ref, "quest %q has duplicate stage ref %q", quest.Ref, stage.Ref)
			}
			stageRefs[stage.Ref] = struct{}{}
			if stage.Exclusive && len(stage.Branches) == 0 {
				return invalidf(arc.Ref, "quest %q stage %q is exclusive but has no branches", quest.Ref, stage.Ref)
			}
		}
		arc.quests[quest.Ref] = quest
	}

	arc.items = make(map[string]Item, len(arc.Items))
	for _, item := range arc.Items {
		if _, dup := arc.items[item.Ref]; dup {
			return invalidf(arc.Ref, "duplicate item ref %q", item.Ref)
		}
		arc.items[item.Ref] = item
	}

	return nil
}

func invalidf(arcRef, format string, args ...any) error {
	return apperrors.WithMetadata(apperrors.CodeContentInvalid,
		fmt.Sprintf(format, args...), map[string]string{"arc_ref": arcRef})
}
