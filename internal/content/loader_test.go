package content

import (
	"errors"
	"testing"
	"testing/fstest"

	apperrors "github.com/riftline/arcjournal/internal/platform/errors"
)

const frostmarchYAML = `
ref: frostmarch
name: The Frostmarch
starting_funds: 200
characters:
  - ref: bandit-scout
    name: Bandit Scout
    tag: bandit
    max_health: 80
  - ref: bandit-chief
    name: Bandit Chief
    tag: bandit
    max_health: 250
triggers:
  - ref: camp-entrance
    x: 0
    y: 0
    enter_radius: 100
    spawns:
      - character: bandit-scout
      - character: bandit-chief
factions:
  - ref: ravens
    name: The Ravens
    relations:
      - faction: miners
        kind: allied
        spillover: 0.25
      - faction: cartel
        kind: enemy
        spillover: 0.5
  - ref: miners
    name: Miners Guild
  - ref: cartel
    name: Salt Cartel
quests:
  - ref: clear-the-pass
    name: Clear the Pass
    stages:
      - ref: cull
        objectives:
          - ref: bandits-down
            tag: bandit
            threshold: 3
      - ref: negotiate
        exclusive: true
        branches:
          - ref: side-with-miners
          - ref: side-with-cartel
items:
  - ref: iron-sword
    name: Iron Sword
    max_interactions: 5
`

func testFS(yaml string) fstest.MapFS {
	return fstest.MapFS{
		"arcs/frostmarch.yaml": &fstest.MapFile{Data: []byte(yaml)},
	}
}

func TestLoadLibrary(t *testing.T) {
	library, err := LoadLibrary(testFS(frostmarchYAML), "arcs")
	if err != nil {
		t.Fatalf("load library: %v", err)
	}

	arc, err := library.Arc("frostmarch")
	if err != nil {
		t.Fatalf("arc lookup: %v", err)
	}
	if arc.StartingFunds != 200 {
		t.Fatalf("expected starting funds 200, got %d", arc.StartingFunds)
	}

	trigger, err := arc.Trigger("camp-entrance")
	if err != nil {
		t.Fatalf("trigger lookup: %v", err)
	}
	if trigger.EnterRadius != 100 {
		t.Fatalf("expected radius 100, got %f", trigger.EnterRadius)
	}
	if len(trigger.Spawns) != 2 {
		t.Fatalf("expected 2 spawns, got %d", len(trigger.Spawns))
	}

	faction, err := arc.Faction("ravens")
	if err != nil {
		t.Fatalf("faction lookup: %v", err)
	}
	if len(faction.Relations) != 2 {
		t.Fatalf("expected 2 relations, got %d", len(faction.Relations))
	}

	quest, err := arc.Quest("clear-the-pass")
	if err != nil {
		t.Fatalf("quest lookup: %v", err)
	}
	stage, err := quest.Stage("negotiate")
	if err != nil {
		t.Fatalf("stage lookup: %v", err)
	}
	if !stage.Exclusive {
		t.Fatal("expected negotiate stage to be exclusive")
	}
	if _, err := stage.Branch("side-with-miners"); err != nil {
		t.Fatalf("branch lookup: %v", err)
	}
}

func TestLookupErrorsCarryNotFoundCode(t *testing.T) {
	library, err := LoadLibrary(testFS(frostmarchYAML), "arcs")
	if err != nil {
		t.Fatalf("load library: %v", err)
	}

	if _, err := library.Arc("nowhere"); !errors.Is(err, apperrors.New(apperrors.CodeContentRefUnknown, "")) {
		t.Fatalf("expected content ref error, got %v", err)
	}
	arc, _ := library.Arc("frostmarch")
	if _, err := arc.Trigger("missing"); !errors.Is(err, apperrors.New(apperrors.CodeContentRefUnknown, "")) {
		t.Fatalf("expected content ref error, got %v", err)
	}
	if _, err := arc.Item("missing"); !errors.Is(err, apperrors.New(apperrors.CodeContentRefUnknown, "")) {
		t.Fatalf("expected content ref error, got %v", err)
	}
}

func TestParseArcRejectsDanglingSpawnRef(t *testing.T) {
	_, err := ParseArc([]byte(`
ref: broken
triggers:
  - ref: t1
    enter_radius: 50
    spawns:
      - character: ghost
`))
	if !errors.Is(err, apperrors.New(apperrors.CodeContentInvalid, "")) {
		t.Fatalf("expected content invalid, got %v", err)
	}
}

func TestParseArcRejectsBadRelation(t *testing.T) {
	_, err := ParseArc([]byte(`
ref: broken
factions:
  - ref: a
    relations:
      - faction: b
        kind: rival
        spillover: 0.5
  - ref: b
`))
	if !errors.Is(err, apperrors.New(apperrors.CodeContentInvalid, "")) {
		t.Fatalf("expected content invalid, got %v", err)
	}
}

func TestParseArcRejectsExclusiveStageWithoutBranches(t *testing.T) {
	_, err := ParseArc([]byte(`
ref: broken
quests:
  - ref: q1
    stages:
      - ref: s1
        exclusive: true
`))
	if !errors.Is(err, apperrors.New(apperrors.CodeContentInvalid, "")) {
		t.Fatalf("expected content invalid, got %v", err)
	}
}
