package replay

import (
	"errors"
	"fmt"
	"math"
	"reflect"
	"testing"
	"time"

	"github.com/riftline/arcjournal/internal/content"
	"github.com/riftline/arcjournal/internal/journal"
	apperrors "github.com/riftline/arcjournal/internal/platform/errors"
)

const testArcYAML = `
ref: frostmarch
name: The Frostmarch
starting_funds: 200
characters:
  - ref: bandit-scout
    name: Bandit Scout
    tag: bandit
    max_health: 40
  - ref: bandit-chief
    name: Bandit Chief
    tag: bandit
    max_health: 120
triggers:
  - ref: camp-entrance
    x: 120
    y: -40
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
          - ref: cull-bandits
            tag: bandit
            threshold: 3
      - ref: negotiate
        exclusive: true
        branches:
          - ref: side-with-miners
            name: Side with the Miners
          - ref: side-with-cartel
            name: Side with the Cartel
items:
  - ref: iron-sword
    name: Iron Sword
    max_interactions: 5
`

func testArc(t *testing.T) *content.Arc {
	t.Helper()
	arc, err := content.ParseArc([]byte(testArcYAML))
	if err != nil {
		t.Fatalf("parse arc: %v", err)
	}
	return arc
}

func testLibrary(t *testing.T) *content.Library {
	t.Helper()
	library, err := content.NewLibrary(testArc(t))
	if err != nil {
		t.Fatalf("build library: %v", err)
	}
	return library
}

func committedTx(seq uint64, payload journal.Payload) journal.Transaction {
	serverTime := time.Unix(1700000000+int64(seq), 0).UTC()
	return journal.Transaction{
		ID:         fmt.Sprintf("tx-%d", seq),
		Kind:       payload.PayloadKind(),
		OwnerID:    "player-1",
		Status:     journal.StatusCommitted,
		Seq:        seq,
		LocalTime:  serverTime.Add(-time.Second),
		ServerTime: &serverTime,
		Payload:    payload,
	}
}

func TestEmptyReplay(t *testing.T) {
	arc := testArc(t)

	state, err := Replay(nil, arc)
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if len(state.Entities) != 0 {
		t.Fatalf("expected no entities, got %d", len(state.Entities))
	}
	if got := state.TriggerStatusFor("camp-entrance"); got != TriggerInactive {
		t.Fatalf("expected inactive trigger, got %s", got)
	}
	if state.Funds != 200 {
		t.Fatalf("expected starting funds 200, got %d", state.Funds)
	}
}

func TestReplayIsDeterministic(t *testing.T) {
	arc := testArc(t)
	txs := []journal.Transaction{
		committedTx(1, journal.QuestAcceptedPayload{QuestRef: "clear-the-pass"}),
		committedTx(2, journal.TriggerActivatedPayload{TriggerRef: "camp-entrance"}),
		committedTx(3, journal.CharacterSpawnedPayload{EntityID: "e-1", CharacterRef: "bandit-scout", TriggerRef: "camp-entrance", Health: 40}),
		committedTx(4, journal.CharacterSpawnedPayload{EntityID: "e-2", CharacterRef: "bandit-chief", TriggerRef: "camp-entrance", Health: 120}),
		committedTx(5, journal.PositionUpdatedPayload{X: 118, Y: -42}),
		committedTx(6, journal.CharacterDefeatedPayload{EntityID: "e-1", CharacterRef: "bandit-scout", Tag: "bandit"}),
		committedTx(7, journal.ItemTradedPayload{ItemRef: "iron-sword", Quantity: 1, UnitPrice: 50, Direction: journal.TradeBuy}),
		committedTx(8, journal.ReputationChangedPayload{FactionRef: "ravens", Delta: 100}),
	}

	first, err := Replay(txs, arc)
	if err != nil {
		t.Fatalf("first replay: %v", err)
	}
	second, err := Replay(txs, arc)
	if err != nil {
		t.Fatalf("second replay: %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("replays diverged:\nfirst:  %+v\nsecond: %+v", first, second)
	}
}

func TestReplayToNowMatchesReplay(t *testing.T) {
	library := testLibrary(t)
	txs := []journal.Transaction{
		committedTx(1, journal.QuestAcceptedPayload{QuestRef: "clear-the-pass"}),
		committedTx(2, journal.TriggerActivatedPayload{TriggerRef: "camp-entrance"}),
		committedTx(3, journal.CharacterSpawnedPayload{EntityID: "e-1", CharacterRef: "bandit-scout", TriggerRef: "camp-entrance", Health: 40}),
		committedTx(4, journal.CharacterSpawnedPayload{EntityID: "boss", CharacterRef: "bandit-chief", TriggerRef: "camp-entrance", Health: 120}),
		committedTx(5, journal.PositionUpdatedPayload{X: 100, Y: -30}),
		committedTx(6, journal.CharacterDefeatedPayload{EntityID: "e-1", CharacterRef: "bandit-scout", Tag: "bandit"}),
		committedTx(7, journal.EntityLootedPayload{EntityID: "e-1"}),
		committedTx(8, journal.ItemTradedPayload{ItemRef: "iron-sword", Quantity: 2, UnitPrice: 40, Direction: journal.TradeBuy}),
		committedTx(9, journal.ItemTradedPayload{ItemRef: "iron-sword", Quantity: 1, UnitPrice: 60, Direction: journal.TradeSell}),
		committedTx(10, journal.ReputationChangedPayload{FactionRef: "ravens", Delta: 250}),
		committedTx(11, journal.QuestBranchChosenPayload{QuestRef: "clear-the-pass", StageRef: "negotiate", BranchRef: "side-with-miners"}),
		committedTx(12, journal.PositionUpdatedPayload{X: 300, Y: 12}),
	}
	instance := journal.Instance{
		ID:           "inst-1",
		OwnerID:      "player-1",
		ArcRef:       "frostmarch",
		Transactions: txs,
	}

	live, err := ReplayToNow(instance, library)
	if err != nil {
		t.Fatalf("replay to now: %v", err)
	}
	copied := append([]journal.Transaction(nil), instance.Committed()...)
	arc, err := library.Arc("frostmarch")
	if err != nil {
		t.Fatalf("lookup arc: %v", err)
	}
	detached, err := Replay(copied, arc)
	if err != nil {
		t.Fatalf("replay copy: %v", err)
	}

	if !reflect.DeepEqual(live, detached) {
		t.Fatalf("replay entry points diverged:\nlive:     %+v\ndetached: %+v", live, detached)
	}
	boss, ok := live.Entities["boss"]
	if !ok {
		t.Fatal("expected boss entity")
	}
	if !boss.Alive || boss.Health != 120 {
		t.Fatalf("expected boss alive at 120 health, got alive=%t health=%d", boss.Alive, boss.Health)
	}
}

func TestTriggerActivationIsIdempotent(t *testing.T) {
	arc := testArc(t)
	txs := []journal.Transaction{
		committedTx(1, journal.TriggerActivatedPayload{TriggerRef: "camp-entrance"}),
		committedTx(2, journal.CharacterSpawnedPayload{EntityID: "e-1", CharacterRef: "bandit-scout", TriggerRef: "camp-entrance", Health: 40}),
		committedTx(3, journal.TriggerActivatedPayload{TriggerRef: "camp-entrance"}),
		committedTx(4, journal.TriggerActivatedPayload{TriggerRef: "camp-entrance"}),
	}

	state, err := Replay(txs, arc)
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if got := state.TriggerStatusFor("camp-entrance"); got != TriggerActive {
		t.Fatalf("expected active trigger, got %s", got)
	}
	if got := state.SpawnedByTrigger("camp-entrance"); got != 1 {
		t.Fatalf("expected 1 spawned entity, got %d", got)
	}
}

func TestTriggerDeactivationAllowsRefire(t *testing.T) {
	arc := testArc(t)
	txs := []journal.Transaction{
		committedTx(1, journal.TriggerActivatedPayload{TriggerRef: "camp-entrance"}),
		committedTx(2, journal.TriggerDeactivatedPayload{TriggerRef: "camp-entrance"}),
		committedTx(3, journal.TriggerActivatedPayload{TriggerRef: "camp-entrance"}),
	}

	state, err := Replay(txs, arc)
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if got := state.TriggerStatusFor("camp-entrance"); got != TriggerActive {
		t.Fatalf("expected active trigger after refire, got %s", got)
	}
}

func TestTriggerCompletesWhenSpawnsDefeated(t *testing.T) {
	arc := testArc(t)
	txs := []journal.Transaction{
		committedTx(1, journal.TriggerActivatedPayload{TriggerRef: "camp-entrance"}),
		committedTx(2, journal.CharacterSpawnedPayload{EntityID: "e-1", CharacterRef: "bandit-scout", TriggerRef: "camp-entrance", Health: 40}),
		committedTx(3, journal.CharacterSpawnedPayload{EntityID: "e-2", CharacterRef: "bandit-chief", TriggerRef: "camp-entrance", Health: 120}),
		committedTx(4, journal.CharacterDefeatedPayload{EntityID: "e-1", CharacterRef: "bandit-scout", Tag: "bandit"}),
		committedTx(5, journal.CharacterDefeatedPayload{EntityID: "e-2", CharacterRef: "bandit-chief", Tag: "bandit"}),
		committedTx(6, journal.TriggerActivatedPayload{TriggerRef: "camp-entrance"}),
	}

	state, err := Replay(txs, arc)
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if got := state.TriggerStatusFor("camp-entrance"); got != TriggerCompleted {
		t.Fatalf("expected completed trigger, got %s", got)
	}
	if got := state.AliveEntities(); got != 0 {
		t.Fatalf("expected no live entities, got %d", got)
	}
}

func TestReputationSpillover(t *testing.T) {
	arc := testArc(t)
	txs := []journal.Transaction{
		committedTx(1, journal.ReputationChangedPayload{FactionRef: "ravens", Delta: 1000}),
	}

	state, err := Replay(txs, arc)
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if got := state.Reputation["ravens"]; got != 1000 {
		t.Fatalf("expected ravens +1000, got %d", got)
	}
	if got := state.Reputation["miners"]; got != 250 {
		t.Fatalf("expected miners +250, got %d", got)
	}
	if got := state.Reputation["cartel"]; got != -500 {
		t.Fatalf("expected cartel -500, got %d", got)
	}
}

func TestObjectiveThreshold(t *testing.T) {
	arc := testArc(t)
	txs := []journal.Transaction{
		committedTx(1, journal.QuestAcceptedPayload{QuestRef: "clear-the-pass"}),
		committedTx(2, journal.CharacterSpawnedPayload{EntityID: "e-1", CharacterRef: "bandit-scout", TriggerRef: "camp-entrance", Health: 40}),
		committedTx(3, journal.CharacterSpawnedPayload{EntityID: "e-2", CharacterRef: "bandit-scout", TriggerRef: "camp-entrance", Health: 40}),
		committedTx(4, journal.CharacterSpawnedPayload{EntityID: "e-3", CharacterRef: "bandit-chief", TriggerRef: "camp-entrance", Health: 120}),
		committedTx(5, journal.CharacterDefeatedPayload{EntityID: "e-1", CharacterRef: "bandit-scout", Tag: "bandit"}),
		committedTx(6, journal.CharacterDefeatedPayload{EntityID: "e-2", CharacterRef: "bandit-scout", Tag: "bandit"}),
		committedTx(7, journal.CharacterDefeatedPayload{EntityID: "e-3", CharacterRef: "bandit-chief", Tag: "bandit"}),
	}

	state, err := Replay(txs, arc)
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	objective, ok := state.Objective("clear-the-pass", "cull-bandits")
	if !ok {
		t.Fatal("expected objective progress")
	}
	if objective.CurrentValue != 3 {
		t.Fatalf("expected CurrentValue 3, got %d", objective.CurrentValue)
	}
	if !objective.IsComplete() {
		t.Fatal("expected objective complete at threshold")
	}
}

func TestBranchRecordedOncePerStage(t *testing.T) {
	arc := testArc(t)
	txs := []journal.Transaction{
		committedTx(1, journal.QuestAcceptedPayload{QuestRef: "clear-the-pass"}),
		committedTx(2, journal.QuestBranchChosenPayload{QuestRef: "clear-the-pass", StageRef: "negotiate", BranchRef: "side-with-miners"}),
		committedTx(3, journal.QuestBranchChosenPayload{QuestRef: "clear-the-pass", StageRef: "negotiate", BranchRef: "side-with-cartel"}),
	}

	state, err := Replay(txs, arc)
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	branch, chosen := state.BranchChosen("clear-the-pass", "negotiate")
	if !chosen {
		t.Fatal("expected a chosen branch")
	}
	if branch != "side-with-miners" {
		t.Fatalf("expected first choice to stand, got %s", branch)
	}
}

func TestEntityLootIsFirstTimeOnly(t *testing.T) {
	arc := testArc(t)
	txs := []journal.Transaction{
		committedTx(1, journal.CharacterSpawnedPayload{EntityID: "e-1", CharacterRef: "bandit-scout", TriggerRef: "camp-entrance", Health: 40}),
		committedTx(2, journal.EntityLootedPayload{EntityID: "e-1"}),
	}
	state, err := Replay(txs, arc)
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if state.Entities["e-1"].LootConsumed {
		t.Fatal("live entity must not be lootable")
	}

	txs = append(txs,
		committedTx(3, journal.CharacterDefeatedPayload{EntityID: "e-1", CharacterRef: "bandit-scout", Tag: "bandit"}),
		committedTx(4, journal.EntityLootedPayload{EntityID: "e-1"}),
		committedTx(5, journal.EntityLootedPayload{EntityID: "e-1"}),
	)
	state, err = Replay(txs, arc)
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if !state.Entities["e-1"].LootConsumed {
		t.Fatal("defeated entity must be lootable once")
	}
}

func TestTradeAdjustsFundsAndInteractions(t *testing.T) {
	arc := testArc(t)
	txs := []journal.Transaction{
		committedTx(1, journal.ItemTradedPayload{ItemRef: "iron-sword", Quantity: 2, UnitPrice: 50, Direction: journal.TradeBuy}),
		committedTx(2, journal.ItemTradedPayload{ItemRef: "iron-sword", Quantity: 1, UnitPrice: 70, Direction: journal.TradeSell}),
	}

	state, err := Replay(txs, arc)
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if state.Funds != 200-100+70 {
		t.Fatalf("expected funds 170, got %d", state.Funds)
	}
	if got := state.Interactions["iron-sword"]; got != 2 {
		t.Fatalf("expected 2 interactions, got %d", got)
	}
}

func TestTradeWithOverflowingTotalFailsReplay(t *testing.T) {
	arc := testArc(t)
	txs := []journal.Transaction{
		committedTx(1, journal.ItemTradedPayload{ItemRef: "iron-sword", Quantity: math.MaxInt64, UnitPrice: 2, Direction: journal.TradeBuy}),
	}

	_, err := Replay(txs, arc)
	if !errors.Is(err, apperrors.New(apperrors.CodeReplayPayloadDecode, "")) {
		t.Fatalf("expected payload error, got %v", err)
	}
}

func TestReplayRejectsOutOfOrderInput(t *testing.T) {
	arc := testArc(t)
	txs := []journal.Transaction{
		committedTx(2, journal.PositionUpdatedPayload{X: 1, Y: 1}),
		committedTx(1, journal.PositionUpdatedPayload{X: 2, Y: 2}),
	}

	_, err := Replay(txs, arc)
	if !errors.Is(err, apperrors.New(apperrors.CodeReplayOutOfOrder, "")) {
		t.Fatalf("expected out-of-order error, got %v", err)
	}
}

func TestReplayRejectsUncommittedInput(t *testing.T) {
	arc := testArc(t)
	pending := committedTx(1, journal.PositionUpdatedPayload{X: 1, Y: 1})
	pending.Status = journal.StatusPending
	pending.Seq = 0
	pending.ServerTime = nil

	_, err := Replay([]journal.Transaction{pending}, arc)
	if !errors.Is(err, apperrors.New(apperrors.CodeReplayUncommitted, "")) {
		t.Fatalf("expected uncommitted error, got %v", err)
	}
}

func TestReplayAcceptsSequenceGaps(t *testing.T) {
	arc := testArc(t)
	txs := []journal.Transaction{
		committedTx(1, journal.PositionUpdatedPayload{X: 1, Y: 1}),
		committedTx(7, journal.PositionUpdatedPayload{X: 2, Y: 2}),
	}

	state, err := Replay(txs, arc)
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if state.Position.X != 2 || state.Position.Y != 2 {
		t.Fatalf("expected final position (2, 2), got %+v", state.Position)
	}
	if state.LastSeq != 7 {
		t.Fatalf("expected last seq 7, got %d", state.LastSeq)
	}
}

func TestEveryKindHasFoldHandler(t *testing.T) {
	handled := make(map[journal.Kind]bool)
	for _, kind := range HandledKinds() {
		handled[kind] = true
	}
	all := []journal.Kind{
		journal.KindCharacterSpawned,
		journal.KindCharacterDefeated,
		journal.KindEntityLooted,
		journal.KindPositionUpdated,
		journal.KindTriggerActivated,
		journal.KindTriggerDeactivated,
		journal.KindItemTraded,
		journal.KindReputationChanged,
		journal.KindQuestAccepted,
		journal.KindQuestBranchChosen,
	}
	for _, kind := range all {
		if !handled[kind] {
			t.Fatalf("kind %s has no fold handler", kind)
		}
	}
}
