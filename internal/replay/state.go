// Package replay folds an ordered committed transaction sequence into derived
// game state. Folding is a pure function of the sequence and the static
// content definitions; the log stays the system of record and state is
// recomputed on demand.
package replay

// TriggerStatus is the lifecycle state of a content trigger on one instance.
type TriggerStatus string

const (
	// TriggerInactive means the trigger has not fired, or was explicitly
	// deactivated and may fire again.
	TriggerInactive TriggerStatus = "inactive"
	// TriggerActive means the trigger fired and its spawn effects are live.
	TriggerActive TriggerStatus = "active"
	// TriggerCompleted means every entity the trigger spawned was defeated.
	// Completed triggers never fire again.
	TriggerCompleted TriggerStatus = "completed"
)

// Entity is one spawned character instance.
type Entity struct {
	ID           string
	CharacterRef string
	TriggerRef   string
	Tag          string
	Alive        bool
	Health       int64
	LootConsumed bool
}

// ObjectiveProgress tracks one counted quest objective.
type ObjectiveProgress struct {
	Tag          string
	Threshold    int64
	CurrentValue int64
}

// IsComplete reports whether the objective counter reached its threshold.
func (o ObjectiveProgress) IsComplete() bool {
	return o.Threshold > 0 && o.CurrentValue >= o.Threshold
}

// QuestProgress tracks one accepted quest: objective counters across all
// stages plus the branch chosen per stage.
type QuestProgress struct {
	QuestRef   string
	Objectives map[string]*ObjectiveProgress
	Branches   map[string]string
}

// Position is the last client-reported location.
type Position struct {
	X float64
	Y float64
}

// State is the fold accumulator. It is never persisted; it is rebuilt from the
// committed log whenever a consumer needs it.
type State struct {
	ArcRef        string
	Entities      map[string]*Entity
	Triggers      map[string]TriggerStatus
	Reputation    map[string]int64
	Quests        map[string]*QuestProgress
	Interactions  map[string]int64
	Funds         int64
	Position      Position
	PositionKnown bool
	LastSeq       uint64
}

// TriggerStatusFor returns the status of a trigger, defaulting to inactive for
// triggers the log never touched.
func (s *State) TriggerStatusFor(triggerRef string) TriggerStatus {
	if status, ok := s.Triggers[triggerRef]; ok {
		return status
	}
	return TriggerInactive
}

// QuestAccepted reports whether the quest was accepted on this instance.
func (s *State) QuestAccepted(questRef string) bool {
	_, ok := s.Quests[questRef]
	return ok
}

// BranchChosen returns the branch recorded for a quest stage, if any.
func (s *State) BranchChosen(questRef, stageRef string) (string, bool) {
	progress, ok := s.Quests[questRef]
	if !ok {
		return "", false
	}
	branch, ok := progress.Branches[stageRef]
	return branch, ok
}

// Objective returns the progress counter for one quest objective, if the
// quest was accepted.
func (s *State) Objective(questRef, objectiveRef string) (ObjectiveProgress, bool) {
	progress, ok := s.Quests[questRef]
	if !ok {
		return ObjectiveProgress{}, false
	}
	objective, ok := progress.Objectives[objectiveRef]
	if !ok {
		return ObjectiveProgress{}, false
	}
	return *objective, true
}

// AliveEntities returns the count of live entities.
func (s *State) AliveEntities() int {
	alive := 0
	for _, entity := range s.Entities {
		if entity.Alive {
			alive++
		}
	}
	return alive
}

// SpawnedByTrigger returns the count of entities the given trigger spawned,
// alive or not.
func (s *State) SpawnedByTrigger(triggerRef string) int {
	spawned := 0
	for _, entity := range s.Entities {
		if entity.TriggerRef == triggerRef {
			spawned++
		}
	}
	return spawned
}
