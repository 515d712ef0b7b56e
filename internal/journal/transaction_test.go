package journal

import (
	"errors"
	"testing"
	"time"

	apperrors "github.com/riftline/arcjournal/internal/platform/errors"
)

func TestNewTransactionStartsPending(t *testing.T) {
	local := time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)
	tx, err := NewTransaction("tx-1", "player-9", local, TriggerActivatedPayload{TriggerRef: "camp-entrance"})
	if err != nil {
		t.Fatalf("new transaction: %v", err)
	}
	if tx.Status != StatusPending {
		t.Fatalf("expected pending, got %s", tx.Status)
	}
	if tx.Seq != 0 {
		t.Fatalf("expected zero seq while pending, got %d", tx.Seq)
	}
	if tx.ServerTime != nil {
		t.Fatal("expected nil server time while pending")
	}
	if tx.Kind != KindTriggerActivated {
		t.Fatalf("expected kind from payload, got %s", tx.Kind)
	}
}

func TestNewTransactionValidation(t *testing.T) {
	_, err := NewTransaction("", "player-9", time.Now(), QuestAcceptedPayload{QuestRef: "q"})
	if !errors.Is(err, apperrors.New(apperrors.CodeTransactionIDEmpty, "")) {
		t.Fatalf("expected id error, got %v", err)
	}
	_, err = NewTransaction("tx-1", " ", time.Now(), QuestAcceptedPayload{QuestRef: "q"})
	if !errors.Is(err, apperrors.New(apperrors.CodeTransactionOwnerEmpty, "")) {
		t.Fatalf("expected owner error, got %v", err)
	}
	_, err = NewTransaction("tx-1", "player-9", time.Now(), nil)
	if !errors.Is(err, apperrors.New(apperrors.CodeTransactionKindEmpty, "")) {
		t.Fatalf("expected payload error, got %v", err)
	}
}

func TestInstanceCommittedSortsBySeq(t *testing.T) {
	serverTime := time.Now().UTC()
	in := Instance{
		ID:      "inst-1",
		OwnerID: "player-9",
		ArcRef:  "frostmarch",
		Transactions: []Transaction{
			{ID: "c", Status: StatusCommitted, Seq: 3, ServerTime: &serverTime},
			{ID: "p", Status: StatusPending},
			{ID: "a", Status: StatusCommitted, Seq: 1, ServerTime: &serverTime},
			{ID: "b", Status: StatusCommitted, Seq: 2, ServerTime: &serverTime},
		},
	}

	committed := in.Committed()
	if len(committed) != 3 {
		t.Fatalf("expected 3 committed, got %d", len(committed))
	}
	for i, id := range []string{"a", "b", "c"} {
		if committed[i].ID != id {
			t.Fatalf("expected %s at %d, got %s", id, i, committed[i].ID)
		}
	}
	if in.LastSeq() != 3 {
		t.Fatalf("expected last seq 3, got %d", in.LastSeq())
	}
	if pending := in.Pending(); len(pending) != 1 || pending[0].ID != "p" {
		t.Fatalf("unexpected pending set %+v", pending)
	}
}

func TestKindDomain(t *testing.T) {
	if KindQuestBranchChosen.Domain() != "quest" {
		t.Fatalf("unexpected domain %s", KindQuestBranchChosen.Domain())
	}
	if Kind("bare").Domain() != "bare" {
		t.Fatal("expected undotted kind to return itself")
	}
	if Kind(" ").IsValid() {
		t.Fatal("expected blank kind to be invalid")
	}
}
