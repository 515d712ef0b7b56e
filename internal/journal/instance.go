package journal

import (
	"sort"
	"time"
)

// Instance is the ordered transaction log for one (player, narrative arc)
// pair. At most one live instance exists per pair; instances are created
// lazily on first lookup and never deleted in normal operation.
type Instance struct {
	// ID is the generated instance identifier.
	ID string
	// OwnerID and ArcRef together form the lookup key.
	OwnerID string
	ArcRef  string
	// Transactions holds pending entries in insertion order; Seq order
	// defines the canonical replay order for committed entries.
	Transactions []Transaction
	// CreatedAt is when the instance was lazily created.
	CreatedAt time.Time
}

// Committed returns the committed transactions in ascending Seq order.
func (in Instance) Committed() []Transaction {
	committed := make([]Transaction, 0, len(in.Transactions))
	for _, tx := range in.Transactions {
		if tx.Committed() {
			committed = append(committed, tx)
		}
	}
	sort.Slice(committed, func(i, j int) bool { return committed[i].Seq < committed[j].Seq })
	return committed
}

// Pending returns the pending transactions in insertion order.
func (in Instance) Pending() []Transaction {
	pending := make([]Transaction, 0)
	for _, tx := range in.Transactions {
		if !tx.Committed() {
			pending = append(pending, tx)
		}
	}
	return pending
}

// Find returns the transaction with the given id and whether it exists.
func (in Instance) Find(txID string) (Transaction, bool) {
	for _, tx := range in.Transactions {
		if tx.ID == txID {
			return tx, true
		}
	}
	return Transaction{}, false
}

// LastSeq returns the highest committed sequence number, or 0 when none exist.
func (in Instance) LastSeq() uint64 {
	var last uint64
	for _, tx := range in.Transactions {
		if tx.Committed() && tx.Seq > last {
			last = tx.Seq
		}
	}
	return last
}
