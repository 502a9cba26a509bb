package services

import (
	"fmt"
	"time"

	"github.com/yigit/classsetup/internal/app/models"
	"github.com/yigit/classsetup/internal/app/repositories"
)

// TxState is the lifecycle state of a reconciliation.
type TxState string

const (
	TxIdle       TxState = "idle"
	TxOpen       TxState = "open"
	TxCommitted  TxState = "committed"
	TxRolledBack TxState = "rolled_back"
)

// ReconciliationTransaction carries the state shared by the stages of one
// reconciliation: the placeholder map, the managing-department snapshot taken
// before any mutation, and the accumulated change counts.
type ReconciliationTransaction struct {
	ID        string
	Actor     models.ActorContext
	Timestamp time.Time
	State     TxState

	Tree *models.ConfigTree
	tx   repositories.ClassSetupTx

	// placeholder -> persisted id of the class created for it
	Placeholders map[int64]int64
	Created      map[int64]bool
	// subpart id -> managing department before the first stage ran
	OrigManagingDept map[int64]int64

	UpdatedIDs      []int64
	DeletedIDs      []int64
	ReownedSubparts []int64
	ConfigChanged   bool

	Err error
}

// newReconciliationTransaction starts one attempt. A retried store
// transaction gets a fresh instance carrying the same id.
func newReconciliationTransaction(id string, actor models.ActorContext, now time.Time) *ReconciliationTransaction {
	return &ReconciliationTransaction{
		ID:           id,
		Actor:        actor,
		Timestamp:    now,
		State:        TxIdle,
		Placeholders: make(map[int64]int64),
		Created:      make(map[int64]bool),
	}
}

func (t *ReconciliationTransaction) open(tx repositories.ClassSetupTx, tree *models.ConfigTree) error {
	if t.State != TxIdle {
		return fmt.Errorf("reconciliation %s cannot open from state %s", t.ID, t.State)
	}
	t.tx = tx
	t.Tree = tree
	t.OrigManagingDept = tree.ManagingDeptSnapshot()
	t.State = TxOpen
	return nil
}

func (t *ReconciliationTransaction) commit() {
	if t.State == TxOpen {
		t.State = TxCommitted
	}
	t.tx = nil
}

func (t *ReconciliationTransaction) rollback(err error) {
	if t.State == TxIdle || t.State == TxOpen {
		t.State = TxRolledBack
		t.Err = err
	}
	t.tx = nil
}

// Resolve maps a class reference to a persisted id. Pending references resolve
// only after the create stage materialized them.
func (t *ReconciliationTransaction) Resolve(ref ClassRef) (int64, bool) {
	if !ref.IsPending() {
		return ref.ID(), true
	}
	id, ok := t.Placeholders[ref.Placeholder()]
	return id, ok
}

// Summary returns the read-only view handed to hooks and callers.
func (t *ReconciliationTransaction) Summary() TransactionSummary {
	created := make([]int64, 0, len(t.Created))
	for _, id := range t.Placeholders {
		created = append(created, id)
	}
	s := TransactionSummary{
		TxID:            t.ID,
		Actor:           t.Actor,
		Timestamp:       t.Timestamp,
		CreatedIDs:      sortInt64s(created),
		UpdatedIDs:      append([]int64(nil), t.UpdatedIDs...),
		DeletedIDs:      append([]int64(nil), t.DeletedIDs...),
		ReownedSubparts: append([]int64(nil), t.ReownedSubparts...),
		ConfigChanged:   t.ConfigChanged,
	}
	if t.Tree != nil {
		s.ConfigurationID = t.Tree.Config.ID
		s.OfferingID = t.Tree.Offering.ID
	}
	return s
}

// TransactionSummary describes a reconciliation to hooks, the change feed and callers.
type TransactionSummary struct {
	TxID            string              `json:"txId"`
	OfferingID      int64               `json:"offeringId"`
	ConfigurationID int64               `json:"configurationId"`
	Actor           models.ActorContext `json:"actor"`
	Timestamp       time.Time           `json:"timestamp"`
	CreatedIDs      []int64             `json:"createdIds"`
	UpdatedIDs      []int64             `json:"updatedIds"`
	DeletedIDs      []int64             `json:"deletedIds"`
	ReownedSubparts []int64             `json:"reownedSubparts"`
	ConfigChanged   bool                `json:"configChanged"`
}
