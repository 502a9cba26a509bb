package services

import (
	"context"
	"fmt"

	"github.com/yigit/classsetup/internal/app/models"
	"github.com/yigit/classsetup/internal/pkg/apperrors"
)

// deleteClasses removes persisted classes the submission no longer lists,
// walking the class list backwards so children go before their parents.
func (s *ClassSetupService) deleteClasses(ctx context.Context, txn *ReconciliationTransaction, sub *Submission) error {
	tree := txn.Tree
	live := sub.LiveIDs()
	list := tree.BuildClassList()
	for i := len(list) - 1; i >= 0; i-- {
		c := list[i]
		if live[c.ID] || txn.Created[c.ID] {
			continue
		}
		if len(c.ChildIDs) > 0 {
			return apperrors.NewCustomError(apperrors.ErrMalformedSubmission,
				fmt.Sprintf("class %d is removed but its child class %d is kept", c.ID, c.ChildIDs[0]))
		}
		if err := txn.tx.DeleteClass(ctx, c.ID); err != nil {
			return err
		}
		tree.DetachClass(c.ID)
		txn.DeletedIDs = append(txn.DeletedIDs, c.ID)
	}
	return nil
}

// SectionNumbers numbers the classes of every subpart 1..n in class order.
func SectionNumbers(tree *models.ConfigTree) map[int64]int {
	numbers := make(map[int64]int, len(tree.Classes))
	for _, subpart := range tree.SortedSubparts() {
		for i, c := range tree.SortedClasses(subpart.ClassIDs) {
			numbers[c.ID] = i + 1
		}
	}
	return numbers
}

// recomputeLabels persists the section numbers that moved.
func (s *ClassSetupService) recomputeLabels(ctx context.Context, txn *ReconciliationTransaction) error {
	changed := make(map[int64]int)
	for id, n := range SectionNumbers(txn.Tree) {
		c := txn.Tree.Classes[id]
		if c.SectionNumber != n {
			changed[id] = n
		}
	}
	if len(changed) == 0 {
		return nil
	}
	if err := txn.tx.UpdateSectionNumbers(ctx, changed); err != nil {
		return err
	}
	for id, n := range changed {
		txn.Tree.Classes[id].SectionNumber = n
	}
	return nil
}
