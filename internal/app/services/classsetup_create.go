package services

import (
	"context"
	"fmt"
	"sort"

	"github.com/yigit/classsetup/internal/app/models"
	"github.com/yigit/classsetup/internal/pkg/apperrors"
)

// createClasses materializes every pending row in submission order and maps
// its placeholder to the new id. A pending parent must already be mapped.
func (s *ClassSetupService) createClasses(ctx context.Context, txn *ReconciliationTransaction, sub *Submission) error {
	tree := txn.Tree
	for _, e := range sub.Classes {
		if !e.Ref.IsPending() {
			continue
		}
		subpart, ok := tree.Subparts[e.SubpartID]
		if !ok {
			return apperrors.NewBadRequestError(fmt.Sprintf("subpart %d not found", e.SubpartID))
		}

		var parentID *int64
		if e.Parent != nil {
			id, ok := txn.Resolve(*e.Parent)
			if !ok {
				errs := &apperrors.SubmissionError{}
				errs.AddUnresolved(e.Index, "parentClassIds", "placeholder %d was not created before class %d", e.Parent.Placeholder(), e.Ref.Placeholder())
				return errs
			}
			parentID = &id
		}

		deptID := e.DepartmentID
		if deptID == DepartmentSentinel {
			deptID = subpart.ControllingDeptID
		}
		if _, err := s.department(ctx, txn, deptID); err != nil {
			return err
		}

		c := &models.Class{
			SubpartID:                   subpart.ID,
			ParentID:                    parentID,
			ExpectedCapacity:            e.ExpectedCapacity,
			MaxExpectedCapacity:         e.MaxExpectedCapacity,
			NbrRooms:                    e.NbrRooms,
			RoomRatio:                   e.RoomRatio,
			DatePatternID:               e.DatePatternID,
			Cancelled:                   e.Cancelled,
			DisplayInstructor:           true,
			EnabledForStudentScheduling: true,
			ManagingDeptID:              deptID,
			ControllingDeptID:           subpart.ControllingDeptID,
			SnapshotLimitDate:           ptr(txn.Timestamp),
		}
		if s.features.DisplayInstructorFlags {
			c.DisplayInstructor = e.DisplayInstructor
		}
		if s.features.EnabledForStudentScheduling {
			c.EnabledForStudentScheduling = e.EnabledForStudentScheduling
		}
		if e.ExternalID.Supplied {
			c.Suffix = e.ExternalID.Value
		}
		if e.SnapshotLimit.Supplied {
			c.SnapshotLimit = e.SnapshotLimit.Value
		}
		if e.LMSID.Supplied {
			c.LMSID = e.LMSID.Value
		}

		id, err := txn.tx.InsertClass(ctx, c)
		if err != nil {
			return err
		}
		c.ID = id
		tree.AttachClass(c)
		txn.Placeholders[e.Ref.Placeholder()] = id
		txn.Created[id] = true
	}
	return nil
}

// department returns the department from the tree, loading it into the tree on first use.
func (s *ClassSetupService) department(ctx context.Context, txn *ReconciliationTransaction, id int64) (*models.Department, error) {
	if d, ok := txn.Tree.Departments[id]; ok {
		return d, nil
	}
	d, err := txn.tx.GetDepartment(ctx, id)
	if err != nil {
		if apperrors.Is(err, apperrors.ErrResourceNotFound) {
			return nil, apperrors.NewBadRequestError(fmt.Sprintf("department %d does not exist", id))
		}
		return nil, err
	}
	if d.SessionID != txn.Tree.Offering.SessionID {
		return nil, apperrors.NewBadRequestError(fmt.Sprintf("department %d belongs to another session", id))
	}
	txn.Tree.Departments[id] = d
	return d, nil
}

func ptr[T any](v T) *T { return &v }

func sortInt64s(ids []int64) []int64 {
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
