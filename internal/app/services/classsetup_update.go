package services

import (
	"context"

	"github.com/yigit/classsetup/internal/app/models"
)

// classField names one attribute the update stage compares.
type classField string

const (
	fieldParent            classField = "parent"
	fieldManagingDept      classField = "managingDept"
	fieldDatePattern       classField = "datePattern"
	fieldLMS               classField = "lms"
	fieldExpectedCapacity  classField = "minClassLimit"
	fieldMaxCapacity       classField = "maxClassLimit"
	fieldNbrRooms          classField = "numberOfRooms"
	fieldRoomRatio         classField = "roomRatio"
	fieldDisplayInstructor classField = "displayInstructor"
	fieldStudentScheduling classField = "enabledForStudentScheduling"
	fieldExternalID        classField = "externalId"
	fieldCancelled         classField = "cancelled"
	fieldSnapshotLimit     classField = "snapshotLimit"
)

type classDiff map[classField]bool

// diffClass lists the attributes of c the row changes. A pending parent that
// is not resolved yet always counts as a change.
func (s *ClassSetupService) diffClass(c *models.Class, e ClassEdit, placeholders map[int64]int64) classDiff {
	d := classDiff{}

	var parent *int64
	if e.Parent != nil {
		if e.Parent.IsPending() {
			if id, ok := placeholders[e.Parent.Placeholder()]; ok {
				parent = &id
			} else {
				d[fieldParent] = true
			}
		} else {
			id := e.Parent.ID()
			parent = &id
		}
	}
	if !d[fieldParent] && !equalPtr(c.ParentID, parent) {
		d[fieldParent] = true
	}

	if managingDept(c, e) != c.ManagingDeptID {
		d[fieldManagingDept] = true
	}
	if !equalPtr(c.DatePatternID, e.DatePatternID) {
		d[fieldDatePattern] = true
	}
	if e.LMSID.Supplied && !equalPtr(c.LMSID, e.LMSID.Value) {
		d[fieldLMS] = true
	}
	if c.ExpectedCapacity != e.ExpectedCapacity {
		d[fieldExpectedCapacity] = true
	}
	if c.MaxExpectedCapacity != e.MaxExpectedCapacity {
		d[fieldMaxCapacity] = true
	}
	if c.NbrRooms != e.NbrRooms {
		d[fieldNbrRooms] = true
	}
	if c.RoomRatio != e.RoomRatio {
		d[fieldRoomRatio] = true
	}
	if s.features.DisplayInstructorFlags && c.DisplayInstructor != e.DisplayInstructor {
		d[fieldDisplayInstructor] = true
	}
	if s.features.EnabledForStudentScheduling && c.EnabledForStudentScheduling != e.EnabledForStudentScheduling {
		d[fieldStudentScheduling] = true
	}
	if e.ExternalID.Supplied && !equalPtr(c.Suffix, e.ExternalID.Value) {
		d[fieldExternalID] = true
	}
	if c.Cancelled != e.Cancelled {
		d[fieldCancelled] = true
	}
	if e.SnapshotLimit.Supplied && !equalPtr(c.SnapshotLimit, e.SnapshotLimit.Value) {
		d[fieldSnapshotLimit] = true
	}
	return d
}

// managingDept resolves the department sentinel against the class.
func managingDept(c *models.Class, e ClassEdit) int64 {
	if e.DepartmentID == DepartmentSentinel {
		return c.ControllingDeptID
	}
	return e.DepartmentID
}

// updateConfiguration applies the configuration header of the submission.
func (s *ClassSetupService) updateConfiguration(ctx context.Context, txn *ReconciliationTransaction, sub *Submission) error {
	cfg := txn.Tree.Config
	changed := false
	if cfg.Unlimited != sub.Unlimited {
		cfg.Unlimited = sub.Unlimited
		cfg.Limit = sub.Limit
		changed = true
	} else if cfg.Limit != sub.Limit {
		cfg.Limit = sub.Limit
		changed = true
	}
	if !equalPtr(cfg.InstructionalMethodID, sub.InstructionalMethodID) {
		cfg.InstructionalMethodID = sub.InstructionalMethodID
		changed = true
	}
	if !changed {
		return nil
	}
	txn.ConfigChanged = true
	return txn.tx.UpdateConfiguration(ctx, cfg)
}

// updateClasses applies the changed attributes of every persisted row and
// writes only classes that actually changed.
func (s *ClassSetupService) updateClasses(ctx context.Context, txn *ReconciliationTransaction, sub *Submission) error {
	tree := txn.Tree
	for _, e := range sub.Classes {
		if e.Ref.IsPending() {
			continue
		}
		c, ok := tree.Classes[e.Ref.ID()]
		if !ok {
			continue
		}
		diff := s.diffClass(c, e, txn.Placeholders)
		if len(diff) == 0 {
			continue
		}

		if diff[fieldParent] {
			var parent *int64
			if e.Parent != nil {
				id, _ := txn.Resolve(*e.Parent)
				parent = &id
			}
			tree.Reparent(c.ID, parent)
		}
		if diff[fieldManagingDept] {
			if err := s.changeManagingDepartment(ctx, txn, c, managingDept(c, e)); err != nil {
				return err
			}
		}
		if diff[fieldDatePattern] {
			c.DatePatternID = e.DatePatternID
		}
		if diff[fieldLMS] {
			c.LMSID = e.LMSID.Value
		}
		c.ExpectedCapacity = e.ExpectedCapacity
		c.MaxExpectedCapacity = e.MaxExpectedCapacity
		c.NbrRooms = e.NbrRooms
		c.RoomRatio = e.RoomRatio
		if diff[fieldDisplayInstructor] {
			c.DisplayInstructor = e.DisplayInstructor
		}
		if diff[fieldStudentScheduling] {
			c.EnabledForStudentScheduling = e.EnabledForStudentScheduling
		}
		if diff[fieldExternalID] {
			c.Suffix = e.ExternalID.Value
		}
		if diff[fieldSnapshotLimit] {
			c.SnapshotLimit = e.SnapshotLimit.Value
			c.SnapshotLimitDate = ptr(txn.Timestamp)
		}
		if diff[fieldCancelled] {
			c.Cancelled = e.Cancelled
			if err := s.canceller.CancelEvents(ctx, txn.tx, c.ID, c.Cancelled); err != nil {
				return err
			}
		}

		if err := txn.tx.UpdateClass(ctx, c); err != nil {
			return err
		}
		txn.UpdatedIDs = append(txn.UpdatedIDs, c.ID)
	}
	return nil
}

// changeManagingDepartment hands c to deptID. The class keeps only copies of
// its subpart's time preferences (exact times excluded, weakened when the new
// manager may not require times) and loses its distribution memberships.
func (s *ClassSetupService) changeManagingDepartment(ctx context.Context, txn *ReconciliationTransaction, c *models.Class, deptID int64) error {
	dept, err := s.department(ctx, txn, deptID)
	if err != nil {
		return err
	}
	c.ManagingDeptID = deptID

	weaken := models.ShouldWeakenTimePreferences(dept, txn.Tree.ControllingDepartment())
	var prefs models.PreferenceSet
	if subpart, ok := txn.Tree.Subparts[c.SubpartID]; ok {
		for _, p := range subpart.Preferences.OfKind(models.KindTime) {
			if p.PatternType == models.TimePatternExactTime {
				continue
			}
			if weaken {
				p = p.WeakenHard()
			} else {
				p = p.Clone()
			}
			prefs.Add(p)
		}
	}
	c.Preferences = prefs
	if err := txn.tx.ReplacePreferences(ctx, models.ClassOwner(c.ID), prefs); err != nil {
		return err
	}
	_, err = txn.tx.DeleteDistributionPreferences(ctx, models.ClassOwner(c.ID))
	return err
}

func equalPtr[T comparable](a, b *T) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
