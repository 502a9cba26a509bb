package services

import (
	"context"

	"github.com/yigit/classsetup/internal/app/models"
)

// reconcileSubparts rebuilds the preferences of every subpart whose derived
// managing department moved since the transaction opened.
func (s *ClassSetupService) reconcileSubparts(ctx context.Context, txn *ReconciliationTransaction) error {
	tree := txn.Tree
	for _, subpart := range tree.SortedSubparts() {
		oldDept, ok := txn.OrigManagingDept[subpart.ID]
		if !ok {
			continue
		}
		newDept := tree.SubpartManagingDeptID(subpart.ID)
		if oldDept == newDept {
			continue
		}

		if oldDept != subpart.ControllingDeptID {
			if err := s.retrofitClasses(ctx, txn, subpart, oldDept); err != nil {
				return err
			}
		}

		if _, err := txn.tx.DeleteDistributionPreferences(ctx, models.SubpartOwner(subpart.ID)); err != nil {
			return err
		}

		dept, err := s.department(ctx, txn, newDept)
		if err != nil {
			return err
		}
		rebuilt := RebuildSubpartPreferences(subpart.Preferences, dept, tree.ControllingDepartment(), tree.DefaultRoomGroupID)
		subpart.Preferences = rebuilt
		if err := txn.tx.ReplacePreferences(ctx, models.SubpartOwner(subpart.ID), rebuilt); err != nil {
			return err
		}
		txn.ReownedSubparts = append(txn.ReownedSubparts, subpart.ID)
		s.log.Debug().Str("txID", txn.ID).Int64("subpartID", subpart.ID).
			Int64("from", oldDept).Int64("to", newDept).Msg("Subpart managing department changed")
	}
	return nil
}

// retrofitClasses copies every subpart preference a class still owned by
// oldDept lacks onto that class, as a required preference.
func (s *ClassSetupService) retrofitClasses(ctx context.Context, txn *ReconciliationTransaction, subpart *models.Subpart, oldDept int64) error {
	for _, c := range txn.Tree.SortedClasses(subpart.ClassIDs) {
		if c.ManagingDeptID != oldDept {
			continue
		}
		added := false
		for _, p := range subpart.Preferences.Items() {
			if c.Preferences.Has(p.Kind, p.TargetID) {
				continue
			}
			cp := p.Clone()
			cp.Level = models.LevelRequired
			added = c.Preferences.Add(cp) || added
		}
		if !added {
			continue
		}
		if err := txn.tx.ReplacePreferences(ctx, models.ClassOwner(c.ID), c.Preferences); err != nil {
			return err
		}
	}
	return nil
}

// RebuildSubpartPreferences derives the preferences of a subpart handed to
// newManager: fresh copies of its time preferences, weakened when
// ShouldWeakenTimePreferences holds, plus a required default room group when
// the subpart returns to its controlling department.
func RebuildSubpartPreferences(current models.PreferenceSet, newManager, controlling *models.Department, defaultRoomGroup *int64) models.PreferenceSet {
	weaken := models.ShouldWeakenTimePreferences(newManager, controlling)
	var rebuilt models.PreferenceSet
	for _, p := range current.OfKind(models.KindTime) {
		if weaken {
			rebuilt.Add(p.WeakenHard())
		} else {
			rebuilt.Add(p.Clone())
		}
	}
	if newManager != nil && controlling != nil && newManager.ID == controlling.ID && defaultRoomGroup != nil {
		rebuilt.Add(models.Preference{Kind: models.KindRoomGroup, Level: models.LevelRequired, TargetID: *defaultRoomGroup})
	}
	return rebuilt
}
