package services

import (
	"context"
	"fmt"
	"sort"

	"github.com/yigit/classsetup/internal/app/models"
	"github.com/yigit/classsetup/internal/app/models/dto"
	"github.com/yigit/classsetup/internal/pkg/apperrors"
)

// ClassAccess is what the actor may do with one class.
type ClassAccess struct {
	ReadOnly  bool
	CanDelete bool
	CanCancel bool
}

// ClassSetupView is a loaded configuration with per-class access flags.
type ClassSetupView struct {
	Tree              *models.ConfigTree
	Access            map[int64]ClassAccess
	UnlimitedReadOnly bool
}

// LoadClassSetup loads a configuration for editing. It fails when the
// configuration has no subparts or a subpart has no classes.
func (s *ClassSetupService) LoadClassSetup(ctx context.Context, actor models.ActorContext, configID int64) (*ClassSetupView, error) {
	tree, err := s.store.LoadConfigurationTree(ctx, configID)
	if err != nil {
		return nil, err
	}
	if !s.authz.CanActOn(actor, tree.Config, models.RightMultipleClassSetup) {
		return nil, apperrors.NewForbiddenError(fmt.Sprintf("not allowed to set up classes of configuration %d", configID))
	}
	if len(tree.Subparts) == 0 {
		return nil, apperrors.NewCustomError(apperrors.ErrIncompleteConfiguration,
			fmt.Sprintf("configuration %d has no scheduling subparts", configID))
	}
	for _, subpart := range tree.SortedSubparts() {
		if len(subpart.ClassIDs) == 0 {
			return nil, apperrors.NewCustomError(apperrors.ErrIncompleteConfiguration,
				fmt.Sprintf("subpart %d of configuration %d has no classes", subpart.ID, configID))
		}
	}
	return s.buildView(actor, tree), nil
}

// AuthorizeChangeFeed checks that actor may watch configuration configID and
// returns the offering it belongs to.
func (s *ClassSetupService) AuthorizeChangeFeed(ctx context.Context, actor models.ActorContext, configID int64) (int64, error) {
	tree, err := s.store.LoadConfigurationTree(ctx, configID)
	if err != nil {
		return 0, err
	}
	if !s.authz.CanActOn(actor, tree.Config, models.RightMultipleClassSetup) {
		return 0, apperrors.NewForbiddenError(fmt.Sprintf("not allowed to watch configuration %d", configID))
	}
	return tree.Offering.ID, nil
}

func (s *ClassSetupService) buildView(actor models.ActorContext, tree *models.ConfigTree) *ClassSetupView {
	v := &ClassSetupView{Tree: tree, Access: make(map[int64]ClassAccess, len(tree.Classes))}
	for _, c := range tree.BuildClassList() {
		a := ClassAccess{
			ReadOnly:  !c.Cancelled && !s.authz.CanActOn(actor, c, models.RightMultipleClassSetupClass),
			CanDelete: s.authz.CanActOn(actor, c, models.RightClassDelete),
			CanCancel: s.authz.CanActOn(actor, c, models.RightClassCancel),
		}
		if a.ReadOnly {
			v.UnlimitedReadOnly = true
		}
		v.Access[c.ID] = a
	}
	return v
}

// Response converts the view into the nested API representation.
func (v *ClassSetupView) Response() *dto.ClassSetupResponse {
	t := v.Tree
	resp := &dto.ClassSetupResponse{
		OfferingID:            t.Offering.ID,
		ConfigurationID:       t.Config.ID,
		CourseName:            t.Offering.CourseNameWithTitle(),
		ConfigurationName:     t.Config.Name,
		Limit:                 t.Config.Limit,
		Unlimited:             t.Config.Unlimited,
		UnlimitedReadOnly:     v.UnlimitedReadOnly,
		InstructionalMethodID: t.Config.InstructionalMethodID,
		ControllingDeptID:     t.Config.ControllingDeptID,
		Subparts:              []*dto.SubpartResponse{},
	}
	for _, s := range t.RootSubparts() {
		resp.Subparts = append(resp.Subparts, v.subpartResponse(s))
	}
	return resp
}

func (v *ClassSetupView) subpartResponse(s *models.Subpart) *dto.SubpartResponse {
	t := v.Tree
	r := &dto.SubpartResponse{
		ID:             s.ID,
		ParentID:       s.ParentID,
		ItypeID:        s.ItypeID,
		Name:           s.ItypeName + s.Suffix,
		ManagingDeptID: t.SubpartManagingDeptID(s.ID),
		Preferences:    preferenceResponses(s.Preferences),
		Classes:        []*dto.ClassResponse{},
	}
	for _, c := range t.SortedClasses(s.ClassIDs) {
		r.Classes = append(r.Classes, v.classResponse(c))
	}
	children := make([]*models.Subpart, 0, len(s.ChildIDs))
	for _, id := range s.ChildIDs {
		if child, ok := t.Subparts[id]; ok {
			children = append(children, child)
		}
	}
	sort.SliceStable(children, func(i, j int) bool { return t.CompareSubparts(children[i], children[j]) < 0 })
	for _, child := range children {
		r.Children = append(r.Children, v.subpartResponse(child))
	}
	return r
}

func (v *ClassSetupView) classResponse(c *models.Class) *dto.ClassResponse {
	a := v.Access[c.ID]
	r := &dto.ClassResponse{
		ID:                          c.ID,
		SubpartID:                   c.SubpartID,
		ParentID:                    c.ParentID,
		SectionNumber:               c.SectionNumber,
		ExpectedCapacity:            c.ExpectedCapacity,
		MaxExpectedCapacity:         c.MaxExpectedCapacity,
		NbrRooms:                    c.NbrRooms,
		RoomRatio:                   c.RoomRatio,
		DatePatternID:               c.DatePatternID,
		LMSID:                       c.LMSID,
		ExternalID:                  c.Suffix,
		Cancelled:                   c.Cancelled,
		SnapshotLimit:               c.SnapshotLimit,
		SnapshotLimitDate:           c.SnapshotLimitDate,
		DisplayInstructor:           c.DisplayInstructor,
		EnabledForStudentScheduling: c.EnabledForStudentScheduling,
		ManagingDeptID:              c.ManagingDeptID,
		ReadOnly:                    a.ReadOnly,
		CanDelete:                   a.CanDelete,
		CanCancel:                   a.CanCancel,
		Preferences:                 preferenceResponses(c.Preferences),
	}
	return r
}

func preferenceResponses(set models.PreferenceSet) []dto.PreferenceResponse {
	out := make([]dto.PreferenceResponse, 0, set.Len())
	for _, p := range set.Items() {
		r := dto.PreferenceResponse{
			Kind:         string(p.Kind),
			Level:        string(p.Level),
			TargetID:     p.TargetID,
			PatternType:  string(p.PatternType),
			DistanceFrom: p.DistanceFrom,
		}
		for _, l := range p.Grid {
			r.Grid = append(r.Grid, string(l))
		}
		out = append(out, r)
	}
	return out
}

// ChangeLogResponses converts change-log entries for the API.
func ChangeLogResponses(entries []*models.ChangeLogEntry) []dto.ChangeLogEntryResponse {
	out := make([]dto.ChangeLogEntryResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, dto.ChangeLogEntryResponse{
			ID:          e.ID,
			Timestamp:   e.Timestamp,
			ManagerID:   e.ManagerID,
			ObjectType:  e.ObjectType,
			ObjectID:    e.ObjectID,
			ObjectTitle: e.ObjectTitle,
			Source:      string(e.Source),
			Operation:   string(e.Operation),
		})
	}
	return out
}
