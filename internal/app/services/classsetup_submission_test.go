package services

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/yigit/classsetup/internal/app/models"
	"github.com/yigit/classsetup/internal/app/models/dto"
	"github.com/yigit/classsetup/internal/config"
	"github.com/yigit/classsetup/internal/pkg/apperrors"
)

// row is one class line of a test request.
type row struct {
	id, subpart, parent string
	min, max, rooms     string
	ratio, dept         string
	datePattern         string
	cancelled           string
}

func buildRequest(limit int, rows ...row) *dto.ClassSetupRequest {
	req := &dto.ClassSetupRequest{Limit: limit}
	for _, r := range rows {
		req.ClassIDs = append(req.ClassIDs, r.id)
		req.SubpartIDs = append(req.SubpartIDs, r.subpart)
		req.ParentClassIDs = append(req.ParentClassIDs, r.parent)
		req.MinClassLimits = append(req.MinClassLimits, r.min)
		req.MaxClassLimits = append(req.MaxClassLimits, r.max)
		req.NumberOfRooms = append(req.NumberOfRooms, r.rooms)
		req.RoomRatios = append(req.RoomRatios, r.ratio)
		req.Departments = append(req.Departments, r.dept)
		req.DatePatterns = append(req.DatePatterns, r.datePattern)
		req.Cancelled = append(req.Cancelled, r.cancelled)
	}
	return req
}

func fieldsOf(t *testing.T, err error) []apperrors.FieldError {
	t.Helper()
	var se *apperrors.SubmissionError
	require.True(t, errors.As(err, &se), "expected a submission error, got %v", err)
	return se.Fields
}

func TestParseSubmission_Placeholders(t *testing.T) {
	req := buildRequest(30,
		row{id: "-1", subpart: "1", parent: "", min: "30", max: "30", rooms: "1", ratio: "1.0", dept: "-1", cancelled: "false"},
		row{id: "-2", subpart: "2", parent: "-1", min: "15", max: "15", rooms: "1", ratio: "1.0", dept: "-1", datePattern: "7", cancelled: "false"},
		row{id: "11", subpart: "1", parent: "", min: "30", max: "40", rooms: "2", ratio: "0.5", dept: "5", cancelled: "true"},
	)

	sub, err := ParseSubmission(9, req, config.ClassSetupConfig{})
	require.NoError(t, err)
	require.Equal(t, int64(9), sub.ConfigurationID)
	require.Equal(t, 30, sub.Limit)
	require.Len(t, sub.Classes, 3)

	first := sub.Classes[0]
	require.True(t, first.Ref.IsPending())
	require.Equal(t, int64(-1), first.Ref.Placeholder())
	require.Nil(t, first.Parent)
	require.Equal(t, DepartmentSentinel, first.DepartmentID)

	second := sub.Classes[1]
	require.NotNil(t, second.Parent)
	require.True(t, second.Parent.IsPending())
	require.Equal(t, int64(-1), second.Parent.Placeholder())
	require.NotNil(t, second.DatePatternID)
	require.Equal(t, int64(7), *second.DatePatternID)

	third := sub.Classes[2]
	require.False(t, third.Ref.IsPending())
	require.Equal(t, int64(11), third.Ref.ID())
	require.Equal(t, 40, third.MaxExpectedCapacity)
	require.Equal(t, 2, third.NbrRooms)
	require.Equal(t, 0.5, third.RoomRatio)
	require.True(t, third.Cancelled)
	require.Equal(t, int64(5), third.DepartmentID)

	require.Equal(t, map[int64]bool{11: true}, sub.LiveIDs())
}

func TestParseSubmission_UnlimitedOverridesLimits(t *testing.T) {
	req := buildRequest(50,
		row{id: "11", subpart: "1", min: "30", max: "10", rooms: "3", ratio: "0.7", dept: "-1", cancelled: "false"},
	)
	req.Unlimited = true

	sub, err := ParseSubmission(9, req, config.ClassSetupConfig{})
	require.NoError(t, err)
	require.True(t, sub.Unlimited)
	require.Equal(t, 0, sub.Limit)

	e := sub.Classes[0]
	require.Equal(t, 0, e.ExpectedCapacity)
	require.Equal(t, 0, e.MaxExpectedCapacity)
	require.Equal(t, 0, e.NbrRooms)
	require.Equal(t, 1.0, e.RoomRatio)
}

func TestParseSubmission_Malformed(t *testing.T) {
	valid := row{id: "11", subpart: "1", min: "10", max: "10", rooms: "1", ratio: "1", dept: "-1", cancelled: "false"}

	tests := []struct {
		name       string
		req        func() *dto.ClassSetupRequest
		features   config.ClassSetupConfig
		field      string
		index      int
		unresolved bool
	}{
		{
			name:  "empty submission",
			req:   func() *dto.ClassSetupRequest { return &dto.ClassSetupRequest{} },
			field: "classIds",
			index: -1,
		},
		{
			name: "misaligned sequence",
			req: func() *dto.ClassSetupRequest {
				r := buildRequest(10, valid)
				r.RoomRatios = append(r.RoomRatios, "1")
				return r
			},
			field: "roomRatios",
			index: -1,
		},
		{
			name: "too many external ids",
			req: func() *dto.ClassSetupRequest {
				r := buildRequest(10, valid)
				r.ExternalIDs = []string{"a", "b"}
				return r
			},
			field: "externalIds",
			index: -1,
		},
		{
			name: "missing instructor flags when displayed",
			req: func() *dto.ClassSetupRequest {
				return buildRequest(10, valid)
			},
			features: config.ClassSetupConfig{DisplayInstructorFlags: true},
			field:    "displayInstructors",
			index:    -1,
		},
		{
			name: "max below min",
			req: func() *dto.ClassSetupRequest {
				r := valid
				r.max = "5"
				return buildRequest(10, r)
			},
			field: "maxClassLimits",
			index: 0,
		},
		{
			name: "not a number",
			req: func() *dto.ClassSetupRequest {
				r := valid
				r.rooms = "two"
				return buildRequest(10, r)
			},
			field: "numberOfRooms",
			index: 0,
		},
		{
			name: "invalid department",
			req: func() *dto.ClassSetupRequest {
				r := valid
				r.dept = "-3"
				return buildRequest(10, r)
			},
			field: "departments",
			index: 0,
		},
		{
			name: "duplicate class",
			req: func() *dto.ClassSetupRequest {
				return buildRequest(10, valid, valid)
			},
			field: "classIds",
			index: 1,
		},
		{
			name: "duplicate placeholder",
			req: func() *dto.ClassSetupRequest {
				r := valid
				r.id = "-1"
				return buildRequest(10, r, r)
			},
			field: "classIds",
			index: 1,
		},
		{
			name: "placeholder parent used before definition",
			req: func() *dto.ClassSetupRequest {
				child := valid
				child.id, child.subpart, child.parent = "-2", "2", "-1"
				parent := valid
				parent.id = "-1"
				return buildRequest(10, child, parent)
			},
			field:      "parentClassIds",
			index:      0,
			unresolved: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sub, err := ParseSubmission(9, tt.req(), tt.features)
			require.Error(t, err)
			require.Nil(t, sub)
			require.True(t, errors.Is(err, apperrors.ErrMalformedSubmission))
			require.Equal(t, tt.unresolved, errors.Is(err, apperrors.ErrUnresolvedParentReference))

			found := false
			for _, f := range fieldsOf(t, err) {
				if f.Field == tt.field && f.Index == tt.index {
					found = true
				}
			}
			require.True(t, found, "no error for %s at row %d in %v", tt.field, tt.index, err)
		})
	}
}

func TestParseSubmission_OptionalSequences(t *testing.T) {
	req := buildRequest(10,
		row{id: "11", subpart: "1", min: "10", max: "10", rooms: "1", ratio: "1", dept: "-1", cancelled: "false"},
		row{id: "12", subpart: "1", min: "10", max: "10", rooms: "1", ratio: "1", dept: "-1", cancelled: "false"},
	)
	req.ExternalIDs = []string{" A1 ", ""}
	req.SnapshotLimits = []string{"25"}
	req.LMS = []string{"4", ""}

	t.Run("ignored when the features are off", func(t *testing.T) {
		sub, err := ParseSubmission(9, req, config.ClassSetupConfig{})
		require.NoError(t, err)
		for _, e := range sub.Classes {
			require.False(t, e.ExternalID.Supplied)
			require.False(t, e.SnapshotLimit.Supplied)
			require.False(t, e.LMSID.Supplied)
		}
	})

	t.Run("honoured when the features are on", func(t *testing.T) {
		features := config.ClassSetupConfig{EditExternalIDs: true, EditSnapshotLimits: true, DisplayLMS: true}
		sub, err := ParseSubmission(9, req, features)
		require.NoError(t, err)

		first, second := sub.Classes[0], sub.Classes[1]
		require.True(t, first.ExternalID.Supplied)
		require.Equal(t, "A1", *first.ExternalID.Value)
		require.True(t, second.ExternalID.Supplied)
		require.Nil(t, second.ExternalID.Value)

		require.True(t, first.SnapshotLimit.Supplied)
		require.Equal(t, 25, *first.SnapshotLimit.Value)
		require.False(t, second.SnapshotLimit.Supplied)

		require.Equal(t, int64(4), *first.LMSID.Value)
		require.True(t, second.LMSID.Supplied)
		require.Nil(t, second.LMSID.Value)
	})
}

func TestSubmissionResolve(t *testing.T) {
	tree := newServiceTestTree()

	tests := []struct {
		name    string
		rows    []row
		field   string
		wantErr bool
	}{
		{
			name: "valid tree",
			rows: []row{
				{id: "11", subpart: "1", min: "10", max: "10", rooms: "1", ratio: "1", dept: "-1", cancelled: "false"},
				{id: "21", subpart: "2", parent: "11", min: "10", max: "10", rooms: "1", ratio: "1", dept: "-1", cancelled: "false"},
				{id: "-1", subpart: "2", parent: "11", min: "10", max: "10", rooms: "1", ratio: "1", dept: "-1", cancelled: "false"},
			},
		},
		{
			name: "unknown subpart",
			rows: []row{
				{id: "11", subpart: "99", min: "10", max: "10", rooms: "1", ratio: "1", dept: "-1", cancelled: "false"},
			},
			field:   "subpartIds",
			wantErr: true,
		},
		{
			name: "class of another configuration",
			rows: []row{
				{id: "77", subpart: "1", min: "10", max: "10", rooms: "1", ratio: "1", dept: "-1", cancelled: "false"},
			},
			field:   "classIds",
			wantErr: true,
		},
		{
			name: "class moved to another subpart",
			rows: []row{
				{id: "11", subpart: "2", min: "10", max: "10", rooms: "1", ratio: "1", dept: "-1", cancelled: "false"},
			},
			field:   "subpartIds",
			wantErr: true,
		},
		{
			name: "parent removed by the submission",
			rows: []row{
				{id: "21", subpart: "2", parent: "11", min: "10", max: "10", rooms: "1", ratio: "1", dept: "-1", cancelled: "false"},
			},
			field:   "parentClassIds",
			wantErr: true,
		},
		{
			name: "parent outside the parent subpart",
			rows: []row{
				{id: "11", subpart: "1", min: "10", max: "10", rooms: "1", ratio: "1", dept: "-1", cancelled: "false"},
				{id: "21", subpart: "2", min: "10", max: "10", rooms: "1", ratio: "1", dept: "-1", cancelled: "false"},
				{id: "-1", subpart: "2", parent: "21", min: "10", max: "10", rooms: "1", ratio: "1", dept: "-1", cancelled: "false"},
			},
			field:   "parentClassIds",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sub, err := ParseSubmission(tree.Config.ID, buildRequest(10, tt.rows...), config.ClassSetupConfig{})
			require.NoError(t, err)

			err = sub.Resolve(tree)
			if !tt.wantErr {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			require.True(t, errors.Is(err, apperrors.ErrMalformedSubmission))
			require.Equal(t, tt.field, fieldsOf(t, err)[0].Field)
		})
	}
}

// newServiceTestTree builds configuration 5 with subparts 1 (Lec) and 2 (Rec,
// child of 1), classes 11 in subpart 1 and 21 (parent 11) in subpart 2.
func newServiceTestTree() *models.ConfigTree {
	off := &models.Offering{ID: 3, SessionID: 1, ControllingDeptID: 10}
	cfg := &models.Configuration{ID: 5, OfferingID: 3, ControllingDeptID: 10}
	tree := models.NewConfigTree(off, cfg)
	parent := int64(1)
	tree.AddSubpart(&models.Subpart{ID: 1, ConfigurationID: 5, ItypeID: 10, ControllingDeptID: 10})
	tree.AddSubpart(&models.Subpart{ID: 2, ConfigurationID: 5, ParentID: &parent, ItypeID: 30, ControllingDeptID: 10})
	tree.LinkSubparts()
	tree.AttachClass(&models.Class{ID: 11, SubpartID: 1, ManagingDeptID: 10, ControllingDeptID: 10})
	p := int64(11)
	tree.AttachClass(&models.Class{ID: 21, SubpartID: 2, ParentID: &p, ManagingDeptID: 10, ControllingDeptID: 10})
	return tree
}
