package services

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/yigit/classsetup/internal/app/models"
	"github.com/yigit/classsetup/internal/app/models/dto"
	"github.com/yigit/classsetup/internal/config"
	"github.com/yigit/classsetup/internal/pkg/apperrors"
)

// ClassRef points at a persisted class or at a class created by the same submission.
type ClassRef struct {
	id          int64
	placeholder int64
}

// ExistingClass refers to the persisted class id.
func ExistingClass(id int64) ClassRef { return ClassRef{id: id} }

// PendingClass refers to the class the submission creates under placeholder (a negative number).
func PendingClass(placeholder int64) ClassRef { return ClassRef{placeholder: placeholder} }

// IsPending reports whether the reference is a placeholder.
func (r ClassRef) IsPending() bool { return r.placeholder != 0 }

// ID returns the persisted id; zero for placeholders.
func (r ClassRef) ID() int64 { return r.id }

// Placeholder returns the placeholder; zero for persisted classes.
func (r ClassRef) Placeholder() int64 { return r.placeholder }

func (r ClassRef) String() string {
	if r.IsPending() {
		return fmt.Sprintf("pending(%d)", r.placeholder)
	}
	return fmt.Sprintf("class(%d)", r.id)
}

// Optional carries a value that may be absent from the submission. A supplied
// nil Value means the client cleared the field.
type Optional[T any] struct {
	Supplied bool
	Value    *T
}

// ClassEdit is one decoded submission row.
type ClassEdit struct {
	Index     int
	Ref       ClassRef
	SubpartID int64
	Parent    *ClassRef

	ExpectedCapacity    int
	MaxExpectedCapacity int
	NbrRooms            int
	RoomRatio           float64

	// DepartmentID is -1 when the class adopts its controlling department.
	DepartmentID  int64
	DatePatternID *int64
	Cancelled     bool

	// Compared only when the matching feature is enabled.
	DisplayInstructor           bool
	EnabledForStudentScheduling bool

	ExternalID    Optional[string]
	SnapshotLimit Optional[int]
	LMSID         Optional[int64]
}

// Submission is a fully decoded class setup request for one configuration.
type Submission struct {
	ConfigurationID       int64
	Unlimited             bool
	Limit                 int
	InstructionalMethodID *int64
	Classes               []ClassEdit
}

// LiveIDs returns the persisted class ids the submission keeps.
func (s *Submission) LiveIDs() map[int64]bool {
	live := make(map[int64]bool, len(s.Classes))
	for _, e := range s.Classes {
		if !e.Ref.IsPending() {
			live[e.Ref.ID()] = true
		}
	}
	return live
}

// DepartmentSentinel asks for the class's controlling department.
const DepartmentSentinel int64 = -1

// ParseSubmission decodes the aligned sequences of req. Every problem is
// collected into one *apperrors.SubmissionError. When req.Unlimited is set the
// capacity, room count and ratio are forced to 0, 0 and 1.
func ParseSubmission(configID int64, req *dto.ClassSetupRequest, features config.ClassSetupConfig) (*Submission, error) {
	errs := &apperrors.SubmissionError{}
	n := len(req.ClassIDs)
	if n == 0 {
		errs.Add(-1, "classIds", "at least one class is required")
		return nil, errs
	}
	if req.Limit < 0 {
		errs.Add(-1, "limit", "must not be negative")
	}

	required := map[string][]string{
		"subpartIds":     req.SubpartIDs,
		"parentClassIds": req.ParentClassIDs,
		"minClassLimits": req.MinClassLimits,
		"maxClassLimits": req.MaxClassLimits,
		"roomRatios":     req.RoomRatios,
		"numberOfRooms":  req.NumberOfRooms,
		"departments":    req.Departments,
		"datePatterns":   req.DatePatterns,
		"cancelled":      req.Cancelled,
	}
	if features.DisplayInstructorFlags {
		required["displayInstructors"] = req.DisplayInstructors
	}
	if features.EnabledForStudentScheduling {
		required["enabledForStudentScheduling"] = req.EnabledForStudentScheduling
	}
	for _, field := range sortedFieldNames(required) {
		if got := len(required[field]); got != n {
			errs.Add(-1, field, "has %d elements, expected %d", got, n)
		}
	}
	optional := map[string][]string{"externalIds": req.ExternalIDs, "snapshotLimits": req.SnapshotLimits, "lms": req.LMS}
	for _, field := range sortedFieldNames(optional) {
		if got := len(optional[field]); got > n {
			errs.Add(-1, field, "has %d elements, at most %d allowed", got, n)
		}
	}
	if errs.HasErrors() {
		return nil, errs
	}

	sub := &Submission{
		ConfigurationID:       configID,
		Unlimited:             req.Unlimited,
		Limit:                 req.Limit,
		InstructionalMethodID: req.InstructionalMethodID,
		Classes:               make([]ClassEdit, 0, n),
	}
	if sub.Unlimited {
		sub.Limit = 0
	}

	defined := make(map[int64]bool)
	seen := make(map[int64]bool)
	for i := 0; i < n; i++ {
		p := rowParser{errs: errs, index: i}
		e := ClassEdit{Index: i}

		id := p.int64("classIds", req.ClassIDs[i])
		switch {
		case id < 0:
			if defined[id] {
				errs.Add(i, "classIds", "placeholder %d is defined twice", id)
			}
			e.Ref = PendingClass(id)
		case id > 0:
			if seen[id] {
				errs.Add(i, "classIds", "class %d is listed twice", id)
			}
			seen[id] = true
			e.Ref = ExistingClass(id)
		default:
			if !p.failed {
				errs.Add(i, "classIds", "class id must not be zero")
			}
		}

		e.SubpartID = p.int64("subpartIds", req.SubpartIDs[i])
		if e.SubpartID <= 0 && !p.failed {
			errs.Add(i, "subpartIds", "subpart id must be positive")
		}

		if parent := p.optInt64("parentClassIds", req.ParentClassIDs[i]); parent != nil && *parent != 0 {
			switch {
			case *parent > 0:
				ref := ExistingClass(*parent)
				e.Parent = &ref
			case !defined[*parent]:
				errs.AddUnresolved(i, "parentClassIds", "placeholder %d is not defined before it is used", *parent)
			default:
				ref := PendingClass(*parent)
				e.Parent = &ref
			}
		}

		e.ExpectedCapacity = p.nonNegativeInt("minClassLimits", req.MinClassLimits[i])
		e.MaxExpectedCapacity = p.nonNegativeInt("maxClassLimits", req.MaxClassLimits[i])
		e.NbrRooms = p.nonNegativeInt("numberOfRooms", req.NumberOfRooms[i])
		e.RoomRatio = p.ratio("roomRatios", req.RoomRatios[i])
		if sub.Unlimited {
			e.ExpectedCapacity, e.MaxExpectedCapacity, e.NbrRooms, e.RoomRatio = 0, 0, 0, 1
		} else if e.MaxExpectedCapacity < e.ExpectedCapacity {
			errs.Add(i, "maxClassLimits", "maximum limit %d is below minimum limit %d", e.MaxExpectedCapacity, e.ExpectedCapacity)
		}

		e.DepartmentID = p.int64("departments", req.Departments[i])
		if e.DepartmentID <= 0 && e.DepartmentID != DepartmentSentinel && !p.failed {
			errs.Add(i, "departments", "invalid department %d", e.DepartmentID)
		}
		e.DatePatternID = p.optInt64("datePatterns", req.DatePatterns[i])
		e.Cancelled = p.bool("cancelled", req.Cancelled[i])
		if features.DisplayInstructorFlags {
			e.DisplayInstructor = p.bool("displayInstructors", req.DisplayInstructors[i])
		}
		if features.EnabledForStudentScheduling {
			e.EnabledForStudentScheduling = p.bool("enabledForStudentScheduling", req.EnabledForStudentScheduling[i])
		}

		if features.EditExternalIDs && i < len(req.ExternalIDs) {
			e.ExternalID.Supplied = true
			if v := strings.TrimSpace(req.ExternalIDs[i]); v != "" {
				e.ExternalID.Value = &v
			}
		}
		if features.EditSnapshotLimits && i < len(req.SnapshotLimits) {
			e.SnapshotLimit.Supplied = true
			if v := strings.TrimSpace(req.SnapshotLimits[i]); v != "" {
				limit := p.nonNegativeInt("snapshotLimits", v)
				e.SnapshotLimit.Value = &limit
			}
		}
		if features.DisplayLMS && i < len(req.LMS) {
			e.LMSID.Supplied = true
			e.LMSID.Value = p.optInt64("lms", req.LMS[i])
		}

		if e.Ref.IsPending() {
			defined[e.Ref.Placeholder()] = true
		}
		sub.Classes = append(sub.Classes, e)
	}

	if err := errs.ErrOrNil(); err != nil {
		return nil, err
	}
	return sub, nil
}

// Resolve checks the submission against the persisted tree: every persisted
// class and subpart must belong to the configuration, and a parent must live
// in the parent subpart and survive the submission.
func (s *Submission) Resolve(tree *models.ConfigTree) error {
	errs := &apperrors.SubmissionError{}
	live := s.LiveIDs()
	subpartOf := make(map[int64]int64)
	for _, e := range s.Classes {
		if e.Ref.IsPending() {
			subpartOf[e.Ref.Placeholder()] = e.SubpartID
		}
	}

	for _, e := range s.Classes {
		subpart, ok := tree.Subparts[e.SubpartID]
		if !ok {
			errs.Add(e.Index, "subpartIds", "subpart %d does not belong to configuration %d", e.SubpartID, tree.Config.ID)
			continue
		}
		if !e.Ref.IsPending() {
			c, ok := tree.Classes[e.Ref.ID()]
			if !ok {
				errs.Add(e.Index, "classIds", "class %d does not belong to configuration %d", e.Ref.ID(), tree.Config.ID)
				continue
			}
			if c.SubpartID != e.SubpartID {
				errs.Add(e.Index, "subpartIds", "class %d belongs to subpart %d, not %d", c.ID, c.SubpartID, e.SubpartID)
			}
		}
		if e.Parent == nil {
			continue
		}

		var parentSubpart int64
		if e.Parent.IsPending() {
			parentSubpart = subpartOf[e.Parent.Placeholder()]
		} else {
			pc, ok := tree.Classes[e.Parent.ID()]
			if !ok {
				errs.AddUnresolved(e.Index, "parentClassIds", "parent class %d does not exist", e.Parent.ID())
				continue
			}
			if !live[pc.ID] {
				errs.Add(e.Index, "parentClassIds", "parent class %d is removed by this submission", pc.ID)
				continue
			}
			parentSubpart = pc.SubpartID
		}
		if subpart.ParentID == nil || *subpart.ParentID != parentSubpart {
			errs.Add(e.Index, "parentClassIds", "parent %s is not in the parent subpart of subpart %d", e.Parent, subpart.ID)
		}
	}
	return errs.ErrOrNil()
}

// rowParser decodes the cells of one row, recording problems against it.
type rowParser struct {
	errs   *apperrors.SubmissionError
	index  int
	failed bool
}

func (p *rowParser) fail(field, format string, args ...interface{}) {
	p.failed = true
	p.errs.Add(p.index, field, format, args...)
}

func (p *rowParser) int64(field, raw string) int64 {
	p.failed = false
	v, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		p.fail(field, "%q is not a number", raw)
		return 0
	}
	return v
}

func (p *rowParser) optInt64(field, raw string) *int64 {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	v := p.int64(field, raw)
	if p.failed {
		return nil
	}
	return &v
}

func (p *rowParser) nonNegativeInt(field, raw string) int {
	v, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		p.fail(field, "%q is not a number", raw)
		return 0
	}
	if v < 0 {
		p.fail(field, "%d must not be negative", v)
		return 0
	}
	return v
}

func (p *rowParser) ratio(field, raw string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		p.fail(field, "%q is not a number", raw)
		return 1
	}
	if v < 0 {
		p.fail(field, "%v must not be negative", v)
		return 1
	}
	return v
}

func (p *rowParser) bool(field, raw string) bool {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "false", "0", "off", "no":
		return false
	case "true", "1", "on", "yes":
		return true
	}
	p.fail(field, "%q is not a boolean", raw)
	return false
}

func sortedFieldNames(m map[string][]string) []string {
	names := make([]string, 0, len(m))
	for k := range m {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}
