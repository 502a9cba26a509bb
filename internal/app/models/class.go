package models

import (
	"fmt"
	"time"
)

// Subpart is a node of the scheduling-subpart tree of a configuration.
type Subpart struct {
	ID                int64  `json:"id"`
	ConfigurationID   int64  `json:"configurationId"`
	ParentID          *int64 `json:"parentId,omitempty"`
	ItypeID           int    `json:"itypeId"`
	ItypeName         string `json:"itypeName"`
	Suffix            string `json:"suffix"`
	ControllingDeptID int64  `json:"controllingDeptId"`

	ChildIDs    []int64       `json:"childIds"`
	ClassIDs    []int64       `json:"classIds"`
	Preferences PreferenceSet `json:"-"`
}

func (s *Subpart) EntityType() string             { return "SchedulingSubpart" }
func (s *Subpart) EntityID() int64                { return s.ID }
func (s *Subpart) OwnerDepartmentID() int64       { return s.ControllingDeptID }
func (s *Subpart) ControllingDepartmentID() int64 { return s.ControllingDeptID }

// Class is a schedulable section owned by a subpart.
type Class struct {
	ID                          int64      `json:"id"`
	SubpartID                   int64      `json:"subpartId"`
	ParentID                    *int64     `json:"parentId,omitempty"`
	ExpectedCapacity            int        `json:"expectedCapacity"`
	MaxExpectedCapacity         int        `json:"maxExpectedCapacity"`
	NbrRooms                    int        `json:"nbrRooms"`
	RoomRatio                   float64    `json:"roomRatio"`
	DatePatternID               *int64     `json:"datePatternId,omitempty"`
	LMSID                       *int64     `json:"lmsId,omitempty"`
	Suffix                      *string    `json:"suffix,omitempty"`
	Cancelled                   bool       `json:"cancelled"`
	SnapshotLimit               *int       `json:"snapshotLimit,omitempty"`
	SnapshotLimitDate           *time.Time `json:"snapshotLimitDate,omitempty"`
	DisplayInstructor           bool       `json:"displayInstructor"`
	EnabledForStudentScheduling bool       `json:"enabledForStudentScheduling"`
	ManagingDeptID              int64      `json:"managingDeptId"`
	ControllingDeptID           int64      `json:"controllingDeptId"`
	SectionNumber               int        `json:"sectionNumber"`

	ChildIDs    []int64       `json:"childIds"`
	Preferences PreferenceSet `json:"-"`
}

func (c *Class) EntityType() string             { return "Class_" }
func (c *Class) EntityID() int64                { return c.ID }
func (c *Class) OwnerDepartmentID() int64       { return c.ManagingDeptID }
func (c *Class) ControllingDepartmentID() int64 { return c.ControllingDeptID }

func (c *Class) AuditType() string  { return "Class_" }
func (c *Class) AuditID() int64     { return c.ID }
func (c *Class) AuditTitle() string { return fmt.Sprintf("class %d", c.ID) }

// Clone returns a deep copy of the class.
func (c *Class) Clone() *Class {
	n := *c
	n.ParentID = cloneInt64Ptr(c.ParentID)
	n.DatePatternID = cloneInt64Ptr(c.DatePatternID)
	n.LMSID = cloneInt64Ptr(c.LMSID)
	if c.Suffix != nil {
		s := *c.Suffix
		n.Suffix = &s
	}
	if c.SnapshotLimit != nil {
		v := *c.SnapshotLimit
		n.SnapshotLimit = &v
	}
	if c.SnapshotLimitDate != nil {
		t := *c.SnapshotLimitDate
		n.SnapshotLimitDate = &t
	}
	n.ChildIDs = append([]int64(nil), c.ChildIDs...)
	n.Preferences = c.Preferences.Clone()
	return &n
}

// Clone returns a deep copy of the subpart.
func (s *Subpart) Clone() *Subpart {
	n := *s
	n.ParentID = cloneInt64Ptr(s.ParentID)
	n.ChildIDs = append([]int64(nil), s.ChildIDs...)
	n.ClassIDs = append([]int64(nil), s.ClassIDs...)
	n.Preferences = s.Preferences.Clone()
	return &n
}

func cloneInt64Ptr(p *int64) *int64 {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// OwnerType distinguishes preference owners.
type OwnerType string

const (
	OwnerSubpart OwnerType = "subpart"
	OwnerClass   OwnerType = "class"
)

// OwnerRef points at the subpart or class holding a preference set.
type OwnerRef struct {
	Type OwnerType `json:"type"`
	ID   int64     `json:"id"`
}

func SubpartOwner(id int64) OwnerRef { return OwnerRef{Type: OwnerSubpart, ID: id} }
func ClassOwner(id int64) OwnerRef   { return OwnerRef{Type: OwnerClass, ID: id} }
