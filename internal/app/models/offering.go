package models

import "fmt"

// Offering is a course offering composed of one or more configurations.
type Offering struct {
	ID                 int64  `json:"id"`
	SessionID          int64  `json:"sessionId"`
	SubjectAreaID      int64  `json:"subjectAreaId"`
	SubjectAreaAbbv    string `json:"subjectAreaAbbv"`
	CourseNumber       string `json:"courseNumber"`
	Title              string `json:"title"`
	ControllingDeptID  int64  `json:"controllingDeptId"`
	ConfigurationCount int    `json:"configurationCount"`
}

// CourseName returns e.g. "MATH 101".
func (o *Offering) CourseName() string {
	return fmt.Sprintf("%s %s", o.SubjectAreaAbbv, o.CourseNumber)
}

// CourseNameWithTitle returns e.g. "MATH 101 - Calculus".
func (o *Offering) CourseNameWithTitle() string {
	if o.Title == "" {
		return o.CourseName()
	}
	return fmt.Sprintf("%s - %s", o.CourseName(), o.Title)
}

// Configuration is an enrollment-limit grouping of subparts under one instructional method.
type Configuration struct {
	ID                    int64  `json:"id"`
	OfferingID            int64  `json:"offeringId"`
	Name                  string `json:"name"`
	Limit                 int    `json:"limit"`
	Unlimited             bool   `json:"unlimited"`
	InstructionalMethodID *int64 `json:"instructionalMethodId,omitempty"`

	// Set by the loader; not persisted with the configuration row.
	ControllingDeptID int64  `json:"controllingDeptId"`
	Title             string `json:"title"`
}

func (c *Configuration) EntityType() string             { return "InstrOfferingConfig" }
func (c *Configuration) EntityID() int64                { return c.ID }
func (c *Configuration) OwnerDepartmentID() int64       { return c.ControllingDeptID }
func (c *Configuration) ControllingDepartmentID() int64 { return c.ControllingDeptID }

func (c *Configuration) AuditType() string  { return "InstrOfferingConfig" }
func (c *Configuration) AuditID() int64     { return c.ID }
func (c *Configuration) AuditTitle() string { return c.Title }
