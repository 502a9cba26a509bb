package dto

import "time"

// ClassSetupRequest is the flat, index-aligned class setup submission.
// Element i of every sequence describes the same class. A class id of -1 or
// lower is a placeholder for a class created by this request; parent ids may
// point at placeholders defined earlier in the same request. The external id,
// snapshot limit and LMS sequences may be shorter than the others.
type ClassSetupRequest struct {
	Unlimited             bool   `json:"unlimited"`
	Limit                 int    `json:"limit" validate:"gte=0"`
	InstructionalMethodID *int64 `json:"instructionalMethodId,omitempty" validate:"omitempty,gt=0"`

	ClassIDs                    []string `json:"classIds" validate:"required,min=1,dive,required,class_ref"`
	SubpartIDs                  []string `json:"subpartIds" validate:"required"`
	ParentClassIDs              []string `json:"parentClassIds" validate:"required,dive,optional_id"`
	MinClassLimits              []string `json:"minClassLimits" validate:"required"`
	MaxClassLimits              []string `json:"maxClassLimits" validate:"required"`
	RoomRatios                  []string `json:"roomRatios" validate:"required"`
	NumberOfRooms               []string `json:"numberOfRooms" validate:"required"`
	Departments                 []string `json:"departments" validate:"required"`
	DatePatterns                []string `json:"datePatterns" validate:"required"`
	Cancelled                   []string `json:"cancelled" validate:"required"`
	DisplayInstructors          []string `json:"displayInstructors,omitempty"`
	EnabledForStudentScheduling []string `json:"enabledForStudentScheduling,omitempty"`

	ExternalIDs    []string `json:"externalIds,omitempty"`
	SnapshotLimits []string `json:"snapshotLimits,omitempty"`
	LMS            []string `json:"lms,omitempty"`
}

// PreferenceResponse is one preference in the class setup view.
type PreferenceResponse struct {
	Kind         string   `json:"kind"`
	Level        string   `json:"level"`
	TargetID     int64    `json:"targetId"`
	PatternType  string   `json:"patternType,omitempty"`
	Grid         []string `json:"grid,omitempty"`
	DistanceFrom *int     `json:"distanceFrom,omitempty"`
}

// ClassResponse is a class row with its edit permissions.
type ClassResponse struct {
	ID                          int64                `json:"id"`
	SubpartID                   int64                `json:"subpartId"`
	ParentID                    *int64               `json:"parentId,omitempty"`
	SectionNumber               int                  `json:"sectionNumber"`
	ExpectedCapacity            int                  `json:"minClassLimit"`
	MaxExpectedCapacity         int                  `json:"maxClassLimit"`
	NbrRooms                    int                  `json:"numberOfRooms"`
	RoomRatio                   float64              `json:"roomRatio"`
	DatePatternID               *int64               `json:"datePatternId,omitempty"`
	LMSID                       *int64               `json:"lmsId,omitempty"`
	ExternalID                  *string              `json:"externalId,omitempty"`
	Cancelled                   bool                 `json:"cancelled"`
	SnapshotLimit               *int                 `json:"snapshotLimit,omitempty"`
	SnapshotLimitDate           *time.Time           `json:"snapshotLimitDate,omitempty"`
	DisplayInstructor           bool                 `json:"displayInstructor"`
	EnabledForStudentScheduling bool                 `json:"enabledForStudentScheduling"`
	ManagingDeptID              int64                `json:"managingDeptId"`
	ReadOnly                    bool                 `json:"readOnly"`
	CanDelete                   bool                 `json:"canDelete"`
	CanCancel                   bool                 `json:"canCancel"`
	Preferences                 []PreferenceResponse `json:"preferences"`
}

// SubpartResponse is a subpart node with its classes and child subparts.
type SubpartResponse struct {
	ID             int64                `json:"id"`
	ParentID       *int64               `json:"parentId,omitempty"`
	ItypeID        int                  `json:"itypeId"`
	Name           string               `json:"name"`
	ManagingDeptID int64                `json:"managingDeptId"`
	Preferences    []PreferenceResponse `json:"preferences"`
	Classes        []*ClassResponse     `json:"classes"`
	Children       []*SubpartResponse   `json:"children,omitempty"`
}

// ClassSetupResponse is the editable view of one configuration.
type ClassSetupResponse struct {
	OfferingID            int64              `json:"offeringId"`
	ConfigurationID       int64              `json:"configurationId"`
	CourseName            string             `json:"courseName"`
	ConfigurationName     string             `json:"configurationName"`
	Limit                 int                `json:"limit"`
	Unlimited             bool               `json:"unlimited"`
	UnlimitedReadOnly     bool               `json:"unlimitedReadOnly"`
	InstructionalMethodID *int64             `json:"instructionalMethodId,omitempty"`
	ControllingDeptID     int64              `json:"controllingDeptId"`
	Subparts              []*SubpartResponse `json:"subparts"`
}

// ClassSetupChangeSummary reports what a committed reconciliation did.
type ClassSetupChangeSummary struct {
	TxID            string `json:"txId"`
	Created         int    `json:"created"`
	Updated         int    `json:"updated"`
	Deleted         int    `json:"deleted"`
	SubpartsReowned int    `json:"subpartsReowned"`
}

// ClassSetupUpdateResponse is returned by a successful class setup update.
type ClassSetupUpdateResponse struct {
	Summary ClassSetupChangeSummary `json:"summary"`
	Setup   *ClassSetupResponse     `json:"setup"`
}

// ChangeLogEntryResponse is one change-log row.
type ChangeLogEntryResponse struct {
	ID          int64     `json:"id"`
	Timestamp   time.Time `json:"timestamp"`
	ManagerID   int64     `json:"managerId"`
	ObjectType  string    `json:"objectType"`
	ObjectID    int64     `json:"objectId"`
	ObjectTitle string    `json:"objectTitle"`
	Source      string    `json:"source"`
	Operation   string    `json:"operation"`
}
