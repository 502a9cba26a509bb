package models

import "time"

// ChangeSource names the screen or process a change came from.
type ChangeSource string

// ChangeOperation names what was done.
type ChangeOperation string

const (
	SourceClassSetup ChangeSource = "CLASS_SETUP"

	OperationCreate ChangeOperation = "CREATE"
	OperationUpdate ChangeOperation = "UPDATE"
	OperationDelete ChangeOperation = "DELETE"
)

// MaxChangeTitleLength bounds ChangeLogEntry.ObjectTitle.
const MaxChangeTitleLength = 255

// ChangeLogEntry is an immutable audit record of one committed operation.
type ChangeLogEntry struct {
	ID            int64           `json:"id"`
	Timestamp     time.Time       `json:"timestamp"`
	ManagerID     int64           `json:"managerId"`
	SessionID     int64           `json:"sessionId"`
	ObjectType    string          `json:"objectType"`
	ObjectID      int64           `json:"objectId"`
	ObjectTitle   string          `json:"objectTitle"`
	SubjectAreaID *int64          `json:"subjectAreaId,omitempty"`
	DepartmentID  *int64          `json:"departmentId,omitempty"`
	Source        ChangeSource    `json:"source"`
	Operation     ChangeOperation `json:"operation"`
}
