package models

// Right names a capability the permission oracle is asked about.
type Right string

const (
	RightMultipleClassSetup           Right = "MultipleClassSetup"
	RightMultipleClassSetupClass      Right = "MultipleClassSetupClass"
	RightMultipleClassSetupDepartment Right = "MultipleClassSetupDepartment"
	RightClassDelete                  Right = "ClassDelete"
	RightClassCancel                  Right = "ClassCancel"
)

// Entity is anything the permission oracle can be asked about.
type Entity interface {
	EntityType() string
	EntityID() int64
	// OwnerDepartmentID is the department whose managers normally act on the entity.
	OwnerDepartmentID() int64
	// ControllingDepartmentID is the department owning the surrounding offering.
	ControllingDepartmentID() int64
}

// Auditable is implemented by entities that can appear in the change log.
type Auditable interface {
	AuditType() string
	AuditID() int64
	AuditTitle() string
}

// ActorContext identifies who is acting and in which academic session.
type ActorContext struct {
	ManagerID      int64    `json:"managerId"`
	ExternalUserID string   `json:"externalUserId"`
	SessionID      int64    `json:"sessionId"`
	Roles          []string `json:"roles"`
	DepartmentIDs  []int64  `json:"departmentIds"`
}

// HasManager reports whether the actor maps to a timetabling manager.
func (a ActorContext) HasManager() bool {
	return a.ManagerID > 0
}

// ManagesDepartment reports whether the actor is a manager of department id.
func (a ActorContext) ManagesDepartment(id int64) bool {
	for _, d := range a.DepartmentIDs {
		if d == id {
			return true
		}
	}
	return false
}
