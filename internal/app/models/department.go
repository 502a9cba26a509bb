package models

// Department represents an academic or external scheduling department
type Department struct {
	ID                int64  `json:"id"`
	SessionID         int64  `json:"sessionId"`
	Code              string `json:"code"`
	Name              string `json:"name"`
	ExternalManager   bool   `json:"externalManager"`
	AllowRequiredTime bool   `json:"allowRequiredTime"`
}

// ShouldWeakenTimePreferences decides whether hard time preferences are softened
// when scheduling ownership moves to newManager under the given controlling department.
// Only external managers without required-time rights (on either side) get weakened copies.
func ShouldWeakenTimePreferences(newManager, controlling *Department) bool {
	if newManager == nil || !newManager.ExternalManager {
		return false
	}
	if newManager.AllowRequiredTime {
		return false
	}
	if controlling != nil && controlling.AllowRequiredTime {
		return false
	}
	return true
}
