package models

// ClassEvent is a calendar event bound to a class; it follows the class's cancelled flag.
type ClassEvent struct {
	ID        int64  `json:"id"`
	ClassID   int64  `json:"classId"`
	Name      string `json:"name"`
	Cancelled bool   `json:"cancelled"`
}
