package models

import (
	"fmt"
	"strings"
)

// PreferenceLevel is the strength of a scheduling preference.
type PreferenceLevel string

const (
	LevelRequired            PreferenceLevel = "R"
	LevelStronglyPreferred   PreferenceLevel = "-2"
	LevelPreferred           PreferenceLevel = "-1"
	LevelNeutral             PreferenceLevel = "0"
	LevelDiscouraged         PreferenceLevel = "1"
	LevelStronglyDiscouraged PreferenceLevel = "2"
	LevelProhibited          PreferenceLevel = "P"
)

// Valid reports whether l is one of the known levels.
func (l PreferenceLevel) Valid() bool {
	switch l {
	case LevelRequired, LevelStronglyPreferred, LevelPreferred, LevelNeutral,
		LevelDiscouraged, LevelStronglyDiscouraged, LevelProhibited:
		return true
	}
	return false
}

// IsHard reports whether the level is required or prohibited.
func (l PreferenceLevel) IsHard() bool {
	return l == LevelRequired || l == LevelProhibited
}

// Strength is the absolute weight of the level: 3 for hard levels, 0 for neutral.
func (l PreferenceLevel) Strength() int {
	switch l {
	case LevelRequired, LevelProhibited:
		return 3
	case LevelStronglyPreferred, LevelStronglyDiscouraged:
		return 2
	case LevelPreferred, LevelDiscouraged:
		return 1
	}
	return 0
}

// Weaken downgrades hard levels to the next weaker level in the same direction.
func (l PreferenceLevel) Weaken() PreferenceLevel {
	switch l {
	case LevelRequired:
		return LevelStronglyPreferred
	case LevelProhibited:
		return LevelStronglyDiscouraged
	}
	return l
}

// PreferenceKind is the variant of a preference.
type PreferenceKind string

const (
	KindTime        PreferenceKind = "time"
	KindRoom        PreferenceKind = "room"
	KindBuilding    PreferenceKind = "building"
	KindRoomFeature PreferenceKind = "room_feature"
	KindRoomGroup   PreferenceKind = "room_group"
)

// TimePatternType classifies the time pattern a time preference points at.
type TimePatternType string

const (
	TimePatternStandard  TimePatternType = "standard"
	TimePatternEvening   TimePatternType = "evening"
	TimePatternExtended  TimePatternType = "extended"
	TimePatternExactTime TimePatternType = "exact"
)

// Preference is one scheduling constraint attached to a subpart or a class.
// TargetID points at the time pattern, room, building, room feature or room group.
type Preference struct {
	Kind     PreferenceKind  `json:"kind"`
	Level    PreferenceLevel `json:"level"`
	TargetID int64           `json:"targetId"`

	// Time preferences only: the pattern type and one level per pattern slot.
	PatternType TimePatternType   `json:"patternType,omitempty"`
	Grid        []PreferenceLevel `json:"grid,omitempty"`

	// Building preferences only.
	DistanceFrom *int `json:"distanceFrom,omitempty"`
}

// Key identifies the preference target within its owner.
func (p Preference) Key() string {
	return fmt.Sprintf("%s:%d", p.Kind, p.TargetID)
}

// Clone returns a deep copy of the preference.
func (p Preference) Clone() Preference {
	c := p
	if p.Grid != nil {
		c.Grid = append([]PreferenceLevel(nil), p.Grid...)
	}
	if p.DistanceFrom != nil {
		d := *p.DistanceFrom
		c.DistanceFrom = &d
	}
	return c
}

// WeakenHard returns a copy whose hard levels, including every grid slot, are weakened.
func (p Preference) WeakenHard() Preference {
	c := p.Clone()
	c.Level = c.Level.Weaken()
	for i, l := range c.Grid {
		c.Grid[i] = l.Weaken()
	}
	return c
}

// GridString encodes the grid for storage, e.g. "R,0,-1,P".
func (p Preference) GridString() string {
	parts := make([]string, len(p.Grid))
	for i, l := range p.Grid {
		parts[i] = string(l)
	}
	return strings.Join(parts, ",")
}

// ParseGrid decodes a grid produced by GridString.
func ParseGrid(s string) ([]PreferenceLevel, error) {
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	grid := make([]PreferenceLevel, len(parts))
	for i, part := range parts {
		l := PreferenceLevel(strings.TrimSpace(part))
		if !l.Valid() {
			return nil, fmt.Errorf("invalid preference level %q at slot %d", part, i)
		}
		grid[i] = l
	}
	return grid, nil
}

// PreferenceSet is an ordered collection of preferences with at most one
// preference per (kind, target).
type PreferenceSet struct {
	items []Preference
}

// NewPreferenceSet builds a set, silently dropping duplicates.
func NewPreferenceSet(prefs ...Preference) PreferenceSet {
	var s PreferenceSet
	for _, p := range prefs {
		s.Add(p)
	}
	return s
}

// Add appends p unless a preference of the same kind already targets the same object.
func (s *PreferenceSet) Add(p Preference) bool {
	if s.Has(p.Kind, p.TargetID) {
		return false
	}
	s.items = append(s.items, p)
	return true
}

// Has reports whether the set holds a preference of kind targeting targetID.
func (s PreferenceSet) Has(kind PreferenceKind, targetID int64) bool {
	for _, p := range s.items {
		if p.Kind == kind && p.TargetID == targetID {
			return true
		}
	}
	return false
}

// OfKind returns the preferences of the given kind, in set order.
func (s PreferenceSet) OfKind(kind PreferenceKind) []Preference {
	var out []Preference
	for _, p := range s.items {
		if p.Kind == kind {
			out = append(out, p)
		}
	}
	return out
}

// Items returns the preferences in set order. The slice must not be modified.
func (s PreferenceSet) Items() []Preference {
	return s.items
}

// Len returns the number of preferences.
func (s PreferenceSet) Len() int {
	return len(s.items)
}

// Clone returns a deep copy.
func (s PreferenceSet) Clone() PreferenceSet {
	var c PreferenceSet
	for _, p := range s.items {
		c.items = append(c.items, p.Clone())
	}
	return c
}

// Clear removes every preference.
func (s *PreferenceSet) Clear() {
	s.items = nil
}

// Equal reports whether both sets hold the same preferences in the same order.
func (s PreferenceSet) Equal(o PreferenceSet) bool {
	if len(s.items) != len(o.items) {
		return false
	}
	for i := range s.items {
		a, b := s.items[i], o.items[i]
		if a.Kind != b.Kind || a.Level != b.Level || a.TargetID != b.TargetID ||
			a.PatternType != b.PatternType || a.GridString() != b.GridString() {
			return false
		}
		if (a.DistanceFrom == nil) != (b.DistanceFrom == nil) ||
			(a.DistanceFrom != nil && *a.DistanceFrom != *b.DistanceFrom) {
			return false
		}
	}
	return true
}
