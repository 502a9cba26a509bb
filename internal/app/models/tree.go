package models

import "sort"

// ConfigTree is the flat arena holding one configuration with its subparts,
// classes and the departments they reference. Parent/child links are ids.
type ConfigTree struct {
	Offering           *Offering             `json:"offering"`
	Config             *Configuration        `json:"configuration"`
	Subparts           map[int64]*Subpart    `json:"subparts"`
	Classes            map[int64]*Class      `json:"classes"`
	Departments        map[int64]*Department `json:"departments"`
	DefaultRoomGroupID *int64                `json:"defaultRoomGroupId,omitempty"`
}

// NewConfigTree creates an empty arena for the given offering and configuration.
func NewConfigTree(offering *Offering, config *Configuration) *ConfigTree {
	return &ConfigTree{
		Offering:    offering,
		Config:      config,
		Subparts:    make(map[int64]*Subpart),
		Classes:     make(map[int64]*Class),
		Departments: make(map[int64]*Department),
	}
}

// ControllingDepartment returns the department owning the configuration.
func (t *ConfigTree) ControllingDepartment() *Department {
	return t.Departments[t.Config.ControllingDeptID]
}

// AddSubpart registers a subpart and links it under its parent subpart.
func (t *ConfigTree) AddSubpart(s *Subpart) {
	t.Subparts[s.ID] = s
	if s.ParentID != nil {
		if parent, ok := t.Subparts[*s.ParentID]; ok && !containsID(parent.ChildIDs, s.ID) {
			parent.ChildIDs = append(parent.ChildIDs, s.ID)
		}
	}
}

// LinkSubparts rebuilds subpart child lists; used after bulk loading in arbitrary order.
func (t *ConfigTree) LinkSubparts() {
	for _, s := range t.Subparts {
		s.ChildIDs = nil
	}
	for _, s := range t.Subparts {
		if s.ParentID == nil {
			continue
		}
		if parent, ok := t.Subparts[*s.ParentID]; ok {
			parent.ChildIDs = append(parent.ChildIDs, s.ID)
		}
	}
}

// AttachClass registers c and links it into its subpart and parent class.
func (t *ConfigTree) AttachClass(c *Class) {
	t.Classes[c.ID] = c
	if s, ok := t.Subparts[c.SubpartID]; ok && !containsID(s.ClassIDs, c.ID) {
		s.ClassIDs = append(s.ClassIDs, c.ID)
	}
	if c.ParentID != nil {
		if p, ok := t.Classes[*c.ParentID]; ok && !containsID(p.ChildIDs, c.ID) {
			p.ChildIDs = append(p.ChildIDs, c.ID)
		}
	}
}

// LinkClasses rebuilds class child lists and subpart class lists.
func (t *ConfigTree) LinkClasses() {
	for _, s := range t.Subparts {
		s.ClassIDs = nil
	}
	for _, c := range t.Classes {
		c.ChildIDs = nil
	}
	for _, id := range sortedKeys(t.Classes) {
		c := t.Classes[id]
		if s, ok := t.Subparts[c.SubpartID]; ok {
			s.ClassIDs = append(s.ClassIDs, c.ID)
		}
		if c.ParentID != nil {
			if p, ok := t.Classes[*c.ParentID]; ok {
				p.ChildIDs = append(p.ChildIDs, c.ID)
			}
		}
	}
}

// DetachClass unlinks the class from its parent and subpart and drops it from the arena.
func (t *ConfigTree) DetachClass(id int64) {
	c, ok := t.Classes[id]
	if !ok {
		return
	}
	if c.ParentID != nil {
		if p, ok := t.Classes[*c.ParentID]; ok {
			p.ChildIDs = removeID(p.ChildIDs, id)
		}
	}
	if s, ok := t.Subparts[c.SubpartID]; ok {
		s.ClassIDs = removeID(s.ClassIDs, id)
	}
	delete(t.Classes, id)
}

// Reparent moves the class under newParent (nil for a root class).
func (t *ConfigTree) Reparent(id int64, newParent *int64) {
	c, ok := t.Classes[id]
	if !ok {
		return
	}
	if c.ParentID != nil {
		if p, ok := t.Classes[*c.ParentID]; ok {
			p.ChildIDs = removeID(p.ChildIDs, id)
		}
	}
	c.ParentID = cloneInt64Ptr(newParent)
	if newParent != nil {
		if p, ok := t.Classes[*newParent]; ok && !containsID(p.ChildIDs, id) {
			p.ChildIDs = append(p.ChildIDs, id)
		}
	}
}

// SubpartManagingDeptID derives the subpart's managing department: the common
// managing department of all its classes, otherwise its controlling department.
func (t *ConfigTree) SubpartManagingDeptID(subpartID int64) int64 {
	s, ok := t.Subparts[subpartID]
	if !ok {
		return 0
	}
	var dept int64
	for _, id := range s.ClassIDs {
		c, ok := t.Classes[id]
		if !ok {
			continue
		}
		if dept == 0 {
			dept = c.ManagingDeptID
		} else if dept != c.ManagingDeptID {
			return s.ControllingDeptID
		}
	}
	if dept == 0 {
		return s.ControllingDeptID
	}
	return dept
}

// ManagingDeptSnapshot captures the derived managing department of every subpart.
func (t *ConfigTree) ManagingDeptSnapshot() map[int64]int64 {
	snap := make(map[int64]int64, len(t.Subparts))
	for id := range t.Subparts {
		snap[id] = t.SubpartManagingDeptID(id)
	}
	return snap
}

// SortedSubparts returns every subpart, parents before children and siblings by itype then id.
func (t *ConfigTree) SortedSubparts() []*Subpart {
	out := make([]*Subpart, 0, len(t.Subparts))
	for _, s := range t.Subparts {
		out = append(out, s)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return t.CompareSubparts(out[i], out[j]) < 0
	})
	return out
}

// RootSubparts returns subparts without a parent subpart in comparator order.
func (t *ConfigTree) RootSubparts() []*Subpart {
	var roots []*Subpart
	for _, s := range t.SortedSubparts() {
		if s.ParentID == nil {
			roots = append(roots, s)
		}
	}
	return roots
}

// CompareSubparts orders subparts along their ancestor paths.
func (t *ConfigTree) CompareSubparts(a, b *Subpart) int {
	pa, pb := t.subpartPath(a), t.subpartPath(b)
	for i := 0; i < len(pa) && i < len(pb); i++ {
		if pa[i].ID == pb[i].ID {
			continue
		}
		if pa[i].ItypeID != pb[i].ItypeID {
			return pa[i].ItypeID - pb[i].ItypeID
		}
		return compareInt64(pa[i].ID, pb[i].ID)
	}
	return len(pa) - len(pb)
}

func (t *ConfigTree) subpartPath(s *Subpart) []*Subpart {
	var path []*Subpart
	seen := make(map[int64]bool)
	for cur := s; cur != nil && !seen[cur.ID]; {
		seen[cur.ID] = true
		path = append([]*Subpart{cur}, path...)
		if cur.ParentID == nil {
			break
		}
		cur = t.Subparts[*cur.ParentID]
	}
	return path
}

// CompareClasses orders classes by subpart, then section number, then id.
// Unnumbered classes sort after numbered ones.
func (t *ConfigTree) CompareClasses(a, b *Class) int {
	if a.SubpartID != b.SubpartID {
		sa, sb := t.Subparts[a.SubpartID], t.Subparts[b.SubpartID]
		if sa != nil && sb != nil {
			if cmp := t.CompareSubparts(sa, sb); cmp != 0 {
				return cmp
			}
		}
		return compareInt64(a.SubpartID, b.SubpartID)
	}
	switch {
	case a.SectionNumber > 0 && b.SectionNumber > 0:
		if a.SectionNumber != b.SectionNumber {
			return a.SectionNumber - b.SectionNumber
		}
	case a.SectionNumber > 0:
		return -1
	case b.SectionNumber > 0:
		return 1
	}
	return compareInt64(a.ID, b.ID)
}

// SortedClasses resolves ids to classes in comparator order, skipping unknown ids.
func (t *ConfigTree) SortedClasses(ids []int64) []*Class {
	out := make([]*Class, 0, len(ids))
	for _, id := range ids {
		if c, ok := t.Classes[id]; ok {
			out = append(out, c)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return t.CompareClasses(out[i], out[j]) < 0
	})
	return out
}

// BuildClassList lists every class in pre-order, entering only through root
// subparts; child classes are reached through their parent class. Classes
// unreachable that way are appended last, still parents before children.
func (t *ConfigTree) BuildClassList() []*Class {
	var list []*Class
	seen := make(map[int64]bool, len(t.Classes))
	var walk func(ids []int64)
	walk = func(ids []int64) {
		for _, c := range t.SortedClasses(ids) {
			if seen[c.ID] {
				continue
			}
			seen[c.ID] = true
			list = append(list, c)
			walk(c.ChildIDs)
		}
	}
	for _, s := range t.RootSubparts() {
		walk(s.ClassIDs)
	}
	if len(list) < len(t.Classes) {
		var rest []int64
		for id, c := range t.Classes {
			if seen[id] {
				continue
			}
			if c.ParentID != nil {
				if _, ok := t.Classes[*c.ParentID]; ok && !seen[*c.ParentID] {
					continue
				}
			}
			rest = append(rest, id)
		}
		walk(rest)
	}
	return list
}

// Clone returns a deep copy of the arena.
func (t *ConfigTree) Clone() *ConfigTree {
	off := *t.Offering
	cfg := *t.Config
	cfg.InstructionalMethodID = cloneInt64Ptr(t.Config.InstructionalMethodID)
	n := NewConfigTree(&off, &cfg)
	n.DefaultRoomGroupID = cloneInt64Ptr(t.DefaultRoomGroupID)
	for id, s := range t.Subparts {
		n.Subparts[id] = s.Clone()
	}
	for id, c := range t.Classes {
		n.Classes[id] = c.Clone()
	}
	for id, d := range t.Departments {
		dd := *d
		n.Departments[id] = &dd
	}
	return n
}

func sortedKeys[V any](m map[int64]V) []int64 {
	keys := make([]int64, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

func containsID(ids []int64, id int64) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

func removeID(ids []int64, id int64) []int64 {
	out := ids[:0]
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}

func compareInt64(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}
