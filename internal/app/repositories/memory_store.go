package repositories

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/yigit/classsetup/internal/app/models"
	"github.com/yigit/classsetup/internal/pkg/apperrors"
)

// WriteStats counts the writes issued through one transaction.
type WriteStats struct {
	ConfigUpdates       int
	ClassInserts        int
	ClassUpdates        int
	ClassDeletes        int
	PreferenceReplaces  int
	DistributionDeletes int
	SectionUpdates      int
	EventUpdates        int
	ChangeLogInserts    int
}

// Total sums every counter.
func (w WriteStats) Total() int {
	return w.ConfigUpdates + w.ClassInserts + w.ClassUpdates + w.ClassDeletes + w.PreferenceReplaces +
		w.DistributionDeletes + w.SectionUpdates + w.EventUpdates + w.ChangeLogInserts
}

type memoryData struct {
	roomGroups    map[int64]int64 // session -> default room group
	departments   map[int64]*models.Department
	offerings     map[int64]*models.Offering
	configs       map[int64]*models.Configuration
	subparts      map[int64]*models.Subpart
	classes       map[int64]*models.Class
	distributions map[models.OwnerRef][]int64
	events        map[int64]*models.ClassEvent
	changeLog     []*models.ChangeLogEntry
	nextID        int64
}

func newMemoryData() *memoryData {
	return &memoryData{
		roomGroups:    make(map[int64]int64),
		departments:   make(map[int64]*models.Department),
		offerings:     make(map[int64]*models.Offering),
		configs:       make(map[int64]*models.Configuration),
		subparts:      make(map[int64]*models.Subpart),
		classes:       make(map[int64]*models.Class),
		distributions: make(map[models.OwnerRef][]int64),
		events:        make(map[int64]*models.ClassEvent),
		nextID:        1000,
	}
}

func (d *memoryData) clone() *memoryData {
	n := newMemoryData()
	n.nextID = d.nextID
	for k, v := range d.roomGroups {
		n.roomGroups[k] = v
	}
	for k, v := range d.departments {
		dd := *v
		n.departments[k] = &dd
	}
	for k, v := range d.offerings {
		o := *v
		n.offerings[k] = &o
	}
	for k, v := range d.configs {
		c := *v
		if v.InstructionalMethodID != nil {
			m := *v.InstructionalMethodID
			c.InstructionalMethodID = &m
		}
		n.configs[k] = &c
	}
	for k, v := range d.subparts {
		n.subparts[k] = v.Clone()
	}
	for k, v := range d.classes {
		n.classes[k] = v.Clone()
	}
	for k, v := range d.distributions {
		n.distributions[k] = append([]int64(nil), v...)
	}
	for k, v := range d.events {
		e := *v
		n.events[k] = &e
	}
	for _, e := range d.changeLog {
		ee := *e
		n.changeLog = append(n.changeLog, &ee)
	}
	return n
}

func (d *memoryData) allocID() int64 {
	d.nextID++
	return d.nextID
}

func (d *memoryData) tree(configID int64) (*models.ConfigTree, error) {
	cfg, ok := d.configs[configID]
	if !ok {
		return nil, apperrors.NewConfigurationNotFoundError(configID)
	}
	off, ok := d.offerings[cfg.OfferingID]
	if !ok {
		return nil, apperrors.NewResourceNotFoundError(fmt.Sprintf("offering %d not found", cfg.OfferingID))
	}
	offCopy := *off
	cfgCopy := *cfg
	cfgCopy.ControllingDeptID = off.ControllingDeptID
	cfgCopy.Title = off.CourseNameWithTitle() + " [" + cfg.Name + "]"
	offCopy.ConfigurationCount = 0
	for _, c := range d.configs {
		if c.OfferingID == off.ID {
			offCopy.ConfigurationCount++
		}
	}

	t := models.NewConfigTree(&offCopy, &cfgCopy)
	if rg, ok := d.roomGroups[off.SessionID]; ok {
		t.DefaultRoomGroupID = &rg
	}
	for _, s := range d.subparts {
		if s.ConfigurationID != configID {
			continue
		}
		sc := s.Clone()
		sc.ControllingDeptID = off.ControllingDeptID
		t.Subparts[sc.ID] = sc
	}
	for _, c := range d.classes {
		if _, ok := t.Subparts[c.SubpartID]; !ok {
			continue
		}
		cc := c.Clone()
		cc.ControllingDeptID = off.ControllingDeptID
		t.Classes[cc.ID] = cc
	}
	t.LinkSubparts()
	t.LinkClasses()

	addDept := func(id int64) {
		if dept, ok := d.departments[id]; ok {
			dd := *dept
			t.Departments[id] = &dd
		}
	}
	addDept(off.ControllingDeptID)
	for _, c := range t.Classes {
		addDept(c.ManagingDeptID)
	}
	return t, nil
}

// MemoryStore is a ClassSetupStore kept in process memory. Transactions work
// on a copy of the data that replaces the original on commit, and run one at a time.
type MemoryStore struct {
	mu   sync.Mutex
	data *memoryData

	statsMu   sync.Mutex
	lastStats WriteStats

	// FailChangeLog makes every change-log insert fail with this error.
	FailChangeLog error
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: newMemoryData()}
}

// LoadConfigurationTree implements ClassSetupReader.
func (m *MemoryStore) LoadConfigurationTree(ctx context.Context, configID int64) (*models.ConfigTree, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data.tree(configID)
}

// ListChangeLog implements ClassSetupReader.
func (m *MemoryStore) ListChangeLog(ctx context.Context, configID int64, limit int) ([]*models.ChangeLogEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.ChangeLogEntry
	for i := len(m.data.changeLog) - 1; i >= 0; i-- {
		e := m.data.changeLog[i]
		if e.ObjectID != configID {
			continue
		}
		ee := *e
		out = append(out, &ee)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

// WithTransaction implements ClassSetupStore.
func (m *MemoryStore) WithTransaction(ctx context.Context, fn TxFn) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	tx := &memoryTx{store: m, data: m.data.clone()}
	defer func() {
		m.statsMu.Lock()
		m.lastStats = tx.stats
		m.statsMu.Unlock()
	}()

	if err := ctx.Err(); err != nil {
		return err
	}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	m.data = tx.data
	return nil
}

// LastWrites returns the write counters of the most recent transaction, committed or not.
func (m *MemoryStore) LastWrites() WriteStats {
	m.statsMu.Lock()
	defer m.statsMu.Unlock()
	return m.lastStats
}

// Seeding helpers. They write directly and are meant for bootstrapping and tests.

// AddDepartment stores d.
func (m *MemoryStore) AddDepartment(d models.Department) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data.departments[d.ID] = &d
}

// SetDefaultRoomGroup configures the session's global default room group.
func (m *MemoryStore) SetDefaultRoomGroup(sessionID, roomGroupID int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data.roomGroups[sessionID] = roomGroupID
}

// AddOffering stores o.
func (m *MemoryStore) AddOffering(o models.Offering) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data.offerings[o.ID] = &o
}

// AddConfiguration stores c.
func (m *MemoryStore) AddConfiguration(c models.Configuration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data.configs[c.ID] = &c
}

// AddSubpart stores s with the given preferences.
func (m *MemoryStore) AddSubpart(s models.Subpart, prefs ...models.Preference) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s.Preferences = models.NewPreferenceSet(prefs...)
	m.data.subparts[s.ID] = &s
}

// AddClass stores c with the given preferences.
func (m *MemoryStore) AddClass(c models.Class, prefs ...models.Preference) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c.Preferences = models.NewPreferenceSet(prefs...)
	m.data.classes[c.ID] = &c
}

// AddDistribution makes owner a member of distribution preference distID.
func (m *MemoryStore) AddDistribution(owner models.OwnerRef, distID int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data.distributions[owner] = append(m.data.distributions[owner], distID)
}

// AddClassEvent stores e.
func (m *MemoryStore) AddClassEvent(e models.ClassEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data.events[e.ID] = &e
}

// Distributions returns the distribution memberships of owner.
func (m *MemoryStore) Distributions(owner models.OwnerRef) []int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]int64(nil), m.data.distributions[owner]...)
}

// ClassEvents returns the events bound to classID, ordered by id.
func (m *MemoryStore) ClassEvents(classID int64) []models.ClassEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.ClassEvent
	for _, e := range m.data.events {
		if e.ClassID == classID {
			out = append(out, *e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

type memoryTx struct {
	store *MemoryStore
	data  *memoryData
	stats WriteStats
}

func (t *memoryTx) LockConfigurationTree(ctx context.Context, configID int64) (*models.ConfigTree, error) {
	return t.data.tree(configID)
}

func (t *memoryTx) GetDepartment(ctx context.Context, id int64) (*models.Department, error) {
	d, ok := t.data.departments[id]
	if !ok {
		return nil, apperrors.NewResourceNotFoundError(fmt.Sprintf("department %d not found", id))
	}
	dd := *d
	return &dd, nil
}

func (t *memoryTx) UpdateConfiguration(ctx context.Context, cfg *models.Configuration) error {
	cur, ok := t.data.configs[cfg.ID]
	if !ok {
		return apperrors.NewConfigurationNotFoundError(cfg.ID)
	}
	cur.Limit = cfg.Limit
	cur.Unlimited = cfg.Unlimited
	cur.InstructionalMethodID = nil
	if cfg.InstructionalMethodID != nil {
		v := *cfg.InstructionalMethodID
		cur.InstructionalMethodID = &v
	}
	t.stats.ConfigUpdates++
	return nil
}

func (t *memoryTx) InsertClass(ctx context.Context, c *models.Class) (int64, error) {
	if _, ok := t.data.subparts[c.SubpartID]; !ok {
		return 0, apperrors.Persistence("insert class", fmt.Errorf("subpart %d does not exist", c.SubpartID))
	}
	if c.ParentID != nil {
		if _, ok := t.data.classes[*c.ParentID]; !ok {
			return 0, apperrors.Persistence("insert class", fmt.Errorf("parent class %d does not exist", *c.ParentID))
		}
	}
	stored := c.Clone()
	stored.ID = t.data.allocID()
	stored.ChildIDs = nil
	t.data.classes[stored.ID] = stored
	t.stats.ClassInserts++
	return stored.ID, nil
}

func (t *memoryTx) UpdateClass(ctx context.Context, c *models.Class) error {
	if _, ok := t.data.classes[c.ID]; !ok {
		return apperrors.Persistence("update class", fmt.Errorf("class %d does not exist", c.ID))
	}
	stored := c.Clone()
	stored.ChildIDs = nil
	t.data.classes[c.ID] = stored
	t.stats.ClassUpdates++
	return nil
}

func (t *memoryTx) DeleteClass(ctx context.Context, id int64) error {
	if _, ok := t.data.classes[id]; !ok {
		return apperrors.Persistence("delete class", fmt.Errorf("class %d does not exist", id))
	}
	for _, c := range t.data.classes {
		if c.ParentID != nil && *c.ParentID == id {
			return apperrors.Persistence("delete class", fmt.Errorf("class %d still has child class %d", id, c.ID))
		}
	}
	for eid, e := range t.data.events {
		if e.ClassID == id {
			delete(t.data.events, eid)
		}
	}
	delete(t.data.distributions, models.ClassOwner(id))
	delete(t.data.classes, id)
	t.stats.ClassDeletes++
	return nil
}

func (t *memoryTx) UpdateSectionNumbers(ctx context.Context, numbers map[int64]int) error {
	for id, n := range numbers {
		c, ok := t.data.classes[id]
		if !ok {
			return apperrors.Persistence("update section numbers", fmt.Errorf("class %d does not exist", id))
		}
		c.SectionNumber = n
	}
	if len(numbers) > 0 {
		t.stats.SectionUpdates++
	}
	return nil
}

func (t *memoryTx) ReplacePreferences(ctx context.Context, owner models.OwnerRef, prefs models.PreferenceSet) error {
	switch owner.Type {
	case models.OwnerSubpart:
		s, ok := t.data.subparts[owner.ID]
		if !ok {
			return apperrors.Persistence("replace preferences", fmt.Errorf("subpart %d does not exist", owner.ID))
		}
		s.Preferences = prefs.Clone()
	case models.OwnerClass:
		c, ok := t.data.classes[owner.ID]
		if !ok {
			return apperrors.Persistence("replace preferences", fmt.Errorf("class %d does not exist", owner.ID))
		}
		c.Preferences = prefs.Clone()
	default:
		return apperrors.Persistence("replace preferences", fmt.Errorf("unknown owner type %q", owner.Type))
	}
	t.stats.PreferenceReplaces++
	return nil
}

func (t *memoryTx) DeleteDistributionPreferences(ctx context.Context, owner models.OwnerRef) (int, error) {
	n := len(t.data.distributions[owner])
	delete(t.data.distributions, owner)
	if n > 0 {
		t.stats.DistributionDeletes++
	}
	return n, nil
}

func (t *memoryTx) SetClassEventsCancelled(ctx context.Context, classID int64, cancelled bool) error {
	for _, e := range t.data.events {
		if e.ClassID == classID {
			e.Cancelled = cancelled
		}
	}
	t.stats.EventUpdates++
	return nil
}

func (t *memoryTx) InsertChangeLog(ctx context.Context, entry *models.ChangeLogEntry) error {
	if t.store.FailChangeLog != nil {
		return apperrors.Persistence("insert change log", t.store.FailChangeLog)
	}
	e := *entry
	e.ID = t.data.allocID()
	entry.ID = e.ID
	t.data.changeLog = append(t.data.changeLog, &e)
	t.stats.ChangeLogInserts++
	return nil
}
