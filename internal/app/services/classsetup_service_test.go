package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"
	"github.com/yigit/classsetup/internal/app/models"
	"github.com/yigit/classsetup/internal/app/models/dto"
	"github.com/yigit/classsetup/internal/app/repositories"
	"github.com/yigit/classsetup/internal/config"
	"github.com/yigit/classsetup/internal/pkg/apperrors"
	"github.com/yigit/classsetup/internal/pkg/dberrors"
)

const (
	testSession     int64 = 1
	testMath        int64 = 10
	testExternal    int64 = 20
	testOffering    int64 = 100
	testConfig      int64 = 200
	testLecture     int64 = 300
	testRecitation  int64 = 301
	testLec1        int64 = 400
	testRec1        int64 = 401
	testRec2        int64 = 402
	testRoomGroup   int64 = 501
	testTimePattern int64 = 900
	testExactTime   int64 = 901
)

var testNow = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

type allowAll struct{}

func (allowAll) CanActOn(models.ActorContext, models.Entity, models.Right) bool { return true }

type denyRight models.Right

func (d denyRight) CanActOn(_ models.ActorContext, _ models.Entity, right models.Right) bool {
	return right != models.Right(d)
}

type stubValidation struct {
	verdict Verdict
	err     error
	calls   int
}

func (s *stubValidation) Validate(context.Context, *models.Offering, TransactionSummary) (Verdict, error) {
	s.calls++
	return s.verdict, s.err
}

type recordingPublisher struct {
	published []TransactionSummary
}

func (p *recordingPublisher) PublishOfferingChange(offeringID int64, summary TransactionSummary) {
	p.published = append(p.published, summary)
}

type failingChangeHook struct{ calls int }

func (h *failingChangeHook) OnChanged(context.Context, *models.Offering, TransactionSummary) error {
	h.calls++
	return errors.New("endpoint unavailable")
}

func testActor() models.ActorContext {
	return models.ActorContext{ManagerID: 1, SessionID: testSession, Roles: []string{"admin"}}
}

// newTestStore seeds MATH 101 with a lecture subpart (one class) and a
// recitation subpart below it (two classes, both children of the lecture).
func newTestStore() *repositories.MemoryStore {
	store := repositories.NewMemoryStore()
	store.AddDepartment(models.Department{ID: testMath, SessionID: testSession, Code: "MATH", Name: "Mathematics"})
	store.AddDepartment(models.Department{ID: testExternal, SessionID: testSession, Code: "LLR", Name: "Large Lecture Rooms", ExternalManager: true})
	store.AddDepartment(models.Department{ID: 30, SessionID: 2, Code: "OLD", Name: "Other Session"})
	store.SetDefaultRoomGroup(testSession, testRoomGroup)
	store.AddOffering(models.Offering{ID: testOffering, SessionID: testSession, SubjectAreaID: 7, SubjectAreaAbbv: "MATH",
		CourseNumber: "101", Title: "Calculus I", ControllingDeptID: testMath})
	store.AddConfiguration(models.Configuration{ID: testConfig, OfferingID: testOffering, Name: "1", Limit: 60})

	lecture := int64(testLecture)
	store.AddSubpart(models.Subpart{ID: testLecture, ConfigurationID: testConfig, ItypeID: 10, ItypeName: "Lec"},
		models.Preference{Kind: models.KindTime, Level: models.LevelRequired, TargetID: testTimePattern,
			PatternType: models.TimePatternStandard, Grid: []models.PreferenceLevel{models.LevelRequired, models.LevelNeutral, models.LevelProhibited}},
		models.Preference{Kind: models.KindTime, Level: models.LevelRequired, TargetID: testExactTime, PatternType: models.TimePatternExactTime},
		models.Preference{Kind: models.KindRoom, Level: models.LevelPreferred, TargetID: 50},
	)
	store.AddSubpart(models.Subpart{ID: testRecitation, ConfigurationID: testConfig, ParentID: &lecture, ItypeID: 30, ItypeName: "Rec"})

	store.AddClass(newTestClass(testLec1, testLecture, nil, 60, 1))
	parent := int64(testLec1)
	store.AddClass(newTestClass(testRec1, testRecitation, &parent, 30, 1))
	store.AddClass(newTestClass(testRec2, testRecitation, &parent, 30, 2))

	store.AddClassEvent(models.ClassEvent{ID: 700, ClassID: testRec1, Name: "MATH 101 Rec 1"})
	store.AddDistribution(models.ClassOwner(testLec1), 800)
	store.AddDistribution(models.SubpartOwner(testLecture), 801)
	return store
}

func newTestClass(id, subpart int64, parent *int64, capacity, section int) models.Class {
	var p *int64
	if parent != nil {
		v := *parent
		p = &v
	}
	return models.Class{
		ID: id, SubpartID: subpart, ParentID: p,
		ExpectedCapacity: capacity, MaxExpectedCapacity: capacity, NbrRooms: 1, RoomRatio: 1,
		DisplayInstructor: true, EnabledForStudentScheduling: true,
		ManagingDeptID: testMath, SectionNumber: section,
	}
}

// currentRows describes the seeded classes unchanged.
func currentRows() []row {
	return []row{
		{id: "400", subpart: "300", min: "60", max: "60", rooms: "1", ratio: "1", dept: "10", cancelled: "false"},
		{id: "401", subpart: "301", parent: "400", min: "30", max: "30", rooms: "1", ratio: "1", dept: "10", cancelled: "false"},
		{id: "402", subpart: "301", parent: "400", min: "30", max: "30", rooms: "1", ratio: "1", dept: "10", cancelled: "false"},
	}
}

func newTestService(store *repositories.MemoryStore, authz Authorizer, opts ...ClassSetupOption) *ClassSetupService {
	opts = append([]ClassSetupOption{WithClock(func() time.Time { return testNow })}, opts...)
	return NewClassSetupService(store, authz, config.ClassSetupConfig{ChangeLogLimit: 20}, opts...)
}

func update(t *testing.T, svc *ClassSetupService, req *dto.ClassSetupRequest) (*ReconcileResult, error) {
	t.Helper()
	return svc.UpdateClassSetup(context.Background(), testActor(), testConfig, req)
}

func loadTree(t *testing.T, store *repositories.MemoryStore) *models.ConfigTree {
	t.Helper()
	tree, err := store.LoadConfigurationTree(context.Background(), testConfig)
	require.NoError(t, err)
	return tree
}

func TestUpdateClassSetup_NoChangesWritesOnlyTheChangeLog(t *testing.T) {
	store := newTestStore()
	svc := newTestService(store, allowAll{})

	result, err := update(t, svc, buildRequest(60, currentRows()...))
	require.NoError(t, err)
	require.Empty(t, result.Summary.CreatedIDs)
	require.Empty(t, result.Summary.UpdatedIDs)
	require.Empty(t, result.Summary.DeletedIDs)
	require.Empty(t, result.Summary.ReownedSubparts)
	require.False(t, result.Summary.ConfigChanged)
	require.Equal(t, repositories.WriteStats{ChangeLogInserts: 1}, store.LastWrites())

	entries, err := store.ListChangeLog(context.Background(), testConfig, 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	entry := entries[0]
	require.Equal(t, "InstrOfferingConfig", entry.ObjectType)
	require.Equal(t, testConfig, entry.ObjectID)
	require.Equal(t, "MATH 101 - Calculus I [1]", entry.ObjectTitle)
	require.Equal(t, models.OperationUpdate, entry.Operation)
	require.Equal(t, models.SourceClassSetup, entry.Source)
	require.Equal(t, testNow, entry.Timestamp)
	require.Equal(t, testMath, *entry.DepartmentID)
	require.Equal(t, int64(7), *entry.SubjectAreaID)
}

func TestUpdateClassSetup_CreatesAndDeletes(t *testing.T) {
	store := newTestStore()
	publisher := &recordingPublisher{}
	svc := newTestService(store, allowAll{}, WithChangePublisher(publisher))

	rows := currentRows()[:2]
	rows = append(rows,
		row{id: "-1", subpart: "300", min: "40", max: "40", rooms: "1", ratio: "1", dept: "-1", cancelled: "false"},
		row{id: "-2", subpart: "301", parent: "-1", min: "20", max: "25", rooms: "1", ratio: "1.2", dept: "-1", cancelled: "false"},
	)
	result, err := update(t, svc, buildRequest(60, rows...))
	require.NoError(t, err)
	require.Len(t, result.Summary.CreatedIDs, 2)
	require.Equal(t, []int64{testRec2}, result.Summary.DeletedIDs)
	require.Empty(t, result.Summary.UpdatedIDs)

	tree := loadTree(t, store)
	require.Len(t, tree.Classes, 4)
	require.NotContains(t, tree.Classes, testRec2)

	newLecture := tree.Classes[result.Summary.CreatedIDs[0]]
	newRecitation := tree.Classes[result.Summary.CreatedIDs[1]]
	require.Equal(t, testLecture, newLecture.SubpartID)
	require.Nil(t, newLecture.ParentID)
	require.Equal(t, 2, newLecture.SectionNumber)
	require.Equal(t, testMath, newLecture.ManagingDeptID)
	require.True(t, newLecture.DisplayInstructor)
	require.True(t, newLecture.EnabledForStudentScheduling)
	require.Equal(t, testNow, *newLecture.SnapshotLimitDate)

	require.Equal(t, newLecture.ID, *newRecitation.ParentID)
	require.Equal(t, 25, newRecitation.MaxExpectedCapacity)
	require.Equal(t, 1.2, newRecitation.RoomRatio)
	require.Equal(t, 2, newRecitation.SectionNumber)
	require.Equal(t, 1, tree.Classes[testRec1].SectionNumber)

	require.Len(t, publisher.published, 1)
	require.Equal(t, testOffering, publisher.published[0].OfferingID)
	require.Equal(t, result.Summary.CreatedIDs, publisher.published[0].CreatedIDs)

	require.Len(t, result.View.Tree.Classes, 4)
	require.Equal(t, 2, result.View.Tree.Classes[newRecitation.ID].SectionNumber)
}

func TestUpdateClassSetup_ValidationRejectRollsBack(t *testing.T) {
	store := newTestStore()
	hook := &stubValidation{verdict: Reject("no rooms left")}
	publisher := &recordingPublisher{}
	svc := newTestService(store, allowAll{}, WithValidationHook(hook), WithChangePublisher(publisher))

	rows := currentRows()[:2]
	rows = append(rows, row{id: "-1", subpart: "301", parent: "400", min: "30", max: "30", rooms: "1", ratio: "1", dept: "-1", cancelled: "false"})
	req := buildRequest(80, rows...)

	result, err := update(t, svc, req)
	require.Error(t, err)
	require.Nil(t, result)
	require.True(t, errors.Is(err, apperrors.ErrValidationRejected))
	require.Contains(t, err.Error(), "no rooms left")
	require.Equal(t, 1, hook.calls)
	require.Empty(t, publisher.published)

	tree := loadTree(t, store)
	require.Equal(t, 60, tree.Config.Limit)
	require.Len(t, tree.Classes, 3)
	require.Contains(t, tree.Classes, testRec2)

	entries, err := store.ListChangeLog(context.Background(), testConfig, 0)
	require.NoError(t, err)
	require.Empty(t, entries)
}

func TestUpdateClassSetup_ValidationHookError(t *testing.T) {
	store := newTestStore()
	svc := newTestService(store, allowAll{}, WithValidationHook(&stubValidation{err: errors.New("timeout")}))

	_, err := update(t, svc, buildRequest(75, currentRows()...))
	require.Error(t, err)
	require.Contains(t, err.Error(), "timeout")
	require.Equal(t, 60, loadTree(t, store).Config.Limit)
}

func TestUpdateClassSetup_PermissionDeniedBeforeAnyWrite(t *testing.T) {
	tests := []struct {
		name  string
		right models.Right
		rows  func() []row
	}{
		{
			name:  "configuration",
			right: models.RightMultipleClassSetup,
			rows:  currentRows,
		},
		{
			name:  "delete",
			right: models.RightClassDelete,
			rows:  func() []row { return currentRows()[:2] },
		},
		{
			name:  "cancel",
			right: models.RightClassCancel,
			rows: func() []row {
				rows := currentRows()
				rows[1].cancelled = "true"
				return rows
			},
		},
		{
			name:  "department",
			right: models.RightMultipleClassSetupDepartment,
			rows: func() []row {
				rows := currentRows()
				rows[0].dept = "20"
				return rows
			},
		},
		{
			name:  "new class",
			right: models.RightMultipleClassSetupClass,
			rows: func() []row {
				return append(currentRows(), row{id: "-1", subpart: "300", min: "5", max: "5", rooms: "1", ratio: "1", dept: "-1", cancelled: "false"})
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newTestStore()
			svc := newTestService(store, denyRight(tt.right))

			_, err := update(t, svc, buildRequest(60, tt.rows()...))
			require.Error(t, err)
			require.True(t, errors.Is(err, apperrors.ErrPermissionDenied))
			require.Zero(t, store.LastWrites().Total())
			require.Len(t, loadTree(t, store).Classes, 3)
		})
	}
}

func TestUpdateClassSetup_ChangeLogFailureIsSwallowed(t *testing.T) {
	store := newTestStore()
	store.FailChangeLog = errors.New("audit table locked")
	svc := newTestService(store, allowAll{})

	result, err := update(t, svc, buildRequest(80, currentRows()...))
	require.NoError(t, err)
	require.True(t, result.Summary.ConfigChanged)
	require.Equal(t, 80, loadTree(t, store).Config.Limit)

	entries, err := store.ListChangeLog(context.Background(), testConfig, 0)
	require.NoError(t, err)
	require.Empty(t, entries)
}

// conflictingStore fails the first commits with a serialization failure and
// replays fn afterwards, the way the Postgres store retries conflicts.
type conflictingStore struct {
	*repositories.MemoryStore
	conflicts int
	retries   int
	attempts  int
}

func (s *conflictingStore) WithTransaction(ctx context.Context, fn repositories.TxFn) error {
	for {
		s.attempts++
		err := s.MemoryStore.WithTransaction(ctx, func(ctx context.Context, tx repositories.ClassSetupTx) error {
			if err := fn(ctx, tx); err != nil {
				return err
			}
			if s.attempts <= s.conflicts {
				return apperrors.Persistence("commit transaction", &pgconn.PgError{Code: dberrors.CodeSerializationFailure})
			}
			return nil
		})
		if err == nil || !dberrors.IsRetryable(err) || s.attempts > s.retries {
			return err
		}
	}
}

func TestUpdateClassSetup_ReplaysAfterSerializationFailure(t *testing.T) {
	tests := []struct {
		name      string
		conflicts int
		wantErr   bool
	}{
		{name: "second attempt commits", conflicts: 1},
		{name: "retries exhausted", conflicts: 5, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mem := newTestStore()
			store := &conflictingStore{MemoryStore: mem, conflicts: tt.conflicts, retries: 2}
			svc := NewClassSetupService(store, allowAll{}, config.ClassSetupConfig{ChangeLogLimit: 20},
				WithClock(func() time.Time { return testNow }))

			rows := currentRows()
			rows[1].min = "25"
			rows = append(rows, row{id: "-1", subpart: "301", parent: "400", min: "20", max: "20", rooms: "1", ratio: "1", dept: "-1", cancelled: "false"})
			result, err := svc.UpdateClassSetup(context.Background(), testActor(), testConfig, buildRequest(60, rows...))

			if tt.wantErr {
				require.Error(t, err)
				require.True(t, errors.Is(err, apperrors.ErrPersistenceFailure))
				require.True(t, dberrors.IsRetryable(err))
				require.Equal(t, 3, store.attempts)
				require.Len(t, loadTree(t, mem).Classes, 3)
				return
			}

			require.NoError(t, err)
			require.Equal(t, 2, store.attempts)
			require.Len(t, result.Summary.CreatedIDs, 1)
			require.Equal(t, []int64{testRec1}, result.Summary.UpdatedIDs)

			tree := loadTree(t, mem)
			require.Len(t, tree.Classes, 4)
			require.Equal(t, 25, tree.Classes[testRec1].ExpectedCapacity)
			require.Contains(t, tree.Classes, result.Summary.CreatedIDs[0])

			entries, err := mem.ListChangeLog(context.Background(), testConfig, 0)
			require.NoError(t, err)
			require.Len(t, entries, 1)
		})
	}
}

func TestUpdateClassSetup_UpdateStageEdges(t *testing.T) {
	tests := []struct {
		name     string
		features config.ClassSetupConfig
		request  func() *dto.ClassSetupRequest
		check    func(t *testing.T, tree *models.ConfigTree, summary TransactionSummary)
	}{
		{
			name: "existing class moves under a new parent",
			request: func() *dto.ClassSetupRequest {
				rows := currentRows()
				lecture := row{id: "-1", subpart: "300", min: "40", max: "40", rooms: "1", ratio: "1", dept: "-1", cancelled: "false"}
				rows[2].parent = "-1"
				return buildRequest(60, rows[0], lecture, rows[1], rows[2])
			},
			check: func(t *testing.T, tree *models.ConfigTree, summary TransactionSummary) {
				require.Len(t, summary.CreatedIDs, 1)
				newLecture := summary.CreatedIDs[0]
				require.Equal(t, []int64{testRec2}, summary.UpdatedIDs)
				require.NotNil(t, tree.Classes[testRec2].ParentID)
				require.Equal(t, newLecture, *tree.Classes[testRec2].ParentID)
				require.Equal(t, testLec1, *tree.Classes[testRec1].ParentID)
			},
		},
		{
			name:     "snapshot limit change stamps the date",
			features: config.ClassSetupConfig{EditSnapshotLimits: true},
			request: func() *dto.ClassSetupRequest {
				req := buildRequest(60, currentRows()...)
				req.SnapshotLimits = []string{"", "15", ""}
				return req
			},
			check: func(t *testing.T, tree *models.ConfigTree, summary TransactionSummary) {
				require.Empty(t, summary.CreatedIDs)
				require.Equal(t, []int64{testRec1}, summary.UpdatedIDs)
				rec := tree.Classes[testRec1]
				require.Equal(t, 15, *rec.SnapshotLimit)
				require.NotNil(t, rec.SnapshotLimitDate)
				require.Equal(t, testNow, *rec.SnapshotLimitDate)
				require.Nil(t, tree.Classes[testRec2].SnapshotLimitDate)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newTestStore()
			features := tt.features
			features.ChangeLogLimit = 20
			svc := NewClassSetupService(store, allowAll{}, features, WithClock(func() time.Time { return testNow }))

			result, err := update(t, svc, tt.request())
			require.NoError(t, err)
			tt.check(t, loadTree(t, store), result.Summary)
		})
	}
}

func TestUpdateClassSetup_ChangeHookFailureDoesNotFail(t *testing.T) {
	store := newTestStore()
	hook := &failingChangeHook{}
	svc := newTestService(store, allowAll{}, WithChangeHook(hook))

	_, err := update(t, svc, buildRequest(70, currentRows()...))
	require.NoError(t, err)
	require.Equal(t, 1, hook.calls)
	require.Equal(t, 70, loadTree(t, store).Config.Limit)
}

func TestUpdateClassSetup_CancelFollowsEvents(t *testing.T) {
	store := newTestStore()
	svc := newTestService(store, allowAll{})

	rows := currentRows()
	rows[1].cancelled = "true"
	result, err := update(t, svc, buildRequest(60, rows...))
	require.NoError(t, err)
	require.Equal(t, []int64{testRec1}, result.Summary.UpdatedIDs)
	require.True(t, loadTree(t, store).Classes[testRec1].Cancelled)

	events := store.ClassEvents(testRec1)
	require.Len(t, events, 1)
	require.True(t, events[0].Cancelled)

	rows[1].cancelled = "false"
	_, err = update(t, svc, buildRequest(60, rows...))
	require.NoError(t, err)
	require.False(t, store.ClassEvents(testRec1)[0].Cancelled)
}

func TestUpdateClassSetup_UnlimitedIsIdempotent(t *testing.T) {
	store := newTestStore()
	svc := newTestService(store, allowAll{})

	req := buildRequest(60, currentRows()...)
	req.Unlimited = true

	first, err := update(t, svc, req)
	require.NoError(t, err)
	require.True(t, first.Summary.ConfigChanged)
	require.Len(t, first.Summary.UpdatedIDs, 3)

	tree := loadTree(t, store)
	require.True(t, tree.Config.Unlimited)
	require.Equal(t, 0, tree.Config.Limit)
	for _, c := range tree.Classes {
		require.Equal(t, 0, c.ExpectedCapacity)
		require.Equal(t, 0, c.MaxExpectedCapacity)
		require.Equal(t, 0, c.NbrRooms)
		require.Equal(t, 1.0, c.RoomRatio)
	}

	second, err := update(t, svc, req)
	require.NoError(t, err)
	require.False(t, second.Summary.ConfigChanged)
	require.Empty(t, second.Summary.UpdatedIDs)
	require.Equal(t, repositories.WriteStats{ChangeLogInserts: 1}, store.LastWrites())
}

func TestUpdateClassSetup_ExternalDepartmentWeakensTimePreferences(t *testing.T) {
	store := newTestStore()
	svc := newTestService(store, allowAll{})

	rows := currentRows()
	rows[0].dept = "20"
	result, err := update(t, svc, buildRequest(60, rows...))
	require.NoError(t, err)
	require.Equal(t, []int64{testLec1}, result.Summary.UpdatedIDs)
	require.Equal(t, []int64{testLecture}, result.Summary.ReownedSubparts)

	tree := loadTree(t, store)
	lec := tree.Classes[testLec1]
	require.Equal(t, testExternal, lec.ManagingDeptID)

	// exact times and room preferences stay with the subpart
	prefs := lec.Preferences.Items()
	require.Len(t, prefs, 1)
	require.Equal(t, testTimePattern, prefs[0].TargetID)
	require.Equal(t, models.LevelStronglyPreferred, prefs[0].Level)
	require.Equal(t, "-2,0,2", prefs[0].GridString())
	require.Empty(t, store.Distributions(models.ClassOwner(testLec1)))

	subpart := tree.Subparts[testLecture]
	require.Equal(t, testExternal, tree.SubpartManagingDeptID(testLecture))
	require.Empty(t, subpart.Preferences.OfKind(models.KindRoom))
	require.Empty(t, subpart.Preferences.OfKind(models.KindRoomGroup))
	require.Len(t, subpart.Preferences.OfKind(models.KindTime), 2)
	for _, p := range subpart.Preferences.Items() {
		require.False(t, p.Level.IsHard(), "preference %s kept a hard level", p.Key())
	}
	require.Empty(t, store.Distributions(models.SubpartOwner(testLecture)))

	require.Equal(t, testMath, tree.SubpartManagingDeptID(testRecitation))
}

func TestUpdateClassSetup_ReturnToControllingDepartmentRetrofitsClasses(t *testing.T) {
	store := newTestStore()
	parent := int64(testLec1)
	rec1 := newTestClass(testRec1, testRecitation, &parent, 30, 1)
	rec1.ManagingDeptID = testExternal
	rec2 := newTestClass(testRec2, testRecitation, &parent, 30, 2)
	rec2.ManagingDeptID = testExternal
	store.AddClass(rec1)
	store.AddClass(rec2)
	lecture := int64(testLecture)
	store.AddSubpart(models.Subpart{ID: testRecitation, ConfigurationID: testConfig, ParentID: &lecture, ItypeID: 30, ItypeName: "Rec"},
		models.Preference{Kind: models.KindTime, Level: models.LevelPreferred, TargetID: 910, PatternType: models.TimePatternStandard},
		models.Preference{Kind: models.KindRoom, Level: models.LevelDiscouraged, TargetID: 60},
	)
	svc := newTestService(store, allowAll{})

	rows := currentRows()
	rows[1].dept = "-1"
	rows[2].dept = "20"
	result, err := update(t, svc, buildRequest(60, rows...))
	require.NoError(t, err)
	require.Equal(t, []int64{testRec1}, result.Summary.UpdatedIDs)
	require.Equal(t, []int64{testRecitation}, result.Summary.ReownedSubparts)

	tree := loadTree(t, store)
	require.Equal(t, testMath, tree.Classes[testRec1].ManagingDeptID)
	require.Equal(t, testMath, tree.SubpartManagingDeptID(testRecitation))

	// the class still managed externally keeps required copies of what the subpart required of it
	retrofitted := tree.Classes[testRec2].Preferences
	require.Equal(t, 2, retrofitted.Len())
	for _, p := range retrofitted.Items() {
		require.Equal(t, models.LevelRequired, p.Level)
	}
	require.True(t, retrofitted.Has(models.KindRoom, 60))

	subpart := tree.Subparts[testRecitation].Preferences
	require.False(t, subpart.Has(models.KindRoom, 60))
	require.True(t, subpart.Has(models.KindTime, 910))
	roomGroups := subpart.OfKind(models.KindRoomGroup)
	require.Len(t, roomGroups, 1)
	require.Equal(t, testRoomGroup, roomGroups[0].TargetID)
	require.Equal(t, models.LevelRequired, roomGroups[0].Level)
}

func TestUpdateClassSetup_RejectsUnknownDepartment(t *testing.T) {
	tests := []struct {
		name string
		dept string
	}{
		{name: "missing", dept: "999"},
		{name: "other session", dept: "30"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newTestStore()
			svc := newTestService(store, allowAll{})

			rows := currentRows()
			rows[0].dept = tt.dept
			_, err := update(t, svc, buildRequest(60, rows...))
			require.Error(t, err)
			require.True(t, errors.Is(err, apperrors.ErrBadRequest))
			require.Equal(t, testMath, loadTree(t, store).Classes[testLec1].ManagingDeptID)
		})
	}
}

func TestUpdateClassSetup_RemovedParentOfKeptChild(t *testing.T) {
	store := newTestStore()
	svc := newTestService(store, allowAll{})

	_, err := update(t, svc, buildRequest(60, currentRows()[1:]...))
	require.Error(t, err)
	require.True(t, errors.Is(err, apperrors.ErrMalformedSubmission))
	require.Len(t, loadTree(t, store).Classes, 3)
}

func TestUpdateClassSetup_ConfigurationNotFound(t *testing.T) {
	svc := newTestService(newTestStore(), allowAll{})

	_, err := svc.UpdateClassSetup(context.Background(), testActor(), 999, buildRequest(60, currentRows()...))
	require.Error(t, err)
	require.True(t, errors.Is(err, apperrors.ErrResourceNotFound))
}

func TestLoadClassSetup(t *testing.T) {
	t.Run("builds the access view", func(t *testing.T) {
		svc := newTestService(newTestStore(), denyRight(models.RightClassDelete))

		view, err := svc.LoadClassSetup(context.Background(), testActor(), testConfig)
		require.NoError(t, err)
		require.Len(t, view.Access, 3)
		for id, access := range view.Access {
			require.False(t, access.ReadOnly, "class %d", id)
			require.False(t, access.CanDelete, "class %d", id)
			require.True(t, access.CanCancel, "class %d", id)
		}

		resp := view.Response()
		require.NotNil(t, resp)
	})

	t.Run("incomplete configuration", func(t *testing.T) {
		store := newTestStore()
		store.AddSubpart(models.Subpart{ID: 302, ConfigurationID: testConfig, ItypeID: 20, ItypeName: "Lab"})
		svc := newTestService(store, allowAll{})

		_, err := svc.LoadClassSetup(context.Background(), testActor(), testConfig)
		require.Error(t, err)
		require.True(t, errors.Is(err, apperrors.ErrIncompleteConfiguration))
	})

	t.Run("forbidden", func(t *testing.T) {
		svc := newTestService(newTestStore(), denyRight(models.RightMultipleClassSetup))

		_, err := svc.LoadClassSetup(context.Background(), testActor(), testConfig)
		require.True(t, errors.Is(err, apperrors.ErrPermissionDenied))
	})
}

func TestAuthorizeChangeFeed(t *testing.T) {
	svc := newTestService(newTestStore(), allowAll{})
	offeringID, err := svc.AuthorizeChangeFeed(context.Background(), testActor(), testConfig)
	require.NoError(t, err)
	require.Equal(t, testOffering, offeringID)

	denied := newTestService(newTestStore(), denyRight(models.RightMultipleClassSetup))
	_, err = denied.AuthorizeChangeFeed(context.Background(), testActor(), testConfig)
	require.True(t, errors.Is(err, apperrors.ErrPermissionDenied))
}

func TestChangeLog(t *testing.T) {
	store := newTestStore()
	svc := newTestService(store, allowAll{})

	for _, limit := range []int{61, 62, 63} {
		_, err := update(t, svc, buildRequest(limit, currentRows()...))
		require.NoError(t, err)
	}

	entries, err := svc.ChangeLog(context.Background(), testActor(), testConfig, 2)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Greater(t, entries[0].ID, entries[1].ID)

	all, err := svc.ChangeLog(context.Background(), testActor(), testConfig, 0)
	require.NoError(t, err)
	require.Len(t, all, 3)

	responses := ChangeLogResponses(all)
	require.Len(t, responses, 3)
}
