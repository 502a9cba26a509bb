package seed

import (
	"context"
	_ "embed"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	appModels "github.com/yigit/classsetup/internal/app/models"
	appRepos "github.com/yigit/classsetup/internal/app/repositories"
)

//go:embed demo.sql
var demoSQL string

// Demo identifiers shared by the memory and Postgres seeds.
const (
	DemoSessionID       int64 = 1
	DemoMathDeptID      int64 = 10
	DemoExternalDeptID  int64 = 20
	DemoOfferingID      int64 = 100
	DemoConfigurationID int64 = 200
	DemoLectureSubpart  int64 = 300
	DemoRecitation      int64 = 301
	DemoRoomGroupID     int64 = 501
)

// DemoActors returns one manager per demo role.
func DemoActors() []appModels.ActorContext {
	return []appModels.ActorContext{
		{ManagerID: 1, ExternalUserID: "admin", SessionID: DemoSessionID, Roles: []string{"admin"}},
		{ManagerID: 2, ExternalUserID: "math-manager", SessionID: DemoSessionID, Roles: []string{"dept_manager"}, DepartmentIDs: []int64{DemoMathDeptID}},
		{ManagerID: 3, ExternalUserID: "llr-deputy", SessionID: DemoSessionID, Roles: []string{"schedule_deputy"}, DepartmentIDs: []int64{DemoExternalDeptID}},
	}
}

// CreateDemoData loads the demo offering into Postgres. Rows that already
// exist are left untouched.
func CreateDemoData(ctx context.Context, dbPool *pgxpool.Pool, lgr zerolog.Logger) error {
	lgr.Info().Msg("Checking/Creating demo class setup data...")
	if _, err := dbPool.Exec(ctx, demoSQL); err != nil {
		return fmt.Errorf("failed to create demo data: %w", err)
	}
	lgr.Info().Int64("configurationID", DemoConfigurationID).Msg("Demo class setup data ready")
	return nil
}

// SeedMemory loads the same demo offering into an in-memory store.
func SeedMemory(store *appRepos.MemoryStore, lgr zerolog.Logger) {
	store.AddDepartment(appModels.Department{ID: DemoMathDeptID, SessionID: DemoSessionID, Code: "MATH", Name: "Mathematics", AllowRequiredTime: true})
	store.AddDepartment(appModels.Department{ID: DemoExternalDeptID, SessionID: DemoSessionID, Code: "LLR", Name: "Large Lecture Rooms", ExternalManager: true})
	store.SetDefaultRoomGroup(DemoSessionID, DemoRoomGroupID)

	store.AddOffering(appModels.Offering{
		ID:                DemoOfferingID,
		SessionID:         DemoSessionID,
		SubjectAreaID:     1,
		SubjectAreaAbbv:   "MATH",
		CourseNumber:      "101",
		Title:             "Calculus I",
		ControllingDeptID: DemoMathDeptID,
	})
	store.AddConfiguration(appModels.Configuration{ID: DemoConfigurationID, OfferingID: DemoOfferingID, Name: "1", Limit: 60})

	lectureTime := appModels.Preference{
		Kind:        appModels.KindTime,
		Level:       appModels.LevelRequired,
		TargetID:    1,
		PatternType: appModels.TimePatternStandard,
		Grid:        []appModels.PreferenceLevel{appModels.LevelRequired, appModels.LevelNeutral, appModels.LevelProhibited},
	}
	store.AddSubpart(appModels.Subpart{ID: DemoLectureSubpart, ConfigurationID: DemoConfigurationID, ItypeID: 10, ItypeName: "Lec"}, lectureTime)
	lecture := DemoLectureSubpart
	store.AddSubpart(appModels.Subpart{ID: DemoRecitation, ConfigurationID: DemoConfigurationID, ParentID: &lecture, ItypeID: 30, ItypeName: "Rec"})

	lec := int64(400)
	store.AddClass(appModels.Class{ID: lec, SubpartID: DemoLectureSubpart, ExpectedCapacity: 60, MaxExpectedCapacity: 60, NbrRooms: 1, RoomRatio: 1,
		DisplayInstructor: true, EnabledForStudentScheduling: true, ManagingDeptID: DemoMathDeptID, SectionNumber: 1})
	store.AddClass(appModels.Class{ID: 401, SubpartID: DemoRecitation, ParentID: &lec, ExpectedCapacity: 30, MaxExpectedCapacity: 30, NbrRooms: 1, RoomRatio: 1,
		DisplayInstructor: true, EnabledForStudentScheduling: true, ManagingDeptID: DemoMathDeptID, SectionNumber: 1})
	store.AddClass(appModels.Class{ID: 402, SubpartID: DemoRecitation, ParentID: &lec, ExpectedCapacity: 30, MaxExpectedCapacity: 30, NbrRooms: 1, RoomRatio: 1,
		DisplayInstructor: true, EnabledForStudentScheduling: true, ManagingDeptID: DemoMathDeptID, SectionNumber: 2})
	store.AddClassEvent(appModels.ClassEvent{ID: 700, ClassID: lec, Name: "MATH 101 Lec 1 midterm"})

	lgr.Info().Int64("configurationID", DemoConfigurationID).Msg("Demo class setup data loaded into memory store")
}
