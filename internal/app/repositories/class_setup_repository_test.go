package repositories

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"
	"github.com/yigit/classsetup/internal/app/models"
	"github.com/yigit/classsetup/internal/pkg/apperrors"
	"github.com/yigit/classsetup/internal/pkg/dberrors"
)

// newMockTx opens a mocked transaction and wraps it the way WithTransaction does.
func newMockTx(t *testing.T) (pgxmock.PgxPoolIface, *classSetupTx) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)

	mock.ExpectBegin()
	tx, err := mock.Begin(context.Background())
	require.NoError(t, err)
	return mock, &classSetupTx{tx: tx}
}

func expectConfigurationHead(mock pgxmock.PgxPoolIface, configID int64) *pgxmock.ExpectedQuery {
	return mock.ExpectQuery(`FROM instr_offering_configs c JOIN .* WHERE c\.id = \$1 FOR UPDATE OF c`).
		WithArgs(configID)
}

func TestLockConfigurationTree(t *testing.T) {
	mock, tx := newMockTx(t)

	expectConfigurationHead(mock, 2).WillReturnRows(pgxmock.NewRows([]string{
		"id", "offering_id", "name", "config_limit", "unlimited", "instr_method_id",
		"session_id", "subject_area_id", "abbreviation", "course_number", "title", "department_id",
		"default_room_group_id", "config_count",
	}).AddRow(int64(2), int64(1), "1", 20, false, nil, int64(5), int64(7), "MATH", "101", "Calculus I", int64(10), nil, 1))

	mock.ExpectQuery(`SELECT id, parent_id, itype_id, itype_name, suffix FROM scheduling_subparts WHERE config_id = \$1`).
		WithArgs(int64(2)).
		WillReturnRows(pgxmock.NewRows([]string{"id", "parent_id", "itype_id", "itype_name", "suffix"}).
			AddRow(int64(3), nil, 10, "Lec", ""))

	mock.ExpectQuery(`FROM classes cl JOIN scheduling_subparts ss ON ss\.id = cl\.subpart_id WHERE ss\.config_id = \$1`).
		WithArgs(int64(2)).
		WillReturnRows(pgxmock.NewRows(classColumns).
			AddRow(int64(4), int64(3), nil, 20, 25, 1, 1.0, nil, nil, nil, false, nil, nil, true, true, int64(10), 1))

	mock.ExpectQuery(`FROM preferences WHERE`).
		WillReturnRows(pgxmock.NewRows([]string{"owner_type", "owner_id", "kind", "level", "target_id", "pattern_type", "grid", "distance_from"}).
			AddRow(string(models.OwnerClass), int64(4), string(models.KindRoom), string(models.LevelPreferred), int64(9), nil, nil, nil))

	mock.ExpectQuery(`FROM departments WHERE id = \$1`).
		WithArgs(int64(10)).
		WillReturnRows(pgxmock.NewRows([]string{"id", "session_id", "code", "name", "external_manager", "allow_required_time"}).
			AddRow(int64(10), int64(5), "MATH", "Mathematics", false, true))

	tree, err := tx.LockConfigurationTree(context.Background(), 2)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())

	require.Equal(t, "MATH 101 - Calculus I [1]", tree.Config.Title)
	require.Equal(t, int64(10), tree.Config.ControllingDeptID)
	require.Equal(t, 1, tree.Offering.ConfigurationCount)
	require.Equal(t, []int64{4}, tree.Subparts[3].ClassIDs)

	class := tree.Classes[4]
	require.Equal(t, 25, class.MaxExpectedCapacity)
	require.Equal(t, int64(10), class.ControllingDeptID)
	require.Equal(t, 1, class.Preferences.Len())
	require.Equal(t, "MATH", tree.Departments[10].Code)
}

func TestLockConfigurationTree_Errors(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		target  error
		checkPg func(error) bool
	}{
		{name: "missing configuration", err: pgx.ErrNoRows, target: apperrors.ErrConfigurationNotFound},
		{
			name:    "lock timeout",
			err:     &pgconn.PgError{Code: dberrors.CodeLockNotAvailable},
			target:  apperrors.ErrPersistenceFailure,
			checkPg: dberrors.IsLockNotAvailable,
		},
		{
			name:    "serialization failure",
			err:     &pgconn.PgError{Code: dberrors.CodeSerializationFailure},
			target:  apperrors.ErrPersistenceFailure,
			checkPg: dberrors.IsRetryable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock, tx := newMockTx(t)
			expectConfigurationHead(mock, 2).WillReturnError(tt.err)

			_, err := tx.LockConfigurationTree(context.Background(), 2)
			require.Error(t, err)
			require.True(t, errors.Is(err, tt.target), "got %v", err)
			if tt.checkPg != nil {
				require.True(t, tt.checkPg(err))
			}
			require.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestClassStatements(t *testing.T) {
	ctx := context.Background()
	class := &models.Class{ID: 4, SubpartID: 3, ExpectedCapacity: 20, MaxExpectedCapacity: 25, NbrRooms: 1, RoomRatio: 1, ManagingDeptID: 10, SectionNumber: 1}

	t.Run("insert returns the new id", func(t *testing.T) {
		mock, tx := newMockTx(t)
		mock.ExpectQuery(`INSERT INTO classes \(subpart_id,parent_id,.*\) VALUES \(.*\) RETURNING id`).
			WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(1001)))

		id, err := tx.InsertClass(ctx, class)
		require.NoError(t, err)
		require.Equal(t, int64(1001), id)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("update writes every column", func(t *testing.T) {
		mock, tx := newMockTx(t)
		mock.ExpectExec(`UPDATE classes SET subpart_id = \$1, parent_id = \$2, .* section_number = \$16 WHERE id = \$17`).
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))

		require.NoError(t, tx.UpdateClass(ctx, class))
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("update of a vanished class fails", func(t *testing.T) {
		mock, tx := newMockTx(t)
		mock.ExpectExec(`UPDATE classes SET`).WillReturnResult(pgxmock.NewResult("UPDATE", 0))

		err := tx.UpdateClass(ctx, class)
		require.True(t, errors.Is(err, apperrors.ErrPersistenceFailure))
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("delete clears dependents before the class", func(t *testing.T) {
		mock, tx := newMockTx(t)
		mock.ExpectExec(`DELETE FROM class_events WHERE class_id = \$1`).WithArgs(int64(4)).
			WillReturnResult(pgxmock.NewResult("DELETE", 2))
		mock.ExpectExec(`DELETE FROM distribution_objects WHERE owner_id = \$1 AND owner_type = \$2`).WithArgs(int64(4), "class").
			WillReturnResult(pgxmock.NewResult("DELETE", 1))
		mock.ExpectExec(`DELETE FROM preferences WHERE owner_id = \$1 AND owner_type = \$2`).WithArgs(int64(4), "class").
			WillReturnResult(pgxmock.NewResult("DELETE", 1))
		mock.ExpectExec(`DELETE FROM classes WHERE id = \$1`).WithArgs(int64(4)).
			WillReturnResult(pgxmock.NewResult("DELETE", 1))

		require.NoError(t, tx.DeleteClass(ctx, 4))
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("delete of a referenced class fails", func(t *testing.T) {
		mock, tx := newMockTx(t)
		mock.ExpectExec(`DELETE FROM class_events`).WillReturnResult(pgxmock.NewResult("DELETE", 0))
		mock.ExpectExec(`DELETE FROM distribution_objects`).WillReturnResult(pgxmock.NewResult("DELETE", 0))
		mock.ExpectExec(`DELETE FROM preferences`).WillReturnResult(pgxmock.NewResult("DELETE", 0))
		mock.ExpectExec(`DELETE FROM classes`).WillReturnError(&pgconn.PgError{Code: dberrors.CodeForeignKeyViolation})

		err := tx.DeleteClass(ctx, 4)
		require.True(t, errors.Is(err, apperrors.ErrPersistenceFailure))
		require.True(t, dberrors.IsForeignKeyViolation(err))
		require.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestInsertChangeLog(t *testing.T) {
	ctx := context.Background()
	entry := func() *models.ChangeLogEntry {
		return &models.ChangeLogEntry{ManagerID: 1, SessionID: 5, ObjectType: "InstrOfferingConfig", ObjectID: 2,
			ObjectTitle: "MATH 101 [1]", Source: models.SourceClassSetup, Operation: models.OperationUpdate}
	}

	t.Run("commits the savepoint", func(t *testing.T) {
		mock, tx := newMockTx(t)
		mock.ExpectBegin()
		mock.ExpectQuery(`INSERT INTO change_log .* RETURNING id`).
			WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(55)))
		mock.ExpectCommit()

		e := entry()
		require.NoError(t, tx.InsertChangeLog(ctx, e))
		require.Equal(t, int64(55), e.ID)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("failure rolls back only the savepoint", func(t *testing.T) {
		mock, tx := newMockTx(t)
		mock.ExpectBegin()
		mock.ExpectQuery(`INSERT INTO change_log`).WillReturnError(errors.New("audit table locked"))
		mock.ExpectRollback()
		mock.ExpectExec(`UPDATE class_events SET cancelled = \$1 WHERE class_id = \$2`).WithArgs(true, int64(4)).
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))

		err := tx.InsertChangeLog(ctx, entry())
		require.True(t, errors.Is(err, apperrors.ErrPersistenceFailure))

		// The enclosing transaction keeps working after the savepoint is gone.
		require.NoError(t, tx.SetClassEventsCancelled(ctx, 4, true))
		require.NoError(t, mock.ExpectationsWereMet())
	})
}
