package repositories

import (
	"context"
	"errors"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/yigit/classsetup/internal/app/models"
	"github.com/yigit/classsetup/internal/db"
	"github.com/yigit/classsetup/internal/pkg/apperrors"
	"github.com/yigit/classsetup/internal/pkg/dberrors"
	"github.com/yigit/classsetup/internal/pkg/logger"
)

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

var psql = squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)

// ClassSetupRepository is the PostgreSQL ClassSetupStore.
type ClassSetupRepository struct {
	DB *db.PostgresDB
}

// NewClassSetupRepository creates a new instance of ClassSetupRepository.
func NewClassSetupRepository(database *db.PostgresDB) *ClassSetupRepository {
	return &ClassSetupRepository{DB: database}
}

// LoadConfigurationTree implements ClassSetupReader.
func (r *ClassSetupRepository) LoadConfigurationTree(ctx context.Context, configID int64) (*models.ConfigTree, error) {
	return loadTree(ctx, r.DB.Pool, configID, false)
}

// ListChangeLog implements ClassSetupReader.
func (r *ClassSetupRepository) ListChangeLog(ctx context.Context, configID int64, limit int) ([]*models.ChangeLogEntry, error) {
	q := psql.Select("id", "created_at", "manager_id", "session_id", "object_type", "object_id", "object_title",
		"subject_area_id", "department_id", "source", "operation").
		From("change_log").
		Where(squirrel.Eq{"object_type": "InstrOfferingConfig", "object_id": configID}).
		OrderBy("created_at DESC", "id DESC")
	if limit > 0 {
		q = q.Limit(uint64(limit))
	}
	sqlStr, args, err := q.ToSql()
	if err != nil {
		logger.Error().Err(err).Msg("Error building list change log SQL")
		return nil, err
	}

	rows, err := r.DB.Pool.Query(ctx, sqlStr, args...)
	if err != nil {
		logger.Error().Err(err).Int64("configID", configID).Msg("Error listing change log")
		return nil, apperrors.Persistence("list change log", err)
	}
	defer rows.Close()

	var entries []*models.ChangeLogEntry
	for rows.Next() {
		var e models.ChangeLogEntry
		var source, op string
		if err := rows.Scan(&e.ID, &e.Timestamp, &e.ManagerID, &e.SessionID, &e.ObjectType, &e.ObjectID,
			&e.ObjectTitle, &e.SubjectAreaID, &e.DepartmentID, &source, &op); err != nil {
			return nil, apperrors.Persistence("scan change log", err)
		}
		e.Source = models.ChangeSource(source)
		e.Operation = models.ChangeOperation(op)
		entries = append(entries, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Persistence("list change log", err)
	}
	return entries, nil
}

// WithTransaction implements ClassSetupStore.
func (r *ClassSetupRepository) WithTransaction(ctx context.Context, fn TxFn) error {
	return r.DB.WithTransaction(ctx, func(ctx context.Context, tx pgx.Tx) error {
		return fn(ctx, &classSetupTx{tx: tx})
	})
}

type classSetupTx struct {
	tx pgx.Tx
}

func (t *classSetupTx) LockConfigurationTree(ctx context.Context, configID int64) (*models.ConfigTree, error) {
	return loadTree(ctx, t.tx, configID, true)
}

func (t *classSetupTx) GetDepartment(ctx context.Context, id int64) (*models.Department, error) {
	return getDepartment(ctx, t.tx, id)
}

func (t *classSetupTx) UpdateConfiguration(ctx context.Context, cfg *models.Configuration) error {
	sqlStr, args, err := psql.Update("instr_offering_configs").
		Set("config_limit", cfg.Limit).
		Set("unlimited", cfg.Unlimited).
		Set("instr_method_id", cfg.InstructionalMethodID).
		Where(squirrel.Eq{"id": cfg.ID}).
		ToSql()
	if err != nil {
		return err
	}
	tag, err := t.tx.Exec(ctx, sqlStr, args...)
	if err != nil {
		logger.Error().Err(err).Int64("configID", cfg.ID).Msg("Error updating configuration")
		return apperrors.Persistence("update configuration", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.NewConfigurationNotFoundError(cfg.ID)
	}
	return nil
}

func (t *classSetupTx) InsertClass(ctx context.Context, c *models.Class) (int64, error) {
	sqlStr, args, err := psql.Insert("classes").
		Columns(classColumns[1:]...).
		Values(classValues(c)...).
		Suffix("RETURNING id").
		ToSql()
	if err != nil {
		logger.Error().Err(err).Msg("Error building insert class SQL")
		return 0, err
	}

	var id int64
	if err := t.tx.QueryRow(ctx, sqlStr, args...).Scan(&id); err != nil {
		logger.Error().Err(err).Int64("subpartID", c.SubpartID).Msg("Error inserting class")
		return 0, apperrors.Persistence("insert class", err)
	}
	return id, nil
}

func (t *classSetupTx) UpdateClass(ctx context.Context, c *models.Class) error {
	values := classValues(c)
	q := psql.Update("classes").Where(squirrel.Eq{"id": c.ID})
	for i, col := range classColumns[1:] {
		q = q.Set(col, values[i])
	}
	sqlStr, args, err := q.ToSql()
	if err != nil {
		return err
	}
	tag, err := t.tx.Exec(ctx, sqlStr, args...)
	if err != nil {
		logger.Error().Err(err).Int64("classID", c.ID).Msg("Error updating class")
		return apperrors.Persistence("update class", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.Persistence("update class", fmt.Errorf("class %d does not exist", c.ID))
	}
	return nil
}

func (t *classSetupTx) DeleteClass(ctx context.Context, id int64) error {
	steps := []squirrel.DeleteBuilder{
		psql.Delete("class_events").Where(squirrel.Eq{"class_id": id}),
		psql.Delete("distribution_objects").Where(squirrel.Eq{"owner_type": string(models.OwnerClass), "owner_id": id}),
		psql.Delete("preferences").Where(squirrel.Eq{"owner_type": string(models.OwnerClass), "owner_id": id}),
		psql.Delete("classes").Where(squirrel.Eq{"id": id}),
	}
	for _, step := range steps {
		sqlStr, args, err := step.ToSql()
		if err != nil {
			return err
		}
		if _, err := t.tx.Exec(ctx, sqlStr, args...); err != nil {
			if dberrors.IsForeignKeyViolation(err) {
				logger.Error().Err(err).Int64("classID", id).Msg("Class is still referenced")
			} else {
				logger.Error().Err(err).Int64("classID", id).Msg("Error deleting class")
			}
			return apperrors.Persistence("delete class", err)
		}
	}
	return nil
}

func (t *classSetupTx) UpdateSectionNumbers(ctx context.Context, numbers map[int64]int) error {
	if len(numbers) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for id, n := range numbers {
		sqlStr, args, err := psql.Update("classes").Set("section_number", n).Where(squirrel.Eq{"id": id}).ToSql()
		if err != nil {
			return err
		}
		batch.Queue(sqlStr, args...)
	}
	if err := t.tx.SendBatch(ctx, batch).Close(); err != nil {
		logger.Error().Err(err).Msg("Error updating section numbers")
		return apperrors.Persistence("update section numbers", err)
	}
	return nil
}

func (t *classSetupTx) ReplacePreferences(ctx context.Context, owner models.OwnerRef, prefs models.PreferenceSet) error {
	sqlStr, args, err := psql.Delete("preferences").
		Where(squirrel.Eq{"owner_type": string(owner.Type), "owner_id": owner.ID}).
		ToSql()
	if err != nil {
		return err
	}
	if _, err := t.tx.Exec(ctx, sqlStr, args...); err != nil {
		logger.Error().Err(err).Str("ownerType", string(owner.Type)).Int64("ownerID", owner.ID).Msg("Error clearing preferences")
		return apperrors.Persistence("replace preferences", err)
	}
	if prefs.Len() == 0 {
		return nil
	}

	ins := psql.Insert("preferences").
		Columns("owner_type", "owner_id", "position", "kind", "level", "target_id", "pattern_type", "grid", "distance_from")
	for i, p := range prefs.Items() {
		var patternType, grid *string
		if p.Kind == models.KindTime {
			pt := string(p.PatternType)
			g := p.GridString()
			patternType, grid = &pt, &g
		}
		ins = ins.Values(string(owner.Type), owner.ID, i, string(p.Kind), string(p.Level), p.TargetID, patternType, grid, p.DistanceFrom)
	}
	sqlStr, args, err = ins.ToSql()
	if err != nil {
		return err
	}
	if _, err := t.tx.Exec(ctx, sqlStr, args...); err != nil {
		logger.Error().Err(err).Str("ownerType", string(owner.Type)).Int64("ownerID", owner.ID).Msg("Error inserting preferences")
		return apperrors.Persistence("replace preferences", err)
	}
	return nil
}

func (t *classSetupTx) DeleteDistributionPreferences(ctx context.Context, owner models.OwnerRef) (int, error) {
	sqlStr, args, err := psql.Delete("distribution_objects").
		Where(squirrel.Eq{"owner_type": string(owner.Type), "owner_id": owner.ID}).
		ToSql()
	if err != nil {
		return 0, err
	}
	tag, err := t.tx.Exec(ctx, sqlStr, args...)
	if err != nil {
		logger.Error().Err(err).Str("ownerType", string(owner.Type)).Int64("ownerID", owner.ID).Msg("Error deleting distribution preferences")
		return 0, apperrors.Persistence("delete distribution preferences", err)
	}
	return int(tag.RowsAffected()), nil
}

func (t *classSetupTx) SetClassEventsCancelled(ctx context.Context, classID int64, cancelled bool) error {
	sqlStr, args, err := psql.Update("class_events").
		Set("cancelled", cancelled).
		Where(squirrel.Eq{"class_id": classID}).
		ToSql()
	if err != nil {
		return err
	}
	if _, err := t.tx.Exec(ctx, sqlStr, args...); err != nil {
		logger.Error().Err(err).Int64("classID", classID).Msg("Error updating class events")
		return apperrors.Persistence("cancel class events", err)
	}
	return nil
}

// InsertChangeLog writes inside a savepoint so a failed insert does not abort the outer transaction.
func (t *classSetupTx) InsertChangeLog(ctx context.Context, entry *models.ChangeLogEntry) error {
	sqlStr, args, err := psql.Insert("change_log").
		Columns("created_at", "manager_id", "session_id", "object_type", "object_id", "object_title",
			"subject_area_id", "department_id", "source", "operation").
		Values(entry.Timestamp, entry.ManagerID, entry.SessionID, entry.ObjectType, entry.ObjectID, entry.ObjectTitle,
			entry.SubjectAreaID, entry.DepartmentID, string(entry.Source), string(entry.Operation)).
		Suffix("RETURNING id").
		ToSql()
	if err != nil {
		return err
	}

	sp, err := t.tx.Begin(ctx)
	if err != nil {
		return apperrors.Persistence("insert change log", err)
	}
	if err := sp.QueryRow(ctx, sqlStr, args...).Scan(&entry.ID); err != nil {
		if rbErr := sp.Rollback(ctx); rbErr != nil {
			logger.Error().Err(rbErr).Msg("Failed to roll back change log savepoint")
		}
		return apperrors.Persistence("insert change log", err)
	}
	if err := sp.Commit(ctx); err != nil {
		return apperrors.Persistence("insert change log", err)
	}
	return nil
}

var classColumns = []string{
	"id", "subpart_id", "parent_id", "expected_capacity", "max_expected_capacity", "nbr_rooms", "room_ratio",
	"date_pattern_id", "lms_id", "external_suffix", "cancelled", "snapshot_limit", "snapshot_limit_date",
	"display_instructor", "enabled_for_student_scheduling", "managing_dept_id", "section_number",
}

// classValues lists c's values for classColumns without the id.
func classValues(c *models.Class) []any {
	return []any{
		c.SubpartID, c.ParentID, c.ExpectedCapacity, c.MaxExpectedCapacity, c.NbrRooms, c.RoomRatio,
		c.DatePatternID, c.LMSID, c.Suffix, c.Cancelled, c.SnapshotLimit, c.SnapshotLimitDate,
		c.DisplayInstructor, c.EnabledForStudentScheduling, c.ManagingDeptID, c.SectionNumber,
	}
}

func getDepartment(ctx context.Context, q querier, id int64) (*models.Department, error) {
	sqlStr, args, err := psql.Select("id", "session_id", "code", "name", "external_manager", "allow_required_time").
		From("departments").
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return nil, err
	}
	var d models.Department
	err = q.QueryRow(ctx, sqlStr, args...).Scan(&d.ID, &d.SessionID, &d.Code, &d.Name, &d.ExternalManager, &d.AllowRequiredTime)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewResourceNotFoundError(fmt.Sprintf("department %d not found", id))
		}
		logger.Error().Err(err).Int64("departmentID", id).Msg("Error retrieving department")
		return nil, apperrors.Persistence("get department", err)
	}
	return &d, nil
}

func loadTree(ctx context.Context, q querier, configID int64, forUpdate bool) (*models.ConfigTree, error) {
	head := psql.Select(
		"c.id", "c.offering_id", "c.name", "c.config_limit", "c.unlimited", "c.instr_method_id",
		"o.session_id", "o.subject_area_id", "sa.abbreviation", "o.course_number", "o.title", "sa.department_id",
		"s.default_room_group_id",
		"(SELECT count(*) FROM instr_offering_configs x WHERE x.offering_id = o.id)",
	).From("instr_offering_configs c").
		Join("instructional_offerings o ON o.id = c.offering_id").
		Join("subject_areas sa ON sa.id = o.subject_area_id").
		Join("sessions s ON s.id = o.session_id").
		Where(squirrel.Eq{"c.id": configID})
	if forUpdate {
		head = head.Suffix("FOR UPDATE OF c")
	}
	sqlStr, args, err := head.ToSql()
	if err != nil {
		return nil, err
	}

	var off models.Offering
	var cfg models.Configuration
	var roomGroup *int64
	err = q.QueryRow(ctx, sqlStr, args...).Scan(
		&cfg.ID, &cfg.OfferingID, &cfg.Name, &cfg.Limit, &cfg.Unlimited, &cfg.InstructionalMethodID,
		&off.SessionID, &off.SubjectAreaID, &off.SubjectAreaAbbv, &off.CourseNumber, &off.Title, &off.ControllingDeptID,
		&roomGroup, &off.ConfigurationCount,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewConfigurationNotFoundError(configID)
		}
		if dberrors.IsLockNotAvailable(err) {
			logger.Warn().Err(err).Int64("configID", configID).Msg("Configuration is locked by another transaction")
		}
		return nil, apperrors.Persistence("load configuration", err)
	}
	off.ID = cfg.OfferingID
	cfg.ControllingDeptID = off.ControllingDeptID
	cfg.Title = off.CourseNameWithTitle() + " [" + cfg.Name + "]"

	t := models.NewConfigTree(&off, &cfg)
	t.DefaultRoomGroupID = roomGroup

	if err := loadSubparts(ctx, q, t); err != nil {
		return nil, err
	}
	if err := loadClasses(ctx, q, t); err != nil {
		return nil, err
	}
	t.LinkSubparts()
	t.LinkClasses()
	if err := loadPreferences(ctx, q, t); err != nil {
		return nil, err
	}

	deptIDs := map[int64]bool{off.ControllingDeptID: true}
	for _, c := range t.Classes {
		deptIDs[c.ManagingDeptID] = true
	}
	for id := range deptIDs {
		d, err := getDepartment(ctx, q, id)
		if err != nil {
			return nil, err
		}
		t.Departments[id] = d
	}
	return t, nil
}

func loadSubparts(ctx context.Context, q querier, t *models.ConfigTree) error {
	sqlStr, args, err := psql.Select("id", "parent_id", "itype_id", "itype_name", "suffix").
		From("scheduling_subparts").
		Where(squirrel.Eq{"config_id": t.Config.ID}).
		ToSql()
	if err != nil {
		return err
	}
	rows, err := q.Query(ctx, sqlStr, args...)
	if err != nil {
		return apperrors.Persistence("load subparts", err)
	}
	defer rows.Close()
	for rows.Next() {
		s := &models.Subpart{ConfigurationID: t.Config.ID, ControllingDeptID: t.Config.ControllingDeptID}
		if err := rows.Scan(&s.ID, &s.ParentID, &s.ItypeID, &s.ItypeName, &s.Suffix); err != nil {
			return apperrors.Persistence("scan subpart", err)
		}
		t.Subparts[s.ID] = s
	}
	if err := rows.Err(); err != nil {
		return apperrors.Persistence("load subparts", err)
	}
	return nil
}

func loadClasses(ctx context.Context, q querier, t *models.ConfigTree) error {
	sqlStr, args, err := psql.Select(prefixed("cl.", classColumns)...).
		From("classes cl").
		Join("scheduling_subparts ss ON ss.id = cl.subpart_id").
		Where(squirrel.Eq{"ss.config_id": t.Config.ID}).
		ToSql()
	if err != nil {
		return err
	}
	rows, err := q.Query(ctx, sqlStr, args...)
	if err != nil {
		return apperrors.Persistence("load classes", err)
	}
	defer rows.Close()
	for rows.Next() {
		c := &models.Class{ControllingDeptID: t.Config.ControllingDeptID}
		if err := rows.Scan(&c.ID, &c.SubpartID, &c.ParentID, &c.ExpectedCapacity, &c.MaxExpectedCapacity, &c.NbrRooms,
			&c.RoomRatio, &c.DatePatternID, &c.LMSID, &c.Suffix, &c.Cancelled, &c.SnapshotLimit, &c.SnapshotLimitDate,
			&c.DisplayInstructor, &c.EnabledForStudentScheduling, &c.ManagingDeptID, &c.SectionNumber); err != nil {
			return apperrors.Persistence("scan class", err)
		}
		t.Classes[c.ID] = c
	}
	if err := rows.Err(); err != nil {
		return apperrors.Persistence("load classes", err)
	}
	return nil
}

func loadPreferences(ctx context.Context, q querier, t *models.ConfigTree) error {
	subpartIDs := make([]int64, 0, len(t.Subparts))
	for id := range t.Subparts {
		subpartIDs = append(subpartIDs, id)
	}
	classIDs := make([]int64, 0, len(t.Classes))
	for id := range t.Classes {
		classIDs = append(classIDs, id)
	}

	sqlStr, args, err := psql.Select("owner_type", "owner_id", "kind", "level", "target_id", "pattern_type", "grid", "distance_from").
		From("preferences").
		Where(squirrel.Or{
			squirrel.Eq{"owner_type": string(models.OwnerSubpart), "owner_id": subpartIDs},
			squirrel.Eq{"owner_type": string(models.OwnerClass), "owner_id": classIDs},
		}).
		OrderBy("owner_type", "owner_id", "position").
		ToSql()
	if err != nil {
		return err
	}
	rows, err := q.Query(ctx, sqlStr, args...)
	if err != nil {
		return apperrors.Persistence("load preferences", err)
	}
	defer rows.Close()
	for rows.Next() {
		var ownerType, kind, level string
		var ownerID int64
		var patternType, grid *string
		var p models.Preference
		if err := rows.Scan(&ownerType, &ownerID, &kind, &level, &p.TargetID, &patternType, &grid, &p.DistanceFrom); err != nil {
			return apperrors.Persistence("scan preference", err)
		}
		p.Kind = models.PreferenceKind(kind)
		p.Level = models.PreferenceLevel(level)
		if patternType != nil {
			p.PatternType = models.TimePatternType(*patternType)
		}
		if grid != nil {
			if p.Grid, err = models.ParseGrid(*grid); err != nil {
				return apperrors.Persistence("parse preference grid", err)
			}
		}
		switch models.OwnerType(ownerType) {
		case models.OwnerSubpart:
			if s, ok := t.Subparts[ownerID]; ok {
				s.Preferences.Add(p)
			}
		case models.OwnerClass:
			if c, ok := t.Classes[ownerID]; ok {
				c.Preferences.Add(p)
			}
		}
	}
	if err := rows.Err(); err != nil {
		return apperrors.Persistence("load preferences", err)
	}
	return nil
}

func prefixed(prefix string, cols []string) []string {
	out := make([]string, len(cols))
	for i, c := range cols {
		out[i] = prefix + c
	}
	return out
}
