package services

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"
	"github.com/yigit/classsetup/internal/app/models"
	"github.com/yigit/classsetup/internal/app/repositories"
	"github.com/yigit/classsetup/internal/pkg/logger"
	"github.com/yigit/classsetup/internal/pkg/metrics"
)

// ChangeRecorder appends change-log entries. It never fails the caller:
// problems are logged at warn level and the entry is skipped.
type ChangeRecorder struct {
	log zerolog.Logger
}

// NewChangeRecorder creates a recorder logging through log.
func NewChangeRecorder(log zerolog.Logger) *ChangeRecorder {
	return &ChangeRecorder{log: logger.Component(log, "change_recorder")}
}

// Record appends one entry for obj and returns it, or nil when nothing was written.
func (r *ChangeRecorder) Record(ctx context.Context, tx repositories.ClassSetupTx, actor models.ActorContext,
	offering *models.Offering, obj models.Auditable, source models.ChangeSource, op models.ChangeOperation, at time.Time) *models.ChangeLogEntry {
	entry := BuildChangeLogEntry(actor, offering, obj, source, op, at)
	if entry.ManagerID <= 0 {
		r.log.Warn().Str("objectType", entry.ObjectType).Int64("objectID", entry.ObjectID).
			Msg("Unable to add change log: no timetable manager")
		return nil
	}
	if entry.SessionID <= 0 {
		r.log.Warn().Str("objectType", entry.ObjectType).Int64("objectID", entry.ObjectID).
			Msg("Unable to add change log: no academic session")
		return nil
	}
	if err := tx.InsertChangeLog(ctx, entry); err != nil {
		metrics.RecordHookFailure("change_log")
		r.log.Warn().Err(err).Str("objectType", entry.ObjectType).Int64("objectID", entry.ObjectID).
			Msg("Unable to add change log")
		return nil
	}
	return entry
}

// BuildChangeLogEntry fills an entry; the session falls back to the offering's
// and the department to the offering's controlling department.
func BuildChangeLogEntry(actor models.ActorContext, offering *models.Offering, obj models.Auditable,
	source models.ChangeSource, op models.ChangeOperation, at time.Time) *models.ChangeLogEntry {
	entry := &models.ChangeLogEntry{
		Timestamp:   at,
		ManagerID:   actor.ManagerID,
		SessionID:   actor.SessionID,
		ObjectType:  obj.AuditType(),
		ObjectID:    obj.AuditID(),
		ObjectTitle: changeTitle(obj.AuditTitle()),
		Source:      source,
		Operation:   op,
	}
	if offering != nil {
		if entry.SessionID <= 0 {
			entry.SessionID = offering.SessionID
		}
		if offering.SubjectAreaID > 0 {
			entry.SubjectAreaID = ptr(offering.SubjectAreaID)
		}
		if offering.ControllingDeptID > 0 {
			entry.DepartmentID = ptr(offering.ControllingDeptID)
		}
	}
	return entry
}

func changeTitle(title string) string {
	title = strings.TrimSpace(title)
	if title == "" {
		return "N/A"
	}
	if utf8.RuneCountInString(title) <= models.MaxChangeTitleLength {
		return title
	}
	runes := []rune(title)
	return string(runes[:models.MaxChangeTitleLength])
}
