package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/yigit/classsetup/internal/app/models"
	"github.com/yigit/classsetup/internal/app/models/dto"
	"github.com/yigit/classsetup/internal/app/repositories"
	"github.com/yigit/classsetup/internal/config"
	"github.com/yigit/classsetup/internal/pkg/apperrors"
	"github.com/yigit/classsetup/internal/pkg/logger"
	"github.com/yigit/classsetup/internal/pkg/metrics"
)

// Authorizer answers whether an actor may exercise a right on an entity.
type Authorizer interface {
	CanActOn(actor models.ActorContext, entity models.Entity, right models.Right) bool
}

// ClassSetupService loads and reconciles the class setup of configurations.
type ClassSetupService struct {
	store      repositories.ClassSetupStore
	authz      Authorizer
	features   config.ClassSetupConfig
	validation ValidationHook
	changeHook ChangeHook
	publisher  ChangePublisher
	canceller  EventCanceller
	recorder   *ChangeRecorder
	log        zerolog.Logger
	now        func() time.Time
}

// ClassSetupOption customizes a ClassSetupService.
type ClassSetupOption func(*ClassSetupService)

// WithValidationHook installs the hook that may veto a reconciliation.
func WithValidationHook(h ValidationHook) ClassSetupOption {
	return func(s *ClassSetupService) { s.validation = h }
}

// WithChangeHook installs the post-commit hook.
func WithChangeHook(h ChangeHook) ClassSetupOption {
	return func(s *ClassSetupService) { s.changeHook = h }
}

// WithChangePublisher installs the live change feed.
func WithChangePublisher(p ChangePublisher) ClassSetupOption {
	return func(s *ClassSetupService) { s.publisher = p }
}

// WithEventCanceller replaces the default store-backed event canceller.
func WithEventCanceller(c EventCanceller) ClassSetupOption {
	return func(s *ClassSetupService) { s.canceller = c }
}

// WithLogger sets the service logger.
func WithLogger(log zerolog.Logger) ClassSetupOption {
	return func(s *ClassSetupService) { s.log = log }
}

// WithClock overrides the transaction timestamp source.
func WithClock(now func() time.Time) ClassSetupOption {
	return func(s *ClassSetupService) { s.now = now }
}

// NewClassSetupService creates a new class setup service instance
func NewClassSetupService(store repositories.ClassSetupStore, authz Authorizer, features config.ClassSetupConfig, opts ...ClassSetupOption) *ClassSetupService {
	s := &ClassSetupService{
		store:     store,
		authz:     authz,
		features:  features,
		canceller: StoreEventCanceller{},
		log:       zerolog.Nop(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = logger.Component(s.log, "class_setup")
	s.recorder = NewChangeRecorder(s.log)
	return s
}

// ReconcileResult is the outcome of a committed reconciliation.
type ReconcileResult struct {
	Summary TransactionSummary
	View    *ClassSetupView
}

// UpdateClassSetup parses req and reconciles the configuration with it.
func (s *ClassSetupService) UpdateClassSetup(ctx context.Context, actor models.ActorContext, configID int64, req *dto.ClassSetupRequest) (*ReconcileResult, error) {
	sub, err := ParseSubmission(configID, req, s.features)
	if err != nil {
		metrics.RecordReconciliation(metrics.OutcomeMalformed, 0)
		return nil, err
	}
	return s.Reconcile(ctx, actor, sub)
}

type stage struct {
	name string
	run  func(ctx context.Context, txn *ReconciliationTransaction, sub *Submission) error
}

func (s *ClassSetupService) stages() []stage {
	return []stage{
		{"configuration", s.updateConfiguration},
		{"create", s.createClasses},
		{"update", s.updateClasses},
		{"reconcile", func(ctx context.Context, txn *ReconciliationTransaction, _ *Submission) error {
			return s.reconcileSubparts(ctx, txn)
		}},
		{"delete", s.deleteClasses},
		{"labels", func(ctx context.Context, txn *ReconciliationTransaction, _ *Submission) error {
			return s.recomputeLabels(ctx, txn)
		}},
	}
}

// Reconcile applies sub in one transaction: create, update, ownership
// reconcile, delete, labels, external validation and change log, then commit.
// Any failure rolls everything back and is returned unchanged.
func (s *ClassSetupService) Reconcile(ctx context.Context, actor models.ActorContext, sub *Submission) (*ReconcileResult, error) {
	start := time.Now()
	txID := uuid.NewString()
	now := s.now()
	log := logger.Scoped(ctx, s.log).With().Str("txID", txID).Int64("configID", sub.ConfigurationID).Int64("managerID", actor.ManagerID).Logger()

	var txn *ReconciliationTransaction
	attempt := 0
	err := s.store.WithTransaction(ctx, func(ctx context.Context, tx repositories.ClassSetupTx) error {
		attempt++
		if attempt > 1 {
			log.Warn().Int("attempt", attempt).Msg("Replaying class setup after a store conflict")
		}
		txn = newReconciliationTransaction(txID, actor, now)

		tree, err := tx.LockConfigurationTree(ctx, sub.ConfigurationID)
		if err != nil {
			return err
		}
		if err := sub.Resolve(tree); err != nil {
			return err
		}
		if err := s.checkPermissions(actor, tree, sub); err != nil {
			return err
		}
		if err := txn.open(tx, tree); err != nil {
			return err
		}

		for _, st := range s.stages() {
			if err := st.run(ctx, txn, sub); err != nil {
				log.Error().Err(err).Str("stage", st.name).Msg("Class setup stage failed, rolling back")
				return err
			}
		}

		if s.validation != nil {
			verdict, err := s.validation.Validate(ctx, tree.Offering, txn.Summary())
			if err != nil {
				log.Error().Err(err).Msg("Configuration change validation failed, rolling back")
				return fmt.Errorf("configuration change validation: %w", err)
			}
			if !verdict.Accepted {
				log.Warn().Str("reason", verdict.Reason).Msg("Configuration change rejected, rolling back")
				return apperrors.NewRejectedError(verdict.Reason)
			}
		}

		s.recorder.Record(ctx, tx, actor, tree.Offering, tree.Config, models.SourceClassSetup, models.OperationUpdate, txn.Timestamp)
		return nil
	})
	if err != nil {
		if txn != nil {
			txn.rollback(err)
		}
		metrics.RecordReconciliation(outcomeOf(err), time.Since(start))
		return nil, err
	}
	txn.commit()

	summary := txn.Summary()
	metrics.RecordReconciliation(metrics.OutcomeCommitted, time.Since(start))
	metrics.RecordClassChanges(len(summary.CreatedIDs), len(summary.UpdatedIDs), len(summary.DeletedIDs), len(summary.ReownedSubparts))
	log.Info().Int("created", len(summary.CreatedIDs)).Int("updated", len(summary.UpdatedIDs)).
		Int("deleted", len(summary.DeletedIDs)).Int("subpartsReowned", len(summary.ReownedSubparts)).
		Msg("Class setup committed")

	refreshed, err := s.store.LoadConfigurationTree(ctx, sub.ConfigurationID)
	if err != nil {
		log.Warn().Err(err).Msg("Unable to reload configuration after commit")
		refreshed = txn.Tree
	}

	if s.changeHook != nil {
		if err := s.changeHook.OnChanged(ctx, refreshed.Offering, summary); err != nil {
			metrics.RecordHookFailure("on_changed")
			log.Warn().Err(err).Msg("Post-commit configuration change hook failed")
		}
	}
	if s.publisher != nil {
		s.publisher.PublishOfferingChange(refreshed.Offering.ID, summary)
	}

	return &ReconcileResult{Summary: summary, View: s.buildView(actor, refreshed)}, nil
}

// checkPermissions runs before any mutation. The configuration needs
// MultipleClassSetup; new classes need MultipleClassSetupClass on their
// subpart; changed classes need it on themselves, plus ClassCancel for a
// cancel flip and MultipleClassSetupDepartment for a department move; removed
// classes need ClassDelete.
func (s *ClassSetupService) checkPermissions(actor models.ActorContext, tree *models.ConfigTree, sub *Submission) error {
	if !s.authz.CanActOn(actor, tree.Config, models.RightMultipleClassSetup) {
		return apperrors.NewForbiddenError(fmt.Sprintf("not allowed to set up classes of configuration %d", tree.Config.ID))
	}
	for _, e := range sub.Classes {
		if e.Ref.IsPending() {
			if !s.authz.CanActOn(actor, tree.Subparts[e.SubpartID], models.RightMultipleClassSetupClass) {
				return apperrors.NewForbiddenError(fmt.Sprintf("not allowed to add classes to subpart %d", e.SubpartID))
			}
			continue
		}
		c := tree.Classes[e.Ref.ID()]
		diff := s.diffClass(c, e, nil)
		if len(diff) == 0 {
			continue
		}
		if !s.authz.CanActOn(actor, c, models.RightMultipleClassSetupClass) {
			return apperrors.NewForbiddenError(fmt.Sprintf("not allowed to edit class %d", c.ID))
		}
		if diff[fieldCancelled] && !s.authz.CanActOn(actor, c, models.RightClassCancel) {
			return apperrors.NewForbiddenError(fmt.Sprintf("not allowed to cancel or reopen class %d", c.ID))
		}
		if diff[fieldManagingDept] && !s.authz.CanActOn(actor, tree.Config, models.RightMultipleClassSetupDepartment) {
			return apperrors.NewForbiddenError(fmt.Sprintf("not allowed to change the managing department of class %d", c.ID))
		}
	}
	live := sub.LiveIDs()
	for _, c := range tree.BuildClassList() {
		if !live[c.ID] && !s.authz.CanActOn(actor, c, models.RightClassDelete) {
			return apperrors.NewForbiddenError(fmt.Sprintf("not allowed to delete class %d", c.ID))
		}
	}
	return nil
}

// ChangeLog returns the newest change-log entries of a configuration.
func (s *ClassSetupService) ChangeLog(ctx context.Context, actor models.ActorContext, configID int64, limit int) ([]*models.ChangeLogEntry, error) {
	tree, err := s.store.LoadConfigurationTree(ctx, configID)
	if err != nil {
		return nil, err
	}
	if !s.authz.CanActOn(actor, tree.Config, models.RightMultipleClassSetup) {
		return nil, apperrors.NewForbiddenError(fmt.Sprintf("not allowed to view changes of configuration %d", configID))
	}
	if limit <= 0 {
		limit = s.features.ChangeLogLimit
	}
	return s.store.ListChangeLog(ctx, configID, limit)
}

func outcomeOf(err error) string {
	switch {
	case errors.Is(err, apperrors.ErrValidationRejected):
		return metrics.OutcomeRejected
	case errors.Is(err, apperrors.ErrPermissionDenied):
		return metrics.OutcomeDenied
	case errors.Is(err, apperrors.ErrMalformedSubmission), errors.Is(err, apperrors.ErrBadRequest):
		return metrics.OutcomeMalformed
	}
	return metrics.OutcomeFailed
}
