package repositories

import (
	"context"

	"github.com/yigit/classsetup/internal/app/models"
)

// ClassSetupReader is the read side of the class setup store.
type ClassSetupReader interface {
	// LoadConfigurationTree assembles the arena for one configuration.
	LoadConfigurationTree(ctx context.Context, configID int64) (*models.ConfigTree, error)
	// ListChangeLog returns the newest change-log entries recorded against the configuration.
	ListChangeLog(ctx context.Context, configID int64, limit int) ([]*models.ChangeLogEntry, error)
}

// ClassSetupTx is the write side, valid only inside WithTransaction.
type ClassSetupTx interface {
	// LockConfigurationTree loads the arena and holds the configuration until the transaction ends.
	LockConfigurationTree(ctx context.Context, configID int64) (*models.ConfigTree, error)
	GetDepartment(ctx context.Context, id int64) (*models.Department, error)

	UpdateConfiguration(ctx context.Context, cfg *models.Configuration) error

	// InsertClass persists c and returns its new id.
	InsertClass(ctx context.Context, c *models.Class) (int64, error)
	// UpdateClass persists every scalar attribute of c, including parent and managing department.
	UpdateClass(ctx context.Context, c *models.Class) error
	// DeleteClass removes the class with its preferences, distribution memberships and events.
	DeleteClass(ctx context.Context, id int64) error
	UpdateSectionNumbers(ctx context.Context, numbers map[int64]int) error

	ReplacePreferences(ctx context.Context, owner models.OwnerRef, prefs models.PreferenceSet) error
	// DeleteDistributionPreferences drops every distribution membership of owner.
	DeleteDistributionPreferences(ctx context.Context, owner models.OwnerRef) (int, error)

	SetClassEventsCancelled(ctx context.Context, classID int64, cancelled bool) error

	// InsertChangeLog appends an entry; a failure leaves the surrounding transaction usable.
	InsertChangeLog(ctx context.Context, entry *models.ChangeLogEntry) error
}

// TxFn runs inside a class setup transaction.
type TxFn func(ctx context.Context, tx ClassSetupTx) error

// ClassSetupStore is implemented by the Postgres and in-memory stores.
type ClassSetupStore interface {
	ClassSetupReader
	// WithTransaction commits when fn returns nil and rolls back otherwise.
	WithTransaction(ctx context.Context, fn TxFn) error
}
