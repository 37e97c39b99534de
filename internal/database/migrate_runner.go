package database

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"streamcode/internal/middleware"

	"gorm.io/gorm"
)

// SchemaMigration is one row of the applied-migrations ledger.
type SchemaMigration struct {
	Version   int       `gorm:"primaryKey;autoIncrement:false"`
	Name      string    `gorm:"size:255;not null"`
	AppliedAt time.Time `gorm:"not null"`
}

// TableName returns the ledger table name.
func (SchemaMigration) TableName() string {
	return "schema_migrations"
}

const createLedgerSQL = `CREATE TABLE IF NOT EXISTS schema_migrations (
	version BIGINT PRIMARY KEY,
	name VARCHAR(255) NOT NULL,
	applied_at TIMESTAMPTZ NOT NULL
)`

// Migrator applies the embedded SQL migrations against one database.
// Each script runs in the same transaction as its ledger write.
type Migrator struct {
	db         *gorm.DB
	registered []Migration
	now        func() time.Time
}

// NewMigrator returns a Migrator over the embedded migration set.
func NewMigrator(db *gorm.DB) *Migrator {
	return &Migrator{db: db, registered: GetMigrations(), now: time.Now}
}

func (m *Migrator) ensureLedger(ctx context.Context) error {
	if err := m.db.WithContext(ctx).Exec(createLedgerSQL).Error; err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}
	return nil
}

// Applied returns the versions recorded in the ledger, ascending.
// A missing ledger table reads as an empty history.
func (m *Migrator) Applied(ctx context.Context) ([]int, error) {
	var versions []int
	err := m.db.WithContext(ctx).Model(&SchemaMigration{}).Order("version").Pluck("version", &versions).Error
	if err != nil {
		if missingTable(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read schema_migrations: %w", err)
	}
	return versions, nil
}

// Pending returns registered migrations not yet in the ledger.
func (m *Migrator) Pending(ctx context.Context) ([]Migration, error) {
	applied, err := m.Applied(ctx)
	if err != nil {
		return nil, err
	}
	var pending []Migration
	for _, mig := range m.registered {
		if !slices.Contains(applied, mig.Version) {
			pending = append(pending, mig)
		}
	}
	return pending, nil
}

// Up applies every pending migration in version order. It refuses to run
// when the ledger holds versions this binary does not know about.
func (m *Migrator) Up(ctx context.Context) error {
	if err := m.ensureLedger(ctx); err != nil {
		return err
	}
	applied, err := m.Applied(ctx)
	if err != nil {
		return err
	}
	if err := validateAppliedVersions(applied, m.registered); err != nil {
		return err
	}

	for _, mig := range m.registered {
		if slices.Contains(applied, mig.Version) {
			continue
		}
		middleware.Logger.Info("applying migration", slog.String("migration", mig.String()))
		err := m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if err := tx.Exec(mig.UpScript).Error; err != nil {
				return err
			}
			return tx.Create(&SchemaMigration{Version: mig.Version, Name: mig.Name, AppliedAt: m.now().UTC()}).Error
		})
		if err != nil {
			return fmt.Errorf("migration %s: %w", mig.String(), err)
		}
	}
	return nil
}

// Down reverts a single applied migration.
func (m *Migrator) Down(ctx context.Context, version int) error {
	i := slices.IndexFunc(m.registered, func(mig Migration) bool { return mig.Version == version })
	if i < 0 {
		return fmt.Errorf("migration version %d not found", version)
	}
	mig := m.registered[i]
	applied, err := m.Applied(ctx)
	if err != nil {
		return err
	}
	if !slices.Contains(applied, version) {
		return fmt.Errorf("migration %s has not been applied", mig.String())
	}

	middleware.Logger.Info("rolling back migration", slog.String("migration", mig.String()))
	err = m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec(mig.DownScript).Error; err != nil {
			return err
		}
		return tx.Where("version = ?", version).Delete(&SchemaMigration{}).Error
	})
	if err != nil {
		return fmt.Errorf("rollback %s: %w", mig.String(), err)
	}
	return nil
}

// RunMigrations applies all pending SQL migrations.
func RunMigrations(ctx context.Context, db *gorm.DB) error {
	return NewMigrator(db).Up(ctx)
}

// RollbackMigration reverts the migration with the given version.
func RollbackMigration(ctx context.Context, db *gorm.DB, version int) error {
	return NewMigrator(db).Down(ctx, version)
}

func missingTable(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "no such table") ||
		(strings.Contains(msg, "relation") && strings.Contains(msg, "does not exist"))
}

func validateAppliedVersions(applied []int, registered []Migration) error {
	var unknown []string
	for _, v := range applied {
		if !slices.ContainsFunc(registered, func(m Migration) bool { return m.Version == v }) {
			unknown = append(unknown, fmt.Sprintf("%06d", v))
		}
	}
	if len(unknown) > 0 {
		return fmt.Errorf("schema_migrations has versions unknown to this build: %s", strings.Join(unknown, ", "))
	}
	return nil
}
