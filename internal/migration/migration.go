package migration

import (
	"database/sql"
	"errors"
	"fmt"
	"io/fs"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	auditdomain "github.com/smallbiznis/settlement/internal/audit/domain"
	balancedomain "github.com/smallbiznis/settlement/internal/balance/domain"
	ledgerdomain "github.com/smallbiznis/settlement/internal/ledger/domain"
	payoutdomain "github.com/smallbiznis/settlement/internal/payout/domain"
	refunddomain "github.com/smallbiznis/settlement/internal/refund/domain"
	revsharedomain "github.com/smallbiznis/settlement/internal/revenueshare/domain"
	txdomain "github.com/smallbiznis/settlement/internal/transaction/domain"
	"gorm.io/gorm"
)

// Models lists every persisted type, in dependency order.
func Models() []any {
	return []any{
		&revsharedomain.Configuration{},
		&txdomain.Transaction{},
		&txdomain.Note{},
		&balancedomain.SellerBalance{},
		&balancedomain.Entry{},
		&ledgerdomain.Account{},
		&ledgerdomain.Entry{},
		&ledgerdomain.EntryLine{},
		&payoutdomain.Account{},
		&payoutdomain.Payout{},
		&payoutdomain.Item{},
		&refunddomain.Refund{},
		&auditdomain.Entry{},
	}
}

// RunMigrations applies the embedded postgres migrations.
func RunMigrations(db *sql.DB) error {
	if db == nil {
		return errors.New("migration database handle is required")
	}

	sub, err := fs.Sub(embeddedMigrations, migrationsDir)
	if err != nil {
		return fmt.Errorf("open migrations: %w", err)
	}

	source, err := iofs.New(sub, ".")
	if err != nil {
		return fmt.Errorf("create migration source: %w", err)
	}

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("create migration driver: %w", err)
	}

	migrator, err := migrate.NewWithInstance("iofs", source, "postgres", driver)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}

	upErr := migrator.Up()
	if upErr != nil && !errors.Is(upErr, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", upErr)
	}
	// Do not call migrator.Close here because it would close the shared *sql.DB.

	return nil
}

// AutoMigrate creates the schema from the models on dialects without SQL migrations.
func AutoMigrate(conn *gorm.DB) error {
	if err := conn.AutoMigrate(Models()...); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	return nil
}
