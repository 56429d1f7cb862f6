package migrations

import (
	"errors"

	"github.com/cristianortiz/auctionSettlement/internal/shared/config"
	"github.com/cristianortiz/auctionSettlement/internal/shared/logger"
	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"go.uber.org/zap"
)

var log = logger.GetLogger()

const sourceURL = "file://internal/shared/db/migrations/sql"

// RunMigrations applies every pending migration of the return-context schema.
func RunMigrations(cfg config.DBConfig) error {
	log.Info("RunMigrations",
		zap.String("host", cfg.Host),
		zap.String("database", cfg.Name),
	)
	m, err := migrate.New(sourceURL, cfg.DSN())
	if err != nil {
		return err
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}
	version, dirty, _ := m.Version()
	log.Info("Migrations applied", zap.Uint("version", version), zap.Bool("dirty", dirty))
	return nil
}
