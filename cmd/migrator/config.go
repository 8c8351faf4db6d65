package main

import (
	"errors"
	"os"
	"path/filepath"

	"github.com/persondomain/persond/internal/config"
)

// ErrMigrationsDirMissing is returned when the configured migrations
// directory does not exist.
var ErrMigrationsDirMissing = errors.New("migrator: migrations directory does not exist")

// migratorConfig holds the migrator's own settings, layered on top of
// the service-wide database configuration.
type migratorConfig struct {
	databaseURL    string
	migrationsPath string
	migrationTable string
}

// newMigratorConfig derives migrator settings from the service config
// and migrator-specific environment overrides.
func newMigratorConfig(serviceConfig *config.Config) (*migratorConfig, error) {
	mc := &migratorConfig{
		databaseURL:    serviceConfig.DatabaseURL,
		migrationsPath: config.GetEnvStr("PERSON_MIGRATIONS_PATH", defaultMigrationsPath),
		migrationTable: config.GetEnvStr("PERSON_MIGRATION_TABLE", defaultMigrationTable),
	}

	if mc.databaseURL == "" {
		return nil, config.ErrDatabaseURLEmpty
	}

	absPath, err := filepath.Abs(mc.migrationsPath)
	if err != nil {
		return nil, err
	}

	mc.migrationsPath = absPath

	if _, err := os.Stat(mc.migrationsPath); os.IsNotExist(err) {
		return nil, ErrMigrationsDirMissing
	}

	return mc, nil
}
