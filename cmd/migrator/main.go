// Package main provides the database migration CLI tool for persond.
//
// It applies, rolls back, and reports on the schema backing the
// Postgres event log, snapshot store, and dispatcher dedup/quarantine
// tables, using file-based migrations read from ./migrations.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/persondomain/persond/internal/config"
)

const (
	version = "0.1.0-dev"
	name    = "migrator"

	defaultMigrationsPath = "./migrations"
	defaultMigrationTable = "schema_migrations"
)

func main() {
	var (
		showHelp    = flag.Bool("help", false, "Show help information")
		showVersion = flag.Bool("version", false, "Show version information")
	)
	flag.Parse()

	if *showVersion {
		fmt.Printf("%s v%s\n", name, version)
		os.Exit(0)
	}

	if *showHelp || len(os.Args) < 2 {
		printUsage()
		os.Exit(0)
	}

	command := os.Args[1]

	serviceConfig, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	migratorConfig, err := newMigratorConfig(serviceConfig)
	if err != nil {
		log.Fatalf("invalid migrator configuration: %v", err)
	}

	runner, err := NewMigrationRunner(migratorConfig)
	if err != nil {
		log.Fatalf("failed to create migration runner: %v", err)
	}
	defer func() { _ = runner.Close() }()

	if err := executeCommand(command, runner); err != nil {
		log.Fatalf("migration failed: %v", err)
	}
}

// executeCommand runs the named migration command.
func executeCommand(command string, runner MigrationRunner) error {
	switch command {
	case "up":
		return runner.Up()
	case "down":
		return runner.Down()
	case "status":
		return runner.Status()
	case "version":
		return runner.Version()
	case "drop":
		fmt.Print("WARNING: this will drop all tables. Are you sure? (y/N): ")

		var response string

		_, _ = fmt.Scanln(&response)

		if response != "y" && response != "Y" {
			fmt.Println("operation cancelled")

			return nil
		}

		return runner.Drop()
	default:
		return fmt.Errorf("unknown command: %s", command)
	}
}

func printUsage() {
	fmt.Printf(`%s v%s - database migration tool for persond

USAGE:
    %s [OPTIONS] COMMAND

COMMANDS:
    up      Apply all pending migrations
    status  Show migration status
    version Show current migration version
    down    Rollback the last migration
    drop    Drop all tables (requires confirmation)

OPTIONS:
    --help     Show this help message
    --version  Show version information

ENVIRONMENT VARIABLES:
    PERSON_DATABASE_URL    PostgreSQL connection string (REQUIRED)
    PERSON_MIGRATIONS_PATH Path to migration files (default: %s)
    PERSON_MIGRATION_TABLE Name of the migration tracking table (default: %s)
`, name, version, name, defaultMigrationsPath, defaultMigrationTable)
}
