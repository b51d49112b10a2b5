// Command migrate applies, rolls back or reports the embedded schema
// migrations.
//
//	migrate [-database-url URL] up|down|version|force N|steps N
package main

import (
	"flag"
	"os"
	"strconv"

	"github.com/go-faster/errors"
	"github.com/golang-migrate/migrate/v4"
	"go.uber.org/zap"

	"github.com/xenking/epicerie/internal/repository"
)

func main() {
	var databaseURL string
	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.Parse()

	lg, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer func() { _ = lg.Sync() }()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		lg.Fatal("database URL is required: set --database-url or DATABASE_URL")
	}

	if err := run(lg, databaseURL, flag.Args()); err != nil {
		lg.Fatal("Migration failed", zap.Error(err))
	}
}

func run(lg *zap.Logger, databaseURL string, args []string) error {
	if len(args) == 0 {
		return errors.New("command required: up, down, version, force N or steps N")
	}

	m, err := repository.NewMigrator(databaseURL)
	if err != nil {
		return err
	}
	defer func() {
		if srcErr, dbErr := m.Close(); srcErr != nil || dbErr != nil {
			lg.Warn("Close migrator", zap.NamedError("source", srcErr), zap.NamedError("database", dbErr))
		}
	}()

	switch cmd := args[0]; cmd {
	case "up":
		err = m.Up()
	case "down":
		err = m.Down()
	case "force", "steps":
		if len(args) < 2 {
			return errors.Errorf("%s requires a number", cmd)
		}
		n, convErr := strconv.Atoi(args[1])
		if convErr != nil {
			return errors.Wrapf(convErr, "parse %s argument", cmd)
		}
		if cmd == "force" {
			err = m.Force(n)
		} else {
			err = m.Steps(n)
		}
	case "version":
	default:
		return errors.Errorf("unknown command %q", cmd)
	}
	if errors.Is(err, migrate.ErrNoChange) {
		lg.Info("No change")
		err = nil
	}
	if err != nil {
		return errors.Wrap(err, args[0])
	}

	version, dirty, err := m.Version()
	switch {
	case errors.Is(err, migrate.ErrNilVersion):
		lg.Info("No migrations applied")
		return nil
	case err != nil:
		return errors.Wrap(err, "version")
	}
	lg.Info("Schema version", zap.Uint("version", version), zap.Bool("dirty", dirty))
	return nil
}
