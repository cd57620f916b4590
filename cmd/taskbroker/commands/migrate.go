package commands

import (
	"context"
	"fmt"

	"github.com/alecthomas/kingpin/v2"

	"github.com/slok/taskbroker/internal/printer"
	"github.com/slok/taskbroker/internal/storage/sqlite"
	"github.com/slok/taskbroker/internal/storage/sqlite/migrations"
)

type MigrateCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand

	down bool
}

// NewMigrateCommand returns the migrate command.
func NewMigrateCommand(rootCmd *RootCommand, app *kingpin.Application) *MigrateCommand {
	c := &MigrateCommand{rootCmd: rootCmd}

	c.Cmd = app.Command("migrate", "Apply the database schema migrations.")
	c.Cmd.Flag("down", "Revert every migration instead (destroys the data).").BoolVar(&c.down)

	return c
}

func (c MigrateCommand) Name() string { return c.Cmd.FullCommand() }

func (c MigrateCommand) Run(ctx context.Context) error {
	db, err := sqlite.Open(c.rootCmd.DBPath)
	if err != nil {
		return err
	}
	defer db.Close()

	migrator, err := migrations.NewMigrator(db, c.rootCmd.Logger)
	if err != nil {
		return fmt.Errorf("could not create migrator: %w", err)
	}

	if c.down {
		err = migrator.Down(ctx)
	} else {
		err = migrator.Up(ctx)
	}
	if err != nil {
		return fmt.Errorf("could not migrate: %w", err)
	}

	version, dirty, err := migrator.Version(ctx)
	if err != nil {
		return fmt.Errorf("could not get schema version: %w", err)
	}

	msg := fmt.Sprintf("Schema at version %d of %s", version, c.rootCmd.DBPath)
	if dirty {
		msg += " (dirty)"
	}
	return printer.NewTablePrinter(c.rootCmd.Stdout, "").PrintMessage(msg)
}
