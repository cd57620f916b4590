package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/alecthomas/kingpin/v2"
	"k8s.io/client-go/util/homedir"

	"github.com/slok/taskbroker/internal/log"
	"github.com/slok/taskbroker/internal/model"
	"github.com/slok/taskbroker/internal/printer"
	storageio "github.com/slok/taskbroker/internal/storage/io"
	"github.com/slok/taskbroker/internal/storage/sqlite"
)

const (
	// LoggerTypeDefault is the logger default type.
	LoggerTypeDefault = "default"
	// LoggerTypeJSON is the logger json type.
	LoggerTypeJSON = "json"
)

// Command represents an application command, all commands that want to be executed
// should implement and setup on main.
type Command interface {
	Name() string
	Run(ctx context.Context) error
}

// RootCommand represents the root command configuration and global configuration
// for all the commands.
type RootCommand struct {
	// Global flags.
	Debug      bool
	NoLog      bool
	NoColor    bool
	LoggerType string
	DBPath     string
	ConfigPath string
	EnvFile    string

	// Global instances.
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
	Logger log.Logger
}

// NewRootCommand initializes the main root configuration.
func NewRootCommand(app *kingpin.Application) *RootCommand {
	c := &RootCommand{}

	app.Flag("debug", "Enable debug mode.").BoolVar(&c.Debug)
	app.Flag("no-log", "Disable logger.").BoolVar(&c.NoLog)
	app.Flag("no-color", "Disable logger color.").BoolVar(&c.NoColor)
	app.Flag("logger", "Selects the logger type.").Default(LoggerTypeDefault).EnumVar(&c.LoggerType, LoggerTypeDefault, LoggerTypeJSON)

	defaultDBPath := filepath.Join(homedir.HomeDir(), ".taskbroker", "taskbroker.db")
	app.Flag("db-path", "Path to the SQLite database file.").Envar("TASKBROKER_DB_PATH").Default(defaultDBPath).StringVar(&c.DBPath)
	app.Flag("config", "Path to the platform policy YAML file, defaults are used when missing.").StringVar(&c.ConfigPath)
	app.Flag("env-file", "Path to a .env file loaded into the environment before anything else.").StringVar(&c.EnvFile)

	return c
}

// PlatformConfig returns the platform policy from the config file or the defaults.
func (c RootCommand) PlatformConfig(ctx context.Context) (model.PlatformConfig, error) {
	if c.ConfigPath == "" {
		return model.DefaultPlatformConfig(), nil
	}

	abs, err := filepath.Abs(c.ConfigPath)
	if err != nil {
		return model.PlatformConfig{}, fmt.Errorf("invalid config path: %w", err)
	}

	repo := storageio.NewPlatformConfigYAMLRepository(os.DirFS(filepath.Dir(abs)), filepath.Base(abs))
	cfg, err := repo.GetPlatformConfig(ctx)
	if err != nil {
		return model.PlatformConfig{}, fmt.Errorf("could not load platform config: %w", err)
	}

	return *cfg, nil
}

// Repository returns the SQLite repository, the caller must close it.
func (c RootCommand) Repository(ctx context.Context) (*sqlite.Repository, error) {
	repo, err := sqlite.NewRepository(ctx, sqlite.RepositoryConfig{
		DBPath: c.DBPath,
		Logger: c.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("could not create repository: %w", err)
	}
	return repo, nil
}

const (
	formatTable = "table"
	formatJSON  = "json"
)

func newPrinter(format string, w io.Writer, currency string) printer.Printer {
	if format == formatJSON {
		return printer.NewJSONPrinter(w)
	}
	return printer.NewTablePrinter(w, currency)
}

// operatorPrincipal is the administrator running the CLI.
func operatorPrincipal(id string) model.Principal {
	return model.Principal{ID: id, Roles: []model.Role{model.RoleAdmin}, Status: model.PrincipalStatusActive}
}

func parseStatuses(s string) ([]model.TaskStatus, error) {
	var statuses []model.TaskStatus
	for _, part := range strings.Split(s, ",") {
		part = strings.ToLower(strings.TrimSpace(part))
		if part == "" {
			continue
		}
		st := model.TaskStatus(part)
		if err := st.Validate(); err != nil {
			return nil, err
		}
		statuses = append(statuses, st)
	}
	return statuses, nil
}
