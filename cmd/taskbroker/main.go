package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/alecthomas/kingpin/v2"
	"github.com/joho/godotenv"
	"github.com/oklog/run"
	"github.com/sirupsen/logrus"

	"github.com/slok/taskbroker/cmd/taskbroker/commands"
	"github.com/slok/taskbroker/internal/log"
	loglogrus "github.com/slok/taskbroker/internal/log/logrus"
)

const (
	// Version is the application version (set via ldflags).
	Version = "dev"
)

// Run runs the main application.
func Run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) (err error) {
	// The env file must be loaded before kingpin resolves the flag envars.
	if envFile := envFileFromArgs(args[1:]); envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			return fmt.Errorf("could not load env file %q: %w", envFile, err)
		}
	}

	app := kingpin.New("taskbroker", "Escrow task broker for the home services marketplace.")
	app.DefaultEnvars()
	rootCmd := commands.NewRootCommand(app)

	serveCmd := commands.NewServeCommand(rootCmd, app)
	migrateCmd := commands.NewMigrateCommand(rootCmd, app)

	taskCmd := app.Command("task", "Inspect tasks.")
	taskListCmd := commands.NewTaskListCommand(rootCmd, taskCmd)
	taskShowCmd := commands.NewTaskShowCommand(rootCmd, taskCmd)

	paymentCmd := app.Command("payment", "Inspect escrow payments.")
	paymentListCmd := commands.NewPaymentListCommand(rootCmd, paymentCmd)

	disputeCmd := app.Command("dispute", "Manage disputed tasks.")
	disputeListCmd := commands.NewDisputeListCommand(rootCmd, disputeCmd)
	disputeShowCmd := commands.NewDisputeShowCommand(rootCmd, disputeCmd)
	disputeResolveCmd := commands.NewDisputeResolveCommand(rootCmd, disputeCmd)

	cmds := map[string]commands.Command{
		serveCmd.Name():          serveCmd,
		migrateCmd.Name():        migrateCmd,
		taskListCmd.Name():       taskListCmd,
		taskShowCmd.Name():       taskShowCmd,
		paymentListCmd.Name():    paymentListCmd,
		disputeListCmd.Name():    disputeListCmd,
		disputeShowCmd.Name():    disputeShowCmd,
		disputeResolveCmd.Name(): disputeResolveCmd,
	}

	// Parse command.
	cmdName, err := app.Parse(args[1:])
	if err != nil {
		return fmt.Errorf("invalid command configuration: %w", err)
	}

	// Set standard input/output.
	rootCmd.Stdin = stdin
	rootCmd.Stdout = stdout
	rootCmd.Stderr = stderr

	// Commands printing tables or JSON don't log unless debugging.
	printerCommands := map[string]bool{
		"task list":    true,
		"task show":    true,
		"payment list": true,
		"dispute list": true,
		"dispute show": true,
	}
	if printerCommands[cmdName] && !rootCmd.Debug {
		rootCmd.NoLog = true
	}

	// Set logger.
	rootCmd.Logger = getLogger(*rootCmd)

	var g run.Group

	// OS signals.
	{
		signalCtx, signalCancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
		defer signalCancel()

		g.Add(
			func() error {
				<-signalCtx.Done()
				rootCmd.Logger.Debugf("Termination signal received")
				return nil
			},
			func(_ error) {
				signalCancel()
			},
		)
	}

	// Execute command.
	{
		ctx, cancel := context.WithCancel(ctx)
		defer cancel()

		g.Add(
			func() error {
				err := cmds[cmdName].Run(ctx)
				if err != nil {
					return fmt.Errorf("%q command failed: %w", cmdName, err)
				}
				return nil
			},
			func(_ error) {
				cancel()
			},
		)
	}

	return g.Run()
}

// envFileFromArgs returns the --env-file flag value without parsing the rest of the flags.
func envFileFromArgs(args []string) string {
	for i, a := range args {
		if v, ok := strings.CutPrefix(a, "--env-file="); ok {
			return v
		}
		if a == "--env-file" && i+1 < len(args) {
			return args[i+1]
		}
	}
	return ""
}

// getLogger returns the application logger.
func getLogger(config commands.RootCommand) log.Logger {
	if config.NoLog {
		return log.Noop
	}

	logrusLog := logrus.New()
	logrusLog.Out = config.Stderr // Logs go to stderr so stdout stays clean for prints.
	logrusLogEntry := logrus.NewEntry(logrusLog)

	if config.Debug {
		logrusLogEntry.Logger.SetLevel(logrus.DebugLevel)
	}

	switch config.LoggerType {
	case commands.LoggerTypeDefault:
		logrusLogEntry.Logger.SetFormatter(&logrus.TextFormatter{
			ForceColors:   !config.NoColor,
			DisableColors: config.NoColor,
		})
	case commands.LoggerTypeJSON:
		logrusLogEntry.Logger.SetFormatter(&logrus.JSONFormatter{})
	}

	logger := loglogrus.NewLogrus(logrusLogEntry).WithValues(log.Kv{
		"version": Version,
	})

	logger.Debugf("Debug level is enabled")

	return logger
}

func main() {
	ctx := context.Background()
	err := Run(ctx, os.Args, os.Stdin, os.Stdout, os.Stderr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}
