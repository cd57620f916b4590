package commands

import (
	"context"
	"fmt"

	"github.com/alecthomas/kingpin/v2"

	"github.com/slok/taskbroker/internal/app/query"
	"github.com/slok/taskbroker/internal/storage"
)

type TaskListCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand

	status       string
	clientID     string
	contractorID string
	format       string
}

// NewTaskListCommand returns the task list command.
func NewTaskListCommand(rootCmd *RootCommand, parent *kingpin.CmdClause) *TaskListCommand {
	c := &TaskListCommand{rootCmd: rootCmd}

	c.Cmd = parent.Command("list", "List tasks, newest first.")
	c.Cmd.Flag("status", "Filter by comma separated statuses (created, accepted, in_progress, completed, cancelled, disputed).").StringVar(&c.status)
	c.Cmd.Flag("client", "Filter by client ID.").StringVar(&c.clientID)
	c.Cmd.Flag("contractor", "Filter by contractor ID.").StringVar(&c.contractorID)
	c.Cmd.Flag("format", "Output format (table, json).").Default(formatTable).EnumVar(&c.format, formatTable, formatJSON)

	return c
}

func (c TaskListCommand) Name() string { return c.Cmd.FullCommand() }

func (c TaskListCommand) Run(ctx context.Context) error {
	statuses, err := parseStatuses(c.status)
	if err != nil {
		return fmt.Errorf("invalid status filter: %w", err)
	}

	platform, err := c.rootCmd.PlatformConfig(ctx)
	if err != nil {
		return err
	}

	repo, err := c.rootCmd.Repository(ctx)
	if err != nil {
		return err
	}
	defer repo.Close()

	svc, err := query.NewService(query.ServiceConfig{Repository: repo, Logger: c.rootCmd.Logger})
	if err != nil {
		return fmt.Errorf("could not create service: %w", err)
	}

	tasks, err := svc.ListTasks(ctx, operatorPrincipal("cli"), query.ListTasksRequest{
		Statuses:     statuses,
		ClientID:     c.clientID,
		ContractorID: c.contractorID,
	})
	if err != nil {
		return fmt.Errorf("could not list tasks: %w", err)
	}

	if err := newPrinter(c.format, c.rootCmd.Stdout, platform.Currency).PrintTaskList(tasks); err != nil {
		return fmt.Errorf("could not print tasks: %w", err)
	}

	return nil
}

type TaskShowCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand

	id     string
	format string
}

// NewTaskShowCommand returns the task show command.
func NewTaskShowCommand(rootCmd *RootCommand, parent *kingpin.CmdClause) *TaskShowCommand {
	c := &TaskShowCommand{rootCmd: rootCmd}

	c.Cmd = parent.Command("show", "Show the details of a task.")
	c.Cmd.Arg("id", "Task ID.").Required().StringVar(&c.id)
	c.Cmd.Flag("format", "Output format (table, json).").Default(formatTable).EnumVar(&c.format, formatTable, formatJSON)

	return c
}

func (c TaskShowCommand) Name() string { return c.Cmd.FullCommand() }

func (c TaskShowCommand) Run(ctx context.Context) error {
	platform, err := c.rootCmd.PlatformConfig(ctx)
	if err != nil {
		return err
	}

	repo, err := c.rootCmd.Repository(ctx)
	if err != nil {
		return err
	}
	defer repo.Close()

	var r storage.TaskRepository = repo
	task, err := r.GetTask(ctx, c.id)
	if err != nil {
		return fmt.Errorf("could not get task: %w", err)
	}

	if err := newPrinter(c.format, c.rootCmd.Stdout, platform.Currency).PrintTask(*task); err != nil {
		return fmt.Errorf("could not print task: %w", err)
	}

	return nil
}
