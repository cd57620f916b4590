package commands

import (
	"context"
	"fmt"

	"github.com/alecthomas/kingpin/v2"

	"github.com/slok/taskbroker/internal/app/dispute"
	"github.com/slok/taskbroker/internal/app/payment"
	"github.com/slok/taskbroker/internal/app/query"
	"github.com/slok/taskbroker/internal/gateway"
	"github.com/slok/taskbroker/internal/gateway/fake"
	kvmemory "github.com/slok/taskbroker/internal/kv/memory"
	"github.com/slok/taskbroker/internal/model"
	"github.com/slok/taskbroker/internal/notify"
	"github.com/slok/taskbroker/internal/notify/logsink"
	"github.com/slok/taskbroker/internal/storage/sqlite"
)

type DisputeListCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand

	format string
}

// NewDisputeListCommand returns the dispute list command.
func NewDisputeListCommand(rootCmd *RootCommand, parent *kingpin.CmdClause) *DisputeListCommand {
	c := &DisputeListCommand{rootCmd: rootCmd}

	c.Cmd = parent.Command("list", "List the tasks waiting for a dispute resolution.")
	c.Cmd.Flag("format", "Output format (table, json).").Default(formatTable).EnumVar(&c.format, formatTable, formatJSON)

	return c
}

func (c DisputeListCommand) Name() string { return c.Cmd.FullCommand() }

func (c DisputeListCommand) Run(ctx context.Context) error {
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

	tasks, err := svc.ListDisputes(ctx, operatorPrincipal("cli"))
	if err != nil {
		return fmt.Errorf("could not list disputes: %w", err)
	}

	if err := newPrinter(c.format, c.rootCmd.Stdout, platform.Currency).PrintTaskList(tasks); err != nil {
		return fmt.Errorf("could not print disputes: %w", err)
	}

	return nil
}

type DisputeShowCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand

	taskID string
	format string
}

// NewDisputeShowCommand returns the dispute show command.
func NewDisputeShowCommand(rootCmd *RootCommand, parent *kingpin.CmdClause) *DisputeShowCommand {
	c := &DisputeShowCommand{rootCmd: rootCmd}

	c.Cmd = parent.Command("show", "Show a disputed task with its payments and ratings.")
	c.Cmd.Arg("task-id", "Task ID.").Required().StringVar(&c.taskID)
	c.Cmd.Flag("format", "Output format (table, json).").Default(formatTable).EnumVar(&c.format, formatTable, formatJSON)

	return c
}

func (c DisputeShowCommand) Name() string { return c.Cmd.FullCommand() }

func (c DisputeShowCommand) Run(ctx context.Context) error {
	platform, err := c.rootCmd.PlatformConfig(ctx)
	if err != nil {
		return err
	}

	repo, err := c.rootCmd.Repository(ctx)
	if err != nil {
		return err
	}
	defer repo.Close()

	// Details only read the repository.
	gw, err := fake.NewGateway(fake.GatewayConfig{Logger: c.rootCmd.Logger})
	if err != nil {
		return fmt.Errorf("could not create gateway: %w", err)
	}
	svc, err := newDisputeService(repo, gw, nil, platform, c.rootCmd)
	if err != nil {
		return err
	}

	details, err := svc.Details(ctx, operatorPrincipal("cli"), c.taskID)
	if err != nil {
		return fmt.Errorf("could not get dispute: %w", err)
	}

	if err := newPrinter(c.format, c.rootCmd.Stdout, platform.Currency).PrintDispute(*details); err != nil {
		return fmt.Errorf("could not print dispute: %w", err)
	}

	return nil
}

type DisputeResolveCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand
	gateway *gatewayFlags

	taskID  string
	kind    string
	notes   string
	adminID string
	format  string
}

// NewDisputeResolveCommand returns the dispute resolve command.
func NewDisputeResolveCommand(rootCmd *RootCommand, parent *kingpin.CmdClause) *DisputeResolveCommand {
	c := &DisputeResolveCommand{rootCmd: rootCmd}

	kinds := make([]string, 0, len(model.DisputeResolutionKinds))
	for _, k := range model.DisputeResolutionKinds {
		kinds = append(kinds, string(k))
	}

	c.Cmd = parent.Command("resolve", "Resolve a disputed task moving the escrow money.")
	c.Cmd.Arg("task-id", "Task ID.").Required().StringVar(&c.taskID)
	c.Cmd.Flag("kind", "Resolution kind.").Required().EnumVar(&c.kind, kinds...)
	c.Cmd.Flag("notes", "Administrator notes stored with the resolution.").StringVar(&c.notes)
	c.Cmd.Flag("admin-id", "ID of the administrator resolving the dispute.").Envar("TASKBROKER_ADMIN_ID").Required().StringVar(&c.adminID)
	c.Cmd.Flag("format", "Output format (table, json).").Default(formatTable).EnumVar(&c.format, formatTable, formatJSON)
	c.gateway = registerGatewayFlags(c.Cmd, gatewayHTTP)

	return c
}

func (c DisputeResolveCommand) Name() string { return c.Cmd.FullCommand() }

func (c DisputeResolveCommand) Run(ctx context.Context) error {
	logger := c.rootCmd.Logger

	platform, err := c.rootCmd.PlatformConfig(ctx)
	if err != nil {
		return err
	}

	repo, err := c.rootCmd.Repository(ctx)
	if err != nil {
		return err
	}
	defer repo.Close()

	gw, err := c.gateway.build(platform, logger)
	if err != nil {
		return err
	}

	// The process exits right after, events are sent synchronously.
	sink := logsink.NewSink(logger)
	pub := notify.PublisherFunc(func(ctx context.Context, e model.Event) {
		if err := sink.Send(ctx, e); err != nil {
			logger.Errorf("Could not send event %s: %s", e.Type, err)
		}
	})

	svc, err := newDisputeService(repo, gw, pub, platform, c.rootCmd)
	if err != nil {
		return err
	}

	res, err := svc.Resolve(ctx, operatorPrincipal(c.adminID), c.taskID, model.DisputeResolutionKind(c.kind), c.notes)
	if err != nil {
		return fmt.Errorf("could not resolve dispute: %w", err)
	}

	if err := newPrinter(c.format, c.rootCmd.Stdout, platform.Currency).PrintResolution(*res); err != nil {
		return fmt.Errorf("could not print resolution: %w", err)
	}

	return nil
}

func newDisputeService(repo *sqlite.Repository, gw gateway.Gateway, pub notify.Publisher, platform model.PlatformConfig, root *RootCommand) (*dispute.Service, error) {
	payments, err := payment.NewService(payment.ServiceConfig{
		Repository: repo,
		Gateway:    gw,
		Dedupe:     kvmemory.NewStore(nil),
		Publisher:  pub,
		Platform:   platform,
		Logger:     root.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("could not create payment service: %w", err)
	}

	svc, err := dispute.NewService(dispute.ServiceConfig{
		Repository: repo,
		Payments:   payments,
		Publisher:  pub,
		Platform:   platform,
		Logger:     root.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("could not create dispute service: %w", err)
	}

	return svc, nil
}
