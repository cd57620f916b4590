package commands

import (
	"context"
	"fmt"

	"github.com/alecthomas/kingpin/v2"

	"github.com/slok/taskbroker/internal/app/payment"
	"github.com/slok/taskbroker/internal/gateway/fake"
	kvmemory "github.com/slok/taskbroker/internal/kv/memory"
)

type PaymentListCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand

	taskID string
	format string
}

// NewPaymentListCommand returns the payment list command.
func NewPaymentListCommand(rootCmd *RootCommand, parent *kingpin.CmdClause) *PaymentListCommand {
	c := &PaymentListCommand{rootCmd: rootCmd}

	c.Cmd = parent.Command("list", "List the escrow payments of a task, newest first.")
	c.Cmd.Arg("task-id", "Task ID.").Required().StringVar(&c.taskID)
	c.Cmd.Flag("format", "Output format (table, json).").Default(formatTable).EnumVar(&c.format, formatTable, formatJSON)

	return c
}

func (c PaymentListCommand) Name() string { return c.Cmd.FullCommand() }

func (c PaymentListCommand) Run(ctx context.Context) error {
	platform, err := c.rootCmd.PlatformConfig(ctx)
	if err != nil {
		return err
	}

	repo, err := c.rootCmd.Repository(ctx)
	if err != nil {
		return err
	}
	defer repo.Close()

	// Listing never reaches the gateway.
	gw, err := fake.NewGateway(fake.GatewayConfig{Logger: c.rootCmd.Logger})
	if err != nil {
		return fmt.Errorf("could not create gateway: %w", err)
	}

	svc, err := payment.NewService(payment.ServiceConfig{
		Repository: repo,
		Gateway:    gw,
		Dedupe:     kvmemory.NewStore(nil),
		Platform:   platform,
		Logger:     c.rootCmd.Logger,
	})
	if err != nil {
		return fmt.Errorf("could not create service: %w", err)
	}

	payments, err := svc.ListTaskPayments(ctx, operatorPrincipal("cli"), c.taskID)
	if err != nil {
		return fmt.Errorf("could not list payments: %w", err)
	}

	if err := newPrinter(c.format, c.rootCmd.Stdout, platform.Currency).PrintPaymentList(payments); err != nil {
		return fmt.Errorf("could not print payments: %w", err)
	}

	return nil
}
