package main

import (
	"fmt"

	// Packages
	pg "github.com/timgit/pg-boss-sub002"
	schema "github.com/timgit/pg-boss-sub002/pkg/queue/schema"
)

///////////////////////////////////////////////////////////////////////////////
// TYPES

type StatusCommands struct {
	Status    StatusCommand    `cmd:"" name:"status" help:"Get the schema version, queue counts and recent warnings." group:"STATUS"`
	Supervise SuperviseCommand `cmd:"" name:"supervise" help:"Run maintenance and monitoring now." group:"STATUS"`
	Warnings  WarningsCommand  `cmd:"" name:"warnings" help:"List stored warnings." group:"STATUS"`
}

type StatusCommand struct{}

type SuperviseCommand struct {
	Names []string `arg:"" name:"name" help:"Queue names (default is all queues)" optional:""`
}

type WarningsCommand struct {
	Offset uint64  `name:"offset" help:"Offset for pagination"`
	Limit  *uint64 `name:"limit" help:"Limit for pagination"`
}

///////////////////////////////////////////////////////////////////////////////
// COMMANDS

func (cmd *StatusCommand) Run(ctx *Globals) error {
	manager, close, err := ctx.Manager()
	if err != nil {
		return err
	}
	defer close()

	// Get the status
	status, err := manager.GetBamStatus(ctx.ctx)
	if err != nil {
		return err
	}

	// Print
	fmt.Println(status)
	return nil
}

func (cmd *SuperviseCommand) Run(ctx *Globals) error {
	manager, close, err := ctx.Manager()
	if err != nil {
		return err
	}
	defer close()

	// Run maintenance and monitoring
	result, err := manager.Supervise(ctx.ctx, cmd.Names...)
	if err != nil {
		return err
	}

	// Print
	fmt.Println(result)
	return nil
}

func (cmd *WarningsCommand) Run(ctx *Globals) error {
	manager, close, err := ctx.Manager()
	if err != nil {
		return err
	}
	defer close()

	// List warnings
	warnings, err := manager.GetWarnings(ctx.ctx, schema.WarningListRequest{
		OffsetLimit: pg.OffsetLimit{Offset: cmd.Offset, Limit: cmd.Limit},
	})
	if err != nil {
		return err
	}

	// Print
	return printJSON(warnings)
}
