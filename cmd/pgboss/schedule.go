package main

import (
	"fmt"

	// Packages
	schema "github.com/timgit/pg-boss-sub002/pkg/queue/schema"
)

///////////////////////////////////////////////////////////////////////////////
// TYPES

type ScheduleCommands struct {
	ListSchedules ListSchedulesCommand `cmd:"" name:"schedules" help:"List schedules." group:"SCHEDULE"`
	Schedule      ScheduleCommand      `cmd:"" name:"schedule" help:"Create or replace a schedule." group:"SCHEDULE"`
	Unschedule    UnscheduleCommand    `cmd:"" name:"unschedule" help:"Delete a schedule." group:"SCHEDULE"`
	Tick          TickCommand          `cmd:"" name:"tick" help:"Send the jobs for schedules which are due." group:"SCHEDULE"`
}

type ListSchedulesCommand struct {
	Name string  `arg:"" name:"name" help:"Queue name" optional:""`
	Key  *string `name:"key" help:"Schedule key"`
}

type ScheduleCommand struct {
	Name     string `arg:"" name:"name" help:"Queue name"`
	Cron     string `arg:"" name:"cron" help:"Cron expression"`
	Data     string `arg:"" name:"data" help:"Job data as JSON" optional:""`
	Key      string `name:"key" help:"Schedule key, which allows several schedules per queue"`
	Timezone string `name:"tz" help:"Timezone for the cron expression" default:"UTC"`
	SendOptions `embed:"" prefix:"job."`
}

type UnscheduleCommand struct {
	Name string `arg:"" name:"name" help:"Queue name"`
	Key  string `name:"key" help:"Schedule key"`
}

type TickCommand struct{}

///////////////////////////////////////////////////////////////////////////////
// COMMANDS

func (cmd *ListSchedulesCommand) Run(ctx *Globals) error {
	manager, close, err := ctx.Manager()
	if err != nil {
		return err
	}
	defer close()

	// List schedules
	schedules, err := manager.GetSchedules(ctx.ctx, cmd.Name, cmd.Key)
	if err != nil {
		return err
	}

	// Print
	return printJSON(schedules)
}

func (cmd *ScheduleCommand) Run(ctx *Globals) error {
	data, err := parseJSON(cmd.Data)
	if err != nil {
		return err
	}

	manager, close, err := ctx.Manager()
	if err != nil {
		return err
	}
	defer close()

	// Create or replace the schedule
	schedule, err := manager.Schedule(ctx.ctx, cmd.Name, cmd.Cron, data, schema.ScheduleOptions{
		Key:      cmd.Key,
		Timezone: cmd.Timezone,
		Send:     cmd.SendOptions.options(),
	})
	if err != nil {
		return err
	}

	// Print
	fmt.Println(schedule)
	return nil
}

func (cmd *UnscheduleCommand) Run(ctx *Globals) error {
	manager, close, err := ctx.Manager()
	if err != nil {
		return err
	}
	defer close()

	// Delete the schedule
	schedule, err := manager.Unschedule(ctx.ctx, cmd.Name, cmd.Key)
	if err != nil {
		return err
	}

	// Print
	fmt.Println(schedule)
	return nil
}

func (cmd *TickCommand) Run(ctx *Globals) error {
	manager, close, err := ctx.Manager()
	if err != nil {
		return err
	}
	defer close()

	// Fire due schedules
	n, err := manager.Tick(ctx.ctx, manager.Now())
	if err != nil {
		return err
	}

	// Print
	fmt.Println("sent", n, "jobs")
	return nil
}
