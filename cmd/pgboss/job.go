package main

import (
	"context"
	"fmt"
	"time"

	// Packages
	pg "github.com/timgit/pg-boss-sub002"
	queue "github.com/timgit/pg-boss-sub002/pkg/queue"
	schema "github.com/timgit/pg-boss-sub002/pkg/queue/schema"
)

///////////////////////////////////////////////////////////////////////////////
// TYPES

type JobCommands struct {
	Send        SendCommand        `cmd:"" name:"send" help:"Send a job." group:"JOB"`
	Fetch       FetchCommand       `cmd:"" name:"fetch" help:"Fetch jobs and mark them active." group:"JOB"`
	Complete    CompleteCommand    `cmd:"" name:"complete" help:"Complete active jobs." group:"JOB"`
	Fail        FailCommand        `cmd:"" name:"fail" help:"Fail jobs, retrying where allowed." group:"JOB"`
	Cancel      CancelCommand      `cmd:"" name:"cancel" help:"Cancel unfinished jobs." group:"JOB"`
	Resume      ResumeCommand      `cmd:"" name:"resume" help:"Resume cancelled jobs." group:"JOB"`
	Retry       RetryCommand       `cmd:"" name:"retry" help:"Retry failed jobs." group:"JOB"`
	GetJob      GetJobCommand      `cmd:"" name:"job" help:"Get a job." group:"JOB"`
	FindJobs    FindJobsCommand    `cmd:"" name:"jobs" help:"Find jobs in a queue." group:"JOB"`
	Publish     PublishCommand     `cmd:"" name:"publish" help:"Send a job to every queue subscribed to an event." group:"PUBSUB"`
	Subscribe   SubscribeCommand   `cmd:"" name:"subscribe" help:"Subscribe a queue to an event." group:"PUBSUB"`
	Unsubscribe UnsubscribeCommand `cmd:"" name:"unsubscribe" help:"Unsubscribe a queue from an event." group:"PUBSUB"`
}

type SendOptions struct {
	Id           string         `name:"id" help:"Job identifier (default is a new UUID)"`
	Priority     int            `name:"priority" help:"Priority, higher is fetched first"`
	StartAfter   *time.Duration `name:"start-after" help:"Delay before the job can be fetched"`
	SingletonKey string         `name:"key" help:"Key which allows only one unfinished job"`
	Throttle     time.Duration  `name:"throttle" help:"Send at most one job per key within this window"`
	Debounce     time.Duration  `name:"debounce" help:"Replace the data of the pending job for the key within this window"`
	GroupId      string         `name:"group" help:"Group for concurrency limits"`
	GroupTier    string         `name:"tier" help:"Group tier for concurrency limits"`
	RetryLimit   *int           `name:"retry-limit" help:"Number of retries before failing"`
	RetryDelay   *time.Duration `name:"retry-delay" help:"Delay between retries"`
	RetryBackoff *bool          `name:"retry-backoff" help:"Double the delay on each retry"`
	ExpireIn     *time.Duration `name:"expire-in" help:"Time an active job can run before it expires"`
	DeadLetter   string         `name:"dead-letter" help:"Queue which receives the job when it exhausts retries"`
}

type SendCommand struct {
	Name string `arg:"" name:"name" help:"Queue name"`
	Data string `arg:"" name:"data" help:"Job data as JSON" optional:""`
	SendOptions
}

type FetchCommand struct {
	Name      string `arg:"" name:"name" help:"Queue name"`
	BatchSize int    `name:"batch-size" help:"Number of jobs to fetch" default:"1"`
}

type CompleteCommand struct {
	Name          string   `arg:"" name:"name" help:"Queue name"`
	Ids           []string `arg:"" name:"id" help:"Job identifiers"`
	Output        string   `name:"output" help:"Job output as JSON"`
	IncludeQueued bool     `name:"include-queued" help:"Also complete jobs which have not been fetched"`
}

type FailCommand struct {
	Name   string   `arg:"" name:"name" help:"Queue name"`
	Ids    []string `arg:"" name:"id" help:"Job identifiers"`
	Output string   `name:"output" help:"Job output as JSON"`
}

type TransitionCommand struct {
	Name string   `arg:"" name:"name" help:"Queue name"`
	Ids  []string `arg:"" name:"id" help:"Job identifiers"`
}

type CancelCommand struct {
	TransitionCommand
}

type ResumeCommand struct {
	TransitionCommand
}

type RetryCommand struct {
	TransitionCommand
}

type GetJobCommand struct {
	Name     string `arg:"" name:"name" help:"Queue name"`
	Id       string `arg:"" name:"id" help:"Job identifier"`
	Archived bool   `name:"archived" help:"Also look in the archive"`
}

type FindJobsCommand struct {
	Name   string  `arg:"" name:"name" help:"Queue name"`
	Key    string  `name:"key" help:"Singleton key"`
	Queued bool    `name:"queued" help:"Only jobs which have not been fetched"`
	Data   string  `name:"data" help:"Only jobs whose data contains this JSON value"`
	Offset uint64  `name:"offset" help:"Offset for pagination"`
	Limit  *uint64 `name:"limit" help:"Limit for pagination"`
}

type PublishCommand struct {
	Event string `arg:"" name:"event" help:"Event name"`
	Data  string `arg:"" name:"data" help:"Job data as JSON" optional:""`
}

type SubscribeCommand struct {
	Event string `arg:"" name:"event" help:"Event name"`
	Name  string `arg:"" name:"name" help:"Queue name"`
}

type UnsubscribeCommand struct {
	Event string `arg:"" name:"event" help:"Event name"`
	Name  string `arg:"" name:"name" help:"Queue name"`
}

///////////////////////////////////////////////////////////////////////////////
// COMMANDS

func (cmd *SendCommand) Run(ctx *Globals) error {
	data, err := parseJSON(cmd.Data)
	if err != nil {
		return err
	}
	options := cmd.SendOptions.options()
	if cmd.Throttle > 0 && cmd.Debounce > 0 {
		return pg.ErrBadParameter.With("--throttle and --debounce cannot be combined")
	} else if (cmd.Throttle > 0 || cmd.Debounce > 0) && cmd.SingletonKey == "" {
		return pg.ErrBadParameter.With("--throttle and --debounce require --key")
	}

	manager, close, err := ctx.Manager()
	if err != nil {
		return err
	}
	defer close()

	// Send the job
	var id string
	switch {
	case cmd.Throttle > 0:
		id, err = manager.SendThrottled(ctx.ctx, cmd.Name, data, cmd.Throttle, cmd.SingletonKey, options)
	case cmd.Debounce > 0:
		id, err = manager.SendDebounced(ctx.ctx, cmd.Name, data, cmd.Debounce, cmd.SingletonKey, options)
	case cmd.StartAfter != nil:
		id, err = manager.SendAfter(ctx.ctx, cmd.Name, data, manager.Now().Add(*cmd.StartAfter), options)
	default:
		id, err = manager.Send(ctx.ctx, cmd.Name, data, options)
	}
	if err != nil {
		return err
	}

	// Print
	if id == "" {
		fmt.Println("job suppressed")
	} else {
		fmt.Println(id)
	}
	return nil
}

func (cmd *FetchCommand) Run(ctx *Globals) error {
	manager, close, err := ctx.Manager()
	if err != nil {
		return err
	}
	defer close()

	// Fetch jobs
	jobs, err := manager.Fetch(ctx.ctx, cmd.Name, schema.FetchOptions{BatchSize: cmd.BatchSize, IncludeMetadata: true})
	if err != nil {
		return err
	}

	// Print
	return printJSON(jobs)
}

func (cmd *CompleteCommand) Run(ctx *Globals) error {
	output, err := parseJSON(cmd.Output)
	if err != nil {
		return err
	}

	manager, close, err := ctx.Manager()
	if err != nil {
		return err
	}
	defer close()

	// Complete the jobs
	n, err := manager.Complete(ctx.ctx, cmd.Name, cmd.Ids, output, queue.CompleteOptions{IncludeQueued: cmd.IncludeQueued})
	if err != nil {
		return err
	}

	// Print
	fmt.Println("completed", n, "jobs")
	return nil
}

func (cmd *FailCommand) Run(ctx *Globals) error {
	output, err := parseJSON(cmd.Output)
	if err != nil {
		return err
	}

	manager, close, err := ctx.Manager()
	if err != nil {
		return err
	}
	defer close()

	// Fail the jobs
	n, err := manager.Fail(ctx.ctx, cmd.Name, cmd.Ids, output)
	if err != nil {
		return err
	}

	// Print
	fmt.Println("failed", n, "jobs")
	return nil
}

func (cmd *CancelCommand) Run(ctx *Globals) error {
	return cmd.run(ctx, "cancelled", (*queue.Manager).Cancel)
}

func (cmd *ResumeCommand) Run(ctx *Globals) error {
	return cmd.run(ctx, "resumed", (*queue.Manager).Resume)
}

func (cmd *RetryCommand) Run(ctx *Globals) error {
	return cmd.run(ctx, "retried", (*queue.Manager).Retry)
}

func (cmd *GetJobCommand) Run(ctx *Globals) error {
	manager, close, err := ctx.Manager()
	if err != nil {
		return err
	}
	defer close()

	// Get the job
	job, err := manager.GetJob(ctx.ctx, cmd.Name, cmd.Id, cmd.Archived)
	if err != nil {
		return err
	}

	// Print
	fmt.Println(job)
	return nil
}

func (cmd *FindJobsCommand) Run(ctx *Globals) error {
	data, err := parseJSON(cmd.Data)
	if err != nil {
		return err
	}

	manager, close, err := ctx.Manager()
	if err != nil {
		return err
	}
	defer close()

	// Find the jobs
	jobs, err := manager.FindJobs(ctx.ctx, cmd.Name, schema.FindRequest{
		OffsetLimit: pg.OffsetLimit{Offset: cmd.Offset, Limit: cmd.Limit},
		Key:         cmd.Key,
		Queued:      cmd.Queued,
		Data:        data,
	})
	if err != nil {
		return err
	}

	// Print
	return printJSON(jobs)
}

func (cmd *PublishCommand) Run(ctx *Globals) error {
	data, err := parseJSON(cmd.Data)
	if err != nil {
		return err
	}

	manager, close, err := ctx.Manager()
	if err != nil {
		return err
	}
	defer close()

	// Publish the event
	ids, err := manager.Publish(ctx.ctx, cmd.Event, data, schema.SendOptions{})
	if err != nil {
		return err
	}

	// Print
	return printJSON(ids)
}

func (cmd *SubscribeCommand) Run(ctx *Globals) error {
	manager, close, err := ctx.Manager()
	if err != nil {
		return err
	}
	defer close()

	// Subscribe
	subscription, err := manager.Subscribe(ctx.ctx, cmd.Event, cmd.Name)
	if err != nil {
		return err
	}

	// Print
	fmt.Println(subscription)
	return nil
}

func (cmd *UnsubscribeCommand) Run(ctx *Globals) error {
	manager, close, err := ctx.Manager()
	if err != nil {
		return err
	}
	defer close()

	// Unsubscribe
	subscription, err := manager.Unsubscribe(ctx.ctx, cmd.Event, cmd.Name)
	if err != nil {
		return err
	}

	// Print
	fmt.Println(subscription)
	return nil
}

///////////////////////////////////////////////////////////////////////////////
// PRIVATE METHODS

func (cmd *TransitionCommand) run(ctx *Globals, verb string, fn func(*queue.Manager, context.Context, string, ...string) (int, error)) error {
	manager, close, err := ctx.Manager()
	if err != nil {
		return err
	}
	defer close()

	// Transition the jobs
	n, err := fn(manager, ctx.ctx, cmd.Name, cmd.Ids...)
	if err != nil {
		return err
	}

	// Print
	fmt.Println(verb, n, "jobs")
	return nil
}

func (o SendOptions) options() schema.SendOptions {
	return schema.SendOptions{
		Id:           o.Id,
		Priority:     o.Priority,
		SingletonKey: o.SingletonKey,
		GroupId:      o.GroupId,
		GroupTier:    o.GroupTier,
		RetryLimit:   o.RetryLimit,
		RetryDelay:   o.RetryDelay,
		RetryBackoff: o.RetryBackoff,
		ExpireIn:     o.ExpireIn,
		DeadLetter:   o.DeadLetter,
	}
}
