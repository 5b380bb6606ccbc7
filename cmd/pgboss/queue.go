package main

import (
	"fmt"
	"time"

	// Packages
	pg "github.com/timgit/pg-boss-sub002"
	schema "github.com/timgit/pg-boss-sub002/pkg/queue/schema"
)

///////////////////////////////////////////////////////////////////////////////
// TYPES

type QueueCommands struct {
	ListQueue   ListQueueCommand   `cmd:"" name:"queues" help:"List queues." group:"QUEUE"`
	GetQueue    GetQueueCommand    `cmd:"" name:"queue" help:"Get queue." group:"QUEUE"`
	CreateQueue CreateQueueCommand `cmd:"" name:"create-queue" help:"Create or update queue." group:"QUEUE"`
	UpdateQueue UpdateQueueCommand `cmd:"" name:"update-queue" help:"Update queue." group:"QUEUE"`
	DeleteQueue DeleteQueueCommand `cmd:"" name:"delete-queue" help:"Delete queue and its jobs." group:"QUEUE"`
	QueueStats  QueueStatsCommand  `cmd:"" name:"queue-stats" help:"Get live job counts for a queue." group:"QUEUE"`
	Purge       PurgeCommand       `cmd:"" name:"purge" help:"Delete jobs from queues." group:"QUEUE"`
}

type ListQueueCommand struct {
	Offset uint64  `name:"offset" help:"Offset for pagination"`
	Limit  *uint64 `name:"limit" help:"Limit for pagination"`
}

type GetQueueCommand struct {
	Name string `arg:"" name:"name" help:"Queue name"`
}

type QueueOptions struct {
	RetryLimit       *int           `name:"retry-limit" help:"Number of retries before failing"`
	RetryDelay       *time.Duration `name:"retry-delay" help:"Delay between retries"`
	RetryBackoff     *bool          `name:"retry-backoff" help:"Double the delay on each retry"`
	RetryDelayMax    *time.Duration `name:"retry-delay-max" help:"Maximum delay between retries with backoff"`
	ExpireIn         *time.Duration `name:"expire-in" help:"Time an active job can run before it expires"`
	Retention        *time.Duration `name:"retention" help:"Time a job is kept before it is archived"`
	Deletion         *time.Duration `name:"deletion" help:"Time an archived job is kept before it is deleted"`
	DeadLetter       *string        `name:"dead-letter" help:"Queue which receives jobs which exhaust their retries"`
	GroupConcurrency *int           `name:"group-concurrency" help:"Maximum active jobs per group"`
	GroupTiers       map[string]int `name:"group-tier" help:"Maximum active jobs per group tier, as tier=n"`
	WarningQueued    *int           `name:"warning-queued" help:"Warn when the number of queued jobs exceeds this value"`
}

type CreateQueueCommand struct {
	Name      string `arg:"" name:"name" help:"Queue name"`
	Partition bool   `name:"partition" help:"Store jobs in a dedicated partition"`
	QueueOptions
}

type UpdateQueueCommand struct {
	Name string `arg:"" name:"name" help:"Queue name"`
	QueueOptions
}

type DeleteQueueCommand struct {
	Name string `arg:"" name:"name" help:"Queue name"`
}

type QueueStatsCommand struct {
	Name string `arg:"" name:"name" help:"Queue name"`
}

type PurgeCommand struct {
	Names  []string `arg:"" name:"name" help:"Queue names" optional:""`
	Queued bool     `name:"queued" help:"Only delete jobs which have not been fetched"`
	Stored bool     `name:"stored" help:"Only delete finished jobs"`
}

///////////////////////////////////////////////////////////////////////////////
// COMMANDS

func (cmd *ListQueueCommand) Run(ctx *Globals) error {
	manager, close, err := ctx.Manager()
	if err != nil {
		return err
	}
	defer close()

	// List queues
	queues, err := manager.ListQueues(ctx.ctx, schema.QueueListRequest{
		OffsetLimit: pg.OffsetLimit{Offset: cmd.Offset, Limit: cmd.Limit},
	})
	if err != nil {
		return err
	}

	// Print
	fmt.Println(queues)
	return nil
}

func (cmd *GetQueueCommand) Run(ctx *Globals) error {
	manager, close, err := ctx.Manager()
	if err != nil {
		return err
	}
	defer close()

	// Get one queue
	queue, err := manager.GetQueue(ctx.ctx, cmd.Name)
	if err != nil {
		return err
	}

	// Print
	fmt.Println(queue)
	return nil
}

func (cmd *CreateQueueCommand) Run(ctx *Globals) error {
	manager, close, err := ctx.Manager()
	if err != nil {
		return err
	}
	defer close()

	// Create the queue
	options := cmd.QueueOptions.options()
	options.Partition = cmd.Partition
	queue, err := manager.CreateQueue(ctx.ctx, cmd.Name, options)
	if err != nil {
		return err
	}

	// Print
	fmt.Println(queue)
	return nil
}

func (cmd *UpdateQueueCommand) Run(ctx *Globals) error {
	manager, close, err := ctx.Manager()
	if err != nil {
		return err
	}
	defer close()

	// Update the queue
	queue, err := manager.UpdateQueue(ctx.ctx, cmd.Name, cmd.QueueOptions.options())
	if err != nil {
		return err
	}

	// Print
	fmt.Println(queue)
	return nil
}

func (cmd *DeleteQueueCommand) Run(ctx *Globals) error {
	manager, close, err := ctx.Manager()
	if err != nil {
		return err
	}
	defer close()

	// Delete the queue
	queue, err := manager.DeleteQueue(ctx.ctx, cmd.Name)
	if err != nil {
		return err
	}

	// Print
	fmt.Println(queue)
	return nil
}

func (cmd *QueueStatsCommand) Run(ctx *Globals) error {
	manager, close, err := ctx.Manager()
	if err != nil {
		return err
	}
	defer close()

	// Count the jobs
	stats, err := manager.GetQueueStats(ctx.ctx, cmd.Name)
	if err != nil {
		return err
	}

	// Print
	fmt.Println(stats)
	return nil
}

func (cmd *PurgeCommand) Run(ctx *Globals) error {
	if cmd.Queued && cmd.Stored {
		return pg.ErrBadParameter.With("--queued and --stored cannot be combined")
	} else if (cmd.Queued || cmd.Stored) && len(cmd.Names) != 1 {
		return pg.ErrBadParameter.With("--queued and --stored require one queue name")
	}

	manager, close, err := ctx.Manager()
	if err != nil {
		return err
	}
	defer close()

	// Delete the jobs
	var n int
	switch {
	case cmd.Queued:
		n, err = manager.DeleteQueuedJobs(ctx.ctx, cmd.Names[0])
	case cmd.Stored:
		n, err = manager.DeleteStoredJobs(ctx.ctx, cmd.Names[0])
	default:
		n, err = manager.DeleteAllJobs(ctx.ctx, cmd.Names...)
	}
	if err != nil {
		return err
	}

	// Print
	fmt.Println("deleted", n, "jobs")
	return nil
}

///////////////////////////////////////////////////////////////////////////////
// PRIVATE METHODS

func (o QueueOptions) options() schema.QueueOptions {
	return schema.QueueOptions{
		RetryLimit:       o.RetryLimit,
		RetryDelay:       o.RetryDelay,
		RetryBackoff:     o.RetryBackoff,
		RetryDelayMax:    o.RetryDelayMax,
		ExpireIn:         o.ExpireIn,
		Retention:        o.Retention,
		Deletion:         o.Deletion,
		DeadLetter:       o.DeadLetter,
		GroupConcurrency: o.GroupConcurrency,
		GroupTiers:       o.GroupTiers,
		WarningQueued:    o.WarningQueued,
	}
}
