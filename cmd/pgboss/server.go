package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	// Packages
	prometheus "github.com/prometheus/client_golang/prometheus"
	collectors "github.com/prometheus/client_golang/prometheus/collectors"
	promhttp "github.com/prometheus/client_golang/prometheus/promhttp"
	queue "github.com/timgit/pg-boss-sub002/pkg/queue"
	version "github.com/timgit/pg-boss-sub002/pkg/version"
	zap "go.uber.org/zap"
	errgroup "golang.org/x/sync/errgroup"
)

///////////////////////////////////////////////////////////////////////////////
// TYPES

type ServerCommands struct {
	Install   InstallCommand   `cmd:"" name:"install" help:"Install or upgrade the queue schema." group:"SERVER"`
	RunServer RunServerCommand `cmd:"" name:"run" help:"Run maintenance, monitoring and scheduling." group:"SERVER"`
}

type InstallCommand struct{}

type RunServerCommand struct {
	Addr    string `name:"addr" env:"PGBOSS_ADDR" help:"Metrics listen address, or empty to disable" default:"localhost:9090"`
	Config  string `name:"config" env:"PGBOSS_CONFIG" type:"existingfile" help:"YAML file declaring queues, schedules and subscriptions"`
	Persist bool   `name:"persist-warnings" help:"Store warnings in the database"`

	// Intervals
	Maintenance time.Duration `name:"maintenance" help:"Maintenance interval" default:"1m"`
	Monitor     time.Duration `name:"monitor" help:"Monitor interval" default:"1m"`
	Schedule    time.Duration `name:"schedule" help:"Schedule interval" default:"30s"`
}

///////////////////////////////////////////////////////////////////////////////
// GLOBALS

const (
	shutdownTimeout = 10 * time.Second
)

///////////////////////////////////////////////////////////////////////////////
// COMMANDS

func (cmd *InstallCommand) Run(ctx *Globals) error {
	manager, close, err := ctx.Manager()
	if err != nil {
		return err
	}
	defer close()

	// Report the installed version
	schemaVersion, err := manager.SchemaVersion(ctx.ctx)
	if err != nil {
		return err
	}
	fmt.Printf("schema %q installed at version %d\n", manager.Schema(), schemaVersion)
	return nil
}

func (cmd *RunServerCommand) Run(ctx *Globals) error {
	var config *queue.Config
	if cmd.Config != "" {
		if r, err := os.Open(cmd.Config); err != nil {
			return err
		} else if config, err = queue.ReadConfig(r); err != nil {
			return errors.Join(err, r.Close())
		} else if err := r.Close(); err != nil {
			return err
		}
	}

	// Create the manager
	manager, close, err := ctx.Manager(
		queue.WithMaintenanceInterval(cmd.Maintenance),
		queue.WithMonitorInterval(cmd.Monitor),
		queue.WithScheduleInterval(cmd.Schedule),
		queue.WithPersistWarnings(cmd.Persist),
	)
	if err != nil {
		return err
	}
	defer close()

	// Apply the configuration
	if err := manager.Apply(ctx.ctx, config); err != nil {
		return err
	}

	// Run the manager and the metrics server concurrently
	group, groupctx := errgroup.WithContext(ctx.ctx)
	ctx.log.Info("started", zap.String("name", version.ExecName()), zap.String("version", version.Version()), zap.String("schema", manager.Schema()))

	group.Go(func() error {
		if err := manager.Run(groupctx); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("queue error: %w", err)
		}
		return nil
	})

	if cmd.Addr != "" {
		server := newMetricsServer(cmd.Addr, manager)
		group.Go(func() error {
			ctx.log.Info("listening", zap.String("addr", cmd.Addr))
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("server error: %w", err)
			}
			return nil
		})
		group.Go(func() error {
			<-groupctx.Done()
			shutdownctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return server.Shutdown(shutdownctx)
		})
	}

	// Wait for everything to finish
	result := group.Wait()
	if result == nil {
		ctx.log.Info("terminated", zap.String("name", version.ExecName()))
	}

	// Return any error
	return result
}

///////////////////////////////////////////////////////////////////////////////
// PRIVATE METHODS

func newMetricsServer(addr string, manager *queue.Manager) *http.Server {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		queue.NewCollector(manager),
	)

	router := http.NewServeMux()
	router.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	return &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: shutdownTimeout,
	}
}
