package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	// Packages
	kong "github.com/alecthomas/kong"
	pg "github.com/timgit/pg-boss-sub002"
	queue "github.com/timgit/pg-boss-sub002/pkg/queue"
	otel "go.opentelemetry.io/otel"
	zap "go.uber.org/zap"
)

///////////////////////////////////////////////////////////////////////////////
// TYPES

type Globals struct {
	// Debug option
	Debug   bool             `name:"debug" help:"Enable debug logging"`
	Version kong.VersionFlag `name:"version" help:"Print version and exit"`

	// Postgres options
	PG struct {
		URL      string `name:"url" env:"PGBOSS_URL" help:"Database URL"`
		User     string `name:"user" env:"PG_USER" help:"Database user"`
		Password string `name:"password" env:"PG_PASSWORD" help:"Database password"`
		Schema   string `name:"schema" env:"PGBOSS_SCHEMA" help:"Queue schema" default:"pgboss"`
	} `embed:"" prefix:"pg."`

	// Private fields
	ctx    context.Context
	cancel context.CancelFunc
	log    *zap.Logger
}

type CLI struct {
	Globals
	ServerCommands
	QueueCommands
	JobCommands
	ScheduleCommands
	StatusCommands
}

///////////////////////////////////////////////////////////////////////////////
// GLOBALS

// Spans are exported when an OpenTelemetry tracer provider is registered
const (
	tracerName = "pgboss"
)

///////////////////////////////////////////////////////////////////////////////
// LIFECYCLE

func main() {
	cli := new(CLI)
	ctx := kong.Parse(cli,
		kong.Name("pgboss"),
		kong.Description("pgboss command line interface"),
		kong.Vars{
			"version": VersionJSON(),
		},
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact: true,
		}),
	)

	// Create the logger
	if log, err := newLogger(cli.Debug); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	} else {
		cli.Globals.log = log
	}
	defer cli.Globals.log.Sync()

	// Create the context and cancel function
	cli.Globals.ctx, cli.Globals.cancel = signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cli.Globals.cancel()

	// Call the Run() method of the selected parsed command.
	if err := ctx.Run(&cli.Globals); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

///////////////////////////////////////////////////////////////////////////////
// PRIVATE METHODS

func newLogger(debug bool) (*zap.Logger, error) {
	if debug {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

// Conn returns a connection pool
func (g *Globals) Conn() (pg.PoolConn, error) {
	opts := []pg.Opt{
		pg.WithApplicationName(tracerName),
		pg.WithTracer(otel.Tracer(tracerName)),
	}
	if g.PG.URL != "" {
		opts = append(opts, pg.WithURL(g.PG.URL))
	}
	if g.PG.User != "" || g.PG.Password != "" {
		opts = append(opts, pg.WithCredentials(g.PG.User, g.PG.Password))
	}
	if g.Debug {
		opts = append(opts, pg.WithTrace(func(_ context.Context, query string, args any, err error) {
			if err != nil {
				g.log.Debug(query, zap.Any("args", args), zap.Error(err))
			} else {
				g.log.Debug(query, zap.Any("args", args))
			}
		}))
	}

	// Create a pool connection, and ping the database
	conn, err := pg.NewPool(g.ctx, opts...)
	if err != nil {
		return nil, err
	} else if err := conn.Ping(g.ctx); err != nil {
		conn.Close()
		return nil, err
	}

	// Return success
	return conn, nil
}

// Manager returns a queue manager and a function which closes the
// connection pool
func (g *Globals) Manager(opt ...queue.Opt) (*queue.Manager, func(), error) {
	conn, err := g.Conn()
	if err != nil {
		return nil, nil, err
	}
	manager, err := queue.New(g.ctx, conn, append([]queue.Opt{
		queue.WithSchema(g.PG.Schema),
		queue.WithLogger(g.log),
		queue.WithTracer(otel.Tracer(tracerName)),
	}, opt...)...)
	if err != nil {
		conn.Close()
		return nil, nil, err
	}
	return manager, conn.Close, nil
}

// printJSON writes a value as indented JSON to stdout
func printJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}

// parseJSON parses a JSON argument, or returns nil when empty
func parseJSON(value string) (any, error) {
	if value == "" {
		return nil, nil
	}
	var result any
	if err := json.Unmarshal([]byte(value), &result); err != nil {
		return nil, pg.ErrBadParameter.Withf("invalid JSON: %v", err)
	}
	return result, nil
}
