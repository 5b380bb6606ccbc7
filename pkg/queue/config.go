package queue

import (
	"context"
	"errors"
	"io"

	// Packages
	pg "github.com/timgit/pg-boss-sub002"
	schema "github.com/timgit/pg-boss-sub002/pkg/queue/schema"
	zap "go.uber.org/zap"
	yaml "gopkg.in/yaml.v3"
)

////////////////////////////////////////////////////////////////////////////////
// TYPES

// Config declares queues, schedules and subscriptions which are applied
// when a server starts
type Config struct {
	Queues        []schema.QueueMeta        `yaml:"queues,omitempty"`
	Schedules     []schema.ScheduleMeta     `yaml:"schedules,omitempty"`
	Subscriptions []schema.SubscriptionMeta `yaml:"subscriptions,omitempty"`
}

////////////////////////////////////////////////////////////////////////////////
// LIFECYCLE

// ReadConfig decodes a YAML configuration. Unknown fields are an error.
func ReadConfig(r io.Reader) (*Config, error) {
	config := new(Config)
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(config); errors.Is(err, io.EOF) {
		return config, nil
	} else if err != nil {
		return nil, pg.ErrBadParameter.Withf("config: %v", err)
	}

	// Validate
	for _, schedule := range config.Schedules {
		if err := schedule.Validate(); err != nil {
			return nil, err
		}
	}

	// Return success
	return config, nil
}

////////////////////////////////////////////////////////////////////////////////
// PUBLIC METHODS

// Apply creates or updates the queues, then the schedules and then the
// subscriptions in the configuration
func (manager *Manager) Apply(ctx context.Context, config *Config) error {
	if config == nil {
		return nil
	}
	for _, meta := range config.Queues {
		if queue, err := manager.CreateQueue(ctx, meta.Name, meta.QueueOptions); err != nil {
			return err
		} else {
			manager.log.Debug("apply queue", zap.String("queue", queue.Name))
		}
	}
	for _, meta := range config.Schedules {
		if schedule, err := manager.Schedule(ctx, meta.Name, meta.Cron, meta.Data, meta.ScheduleOptions); err != nil {
			return err
		} else {
			manager.log.Debug("apply schedule", zap.String("queue", schedule.Name), zap.String("key", schedule.Key), zap.String("cron", schedule.Cron))
		}
	}
	for _, meta := range config.Subscriptions {
		if _, err := manager.Subscribe(ctx, meta.Event, meta.Name); err != nil {
			return err
		}
	}
	return nil
}
