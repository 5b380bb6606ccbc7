package queue

import (
	"context"

	// Packages
	pg "github.com/timgit/pg-boss-sub002"
	schema "github.com/timgit/pg-boss-sub002/pkg/queue/schema"
	zap "go.uber.org/zap"
)

////////////////////////////////////////////////////////////////////////////////
// PUBLIC METHODS

// Subscribe sends the jobs published to an event to a queue. Returns
// pg.ErrNotFound if the queue does not exist.
func (manager *Manager) Subscribe(ctx context.Context, event, name string) (*schema.Subscription, error) {
	var subscription schema.Subscription
	if err := manager.conn.Insert(ctx, &subscription, schema.SubscriptionMeta{Event: event, Name: name}); err != nil {
		return nil, err
	}
	return &subscription, nil
}

// Unsubscribe removes a queue from an event, and returns the subscription
func (manager *Manager) Unsubscribe(ctx context.Context, event, name string) (*schema.Subscription, error) {
	var subscription schema.Subscription
	if err := manager.conn.Delete(ctx, &subscription, schema.SubscriptionMeta{Event: event, Name: name}); err != nil {
		return nil, err
	}
	return &subscription, nil
}

// GetSubscriptions returns the queues subscribed to an event
func (manager *Manager) GetSubscriptions(ctx context.Context, event string) ([]schema.Subscription, error) {
	var list schema.SubscriptionList
	if err := manager.conn.List(ctx, &list, schema.EventName(event)); err != nil {
		return nil, err
	}
	return list, nil
}

// Publish sends a job to every queue subscribed to an event, in a single
// transaction, and returns the identifiers of the jobs sent. Suppressed
// jobs are not included.
func (manager *Manager) Publish(ctx context.Context, event string, data any, options schema.SendOptions) ([]string, error) {
	if _, err := schema.EventName(event).Name(); err != nil {
		return nil, err
	} else if err := options.Validate(); err != nil {
		return nil, err
	}

	result := []string{}
	if err := manager.conn.Tx(ctx, func(conn pg.Conn) error {
		var subscriptions schema.SubscriptionList
		if err := conn.List(ctx, &subscriptions, schema.EventName(event)); err != nil {
			return err
		}
		for _, subscription := range subscriptions {
			var id schema.JobId
			if err := manager.send(ctx, conn, &id, schema.JobSend{Name: subscription.Name, Data: data, SendOptions: options}); err != nil {
				return err
			} else if id != "" {
				result = append(result, string(id))
			}
		}
		return nil
	}); err != nil {
		return nil, err
	}

	manager.log.Debug("published event", zap.String("event", event), zap.Int("count", len(result)))
	return result, nil
}
