package schema

import (
	"strings"
	"time"

	// Packages
	pg "github.com/timgit/pg-boss-sub002"
	types "github.com/timgit/pg-boss-sub002/pkg/types"
)

////////////////////////////////////////////////////////////////////////////////
// TYPES

// SubscriptionMeta subscribes a queue to an event
type SubscriptionMeta struct {
	Event string `json:"event" yaml:"event" arg:"" help:"Event name"`
	Name  string `json:"name" yaml:"name" arg:"" help:"Queue name"`
}

type Subscription struct {
	Event     string    `json:"event"`
	Name      string    `json:"name"`
	CreatedOn time.Time `json:"created_on"`
	UpdatedOn time.Time `json:"updated_on"`
}

type SubscriptionList []Subscription

// EventName selects the subscriptions for an event
type EventName string

////////////////////////////////////////////////////////////////////////////////
// STRINGIFY

func (s Subscription) String() string {
	return stringify(s)
}

////////////////////////////////////////////////////////////////////////////////
// PUBLIC METHODS

// Name returns the normalized event name, or an error if it is invalid
func (e EventName) Name() (string, error) {
	if event := strings.TrimSpace(string(e)); event == "" {
		return "", pg.ErrBadParameter.With("missing event name")
	} else if !types.IsIdentifier(event) {
		return "", pg.ErrBadParameter.Withf("invalid event name: %q", event)
	} else {
		return event, nil
	}
}

////////////////////////////////////////////////////////////////////////////////
// READER

func (s *Subscription) Scan(row pg.Row) error {
	return row.Scan(&s.Event, &s.Name, &s.CreatedOn, &s.UpdatedOn)
}

func (l *SubscriptionList) Scan(row pg.Row) error {
	var sub Subscription
	if err := sub.Scan(row); err != nil {
		return err
	}
	*l = append(*l, sub)
	return nil
}

////////////////////////////////////////////////////////////////////////////////
// SELECTOR

func (s SubscriptionMeta) Select(bind *pg.Bind, op pg.Op) (string, error) {
	if err := s.bind(bind); err != nil {
		return "", err
	}

	switch op {
	case pg.Delete:
		return bind.Replace("${pgboss.subscription_delete}"), nil
	default:
		return "", pg.ErrInternalError.Withf("unsupported SubscriptionMeta operation %q", op)
	}
}

func (e EventName) Select(bind *pg.Bind, op pg.Op) (string, error) {
	if event, err := e.Name(); err != nil {
		return "", err
	} else {
		bind.Set("event", event)
	}

	switch op {
	case pg.List:
		return bind.Replace("${pgboss.subscription_list}"), nil
	default:
		return "", pg.ErrInternalError.Withf("unsupported EventName operation %q", op)
	}
}

////////////////////////////////////////////////////////////////////////////////
// WRITER

func (s SubscriptionMeta) Insert(bind *pg.Bind) (string, error) {
	if err := s.bind(bind); err != nil {
		return "", err
	}
	return bind.Replace("${pgboss.subscription_insert}"), nil
}

func (s SubscriptionMeta) Update(bind *pg.Bind) error {
	return pg.ErrNotImplemented.With("SubscriptionMeta update")
}

////////////////////////////////////////////////////////////////////////////////
// PRIVATE METHODS

func (s SubscriptionMeta) bind(bind *pg.Bind) error {
	if event, err := EventName(s.Event).Name(); err != nil {
		return err
	} else {
		bind.Set("event", event)
	}
	if name, err := QueueName(s.Name).queueName(); err != nil {
		return err
	} else {
		bind.Set("name", name)
	}
	return nil
}
