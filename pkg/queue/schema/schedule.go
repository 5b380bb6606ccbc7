package schema

import (
	"encoding/json"
	"strings"
	"time"
	_ "time/tzdata"

	// Packages
	cron "github.com/robfig/cron/v3"
	pg "github.com/timgit/pg-boss-sub002"
)

////////////////////////////////////////////////////////////////////////////////
// TYPES

// ScheduleOptions are the options for a schedule. Send is applied to each
// job which is sent when the schedule fires.
type ScheduleOptions struct {
	Key      string      `json:"key,omitempty" yaml:"key,omitempty" help:"Schedule key, which allows several schedules per queue"`
	Timezone string      `json:"timezone,omitempty" yaml:"timezone,omitempty" help:"Timezone for the cron expression (default UTC)"`
	Send     SendOptions `json:"send,omitempty" yaml:"send,omitempty"`
}

// ScheduleMeta is a schedule to create or replace
type ScheduleMeta struct {
	Name string `json:"name" yaml:"name" arg:"" help:"Queue name"`
	Cron string `json:"cron" yaml:"cron" arg:"" help:"Cron expression"`
	Data any    `json:"data,omitempty" yaml:"data,omitempty"`
	ScheduleOptions `yaml:",inline"`
}

type Schedule struct {
	Name      string          `json:"name"`
	Key       string          `json:"key,omitempty"`
	Cron      string          `json:"cron"`
	Timezone  string          `json:"timezone"`
	Data      json.RawMessage `json:"data,omitempty"`
	Options   SendOptions     `json:"options"`
	FiredOn   *time.Time      `json:"fired_on,omitempty"`
	CreatedOn time.Time       `json:"created_on"`
	UpdatedOn time.Time       `json:"updated_on"`
}

type ScheduleList []Schedule

// ScheduleKey selects a schedule
type ScheduleKey struct {
	Name string
	Key  string
}

// ScheduleListRequest selects schedules. An empty name selects all queues,
// and a nil key selects all keys.
type ScheduleListRequest struct {
	Name string
	Key  *string
}

// ScheduleFire advances the fired_on watermark of a schedule. No row is
// returned when another process has already fired the occurrence.
type ScheduleFire struct {
	ScheduleKey
	FiredOn time.Time
}

////////////////////////////////////////////////////////////////////////////////
// GLOBALS

var (
	cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
)

const (
	// maxOccurrences bounds the walk through missed occurrences
	maxOccurrences = 100000

	// maxSearchWindow bounds the search back for the latest occurrence
	maxSearchWindow = 100 * 365 * 24 * time.Hour
)

////////////////////////////////////////////////////////////////////////////////
// STRINGIFY

func (s Schedule) String() string {
	return stringify(s)
}

////////////////////////////////////////////////////////////////////////////////
// PUBLIC METHODS

// ParseCron parses a five-field cron expression or a descriptor such as
// @hourly
func ParseCron(expr string) (cron.Schedule, error) {
	if expr = strings.TrimSpace(expr); expr == "" {
		return nil, pg.ErrBadParameter.With("missing cron expression")
	} else if sched, err := cronParser.Parse(expr); err != nil {
		return nil, pg.ErrBadParameter.Withf("invalid cron expression %q: %v", expr, err)
	} else {
		return sched, nil
	}
}

// LoadLocation returns the location for a timezone, or UTC when empty
func LoadLocation(tz string) (*time.Location, error) {
	if tz = strings.TrimSpace(tz); tz == "" {
		return time.UTC, nil
	} else if loc, err := time.LoadLocation(tz); err != nil {
		return nil, pg.ErrBadParameter.Withf("invalid timezone %q", tz)
	} else {
		return loc, nil
	}
}

// Validate checks the queue name, cron expression, timezone and options
func (s ScheduleMeta) Validate() error {
	if _, err := QueueName(s.Name).queueName(); err != nil {
		return err
	}
	if _, err := ParseCron(s.Cron); err != nil {
		return err
	}
	if _, err := LoadLocation(s.Timezone); err != nil {
		return err
	}
	if s.Send.Id != "" {
		return pg.ErrBadParameter.With("scheduled jobs cannot have a fixed id")
	}
	return s.Send.Validate()
}

// Due returns the latest occurrence in the range (from, at], where from is
// the latest of the fired_on watermark, the creation time and at minus the
// catch-up window. Returns false if there is no occurrence due.
func (s Schedule) Due(at time.Time, catchUp time.Duration) (time.Time, bool, error) {
	sched, err := ParseCron(s.Cron)
	if err != nil {
		return time.Time{}, false, err
	}
	loc, err := LoadLocation(s.Timezone)
	if err != nil {
		return time.Time{}, false, err
	}

	// Lower bound
	from := s.CreatedOn
	if s.FiredOn != nil && s.FiredOn.After(from) {
		from = *s.FiredOn
	}
	if catchUp > 0 {
		if floor := at.Add(-catchUp); floor.After(from) {
			from = floor
		}
	}

	// Search back from at in doubling windows, so the walk to the latest
	// occurrence is short however old the lower bound is
	for window := time.Minute; ; window *= 2 {
		start := at.Add(-window)
		if window >= maxSearchWindow || !start.After(from) {
			start = from
		}
		if due, ok := latest(sched, start.In(loc), at); ok || start.Equal(from) {
			return due, ok, nil
		}
	}
}

// Next returns the next occurrence after at
func (s Schedule) Next(at time.Time) (time.Time, error) {
	sched, err := ParseCron(s.Cron)
	if err != nil {
		return time.Time{}, err
	}
	loc, err := LoadLocation(s.Timezone)
	if err != nil {
		return time.Time{}, err
	}
	return sched.Next(at.In(loc)), nil
}

////////////////////////////////////////////////////////////////////////////////
// READER

func (s *Schedule) Scan(row pg.Row) error {
	var options json.RawMessage
	if err := row.Scan(&s.Name, &s.Key, &s.Cron, &s.Timezone, &s.Data, &options, &s.FiredOn, &s.CreatedOn, &s.UpdatedOn); err != nil {
		return err
	}
	s.Options = SendOptions{}
	if len(options) > 0 {
		if err := json.Unmarshal(options, &s.Options); err != nil {
			return err
		}
	}
	return nil
}

func (l *ScheduleList) Scan(row pg.Row) error {
	var schedule Schedule
	if err := schedule.Scan(row); err != nil {
		return err
	}
	*l = append(*l, schedule)
	return nil
}

////////////////////////////////////////////////////////////////////////////////
// SELECTOR

func (s ScheduleKey) Select(bind *pg.Bind, op pg.Op) (string, error) {
	if name, err := QueueName(s.Name).queueName(); err != nil {
		return "", err
	} else {
		bind.Set("name", name)
	}
	bind.Set("key", strings.TrimSpace(s.Key))

	switch op {
	case pg.Delete:
		return bind.Replace("${pgboss.schedule_delete}"), nil
	default:
		return "", pg.ErrInternalError.Withf("unsupported ScheduleKey operation %q", op)
	}
}

func (s ScheduleFire) Select(bind *pg.Bind, op pg.Op) (string, error) {
	if name, err := QueueName(s.Name).queueName(); err != nil {
		return "", err
	} else {
		bind.Set("name", name)
	}
	if s.FiredOn.IsZero() {
		return "", pg.ErrBadParameter.With("missing fired_on")
	}
	bind.Set("key", s.Key)
	bind.Set("fired_on", s.FiredOn)

	switch op {
	case pg.Update:
		return bind.Replace("${pgboss.schedule_fire}"), nil
	default:
		return "", pg.ErrInternalError.Withf("unsupported ScheduleFire operation %q", op)
	}
}

func (s ScheduleListRequest) Select(bind *pg.Bind, op pg.Op) (string, error) {
	var where []string
	if s.Name != "" {
		if name, err := QueueName(s.Name).queueName(); err != nil {
			return "", err
		} else {
			where = append(where, `name = `+bind.Set("name", name))
		}
	}
	if s.Key != nil {
		where = append(where, `key = `+bind.Set("key", strings.TrimSpace(*s.Key)))
	}
	if len(where) > 0 {
		bind.Set("where", "WHERE "+strings.Join(where, " AND "))
	} else {
		bind.Set("where", "")
	}

	switch op {
	case pg.List:
		return bind.Replace("${pgboss.schedule_list}"), nil
	default:
		return "", pg.ErrInternalError.Withf("unsupported ScheduleListRequest operation %q", op)
	}
}

////////////////////////////////////////////////////////////////////////////////
// WRITER

// Insert creates or replaces a schedule
func (s ScheduleMeta) Insert(bind *pg.Bind) (string, error) {
	if err := s.Validate(); err != nil {
		return "", err
	}
	bind.Set("name", strings.TrimSpace(s.Name))
	bind.Set("key", strings.TrimSpace(s.Key))
	bind.Set("cron", strings.TrimSpace(s.Cron))
	if tz := strings.TrimSpace(s.Timezone); tz == "" {
		bind.Set("timezone", "UTC")
	} else {
		bind.Set("timezone", tz)
	}
	if data, err := marshal(s.Data); err != nil {
		return "", err
	} else {
		bind.Set("data", data)
	}
	if options, err := marshal(s.Send); err != nil {
		return "", err
	} else {
		bind.Set("options", options)
	}
	return bind.Replace("${pgboss.schedule_upsert}"), nil
}

func (s ScheduleMeta) Update(bind *pg.Bind) error {
	return pg.ErrNotImplemented.With("ScheduleMeta update")
}

////////////////////////////////////////////////////////////////////////////////
// PRIVATE METHODS

// latest returns the last occurrence in the range (from, at]
func latest(sched cron.Schedule, from, at time.Time) (time.Time, bool) {
	var due time.Time
	next := sched.Next(from)
	for i := 0; i < maxOccurrences && !next.IsZero() && !next.After(at); i++ {
		due = next
		next = sched.Next(next)
	}
	return due, !due.IsZero()
}
