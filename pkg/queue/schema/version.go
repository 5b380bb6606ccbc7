package schema

import (
	"time"

	// Packages
	pg "github.com/timgit/pg-boss-sub002"
)

////////////////////////////////////////////////////////////////////////////////
// TYPES

// Version is the single row of the version table
type Version struct {
	Version      int        `json:"version"`
	MaintainedOn *time.Time `json:"maintained_on,omitempty"`
	MonitoredOn  *time.Time `json:"monitored_on,omitempty"`
	CronOn       *time.Time `json:"cron_on,omitempty"`
}

// VersionRequest gets the version row, or sets the version on update
type VersionRequest struct {
	Version int
}

// Watermark is a timestamp column of the version row which records when
// a supervisor cycle last ran
type Watermark string

// WatermarkRequest advances a watermark when it is older than the interval.
// No row is returned when the cycle is not yet due.
type WatermarkRequest struct {
	Watermark Watermark
	Interval  time.Duration
}

// Installed checks whether the version table exists in the schema
type Installed struct{}

// Lock is a transaction-scoped advisory lock, keyed by the schema and name
type Lock struct {
	Name   string
	Try    bool
	Shared bool
}

// Now gets the database time
type Now struct{}

// Notify sends a notification to a channel with a payload
type Notify struct {
	Channel string
	Payload string
}

// Bool is a boolean scanned from a query
type Bool bool

// Timestamp is a time scanned from a query
type Timestamp time.Time

// Count is a row count scanned from a query
type Count uint64

// BamStatus is a summary of the state of the queue engine
type BamStatus struct {
	Version  Version      `json:"version"`
	Now      time.Time    `json:"now"`
	Queues   []QueueStats `json:"queues,omitempty"`
	Warnings []Warning    `json:"warnings,omitempty"`
}

// Maintenance counts the rows processed by a supervisor pass
type Maintenance struct {
	Expired  int `json:"expired"`
	Archived int `json:"archived"`
	Deleted  int `json:"deleted"`
	Warnings int `json:"warnings,omitempty"`
}

////////////////////////////////////////////////////////////////////////////////
// GLOBALS

const (
	WatermarkMaintained Watermark = "maintained_on"
	WatermarkMonitored  Watermark = "monitored_on"
	WatermarkCron       Watermark = "cron_on"
)

////////////////////////////////////////////////////////////////////////////////
// STRINGIFY

func (v Version) String() string {
	return stringify(v)
}

func (b BamStatus) String() string {
	return stringify(b)
}

func (m Maintenance) String() string {
	return stringify(m)
}

////////////////////////////////////////////////////////////////////////////////
// READER

func (v *Version) Scan(row pg.Row) error {
	return row.Scan(&v.Version, &v.MaintainedOn, &v.MonitoredOn, &v.CronOn)
}

func (b *Bool) Scan(row pg.Row) error {
	var v bool
	if err := row.Scan(&v); err != nil {
		return err
	}
	*b = Bool(v)
	return nil
}

func (t *Timestamp) Scan(row pg.Row) error {
	var v time.Time
	if err := row.Scan(&v); err != nil {
		return err
	}
	*t = Timestamp(v)
	return nil
}

func (c *Count) Scan(row pg.Row) error {
	var v int64
	if err := row.Scan(&v); err != nil {
		return err
	}
	*c = Count(v)
	return nil
}

////////////////////////////////////////////////////////////////////////////////
// SELECTOR

func (v VersionRequest) Select(bind *pg.Bind, op pg.Op) (string, error) {
	switch op {
	case pg.Get:
		return bind.Replace("${pgboss.version_get}"), nil
	case pg.Update:
		if v.Version < 0 {
			return "", pg.ErrBadParameter.Withf("invalid version %d", v.Version)
		}
		bind.Set("version", v.Version)
		return bind.Replace("${pgboss.version_set}"), nil
	default:
		return "", pg.ErrInternalError.Withf("unsupported VersionRequest operation %q", op)
	}
}

func (w WatermarkRequest) Select(bind *pg.Bind, op pg.Op) (string, error) {
	switch w.Watermark {
	case WatermarkMaintained, WatermarkMonitored, WatermarkCron:
		bind.Set("watermark", string(w.Watermark))
	default:
		return "", pg.ErrBadParameter.Withf("invalid watermark %q", w.Watermark)
	}
	bind.Set("interval", max(seconds(w.Interval), 0))

	switch op {
	case pg.Update:
		return bind.Replace("${pgboss.version_watermark}"), nil
	default:
		return "", pg.ErrInternalError.Withf("unsupported WatermarkRequest operation %q", op)
	}
}

func (Installed) Select(bind *pg.Bind, op pg.Op) (string, error) {
	switch op {
	case pg.Get:
		return bind.Replace("${pgboss.installed}"), nil
	default:
		return "", pg.ErrInternalError.Withf("unsupported Installed operation %q", op)
	}
}

func (l Lock) Select(bind *pg.Bind, op pg.Op) (string, error) {
	if l.Name == "" {
		return "", pg.ErrBadParameter.With("missing lock name")
	}
	bind.Set("lock", l.Name)

	switch op {
	case pg.Get:
		switch {
		case l.Try && l.Shared:
			return "", pg.ErrBadParameter.With("shared lock cannot be tried")
		case l.Try:
			return bind.Replace("${pgboss.try_lock}"), nil
		case l.Shared:
			return bind.Replace("${pgboss.lock_shared}"), nil
		default:
			return bind.Replace("${pgboss.lock}"), nil
		}
	default:
		return "", pg.ErrInternalError.Withf("unsupported Lock operation %q", op)
	}
}

func (Now) Select(bind *pg.Bind, op pg.Op) (string, error) {
	switch op {
	case pg.Get:
		return bind.Replace("${pgboss.now}"), nil
	default:
		return "", pg.ErrInternalError.Withf("unsupported Now operation %q", op)
	}
}

func (n Notify) Select(bind *pg.Bind, op pg.Op) (string, error) {
	if n.Channel == "" {
		return "", pg.ErrBadParameter.With("missing channel")
	}
	bind.Set("channel", n.Channel)
	bind.Set("name", n.Payload)

	switch op {
	case pg.Get:
		return bind.Replace("${pgboss.notify}"), nil
	default:
		return "", pg.ErrInternalError.Withf("unsupported Notify operation %q", op)
	}
}
