package schema

import (
	"encoding/json"
	"strings"
	"time"

	// Packages
	pg "github.com/timgit/pg-boss-sub002"
)

////////////////////////////////////////////////////////////////////////////////
// TYPES

type WarningType string

// WarningMeta is a warning to record
type WarningMeta struct {
	Type    WarningType `json:"type"`
	Message string      `json:"message"`
	Data    any         `json:"data,omitempty"`
}

type Warning struct {
	Id        uint64          `json:"id"`
	Type      WarningType     `json:"type"`
	Message   string          `json:"message"`
	Data      json.RawMessage `json:"data,omitempty"`
	CreatedOn time.Time       `json:"created_on"`
}

type WarningList []Warning

// WarningListRequest returns the most recent warnings first
type WarningListRequest struct {
	pg.OffsetLimit
}

// WarningPurge deletes warnings older than the retention period
type WarningPurge struct {
	Retention time.Duration
}

////////////////////////////////////////////////////////////////////////////////
// GLOBALS

const (
	// More jobs are queued than the queue warning threshold
	WarningQueueBacklog WarningType = "queue_backlog"

	// The monitor query took longer than the slow query threshold
	WarningSlowQuery WarningType = "slow_query"

	// The database clock differs from the local clock
	WarningClockSkew WarningType = "clock_skew"
)

////////////////////////////////////////////////////////////////////////////////
// STRINGIFY

func (w Warning) String() string {
	return stringify(w)
}

////////////////////////////////////////////////////////////////////////////////
// READER

func (w *Warning) Scan(row pg.Row) error {
	return row.Scan(&w.Id, &w.Type, &w.Message, &w.Data, &w.CreatedOn)
}

func (l *WarningList) Scan(row pg.Row) error {
	var warning Warning
	if err := warning.Scan(row); err != nil {
		return err
	}
	*l = append(*l, warning)
	return nil
}

////////////////////////////////////////////////////////////////////////////////
// SELECTOR

func (w WarningListRequest) Select(bind *pg.Bind, op pg.Op) (string, error) {
	w.OffsetLimit.Bind(bind, WarningListLimit)

	switch op {
	case pg.List:
		return bind.Replace("${pgboss.warning_list}"), nil
	default:
		return "", pg.ErrInternalError.Withf("unsupported WarningListRequest operation %q", op)
	}
}

func (w WarningPurge) Select(bind *pg.Bind, op pg.Op) (string, error) {
	if w.Retention <= 0 {
		bind.Set("retention", WarningRetention)
	} else {
		bind.Set("retention", seconds(w.Retention))
	}

	switch op {
	case pg.List:
		return bind.Replace("${pgboss.warning_delete}"), nil
	default:
		return "", pg.ErrInternalError.Withf("unsupported WarningPurge operation %q", op)
	}
}

////////////////////////////////////////////////////////////////////////////////
// WRITER

func (w WarningMeta) Insert(bind *pg.Bind) (string, error) {
	if w.Type == "" {
		return "", pg.ErrBadParameter.With("missing warning type")
	}
	if message := strings.TrimSpace(w.Message); message == "" {
		return "", pg.ErrBadParameter.With("missing warning message")
	} else {
		bind.Set("message", message)
	}
	bind.Set("type", string(w.Type))
	if data, err := marshal(w.Data); err != nil {
		return "", err
	} else {
		bind.Set("data", data)
	}
	return bind.Replace("${pgboss.warning_insert}"), nil
}

func (w WarningMeta) Update(bind *pg.Bind) error {
	return pg.ErrNotImplemented.With("WarningMeta update")
}
