package schema

import (
	"crypto/md5"
	"encoding/hex"
	"strings"
	"time"

	// Packages
	pg "github.com/timgit/pg-boss-sub002"
	types "github.com/timgit/pg-boss-sub002/pkg/types"
)

////////////////////////////////////////////////////////////////////////////////
// TYPES

type QueueName string

// QueueOptions are the options for creating or updating a queue. Nil
// values are not changed on update, and take the default on create.
type QueueOptions struct {
	RetryLimit       *int           `json:"retry_limit,omitempty" yaml:"retry_limit,omitempty" help:"Number of retries before failing"`
	RetryDelay       *time.Duration `json:"retry_delay,omitempty" yaml:"retry_delay,omitempty" help:"Delay between retries"`
	RetryBackoff     *bool          `json:"retry_backoff,omitempty" yaml:"retry_backoff,omitempty" help:"Double the delay on each retry"`
	RetryDelayMax    *time.Duration `json:"retry_delay_max,omitempty" yaml:"retry_delay_max,omitempty" help:"Maximum delay between retries with backoff"`
	ExpireIn         *time.Duration `json:"expire_in,omitempty" yaml:"expire_in,omitempty" help:"Time an active job can run before it expires"`
	Retention        *time.Duration `json:"retention,omitempty" yaml:"retention,omitempty" help:"Time a job is kept before it is archived"`
	Deletion         *time.Duration `json:"deletion,omitempty" yaml:"deletion,omitempty" help:"Time an archived job is kept before it is deleted"`
	Partition        bool           `json:"partition,omitempty" yaml:"partition,omitempty" help:"Store jobs in a dedicated partition (on create only)"`
	DeadLetter       *string        `json:"dead_letter,omitempty" yaml:"dead_letter,omitempty" help:"Queue which receives jobs which exhaust their retries"`
	GroupConcurrency *int           `json:"group_concurrency,omitempty" yaml:"group_concurrency,omitempty" help:"Maximum active jobs per group"`
	GroupTiers       map[string]int `json:"group_tiers,omitempty" yaml:"group_tiers,omitempty" help:"Maximum active jobs per group, by group tier"`
	WarningQueued    *int           `json:"warning_queued,omitempty" yaml:"warning_queued,omitempty" help:"Warn when the number of queued jobs exceeds this value"`
}

// QueueMeta is a queue name with options, used to create or update a queue
type QueueMeta struct {
	Name string `json:"name" yaml:"name" arg:"" help:"Queue name"`
	QueueOptions `yaml:",inline"`
}

type Queue struct {
	Name             string         `json:"name"`
	RetryLimit       int            `json:"retry_limit"`
	RetryDelay       time.Duration  `json:"retry_delay"`
	RetryBackoff     bool           `json:"retry_backoff"`
	RetryDelayMax    *time.Duration `json:"retry_delay_max,omitempty"`
	ExpireIn         time.Duration  `json:"expire_in"`
	Retention        time.Duration  `json:"retention"`
	Deletion         time.Duration  `json:"deletion"`
	Partition        bool           `json:"partition,omitempty"`
	Table            string         `json:"table"`
	DeadLetter       *string        `json:"dead_letter,omitempty"`
	GroupConcurrency int            `json:"group_concurrency,omitempty"`
	GroupTiers       map[string]int `json:"group_tiers,omitempty"`
	WarningQueued    int            `json:"warning_queued,omitempty"`
	QueuedCount      uint64         `json:"queued_count"`
	ActiveCount      uint64         `json:"active_count"`
	DeferredCount    uint64         `json:"deferred_count"`
	TotalCount       uint64         `json:"total_count"`
	MonitorOn        *time.Time     `json:"monitor_on,omitempty"`
	CreatedOn        time.Time      `json:"created_on"`
	UpdatedOn        time.Time      `json:"updated_on"`
}

type QueueListRequest struct {
	pg.OffsetLimit
	Names []string `json:"names,omitempty"`
}

type QueueList struct {
	QueueListRequest
	Count uint64  `json:"count"`
	Body  []Queue `json:"body,omitempty"`
}

// QueueStats are the job counts for a queue. Queued includes deferred jobs,
// which are queued jobs with a start time in the future.
type QueueStats struct {
	Name          string     `json:"name"`
	Queued        uint64     `json:"queued"`
	Active        uint64     `json:"active"`
	Deferred      uint64     `json:"deferred"`
	Total         uint64     `json:"total"`
	WarningQueued int        `json:"warning_queued,omitempty"`
	MonitorOn     *time.Time `json:"monitor_on,omitempty"`
}

// QueueStatsRequest computes the current counts
type QueueStatsRequest struct {
	Names []string
}

// QueueMonitorRequest computes the counts and caches them on the queue
type QueueMonitorRequest struct {
	Names []string
}

type QueueStatsList []QueueStats

// QueueLive counts the unfinished jobs in a queue
type QueueLive string

// QueuePartition creates the dedicated partition for a queue
type QueuePartition struct {
	Name  string
	Table string
}

// QueueDrop drops the dedicated partition of a queue
type QueueDrop struct {
	Table string
}

////////////////////////////////////////////////////////////////////////////////
// STRINGIFY

func (q Queue) String() string {
	return stringify(q)
}

func (q QueueMeta) String() string {
	return stringify(q)
}

func (q QueueList) String() string {
	return stringify(q)
}

func (q QueueStats) String() string {
	return stringify(q)
}

////////////////////////////////////////////////////////////////////////////////
// PUBLIC METHODS

// RetryPolicy returns the default retry policy for jobs in the queue
func (q Queue) RetryPolicy() RetryPolicy {
	return RetryPolicy{
		Limit:    q.RetryLimit,
		Delay:    q.RetryDelay,
		Backoff:  q.RetryBackoff,
		DelayMax: q.RetryDelayMax,
	}
}

// Stats returns the counts cached on the queue by the monitor
func (q Queue) Stats() QueueStats {
	return QueueStats{
		Name:          q.Name,
		Queued:        q.QueuedCount,
		Active:        q.ActiveCount,
		Deferred:      q.DeferredCount,
		Total:         q.TotalCount,
		WarningQueued: q.WarningQueued,
		MonitorOn:     q.MonitorOn,
	}
}

// PartitionTable returns the table name for a dedicated queue partition
func PartitionTable(name string) string {
	sum := md5.Sum([]byte(name))
	return "j" + hex.EncodeToString(sum[:])
}

// Validate returns an error if any option is out of range
func (o QueueOptions) Validate() error {
	if o.RetryLimit != nil && *o.RetryLimit < 0 {
		return pg.ErrBadParameter.With("retry_limit must be >= 0")
	}
	if o.RetryDelay != nil && *o.RetryDelay < 0 {
		return pg.ErrBadParameter.With("retry_delay must be >= 0")
	}
	if o.RetryDelayMax != nil && *o.RetryDelayMax < time.Second {
		return pg.ErrBadParameter.With("retry_delay_max must be >= 1s")
	}
	if o.ExpireIn != nil && *o.ExpireIn < time.Second {
		return pg.ErrBadParameter.With("expire_in must be >= 1s")
	}
	if o.Retention != nil && *o.Retention < time.Second {
		return pg.ErrBadParameter.With("retention must be >= 1s")
	}
	if o.Deletion != nil && *o.Deletion < 0 {
		return pg.ErrBadParameter.With("deletion must be >= 0")
	}
	if o.DeadLetter != nil && *o.DeadLetter != "" {
		if _, err := QueueName(*o.DeadLetter).queueName(); err != nil {
			return err
		}
	}
	if o.GroupConcurrency != nil && *o.GroupConcurrency < 0 {
		return pg.ErrBadParameter.With("group_concurrency must be >= 0")
	}
	for tier, n := range o.GroupTiers {
		if tier == "" || n < 1 {
			return pg.ErrBadParameter.Withf("invalid group tier %q: %d", tier, n)
		}
	}
	if o.WarningQueued != nil && *o.WarningQueued < 0 {
		return pg.ErrBadParameter.With("warning_queued must be >= 0")
	}
	return nil
}

// HasPatch returns true if any option other than partition is set
func (o QueueOptions) HasPatch() bool {
	return o.RetryLimit != nil || o.RetryDelay != nil || o.RetryBackoff != nil ||
		o.RetryDelayMax != nil || o.ExpireIn != nil || o.Retention != nil ||
		o.Deletion != nil || o.DeadLetter != nil || o.GroupConcurrency != nil ||
		o.GroupTiers != nil || o.WarningQueued != nil
}

// Name returns the normalized queue name, or an error if it is invalid
func (q QueueName) Name() (string, error) {
	return q.queueName()
}

////////////////////////////////////////////////////////////////////////////////
// READER

func (q *Queue) Scan(row pg.Row) error {
	return row.Scan(
		&q.Name, &q.RetryLimit, &q.RetryDelay, &q.RetryBackoff, &q.RetryDelayMax,
		&q.ExpireIn, &q.Retention, &q.Deletion, &q.Partition, &q.Table, &q.DeadLetter,
		&q.GroupConcurrency, &q.GroupTiers, &q.WarningQueued,
		&q.QueuedCount, &q.ActiveCount, &q.DeferredCount, &q.TotalCount,
		&q.MonitorOn, &q.CreatedOn, &q.UpdatedOn,
	)
}

func (l *QueueList) Scan(row pg.Row) error {
	var queue Queue
	if err := queue.Scan(row); err != nil {
		return err
	}
	l.Body = append(l.Body, queue)
	return nil
}

func (l *QueueList) ScanCount(row pg.Row) error {
	return row.Scan(&l.Count)
}

func (s *QueueStats) Scan(row pg.Row) error {
	return row.Scan(&s.Name, &s.Queued, &s.Active, &s.Deferred, &s.Total, &s.WarningQueued, &s.MonitorOn)
}

func (l *QueueStatsList) Scan(row pg.Row) error {
	var stats QueueStats
	if err := stats.Scan(row); err != nil {
		return err
	}
	*l = append(*l, stats)
	return nil
}

////////////////////////////////////////////////////////////////////////////////
// SELECTOR

func (q QueueName) Select(bind *pg.Bind, op pg.Op) (string, error) {
	if name, err := q.queueName(); err != nil {
		return "", err
	} else {
		bind.Set("name", name)
	}

	switch op {
	case pg.Get:
		return bind.Replace("${pgboss.queue_get}"), nil
	case pg.Update:
		return bind.Replace("${pgboss.queue_patch}"), nil
	case pg.Delete:
		return bind.Replace("${pgboss.queue_delete}"), nil
	default:
		return "", pg.ErrInternalError.Withf("unsupported QueueName operation %q", op)
	}
}

func (q QueueLive) Select(bind *pg.Bind, op pg.Op) (string, error) {
	if name, err := QueueName(q).queueName(); err != nil {
		return "", err
	} else {
		bind.Set("name", name)
	}

	switch op {
	case pg.Get:
		return bind.Replace("${pgboss.queue_live}"), nil
	default:
		return "", pg.ErrInternalError.Withf("unsupported QueueLive operation %q", op)
	}
}

func (q QueuePartition) Select(bind *pg.Bind, op pg.Op) (string, error) {
	if name, err := QueueName(q.Name).queueName(); err != nil {
		return "", err
	} else {
		bind.Set("name", name)
	}
	if q.Table == "" || q.Table == DefaultPartition {
		return "", pg.ErrBadParameter.Withf("invalid partition %q", q.Table)
	} else {
		bind.Set("table_name", q.Table)
	}

	switch op {
	case pg.Get:
		return bind.Replace("${pgboss.queue_partition}"), nil
	default:
		return "", pg.ErrInternalError.Withf("unsupported QueuePartition operation %q", op)
	}
}

func (q QueueDrop) Select(bind *pg.Bind, op pg.Op) (string, error) {
	if q.Table == "" || q.Table == DefaultPartition {
		return "", pg.ErrBadParameter.Withf("invalid partition %q", q.Table)
	} else {
		bind.Set("table_name", q.Table)
	}

	switch op {
	case pg.Get:
		return bind.Replace("${pgboss.queue_drop}"), nil
	default:
		return "", pg.ErrInternalError.Withf("unsupported QueueDrop operation %q", op)
	}
}

func (l QueueListRequest) Select(bind *pg.Bind, op pg.Op) (string, error) {
	if len(l.Names) > 0 {
		bind.Set("where", "WHERE name = ANY("+bind.Set("names", l.Names)+")")
	} else {
		bind.Set("where", "")
	}
	l.OffsetLimit.Bind(bind, QueueListLimit)

	switch op {
	case pg.List:
		return bind.Replace("${pgboss.queue_list}"), nil
	default:
		return "", pg.ErrInternalError.Withf("unsupported QueueListRequest operation %q", op)
	}
}

func (l QueueStatsRequest) Select(bind *pg.Bind, op pg.Op) (string, error) {
	if len(l.Names) > 0 {
		bind.Set("where", "WHERE q.name = ANY("+bind.Set("names", l.Names)+")")
	} else {
		bind.Set("where", "")
	}

	switch op {
	case pg.List:
		return bind.Replace("${pgboss.queue_stats}"), nil
	default:
		return "", pg.ErrInternalError.Withf("unsupported QueueStatsRequest operation %q", op)
	}
}

func (l QueueMonitorRequest) Select(bind *pg.Bind, op pg.Op) (string, error) {
	if len(l.Names) > 0 {
		bind.Set("where", "AND q.name = ANY("+bind.Set("names", l.Names)+")")
	} else {
		bind.Set("where", "")
	}

	switch op {
	case pg.List:
		return bind.Replace("${pgboss.queue_monitor}"), nil
	default:
		return "", pg.ErrInternalError.Withf("unsupported QueueMonitorRequest operation %q", op)
	}
}

////////////////////////////////////////////////////////////////////////////////
// WRITER

// Insert a queue with default options. A subsequent update sets the options.
// Returns no row if the queue already exists.
func (q QueueMeta) Insert(bind *pg.Bind) (string, error) {
	name, err := QueueName(q.Name).queueName()
	if err != nil {
		return "", err
	} else {
		bind.Set("name", name)
	}

	// Partition
	bind.Set("partition", q.Partition)
	if q.Partition {
		bind.Set("table_name", PartitionTable(name))
	} else {
		bind.Set("table_name", DefaultPartition)
	}

	// Return the insert query
	return bind.Replace("${pgboss.queue_insert}"), nil
}

// Update sets the patch for the options which are not nil
func (q QueueMeta) Update(bind *pg.Bind) error {
	var patch []string

	// Check options
	if err := q.QueueOptions.Validate(); err != nil {
		return err
	}

	// Set patch values
	if q.RetryLimit != nil {
		patch = append(patch, `retry_limit = `+bind.Set("retry_limit", *q.RetryLimit))
	}
	if q.RetryDelay != nil {
		patch = append(patch, `retry_delay = `+bind.Set("retry_delay", seconds(*q.RetryDelay))+`::INTERVAL`)
	}
	if q.RetryBackoff != nil {
		patch = append(patch, `retry_backoff = `+bind.Set("retry_backoff", *q.RetryBackoff))
	}
	if q.RetryDelayMax != nil {
		patch = append(patch, `retry_delay_max = `+bind.Set("retry_delay_max", seconds(*q.RetryDelayMax))+`::INTERVAL`)
	}
	if q.ExpireIn != nil {
		patch = append(patch, `expire_in = `+bind.Set("expire_in", seconds(*q.ExpireIn))+`::INTERVAL`)
	}
	if q.Retention != nil {
		patch = append(patch, `retention = `+bind.Set("retention", seconds(*q.Retention))+`::INTERVAL`)
	}
	if q.Deletion != nil {
		patch = append(patch, `deletion = `+bind.Set("deletion", seconds(*q.Deletion))+`::INTERVAL`)
	}
	if q.DeadLetter != nil {
		if dl := strings.TrimSpace(*q.DeadLetter); dl == "" {
			patch = append(patch, `dead_letter = NULL`)
		} else {
			patch = append(patch, `dead_letter = `+bind.Set("dead_letter", dl))
		}
	}
	if q.GroupConcurrency != nil {
		patch = append(patch, `group_concurrency = `+bind.Set("group_concurrency", *q.GroupConcurrency))
	}
	if q.GroupTiers != nil {
		if len(q.GroupTiers) == 0 {
			patch = append(patch, `group_tiers = NULL`)
		} else if tiers, err := marshal(q.GroupTiers); err != nil {
			return err
		} else {
			patch = append(patch, `group_tiers = `+bind.Set("group_tiers", tiers)+`::JSONB`)
		}
	}
	if q.WarningQueued != nil {
		patch = append(patch, `warning_queued = `+bind.Set("warning_queued", *q.WarningQueued))
	}

	// Check patch values
	if len(patch) == 0 {
		return pg.ErrBadParameter.With("no patch values")
	} else {
		bind.Set("patch", strings.Join(patch, ", "))
	}

	// Return success
	return nil
}

////////////////////////////////////////////////////////////////////////////////
// PRIVATE METHODS

// Normalize queue name
func (q QueueName) queueName() (string, error) {
	if queue := strings.TrimSpace(string(q)); queue == "" {
		return "", pg.ErrBadParameter.With("missing queue name")
	} else if len(queue) > MaxQueueNameBytes || !types.IsIdentifier(queue) {
		return "", pg.ErrBadParameter.Withf("invalid queue name: %q", queue)
	} else {
		return queue, nil
	}
}
