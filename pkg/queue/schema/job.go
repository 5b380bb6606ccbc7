package schema

import (
	"encoding/json"
	"errors"
	"strings"
	"time"

	// Packages
	uuid "github.com/google/uuid"
	pg "github.com/timgit/pg-boss-sub002"
)

////////////////////////////////////////////////////////////////////////////////
// TYPES

// SendOptions are the options for sending a job. Unset retry and expiry
// options are inherited from the queue.
type SendOptions struct {
	Id              string         `json:"id,omitempty" yaml:"id,omitempty" help:"Job identifier (default is a new UUID)"`
	Priority        int            `json:"priority,omitempty" yaml:"priority,omitempty" help:"Priority, higher is fetched first"`
	StartAfter      *time.Time     `json:"start_after,omitempty" yaml:"start_after,omitempty" help:"Time before which the job is not fetched"`
	SingletonKey    string         `json:"singleton_key,omitempty" yaml:"singleton_key,omitempty" help:"Key which allows only one unfinished job"`
	SingletonWindow time.Duration  `json:"singleton_window,omitempty" yaml:"singleton_window,omitempty" help:"Throttle or debounce window for the singleton key"`
	Debounce        bool           `json:"debounce,omitempty" yaml:"debounce,omitempty" help:"Replace the data of the pending job within the window"`
	GroupId         string         `json:"group_id,omitempty" yaml:"group_id,omitempty" help:"Group for concurrency limits"`
	GroupTier       string         `json:"group_tier,omitempty" yaml:"group_tier,omitempty" help:"Group tier for concurrency limits"`
	RetryLimit      *int           `json:"retry_limit,omitempty" yaml:"retry_limit,omitempty" help:"Number of retries before failing"`
	RetryDelay      *time.Duration `json:"retry_delay,omitempty" yaml:"retry_delay,omitempty" help:"Delay between retries"`
	RetryBackoff    *bool          `json:"retry_backoff,omitempty" yaml:"retry_backoff,omitempty" help:"Double the delay on each retry"`
	RetryDelayMax   *time.Duration `json:"retry_delay_max,omitempty" yaml:"retry_delay_max,omitempty" help:"Maximum retry delay with backoff"`
	ExpireIn        *time.Duration `json:"expire_in,omitempty" yaml:"expire_in,omitempty" help:"Time an active job can run before it expires"`
	Retention       *time.Duration `json:"retention,omitempty" yaml:"retention,omitempty" help:"Time a queued job is kept before it is archived"`
	DeadLetter      string         `json:"dead_letter,omitempty" yaml:"dead_letter,omitempty" help:"Queue which receives the job when it exhausts retries"`
}

// JobInsert is a job for bulk insert
type JobInsert struct {
	Data any `json:"data,omitempty"`
	SendOptions
}

// JobSend writes a new job into a queue
type JobSend struct {
	Name string
	Data any
	SendOptions
}

type Job struct {
	Id            string          `json:"id"`
	Name          string          `json:"name"`
	Priority      int             `json:"priority"`
	Data          json.RawMessage `json:"data,omitempty"`
	State         State           `json:"state"`
	RetryLimit    int             `json:"retry_limit"`
	RetryCount    int             `json:"retry_count"`
	RetryDelay    time.Duration   `json:"retry_delay"`
	RetryBackoff  bool            `json:"retry_backoff"`
	RetryDelayMax *time.Duration  `json:"retry_delay_max,omitempty"`
	ExpireIn      time.Duration   `json:"expire_in"`
	StartAfter    time.Time       `json:"start_after"`
	StartedOn     *time.Time      `json:"started_on,omitempty"`
	SingletonKey  *string         `json:"singleton_key,omitempty"`
	SingletonOn   *time.Time      `json:"singleton_on,omitempty"`
	GroupId       *string         `json:"group_id,omitempty"`
	GroupTier     *string         `json:"group_tier,omitempty"`
	CreatedOn     time.Time       `json:"created_on"`
	CompletedOn   *time.Time      `json:"completed_on,omitempty"`
	KeepUntil     time.Time       `json:"keep_until"`
	Output        json.RawMessage `json:"output,omitempty"`
	DeadLetter    *string         `json:"dead_letter,omitempty"`
}

type JobList []Job

// JobId is a job identifier scanned from a RETURNING clause
type JobId string

// IdList is a list of identifiers scanned from a RETURNING clause
type IdList []string

// FetchOptions are the options for fetching jobs from a queue
type FetchOptions struct {
	BatchSize       int  `json:"batch_size,omitempty" help:"Number of jobs to fetch"`
	IncludeMetadata bool `json:"include_metadata,omitempty" help:"Return all job fields"`
}

// FindRequest selects jobs in a queue
type FindRequest struct {
	pg.OffsetLimit
	Id     string `json:"id,omitempty" help:"Job identifier"`
	Key    string `json:"key,omitempty" help:"Singleton key"`
	Queued bool   `json:"queued,omitempty" help:"Only jobs which have not been fetched"`
	Data   any    `json:"data,omitempty" help:"Only jobs whose data contains this value"`
}

// JobName selects a job by queue name and identifier
type JobName struct {
	Name     string
	Id       string
	Archived bool
}

// JobFetch claims queued jobs
type JobFetch struct {
	Name  string
	Limit int
	Group bool
}

// JobIds selects jobs in a queue by identifier
type JobIds struct {
	Name string
	Ids  []string
}

// JobComplete completes active jobs, and queued jobs when IncludeQueued is true
type JobComplete struct {
	JobIds
	Output        any
	IncludeQueued bool
}

// JobCancel cancels unfinished jobs
type JobCancel struct {
	JobIds
}

// JobResume moves cancelled jobs back to created
type JobResume struct {
	JobIds
}

// JobRetry moves failed jobs back to retry
type JobRetry struct {
	JobIds
}

// JobLock locks unfinished jobs for a state transition
type JobLock struct {
	JobIds
}

// JobFail applies a failure transition to a locked job
type JobFail struct {
	Name       string
	Id         string
	Transition Transition
	Output     any
}

// DeadLetter writes a failed job into a dead-letter queue
type DeadLetter struct {
	Name   string
	Data   json.RawMessage
	Output any
}

// JobThrottled checks for a job with a key sent within a window
type JobThrottled struct {
	Name   string
	Key    string
	Window time.Duration
}

// JobDebounce replaces the data of a pending job with a key sent within a window
type JobDebounce struct {
	JobThrottled
	Data any
}

// JobDelete deletes jobs. When Names is empty jobs in all queues are deleted.
type JobDelete struct {
	Names  []string
	Queued bool
	Stored bool
}

// ArchivePurge deletes archived jobs. When Names is empty jobs in all queues are deleted.
type ArchivePurge struct {
	Names []string
}

// BlockedKeys are the singleton keys of unfinished jobs in a queue
type BlockedKeys []string

// BlockedKeysRequest selects the blocked keys for a queue
type BlockedKeysRequest string

////////////////////////////////////////////////////////////////////////////////
// GLOBALS

var (
	errInvalidJSON = pg.ErrBadParameter.With("invalid JSON")
)

////////////////////////////////////////////////////////////////////////////////
// STRINGIFY

func (j Job) String() string {
	return stringify(j)
}

func (o SendOptions) String() string {
	return stringify(o)
}

////////////////////////////////////////////////////////////////////////////////
// PUBLIC METHODS

// RetryPolicy returns the retry policy for the job
func (j Job) RetryPolicy() RetryPolicy {
	return RetryPolicy{
		Limit:    j.RetryLimit,
		Delay:    j.RetryDelay,
		Backoff:  j.RetryBackoff,
		DelayMax: j.RetryDelayMax,
	}
}

// Deadline returns the time at which an active job expires
func (j Job) Deadline() time.Time {
	if j.StartedOn == nil {
		return time.Time{}
	}
	return j.StartedOn.Add(j.ExpireIn)
}

// Metadata strips the job down to the identifier, queue name and data
func (j Job) Metadata(include bool) Job {
	if include {
		return j
	}
	return Job{Id: j.Id, Name: j.Name, Data: j.Data, State: j.State, ExpireIn: j.ExpireIn, StartedOn: j.StartedOn}
}

// Validate returns an error if any option is out of range
func (o SendOptions) Validate() error {
	if o.Id != "" {
		if _, err := uuid.Parse(o.Id); err != nil {
			return pg.ErrBadParameter.Withf("invalid job id %q", o.Id)
		}
	}
	if o.Priority < -MaxPriority || o.Priority > MaxPriority {
		return pg.ErrBadParameter.Withf("invalid priority %d", o.Priority)
	}
	if o.SingletonWindow < 0 {
		return pg.ErrBadParameter.With("singleton window must be >= 0")
	}
	if o.SingletonWindow > 0 && o.SingletonWindow < time.Second {
		return pg.ErrBadParameter.With("singleton window must be >= 1s")
	}
	if o.Debounce && o.SingletonWindow == 0 {
		return pg.ErrBadParameter.With("debounce requires a singleton window")
	}
	if o.GroupTier != "" && o.GroupId == "" {
		return pg.ErrBadParameter.With("group tier requires a group id")
	}
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
	if o.DeadLetter != "" {
		if _, err := QueueName(o.DeadLetter).queueName(); err != nil {
			return err
		}
	}
	return nil
}

// Validate returns an error if the batch size is out of range
func (o FetchOptions) Validate() error {
	if o.BatchSize < 1 || o.BatchSize > FetchLimit {
		return pg.ErrBadParameter.Withf("batch size must be between 1 and %d", FetchLimit)
	}
	return nil
}

// ParseIds validates job identifiers, and returns them in canonical form
func ParseIds(ids ...string) ([]string, error) {
	if len(ids) == 0 {
		return nil, pg.ErrBadParameter.With("missing job id")
	}
	result := make([]string, 0, len(ids))
	for _, id := range ids {
		if uid, err := uuid.Parse(strings.TrimSpace(id)); err != nil {
			return nil, pg.ErrBadParameter.Withf("invalid job id %q", id)
		} else {
			result = append(result, uid.String())
		}
	}
	return result, nil
}

////////////////////////////////////////////////////////////////////////////////
// READER

func (j *Job) Scan(row pg.Row) error {
	return row.Scan(
		&j.Id, &j.Name, &j.Priority, &j.Data, &j.State,
		&j.RetryLimit, &j.RetryCount, &j.RetryDelay, &j.RetryBackoff, &j.RetryDelayMax,
		&j.ExpireIn, &j.StartAfter, &j.StartedOn, &j.SingletonKey, &j.SingletonOn,
		&j.GroupId, &j.GroupTier, &j.CreatedOn, &j.CompletedOn, &j.KeepUntil,
		&j.Output, &j.DeadLetter,
	)
}

func (l *JobList) Scan(row pg.Row) error {
	var job Job
	if err := job.Scan(row); err != nil {
		return err
	}
	*l = append(*l, job)
	return nil
}

func (j *JobId) Scan(row pg.Row) error {
	var id *string
	if err := row.Scan(&id); err != nil {
		return err
	} else if id != nil {
		*j = JobId(*id)
	}
	return nil
}

func (l *IdList) Scan(row pg.Row) error {
	var id string
	if err := row.Scan(&id); err != nil {
		return err
	}
	*l = append(*l, id)
	return nil
}

func (l *BlockedKeys) Scan(row pg.Row) error {
	var key string
	if err := row.Scan(&key); err != nil {
		return err
	}
	*l = append(*l, key)
	return nil
}

////////////////////////////////////////////////////////////////////////////////
// SELECTOR

func (j JobName) Select(bind *pg.Bind, op pg.Op) (string, error) {
	if name, err := QueueName(j.Name).queueName(); err != nil {
		return "", err
	} else {
		bind.Set("name", name)
	}
	if ids, err := ParseIds(j.Id); err != nil {
		return "", err
	} else {
		bind.Set("id", ids[0])
	}

	switch op {
	case pg.Get:
		if j.Archived {
			return bind.Replace("${pgboss.archive_get}"), nil
		}
		return bind.Replace("${pgboss.job_get}"), nil
	default:
		return "", pg.ErrInternalError.Withf("unsupported JobName operation %q", op)
	}
}

func (j JobFetch) Select(bind *pg.Bind, op pg.Op) (string, error) {
	if name, err := QueueName(j.Name).queueName(); err != nil {
		return "", err
	} else {
		bind.Set("name", name)
	}
	if err := (FetchOptions{BatchSize: j.Limit}).Validate(); err != nil {
		return "", err
	} else {
		bind.Set("limit", j.Limit)
		bind.Set("scan", j.Limit*GroupScanFactor)
	}

	switch op {
	case pg.List:
		if j.Group {
			return bind.Replace("${pgboss.job_fetch_group}"), nil
		}
		return bind.Replace("${pgboss.job_fetch}"), nil
	default:
		return "", pg.ErrInternalError.Withf("unsupported JobFetch operation %q", op)
	}
}

func (r FindRequest) Select(bind *pg.Bind, op pg.Op) (string, error) {
	var where []string

	// The queue name is bound by the caller
	if !bind.Has("name") {
		return "", pg.ErrBadParameter.With("missing queue name")
	}

	// Filters
	if r.Id != "" {
		if ids, err := ParseIds(r.Id); err != nil {
			return "", err
		} else {
			where = append(where, `id = `+bind.Set("id", ids[0])+`::UUID`)
		}
	}
	if r.Key != "" {
		where = append(where, `singleton_key = `+bind.Set("key", r.Key))
	}
	if r.Queued {
		where = append(where, `state < 'active'`)
	}
	if r.Data != nil {
		if data, err := marshal(r.Data); err != nil {
			return "", err
		} else {
			where = append(where, `data @> `+bind.Set("data", data)+`::JSONB`)
		}
	}
	if len(where) > 0 {
		bind.Set("where", "AND "+strings.Join(where, " AND "))
	} else {
		bind.Set("where", "")
	}
	r.OffsetLimit.Bind(bind, JobListLimit)

	switch op {
	case pg.List:
		return bind.Replace("${pgboss.job_find}"), nil
	default:
		return "", pg.ErrInternalError.Withf("unsupported FindRequest operation %q", op)
	}
}

func (j JobIds) bind(bind *pg.Bind) error {
	if name, err := QueueName(j.Name).queueName(); err != nil {
		return err
	} else {
		bind.Set("name", name)
	}
	if ids, err := ParseIds(j.Ids...); err != nil {
		return err
	} else {
		bind.Set("ids", ids)
	}
	return nil
}

func (j JobComplete) Select(bind *pg.Bind, op pg.Op) (string, error) {
	if err := j.JobIds.bind(bind); err != nil {
		return "", err
	}
	if output, err := marshal(j.Output); err != nil {
		return "", err
	} else {
		bind.Set("output", output)
	}
	if j.IncludeQueued {
		bind.Set("where", "j.state <= 'active'")
	} else {
		bind.Set("where", "j.state = 'active'")
	}

	switch op {
	case pg.List:
		return bind.Replace("${pgboss.job_complete}"), nil
	default:
		return "", pg.ErrInternalError.Withf("unsupported JobComplete operation %q", op)
	}
}

func (j JobCancel) Select(bind *pg.Bind, op pg.Op) (string, error) {
	if err := j.JobIds.bind(bind); err != nil {
		return "", err
	}
	switch op {
	case pg.List:
		return bind.Replace("${pgboss.job_cancel}"), nil
	default:
		return "", pg.ErrInternalError.Withf("unsupported JobCancel operation %q", op)
	}
}

func (j JobResume) Select(bind *pg.Bind, op pg.Op) (string, error) {
	if err := j.JobIds.bind(bind); err != nil {
		return "", err
	}
	switch op {
	case pg.List:
		return bind.Replace("${pgboss.job_resume}"), nil
	default:
		return "", pg.ErrInternalError.Withf("unsupported JobResume operation %q", op)
	}
}

func (j JobRetry) Select(bind *pg.Bind, op pg.Op) (string, error) {
	if err := j.JobIds.bind(bind); err != nil {
		return "", err
	}
	switch op {
	case pg.List:
		return bind.Replace("${pgboss.job_manual_retry}"), nil
	default:
		return "", pg.ErrInternalError.Withf("unsupported JobRetry operation %q", op)
	}
}

func (j JobLock) Select(bind *pg.Bind, op pg.Op) (string, error) {
	if err := j.JobIds.bind(bind); err != nil {
		return "", err
	}
	switch op {
	case pg.List:
		return bind.Replace("${pgboss.job_lock}"), nil
	default:
		return "", pg.ErrInternalError.Withf("unsupported JobLock operation %q", op)
	}
}

func (j JobFail) Select(bind *pg.Bind, op pg.Op) (string, error) {
	bind.Set("name", j.Name)
	bind.Set("id", j.Id)
	if output, err := marshal(j.Output); err != nil {
		return "", err
	} else {
		bind.Set("output", output)
	}

	switch op {
	case pg.Update:
		switch j.Transition.State {
		case StateRetry:
			bind.Set("retry_count", j.Transition.RetryCount)
			bind.Set("delay", j.Transition.Delay)
			return bind.Replace("${pgboss.job_retry}"), nil
		case StateFailed:
			return bind.Replace("${pgboss.job_failed}"), nil
		default:
			return "", pg.ErrInternalError.Withf("unsupported JobFail transition %q", j.Transition.State)
		}
	default:
		return "", pg.ErrInternalError.Withf("unsupported JobFail operation %q", op)
	}
}

func (j JobThrottled) Select(bind *pg.Bind, op pg.Op) (string, error) {
	if err := j.bind(bind); err != nil {
		return "", err
	}
	switch op {
	case pg.Get:
		return bind.Replace("${pgboss.job_throttled}"), nil
	default:
		return "", pg.ErrInternalError.Withf("unsupported JobThrottled operation %q", op)
	}
}

func (j JobThrottled) bind(bind *pg.Bind) error {
	if name, err := QueueName(j.Name).queueName(); err != nil {
		return err
	} else {
		bind.Set("name", name)
	}
	if j.Window < time.Second {
		return pg.ErrBadParameter.With("window must be >= 1s")
	}
	bind.Set("singleton_key", j.Key)
	bind.Set("window", seconds(j.Window))
	return nil
}

func (j JobDebounce) Select(bind *pg.Bind, op pg.Op) (string, error) {
	if err := j.JobThrottled.bind(bind); err != nil {
		return "", err
	}
	if data, err := marshal(j.Data); err != nil {
		return "", err
	} else {
		bind.Set("data", data)
	}
	switch op {
	case pg.Update:
		return bind.Replace("${pgboss.job_debounce}"), nil
	default:
		return "", pg.ErrInternalError.Withf("unsupported JobDebounce operation %q", op)
	}
}

func (j JobDelete) Select(bind *pg.Bind, op pg.Op) (string, error) {
	var where []string
	if len(j.Names) > 0 {
		where = append(where, `name = ANY(`+bind.Set("names", j.Names)+`)`)
	}
	switch {
	case j.Queued && j.Stored:
		return "", pg.ErrBadParameter.With("cannot delete both queued and stored jobs")
	case j.Queued:
		where = append(where, `state < 'active'`)
	case j.Stored:
		where = append(where, `state > 'active'`)
	}
	if len(where) > 0 {
		bind.Set("where", strings.Join(where, " AND "))
	} else {
		bind.Set("where", "TRUE")
	}

	switch op {
	case pg.List:
		return bind.Replace("${pgboss.job_delete}"), nil
	default:
		return "", pg.ErrInternalError.Withf("unsupported JobDelete operation %q", op)
	}
}

func (a ArchivePurge) Select(bind *pg.Bind, op pg.Op) (string, error) {
	if len(a.Names) > 0 {
		bind.Set("where", `name = ANY(`+bind.Set("names", a.Names)+`)`)
	} else {
		bind.Set("where", "TRUE")
	}

	switch op {
	case pg.List:
		return bind.Replace("${pgboss.archive_purge}"), nil
	default:
		return "", pg.ErrInternalError.Withf("unsupported ArchivePurge operation %q", op)
	}
}

func (b BlockedKeysRequest) Select(bind *pg.Bind, op pg.Op) (string, error) {
	if name, err := QueueName(b).queueName(); err != nil {
		return "", err
	} else {
		bind.Set("name", name)
	}

	switch op {
	case pg.List:
		return bind.Replace("${pgboss.job_blocked_keys}"), nil
	default:
		return "", pg.ErrInternalError.Withf("unsupported BlockedKeysRequest operation %q", op)
	}
}

////////////////////////////////////////////////////////////////////////////////
// WRITER

// Insert binds the job and returns the insert query. The query returns no
// row when the job is suppressed by a singleton key or throttle window.
func (j JobSend) Insert(bind *pg.Bind) (string, error) {
	if name, err := QueueName(j.Name).queueName(); err != nil {
		return "", err
	} else {
		bind.Set("name", name)
	}
	if err := j.SendOptions.Validate(); err != nil {
		return "", err
	}

	// Identifier
	if j.Id == "" {
		bind.Set("id", uuid.New().String())
	} else {
		bind.Set("id", j.Id)
	}

	// Data
	if data, err := marshal(j.Data); err != nil {
		return "", err
	} else {
		bind.Set("data", data)
	}

	// Options
	bind.Set("priority", j.Priority)
	bind.Set("retry_limit", j.RetryLimit)
	bind.Set("retry_delay", durationOrNil(j.RetryDelay))
	bind.Set("retry_backoff", j.RetryBackoff)
	bind.Set("retry_delay_max", durationOrNil(j.RetryDelayMax))
	bind.Set("expire_in", durationOrNil(j.ExpireIn))
	bind.Set("retention", durationOrNil(j.Retention))
	bind.Set("start_after", j.StartAfter)
	bind.Set("singleton_key", nilIfEmpty(j.SingletonKey))
	bind.Set("group_id", nilIfEmpty(j.GroupId))
	bind.Set("group_tier", nilIfEmpty(j.GroupTier))
	bind.Set("dead_letter", nilIfEmpty(j.DeadLetter))

	// Throttle and debounce windows. Throttled jobs share a slot for the
	// window, debounced jobs record the time they were sent.
	bind.Set("singleton_on", nil)
	bind.Set("singleton_seconds", 0)
	switch {
	case j.SingletonWindow > 0 && j.Debounce:
		bind.Set("singleton_key", j.SingletonKey)
		bind.Set("singleton_on", time.Now())
	case j.SingletonWindow > 0:
		bind.Set("singleton_key", j.SingletonKey)
		bind.Set("singleton_seconds", int(j.SingletonWindow/time.Second))
	}

	// Return the insert query
	return bind.Replace("${pgboss.job_insert}"), nil
}

func (j JobSend) Update(bind *pg.Bind) error {
	return pg.ErrNotImplemented.With("JobSend update")
}

// Insert binds a dead-letter job and returns the insert query
func (d DeadLetter) Insert(bind *pg.Bind) (string, error) {
	bind.Set("dead_letter", d.Name)
	if len(d.Data) == 0 {
		bind.Set("data", nil)
	} else {
		bind.Set("data", string(d.Data))
	}
	if output, err := marshal(d.Output); err != nil {
		return "", err
	} else {
		bind.Set("output", output)
	}
	return bind.Replace("${pgboss.job_dead_letter}"), nil
}

func (d DeadLetter) Update(bind *pg.Bind) error {
	return pg.ErrNotImplemented.With("DeadLetter update")
}

////////////////////////////////////////////////////////////////////////////////
// PRIVATE METHODS

func nilIfEmpty(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func durationOrNil(v *time.Duration) any {
	if v == nil {
		return nil
	}
	return seconds(*v)
}

// IsSuppressed returns true when an insert returned no row
func IsSuppressed(err error) bool {
	return errors.Is(err, pg.ErrNotFound)
}

////////////////////////////////////////////////////////////////////////////////
// MAINTENANCE

// JobExpired locks a batch of active jobs which have run past their expiry.
// When Names is empty all queues are included.
type JobExpired struct {
	Names []string
	Limit int
}

// JobArchive moves a batch of jobs past their keep_until time into the archive
type JobArchive struct {
	Names []string
	Limit int
}

// ArchiveDelete deletes a batch of archived jobs older than the deletion
// period of their queue, or Deletion when the queue no longer exists
type ArchiveDelete struct {
	Names    []string
	Limit    int
	Deletion time.Duration
}

func (j JobExpired) Select(bind *pg.Bind, op pg.Op) (string, error) {
	bindBatch(bind, j.Names, j.Limit, "AND name")

	switch op {
	case pg.List:
		return bind.Replace("${pgboss.job_expired}"), nil
	default:
		return "", pg.ErrInternalError.Withf("unsupported JobExpired operation %q", op)
	}
}

func (j JobArchive) Select(bind *pg.Bind, op pg.Op) (string, error) {
	bindBatch(bind, j.Names, j.Limit, "AND name")

	switch op {
	case pg.List:
		return bind.Replace("${pgboss.job_archive}"), nil
	default:
		return "", pg.ErrInternalError.Withf("unsupported JobArchive operation %q", op)
	}
}

func (a ArchiveDelete) Select(bind *pg.Bind, op pg.Op) (string, error) {
	bindBatch(bind, a.Names, a.Limit, "AND a.name")
	if a.Deletion <= 0 {
		bind.Set("deletion", DefaultDeletion)
	} else {
		bind.Set("deletion", seconds(a.Deletion))
	}

	switch op {
	case pg.List:
		return bind.Replace("${pgboss.archive_delete}"), nil
	default:
		return "", pg.ErrInternalError.Withf("unsupported ArchiveDelete operation %q", op)
	}
}

// bindBatch sets the where clause for a set of queue names, and the batch limit
func bindBatch(bind *pg.Bind, names []string, limit int, column string) {
	if len(names) > 0 {
		bind.Set("where", column+" = ANY("+bind.Set("names", names)+")")
	} else {
		bind.Set("where", "")
	}
	if limit <= 0 {
		limit = FetchLimit
	}
	bind.Set("limit", limit)
}
