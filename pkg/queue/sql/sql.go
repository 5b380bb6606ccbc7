package sql

import (
	_ "embed"
)

////////////////////////////////////////////////////////////////////////////////
// GLOBALS

// Objects contains the schema objects. Keys are prefixed with the schema
// version which installs them, for example v1.job, and are applied in order.
//
//go:embed objects.sql
var Objects string

// Queries contains the statements used by the queue manager, keyed by
// pgboss.<name>
//
//go:embed queries.sql
var Queries string
