package queue

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	// Packages
	pg "github.com/timgit/pg-boss-sub002"
	schema "github.com/timgit/pg-boss-sub002/pkg/queue/schema"
	zap "go.uber.org/zap"
)

////////////////////////////////////////////////////////////////////////////////
// TYPES

// migration is a schema version and the object keys which install it
type migration struct {
	version int
	keys    []string
}

////////////////////////////////////////////////////////////////////////////////
// PRIVATE METHODS

// migrate installs the schema, or applies the migrations newer than the
// installed version, in a single transaction. An advisory lock serializes
// processes which start at the same time.
func (manager *Manager) migrate(ctx context.Context) error {
	migrations, err := migrations(manager.objects)
	if err != nil {
		return err
	}

	return manager.conn.Tx(ctx, func(conn pg.Conn) error {
		if err := lock(ctx, conn, "migrate"); err != nil {
			return err
		}

		// Get the installed version
		var version schema.Version
		var installed schema.Bool
		if err := conn.Get(ctx, &installed, schema.Installed{}); err != nil {
			return err
		} else if installed {
			if err := conn.Get(ctx, &version, schema.VersionRequest{}); err != nil {
				return err
			}
		}
		if version.Version > schema.SchemaVersion {
			return pg.ErrConflict.Withf("installed schema version %d is newer than %d", version.Version, schema.SchemaVersion)
		} else if version.Version == schema.SchemaVersion {
			return nil
		}

		// Apply migrations
		for _, m := range migrations {
			if m.version <= version.Version {
				continue
			}
			for _, key := range m.keys {
				if err := conn.Exec(ctx, manager.objects.Get(key)); err != nil {
					return fmt.Errorf("%s: %w", key, err)
				}
			}
			manager.log.Info("migrated schema", zap.String("schema", manager.opts.schema), zap.Int("version", m.version))
		}

		// Set the version
		return conn.Update(ctx, &version, schema.VersionRequest{Version: schema.SchemaVersion}, nil)
	})
}

// migrations groups object keys by the version prefix, in order
func migrations(objects *pg.Queries) ([]migration, error) {
	var result []migration
	for _, key := range objects.Keys() {
		prefix, _, ok := strings.Cut(key, ".")
		if !ok || !strings.HasPrefix(prefix, "v") {
			return nil, pg.ErrInternalError.Withf("invalid object key %q", key)
		}
		version, err := strconv.Atoi(prefix[1:])
		if err != nil || version < 1 {
			return nil, pg.ErrInternalError.Withf("invalid object key %q", key)
		}
		if n := len(result); n > 0 && result[n-1].version == version {
			result[n-1].keys = append(result[n-1].keys, key)
		} else if n > 0 && result[n-1].version > version {
			return nil, pg.ErrInternalError.Withf("object key %q is out of order", key)
		} else {
			result = append(result, migration{version: version, keys: []string{key}})
		}
	}
	return result, nil
}
