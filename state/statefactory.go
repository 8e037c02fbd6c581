package state

import (
	"context"
	"fmt"
)

// NewStore returns the Store implementation selected by config.Driver.
func NewStore(ctx context.Context, config Config) (Store, error) {
	switch config.Driver {
	case DriverMemory:
		return NewMemoryStore(), nil
	case DriverSQLite, "":
		return NewSQLiteStore(ctx, config.DSN)
	case DriverPostgres:
		if config.DSN == "" {
			return nil, fmt.Errorf("postgres store requires a connection url")
		}
		return NewPostgresStore(ctx, config.DSN)
	case DriverDapr:
		return NewDaprStore(config.DaprConfig)
	}
	return nil, fmt.Errorf("unknown store driver %q, must be one of: memory, sqlite, postgres, dapr", config.Driver)
}
