package db

import (
	"context"
	"fmt"

	"github.com/zhouzirui/z-support/backend/internal/store"
	"github.com/zhouzirui/z-support/backend/internal/store/db/mysql"
	"github.com/zhouzirui/z-support/backend/internal/store/db/postgres"
	"github.com/zhouzirui/z-support/backend/internal/store/db/sqlite"
)

// NewDBDriver opens the driver named by driver ("sqlite", "postgres" or
// "mysql").
func NewDBDriver(ctx context.Context, driver, dsn string) (store.Driver, error) {
	switch driver {
	case "sqlite", "":
		return sqlite.NewDB(ctx, dsn)
	case "postgres", "postgresql":
		return postgres.NewDB(ctx, dsn)
	case "mysql":
		return mysql.NewDB(ctx, dsn)
	default:
		return nil, fmt.Errorf("unknown database driver %q", driver)
	}
}
