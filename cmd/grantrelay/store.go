package main

import (
	"context"

	"github.com/dpup/grantrelay"
	"github.com/dpup/grantrelay/errors"
	"github.com/dpup/grantrelay/logging"
	"github.com/dpup/grantrelay/storage"
	"github.com/dpup/grantrelay/storage/memorystore"
	"github.com/dpup/grantrelay/storage/postgres"
	"github.com/dpup/grantrelay/storage/sqlitestore"
	"google.golang.org/grpc/codes"
)

// openStore opens the backend named by `storage.driver`.
func openStore(ctx context.Context) (storage.Store, error) {
	driver := grantrelay.ConfigString("storage.driver")
	prefix := grantrelay.ConfigString("storage.prefix")
	logging.Infow(ctx, "opening store", "driver", driver, "prefix", prefix)

	switch driver {
	case "", "memory":
		return memorystore.New(), nil

	case "sqlite":
		dsn, err := grantrelay.ConfigMustString("storage.dsn", "set GR__STORAGE__DSN, e.g. file:grantrelay.s3db")
		if err != nil {
			return nil, err
		}
		return sqlitestore.New(dsn, sqlitestore.WithPrefix(prefix))

	case "postgres":
		dsn, err := grantrelay.ConfigMustString("storage.dsn", "set GR__STORAGE__DSN to a postgres connection string")
		if err != nil {
			return nil, err
		}
		return postgres.New(dsn, postgres.WithPrefix(prefix))
	}
	return nil, errors.Codef(codes.InvalidArgument, "unknown storage driver %q", driver)
}
