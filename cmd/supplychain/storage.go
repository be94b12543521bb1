package main

import (
	"context"

	"github.com/pkg/errors"

	"supplychain/pkg/domain/model"
	"supplychain/pkg/infrastructure/badger"
	"supplychain/pkg/infrastructure/memory"
	"supplychain/pkg/infrastructure/mysql"
	"supplychain/pkg/infrastructure/rolecache"
)

type backend interface {
	model.UnitOfWork
	model.RepositoryProvider
	model.RoleAuthority
	model.RoleAdministrator
}

type storage struct {
	backend
	roles   *rolecache.Authority
	closers []func() error
}

func (s *storage) Close() error {
	var result error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil && result == nil {
			result = err
		}
	}
	return result
}

func openBackend(ctx context.Context, c *config) (backend, func() error, error) {
	switch c.StorageDriver {
	case "memory":
		return memory.NewStore(), func() error { return nil }, nil
	case "mysql":
		if c.MySQLDSN == "" {
			return nil, nil, errors.New("SUPPLYCHAIN_MYSQL_DSN is required for the mysql driver")
		}
		store, err := mysql.Open(ctx, c.MySQLDSN)
		if err != nil {
			return nil, nil, err
		}
		return store, store.Close, nil
	case "badger":
		store, err := badger.Open(c.BadgerPath)
		if err != nil {
			return nil, nil, err
		}
		return store, store.Close, nil
	default:
		return nil, nil, errors.Errorf("unknown storage driver %q", c.StorageDriver)
	}
}

// openStorage opens the configured backend with a role cache in front of it.
func openStorage(ctx context.Context, c *config) (*storage, error) {
	b, closeBackend, err := openBackend(ctx, c)
	if err != nil {
		return nil, err
	}
	roles, err := rolecache.New(ctx, b, c.RoleCacheTTL)
	if err != nil {
		_ = closeBackend()
		return nil, err
	}
	return &storage{
		backend: b,
		roles:   roles,
		closers: []func() error{closeBackend, roles.Close},
	}, nil
}
