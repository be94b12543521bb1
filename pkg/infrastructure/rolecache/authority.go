// Package rolecache caches capability sets in front of a slower RoleAuthority. Grants changed
// through the cached Authority are invalidated at once; changes made elsewhere show up after the
// entry expires.
package rolecache

import (
	"context"
	"strings"
	"time"

	"github.com/allegro/bigcache/v3"
	"github.com/pkg/errors"

	"supplychain/pkg/domain/model"
)

var (
	_ model.RoleAuthority     = (*Authority)(nil)
	_ model.RoleAdministrator = (*Authority)(nil)
)

type Authority struct {
	next  model.RoleAuthority
	cache *bigcache.BigCache
}

func New(ctx context.Context, next model.RoleAuthority, ttl time.Duration) (*Authority, error) {
	config := bigcache.DefaultConfig(ttl)
	config.CleanWindow = ttl
	config.Shards = 64
	config.MaxEntriesInWindow = 10000
	config.MaxEntrySize = 128
	config.Verbose = false

	cache, err := bigcache.New(ctx, config)
	if err != nil {
		return nil, errors.Wrap(err, "create role cache")
	}
	return &Authority{next: next, cache: cache}, nil
}

func (a *Authority) Close() error {
	return a.cache.Close()
}

func (a *Authority) HasCapability(ctx context.Context, identity string, capability model.Capability) (bool, error) {
	caps, err := a.CapabilitiesOf(ctx, identity)
	if err != nil {
		return false, err
	}
	for _, c := range caps {
		if c == capability {
			return true, nil
		}
	}
	return false, nil
}

func (a *Authority) CapabilitiesOf(ctx context.Context, identity string) ([]model.Capability, error) {
	if entry, err := a.cache.Get(identity); err == nil {
		return decode(entry), nil
	}

	caps, err := a.next.CapabilitiesOf(ctx, identity)
	if err != nil {
		return nil, err
	}
	_ = a.cache.Set(identity, encode(caps))
	return caps, nil
}

func (a *Authority) Grant(ctx context.Context, identity string, capability model.Capability) error {
	admin, ok := a.next.(model.RoleAdministrator)
	if !ok {
		return errors.New("role authority does not accept grants")
	}
	defer a.invalidate(identity)
	return admin.Grant(ctx, identity, capability)
}

func (a *Authority) Revoke(ctx context.Context, identity string, capability model.Capability) error {
	admin, ok := a.next.(model.RoleAdministrator)
	if !ok {
		return errors.New("role authority does not accept revocations")
	}
	defer a.invalidate(identity)
	return admin.Revoke(ctx, identity, capability)
}

func (a *Authority) invalidate(identity string) {
	_ = a.cache.Delete(identity)
}

func encode(caps []model.Capability) []byte {
	names := make([]string, len(caps))
	for i, c := range caps {
		names[i] = string(c)
	}
	return []byte(strings.Join(names, ","))
}

func decode(entry []byte) []model.Capability {
	if len(entry) == 0 {
		return []model.Capability{}
	}
	names := strings.Split(string(entry), ",")
	caps := make([]model.Capability, len(names))
	for i, name := range names {
		caps[i] = model.Capability(name)
	}
	return caps
}
