package main

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"supplychain/pkg/domain/model"
	"supplychain/pkg/domain/service"
)

type nopDispatcher struct{}

func (nopDispatcher) Dispatch(service.Event) error { return nil }

func TestServiceWithSeededGrantsCreatesProducts(t *testing.T) {
	t.Setenv("SUPPLYCHAIN_STORAGE_DRIVER", "memory")
	t.Setenv("SUPPLYCHAIN_ROLE_GRANTS", "0xA:producer,0xB:carrier")
	c, err := parseEnv()
	require.NoError(t, err)
	require.Equal(t, []string{"0xA:producer", "0xB:carrier"}, c.RoleGrants)

	ctx := context.Background()
	store, err := openStorage(ctx, c)
	require.NoError(t, err)
	defer store.Close()
	require.NoError(t, seedGrants(ctx, store.roles, c.RoleGrants))

	svc := service.NewSupplyChainService(store, store.roles, nopDispatcher{})

	product, err := svc.CreateProduct(ctx, "0xA", "Coffee", "Farm")
	require.NoError(t, err)
	assert.Equal(t, model.Produced, product.State)

	_, err = svc.Ship(ctx, product.ID, "0xA", "Port")
	require.NoError(t, err)
	_, err = svc.DeliverToWarehouse(ctx, product.ID, "0xB", "WH1")
	require.NoError(t, err)

	_, err = svc.CreateProduct(ctx, "0xB", "Tea", "Farm")
	assert.ErrorIs(t, err, model.ErrUnauthorized)
}

func TestParseGrants(t *testing.T) {
	t.Run("Valid pairs", func(t *testing.T) {
		grants, err := parseGrants([]string{" 0xA:producer", "0xA:retailer", ""})
		require.NoError(t, err)
		assert.Equal(t, []grant{
			{identity: "0xA", capability: model.Producer},
			{identity: "0xA", capability: model.Retailer},
		}, grants)
	})

	t.Run("Missing capability", func(t *testing.T) {
		_, err := parseGrants([]string{"0xA"})
		assert.Error(t, err)
	})

	t.Run("Unknown capability", func(t *testing.T) {
		_, err := parseGrants([]string{"0xA:admin"})
		assert.Error(t, err)
	})
}

func TestRoleChangesNeedPersistentStorage(t *testing.T) {
	assert.Error(t, requirePersistentStorage(&config{StorageDriver: "memory"}))
	assert.NoError(t, requirePersistentStorage(&config{StorageDriver: "badger"}))
	assert.NoError(t, requirePersistentStorage(&config{StorageDriver: "mysql"}))
}
