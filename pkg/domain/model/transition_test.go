package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStateLabels(t *testing.T) {
	expected := map[ProductState]string{
		0: "Produced",
		1: "In Transit",
		2: "In Warehouse",
		3: "Distributed",
		4: "In Store",
		5: "Sold",
	}
	for state, label := range expected {
		assert.Equal(t, label, state.Label())
	}
	assert.Equal(t, "Unknown", ProductState(9).Label())
	assert.Equal(t, "IN_WAREHOUSE", InWarehouse.String())
	assert.True(t, Sold.Terminal())
}

func TestTransitionTableNeverGoesBackward(t *testing.T) {
	seen := make(map[TransitionKind]bool)
	for _, rule := range Transitions() {
		assert.False(t, seen[rule.Kind], "duplicate rule %s", rule.Kind)
		seen[rule.Kind] = true

		assert.GreaterOrEqual(t, int(rule.To), int(rule.From), rule.Kind)
		assert.LessOrEqual(t, int(rule.To-rule.From), 1, "%s skips a state", rule.Kind)
		assert.False(t, rule.From.Terminal(), "%s leaves a terminal state", rule.Kind)
	}
	assert.Len(t, seen, 11)

	purchase, ok := RuleFor(PurchaseProduct)
	require.True(t, ok)
	assert.False(t, purchase.RequiresCapability())

	_, ok = RuleFor("teleport")
	assert.False(t, ok)
}

func TestRuleApply(t *testing.T) {
	now := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	product, _ := NewProduct(1, "Coffee", "0xA", "Farm", now.Add(-time.Hour))
	product.State = InTransit

	t.Run("Custody transfer", func(t *testing.T) {
		rule, _ := RuleFor(DeliverToWarehouse)
		next, record, err := rule.Apply(product, "0xB", "WH1", now)

		require.NoError(t, err)
		assert.Equal(t, InWarehouse, next.State)
		assert.Equal(t, "0xB", next.CurrentOwner)
		assert.Equal(t, now, next.LastUpdated)
		assert.Equal(t, InTransit, product.State, "input must not change")

		assert.Equal(t, TransactionRecord{
			ProductID:  1,
			Transition: DeliverToWarehouse,
			FromState:  InTransit,
			ToState:    InWarehouse,
			Actor:      "0xB",
			Timestamp:  now,
			Location:   "WH1",
		}, record)
	})

	t.Run("Location update keeps owner", func(t *testing.T) {
		rule, _ := RuleFor(ReceiveInTransit)
		next, record, err := rule.Apply(product, "0xB", "Road", now)

		require.NoError(t, err)
		assert.Equal(t, InTransit, next.State)
		assert.Equal(t, "0xA", next.CurrentOwner)
		assert.Equal(t, InTransit, record.FromState)
		assert.Equal(t, InTransit, record.ToState)
	})

	t.Run("Wrong source state", func(t *testing.T) {
		rule, _ := RuleFor(Ship)
		next, _, err := rule.Apply(product, "0xA", "Port", now)

		var invalid *InvalidStateTransitionError
		require.ErrorAs(t, err, &invalid)
		assert.Equal(t, Produced, invalid.Expected)
		assert.Equal(t, InTransit, invalid.Actual)
		assert.Equal(t, product, next)
	})
}

func TestParseCapability(t *testing.T) {
	c, ok := ParseCapability("warehouse")
	require.True(t, ok)
	assert.Equal(t, Warehouse, c)

	_, ok = ParseCapability("admin")
	assert.False(t, ok)
}
