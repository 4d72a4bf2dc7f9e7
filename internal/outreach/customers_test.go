package outreach

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/outreach-console/internal/apperrors"
	"github.com/wolfman30/outreach-console/internal/customers"
)

var (
	ana = customers.Customer{ID: "c1", Name: "Ana Diaz", Phone: "555-123-4567", Email: "ana@example.com", ResponseCount: 2}
	ben = customers.Customer{ID: "c2", Name: "Ben Ford", Phone: "5559876543", ConversionCount: 3}
	cy  = customers.Customer{ID: "c3", Name: "Cy Young", Email: "cy@example.com", ConversionCount: 10}
)

func TestRefreshCustomersHonorsFreshnessWindow(t *testing.T) {
	h := newHarness(t)
	h.customers.set(ana, ben)
	ctx := context.Background()

	ranked, err := h.orch.RefreshCustomers(ctx, false)
	require.NoError(t, err)
	require.Len(t, ranked, 2)
	assert.Equal(t, "c2", ranked[0].ID)

	_, err = h.orch.RefreshCustomers(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, 1, h.customers.count())

	h.clock.Advance(6 * time.Minute)
	_, err = h.orch.RefreshCustomers(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, 2, h.customers.count())

	_, err = h.orch.RefreshCustomers(ctx, true)
	require.NoError(t, err)
	assert.Equal(t, 3, h.customers.count())

	snap := h.orch.Snapshot()
	assert.Equal(t, 2, snap.RankedTotal)
	require.NotNil(t, snap.RankedAt)
}

func TestRefreshCustomersCoalescesConcurrentLoads(t *testing.T) {
	h := newHarness(t)
	h.customers.set(ana)
	h.customers.entered = make(chan struct{}, 4)
	h.customers.release = make(chan struct{})

	var wg sync.WaitGroup
	results := make([]int, 3)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ranked, err := h.orch.RefreshCustomers(context.Background(), false)
			if err == nil {
				results[i] = len(ranked)
			}
		}(i)
	}
	<-h.customers.entered
	time.Sleep(30 * time.Millisecond)
	close(h.customers.release)
	wg.Wait()

	assert.Equal(t, 1, h.customers.count())
	assert.Equal(t, []int{1, 1, 1}, results)
}

func TestRefreshCustomersReportsSourceFailure(t *testing.T) {
	h := newHarness(t)
	h.customers.err = errors.New("db down")

	_, err := h.orch.RefreshCustomers(context.Background(), false)
	require.Error(t, err)
	assert.True(t, apperrors.IsExternal(err))
	assert.Nil(t, h.orch.Snapshot().RankedAt)
}

func TestRefreshAutoSelectsTopCallableCustomer(t *testing.T) {
	h := newHarness(t)
	h.customers.set(ana, ben, cy)

	_, err := h.orch.RefreshCustomers(context.Background(), false)
	require.NoError(t, err)

	target := h.orch.Snapshot().Target
	require.NotNil(t, target)
	assert.Equal(t, "c2", target.CustomerID)
	assert.Equal(t, "+15559876543", target.Phone)
	assert.True(t, target.Auto)
}

func TestForcedRefreshRevalidatesAutoTarget(t *testing.T) {
	h := newHarness(t)
	h.customers.set(ana, ben)
	ctx := context.Background()

	_, err := h.orch.RefreshCustomers(ctx, false)
	require.NoError(t, err)
	_, err = h.orch.EditScript("Agent: hello Ben")
	require.NoError(t, err)

	promoted := ana
	promoted.ResponseCount = 20
	h.customers.set(promoted, ben)
	_, err = h.orch.RefreshCustomers(ctx, true)
	require.NoError(t, err)

	snap := h.orch.Snapshot()
	require.NotNil(t, snap.Target)
	assert.Equal(t, "c1", snap.Target.CustomerID)
	assert.Empty(t, snap.Script.Draft)
}

func TestForcedRefreshClearsVanishedSelection(t *testing.T) {
	h := newHarness(t)
	h.customers.set(ana, ben)
	ctx := context.Background()

	target, err := h.orch.SelectCustomer(ctx, "c1")
	require.NoError(t, err)
	assert.False(t, target.Auto)

	h.customers.set(ben)
	_, err = h.orch.RefreshCustomers(ctx, true)
	require.NoError(t, err)

	snap := h.orch.Snapshot()
	assert.Nil(t, snap.Target)
	require.NotEmpty(t, snap.Notifications)
	assert.Contains(t, snap.Notifications[len(snap.Notifications)-1].Message, "Ana Diaz")
}

func TestForcedRefreshKeepsManualTarget(t *testing.T) {
	h := newHarness(t)
	h.customers.set(ana)

	_, err := h.orch.SetManualTarget("Walk-in", "(555) 000-1111")
	require.NoError(t, err)
	_, err = h.orch.RefreshCustomers(context.Background(), true)
	require.NoError(t, err)

	target := h.orch.Snapshot().Target
	require.NotNil(t, target)
	assert.True(t, target.Manual)
	assert.Equal(t, "+15550001111", target.Phone)
}

func TestSelectCustomer(t *testing.T) {
	h := newHarness(t)
	h.customers.set(ana, ben, cy)
	ctx := context.Background()

	_, err := h.orch.SelectCustomer(ctx, "")
	assert.True(t, apperrors.IsPrecondition(err))

	_, err = h.orch.SelectCustomer(ctx, "missing")
	assert.ErrorIs(t, err, customers.ErrCustomerNotFound)

	_, err = h.orch.SelectCustomer(ctx, "c3")
	assert.True(t, apperrors.IsPrecondition(err), "customer without phone")

	target, err := h.orch.SelectCustomer(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, "Ana Diaz", target.Name)
	assert.Equal(t, "+15551234567", target.Phone)
}

func TestSetManualTargetValidatesPhone(t *testing.T) {
	h := newHarness(t)
	_, err := h.orch.SetManualTarget("Someone", "")
	assert.True(t, apperrors.IsPrecondition(err))
	_, err = h.orch.SetManualTarget("Someone", "call me")
	assert.True(t, apperrors.IsPrecondition(err))
	assert.Nil(t, h.orch.Snapshot().Target)
}
