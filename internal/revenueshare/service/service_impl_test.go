package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/smallbiznis/settlement/internal/clock"
	"github.com/smallbiznis/settlement/internal/revenueshare/domain"
	"github.com/smallbiznis/settlement/internal/revenueshare/repository"
	"github.com/smallbiznis/settlement/internal/revenueshare/service"
	"github.com/smallbiznis/settlement/internal/testutil"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newService(t *testing.T) domain.Service {
	t.Helper()
	return service.NewService(service.Params{
		DB:    testutil.NewDB(t),
		Log:   zap.NewNop(),
		GenID: testutil.NewNode(t),
		Repo:  repository.Provide(),
		Clock: clock.NewFakeClock(time.Date(2026, 1, 5, 8, 0, 0, 0, time.UTC)),
	})
}

func createRequest(name string, isDefault bool) domain.CreateRequest {
	return domain.CreateRequest{
		Name:                         name,
		PlatformCommissionPercentage: decimal.RequireFromString("2.5"),
		IsDefault:                    isDefault,
	}
}

func TestCreateMovesDefault(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()

	first, err := svc.Create(ctx, createRequest("standard", true))
	require.NoError(t, err)
	second, err := svc.Create(ctx, createRequest("promo", true))
	require.NoError(t, err)

	def, err := svc.GetDefault(ctx)
	require.NoError(t, err)
	require.Equal(t, second.ID, def.ID)

	reloaded, err := svc.Get(ctx, first.ID)
	require.NoError(t, err)
	require.False(t, reloaded.IsDefault)

	_, err = svc.Create(ctx, createRequest("standard", false))
	require.ErrorIs(t, err, domain.ErrConfigurationExists)
}

func TestReviseSupersedesPreviousVersion(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()

	v1, err := svc.Create(ctx, createRequest("standard", true))
	require.NoError(t, err)

	pct := decimal.RequireFromString("3")
	v2, err := svc.Revise(ctx, v1.ID, domain.ReviseRequest{PlatformCommissionPercentage: &pct})
	require.NoError(t, err)
	require.Equal(t, 2, v2.Version)
	require.True(t, v2.IsDefault)
	require.True(t, pct.Equal(v2.PlatformCommissionPercentage))

	old, err := svc.Get(ctx, v1.ID)
	require.NoError(t, err)
	require.False(t, old.IsActive)
	require.NotNil(t, old.SupersededBy)
	require.Equal(t, v2.ID, *old.SupersededBy)
	require.True(t, decimal.RequireFromString("2.5").Equal(old.PlatformCommissionPercentage))

	_, err = svc.Revise(ctx, v1.ID, domain.ReviseRequest{})
	require.ErrorIs(t, err, domain.ErrConfigurationInactive)

	_, err = svc.SetDefault(ctx, v1.ID)
	require.ErrorIs(t, err, domain.ErrConfigurationInactive)
}

func TestReviseRejectsInvalidValues(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()

	v1, err := svc.Create(ctx, createRequest("standard", false))
	require.NoError(t, err)

	negative := int64(-1)
	_, err = svc.Revise(ctx, v1.ID, domain.ReviseRequest{MinimumCommission: &negative})
	require.ErrorIs(t, err, domain.ErrInvalidConfiguration)

	_, err = svc.Revise(ctx, 42, domain.ReviseRequest{})
	require.ErrorIs(t, err, domain.ErrConfigurationNotFound)
}

func TestEnsureDefaultSeedsOnlyEmptyStore(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()

	_, err := svc.GetDefault(ctx)
	require.ErrorIs(t, err, domain.ErrNoDefaultConfiguration)

	seeded, err := svc.EnsureDefault(ctx, createRequest("default", false))
	require.NoError(t, err)
	require.True(t, seeded.IsDefault)

	again, err := svc.EnsureDefault(ctx, createRequest("other", false))
	require.NoError(t, err)
	require.Equal(t, seeded.ID, again.ID)

	all, err := svc.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
}

func TestSetDefault(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()

	a, err := svc.Create(ctx, createRequest("a", true))
	require.NoError(t, err)
	b, err := svc.Create(ctx, createRequest("b", false))
	require.NoError(t, err)

	got, err := svc.SetDefault(ctx, b.ID)
	require.NoError(t, err)
	require.True(t, got.IsDefault)

	reloaded, err := svc.Get(ctx, a.ID)
	require.NoError(t, err)
	require.False(t, reloaded.IsDefault)
}
