package provider

import (
	"fmt"

	"github.com/smallbiznis/settlement/internal/config"
	"github.com/smallbiznis/settlement/internal/provider/adapters"
	"github.com/smallbiznis/settlement/internal/provider/adapters/fake"
	"github.com/smallbiznis/settlement/internal/provider/adapters/httpgateway"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// FakeName is the adapter name the in-memory providers register under.
const FakeName = "fake"

var Module = fx.Module("provider.registry",
	fx.Provide(NewRegistry),
)

// NewRegistry registers one REST gateway per configured endpoint, plus the fake
// adapters when enabled.
func NewRegistry(cfg config.Config, log *zap.Logger) (*adapters.Registry, error) {
	registry := adapters.NewRegistry()
	if cfg.FakeProviders {
		registry.RegisterPayment(fake.NewPayment(FakeName))
		registry.RegisterPayout(fake.NewPayout(FakeName))
		log.Info("fake providers registered", zap.String("provider", FakeName))
	}
	for _, gw := range cfg.Gateways {
		g, err := httpgateway.New(httpgateway.Config{
			Name:          gw.Name,
			BaseURL:       gw.BaseURL,
			APIKey:        gw.APIKey,
			WebhookSecret: gw.WebhookSecret,
			Timeout:       gw.Timeout,
		}, log)
		if err != nil {
			return nil, fmt.Errorf("gateway %s: %w", gw.Name, err)
		}
		registry.RegisterPayment(g)
		registry.RegisterPayout(g.Payouts())
		log.Info("provider gateway registered", zap.String("provider", g.Name()))
	}
	return registry, nil
}
