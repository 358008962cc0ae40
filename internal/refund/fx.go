package refund

import (
	"github.com/smallbiznis/settlement/internal/refund/repository"
	"github.com/smallbiznis/settlement/internal/refund/service"
	"go.uber.org/fx"
)

var Module = fx.Module("refund.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
