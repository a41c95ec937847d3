package payment

import (
	"go.uber.org/fx"

	"github.com/trackvault/trackvault/internal/payment/repository"
	"github.com/trackvault/trackvault/internal/payment/service"
)

var Module = fx.Module("payment.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
