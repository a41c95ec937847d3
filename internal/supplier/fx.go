package supplier

import (
	"go.uber.org/fx"

	"github.com/trackvault/trackvault/internal/supplier/repository"
	"github.com/trackvault/trackvault/internal/supplier/service"
)

var Module = fx.Module("supplier.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
