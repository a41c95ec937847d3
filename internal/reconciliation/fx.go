package reconciliation

import (
	"go.uber.org/fx"

	"github.com/trackvault/trackvault/internal/reconciliation/repository"
	"github.com/trackvault/trackvault/internal/reconciliation/service"
)

var Module = fx.Module("reconciliation.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
