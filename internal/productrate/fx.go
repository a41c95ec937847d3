package productrate

import (
	"go.uber.org/fx"

	"github.com/trackvault/trackvault/internal/productrate/repository"
	"github.com/trackvault/trackvault/internal/productrate/service"
)

var Module = fx.Module("productrate.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
