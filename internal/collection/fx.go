package collection

import (
	"go.uber.org/fx"

	"github.com/trackvault/trackvault/internal/collection/repository"
	"github.com/trackvault/trackvault/internal/collection/service"
)

var Module = fx.Module("collection.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
