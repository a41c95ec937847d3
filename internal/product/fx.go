package product

import (
	"go.uber.org/fx"

	"github.com/trackvault/trackvault/internal/product/repository"
	"github.com/trackvault/trackvault/internal/product/service"
)

var Module = fx.Module("product.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
