package grid

import (
	"github.com/smallbiznis/uplink/internal/grid/repository"
	"github.com/smallbiznis/uplink/internal/grid/service"
	"go.uber.org/fx"
)

var Module = fx.Module("grid.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
