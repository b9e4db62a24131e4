package passup

import (
	"github.com/smallbiznis/uplink/internal/passup/repository"
	"github.com/smallbiznis/uplink/internal/passup/service"
	"go.uber.org/fx"
)

var Module = fx.Module("passup.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
