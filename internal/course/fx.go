package course

import (
	"github.com/smallbiznis/uplink/internal/course/service"
	"go.uber.org/fx"
)

var Module = fx.Module("course.service",
	fx.Provide(service.New),
)
