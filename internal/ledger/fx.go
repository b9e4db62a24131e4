package ledger

import (
	"github.com/smallbiznis/uplink/internal/ledger/posting"
	"github.com/smallbiznis/uplink/internal/ledger/repository"
	"github.com/smallbiznis/uplink/internal/ledger/service"
	"go.uber.org/fx"
)

var Module = fx.Module("ledger.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
	fx.Provide(posting.New),
)
