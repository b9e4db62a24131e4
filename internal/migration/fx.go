package migration

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/uplink/internal/config"
	"github.com/smallbiznis/uplink/internal/seed"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, node *snowflake.Node, cfg config.Config) error {
		ctx := context.Background()
		if err := Migrate(ctx, conn); err != nil {
			return err
		}
		return seed.Run(ctx, conn, node, cfg.PlatformWallet)
	}),
)
