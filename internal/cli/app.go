package cli

import (
	"context"
	"fmt"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/uplink/internal/cascade"
	"github.com/smallbiznis/uplink/internal/clock"
	"github.com/smallbiznis/uplink/internal/config"
	"github.com/smallbiznis/uplink/internal/course"
	"github.com/smallbiznis/uplink/internal/engine"
	"github.com/smallbiznis/uplink/internal/grid"
	"github.com/smallbiznis/uplink/internal/ledger"
	"github.com/smallbiznis/uplink/internal/member"
	memberdomain "github.com/smallbiznis/uplink/internal/member/domain"
	"github.com/smallbiznis/uplink/internal/membership"
	"github.com/smallbiznis/uplink/internal/notification"
	"github.com/smallbiznis/uplink/internal/observability"
	"github.com/smallbiznis/uplink/internal/passup"
	"github.com/smallbiznis/uplink/internal/payment"
	"github.com/smallbiznis/uplink/internal/ratelimit"
	"github.com/smallbiznis/uplink/internal/wallet"
	"github.com/smallbiznis/uplink/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// coreModules is the infrastructure every command needs.
func coreModules() fx.Option {
	return fx.Options(
		config.Module,
		observability.Module,
		fx.Provide(ProvideSnowflake),
		clock.Module,
		db.Module,
		ratelimit.Module,
		fx.WithLogger(func(log *zap.Logger) fxevent.Logger {
			l := &fxevent.ZapLogger{Logger: log.Named("fx")}
			l.UseLogLevel(zap.DebugLevel)
			return l
		}),
	)
}

// engineModules wires the compensation engine and everything behind it.
func engineModules() fx.Option {
	return fx.Options(
		notification.Module,
		payment.Module,
		member.Module,
		ledger.Module,
		passup.Module,
		cascade.Module,
		course.Module,
		grid.Module,
		membership.Module,
		wallet.Module,
		engine.Module,
	)
}

func ProvideSnowflake(cfg config.Config) (*snowflake.Node, error) {
	node, err := snowflake.NewNode(cfg.NodeID)
	if err != nil {
		return nil, fmt.Errorf("snowflake node %d: %w", cfg.NodeID, err)
	}
	return node, nil
}

type deps struct {
	fx.In

	Engine  *engine.Engine
	Members memberdomain.Service
	DB      *gorm.DB
	Node    *snowflake.Node
	Config  config.Config
	Log     *zap.Logger
}

// withEngine starts a short-lived app, runs fn against it and stops the app.
func withEngine(ctx context.Context, fn func(ctx context.Context, d deps) error) error {
	var d deps
	app := fx.New(
		coreModules(),
		engineModules(),
		fx.Invoke(func(in deps) { d = in }),
	)
	return runApp(ctx, app, func(ctx context.Context) error { return fn(ctx, d) })
}

func runApp(ctx context.Context, app *fx.App, fn func(ctx context.Context) error) error {
	if err := app.Err(); err != nil {
		return err
	}
	if err := app.Start(ctx); err != nil {
		return err
	}
	runErr := fn(ctx)
	stopCtx, cancel := context.WithTimeout(context.Background(), app.StopTimeout())
	defer cancel()
	if err := app.Stop(stopCtx); err != nil && runErr == nil {
		return err
	}
	return runErr
}
