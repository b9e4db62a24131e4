package cli

import (
	"context"
	"fmt"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/uplink/internal/config"
	"github.com/smallbiznis/uplink/internal/migration"
	"github.com/smallbiznis/uplink/internal/scheduler"
	"github.com/smallbiznis/uplink/internal/seed"
	"github.com/spf13/cobra"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

func init() {
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(seedCmd)
	rootCmd.AddCommand(schedulerCmd)
	rootCmd.AddCommand(renewCmd)

	migrateCmd.Flags().Int("down", 0, "Revert this many postgres migrations instead of applying")
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply schema migrations and seed the catalogue",
	RunE:  runMigrate,
}

func runMigrate(cmd *cobra.Command, _ []string) error {
	down, _ := cmd.Flags().GetInt("down")
	if down > 0 {
		var conn *gorm.DB
		app := fx.New(coreModules(), fx.Populate(&conn))
		return runApp(cmd.Context(), app, func(context.Context) error {
			sqlDB, err := conn.DB()
			if err != nil {
				return err
			}
			return migration.Rollback(sqlDB, down)
		})
	}
	app := fx.New(coreModules(), migration.Module)
	if err := runApp(cmd.Context(), app, func(context.Context) error { return nil }); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
	return nil
}

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Insert the tier catalogue and the platform admin if missing",
	RunE: func(cmd *cobra.Command, _ []string) error {
		var (
			conn *gorm.DB
			node *snowflake.Node
			cfg  config.Config
		)
		app := fx.New(coreModules(), fx.Populate(&conn, &node, &cfg))
		return runApp(cmd.Context(), app, func(ctx context.Context) error {
			return seed.Run(ctx, conn, node, cfg.PlatformWallet)
		})
	},
}

var schedulerCmd = &cobra.Command{
	Use:   "scheduler",
	Short: "Run the renewal scheduler until interrupted",
	RunE: func(cmd *cobra.Command, _ []string) error {
		app := fx.New(coreModules(), engineModules(), scheduler.Module)
		if err := app.Err(); err != nil {
			return err
		}
		app.Run()
		return nil
	},
}

var renewCmd = &cobra.Command{
	Use:   "renew",
	Short: "Run one renewal sweep now",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withEngine(cmd.Context(), func(ctx context.Context, d deps) error {
			return printJSON(cmd, d.Engine.RunRenewalSweep(ctx))
		})
	},
}
