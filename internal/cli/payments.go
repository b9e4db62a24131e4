package cli

import (
	"context"
	"fmt"

	"github.com/bwmarrin/snowflake"
	memberdomain "github.com/smallbiznis/uplink/internal/member/domain"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(buyCourseCmd)
	rootCmd.AddCommand(buyGridCmd)
	rootCmd.AddCommand(payMembershipCmd)
	rootCmd.AddCommand(transferCmd)
	rootCmd.AddCommand(withdrawCmd)

	for _, c := range []*cobra.Command{buyCourseCmd, buyGridCmd, payMembershipCmd} {
		c.Flags().String("ref", "", "External payment reference (transaction hash)")
		_ = c.MarkFlagRequired("ref")
	}
	transferCmd.Flags().String("note", "", "Note shown to the recipient")
}

// tierID finds the catalogue tier of kind at level.
func tierID(ctx context.Context, d deps, kind memberdomain.TierKind, level int) (snowflake.ID, error) {
	tiers, err := d.Members.ListTiers(ctx, kind)
	if err != nil {
		return 0, err
	}
	for _, t := range tiers {
		if t.Level == level {
			return t.ID, nil
		}
	}
	return 0, fmt.Errorf("%s tier level %d: %w", kind, level, memberdomain.ErrTierMissing)
}

func purchaseCommand(use, short string, kind memberdomain.TierKind, run func(ctx context.Context, d deps, buyer, tier snowflake.ID, ref string) any) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ref, _ := cmd.Flags().GetString("ref")
			level, err := parseLevel(args[1])
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, d deps) error {
				buyer, err := resolve(ctx, d, args[0])
				if err != nil {
					return err
				}
				tier, err := tierID(ctx, d, kind, level)
				if err != nil {
					return err
				}
				return printJSON(cmd, run(ctx, d, buyer, tier, ref))
			})
		},
	}
}

var buyCourseCmd = purchaseCommand("buy-course MEMBER LEVEL", "Process a course tier purchase", memberdomain.TierKindCourse,
	func(ctx context.Context, d deps, buyer, tier snowflake.ID, ref string) any {
		return d.Engine.ProcessTierPurchase(ctx, buyer, tier, ref)
	})

var buyGridCmd = purchaseCommand("buy-grid MEMBER LEVEL", "Process a grid tier purchase", memberdomain.TierKindGrid,
	func(ctx context.Context, d deps, buyer, tier snowflake.ID, ref string) any {
		return d.Engine.ProcessGridPurchase(ctx, buyer, tier, ref)
	})

var payMembershipCmd = &cobra.Command{
	Use:   "pay-membership MEMBER",
	Short: "Process a membership fee payment",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ref, _ := cmd.Flags().GetString("ref")
		return withEngine(cmd.Context(), func(ctx context.Context, d deps) error {
			memberID, err := resolve(ctx, d, args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd, d.Engine.ProcessMembershipPayment(ctx, memberID, ref))
		})
	},
}

var transferCmd = &cobra.Command{
	Use:   "transfer SENDER RECIPIENT AMOUNT",
	Short: "Move balance between members",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		note, _ := cmd.Flags().GetString("note")
		amount, err := parseAmount(args[2])
		if err != nil {
			return err
		}
		return withEngine(cmd.Context(), func(ctx context.Context, d deps) error {
			sender, err := resolve(ctx, d, args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd, d.Engine.Transfer(ctx, sender, args[1], amount, note))
		})
	},
}

var withdrawCmd = &cobra.Command{
	Use:   "withdraw MEMBER AMOUNT",
	Short: "Request a withdrawal to the member's wallet",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		amount, err := parseAmount(args[1])
		if err != nil {
			return err
		}
		return withEngine(cmd.Context(), func(ctx context.Context, d deps) error {
			memberID, err := resolve(ctx, d, args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd, d.Engine.RequestWithdrawal(ctx, memberID, amount))
		})
	},
}
