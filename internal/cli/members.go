package cli

import (
	"context"

	memberdomain "github.com/smallbiznis/uplink/internal/member/domain"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(registerCmd)
	rootCmd.AddCommand(assignSponsorCmd)
	rootCmd.AddCommand(setWalletCmd)
	rootCmd.AddCommand(statsCmd)

	registerCmd.Flags().String("email", "", "Contact email")
	registerCmd.Flags().String("wallet", "", "Payout wallet address")
	registerCmd.Flags().String("sponsor", "", "Sponsor handle or id; empty registers an organic member")
	registerCmd.Flags().Bool("admin", false, "Register a platform admin")
}

var registerCmd = &cobra.Command{
	Use:   "register HANDLE",
	Short: "Register a member",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		email, _ := cmd.Flags().GetString("email")
		wallet, _ := cmd.Flags().GetString("wallet")
		sponsor, _ := cmd.Flags().GetString("sponsor")
		admin, _ := cmd.Flags().GetBool("admin")

		return withEngine(cmd.Context(), func(ctx context.Context, d deps) error {
			m, err := d.Members.Register(ctx, memberdomain.RegisterRequest{
				Handle:        args[0],
				Email:         email,
				WalletAddress: wallet,
				SponsorRef:    sponsor,
				IsAdmin:       admin,
			})
			if err != nil {
				return err
			}
			return printJSON(cmd, m)
		})
	},
}

var assignSponsorCmd = &cobra.Command{
	Use:   "assign-sponsor MEMBER SPONSOR",
	Short: "Attach a sponsor to a member registered without one",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withEngine(cmd.Context(), func(ctx context.Context, d deps) error {
			memberID, err := resolve(ctx, d, args[0])
			if err != nil {
				return err
			}
			sponsorID, err := resolve(ctx, d, args[1])
			if err != nil {
				return err
			}
			return d.Members.AssignSponsor(ctx, memberID, sponsorID)
		})
	},
}

var setWalletCmd = &cobra.Command{
	Use:   "set-wallet MEMBER ADDRESS",
	Short: "Set a member's payout wallet address",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withEngine(cmd.Context(), func(ctx context.Context, d deps) error {
			memberID, err := resolve(ctx, d, args[0])
			if err != nil {
				return err
			}
			return d.Members.SetWalletAddress(ctx, memberID, args[1])
		})
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats MEMBER",
	Short: "Show a member's balances, earnings, pass-up trackers and grids",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withEngine(cmd.Context(), func(ctx context.Context, d deps) error {
			memberID, err := resolve(ctx, d, args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd, d.Engine.MemberStats(ctx, memberID))
		})
	},
}
