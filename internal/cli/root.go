// Package cli is the operator command line for the compensation engine.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/bwmarrin/snowflake"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:           "uplink",
	Short:         "Referral compensation engine",
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func parseAmount(raw string) (int64, error) {
	amount, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("amount %q is not a whole number of cents", raw)
	}
	return amount, nil
}

func parseLevel(raw string) (int, error) {
	level, err := strconv.Atoi(raw)
	if err != nil || level <= 0 {
		return 0, fmt.Errorf("tier level %q must be a positive number", raw)
	}
	return level, nil
}

// resolve maps a handle, @handle or numeric id to a member id.
func resolve(ctx context.Context, d deps, ref string) (snowflake.ID, error) {
	m, err := d.Members.ResolveHandle(ctx, ref)
	if err != nil {
		return 0, fmt.Errorf("member %q: %w", ref, err)
	}
	return m.ID, nil
}
