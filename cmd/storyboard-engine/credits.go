// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pdiddy/storyboard-engine/internal/credits"
)

var creditsCmd = &cobra.Command{
	Use:   "credits",
	Short: "Manage per-project generation credits",
}

var creditsBalanceCmd = &cobra.Command{
	Use:   "balance [project-id]",
	Short: "Show a project's credit balance",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ledger, closeFn, err := openLedger(cmd)
		if err != nil {
			return err
		}
		defer closeFn()

		balance, err := ledger.Balance(context.Background(), args[0])
		if err != nil {
			return err
		}
		fmt.Printf("%s: %d credits\n", args[0], balance)
		return nil
	},
}

var creditsGrantCmd = &cobra.Command{
	Use:   "grant [project-id] [amount]",
	Short: "Add credits to a project",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		var amount int
		if _, err := fmt.Sscanf(args[1], "%d", &amount); err != nil {
			return fmt.Errorf("amount must be an integer: %w", err)
		}

		ledger, closeFn, err := openLedger(cmd)
		if err != nil {
			return err
		}
		defer closeFn()

		note, _ := cmd.Flags().GetString("note")
		if err := ledger.Grant(context.Background(), args[0], amount, note); err != nil {
			return err
		}
		balance, err := ledger.Balance(context.Background(), args[0])
		if err != nil {
			return err
		}
		fmt.Printf("%s: %d credits\n", args[0], balance)
		return nil
	},
}

func openLedger(cmd *cobra.Command) (*credits.Ledger, func(), error) {
	st, err := openStore(cmd)
	if err != nil {
		return nil, nil, err
	}
	ledger, err := credits.NewLedger(st.DB())
	if err != nil {
		st.Close()
		return nil, nil, err
	}
	return ledger, func() { st.Close() }, nil
}

func init() {
	creditsCmd.PersistentFlags().String("data-dir", "data", "directory for the run database")
	creditsGrantCmd.Flags().String("note", "", "note recorded with the grant")

	creditsCmd.AddCommand(creditsBalanceCmd)
	creditsCmd.AddCommand(creditsGrantCmd)

	rootCmd.AddCommand(creditsCmd)
}
