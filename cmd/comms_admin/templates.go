package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	syncBranchID       string
	syncOriginBranchID string
)

var templatesCmd = &cobra.Command{
	Use:   "templates",
	Short: "Manage message templates",
}

var templatesSyncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Pull the provider's templates for a branch into the local store",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		svc, err := newServices(ctx, false)
		if err != nil {
			return err
		}
		defer svc.close()

		res, err := svc.templates.SyncTemplates(ctx, operatorActor(), syncBranchID, syncOriginBranchID)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Fetched %d, created %d, updated %d, skipped %d.\n", res.Fetched, res.Created, res.Updated, res.Skipped)
		return nil
	},
}

func init() {
	templatesSyncCmd.Flags().StringVar(&syncBranchID, "branch", "", "branch whose provider credentials are used")
	templatesSyncCmd.Flags().StringVar(&syncOriginBranchID, "origin-branch", "", "branch recorded as the origin of new templates")
	_ = templatesSyncCmd.MarkFlagRequired("branch")
	templatesCmd.AddCommand(templatesSyncCmd)
}
