package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var retryRecipientIDs []string

var messagesCmd = &cobra.Command{
	Use:   "messages",
	Short: "Inspect and repair message dispatches",
}

var messagesRetryCmd = &cobra.Command{
	Use:   "retry <message-id>",
	Short: "Re-dispatch the failed recipients of a message",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		svc, err := newServices(ctx, true)
		if err != nil {
			return err
		}
		defer svc.close()

		res, err := svc.dispatch.Retry(ctx, operatorActor(), args[0], retryRecipientIDs)
		if err != nil {
			return err
		}
		if res.NothingToRetry {
			fmt.Fprintln(cmd.OutOrStdout(), "Nothing to retry.")
			return nil
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Retrying %d recipient(s) in job %s.\n", res.RetriedCount, res.JobID)
		return nil
	},
}

var messagesExportCmd = &cobra.Command{
	Use:   "export <message-id>",
	Short: "Write the delivery log of a message to a CSV file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		svc, err := newServices(ctx, false)
		if err != nil {
			return err
		}
		defer svc.close()

		path, err := svc.export.ExportDeliveryLogToFile(ctx, operatorActor(), args[0])
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), path)
		return nil
	},
}

func init() {
	messagesRetryCmd.Flags().StringSliceVar(&retryRecipientIDs, "recipient", nil, "message recipient id to retry (repeatable, default all failed)")
	messagesCmd.AddCommand(messagesRetryCmd, messagesExportCmd)
}
