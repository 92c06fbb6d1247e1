package main

import (
	"fmt"

	"github.com/spf13/cobra"

	coredomain "github.com/campusline/comms_services/internal/core_messaging/domain"
)

var settingsInput coredomain.ProviderCredentials

var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "Manage per-branch WhatsApp settings",
}

var settingsSetCmd = &cobra.Command{
	Use:   "set",
	Short: "Store the WhatsApp Business credentials of a branch",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		svc, err := newServices(ctx, false)
		if err != nil {
			return err
		}
		defer svc.close()

		if err := svc.settings.SetCredentials(ctx, operatorActor(), settingsInput); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "WhatsApp settings stored for branch %s.\n", settingsInput.BranchID)
		return nil
	},
}

func init() {
	f := settingsSetCmd.Flags()
	f.StringVar(&settingsInput.BranchID, "branch", "", "branch the credentials belong to")
	f.StringVar(&settingsInput.PhoneNumberID, "phone-number-id", "", "WhatsApp phone number id")
	f.StringVar(&settingsInput.BusinessAccountID, "business-account-id", "", "WhatsApp Business account id")
	f.StringVar(&settingsInput.AccessToken, "access-token", "", "permanent access token")
	f.StringVar(&settingsInput.APIVersion, "api-version", "", "Graph API version, v19.0 when empty")
	_ = settingsSetCmd.MarkFlagRequired("branch")
	_ = settingsSetCmd.MarkFlagRequired("access-token")
	settingsCmd.AddCommand(settingsSetCmd)
}
