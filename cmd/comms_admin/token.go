package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"

	"github.com/campusline/comms_services/internal/platform/authz"
	"github.com/campusline/comms_services/internal/public_api_service/middleware"
)

var (
	tokenUserID      string
	tokenSuperAdmin  bool
	tokenPermissions []string
	tokenBranches    []string
	tokenTTL         time.Duration
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Issue API credentials",
}

var tokenIssueCmd = &cobra.Command{
	Use:   "issue",
	Short: "Sign an access token for the public API",
	RunE: func(cmd *cobra.Command, args []string) error {
		actor := authz.Actor{
			UserID:       tokenUserID,
			IsSuperAdmin: tokenSuperAdmin,
			Permissions:  tokenPermissions,
			BranchIDs:    tokenBranches,
		}
		token, err := middleware.IssueAccessToken([]byte(cfg.JWTAccessSecret), actor, tokenTTL)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), token)
		return nil
	},
}

var tokenWorkerHashCmd = &cobra.Command{
	Use:   "worker-hash <token>",
	Short: "Hash a delivery worker token for APP_WORKER_TOKEN_HASH",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		hash, err := bcrypt.GenerateFromPassword([]byte(args[0]), bcrypt.DefaultCost)
		if err != nil {
			return fmt.Errorf("failed to hash worker token: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(hash))
		return nil
	},
}

func init() {
	tokenIssueCmd.Flags().StringVar(&tokenUserID, "user", "", "subject of the token")
	tokenIssueCmd.Flags().BoolVar(&tokenSuperAdmin, "super-admin", false, "grant every permission on every branch")
	tokenIssueCmd.Flags().StringSliceVar(&tokenPermissions, "permission", nil, "permission to grant (repeatable)")
	tokenIssueCmd.Flags().StringSliceVar(&tokenBranches, "branch", nil, "branch the token may act on (repeatable)")
	tokenIssueCmd.Flags().DurationVar(&tokenTTL, "ttl", time.Hour, "token lifetime")
	_ = tokenIssueCmd.MarkFlagRequired("user")
	tokenCmd.AddCommand(tokenIssueCmd, tokenWorkerHashCmd)
}
