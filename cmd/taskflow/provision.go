package main

import (
	"errors"
	"fmt"

	"taskflow/backend/internal/services"

	"github.com/spf13/cobra"
)

var (
	provisionToken string
	provisionName  string
)

func init() {
	provisionCmd.Flags().StringVar(&provisionToken, "token", "", "access token of the account to provision (required)")
	provisionCmd.Flags().StringVar(&provisionName, "name", "", "display name (defaults to the email's local part)")
	_ = provisionCmd.MarkFlagRequired("token")
}

var provisionCmd = &cobra.Command{
	Use:   "provision",
	Short: "Create the profile and default categories of an account",
	Long: `Create the profile and the Work, Personal and Urgent categories for
the account behind an access token. Running it again is harmless.

Uses PROVISIONING_URL when set, otherwise provisions in-process.

Examples:
  taskflow provision --token "$ACCESS_TOKEN" --name "Ada Lovelace"`,
	RunE: runProvision,
}

func runProvision(cmd *cobra.Command, _ []string) error {
	if provisionToken == "" {
		return errors.New("--token is required")
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, cancel := withTimeout(cmd.Context(), cfg.Provisioning.Timeout)
	defer cancel()

	if cfg.Provisioning.Endpoint != "" {
		client := services.NewProvisioningClient(cfg.Provisioning.Endpoint, cfg.Provisioning.Timeout)
		if err := client.ProvisionUser(ctx, provisionToken, provisionName); err != nil {
			return fmt.Errorf("provision: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), "provisioned via", cfg.Provisioning.Endpoint)
		return nil
	}

	log, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	a, err := newApp(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()

	result, err := a.provisioning.Provision(ctx, provisionToken, provisionName)
	if err != nil {
		return fmt.Errorf("provision: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "provisioned %s (%s), %d new categories\n",
		result.User.Name, result.User.Email, len(result.CreatedCategories))
	return nil
}
