package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/akoyago/deployctl/pkg/appreg"
)

func newAppCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "app",
		Short: "Manage the Azure AD application used for deployments",
	}
	cmd.AddCommand(newAppRegisterCmd())
	return cmd
}

func newAppRegisterCmd() *cobra.Command {
	var displayName string

	cmd := &cobra.Command{
		Use:   "register",
		Short: "Provision the deployment application and print its consent URL",
		Long: `Creates an Azure AD application with the Dynamics user_impersonation
permission, its service principal, and a client secret, using the credentials
of the selected environment profile. The printed admin-consent URL must be
visited once by a tenant administrator.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := resolveEnvironment()
			if err != nil {
				return err
			}
			client, err := appreg.NewClient(appreg.Config{
				TenantID:     env.TenantID,
				ClientID:     env.ClientID,
				ClientSecret: env.ClientSecret,
			})
			if err != nil {
				return err
			}

			result, err := client.Provision(cmd.Context(), displayName)
			if err != nil {
				return err
			}

			format, err := parseOutputFormat(outputFlag)
			if err != nil {
				return err
			}
			if format != outputTable {
				return printOutput(os.Stdout, format, result, nil, nil)
			}
			fmt.Fprintf(os.Stdout, "Application ID:       %s\n", result.ApplicationID)
			fmt.Fprintf(os.Stdout, "Service principal ID: %s\n", result.ServicePrincipalID)
			fmt.Fprintf(os.Stdout, "Client secret:        %s\n", result.ClientSecret)
			fmt.Fprintf(os.Stdout, "Admin consent URL:    %s\n", result.ConsentURL)
			return nil
		},
	}

	cmd.Flags().StringVar(&displayName, "name", "", "Application display name (required)")
	_ = cmd.MarkFlagRequired("name")

	return cmd
}
