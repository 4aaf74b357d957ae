package main

import (
	"github.com/spf13/cobra"
)

var (
	version = "dev"

	// Global flags
	cfgFile    string
	envName    string
	outputFlag string
)

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "deployctl",
		Short: "Deployment automation for the akoyaGO solution",
		Long: `deployctl keeps Dynamics 365 / Power Platform environments aligned with a
declarative plugin-registration snapshot.

plugins export       writes the registration state of an assembly to a snapshot
plugins sync         reconciles a target environment against a snapshot
webresources verify  checks deployed HTML/JS web resources against local files
app register         provisions the Azure AD application used for deployments

Environments are named profiles in the config file; secrets can be supplied
via DEPLOYCTL_* environment variables.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Config file (default: ./deployctl.yaml)")
	cmd.PersistentFlags().StringVar(&envName, "env", "", "Environment profile name from the config file")
	cmd.PersistentFlags().StringVarP(&outputFlag, "output", "o", "table", "Output format: table, json, yaml")

	cmd.AddCommand(newPluginsCmd())
	cmd.AddCommand(newWebResourcesCmd())
	cmd.AddCommand(newAppCmd())

	return cmd
}
