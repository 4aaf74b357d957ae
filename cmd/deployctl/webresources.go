package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/akoyago/deployctl/pkg/reconcile"
	"github.com/akoyago/deployctl/pkg/webres"
)

func newWebResourcesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "webresources",
		Short: "Manage HTML and JavaScript web resources",
	}
	cmd.AddCommand(newWebResourcesVerifyCmd())
	return cmd
}

func newWebResourcesVerifyCmd() *cobra.Command {
	var (
		root     string
		prefix   string
		patterns []string
		fix      bool
	)

	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Verify deployed web resources against local source files",
		Long: `Compares the content of deployed web resources with the local files under
--root. Resource names are the --prefix plus the slash-separated relative
path; only names matching an inclusion pattern are checked. With --fix,
drifted content is pushed after stripping any unmanaged solution layer.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := openStore()
			if err != nil {
				return err
			}
			resources, err := webres.Discover(root, prefix, patterns)
			if err != nil {
				return err
			}

			report := &reconcile.Report{}
			checker := webres.NewChecker(st, report)
			checker.Fix = fix
			checker.Run(cmd.Context(), resources)

			if err := printReport(report); err != nil {
				return err
			}
			if report.Failed() {
				return fmt.Errorf("verification finished with %d failures", len(report.Failures))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&root, "root", "", "Local web resource source directory (required)")
	cmd.Flags().StringVar(&prefix, "prefix", "akoyago_/", "Deployed name prefix")
	cmd.Flags().StringSliceVar(&patterns, "pattern", nil, "Inclusion patterns for deployed names (default: all)")
	cmd.Flags().BoolVar(&fix, "fix", false, "Push drifted content to the environment")
	_ = cmd.MarkFlagRequired("root")

	return cmd
}
