package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/fsnotify/fsnotify"
	"github.com/golang/glog"
	"github.com/spf13/cobra"

	"github.com/akoyago/deployctl/pkg/assembly"
	"github.com/akoyago/deployctl/pkg/diff"
	"github.com/akoyago/deployctl/pkg/reconcile"
	"github.com/akoyago/deployctl/pkg/snapshot"
)

func newPluginsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plugins",
		Short: "Manage plugin registration",
	}
	cmd.AddCommand(newPluginsSyncCmd())
	cmd.AddCommand(newPluginsExportCmd())
	cmd.AddCommand(newPluginsRegisterAssemblyCmd())
	return cmd
}

func newPluginsSyncCmd() *cobra.Command {
	var (
		snapshotPath string
		byID         bool
		prune        bool
		dryRun       bool
		watch        bool
	)

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Reconcile a target environment against a snapshot",
		Long: `Diffs the desired-state snapshot against the live registration state of the
target environment and applies the difference: missing steps and images are
created, drifted mutable fields updated, and immutable mismatches reported for
manual recreation. With --prune, steps and plugin types absent from the
snapshot are removed.

The command exits non-zero iff any failure was recorded, regardless of how
many fixes or warnings occurred.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			mode := diff.KeyByComposite
			if byID {
				mode = diff.KeyByID
			}
			if !watch {
				return runPluginsSync(ctx, snapshotPath, mode, prune, dryRun)
			}
			return watchPluginsSync(ctx, snapshotPath, mode, prune, dryRun)
		},
	}

	cmd.Flags().StringVar(&snapshotPath, "snapshot", "", "Path to the desired-state snapshot (required)")
	cmd.Flags().BoolVar(&byID, "by-id", false, "Match steps by GUID instead of the composite logical key")
	cmd.Flags().BoolVar(&prune, "prune", true, "Delete observed steps and plugin types absent from the snapshot")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Compute and print the plan without writing")
	cmd.Flags().BoolVar(&watch, "watch", false, "Re-run the sync whenever the snapshot file changes")
	_ = cmd.MarkFlagRequired("snapshot")

	return cmd
}

func runPluginsSync(ctx context.Context, snapshotPath string, mode diff.KeyMode, prune, dryRun bool) error {
	doc, err := snapshot.Load(snapshotPath)
	if err != nil {
		return err
	}

	st, err := openStore()
	if err != nil {
		return err
	}

	target, err := st.AssemblyByName(ctx, doc.Metadata.AssemblyName)
	if err != nil {
		return err
	}
	if target == nil {
		return fmt.Errorf("assembly %q not found in target environment", doc.Metadata.AssemblyName)
	}
	if err := assembly.VerifyVersion(doc.Metadata.AssemblyVersion, target.Version); err != nil {
		return err
	}

	observedSteps, err := st.Steps(ctx, target.ID)
	if err != nil {
		return err
	}
	observedTypes, err := st.PluginTypes(ctx, target.ID)
	if err != nil {
		return err
	}

	plan, err := diff.BuildPlan(doc.Steps, observedSteps, observedTypes, mode)
	if err != nil {
		return err
	}

	if dryRun {
		return printPlan(plan)
	}

	report := &reconcile.Report{}
	reconciler := reconcile.New(st, target.ID, report)
	reconciler.Apply(ctx, plan)
	if prune {
		reconciler.Sweep(ctx, plan)
	}

	if err := printReport(report); err != nil {
		return err
	}
	if report.Failed() {
		return fmt.Errorf("reconciliation finished with %d failures", len(report.Failures))
	}
	return nil
}

// watchPluginsSync re-runs the sync whenever the snapshot file is rewritten.
// Sync failures are logged and the watch continues; only watcher errors or
// context cancellation end the loop.
func watchPluginsSync(ctx context.Context, snapshotPath string, mode diff.KeyMode, prune, dryRun bool) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("watch: %w", err)
	}
	defer watcher.Close()

	// Watch the directory, not the file: editors and the atomic snapshot
	// writer replace the file by rename.
	if err := watcher.Add(filepath.Dir(snapshotPath)); err != nil {
		return fmt.Errorf("watch %s: %w", snapshotPath, err)
	}

	run := func() {
		if err := runPluginsSync(ctx, snapshotPath, mode, prune, dryRun); err != nil {
			glog.Errorf("sync: %v", err)
		}
	}
	run()

	target := filepath.Clean(snapshotPath)
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			glog.Infof("snapshot changed (%s), re-running sync", event.Op)
			run()
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			return fmt.Errorf("watch: %w", err)
		}
	}
}

// printPlan renders a dry-run plan.
func printPlan(plan *diff.Plan) error {
	format, err := parseOutputFormat(outputFlag)
	if err != nil {
		return err
	}

	type planRow struct {
		Step   string `json:"step"`
		Class  string `json:"classification"`
		Detail string `json:"detail,omitempty"`
	}
	rows := make([]planRow, 0, len(plan.Results)+len(plan.OrphanSteps)+len(plan.OrphanTypes))
	for i := range plan.Results {
		res := &plan.Results[i]
		rows = append(rows, planRow{
			Step:   res.Desired.Name,
			Class:  res.Class.String(),
			Detail: planDetail(res),
		})
	}
	for i := range plan.OrphanSteps {
		rows = append(rows, planRow{Step: plan.OrphanSteps[i].Name, Class: "Orphan", Detail: "delete"})
	}
	for i := range plan.OrphanTypes {
		rows = append(rows, planRow{Step: plan.OrphanTypes[i].TypeName, Class: "OrphanType", Detail: "delete"})
	}

	if format != outputTable {
		return printOutput(os.Stdout, format, rows, nil, nil)
	}
	tableRows := make([][]string, len(rows))
	for i, row := range rows {
		tableRows[i] = []string{row.Step, row.Class, truncate(row.Detail, 100)}
	}
	return printTable(os.Stdout, []string{"step", "classification", "detail"}, tableRows)
}

func planDetail(res *diff.StepResult) string {
	var parts []string
	for _, d := range res.ImmutableDeltas {
		parts = append(parts, d.String())
	}
	for _, d := range res.Deltas {
		parts = append(parts, d.String())
	}
	for _, action := range res.ImageActions {
		parts = append(parts, fmt.Sprintf("image %q: %s", action.Name, action.Kind))
	}
	return strings.Join(parts, "; ")
}

func newPluginsExportCmd() *cobra.Command {
	var (
		assemblyName string
		outPath      string
	)

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export an assembly's registration state to a snapshot",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPluginsExport(cmd.Context(), assemblyName, outPath)
		},
	}

	cmd.Flags().StringVar(&assemblyName, "assembly", "", "Assembly name (required)")
	cmd.Flags().StringVar(&outPath, "out", "", "Output snapshot path (required)")
	_ = cmd.MarkFlagRequired("assembly")
	_ = cmd.MarkFlagRequired("out")

	return cmd
}

func runPluginsExport(ctx context.Context, assemblyName, outPath string) error {
	st, err := openStore()
	if err != nil {
		return err
	}
	source, err := st.AssemblyByName(ctx, assemblyName)
	if err != nil {
		return err
	}
	if source == nil {
		return fmt.Errorf("assembly %q not found in source environment", assemblyName)
	}
	steps, err := st.Steps(ctx, source.ID)
	if err != nil {
		return err
	}

	doc := snapshot.FromObserved(source, steps)
	if err := snapshot.Write(outPath, doc); err != nil {
		return err
	}
	fmt.Fprintf(os.Stdout, "Exported %d steps of %q (%s) to %s\n",
		len(steps), source.Name, source.Version, outPath)
	return nil
}

func newPluginsRegisterAssemblyCmd() *cobra.Command {
	var (
		assemblyName    string
		contentPath     string
		expectedVersion string
	)

	cmd := &cobra.Command{
		Use:   "register-assembly",
		Short: "Replace the registered content of a plugin assembly",
		Long: `Replaces the binary content of an already-registered assembly from a DLL, or
from a build archive searched for <assembly>.dll. Content replacement only;
assemblies are never created or deleted by this command.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := openStore()
			if err != nil {
				return err
			}
			content, err := assembly.ContentFromPath(contentPath, assemblyName)
			if err != nil {
				return err
			}
			if err := assembly.Register(cmd.Context(), st, assemblyName, expectedVersion, content); err != nil {
				return err
			}
			fmt.Fprintf(os.Stdout, "Replaced content of %q (%d bytes)\n", assemblyName, len(content))
			return nil
		},
	}

	cmd.Flags().StringVar(&assemblyName, "assembly", "", "Assembly name (required)")
	cmd.Flags().StringVar(&contentPath, "path", "", "Path to the assembly DLL or build archive (required)")
	cmd.Flags().StringVar(&expectedVersion, "expect-version", "", "Fail unless the registered version matches")
	_ = cmd.MarkFlagRequired("assembly")
	_ = cmd.MarkFlagRequired("path")

	return cmd
}
