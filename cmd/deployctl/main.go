// Package main provides the deployctl binary: deployment automation for the
// akoyaGO Dynamics 365 solution. It exports plugin-registration snapshots,
// reconciles target environments against them, verifies web resources, and
// provisions the Azure AD application used by deployment pipelines.
package main

import (
	"flag"
	"fmt"
	"os"
)

func main() {
	// glog logs to files by default; a CLI wants stderr.
	_ = flag.CommandLine.Parse([]string{})
	_ = flag.Set("logtostderr", "true")

	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
