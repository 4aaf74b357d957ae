package reconcile

import (
	"fmt"

	"github.com/golang/glog"
)

// Report accumulates the outcomes of one reconciliation run. It is passed
// explicitly through the reconciler and sweep rather than held as process
// state, and every entry is logged as it is recorded so the run can be
// followed live.
//
// The run as a whole fails iff the failure bucket is non-empty; warnings and
// fixes never affect the exit status.
type Report struct {
	Successes int      `json:"successes"`
	Fixes     []string `json:"fixes,omitempty"`
	Warnings  []string `json:"warnings,omitempty"`
	Failures  []string `json:"failures,omitempty"`
}

// AddSuccess records a no-op match.
func (r *Report) AddSuccess() {
	r.Successes++
}

// AddFix records an applied change.
func (r *Report) AddFix(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	glog.Infof("fix: %s", msg)
	r.Fixes = append(r.Fixes, msg)
}

// AddWarning records non-fatal drift detail.
func (r *Report) AddWarning(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	glog.Warningf("warning: %s", msg)
	r.Warnings = append(r.Warnings, msg)
}

// AddFailure records an unresolved problem. Any failure makes the run exit
// non-zero.
func (r *Report) AddFailure(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	glog.Errorf("failure: %s", msg)
	r.Failures = append(r.Failures, msg)
}

// Failed reports whether the run must exit with a failure status.
func (r *Report) Failed() bool {
	return len(r.Failures) > 0
}
