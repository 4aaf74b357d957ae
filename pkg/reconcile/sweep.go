package reconcile

import (
	"context"

	"github.com/golang/glog"

	"github.com/akoyago/deployctl/pkg/diff"
)

// Sweep deletes the orphaned steps and plugin types the plan identified:
// observed entities with no counterpart in the desired set. Steps go first;
// a plugin type is only removed once none of its steps are left standing.
// Individual delete failures are recorded and the sweep moves on.
func (r *Reconciler) Sweep(ctx context.Context, plan *diff.Plan) {
	for i := range plan.OrphanSteps {
		step := &plan.OrphanSteps[i]
		glog.V(1).Infof("sweeping orphan step %q (%s)", step.Name, step.ID)
		if err := r.store.DeleteStep(ctx, step.ID); err != nil {
			r.report.AddFailure("orphan step %q: delete failed: %v", step.Name, err)
			continue
		}
		r.report.AddFix("removed orphaned step %q", step.Name)
	}

	for i := range plan.OrphanTypes {
		pt := &plan.OrphanTypes[i]
		glog.V(1).Infof("sweeping orphan plugin type %q (%s)", pt.TypeName, pt.ID)
		if err := r.store.DeletePluginType(ctx, pt.ID); err != nil {
			r.report.AddFailure("orphan plugin type %q: delete failed: %v", pt.TypeName, err)
			continue
		}
		r.report.AddFix("removed orphaned plugin type %q", pt.TypeName)
	}
}
