// Package reconcile executes a diff plan against a record store: creating
// missing steps, updating drifted fields, applying image delete/create pairs,
// and sweeping orphaned steps and plugin types. Entities are processed one at
// a time in plan order; per-entity store errors are recorded in the report
// and never abort the remaining work.
package reconcile

import (
	"context"
	"fmt"
	"strings"

	"github.com/golang/glog"

	"github.com/akoyago/deployctl/pkg/diff"
	"github.com/akoyago/deployctl/pkg/registration"
	"github.com/akoyago/deployctl/pkg/store"
)

// Reconciler applies reconciliation plans for one assembly.
type Reconciler struct {
	store      store.RecordStore
	assemblyID string
	report     *Report
}

// New creates a Reconciler writing outcomes into the given report.
func New(s store.RecordStore, assemblyID string, report *Report) *Reconciler {
	return &Reconciler{store: s, assemblyID: assemblyID, report: report}
}

// Apply executes the per-step portion of the plan in desired order.
func (r *Reconciler) Apply(ctx context.Context, plan *diff.Plan) {
	for i := range plan.Results {
		res := &plan.Results[i]
		for _, w := range res.Warnings {
			r.report.AddWarning("%s", w)
		}

		switch res.Class {
		case diff.Match:
			glog.V(1).Infof("step %q: in sync", res.Desired.Name)
			r.report.AddSuccess()

		case diff.ImmutableConflict:
			r.report.AddFailure("step %q: immutable field mismatch (%s); delete and recreate manually",
				res.Desired.Name, deltaSummary(res.ImmutableDeltas))

		case diff.Missing:
			r.createStep(ctx, res.Desired)

		case diff.MutableDrift:
			r.applyDrift(ctx, res)
		}
	}
}

// createStep resolves the three foreign references a step depends on, creates
// the step, then its images, then disables it if the desired state says so.
// The platform default on creation is Enabled. A failed image creation is
// reported but does not roll back the step.
func (r *Reconciler) createStep(ctx context.Context, d *registration.PluginStep) {
	rec, err := r.buildCreate(ctx, d)
	if err != nil {
		r.report.AddFailure("step %q: %v", d.Name, err)
		return
	}

	stepID, err := r.store.CreateStep(ctx, *rec)
	if err != nil {
		r.report.AddFailure("step %q: create failed: %v", d.Name, err)
		return
	}
	r.report.AddFix("created step %q", d.Name)

	for _, img := range d.Images {
		if _, err := r.store.CreateImage(ctx, stepID, img); err != nil {
			r.report.AddFailure("step %q: create image %q failed: %v", d.Name, img.Name, err)
			continue
		}
		r.report.AddFix("created image %q on step %q", img.Name, d.Name)
	}

	if d.State == registration.StateDisabled {
		if err := r.store.SetStepState(ctx, stepID, registration.StateDisabled); err != nil {
			r.report.AddFailure("step %q: disable failed: %v", d.Name, err)
			return
		}
		r.report.AddFix("disabled step %q", d.Name)
	}
}

// buildCreate resolves message, message filter and plugin type references.
// Any unresolved reference fails the creation of this step before a write is
// attempted; a step is never created with a dangling reference.
func (r *Reconciler) buildCreate(ctx context.Context, d *registration.PluginStep) (*store.StepCreate, error) {
	messageID, err := r.store.MessageID(ctx, d.Message)
	if err != nil {
		return nil, fmt.Errorf("resolve message %q: %w", d.Message, err)
	}

	var filterID string
	if entity := registration.NormalizeEntity(d.PrimaryEntity); entity != "" {
		filterID, err = r.store.MessageFilterID(ctx, messageID, entity)
		if err != nil {
			return nil, fmt.Errorf("resolve message filter for %q on %q: %w", d.Message, entity, err)
		}
	}

	typeID, err := r.store.PluginTypeID(ctx, r.assemblyID, d.PluginTypeName)
	if err != nil {
		return nil, fmt.Errorf("resolve plugin type %q: %w", d.PluginTypeName, err)
	}

	runAsUserID, err := r.resolveRunAsUser(ctx, d.RunAsUser)
	if err != nil {
		return nil, err
	}

	return &store.StepCreate{
		Name:            d.Name,
		Description:     d.Description,
		Configuration:   d.Configuration,
		Rank:            d.Rank,
		Mode:            d.Mode,
		Stage:           d.Stage,
		AsyncAutoDelete: d.AsyncAutoDelete,
		MessageID:       messageID,
		MessageFilterID: filterID,
		PluginTypeID:    typeID,
		RunAsUserID:     runAsUserID,
	}, nil
}

// resolveRunAsUser resolves the impersonation target to a system user id.
// A nil target means the calling user and resolves to the empty id.
func (r *Reconciler) resolveRunAsUser(ctx context.Context, u *registration.RunAsUser) (string, error) {
	switch {
	case u == nil:
		return "", nil
	case u.ApplicationID != "":
		id, err := r.store.UserIDByApplicationID(ctx, u.ApplicationID)
		if err != nil {
			return "", fmt.Errorf("resolve run-as user by application id %q: %w", u.ApplicationID, err)
		}
		return id, nil
	default:
		return u.UserID, nil
	}
}

// applyDrift updates all drifted mutable fields in one write, applies a state
// change if one drifted, then runs the image actions.
func (r *Reconciler) applyDrift(ctx context.Context, res *diff.StepResult) {
	patch, stateDrift, err := r.buildPatch(ctx, res)
	if err != nil {
		r.report.AddFailure("step %q: %v", res.Desired.Name, err)
		return
	}

	failed := false
	if !patch.Empty() {
		if err := r.store.UpdateStep(ctx, res.Observed.ID, *patch); err != nil {
			r.report.AddFailure("step %q: update failed: %v", res.Desired.Name, err)
			failed = true
		} else {
			r.report.AddFix("updated step %q (%s)", res.Desired.Name, deltaSummary(res.Deltas))
		}
	}

	if stateDrift && !failed {
		if err := r.store.SetStepState(ctx, res.Observed.ID, res.Desired.State); err != nil {
			r.report.AddFailure("step %q: set state %s failed: %v",
				res.Desired.Name, res.Desired.State, err)
		} else {
			r.report.AddFix("set step %q state to %s", res.Desired.Name, res.Desired.State)
		}
	}

	r.applyImageActions(ctx, res.Desired.Name, res.Observed.ID, res.ImageActions)
}

// buildPatch translates the drifted-field deltas into a typed partial update.
// The state field is carved out: it goes through SetStepState, not the patch.
func (r *Reconciler) buildPatch(ctx context.Context, res *diff.StepResult) (*store.StepPatch, bool, error) {
	d := res.Desired
	patch := &store.StepPatch{}
	stateDrift := false

	for _, delta := range res.Deltas {
		switch delta.Field {
		case diff.FieldName:
			patch.Name = &d.Name
		case diff.FieldDescription:
			patch.Description = &d.Description
		case diff.FieldConfiguration:
			patch.Configuration = &d.Configuration
		case diff.FieldRank:
			patch.Rank = &d.Rank
		case diff.FieldMode:
			patch.Mode = &d.Mode
		case diff.FieldStage:
			patch.Stage = &d.Stage
		case diff.FieldAsyncAutoDelete:
			patch.AsyncAutoDelete = &d.AsyncAutoDelete
		case diff.FieldState:
			stateDrift = true
		case diff.FieldRunAsUser:
			id, err := r.resolveRunAsUser(ctx, d.RunAsUser)
			if err != nil {
				return nil, false, err
			}
			patch.RunAsUserID = &id
		default:
			return nil, false, fmt.Errorf("unexpected drift field %q", delta.Field)
		}
	}
	return patch, stateDrift, nil
}

// applyImageActions executes image deletes and creates. A recreate is a
// delete followed by a create; if the delete fails the create is skipped so
// the platform never holds two images with the same name.
func (r *Reconciler) applyImageActions(ctx context.Context, stepName, stepID string, actions []diff.ImageAction) {
	for _, action := range actions {
		switch action.Kind {
		case diff.ImageCreate:
			if _, err := r.store.CreateImage(ctx, stepID, action.Desired); err != nil {
				r.report.AddFailure("step %q: create image %q failed: %v", stepName, action.Name, err)
				continue
			}
			r.report.AddFix("created missing image %q on step %q", action.Name, stepName)

		case diff.ImageDelete:
			if err := r.store.DeleteImage(ctx, action.ObservedID); err != nil {
				r.report.AddFailure("step %q: delete image %q failed: %v", stepName, action.Name, err)
				continue
			}
			r.report.AddFix("removed image %q from step %q", action.Name, stepName)

		case diff.ImageRecreate:
			if err := r.store.DeleteImage(ctx, action.ObservedID); err != nil {
				r.report.AddFailure("step %q: replace image %q failed on delete: %v", stepName, action.Name, err)
				continue
			}
			if _, err := r.store.CreateImage(ctx, stepID, action.Desired); err != nil {
				r.report.AddFailure("step %q: replace image %q failed on create: %v", stepName, action.Name, err)
				continue
			}
			r.report.AddFix("recreated image %q on step %q", action.Name, stepName)
		}
	}
}

func deltaSummary(deltas []diff.FieldDelta) string {
	parts := make([]string, len(deltas))
	for i, d := range deltas {
		parts[i] = d.String()
	}
	return strings.Join(parts, "; ")
}
