// Package diff compares a desired-state snapshot against the observed
// registration state of an assembly and computes a reconciliation plan:
// which steps to create, which drifted fields to update, which immutable
// mismatches need manual recreation, and which image and orphan operations
// to perform.
package diff

import (
	"fmt"
	"strconv"
	"strings"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/golang/glog"

	"github.com/akoyago/deployctl/pkg/registration"
)

// Classification is the outcome of comparing one desired step against the
// observed state.
type Classification int

const (
	// Missing means no observed counterpart exists; the step is created.
	Missing Classification = iota
	// ImmutableConflict means the observed counterpart differs on a field
	// that cannot be changed post-creation. No update is attempted; the
	// step needs manual delete + recreate.
	ImmutableConflict
	// MutableDrift means at least one mutable field or image differs; the
	// drifted fields are updated and the image actions applied.
	MutableDrift
	// Match means the observed step equals the desired step; no writes.
	Match
)

func (c Classification) String() string {
	switch c {
	case Missing:
		return "Missing"
	case ImmutableConflict:
		return "ImmutableConflict"
	case MutableDrift:
		return "MutableDrift"
	case Match:
		return "Match"
	}
	return fmt.Sprintf("Classification(%d)", int(c))
}

// Canonical field names used in deltas and reports.
const (
	FieldPluginType      = "pluginTypeName"
	FieldPrimaryEntity   = "primaryEntity"
	FieldMessage         = "message"
	FieldName            = "name"
	FieldDescription     = "description"
	FieldConfiguration   = "configuration"
	FieldRank            = "rank"
	FieldMode            = "mode"
	FieldStage           = "stage"
	FieldState           = "state"
	FieldAsyncAutoDelete = "asyncAutoDelete"
	FieldRunAsUser       = "runAsUser"
)

// FieldDelta records one mismatching field with both values rendered for
// reporting.
type FieldDelta struct {
	Field    string `json:"field"`
	Desired  string `json:"desired"`
	Observed string `json:"observed"`
}

func (d FieldDelta) String() string {
	return fmt.Sprintf("%s: desired %q, observed %q", d.Field, d.Desired, d.Observed)
}

// ImageActionKind is the kind of image reconciliation operation.
type ImageActionKind int

const (
	// ImageCreate adds an image present in the desired state only.
	ImageCreate ImageActionKind = iota
	// ImageDelete removes an image present in the observed state only.
	ImageDelete
	// ImageRecreate replaces an image whose fields drifted. The platform
	// has no in-place image update, so this is a delete followed by a
	// create.
	ImageRecreate
)

func (k ImageActionKind) String() string {
	switch k {
	case ImageCreate:
		return "create"
	case ImageDelete:
		return "delete"
	case ImageRecreate:
		return "recreate"
	}
	return fmt.Sprintf("ImageActionKind(%d)", int(k))
}

// ImageAction is one image operation on a step. Desired is set for create and
// recreate; ObservedID is set for delete and recreate.
type ImageAction struct {
	Kind       ImageActionKind
	Desired    registration.StepImage
	ObservedID string
	Name       string
}

// StepResult is the diff outcome for one desired step.
type StepResult struct {
	Desired         *registration.PluginStep
	Observed        *registration.PluginStep // nil when Missing
	Class           Classification
	ImmutableDeltas []FieldDelta
	Deltas          []FieldDelta
	ImageActions    []ImageAction
	Warnings        []string
}

// Plan is a full reconciliation plan for one assembly: the per-step results
// in desired order, plus the orphaned observed steps and plugin types to
// sweep.
type Plan struct {
	Results     []StepResult
	OrphanSteps []registration.PluginStep
	OrphanTypes []registration.PluginType
}

// Count returns how many results carry the given classification.
func (p *Plan) Count(c Classification) int {
	n := 0
	for i := range p.Results {
		if p.Results[i].Class == c {
			n++
		}
	}
	return n
}

// BuildPlan diffs the desired steps against the observed steps and types of
// one assembly. Duplicate identities on either side are a hard error, not a
// first-match tie-break.
func BuildPlan(desired []registration.PluginStep, observedSteps []registration.PluginStep,
	observedTypes []registration.PluginType, mode KeyMode) (*Plan, error) {

	observedIndex, err := indexSteps(observedSteps, mode, "observed")
	if err != nil {
		return nil, err
	}
	desiredKeys := mapset.NewThreadUnsafeSet[string]()

	plan := &Plan{Results: make([]StepResult, 0, len(desired))}
	for i := range desired {
		d := &desired[i]
		key := StepKey(d, mode)
		if !desiredKeys.Add(key) {
			return nil, fmt.Errorf("desired step %q: %w: key %q", d.Name, ErrDuplicateKey, key)
		}
		plan.Results = append(plan.Results, diffStep(d, observedIndex[key]))
	}

	// Complementary direction: observed steps whose identity is absent from
	// the desired set are orphans.
	for i := range observedSteps {
		o := &observedSteps[i]
		if !desiredKeys.Contains(StepKey(o, mode)) {
			plan.OrphanSteps = append(plan.OrphanSteps, *o)
		}
	}

	// Plugin types still referenced by any desired step are kept; the rest
	// are swept after their steps.
	desiredTypes := mapset.NewThreadUnsafeSet[string]()
	for i := range desired {
		desiredTypes.Add(desired[i].PluginTypeName)
	}
	for _, pt := range observedTypes {
		if !desiredTypes.Contains(pt.TypeName) {
			plan.OrphanTypes = append(plan.OrphanTypes, pt)
		}
	}

	glog.V(1).Infof("diff plan: %d missing, %d immutable conflicts, %d drifted, %d matched, %d orphan steps, %d orphan types",
		plan.Count(Missing), plan.Count(ImmutableConflict), plan.Count(MutableDrift), plan.Count(Match),
		len(plan.OrphanSteps), len(plan.OrphanTypes))
	return plan, nil
}

// diffStep classifies one desired step against its observed counterpart.
func diffStep(d, o *registration.PluginStep) StepResult {
	res := StepResult{Desired: d, Observed: o}
	res.Warnings = stepWarnings(d)

	if o == nil {
		res.Class = Missing
		return res
	}

	// Immutable fields first. Any mismatch stops the comparison: the step
	// cannot be fixed by an update, so enumerating mutable drift would only
	// produce noise next to a manual-recreation failure.
	if deltas := immutableDeltas(d, o); len(deltas) > 0 {
		res.Class = ImmutableConflict
		res.ImmutableDeltas = deltas
		return res
	}

	res.Deltas = mutableDeltas(d, o)
	res.ImageActions = diffImages(d.Images, o.Images)

	if len(res.Deltas) > 0 || len(res.ImageActions) > 0 {
		res.Class = MutableDrift
	} else {
		res.Class = Match
	}
	return res
}

// stepWarnings surfaces business-rule violations that are reported but never
// auto-fixed.
func stepWarnings(d *registration.PluginStep) []string {
	var warnings []string
	msg := strings.ToLower(d.Message)
	if (msg == "update" || msg == "delete") && !d.HasPreImage() {
		warnings = append(warnings,
			fmt.Sprintf("step %q fires on %s but has no pre-image registered", d.Name, d.Message))
	}
	return warnings
}

func immutableDeltas(d, o *registration.PluginStep) []FieldDelta {
	var deltas []FieldDelta
	if d.PluginTypeName != o.PluginTypeName {
		deltas = append(deltas, FieldDelta{FieldPluginType, d.PluginTypeName, o.PluginTypeName})
	}
	if registration.NormalizeEntity(d.PrimaryEntity) != registration.NormalizeEntity(o.PrimaryEntity) {
		deltas = append(deltas, FieldDelta{FieldPrimaryEntity, d.PrimaryEntity, o.PrimaryEntity})
	}
	if !strings.EqualFold(d.Message, o.Message) {
		deltas = append(deltas, FieldDelta{FieldMessage, d.Message, o.Message})
	}
	return deltas
}

// mutableDeltas enumerates every drifted mutable field. It never
// short-circuits; the report lists all drift, not just the first hit.
func mutableDeltas(d, o *registration.PluginStep) []FieldDelta {
	var deltas []FieldDelta
	if d.Name != o.Name {
		deltas = append(deltas, FieldDelta{FieldName, d.Name, o.Name})
	}
	if d.Description != o.Description {
		deltas = append(deltas, FieldDelta{FieldDescription, d.Description, o.Description})
	}
	if d.Configuration != o.Configuration {
		deltas = append(deltas, FieldDelta{FieldConfiguration, d.Configuration, o.Configuration})
	}
	if d.Rank != o.Rank {
		deltas = append(deltas, FieldDelta{FieldRank, strconv.Itoa(d.Rank), strconv.Itoa(o.Rank)})
	}
	if d.Mode != o.Mode {
		deltas = append(deltas, FieldDelta{FieldMode, d.Mode.Label(), o.Mode.Label()})
	}
	if d.Stage != o.Stage {
		deltas = append(deltas, FieldDelta{FieldStage, d.Stage.Label(), o.Stage.Label()})
	}
	if d.State != o.State {
		deltas = append(deltas, FieldDelta{FieldState, d.State.Label(), o.State.Label()})
	}
	// Auto-delete only means anything for asynchronous steps; a difference
	// on a synchronous step is not drift.
	if d.Mode == registration.ModeAsynchronous && d.AsyncAutoDelete != o.AsyncAutoDelete {
		deltas = append(deltas, FieldDelta{FieldAsyncAutoDelete,
			strconv.FormatBool(d.AsyncAutoDelete), strconv.FormatBool(o.AsyncAutoDelete)})
	}
	if !registration.EqualRunAsUser(d.RunAsUser, o.RunAsUser) {
		deltas = append(deltas, FieldDelta{FieldRunAsUser,
			runAsUserLabel(d.RunAsUser), runAsUserLabel(o.RunAsUser)})
	}
	return deltas
}

func runAsUserLabel(u *registration.RunAsUser) string {
	switch {
	case u == nil:
		return "calling user"
	case u.ApplicationID != "":
		return "application " + u.ApplicationID
	default:
		return "user " + u.UserID
	}
}

// diffImages reconciles the image collections independently of the parent
// step. Images match by name; a changed image becomes a delete + create pair
// since the platform does not support in-place image edits.
func diffImages(desired, observed []registration.StepImage) []ImageAction {
	observedByName := make(map[string]*registration.StepImage, len(observed))
	for i := range observed {
		observedByName[observed[i].Name] = &observed[i]
	}

	var actions []ImageAction
	desiredNames := mapset.NewThreadUnsafeSet[string]()
	for i := range desired {
		img := desired[i]
		desiredNames.Add(img.Name)
		o, ok := observedByName[img.Name]
		if !ok {
			actions = append(actions, ImageAction{Kind: ImageCreate, Desired: img, Name: img.Name})
			continue
		}
		if !imagesEqual(&img, o) {
			actions = append(actions, ImageAction{Kind: ImageRecreate, Desired: img, ObservedID: o.ID, Name: img.Name})
		}
	}
	for i := range observed {
		if !desiredNames.Contains(observed[i].Name) {
			actions = append(actions, ImageAction{Kind: ImageDelete, ObservedID: observed[i].ID, Name: observed[i].Name})
		}
	}
	return actions
}

func imagesEqual(d, o *registration.StepImage) bool {
	return d.EntityAlias == o.EntityAlias &&
		d.ImageType == o.ImageType &&
		messageProperty(d.MessagePropertyName) == messageProperty(o.MessagePropertyName) &&
		registration.EqualAttributes(d.Attributes, o.Attributes)
}

// messageProperty normalizes the message property name; the platform default
// is "Id" when unset.
func messageProperty(name string) string {
	if name == "" {
		return "Id"
	}
	return name
}
