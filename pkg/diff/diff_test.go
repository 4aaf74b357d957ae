package diff

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/akoyago/deployctl/pkg/registration"
)

// baseStep returns a step used as both desired and observed in the tests;
// callers mutate copies to introduce drift.
func baseStep() registration.PluginStep {
	return registration.PluginStep{
		Name:           "A",
		PluginTypeName: "AkoyaGO.Plugins.AccountSync",
		PrimaryEntity:  "account",
		Message:        "Update",
		Rank:           10,
		Mode:           registration.ModeSynchronous,
		Stage:          registration.StagePostOperation,
		State:          registration.StateEnabled,
		Images: []registration.StepImage{{
			Name:        "PreImage",
			EntityAlias: "PreImage",
			ImageType:   registration.ImagePre,
			Attributes:  []string{"name", "accountnumber"},
		}},
	}
}

func buildSinglePlan(t *testing.T, desired, observed registration.PluginStep) *Plan {
	t.Helper()
	observed.ID = "00000000-0000-0000-0000-000000000001"
	plan, err := BuildPlan(
		[]registration.PluginStep{desired},
		[]registration.PluginStep{observed},
		nil, KeyByComposite)
	require.NoError(t, err)
	require.Len(t, plan.Results, 1)
	return plan
}

func TestBuildPlan_Match(t *testing.T) {
	plan := buildSinglePlan(t, baseStep(), baseStep())
	res := plan.Results[0]

	assert.Equal(t, Match, res.Class)
	assert.Empty(t, res.Deltas)
	assert.Empty(t, res.ImageActions)
	assert.Empty(t, plan.OrphanSteps)
}

func TestBuildPlan_Missing(t *testing.T) {
	plan, err := BuildPlan([]registration.PluginStep{baseStep()}, nil, nil, KeyByComposite)
	require.NoError(t, err)
	require.Len(t, plan.Results, 1)

	assert.Equal(t, Missing, plan.Results[0].Class)
	assert.Nil(t, plan.Results[0].Observed)
}

func TestBuildPlan_PrimaryEntityNoneEqualsEmpty(t *testing.T) {
	// "" and "none" are the same identity; a normalization failure here
	// would produce a false Missing plus a false orphan.
	desired := baseStep()
	desired.PrimaryEntity = ""
	observed := baseStep()
	observed.PrimaryEntity = "none"

	plan := buildSinglePlan(t, desired, observed)
	assert.Equal(t, Match, plan.Results[0].Class)
	assert.Empty(t, plan.OrphanSteps)
}

func TestBuildPlan_StageCodeVsLabel(t *testing.T) {
	// An observed stage parsed from code 20 must equal a desired stage
	// parsed from its label.
	fromCode, err := registration.StageFromCode(20)
	require.NoError(t, err)
	fromLabel, err := registration.StageFromLabel("Pre-operation")
	require.NoError(t, err)
	require.Equal(t, fromLabel, fromCode)

	desired := baseStep()
	desired.Stage = fromLabel
	observed := baseStep()
	observed.Stage = fromCode

	plan := buildSinglePlan(t, desired, observed)
	assert.Equal(t, Match, plan.Results[0].Class)
}

func TestBuildPlan_ImmutableConflictShortCircuits(t *testing.T) {
	desired := baseStep()
	observed := baseStep()
	observed.Message = "Create"
	observed.Rank = 20 // mutable drift that must NOT be reported

	observed.ID = "00000000-0000-0000-0000-000000000001"
	plan, err := BuildPlan(
		[]registration.PluginStep{desired},
		[]registration.PluginStep{observed},
		nil, KeyByComposite)
	require.NoError(t, err)

	// Message participates in the composite key, so the observed step does
	// not resolve as the counterpart at all under composite matching.
	assert.Equal(t, Missing, plan.Results[0].Class)

	// Under id matching the steps pair up and the conflict is detected.
	desired.ID = observed.ID
	plan, err = BuildPlan(
		[]registration.PluginStep{desired},
		[]registration.PluginStep{observed},
		nil, KeyByID)
	require.NoError(t, err)
	res := plan.Results[0]
	assert.Equal(t, ImmutableConflict, res.Class)
	require.Len(t, res.ImmutableDeltas, 1)
	assert.Equal(t, FieldMessage, res.ImmutableDeltas[0].Field)
	assert.Empty(t, res.Deltas, "mutable drift must not be enumerated on an immutable conflict")
	assert.Empty(t, res.ImageActions)
}

func TestBuildPlan_RankDriftOnly(t *testing.T) {
	desired := baseStep()
	observed := baseStep()
	observed.Rank = 20

	// Rank participates in the composite key; use id matching so the two
	// steps pair up.
	desired.ID = "00000000-0000-0000-0000-000000000001"
	observed.ID = desired.ID
	plan, err := BuildPlan(
		[]registration.PluginStep{desired},
		[]registration.PluginStep{observed},
		nil, KeyByID)
	require.NoError(t, err)

	res := plan.Results[0]
	assert.Equal(t, MutableDrift, res.Class)
	require.Len(t, res.Deltas, 1)
	assert.Equal(t, FieldRank, res.Deltas[0].Field)
	assert.Equal(t, "10", res.Deltas[0].Desired)
	assert.Equal(t, "20", res.Deltas[0].Observed)
	assert.Empty(t, res.ImageActions, "images match and must stay untouched")
}

func TestBuildPlan_EnumeratesAllDrift(t *testing.T) {
	desired := baseStep()
	desired.Description = "synced"
	desired.Configuration = `{"a":1}`
	observed := baseStep()
	observed.Name = "A (old)"
	observed.State = registration.StateDisabled

	plan := buildSinglePlan(t, desired, observed)
	res := plan.Results[0]
	assert.Equal(t, MutableDrift, res.Class)

	fields := make([]string, 0, len(res.Deltas))
	for _, d := range res.Deltas {
		fields = append(fields, d.Field)
	}
	assert.ElementsMatch(t, []string{FieldName, FieldDescription, FieldConfiguration, FieldState}, fields)
}

func TestBuildPlan_AsyncAutoDeleteIgnoredForSynchronous(t *testing.T) {
	desired := baseStep()
	observed := baseStep()
	observed.AsyncAutoDelete = true

	plan := buildSinglePlan(t, desired, observed)
	assert.Equal(t, Match, plan.Results[0].Class)
}

func TestBuildPlan_MissingImageCreated(t *testing.T) {
	desired := baseStep()
	desired.Images = append(desired.Images, registration.StepImage{
		Name:        "PostImage",
		EntityAlias: "PostImage",
		ImageType:   registration.ImagePost,
	})
	observed := baseStep()

	plan := buildSinglePlan(t, desired, observed)
	res := plan.Results[0]
	assert.Equal(t, MutableDrift, res.Class)
	assert.Empty(t, res.Deltas)
	require.Len(t, res.ImageActions, 1)
	assert.Equal(t, ImageCreate, res.ImageActions[0].Kind)
	assert.Equal(t, "PostImage", res.ImageActions[0].Name)
}

func TestBuildPlan_ChangedImageRecreated(t *testing.T) {
	desired := baseStep()
	observed := baseStep()
	observed.Images[0].ID = "img-1"
	observed.Images[0].Attributes = []string{"name"}

	plan := buildSinglePlan(t, desired, observed)
	res := plan.Results[0]
	assert.Equal(t, MutableDrift, res.Class)
	require.Len(t, res.ImageActions, 1)
	assert.Equal(t, ImageRecreate, res.ImageActions[0].Kind)
	assert.Equal(t, "img-1", res.ImageActions[0].ObservedID)
}

func TestBuildPlan_ImageAttributeOrderIrrelevant(t *testing.T) {
	desired := baseStep()
	desired.Images[0].Attributes = []string{"accountnumber", "name"}
	observed := baseStep()
	observed.Images[0].Attributes = []string{"Name", "AccountNumber"}

	plan := buildSinglePlan(t, desired, observed)
	assert.Equal(t, Match, plan.Results[0].Class)
}

func TestBuildPlan_ExtraImageDeleted(t *testing.T) {
	desired := baseStep()
	observed := baseStep()
	observed.Images = append(observed.Images, registration.StepImage{
		ID:          "img-2",
		Name:        "PostImage",
		EntityAlias: "PostImage",
		ImageType:   registration.ImagePost,
	})

	plan := buildSinglePlan(t, desired, observed)
	res := plan.Results[0]
	assert.Equal(t, MutableDrift, res.Class)
	require.Len(t, res.ImageActions, 1)
	assert.Equal(t, ImageDelete, res.ImageActions[0].Kind)
	assert.Equal(t, "img-2", res.ImageActions[0].ObservedID)
}

func TestBuildPlan_Orphans(t *testing.T) {
	a := baseStep()
	b := baseStep()
	b.Name = "B"
	b.Rank = 20
	c := baseStep()
	c.Name = "C"
	c.Rank = 30
	c.PluginTypeName = "AkoyaGO.Plugins.Retired"

	observedTypes := []registration.PluginType{
		{ID: "t1", TypeName: "AkoyaGO.Plugins.AccountSync"},
		{ID: "t2", TypeName: "AkoyaGO.Plugins.Retired"},
	}

	plan, err := BuildPlan(
		[]registration.PluginStep{a, b},
		[]registration.PluginStep{a, b, c},
		observedTypes, KeyByComposite)
	require.NoError(t, err)

	require.Len(t, plan.OrphanSteps, 1)
	assert.Equal(t, "C", plan.OrphanSteps[0].Name)
	require.Len(t, plan.OrphanTypes, 1)
	assert.Equal(t, "AkoyaGO.Plugins.Retired", plan.OrphanTypes[0].TypeName)
}

func TestBuildPlan_DuplicateObservedKeyRejected(t *testing.T) {
	dup1 := baseStep()
	dup1.ID = "00000000-0000-0000-0000-000000000001"
	dup2 := baseStep()
	dup2.ID = "00000000-0000-0000-0000-000000000002"
	dup2.Name = "same identity, different name"

	_, err := BuildPlan(
		[]registration.PluginStep{baseStep()},
		[]registration.PluginStep{dup1, dup2},
		nil, KeyByComposite)
	require.ErrorIs(t, err, ErrDuplicateKey)
}

func TestBuildPlan_DuplicateDesiredKeyRejected(t *testing.T) {
	_, err := BuildPlan(
		[]registration.PluginStep{baseStep(), baseStep()},
		nil, nil, KeyByComposite)
	require.ErrorIs(t, err, ErrDuplicateKey)
}

func TestBuildPlan_PreImageWarning(t *testing.T) {
	desired := baseStep()
	desired.Images = nil

	plan, err := BuildPlan([]registration.PluginStep{desired}, nil, nil, KeyByComposite)
	require.NoError(t, err)
	require.Len(t, plan.Results[0].Warnings, 1)
	assert.Contains(t, plan.Results[0].Warnings[0], "no pre-image")
}

func TestBuildPlan_NoPreImageWarningForCreate(t *testing.T) {
	desired := baseStep()
	desired.Message = "Create"
	desired.Images = nil

	plan, err := BuildPlan([]registration.PluginStep{desired}, nil, nil, KeyByComposite)
	require.NoError(t, err)
	assert.Empty(t, plan.Results[0].Warnings)
}
