package registration

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStageCodesAndLabels(t *testing.T) {
	cases := []struct {
		code  int
		label string
		want  Stage
	}{
		{10, "Pre-validation", StagePreValidation},
		{20, "Pre-operation", StagePreOperation},
		{40, "Post-operation", StagePostOperation},
	}
	for _, tc := range cases {
		fromCode, err := StageFromCode(tc.code)
		require.NoError(t, err)
		assert.Equal(t, tc.want, fromCode)

		fromLabel, err := StageFromLabel(tc.label)
		require.NoError(t, err)
		assert.Equal(t, tc.want, fromLabel)
		assert.Equal(t, tc.label, tc.want.Label())
	}

	_, err := StageFromCode(30)
	assert.Error(t, err)
	_, err = StageFromLabel("MainOperation")
	assert.Error(t, err)
}

func TestStageFromLabelCaseInsensitive(t *testing.T) {
	s, err := StageFromLabel("pre-operation")
	require.NoError(t, err)
	assert.Equal(t, StagePreOperation, s)
}

func TestStageJSONRoundTrip(t *testing.T) {
	data, err := json.Marshal(StagePostOperation)
	require.NoError(t, err)
	assert.Equal(t, `"Post-operation"`, string(data))

	var fromLabel Stage
	require.NoError(t, json.Unmarshal([]byte(`"Post-operation"`), &fromLabel))
	assert.Equal(t, StagePostOperation, fromLabel)

	var fromCode Stage
	require.NoError(t, json.Unmarshal([]byte(`40`), &fromCode))
	assert.Equal(t, StagePostOperation, fromCode)

	var bad Stage
	assert.Error(t, json.Unmarshal([]byte(`"Main"`), &bad))
	assert.Error(t, json.Unmarshal([]byte(`30`), &bad))
	assert.Error(t, json.Unmarshal([]byte(`true`), &bad))
}

func TestModeCodesAndLabels(t *testing.T) {
	m, err := ModeFromCode(0)
	require.NoError(t, err)
	assert.Equal(t, ModeSynchronous, m)

	m, err = ModeFromLabel("asynchronous")
	require.NoError(t, err)
	assert.Equal(t, ModeAsynchronous, m)

	_, err = ModeFromCode(2)
	assert.Error(t, err)
}

func TestStateJSON(t *testing.T) {
	var s StepState
	require.NoError(t, json.Unmarshal([]byte(`"Disabled"`), &s))
	assert.Equal(t, StateDisabled, s)

	require.NoError(t, json.Unmarshal([]byte(`0`), &s))
	assert.Equal(t, StateEnabled, s)

	data, err := json.Marshal(StateEnabled)
	require.NoError(t, err)
	assert.Equal(t, `"Enabled"`, string(data))
}

func TestImageTypeCapturesPre(t *testing.T) {
	assert.True(t, ImagePre.CapturesPre())
	assert.True(t, ImageBoth.CapturesPre())
	assert.False(t, ImagePost.CapturesPre())
}

func TestImageTypeJSON(t *testing.T) {
	var it ImageType
	require.NoError(t, json.Unmarshal([]byte(`"PostImage"`), &it))
	assert.Equal(t, ImagePost, it)

	require.NoError(t, json.Unmarshal([]byte(`2`), &it))
	assert.Equal(t, ImageBoth, it)

	assert.Error(t, json.Unmarshal([]byte(`3`), &it))
}
