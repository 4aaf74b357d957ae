package snapshot

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/akoyago/deployctl/pkg/registration"
)

const validSnapshot = `{
  "metadata": {
    "assemblyName": "AkoyaGO.Plugins",
    "assemblyVersion": "2.4.0.0",
    "totalSteps": 1
  },
  "steps": [
    {
      "name": "AccountSync: Update of account",
      "pluginTypeName": "AkoyaGO.Plugins.AccountSync",
      "primaryEntity": "account",
      "message": "Update",
      "rank": 10,
      "mode": "Synchronous",
      "stage": 40,
      "state": "Enabled",
      "images": [
        {
          "name": "PreImage",
          "entityAlias": "PreImage",
          "imageType": "PreImage",
          "attributes": ["name", "accountnumber"]
        }
      ]
    }
  ]
}`

func writeSnapshot(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "snapshot.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad(t *testing.T) {
	doc, err := Load(writeSnapshot(t, validSnapshot))
	require.NoError(t, err)

	assert.Equal(t, "AkoyaGO.Plugins", doc.Metadata.AssemblyName)
	assert.Equal(t, "2.4.0.0", doc.Metadata.AssemblyVersion)
	require.Len(t, doc.Steps, 1)

	step := doc.Steps[0]
	assert.Equal(t, registration.ModeSynchronous, step.Mode)
	assert.Equal(t, registration.StagePostOperation, step.Stage, "numeric stage codes are accepted")
	assert.Equal(t, registration.StateEnabled, step.State)
	require.Len(t, step.Images, 1)
	assert.Equal(t, registration.ImagePre, step.Images[0].ImageType)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.json"))
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestLoadMalformedJSON(t *testing.T) {
	_, err := Load(writeSnapshot(t, `{"metadata": `))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse")
}

func TestValidateStepCountMismatch(t *testing.T) {
	doc := &Document{
		Metadata: Metadata{AssemblyName: "AkoyaGO.Plugins", TotalSteps: 3},
		Steps:    []registration.PluginStep{validStep()},
	}
	err := doc.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "totalSteps is 3 but document contains 1")
}

func TestValidateStepErrors(t *testing.T) {
	cases := []struct {
		name    string
		mutate  func(*registration.PluginStep)
		wantErr string
	}{
		{"missing name", func(s *registration.PluginStep) { s.Name = "" }, "name is required"},
		{"missing type", func(s *registration.PluginStep) { s.PluginTypeName = "" }, "pluginTypeName is required"},
		{"missing message", func(s *registration.PluginStep) { s.Message = "" }, "message is required"},
		{"zero rank", func(s *registration.PluginStep) { s.Rank = 0 }, "rank must be >= 1"},
		{"image without alias", func(s *registration.PluginStep) { s.Images[0].EntityAlias = "" }, "entityAlias is required"},
		{"duplicate image name", func(s *registration.PluginStep) {
			s.Images = append(s.Images, s.Images[0])
		}, "duplicate image name"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			step := validStep()
			tc.mutate(&step)
			doc := &Document{
				Metadata: Metadata{AssemblyName: "AkoyaGO.Plugins", TotalSteps: 1},
				Steps:    []registration.PluginStep{step},
			}
			err := doc.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantErr)
		})
	}
}

func TestWriteRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snapshot.json")
	step := validStep()
	doc := FromObserved(
		&registration.PluginAssembly{Name: "AkoyaGO.Plugins", Version: "2.4.0.0"},
		[]registration.PluginStep{step})

	require.NoError(t, Write(path, doc))

	reloaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, doc.Metadata.AssemblyName, reloaded.Metadata.AssemblyName)
	assert.Equal(t, doc.Metadata.AssemblyVersion, reloaded.Metadata.AssemblyVersion)
	assert.Equal(t, 1, reloaded.Metadata.TotalSteps)
	require.Len(t, reloaded.Steps, 1)
	assert.Equal(t, step.Name, reloaded.Steps[0].Name)
	assert.Equal(t, step.Stage, reloaded.Steps[0].Stage)

	// Atomic write leaves no temp files behind.
	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	for _, entry := range entries {
		assert.NotContains(t, entry.Name(), ".tmp")
	}
}

func TestWriteRejectsInvalidDocument(t *testing.T) {
	doc := &Document{Metadata: Metadata{TotalSteps: 0}}
	err := Write(filepath.Join(t.TempDir(), "snapshot.json"), doc)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "refusing to write")
}

func validStep() registration.PluginStep {
	return registration.PluginStep{
		Name:           "AccountSync: Update of account",
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
