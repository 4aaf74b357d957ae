package diff

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/google/uuid"

	"github.com/akoyago/deployctl/pkg/registration"
)

// KeyMode selects how desired and observed steps are matched.
type KeyMode int

const (
	// KeyByComposite matches steps by a composite logical key built from
	// environment-independent attributes. This is the default: step GUIDs
	// are not guaranteed portable across environments.
	KeyByComposite KeyMode = iota
	// KeyByID matches steps by GUID. Only safe when the observed steps were
	// created from the same snapshot lineage (ids portable by construction).
	// Steps without an id fall back to the composite key.
	KeyByID
)

// ErrDuplicateKey is returned when two steps on the same side resolve to the
// same identity. The tooling refuses to guess which one is meant.
var ErrDuplicateKey = errors.New("duplicate step identity")

// StepKey computes the comparison identity of a step under the given mode.
//
// The composite key is pluginTypeName|primaryEntity|message|stageLabel|rank,
// with primaryEntity normalized (empty and "none" are the same key), message
// lower-cased, and stage rendered as its canonical label rather than the raw
// numeric code.
func StepKey(s *registration.PluginStep, mode KeyMode) string {
	if mode == KeyByID && s.ID != "" {
		if id, err := uuid.Parse(s.ID); err == nil {
			return "id:" + id.String()
		}
		return "id:" + strings.ToLower(s.ID)
	}
	return strings.Join([]string{
		s.PluginTypeName,
		registration.NormalizeEntity(s.PrimaryEntity),
		strings.ToLower(s.Message),
		s.Stage.Label(),
		strconv.Itoa(s.Rank),
	}, "|")
}

// indexSteps builds a key → step index, failing on duplicate identities
// instead of silently keeping the first match.
func indexSteps(steps []registration.PluginStep, mode KeyMode, side string) (map[string]*registration.PluginStep, error) {
	index := make(map[string]*registration.PluginStep, len(steps))
	seen := mapset.NewThreadUnsafeSet[string]()
	for i := range steps {
		key := StepKey(&steps[i], mode)
		if !seen.Add(key) {
			return nil, fmt.Errorf("%s step %q: %w: key %q", side, steps[i].Name, ErrDuplicateKey, key)
		}
		index[key] = &steps[i]
	}
	return index, nil
}
