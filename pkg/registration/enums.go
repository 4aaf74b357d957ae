package registration

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Stage is the pipeline stage a plugin step executes in. Values match the
// numeric codes used by the platform's sdkmessageprocessingstep records.
type Stage int

const (
	StagePreValidation Stage = 10
	StagePreOperation  Stage = 20
	StagePostOperation Stage = 40
)

var stageLabels = map[Stage]string{
	StagePreValidation: "Pre-validation",
	StagePreOperation:  "Pre-operation",
	StagePostOperation: "Post-operation",
}

// StageFromCode converts a platform numeric code to a Stage.
func StageFromCode(code int) (Stage, error) {
	s := Stage(code)
	if _, ok := stageLabels[s]; !ok {
		return 0, fmt.Errorf("unknown stage code %d", code)
	}
	return s, nil
}

// StageFromLabel converts a canonical label to a Stage. Matching is
// case-insensitive.
func StageFromLabel(label string) (Stage, error) {
	for s, l := range stageLabels {
		if strings.EqualFold(l, label) {
			return s, nil
		}
	}
	return 0, fmt.Errorf("unknown stage label %q", label)
}

// Label returns the canonical text label for the stage.
func (s Stage) Label() string {
	if l, ok := stageLabels[s]; ok {
		return l
	}
	return fmt.Sprintf("Stage(%d)", int(s))
}

func (s Stage) String() string { return s.Label() }

// MarshalJSON writes the canonical label.
func (s Stage) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Label())
}

// UnmarshalJSON accepts either a canonical label ("Pre-operation") or a
// platform numeric code (20). Both forms appear depending on whether the
// value came from an export snapshot or a raw record read.
func (s *Stage) UnmarshalJSON(data []byte) error {
	var label string
	if err := json.Unmarshal(data, &label); err == nil {
		parsed, err := StageFromLabel(label)
		if err != nil {
			return err
		}
		*s = parsed
		return nil
	}
	var code int
	if err := json.Unmarshal(data, &code); err != nil {
		return fmt.Errorf("stage must be a label or numeric code, got %s", string(data))
	}
	parsed, err := StageFromCode(code)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// Mode is the execution mode of a plugin step.
type Mode int

const (
	ModeSynchronous  Mode = 0
	ModeAsynchronous Mode = 1
)

var modeLabels = map[Mode]string{
	ModeSynchronous:  "Synchronous",
	ModeAsynchronous: "Asynchronous",
}

// ModeFromCode converts a platform numeric code to a Mode.
func ModeFromCode(code int) (Mode, error) {
	m := Mode(code)
	if _, ok := modeLabels[m]; !ok {
		return 0, fmt.Errorf("unknown mode code %d", code)
	}
	return m, nil
}

// ModeFromLabel converts a canonical label to a Mode. Matching is
// case-insensitive.
func ModeFromLabel(label string) (Mode, error) {
	for m, l := range modeLabels {
		if strings.EqualFold(l, label) {
			return m, nil
		}
	}
	return 0, fmt.Errorf("unknown mode label %q", label)
}

// Label returns the canonical text label for the mode.
func (m Mode) Label() string {
	if l, ok := modeLabels[m]; ok {
		return l
	}
	return fmt.Sprintf("Mode(%d)", int(m))
}

func (m Mode) String() string { return m.Label() }

func (m Mode) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.Label())
}

func (m *Mode) UnmarshalJSON(data []byte) error {
	var label string
	if err := json.Unmarshal(data, &label); err == nil {
		parsed, err := ModeFromLabel(label)
		if err != nil {
			return err
		}
		*m = parsed
		return nil
	}
	var code int
	if err := json.Unmarshal(data, &code); err != nil {
		return fmt.Errorf("mode must be a label or numeric code, got %s", string(data))
	}
	parsed, err := ModeFromCode(code)
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// StepState is the enabled/disabled state of a plugin step.
type StepState int

const (
	StateEnabled  StepState = 0
	StateDisabled StepState = 1
)

var stateLabels = map[StepState]string{
	StateEnabled:  "Enabled",
	StateDisabled: "Disabled",
}

// StateFromCode converts a platform numeric code to a StepState.
func StateFromCode(code int) (StepState, error) {
	s := StepState(code)
	if _, ok := stateLabels[s]; !ok {
		return 0, fmt.Errorf("unknown state code %d", code)
	}
	return s, nil
}

// StateFromLabel converts a canonical label to a StepState. Matching is
// case-insensitive.
func StateFromLabel(label string) (StepState, error) {
	for s, l := range stateLabels {
		if strings.EqualFold(l, label) {
			return s, nil
		}
	}
	return 0, fmt.Errorf("unknown state label %q", label)
}

// Label returns the canonical text label for the state.
func (s StepState) Label() string {
	if l, ok := stateLabels[s]; ok {
		return l
	}
	return fmt.Sprintf("StepState(%d)", int(s))
}

func (s StepState) String() string { return s.Label() }

func (s StepState) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Label())
}

func (s *StepState) UnmarshalJSON(data []byte) error {
	var label string
	if err := json.Unmarshal(data, &label); err == nil {
		parsed, err := StateFromLabel(label)
		if err != nil {
			return err
		}
		*s = parsed
		return nil
	}
	var code int
	if err := json.Unmarshal(data, &code); err != nil {
		return fmt.Errorf("state must be a label or numeric code, got %s", string(data))
	}
	parsed, err := StateFromCode(code)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// ImageType identifies when a step image snapshot is taken.
type ImageType int

const (
	ImagePre  ImageType = 0
	ImagePost ImageType = 1
	ImageBoth ImageType = 2
)

var imageTypeLabels = map[ImageType]string{
	ImagePre:  "PreImage",
	ImagePost: "PostImage",
	ImageBoth: "Both",
}

// ImageTypeFromCode converts a platform numeric code to an ImageType.
func ImageTypeFromCode(code int) (ImageType, error) {
	it := ImageType(code)
	if _, ok := imageTypeLabels[it]; !ok {
		return 0, fmt.Errorf("unknown image type code %d", code)
	}
	return it, nil
}

// ImageTypeFromLabel converts a canonical label to an ImageType. Matching is
// case-insensitive.
func ImageTypeFromLabel(label string) (ImageType, error) {
	for it, l := range imageTypeLabels {
		if strings.EqualFold(l, label) {
			return it, nil
		}
	}
	return 0, fmt.Errorf("unknown image type label %q", label)
}

// CapturesPre reports whether the image captures a pre-operation snapshot.
func (it ImageType) CapturesPre() bool {
	return it == ImagePre || it == ImageBoth
}

// Label returns the canonical text label for the image type.
func (it ImageType) Label() string {
	if l, ok := imageTypeLabels[it]; ok {
		return l
	}
	return fmt.Sprintf("ImageType(%d)", int(it))
}

func (it ImageType) String() string { return it.Label() }

func (it ImageType) MarshalJSON() ([]byte, error) {
	return json.Marshal(it.Label())
}

func (it *ImageType) UnmarshalJSON(data []byte) error {
	var label string
	if err := json.Unmarshal(data, &label); err == nil {
		parsed, err := ImageTypeFromLabel(label)
		if err != nil {
			return err
		}
		*it = parsed
		return nil
	}
	var code int
	if err := json.Unmarshal(data, &code); err != nil {
		return fmt.Errorf("image type must be a label or numeric code, got %s", string(data))
	}
	parsed, err := ImageTypeFromCode(code)
	if err != nil {
		return err
	}
	*it = parsed
	return nil
}
