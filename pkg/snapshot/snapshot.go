// Package snapshot loads and writes the desired-state export document: a JSON
// file describing how plugin registration should look for one assembly. The
// document is validated on load so the diff engine only ever sees well-formed,
// strongly-typed steps.
package snapshot

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/akoyago/deployctl/pkg/registration"
)

// maxSnapshotSize is the maximum allowed snapshot file size (10 MiB).
const maxSnapshotSize = 10 << 20

// ErrFileTooLarge is returned when a snapshot file exceeds maxSnapshotSize.
var ErrFileTooLarge = errors.New("snapshot file exceeds maximum allowed size (10 MiB)")

// Metadata is the header block of a snapshot document.
type Metadata struct {
	AssemblyName    string    `json:"assemblyName"`
	AssemblyVersion string    `json:"assemblyVersion"`
	TotalSteps      int       `json:"totalSteps"`
	ExportedAt      time.Time `json:"exportedAt,omitempty"`
}

// Document is a desired-state snapshot: metadata plus the ordered step list.
// Step order is preserved; reconciliation processes steps in document order.
type Document struct {
	Metadata Metadata                  `json:"metadata"`
	Steps    []registration.PluginStep `json:"steps"`
}

// Load reads and validates a snapshot file.
func Load(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("snapshot: failed to read %s: %w", path, err)
	}
	if int64(len(data)) > maxSnapshotSize {
		return nil, fmt.Errorf("snapshot: %s: %w", path, ErrFileTooLarge)
	}

	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("snapshot: failed to parse %s: %w", path, err)
	}
	if err := doc.Validate(); err != nil {
		return nil, fmt.Errorf("snapshot: %s: %w", path, err)
	}
	return &doc, nil
}

// Validate checks the document's internal consistency. It does not touch any
// environment; identity uniqueness against the observed state is the diff
// engine's job.
func (d *Document) Validate() error {
	if d.Metadata.AssemblyName == "" {
		return errors.New("metadata.assemblyName is required")
	}
	if d.Metadata.TotalSteps != len(d.Steps) {
		return fmt.Errorf("metadata.totalSteps is %d but document contains %d steps",
			d.Metadata.TotalSteps, len(d.Steps))
	}
	for i := range d.Steps {
		if err := validateStep(&d.Steps[i]); err != nil {
			return fmt.Errorf("steps[%d]: %w", i, err)
		}
	}
	return nil
}

func validateStep(s *registration.PluginStep) error {
	if s.Name == "" {
		return errors.New("name is required")
	}
	if s.PluginTypeName == "" {
		return fmt.Errorf("step %q: pluginTypeName is required", s.Name)
	}
	if s.Message == "" {
		return fmt.Errorf("step %q: message is required", s.Name)
	}
	if s.Rank < 1 {
		return fmt.Errorf("step %q: rank must be >= 1, got %d", s.Name, s.Rank)
	}
	seen := make(map[string]struct{}, len(s.Images))
	for _, img := range s.Images {
		if img.Name == "" {
			return fmt.Errorf("step %q: image name is required", s.Name)
		}
		if img.EntityAlias == "" {
			return fmt.Errorf("step %q: image %q: entityAlias is required", s.Name, img.Name)
		}
		if _, dup := seen[img.Name]; dup {
			return fmt.Errorf("step %q: duplicate image name %q", s.Name, img.Name)
		}
		seen[img.Name] = struct{}{}
	}
	return nil
}

// Write marshals the document and writes it atomically: to a temp file in the
// target directory first, then renamed into place, so a crashed export never
// leaves a truncated snapshot behind.
func Write(path string, doc *Document) error {
	if err := doc.Validate(); err != nil {
		return fmt.Errorf("snapshot: refusing to write invalid document: %w", err)
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("snapshot: failed to marshal: %w", err)
	}
	data = append(data, '\n')

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".snapshot-*.json.tmp")
	if err != nil {
		return fmt.Errorf("snapshot: failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("snapshot: failed to write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("snapshot: failed to sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("snapshot: failed to close temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("snapshot: failed to rename into place: %w", err)
	}
	return nil
}

// FromObserved builds a snapshot document from the observed state of an
// assembly, used by the export command.
func FromObserved(assembly *registration.PluginAssembly, steps []registration.PluginStep) *Document {
	return &Document{
		Metadata: Metadata{
			AssemblyName:    assembly.Name,
			AssemblyVersion: assembly.Version,
			TotalSteps:      len(steps),
			ExportedAt:      time.Now().UTC(),
		},
		Steps: steps,
	}
}
