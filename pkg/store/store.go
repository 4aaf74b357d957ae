// Package store defines the record-store capability the diff and reconcile
// layers are written against. Implementations talk to a live Dataverse
// environment (store/dataverse) or to a local sandbox database (store/local);
// callers never see transport details, only entities and errors.
package store

import (
	"context"
	"errors"

	"github.com/akoyago/deployctl/pkg/registration"
)

// ErrNotFound is returned by lookups that require the record to exist
// (reference resolution); plain reads return nil, nil for absent records.
var ErrNotFound = errors.New("record not found")

// StepCreate carries the resolved references and field values needed to
// create a message processing step. All three reference ids must be resolved
// before the create is attempted; a step is never created with a dangling
// reference.
type StepCreate struct {
	Name            string
	Description     string
	Configuration   string
	Rank            int
	Mode            registration.Mode
	Stage           registration.Stage
	AsyncAutoDelete bool
	MessageID       string
	MessageFilterID string // empty when the step has no entity filter
	PluginTypeID    string
	RunAsUserID     string // empty runs as the calling user
}

// StepPatch is a partial update of a step's mutable fields. Nil fields are
// left untouched so a single write carries exactly the drifted values.
// State changes go through StepWriter.SetStepState instead.
type StepPatch struct {
	Name            *string
	Description     *string
	Configuration   *string
	Rank            *int
	Mode            *registration.Mode
	Stage           *registration.Stage
	AsyncAutoDelete *bool
	RunAsUserID     *string
}

// Empty reports whether the patch carries no changes.
func (p StepPatch) Empty() bool {
	return p.Name == nil && p.Description == nil && p.Configuration == nil &&
		p.Rank == nil && p.Mode == nil && p.Stage == nil &&
		p.AsyncAutoDelete == nil && p.RunAsUserID == nil
}

// AssemblyStore reads and re-registers plugin assemblies.
type AssemblyStore interface {
	// AssemblyByName returns the assembly with the given name, or nil, nil
	// when no such assembly exists.
	AssemblyByName(ctx context.Context, name string) (*registration.PluginAssembly, error)
	// UpdateAssemblyContent replaces the assembly binary content.
	UpdateAssemblyContent(ctx context.Context, id string, content []byte) error
}

// StepReader reads the observed registration state scoped to one assembly.
type StepReader interface {
	// PluginTypes lists the plugin types registered under the assembly.
	PluginTypes(ctx context.Context, assemblyID string) ([]registration.PluginType, error)
	// Steps lists all steps registered under the assembly's plugin types,
	// with their images populated.
	Steps(ctx context.Context, assemblyID string) ([]registration.PluginStep, error)
}

// StepWriter mutates step registrations.
type StepWriter interface {
	CreateStep(ctx context.Context, rec StepCreate) (string, error)
	UpdateStep(ctx context.Context, id string, patch StepPatch) error
	DeleteStep(ctx context.Context, id string) error
	SetStepState(ctx context.Context, id string, state registration.StepState) error
	CreateImage(ctx context.Context, stepID string, img registration.StepImage) (string, error)
	DeleteImage(ctx context.Context, id string) error
	DeletePluginType(ctx context.Context, id string) error
}

// ReferenceResolver resolves the foreign references a step create depends on.
// All methods return ErrNotFound (wrapped) when the referenced record does
// not exist.
type ReferenceResolver interface {
	// MessageID resolves an SDK message name (Create, Update, ...) to its id.
	MessageID(ctx context.Context, message string) (string, error)
	// MessageFilterID resolves the message filter binding a message to a
	// primary entity.
	MessageFilterID(ctx context.Context, messageID, primaryEntity string) (string, error)
	// PluginTypeID resolves a plugin type name within an assembly.
	PluginTypeID(ctx context.Context, assemblyID, typeName string) (string, error)
	// UserIDByApplicationID resolves a system user by its Azure AD
	// application id, for step impersonation.
	UserIDByApplicationID(ctx context.Context, applicationID string) (string, error)
}

// WebResourceStore reads and updates web resources.
type WebResourceStore interface {
	// WebResourceByName returns the web resource with the given name, or
	// nil, nil when absent. Content is populated.
	WebResourceByName(ctx context.Context, name string) (*registration.WebResource, error)
	// UpdateWebResourceContent replaces the resource content.
	UpdateWebResourceContent(ctx context.Context, id string, content []byte) error
	// RemoveActiveLayer strips the unmanaged solution layer from the web
	// resource so a subsequent content update takes effect.
	RemoveActiveLayer(ctx context.Context, id string) error
}

// RecordStore is the full capability a reconciliation run needs.
type RecordStore interface {
	AssemblyStore
	StepReader
	StepWriter
	ReferenceResolver
	WebResourceStore
}
