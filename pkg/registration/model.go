// Package registration defines the plugin-registration data model shared by
// the export, diff and reconcile layers: assemblies, plugin types, message
// processing steps with their images, and web resources.
//
// All types are plain value types validated at the loading boundary; nothing
// downstream of this package handles untyped property bags.
package registration

// PluginAssembly is a registered plugin assembly. Identity is the assembly
// name, unique within an environment. Assemblies are only ever mutated by
// content replacement, never deleted by this tooling.
type PluginAssembly struct {
	ID      string `json:"assemblyId,omitempty"`
	Name    string `json:"name"`
	Version string `json:"version"`
	Content []byte `json:"-"`
}

// PluginType is a plugin class registered inside an assembly. Identity is the
// type name scoped to its assembly. Types are created implicitly by assembly
// registration and removed by the orphan sweep when no desired step references
// them.
type PluginType struct {
	ID           string `json:"typeId,omitempty"`
	TypeName     string `json:"typeName"`
	AssemblyName string `json:"assemblyName,omitempty"`
}

// RunAsUser identifies the impersonation target of a step. A nil *RunAsUser on
// a step means the step runs as the calling user. When set, the user is
// resolved either by Azure AD application id or directly by system user id.
type RunAsUser struct {
	ApplicationID string `json:"applicationId,omitempty"`
	UserID        string `json:"userId,omitempty"`
}

// PluginStep is a message processing step registration.
//
// ID is the step GUID assigned by the source environment; it is only used for
// matching when the caller knows ids are portable. PluginTypeName,
// PrimaryEntity and Message are immutable after creation: a mismatch on any of
// them cannot be fixed by an update and requires delete + recreate. The
// remaining fields are mutable.
type PluginStep struct {
	ID              string      `json:"stepId,omitempty"`
	Name            string      `json:"name"`
	Description     string      `json:"description,omitempty"`
	PluginTypeName  string      `json:"pluginTypeName"`
	PrimaryEntity   string      `json:"primaryEntity,omitempty"`
	Message         string      `json:"message"`
	Configuration   string      `json:"configuration,omitempty"`
	Rank            int         `json:"rank"`
	Mode            Mode        `json:"mode"`
	Stage           Stage       `json:"stage"`
	State           StepState   `json:"state"`
	AsyncAutoDelete bool        `json:"asyncAutoDelete,omitempty"`
	RunAsUser       *RunAsUser  `json:"runAsUser,omitempty"`
	Images          []StepImage `json:"images,omitempty"`
}

// HasPreImage reports whether any image on the step captures a pre-operation
// snapshot. Steps on Update or Delete messages are expected to carry one.
func (s *PluginStep) HasPreImage() bool {
	for _, img := range s.Images {
		if img.ImageType.CapturesPre() {
			return true
		}
	}
	return false
}

// StepImage is a named attribute snapshot attached to a step. Identity is the
// image name, unique within its parent step. The platform does not support
// editing an image in place, so a changed image is deleted and recreated.
type StepImage struct {
	ID                  string    `json:"imageId,omitempty"`
	Name                string    `json:"name"`
	EntityAlias         string    `json:"entityAlias"`
	ImageType           ImageType `json:"imageType"`
	MessagePropertyName string    `json:"messagePropertyName,omitempty"`
	Attributes          []string  `json:"attributes,omitempty"`
}

// WebResourceType is the subset of web resource types this tooling manages.
type WebResourceType int

const (
	WebResourceHTML       WebResourceType = 1
	WebResourceJavaScript WebResourceType = 3
)

// WebResource is an HTML or JavaScript web resource. Identity is the name.
type WebResource struct {
	ID      string          `json:"webResourceId,omitempty"`
	Name    string          `json:"name"`
	Type    WebResourceType `json:"type"`
	Content []byte          `json:"-"`
}
