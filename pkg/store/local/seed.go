package local

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/akoyago/deployctl/pkg/registration"
)

// Seed helpers populate the sandbox with the environment fixtures a
// reconciliation run depends on: the assembly, its plugin types, SDK messages
// and filters, users, and web resources. Used by sandbox setup and tests.

// SeedAssembly creates an assembly record and returns its id.
func (s *Store) SeedAssembly(ctx context.Context, name, version string) (string, error) {
	id := uuid.NewString()
	rec := assemblyRecord{ID: id, Name: name, Version: version}
	if err := s.db.WithContext(ctx).Create(&rec).Error; err != nil {
		return "", fmt.Errorf("local store: seed assembly %q: %w", name, err)
	}
	return id, nil
}

// SeedPluginType creates a plugin type under an assembly and returns its id.
func (s *Store) SeedPluginType(ctx context.Context, assemblyID, typeName string) (string, error) {
	id := uuid.NewString()
	rec := typeRecord{ID: id, AssemblyID: assemblyID, TypeName: typeName}
	if err := s.db.WithContext(ctx).Create(&rec).Error; err != nil {
		return "", fmt.Errorf("local store: seed plugin type %q: %w", typeName, err)
	}
	return id, nil
}

// SeedMessage creates an SDK message and returns its id.
func (s *Store) SeedMessage(ctx context.Context, name string) (string, error) {
	id := uuid.NewString()
	rec := messageRecord{ID: id, Name: name}
	if err := s.db.WithContext(ctx).Create(&rec).Error; err != nil {
		return "", fmt.Errorf("local store: seed message %q: %w", name, err)
	}
	return id, nil
}

// SeedMessageFilter binds a message to a primary entity and returns the
// filter id.
func (s *Store) SeedMessageFilter(ctx context.Context, messageID, primaryEntity string) (string, error) {
	id := uuid.NewString()
	rec := filterRecord{
		ID:            id,
		MessageID:     messageID,
		PrimaryEntity: registration.NormalizeEntity(primaryEntity),
	}
	if err := s.db.WithContext(ctx).Create(&rec).Error; err != nil {
		return "", fmt.Errorf("local store: seed message filter: %w", err)
	}
	return id, nil
}

// SeedUser creates a system user and returns its id.
func (s *Store) SeedUser(ctx context.Context, applicationID, fullName string) (string, error) {
	id := uuid.NewString()
	rec := userRecord{ID: id, ApplicationID: applicationID, FullName: fullName}
	if err := s.db.WithContext(ctx).Create(&rec).Error; err != nil {
		return "", fmt.Errorf("local store: seed user %q: %w", fullName, err)
	}
	return id, nil
}

// SeedWebResource creates a web resource and returns its id. hasActiveLayer
// marks the resource as masked by an unmanaged solution layer.
func (s *Store) SeedWebResource(ctx context.Context, name string, t registration.WebResourceType, content []byte, hasActiveLayer bool) (string, error) {
	id := uuid.NewString()
	rec := webResourceRecord{
		ID: id, Name: name, Type: int(t), Content: content, HasActiveLayer: hasActiveLayer,
	}
	if err := s.db.WithContext(ctx).Create(&rec).Error; err != nil {
		return "", fmt.Errorf("local store: seed web resource %q: %w", name, err)
	}
	return id, nil
}
