// Package local implements store.RecordStore on a local SQLite database. It
// backs the sandbox mode of the CLI (rehearsing a reconciliation without a
// live environment) and the reconcile test suites. Behavior follows the
// platform where it matters: deleting a step removes its images, a plugin
// type with registered steps cannot be deleted, and created steps start
// Enabled.
package local

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/akoyago/deployctl/pkg/registration"
	"github.com/akoyago/deployctl/pkg/store"
)

// Store is a SQLite-backed record store.
type Store struct {
	db *gorm.DB
}

// Open opens (or creates) the database at path and migrates the schema.
// Use ":memory:" for an ephemeral store.
func Open(path string) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("local store: open %s: %w", path, err)
	}
	return New(db)
}

// New wraps an existing gorm DB and migrates the schema.
func New(db *gorm.DB) (*Store, error) {
	if err := db.AutoMigrate(
		&assemblyRecord{}, &typeRecord{}, &stepRecord{}, &imageRecord{},
		&messageRecord{}, &filterRecord{}, &userRecord{}, &webResourceRecord{},
	); err != nil {
		return nil, fmt.Errorf("local store: migrate: %w", err)
	}
	return &Store{db: db}, nil
}

// AssemblyByName returns the assembly with the given name, or nil, nil.
func (s *Store) AssemblyByName(ctx context.Context, name string) (*registration.PluginAssembly, error) {
	var rec assemblyRecord
	err := s.db.WithContext(ctx).Where("name = ?", name).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("local store: assembly %q: %w", name, err)
	}
	return &registration.PluginAssembly{
		ID: rec.ID, Name: rec.Name, Version: rec.Version, Content: rec.Content,
	}, nil
}

// UpdateAssemblyContent replaces the assembly binary.
func (s *Store) UpdateAssemblyContent(ctx context.Context, id string, content []byte) error {
	res := s.db.WithContext(ctx).Model(&assemblyRecord{}).Where("id = ?", id).
		Update("content", content)
	if res.Error != nil {
		return fmt.Errorf("local store: update assembly content: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("local store: assembly %s: %w", id, store.ErrNotFound)
	}
	return nil
}

// PluginTypes lists the plugin types registered under the assembly.
func (s *Store) PluginTypes(ctx context.Context, assemblyID string) ([]registration.PluginType, error) {
	var recs []typeRecord
	if err := s.db.WithContext(ctx).Where("assembly_id = ?", assemblyID).
		Order("type_name").Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("local store: list plugin types: %w", err)
	}
	types := make([]registration.PluginType, 0, len(recs))
	for _, rec := range recs {
		types = append(types, registration.PluginType{ID: rec.ID, TypeName: rec.TypeName})
	}
	return types, nil
}

// Steps lists the steps under the assembly's plugin types, images included.
// Enum codes are converted to the canonical representation here, at the read
// boundary.
func (s *Store) Steps(ctx context.Context, assemblyID string) ([]registration.PluginStep, error) {
	var types []typeRecord
	if err := s.db.WithContext(ctx).Where("assembly_id = ?", assemblyID).Find(&types).Error; err != nil {
		return nil, fmt.Errorf("local store: list plugin types: %w", err)
	}

	var steps []registration.PluginStep
	for _, pt := range types {
		var recs []stepRecord
		if err := s.db.WithContext(ctx).Where("plugin_type_id = ?", pt.ID).
			Order("name").Find(&recs).Error; err != nil {
			return nil, fmt.Errorf("local store: list steps for type %q: %w", pt.TypeName, err)
		}
		for _, rec := range recs {
			step, err := s.toStep(ctx, &rec, pt.TypeName)
			if err != nil {
				return nil, err
			}
			steps = append(steps, *step)
		}
	}
	return steps, nil
}

func (s *Store) toStep(ctx context.Context, rec *stepRecord, typeName string) (*registration.PluginStep, error) {
	mode, err := registration.ModeFromCode(rec.Mode)
	if err != nil {
		return nil, fmt.Errorf("local store: step %q: %w", rec.Name, err)
	}
	stage, err := registration.StageFromCode(rec.Stage)
	if err != nil {
		return nil, fmt.Errorf("local store: step %q: %w", rec.Name, err)
	}
	state, err := registration.StateFromCode(rec.State)
	if err != nil {
		return nil, fmt.Errorf("local store: step %q: %w", rec.Name, err)
	}

	step := &registration.PluginStep{
		ID:              rec.ID,
		Name:            rec.Name,
		Description:     rec.Description,
		PluginTypeName:  typeName,
		Configuration:   rec.Configuration,
		Rank:            rec.Rank,
		Mode:            mode,
		Stage:           stage,
		State:           state,
		AsyncAutoDelete: rec.AsyncAutoDelete,
	}

	var msg messageRecord
	if err := s.db.WithContext(ctx).Where("id = ?", rec.MessageID).First(&msg).Error; err != nil {
		return nil, fmt.Errorf("local store: step %q: resolve message: %w", rec.Name, err)
	}
	step.Message = msg.Name

	if rec.MessageFilterID != "" {
		var filter filterRecord
		if err := s.db.WithContext(ctx).Where("id = ?", rec.MessageFilterID).First(&filter).Error; err != nil {
			return nil, fmt.Errorf("local store: step %q: resolve message filter: %w", rec.Name, err)
		}
		step.PrimaryEntity = filter.PrimaryEntity
	}

	if rec.RunAsUserID != "" {
		step.RunAsUser = &registration.RunAsUser{UserID: rec.RunAsUserID}
		var user userRecord
		err := s.db.WithContext(ctx).Where("id = ?", rec.RunAsUserID).First(&user).Error
		if err == nil && user.ApplicationID != "" {
			step.RunAsUser.ApplicationID = user.ApplicationID
		}
	}

	var imgs []imageRecord
	if err := s.db.WithContext(ctx).Where("step_id = ?", rec.ID).Order("name").Find(&imgs).Error; err != nil {
		return nil, fmt.Errorf("local store: step %q: list images: %w", rec.Name, err)
	}
	for _, img := range imgs {
		imageType, err := registration.ImageTypeFromCode(img.ImageType)
		if err != nil {
			return nil, fmt.Errorf("local store: step %q image %q: %w", rec.Name, img.Name, err)
		}
		step.Images = append(step.Images, registration.StepImage{
			ID:                  img.ID,
			Name:                img.Name,
			EntityAlias:         img.EntityAlias,
			ImageType:           imageType,
			MessagePropertyName: img.MessagePropertyName,
			Attributes:          splitAttributes(img.Attributes),
		})
	}
	return step, nil
}

// CreateStep creates a step. New steps start Enabled, matching the platform.
func (s *Store) CreateStep(ctx context.Context, rec store.StepCreate) (string, error) {
	id := uuid.NewString()
	row := stepRecord{
		ID:              id,
		PluginTypeID:    rec.PluginTypeID,
		Name:            rec.Name,
		Description:     rec.Description,
		Configuration:   rec.Configuration,
		Rank:            rec.Rank,
		Mode:            int(rec.Mode),
		Stage:           int(rec.Stage),
		State:           int(registration.StateEnabled),
		AsyncAutoDelete: rec.AsyncAutoDelete,
		MessageID:       rec.MessageID,
		MessageFilterID: rec.MessageFilterID,
		RunAsUserID:     rec.RunAsUserID,
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return "", fmt.Errorf("local store: create step %q: %w", rec.Name, err)
	}
	return id, nil
}

// UpdateStep applies the non-nil patch fields in one write.
func (s *Store) UpdateStep(ctx context.Context, id string, patch store.StepPatch) error {
	updates := map[string]any{}
	if patch.Name != nil {
		updates["name"] = *patch.Name
	}
	if patch.Description != nil {
		updates["description"] = *patch.Description
	}
	if patch.Configuration != nil {
		updates["configuration"] = *patch.Configuration
	}
	if patch.Rank != nil {
		updates["rank"] = *patch.Rank
	}
	if patch.Mode != nil {
		updates["mode"] = int(*patch.Mode)
	}
	if patch.Stage != nil {
		updates["stage"] = int(*patch.Stage)
	}
	if patch.AsyncAutoDelete != nil {
		updates["async_auto_delete"] = *patch.AsyncAutoDelete
	}
	if patch.RunAsUserID != nil {
		updates["run_as_user_id"] = *patch.RunAsUserID
	}
	if len(updates) == 0 {
		return nil
	}
	res := s.db.WithContext(ctx).Model(&stepRecord{}).Where("id = ?", id).Updates(updates)
	if res.Error != nil {
		return fmt.Errorf("local store: update step: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("local store: step %s: %w", id, store.ErrNotFound)
	}
	return nil
}

// DeleteStep removes a step and its images.
func (s *Store) DeleteStep(ctx context.Context, id string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("step_id = ?", id).Delete(&imageRecord{}).Error; err != nil {
			return fmt.Errorf("local store: delete step images: %w", err)
		}
		res := tx.Where("id = ?", id).Delete(&stepRecord{})
		if res.Error != nil {
			return fmt.Errorf("local store: delete step: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("local store: step %s: %w", id, store.ErrNotFound)
		}
		return nil
	})
}

// SetStepState flips the step's enabled/disabled state.
func (s *Store) SetStepState(ctx context.Context, id string, state registration.StepState) error {
	res := s.db.WithContext(ctx).Model(&stepRecord{}).Where("id = ?", id).
		Update("state", int(state))
	if res.Error != nil {
		return fmt.Errorf("local store: set step state: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("local store: step %s: %w", id, store.ErrNotFound)
	}
	return nil
}

// CreateImage adds an image to a step.
func (s *Store) CreateImage(ctx context.Context, stepID string, img registration.StepImage) (string, error) {
	id := uuid.NewString()
	row := imageRecord{
		ID:                  id,
		StepID:              stepID,
		Name:                img.Name,
		EntityAlias:         img.EntityAlias,
		ImageType:           int(img.ImageType),
		MessagePropertyName: img.MessagePropertyName,
		Attributes:          joinAttributes(img.Attributes),
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return "", fmt.Errorf("local store: create image %q: %w", img.Name, err)
	}
	return id, nil
}

// DeleteImage removes an image.
func (s *Store) DeleteImage(ctx context.Context, id string) error {
	res := s.db.WithContext(ctx).Where("id = ?", id).Delete(&imageRecord{})
	if res.Error != nil {
		return fmt.Errorf("local store: delete image: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("local store: image %s: %w", id, store.ErrNotFound)
	}
	return nil
}

// DeletePluginType removes a plugin type. The platform rejects deleting a
// type that still has registered steps, and so does this store.
func (s *Store) DeletePluginType(ctx context.Context, id string) error {
	var count int64
	if err := s.db.WithContext(ctx).Model(&stepRecord{}).
		Where("plugin_type_id = ?", id).Count(&count).Error; err != nil {
		return fmt.Errorf("local store: count steps for type: %w", err)
	}
	if count > 0 {
		return fmt.Errorf("local store: plugin type %s still has %d registered steps", id, count)
	}
	res := s.db.WithContext(ctx).Where("id = ?", id).Delete(&typeRecord{})
	if res.Error != nil {
		return fmt.Errorf("local store: delete plugin type: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("local store: plugin type %s: %w", id, store.ErrNotFound)
	}
	return nil
}

// MessageID resolves an SDK message name.
func (s *Store) MessageID(ctx context.Context, message string) (string, error) {
	var rec messageRecord
	err := s.db.WithContext(ctx).Where("name = ? COLLATE NOCASE", message).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", fmt.Errorf("local store: message %q: %w", message, store.ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("local store: resolve message %q: %w", message, err)
	}
	return rec.ID, nil
}

// MessageFilterID resolves the filter binding a message to a primary entity.
func (s *Store) MessageFilterID(ctx context.Context, messageID, primaryEntity string) (string, error) {
	var rec filterRecord
	err := s.db.WithContext(ctx).
		Where("message_id = ? AND primary_entity = ?", messageID, registration.NormalizeEntity(primaryEntity)).
		First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", fmt.Errorf("local store: message filter for entity %q: %w", primaryEntity, store.ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("local store: resolve message filter: %w", err)
	}
	return rec.ID, nil
}

// PluginTypeID resolves a plugin type name within an assembly.
func (s *Store) PluginTypeID(ctx context.Context, assemblyID, typeName string) (string, error) {
	var rec typeRecord
	err := s.db.WithContext(ctx).
		Where("assembly_id = ? AND type_name = ?", assemblyID, typeName).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", fmt.Errorf("local store: plugin type %q: %w", typeName, store.ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("local store: resolve plugin type %q: %w", typeName, err)
	}
	return rec.ID, nil
}

// UserIDByApplicationID resolves a system user by Azure AD application id.
func (s *Store) UserIDByApplicationID(ctx context.Context, applicationID string) (string, error) {
	var rec userRecord
	err := s.db.WithContext(ctx).Where("application_id = ?", applicationID).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", fmt.Errorf("local store: user with application id %q: %w", applicationID, store.ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("local store: resolve user: %w", err)
	}
	return rec.ID, nil
}

// WebResourceByName returns the web resource with the given name, or nil, nil.
func (s *Store) WebResourceByName(ctx context.Context, name string) (*registration.WebResource, error) {
	var rec webResourceRecord
	err := s.db.WithContext(ctx).Where("name = ?", name).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("local store: web resource %q: %w", name, err)
	}
	return &registration.WebResource{
		ID: rec.ID, Name: rec.Name, Type: registration.WebResourceType(rec.Type), Content: rec.Content,
	}, nil
}

// UpdateWebResourceContent replaces the resource content. A resource still
// carrying an unmanaged active layer rejects the update, matching the
// platform behavior the layer strip exists for.
func (s *Store) UpdateWebResourceContent(ctx context.Context, id string, content []byte) error {
	var rec webResourceRecord
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&rec).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("local store: web resource %s: %w", id, store.ErrNotFound)
		}
		return fmt.Errorf("local store: web resource %s: %w", id, err)
	}
	if rec.HasActiveLayer {
		return fmt.Errorf("local store: web resource %q is masked by an unmanaged solution layer", rec.Name)
	}
	if err := s.db.WithContext(ctx).Model(&webResourceRecord{}).Where("id = ?", id).
		Update("content", content).Error; err != nil {
		return fmt.Errorf("local store: update web resource content: %w", err)
	}
	return nil
}

// RemoveActiveLayer strips the unmanaged layer flag.
func (s *Store) RemoveActiveLayer(ctx context.Context, id string) error {
	res := s.db.WithContext(ctx).Model(&webResourceRecord{}).Where("id = ?", id).
		Update("has_active_layer", false)
	if res.Error != nil {
		return fmt.Errorf("local store: remove active layer: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("local store: web resource %s: %w", id, store.ErrNotFound)
	}
	return nil
}

func joinAttributes(attrs []string) string {
	return strings.Join(registration.SortedAttributes(attrs), ",")
}

func splitAttributes(joined string) []string {
	if joined == "" {
		return nil
	}
	return strings.Split(joined, ",")
}
