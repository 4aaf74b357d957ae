package dataverse

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/golang/glog"

	"github.com/akoyago/deployctl/pkg/registration"
	"github.com/akoyago/deployctl/pkg/store"
)

// Raw record shapes as the Web API returns them. Lookup columns arrive as
// _<name>_value GUIDs; enum columns as numeric codes.

type rawAssembly struct {
	ID      string `json:"pluginassemblyid"`
	Name    string `json:"name"`
	Version string `json:"version"`
	Content string `json:"content"`
}

type rawPluginType struct {
	ID       string `json:"plugintypeid"`
	TypeName string `json:"typename"`
}

type rawStep struct {
	ID              string `json:"sdkmessageprocessingstepid"`
	Name            string `json:"name"`
	Description     string `json:"description"`
	Configuration   string `json:"configuration"`
	Rank            int    `json:"rank"`
	Mode            int    `json:"mode"`
	Stage           int    `json:"stage"`
	StateCode       int    `json:"statecode"`
	AsyncAutoDelete bool   `json:"asyncautodelete"`
	MessageID       string `json:"_sdkmessageid_value"`
	MessageFilterID string `json:"_sdkmessagefilterid_value"`
	ImpersonatingID string `json:"_impersonatinguserid_value"`
}

type rawImage struct {
	ID                  string `json:"sdkmessageprocessingstepimageid"`
	Name                string `json:"name"`
	EntityAlias         string `json:"entityalias"`
	ImageType           int    `json:"imagetype"`
	MessagePropertyName string `json:"messagepropertyname"`
	Attributes          string `json:"attributes"`
}

// AssemblyByName returns the assembly with the given name, or nil, nil.
func (c *Client) AssemblyByName(ctx context.Context, name string) (*registration.PluginAssembly, error) {
	var assemblies []rawAssembly
	err := c.getList(ctx, "/pluginassemblies", map[string]string{
		"$select": "pluginassemblyid,name,version",
		"$filter": fmt.Sprintf("name eq '%s'", escapeODataString(name)),
	}, &assemblies)
	if err != nil {
		return nil, err
	}
	if len(assemblies) == 0 {
		return nil, nil
	}
	a := assemblies[0]
	return &registration.PluginAssembly{ID: a.ID, Name: a.Name, Version: a.Version}, nil
}

// UpdateAssemblyContent replaces the assembly binary. Content-only mutation;
// assemblies are never deleted by this tooling.
func (c *Client) UpdateAssemblyContent(ctx context.Context, id string, content []byte) error {
	return c.patch(ctx, fmt.Sprintf("/pluginassemblies(%s)", id), map[string]any{
		"content": base64.StdEncoding.EncodeToString(content),
	})
}

// PluginTypes lists the plugin types registered under the assembly.
func (c *Client) PluginTypes(ctx context.Context, assemblyID string) ([]registration.PluginType, error) {
	var raw []rawPluginType
	err := c.getList(ctx, "/plugintypes", map[string]string{
		"$select": "plugintypeid,typename",
		"$filter": fmt.Sprintf("_pluginassemblyid_value eq %s", assemblyID),
	}, &raw)
	if err != nil {
		return nil, err
	}
	types := make([]registration.PluginType, 0, len(raw))
	for _, pt := range raw {
		types = append(types, registration.PluginType{ID: pt.ID, TypeName: pt.TypeName})
	}
	return types, nil
}

// Steps lists every step registered under the assembly's plugin types, with
// images populated and lookup columns resolved to logical names.
func (c *Client) Steps(ctx context.Context, assemblyID string) ([]registration.PluginStep, error) {
	types, err := c.PluginTypes(ctx, assemblyID)
	if err != nil {
		return nil, err
	}

	var steps []registration.PluginStep
	for _, pt := range types {
		var raw []rawStep
		err := c.getList(ctx, "/sdkmessageprocessingsteps", map[string]string{
			"$select": "sdkmessageprocessingstepid,name,description,configuration,rank,mode,stage,statecode,asyncautodelete," +
				"_sdkmessageid_value,_sdkmessagefilterid_value,_impersonatinguserid_value",
			"$filter": fmt.Sprintf("_plugintypeid_value eq %s", pt.ID),
		}, &raw)
		if err != nil {
			return nil, err
		}
		for i := range raw {
			step, err := c.toStep(ctx, &raw[i], pt.TypeName)
			if err != nil {
				return nil, err
			}
			steps = append(steps, *step)
		}
	}
	glog.V(1).Infof("dataverse: observed %d steps across %d plugin types", len(steps), len(types))
	return steps, nil
}

func (c *Client) toStep(ctx context.Context, raw *rawStep, typeName string) (*registration.PluginStep, error) {
	mode, err := registration.ModeFromCode(raw.Mode)
	if err != nil {
		return nil, fmt.Errorf("dataverse: step %q: %w", raw.Name, err)
	}
	stage, err := registration.StageFromCode(raw.Stage)
	if err != nil {
		return nil, fmt.Errorf("dataverse: step %q: %w", raw.Name, err)
	}
	state, err := registration.StateFromCode(raw.StateCode)
	if err != nil {
		return nil, fmt.Errorf("dataverse: step %q: %w", raw.Name, err)
	}

	step := &registration.PluginStep{
		ID:              raw.ID,
		Name:            raw.Name,
		Description:     raw.Description,
		PluginTypeName:  typeName,
		Configuration:   raw.Configuration,
		Rank:            raw.Rank,
		Mode:            mode,
		Stage:           stage,
		State:           state,
		AsyncAutoDelete: raw.AsyncAutoDelete,
	}

	step.Message, err = c.messageName(ctx, raw.MessageID)
	if err != nil {
		return nil, fmt.Errorf("dataverse: step %q: %w", raw.Name, err)
	}
	if raw.MessageFilterID != "" {
		step.PrimaryEntity, err = c.filterPrimaryEntity(ctx, raw.MessageFilterID)
		if err != nil {
			return nil, fmt.Errorf("dataverse: step %q: %w", raw.Name, err)
		}
	}
	if raw.ImpersonatingID != "" {
		appID, err := c.userApplicationID(ctx, raw.ImpersonatingID)
		if err != nil {
			return nil, fmt.Errorf("dataverse: step %q: %w", raw.Name, err)
		}
		step.RunAsUser = &registration.RunAsUser{UserID: raw.ImpersonatingID, ApplicationID: appID}
	}

	var images []rawImage
	err = c.getList(ctx, "/sdkmessageprocessingstepimages", map[string]string{
		"$select": "sdkmessageprocessingstepimageid,name,entityalias,imagetype,messagepropertyname,attributes",
		"$filter": fmt.Sprintf("_sdkmessageprocessingstepid_value eq %s", raw.ID),
	}, &images)
	if err != nil {
		return nil, err
	}
	for _, img := range images {
		imageType, err := registration.ImageTypeFromCode(img.ImageType)
		if err != nil {
			return nil, fmt.Errorf("dataverse: step %q image %q: %w", raw.Name, img.Name, err)
		}
		step.Images = append(step.Images, registration.StepImage{
			ID:                  img.ID,
			Name:                img.Name,
			EntityAlias:         img.EntityAlias,
			ImageType:           imageType,
			MessagePropertyName: img.MessagePropertyName,
			Attributes:          splitAttributeList(img.Attributes),
		})
	}
	return step, nil
}

// CreateStep creates a step with all three references bound.
func (c *Client) CreateStep(ctx context.Context, rec store.StepCreate) (string, error) {
	body := map[string]any{
		"name":                     rec.Name,
		"description":              rec.Description,
		"configuration":            rec.Configuration,
		"rank":                     rec.Rank,
		"mode":                     int(rec.Mode),
		"stage":                    int(rec.Stage),
		"asyncautodelete":          rec.AsyncAutoDelete,
		"supporteddeployment":      0, // server only
		"sdkmessageid@odata.bind":  "/sdkmessages(" + rec.MessageID + ")",
		"plugintypeid@odata.bind":  "/plugintypes(" + rec.PluginTypeID + ")",
	}
	if rec.MessageFilterID != "" {
		body["sdkmessagefilterid@odata.bind"] = "/sdkmessagefilters(" + rec.MessageFilterID + ")"
	}
	if rec.RunAsUserID != "" {
		body["impersonatinguserid@odata.bind"] = "/systemusers(" + rec.RunAsUserID + ")"
	}
	return c.create(ctx, "/sdkmessageprocessingsteps", body)
}

// UpdateStep applies the non-nil patch fields in one PATCH.
func (c *Client) UpdateStep(ctx context.Context, id string, patch store.StepPatch) error {
	body := map[string]any{}
	if patch.Name != nil {
		body["name"] = *patch.Name
	}
	if patch.Description != nil {
		body["description"] = *patch.Description
	}
	if patch.Configuration != nil {
		body["configuration"] = *patch.Configuration
	}
	if patch.Rank != nil {
		body["rank"] = *patch.Rank
	}
	if patch.Mode != nil {
		body["mode"] = int(*patch.Mode)
	}
	if patch.Stage != nil {
		body["stage"] = int(*patch.Stage)
	}
	if patch.AsyncAutoDelete != nil {
		body["asyncautodelete"] = *patch.AsyncAutoDelete
	}
	if patch.RunAsUserID != nil {
		if *patch.RunAsUserID == "" {
			body["_impersonatinguserid_value"] = nil
		} else {
			body["impersonatinguserid@odata.bind"] = "/systemusers(" + *patch.RunAsUserID + ")"
		}
	}
	if len(body) == 0 {
		return nil
	}
	return c.patch(ctx, fmt.Sprintf("/sdkmessageprocessingsteps(%s)", id), body)
}

// DeleteStep removes a step; the platform cascades its images.
func (c *Client) DeleteStep(ctx context.Context, id string) error {
	return c.delete(ctx, fmt.Sprintf("/sdkmessageprocessingsteps(%s)", id))
}

// SetStepState flips the step's state and matching status reason.
func (c *Client) SetStepState(ctx context.Context, id string, state registration.StepState) error {
	statecode, statuscode := 0, 1
	if state == registration.StateDisabled {
		statecode, statuscode = 1, 2
	}
	return c.patch(ctx, fmt.Sprintf("/sdkmessageprocessingsteps(%s)", id), map[string]any{
		"statecode":  statecode,
		"statuscode": statuscode,
	})
}

// CreateImage adds an image to a step.
func (c *Client) CreateImage(ctx context.Context, stepID string, img registration.StepImage) (string, error) {
	messageProperty := img.MessagePropertyName
	if messageProperty == "" {
		messageProperty = "Id"
	}
	body := map[string]any{
		"name":                img.Name,
		"entityalias":         img.EntityAlias,
		"imagetype":           int(img.ImageType),
		"messagepropertyname": messageProperty,
		"attributes":          strings.Join(registration.SortedAttributes(img.Attributes), ","),
		"sdkmessageprocessingstepid@odata.bind": "/sdkmessageprocessingsteps(" + stepID + ")",
	}
	return c.create(ctx, "/sdkmessageprocessingstepimages", body)
}

// DeleteImage removes an image.
func (c *Client) DeleteImage(ctx context.Context, id string) error {
	return c.delete(ctx, fmt.Sprintf("/sdkmessageprocessingstepimages(%s)", id))
}

// DeletePluginType removes a plugin type.
func (c *Client) DeletePluginType(ctx context.Context, id string) error {
	return c.delete(ctx, fmt.Sprintf("/plugintypes(%s)", id))
}

// MessageID resolves an SDK message name to its id.
func (c *Client) MessageID(ctx context.Context, message string) (string, error) {
	var messages []struct {
		ID string `json:"sdkmessageid"`
	}
	err := c.getList(ctx, "/sdkmessages", map[string]string{
		"$select": "sdkmessageid",
		"$filter": fmt.Sprintf("name eq '%s'", escapeODataString(message)),
	}, &messages)
	if err != nil {
		return "", err
	}
	if len(messages) == 0 {
		return "", fmt.Errorf("dataverse: message %q: %w", message, store.ErrNotFound)
	}
	return messages[0].ID, nil
}

// MessageFilterID resolves the filter binding a message to a primary entity.
func (c *Client) MessageFilterID(ctx context.Context, messageID, primaryEntity string) (string, error) {
	var filters []struct {
		ID string `json:"sdkmessagefilterid"`
	}
	err := c.getList(ctx, "/sdkmessagefilters", map[string]string{
		"$select": "sdkmessagefilterid",
		"$filter": fmt.Sprintf("_sdkmessageid_value eq %s and primaryobjecttypecode eq '%s'",
			messageID, escapeODataString(registration.NormalizeEntity(primaryEntity))),
	}, &filters)
	if err != nil {
		return "", err
	}
	if len(filters) == 0 {
		return "", fmt.Errorf("dataverse: message filter for entity %q: %w", primaryEntity, store.ErrNotFound)
	}
	return filters[0].ID, nil
}

// PluginTypeID resolves a plugin type name within an assembly.
func (c *Client) PluginTypeID(ctx context.Context, assemblyID, typeName string) (string, error) {
	var types []rawPluginType
	err := c.getList(ctx, "/plugintypes", map[string]string{
		"$select": "plugintypeid",
		"$filter": fmt.Sprintf("_pluginassemblyid_value eq %s and typename eq '%s'",
			assemblyID, escapeODataString(typeName)),
	}, &types)
	if err != nil {
		return "", err
	}
	if len(types) == 0 {
		return "", fmt.Errorf("dataverse: plugin type %q: %w", typeName, store.ErrNotFound)
	}
	return types[0].ID, nil
}

// UserIDByApplicationID resolves a system user by Azure AD application id.
func (c *Client) UserIDByApplicationID(ctx context.Context, applicationID string) (string, error) {
	var users []struct {
		ID string `json:"systemuserid"`
	}
	err := c.getList(ctx, "/systemusers", map[string]string{
		"$select": "systemuserid",
		"$filter": fmt.Sprintf("applicationid eq %s", applicationID),
	}, &users)
	if err != nil {
		return "", err
	}
	if len(users) == 0 {
		return "", fmt.Errorf("dataverse: user with application id %q: %w", applicationID, store.ErrNotFound)
	}
	return users[0].ID, nil
}

// WebResourceByName returns the web resource with the given name, or nil, nil.
func (c *Client) WebResourceByName(ctx context.Context, name string) (*registration.WebResource, error) {
	var resources []struct {
		ID      string `json:"webresourceid"`
		Name    string `json:"name"`
		Type    int    `json:"webresourcetype"`
		Content string `json:"content"`
	}
	err := c.getList(ctx, "/webresourceset", map[string]string{
		"$select": "webresourceid,name,webresourcetype,content",
		"$filter": fmt.Sprintf("name eq '%s'", escapeODataString(name)),
	}, &resources)
	if err != nil {
		return nil, err
	}
	if len(resources) == 0 {
		return nil, nil
	}
	r := resources[0]
	content, err := base64.StdEncoding.DecodeString(r.Content)
	if err != nil {
		return nil, fmt.Errorf("dataverse: web resource %q: decode content: %w", name, err)
	}
	return &registration.WebResource{
		ID: r.ID, Name: r.Name, Type: registration.WebResourceType(r.Type), Content: content,
	}, nil
}

// UpdateWebResourceContent replaces the resource content.
func (c *Client) UpdateWebResourceContent(ctx context.Context, id string, content []byte) error {
	return c.patch(ctx, fmt.Sprintf("/webresourceset(%s)", id), map[string]any{
		"content": base64.StdEncoding.EncodeToString(content),
	})
}

// RemoveActiveLayer strips the unmanaged solution layer from a web resource
// via the RemoveActiveCustomizations action.
func (c *Client) RemoveActiveLayer(ctx context.Context, id string) error {
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetError(&odataError{}).
		SetBody(map[string]any{
			"SolutionComponentName": "webresource",
			"ComponentId":           id,
		}).
		Post("/RemoveActiveCustomizations")
	if err != nil {
		return fmt.Errorf("dataverse: RemoveActiveCustomizations: %w", err)
	}
	if resp.IsError() {
		return apiError(resp)
	}
	return nil
}

// messageName resolves and caches a message id → name lookup.
func (c *Client) messageName(ctx context.Context, messageID string) (string, error) {
	if name, ok := c.messageNames[messageID]; ok {
		return name, nil
	}
	var rec struct {
		Name string `json:"name"`
	}
	if err := c.getOne(ctx, fmt.Sprintf("/sdkmessages(%s)", messageID),
		map[string]string{"$select": "name"}, &rec); err != nil {
		return "", err
	}
	c.messageNames[messageID] = rec.Name
	return rec.Name, nil
}

// filterPrimaryEntity resolves and caches a filter id → primary entity lookup.
func (c *Client) filterPrimaryEntity(ctx context.Context, filterID string) (string, error) {
	if entity, ok := c.filterEntity[filterID]; ok {
		return entity, nil
	}
	var rec struct {
		PrimaryEntity string `json:"primaryobjecttypecode"`
	}
	if err := c.getOne(ctx, fmt.Sprintf("/sdkmessagefilters(%s)", filterID),
		map[string]string{"$select": "primaryobjecttypecode"}, &rec); err != nil {
		return "", err
	}
	c.filterEntity[filterID] = rec.PrimaryEntity
	return rec.PrimaryEntity, nil
}

// userApplicationID resolves a system user's Azure AD application id, empty
// for interactive users.
func (c *Client) userApplicationID(ctx context.Context, userID string) (string, error) {
	var rec struct {
		ApplicationID string `json:"applicationid"`
	}
	if err := c.getOne(ctx, fmt.Sprintf("/systemusers(%s)", userID),
		map[string]string{"$select": "applicationid"}, &rec); err != nil {
		return "", err
	}
	return rec.ApplicationID, nil
}

// splitAttributeList splits the comma-separated attribute column. An empty
// column means the image captures all attributes.
func splitAttributeList(joined string) []string {
	if joined == "" {
		return nil
	}
	return strings.Split(joined, ",")
}

// escapeODataString doubles single quotes for safe literal embedding.
func escapeODataString(s string) string {
	return strings.ReplaceAll(s, "'", "''")
}
