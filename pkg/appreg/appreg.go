// Package appreg provisions the Azure AD application and service principal a
// deployment pipeline authenticates with, and prints the admin-consent URL an
// administrator must visit once. One-shot Microsoft Graph calls, no diffing.
package appreg

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"golang.org/x/oauth2/clientcredentials"
)

const graphBaseURL = "https://graph.microsoft.com/v1.0"

// Dynamics CRM first-party application and its delegated user_impersonation
// permission. These ids are fixed across all tenants.
const (
	dynamicsResourceAppID    = "00000007-0000-0000-c000-000000000000"
	userImpersonationScopeID = "78ce3f0f-a1ce-49c2-8cde-64b5c0896db4"
)

// Config holds the credentials of an existing administrative app used to
// drive Graph.
type Config struct {
	TenantID     string
	ClientID     string
	ClientSecret string
}

// Result describes the provisioned application.
type Result struct {
	ApplicationID      string `json:"applicationId"`
	ObjectID           string `json:"objectId"`
	ServicePrincipalID string `json:"servicePrincipalId"`
	ClientSecret       string `json:"clientSecret"`
	ConsentURL         string `json:"consentUrl"`
}

// Client is a thin Microsoft Graph client.
type Client struct {
	http     *resty.Client
	tenantID string
}

// NewClient builds an authenticated Graph client.
func NewClient(cfg Config) (*Client, error) {
	if cfg.TenantID == "" || cfg.ClientID == "" || cfg.ClientSecret == "" {
		return nil, errors.New("appreg: tenantId, clientId and clientSecret are required")
	}
	cc := clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     fmt.Sprintf("https://login.microsoftonline.com/%s/oauth2/v2.0/token", cfg.TenantID),
		Scopes:       []string{"https://graph.microsoft.com/.default"},
	}
	http := resty.NewWithClient(cc.Client(context.Background())).
		SetBaseURL(graphBaseURL).
		SetTimeout(30 * time.Second).
		SetHeader("Accept", "application/json").
		SetHeader("Content-Type", "application/json")
	return &Client{http: http, tenantID: cfg.TenantID}, nil
}

type graphError struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	resp, err := c.http.R().
		SetContext(ctx).
		SetError(&graphError{}).
		SetBody(body).
		SetResult(out).
		Post(path)
	if err != nil {
		return fmt.Errorf("appreg: POST %s: %w", path, err)
	}
	if resp.IsError() {
		msg := resp.String()
		if e, ok := resp.Error().(*graphError); ok && e != nil && e.Error.Message != "" {
			msg = e.Error.Message
		}
		return fmt.Errorf("appreg: POST %s: HTTP %d: %s", path, resp.StatusCode(), msg)
	}
	return nil
}

// Provision creates the application with the Dynamics user_impersonation
// permission, its service principal, and a client secret, then returns the
// admin-consent URL.
func (c *Client) Provision(ctx context.Context, displayName string) (*Result, error) {
	if displayName == "" {
		return nil, errors.New("appreg: display name is required")
	}

	appBody := map[string]any{
		"displayName":    displayName,
		"signInAudience": "AzureADMyOrg",
		"requiredResourceAccess": []map[string]any{{
			"resourceAppId": dynamicsResourceAppID,
			"resourceAccess": []map[string]any{{
				"id":   userImpersonationScopeID,
				"type": "Scope",
			}},
		}},
	}
	var app struct {
		ID    string `json:"id"`
		AppID string `json:"appId"`
	}
	if err := c.post(ctx, "/applications", appBody, &app); err != nil {
		return nil, err
	}

	var sp struct {
		ID string `json:"id"`
	}
	if err := c.post(ctx, "/servicePrincipals", map[string]any{"appId": app.AppID}, &sp); err != nil {
		return nil, err
	}

	var secret struct {
		SecretText string `json:"secretText"`
	}
	secretBody := map[string]any{
		"passwordCredential": map[string]any{"displayName": displayName + " deploy secret"},
	}
	if err := c.post(ctx, fmt.Sprintf("/applications/%s/addPassword", app.ID), secretBody, &secret); err != nil {
		return nil, err
	}

	return &Result{
		ApplicationID:      app.AppID,
		ObjectID:           app.ID,
		ServicePrincipalID: sp.ID,
		ClientSecret:       secret.SecretText,
		ConsentURL:         ConsentURL(c.tenantID, app.AppID),
	}, nil
}

// ConsentURL builds the admin-consent URL an administrator must visit to
// grant the configured permissions tenant-wide.
func ConsentURL(tenantID, applicationID string) string {
	return fmt.Sprintf("https://login.microsoftonline.com/%s/adminconsent?client_id=%s",
		tenantID, applicationID)
}
