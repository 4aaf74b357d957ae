// Package dataverse implements store.RecordStore against the Dataverse Web
// API (OData v4). Authentication is an Azure AD client-credentials flow; the
// token source is owned by the underlying HTTP client and refreshed
// transparently.
package dataverse

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/golang/glog"
	"golang.org/x/oauth2/clientcredentials"
)

const apiPath = "/api/data/v9.2"

// Config holds the connection settings for one environment.
type Config struct {
	// URL is the organization URL, e.g. https://org.crm.dynamics.com.
	URL string
	// TenantID is the Azure AD tenant the app registration lives in.
	TenantID string
	// ClientID and ClientSecret identify the app registration used for the
	// client-credentials flow.
	ClientID     string
	ClientSecret string
	// Timeout bounds each call. Zero means 30 seconds.
	Timeout time.Duration
}

// Client is a Dataverse-backed record store.
type Client struct {
	http *resty.Client

	// per-run lookup caches; reconciliation resolves the same message and
	// filter ids repeatedly.
	messageNames map[string]string // message id -> name
	filterEntity map[string]string // filter id -> primary entity
}

// NewClient validates the config and builds the authenticated client.
func NewClient(cfg Config) (*Client, error) {
	if cfg.URL == "" {
		return nil, errors.New("dataverse: environment URL is required")
	}
	if cfg.TenantID == "" || cfg.ClientID == "" || cfg.ClientSecret == "" {
		return nil, errors.New("dataverse: tenantId, clientId and clientSecret are required")
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	base := strings.TrimRight(cfg.URL, "/")
	cc := clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     fmt.Sprintf("https://login.microsoftonline.com/%s/oauth2/v2.0/token", cfg.TenantID),
		Scopes:       []string{base + "/.default"},
	}

	http := resty.NewWithClient(cc.Client(context.Background())).
		SetBaseURL(base+apiPath).
		SetTimeout(timeout).
		SetHeader("Accept", "application/json").
		SetHeader("OData-MaxVersion", "4.0").
		SetHeader("OData-Version", "4.0")

	return &Client{
		http:         http,
		messageNames: map[string]string{},
		filterEntity: map[string]string{},
	}, nil
}

// odataError mirrors the error envelope Dataverse returns.
type odataError struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// apiError converts a non-2xx response into an error.
func apiError(resp *resty.Response) error {
	msg := strings.TrimSpace(resp.String())
	if e, ok := resp.Error().(*odataError); ok && e != nil && e.Error.Message != "" {
		msg = e.Error.Message
	}
	return fmt.Errorf("dataverse: %s %s: HTTP %d: %s",
		resp.Request.Method, resp.Request.URL, resp.StatusCode(), msg)
}

// getList performs a GET returning the OData value array into out.
func (c *Client) getList(ctx context.Context, path string, query map[string]string, out any) error {
	envelope := struct {
		Value any `json:"value"`
	}{Value: out}

	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(query).
		SetError(&odataError{}).
		SetResult(&envelope).
		Get(path)
	if err != nil {
		return fmt.Errorf("dataverse: GET %s: %w", path, err)
	}
	if resp.IsError() {
		return apiError(resp)
	}
	return nil
}

// getOne performs a GET of a single record by id.
func (c *Client) getOne(ctx context.Context, path string, query map[string]string, out any) error {
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(query).
		SetError(&odataError{}).
		SetResult(out).
		Get(path)
	if err != nil {
		return fmt.Errorf("dataverse: GET %s: %w", path, err)
	}
	if resp.IsError() {
		return apiError(resp)
	}
	return nil
}

// create performs a POST and extracts the created record id from the
// OData-EntityId response header.
func (c *Client) create(ctx context.Context, path string, body any) (string, error) {
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetError(&odataError{}).
		SetBody(body).
		Post(path)
	if err != nil {
		return "", fmt.Errorf("dataverse: POST %s: %w", path, err)
	}
	if resp.IsError() {
		return "", apiError(resp)
	}
	return entityIDFromHeader(resp.Header().Get("OData-EntityId"))
}

// patch performs a PATCH update.
func (c *Client) patch(ctx context.Context, path string, body any) error {
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetError(&odataError{}).
		SetBody(body).
		Patch(path)
	if err != nil {
		return fmt.Errorf("dataverse: PATCH %s: %w", path, err)
	}
	if resp.IsError() {
		return apiError(resp)
	}
	return nil
}

// delete performs a DELETE.
func (c *Client) delete(ctx context.Context, path string) error {
	resp, err := c.http.R().
		SetContext(ctx).
		SetError(&odataError{}).
		Delete(path)
	if err != nil {
		return fmt.Errorf("dataverse: DELETE %s: %w", path, err)
	}
	if resp.IsError() && resp.StatusCode() != http.StatusNotFound {
		return apiError(resp)
	}
	if resp.StatusCode() == http.StatusNotFound {
		glog.V(1).Infof("dataverse: DELETE %s: already gone", path)
	}
	return nil
}

// entityIDFromHeader extracts the GUID from an OData-EntityId header value of
// the form https://org.crm.dynamics.com/api/data/v9.2/entityset(guid).
func entityIDFromHeader(header string) (string, error) {
	open := strings.LastIndex(header, "(")
	end := strings.LastIndex(header, ")")
	if open < 0 || end < open {
		return "", fmt.Errorf("dataverse: malformed OData-EntityId header %q", header)
	}
	return header[open+1 : end], nil
}
