package platform

import (
	"bytes"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/rflorenc/psa-automation-workbench/internal/models"
)

// maxRecordsPerPage is the page size requested on every entity query.
const maxRecordsPerPage = 500

// Filter is one predicate in a PSA query expression.
type Filter struct {
	Op    string      `json:"op"` // "eq", "noteq", "in", "notin", "gt", "gte", "lt", "lte", "contains", "exist"
	Field string      `json:"field"`
	Value interface{} `json:"value,omitempty"`
}

// PageDetails is the pagination envelope returned by query endpoints.
type PageDetails struct {
	Count        int    `json:"count"`
	RequestCount int    `json:"requestCount"`
	NextPageURL  string `json:"nextPageUrl"`
}

// envelope is the standard PSA response shape: single reads return "item",
// queries return "items" plus "pageDetails".
type envelope struct {
	Item        models.Entity   `json:"item"`
	Items       []models.Entity `json:"items"`
	PageDetails *PageDetails    `json:"pageDetails"`
	ItemID      int             `json:"itemId"`
	QueryCount  int             `json:"queryCount"`
	Fields      []FieldInfo     `json:"fields"`
	Errors      []string        `json:"errors"`
}

// Client is an authenticated HTTP client for one PSA instance.
type Client struct {
	baseURL         string
	apiPrefix       string
	username        string
	secret          string
	integrationCode string
	httpClient      *http.Client
}

// NewClient creates a Client from a Connection.
func NewClient(conn *models.Connection) *Client {
	transport := &http.Transport{}
	if conn.Insecure {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}
	prefix := conn.APIPrefix
	if prefix == "" {
		prefix = "/v1.0/"
	}
	if !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return &Client{
		baseURL:         conn.BaseURL(),
		apiPrefix:       prefix,
		username:        conn.Username,
		secret:          conn.Secret,
		integrationCode: conn.IntegrationCode,
		httpClient:      &http.Client{Transport: transport},
	}
}

// request performs one authenticated HTTP request against the API. The error
// string includes the HTTP status and a truncated response body: downstream
// error classification matches on that text, not on the status code.
func (c *Client) request(method, url string, payload interface{}) (*envelope, error) {
	var bodyReader io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshaling body: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, url, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("UserName", c.username)
	req.Header.Set("Secret", c.secret)
	req.Header.Set("ApiIntegrationCode", c.integrationCode)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, url, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%s %s: HTTP %d: %s", method, url, resp.StatusCode, truncate(string(body), 300))
	}

	var env envelope
	if len(body) > 0 {
		if err := json.Unmarshal(body, &env); err != nil {
			return nil, fmt.Errorf("parsing response: %w", err)
		}
	}
	return &env, nil
}

// url joins a relative entity path onto the instance base URL and API prefix.
func (c *Client) url(path string) string {
	return c.baseURL + c.apiPrefix + strings.TrimPrefix(path, "/")
}

// Get fetches a single entity by ID. A 404 returns (nil, nil) so callers can
// report not-found with their own context.
func (c *Client) Get(entity string, id int) (models.Entity, error) {
	env, err := c.request(http.MethodGet, c.url(fmt.Sprintf("%s/%d", entity, id)), nil)
	if err != nil {
		if strings.Contains(err.Error(), "HTTP 404") {
			return nil, nil
		}
		return nil, err
	}
	// Some zones answer single reads with a one-element items array.
	if env.Item == nil && len(env.Items) == 1 {
		return env.Items[0], nil
	}
	return env.Item, nil
}

// Query fetches all entities matching the filters, following
// pageDetails.nextPageUrl until the result set is exhausted.
func (c *Client) Query(entity string, filters []Filter) ([]models.Entity, error) {
	if filters == nil {
		filters = []Filter{}
	}
	body := map[string]interface{}{
		"filter":     filters,
		"MaxRecords": maxRecordsPerPage,
	}
	env, err := c.request(http.MethodPost, c.url(entity+"/query"), body)
	if err != nil {
		return nil, err
	}

	all := env.Items
	for env.PageDetails != nil && env.PageDetails.NextPageURL != "" {
		next := env.PageDetails.NextPageURL
		if strings.HasPrefix(next, "/") {
			next = c.baseURL + next
		}
		env, err = c.request(http.MethodGet, next, nil)
		if err != nil {
			return nil, err
		}
		all = append(all, env.Items...)
	}
	return all, nil
}

// Count returns the number of entities matching the filters without
// fetching them.
func (c *Client) Count(entity string, filters []Filter) (int, error) {
	if filters == nil {
		filters = []Filter{}
	}
	env, err := c.request(http.MethodPost, c.url(entity+"/query/count"), map[string]interface{}{
		"filter": filters,
	})
	if err != nil {
		return 0, err
	}
	return env.QueryCount, nil
}

// Create POSTs a new entity and returns the new record's ID.
func (c *Client) Create(entity string, payload models.Entity) (int, error) {
	env, err := c.request(http.MethodPost, c.url(entity), payload)
	if err != nil {
		return 0, err
	}
	return env.ItemID, nil
}

// Update PATCHes fields onto an existing entity. The record ID travels in
// the body, as the API requires.
func (c *Client) Update(entity string, id int, fields models.Entity) error {
	body := models.Entity{"id": id}
	for k, v := range fields {
		body[k] = v
	}
	_, err := c.request(http.MethodPatch, c.url(entity), body)
	return err
}

// Delete removes an entity by ID. 404 is treated as already gone.
func (c *Client) Delete(entity string, id int) error {
	_, err := c.request(http.MethodDelete, c.url(fmt.Sprintf("%s/%d", entity, id)), nil)
	if err != nil && strings.Contains(err.Error(), "HTTP 404") {
		return nil
	}
	return err
}

// Ping checks connectivity by hitting the version endpoint.
func (c *Client) Ping() error {
	_, err := c.request(http.MethodGet, c.url("Version"), nil)
	return err
}

// CheckAuth verifies credentials with a minimal authenticated query.
func (c *Client) CheckAuth() error {
	_, err := c.Count("Resources", nil)
	return err
}

// DeepLink returns a best-effort host UI URL for an entity, or "" when no
// link template is known for the kind.
func (c *Client) DeepLink(kind string, id int) string {
	et, ok := FindEntityType(kind)
	if !ok || et.DeepLink == "" {
		return ""
	}
	return c.baseURL + strings.Replace(et.DeepLink, "{id}", fmt.Sprintf("%d", id), 1)
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
