package outbox

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// SchemaRegistry talks to a Confluent-compatible schema registry. Only the
// two calls the dispatcher needs are implemented: look up the latest version
// of a subject, and register a schema under a subject.
type SchemaRegistry struct {
	baseURL string
	client  *http.Client
}

func NewSchemaRegistry(baseURL string) *SchemaRegistry {
	return &SchemaRegistry{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

// EnsureSchema returns the registry ID for subject, registering schema under
// it if the subject does not exist yet.
func (r *SchemaRegistry) EnsureSchema(ctx context.Context, subject, schema string) (int, error) {
	path := "/subjects/" + url.PathEscape(subject) + "/versions"

	if id, err := r.call(ctx, http.MethodGet, path+"/latest", nil); err == nil {
		return id, nil
	}

	body, err := json.Marshal(map[string]string{
		"schemaType": "JSON",
		"schema":     schema,
	})
	if err != nil {
		return 0, err
	}
	id, err := r.call(ctx, http.MethodPost, path, body)
	if err != nil {
		return 0, fmt.Errorf("register %s: %w", subject, err)
	}
	return id, nil
}

// call performs one registry request and decodes the {"id": N} response.
func (r *SchemaRegistry) call(ctx context.Context, method, path string, body []byte) (int, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, r.baseURL+path, reader)
	if err != nil {
		return 0, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/vnd.schemaregistry.v1+json")
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return 0, fmt.Errorf("registry returned %d: %s", resp.StatusCode, detail)
	}

	var payload struct {
		ID int `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return 0, err
	}
	return payload.ID, nil
}
