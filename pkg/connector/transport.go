package connector

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/omnisql/gateway/pkg/omnitypes"
)

const httpTimeout = 10 * time.Second

// Transport is the shared authenticated HTTP client every REST/GraphQL
// connector fetches through. It resolves credential_ref (env:// or raw
// token) and builds the Authorization header per the connector's auth_type.
type Transport struct {
	Config     *omnitypes.ConnectorConfig
	HTTPClient *http.Client
}

// NewTransport builds a Transport for cfg with a 10-second request timeout.
func NewTransport(cfg *omnitypes.ConnectorConfig) *Transport {
	return &Transport{
		Config:     cfg,
		HTTPClient: &http.Client{Timeout: httpTimeout},
	}
}

func (t *Transport) credential() string {
	ref := t.Config.CredentialRef
	if strings.HasPrefix(ref, "env://") {
		return os.Getenv(strings.TrimPrefix(ref, "env://"))
	}
	return ref
}

func (t *Transport) authHeader() (string, string) {
	token := t.credential()
	switch t.Config.AuthType {
	case omnitypes.AuthBasic:
		return "Authorization", "Basic " + base64.StdEncoding.EncodeToString([]byte(token))
	default:
		return "Authorization", "Bearer " + token
	}
}

// Get performs an authenticated REST GET against path with query params,
// returning the response (for Link-header pagination) and the raw,
// undecoded response body.
func (t *Transport) Get(ctx context.Context, path string, params url.Values) (*http.Response, []byte, error) {
	full := path
	if !strings.HasPrefix(path, "http://") && !strings.HasPrefix(path, "https://") {
		full = strings.TrimRight(t.Config.BaseURL, "/") + path
	}
	if len(params) > 0 {
		full += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, full, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("building request: %w", err)
	}
	k, v := t.authHeader()
	req.Header.Set(k, v)

	resp, err := t.HTTPClient.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("executing request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp, nil, fmt.Errorf("reading response body: %w", err)
	}
	if resp.StatusCode >= 400 {
		return resp, body, &StatusError{Status: resp.StatusCode, Err: fmt.Errorf("%s: status %d: %s", t.Config.ID, resp.StatusCode, body)}
	}
	return resp, body, nil
}

// GraphQL performs an authenticated GraphQL POST. GraphQL-level errors in
// the response body surface as a SourceFatal-classified error, not a
// StatusError, since they are never worth retrying.
func (t *Transport) GraphQL(ctx context.Context, query string, variables map[string]any) (map[string]any, error) {
	full := strings.TrimRight(t.Config.BaseURL, "/") + t.Config.GraphQLPath
	payload, err := json.Marshal(map[string]any{"query": query, "variables": variables})
	if err != nil {
		return nil, fmt.Errorf("encoding graphql payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, full, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	k, v := t.authHeader()
	req.Header.Set(k, v)
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("executing request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}
	if resp.StatusCode >= 400 {
		return nil, &StatusError{Status: resp.StatusCode, Err: fmt.Errorf("%s: status %d: %s", t.Config.ID, resp.StatusCode, body)}
	}

	var parsed struct {
		Data   map[string]any   `json:"data"`
		Errors []map[string]any `json:"errors"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("decoding graphql response: %w", err)
	}
	if len(parsed.Errors) > 0 {
		return nil, fmt.Errorf("graphql error from %s: %v", t.Config.ID, parsed.Errors)
	}
	return parsed.Data, nil
}
