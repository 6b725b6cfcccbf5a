// Package workloadapi is the HTTP client for the external workload management API.
package workloadapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
	"workload-orchestrator/internal/secrets"
	"workload-orchestrator/internal/workload"
	"workload-orchestrator/pkg/circuitbreaker"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// ErrCircuitOpen is returned without contacting the API while the breaker is open.
var ErrCircuitOpen = fmt.Errorf("workload api: %w", circuitbreaker.ErrOpen)

const maxErrorBody = 64 << 10

// Credentials is the access key pair used to sign bearer tokens.
type Credentials struct {
	AccessKey string
	SecretKey string
}

// CredentialSource returns the key pair for the next request.
type CredentialSource func(ctx context.Context) (Credentials, error)

// StaticCredentials always returns creds.
func StaticCredentials(creds Credentials) CredentialSource {
	return func(context.Context) (Credentials, error) {
		return creds, nil
	}
}

// SecretCredentials reads the key pair from p on every call. Wrap p in a
// secrets.Cache so rotated keys are picked up once the cached entries expire.
func SecretCredentials(p secrets.Provider, cfg secrets.Config) CredentialSource {
	return func(ctx context.Context) (Credentials, error) {
		keys, err := secrets.LoadKeyPair(ctx, p, cfg)
		if err != nil {
			return Credentials{}, err
		}
		return Credentials(keys), nil
	}
}

// APIError is a non-2xx response from the workload API.
type APIError struct {
	StatusCode int
	Method     string
	Path       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("workload api %s %s: HTTP %d", e.Method, e.Path, e.StatusCode)
	}
	return fmt.Sprintf("workload api %s %s: HTTP %d: %s", e.Method, e.Path, e.StatusCode, e.Message)
}

// Client calls the workload API. Each call is attempted exactly once.
type Client struct {
	baseURL  string
	http     *http.Client
	creds    CredentialSource
	tokenTTL time.Duration
	breaker  *circuitbreaker.Breaker
	logger   *slog.Logger
}

// NewClient creates a workload API client.
func NewClient(cfg Config, creds CredentialSource) (*Client, error) {
	cfg = cfg.withDefaults()
	if cfg.BaseURL == "" {
		return nil, errors.New("workload api base url is required")
	}
	if creds == nil {
		return nil, errors.New("workload api credentials are required")
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("invalid workload api url: %w", err)
	}

	logger := slog.With("component", "workloadapi")
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		http: &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		creds:    creds,
		tokenTTL: cfg.TokenTTL,
		breaker: circuitbreaker.New(circuitbreaker.Config{
			Threshold: cfg.BreakerThreshold,
			Cooldown:  cfg.BreakerCooldown,
			OnStateChange: func(from, to circuitbreaker.State) {
				logger.Warn("Workload API circuit breaker changed state", "from", from.String(), "to", to.String())
			},
		}),
		logger: logger,
	}, nil
}

// CreateWorkload submits a create request.
func (c *Client) CreateWorkload(ctx context.Context, req *workload.CreateWorkloadRequest) (workload.Response, error) {
	var resp workload.Response
	if err := c.do(ctx, http.MethodPost, "/workloads", req, &resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// UpdateWorkload moves a workload to a catalogue version.
func (c *Client) UpdateWorkload(ctx context.Context, workloadID, catalogueVersionID uuid.UUID) (workload.Response, error) {
	body := map[string]string{"CatalogueVersionId": catalogueVersionID.String()}
	var resp workload.Response
	if err := c.do(ctx, http.MethodPut, "/workloads/"+workloadID.String(), body, &resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// DeleteWorkload submits a delete request.
func (c *Client) DeleteWorkload(ctx context.Context, workloadID uuid.UUID) (workload.Response, error) {
	var resp workload.Response
	if err := c.do(ctx, http.MethodDelete, "/workloads/"+workloadID.String(), nil, &resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// ListWorkloads returns one page of the workload inventory.
func (c *Client) ListWorkloads(ctx context.Context, pageToken string) (*workload.WorkloadPage, error) {
	path := "/workloads"
	if pageToken != "" {
		path += "?" + url.Values{"page_token": {pageToken}}.Encode()
	}
	var page workload.WorkloadPage
	if err := c.do(ctx, http.MethodGet, path, nil, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// ReadTask returns the current payload of a task.
func (c *Client) ReadTask(ctx context.Context, taskID string) (workload.Task, error) {
	var task workload.Task
	if err := c.do(ctx, http.MethodGet, "/tasks/"+url.PathEscape(taskID), nil, &task); err != nil {
		return nil, err
	}
	return task, nil
}

// CreateCatalogueItem registers a new catalogue item.
func (c *Client) CreateCatalogueItem(ctx context.Context, catalogue *workload.Catalogue) (workload.Response, error) {
	var resp workload.Response
	if err := c.do(ctx, http.MethodPost, "/workloads/catalogue", catalogue, &resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// CreateCatalogueVersion appends a version to an existing catalogue item.
func (c *Client) CreateCatalogueVersion(ctx context.Context, catalogueID uuid.UUID, catalogue *workload.Catalogue) (workload.Response, error) {
	body := *catalogue
	body.Name = ""
	var resp workload.Response
	path := "/workloads/catalogue/" + catalogueID.String() + "/versions"
	if err := c.do(ctx, http.MethodPost, path, &body, &resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// Ready reads the first inventory page to confirm the API answers authenticated calls.
func (c *Client) Ready(ctx context.Context) error {
	_, err := c.ListWorkloads(ctx, "")
	return err
}

// BreakerState reports the client's circuit breaker state.
func (c *Client) BreakerState() circuitbreaker.State {
	return c.breaker.State()
}

// bearerToken signs a short-lived HS256 token with the current key pair: the
// access key is the issuer, the secret key is the HMAC key.
func (c *Client) bearerToken(ctx context.Context) (string, error) {
	creds, err := c.creds(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to load credentials: %w", err)
	}
	if creds.AccessKey == "" || creds.SecretKey == "" {
		return "", errors.New("workload api credentials are empty")
	}

	now := time.Now()
	claims := jwt.RegisteredClaims{
		Issuer:    creds.AccessKey,
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(c.tokenTTL)),
		ID:        uuid.NewString(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(creds.SecretKey))
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	token, err := c.bearerToken(ctx)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	if !c.breaker.Allow() {
		return ErrCircuitOpen
	}
	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.breaker.RecordFailure()
		c.logger.Warn("Workload API request failed", "method", method, "path", path, "error", err)
		return fmt.Errorf("workload api %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	c.logger.Debug("Workload API call",
		"method", method,
		"path", path,
		"status", resp.StatusCode,
		"duration", time.Since(start),
	)

	if resp.StatusCode >= 500 {
		c.breaker.RecordFailure()
	} else {
		c.breaker.RecordSuccess()
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &APIError{
			StatusCode: resp.StatusCode,
			Method:     method,
			Path:       path,
			Message:    errorMessage(resp.Body),
		}
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("failed to decode %s %s response: %w", method, path, err)
	}
	return nil
}

// errorMessage extracts a message from an error body, preferring the common
// {"message": ...} or {"Error": ...} shapes over raw text.
func errorMessage(r io.Reader) string {
	data, _ := io.ReadAll(io.LimitReader(r, maxErrorBody))
	var parsed map[string]any
	if json.Unmarshal(data, &parsed) == nil {
		for _, key := range []string{"message", "Message", "error", "Error"} {
			if s, ok := parsed[key].(string); ok && s != "" {
				return s
			}
		}
	}
	return strings.TrimSpace(string(data))
}

var _ workload.API = (*Client)(nil)
