// Package registry fetches sanctioned entities from an OpenSanctions-style
// search API.
package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/Asif90988/banking-dashboard-streaming/internal/domain/errors"
	"github.com/Asif90988/banking-dashboard-streaming/internal/domain/sanctions"
	"github.com/Asif90988/banking-dashboard-streaming/internal/infrastructure/telemetry"
)

const serviceName = "sanctions-registry"

// maxResponseBytes caps how much of a search response is read
const maxResponseBytes = 32 << 20

// Config contains configuration for the registry client
type Config struct {
	BaseURL      string
	Dataset      string
	Query        string
	Schema       string
	Limit        int
	APIKey       string
	Timeout      time.Duration
	RateLimitRPS float64
}

// Client queries the registry search endpoint
type Client struct {
	config      Config
	client      *http.Client
	rateLimiter *rate.Limiter
	logger      *zap.Logger
}

// NewClient creates a registry client. A nil httpClient gets a pooled default.
func NewClient(config Config, httpClient *http.Client, logger *zap.Logger) (*Client, error) {
	if config.BaseURL == "" {
		return nil, errors.NewValidationError("INVALID_REGISTRY_CONFIG", "registry base url is required")
	}
	if _, err := url.Parse(config.BaseURL); err != nil {
		return nil, errors.NewValidationError("INVALID_REGISTRY_CONFIG", "registry base url is invalid").WithCause(err)
	}
	if config.Dataset == "" {
		config.Dataset = "sanctions"
	}
	if config.Query == "" {
		config.Query = "*"
	}
	if config.Limit <= 0 {
		config.Limit = 500
	}
	if config.Timeout <= 0 {
		config.Timeout = 10 * time.Second
	}
	if config.RateLimitRPS <= 0 {
		config.RateLimitRPS = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	if httpClient == nil {
		httpClient = &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        10,
				MaxIdleConnsPerHost: 2,
				IdleConnTimeout:     90 * time.Second,
			},
		}
	}

	return &Client{
		config:      config,
		client:      httpClient,
		rateLimiter: rate.NewLimiter(rate.Limit(config.RateLimitRPS), 1),
		logger:      logger.Named("registry_client"),
	}, nil
}

// Source identifies the dataset in snapshots
func (c *Client) Source() string {
	return strings.TrimRight(c.config.BaseURL, "/") + "/" + c.config.Dataset
}

type searchResponse struct {
	Results []searchResult `json:"results"`
}

type searchResult struct {
	ID         string              `json:"id"`
	Caption    string              `json:"caption"`
	Schema     string              `json:"schema"`
	Properties map[string][]string `json:"properties"`
	LastChange string              `json:"last_change"`
}

// FetchEntities runs one bounded search and maps the results. Entries
// without an id or name are dropped.
func (c *Client) FetchEntities(ctx context.Context) ([]sanctions.Entity, error) {
	ctx, span := telemetry.Tracer("registry").Start(ctx, "registry.fetch")
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	if err := c.rateLimiter.Wait(ctx); err != nil {
		telemetry.RecordError(span, err)
		return nil, errors.NewExternalError(serviceName, "rate limiter wait failed").WithCause(err)
	}

	endpoint := c.searchURL()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, errors.NewExternalError(serviceName, "failed to create request").WithCause(err)
	}
	req.Header.Set("Accept", "application/json")
	if c.config.APIKey != "" {
		req.Header.Set("Authorization", "ApiKey "+c.config.APIKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, errors.NewExternalError(serviceName, "request failed").WithCause(err)
	}
	defer resp.Body.Close()

	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		err := fmt.Errorf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
		telemetry.RecordError(span, err)
		return nil, errors.NewExternalError(serviceName, "search failed").
			WithCause(err).
			WithDetails(map[string]interface{}{"service": serviceName, "status": resp.StatusCode})
	}

	var parsed searchResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&parsed); err != nil {
		telemetry.RecordError(span, err)
		return nil, errors.NewExternalError(serviceName, "invalid search response").WithCause(err)
	}

	entities := make([]sanctions.Entity, 0, len(parsed.Results))
	dropped := 0
	for _, r := range parsed.Results {
		e := toEntity(r)
		if !e.Valid() {
			dropped++
			continue
		}
		entities = append(entities, e)
	}

	span.SetAttributes(
		attribute.Int("registry.entities", len(entities)),
		attribute.Int("registry.dropped", dropped),
	)
	if dropped > 0 {
		c.logger.Debug("dropped registry entries without id or name", zap.Int("dropped", dropped))
	}

	return entities, nil
}

func (c *Client) searchURL() string {
	q := url.Values{}
	q.Set("q", c.config.Query)
	if c.config.Schema != "" {
		q.Set("schema", c.config.Schema)
	}
	q.Set("limit", strconv.Itoa(c.config.Limit))

	return fmt.Sprintf("%s/search/%s?%s",
		strings.TrimRight(c.config.BaseURL, "/"),
		url.PathEscape(c.config.Dataset),
		q.Encode())
}

func toEntity(r searchResult) sanctions.Entity {
	name := strings.TrimSpace(r.Caption)
	if name == "" {
		name = first(r.Properties["name"])
	}

	programs := r.Properties["program"]
	if len(programs) == 0 {
		programs = r.Properties["topics"]
	}

	return sanctions.Entity{
		ID:          strings.TrimSpace(r.ID),
		Name:        name,
		Programs:    append([]string(nil), programs...),
		Country:     first(r.Properties["country"]),
		LastUpdated: parseChange(r.LastChange),
	}
}

func first(values []string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

var changeLayouts = []string{time.RFC3339Nano, "2006-01-02T15:04:05", "2006-01-02"}

// parseChange accepts the timestamp shapes the API emits; unparseable
// values yield the zero time.
func parseChange(s string) time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}
	}
	for _, layout := range changeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}
