package gemini

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/couchcryptid/meteo-rt/internal/domain"
	"github.com/couchcryptid/meteo-rt/internal/observability"
	"google.golang.org/genai"
)

// generator is the subset of genai.Models used by the client.
type generator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// Client implements domain.Enricher with a search- and maps-grounded
// Gemini call.
type Client struct {
	models  generator
	model   string
	metrics *observability.Metrics
	logger  *slog.Logger
}

// Options tweaks how the underlying genai client is built.
type Options struct {
	// BaseURL overrides the Gemini API endpoint, used by tests.
	BaseURL string
}

// NewClient creates a Gemini enrichment client. The timeout bounds the HTTP
// round trip only; callers pass their own context.
func NewClient(ctx context.Context, apiKey, model string, timeout time.Duration, metrics *observability.Metrics, logger *slog.Logger, opts ...Options) (*Client, error) {
	if apiKey == "" {
		return nil, errors.New("gemini API key is required")
	}

	cc := &genai.ClientConfig{
		APIKey:     apiKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: &http.Client{Timeout: timeout},
	}
	for _, o := range opts {
		if o.BaseURL != "" {
			cc.HTTPOptions = genai.HTTPOptions{BaseURL: o.BaseURL}
		}
	}

	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}

	return &Client{
		models:  client.Models,
		model:   model,
		metrics: metrics,
		logger:  logger,
	}, nil
}

func (c *Client) config() *genai.GenerateContentConfig {
	return &genai.GenerateContentConfig{
		Temperature: genai.Ptr[float32](0),
		Tools: []*genai.Tool{
			{GoogleSearch: &genai.GoogleSearch{}},
			{GoogleMaps: &genai.GoogleMaps{}},
		},
	}
}

// Enrich fetches a weather snapshot and a cultural anecdote for a comune.
func (c *Client) Enrich(ctx context.Context, comune string, province domain.Province) (domain.Enrichment, error) {
	start := time.Now()
	resp, err := c.models.GenerateContent(ctx, c.model, genai.Text(BuildPrompt(comune, string(province))), c.config())
	c.metrics.EnrichmentDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		c.metrics.EnrichmentRequests.WithLabelValues("api_error").Inc()
		c.logger.Error("gemini request failed", "comune", comune, "province", province, "error", err)
		return domain.Enrichment{}, translateError(err)
	}

	text := resp.Text()
	parsed, err := domain.ParseResponse(text)
	if err != nil {
		c.metrics.EnrichmentRequests.WithLabelValues("parse_error").Inc()
		c.logger.Warn("gemini response not parseable",
			"comune", comune,
			"province", province,
			"response_len", len(text),
			"error", err,
		)
		return domain.Enrichment{}, err
	}

	sources := groundingSources(resp)
	c.metrics.EnrichmentRequests.WithLabelValues("success").Inc()
	c.logger.Debug("gemini enrichment complete",
		"comune", comune,
		"province", province,
		"has_weather", parsed.Weather != nil,
		"sources", len(sources),
		"duration", time.Since(start),
	)

	return domain.Enrichment{
		Weather: parsed.Weather,
		Sources: sources,
		Teaser:  parsed.Teaser,
		Trivia:  parsed.Trivia,
	}, nil
}

// groundingSources collects web and maps citations from the first candidate.
func groundingSources(resp *genai.GenerateContentResponse) []domain.Source {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].GroundingMetadata == nil {
		return []domain.Source{}
	}

	var all []domain.Source
	for _, chunk := range resp.Candidates[0].GroundingMetadata.GroundingChunks {
		if chunk == nil {
			continue
		}
		if chunk.Web != nil && chunk.Web.URI != "" {
			all = append(all, domain.Source{URI: chunk.Web.URI, Title: chunk.Web.Title})
		}
		if chunk.Maps != nil && chunk.Maps.URI != "" {
			all = append(all, domain.Source{URI: chunk.Maps.URI, Title: chunk.Maps.Title})
		}
	}
	return domain.DedupeSources(all)
}

// translateError maps genai API failures onto domain.ServiceError so callers
// can tell transient server errors apart. Other errors pass through.
func translateError(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return &domain.ServiceError{Code: apiErr.Code, Status: apiErr.Status, Message: apiErr.Message}
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) && apiErrPtr != nil {
		return &domain.ServiceError{Code: apiErrPtr.Code, Status: apiErrPtr.Status, Message: apiErrPtr.Message}
	}
	return err
}
