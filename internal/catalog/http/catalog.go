// Package http implements catalog.Gateway over the catalog service's HTTP API.
package http

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/naman3006/E-commerce-sub001/internal/catalog"
	apperrors "github.com/naman3006/E-commerce-sub001/pkg/errors"
	"github.com/naman3006/E-commerce-sub001/pkg/httpclient"
)

const serviceName = "catalog"

// HTTPDoer is the interface for executing HTTP requests.
// Both httpclient.Client and httpclient.CircuitBreakerClient satisfy this.
type HTTPDoer interface {
	Do(ctx context.Context, req *http.Request) (*http.Response, error)
}

// CircuitOpenFallback replaces the breaker's ErrCircuitOpen with a retryable
// service error hinting how long the breaker stays open.
func CircuitOpenFallback(openFor time.Duration) httpclient.FallbackFunc {
	return func(_ context.Context, _ error) (*http.Response, error) {
		return nil, apperrors.ServiceUnavailable("catalog service is temporarily unavailable").WithRetryAfter(openFor)
	}
}

// Gateway fetches product state from the catalog service.
type Gateway struct {
	client  HTTPDoer
	baseURL string
}

// NewGateway creates a gateway for the catalog service at baseURL.
func NewGateway(client HTTPDoer, baseURL string) *Gateway {
	return &Gateway{
		client:  client,
		baseURL: strings.TrimRight(baseURL, "/"),
	}
}

type productResponse struct {
	Data *struct {
		ID     string          `json:"id"`
		Price  decimal.Decimal `json:"price"`
		Stock  int             `json:"stock"`
		Active bool            `json:"active"`
	} `json:"data"`
}

// GetProduct calls GET /api/v1/catalog/products/{id}.
func (g *Gateway) GetProduct(ctx context.Context, productID string) (*catalog.Product, error) {
	endpoint := g.baseURL + "/api/v1/catalog/products/" + url.PathEscape(productID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("create product request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := g.client.Do(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("call catalog service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, catalog.ErrNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return nil, httpclient.ParseResponseError(resp, serviceName)
	}

	var body productResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode product response: %w", err)
	}
	if body.Data == nil {
		return nil, fmt.Errorf("decode product response: missing data")
	}

	id := body.Data.ID
	if id == "" {
		id = productID
	}
	return &catalog.Product{
		ID:     id,
		Price:  body.Data.Price,
		Stock:  body.Data.Stock,
		Active: body.Data.Active,
	}, nil
}

// Ping reports whether the catalog service answers its liveness probe.
func (g *Gateway) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+"/health/live", http.NoBody)
	if err != nil {
		return fmt.Errorf("create ping request: %w", err)
	}
	resp, err := g.client.Do(ctx, req)
	if err != nil {
		return fmt.Errorf("ping catalog service: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("catalog service returned status %d", resp.StatusCode)
	}
	return nil
}
