package ciscoapi

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/productdb/eoxsync/app/metrics"
)

const (
	endpointByProduct = "by_product"
	endpointByYear    = "by_year"
)

// Authorizer supplies the authorization header for upstream requests.
type Authorizer interface {
	Authorize(ctx context.Context) (string, error)
	Invalidate(ctx context.Context) error
}

var _ Authorizer = (*TokenManager)(nil)

// Client queries the EoX API v5.
type Client struct {
	httpClient *http.Client
	auth       Authorizer
	baseURL    string
	userAgent  string
}

func NewClient(httpClient *http.Client, auth Authorizer, baseURL string, userAgent string) *Client {
	return &Client{
		httpClient: httpClient,
		auth:       auth,
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		userAgent:  userAgent,
	}
}

// QueryByProduct searches by product ID pattern. The pattern needs at least
// three characters besides leading or trailing '*' wildcards.
func (c *Client) QueryByProduct(ctx context.Context, pattern string, page int) (*PageEnvelope, error) {
	if len(strings.Trim(pattern, "*")) < 3 {
		return nil, fmt.Errorf("%w: product pattern %q is shorter than 3 characters", ErrInvalidQuery, pattern)
	}
	if page < 1 {
		return nil, fmt.Errorf("%w: page %d", ErrInvalidQuery, page)
	}

	slog.Debug("Querying EoX API by product", "pattern", pattern, "page", page)
	endpoint := fmt.Sprintf("%s/supporttools/eox/rest/5/EOXByProductID/%d/%s", c.baseURL, page, url.PathEscape(pattern))
	return c.query(ctx, endpointByProduct, endpoint)
}

// QueryByYear searches products whose EoX announcement falls into year.
func (c *Client) QueryByYear(ctx context.Context, year int, page int) (*PageEnvelope, error) {
	if year < 1 || year > 9999 {
		return nil, fmt.Errorf("%w: year %d", ErrInvalidQuery, year)
	}
	if page < 1 {
		return nil, fmt.Errorf("%w: page %d", ErrInvalidQuery, page)
	}

	slog.Debug("Querying EoX API by year", "year", year, "page", page)
	endpoint := fmt.Sprintf("%s/supporttools/eox/rest/5/EOXByDates/%d/%04d-01-01/%04d-12-31", c.baseURL, page, year, year)
	return c.query(ctx, endpointByYear, endpoint)
}

// query performs the request and retries exactly once with a fresh token
// after an authorization failure.
func (c *Client) query(ctx context.Context, name string, endpoint string) (*PageEnvelope, error) {
	envelope, err := c.get(ctx, name, endpoint)
	if err == nil || !errors.Is(err, ErrAuthFailed) {
		return envelope, err
	}

	slog.Warn("Upstream authorization failed, retrying with a new token", "url", endpoint, "error", err)
	if invErr := c.auth.Invalidate(ctx); invErr != nil {
		slog.Warn("Failed to invalidate token", "error", invErr)
	}

	return c.get(ctx, name, endpoint)
}

func (c *Client) get(ctx context.Context, name string, endpoint string) (*PageEnvelope, error) {
	header, err := c.auth.Authorize(ctx)
	if err != nil {
		return nil, authorizeError(err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	req.Header.Set("Authorization", header)
	req.Header.Set("Accept", "application/json")
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.UpstreamRequests.WithLabelValues(name, "unreachable").Inc()
		slog.Error("Cannot contact API endpoint", "url", endpoint, "error", err)
		return nil, fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		metrics.UpstreamRequests.WithLabelValues(name, "unreachable").Inc()
		return nil, fmt.Errorf("%w: failed to read response: %v", ErrUnreachable, err)
	}

	result := ClassifyEnvelope(resp.StatusCode, body)
	metrics.UpstreamRequests.WithLabelValues(name, result.Category.String()).Inc()

	switch result.Category {
	case CategoryOK:
		return result.Envelope, nil
	case CategorySoftEmpty:
		slog.Debug("EoX API returned no data", "url", endpoint, "reason", result.Detail)
		return result.Envelope, nil
	case CategoryAuthFailed:
		return nil, fmt.Errorf("%w: %w: %s", ErrAuthFailed, ErrInvalidCredentials, result.Detail)
	case CategoryInsufficientPermissions:
		return nil, fmt.Errorf("%w: %w: %s", ErrAuthFailed, ErrInsufficientPermissions, result.Detail)
	case CategoryTimeout:
		slog.Error("API endpoint temporarily unreachable", "url", endpoint)
		return nil, fmt.Errorf("%w: %s", ErrUnreachable, result.Detail)
	case CategoryMalformedJSON:
		slog.Error("Unexpected response from API endpoint (malformed JSON content)", "url", endpoint)
		return nil, fmt.Errorf("%w: %s", ErrMalformed, result.Detail)
	default:
		slog.Error("EoX API call failed", "url", endpoint, "reason", result.Detail)
		return nil, fmt.Errorf("%w: %s", ErrRemote, result.Detail)
	}
}

func authorizeError(err error) error {
	switch {
	case errors.Is(err, ErrInvalidCredentials), errors.Is(err, ErrInsufficientPermissions):
		return fmt.Errorf("%w: %w", ErrAuthFailed, err)
	case errors.Is(err, ErrAuthServerUnreachable):
		return fmt.Errorf("%w: %w", ErrUnreachable, err)
	case errors.Is(err, ErrAuthServerMalformed):
		return fmt.Errorf("%w: %w", ErrMalformed, err)
	default:
		return err
	}
}
