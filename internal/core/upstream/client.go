package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/fulmenhq/gofulmen/logging"
	"go.uber.org/zap"

	"github.com/riftproxy/riftproxy/internal/core"
)

// Default upstream locations.
const (
	DefaultPlatformURL = "https://na1.api.riotgames.com"
	DefaultStaticURL   = "https://ddragon.leagueoflegends.com"
	DefaultLocale      = "en_US"
	DefaultTimeout     = 10 * time.Second
)

const maxBodyBytes = 16 << 20

// HeaderObserver receives the headers of every upstream response.
type HeaderObserver interface {
	Observe(host string, header http.Header) bool
}

// Client performs single upstream calls and classifies their outcome.
type Client struct {
	HTTP        *http.Client
	PlatformURL string
	StaticURL   string
	Locale      string
	Observer    HeaderObserver
	Logger      *logging.Logger
}

// Call issues a GET for the endpoint and returns the JSON body on 200.
func (c *Client) Call(ctx context.Context, endpoint Endpoint, params map[string]string, apiKey string) (json.RawMessage, error) {
	if c == nil {
		return nil, errors.New("upstream client is not configured")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	reqURL, err := c.buildURL(endpoint, params, apiKey)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL.String(), nil)
	if err != nil {
		return nil, &core.UpstreamError{Kind: core.KindBadRequest, Endpoint: endpoint.Name, Err: err}
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.httpClient().Do(req)
	if err != nil {
		c.debug("upstream call failed", zap.String("endpoint", endpoint.Name), zap.Error(err))
		return nil, &core.UpstreamError{Kind: core.KindNetworkFailure, Endpoint: endpoint.Name, Err: err}
	}
	defer resp.Body.Close() // nolint:errcheck // best-effort cleanup on HTTP response body

	if c.Observer != nil {
		c.Observer.Observe(reqURL.Host, resp.Header)
	}

	c.debug("upstream call",
		zap.String("endpoint", endpoint.Name),
		zap.Int("status", resp.StatusCode),
		zap.Duration("duration", time.Since(start)),
	)

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes))
		return nil, &core.UpstreamError{
			Kind:       core.KindForStatus(resp.StatusCode),
			StatusCode: resp.StatusCode,
			Endpoint:   endpoint.Name,
		}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, &core.UpstreamError{Kind: core.KindNetworkFailure, StatusCode: resp.StatusCode, Endpoint: endpoint.Name, Err: err}
	}
	body = bytes.TrimSpace(body)
	if !json.Valid(body) {
		return nil, &core.UpstreamError{
			Kind:       core.KindMalformedResponse,
			StatusCode: resp.StatusCode,
			Endpoint:   endpoint.Name,
			Err:        errors.New("response body is not valid JSON"),
		}
	}

	return json.RawMessage(body), nil
}

// PlatformHost returns the host name of the rate-limited platform API.
func (c *Client) PlatformHost() string {
	parsed, err := url.Parse(c.baseURL(BasePlatform))
	if err != nil {
		return ""
	}
	return parsed.Host
}

func (c *Client) buildURL(endpoint Endpoint, params map[string]string, apiKey string) (*url.URL, error) {
	values := make(map[string]string, len(params)+1)
	for k, v := range params {
		values[k] = v
	}
	if strings.TrimSpace(values[ParamLocale]) == "" {
		values[ParamLocale] = c.locale()
	}

	path, err := endpoint.Expand(values)
	if err != nil {
		return nil, err
	}

	base, err := url.Parse(c.baseURL(endpoint.Base))
	if err != nil || base.Host == "" {
		return nil, &core.UpstreamError{
			Kind:     core.KindBadRequest,
			Endpoint: endpoint.Name,
			Err:      fmt.Errorf("invalid %s base url %q", endpoint.Base, c.baseURL(endpoint.Base)),
		}
	}

	// path is already escaped; keep it verbatim
	reqURL := *base
	reqURL.RawPath = strings.TrimRight(base.EscapedPath(), "/") + path
	unescaped, err := url.PathUnescape(reqURL.RawPath)
	if err != nil {
		return nil, &core.UpstreamError{Kind: core.KindBadRequest, Endpoint: endpoint.Name, Err: err}
	}
	reqURL.Path = unescaped

	if endpoint.RequiresKey {
		query := reqURL.Query()
		query.Set("api_key", apiKey)
		reqURL.RawQuery = query.Encode()
	}
	return &reqURL, nil
}

func (c *Client) baseURL(base Base) string {
	switch base {
	case BaseStatic:
		if v := strings.TrimSpace(c.StaticURL); v != "" {
			return v
		}
		return DefaultStaticURL
	default:
		if v := strings.TrimSpace(c.PlatformURL); v != "" {
			return v
		}
		return DefaultPlatformURL
	}
}

func (c *Client) locale() string {
	if v := strings.TrimSpace(c.Locale); v != "" {
		return v
	}
	return DefaultLocale
}

func (c *Client) httpClient() *http.Client {
	if c.HTTP != nil {
		return c.HTTP
	}
	return &http.Client{Timeout: DefaultTimeout}
}

func (c *Client) debug(msg string, fields ...zap.Field) {
	if c.Logger != nil {
		c.Logger.Debug(msg, fields...)
	}
}
