// ABOUTME: HTTP client for the remote agent-execution service
// ABOUTME: Agent search, query submission and result fetch with optional auth and rate cap

package agentverse

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/2389/graphrag-assistant/internal/auth"
	"github.com/2389/graphrag-assistant/internal/config"
)

// maxBodySize bounds how much of any response is read.
const maxBodySize = 1 << 20

// Options configures a Client.
type Options struct {
	BaseURL    string
	SearchPath string
	SubmitPath string
	ResultPath string

	// Timeout applies to each request. Zero means no per-request timeout.
	Timeout time.Duration

	// AuthSecret enables HS256 bearer tokens when non-empty.
	AuthSecret string

	// MaxRequestsPerSecond caps outgoing requests. Zero means unlimited.
	MaxRequestsPerSecond float64

	// HTTPClient overrides the underlying client. Its transport is wrapped
	// when AuthSecret is set.
	HTTPClient *http.Client

	Logger *slog.Logger
}

// Client talks to the agent-execution service over JSON/HTTP.
type Client struct {
	baseURL    string
	searchPath string
	submitPath string
	resultPath string
	timeout    time.Duration
	http       *http.Client
	limiter    *rate.Limiter
	logger     *slog.Logger
}

// New creates a Client. Empty paths fall back to the config defaults.
func New(opts Options) *Client {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	if opts.AuthSecret != "" {
		wrapped := *httpClient
		wrapped.Transport = &auth.BearerTransport{
			Base:    httpClient.Transport,
			Minter:  auth.NewJWTVerifier([]byte(opts.AuthSecret)),
			Subject: "graphrag-client",
		}
		httpClient = &wrapped
	}

	var limiter *rate.Limiter
	if opts.MaxRequestsPerSecond > 0 {
		burst := int(opts.MaxRequestsPerSecond)
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(opts.MaxRequestsPerSecond), burst)
	}

	return &Client{
		baseURL:    strings.TrimSuffix(opts.BaseURL, "/"),
		searchPath: orDefault(opts.SearchPath, config.DefaultSearchPath),
		submitPath: orDefault(opts.SubmitPath, config.DefaultSubmitPath),
		resultPath: orDefault(opts.ResultPath, config.DefaultResultPath),
		timeout:    opts.Timeout,
		http:       httpClient,
		limiter:    limiter,
		logger:     logger.With("component", "agentverse"),
	}
}

// NewFromConfig creates a Client from the service section of the config.
func NewFromConfig(cfg config.ServiceConfig, logger *slog.Logger) *Client {
	return New(Options{
		BaseURL:              cfg.BaseURL,
		SearchPath:           cfg.SearchPath,
		SubmitPath:           cfg.SubmitPath,
		ResultPath:           cfg.ResultPath,
		Timeout:              cfg.RequestTimeout,
		AuthSecret:           cfg.AuthSecret,
		MaxRequestsPerSecond: cfg.MaxRequestsPerSecond,
		Logger:               logger,
	})
}

// Search asks the discovery endpoint for agents matching query.
// An empty list is a valid answer.
func (c *Client) Search(ctx context.Context, query string) ([]Agent, error) {
	endpoint := c.baseURL + c.searchPath + "?" + url.Values{"query": {query}}.Encode()

	resp, err := c.do(ctx, http.MethodGet, endpoint, nil, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, statusError(resp)
	}

	var agents []Agent
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBodySize)).Decode(&agents); err != nil {
		return nil, fmt.Errorf("decoding search response: %w", err)
	}

	c.logger.Debug("search complete", "query", query, "results", len(agents))
	return agents, nil
}

// Submit posts a query for the given agent. Any 2xx status is an acknowledgement.
func (c *Client) Submit(ctx context.Context, req SubmitRequest) error {
	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshaling request: %w", err)
	}

	headers := http.Header{}
	headers.Set("Content-Type", "application/json")
	headers.Set("X-Request-ID", uuid.New().String())

	resp, err := c.do(ctx, http.MethodPost, c.baseURL+c.submitPath, body, headers)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return statusError(resp)
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodySize))

	c.logger.Debug("query submitted", "agent", req.AgentAddress, "request_id", headers.Get("X-Request-ID"))
	return nil
}

// FetchResult asks for the answer to the last submission.
// Any non-200 status or an empty body means not ready yet and yields (nil, nil).
// A 200 whose body is not valid JSON is an error.
func (c *Client) FetchResult(ctx context.Context) (*Result, error) {
	resp, err := c.do(ctx, http.MethodGet, c.baseURL+c.resultPath, nil, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodySize))
		return nil, nil
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}

	var result Result
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("decoding result: %w", err)
	}
	return &result, nil
}

func (c *Client) do(ctx context.Context, method, endpoint string, body []byte, headers http.Header) (*http.Response, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("waiting for rate limiter: %w", err)
		}
	}

	cancel := context.CancelFunc(func() {})
	if c.timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
	}

	req, err := newRequest(ctx, method, endpoint, body, headers)
	if err != nil {
		cancel()
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("sending request: %w", err)
	}
	// The caller reads the body, so the timeout is released on Close.
	resp.Body = &cancelOnClose{ReadCloser: resp.Body, cancel: cancel}
	return resp, nil
}

func newRequest(ctx context.Context, method, endpoint string, body []byte, headers http.Header) (*http.Request, error) {
	var r io.Reader
	if body != nil {
		r = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, r)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	for k, v := range headers {
		req.Header[k] = v
	}
	req.Header.Set("Accept", "application/json")
	return req, nil
}

// statusError extracts the error message from a non-success response.
func statusError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))

	var errResp ErrorResponse
	if json.Unmarshal(body, &errResp) == nil && errResp.Error != "" {
		return &StatusError{Code: resp.StatusCode, Body: errResp.Error}
	}
	return &StatusError{Code: resp.StatusCode, Body: string(body)}
}

type cancelOnClose struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (c *cancelOnClose) Close() error {
	err := c.ReadCloser.Close()
	c.cancel()
	return err
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
