// Package apiclient wraps the prescriptions REST API behind typed resource services.
// It performs no caching, retrying or request deduplication: callers decide how
// to surface failures.
package apiclient

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

	"github.com/giygas/prescriptions-web/metrics"
)

// DefaultTimeout is the fixed client-level timeout for every API call
const DefaultTimeout = 10 * time.Second

// maxBodySize caps how much of a response body is read
const maxBodySize = 1 << 20

var (
	ErrNilClient  = errors.New("apiclient: nil client")
	ErrInvalidURL = errors.New("apiclient: base url must be an absolute http(s) url")
)

// HTTPError represents a non-2xx response
type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("request failed with status code %d", e.StatusCode)
}

// Client talks JSON to the prescriptions API
type Client struct {
	baseURL    string
	httpClient *http.Client

	Patients      *PatientService
	Medications   *MedicationService
	Prescriptions *PrescriptionService
}

// Option customizes a Client
type Option func(*Client)

// WithTransport replaces the underlying transport (still instrumented)
func WithTransport(tr http.RoundTripper) Option {
	return func(c *Client) {
		c.httpClient.Transport = metrics.NewTransport(tr)
	}
}

// WithHTTPClient uses a copy of hc with its timeout forced to DefaultTimeout
// and its transport instrumented. hc itself is left untouched.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc == nil {
			return
		}
		cp := *hc
		cp.Timeout = DefaultTimeout
		cp.Transport = metrics.NewTransport(hc.Transport)
		c.httpClient = &cp
	}
}

// New creates a Client for baseURL (e.g. http://localhost:8000)
func New(baseURL string, opts ...Option) (*Client, error) {
	baseURL = strings.TrimSpace(baseURL)
	u, err := url.ParseRequestURI(baseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidURL, baseURL)
	}

	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout:   DefaultTimeout,
			Transport: metrics.NewTransport(nil),
		},
	}
	for _, opt := range opts {
		opt(c)
	}

	c.Patients = &PatientService{client: c}
	c.Medications = &MedicationService{client: c}
	c.Prescriptions = &PrescriptionService{client: c}

	return c, nil
}

// BaseURL returns the normalized base URL
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Ping checks that the API answers, without downloading a resource list
func (c *Client) Ping(ctx context.Context) error {
	return c.do(ctx, http.MethodHead, "/Patient", nil, nil, nil)
}

// do sends a JSON request. Transport errors are returned unchanged.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, in, out any) error {
	if c == nil || c.httpClient == nil {
		return ErrNilClient
	}

	fullURL := c.baseURL + path
	if len(query) > 0 {
		fullURL += "?" + query.Encode()
	}

	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("apiclient: marshal json: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, fullURL, body)
	if err != nil {
		return fmt.Errorf("apiclient: new request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return err
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &HTTPError{
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(raw)),
		}
	}

	if out == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("apiclient: unmarshal json: %w", err)
	}
	return nil
}

func itemPath(resource string, id int) string {
	return fmt.Sprintf("/%s/%d", resource, id)
}
