package upload

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"

	"evfwd/internal/batch"
)

const (
	DefaultBaseURL = "https://s2s.mparticle.com"
	eventsPath     = "/v2/events"
	bulkPath       = "/v2/bulkevents"
	maxBodyRead    = 64 << 10
)

// HTTPClient talks to the ingestion API with basic auth.
type HTTPClient struct {
	baseURL string
	key     string
	secret  string
	client  *http.Client
}

func NewHTTPClient(baseURL, key, secret string, timeout time.Duration) *HTTPClient {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	tr := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		TLSHandshakeTimeout: 10 * time.Second,
		IdleConnTimeout:     60 * time.Second,
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 16,
	}
	return NewHTTPClientWith(baseURL, key, secret, &http.Client{Transport: tr, Timeout: timeout})
}

// NewHTTPClientWith uses the given *http.Client, mostly for tests.
func NewHTTPClientWith(baseURL, key, secret string, c *http.Client) *HTTPClient {
	return &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		key:     key,
		secret:  secret,
		client:  c,
	}
}

func (c *HTTPClient) Submit(ctx context.Context, b batch.Batch) (Response, error) {
	return c.post(ctx, eventsPath, b)
}

func (c *HTTPClient) SubmitBulk(ctx context.Context, bs []batch.Batch) (Response, error) {
	return c.post(ctx, bulkPath, bs)
}

func (c *HTTPClient) post(ctx context.Context, path string, body any) (Response, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return Response{}, errors.Wrap(err, "marshal batch")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return Response{}, errors.Wrap(err, "build request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.SetBasicAuth(c.key, c.secret)

	resp, err := c.client.Do(req)
	if err != nil {
		return Response{}, errors.Wrapf(err, "post %s", path)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyRead))
	if err != nil {
		return Response{}, errors.Wrap(err, "read response")
	}
	return Response{StatusCode: resp.StatusCode, Body: data}, nil
}
