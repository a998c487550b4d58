// Package transport issues HTTP requests to a PowerVM management endpoint.
// It owns TLS trust material and timeouts and nothing else: no session
// state, no retry policy, no interpretation of response bodies. Callers
// get the raw status, headers, and body back and decide what they mean.
package transport

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/rs/zerolog/log"
)

// DefaultTimeout bounds a request when the caller does not configure one.
const DefaultTimeout = 60 * time.Second

// Options configures a transport Client.
type Options struct {
	// Timeout bounds each request, connection establishment included.
	Timeout time.Duration
	// SkipVerify disables server certificate validation.
	SkipVerify bool
	// CACertFile is an optional path to a PEM certificate to trust for
	// the endpoint, typically {certpath}/{host}{certext}.
	CACertFile string
}

// Client issues requests against a single base endpoint
// (scheme://host:port). It is safe for concurrent use.
type Client struct {
	base       string
	httpClient *http.Client
}

// Request describes one HTTP exchange. Path is relative to the client's
// base endpoint.
type Request struct {
	Method  string
	Path    string
	Query   url.Values
	Headers http.Header
	Body    io.Reader
	// Sensitive suppresses logging of headers and body for this request.
	Sensitive bool
}

// Response is a fully buffered HTTP response.
type Response struct {
	Status  int
	Reason  string
	Headers http.Header
	Body    []byte
}

// ETag returns the response's entity tag header, or "".
func (r *Response) ETag() string {
	return r.Headers.Get("Etag")
}

// StreamResponse carries an unread response body for downloads. The caller
// must close Body.
type StreamResponse struct {
	Status  int
	Reason  string
	Headers http.Header
	Body    io.ReadCloser
}

// New builds a Client for the given base endpoint. The certificate file,
// when configured, is loaded eagerly so a bad path fails fast.
func New(base string, opts Options) (*Client, error) {
	if _, err := url.Parse(base); err != nil {
		return nil, fmt.Errorf("invalid endpoint %q: %w", base, err)
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}

	tlsConfig := &tls.Config{InsecureSkipVerify: opts.SkipVerify}
	if opts.CACertFile != "" && !opts.SkipVerify {
		pem, err := os.ReadFile(opts.CACertFile)
		if err != nil {
			return nil, fmt.Errorf("unable to read certificate %s: %w", opts.CACertFile, err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("no usable certificates in %s", opts.CACertFile)
		}
		tlsConfig.RootCAs = pool
	}

	return &Client{
		base: base,
		httpClient: &http.Client{
			Timeout: opts.Timeout,
			Transport: &http.Transport{
				TLSClientConfig: tlsConfig,
			},
		},
	}, nil
}

// Endpoint returns the client's base endpoint.
func (c *Client) Endpoint() string {
	return c.base
}

func (c *Client) buildRequest(ctx context.Context, req *Request) (*http.Request, error) {
	u, err := url.Parse(c.base + req.Path)
	if err != nil {
		return nil, fmt.Errorf("invalid request path %q: %w", req.Path, err)
	}
	if len(req.Query) > 0 {
		q := u.Query()
		for k, vs := range req.Query {
			for _, v := range vs {
				q.Set(k, v)
			}
		}
		u.RawQuery = q.Encode()
	}

	body := req.Body
	if body == nil {
		body = bytes.NewReader(nil)
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.Method, u.String(), body)
	if err != nil {
		return nil, fmt.Errorf("unable to build request: %w", err)
	}
	for k, vs := range req.Headers {
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}
	return httpReq, nil
}

// Do issues the request and buffers the full response body.
func (c *Client) Do(ctx context.Context, req *Request) (*Response, error) {
	httpReq, err := c.buildRequest(ctx, req)
	if err != nil {
		return nil, err
	}

	if !req.Sensitive {
		log.Debug().Str("method", req.Method).Str("url", httpReq.URL.String()).Msg("sending request")
	} else {
		log.Debug().Str("method", req.Method).Msg("sending sensitive request")
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("unable to read response body: %w", err)
	}

	log.Debug().Int("status", resp.StatusCode).Str("method", req.Method).Str("path", req.Path).Msg("received response")

	return &Response{
		Status:  resp.StatusCode,
		Reason:  resp.Status,
		Headers: resp.Header,
		Body:    body,
	}, nil
}

// DoStream issues the request and returns the response with its body
// unread, for downloading large payloads. Error-status bodies are NOT
// buffered here; the caller inspects Status and drains or closes.
func (c *Client) DoStream(ctx context.Context, req *Request) (*StreamResponse, error) {
	httpReq, err := c.buildRequest(ctx, req)
	if err != nil {
		return nil, err
	}

	log.Debug().Str("method", req.Method).Str("url", httpReq.URL.String()).Msg("sending stream request")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, err
	}

	return &StreamResponse{
		Status:  resp.StatusCode,
		Reason:  resp.Status,
		Headers: resp.Header,
		Body:    resp.Body,
	}, nil
}
