package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// gateway is a small JSON-over-HTTP client for the internal data services
// the tools talk to. Retries transient failures with exponential backoff.
type gateway struct {
	base    string
	headers map[string]string
	client  *http.Client
	retries int
	backoff time.Duration
}

func newGateway(base string, timeout time.Duration) *gateway {
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &gateway{
		base:    strings.TrimRight(base, "/"),
		client:  &http.Client{Timeout: timeout},
		retries: 2,
		backoff: 300 * time.Millisecond,
	}
}

func (g *gateway) withHeader(key, value string) *gateway {
	if g.headers == nil {
		g.headers = map[string]string{}
	}
	g.headers[key] = value
	return g
}

func (g *gateway) getJSON(ctx context.Context, path string, query url.Values, out any) error {
	return g.doJSON(ctx, http.MethodGet, path, query, nil, out)
}

func (g *gateway) postJSON(ctx context.Context, path string, body, out any) error {
	return g.doJSON(ctx, http.MethodPost, path, nil, body, out)
}

func (g *gateway) doJSON(ctx context.Context, method, path string, query url.Values, body, out any) error {
	var payload []byte
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		payload = b
	}
	target := g.base + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	var lastErr error
	tries := g.retries + 1
	for attempt := 0; attempt < tries; attempt++ {
		var bodyReader io.Reader
		if payload != nil {
			bodyReader = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, target, bodyReader)
		if err != nil {
			return err
		}
		for k, v := range g.headers {
			req.Header.Set(k, v)
		}
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := g.client.Do(req)
		if err != nil {
			lastErr = err
		} else {
			func() {
				defer resp.Body.Close()
				if resp.StatusCode >= 200 && resp.StatusCode < 300 {
					if out == nil {
						lastErr = nil
						return
					}
					lastErr = json.NewDecoder(resp.Body).Decode(out)
					return
				}
				b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
				lastErr = errors.New(resp.Status + ": " + strings.TrimSpace(string(b)))
			}()
			if lastErr == nil {
				return nil
			}
			if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
				return lastErr
			}
		}

		if attempt < tries-1 {
			select {
			case <-time.After(g.backoff * time.Duration(1<<attempt)):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
	return lastErr
}
