package rule

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// HTTPProvider invokes rules hosted by a remote rule service. The service
// exposes GET {base}/rules returning descriptors and POST {base}/rules/{name}
// taking the flat input map and returning the output map.
type HTTPProvider struct {
	baseURL string
	client  *http.Client
}

// NewHTTPProvider creates a provider against the given rule service.
func NewHTTPProvider(baseURL string, timeout time.Duration) *HTTPProvider {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &HTTPProvider{
		baseURL: baseURL,
		client: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxConnsPerHost:     50,
				IdleConnTimeout:     90 * time.Second,
				TLSHandshakeTimeout: 10 * time.Second,
			},
		},
	}
}

// ListRules fetches the remote rule descriptors.
func (p *HTTPProvider) ListRules(ctx context.Context) ([]Descriptor, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/rules", nil)
	if err != nil {
		return nil, fmt.Errorf("rule: build list request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("rule: list rules: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("rule: list rules: unexpected status %d", resp.StatusCode)
	}

	var body struct {
		Rules []Descriptor `json:"rules"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&body); err != nil {
		return nil, fmt.Errorf("rule: decode rule list: %w", err)
	}
	return body.Rules, nil
}

// Invoke runs one remote rule.
func (p *HTTPProvider) Invoke(ctx context.Context, name string, inputs map[string]string) (map[string]string, error) {
	payload, err := json.Marshal(map[string]any{"inputs": inputs})
	if err != nil {
		return nil, fmt.Errorf("rule: marshal inputs: %w", err)
	}

	endpoint := p.baseURL + "/rules/" + url.PathEscape(name)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("rule: build invoke request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("rule: invoke %q: %w", name, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return nil, &UnknownRuleError{Name: name}
	default:
		return nil, fmt.Errorf("rule: invoke %q: unexpected status %d", name, resp.StatusCode)
	}

	var body struct {
		Outputs map[string]string `json:"outputs"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&body); err != nil {
		return nil, fmt.Errorf("rule: decode invoke response: %w", err)
	}
	return body.Outputs, nil
}
