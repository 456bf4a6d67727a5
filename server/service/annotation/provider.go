package annotation

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/time/rate"

	"github.com/binods1313/MutationMechanic-sub000/internal/profile"
	"github.com/binods1313/MutationMechanic-sub000/internal/retry"
)

// ErrNotFound is returned by a provider that has no data for the query.
var ErrNotFound = errors.New("no annotation found")

const maxResponseBytes = 4 << 20

// Provider fetches one annotation source for a variant.
type Provider interface {
	// Source names the bundle field the provider fills.
	Source() string
	// Fetch returns the provider payload as JSON.
	Fetch(ctx context.Context, q *Query) (json.RawMessage, error)
}

// HTTPProviderConfig configures an HTTP annotation provider.
type HTTPProviderConfig struct {
	Client *http.Client
	// RequestsPerSecond and Burst bound outgoing calls; zero uses 5 rps with a burst of 5.
	RequestsPerSecond float64
	Burst             int
	Retry             retry.Config
}

// HTTPProvider fetches JSON with GET {baseURL}?gene=&variant=&id=.
type HTTPProvider struct {
	source  string
	baseURL string
	client  *http.Client
	limiter *rate.Limiter
	retry   retry.Config
}

// NewHTTPProvider creates an HTTP provider for source.
func NewHTTPProvider(source, baseURL string, cfg HTTPProviderConfig) *HTTPProvider {
	if cfg.Client == nil {
		cfg.Client = &http.Client{Timeout: 10 * time.Second}
	}
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = 5
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 5
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry = retry.DefaultConfig()
	}
	return &HTTPProvider{
		source:  source,
		baseURL: baseURL,
		client:  cfg.Client,
		limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst),
		retry:   cfg.Retry,
	}
}

func (p *HTTPProvider) Source() string {
	return p.source
}

func (p *HTTPProvider) Fetch(ctx context.Context, q *Query) (json.RawMessage, error) {
	target, err := p.requestURL(q)
	if err != nil {
		return nil, err
	}
	return retry.DoWithResult(ctx, p.retry, func() (json.RawMessage, error) {
		if err := p.limiter.Wait(ctx); err != nil {
			return nil, retry.Permanent(errors.Wrapf(err, "%s: rate limit wait", p.source))
		}
		return p.get(ctx, target)
	})
}

func (p *HTTPProvider) requestURL(q *Query) (string, error) {
	u, err := url.Parse(p.baseURL)
	if err != nil {
		return "", errors.Wrapf(err, "%s: invalid base url", p.source)
	}
	values := u.Query()
	values.Set("gene", q.Gene)
	values.Set("variant", q.Variant)
	for _, id := range q.Identifiers {
		values.Add("id", id)
	}
	u.RawQuery = values.Encode()
	return u.String(), nil
}

func (p *HTTPProvider) get(ctx context.Context, target string) (json.RawMessage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, retry.Permanent(errors.Wrapf(err, "%s: build request", p.source))
	}
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, retry.Permanent(errors.Wrapf(ctx.Err(), "%s: request abandoned", p.source))
		}
		return nil, errors.Wrapf(err, "%s: request failed", p.source)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, errors.Wrapf(err, "%s: read response", p.source)
	}

	switch {
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusNoContent:
		return nil, retry.Permanent(errors.Wrapf(ErrNotFound, "%s", p.source))
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return nil, errors.Errorf("%s: transient status %d", p.source, resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return nil, retry.Permanent(errors.Errorf("%s: unexpected status %d", p.source, resp.StatusCode))
	}

	if !json.Valid(body) {
		return nil, retry.Permanent(errors.Errorf("%s: response is not valid JSON", p.source))
	}
	return json.RawMessage(body), nil
}

// ProviderFunc adapts a function to the Provider interface.
type ProviderFunc struct {
	Name string
	Fn   func(ctx context.Context, q *Query) (json.RawMessage, error)
}

func (f ProviderFunc) Source() string {
	return f.Name
}

func (f ProviderFunc) Fetch(ctx context.Context, q *Query) (json.RawMessage, error) {
	return f.Fn(ctx, q)
}

// ProvidersFromProfile builds an HTTP provider for every source with a configured URL.
func ProvidersFromProfile(p *profile.Profile) []Provider {
	urls := map[string]string{
		SourceFrequency:    p.FrequencyURL,
		SourceConservation: p.ConservationURL,
		SourceImpact:       p.ImpactURL,
		SourceOrthologs:    p.OrthologURL,
		SourceRegulatory:   p.RegulatoryURL,
		SourceClinical:     p.ClinicalURL,
	}
	client := &http.Client{Timeout: p.ProviderTimeout}
	providers := []Provider{}
	for _, source := range Sources {
		if u := urls[source]; u != "" {
			providers = append(providers, NewHTTPProvider(source, u, HTTPProviderConfig{Client: client}))
		}
	}
	return providers
}
